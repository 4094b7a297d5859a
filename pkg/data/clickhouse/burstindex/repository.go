package burstindex

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/ASFHyP3/VolcSARvatory/pkg/aoi"
	"github.com/ASFHyP3/VolcSARvatory/pkg/burst"
	"github.com/ASFHyP3/VolcSARvatory/pkg/clickhouse"
)

// DefaultTable is the burst frame table name.
const DefaultTable = "burst_frames"

// rows per batch
const batchSize = 10_000

// Repository reads and writes the burst frame table, the footprint of every
// Sentinel-1 burst as a lon/lat box.
type Repository interface {
	aoi.FrameSource
	Initialize(ctx context.Context) error
	WriteFrames(ctx context.Context, frames []aoi.Frame) error
}

var (
	_ Repository      = (*repository)(nil)
	_ aoi.FrameSource = (*repository)(nil)
)

var (
	//go:embed queries/create-table-local.sql
	createTableLocalQuery string
	//go:embed queries/create-table.sql
	createTableQuery string
	//go:embed queries/read-frames.sql
	readFramesQuery string
	//go:embed queries/write-frames.sql
	writeFramesQuery string
)

type repository struct {
	client    clickhouse.Client
	cluster   string
	database  string
	tableName string
}

func NewRepository(ctx context.Context, client clickhouse.Client, cluster, database, tableName string) (Repository, error) {
	if tableName == "" {
		return nil, errors.New("table name cannot be empty")
	}
	repo := &repository{client: client, cluster: cluster, database: database, tableName: tableName}
	if err := repo.Initialize(ctx); err != nil {
		return nil, err
	}
	return repo, nil
}

func (r *repository) query(tmpl string) string {
	return fmt.Sprintf(tmpl, r.database, r.tableName, r.cluster)
}

// Initialize creates the frame table when it does not exist.
func (r *repository) Initialize(ctx context.Context) error {
	if err := r.client.Conn().Exec(ctx, r.query(createTableLocalQuery)); err != nil {
		return fmt.Errorf("failed to create burst frames local table: %w", err)
	}
	if err := r.client.Conn().Exec(ctx, r.query(createTableQuery)); err != nil {
		return fmt.Errorf("failed to create burst frames table: %w", err)
	}
	return nil
}

// LoadFrames reads the whole frame table ordered by burst id.
func (r *repository) LoadFrames(ctx context.Context) ([]aoi.Frame, error) {
	rows, err := r.client.Conn().Query(ctx, r.query(readFramesQuery))
	if err != nil {
		return nil, fmt.Errorf("failed to query burst frames: %w", err)
	}
	defer rows.Close()

	var frames []aoi.Frame
	for rows.Next() {
		var f aoi.Frame
		if err := rows.Scan(&f.BurstID, &f.Box[0], &f.Box[1], &f.Box[2], &f.Box[3]); err != nil {
			return nil, fmt.Errorf("failed to scan burst frame: %w", err)
		}
		frames = append(frames, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate burst frames: %w", err)
	}
	return frames, nil
}

// WriteFrames inserts frames in batches of batchSize rows. Burst ids must
// parse.
func (r *repository) WriteFrames(ctx context.Context, frames []aoi.Frame) error {
	query := r.query(writeFramesQuery)
	for start := 0; start < len(frames); start += batchSize {
		chunk := frames[start:min(start+batchSize, len(frames))]
		if err := r.writeBatch(ctx, query, chunk); err != nil {
			return fmt.Errorf("failed to write burst frames %d-%d: %w", start, start+len(chunk)-1, err)
		}
	}
	return nil
}

func (r *repository) writeBatch(ctx context.Context, query string, frames []aoi.Frame) error {
	batch, err := r.client.Conn().PrepareBatch(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}
	for _, f := range frames {
		k, err := burst.Parse(f.BurstID)
		if err == nil {
			err = batch.Append(f.BurstID, k.Path, f.Box[0], f.Box[1], f.Box[2], f.Box[3])
		}
		if err != nil {
			_ = batch.Abort()
			return err
		}
	}
	return batch.Send()
}
