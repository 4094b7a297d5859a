package groups

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/ASFHyP3/VolcSARvatory/pkg/aoi"
	"github.com/ASFHyP3/VolcSARvatory/pkg/clickhouse"
	"github.com/ASFHyP3/VolcSARvatory/pkg/multiburst"
)

// Repository stores the multi-burst groups of each AOI and the extent the
// AOI was last partitioned with.
type Repository interface {
	Initialize(ctx context.Context) error
	// WriteGroups stores groups for a and records a's extent as processed.
	WriteGroups(ctx context.Context, a aoi.AOI, runID string, groups []*multiburst.Group) error
	ReadGroups(ctx context.Context, aoiName string) ([]GroupRow, error)
	DeleteGroups(ctx context.Context, aoiName string) error
	// ReadAOIState returns the stored state of an AOI and false when the AOI
	// was never processed.
	ReadAOIState(ctx context.Context, name string) (AOIState, bool, error)
}

var _ Repository = (*repository)(nil)

var (
	//go:embed queries/create-groups-table-local.sql
	createGroupsTableLocalQuery string
	//go:embed queries/create-groups-table.sql
	createGroupsTableQuery string
	//go:embed queries/create-state-table-local.sql
	createStateTableLocalQuery string
	//go:embed queries/create-state-table.sql
	createStateTableQuery string
	//go:embed queries/write-group.sql
	writeGroupQuery string
	//go:embed queries/read-groups.sql
	readGroupsQuery string
	//go:embed queries/delete-groups.sql
	deleteGroupsQuery string
	//go:embed queries/write-state.sql
	writeStateQuery string
	//go:embed queries/read-state.sql
	readStateQuery string
	//go:embed queries/delete-state.sql
	deleteStateQuery string
)

// Tables names the two tables of the repository. The distributed tables use
// these names; their local tables carry a _local suffix.
type Tables struct {
	Groups string
	State  string
}

// DefaultTables returns the production table names.
func DefaultTables() Tables {
	return Tables{Groups: "multiburst_groups", State: "aoi_state"}
}

type repository struct {
	client   clickhouse.Client
	cluster  string
	database string
	tables   Tables
	now      func() time.Time
}

// NewRepository creates the repository and its tables.
func NewRepository(ctx context.Context, client clickhouse.Client, cluster, database string, tables Tables) (Repository, error) {
	if tables.Groups == "" || tables.State == "" {
		return nil, errors.New("table names cannot be empty")
	}
	repo := &repository{
		client:   client,
		cluster:  cluster,
		database: database,
		tables:   tables,
		now:      func() time.Time { return time.Now().UTC() },
	}
	if err := repo.Initialize(ctx); err != nil {
		return nil, err
	}
	return repo, nil
}

func (r *repository) query(tmpl, table string) string {
	return fmt.Sprintf(tmpl, r.database, table, r.cluster)
}

// Initialize creates the local and distributed tables of the groups and
// AOI state when they do not exist.
func (r *repository) Initialize(ctx context.Context) error {
	steps := []struct {
		what  string
		query string
	}{
		{"groups local table", r.query(createGroupsTableLocalQuery, r.tables.Groups)},
		{"groups table", r.query(createGroupsTableQuery, r.tables.Groups)},
		{"aoi state local table", r.query(createStateTableLocalQuery, r.tables.State)},
		{"aoi state table", r.query(createStateTableQuery, r.tables.State)},
	}
	for _, s := range steps {
		if err := r.client.Conn().Exec(ctx, s.query); err != nil {
			return fmt.Errorf("failed to create %s: %w", s.what, err)
		}
	}
	return nil
}

func (r *repository) WriteGroups(ctx context.Context, a aoi.AOI, runID string, groups []*multiburst.Group) error {
	now := r.now()
	ids := make([]string, 0, len(groups))
	if len(groups) > 0 {
		if err := r.writeGroupBatch(ctx, a, runID, groups, now); err != nil {
			return fmt.Errorf("failed to write groups of %s: %w", a.Name, err)
		}
		for _, g := range groups {
			ids = append(ids, g.ID)
		}
	}

	query := r.query(writeStateQuery, r.tables.State)
	if err := r.client.Conn().Exec(ctx, query, a.Name, a.Extent.String(), ids, runID, now); err != nil {
		return fmt.Errorf("failed to write aoi state %s: %w", a.Name, err)
	}
	return nil
}

// writeGroupBatch stores all groups of one AOI in a single insert.
func (r *repository) writeGroupBatch(ctx context.Context, a aoi.AOI, runID string, groups []*multiburst.Group, now time.Time) error {
	batch, err := r.client.Conn().PrepareBatch(ctx, r.query(writeGroupQuery, r.tables.Groups))
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}
	for _, g := range groups {
		row, err := NewGroupRow(a, runID, g, now)
		if err == nil {
			err = batch.Append(
				row.AOI, row.GroupID, row.Path, row.MBSet, row.BurstIDs,
				row.TemporalBaseline, row.Season, row.TargetDate, row.BridgeYears,
				row.RunID, row.UpdatedAt,
			)
		}
		if err != nil {
			_ = batch.Abort()
			return fmt.Errorf("group %s: %w", g.ID, err)
		}
	}
	return batch.Send()
}

func (r *repository) ReadGroups(ctx context.Context, aoiName string) ([]GroupRow, error) {
	rows, err := r.client.Conn().Query(ctx, r.query(readGroupsQuery, r.tables.Groups), aoiName)
	if err != nil {
		return nil, fmt.Errorf("failed to read groups of %s: %w", aoiName, err)
	}
	defer rows.Close()

	var out []GroupRow
	for rows.Next() {
		var g GroupRow
		err := rows.Scan(
			&g.AOI, &g.GroupID, &g.Path, &g.MBSet, &g.BurstIDs,
			&g.TemporalBaseline, &g.Season, &g.TargetDate, &g.BridgeYears,
			&g.RunID, &g.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan group row: %w", err)
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate groups of %s: %w", aoiName, err)
	}
	return out, nil
}

// DeleteGroups removes the groups and the state of an AOI, so the next run
// partitions it again.
func (r *repository) DeleteGroups(ctx context.Context, aoiName string) error {
	if err := r.client.Conn().Exec(ctx, r.query(deleteGroupsQuery, r.tables.Groups), aoiName); err != nil {
		return fmt.Errorf("failed to delete groups of %s: %w", aoiName, err)
	}
	if err := r.client.Conn().Exec(ctx, r.query(deleteStateQuery, r.tables.State), aoiName); err != nil {
		return fmt.Errorf("failed to delete aoi state %s: %w", aoiName, err)
	}
	return nil
}

func (r *repository) ReadAOIState(ctx context.Context, name string) (AOIState, bool, error) {
	var s AOIState
	err := r.client.Conn().
		QueryRow(ctx, r.query(readStateQuery, r.tables.State), name).
		Scan(&s.Name, &s.BBox, &s.GroupIDs, &s.RunID, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return AOIState{}, false, nil
		}
		return AOIState{}, false, fmt.Errorf("failed to read aoi state %s: %w", name, err)
	}
	return s, true, nil
}
