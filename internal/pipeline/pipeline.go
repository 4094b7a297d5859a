package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ASFHyP3/VolcSARvatory/internal/jobs"
	"github.com/ASFHyP3/VolcSARvatory/pkg/aoi"
	"github.com/ASFHyP3/VolcSARvatory/pkg/data/clickhouse/groups"
	"github.com/ASFHyP3/VolcSARvatory/pkg/metrics"
	"github.com/ASFHyP3/VolcSARvatory/pkg/multiburst"
	"github.com/ASFHyP3/VolcSARvatory/pkg/queue"
)

// BurstFinder lists the burst ids covering an AOI.
type BurstFinder interface {
	FindBursts(ctx context.Context, a aoi.AOI) ([]string, error)
}

// Qualifier keeps the bursts with enough acquisitions to process.
type Qualifier interface {
	FilterQualified(ctx context.Context, ids []string) ([]string, error)
}

type Partitioner interface {
	Partition(ctx context.Context, ids []string) ([]*multiburst.Group, error)
}

// GroupStore is the part of the groups repository the pipeline uses.
type GroupStore interface {
	WriteGroups(ctx context.Context, a aoi.AOI, runID string, gs []*multiburst.Group) error
	DeleteGroups(ctx context.Context, aoiName string) error
	ReadAOIState(ctx context.Context, name string) (groups.AOIState, bool, error)
}

var _ GroupStore = (groups.Repository)(nil)

type Config struct {
	Topic string
	// Concurrency bounds how many AOIs are processed at once.
	Concurrency int
	// Force partitions AOIs whose extent is unchanged since the last run.
	Force bool
	// ContinueOnError keeps processing the remaining AOIs after a failure.
	ContinueOnError bool
}

func (c Config) Validate() error {
	if c.Topic == "" {
		return errors.New("jobs topic cannot be empty")
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("invalid concurrency: %d", c.Concurrency)
	}
	return nil
}

// Summary counts the outcome of one run.
type Summary struct {
	RunID     string
	Processed int
	Skipped   int
	Failed    int
	Groups    int
}

// Pipeline finds, partitions, publishes and stores the multi-bursts of each
// AOI. Jobs are published before the groups are stored, so an AOI whose
// publish failed is partitioned again on the next run.
type Pipeline struct {
	log         *zap.SugaredLogger
	cfg         Config
	finder      BurstFinder
	qualifier   Qualifier
	partitioner Partitioner
	store       GroupStore
	publisher   queue.QueuePublisher
	metrics     *metrics.Metrics
	now         func() time.Time
}

// Deps groups the collaborators of a Pipeline. Qualifier and Metrics may be
// nil.
type Deps struct {
	Finder      BurstFinder
	Qualifier   Qualifier
	Partitioner Partitioner
	Store       GroupStore
	Publisher   queue.QueuePublisher
	Metrics     *metrics.Metrics
}

func New(log *zap.SugaredLogger, cfg Config, deps Deps) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline config: %w", err)
	}
	switch {
	case deps.Finder == nil:
		return nil, errors.New("burst finder cannot be nil")
	case deps.Partitioner == nil:
		return nil, errors.New("partitioner cannot be nil")
	case deps.Store == nil:
		return nil, errors.New("group store cannot be nil")
	case deps.Publisher == nil:
		return nil, errors.New("publisher cannot be nil")
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Pipeline{
		log:         log,
		cfg:         cfg,
		finder:      deps.Finder,
		qualifier:   deps.Qualifier,
		partitioner: deps.Partitioner,
		store:       deps.Store,
		publisher:   deps.Publisher,
		metrics:     deps.Metrics,
		now:         func() time.Time { return time.Now().UTC() },
	}, nil
}

// Run processes every AOI under one run id. Without ContinueOnError the
// first failure cancels the remaining AOIs.
func (p *Pipeline) Run(ctx context.Context, runID string, aois []aoi.AOI) (Summary, error) {
	sum := Summary{RunID: runID}
	var (
		mu   sync.Mutex
		errs []error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)
	for _, a := range aois {
		g.Go(func() error {
			n, skipped, err := p.processAOI(gctx, runID, a)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				sum.Failed++
				p.metrics.IncAOI(metrics.AOIFailed)
				err = fmt.Errorf("aoi %s: %w", a.Name, err)
				if !p.cfg.ContinueOnError {
					return err
				}
				p.log.Errorw("aoi failed", "aoi", a.Name, "error", err)
				errs = append(errs, err)
			case skipped:
				sum.Skipped++
				p.metrics.IncAOI(metrics.AOISkipped)
			default:
				sum.Processed++
				sum.Groups += n
				p.metrics.IncAOI(metrics.AOIProcessed)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return sum, err
	}

	p.log.Infow("run finished",
		"run_id", runID,
		"processed", sum.Processed,
		"skipped", sum.Skipped,
		"failed", sum.Failed,
		"groups", sum.Groups,
	)
	return sum, errors.Join(errs...)
}

func (p *Pipeline) processAOI(ctx context.Context, runID string, a aoi.AOI) (int, bool, error) {
	log := p.log.With("aoi", a.Name, "run_id", runID)

	state, found, err := p.store.ReadAOIState(ctx, a.Name)
	if err != nil {
		p.metrics.IncError(metrics.ErrTypeStorage)
		return 0, false, err
	}
	if found && state.Matches(a.Extent) && !p.cfg.Force {
		log.Infow("aoi unchanged, skipping", "last_run_id", state.RunID, "groups", len(state.GroupIDs))
		return 0, true, nil
	}

	ids, err := p.Prepare(ctx, a)
	if err != nil {
		return 0, false, err
	}

	var gs []*multiburst.Group
	if len(ids) > 0 {
		gs, err = p.partitioner.Partition(ctx, ids)
		if err != nil {
			p.metrics.IncError(metrics.ErrTypeValidation)
			return 0, false, fmt.Errorf("failed to partition: %w", err)
		}
	} else {
		log.Warn("no qualifying bursts")
	}

	if err := p.publish(ctx, a, runID, gs); err != nil {
		return 0, false, err
	}

	if found {
		log.Infow("aoi extent changed, replacing groups", "previous_bbox", state.BBox)
		if err := p.store.DeleteGroups(ctx, a.Name); err != nil {
			p.metrics.IncError(metrics.ErrTypeStorage)
			return 0, false, err
		}
	}
	if err := p.store.WriteGroups(ctx, a, runID, gs); err != nil {
		p.metrics.IncError(metrics.ErrTypeStorage)
		return 0, false, err
	}

	log.Infow("aoi processed", "bursts", len(ids), "groups", len(gs))
	return len(gs), false, nil
}

// Prepare returns the bursts of a, narrowed to qualifying ones when a
// Qualifier is set.
func (p *Pipeline) Prepare(ctx context.Context, a aoi.AOI) ([]string, error) {
	ids, err := p.finder.FindBursts(ctx, a)
	if err != nil {
		p.metrics.IncError(metrics.ErrTypeStorage)
		return nil, fmt.Errorf("failed to find bursts: %w", err)
	}
	if p.qualifier == nil || len(ids) == 0 {
		return ids, nil
	}
	ids, err = p.qualifier.FilterQualified(ctx, ids)
	if err != nil {
		p.metrics.IncError(metrics.ErrTypeCatalog)
		return nil, fmt.Errorf("failed to qualify bursts: %w", err)
	}
	return ids, nil
}

func (p *Pipeline) publish(ctx context.Context, a aoi.AOI, runID string, gs []*multiburst.Group) error {
	msgs, err := jobs.NewMessages(a, runID, gs, p.now())
	if err != nil {
		return err
	}
	for _, m := range msgs {
		qm, err := m.Encode(p.cfg.Topic)
		if err == nil {
			err = p.publisher.Publish(ctx, qm)
		}
		p.metrics.RecordJobPublished(err)
		if err != nil {
			p.metrics.IncError(metrics.ErrTypePublish)
			return fmt.Errorf("failed to publish job %s: %w", m.ID, err)
		}
	}
	return nil
}
