package multiburst

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ASFHyP3/VolcSARvatory/pkg/burst"
	"github.com/ASFHyP3/VolcSARvatory/pkg/metrics"
)

const (
	defaultMaxDepth    = 64
	defaultConcurrency = 1
)

// Config tunes the Partitioner.
type Config struct {
	// CountLimit is the slot capacity of one multi-burst.
	CountLimit int
	// SidePairs selects the sub-swath pair order of CompleteSides.
	SidePairs SidePairs
	// Concurrency bounds how many paths are partitioned in parallel.
	Concurrency int
	// MaxDepth bounds the repair recursion. Past it, sets are only split,
	// never repaired, until they validate or reach a single burst.
	MaxDepth int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		CountLimit:  DefaultCountLimit,
		SidePairs:   SidePairsCyclic,
		Concurrency: defaultConcurrency,
		MaxDepth:    defaultMaxDepth,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.CountLimit <= 0 {
		return errors.New("invalid count limit: must be > 0")
	}
	if c.Concurrency <= 0 {
		return errors.New("invalid concurrency: must be > 0")
	}
	if c.MaxDepth <= 0 {
		return errors.New("invalid max depth: must be > 0")
	}
	if c.SidePairs != SidePairsCyclic && c.SidePairs != SidePairsLinear {
		return fmt.Errorf("invalid side pairs: %s", c.SidePairs)
	}
	return nil
}

// Partitioner turns burst identifiers into validated multi-burst groups.
//
// Each path is validated as a whole first. Sets over capacity are cut by
// SplitCount; sets with a bad topology go through the repair pipeline
// (SplitVertical, FillHoles, CompleteSides, SplitHorizontal) and every
// fragment is validated again. When a repair pass makes no progress the set
// is split per sub-swath, then bisected by frame, so recursion always ends
// at single bursts at worst.
type Partitioner struct {
	log       *zap.SugaredLogger
	validator Validator
	cfg       Config
	metrics   *metrics.Metrics
}

// NewPartitioner creates a Partitioner. m may be nil.
func NewPartitioner(log *zap.SugaredLogger, validator Validator, cfg Config, m *metrics.Metrics) (*Partitioner, error) {
	if validator == nil {
		return nil, errors.New("validator cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid partitioner config: %w", err)
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Partitioner{log: log, validator: validator, cfg: cfg, metrics: m}, nil
}

// Partition groups ids by path and partitions every path. Groups are
// returned ordered by path, then in the order they were produced.
func (p *Partitioner) Partition(ctx context.Context, ids []string) ([]*Group, error) {
	if len(ids) == 0 {
		return nil, ErrEmptyInput
	}
	start := time.Now()
	defer func() { p.metrics.ObservePartitionDuration(time.Since(start).Seconds()) }()

	byPath, err := GroupByPath(ids)
	if err != nil {
		return nil, err
	}
	paths := slices.Sorted(maps.Keys(byPath))
	results := make([][]*CandidateSet, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)
	for i, path := range paths {
		cs := byPath[path]
		g.Go(func() error {
			sets, err := p.PartitionSet(gctx, cs)
			if err != nil {
				return fmt.Errorf("failed to partition path %s: %w", path, err)
			}
			results[i] = sets
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var groups []*Group
	for _, sets := range results {
		for _, cs := range sets {
			groups = append(groups, NewGroup(cs))
		}
	}
	p.metrics.AddGroupsEmitted(len(groups))
	p.log.Infow("partitioned bursts",
		"bursts", len(ids),
		"paths", len(paths),
		"groups", len(groups),
		"duration", time.Since(start),
	)
	return groups, nil
}

// PartitionSet partitions a single path. cs is not modified.
func (p *Partitioner) PartitionSet(ctx context.Context, cs *CandidateSet) ([]*CandidateSet, error) {
	if cs == nil || cs.Empty() {
		return nil, ErrEmptyInput
	}
	p.log.Debugw("partitioning path", "path", cs.Path(), "frames", cs.Len(), "slots", cs.Slots())
	return p.resolve(ctx, cs.Clone(), 0)
}

// Repair runs the topology repair pipeline on cs and validates every
// fragment, recursing until all fragments are accepted. cs is not modified.
func (p *Partitioner) Repair(ctx context.Context, cs *CandidateSet) ([]*CandidateSet, error) {
	if cs == nil || cs.Empty() {
		return nil, ErrEmptyInput
	}
	return p.repair(ctx, cs.Clone(), 0)
}

func (p *Partitioner) resolve(ctx context.Context, cs *CandidateSet, depth int) ([]*CandidateSet, error) {
	v, err := p.validate(ctx, cs)
	if err != nil {
		return nil, err
	}
	switch v.Kind {
	case VerdictValid:
		return []*CandidateSet{cs}, nil
	case VerdictCountExceeded:
		return p.splitCount(ctx, cs, v.Limit, depth)
	default:
		p.log.Debugw("topology invalid", "path", cs.Path(), "set", cs.String(), "reason", v.Reason, "depth", depth)
		return p.repair(ctx, cs, depth)
	}
}

func (p *Partitioner) splitCount(ctx context.Context, cs *CandidateSet, limit, depth int) ([]*CandidateSet, error) {
	if limit <= 0 || limit > p.cfg.CountLimit {
		limit = p.cfg.CountLimit
	}
	frags := SplitCount(cs, limit)
	if len(frags) <= 1 {
		return p.force(ctx, cs, depth)
	}
	p.metrics.IncSplit(metrics.SplitCount)
	p.log.Debugw("count split", "path", cs.Path(), "slots", cs.Slots(), "limit", limit, "fragments", len(frags))
	return p.resolveAll(ctx, frags, depth+1)
}

func (p *Partitioner) repair(ctx context.Context, cs *CandidateSet, depth int) ([]*CandidateSet, error) {
	if depth >= p.cfg.MaxDepth {
		p.metrics.IncError(metrics.ErrTypeDepth)
		p.log.Warnw("repair depth exceeded, splitting without repair", "path", cs.Path(), "depth", depth)
		return p.force(ctx, cs, depth)
	}
	frags := p.repairOnce(cs)
	if len(frags) == 1 && frags[0].Equal(cs) {
		return p.force(ctx, cs, depth)
	}
	return p.resolveAll(ctx, frags, depth+1)
}

// repairOnce runs one pass of the repair pipeline on a copy of cs.
func (p *Partitioner) repairOnce(cs *CandidateSet) []*CandidateSet {
	verticals := SplitVertical(cs.Clone())
	if len(verticals) > 1 {
		p.metrics.IncSplit(metrics.SplitVertical)
	}

	var out []*CandidateSet
	for _, v := range verticals {
		before := v.Slots()
		FillHoles(v)
		sides := CompleteSides(v, p.cfg.CountLimit, p.cfg.SidePairs)
		p.metrics.AddFillers(v.Slots() - before)
		if len(sides) > 1 {
			p.metrics.IncSplit(metrics.SplitCount)
		}
		for _, s := range sides {
			h := SplitHorizontal(s)
			if len(h) > 1 {
				p.metrics.IncSplit(metrics.SplitHorizontal)
			}
			out = append(out, h...)
		}
	}
	return out
}

// force splits cs without repairing it: per sub-swath when it holds more
// than one, otherwise into two halves by frame. A single burst is emitted
// as is. Past MaxDepth the pieces are only split further.
func (p *Partitioner) force(ctx context.Context, cs *CandidateSet, depth int) ([]*CandidateSet, error) {
	pieces := forceSplit(cs)
	if pieces == nil {
		return []*CandidateSet{cs}, nil
	}
	p.metrics.IncSplit(metrics.SplitForced)
	p.log.Debugw("forced split", "path", cs.Path(), "set", cs.String(), "pieces", len(pieces), "depth", depth)

	if depth < p.cfg.MaxDepth {
		return p.resolveAll(ctx, pieces, depth+1)
	}

	var out []*CandidateSet
	for _, piece := range pieces {
		v, err := p.validate(ctx, piece)
		if err != nil {
			return nil, err
		}
		if v.Kind == VerdictValid {
			out = append(out, piece)
			continue
		}
		sub, err := p.force(ctx, piece, depth+1)
		if err != nil {
			return nil, err
		}
		out = append(out, sub...)
	}
	return out, nil
}

func (p *Partitioner) resolveAll(ctx context.Context, frags []*CandidateSet, depth int) ([]*CandidateSet, error) {
	var out []*CandidateSet
	for _, f := range frags {
		if f.Empty() {
			continue
		}
		sub, err := p.resolve(ctx, f, depth)
		if err != nil {
			return nil, err
		}
		out = append(out, sub...)
	}
	return out, nil
}

func (p *Partitioner) validate(ctx context.Context, cs *CandidateSet) (Verdict, error) {
	if err := ctx.Err(); err != nil {
		return Verdict{}, err
	}
	v, err := p.validator.Validate(ctx, cs)
	if err != nil {
		p.metrics.IncError(metrics.ErrTypeValidation)
		return Verdict{}, fmt.Errorf("failed to validate %s: %w", cs, err)
	}
	p.metrics.IncValidation(v.Kind.String())
	return v, nil
}

// forceSplit returns the per sub-swath pieces of cs, or its two frame halves
// when it holds a single sub-swath. It returns nil for a single burst.
func forceSplit(cs *CandidateSet) []*CandidateSet {
	var mask burst.SwathSet
	frames := cs.Frames()
	for _, f := range frames {
		mask = mask.Union(cs.Swaths(f))
	}
	if mask.Len() > 1 {
		pieces := make([]*CandidateSet, 0, mask.Len())
		for _, sw := range mask.Swaths() {
			pieces = append(pieces, cs.Restrict(burst.NewSwathSet(sw)))
		}
		return pieces
	}
	if len(frames) <= 1 {
		return nil
	}
	mid := len(frames) / 2
	return []*CandidateSet{cs.Subset(frames[:mid]), cs.Subset(frames[mid:])}
}
