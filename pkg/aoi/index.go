package aoi

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"
)

// DefaultMinOverlap is the fraction of a burst footprint that must fall
// inside an AOI for the burst to be selected.
const DefaultMinOverlap = 0.05

// Frame is one burst footprint of the burst frame table.
type Frame struct {
	BurstID string
	Box     Extent
}

// FrameSource loads the burst frame table.
type FrameSource interface {
	LoadFrames(ctx context.Context) ([]Frame, error)
}

// FrameSourceFunc adapts a function to the FrameSource interface.
type FrameSourceFunc func(ctx context.Context) ([]Frame, error)

func (f FrameSourceFunc) LoadFrames(ctx context.Context) ([]Frame, error) { return f(ctx) }

// BurstIndex selects the bursts overlapping an AOI. The frame table is
// loaded from its source on first use and kept for the lifetime of the
// index; a failed load is retried on the next call.
type BurstIndex struct {
	src        FrameSource
	minOverlap float64
	log        *zap.SugaredLogger

	mu     sync.Mutex
	frames []Frame
	loaded bool
}

// NewBurstIndex creates an index over src. A non-positive minOverlap selects
// DefaultMinOverlap.
func NewBurstIndex(src FrameSource, minOverlap float64, log *zap.SugaredLogger) (*BurstIndex, error) {
	if src == nil {
		return nil, errors.New("frame source cannot be nil")
	}
	if minOverlap <= 0 {
		minOverlap = DefaultMinOverlap
	}
	if minOverlap > 1 {
		return nil, fmt.Errorf("invalid min overlap %g: must be <= 1", minOverlap)
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &BurstIndex{src: src, minOverlap: minOverlap, log: log}, nil
}

func (x *BurstIndex) load(ctx context.Context) ([]Frame, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.loaded {
		return x.frames, nil
	}
	frames, err := x.src.LoadFrames(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load burst frames: %w", err)
	}
	x.frames = frames
	x.loaded = true
	x.log.Infow("loaded burst frames", "frames", len(frames))
	return frames, nil
}

// Overlap returns the fraction of box that lies inside e.
func Overlap(box, e Extent) float64 {
	area := box.Area()
	if area <= 0 {
		return 0
	}
	in, ok := box.Intersect(e)
	if !ok {
		return 0
	}
	return in.Area() / area
}

// FindBursts returns the sorted, unique ids of the bursts whose overlap with
// the AOI extent exceeds the minimum overlap.
func (x *BurstIndex) FindBursts(ctx context.Context, a AOI) ([]string, error) {
	if err := a.Extent.Validate(); err != nil {
		return nil, err
	}
	frames, err := x.load(ctx)
	if err != nil {
		return nil, err
	}

	var ids []string
	for _, f := range frames {
		if Overlap(f.Box, a.Extent) > x.minOverlap {
			ids = append(ids, f.BurstID)
		}
	}
	slices.Sort(ids)
	ids = slices.Compact(ids)
	x.log.Debugw("found bursts", "aoi", a.Name, "bursts", len(ids))
	return ids, nil
}
