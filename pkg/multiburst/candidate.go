package multiburst

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/ASFHyP3/VolcSARvatory/pkg/burst"
)

// CandidateSet maps frame ids of one acquisition path to the sub-swaths
// present at that frame. A frame never maps to an empty swath set.
//
// A CandidateSet is owned by whoever holds it. The splitters return fresh
// sets; Clone before handing a set to a branch that may mutate it.
type CandidateSet struct {
	path   string
	frames map[int]burst.SwathSet
}

// NewCandidateSet returns an empty set for the given path.
func NewCandidateSet(path string) *CandidateSet {
	return &CandidateSet{path: path, frames: make(map[int]burst.SwathSet)}
}

// NewCandidateSetFromKeys builds a set from parsed keys. All keys must share
// one path.
func NewCandidateSetFromKeys(keys ...burst.Key) (*CandidateSet, error) {
	if len(keys) == 0 {
		return nil, ErrEmptyInput
	}
	cs := NewCandidateSet(keys[0].Path)
	for _, k := range keys {
		if k.Path != cs.path {
			return nil, fmt.Errorf("mixed paths in candidate set: %s and %s", cs.path, k.Path)
		}
		cs.Add(k.Frame, k.Swath)
	}
	return cs, nil
}

func (c *CandidateSet) Path() string { return c.path }

// Add inserts a (frame, swath) pair and reports whether it was new.
func (c *CandidateSet) Add(frame int, sw burst.SubSwath) bool {
	cur := c.frames[frame]
	if cur.Has(sw) || !sw.Valid() {
		return false
	}
	c.frames[frame] = cur.With(sw)
	return true
}

// Set replaces the swaths of a frame. An empty set removes the frame.
func (c *CandidateSet) Set(frame int, s burst.SwathSet) {
	if s.Empty() {
		delete(c.frames, frame)
		return
	}
	c.frames[frame] = s
}

// Swaths returns the sub-swaths present at frame.
func (c *CandidateSet) Swaths(frame int) burst.SwathSet {
	return c.frames[frame]
}

func (c *CandidateSet) Has(frame int, sw burst.SubSwath) bool {
	return c.frames[frame].Has(sw)
}

// Frames returns the frame ids in ascending order.
func (c *CandidateSet) Frames() []int {
	return slices.Sorted(maps.Keys(c.frames))
}

// Len returns the number of frames.
func (c *CandidateSet) Len() int { return len(c.frames) }

// Slots returns the number of (frame, swath) pairs.
func (c *CandidateSet) Slots() int {
	n := 0
	for _, s := range c.frames {
		n += s.Len()
	}
	return n
}

func (c *CandidateSet) Empty() bool { return len(c.frames) == 0 }

// Bounds returns the lowest and highest frame id. ok is false for an empty set.
func (c *CandidateSet) Bounds() (lo, hi int, ok bool) {
	if len(c.frames) == 0 {
		return 0, 0, false
	}
	first := true
	for f := range c.frames {
		if first {
			lo, hi, first = f, f, false
			continue
		}
		lo, hi = min(lo, f), max(hi, f)
	}
	return lo, hi, true
}

// Clone returns a deep copy.
func (c *CandidateSet) Clone() *CandidateSet {
	return &CandidateSet{path: c.path, frames: maps.Clone(c.frames)}
}

// Subset returns a new set holding only the given frames.
func (c *CandidateSet) Subset(frames []int) *CandidateSet {
	out := NewCandidateSet(c.path)
	for _, f := range frames {
		if s, ok := c.frames[f]; ok {
			out.frames[f] = s
		}
	}
	return out
}

// Restrict returns a new set keeping only the swaths in mask; frames left
// empty are dropped.
func (c *CandidateSet) Restrict(mask burst.SwathSet) *CandidateSet {
	out := NewCandidateSet(c.path)
	for f, s := range c.frames {
		out.Set(f, s.Intersect(mask))
	}
	return out
}

// Equal reports whether both sets hold the same path and pairs.
func (c *CandidateSet) Equal(o *CandidateSet) bool {
	if c == nil || o == nil {
		return c == o
	}
	return c.path == o.path && maps.Equal(c.frames, o.frames)
}

// Contains reports whether every pair of o is present in c.
func (c *CandidateSet) Contains(o *CandidateSet) bool {
	if c.path != o.path {
		return o.Empty()
	}
	for f, s := range o.frames {
		if c.frames[f].Intersect(s) != s {
			return false
		}
	}
	return true
}

// Keys returns every pair as a burst key, ordered by frame then swath.
func (c *CandidateSet) Keys() []burst.Key {
	keys := make([]burst.Key, 0, c.Slots())
	for _, f := range c.Frames() {
		for _, sw := range c.frames[f].Swaths() {
			keys = append(keys, burst.Key{Path: c.path, Frame: f, Swath: sw})
		}
	}
	return keys
}

// Dict returns the {"PPP_FFFFFF": ["IW1", ...]} form consumed by the
// multi-burst processing tools.
func (c *CandidateSet) Dict() map[string][]string {
	out := make(map[string][]string, len(c.frames))
	for f, s := range c.frames {
		out[burst.FrameKey(c.path, f)] = s.Strings()
	}
	return out
}

func (c *CandidateSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Dict())
}

func (c *CandidateSet) UnmarshalJSON(data []byte) error {
	var raw map[string][]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to decode candidate set: %w", err)
	}
	out := NewCandidateSet("")
	for key, swaths := range raw {
		path, frame, err := burst.ParseFrameKey(key)
		if err != nil {
			return err
		}
		if out.path == "" {
			out.path = path
		} else if out.path != path {
			return fmt.Errorf("mixed paths in candidate set: %s and %s", out.path, path)
		}
		for _, s := range swaths {
			sw, err := burst.ParseSubSwath(s)
			if err != nil {
				return fmt.Errorf("%w: frame %s: %v", burst.ErrMalformedID, key, err)
			}
			out.Add(frame, sw)
		}
	}
	*c = *out
	return nil
}

func (c *CandidateSet) String() string {
	var b strings.Builder
	b.WriteString(c.path)
	b.WriteString("{")
	for i, f := range c.Frames() {
		if i > 0 {
			b.WriteString(" ")
		}
		fmt.Fprintf(&b, "%s:%s", burst.FormatFrame(f), strings.Join(c.frames[f].Strings(), ","))
	}
	b.WriteString("}")
	return b.String()
}
