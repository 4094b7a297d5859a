package multiburst

import "github.com/ASFHyP3/VolcSARvatory/pkg/burst"

// DefaultCountLimit is the largest number of (frame, swath) slots the burst
// catalog accepts in one multi-burst.
const DefaultCountLimit = 30

// SplitCount walks cs in frame order and cuts a new fragment whenever the
// next frame would push the running slot count past limit. Frames are never
// split, so a single frame wider than limit yields its own fragment.
func SplitCount(cs *CandidateSet, limit int) []*CandidateSet {
	if cs.Empty() {
		return nil
	}
	var (
		out   []*CandidateSet
		cur   = NewCandidateSet(cs.Path())
		slots int
	)
	for _, f := range cs.Frames() {
		s := cs.Swaths(f)
		if slots > 0 && slots+s.Len() > limit {
			out = append(out, cur)
			cur = NewCandidateSet(cs.Path())
			slots = 0
		}
		cur.Set(f, s)
		slots += s.Len()
	}
	return append(out, cur)
}

// SplitVertical cuts cs into maximal runs of consecutive frame ids.
func SplitVertical(cs *CandidateSet) []*CandidateSet {
	frames := cs.Frames()
	if len(frames) == 0 {
		return nil
	}
	var out []*CandidateSet
	start := 0
	for i := 1; i <= len(frames); i++ {
		if i == len(frames) || frames[i] != frames[i-1]+1 {
			out = append(out, cs.Subset(frames[start:i]))
			start = i
		}
	}
	return out
}

// SplitHorizontal separates sub-swaths whose ranges are misaligned by more
// than one frame at either end. IW1 vs IW2 and IW2 vs IW3 are compared; a set
// with no misalignment is returned as a single clone.
func SplitHorizontal(cs *CandidateSet) []*CandidateSet {
	a := AnalyzeRanges(cs)
	split12 := pairMisaligned(a, burst.IW1, burst.IW2)
	split23 := pairMisaligned(a, burst.IW2, burst.IW3)

	iw1 := burst.NewSwathSet(burst.IW1)
	iw2 := burst.NewSwathSet(burst.IW2)
	iw3 := burst.NewSwathSet(burst.IW3)

	switch {
	case split12 && split23:
		return nonEmpty(cs.Restrict(iw1), cs.Restrict(iw2), cs.Restrict(iw3))
	case split12:
		return nonEmpty(cs.Restrict(iw1), cs.Restrict(iw2.Union(iw3)))
	case split23:
		return nonEmpty(cs.Restrict(iw1.Union(iw2)), cs.Restrict(iw3))
	default:
		return []*CandidateSet{cs.Clone()}
	}
}

func pairMisaligned(a Analysis, x, y burst.SubSwath) bool {
	rx, ok := a.Range(x)
	if !ok {
		return false
	}
	ry, ok := a.Range(y)
	if !ok {
		return false
	}
	return misaligned(rx, ry, alignTolerance)
}

func nonEmpty(sets ...*CandidateSet) []*CandidateSet {
	out := sets[:0]
	for _, s := range sets {
		if !s.Empty() {
			out = append(out, s)
		}
	}
	return out
}
