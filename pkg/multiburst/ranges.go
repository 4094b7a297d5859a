package multiburst

import "github.com/ASFHyP3/VolcSARvatory/pkg/burst"

// Range is the inclusive span of frame ids holding one sub-swath.
type Range struct {
	Min int
	Max int
}

// Span returns Max - Min.
func (r Range) Span() int { return r.Max - r.Min }

// Analysis holds, per sub-swath present in a set, the sorted frame ids and
// their range.
type Analysis struct {
	IDs    map[burst.SubSwath][]int
	Ranges map[burst.SubSwath]Range
}

// Range returns the range of sw and whether sw is present.
func (a Analysis) Range(sw burst.SubSwath) (Range, bool) {
	r, ok := a.Ranges[sw]
	return r, ok
}

// AnalyzeRanges collects the sorted frame ids of every sub-swath and the
// first/last id of each non-empty list.
func AnalyzeRanges(cs *CandidateSet) Analysis {
	a := Analysis{
		IDs:    make(map[burst.SubSwath][]int, len(burst.SubSwaths)),
		Ranges: make(map[burst.SubSwath]Range, len(burst.SubSwaths)),
	}
	frames := cs.Frames()
	for _, sw := range burst.SubSwaths {
		var ids []int
		for _, f := range frames {
			if cs.Has(f, sw) {
				ids = append(ids, f)
			}
		}
		if len(ids) == 0 {
			continue
		}
		a.IDs[sw] = ids
		a.Ranges[sw] = Range{Min: ids[0], Max: ids[len(ids)-1]}
	}
	return a
}

// misaligned reports whether either end of a and b differs by more than tol.
func misaligned(a, b Range, tol int) bool {
	return absDiff(a.Min, b.Min) > tol || absDiff(a.Max, b.Max) > tol
}

func absDiff(a, b int) int {
	if a > b {
		return a - b
	}
	return b - a
}
