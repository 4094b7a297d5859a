package multiburst

import (
	"fmt"

	"github.com/ASFHyP3/VolcSARvatory/pkg/burst"
)

const (
	// alignTolerance is the largest range end difference treated as aligned.
	alignTolerance = 1
	// disjointThreshold is the range end difference above which two swaths
	// are left for the horizontal splitter instead of being extended.
	disjointThreshold = 3
)

// SidePairs selects the order in which CompleteSides visits sub-swath pairs.
type SidePairs int

const (
	// SidePairsCyclic visits IW1/IW2, IW2/IW3 and IW3/IW1.
	SidePairsCyclic SidePairs = iota
	// SidePairsLinear visits IW1/IW2, IW2/IW3 and IW1/IW2 again, following
	// the physical across-track order where IW3 never touches IW1.
	SidePairsLinear
)

func (p SidePairs) String() string {
	switch p {
	case SidePairsCyclic:
		return "cyclic"
	case SidePairsLinear:
		return "linear"
	default:
		return fmt.Sprintf("SidePairs(%d)", int(p))
	}
}

// ParseSidePairs decodes "cyclic" or "linear".
func ParseSidePairs(s string) (SidePairs, error) {
	switch s {
	case "cyclic", "":
		return SidePairsCyclic, nil
	case "linear":
		return SidePairsLinear, nil
	default:
		return 0, fmt.Errorf("invalid side pairs %q: must be cyclic or linear", s)
	}
}

func (p SidePairs) order() [3][2]burst.SubSwath {
	if p == SidePairsLinear {
		return [3][2]burst.SubSwath{{burst.IW1, burst.IW2}, {burst.IW2, burst.IW3}, {burst.IW1, burst.IW2}}
	}
	return [3][2]burst.SubSwath{{burst.IW1, burst.IW2}, {burst.IW2, burst.IW3}, {burst.IW3, burst.IW1}}
}

// CompleteSides extends lagging sub-swaths of cs in place so that adjacent
// swaths whose range ends differ by 2 or 3 frames end up at most 1 apart,
// then splits the result into fragments of at most limit slots.
func CompleteSides(cs *CandidateSet, limit int, pairs SidePairs) []*CandidateSet {
	for _, pair := range pairs.order() {
		completePair(cs, pair[0], pair[1])
	}
	return SplitCount(cs, limit)
}

// completePair aligns cur and next using ranges recomputed from cs.
func completePair(cs *CandidateSet, cur, next burst.SubSwath) {
	a := AnalyzeRanges(cs)
	rc, ok := a.Range(cur)
	if !ok {
		return
	}
	rn, ok := a.Range(next)
	if !ok {
		return
	}
	if misaligned(rc, rn, disjointThreshold) || !misaligned(rc, rn, alignTolerance) {
		return
	}

	if absDiff(rc.Min, rn.Min) > alignTolerance {
		if rc.Min > rn.Min {
			addRange(cs, cur, rn.Min+1, rc.Min-1)
		} else {
			addRange(cs, next, rc.Min+1, rn.Min-1)
		}
	}
	if absDiff(rc.Max, rn.Max) > alignTolerance {
		if rc.Max > rn.Max {
			addRange(cs, next, rn.Max+1, rc.Max-1)
		} else {
			addRange(cs, cur, rc.Max+1, rn.Max-1)
		}
	}
}

func addRange(cs *CandidateSet, sw burst.SubSwath, from, to int) {
	for f := from; f <= to; f++ {
		cs.Add(f, sw)
	}
}
