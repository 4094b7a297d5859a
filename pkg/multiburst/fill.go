package multiburst

import "github.com/ASFHyP3/VolcSARvatory/pkg/burst"

// FillHoles repairs cs in place and returns it. Frames holding IW1 and IW3
// gain IW2, then every sub-swath is made contiguous between its first and
// last frame. Applying it twice has no further effect.
func FillHoles(cs *CandidateSet) *CandidateSet {
	outer := burst.NewSwathSet(burst.IW1, burst.IW3)
	for _, f := range cs.Frames() {
		if s := cs.Swaths(f); s.Intersect(outer) == outer {
			cs.Add(f, burst.IW2)
		}
	}

	a := AnalyzeRanges(cs)
	for _, sw := range burst.SubSwaths {
		ids := a.IDs[sw]
		if len(ids) == 0 || ids[len(ids)-1]-ids[0] == len(ids)-1 {
			continue
		}
		for i := 0; i+1 < len(ids); i++ {
			for f := ids[i] + 1; f < ids[i+1]; f++ {
				cs.Add(f, sw)
			}
		}
	}
	return cs
}
