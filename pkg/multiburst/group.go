package multiburst

import (
	"fmt"
	"slices"
	"strings"

	"github.com/ASFHyP3/VolcSARvatory/pkg/burst"
)

// Group is a candidate set accepted by the Validator, ready to become one
// processing job.
type Group struct {
	ID  string        `json:"id"`
	Set *CandidateSet `json:"mb_set"`
}

// NewGroup freezes cs into a Group named by GroupID. The set is cloned.
func NewGroup(cs *CandidateSet) *Group {
	c := cs.Clone()
	return &Group{ID: GroupID(c), Set: c}
}

// Path returns the acquisition path of the group.
func (g *Group) Path() string { return g.Set.Path() }

// BurstIDs returns the PPP_FFFFFF_IWn identifiers of the group in frame,
// then swath order.
func (g *Group) BurstIDs() []string {
	keys := g.Set.Keys()
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k.String()
	}
	return out
}

// GroupID names a multi-burst after the first frame and frame count of each
// sub-swath: PPP_<iw1>n<c1>_<iw2>n<c2>_<iw3>n<c3>. Absent sub-swaths encode
// as 000000n00.
func GroupID(cs *CandidateSet) string {
	a := AnalyzeRanges(cs)
	var b strings.Builder
	b.WriteString(cs.Path())
	for _, sw := range burst.SubSwaths {
		ids := a.IDs[sw]
		first := 0
		if len(ids) > 0 {
			first = ids[0]
		}
		fmt.Fprintf(&b, "_%sn%02d", burst.FormatFrame(first), len(ids))
	}
	return b.String()
}

// TilesToProcess flattens groups into the sorted, deduplicated list of burst
// identifiers that downstream processing has to produce.
func TilesToProcess(groups []*Group) []string {
	var out []string
	for _, g := range groups {
		out = append(out, g.BurstIDs()...)
	}
	slices.Sort(out)
	return slices.Compact(out)
}
