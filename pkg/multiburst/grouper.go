package multiburst

import (
	"fmt"

	"github.com/ASFHyP3/VolcSARvatory/pkg/burst"
)

// GroupByPath parses the identifiers, drops duplicates and builds one
// CandidateSet per acquisition path. Empty input yields an empty map.
func GroupByPath(ids []string) (map[string]*CandidateSet, error) {
	out := make(map[string]*CandidateSet)
	for _, id := range ids {
		k, err := burst.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("failed to group bursts: %w", err)
		}
		cs, ok := out[k.Path]
		if !ok {
			cs = NewCandidateSet(k.Path)
			out[k.Path] = cs
		}
		cs.Add(k.Frame, k.Swath)
	}
	return out, nil
}
