package groups

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ASFHyP3/VolcSARvatory/pkg/aoi"
	"github.com/ASFHyP3/VolcSARvatory/pkg/multiburst"
)

// GroupRow is one stored multi-burst group of an AOI. MBSet holds the
// frame-key to sub-swath mapping as JSON.
type GroupRow struct {
	AOI              string    `json:"aoi"`
	GroupID          string    `json:"group_id"`
	Path             string    `json:"path"`
	MBSet            string    `json:"mb_set"`
	BurstIDs         []string  `json:"burst_ids"`
	TemporalBaseline int32     `json:"temporal_baseline"`
	Season           []string  `json:"season"`
	TargetDate       string    `json:"target_date"`
	BridgeYears      []int32   `json:"bridge_years"`
	RunID            string    `json:"run_id"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// NewGroupRow flattens g with the settings of a.
func NewGroupRow(a aoi.AOI, runID string, g *multiburst.Group, now time.Time) (GroupRow, error) {
	set, err := json.Marshal(g.Set)
	if err != nil {
		return GroupRow{}, fmt.Errorf("failed to encode group %s: %w", g.ID, err)
	}
	years := make([]int32, len(a.BridgeYears))
	for i, y := range a.BridgeYears {
		years[i] = int32(y) //nolint:gosec // year counts are small
	}
	return GroupRow{
		AOI:              a.Name,
		GroupID:          g.ID,
		Path:             g.Path(),
		MBSet:            string(set),
		BurstIDs:         g.BurstIDs(),
		TemporalBaseline: int32(a.TemporalBaseline), //nolint:gosec // days
		Season:           a.Season[:],
		TargetDate:       a.TargetDate,
		BridgeYears:      years,
		RunID:            runID,
		UpdatedAt:        now,
	}, nil
}

// Group decodes the stored set back into a multi-burst group.
func (r GroupRow) Group() (*multiburst.Group, error) {
	var cs multiburst.CandidateSet
	if err := json.Unmarshal([]byte(r.MBSet), &cs); err != nil {
		return nil, fmt.Errorf("failed to decode group %s: %w", r.GroupID, err)
	}
	return &multiburst.Group{ID: r.GroupID, Set: &cs}, nil
}

// AOIState records the extent an AOI was last partitioned with.
type AOIState struct {
	Name      string    `json:"name"`
	BBox      string    `json:"bbox"`
	GroupIDs  []string  `json:"group_ids"`
	RunID     string    `json:"run_id"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Matches reports whether the state was recorded for extent e.
func (s AOIState) Matches(e aoi.Extent) bool {
	return s.BBox == e.String()
}
