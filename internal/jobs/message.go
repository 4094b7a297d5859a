package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ASFHyP3/VolcSARvatory/pkg/aoi"
	"github.com/ASFHyP3/VolcSARvatory/pkg/multiburst"
	"github.com/ASFHyP3/VolcSARvatory/pkg/queue"
)

// ContentType is the content-type header of every job message.
const ContentType = "application/json"

// Message asks downstream processing to build the time series of one
// multi-burst group.
type Message struct {
	ID               string                   `json:"id"`
	RunID            string                   `json:"run_id"`
	AOI              string                   `json:"aoi"`
	Extent           aoi.Extent               `json:"extent"`
	Path             string                   `json:"path"`
	MBSet            *multiburst.CandidateSet `json:"mb_set"`
	Tiles            []string                 `json:"tiles"`
	TemporalBaseline int                      `json:"temporal_baseline"`
	Season           [2]string                `json:"season"`
	JulianSeason     [2]int                   `json:"julian_season"`
	TargetDate       string                   `json:"target_date"`
	BridgeYears      []int                    `json:"bridge_years"`
	CreatedAt        time.Time                `json:"created_at"`
}

// NewRunID returns a fresh identifier for one pass over the AOIs.
func NewRunID() string {
	return uuid.NewString()
}

// NewMessages builds one message per group, carrying the time-series
// settings of a.
func NewMessages(a aoi.AOI, runID string, groups []*multiburst.Group, now time.Time) ([]Message, error) {
	var julian [2]int
	if a.Season != [2]string{} {
		start, end, err := aoi.JulianSeason(a.Season)
		if err != nil {
			return nil, fmt.Errorf("aoi %s: %w", a.Name, err)
		}
		julian = [2]int{start, end}
	}

	out := make([]Message, 0, len(groups))
	for _, g := range groups {
		out = append(out, Message{
			ID:               g.ID,
			RunID:            runID,
			AOI:              a.Name,
			Extent:           a.Extent,
			Path:             g.Path(),
			MBSet:            g.Set,
			Tiles:            g.BurstIDs(),
			TemporalBaseline: a.TemporalBaseline,
			Season:           a.Season,
			JulianSeason:     julian,
			TargetDate:       a.TargetDate,
			BridgeYears:      append([]int(nil), a.BridgeYears...),
			CreatedAt:        now,
		})
	}
	return out, nil
}

// Encode turns m into a queue message keyed by the group id, so the jobs of
// one group land on one partition and consumers can dedupe redeliveries.
func (m Message) Encode(topic string) (queue.Msg, error) {
	value, err := json.Marshal(m)
	if err != nil {
		return queue.Msg{}, fmt.Errorf("failed to encode job %s: %w", m.ID, err)
	}
	return queue.Msg{
		Topic: topic,
		Key:   []byte(m.ID),
		Value: value,
		Headers: map[string]string{
			"aoi":          m.AOI,
			"run_id":       m.RunID,
			"path":         m.Path,
			"content-type": ContentType,
		},
	}, nil
}

// Decode parses a message produced by Encode.
func Decode(value []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(value, &m); err != nil {
		return Message{}, fmt.Errorf("failed to decode job: %w", err)
	}
	if m.ID == "" || m.MBSet == nil {
		return Message{}, fmt.Errorf("failed to decode job: missing id or mb_set")
	}
	return m, nil
}
