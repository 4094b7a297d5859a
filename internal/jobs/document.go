package jobs

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"github.com/ASFHyP3/VolcSARvatory/pkg/aoi"
	"github.com/ASFHyP3/VolcSARvatory/pkg/burst"
	"github.com/ASFHyP3/VolcSARvatory/pkg/multiburst"
)

// Entry is one multi-burst of the job document.
type Entry struct {
	MBSet            *multiburst.CandidateSet `json:"mb_set"`
	TemporalBaseline int                      `json:"temporal_baseline"`
	Season           [2]string                `json:"season"`
	TargetDate       string                   `json:"target_date"`
	BridgeYears      []int                    `json:"bridge_years"`
}

// Document maps multi-burst ids to their entries. It is the multiburst.json
// file read by the processing tools.
type Document map[string]Entry

// Add stores every group with the settings of a. An existing entry with the
// same id is replaced.
func (d Document) Add(a aoi.AOI, groups []*multiburst.Group) {
	for _, g := range groups {
		d[g.ID] = Entry{
			MBSet:            g.Set,
			TemporalBaseline: a.TemporalBaseline,
			Season:           a.Season,
			TargetDate:       a.TargetDate,
			BridgeYears:      append([]int(nil), a.BridgeYears...),
		}
	}
}

// Clone returns a copy of d that can be changed without affecting d.
func (d Document) Clone() Document {
	if d == nil {
		return Document{}
	}
	return maps.Clone(d)
}

// IDs returns the multi-burst ids in sorted order.
func (d Document) IDs() []string {
	ids := make([]string, 0, len(d))
	for id := range d {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Tiles returns the sorted, deduplicated burst ids of every entry.
func (d Document) Tiles() []string {
	var out []string
	for _, e := range d {
		if e.MBSet == nil {
			continue
		}
		for _, k := range e.MBSet.Keys() {
			out = append(out, k.String())
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Validate checks that every id names its set.
func (d Document) Validate() error {
	for _, id := range d.IDs() {
		e := d[id]
		if e.MBSet == nil || e.MBSet.Empty() {
			return fmt.Errorf("multi-burst %s: empty mb_set", id)
		}
		if got := multiburst.GroupID(e.MBSet); got != id {
			return fmt.Errorf("%w: multi-burst %s describes %s", burst.ErrMalformedID, id, got)
		}
	}
	return nil
}

// ReadDocument loads a document. A missing file is an empty document.
func ReadDocument(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Document{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read job document: %w", err)
	}
	doc := Document{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode job document %s: %w", path, err)
	}
	return doc, nil
}

// WriteJSON writes v to path through a temporary file in the same directory,
// so readers never see a partial file.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // gone after rename

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close() //nolint:errcheck,gosec // write error wins
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
