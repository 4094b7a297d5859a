package aoi

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

var framesHeader = []string{"burst_id", "minlon", "maxlon", "minlat", "maxlat"}

// ReadFramesCSV reads burst footprints exported from the burst map as
// burst_id,minlon,maxlon,minlat,maxlat rows. A header row is optional.
func ReadFramesCSV(r io.Reader) ([]Frame, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(framesHeader)
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	var frames []Frame
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return frames, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read frames: %w", err)
		}
		if line == 1 && strings.EqualFold(rec[0], framesHeader[0]) {
			continue
		}

		f := Frame{BurstID: strings.TrimSpace(rec[0])}
		for i := range f.Box {
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[i+1]), 64)
			if err != nil {
				return nil, fmt.Errorf("frames line %d: invalid %s: %w", line, framesHeader[i+1], err)
			}
			f.Box[i] = v
		}
		if err := f.Box.Validate(); err != nil {
			return nil, fmt.Errorf("frames line %d: %s: %w", line, f.BurstID, err)
		}
		frames = append(frames, f)
	}
}
