package catalog

import (
	"strings"
	"time"
)

// Acquisition is one catalog entry of a burst.
type Acquisition struct {
	SceneName    string
	FullBurstID  string
	StartTime    time.Time
	StopTime     *time.Time
	Polarization string
}

// Polarizations accepted for processing. Dual-pol products report e.g.
// "VV+VH" and qualify on their first channel.
var qualifyingPolarizations = []string{"VV", "HH"}

// QualifyingPolarization reports whether pol is co-polarised VV or HH.
func QualifyingPolarization(pol string) bool {
	first, _, _ := strings.Cut(strings.ToUpper(strings.TrimSpace(pol)), "+")
	for _, p := range qualifyingPolarizations {
		if first == p {
			return true
		}
	}
	return false
}

// Qualifies reports whether a burst with these acquisitions is worth
// processing. Acquisitions with other polarizations are ignored; of the
// remainder there must be more than one, or exactly one with a stop time.
func Qualifies(acqs []Acquisition) bool {
	var kept []Acquisition
	for _, a := range acqs {
		if QualifyingPolarization(a.Polarization) {
			kept = append(kept, a)
		}
	}
	switch len(kept) {
	case 0:
		return false
	case 1:
		return kept[0].StopTime != nil
	default:
		return true
	}
}
