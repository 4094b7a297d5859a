package aoi

import (
	"errors"
	"fmt"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidExtent is returned for extents that do not describe a box.
var ErrInvalidExtent = errors.New("invalid extent")

// Extent is an AOI bounding box in EPSG:4326 as
// [minlon, maxlon, minlat, maxlat].
type Extent [4]float64

func (e Extent) MinLon() float64 { return e[0] }
func (e Extent) MaxLon() float64 { return e[1] }
func (e Extent) MinLat() float64 { return e[2] }
func (e Extent) MaxLat() float64 { return e[3] }

// Validate checks that the extent is a non-degenerate box inside the
// longitude and latitude bounds.
func (e Extent) Validate() error {
	for _, v := range e {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s: non-finite coordinate", ErrInvalidExtent, e)
		}
	}
	if e.MinLon() < -180 || e.MaxLon() > 180 {
		return fmt.Errorf("%w: %s: longitude out of range", ErrInvalidExtent, e)
	}
	if e.MinLat() < -90 || e.MaxLat() > 90 {
		return fmt.Errorf("%w: %s: latitude out of range", ErrInvalidExtent, e)
	}
	if e.MinLon() >= e.MaxLon() || e.MinLat() >= e.MaxLat() {
		return fmt.Errorf("%w: %s: empty box", ErrInvalidExtent, e)
	}
	return nil
}

// Area returns the box area in square degrees.
func (e Extent) Area() float64 {
	return (e.MaxLon() - e.MinLon()) * (e.MaxLat() - e.MinLat())
}

// Intersect returns the overlapping box of e and o, and false when they do
// not overlap.
func (e Extent) Intersect(o Extent) (Extent, bool) {
	in := Extent{
		math.Max(e.MinLon(), o.MinLon()),
		math.Min(e.MaxLon(), o.MaxLon()),
		math.Max(e.MinLat(), o.MinLat()),
		math.Min(e.MaxLat(), o.MaxLat()),
	}
	if in.MinLon() >= in.MaxLon() || in.MinLat() >= in.MaxLat() {
		return Extent{}, false
	}
	return in, true
}

// String renders the extent as the comma-separated bbox stored with the AOI
// state, e.g. "-155.7,-155.1,19.2,19.6".
func (e Extent) String() string {
	parts := make([]string, len(e))
	for i, v := range e {
		parts[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return strings.Join(parts, ",")
}

// BridgeYears decodes either a single year count or a list of them.
type BridgeYears []int

func (b *BridgeYears) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var n int
		if err := value.Decode(&n); err != nil {
			return fmt.Errorf("invalid bridge_years: %w", err)
		}
		*b = BridgeYears{n}
		return nil
	case yaml.SequenceNode:
		var ns []int
		if err := value.Decode(&ns); err != nil {
			return fmt.Errorf("invalid bridge_years: %w", err)
		}
		*b = ns
		return nil
	default:
		return fmt.Errorf("invalid bridge_years at line %d", value.Line)
	}
}

// AOI is one area of interest with the time-series settings its groups
// carry downstream.
type AOI struct {
	Name             string      `yaml:"-" json:"name"`
	Extent           Extent      `yaml:"AOI" json:"extent"`
	TemporalBaseline int         `yaml:"temporal_baseline" json:"temporal_baseline"`
	Season           [2]string   `yaml:"season" json:"season"`
	TargetDate       string      `yaml:"target_date" json:"target_date"`
	BridgeYears      BridgeYears `yaml:"bridge_years" json:"bridge_years"`
}

// Validate checks the extent and season of the AOI.
func (a AOI) Validate() error {
	if a.Name == "" {
		return errors.New("aoi name cannot be empty")
	}
	if err := a.Extent.Validate(); err != nil {
		return fmt.Errorf("aoi %s: %w", a.Name, err)
	}
	if a.TemporalBaseline < 0 {
		return fmt.Errorf("aoi %s: temporal_baseline must be >= 0", a.Name)
	}
	if a.Season != [2]string{} {
		if _, _, err := JulianSeason(a.Season); err != nil {
			return fmt.Errorf("aoi %s: %w", a.Name, err)
		}
	}
	return nil
}

// LoadDefinitions reads AOI definitions keyed by name from a YAML (or JSON)
// file and returns them sorted by name.
func LoadDefinitions(path string) ([]AOI, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read aoi definitions: %w", err)
	}
	return ParseDefinitions(data)
}

// ParseDefinitions decodes AOI definitions keyed by name.
func ParseDefinitions(data []byte) ([]AOI, error) {
	var defs map[string]AOI
	if err := yaml.Unmarshal(data, &defs); err != nil {
		return nil, fmt.Errorf("failed to decode aoi definitions: %w", err)
	}
	out := make([]AOI, 0, len(defs))
	for name, a := range defs {
		a.Name = name
		if err := a.Validate(); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	slices.SortFunc(out, func(a, b AOI) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

// JulianSeason converts a ("M-D", "M-D") season into day-of-year bounds of a
// non-leap year.
func JulianSeason(season [2]string) (int, int, error) {
	start, err := dayOfYear(season[0])
	if err != nil {
		return 0, 0, err
	}
	end, err := dayOfYear(season[1])
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

func dayOfYear(md string) (int, error) {
	t, err := time.Parse("1-2-2006", md+"-2001")
	if err != nil {
		return 0, fmt.Errorf("invalid season date %q: %w", md, err)
	}
	return t.YearDay(), nil
}
