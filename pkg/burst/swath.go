package burst

import (
	"fmt"
	"math/bits"
)

// SubSwath is one of the three parallel IW imaging strips.
type SubSwath uint8

const (
	IW1 SubSwath = iota + 1
	IW2
	IW3
)

// SubSwaths lists the sub-swaths in across-track order.
var SubSwaths = [...]SubSwath{IW1, IW2, IW3}

// ParseSubSwath decodes "IW1", "IW2" or "IW3".
func ParseSubSwath(s string) (SubSwath, error) {
	switch s {
	case "IW1":
		return IW1, nil
	case "IW2":
		return IW2, nil
	case "IW3":
		return IW3, nil
	default:
		return 0, fmt.Errorf("unknown sub-swath %q", s)
	}
}

func (s SubSwath) String() string {
	switch s {
	case IW1:
		return "IW1"
	case IW2:
		return "IW2"
	case IW3:
		return "IW3"
	default:
		return fmt.Sprintf("SubSwath(%d)", uint8(s))
	}
}

// Valid reports whether s is one of IW1, IW2, IW3.
func (s SubSwath) Valid() bool {
	return s >= IW1 && s <= IW3
}

// SwathSet is a set of sub-swaths stored as a bitmask.
type SwathSet uint8

// AllSwaths contains IW1, IW2 and IW3.
const AllSwaths = SwathSet(1<<IW1 | 1<<IW2 | 1<<IW3)

// NewSwathSet builds a set from the given sub-swaths. Invalid values are ignored.
func NewSwathSet(swaths ...SubSwath) SwathSet {
	var s SwathSet
	for _, sw := range swaths {
		s = s.With(sw)
	}
	return s
}

func (s SwathSet) Has(sw SubSwath) bool {
	return sw.Valid() && s&(1<<sw) != 0
}

func (s SwathSet) With(sw SubSwath) SwathSet {
	if !sw.Valid() {
		return s
	}
	return s | 1<<sw
}

func (s SwathSet) Without(sw SubSwath) SwathSet {
	if !sw.Valid() {
		return s
	}
	return s &^ (1 << sw)
}

func (s SwathSet) Union(o SwathSet) SwathSet     { return (s | o) & AllSwaths }
func (s SwathSet) Intersect(o SwathSet) SwathSet { return s & o & AllSwaths }

// Len returns the number of sub-swaths in the set.
func (s SwathSet) Len() int {
	return bits.OnesCount8(uint8(s & AllSwaths))
}

func (s SwathSet) Empty() bool {
	return s&AllSwaths == 0
}

// Swaths returns the members in IW1, IW2, IW3 order.
func (s SwathSet) Swaths() []SubSwath {
	out := make([]SubSwath, 0, s.Len())
	for _, sw := range SubSwaths {
		if s.Has(sw) {
			out = append(out, sw)
		}
	}
	return out
}

// Strings returns the members as sorted "IWn" labels.
func (s SwathSet) Strings() []string {
	out := make([]string, 0, s.Len())
	for _, sw := range s.Swaths() {
		out = append(out, sw.String())
	}
	return out
}

func (s SwathSet) String() string {
	return fmt.Sprint(s.Strings())
}
