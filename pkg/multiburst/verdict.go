package multiburst

import "fmt"

// VerdictKind is the outcome class of a validation.
type VerdictKind int

const (
	VerdictValid VerdictKind = iota
	VerdictCountExceeded
	VerdictTopologyInvalid
)

// Verdict is the answer a Validator gives for one candidate set. Count and
// topology failures are verdicts that drive the split pipeline, not errors.
type Verdict struct {
	Kind VerdictKind
	// Limit is the slot capacity reported with VerdictCountExceeded.
	Limit int
	// Reason optionally describes a VerdictTopologyInvalid.
	Reason string
}

func Valid() Verdict { return Verdict{Kind: VerdictValid} }

func CountExceeded(limit int) Verdict {
	return Verdict{Kind: VerdictCountExceeded, Limit: limit}
}

func TopologyInvalid(reason string) Verdict {
	return Verdict{Kind: VerdictTopologyInvalid, Reason: reason}
}

func (k VerdictKind) String() string {
	switch k {
	case VerdictValid:
		return "valid"
	case VerdictCountExceeded:
		return "count_exceeded"
	case VerdictTopologyInvalid:
		return "topology_invalid"
	default:
		return fmt.Sprintf("VerdictKind(%d)", int(k))
	}
}

func (v Verdict) String() string {
	switch v.Kind {
	case VerdictCountExceeded:
		return fmt.Sprintf("%s(%d)", v.Kind, v.Limit)
	case VerdictTopologyInvalid:
		if v.Reason != "" {
			return fmt.Sprintf("%s: %s", v.Kind, v.Reason)
		}
	}
	return v.Kind.String()
}
