package multiburst

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ASFHyP3/VolcSARvatory/pkg/burst"
	"github.com/ASFHyP3/VolcSARvatory/pkg/metrics"
	"github.com/ASFHyP3/VolcSARvatory/pkg/utils"
)

var (
	// ErrEmptyInput is returned when there is nothing to partition or validate.
	ErrEmptyInput = errors.New("empty candidate set")
	// ErrTransient marks validator failures that are worth one retry.
	ErrTransient = utils.ErrTransient
)

// DefaultRetryBackoff is the pause before retrying a transient validator failure.
const DefaultRetryBackoff = 5 * time.Second

// Validator decides whether a candidate set is an acceptable multi-burst.
type Validator interface {
	Validate(ctx context.Context, cs *CandidateSet) (Verdict, error)
}

// ValidatorFunc adapts a function to the Validator interface.
type ValidatorFunc func(ctx context.Context, cs *CandidateSet) (Verdict, error)

func (f ValidatorFunc) Validate(ctx context.Context, cs *CandidateSet) (Verdict, error) {
	return f(ctx, cs)
}

// RuleValidator applies the multi-burst acceptance rules of the burst
// catalog locally: at most Limit slots, contiguous frames, contiguous
// sub-swaths, no IW1+IW3 without IW2, and neighbouring sub-swath ranges
// within one frame of each other.
type RuleValidator struct {
	Limit int
}

var _ Validator = RuleValidator{}

// NewRuleValidator returns a RuleValidator; a non-positive limit selects
// DefaultCountLimit.
func NewRuleValidator(limit int) RuleValidator {
	if limit <= 0 {
		limit = DefaultCountLimit
	}
	return RuleValidator{Limit: limit}
}

func (v RuleValidator) Validate(ctx context.Context, cs *CandidateSet) (Verdict, error) {
	if err := ctx.Err(); err != nil {
		return Verdict{}, err
	}
	if cs == nil || cs.Empty() {
		return Verdict{}, ErrEmptyInput
	}
	limit := v.Limit
	if limit <= 0 {
		limit = DefaultCountLimit
	}
	if cs.Slots() > limit {
		return CountExceeded(limit), nil
	}

	frames := cs.Frames()
	for i := 1; i < len(frames); i++ {
		if frames[i] != frames[i-1]+1 {
			return TopologyInvalid(fmt.Sprintf("frame gap between %d and %d", frames[i-1], frames[i])), nil
		}
	}

	a := AnalyzeRanges(cs)
	for _, sw := range burst.SubSwaths {
		ids, ok := a.IDs[sw]
		if ok && ids[len(ids)-1]-ids[0] != len(ids)-1 {
			return TopologyInvalid(fmt.Sprintf("%s is not contiguous", sw)), nil
		}
	}

	_, has1 := a.Range(burst.IW1)
	_, has2 := a.Range(burst.IW2)
	_, has3 := a.Range(burst.IW3)
	if has1 && has3 && !has2 {
		return TopologyInvalid("IW1 and IW3 without IW2"), nil
	}
	outer := burst.NewSwathSet(burst.IW1, burst.IW3)
	for _, f := range frames {
		if s := cs.Swaths(f); s.Intersect(outer) == outer && !s.Has(burst.IW2) {
			return TopologyInvalid(fmt.Sprintf("frame %d has IW1 and IW3 without IW2", f)), nil
		}
	}

	if pairMisaligned(a, burst.IW1, burst.IW2) {
		return TopologyInvalid("IW1 and IW2 ranges misaligned"), nil
	}
	if pairMisaligned(a, burst.IW2, burst.IW3) {
		return TopologyInvalid("IW2 and IW3 ranges misaligned"), nil
	}
	return Valid(), nil
}

// RetryValidator retries the wrapped Validator once, after a fixed backoff,
// when it fails with a transient error.
type RetryValidator struct {
	next    Validator
	backoff time.Duration
	log     *zap.SugaredLogger
	metrics *metrics.Metrics
}

var _ Validator = (*RetryValidator)(nil)

// NewRetryValidator wraps next. m may be nil.
func NewRetryValidator(next Validator, backoff time.Duration, log *zap.SugaredLogger, m *metrics.Metrics) *RetryValidator {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &RetryValidator{next: next, backoff: backoff, log: log, metrics: m}
}

func (r *RetryValidator) Validate(ctx context.Context, cs *CandidateSet) (Verdict, error) {
	onRetry := func(err error) {
		r.metrics.IncValidatorRetry()
		r.log.Warnw("transient validator failure, retrying",
			"path", cs.Path(),
			"frames", cs.Len(),
			"backoff", r.backoff,
			"error", err,
		)
	}
	v, err := utils.RetryOnce(ctx, r.backoff, onRetry, func(ctx context.Context) (Verdict, error) {
		return r.next.Validate(ctx, cs)
	})
	if err != nil {
		return Verdict{}, fmt.Errorf("failed to validate candidate set: %w", err)
	}
	return v, nil
}
