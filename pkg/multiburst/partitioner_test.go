package multiburst

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ASFHyP3/VolcSARvatory/pkg/burst"
	"github.com/ASFHyP3/VolcSARvatory/pkg/metrics"
)

func newTestPartitioner(t *testing.T, v Validator, mutate func(*Config)) (*Partitioner, *prometheus.Registry) {
	t.Helper()
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)
	p, err := NewPartitioner(zaptest.NewLogger(t).Sugar(), v, cfg, m)
	require.NoError(t, err)
	return p, reg
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	require.NoError(t, err)
	var total float64
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

// randomIDs draws bursts on a few paths with ragged sub-swath coverage.
func randomIDs(r *rand.Rand, paths int) []string {
	var out []string
	for p := 1; p <= paths; p++ {
		base := 100 + r.IntN(500)
		n := 1 + r.IntN(45)
		for f := base; f < base+n; f++ {
			if r.IntN(8) == 0 {
				continue
			}
			for _, sw := range burst.SubSwaths {
				if r.IntN(3) > 0 {
					out = append(out, burst.Key{Path: fmt.Sprintf("%03d", p), Frame: f, Swath: sw}.String())
				}
			}
		}
	}
	return out
}

// checkComplete verifies that every input burst is in exactly one group and
// that no burst appears twice across groups.
func checkComplete(t *testing.T, in []string, groups []*Group) {
	t.Helper()
	seen := make(map[string]string)
	for _, g := range groups {
		for _, id := range g.BurstIDs() {
			prev, dup := seen[id]
			require.False(t, dup, "%s in both %s and %s", id, prev, g.ID)
			seen[id] = g.ID
		}
	}
	for _, id := range in {
		assert.Contains(t, seen, id)
	}
}

func TestPartition_SingleValidGroup(t *testing.T) {
	t.Parallel()

	p, reg := newTestPartitioner(t, NewRuleValidator(0), nil)
	in := []string{"001_000010_IW1", "001_000011_IW1", "001_000010_IW2", "001_000011_IW2"}

	groups, err := p.Partition(t.Context(), in)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "001_000010n02_000010n02_000000n00", groups[0].ID)
	assert.ElementsMatch(t, in, groups[0].BurstIDs())
	assert.InDelta(t, 1, counterValue(t, reg, "volcsarvatory_partition_groups_emitted_total"), 0)
}

func TestPartition_CountSplit(t *testing.T) {
	t.Parallel()

	p, reg := newTestPartitioner(t, NewRuleValidator(0), nil)
	groups, err := p.Partition(t.Context(), ids("001", 1, 40, "IW1"))
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, 30, groups[0].Set.Slots())
	assert.Equal(t, 10, groups[1].Set.Slots())
	assert.Equal(t, "001_000001n30_000000n00_000000n00", groups[0].ID)
	assert.Equal(t, "001_000031n10_000000n00_000000n00", groups[1].ID)
	assert.InDelta(t, 1, counterValue(t, reg, "volcsarvatory_partition_splits_total"), 0)
}

func TestPartition_RepairsMiddleSwath(t *testing.T) {
	t.Parallel()

	p, _ := newTestPartitioner(t, NewRuleValidator(0), nil)
	groups, err := p.Partition(t.Context(), []string{"001_000015_IW1", "001_000015_IW3"})
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, burst.AllSwaths, groups[0].Set.Swaths(15))
}

func TestPartition_MultiplePathsOrdered(t *testing.T) {
	t.Parallel()

	p, _ := newTestPartitioner(t, NewRuleValidator(0), nil)
	groups, err := p.Partition(t.Context(), []string{"064_135527_IW3", "001_000010_IW1"})
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, "001", groups[0].Path())
	assert.Equal(t, "064", groups[1].Path())
}

func TestPartition_CompleteAndValid(t *testing.T) {
	t.Parallel()

	r := rand.New(rand.NewPCG(7, 11))
	v := NewRuleValidator(0)
	p, _ := newTestPartitioner(t, v, nil)

	for i := range 200 {
		in := randomIDs(r, 1+r.IntN(3))
		if len(in) == 0 {
			continue
		}
		groups, err := p.Partition(t.Context(), in)
		require.NoError(t, err, "case %d", i)
		checkComplete(t, in, groups)
		for _, g := range groups {
			verdict, err := v.Validate(t.Context(), g.Set)
			require.NoError(t, err)
			assert.Equal(t, VerdictValid, verdict.Kind, "case %d group %s: %s", i, g.ID, verdict)
		}
	}
}

func TestPartition_TerminatesOnHostileValidator(t *testing.T) {
	t.Parallel()

	reject := ValidatorFunc(func(ctx context.Context, cs *CandidateSet) (Verdict, error) {
		return TopologyInvalid("never"), nil
	})
	p, reg := newTestPartitioner(t, reject, func(c *Config) { c.MaxDepth = 4 })

	in := []string{
		"001_000010_IW1", "001_000011_IW1", "001_000012_IW1",
		"001_000010_IW2", "001_000012_IW2",
	}
	groups, err := p.Partition(t.Context(), in)
	require.NoError(t, err)
	checkComplete(t, in, groups)
	for _, g := range groups {
		assert.Equal(t, 1, g.Set.Slots(), g.ID)
	}
	assert.Positive(t, counterValue(t, reg, "volcsarvatory_errors_total"))
}

func TestPartition_RetriesTransientValidator(t *testing.T) {
	t.Parallel()

	rules := NewRuleValidator(0)
	var calls atomic.Int32
	flaky := ValidatorFunc(func(ctx context.Context, cs *CandidateSet) (Verdict, error) {
		if calls.Add(1) == 1 {
			return Verdict{}, fmt.Errorf("catalog unavailable: %w", ErrTransient)
		}
		return rules.Validate(ctx, cs)
	})

	retry := NewRetryValidator(flaky, time.Millisecond, zaptest.NewLogger(t).Sugar(), nil)
	p, _ := newTestPartitioner(t, retry, nil)

	in := []string{"001_000010_IW1", "001_000011_IW1", "001_000010_IW2", "001_000011_IW2"}
	groups, err := p.Partition(t.Context(), in)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.ElementsMatch(t, in, groups[0].BurstIDs())
	assert.Equal(t, int32(2), calls.Load())
}

func TestPartition_Errors(t *testing.T) {
	t.Parallel()

	p, _ := newTestPartitioner(t, NewRuleValidator(0), nil)

	_, err := p.Partition(t.Context(), nil)
	require.ErrorIs(t, err, ErrEmptyInput)

	_, err = p.Partition(t.Context(), []string{"001_000010_IW7"})
	require.ErrorIs(t, err, burst.ErrMalformedID)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err = p.Partition(ctx, []string{"001_000010_IW1"})
	require.ErrorIs(t, err, context.Canceled)

	_, err = p.PartitionSet(t.Context(), NewCandidateSet("001"))
	require.ErrorIs(t, err, ErrEmptyInput)
}

func TestPartition_ConcurrencyDeterministic(t *testing.T) {
	t.Parallel()

	r := rand.New(rand.NewPCG(3, 5))
	in := randomIDs(r, 6)

	serial, _ := newTestPartitioner(t, NewRuleValidator(0), nil)
	parallel, _ := newTestPartitioner(t, NewRuleValidator(0), func(c *Config) { c.Concurrency = 4 })

	want, err := serial.Partition(t.Context(), in)
	require.NoError(t, err)
	got, err := parallel.Partition(t.Context(), in)
	require.NoError(t, err)

	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].ID, got[i].ID)
		assert.True(t, want[i].Set.Equal(got[i].Set))
	}
}

func TestPartitioner_DoesNotMutateInput(t *testing.T) {
	t.Parallel()

	p, _ := newTestPartitioner(t, NewRuleValidator(0), nil)
	cs := mustSet(t, "001_000015_IW1", "001_000015_IW3")
	before := cs.Clone()

	_, err := p.PartitionSet(t.Context(), cs)
	require.NoError(t, err)
	assert.True(t, cs.Equal(before))

	_, err = p.Repair(t.Context(), cs)
	require.NoError(t, err)
	assert.True(t, cs.Equal(before))
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		mutate      func(*Config)
		errContains string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "zero limit", mutate: func(c *Config) { c.CountLimit = 0 }, errContains: "count limit"},
		{name: "zero concurrency", mutate: func(c *Config) { c.Concurrency = 0 }, errContains: "concurrency"},
		{name: "zero depth", mutate: func(c *Config) { c.MaxDepth = 0 }, errContains: "max depth"},
		{name: "unknown pairs", mutate: func(c *Config) { c.SidePairs = SidePairs(9) }, errContains: "side pairs"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.errContains == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errContains)
		})
	}
}

func TestNewPartitioner_NilValidator(t *testing.T) {
	t.Parallel()

	_, err := NewPartitioner(nil, nil, DefaultConfig(), nil)
	require.Error(t, err)
}
