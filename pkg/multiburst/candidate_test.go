package multiburst

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ASFHyP3/VolcSARvatory/pkg/burst"
)

// mustSet builds a candidate set from burst identifiers.
func mustSet(t *testing.T, ids ...string) *CandidateSet {
	t.Helper()
	keys := make([]burst.Key, len(ids))
	for i, id := range ids {
		k, err := burst.Parse(id)
		require.NoError(t, err)
		keys[i] = k
	}
	cs, err := NewCandidateSetFromKeys(keys...)
	require.NoError(t, err)
	return cs
}

// span adds sw to every frame in [from, to].
func span(cs *CandidateSet, from, to int, swaths ...burst.SubSwath) *CandidateSet {
	for f := from; f <= to; f++ {
		for _, sw := range swaths {
			cs.Add(f, sw)
		}
	}
	return cs
}

func ids(path string, from, to int, sw string) []string {
	var out []string
	for f := from; f <= to; f++ {
		out = append(out, fmt.Sprintf("%s_%06d_%s", path, f, sw))
	}
	return out
}

func TestCandidateSet_AddAndQuery(t *testing.T) {
	t.Parallel()

	cs := NewCandidateSet("001")
	assert.True(t, cs.Empty())
	assert.True(t, cs.Add(11, burst.IW2))
	assert.True(t, cs.Add(10, burst.IW1))
	assert.False(t, cs.Add(10, burst.IW1))
	assert.False(t, cs.Add(10, burst.SubSwath(0)))
	cs.Add(10, burst.IW2)

	assert.Equal(t, "001", cs.Path())
	assert.Equal(t, []int{10, 11}, cs.Frames())
	assert.Equal(t, 2, cs.Len())
	assert.Equal(t, 3, cs.Slots())
	assert.True(t, cs.Has(10, burst.IW1))
	assert.False(t, cs.Has(11, burst.IW1))

	lo, hi, ok := cs.Bounds()
	require.True(t, ok)
	assert.Equal(t, 10, lo)
	assert.Equal(t, 11, hi)

	cs.Set(11, 0)
	assert.Equal(t, []int{10}, cs.Frames())
}

func TestCandidateSet_CloneIsIndependent(t *testing.T) {
	t.Parallel()

	cs := mustSet(t, "001_000010_IW1", "001_000011_IW1")
	c := cs.Clone()
	c.Add(12, burst.IW1)
	c.Add(10, burst.IW3)

	assert.Equal(t, 2, cs.Slots())
	assert.False(t, cs.Has(10, burst.IW3))
	assert.False(t, cs.Equal(c))
	assert.True(t, c.Contains(cs))
	assert.False(t, cs.Contains(c))
}

func TestCandidateSet_RestrictAndSubset(t *testing.T) {
	t.Parallel()

	cs := span(NewCandidateSet("002"), 1, 3, burst.IW1, burst.IW2)
	cs.Add(4, burst.IW3)

	r := cs.Restrict(burst.NewSwathSet(burst.IW3))
	assert.Equal(t, []int{4}, r.Frames())
	assert.Equal(t, 1, r.Slots())

	s := cs.Subset([]int{2, 3, 99})
	assert.Equal(t, []int{2, 3}, s.Frames())
	assert.Equal(t, 4, s.Slots())
}

func TestCandidateSet_Keys(t *testing.T) {
	t.Parallel()

	cs := mustSet(t, "001_000011_IW1", "001_000010_IW2", "001_000010_IW1")
	got := make([]string, 0)
	for _, k := range cs.Keys() {
		got = append(got, k.String())
	}
	assert.Equal(t, []string{"001_000010_IW1", "001_000010_IW2", "001_000011_IW1"}, got)
}

func TestCandidateSet_JSON(t *testing.T) {
	t.Parallel()

	cs := mustSet(t, "001_000010_IW1", "001_000010_IW2", "001_000011_IW2")
	data, err := json.Marshal(cs)
	require.NoError(t, err)
	assert.JSONEq(t, `{"001_000010":["IW1","IW2"],"001_000011":["IW2"]}`, string(data))

	var back CandidateSet
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, cs.Equal(&back))
}

func TestCandidateSet_UnmarshalJSON_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		input       string
		errContains string
	}{
		{name: "not an object", input: `[]`, errContains: "failed to decode candidate set"},
		{name: "bad frame key", input: `{"001-000010":["IW1"]}`, errContains: "malformed burst id"},
		{name: "bad swath", input: `{"001_000010":["IW9"]}`, errContains: "malformed burst id"},
		{name: "mixed paths", input: `{"001_000010":["IW1"],"002_000010":["IW1"]}`, errContains: "mixed paths"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var cs CandidateSet
			err := json.Unmarshal([]byte(tt.input), &cs)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errContains)
		})
	}
}

func TestNewCandidateSetFromKeys_MixedPaths(t *testing.T) {
	t.Parallel()

	_, err := NewCandidateSetFromKeys(burst.MustParse("001_000001_IW1"), burst.MustParse("002_000001_IW1"))
	require.Error(t, err)

	_, err = NewCandidateSetFromKeys()
	require.ErrorIs(t, err, ErrEmptyInput)
}

func TestGroupByPath(t *testing.T) {
	t.Parallel()

	got, err := GroupByPath([]string{
		"001_000010_IW1", "001_000011_IW1", "001_000010_IW2", "001_000011_IW2",
		"001_000010_IW1",
		"064_135527_IW3",
	})
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, map[string][]string{
		"001_000010": {"IW1", "IW2"},
		"001_000011": {"IW1", "IW2"},
	}, got["001"].Dict())
	assert.Equal(t, 1, got["064"].Slots())

	empty, err := GroupByPath(nil)
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = GroupByPath([]string{"001_000010_IW1", "garbage"})
	require.ErrorIs(t, err, burst.ErrMalformedID)
}

func TestAnalyzeRanges(t *testing.T) {
	t.Parallel()

	cs := mustSet(t, "001_000010_IW1", "001_000011_IW1", "001_000010_IW2", "001_000011_IW2")
	a := AnalyzeRanges(cs)

	r, ok := a.Range(burst.IW1)
	require.True(t, ok)
	assert.Equal(t, Range{Min: 10, Max: 11}, r)
	r, ok = a.Range(burst.IW2)
	require.True(t, ok)
	assert.Equal(t, Range{Min: 10, Max: 11}, r)
	_, ok = a.Range(burst.IW3)
	assert.False(t, ok)
	assert.Equal(t, []int{10, 11}, a.IDs[burst.IW1])
	assert.Nil(t, a.IDs[burst.IW3])
}
