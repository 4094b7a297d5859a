package multiburst

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ASFHyP3/VolcSARvatory/pkg/burst"
)

func TestFillHoles_MiddleSwath(t *testing.T) {
	t.Parallel()

	cs := mustSet(t, "001_000015_IW1", "001_000015_IW3")
	got := FillHoles(cs)

	assert.Same(t, cs, got)
	assert.Equal(t, burst.AllSwaths, got.Swaths(15))
}

func TestFillHoles_PerSwathGaps(t *testing.T) {
	t.Parallel()

	cs := NewCandidateSet("001")
	span(cs, 1, 6, burst.IW2)
	cs.Add(1, burst.IW1)
	cs.Add(4, burst.IW1)
	cs.Add(6, burst.IW1)

	FillHoles(cs)

	a := AnalyzeRanges(cs)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, a.IDs[burst.IW1])
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, a.IDs[burst.IW2])
	assert.Nil(t, a.IDs[burst.IW3])
}

func TestFillHoles_Idempotent(t *testing.T) {
	t.Parallel()

	inputs := []*CandidateSet{
		mustSet(t, "001_000015_IW1", "001_000015_IW3"),
		span(span(NewCandidateSet("001"), 1, 1, burst.IW1), 5, 5, burst.IW1, burst.IW3),
		span(NewCandidateSet("003"), 10, 12, burst.IW1, burst.IW2, burst.IW3),
	}
	inputs[2].Set(11, burst.NewSwathSet(burst.IW2))

	for _, cs := range inputs {
		once := FillHoles(cs.Clone())
		twice := FillHoles(once.Clone())
		assert.True(t, once.Equal(twice), "fill holes not idempotent for %s", cs)
	}
}

func TestSplitCount(t *testing.T) {
	t.Parallel()

	cs := mustSet(t, ids("001", 1, 40, "IW1")...)
	frags := SplitCount(cs, DefaultCountLimit)
	require.Len(t, frags, 2)
	assert.Equal(t, 30, frags[0].Slots())
	assert.Equal(t, 10, frags[1].Slots())
	assert.Equal(t, 30, frags[0].Frames()[29])
	assert.Equal(t, 31, frags[1].Frames()[0])
}

func TestSplitCount_NeverSplitsAFrame(t *testing.T) {
	t.Parallel()

	cs := span(NewCandidateSet("001"), 1, 25, burst.IW1, burst.IW2, burst.IW3)
	frags := SplitCount(cs, DefaultCountLimit)

	total := 0
	for _, f := range frags {
		assert.LessOrEqual(t, f.Slots(), DefaultCountLimit)
		for _, fr := range f.Frames() {
			assert.Equal(t, burst.AllSwaths, f.Swaths(fr))
		}
		total += f.Slots()
	}
	assert.Equal(t, cs.Slots(), total)
	require.Len(t, frags, 3)
	assert.Equal(t, 30, frags[0].Slots())
	assert.Equal(t, 30, frags[1].Slots())
	assert.Equal(t, 15, frags[2].Slots())
}

func TestSplitCount_Empty(t *testing.T) {
	t.Parallel()
	assert.Nil(t, SplitCount(NewCandidateSet("001"), 30))
}

func TestSplitVertical(t *testing.T) {
	t.Parallel()

	cs := NewCandidateSet("001")
	span(cs, 1, 3, burst.IW1)
	span(cs, 5, 5, burst.IW2)
	span(cs, 9, 11, burst.IW3)

	frags := SplitVertical(cs)
	require.Len(t, frags, 3)
	assert.Equal(t, []int{1, 2, 3}, frags[0].Frames())
	assert.Equal(t, []int{5}, frags[1].Frames())
	assert.Equal(t, []int{9, 10, 11}, frags[2].Frames())

	for _, f := range frags {
		fr := f.Frames()
		for i := 1; i < len(fr); i++ {
			assert.Equal(t, fr[i-1]+1, fr[i])
		}
	}
	assert.Nil(t, SplitVertical(NewCandidateSet("001")))
}

func TestSplitHorizontal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		build func() *CandidateSet
		want  [][]burst.SubSwath
	}{
		{
			name: "aligned",
			build: func() *CandidateSet {
				cs := span(NewCandidateSet("001"), 1, 5, burst.IW1, burst.IW2)
				return span(cs, 2, 6, burst.IW3)
			},
			want: [][]burst.SubSwath{{burst.IW1, burst.IW2, burst.IW3}},
		},
		{
			name: "IW1 misaligned",
			build: func() *CandidateSet {
				cs := span(NewCandidateSet("001"), 1, 2, burst.IW1)
				return span(cs, 1, 8, burst.IW2, burst.IW3)
			},
			want: [][]burst.SubSwath{{burst.IW1}, {burst.IW2, burst.IW3}},
		},
		{
			name: "IW3 misaligned",
			build: func() *CandidateSet {
				cs := span(NewCandidateSet("001"), 1, 8, burst.IW1, burst.IW2)
				return span(cs, 6, 8, burst.IW3)
			},
			want: [][]burst.SubSwath{{burst.IW1, burst.IW2}, {burst.IW3}},
		},
		{
			name: "all misaligned",
			build: func() *CandidateSet {
				cs := span(NewCandidateSet("001"), 1, 3, burst.IW1)
				span(cs, 1, 9, burst.IW2)
				return span(cs, 6, 9, burst.IW3)
			},
			want: [][]burst.SubSwath{{burst.IW1}, {burst.IW2}, {burst.IW3}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cs := tt.build()
			frags := SplitHorizontal(cs)
			require.Len(t, frags, len(tt.want))

			total := 0
			for i, f := range frags {
				var mask burst.SwathSet
				for _, fr := range f.Frames() {
					mask = mask.Union(f.Swaths(fr))
				}
				assert.Equal(t, tt.want[i], mask.Swaths())
				total += f.Slots()
			}
			assert.Equal(t, cs.Slots(), total)
		})
	}
}

// IW1 (1,10), IW2 (1,10), IW3 (20,30): the IW2/IW3 start difference of 10
// is treated as disjoint and left to the horizontal splitter.
func TestCompleteSides_DisjointThenHorizontal(t *testing.T) {
	t.Parallel()

	cs := span(NewCandidateSet("001"), 1, 10, burst.IW1, burst.IW2)
	span(cs, 20, 30, burst.IW3)
	before := cs.Clone()

	frags := CompleteSides(cs, 100, SidePairsCyclic)
	require.Len(t, frags, 1)
	assert.True(t, frags[0].Equal(before), "disjoint swaths must not be extended")

	parts := SplitHorizontal(frags[0])
	require.Len(t, parts, 2)
	assert.Equal(t, span(NewCandidateSet("001"), 1, 10, burst.IW1, burst.IW2).Dict(), parts[0].Dict())
	assert.Equal(t, span(NewCandidateSet("001"), 20, 30, burst.IW3).Dict(), parts[1].Dict())
}

func TestCompleteSides_ExtendsLaggingSwath(t *testing.T) {
	t.Parallel()

	// IW2 starts 3 frames after IW1 and ends 2 frames before it.
	cs := span(NewCandidateSet("001"), 1, 10, burst.IW1)
	span(cs, 4, 8, burst.IW2)

	frags := CompleteSides(cs, DefaultCountLimit, SidePairsCyclic)
	require.Len(t, frags, 1)

	r, ok := AnalyzeRanges(frags[0]).Range(burst.IW2)
	require.True(t, ok)
	assert.Equal(t, Range{Min: 2, Max: 9}, r)
}

func TestCompleteSides_AlignedUntouched(t *testing.T) {
	t.Parallel()

	cs := span(NewCandidateSet("001"), 1, 10, burst.IW1)
	span(cs, 2, 9, burst.IW2)
	span(cs, 1, 10, burst.IW3)
	before := cs.Clone()

	frags := CompleteSides(cs, DefaultCountLimit, SidePairsLinear)
	require.Len(t, frags, 1)
	assert.True(t, frags[0].Equal(before))
}

func TestCompleteSides_AppliesCountSplit(t *testing.T) {
	t.Parallel()

	cs := span(NewCandidateSet("001"), 1, 20, burst.IW1, burst.IW2)
	frags := CompleteSides(cs, DefaultCountLimit, SidePairsCyclic)
	require.Len(t, frags, 2)
	for _, f := range frags {
		assert.LessOrEqual(t, f.Slots(), DefaultCountLimit)
	}
}

// The cyclic order visits IW3/IW1 as if the two outer swaths touched. With
// IW1 on frames 1-3 and IW3 on frames 4-6 that pass extends both towards each
// other; the linear order leaves them alone.
func TestCompleteSides_CyclicIW3IW1Pass(t *testing.T) {
	t.Parallel()

	build := func() *CandidateSet {
		cs := span(NewCandidateSet("001"), 1, 3, burst.IW1)
		return span(cs, 4, 6, burst.IW3)
	}

	cyclic := CompleteSides(build(), DefaultCountLimit, SidePairsCyclic)
	require.Len(t, cyclic, 1)
	a := AnalyzeRanges(cyclic[0])
	assert.Equal(t, Range{Min: 1, Max: 5}, a.Ranges[burst.IW1])
	assert.Equal(t, Range{Min: 2, Max: 6}, a.Ranges[burst.IW3])

	linear := CompleteSides(build(), DefaultCountLimit, SidePairsLinear)
	require.Len(t, linear, 1)
	assert.True(t, linear[0].Equal(build()))
}

func TestParseSidePairs(t *testing.T) {
	t.Parallel()

	p, err := ParseSidePairs("linear")
	require.NoError(t, err)
	assert.Equal(t, SidePairsLinear, p)

	p, err = ParseSidePairs("")
	require.NoError(t, err)
	assert.Equal(t, SidePairsCyclic, p)
	assert.Equal(t, "cyclic", p.String())

	_, err = ParseSidePairs("circular")
	require.Error(t, err)
}
