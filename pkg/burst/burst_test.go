package burst

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		id      string
		want    Key
		wantErr bool
	}{
		{
			name: "valid IW1",
			id:   "064_135527_IW1",
			want: Key{Path: "064", Frame: 135527, Swath: IW1},
		},
		{
			name: "leading zeros frame",
			id:   "001_000010_IW3",
			want: Key{Path: "001", Frame: 10, Swath: IW3},
		},
		{name: "empty", id: "", wantErr: true},
		{name: "missing swath", id: "001_000010", wantErr: true},
		{name: "short path", id: "01_000010_IW1", wantErr: true},
		{name: "short frame", id: "001_10_IW1", wantErr: true},
		{name: "non digit frame", id: "001_00001a_IW1", wantErr: true},
		{name: "signed frame", id: "001_+00010_IW1", wantErr: true},
		{name: "unknown swath", id: "001_000010_IW4", wantErr: true},
		{name: "lower case swath", id: "001_000010_iw1", wantErr: true},
		{name: "extra field", id: "001_000010_IW1_VV", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Parse(tt.id)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrMalformedID)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.id, got.String())
		})
	}
}

func TestMustParse_Panics(t *testing.T) {
	t.Parallel()
	require.Panics(t, func() { MustParse("bogus") })
	require.NotPanics(t, func() { MustParse("001_000001_IW2") })
}

func TestKey_FrameKey(t *testing.T) {
	t.Parallel()
	k := Key{Path: "123", Frame: 42, Swath: IW2}
	assert.Equal(t, "123_000042", k.FrameKey())
	assert.Equal(t, "123_000042_IW2", k.String())
}

func TestParseFrameKey(t *testing.T) {
	t.Parallel()

	path, frame, err := ParseFrameKey("001_000015")
	require.NoError(t, err)
	assert.Equal(t, "001", path)
	assert.Equal(t, 15, frame)

	_, _, err = ParseFrameKey("001000015")
	require.ErrorIs(t, err, ErrMalformedID)
	_, _, err = ParseFrameKey("001_15")
	require.ErrorIs(t, err, ErrMalformedID)
}

func TestSwathSet(t *testing.T) {
	t.Parallel()

	var s SwathSet
	assert.True(t, s.Empty())
	assert.Equal(t, 0, s.Len())

	s = s.With(IW3).With(IW1).With(IW1)
	assert.Equal(t, 2, s.Len())
	assert.True(t, s.Has(IW1))
	assert.False(t, s.Has(IW2))
	assert.Equal(t, []SubSwath{IW1, IW3}, s.Swaths())
	assert.Equal(t, []string{"IW1", "IW3"}, s.Strings())

	s = s.Without(IW1)
	assert.Equal(t, NewSwathSet(IW3), s)

	assert.Equal(t, AllSwaths, NewSwathSet(IW1, IW2).Union(NewSwathSet(IW3)))
	assert.Equal(t, NewSwathSet(IW2), AllSwaths.Intersect(NewSwathSet(IW2)))
	assert.Equal(t, NewSwathSet(IW1), NewSwathSet(IW1, SubSwath(7)))
}

func TestParseSubSwath(t *testing.T) {
	t.Parallel()
	for _, sw := range SubSwaths {
		got, err := ParseSubSwath(sw.String())
		require.NoError(t, err)
		assert.Equal(t, sw, got)
	}
	_, err := ParseSubSwath("EW1")
	require.Error(t, err)
	assert.Equal(t, "SubSwath(9)", SubSwath(9).String())
}
