package mask

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	m, err := Parse("0101")
	require.NoError(t, err)
	assert.Equal(t, 4, m.Len())
	assert.False(t, m.IsSet(0))
	assert.True(t, m.IsSet(1))
	assert.Equal(t, 2, m.Count())
	assert.Equal(t, "0101", m.String())

	_, err = Parse("01x1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "01x1")
}

func TestParseList(t *testing.T) {
	masks, err := ParseList("00, 01,,10")
	require.NoError(t, err)
	require.Len(t, masks, 3)
	assert.Equal(t, "00", masks[0].String())
	assert.Equal(t, "10", masks[2].String())

	masks, err = ParseList("")
	require.NoError(t, err)
	assert.Empty(t, masks)
}

func TestWithDoesNotAlias(t *testing.T) {
	base := New(3)
	next := base.With(1)

	assert.True(t, base.None())
	assert.Equal(t, "010", next.String())

	bits := next.Bools()
	bits[0] = true
	assert.Equal(t, "010", next.String())
}

func TestMergeAndIntersect(t *testing.T) {
	a, _ := Parse("1100")
	b, _ := Parse("0110")

	assert.Equal(t, "1110", a.Merge(b).String())
	assert.Equal(t, "0100", a.Intersect(b).String())
	assert.Equal(t, "1100", a.String())
}

func TestAllAndOutOfRange(t *testing.T) {
	m, _ := Parse("11")
	assert.True(t, m.All())
	assert.True(t, m.IsSet(5))
	assert.True(t, New(0).All())
}
