package date

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	got, err := Parse("2025-03-14")
	require.NoError(t, err)
	assert.Equal(t, New(2025, time.March, 14), got)

	got, err = Parse("2025-03-14T10:30:00Z")
	require.NoError(t, err)
	assert.Equal(t, 10, got.Hour())

	_, err = Parse("14/03/2025")
	assert.Error(t, err)
}

func TestParse_Keywords(t *testing.T) {
	today, err := Parse("today")
	require.NoError(t, err)
	tomorrow, err := Parse("Tomorrow")
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, tomorrow.Sub(today))
}

func TestParseRange(t *testing.T) {
	r, err := ParseRange("2025-01-01..2025-01-31")
	require.NoError(t, err)
	require.NotNil(t, r.From)
	require.NotNil(t, r.To)

	assert.True(t, r.Contains(New(2025, time.January, 1)), "lower bound is inclusive")
	assert.True(t, r.Contains(New(2025, time.January, 31).Add(23*time.Hour)), "date-only upper bound covers the day")
	assert.False(t, r.Contains(New(2025, time.February, 1)))
	assert.False(t, r.Contains(New(2024, time.December, 31)))
}

func TestParseRange_OpenBounds(t *testing.T) {
	r, err := ParseRange("..2025-01-31")
	require.NoError(t, err)
	assert.Nil(t, r.From)
	assert.True(t, r.Contains(New(1999, time.January, 1)))

	r, err = ParseRange("2025-01-01..")
	require.NoError(t, err)
	assert.Nil(t, r.To)
	assert.True(t, r.Contains(New(2099, time.January, 1)))
}

func TestParseRange_Invalid(t *testing.T) {
	for _, in := range []string{"2025-01-01", "2025-02-01..2025-01-01", "x..y"} {
		_, err := ParseRange(in)
		assert.Error(t, err, in)
	}
}

func TestRange_IsZero(t *testing.T) {
	assert.True(t, Range{}.IsZero())
	now := time.Now()
	assert.False(t, Range{From: &now}.IsZero())
}
