package ending

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quiz-story/internal/models"
)

func TestSelectBoundaries(t *testing.T) {
	s, err := NewSelector(DefaultGoodThreshold, DefaultNeutralThreshold)
	require.NoError(t, err)

	tests := []struct {
		score int
		max   int
		want  models.EndingVariant
	}{
		{20, 20, models.EndingGood},
		{14, 20, models.EndingGood},
		{13, 20, models.EndingNeutral},
		{7, 10, models.EndingGood},
		{4, 20, models.EndingNeutral},
		{3, 20, models.EndingBad},
		{0, 20, models.EndingBad},
		{1, 5, models.EndingNeutral},
	}
	for _, tt := range tests {
		got, err := s.Select(tt.score, tt.max)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "%d/%d", tt.score, tt.max)
	}
}

func TestSelectZeroMaxScore(t *testing.T) {
	s, err := NewSelector(DefaultGoodThreshold, DefaultNeutralThreshold)
	require.NoError(t, err)

	_, err = s.Select(0, 0)
	assert.True(t, errors.Is(err, models.ErrConfiguration))
}

func TestSelectIsMonotonic(t *testing.T) {
	s, err := NewSelector(DefaultGoodThreshold, DefaultNeutralThreshold)
	require.NoError(t, err)

	rank := map[models.EndingVariant]int{models.EndingBad: 0, models.EndingNeutral: 1, models.EndingGood: 2}
	for max := 1; max <= 40; max++ {
		prev := -1
		for score := 0; score <= max; score++ {
			v, err := s.Select(score, max)
			require.NoError(t, err)
			require.GreaterOrEqual(t, rank[v], prev, "%d/%d", score, max)
			prev = rank[v]
		}
	}
}

func TestNewSelectorRejectsBadThresholds(t *testing.T) {
	tests := []struct {
		good, neutral float64
	}{
		{101, 20},
		{70, -1},
		{20, 70},
	}
	for _, tt := range tests {
		_, err := NewSelector(tt.good, tt.neutral)
		assert.True(t, errors.Is(err, models.ErrConfiguration), "good=%v neutral=%v", tt.good, tt.neutral)
	}
}

func TestCustomThresholds(t *testing.T) {
	s, err := NewSelector(50, 50)
	require.NoError(t, err)

	v, err := s.Select(1, 2)
	require.NoError(t, err)
	assert.Equal(t, models.EndingGood, v)

	v, err = s.Select(0, 2)
	require.NoError(t, err)
	assert.Equal(t, models.EndingBad, v)
}
