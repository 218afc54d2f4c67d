package difficulty

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quiz-story/internal/models"
)

func TestForLevel(t *testing.T) {
	tests := []struct {
		level   int
		visible int
		points  int
	}{
		{3, 4, 5},
		{2, 3, 3},
		{1, 2, 1},
		{0, 2, 1},
		{9, 4, 5},
	}
	for _, tt := range tests {
		rule := ForLevel(tt.level)
		assert.Equal(t, tt.visible, rule.VisibleAnswers, "level %d", tt.level)
		assert.Equal(t, tt.points, rule.Points, "level %d", tt.level)
	}
}

func TestMaxScore(t *testing.T) {
	assert.Equal(t, 20, MaxScore(4))
	assert.Equal(t, 0, MaxScore(0))
}

func TestApply(t *testing.T) {
	tests := []struct {
		name    string
		level   int
		correct bool
		want    Outcome
	}{
		{"correct at max stays max", 3, true, Outcome{Points: 5, Level: 3}},
		{"correct at 2 climbs", 2, true, Outcome{Points: 3, Level: 3}},
		{"correct at 1 climbs", 1, true, Outcome{Points: 1, Level: 2}},
		{"wrong at 3 drops", 3, false, Outcome{Level: 2}},
		{"wrong at 2 drops", 2, false, Outcome{Level: 1}},
		{"wrong at 1 ends the game", 1, false, Outcome{Level: 1, GameOver: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Apply(tt.level, tt.correct))
		})
	}
}

func TestApplyKeepsLevelInBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	level := StartLevel
	for i := 0; i < 1000; i++ {
		out := Apply(level, rng.Intn(2) == 0)
		require.GreaterOrEqual(t, out.Level, MinLevel)
		require.LessOrEqual(t, out.Level, MaxLevel)
		require.GreaterOrEqual(t, out.Points, 0)
		if out.GameOver {
			level = StartLevel
			continue
		}
		level = out.Level
	}
}

func answers() []models.AnswerOption {
	return []models.AnswerOption{
		{ID: 10, Position: 0, Text: "4"},
		{ID: 11, Position: 1, Text: "5", IsCorrect: true},
		{ID: 12, Position: 2, Text: "6"},
		{ID: 13, Position: 3, Text: "7"},
	}
}

func TestPresentAlwaysKeepsCorrectAnswer(t *testing.T) {
	p := NewPresenter(rand.NewSource(1))
	for level := MinLevel; level <= MaxLevel; level++ {
		for i := 0; i < 200; i++ {
			shown := p.Present(answers(), level)
			require.Len(t, shown, ForLevel(level).VisibleAnswers)

			seen := map[uint]bool{}
			correct := 0
			for _, a := range shown {
				assert.False(t, seen[a.ID], "answer shown twice")
				seen[a.ID] = true
				if a.IsCorrect {
					correct++
				}
			}
			assert.Equal(t, 1, correct)
		}
	}
}

func TestPresentSamplesEveryWrongAnswer(t *testing.T) {
	p := NewPresenter(rand.NewSource(3))
	seen := map[uint]int{}
	for i := 0; i < 300; i++ {
		for _, a := range p.Present(answers(), MinLevel) {
			seen[a.ID]++
		}
	}
	for _, id := range []uint{10, 12, 13} {
		assert.Positive(t, seen[id], "wrong answer %d never shown", id)
	}
	assert.Equal(t, 300, seen[11])
}

func TestPresentIsDeterministicForASeed(t *testing.T) {
	a := NewPresenter(rand.NewSource(99)).Present(answers(), 2)
	b := NewPresenter(rand.NewSource(99)).Present(answers(), 2)
	assert.Equal(t, a, b)
}

func TestPresentFewerAnswersThanVisible(t *testing.T) {
	p := NewPresenter(rand.NewSource(1))
	shown := p.Present(answers()[:2], MaxLevel)
	assert.Len(t, shown, 2)
}
