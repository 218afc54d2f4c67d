// Package difficulty maps a player's level to how many answers are shown and
// how many points a correct answer earns.
package difficulty

import (
	"math/rand"
	"sync"

	"quiz-story/internal/models"
)

const (
	MinLevel   = 1
	MaxLevel   = 3
	StartLevel = MaxLevel
)

type Rule struct {
	VisibleAnswers int
	Points         int
}

var rules = map[int]Rule{
	3: {VisibleAnswers: 4, Points: 5},
	2: {VisibleAnswers: 3, Points: 3},
	1: {VisibleAnswers: 2, Points: 1},
}

// ForLevel returns the rule of level, clamped to [MinLevel, MaxLevel].
func ForLevel(level int) Rule {
	return rules[Clamp(level)]
}

func Clamp(level int) int {
	if level < MinLevel {
		return MinLevel
	}
	if level > MaxLevel {
		return MaxLevel
	}
	return level
}

// MaxScore is the score of a perfect run through questions questions.
func MaxScore(questions int) int {
	return questions * ForLevel(MaxLevel).Points
}

// Outcome is the effect of one answer.
type Outcome struct {
	Points   int
	Level    int
	GameOver bool
}

// Apply scores an answer given at level. Points follow the level the
// question was shown at; a wrong answer at MinLevel ends the game.
func Apply(level int, correct bool) Outcome {
	level = Clamp(level)
	if correct {
		return Outcome{
			Points: ForLevel(level).Points,
			Level:  Clamp(level + 1),
		}
	}
	if level == MinLevel {
		return Outcome{Level: MinLevel, GameOver: true}
	}
	return Outcome{Level: level - 1}
}

// Presenter picks which answers a player sees. The correct answer is always
// kept; the rest are a uniform sample of the wrong ones, and the result is
// shuffled. It is safe for concurrent use.
type Presenter struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewPresenter(src rand.Source) *Presenter {
	return &Presenter{rng: rand.New(src)}
}

func (p *Presenter) Present(answers []models.AnswerOption, level int) []models.AnswerOption {
	visible := ForLevel(level).VisibleAnswers
	if visible >= len(answers) {
		visible = len(answers)
	}

	var correct []models.AnswerOption
	var wrong []models.AnswerOption
	for _, a := range answers {
		if a.IsCorrect {
			correct = append(correct, a)
		} else {
			wrong = append(wrong, a)
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	picked := make([]models.AnswerOption, 0, visible)
	picked = append(picked, correct...)
	p.rng.Shuffle(len(wrong), func(i, j int) { wrong[i], wrong[j] = wrong[j], wrong[i] })
	for _, a := range wrong {
		if len(picked) >= visible {
			break
		}
		picked = append(picked, a)
	}
	p.rng.Shuffle(len(picked), func(i, j int) { picked[i], picked[j] = picked[j], picked[i] })
	return picked
}
