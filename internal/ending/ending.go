// Package ending chooses which ending a finished player sees.
package ending

import (
	"fmt"

	"quiz-story/internal/models"
)

const (
	DefaultGoodThreshold    = 70.0
	DefaultNeutralThreshold = 20.0
)

// Selector holds percentage thresholds; both bounds are inclusive.
type Selector struct {
	good    float64
	neutral float64
}

func NewSelector(good, neutral float64) (*Selector, error) {
	if good < 0 || good > 100 || neutral < 0 || neutral > 100 {
		return nil, fmt.Errorf("%w: ending thresholds must be within [0,100], got good=%v neutral=%v",
			models.ErrConfiguration, good, neutral)
	}
	if neutral > good {
		return nil, fmt.Errorf("%w: neutral threshold %v above good threshold %v",
			models.ErrConfiguration, neutral, good)
	}
	return &Selector{good: good, neutral: neutral}, nil
}

// Percentage returns score as a share of maxScore in percent.
func Percentage(score, maxScore int) (float64, error) {
	if maxScore <= 0 {
		return 0, fmt.Errorf("%w: max score is %d", models.ErrConfiguration, maxScore)
	}
	return float64(score) * 100 / float64(maxScore), nil
}

func (s *Selector) Select(score, maxScore int) (models.EndingVariant, error) {
	pct, err := Percentage(score, maxScore)
	if err != nil {
		return "", err
	}
	switch {
	case pct >= s.good:
		return models.EndingGood, nil
	case pct >= s.neutral:
		return models.EndingNeutral, nil
	default:
		return models.EndingBad, nil
	}
}
