// backend/internal/models/story.go
package models

import (
	"time"
)

type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// EndingVariant names one of the three outcomes of a story.
type EndingVariant string

const (
	EndingGood    EndingVariant = "good"
	EndingNeutral EndingVariant = "neutral"
	EndingBad     EndingVariant = "bad"
)

// EndingVariants lists the variants every story must provide, best first.
var EndingVariants = []EndingVariant{EndingGood, EndingNeutral, EndingBad}

func (v EndingVariant) Valid() bool {
	switch v {
	case EndingGood, EndingNeutral, EndingBad:
		return true
	}
	return false
}

type Story struct {
	ID          uint            `json:"id" gorm:"primaryKey"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	AuthorID    uint            `json:"author_id" gorm:"index;not null"`
	Title       string          `json:"title" gorm:"not null"`
	Description string          `json:"description"`
	Difficulty  string          `json:"difficulty"`
	Visibility  Visibility      `json:"visibility" gorm:"not null;default:public"`
	JoinCode    *string         `json:"join_code,omitempty" gorm:"uniqueIndex"`
	Intro       *IntroScene     `json:"intro,omitempty" gorm:"foreignKey:StoryID;constraint:OnDelete:CASCADE"`
	Questions   []QuestionScene `json:"questions,omitempty" gorm:"foreignKey:StoryID;constraint:OnDelete:CASCADE"`
	Endings     []EndingScene   `json:"endings,omitempty" gorm:"foreignKey:StoryID;constraint:OnDelete:CASCADE"`
}

func (s *Story) IsPublic() bool {
	return s.Visibility != VisibilityPrivate
}

type IntroScene struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	StoryID   uint      `json:"story_id" gorm:"uniqueIndex;not null"`
	Text      string    `json:"text" gorm:"not null"`
}

// QuestionScene is one link of a story's scene chain. NextSceneID points at
// the following scene of the same story and is only used for ordering.
type QuestionScene struct {
	ID          uint           `json:"id" gorm:"primaryKey"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	StoryID     uint           `json:"story_id" gorm:"index;not null"`
	LeadIn      string         `json:"lead_in" gorm:"not null"`
	Question    string         `json:"question" gorm:"not null"`
	NextSceneID *uint          `json:"next_scene_id" gorm:"uniqueIndex"`
	Answers     []AnswerOption `json:"answers,omitempty" gorm:"foreignKey:SceneID;constraint:OnDelete:CASCADE"`
}

// CorrectAnswer returns the option marked correct, or nil.
func (q *QuestionScene) CorrectAnswer() *AnswerOption {
	for i := range q.Answers {
		if q.Answers[i].IsCorrect {
			return &q.Answers[i]
		}
	}
	return nil
}

// Answer returns the option with the given id, or nil.
func (q *QuestionScene) Answer(id uint) *AnswerOption {
	for i := range q.Answers {
		if q.Answers[i].ID == id {
			return &q.Answers[i]
		}
	}
	return nil
}

type AnswerOption struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	SceneID   uint      `json:"scene_id" gorm:"index;not null"`
	Position  int       `json:"position" gorm:"not null"`
	Text      string    `json:"text" gorm:"not null"`
	Feedback  string    `json:"feedback" gorm:"not null"`
	IsCorrect bool      `json:"is_correct" gorm:"not null;default:false"`
}

type EndingScene struct {
	ID        uint          `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
	StoryID   uint          `json:"story_id" gorm:"uniqueIndex:idx_story_variant;not null"`
	Variant   EndingVariant `json:"variant" gorm:"uniqueIndex:idx_story_variant;not null"`
	Text      string        `json:"text" gorm:"not null"`
}

// Reconciliation is the write set produced from an author's edit list.
// Scenes are in the submitted order; a zero ID marks an insert.
type Reconciliation struct {
	StoryID uint
	Deletes []uint
	Scenes  []QuestionScene
}

// Updates returns the ids of the scenes updated in place.
func (r Reconciliation) Updates() []uint {
	var ids []uint
	for _, s := range r.Scenes {
		if s.ID != 0 {
			ids = append(ids, s.ID)
		}
	}
	return ids
}

// Inserts returns how many new scenes the reconciliation creates.
func (r Reconciliation) Inserts() int {
	n := 0
	for _, s := range r.Scenes {
		if s.ID == 0 {
			n++
		}
	}
	return n
}

type LeaderboardEntry struct {
	PlayerID uint `json:"player_id"`
	Score    int  `json:"score"`
}
