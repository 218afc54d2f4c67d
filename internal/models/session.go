// backend/internal/models/session.go
package models

import (
	"time"
)

type SceneKind string

const (
	SceneIntro    SceneKind = "intro"
	SceneQuestion SceneKind = "question"
	SceneEnding   SceneKind = "ending"
)

func (k SceneKind) Valid() bool {
	switch k {
	case SceneIntro, SceneQuestion, SceneEnding:
		return true
	}
	return false
}

type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionGameOver  SessionStatus = "game_over"
)

// SceneRef tells a caller which scene to fetch next.
type SceneRef struct {
	Kind SceneKind `json:"kind"`
	ID   uint      `json:"id"`
}

// PlaySession is the server-held state of one player's traversal of one story.
// Version is bumped on every write and guards against lost updates.
type PlaySession struct {
	ID               string         `json:"id" gorm:"primaryKey;type:varchar(36)"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	StoryID          uint           `json:"story_id" gorm:"index;not null"`
	PlayerID         uint           `json:"player_id" gorm:"index;not null"`
	SceneKind        SceneKind      `json:"scene_kind" gorm:"not null"`
	SceneID          uint           `json:"scene_id"`
	Status           SessionStatus  `json:"status" gorm:"not null;default:active"`
	Score            int            `json:"score"`
	MaxScore         int            `json:"max_score"`
	Level            int            `json:"level"`
	Ending           *EndingVariant `json:"ending,omitempty"`
	PresentedAnswers []uint         `json:"-" gorm:"serializer:json;type:text"`
	Version          int            `json:"-" gorm:"not null;default:0"`
	StartedAt        time.Time      `json:"started_at"`
	EndedAt          *time.Time     `json:"ended_at,omitempty"`
}

func (PlaySession) TableName() string {
	return "play_sessions"
}

// Finished reports whether the session reached a terminal state.
func (s *PlaySession) Finished() bool {
	return s.Status == SessionCompleted || s.Status == SessionGameOver
}

// CurrentScene returns the scene the player is looking at. A game over has none.
func (s *PlaySession) CurrentScene() *SceneRef {
	if s.Status == SessionGameOver {
		return nil
	}
	return &SceneRef{Kind: s.SceneKind, ID: s.SceneID}
}
