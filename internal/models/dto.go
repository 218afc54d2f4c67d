// backend/internal/models/dto.go
package models

// AnswerEdit is one answer entry of an edited question.
type AnswerEdit struct {
	Text     string `json:"text"`
	Feedback string `json:"feedback"`
}

// SceneEdit is one entry of an author's submitted question list. A nil ID
// asks for a new scene.
type SceneEdit struct {
	ID           *uint        `json:"id,omitempty"`
	LeadIn       string       `json:"lead_in"`
	Question     string       `json:"question"`
	Answers      []AnswerEdit `json:"answers"`
	CorrectIndex int          `json:"correct_index"`
}

type EndingInput struct {
	Good    string `json:"good"`
	Neutral string `json:"neutral"`
	Bad     string `json:"bad"`
}

func (e EndingInput) Text(v EndingVariant) string {
	switch v {
	case EndingGood:
		return e.Good
	case EndingNeutral:
		return e.Neutral
	default:
		return e.Bad
	}
}

type StoryDetailsInput struct {
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Difficulty  string      `json:"difficulty"`
	Visibility  Visibility  `json:"visibility"`
	Intro       string      `json:"intro"`
	Endings     EndingInput `json:"endings"`
}

type CreateStoryInput struct {
	StoryDetailsInput
	Questions []SceneEdit `json:"questions"`
}

type StorySummary struct {
	ID          uint       `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Difficulty  string     `json:"difficulty"`
	Visibility  Visibility `json:"visibility"`
	JoinCode    string     `json:"join_code,omitempty"`
}

func (s Story) Summary(withCode bool) StorySummary {
	sum := StorySummary{
		ID:          s.ID,
		Title:       s.Title,
		Description: s.Description,
		Difficulty:  s.Difficulty,
		Visibility:  s.Visibility,
	}
	if withCode && s.JoinCode != nil {
		sum.JoinCode = *s.JoinCode
	}
	return sum
}

// AnswerView is an answer as shown to a player; correctness stays on the server.
type AnswerView struct {
	ID   uint   `json:"id"`
	Text string `json:"text"`
}

type SceneContent struct {
	Kind     SceneKind      `json:"kind"`
	ID       uint           `json:"id"`
	Text     string         `json:"text,omitempty"`
	LeadIn   string         `json:"lead_in,omitempty"`
	Question string         `json:"question,omitempty"`
	Answers  []AnswerView   `json:"answers,omitempty"`
	Ending   *EndingVariant `json:"ending,omitempty"`
}

// AnswerResult is what a player learns after submitting an answer.
type AnswerResult struct {
	Correct  bool           `json:"correct"`
	Feedback string         `json:"feedback"`
	Score    int            `json:"score"`
	MaxScore int            `json:"max_score"`
	Level    int            `json:"level"`
	GameOver bool           `json:"game_over"`
	Next     *SceneRef      `json:"next,omitempty"`
	Ending   *EndingVariant `json:"ending,omitempty"`
}

type SessionView struct {
	ID       string         `json:"id"`
	StoryID  uint           `json:"story_id"`
	Status   SessionStatus  `json:"status"`
	Scene    *SceneRef      `json:"scene,omitempty"`
	Score    int            `json:"score"`
	MaxScore int            `json:"max_score"`
	Level    int            `json:"level"`
	Ending   *EndingVariant `json:"ending,omitempty"`
}

func (s *PlaySession) View() SessionView {
	return SessionView{
		ID:       s.ID,
		StoryID:  s.StoryID,
		Status:   s.Status,
		Scene:    s.CurrentScene(),
		Score:    s.Score,
		MaxScore: s.MaxScore,
		Level:    s.Level,
		Ending:   s.Ending,
	}
}
