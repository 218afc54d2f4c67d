package chain

import (
	"fmt"
	"sort"
	"strings"

	"quiz-story/internal/models"
)

// AnswersPerScene is the fixed number of answer options of a question scene.
const AnswersPerScene = 4

// Validate checks every submitted edit against the content rules and the set
// of scene ids that currently exist in the story. All violations are returned
// together as a *models.ValidationError.
func Validate(edits []models.SceneEdit, existing map[uint]bool) error {
	var violations []models.Violation
	add := func(pos int, field, rule string) {
		violations = append(violations, models.Violation{Position: pos, Field: field, Rule: rule})
	}

	seen := make(map[uint]bool, len(edits))
	for i, e := range edits {
		if e.ID != nil {
			switch {
			case !existing[*e.ID]:
				add(i, "id", "unknown scene id")
			case seen[*e.ID]:
				add(i, "id", "duplicate scene id")
			}
			seen[*e.ID] = true
		}
		if strings.TrimSpace(e.LeadIn) == "" {
			add(i, "lead_in", "must not be empty")
		}
		if strings.TrimSpace(e.Question) == "" {
			add(i, "question", "must not be empty")
		}
		if len(e.Answers) != AnswersPerScene {
			add(i, "answers", "must have exactly 4 entries")
		}
		for j, a := range e.Answers {
			if strings.TrimSpace(a.Text) == "" {
				add(i, answerField(j, "text"), "must not be empty")
			}
			if strings.TrimSpace(a.Feedback) == "" {
				add(i, answerField(j, "feedback"), "must not be empty")
			}
		}
		if e.CorrectIndex < 0 || e.CorrectIndex >= AnswersPerScene {
			add(i, "correct_index", "must be between 0 and 3")
		}
	}

	if len(violations) > 0 {
		return &models.ValidationError{Violations: violations}
	}
	return nil
}

func answerField(i int, name string) string {
	return fmt.Sprintf("answers[%d].%s", i, name)
}

// Plan validates edits and turns them into the write set for a story whose
// current scene ids are existing. Nothing is written here.
func Plan(storyID uint, existing []uint, edits []models.SceneEdit) (models.Reconciliation, error) {
	known := make(map[uint]bool, len(existing))
	for _, id := range existing {
		known[id] = true
	}
	if err := Validate(edits, known); err != nil {
		return models.Reconciliation{}, err
	}

	rec := models.Reconciliation{
		StoryID: storyID,
		Scenes:  make([]models.QuestionScene, len(edits)),
	}
	kept := make(map[uint]bool, len(edits))
	for i, e := range edits {
		scene := models.QuestionScene{
			StoryID:  storyID,
			LeadIn:   strings.TrimSpace(e.LeadIn),
			Question: strings.TrimSpace(e.Question),
			Answers:  make([]models.AnswerOption, len(e.Answers)),
		}
		if e.ID != nil {
			scene.ID = *e.ID
			kept[*e.ID] = true
		}
		for j, a := range e.Answers {
			scene.Answers[j] = models.AnswerOption{
				SceneID:   scene.ID,
				Position:  j,
				Text:      strings.TrimSpace(a.Text),
				Feedback:  strings.TrimSpace(a.Feedback),
				IsCorrect: j == e.CorrectIndex,
			}
		}
		rec.Scenes[i] = scene
	}

	for _, id := range existing {
		if !kept[id] {
			rec.Deletes = append(rec.Deletes, id)
		}
	}
	sort.Slice(rec.Deletes, func(i, j int) bool { return rec.Deletes[i] < rec.Deletes[j] })

	return rec, nil
}
