// backend/internal/models/errors.go
package models

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrNotFound               = errors.New("not found")
	ErrValidationFailed       = errors.New("validation failed")
	ErrChainCorruption        = errors.New("scene chain corrupted")
	ErrIllegalStateTransition = errors.New("illegal state transition")
	ErrConfiguration          = errors.New("configuration error")
	ErrConflict               = errors.New("concurrent modification")
	ErrUnauthorized           = errors.New("unauthorized")
	ErrForbidden              = errors.New("forbidden")

	ErrStoryNotFound   = fmt.Errorf("story %w", ErrNotFound)
	ErrSceneNotFound   = fmt.Errorf("scene %w", ErrNotFound)
	ErrSessionNotFound = fmt.Errorf("session %w", ErrNotFound)
	ErrAnswerNotFound  = fmt.Errorf("answer %w", ErrNotFound)
	ErrSessionFinished = fmt.Errorf("%w: session already finished", ErrIllegalStateTransition)
	ErrSceneNotCurrent = fmt.Errorf("%w: scene is not current", ErrIllegalStateTransition)
)

// Violation is one broken content rule of a submitted scene edit.
type Violation struct {
	Position int    `json:"position"`
	Field    string `json:"field"`
	Rule     string `json:"rule"`
}

func (v Violation) String() string {
	if v.Position < 0 {
		return fmt.Sprintf("%s: %s", v.Field, v.Rule)
	}
	return fmt.Sprintf("question %d %s: %s", v.Position, v.Field, v.Rule)
}

// ValidationError carries every violated rule of a rejected submission.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.String()
	}
	return ErrValidationFailed.Error() + ": " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrValidationFailed
}

// CorruptionError describes a broken scene chain. Links maps every scene id of
// the story to its next reference (0 for none).
type CorruptionError struct {
	StoryID uint
	Reason  string
	Links   map[uint]uint
}

func (e *CorruptionError) Error() string {
	ids := make([]uint, 0, len(e.Links))
	for id := range e.Links {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var b strings.Builder
	for i, id := range ids {
		if i > 0 {
			b.WriteString(" ")
		}
		fmt.Fprintf(&b, "%d->%d", id, e.Links[id])
	}
	return fmt.Sprintf("%s: story %d: %s [%s]", ErrChainCorruption.Error(), e.StoryID, e.Reason, b.String())
}

func (e *CorruptionError) Unwrap() error {
	return ErrChainCorruption
}
