// Package httpx holds the JSON response helpers shared by the HTTP handlers.
package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"quiz-story/internal/models"
)

type errorBody struct {
	Error      string             `json:"error"`
	Violations []models.Violation `json:"violations,omitempty"`
}

func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

// StatusOf maps an error to its HTTP status.
func StatusOf(err error) int {
	switch {
	case errors.Is(err, models.ErrValidationFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrIllegalStateTransition), errors.Is(err, models.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, models.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, models.ErrForbidden):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// Error writes err as a JSON body. Internal failures (including chain
// corruption and configuration errors) are logged and not echoed.
func Error(w http.ResponseWriter, logger *zap.Logger, err error) {
	status := StatusOf(err)
	body := errorBody{Error: err.Error()}

	var verr *models.ValidationError
	if errors.As(err, &verr) {
		body.Violations = verr.Violations
	}
	if status == http.StatusInternalServerError {
		logger.Error("Request failed", zap.Error(err))
		switch {
		case errors.Is(err, models.ErrChainCorruption):
			body.Error = models.ErrChainCorruption.Error()
		case errors.Is(err, models.ErrConfiguration):
			body.Error = models.ErrConfiguration.Error()
		default:
			body.Error = "internal server error"
		}
	}
	JSON(w, status, body)
}

func BadRequest(w http.ResponseWriter, msg string) {
	JSON(w, http.StatusBadRequest, errorBody{Error: msg})
}

// UintVar reads a numeric path variable.
func UintVar(r *http.Request, name string) (uint, bool) {
	v, err := strconv.ParseUint(mux.Vars(r)[name], 10, 64)
	if err != nil {
		return 0, false
	}
	return uint(v), true
}
