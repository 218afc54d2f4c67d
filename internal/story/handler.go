// backend/internal/story/handler.go
package story

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"quiz-story/internal/auth"
	"quiz-story/internal/httpx"
	"quiz-story/internal/models"
)

type Handler struct {
	service *Service
	logger  *zap.Logger
}

func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger.Named("story_handler")}
}

type editQuestionsRequest struct {
	Questions []models.SceneEdit `json:"questions"`
}

func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (uint, bool) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	}
	return userID, ok
}

func (h *Handler) storyID(w http.ResponseWriter, r *http.Request) (uint, bool) {
	id, ok := httpx.UintVar(r, "storyID")
	if !ok {
		httpx.BadRequest(w, "invalid story id")
	}
	return id, ok
}

func (h *Handler) CreateStory(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.caller(w, r)
	if !ok {
		return
	}

	var in models.CreateStoryInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		httpx.BadRequest(w, err.Error())
		return
	}

	story, err := h.service.CreateStory(r.Context(), userID, in)
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, story.Summary(true))
}

func (h *Handler) ListPublic(w http.ResponseWriter, r *http.Request) {
	stories, err := h.service.ListPublic(r.Context())
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, stories)
}

func (h *Handler) ListMine(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.caller(w, r)
	if !ok {
		return
	}
	stories, err := h.service.ListMine(r.Context(), userID)
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, stories)
}

func (h *Handler) GetStory(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.caller(w, r)
	if !ok {
		return
	}
	storyID, ok := h.storyID(w, r)
	if !ok {
		return
	}
	story, err := h.service.GetStory(r.Context(), userID, storyID)
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, story)
}

func (h *Handler) UpdateDetails(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.caller(w, r)
	if !ok {
		return
	}
	storyID, ok := h.storyID(w, r)
	if !ok {
		return
	}
	var in models.StoryDetailsInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		httpx.BadRequest(w, err.Error())
		return
	}
	story, err := h.service.UpdateDetails(r.Context(), userID, storyID, in)
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, story.Summary(true))
}

// SubmitEditedQuestions replaces the question list; the response is the new
// chain in order.
func (h *Handler) SubmitEditedQuestions(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.caller(w, r)
	if !ok {
		return
	}
	storyID, ok := h.storyID(w, r)
	if !ok {
		return
	}
	var req editQuestionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.BadRequest(w, err.Error())
		return
	}
	questions, err := h.service.SubmitEditedQuestions(r.Context(), userID, storyID, req.Questions)
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]interface{}{"questions": questions})
}

func (h *Handler) DeleteStory(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.caller(w, r)
	if !ok {
		return
	}
	storyID, ok := h.storyID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteStory(r.Context(), userID, storyID); err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
