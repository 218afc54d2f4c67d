// backend/internal/play/handler.go
package play

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"quiz-story/internal/auth"
	"quiz-story/internal/httpx"
	"quiz-story/internal/models"
)

const defaultLeaderboardSize = 10

// JoinResolver turns a join code into its story.
type JoinResolver interface {
	ResolveJoinCode(ctx context.Context, code string) (*models.Story, error)
}

type Handler struct {
	service *Service
	joins   JoinResolver
	logger  *zap.Logger
}

func NewHandler(service *Service, joins JoinResolver, logger *zap.Logger) *Handler {
	return &Handler{service: service, joins: joins, logger: logger.Named("play_handler")}
}

type startResponse struct {
	SessionID string           `json:"session_id"`
	Scene     *models.SceneRef `json:"scene"`
	MaxScore  int              `json:"max_score"`
	Level     int              `json:"level"`
}

type answerRequest struct {
	AnswerID uint `json:"answer_id"`
}

func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (uint, bool) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	}
	return userID, ok
}

func (h *Handler) StartSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.caller(w, r)
	if !ok {
		return
	}
	storyID, ok := httpx.UintVar(r, "storyID")
	if !ok {
		httpx.BadRequest(w, "invalid story id")
		return
	}

	sess, ref, err := h.service.StartSession(r.Context(), storyID, userID)
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, startResponse{SessionID: sess.ID, Scene: ref, MaxScore: sess.MaxScore, Level: sess.Level})
}

func (h *Handler) JoinByCode(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.caller(w, r)
	if !ok {
		return
	}
	story, err := h.joins.ResolveJoinCode(r.Context(), mux.Vars(r)["code"])
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}

	sess, ref, err := h.service.StartJoinedSession(r.Context(), story, userID)
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, startResponse{SessionID: sess.ID, Scene: ref, MaxScore: sess.MaxScore, Level: sess.Level})
}

func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.caller(w, r)
	if !ok {
		return
	}
	sessions, err := h.service.ListSessions(r.Context(), userID)
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	views := make([]models.SessionView, len(sessions))
	for i := range sessions {
		views[i] = sessions[i].View()
	}
	httpx.JSON(w, http.StatusOK, views)
}

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.caller(w, r)
	if !ok {
		return
	}
	sess, err := h.service.GetSession(r.Context(), mux.Vars(r)["sessionID"], userID)
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sess.View())
}

func (h *Handler) Advance(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.caller(w, r)
	if !ok {
		return
	}
	ref, err := h.service.Advance(r.Context(), mux.Vars(r)["sessionID"], userID)
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]interface{}{"scene": ref})
}

func (h *Handler) GetScene(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.caller(w, r)
	if !ok {
		return
	}
	vars := mux.Vars(r)
	kind := models.SceneKind(vars["kind"])
	if !kind.Valid() {
		httpx.BadRequest(w, "invalid scene kind")
		return
	}
	sceneID, ok := httpx.UintVar(r, "sceneID")
	if !ok {
		httpx.BadRequest(w, "invalid scene id")
		return
	}

	content, err := h.service.GetScene(r.Context(), vars["sessionID"], userID, kind, sceneID)
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, content)
}

func (h *Handler) SubmitAnswer(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.BadRequest(w, err.Error())
		return
	}

	res, err := h.service.SubmitAnswer(r.Context(), mux.Vars(r)["sessionID"], userID, req.AnswerID)
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.caller(w, r)
	if !ok {
		return
	}
	storyID, ok := httpx.UintVar(r, "storyID")
	if !ok {
		httpx.BadRequest(w, "invalid story id")
		return
	}
	limit := int64(defaultLeaderboardSize)
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			httpx.BadRequest(w, "invalid limit")
			return
		}
		limit = n
	}

	entries, err := h.service.Leaderboard(r.Context(), storyID, userID, limit)
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entries)
}
