package story

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"quiz-story/internal/auth"
	"quiz-story/internal/memstore"
	"quiz-story/internal/models"
)

func serve(t *testing.T, h *Handler, method, path string, user uint, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	r := mux.NewRouter()
	r.HandleFunc("/api/stories", h.CreateStory).Methods("POST")
	r.HandleFunc("/api/stories/mine", h.ListMine).Methods("GET")
	r.HandleFunc("/api/stories/{storyID:[0-9]+}", h.GetStory).Methods("GET")
	r.HandleFunc("/api/stories/{storyID:[0-9]+}", h.DeleteStory).Methods("DELETE")
	r.HandleFunc("/api/stories/{storyID:[0-9]+}/questions", h.SubmitEditedQuestions).Methods("PUT")

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if user != 0 {
		req = req.WithContext(auth.WithUserID(req.Context(), user))
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestHandlerStoryLifecycle(t *testing.T) {
	h := NewHandler(newService(memstore.NewSceneStore(), nil), zap.NewNop())

	rec := serve(t, h, "POST", "/api/stories", 1, input(models.VisibilityPrivate, "A", "B"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var summary models.StorySummary
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&summary))
	assert.Len(t, summary.JoinCode, 6)

	path := fmt.Sprintf("/api/stories/%d", summary.ID)
	rec = serve(t, h, "GET", path, 1, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var story models.Story
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&story))
	require.Len(t, story.Questions, 2)

	rec = serve(t, h, "GET", path, 2, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	bad := question("C")
	bad.Answers = bad.Answers[:3]
	rec = serve(t, h, "PUT", path+"/questions", 1, editQuestionsRequest{Questions: []models.SceneEdit{bad}})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var body struct {
		Violations []models.Violation `json:"violations"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Len(t, body.Violations, 1)
	assert.Equal(t, "answers", body.Violations[0].Field)

	keep := question("B again")
	keep.ID = &story.Questions[1].ID
	rec = serve(t, h, "PUT", path+"/questions", 1, editQuestionsRequest{Questions: []models.SceneEdit{keep}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = serve(t, h, "GET", "/api/stories/mine", 1, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var mine []models.StorySummary
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&mine))
	assert.Len(t, mine, 1)

	rec = serve(t, h, "DELETE", path, 1, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = serve(t, h, "GET", path, 1, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(t, h, "POST", "/api/stories", 0, input(models.VisibilityPublic, "A"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
