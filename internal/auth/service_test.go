package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quiz-story/internal/memstore"
	"quiz-story/internal/models"
)

const secret = "test-secret"

func TestRegisterAndLogin(t *testing.T) {
	svc := NewService(memstore.NewUserStore(), secret)
	ctx := context.Background()

	user := &models.User{Username: "ada", Email: "ada@example.com", Password: "lovelace"}
	require.NoError(t, svc.Register(ctx, user))
	assert.NotEqual(t, "lovelace", user.Password, "password is hashed")

	token, err := svc.Login(ctx, "ada", "lovelace")
	require.NoError(t, err)

	id, err := ParseToken(token, secret)
	require.NoError(t, err)
	assert.Equal(t, user.ID, id)

	_, err = ParseToken(token, "other-secret")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.Login(ctx, "ada", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Login(ctx, "nobody", "lovelace")
	assert.True(t, errors.Is(err, models.ErrUnauthorized))

	err = svc.Register(ctx, &models.User{Username: "ada", Password: "another"})
	assert.True(t, errors.Is(err, models.ErrConflict))
}

func TestRegisterValidation(t *testing.T) {
	svc := NewService(memstore.NewUserStore(), secret)

	err := svc.Register(context.Background(), &models.User{Username: " ", Password: "123"})
	var verr *models.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Len(t, verr.Violations, 2)
}

func TestExpiredToken(t *testing.T) {
	store := memstore.NewUserStore()
	svc := NewService(store, secret)
	svc.now = func() time.Time { return time.Now().Add(-48 * time.Hour) }

	require.NoError(t, svc.Register(context.Background(), &models.User{Username: "old", Password: "password"}))
	token, err := svc.Login(context.Background(), "old", "password")
	require.NoError(t, err)

	_, err = ParseToken(token, secret)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseTokenRejectsOtherAlgorithms(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"user_id": 1})
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = ParseToken(signed, secret)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTMiddleware(t *testing.T) {
	svc := NewService(memstore.NewUserStore(), secret)
	require.NoError(t, svc.Register(context.Background(), &models.User{Username: "bob", Password: "builder"}))
	token, err := svc.Login(context.Background(), "bob", "builder")
	require.NoError(t, err)

	var seen uint
	h := JWTMiddleware(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = UserIDFromContext(r.Context())
	}))

	tests := []struct {
		header string
		want   int
	}{
		{"", http.StatusUnauthorized},
		{"Token " + token, http.StatusUnauthorized},
		{"Bearer garbage", http.StatusUnauthorized},
		{"Bearer " + token, http.StatusOK},
	}
	for _, tt := range tests {
		req := httptest.NewRequest("GET", "/api/stories/mine", nil)
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, tt.want, rec.Code, tt.header)
	}
	assert.Equal(t, uint(1), seen)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("OPTIONS", "/api/stories/mine", nil))
	assert.Equal(t, http.StatusOK, rec.Code, "preflight passes")
}
