// backend/internal/auth/service.go
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"
	"golang.org/x/crypto/bcrypt"

	"quiz-story/internal/models"
)

var (
	ErrInvalidToken       = fmt.Errorf("%w: invalid token", models.ErrUnauthorized)
	ErrInvalidCredentials = fmt.Errorf("%w: invalid credentials", models.ErrUnauthorized)
)

const tokenTTL = 24 * time.Hour

type UserStore interface {
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	CreateUser(ctx context.Context, user *models.User) error
}

type Service struct {
	repo      UserStore
	jwtSecret []byte
	now       func() time.Time
}

func NewService(repo UserStore, jwtSecret string) *Service {
	return &Service{
		repo:      repo,
		jwtSecret: []byte(jwtSecret),
		now:       time.Now,
	}
}

func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	user, err := s.repo.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":  user.ID,
		"username": user.Username,
		"exp":      s.now().Add(tokenTTL).Unix(),
	})

	return token.SignedString(s.jwtSecret)
}

func (s *Service) Register(ctx context.Context, user *models.User) error {
	var violations []models.Violation
	if strings.TrimSpace(user.Username) == "" {
		violations = append(violations, models.Violation{Position: -1, Field: "username", Rule: "must not be empty"})
	}
	if len(user.Password) < 6 {
		violations = append(violations, models.Violation{Position: -1, Field: "password", Rule: "must be at least 6 characters"})
	}
	if len(violations) > 0 {
		return &models.ValidationError{Violations: violations}
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(user.Password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	user.Password = string(hashedPassword)
	return s.repo.CreateUser(ctx, user)
}
