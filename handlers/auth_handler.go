package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Dosada05/battle-tournament/middleware"
	"github.com/Dosada05/battle-tournament/utils"
	"github.com/golang-jwt/jwt/v4"
)

// AuthHandler issues staff tokens. There are no user accounts: the organizers
// share one password whose bcrypt hash comes from the configuration.
type AuthHandler struct {
	passwordHash string
	jwtSecret    []byte
	tokenTTL     time.Duration
	logger       *slog.Logger
}

func NewAuthHandler(passwordHash, jwtSecret string, tokenTTL time.Duration, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		passwordHash: passwordHash,
		jwtSecret:    []byte(jwtSecret),
		tokenTTL:     tokenTTL,
		logger:       logger,
	}
}

// TokenHandler обрабатывает POST /auth/token
func (h *AuthHandler) TokenHandler(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Name     string `json:"name"`
		Password string `json:"password"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	name := strings.TrimSpace(input.Name)
	if name == "" || input.Password == "" {
		badRequestResponse(w, r, errors.New("name and password are required"))
		return
	}
	if len(h.passwordHash) == 0 {
		unauthorizedResponse(w, r, "staff login is disabled")
		return
	}

	if err := utils.CheckPasswordHash(input.Password, h.passwordHash); err != nil {
		if !errors.Is(err, utils.ErrPasswordMismatch) {
			h.logger.ErrorContext(r.Context(), "staff password hash is unusable", slog.Any("error", err))
		}
		unauthorizedResponse(w, r, "invalid credentials")
		return
	}

	now := time.Now()
	claims := jwt.MapClaims{
		middleware.ClaimRole: middleware.RoleStaff,
		middleware.ClaimName: name,
		"exp":                now.Add(h.tokenTTL).Unix(),
		"iat":                now.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString(h.jwtSecret)
	if err != nil {
		serverErrorResponse(w, r, fmt.Errorf("failed to sign token: %w", err))
		return
	}

	h.logger.InfoContext(r.Context(), "staff token issued", slog.String("name", name))
	if err := writeJSON(w, http.StatusOK, jsonResponse{"token": tokenString}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
