// auth.go — выпуск bearer-токенов REST API.
package handlers

import (
	"net/http"
	"strings"
	"time"

	apierrors "github.com/bigkaa/bmkg-portal/internal/api/errors"
)

// tokenRequest — тело POST /api/v1/auth/token.
type tokenRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// tokenResponse — выпущенный токен доступа.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	ExpiresAt   string `json:"expires_at"`
}

// IssueToken — POST /api/v1/auth/token.
// Проверяет учётные данные и возвращает JWT для REST API.
func (h *APIHandler) IssueToken(w http.ResponseWriter, r *http.Request) {
	var body tokenRequest
	if err := decodeJSON(r, &body); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}
	if strings.TrimSpace(body.Username) == "" || body.Password == "" {
		apierrors.ValidationError(w, "Требуются username и password")
		return
	}

	user, err := h.auth.Authenticate(r.Context(), body.Username, body.Password)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	tok, expiresAt, err := h.auth.IssueToken(user)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: tok,
		TokenType:   "Bearer",
		ExpiresIn:   int64(time.Until(expiresAt).Round(time.Second) / time.Second),
		ExpiresAt:   expiresAt.UTC().Format(time.RFC3339),
	})
}
