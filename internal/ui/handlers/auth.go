// auth.go — вход и выход пользователей портала.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bigkaa/bmkg-portal/internal/domain/model"
	"github.com/bigkaa/bmkg-portal/internal/service"
	"github.com/bigkaa/bmkg-portal/internal/ui/auth"
	"github.com/bigkaa/bmkg-portal/internal/ui/i18n"
	"github.com/bigkaa/bmkg-portal/internal/ui/pages"
)

// homeAfterLogin — страница после успешного входа.
const homeAfterLogin = "/historical-data"

// Authenticator — проверка учётных данных.
// Реализуется service.AuthService.
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (*model.User, error)
}

// AuthHandler — обработчики входа и выхода.
type AuthHandler struct {
	auth           Authenticator
	sessionManager *auth.SessionManager
	now            func() time.Time
	logger         *slog.Logger
}

// NewAuthHandler создаёт новый AuthHandler.
func NewAuthHandler(authenticator Authenticator, sessionManager *auth.SessionManager, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		auth:           authenticator,
		sessionManager: sessionManager,
		now:            time.Now,
		logger:         logger.With(slog.String("component", "ui.auth")),
	}
}

// HandleLoginPage — GET /login. Вошедший пользователь перенаправляется дальше.
func (h *AuthHandler) HandleLoginPage(w http.ResponseWriter, r *http.Request) {
	base := pageBase(w, r, h.sessionManager)
	if base.LoggedIn() {
		http.Redirect(w, r, homeAfterLogin, http.StatusFound)
		return
	}
	render(w, r, http.StatusOK, pages.Login(pages.LoginData{Base: base}), h.logger)
}

// HandleLogin — POST /login. Проверяет пароль и создаёт сессию.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimSpace(r.FormValue("username"))
	password := r.FormValue("password")

	user, err := h.auth.Authenticate(r.Context(), username, password)
	if err != nil {
		status := http.StatusUnauthorized
		msg := i18n.T(r.Context(), "login.invalid")
		if !errors.Is(err, service.ErrInvalidCredentials) {
			h.logger.Error("Ошибка аутентификации", slog.String("error", err.Error()))
			status = http.StatusInternalServerError
			msg = i18n.T(r.Context(), "error.internal")
		} else {
			h.logger.Info("Неудачная попытка входа",
				slog.String("username", username),
				slog.String("remote_addr", r.RemoteAddr),
			)
		}
		render(w, r, status, pages.Login(pages.LoginData{
			Base:      pageBase(w, r, h.sessionManager),
			LoginName: username,
			Error:     msg,
		}), h.logger)
		return
	}

	session := &auth.SessionData{
		UserID:    user.ID,
		Username:  user.Username,
		Role:      user.Role,
		ExpiresAt: h.now().Add(auth.SessionTTL).Unix(),
	}
	if err := h.sessionManager.SetSessionCookie(w, session); err != nil {
		h.logger.Error("Ошибка создания session cookie", slog.String("error", err.Error()))
		renderError(w, r, h.sessionManager, http.StatusInternalServerError, i18n.T(r.Context(), "error.internal"), h.logger)
		return
	}

	h.logger.Info("Пользователь вошёл",
		slog.String("username", user.Username),
		slog.String("role", user.Role),
	)
	setFlash(w, h.sessionManager, auth.Flash{Kind: auth.FlashSuccess, Key: "flash.welcome", Arg: user.Username}, h.logger)
	http.Redirect(w, r, homeAfterLogin, http.StatusSeeOther)
}

// HandleLogout — GET /logout. Удаляет сессию.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	h.sessionManager.ClearSessionCookie(w)
	setFlash(w, h.sessionManager, auth.Flash{Kind: auth.FlashSuccess, Key: "flash.logged_out"}, h.logger)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
