// Пакет handlers — HTTP-обработчики страниц портала.
// common.go — общие помощники: данные layout, рендеринг, перевод ошибок.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/a-h/templ"

	"github.com/bigkaa/bmkg-portal/internal/service"
	"github.com/bigkaa/bmkg-portal/internal/ui/auth"
	"github.com/bigkaa/bmkg-portal/internal/ui/i18n"
	uimiddleware "github.com/bigkaa/bmkg-portal/internal/ui/middleware"
	"github.com/bigkaa/bmkg-portal/internal/ui/pages"
)

// pageBase собирает общие данные layout: язык, пользователь, flash.
// На публичных страницах сессия читается из cookie без редиректа.
func pageBase(w http.ResponseWriter, r *http.Request, sm *auth.SessionManager) pages.Base {
	ctx := r.Context()
	base := pages.Base{
		Lang: i18n.LangFromContext(ctx),
		Path: r.URL.RequestURI(),
	}

	session := uimiddleware.SessionFromContext(ctx)
	if session == nil {
		if s, err := sm.GetSessionFromRequest(r); err == nil && s != nil && !s.IsExpired(time.Now()) {
			session = s
		}
	}
	if session != nil {
		base.Username = session.Username
		base.Role = session.Role
	}

	if f := sm.PopFlash(w, r); f != nil {
		text := i18n.T(ctx, f.Key)
		if f.Arg != "" {
			text = i18n.Tf(ctx, f.Key, f.Arg)
		}
		base.Flash = &pages.FlashMessage{Kind: f.Kind, Text: text}
	}
	return base
}

// render отдаёт HTML-страницу с указанным статусом.
func render(w http.ResponseWriter, r *http.Request, status int, page templ.Component, logger *slog.Logger) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := page.Render(r.Context(), w); err != nil {
		logger.Error("Ошибка рендеринга страницы",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
}

// renderError отдаёт страницу ошибки.
func renderError(w http.ResponseWriter, r *http.Request, sm *auth.SessionManager, status int, message string, logger *slog.Logger) {
	render(w, r, status, pages.Error(pages.ErrorData{
		Base:    pageBase(w, r, sm),
		Status:  status,
		Message: message,
	}), logger)
}

// setFlash сохраняет flash-сообщение; ошибка только логируется.
func setFlash(w http.ResponseWriter, sm *auth.SessionManager, f auth.Flash, logger *slog.Logger) {
	if err := sm.SetFlash(w, f); err != nil {
		logger.Warn("Не удалось сохранить flash-сообщение", slog.String("error", err.Error()))
	}
}

// errorMessage переводит ошибку сервисного слоя в сообщение и HTTP-статус.
// Внутренние ошибки логируются, пользователь получает обезличенный текст.
func errorMessage(ctx context.Context, err error, logger *slog.Logger) (int, string) {
	var fe *service.FieldError
	switch {
	case errors.As(err, &fe):
		return http.StatusUnprocessableEntity, i18n.Tf(ctx, "error."+fe.Reason, i18n.T(ctx, "field."+fe.Field))
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, i18n.T(ctx, "error.not_found")
	case errors.Is(err, service.ErrInvalidTransition):
		return http.StatusConflict, i18n.T(ctx, "error.invalid_transition")
	case errors.Is(err, service.ErrTokenExhausted):
		logger.Error("Исчерпаны попытки выделения токена", slog.String("error", err.Error()))
		return http.StatusServiceUnavailable, i18n.T(ctx, "error.token_exhausted")
	case isAssetMissing(err):
		logger.Error("Ресурсы отчёта недоступны", slog.String("error", err.Error()))
		return http.StatusServiceUnavailable, i18n.T(ctx, "error.asset_missing")
	default:
		logger.Error("Внутренняя ошибка", slog.String("error", err.Error()))
		return http.StatusInternalServerError, i18n.T(ctx, "error.internal")
	}
}
