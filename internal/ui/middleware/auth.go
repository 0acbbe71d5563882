// Пакет middleware — HTTP middleware страниц портала.
// auth.go — проверка cookie-сессии и роли пользователя.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	apierrors "github.com/bigkaa/bmkg-portal/internal/api/errors"
	"github.com/bigkaa/bmkg-portal/internal/domain/rbac"
	"github.com/bigkaa/bmkg-portal/internal/ui/auth"
)

// contextKey — тип для ключей контекста UI (избегаем коллизий с API middleware).
type contextKey string

const (
	// ContextKeyUISession — данные UI-сессии в контексте запроса.
	ContextKeyUISession contextKey = "ui_session"
)

// LoginPath — страница входа, на которую перенаправляются анонимные запросы.
const LoginPath = "/login"

// UIAuth — middleware для проверки аутентификации пользователей портала.
// Извлекает сессию из зашифрованного cookie, redirect на /login при
// отсутствии или истечении сессии.
type UIAuth struct {
	sessionManager *auth.SessionManager
	now            func() time.Time
	logger         *slog.Logger
}

// NewUIAuth создаёт новый UIAuth middleware.
func NewUIAuth(sessionManager *auth.SessionManager, logger *slog.Logger) *UIAuth {
	return &UIAuth{
		sessionManager: sessionManager,
		now:            time.Now,
		logger:         logger.With(slog.String("component", "ui_auth_middleware")),
	}
}

// Middleware возвращает HTTP middleware для проверки UI-сессии.
// Анонимный запрос перенаправляется на страницу входа.
func (ua *UIAuth) Middleware() func(http.Handler) http.Handler {
	return ua.guard(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, LoginPath, http.StatusFound)
	})
}

// JSONMiddleware — вариант Middleware для JSON-эндпоинтов портала
// (/dashboard, /search_by_keyword): без сессии отвечает 401 в формате
// ошибок API вместо redirect.
func (ua *UIAuth) JSONMiddleware() func(http.Handler) http.Handler {
	return ua.guard(func(w http.ResponseWriter, _ *http.Request) {
		apierrors.SessionRequired(w, "Требуется вход в портал")
	})
}

// guard проверяет сессию; deny формирует ответ анонимному запросу.
func (ua *UIAuth) guard(deny http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, err := ua.sessionManager.GetSessionFromRequest(r)
			if err != nil {
				ua.logger.Debug("Ошибка чтения UI-сессии",
					slog.String("error", err.Error()),
					slog.String("remote_addr", r.RemoteAddr),
				)
				ua.sessionManager.ClearSessionCookie(w)
				deny(w, r)
				return
			}

			if session == nil {
				deny(w, r)
				return
			}

			if session.IsExpired(ua.now()) {
				ua.logger.Info("Сессия истекла",
					slog.String("username", session.Username),
				)
				ua.sessionManager.ClearSessionCookie(w)
				deny(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeyUISession, session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole возвращает middleware, требующий роль не ниже role.
// Должен использоваться ПОСЛЕ UIAuth.Middleware(). Недостаточная роль — 403.
func RequireRole(role string) func(http.Handler) http.Handler {
	return requireRole(role,
		func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, LoginPath, http.StatusFound)
		},
		func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		},
	)
}

// RequireRoleJSON — RequireRole для JSON-эндпоинтов, ответы в формате ошибок API.
// Используется после UIAuth.JSONMiddleware().
func RequireRoleJSON(role string) func(http.Handler) http.Handler {
	return requireRole(role,
		func(w http.ResponseWriter, _ *http.Request) {
			apierrors.SessionRequired(w, "Требуется вход в портал")
		},
		func(w http.ResponseWriter, _ *http.Request) {
			apierrors.Forbidden(w, "Недостаточно прав: требуется роль "+role)
		},
	)
}

func requireRole(role string, anonymous, forbidden http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session := SessionFromContext(r.Context())
			if session == nil {
				anonymous(w, r)
				return
			}
			if !rbac.HasRole(session.Role, role) {
				forbidden(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SessionFromContext извлекает SessionData из контекста запроса.
// Возвращает nil если сессия не найдена (не прошёл через UIAuth middleware).
func SessionFromContext(ctx context.Context) *auth.SessionData {
	session, ok := ctx.Value(ContextKeyUISession).(*auth.SessionData)
	if !ok {
		return nil
	}
	return session
}

// WithSession помещает сессию в контекст (используется страницами,
// доступными и без входа, для отображения меню).
func WithSession(ctx context.Context, session *auth.SessionData) context.Context {
	return context.WithValue(ctx, ContextKeyUISession, session)
}
