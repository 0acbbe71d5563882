// handler.go — основной обработчик JSON API портала.
// Объединяет доменные обработчики и делегирует запросы в сервисный слой.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	apierrors "github.com/bigkaa/bmkg-portal/internal/api/errors"
	"github.com/bigkaa/bmkg-portal/internal/domain/model"
	"github.com/bigkaa/bmkg-portal/internal/service"
)

// maxJSONBody — максимальный размер JSON-тела запроса.
const maxJSONBody = 1 << 20

// Authenticator — проверка учётных данных и выпуск токенов.
// Реализуется service.AuthService.
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (*model.User, error)
	IssueToken(user *model.User) (string, time.Time, error)
}

// RequestLedger — операции журнала заявок.
// Реализуется service.RequestService.
type RequestLedger interface {
	ParseFilter(in service.FilterInput) (model.RequestFilter, error)
	List(ctx context.Context, filter model.RequestFilter) ([]*model.RequestWithRecording, error)
	FindByToken(ctx context.Context, token string) (*model.InterviewRequest, error)
	TopicByToken(ctx context.Context, token string) (string, error)
	TransitionStatus(ctx context.Context, token, to string) (*model.InterviewRequest, error)
}

// KeywordSource — выборки ключевых слов.
// Реализуется service.KeywordService.
type KeywordSource interface {
	Top(ctx context.Context, limit int) ([]model.KeywordResult, error)
	Search(ctx context.Context, keyword string) ([]model.KeywordResult, error)
}

// APIHandler — основной обработчик JSON API.
type APIHandler struct {
	health   *HealthHandler
	auth     Authenticator
	requests RequestLedger
	keywords KeywordSource
	logger   *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(
	health *HealthHandler,
	auth Authenticator,
	requests RequestLedger,
	keywords KeywordSource,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		health:   health,
		auth:     auth,
		requests: requests,
		keywords: keywords,
		logger:   logger.With(slog.String("component", "api_handler")),
	}
}

// HealthLive — liveness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady — readiness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics — Prometheus метрики (делегируется в HealthHandler).
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// decodeJSON читает JSON-тело запроса в dst. Неизвестные поля запрещены.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("некорректное JSON-тело: %w", err)
	}
	return nil
}

// writeServiceError переводит ошибку сервисного слоя в JSON-ответ.
// Внутренние ошибки логируются, клиент получает обезличенное сообщение.
func (h *APIHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var fe *service.FieldError
	switch {
	case errors.As(err, &fe):
		apierrors.ValidationError(w, fmt.Sprintf("Поле %s: %s", fe.Field, fe.Reason))
	case errors.Is(err, service.ErrValidation):
		apierrors.ValidationError(w, err.Error())
	case errors.Is(err, service.ErrNotFound):
		apierrors.NotFound(w, "Заявка не найдена")
	case errors.Is(err, service.ErrInvalidTransition):
		apierrors.Conflict(w, "Недопустимый переход статуса")
	case errors.Is(err, service.ErrInvalidCredentials):
		apierrors.Unauthorized(w, "Неверное имя пользователя или пароль")
	default:
		h.logger.Error("Внутренняя ошибка",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Внутренняя ошибка сервера")
	}
}

// isNotFound сообщает, что сущность не найдена.
func isNotFound(err error) bool {
	return errors.Is(err, service.ErrNotFound)
}
