// requests.go — сервис журнала заявок на интервью.
// Приём заявки с повтором при коллизии токена, выборка для
// исторического представления, поиск по токену и смена статуса.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/bmkg-portal/internal/domain/model"
	"github.com/bigkaa/bmkg-portal/internal/domain/token"
	"github.com/bigkaa/bmkg-portal/internal/notify"
	"github.com/bigkaa/bmkg-portal/internal/repository"
)

// requestsSubmittedTotal — принятые заявки по способу интервью.
var requestsSubmittedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "bp_requests_submitted_total",
		Help: "Количество принятых заявок на интервью по способу проведения.",
	},
	[]string{"method"},
)

// Ограничения длины полей заявки (в символах).
const (
	maxNameLength  = 255
	maxTopicLength = 2000
	maxLinkLength  = 2000
)

// scheduleLayouts — принимаемые форматы времени интервью.
// Первый соответствует полю datetime-local HTML-формы.
var scheduleLayouts = []string{
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	time.RFC3339,
}

// TokenSource — источник токенов заявок.
// Реализуется *token.Generator.
type TokenSource interface {
	New() (string, error)
}

// EventPublisher — получатель события о созданной заявке.
// Реализуется *notify.Dispatcher.
type EventPublisher interface {
	Publish(req *model.InterviewRequest) bool
}

// SubmitInput — поля формы заявки в исходном виде.
type SubmitInput struct {
	InterviewerName string
	MediaName       string
	Topic           string
	Method          string
	// Schedule — время интервью (datetime-local или RFC 3339)
	Schedule     string
	MeetingLink  string
	ContactEmail string
}

// RequestOptions — параметры сервиса заявок.
type RequestOptions struct {
	// Location — часовой пояс времени интервью без явного смещения
	Location *time.Location
	// WhatsAppPhone — номер получателя WhatsApp deep-link
	WhatsAppPhone string
	// MaxAttempts — число попыток вставки при коллизии токена
	MaxAttempts int
}

// RequestService — сервис журнала заявок.
type RequestService struct {
	requests    repository.InterviewRequestRepository
	tokens      TokenSource
	events      EventPublisher
	loc         *time.Location
	phone       string
	maxAttempts int
	logger      *slog.Logger
}

// NewRequestService создаёт сервис заявок.
// events может быть nil — тогда уведомления не отправляются.
func NewRequestService(
	requests repository.InterviewRequestRepository,
	tokens TokenSource,
	events EventPublisher,
	opts RequestOptions,
	logger *slog.Logger,
) *RequestService {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	attempts := opts.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return &RequestService{
		requests:    requests,
		tokens:      tokens,
		events:      events,
		loc:         loc,
		phone:       opts.WhatsAppPhone,
		maxAttempts: attempts,
		logger:      logger.With(slog.String("component", "request_service")),
	}
}

// Location возвращает часовой пояс отображения времени интервью.
func (s *RequestService) Location() *time.Location {
	return s.loc
}

// Submit проверяет и сохраняет заявку со статусом Pending.
// При коллизии токена вставка повторяется с новым токеном.
// После записи публикуется событие для уведомлений.
func (s *RequestService) Submit(ctx context.Context, in SubmitInput) (*model.InterviewRequest, error) {
	req, err := s.validate(in)
	if err != nil {
		return nil, err
	}

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		tok, err := s.tokens.New()
		if err != nil {
			return nil, fmt.Errorf("генерация токена: %w", err)
		}
		req.ID = uuid.New().String()
		req.Token = tok
		link := notify.WhatsAppLink(s.phone, req, s.loc)
		req.WhatsAppLink = &link

		err = s.requests.Create(ctx, req)
		if err == nil {
			s.logger.Info("Заявка принята",
				slog.String("token", req.Token),
				slog.String("method", req.Method),
				slog.Int("attempt", attempt),
			)
			requestsSubmittedTotal.WithLabelValues(req.Method).Inc()
			if s.events != nil && !s.events.Publish(req) {
				s.logger.Warn("Событие о заявке отброшено", slog.String("token", req.Token))
			}
			return req, nil
		}
		if !errors.Is(err, repository.ErrTokenTaken) {
			return nil, fmt.Errorf("сохранение заявки: %w", err)
		}
		s.logger.Warn("Коллизия токена заявки, повтор",
			slog.String("token", tok),
			slog.Int("attempt", attempt),
		)
	}
	return nil, ErrTokenExhausted
}

// validate нормализует поля и собирает модель заявки.
func (s *RequestService) validate(in SubmitInput) (*model.InterviewRequest, error) {
	name := strings.TrimSpace(in.InterviewerName)
	media := strings.TrimSpace(in.MediaName)
	topic := strings.TrimSpace(in.Topic)
	method := strings.ToLower(strings.TrimSpace(in.Method))
	schedule := strings.TrimSpace(in.Schedule)

	required := []struct {
		field, value string
		max          int
	}{
		{"interviewer_name", name, maxNameLength},
		{"media_name", media, maxNameLength},
		{"topic", topic, maxTopicLength},
		{"method", method, 0},
		{"schedule", schedule, 0},
	}
	for _, f := range required {
		if f.value == "" {
			return nil, fieldError(f.field, ReasonRequired)
		}
		if f.max > 0 && utf8.RuneCountInString(f.value) > f.max {
			return nil, fieldError(f.field, ReasonTooLong)
		}
	}

	if !model.IsValidMethod(method) {
		return nil, fieldError("method", ReasonInvalid)
	}

	scheduledAt, err := parseSchedule(schedule, s.loc)
	if err != nil {
		return nil, fieldError("schedule", ReasonInvalid)
	}

	req := &model.InterviewRequest{
		InterviewerName: name,
		MediaName:       media,
		Topic:           topic,
		Method:          method,
		ScheduledAt:     scheduledAt,
		Status:          model.StatusPending,
	}

	if link := strings.TrimSpace(in.MeetingLink); link != "" {
		if utf8.RuneCountInString(link) > maxLinkLength {
			return nil, fieldError("meeting_link", ReasonTooLong)
		}
		req.MeetingLink = &link
	}

	if email := strings.TrimSpace(in.ContactEmail); email != "" {
		addr, err := mail.ParseAddress(email)
		if err != nil || addr.Address != email {
			return nil, fieldError("contact_email", ReasonInvalid)
		}
		if len(email) > maxNameLength {
			return nil, fieldError("contact_email", ReasonTooLong)
		}
		req.ContactEmail = &email
	}

	return req, nil
}

// parseSchedule разбирает время интервью.
// Значения без смещения интерпретируются в часовом поясе loc.
func parseSchedule(value string, loc *time.Location) (time.Time, error) {
	var lastErr error
	for _, layout := range scheduleLayouts {
		t, err := time.ParseInLocation(layout, value, loc)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// dateLayout — формат дат фильтра (поле date HTML-формы).
const dateLayout = "2006-01-02"

// FilterInput — параметры фильтра исторического представления в исходном виде.
type FilterInput struct {
	Query    string
	Status   string
	DateFrom string
	DateTo   string
}

// ParseFilter разбирает параметры фильтра. Даты интерпретируются
// как начало суток в часовом поясе сервиса; пустые поля не участвуют в фильтре.
func (s *RequestService) ParseFilter(in FilterInput) (model.RequestFilter, error) {
	filter := model.RequestFilter{
		Query:  strings.TrimSpace(in.Query),
		Status: strings.TrimSpace(in.Status),
	}

	if v := strings.TrimSpace(in.DateFrom); v != "" {
		from, err := time.ParseInLocation(dateLayout, v, s.loc)
		if err != nil {
			return model.RequestFilter{}, fieldError("date_from", ReasonInvalid)
		}
		filter.From = &from
	}
	if v := strings.TrimSpace(in.DateTo); v != "" {
		to, err := time.ParseInLocation(dateLayout, v, s.loc)
		if err != nil {
			return model.RequestFilter{}, fieldError("date_to", ReasonInvalid)
		}
		filter.To = &to
	}
	return filter, nil
}

// List возвращает заявки по фильтру в порядке убывания даты подачи.
func (s *RequestService) List(ctx context.Context, filter model.RequestFilter) ([]*model.RequestWithRecording, error) {
	filter.Query = strings.TrimSpace(filter.Query)
	if filter.Status != "" && !model.IsValidStatus(filter.Status) {
		return nil, fieldError("status", ReasonInvalid)
	}
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return nil, fieldError("date_to", ReasonInvalid)
	}

	items, err := s.requests.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("получение списка заявок: %w", err)
	}
	return items, nil
}

// FindByToken возвращает заявку по публичному токену.
// Токен приводится к верхнему регистру; некорректный токен даёт ErrNotFound без запроса к БД.
func (s *RequestService) FindByToken(ctx context.Context, tok string) (*model.InterviewRequest, error) {
	tok = normalizeToken(tok)
	if !token.Valid(tok) {
		return nil, ErrNotFound
	}

	req, err := s.requests.GetByToken(ctx, tok)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("получение заявки: %w", err)
	}
	return req, nil
}

// TopicByToken возвращает тему заявки для предзаполнения формы записи.
func (s *RequestService) TopicByToken(ctx context.Context, tok string) (string, error) {
	req, err := s.FindByToken(ctx, tok)
	if err != nil {
		return "", err
	}
	return req.Topic, nil
}

// TransitionStatus переводит заявку в статус to.
// Проверка исходного статуса и запись выполняются одним условным UPDATE.
func (s *RequestService) TransitionStatus(ctx context.Context, tok, to string) (*model.InterviewRequest, error) {
	if !model.IsValidStatus(to) {
		return nil, fieldError("status", ReasonInvalid)
	}
	sources := model.AllowedSources(to)
	if len(sources) == 0 {
		return nil, ErrInvalidTransition
	}

	tok = normalizeToken(tok)
	if !token.Valid(tok) {
		return nil, ErrNotFound
	}

	req, err := s.requests.UpdateStatus(ctx, tok, sources, to)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, ErrNotFound
		case errors.Is(err, repository.ErrConflict):
			return nil, fmt.Errorf("%w: %w", ErrInvalidTransition, err) //nolint:errorlint // намеренный двойной wrap
		default:
			return nil, fmt.Errorf("смена статуса заявки: %w", err)
		}
	}

	s.logger.Info("Статус заявки изменён",
		slog.String("token", req.Token),
		slog.String("status", req.Status),
	)
	return req, nil
}

func normalizeToken(tok string) string {
	return strings.ToUpper(strings.TrimSpace(tok))
}
