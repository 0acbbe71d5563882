// recordings.go — сервис записи интервью и формирования отчёта.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/bmkg-portal/internal/domain/model"
	"github.com/bigkaa/bmkg-portal/internal/report"
	"github.com/bigkaa/bmkg-portal/internal/repository"
)

// reportsRenderedTotal — сформированные отчёты по формату и результату.
var reportsRenderedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "bp_reports_rendered_total",
		Help: "Количество сформированных отчётов по формату и результату.",
	},
	[]string{"format", "result"},
)

// AudioStore — хранилище аудиозаписей.
// Реализуется *artifacts.AudioStore.
type AudioStore interface {
	Save(r io.Reader, token string, at time.Time) (string, int64, error)
	Delete(name string) error
}

// RecordInput — данные формы записи интервью.
type RecordInput struct {
	// Token — токен заявки
	Token string
	// Interviewee — имя собеседника
	Interviewee string
	// Transcript — текст транскрипта, абзацы разделены переводом строки
	Transcript string
	// Audio — аудиозапись (nil, если не передана)
	Audio io.Reader
}

// Document — сформированный отчёт.
type Document struct {
	Filename    string
	ContentType string
	Data        []byte
}

// RecordingService — сервис записей интервью и отчётов.
type RecordingService struct {
	requests   repository.InterviewRequestRepository
	recordings repository.RecordingRepository
	audio      AudioStore
	renderer   report.Renderer
	loc        *time.Location
	now        func() time.Time
	logger     *slog.Logger
}

// NewRecordingService создаёт сервис записей.
// loc — часовой пояс времени интервью в отчёте.
func NewRecordingService(
	requests repository.InterviewRequestRepository,
	recordings repository.RecordingRepository,
	audio AudioStore,
	renderer report.Renderer,
	loc *time.Location,
	logger *slog.Logger,
) *RecordingService {
	if loc == nil {
		loc = time.UTC
	}
	return &RecordingService{
		requests:   requests,
		recordings: recordings,
		audio:      audio,
		renderer:   renderer,
		loc:        loc,
		now:        time.Now,
		logger:     logger.With(slog.String("component", "recording_service")),
	}
}

// RecordAndRender сохраняет запись интервью и возвращает отчёт.
//
// Порядок: поиск заявки → формирование документа → сохранение аудио →
// upsert записи по request_id. Неизвестный токен и ошибка ресурсов отчёта
// не оставляют изменений. При ошибке upsert сохранённое аудио удаляется.
func (s *RecordingService) RecordAndRender(ctx context.Context, in RecordInput) (*Document, error) {
	interviewee := strings.TrimSpace(in.Interviewee)
	if interviewee == "" {
		return nil, fieldError("interviewee", ReasonRequired)
	}
	if utf8.RuneCountInString(interviewee) > maxNameLength {
		return nil, fieldError("interviewee", ReasonTooLong)
	}
	transcript := normalizeNewlines(in.Transcript)

	tok := normalizeToken(in.Token)
	req, err := s.requests.GetByToken(ctx, tok)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("получение заявки: %w", err)
	}

	doc, err := s.render(req, interviewee, transcript)
	if err != nil {
		return nil, err
	}

	now := s.now()
	var filename *string
	if in.Audio != nil {
		name, size, err := s.audio.Save(in.Audio, req.Token, now)
		if err != nil {
			return nil, fmt.Errorf("сохранение аудио: %w", err)
		}
		if size > 0 {
			filename = &name
		} else if err := s.audio.Delete(name); err != nil {
			s.logger.Warn("Не удалось удалить пустое аудио", slog.String("error", err.Error()))
		}
	}

	previous, err := s.recordings.GetByRequestID(ctx, req.ID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		s.discardAudio(filename)
		return nil, fmt.Errorf("получение предыдущей записи: %w", err)
	}

	rec := &model.Recording{
		ID:          uuid.New().String(),
		RequestID:   req.ID,
		Interviewee: interviewee,
		RecordedAt:  now,
		Filename:    filename,
		Transcript:  transcript,
	}
	if err := s.recordings.Upsert(ctx, rec); err != nil {
		s.discardAudio(filename)
		return nil, fmt.Errorf("сохранение записи: %w", err)
	}

	// Предыдущее аудио больше не связано с записью
	if previous != nil && previous.Filename != nil && (filename == nil || *previous.Filename != *filename) {
		s.discardAudio(previous.Filename)
	}

	s.logger.Info("Запись интервью сохранена",
		slog.String("token", req.Token),
		slog.String("recording_id", rec.ID),
		slog.Bool("audio", filename != nil),
	)
	return doc, nil
}

// RenderStored формирует отчёт по сохранённой записи.
func (s *RecordingService) RenderStored(ctx context.Context, recordingID string) (*Document, error) {
	rec, err := s.recordings.GetByID(ctx, strings.TrimSpace(recordingID))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("получение записи: %w", err)
	}

	req, err := s.requests.GetByID(ctx, rec.RequestID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("получение заявки: %w", err)
	}

	return s.render(req, rec.Interviewee, rec.Transcript)
}

// CheckAssets проверяет доступность шаблона и ресурсов отчёта.
func (s *RecordingService) CheckAssets() error {
	return s.renderer.Check()
}

func (s *RecordingService) render(req *model.InterviewRequest, interviewee, transcript string) (*Document, error) {
	format := s.renderer.Format()
	data, err := s.renderer.Render(report.NewFields(req, interviewee, transcript, s.loc))
	if err != nil {
		reportsRenderedTotal.WithLabelValues(format, "failed").Inc()
		s.logger.Error("Ошибка формирования отчёта",
			slog.String("token", req.Token),
			slog.String("format", format),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("формирование отчёта: %w", err)
	}
	reportsRenderedTotal.WithLabelValues(format, "ok").Inc()

	return &Document{
		Filename:    report.Filename(req.Token, format),
		ContentType: s.renderer.ContentType(),
		Data:        data,
	}, nil
}

func (s *RecordingService) discardAudio(name *string) {
	if name == nil {
		return
	}
	if err := s.audio.Delete(*name); err != nil {
		s.logger.Warn("Не удалось удалить аудио",
			slog.String("file", *name),
			slog.String("error", err.Error()),
		)
	}
}

// normalizeNewlines приводит переводы строк к \n.
func normalizeNewlines(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "\r\n", "\n"), "\r", "\n")
}
