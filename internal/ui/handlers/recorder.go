// recorder.go — запись интервью и формирование отчёта.
package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/bmkg-portal/internal/domain/model"
	"github.com/bigkaa/bmkg-portal/internal/report"
	"github.com/bigkaa/bmkg-portal/internal/service"
	"github.com/bigkaa/bmkg-portal/internal/ui/auth"
	"github.com/bigkaa/bmkg-portal/internal/ui/i18n"
	"github.com/bigkaa/bmkg-portal/internal/ui/pages"
)

// DefaultMaxUpload — ограничение размера multipart-формы записи (аудио + текст).
const DefaultMaxUpload = 64 << 20

// RecordingPipeline — запись интервью и рендеринг отчётов.
// Реализуется service.RecordingService.
type RecordingPipeline interface {
	RecordAndRender(ctx context.Context, in service.RecordInput) (*service.Document, error)
	RenderStored(ctx context.Context, recordingID string) (*service.Document, error)
}

// RequestLister — выборка заявок для подсказки токенов на странице записи.
// Реализуется service.RequestService.
type RequestLister interface {
	List(ctx context.Context, filter model.RequestFilter) ([]*model.RequestWithRecording, error)
}

// recordableStatuses — статусы заявок, по которым ещё проводится интервью.
var recordableStatuses = []string{model.StatusPending, model.StatusApproved}

// RecorderHandler — обработчики страницы записи интервью.
type RecorderHandler struct {
	recordings     RecordingPipeline
	requests       RequestLister
	sessionManager *auth.SessionManager
	maxUpload      int64
	logger         *slog.Logger
}

// NewRecorderHandler создаёт новый RecorderHandler.
// maxUpload <= 0 заменяется DefaultMaxUpload.
func NewRecorderHandler(
	recordings RecordingPipeline,
	requests RequestLister,
	sessionManager *auth.SessionManager,
	maxUpload int64,
	logger *slog.Logger,
) *RecorderHandler {
	if maxUpload <= 0 {
		maxUpload = DefaultMaxUpload
	}
	return &RecorderHandler{
		recordings:     recordings,
		requests:       requests,
		sessionManager: sessionManager,
		maxUpload:      maxUpload,
		logger:         logger.With(slog.String("component", "ui.recorder")),
	}
}

// HandleRecorderPage — GET /recorder[?token=].
// Поле токена подсказывает заявки со статусом Pending и Approved.
func (h *RecorderHandler) HandleRecorderPage(w http.ResponseWriter, r *http.Request) {
	h.renderPage(w, r, http.StatusOK, pages.RecorderData{
		Token: r.URL.Query().Get("token"),
	})
}

// renderPage отдаёт страницу записи со списком открытых заявок.
func (h *RecorderHandler) renderPage(w http.ResponseWriter, r *http.Request, status int, data pages.RecorderData) {
	data.Base = pageBase(w, r, h.sessionManager)
	data.Requests = h.openRequests(r.Context())
	render(w, r, status, pages.Recorder(data), h.logger)
}

// openRequests возвращает заявки, по которым можно записать интервью,
// ближайшие по времени первыми. Ошибка выборки не мешает показать форму.
func (h *RecorderHandler) openRequests(ctx context.Context) []pages.RequestChoice {
	if h.requests == nil {
		return nil
	}
	var rows []*model.RequestWithRecording
	for _, status := range recordableStatuses {
		items, err := h.requests.List(ctx, model.RequestFilter{Status: status})
		if err != nil {
			h.logger.Warn("Ошибка выборки заявок для записи",
				slog.String("status", status),
				slog.String("error", err.Error()),
			)
			return nil
		}
		rows = append(rows, items...)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].ScheduledAt.Before(rows[j].ScheduledAt)
	})

	choices := make([]pages.RequestChoice, 0, len(rows))
	for _, row := range rows {
		choices = append(choices, pages.RequestChoice{
			Token:           row.Token,
			Topic:           row.Topic,
			InterviewerName: row.InterviewerName,
			MediaName:       row.MediaName,
		})
	}
	return choices
}

// HandleGenerateReport — POST /generate_report_now (multipart).
// Сохраняет запись интервью и возвращает документ отчёта как вложение.
func (h *RecorderHandler) HandleGenerateReport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || errors.Is(err, multipart.ErrMessageTooLarge) {
			h.logger.Warn("Форма записи превышает лимит",
				slog.Int64("limit", h.maxUpload),
			)
			h.renderPage(w, r, http.StatusRequestEntityTooLarge, pages.RecorderData{
				Error: i18n.Tf(r.Context(), "error.too_large", humanLimit(h.maxUpload)),
			})
			return
		}
		h.logger.Warn("Некорректная форма записи", slog.String("error", err.Error()))
		renderError(w, r, h.sessionManager, http.StatusBadRequest, i18n.T(r.Context(), "error.bad_form"), h.logger)
		return
	}

	in := service.RecordInput{
		Token:       r.FormValue("token"),
		Interviewee: r.FormValue("narasumber"),
		Transcript:  r.FormValue("transkripsi"),
	}

	var audio io.ReadCloser
	if file, _, err := r.FormFile("audio"); err == nil {
		audio = file
		in.Audio = file
	} else if !errors.Is(err, http.ErrMissingFile) && !errors.Is(err, http.ErrNotMultipart) {
		h.logger.Warn("Ошибка чтения аудио", slog.String("error", err.Error()))
	}
	if audio != nil {
		defer audio.Close()
	}

	doc, err := h.recordings.RecordAndRender(r.Context(), in)
	if err != nil {
		status, msg := errorMessage(r.Context(), err, h.logger)
		h.renderPage(w, r, status, pages.RecorderData{
			Token:       in.Token,
			Interviewee: in.Interviewee,
			Transcript:  in.Transcript,
			Error:       msg,
		})
		return
	}

	h.writeDocument(w, doc)
}

// HandleGeneratePDF — GET /generate-pdf/{id}. Повторный рендеринг сохранённой записи.
func (h *RecorderHandler) HandleGeneratePDF(w http.ResponseWriter, r *http.Request) {
	doc, err := h.recordings.RenderStored(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		status, msg := errorMessage(r.Context(), err, h.logger)
		renderError(w, r, h.sessionManager, status, msg, h.logger)
		return
	}
	h.writeDocument(w, doc)
}

func (h *RecorderHandler) writeDocument(w http.ResponseWriter, doc *service.Document) {
	w.Header().Set("Content-Type", doc.ContentType)
	w.Header().Set("Content-Disposition", attachment(doc.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(doc.Data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(doc.Data); err != nil {
		h.logger.Warn("Ошибка отправки документа",
			slog.String("filename", doc.Filename),
			slog.String("error", err.Error()),
		)
	}
}

// humanLimit — лимит загрузки в мегабайтах для сообщения пользователю.
func humanLimit(limit int64) string {
	if limit >= 1<<20 {
		return strconv.FormatInt(limit>>20, 10) + " MB"
	}
	return strconv.FormatInt(limit>>10, 10) + " KB"
}

func isAssetMissing(err error) bool {
	return errors.Is(err, report.ErrAssetMissing)
}
