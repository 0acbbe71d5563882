// portal.go — страницы заявок: главная, форма заявки, исторические данные.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/bmkg-portal/internal/artifacts"
	"github.com/bigkaa/bmkg-portal/internal/domain/model"
	"github.com/bigkaa/bmkg-portal/internal/service"
	"github.com/bigkaa/bmkg-portal/internal/ui/auth"
	"github.com/bigkaa/bmkg-portal/internal/ui/i18n"
	"github.com/bigkaa/bmkg-portal/internal/ui/pages"
)

// RequestLedger — операции журнала заявок, используемые страницами.
// Реализуется service.RequestService.
type RequestLedger interface {
	Submit(ctx context.Context, in service.SubmitInput) (*model.InterviewRequest, error)
	ParseFilter(in service.FilterInput) (model.RequestFilter, error)
	List(ctx context.Context, filter model.RequestFilter) ([]*model.RequestWithRecording, error)
	TransitionStatus(ctx context.Context, token, to string) (*model.InterviewRequest, error)
	Location() *time.Location
}

// FileCatalog — каталог файлов главной страницы (пресс-релизы, слайд-шоу).
// Реализуется *artifacts.Catalog.
type FileCatalog interface {
	List() ([]artifacts.Entry, error)
	Open(name string) (*os.File, error)
}

// PortalHandler — обработчики страниц заявок.
type PortalHandler struct {
	requests       RequestLedger
	press          FileCatalog
	gallery        FileCatalog
	sessionManager *auth.SessionManager
	logger         *slog.Logger
}

// NewPortalHandler создаёт новый PortalHandler.
func NewPortalHandler(
	requests RequestLedger,
	press FileCatalog,
	gallery FileCatalog,
	sessionManager *auth.SessionManager,
	logger *slog.Logger,
) *PortalHandler {
	return &PortalHandler{
		requests:       requests,
		press:          press,
		gallery:        gallery,
		sessionManager: sessionManager,
		logger:         logger.With(slog.String("component", "ui.portal")),
	}
}

// HandleLanding — GET /. Главная страница со слайд-шоу и списком пресс-релизов.
func (h *PortalHandler) HandleLanding(w http.ResponseWriter, r *http.Request) {
	data := pages.LandingData{Base: pageBase(w, r, h.sessionManager)}

	// Главная страница остаётся доступной и без пресс-релизов и изображений
	releases, err := h.press.List()
	if err != nil {
		h.logger.Warn("Ошибка чтения пресс-релизов", slog.String("error", err.Error()))
	}
	for _, rel := range releases {
		data.Releases = append(data.Releases, pages.PressRelease{
			Name: rel.Name, Size: rel.Size, ModifiedAt: rel.ModifiedAt,
		})
	}

	slides, err := h.gallery.List()
	if err != nil {
		h.logger.Warn("Ошибка чтения изображений слайд-шоу", slog.String("error", err.Error()))
	}
	for _, img := range slides {
		data.Slides = append(data.Slides, img.Name)
	}

	render(w, r, http.StatusOK, pages.Landing(data), h.logger)
}

// HandleDownload — GET /download/{filename}. Отдаёт PDF пресс-релиза.
func (h *PortalHandler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "filename")
	h.serveFile(w, r, h.press, name, func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", attachment(name))
	})
}

// HandleImage — GET /images/{filename}. Отдаёт изображение слайд-шоу;
// Content-Type определяется по расширению.
func (h *PortalHandler) HandleImage(w http.ResponseWriter, r *http.Request) {
	h.serveFile(w, r, h.gallery, chi.URLParam(r, "filename"), func(w http.ResponseWriter) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
	})
}

// serveFile отдаёт файл каталога; отсутствующий файл — страница 404.
func (h *PortalHandler) serveFile(
	w http.ResponseWriter,
	r *http.Request,
	catalog FileCatalog,
	name string,
	headers func(http.ResponseWriter),
) {
	f, err := catalog.Open(name)
	if err != nil {
		if !errors.Is(err, artifacts.ErrNotFound) {
			h.logger.Error("Ошибка открытия файла",
				slog.String("filename", name),
				slog.String("error", err.Error()),
			)
		}
		renderError(w, r, h.sessionManager, http.StatusNotFound, i18n.T(r.Context(), "error.page_not_found"), h.logger)
		return
	}
	defer f.Close()

	var modTime time.Time
	if info, err := f.Stat(); err == nil {
		modTime = info.ModTime()
	}
	headers(w)
	http.ServeContent(w, r, name, modTime, f)
}

// methodOptions возвращает варианты способа интервью с переведёнными подписями.
func methodOptions(ctx context.Context, selected string) []pages.Option {
	opts := make([]pages.Option, 0, len(model.Methods))
	for _, m := range model.Methods {
		opts = append(opts, pages.Option{
			Value:    m,
			Label:    i18n.T(ctx, "method."+m),
			Selected: m == selected,
		})
	}
	return opts
}

// HandleRequestForm — GET /request-interview.
func (h *PortalHandler) HandleRequestForm(w http.ResponseWriter, r *http.Request) {
	render(w, r, http.StatusOK, pages.RequestForm(pages.RequestFormData{
		Base:    pageBase(w, r, h.sessionManager),
		Methods: methodOptions(r.Context(), ""),
	}), h.logger)
}

// HandleSubmitRequest — POST /request-interview.
// При успехе показывает токен и WhatsApp deep-link; при ошибке — форму с введёнными значениями.
func (h *PortalHandler) HandleSubmitRequest(w http.ResponseWriter, r *http.Request) {
	in := service.SubmitInput{
		InterviewerName: r.FormValue("interviewer_name"),
		MediaName:       r.FormValue("media_name"),
		Topic:           r.FormValue("topic"),
		Method:          r.FormValue("method"),
		Schedule:        r.FormValue("schedule"),
		MeetingLink:     r.FormValue("meeting_link"),
		ContactEmail:    r.FormValue("contact_email"),
	}

	req, err := h.requests.Submit(r.Context(), in)
	if err != nil {
		status, msg := errorMessage(r.Context(), err, h.logger)
		render(w, r, status, pages.RequestForm(pages.RequestFormData{
			Base:    pageBase(w, r, h.sessionManager),
			Methods: methodOptions(r.Context(), in.Method),
			Values: pages.RequestFormValues{
				InterviewerName: in.InterviewerName,
				MediaName:       in.MediaName,
				Topic:           in.Topic,
				Schedule:        in.Schedule,
				MeetingLink:     in.MeetingLink,
				ContactEmail:    in.ContactEmail,
			},
			Error: msg,
		}), h.logger)
		return
	}

	submitted := &pages.Submitted{
		Token:    req.Token,
		Schedule: req.ScheduledAt.In(h.requests.Location()),
	}
	if req.WhatsAppLink != nil {
		submitted.WhatsAppLink = *req.WhatsAppLink
	}
	render(w, r, http.StatusOK, pages.RequestForm(pages.RequestFormData{
		Base:      pageBase(w, r, h.sessionManager),
		Submitted: submitted,
	}), h.logger)
}

// HandleHistorical — GET /historical-data?q=&status=&date_from=&date_to=.
func (h *PortalHandler) HandleHistorical(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	fv := pages.FilterValues{
		Query:    q.Get("q"),
		Status:   q.Get("status"),
		DateFrom: q.Get("date_from"),
		DateTo:   q.Get("date_to"),
	}
	data := pages.HistoricalData{
		Base:     pageBase(w, r, h.sessionManager),
		Filter:   fv,
		Statuses: h.statusOptions(r.Context(), fv.Status),
	}

	rows, err := h.list(r.Context(), fv)
	if err != nil {
		status, msg := errorMessage(r.Context(), err, h.logger)
		if status == http.StatusUnprocessableEntity {
			status = http.StatusBadRequest
		}
		data.Error = msg
		render(w, r, status, pages.Historical(data), h.logger)
		return
	}

	loc := h.requests.Location()
	for _, row := range rows {
		data.Rows = append(data.Rows, toRow(row, loc))
	}
	render(w, r, http.StatusOK, pages.Historical(data), h.logger)
}

func (h *PortalHandler) list(ctx context.Context, fv pages.FilterValues) ([]*model.RequestWithRecording, error) {
	filter, err := h.requests.ParseFilter(service.FilterInput{
		Query:    fv.Query,
		Status:   fv.Status,
		DateFrom: fv.DateFrom,
		DateTo:   fv.DateTo,
	})
	if err != nil {
		return nil, err
	}
	return h.requests.List(ctx, filter)
}

func (h *PortalHandler) statusOptions(ctx context.Context, selected string) []pages.Option {
	opts := make([]pages.Option, 0, len(model.Statuses))
	for _, s := range model.Statuses {
		opts = append(opts, pages.Option{
			Value:    s,
			Label:    i18n.T(ctx, "status."+s),
			Selected: s == selected,
		})
	}
	return opts
}

// toRow переводит заявку в строку таблицы; время — в часовом поясе портала.
func toRow(row *model.RequestWithRecording, loc *time.Location) pages.RequestRow {
	out := pages.RequestRow{
		Token:           row.Token,
		InterviewerName: row.InterviewerName,
		MediaName:       row.MediaName,
		Topic:           row.Topic,
		Method:          row.Method,
		ScheduledAt:     row.ScheduledAt.In(loc),
		RequestDate:     row.RequestDate.In(loc),
		Status:          row.Status,
		Recordable:      row.Status == model.StatusPending || row.Status == model.StatusApproved,
	}
	if row.WhatsAppLink != nil {
		out.WhatsAppLink = *row.WhatsAppLink
	}
	if row.MeetingLink != nil {
		out.MeetingLink = *row.MeetingLink
	}
	if row.Interviewee != nil {
		out.Interviewee = *row.Interviewee
	}
	if row.RecordingID != nil {
		out.RecordingID = *row.RecordingID
	}
	for _, to := range model.Statuses {
		if model.CanTransition(row.Status, to) {
			out.Transitions = append(out.Transitions, to)
		}
	}
	return out
}

// HandleStatusChange — POST /requests/{token}/status.
// Результат сообщается flash-сообщением на странице исторических данных.
func (h *PortalHandler) HandleStatusChange(w http.ResponseWriter, r *http.Request) {
	tok := chi.URLParam(r, "token")
	req, err := h.requests.TransitionStatus(r.Context(), tok, r.FormValue("status"))
	if err != nil {
		key := "error.internal"
		var fe *service.FieldError
		switch {
		case errors.As(err, &fe):
			key = "error.invalid_transition"
		case errors.Is(err, service.ErrNotFound):
			key = "error.not_found"
		case errors.Is(err, service.ErrInvalidTransition):
			key = "error.invalid_transition"
		default:
			h.logger.Error("Ошибка смены статуса",
				slog.String("token", tok),
				slog.String("error", err.Error()),
			)
		}
		setFlash(w, h.sessionManager, auth.Flash{Kind: auth.FlashError, Key: key}, h.logger)
	} else {
		setFlash(w, h.sessionManager, auth.Flash{Kind: auth.FlashSuccess, Key: "flash.status_changed", Arg: req.Token}, h.logger)
	}
	http.Redirect(w, r, "/historical-data", http.StatusSeeOther)
}

// attachment формирует заголовок Content-Disposition для скачивания.
func attachment(filename string) string {
	return `attachment; filename="` + strings.ReplaceAll(filename, `"`, "") + `"`
}
