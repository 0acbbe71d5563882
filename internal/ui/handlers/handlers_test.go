package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/bmkg-portal/internal/artifacts"
	"github.com/bigkaa/bmkg-portal/internal/domain/model"
	"github.com/bigkaa/bmkg-portal/internal/domain/rbac"
	"github.com/bigkaa/bmkg-portal/internal/report"
	"github.com/bigkaa/bmkg-portal/internal/service"
	"github.com/bigkaa/bmkg-portal/internal/ui/auth"
	"github.com/bigkaa/bmkg-portal/internal/ui/i18n"
)

func TestMain(m *testing.M) {
	bundle := i18n.Init(testLogger())
	if err := i18n.LoadFromEmbedFS(bundle, testLogger()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	os.Exit(m.Run())
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

var jakarta = time.FixedZone("WIB", 7*3600)

// --- Фейки ---

type fakeAuthenticator struct{}

func (fakeAuthenticator) Authenticate(_ context.Context, username, password string) (*model.User, error) {
	if username == "admin" && password == "rahasia" {
		return &model.User{ID: "u1", Username: "admin", Role: rbac.RoleAdmin}, nil
	}
	return nil, service.ErrInvalidCredentials
}

type fakeLedger struct {
	submitErr  error
	submitted  []service.SubmitInput
	rows       []*model.RequestWithRecording
	listErr    error
	transition error
}

func (f *fakeLedger) Submit(_ context.Context, in service.SubmitInput) (*model.InterviewRequest, error) {
	f.submitted = append(f.submitted, in)
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	link := "https://wa.me/6281200000000?text=ABCD2345"
	return &model.InterviewRequest{
		Token:        "ABCD2345",
		ScheduledAt:  time.Date(2025, 1, 10, 2, 0, 0, 0, time.UTC),
		WhatsAppLink: &link,
	}, nil
}

func (f *fakeLedger) ParseFilter(in service.FilterInput) (model.RequestFilter, error) {
	if in.DateFrom == "bad" {
		return model.RequestFilter{}, &service.FieldError{Field: "date_from", Reason: service.ReasonInvalid}
	}
	return model.RequestFilter{Query: in.Query, Status: in.Status}, nil
}

func (f *fakeLedger) List(_ context.Context, filter model.RequestFilter) ([]*model.RequestWithRecording, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	if filter.Status == "" {
		return f.rows, nil
	}
	var out []*model.RequestWithRecording
	for _, row := range f.rows {
		if row.Status == filter.Status {
			out = append(out, row)
		}
	}
	return out, nil
}

func (f *fakeLedger) TransitionStatus(_ context.Context, tok, to string) (*model.InterviewRequest, error) {
	if f.transition != nil {
		return nil, f.transition
	}
	return &model.InterviewRequest{Token: tok, Status: to}, nil
}

func (f *fakeLedger) Location() *time.Location { return jakarta }

type fakePipeline struct {
	err  error
	last service.RecordInput
	body string
}

func (f *fakePipeline) RecordAndRender(_ context.Context, in service.RecordInput) (*service.Document, error) {
	f.last = in
	if in.Audio != nil {
		b, _ := io.ReadAll(in.Audio)
		f.body = string(b)
	}
	if f.err != nil {
		return nil, f.err
	}
	return &service.Document{Filename: "wawancara_ABCD2345.docx", ContentType: "application/test", Data: []byte("DOC")}, nil
}

func (f *fakePipeline) RenderStored(_ context.Context, id string) (*service.Document, error) {
	if id != "rec-1" {
		return nil, service.ErrNotFound
	}
	return &service.Document{Filename: "wawancara_ABCD2345.pdf", ContentType: "application/pdf", Data: []byte("%PDF")}, nil
}

// --- Фикстура ---

type uiFixture struct {
	router   chi.Router
	sm       *auth.SessionManager
	ledger   *fakeLedger
	pipeline *fakePipeline
}

func newUIFixture(t *testing.T) *uiFixture {
	t.Helper()
	sm, err := auth.NewSessionManager("ui-handlers-key", false)
	if err != nil {
		t.Fatalf("NewSessionManager: %v", err)
	}

	pressDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(pressDir, "rilis-gempa.pdf"), []byte("%PDF-1.4"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	imageDir := t.TempDir()
	for _, name := range []string{"banjir.png", "headerbmkg.jpg"} {
		if err := os.WriteFile(filepath.Join(imageDir, name), []byte("\x89PNG\r\n\x1a\n"), 0o600); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}

	ledger := &fakeLedger{}
	pipeline := &fakePipeline{}
	portal := NewPortalHandler(ledger, artifacts.NewPressLibrary(pressDir),
		artifacts.NewGallery(imageDir, []string{"headerbmkg.jpg"}), sm, testLogger())
	authH := NewAuthHandler(fakeAuthenticator{}, sm, testLogger())
	recorder := NewRecorderHandler(pipeline, ledger, sm, 0, testLogger())

	r := chi.NewRouter()
	r.Use(i18n.Middleware())
	r.Get("/", portal.HandleLanding)
	r.Get("/download/{filename}", portal.HandleDownload)
	r.Get("/images/{filename}", portal.HandleImage)
	r.Get("/request-interview", portal.HandleRequestForm)
	r.Post("/request-interview", portal.HandleSubmitRequest)
	r.Get("/historical-data", portal.HandleHistorical)
	r.Post("/requests/{token}/status", portal.HandleStatusChange)
	r.Get("/login", authH.HandleLoginPage)
	r.Post("/login", authH.HandleLogin)
	r.Get("/logout", authH.HandleLogout)
	r.Post("/set-language", HandleSetLanguage)
	r.Get("/recorder", recorder.HandleRecorderPage)
	r.Post("/generate_report_now", recorder.HandleGenerateReport)
	r.Get("/generate-pdf/{id}", recorder.HandleGeneratePDF)

	return &uiFixture{router: r, sm: sm, ledger: ledger, pipeline: pipeline}
}

func (f *uiFixture) get(target string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *uiFixture) postForm(target string, form url.Values, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func cookieNamed(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// --- Тесты ---

func TestLanding(t *testing.T) {
	f := newUIFixture(t)
	rec := f.get("/")
	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "/download/rilis-gempa.pdf") {
		t.Error("главная страница должна содержать ссылку на пресс-релиз")
	}
	if !strings.Contains(body, `src="/images/banjir.png"`) || !strings.Contains(body, "/static/js/slideshow.js") {
		t.Error("главная страница должна содержать слайд-шоу")
	}
	if strings.Contains(body, "headerbmkg.jpg") {
		t.Error("шапка сайта не должна попадать в слайд-шоу")
	}
	if !strings.Contains(body, `lang="id"`) || !strings.Contains(body, "Siaran Pers") {
		t.Error("по умолчанию страница на индонезийском")
	}

	rec = f.get("/", &http.Cookie{Name: i18n.LangCookieName, Value: "en"})
	if !strings.Contains(rec.Body.String(), "Press Releases") {
		t.Error("cookie lang=en должен переключать язык")
	}
}

func TestDownload(t *testing.T) {
	f := newUIFixture(t)

	rec := f.get("/download/rilis-gempa.pdf")
	if rec.Code != http.StatusOK || rec.Body.String() != "%PDF-1.4" {
		t.Fatalf("статус = %d, тело = %q", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Header().Get("Content-Disposition"), "rilis-gempa.pdf") {
		t.Errorf("Content-Disposition = %q", rec.Header().Get("Content-Disposition"))
	}

	for _, name := range []string{"missing.pdf", "..%2Fsecret.pdf", ".hidden.pdf"} {
		if rec := f.get("/download/" + name); rec.Code != http.StatusNotFound {
			t.Errorf("%s: статус = %d, ожидался 404", name, rec.Code)
		}
	}
}

func TestImage(t *testing.T) {
	f := newUIFixture(t)

	tests := []struct {
		name     string
		path     string
		wantCode int
		wantType string
	}{
		{"изображение слайд-шоу", "/images/banjir.png", http.StatusOK, "image/png"},
		{"исключённая шапка", "/images/headerbmkg.jpg", http.StatusNotFound, ""},
		{"нет файла", "/images/missing.gif", http.StatusNotFound, ""},
		{"не изображение", "/images/rilis-gempa.pdf", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.get(tt.path)
			if rec.Code != tt.wantCode {
				t.Fatalf("статус = %d, ожидался %d", rec.Code, tt.wantCode)
			}
			if tt.wantType != "" && rec.Header().Get("Content-Type") != tt.wantType {
				t.Errorf("Content-Type = %q, ожидался %q", rec.Header().Get("Content-Type"), tt.wantType)
			}
		})
	}
}

func TestSubmitRequest(t *testing.T) {
	f := newUIFixture(t)

	rec := f.postForm("/request-interview", url.Values{
		"interviewer_name": {"Siti"},
		"media_name":       {"RCTI"},
		"topic":            {"Banjir"},
		"method":           {"whatsapp"},
		"schedule":         {"2025-01-10T09:00"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "ABCD2345") || !strings.Contains(body, "https://wa.me/6281200000000") {
		t.Error("страница должна показывать токен и WhatsApp-ссылку")
	}
	if !strings.Contains(body, "10-01-2025 09:00") {
		t.Error("время интервью должно отображаться в часовом поясе портала")
	}
	if len(f.ledger.submitted) != 1 || f.ledger.submitted[0].Method != "whatsapp" {
		t.Errorf("submitted = %+v", f.ledger.submitted)
	}
}

func TestSubmitRequest_Errors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantText string
	}{
		{"поле", &service.FieldError{Field: "media_name", Reason: service.ReasonRequired}, http.StatusUnprocessableEntity, "Nama media wajib diisi."},
		{"токены исчерпаны", service.ErrTokenExhausted, http.StatusServiceUnavailable, "Gagal membuat token"},
		{"внутренняя", errors.New("db down"), http.StatusInternalServerError, "Terjadi kesalahan"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newUIFixture(t)
			f.ledger.submitErr = tt.err

			rec := f.postForm("/request-interview", url.Values{
				"interviewer_name": {"Siti"}, "topic": {"Banjir <b>"}, "method": {"zoom"},
			})
			if rec.Code != tt.wantCode {
				t.Fatalf("статус = %d, ожидался %d", rec.Code, tt.wantCode)
			}
			body := rec.Body.String()
			if !strings.Contains(body, tt.wantText) {
				t.Errorf("нет сообщения %q", tt.wantText)
			}
			if !strings.Contains(body, "Banjir &lt;b&gt;") {
				t.Error("введённые значения должны возвращаться в форму экранированными")
			}
			if strings.Contains(body, "db down") {
				t.Error("внутренняя ошибка не должна попадать на страницу")
			}
		})
	}
}

func TestLoginLogout(t *testing.T) {
	f := newUIFixture(t)

	rec := f.postForm("/login", url.Values{"username": {"admin"}, "password": {"salah"}})
	if rec.Code != http.StatusUnauthorized || cookieNamed(rec, auth.SessionCookieName) != nil {
		t.Fatalf("неверный пароль: статус = %d", rec.Code)
	}

	rec = f.postForm("/login", url.Values{"username": {"admin"}, "password": {"rahasia"}})
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/historical-data" {
		t.Fatalf("вход: статус = %d, Location = %q", rec.Code, rec.Header().Get("Location"))
	}
	session := cookieNamed(rec, auth.SessionCookieName)
	if session == nil {
		t.Fatal("session cookie не установлен")
	}
	flash := cookieNamed(rec, auth.FlashCookieName)

	rec = f.get("/historical-data", session, flash)
	if !strings.Contains(rec.Body.String(), "Selamat datang, admin.") {
		t.Error("после входа ожидалось приветственное flash-сообщение")
	}

	rec = f.get("/login", session)
	if rec.Code != http.StatusFound {
		t.Errorf("вошедший пользователь на /login: статус = %d", rec.Code)
	}

	rec = f.get("/logout", session)
	if c := cookieNamed(rec, auth.SessionCookieName); c == nil || c.MaxAge >= 0 {
		t.Error("logout должен удалять session cookie")
	}
}

func TestSetLanguage(t *testing.T) {
	f := newUIFixture(t)

	tests := []struct {
		lang, redirect   string
		wantLang, wantTo string
	}{
		{"en", "/historical-data?q=siti", "en", "/historical-data?q=siti"},
		{"ru", "/", "id", "/"},
		{"en", "https://evil.example", "en", "/"},
		{"en", "//evil.example", "en", "/"},
	}
	for _, tt := range tests {
		rec := f.postForm("/set-language", url.Values{"lang": {tt.lang}, "redirect": {tt.redirect}})
		if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != tt.wantTo {
			t.Errorf("%s → %q: статус = %d, Location = %q", tt.lang, tt.redirect, rec.Code, rec.Header().Get("Location"))
		}
		if c := cookieNamed(rec, i18n.LangCookieName); c == nil || c.Value != tt.wantLang {
			t.Errorf("cookie lang = %v, ожидался %s", c, tt.wantLang)
		}
	}
}

func TestHistorical(t *testing.T) {
	f := newUIFixture(t)
	recID, interviewee := "rec-1", "Budi"
	f.ledger.rows = []*model.RequestWithRecording{
		{
			InterviewRequest: model.InterviewRequest{
				Token: "ABCD2345", InterviewerName: "Siti", MediaName: "RCTI", Topic: "Banjir",
				Method: model.MethodZoom, Status: model.StatusApproved,
				ScheduledAt: time.Date(2025, 1, 10, 2, 0, 0, 0, time.UTC),
				RequestDate: time.Date(2025, 1, 5, 1, 0, 0, 0, time.UTC),
			},
			RecordingID: &recID, Interviewee: &interviewee,
		},
	}

	adminCookie := sessionCookie(t, f.sm, rbac.RoleAdmin)
	rec := f.get("/historical-data?status=Approved", adminCookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"ABCD2345", "Budi", "10-01-2025 09:00", "/generate-pdf/rec-1", "/recorder?token=ABCD2345", `name="status" value="Completed"`, `name="status" value="Canceled"`} {
		if !strings.Contains(body, want) {
			t.Errorf("страница не содержит %q", want)
		}
	}
	if strings.Contains(body, `name="status" value="Approved"`) {
		t.Error("переход Approved → Approved не должен предлагаться")
	}

	userCookie := sessionCookie(t, f.sm, rbac.RoleUser)
	if body := f.get("/historical-data", userCookie).Body.String(); strings.Contains(body, "/generate-pdf/") {
		t.Error("пользователю без роли admin не показываются действия")
	}

	rec = f.get("/historical-data?date_from=bad", adminCookie)
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "Tanggal mulai tidak valid.") {
		t.Errorf("некорректный фильтр: статус = %d", rec.Code)
	}
}

func TestStatusChange(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantText string
	}{
		{"успех", nil, "Status permohonan ABCD2345 diperbarui."},
		{"недопустимый переход", service.ErrInvalidTransition, "Perubahan status tidak diizinkan."},
		{"нет заявки", service.ErrNotFound, "Permohonan tidak ditemukan."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newUIFixture(t)
			f.ledger.transition = tt.err
			session := sessionCookie(t, f.sm, rbac.RoleAdmin)

			rec := f.postForm("/requests/ABCD2345/status", url.Values{"status": {"Completed"}}, session)
			if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/historical-data" {
				t.Fatalf("статус = %d", rec.Code)
			}
			page := f.get("/historical-data", session, cookieNamed(rec, auth.FlashCookieName))
			if !strings.Contains(page.Body.String(), tt.wantText) {
				t.Errorf("нет flash-сообщения %q", tt.wantText)
			}
		})
	}
}

func TestGenerateReport(t *testing.T) {
	f := newUIFixture(t)

	body, contentType := multipartBody(t, map[string]string{
		"token": "ABCD2345", "narasumber": "Budi", "transkripsi": "Line1\nLine2",
	}, "webm-bytes")
	req := httptest.NewRequest(http.MethodPost, "/generate_report_now", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || rec.Body.String() != "DOC" {
		t.Fatalf("статус = %d, тело = %q", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Header().Get("Content-Disposition"), "wawancara_ABCD2345.docx") {
		t.Errorf("Content-Disposition = %q", rec.Header().Get("Content-Disposition"))
	}
	if f.pipeline.last.Interviewee != "Budi" || f.pipeline.last.Transcript != "Line1\nLine2" || f.pipeline.body != "webm-bytes" {
		t.Errorf("вход конвейера = %+v, аудио = %q", f.pipeline.last, f.pipeline.body)
	}
}

func TestGenerateReport_Errors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"неизвестный токен", service.ErrNotFound, http.StatusNotFound},
		{"нет шаблона", fmt.Errorf("рендеринг: %w", report.ErrAssetMissing), http.StatusServiceUnavailable},
		{"нет собеседника", &service.FieldError{Field: "interviewee", Reason: service.ReasonRequired}, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newUIFixture(t)
			f.pipeline.err = tt.err

			rec := f.postForm("/generate_report_now", url.Values{
				"token": {"ZZZZ2222"}, "narasumber": {"Budi"}, "transkripsi": {"teks"},
			})
			if rec.Code != tt.wantCode {
				t.Fatalf("статус = %d, ожидался %d", rec.Code, tt.wantCode)
			}
			if !strings.Contains(rec.Body.String(), "teks") {
				t.Error("транскрипт должен сохраняться в форме после ошибки")
			}
		})
	}
}

func TestGeneratePDF(t *testing.T) {
	f := newUIFixture(t)

	rec := f.get("/generate-pdf/rec-1")
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "application/pdf" {
		t.Fatalf("статус = %d, Content-Type = %q", rec.Code, rec.Header().Get("Content-Type"))
	}
	if rec := f.get("/generate-pdf/unknown"); rec.Code != http.StatusNotFound {
		t.Errorf("неизвестная запись: статус = %d", rec.Code)
	}
}

// sessionCookie выпускает cookie сессии с ролью role.
func sessionCookie(t *testing.T, sm *auth.SessionManager, role string) *http.Cookie {
	t.Helper()
	rec := httptest.NewRecorder()
	if err := sm.SetSessionCookie(rec, &auth.SessionData{
		UserID: "u1", Username: "operator", Role: role, ExpiresAt: time.Now().Add(time.Hour).Unix(),
	}); err != nil {
		t.Fatalf("SetSessionCookie: %v", err)
	}
	return cookieNamed(rec, auth.SessionCookieName)
}
