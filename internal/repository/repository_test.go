package repository

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/bigkaa/bmkg-portal/internal/config"
	"github.com/bigkaa/bmkg-portal/internal/database"
	"github.com/bigkaa/bmkg-portal/internal/domain/model"
)

// setupTestDB запускает PostgreSQL контейнер и применяет миграции.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("Пропуск интеграционного теста: TEST_INTEGRATION не установлена")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("bmkg_test"),
		postgres.WithUsername("bmkg"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Не удалось запустить PostgreSQL контейнер: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Ошибка остановки контейнера: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Не удалось получить host контейнера: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Не удалось получить port контейнера: %v", err)
	}

	t.Setenv("BP_ENV_FILE", "")
	t.Setenv("BP_DB_HOST", host)
	t.Setenv("BP_DB_PORT", port.Port())
	t.Setenv("BP_DB_NAME", "bmkg_test")
	t.Setenv("BP_DB_USER", "bmkg")
	t.Setenv("BP_DB_PASSWORD", "test-password")
	t.Setenv("BP_SEED_ADMIN_PASSWORD", "admin")
	t.Setenv("BP_WHATSAPP_PHONE", "6281234567890")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	if err := database.Migrate(cfg, logger); err != nil {
		t.Fatalf("Ошибка миграций: %v", err)
	}

	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("Ошибка подключения: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	return pool
}

func newRequest(token, interviewer, media, topic string) *model.InterviewRequest {
	return &model.InterviewRequest{
		ID:              uuid.New().String(),
		Token:           token,
		InterviewerName: interviewer,
		MediaName:       media,
		Topic:           topic,
		Method:          model.MethodWhatsApp,
		ScheduledAt:     time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC),
		Status:          model.StatusPending,
	}
}

// --- UserRepository ---

func TestUserCreateIfAbsent(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewUserRepository(pool)

	u := &model.User{ID: uuid.New().String(), Username: "admin", PasswordHash: "hash-1", Role: "admin"}
	created, err := repo.CreateIfAbsent(ctx, u)
	if err != nil {
		t.Fatalf("CreateIfAbsent() ошибка: %v", err)
	}
	if !created {
		t.Fatal("CreateIfAbsent() = false для нового пользователя")
	}

	// Повторное создание не перезаписывает пароль
	again := &model.User{ID: uuid.New().String(), Username: "admin", PasswordHash: "hash-2", Role: "user"}
	created, err = repo.CreateIfAbsent(ctx, again)
	if err != nil {
		t.Fatalf("повторный CreateIfAbsent() ошибка: %v", err)
	}
	if created {
		t.Error("CreateIfAbsent() = true для существующего пользователя")
	}

	got, err := repo.GetByUsername(ctx, "admin")
	if err != nil {
		t.Fatalf("GetByUsername() ошибка: %v", err)
	}
	if got.PasswordHash != "hash-1" || got.Role != "admin" {
		t.Errorf("пользователь изменён: hash=%q role=%q", got.PasswordHash, got.Role)
	}

	byID, err := repo.GetByID(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetByID() ошибка: %v", err)
	}
	if byID.Username != "admin" {
		t.Errorf("Username = %q, ожидается admin", byID.Username)
	}

	if _, err := repo.GetByUsername(ctx, "ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByUsername(ghost) = %v, ожидается ErrNotFound", err)
	}
	if _, err := repo.GetByID(ctx, "not-a-uuid"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID(not-a-uuid) = %v, ожидается ErrNotFound", err)
	}
}

// --- InterviewRequestRepository ---

func TestInterviewRequestCreateAndGet(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewInterviewRequestRepository(pool)

	link := "https://wa.me/6281234567890?text=x"
	req := newRequest("ABCD2345", "Siti", "RCTI", "Banjir")
	req.WhatsAppLink = &link

	if err := repo.Create(ctx, req); err != nil {
		t.Fatalf("Create() ошибка: %v", err)
	}
	if req.RequestDate.IsZero() {
		t.Error("RequestDate не установлен")
	}

	got, err := repo.GetByToken(ctx, "ABCD2345")
	if err != nil {
		t.Fatalf("GetByToken() ошибка: %v", err)
	}
	if got.InterviewerName != "Siti" || got.MediaName != "RCTI" || got.Topic != "Banjir" {
		t.Errorf("поля заявки не совпадают: %+v", got)
	}
	if got.Status != model.StatusPending {
		t.Errorf("Status = %q, ожидается Pending", got.Status)
	}
	if got.WhatsAppLink == nil || *got.WhatsAppLink != link {
		t.Errorf("WhatsAppLink = %v, ожидается %q", got.WhatsAppLink, link)
	}
	if !got.ScheduledAt.Equal(req.ScheduledAt) {
		t.Errorf("ScheduledAt = %v, ожидается %v", got.ScheduledAt, req.ScheduledAt)
	}

	// Коллизия токена
	dup := newRequest("ABCD2345", "Budi", "TVRI", "Gempa")
	if err := repo.Create(ctx, dup); !errors.Is(err, ErrTokenTaken) {
		t.Errorf("Create() с занятым токеном = %v, ожидается ErrTokenTaken", err)
	}
	if !errors.Is(ErrTokenTaken, ErrConflict) {
		t.Error("ErrTokenTaken должен оборачивать ErrConflict")
	}

	if _, err := repo.GetByToken(ctx, "ZZZZ9999"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByToken(неизвестный) = %v, ожидается ErrNotFound", err)
	}
}

func TestInterviewRequestList(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewInterviewRequestRepository(pool)
	recRepo := NewRecordingRepository(pool)

	reqs := []*model.InterviewRequest{
		newRequest("AAAA2222", "Siti", "RCTI", "Banjir Jakarta"),
		newRequest("BBBB3333", "Budi", "Kompas", "Gempa"),
		newRequest("CCCC4444", "Ani", "TVRI", "Cuaca ekstrem"),
	}
	for _, r := range reqs {
		if err := repo.Create(ctx, r); err != nil {
			t.Fatalf("Create(%s) ошибка: %v", r.Token, err)
		}
	}
	// Разносим даты подачи, чтобы проверить порядок и диапазон
	dates := map[string]time.Time{
		"AAAA2222": time.Date(2025, 1, 5, 10, 0, 0, 0, time.UTC),
		"BBBB3333": time.Date(2025, 1, 20, 23, 30, 0, 0, time.UTC),
		"CCCC4444": time.Date(2025, 2, 1, 8, 0, 0, 0, time.UTC),
	}
	for tok, d := range dates {
		if _, err := pool.Exec(ctx, `UPDATE interview_requests SET request_date = $2 WHERE token = $1`, tok, d); err != nil {
			t.Fatalf("ошибка установки request_date: %v", err)
		}
	}
	if _, err := repo.UpdateStatus(ctx, "BBBB3333", []string{model.StatusPending}, model.StatusApproved); err != nil {
		t.Fatalf("UpdateStatus() ошибка: %v", err)
	}
	rec := &model.Recording{
		ID: uuid.New().String(), RequestID: reqs[0].ID, Interviewee: "Dr. Dwikorita",
		RecordedAt: time.Now(), Transcript: "x",
	}
	if err := recRepo.Upsert(ctx, rec); err != nil {
		t.Fatalf("Upsert() ошибка: %v", err)
	}

	t.Run("без фильтров — все, по убыванию даты", func(t *testing.T) {
		got, err := repo.List(ctx, model.RequestFilter{})
		if err != nil {
			t.Fatalf("List() ошибка: %v", err)
		}
		want := []string{"CCCC4444", "BBBB3333", "AAAA2222"}
		if len(got) != len(want) {
			t.Fatalf("len = %d, ожидается %d", len(got), len(want))
		}
		for i, tok := range want {
			if got[i].Token != tok {
				t.Errorf("[%d].Token = %s, ожидается %s", i, got[i].Token, tok)
			}
		}
		// LEFT JOIN: запись есть только у первой заявки
		last := got[2]
		if last.RecordingID == nil || *last.RecordingID != rec.ID {
			t.Errorf("RecordingID = %v, ожидается %s", last.RecordingID, rec.ID)
		}
		if last.Interviewee == nil || *last.Interviewee != "Dr. Dwikorita" {
			t.Errorf("Interviewee = %v", last.Interviewee)
		}
		if got[0].RecordingID != nil {
			t.Errorf("RecordingID = %v для заявки без записи", *got[0].RecordingID)
		}
	})

	t.Run("подстрока без учёта регистра", func(t *testing.T) {
		got, err := repo.List(ctx, model.RequestFilter{Query: "banjir"})
		if err != nil {
			t.Fatalf("List() ошибка: %v", err)
		}
		if len(got) != 1 || got[0].Token != "AAAA2222" {
			t.Errorf("List(banjir) = %d строк, ожидается AAAA2222", len(got))
		}
	})

	t.Run("поиск по токену", func(t *testing.T) {
		got, err := repo.List(ctx, model.RequestFilter{Query: "cccc"})
		if err != nil {
			t.Fatalf("List() ошибка: %v", err)
		}
		if len(got) != 1 || got[0].Token != "CCCC4444" {
			t.Errorf("List(cccc) вернул %d строк", len(got))
		}
	})

	t.Run("статус", func(t *testing.T) {
		got, err := repo.List(ctx, model.RequestFilter{Status: model.StatusPending})
		if err != nil {
			t.Fatalf("List() ошибка: %v", err)
		}
		if len(got) != 2 {
			t.Errorf("len = %d, ожидается 2", len(got))
		}
		for _, r := range got {
			if r.Status != model.StatusPending {
				t.Errorf("Status = %s, ожидается Pending", r.Status)
			}
		}
	})

	t.Run("диапазон дат включает весь последний день", func(t *testing.T) {
		from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
		to := time.Date(2025, 1, 20, 0, 0, 0, 0, time.UTC)
		got, err := repo.List(ctx, model.RequestFilter{From: &from, To: &to})
		if err != nil {
			t.Fatalf("List() ошибка: %v", err)
		}
		if len(got) != 2 || got[0].Token != "BBBB3333" || got[1].Token != "AAAA2222" {
			t.Errorf("List(диапазон) вернул %d строк", len(got))
		}
	})
}

func TestInterviewRequestUpdateStatus(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewInterviewRequestRepository(pool)

	req := newRequest("DDDD5555", "Siti", "RCTI", "Banjir")
	if err := repo.Create(ctx, req); err != nil {
		t.Fatalf("Create() ошибка: %v", err)
	}

	updated, err := repo.UpdateStatus(ctx, "DDDD5555", []string{model.StatusPending}, model.StatusApproved)
	if err != nil {
		t.Fatalf("UpdateStatus() ошибка: %v", err)
	}
	if updated.Status != model.StatusApproved {
		t.Errorf("Status = %s, ожидается Approved", updated.Status)
	}

	// Повторный переход из Pending уже невозможен
	_, err = repo.UpdateStatus(ctx, "DDDD5555", []string{model.StatusPending}, model.StatusApproved)
	if !errors.Is(err, ErrConflict) {
		t.Errorf("UpdateStatus() = %v, ожидается ErrConflict", err)
	}

	_, err = repo.UpdateStatus(ctx, "ZZZZ9999", []string{model.StatusPending}, model.StatusApproved)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateStatus(неизвестный) = %v, ожидается ErrNotFound", err)
	}
}

// --- RecordingRepository ---

func TestRecordingUpsertLastWriteWins(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	reqRepo := NewInterviewRequestRepository(pool)
	repo := NewRecordingRepository(pool)

	req := newRequest("EEEE6666", "Siti", "RCTI", "Banjir")
	if err := reqRepo.Create(ctx, req); err != nil {
		t.Fatalf("Create() ошибка: %v", err)
	}

	first := &model.Recording{
		ID: uuid.New().String(), RequestID: req.ID, Interviewee: "Budi",
		RecordedAt: time.Now(), Transcript: "A",
	}
	if err := repo.Upsert(ctx, first); err != nil {
		t.Fatalf("Upsert(A) ошибка: %v", err)
	}

	name := "rekaman_EEEE6666_20250110090000.webm"
	second := &model.Recording{
		ID: uuid.New().String(), RequestID: req.ID, Interviewee: "Budi",
		RecordedAt: time.Now(), Transcript: "B", Filename: &name,
	}
	if err := repo.Upsert(ctx, second); err != nil {
		t.Fatalf("Upsert(B) ошибка: %v", err)
	}
	// Существующая строка сохраняет свой ID
	if second.ID != first.ID {
		t.Errorf("ID после upsert = %s, ожидается %s", second.ID, first.ID)
	}

	var count int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM audio_recordings WHERE request_id = $1`, req.ID).Scan(&count); err != nil {
		t.Fatalf("ошибка подсчёта: %v", err)
	}
	if count != 1 {
		t.Errorf("записей = %d, ожидается 1", count)
	}

	got, err := repo.GetByRequestID(ctx, req.ID)
	if err != nil {
		t.Fatalf("GetByRequestID() ошибка: %v", err)
	}
	if got.Transcript != "B" {
		t.Errorf("Transcript = %q, ожидается B", got.Transcript)
	}
	if got.Filename == nil || *got.Filename != name {
		t.Errorf("Filename = %v, ожидается %s", got.Filename, name)
	}

	byID, err := repo.GetByID(ctx, first.ID)
	if err != nil {
		t.Fatalf("GetByID() ошибка: %v", err)
	}
	if byID.RequestID != req.ID {
		t.Errorf("RequestID = %s, ожидается %s", byID.RequestID, req.ID)
	}

	if _, err := repo.GetByID(ctx, uuid.New().String()); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID(неизвестный) = %v, ожидается ErrNotFound", err)
	}
}

func TestRecordingCascadeDelete(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	reqRepo := NewInterviewRequestRepository(pool)
	repo := NewRecordingRepository(pool)

	req := newRequest("FFFF7777", "Siti", "RCTI", "Banjir")
	if err := reqRepo.Create(ctx, req); err != nil {
		t.Fatalf("Create() ошибка: %v", err)
	}
	rec := &model.Recording{ID: uuid.New().String(), RequestID: req.ID, Interviewee: "Budi", RecordedAt: time.Now()}
	if err := repo.Upsert(ctx, rec); err != nil {
		t.Fatalf("Upsert() ошибка: %v", err)
	}

	if _, err := pool.Exec(ctx, `DELETE FROM interview_requests WHERE id = $1`, req.ID); err != nil {
		t.Fatalf("ошибка удаления заявки: %v", err)
	}
	if _, err := repo.GetByID(ctx, rec.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("запись не удалена каскадно: %v", err)
	}
}

// --- KeywordRepository ---

func TestKeywordTopAndSearch(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewKeywordRepository(pool)

	_, err := pool.Exec(ctx, `
		INSERT INTO keyword_results (word, weight) VALUES
			('banjir', 42), ('gempa', 30), ('banjir rob', 12), ('cuaca', 7)`)
	if err != nil {
		t.Fatalf("ошибка заполнения keyword_results: %v", err)
	}

	top, err := repo.Top(ctx, 2)
	if err != nil {
		t.Fatalf("Top() ошибка: %v", err)
	}
	if len(top) != 2 || top[0].Word != "banjir" || top[1].Word != "gempa" {
		t.Errorf("Top(2) = %v", top)
	}

	found, err := repo.Search(ctx, "BANJIR")
	if err != nil {
		t.Fatalf("Search() ошибка: %v", err)
	}
	if len(found) != 2 || found[0].Word != "banjir" || found[1].Word != "banjir rob" {
		t.Errorf("Search(BANJIR) = %v", found)
	}

	none, err := repo.Search(ctx, "tsunami")
	if err != nil {
		t.Fatalf("Search() ошибка: %v", err)
	}
	if none == nil || len(none) != 0 {
		t.Errorf("Search(tsunami) = %v, ожидается пустой срез", none)
	}
}

// --- TxRunner ---

func TestTxRunnerRollback(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	runner := NewTxRunner(pool)

	sentinel := errors.New("откат")
	err := runner.RunInTx(ctx, func(tx pgx.Tx) error {
		repo := NewUserRepository(tx)
		if _, err := repo.CreateIfAbsent(ctx, &model.User{
			ID: uuid.New().String(), Username: "temp", PasswordHash: "h", Role: "user",
		}); err != nil {
			return err
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("RunInTx() = %v, ожидается sentinel", err)
	}

	if _, err := NewUserRepository(pool).GetByUsername(ctx, "temp"); !errors.Is(err, ErrNotFound) {
		t.Errorf("пользователь сохранён после отката: %v", err)
	}
}
