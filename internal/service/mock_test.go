package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/bmkg-portal/internal/domain/model"
	"github.com/bigkaa/bmkg-portal/internal/report"
	"github.com/bigkaa/bmkg-portal/internal/repository"
)

// testLogger создаёт logger для тестов.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// --- Пользователи ---

// memUserRepo — in-memory UserRepository.
type memUserRepo struct {
	mu    sync.Mutex
	users map[string]*model.User
	err   error
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: make(map[string]*model.User)}
}

func (m *memUserRepo) CreateIfAbsent(_ context.Context, u *model.User) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	if _, ok := m.users[u.Username]; ok {
		return false, nil
	}
	cp := *u
	cp.CreatedAt = time.Now()
	m.users[u.Username] = &cp
	return true, nil
}

func (m *memUserRepo) GetByUsername(_ context.Context, username string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[username]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memUserRepo) GetByID(_ context.Context, id string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.ID == id {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

// fakeTx — TxRunner, вызывающий fn без реальной транзакции.
// При ошибке fn восстанавливает снимок пользователей.
type fakeTx struct {
	users *memUserRepo
	calls int
}

func (f *fakeTx) RunInTx(_ context.Context, fn func(tx pgx.Tx) error) error {
	f.calls++
	f.users.mu.Lock()
	snapshot := make(map[string]*model.User, len(f.users.users))
	for k, v := range f.users.users {
		snapshot[k] = v
	}
	f.users.mu.Unlock()

	if err := fn(nil); err != nil {
		f.users.mu.Lock()
		f.users.users = snapshot
		f.users.mu.Unlock()
		return err
	}
	return nil
}

// --- Заявки ---

// memRequestRepo — in-memory InterviewRequestRepository.
type memRequestRepo struct {
	mu         sync.Mutex
	byToken    map[string]*model.InterviewRequest
	recordings *memRecordingRepo
	// collisions — сколько первых Create вернут ErrTokenTaken
	collisions int
	createErr  error
	creates    int
	lastFilter model.RequestFilter
	clock      time.Time
}

func newMemRequestRepo() *memRequestRepo {
	return &memRequestRepo{
		byToken: make(map[string]*model.InterviewRequest),
		clock:   time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC),
	}
}

func (m *memRequestRepo) Create(_ context.Context, req *model.InterviewRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creates++
	if m.createErr != nil {
		return m.createErr
	}
	if m.collisions > 0 {
		m.collisions--
		return repository.ErrTokenTaken
	}
	if _, ok := m.byToken[req.Token]; ok {
		return repository.ErrTokenTaken
	}
	m.clock = m.clock.Add(time.Minute)
	req.RequestDate = m.clock
	req.UpdatedAt = m.clock
	cp := *req
	m.byToken[req.Token] = &cp
	return nil
}

func (m *memRequestRepo) GetByToken(_ context.Context, token string) (*model.InterviewRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.byToken[token]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *req
	return &cp, nil
}

func (m *memRequestRepo) GetByID(_ context.Context, id string) (*model.InterviewRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, req := range m.byToken {
		if req.ID == id {
			cp := *req
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memRequestRepo) List(_ context.Context, filter model.RequestFilter) ([]*model.RequestWithRecording, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastFilter = filter

	var result []*model.RequestWithRecording
	for _, req := range m.byToken {
		if filter.Status != "" && req.Status != filter.Status {
			continue
		}
		result = append(result, &model.RequestWithRecording{InterviewRequest: *req})
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].RequestDate.After(result[j].RequestDate)
	})
	return result, nil
}

func (m *memRequestRepo) UpdateStatus(_ context.Context, token string, from []string, to string) (*model.InterviewRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.byToken[token]
	if !ok {
		return nil, repository.ErrNotFound
	}
	for _, s := range from {
		if req.Status == s {
			req.Status = to
			cp := *req
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("%w: статус %s", repository.ErrConflict, req.Status)
}

// --- Записи ---

// memRecordingRepo — in-memory RecordingRepository.
type memRecordingRepo struct {
	mu        sync.Mutex
	byRequest map[string]*model.Recording
	upserts   int
	upsertErr error
}

func newMemRecordingRepo() *memRecordingRepo {
	return &memRecordingRepo{byRequest: make(map[string]*model.Recording)}
}

func (m *memRecordingRepo) Upsert(_ context.Context, rec *model.Recording) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts++
	if m.upsertErr != nil {
		return m.upsertErr
	}
	if existing, ok := m.byRequest[rec.RequestID]; ok {
		rec.ID = existing.ID
		rec.CreatedAt = existing.CreatedAt
	} else {
		rec.CreatedAt = time.Now()
	}
	rec.UpdatedAt = time.Now()
	cp := *rec
	m.byRequest[rec.RequestID] = &cp
	return nil
}

func (m *memRecordingRepo) GetByID(_ context.Context, id string) (*model.Recording, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.byRequest {
		if rec.ID == id {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memRecordingRepo) GetByRequestID(_ context.Context, requestID string) (*model.Recording, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.byRequest[requestID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

// --- Ключевые слова ---

// mockKeywordRepo — мок KeywordRepository со счётчиком вызовов.
type mockKeywordRepo struct {
	words       []model.KeywordResult
	topCalls    int
	searchCalls int
	lastLimit   int
	err         error
}

func (m *mockKeywordRepo) Top(_ context.Context, limit int) ([]model.KeywordResult, error) {
	m.topCalls++
	m.lastLimit = limit
	if m.err != nil {
		return nil, m.err
	}
	if limit > len(m.words) {
		limit = len(m.words)
	}
	return m.words[:limit], nil
}

func (m *mockKeywordRepo) Search(_ context.Context, keyword string) ([]model.KeywordResult, error) {
	m.searchCalls++
	if m.err != nil {
		return nil, m.err
	}
	result := []model.KeywordResult{}
	for _, w := range m.words {
		if bytes.Contains(bytes.ToLower([]byte(w.Word)), bytes.ToLower([]byte(keyword))) {
			result = append(result, w)
		}
	}
	return result, nil
}

// --- Вспомогательные зависимости ---

// seqTokens — TokenSource, выдающий токены по порядку.
type seqTokens struct {
	tokens []string
	i      int
}

func (s *seqTokens) New() (string, error) {
	if s.i >= len(s.tokens) {
		return "", io.ErrUnexpectedEOF
	}
	tok := s.tokens[s.i]
	s.i++
	return tok, nil
}

// recordingPublisher — EventPublisher, запоминающий события.
type recordingPublisher struct {
	events []*model.InterviewRequest
	accept bool
}

func (p *recordingPublisher) Publish(req *model.InterviewRequest) bool {
	p.events = append(p.events, req)
	return p.accept
}

// memAudio — in-memory AudioStore.
type memAudio struct {
	files   map[string][]byte
	deleted []string
	saveErr error
}

func newMemAudio() *memAudio {
	return &memAudio{files: make(map[string][]byte)}
}

func (a *memAudio) Save(r io.Reader, token string, at time.Time) (string, int64, error) {
	if a.saveErr != nil {
		return "", 0, a.saveErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", 0, err
	}
	name := fmt.Sprintf("rekaman_%s_%s.webm", token, at.Format("20060102150405"))
	a.files[name] = data
	return name, int64(len(data)), nil
}

func (a *memAudio) Delete(name string) error {
	a.deleted = append(a.deleted, name)
	delete(a.files, name)
	return nil
}

// stubRenderer — Renderer, возвращающий поля в виде текста.
type stubRenderer struct {
	err    error
	calls  int
	fields report.Fields
}

func (r *stubRenderer) Render(f report.Fields) ([]byte, error) {
	r.calls++
	r.fields = f
	if r.err != nil {
		return nil, r.err
	}
	return []byte(f.Pewawancara + "|" + f.Narasumber + "|" + f.Transkripsi), nil
}

func (r *stubRenderer) Format() string      { return report.FormatDOCX }
func (r *stubRenderer) ContentType() string { return "application/test" }
func (r *stubRenderer) Check() error        { return r.err }
