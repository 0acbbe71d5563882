package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/bmkg-portal/internal/domain/model"
)

// ErrTokenTaken — токен уже занят другой заявкой.
var ErrTokenTaken = fmt.Errorf("%w: токен заявки уже используется", ErrConflict)

// InterviewRequestRepository — доступ к таблице interview_requests.
type InterviewRequestRepository interface {
	// Create вставляет новую заявку. При коллизии токена возвращает ErrTokenTaken.
	Create(ctx context.Context, req *model.InterviewRequest) error
	// GetByToken возвращает заявку по токену.
	GetByToken(ctx context.Context, token string) (*model.InterviewRequest, error)
	// GetByID возвращает заявку по UUID.
	GetByID(ctx context.Context, id string) (*model.InterviewRequest, error)
	// List возвращает заявки с записями, отфильтрованные и упорядоченные по request_date DESC.
	List(ctx context.Context, filter model.RequestFilter) ([]*model.RequestWithRecording, error)
	// UpdateStatus переводит заявку в статус to, если текущий статус входит в from.
	// ErrNotFound — заявки нет; ErrConflict — текущий статус не допускает перехода.
	UpdateStatus(ctx context.Context, token string, from []string, to string) (*model.InterviewRequest, error)
}

type interviewRequestRepo struct {
	db DBTX
}

// NewInterviewRequestRepository создаёт репозиторий заявок.
func NewInterviewRequestRepository(db DBTX) InterviewRequestRepository {
	return &interviewRequestRepo{db: db}
}

const requestColumns = `r.id, r.token, r.interviewer_name, r.media_name, r.topic, r.method,
	r.scheduled_at, r.meeting_link, r.contact_email, r.status, r.whatsapp_link,
	r.request_date, r.updated_at`

func requestScanTargets(req *model.InterviewRequest) []any {
	return []any{
		&req.ID, &req.Token, &req.InterviewerName, &req.MediaName, &req.Topic, &req.Method,
		&req.ScheduledAt, &req.MeetingLink, &req.ContactEmail, &req.Status, &req.WhatsAppLink,
		&req.RequestDate, &req.UpdatedAt,
	}
}

func (r *interviewRequestRepo) Create(ctx context.Context, req *model.InterviewRequest) error {
	query := `
		INSERT INTO interview_requests (id, token, interviewer_name, media_name, topic, method,
			scheduled_at, meeting_link, contact_email, status, whatsapp_link)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING request_date, updated_at`

	err := r.db.QueryRow(ctx, query,
		req.ID, req.Token, req.InterviewerName, req.MediaName, req.Topic, req.Method,
		req.ScheduledAt, req.MeetingLink, req.ContactEmail, req.Status, req.WhatsAppLink,
	).Scan(&req.RequestDate, &req.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			if strings.Contains(uniqueConstraint(err), "token") {
				return ErrTokenTaken
			}
			return fmt.Errorf("%w: заявка с таким ID уже существует", ErrConflict)
		}
		return fmt.Errorf("ошибка создания заявки: %w", err)
	}
	return nil
}

func (r *interviewRequestRepo) GetByToken(ctx context.Context, token string) (*model.InterviewRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM interview_requests r WHERE r.token = $1`, requestColumns)
	return r.getOne(ctx, query, token)
}

func (r *interviewRequestRepo) GetByID(ctx context.Context, id string) (*model.InterviewRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM interview_requests r WHERE r.id = $1`, requestColumns)
	return r.getOne(ctx, query, id)
}

func (r *interviewRequestRepo) getOne(ctx context.Context, query string, arg any) (*model.InterviewRequest, error) {
	req := &model.InterviewRequest{}
	err := r.db.QueryRow(ctx, query, arg).Scan(requestScanTargets(req)...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isInvalidInput(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения заявки: %w", err)
	}
	return req, nil
}

// buildRequestWhere строит WHERE-условие и аргументы для исторического фильтра.
// Отсутствующие группы условий не добавляются.
func buildRequestWhere(filter model.RequestFilter, startArg int) (string, []any) {
	var conditions []string
	var args []any
	argNum := startArg

	if q := strings.TrimSpace(filter.Query); q != "" {
		conditions = append(conditions, fmt.Sprintf(
			"(r.interviewer_name ILIKE $%[1]d OR r.media_name ILIKE $%[1]d OR r.topic ILIKE $%[1]d OR r.token ILIKE $%[1]d)",
			argNum))
		args = append(args, "%"+escapeLike(q)+"%")
		argNum++
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("r.status = $%d", argNum))
		args = append(args, filter.Status)
		argNum++
	}
	if filter.From != nil {
		conditions = append(conditions, fmt.Sprintf("r.request_date >= $%d", argNum))
		args = append(args, *filter.From)
		argNum++
	}
	if filter.To != nil {
		// Верхняя граница включает весь день To
		y, m, d := filter.To.Date()
		nextDay := time.Date(y, m, d+1, 0, 0, 0, 0, filter.To.Location())
		conditions = append(conditions, fmt.Sprintf("r.request_date < $%d", argNum))
		args = append(args, nextDay)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}
	return where, args
}

// escapeLike экранирует спецсимволы шаблона LIKE.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (r *interviewRequestRepo) List(ctx context.Context, filter model.RequestFilter) ([]*model.RequestWithRecording, error) {
	where, args := buildRequestWhere(filter, 1)

	query := fmt.Sprintf(`
		SELECT %s, a.id, a.interviewee
		FROM interview_requests r
		LEFT JOIN audio_recordings a ON a.request_id = r.id
		%s
		ORDER BY r.request_date DESC`, requestColumns, where)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка заявок: %w", err)
	}
	defer rows.Close()

	var result []*model.RequestWithRecording
	for rows.Next() {
		item := &model.RequestWithRecording{}
		targets := append(requestScanTargets(&item.InterviewRequest), &item.RecordingID, &item.Interviewee)
		if err := rows.Scan(targets...); err != nil {
			return nil, fmt.Errorf("ошибка сканирования заявки: %w", err)
		}
		result = append(result, item)
	}
	return result, rows.Err()
}

func (r *interviewRequestRepo) UpdateStatus(ctx context.Context, token string, from []string, to string) (*model.InterviewRequest, error) {
	query := fmt.Sprintf(`
		UPDATE interview_requests r
		SET status = $2, updated_at = NOW()
		WHERE r.token = $1 AND r.status = ANY($3)
		RETURNING %s`, requestColumns)

	req := &model.InterviewRequest{}
	err := r.db.QueryRow(ctx, query, token, to, from).Scan(requestScanTargets(req)...)
	if err == nil {
		return req, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("ошибка смены статуса заявки: %w", err)
	}

	// Ни одна строка не обновлена: заявки нет или статус не подходит
	var current string
	err = r.db.QueryRow(ctx, `SELECT status FROM interview_requests WHERE token = $1`, token).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения статуса заявки: %w", err)
	}
	return nil, fmt.Errorf("%w: статус %s не допускает перехода в %s", ErrConflict, current, to)
}
