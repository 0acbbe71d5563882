package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/bmkg-portal/internal/domain/model"
)

// RecordingRepository — доступ к таблице audio_recordings.
type RecordingRepository interface {
	// Upsert создаёт запись заявки или перезаписывает существующую.
	// Атомарен на уровне одного SQL-оператора: при гонке побеждает последний.
	Upsert(ctx context.Context, rec *model.Recording) error
	// GetByID возвращает запись по UUID.
	GetByID(ctx context.Context, id string) (*model.Recording, error)
	// GetByRequestID возвращает запись заявки.
	GetByRequestID(ctx context.Context, requestID string) (*model.Recording, error)
}

type recordingRepo struct {
	db DBTX
}

// NewRecordingRepository создаёт репозиторий записей интервью.
func NewRecordingRepository(db DBTX) RecordingRepository {
	return &recordingRepo{db: db}
}

const recordingColumns = `id, request_id, interviewee, recorded_at, filename, transcript, created_at, updated_at`

func (r *recordingRepo) Upsert(ctx context.Context, rec *model.Recording) error {
	query := `
		INSERT INTO audio_recordings (id, request_id, interviewee, recorded_at, filename, transcript)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (request_id) DO UPDATE SET
			interviewee = EXCLUDED.interviewee,
			recorded_at = EXCLUDED.recorded_at,
			filename = EXCLUDED.filename,
			transcript = EXCLUDED.transcript,
			updated_at = NOW()
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		rec.ID, rec.RequestID, rec.Interviewee, rec.RecordedAt, rec.Filename, rec.Transcript,
	).Scan(&rec.ID, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("ошибка upsert записи интервью: %w", err)
	}
	return nil
}

func (r *recordingRepo) GetByID(ctx context.Context, id string) (*model.Recording, error) {
	query := fmt.Sprintf(`SELECT %s FROM audio_recordings WHERE id = $1`, recordingColumns)
	return r.getOne(ctx, query, id)
}

func (r *recordingRepo) GetByRequestID(ctx context.Context, requestID string) (*model.Recording, error) {
	query := fmt.Sprintf(`SELECT %s FROM audio_recordings WHERE request_id = $1`, recordingColumns)
	return r.getOne(ctx, query, requestID)
}

func (r *recordingRepo) getOne(ctx context.Context, query string, arg any) (*model.Recording, error) {
	rec := &model.Recording{}
	err := r.db.QueryRow(ctx, query, arg).Scan(
		&rec.ID, &rec.RequestID, &rec.Interviewee, &rec.RecordedAt,
		&rec.Filename, &rec.Transcript, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isInvalidInput(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения записи интервью: %w", err)
	}
	return rec, nil
}
