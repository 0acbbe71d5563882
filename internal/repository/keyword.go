package repository

import (
	"context"
	"fmt"

	"github.com/bigkaa/bmkg-portal/internal/domain/model"
)

// KeywordRepository — чтение предрассчитанной таблицы keyword_results.
// Таблица заполняется внешним процессом, портал её только читает.
type KeywordRepository interface {
	// Top возвращает limit слов с наибольшим весом.
	Top(ctx context.Context, limit int) ([]model.KeywordResult, error)
	// Search возвращает слова, содержащие подстроку keyword (без учёта регистра).
	Search(ctx context.Context, keyword string) ([]model.KeywordResult, error)
}

type keywordRepo struct {
	db DBTX
}

// NewKeywordRepository создаёт репозиторий ключевых слов.
func NewKeywordRepository(db DBTX) KeywordRepository {
	return &keywordRepo{db: db}
}

func (r *keywordRepo) Top(ctx context.Context, limit int) ([]model.KeywordResult, error) {
	query := `
		SELECT word, weight
		FROM keyword_results
		ORDER BY weight DESC, word
		LIMIT $1`
	return r.query(ctx, query, limit)
}

func (r *keywordRepo) Search(ctx context.Context, keyword string) ([]model.KeywordResult, error) {
	query := `
		SELECT word, weight
		FROM keyword_results
		WHERE word ILIKE $1
		ORDER BY weight DESC, word`
	return r.query(ctx, query, "%"+escapeLike(keyword)+"%")
}

func (r *keywordRepo) query(ctx context.Context, query string, arg any) ([]model.KeywordResult, error) {
	rows, err := r.db.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения ключевых слов: %w", err)
	}
	defer rows.Close()

	result := []model.KeywordResult{}
	for rows.Next() {
		var kw model.KeywordResult
		if err := rows.Scan(&kw.Word, &kw.Weight); err != nil {
			return nil, fmt.Errorf("ошибка сканирования ключевого слова: %w", err)
		}
		result = append(result, kw)
	}
	return result, rows.Err()
}
