// keywords.go — чтение предрассчитанной частотности ключевых слов.
// Результаты кэшируются в LRU с TTL (hashicorp/golang-lru/v2/expirable):
// таблица меняется только внешним процессом, устаревание ограничено TTL.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/bmkg-portal/internal/domain/model"
	"github.com/bigkaa/bmkg-portal/internal/repository"
)

// Prometheus-метрики кэша ключевых слов.
var (
	keywordCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bp_keyword_cache_hits_total",
		Help: "Общее количество попаданий в LRU-кэш ключевых слов.",
	})
	keywordCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bp_keyword_cache_misses_total",
		Help: "Общее количество промахов LRU-кэша ключевых слов.",
	})
)

// Ограничения выборки ключевых слов.
const (
	// DefaultTopKeywords — размер выборки dashboard по умолчанию
	DefaultTopKeywords = 50
	// MaxTopKeywords — максимальный размер выборки dashboard
	MaxTopKeywords = 500
	// maxKeywordLength — максимальная длина поискового запроса
	maxKeywordLength = 100
)

// KeywordService — сервис ключевых слов с кэшированием.
type KeywordService struct {
	repo   repository.KeywordRepository
	cache  *expirable.LRU[string, []model.KeywordResult]
	logger *slog.Logger
}

// NewKeywordService создаёт сервис ключевых слов.
// cacheSize — максимальное количество закэшированных выборок,
// ttl — время жизни выборки в кэше.
func NewKeywordService(repo repository.KeywordRepository, cacheSize int, ttl time.Duration, logger *slog.Logger) *KeywordService {
	if cacheSize < 1 {
		cacheSize = 1
	}
	return &KeywordService{
		repo:   repo,
		cache:  expirable.NewLRU[string, []model.KeywordResult](cacheSize, nil, ttl),
		logger: logger.With(slog.String("component", "keyword_service")),
	}
}

// Top возвращает limit слов с наибольшим весом.
// limit вне диапазона [1, MaxTopKeywords] заменяется значением по умолчанию или максимумом.
func (s *KeywordService) Top(ctx context.Context, limit int) ([]model.KeywordResult, error) {
	switch {
	case limit < 1:
		limit = DefaultTopKeywords
	case limit > MaxTopKeywords:
		limit = MaxTopKeywords
	}

	key := "top:" + strconv.Itoa(limit)
	return s.cached(key, func() ([]model.KeywordResult, error) {
		return s.repo.Top(ctx, limit)
	})
}

// Search возвращает слова, содержащие keyword, без учёта регистра.
func (s *KeywordService) Search(ctx context.Context, keyword string) ([]model.KeywordResult, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, fieldError("keyword", ReasonRequired)
	}
	if len([]rune(keyword)) > maxKeywordLength {
		return nil, fieldError("keyword", ReasonTooLong)
	}

	key := "search:" + strings.ToLower(keyword)
	return s.cached(key, func() ([]model.KeywordResult, error) {
		return s.repo.Search(ctx, keyword)
	})
}

func (s *KeywordService) cached(key string, load func() ([]model.KeywordResult, error)) ([]model.KeywordResult, error) {
	if val, ok := s.cache.Get(key); ok {
		keywordCacheHitsTotal.Inc()
		return val, nil
	}
	keywordCacheMissesTotal.Inc()

	result, err := load()
	if err != nil {
		return nil, fmt.Errorf("получение ключевых слов: %w", err)
	}
	s.cache.Add(key, result)
	s.logger.Debug("Выборка ключевых слов закэширована",
		slog.String("key", key),
		slog.Int("count", len(result)),
	)
	return result, nil
}

// purge очищает кэш ключевых слов.
func (s *KeywordService) purge() {
	s.cache.Purge()
}
