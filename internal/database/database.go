// Пакет database — хранилище портала в PostgreSQL: схема заявок,
// записей интервью, учётных записей и ключевых слов (migrations/*.sql,
// применяются golang-migrate при старте cmd/portal), пул pgxpool для
// репозиториев и проверка готовности для /health/ready.
package database

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bigkaa/bmkg-portal/internal/config"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Connect создаёт пул подключений, общий для репозиториев, транзакций
// (TxRunner) и мониторинга dephealth. При cfg.DBPreferIPv4 адреса хоста
// БД упорядочиваются: сначала IPv4, затем IPv6. Недоступная БД — ошибка.
func Connect(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseDSN())
	if err != nil {
		return nil, fmt.Errorf("ошибка парсинга DSN: %w", err)
	}

	if cfg.DBPreferIPv4 {
		poolCfg.ConnConfig.LookupFunc = PreferIPv4Lookup(nil)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания пула подключений: %w", err)
	}

	// Проверяем подключение
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ошибка подключения к PostgreSQL: %w", err)
	}

	logger.Info("Подключение к PostgreSQL установлено",
		slog.String("host", cfg.DBHost),
		slog.Int("port", cfg.DBPort),
		slog.String("database", cfg.DBName),
		slog.Bool("prefer_ipv4", cfg.DBPreferIPv4),
	)

	return pool, nil
}

// Migrate доводит схему портала до последней версии из migrations/.
// Уже применённые миграции пропускаются.
func Migrate(cfg *config.Config, logger *slog.Logger) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("ошибка создания источника миграций: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, cfg.MigrateURL())
	if err != nil {
		return fmt.Errorf("ошибка инициализации миграций: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("ошибка применения миграций: %w", err)
	}

	version, dirty, _ := m.Version()
	logger.Info("Миграции применены",
		slog.Uint64("version", uint64(version)),
		slog.Bool("dirty", dirty),
	)

	return nil
}

// readyTimeout — предел проверки готовности на один запрос /health/ready.
const readyTimeout = 3 * time.Second

// ReadinessChecker — готовность хранилища заявок для /health/ready:
// БД отвечает и схема портала применена.
// Реализует интерфейс handlers.ReadinessChecker.
type ReadinessChecker struct {
	pool *pgxpool.Pool
}

// NewReadinessChecker создаёт проверку готовности хранилища заявок.
func NewReadinessChecker(pool *pgxpool.Pool) *ReadinessChecker {
	return &ReadinessChecker{pool: pool}
}

// CheckReady возвращает статус ("ok", "fail") и сообщение.
// Пока миграции не создали таблицу interview_requests, статус — "fail".
func (c *ReadinessChecker) CheckReady() (status string, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), readyTimeout)
	defer cancel()

	if err := c.pool.Ping(ctx); err != nil {
		return "fail", fmt.Sprintf("PostgreSQL недоступен: %v", err)
	}

	var migrated bool
	err := c.pool.QueryRow(ctx,
		`SELECT to_regclass('public.interview_requests') IS NOT NULL`,
	).Scan(&migrated)
	if err != nil {
		return "fail", fmt.Sprintf("ошибка проверки схемы: %v", err)
	}
	if !migrated {
		return "fail", "схема портала не применена"
	}
	return "ok", "подключение активно, схема применена"
}
