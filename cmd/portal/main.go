// Точка входа портала заявок на интервью BMKG.
// Загружает конфигурацию, применяет миграции, подключается к PostgreSQL,
// создаёт начальные учётные записи, собирает сервисный слой,
// запускает диспетчер уведомлений, topologymetrics и HTTP-сервер
// с graceful shutdown.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/bigkaa/bmkg-portal/internal/api/handlers"
	"github.com/bigkaa/bmkg-portal/internal/api/middleware"
	"github.com/bigkaa/bmkg-portal/internal/artifacts"
	"github.com/bigkaa/bmkg-portal/internal/config"
	"github.com/bigkaa/bmkg-portal/internal/database"
	"github.com/bigkaa/bmkg-portal/internal/domain/rbac"
	"github.com/bigkaa/bmkg-portal/internal/domain/token"
	"github.com/bigkaa/bmkg-portal/internal/notify"
	"github.com/bigkaa/bmkg-portal/internal/report"
	"github.com/bigkaa/bmkg-portal/internal/repository"
	"github.com/bigkaa/bmkg-portal/internal/server"
	"github.com/bigkaa/bmkg-portal/internal/service"
	"github.com/bigkaa/bmkg-portal/internal/ui/auth"
	uihandlers "github.com/bigkaa/bmkg-portal/internal/ui/handlers"
	"github.com/bigkaa/bmkg-portal/internal/ui/i18n"
	uimiddleware "github.com/bigkaa/bmkg-portal/internal/ui/middleware"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("Портал заявок BMKG запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("timezone", cfg.Timezone.String()),
		slog.String("report_format", cfg.ReportFormat),
	)

	// 3. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Подключение к PostgreSQL (pgxpool)
	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 4.1 Адаптер pgxpool → *sql.DB для topologymetrics (connection pool mode)
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. Repositories
	userRepo := repository.NewUserRepository(pool)
	requestRepo := repository.NewInterviewRequestRepository(pool)
	recordingRepo := repository.NewRecordingRepository(pool)
	keywordRepo := repository.NewKeywordRepository(pool)
	txRunner := repository.NewTxRunner(pool)

	// 6. Аутентификация и начальные учётные записи
	jwtSecret := cfg.JWTSecret
	if jwtSecret == "" {
		jwtSecret = randomSecret()
		logger.Warn("BP_JWT_SECRET и BP_SESSION_SECRET не заданы, bearer-токены не переживут рестарт")
	}
	authSvc := service.NewAuthService(userRepo, txRunner, jwtSecret, cfg.JWTTTL, logger)

	seeds := []service.UserSeed{{
		Username: cfg.SeedAdminUsername,
		Password: cfg.SeedAdminPassword,
		Role:     rbac.RoleAdmin,
	}}
	if cfg.SeedUserUsername != "" {
		seeds = append(seeds, service.UserSeed{
			Username: cfg.SeedUserUsername,
			Password: cfg.SeedUserPassword,
			Role:     rbac.RoleUser,
		})
	}
	if err := authSvc.SeedUsers(ctx, seeds); err != nil {
		logger.Error("Ошибка создания начальных учётных записей", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 7. Уведомления о новых заявках (post-commit, вне запроса)
	notifiers := []notify.Notifier{notify.NewLinkNotifier(logger)}
	if cfg.SMTPEnabled() {
		emailNotifier, emailErr := notify.NewEmailNotifier(notify.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		}, cfg.Timezone, logger)
		if emailErr != nil {
			logger.Warn("SMTP недоступен, email-уведомления отключены",
				slog.String("error", emailErr.Error()),
			)
		} else {
			notifiers = append(notifiers, emailNotifier)
			logger.Info("Email-уведомления включены", slog.String("smtp_host", cfg.SMTPHost))
		}
	}
	dispatcher := notify.NewDispatcher(cfg.NotifyQueueSize, logger, notifiers...)
	dispatcher.Start(ctx)

	// 8. Рендерер отчётов и хранилище аудио
	renderer, err := report.New(cfg.ReportFormat, report.Options{
		TemplatePath: cfg.ReportTemplatePath,
		PDF: report.PDFOptions{
			HeaderImage: cfg.ReportHeaderImage,
			FontPath:    cfg.ReportFontPath,
		},
	})
	if err != nil {
		logger.Error("Ошибка создания рендерера отчётов", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if checkErr := renderer.Check(); checkErr != nil {
		logger.Warn("Ресурсы отчёта недоступны, генерация отчётов будет отклоняться",
			slog.String("error", checkErr.Error()),
		)
	}

	audioStore, err := artifacts.NewAudioStore(cfg.ScratchDir)
	if err != nil {
		logger.Error("Ошибка открытия директории аудиозаписей",
			slog.String("dir", cfg.ScratchDir),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	// 9. Services
	requestSvc := service.NewRequestService(requestRepo, token.NewGenerator(), dispatcher, service.RequestOptions{
		Location:      cfg.Timezone,
		WhatsAppPhone: cfg.WhatsAppPhone,
		MaxAttempts:   cfg.TokenMaxAttempts,
	}, logger)
	recordingSvc := service.NewRecordingService(requestRepo, recordingRepo, audioStore, renderer, cfg.Timezone, logger)
	keywordSvc := service.NewKeywordService(keywordRepo, cfg.KeywordCacheSize, cfg.KeywordCacheTTL, logger)

	// 10. Readiness checkers (PostgreSQL + ресурсы отчёта)
	healthHandler := handlers.NewHealthHandler(
		database.NewReadinessChecker(pool),
		handlers.AssetChecker(recordingSvc.CheckAssets),
	)

	// 11. API handler и JWT middleware
	apiHandler := handlers.NewAPIHandler(healthHandler, authSvc, requestSvc, keywordSvc, logger)
	jwtAuth := middleware.NewJWTAuth(authSvc, logger)

	// 12. topologymetrics — мониторинг зависимостей (PostgreSQL, SMTP)
	dephealthSvc, dephealthErr := service.NewDephealthService(
		"bmkg-portal",
		cfg.DephealthGroup,
		service.DephealthTargets{
			DB:          pgDB,
			PostgresURL: cfg.DatabaseURL(),
			SMTPHost:    cfg.SMTPHost,
			SMTPPort:    cfg.SMTPPort,
		},
		cfg.DephealthCheckInterval,
		logger,
	)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
		dephealthSvc = nil
	} else if startErr := dephealthSvc.Start(ctx); startErr != nil {
		logger.Warn("Ошибка запуска topologymetrics", slog.String("error", startErr.Error()))
		dephealthSvc = nil
	} else {
		logger.Info("topologymetrics запущен",
			slog.String("group", cfg.DephealthGroup),
			slog.String("check_interval", cfg.DephealthCheckInterval.String()),
		)
	}

	// 13. HTML-интерфейс
	sessionMgr, err := auth.NewSessionManager(cfg.SessionSecret, cfg.SessionSecure)
	if err != nil {
		logger.Error("Ошибка создания Session Manager", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if cfg.SessionSecret == "" {
		logger.Warn("BP_SESSION_SECRET не задан, сессии не сохраняются между рестартами")
	}

	bundle := i18n.Init(logger)
	if err := i18n.LoadFromEmbedFS(bundle, logger); err != nil {
		logger.Error("Ошибка загрузки переводов", slog.String("error", err.Error()))
		os.Exit(1)
	}

	uiComponents := &server.UIComponents{
		AuthHandler:    uihandlers.NewAuthHandler(authSvc, sessionMgr, logger),
		AuthMiddleware: uimiddleware.NewUIAuth(sessionMgr, logger),
		PortalHandler: uihandlers.NewPortalHandler(
			requestSvc,
			artifacts.NewPressLibrary(cfg.PressReleaseDir),
			artifacts.NewGallery(cfg.ImageDir, cfg.GalleryExclude),
			sessionMgr,
			logger,
		),
		RecorderHandler: uihandlers.NewRecorderHandler(recordingSvc, requestSvc, sessionMgr, uihandlers.DefaultMaxUpload, logger),
	}

	// 14. Создание и запуск HTTP-сервера
	srv := server.New(cfg, logger, apiHandler, jwtAuth, uiComponents)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 15. Graceful shutdown фоновых задач
	logger.Info("Останавливаем фоновые задачи...")
	dispatcher.Stop()
	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}

	logger.Info("Портал заявок BMKG остановлен")
}

// randomSecret возвращает случайный ключ на время жизни процесса.
func randomSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}
