// Пакет server — HTTP-сервер портала с graceful shutdown.
// Без TLS — TLS termination на обратном прокси.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/bigkaa/bmkg-portal/internal/api/handlers"
	"github.com/bigkaa/bmkg-portal/internal/api/middleware"
	"github.com/bigkaa/bmkg-portal/internal/config"
	"github.com/bigkaa/bmkg-portal/internal/domain/rbac"
	uihandlers "github.com/bigkaa/bmkg-portal/internal/ui/handlers"
	"github.com/bigkaa/bmkg-portal/internal/ui/i18n"
	uimiddleware "github.com/bigkaa/bmkg-portal/internal/ui/middleware"
	"github.com/bigkaa/bmkg-portal/internal/ui/static"
)

// UIComponents — обработчики и middleware HTML-страниц портала.
type UIComponents struct {
	AuthHandler     *uihandlers.AuthHandler
	AuthMiddleware  *uimiddleware.UIAuth
	PortalHandler   *uihandlers.PortalHandler
	RecorderHandler *uihandlers.RecorderHandler
}

// Server — HTTP-сервер портала.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт новый HTTP-сервер с настроенными routes и middleware.
func New(cfg *config.Config, logger *slog.Logger, api *handlers.APIHandler, jwtAuth *middleware.JWTAuth, ui *UIComponents) *Server {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      NewRouter(logger, api, jwtAuth, ui),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// NewRouter собирает маршруты портала.
//
// Публичные: главная, форма заявки, вход/выход, язык, пресс-релизы, статика,
// health, metrics, выпуск API-токена.
// Сессия (любая роль): исторические данные, ключевые слова.
// Сессия (admin): запись интервью, отчёты, тема по токену, смена статуса.
// Bearer JWT: /api/v1/requests (смена статуса — admin).
func NewRouter(logger *slog.Logger, api *handlers.APIHandler, jwtAuth *middleware.JWTAuth, ui *UIComponents) chi.Router {
	router := chi.NewRouter()

	// Глобальные middleware (применяются ко ВСЕМ маршрутам)
	router.Use(chimw.Recoverer)
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.RequestLogger(logger))

	// Health и metrics
	router.Get("/health/live", api.HealthLive)
	router.Get("/health/ready", api.HealthReady)
	router.Get("/metrics", api.GetMetrics)

	// Статические ресурсы
	router.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(static.FileSystem())))

	// REST API
	router.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/token", api.IssueToken)

		r.Group(func(r chi.Router) {
			r.Use(jwtAuth.Middleware())
			r.Get("/requests", api.ListRequests)
			r.Get("/requests/{token}", api.GetRequest)
			r.With(middleware.RequireRole(rbac.RoleAdmin)).
				Patch("/requests/{token}/status", api.UpdateRequestStatus)
		})
	})

	// HTML-страницы
	router.Group(func(r chi.Router) {
		r.Use(i18n.Middleware())

		r.Get("/", ui.PortalHandler.HandleLanding)
		r.Get("/download/{filename}", ui.PortalHandler.HandleDownload)
		r.Get("/images/{filename}", ui.PortalHandler.HandleImage)
		r.Get("/request-interview", ui.PortalHandler.HandleRequestForm)
		r.Post("/request-interview", ui.PortalHandler.HandleSubmitRequest)
		r.Get("/login", ui.AuthHandler.HandleLoginPage)
		r.Post("/login", ui.AuthHandler.HandleLogin)
		r.Get("/logout", ui.AuthHandler.HandleLogout)
		r.Post("/set-language", uihandlers.HandleSetLanguage)

		r.Group(func(r chi.Router) {
			r.Use(ui.AuthMiddleware.Middleware())

			r.Get("/historical-data", ui.PortalHandler.HandleHistorical)

			r.Group(func(r chi.Router) {
				r.Use(uimiddleware.RequireRole(rbac.RoleAdmin))

				r.Get("/recorder", ui.RecorderHandler.HandleRecorderPage)
				r.Post("/generate_report_now", ui.RecorderHandler.HandleGenerateReport)
				r.Get("/generate-pdf/{id}", ui.RecorderHandler.HandleGeneratePDF)
				r.Post("/requests/{token}/status", ui.PortalHandler.HandleStatusChange)
			})
		})

		// JSON-эндпоинты страниц: та же cookie-сессия, ошибки в формате API
		r.Group(func(r chi.Router) {
			r.Use(ui.AuthMiddleware.JSONMiddleware())

			r.Get("/dashboard", api.Dashboard)
			r.Get("/search_by_keyword", api.SearchByKeyword)
			r.With(uimiddleware.RequireRoleJSON(rbac.RoleAdmin)).Get("/get_topik/{token}", api.GetTopik)
		})
	})

	return router
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown.
func (s *Server) Run() error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
