// Пакет config — загрузка и валидация конфигурации портала
// из переменных окружения (и необязательного .env файла).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Форматы отчёта.
const (
	ReportFormatDOCX = "docx"
	ReportFormatPDF  = "pdf"
)

// Config содержит все параметры конфигурации портала.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- PostgreSQL ---

	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string
	// Разрешать хост БД сначала в IPv4, IPv6 — только как fallback
	DBPreferIPv4 bool
	// Таймаут установки соединения драйвером
	DBConnectTimeout time.Duration

	// --- Аутентификация ---

	// Ключ шифрования cookie-сессий (пустой — случайный на время жизни процесса)
	SessionSecret string
	// Cookie-сессии только по HTTPS
	SessionSecure bool
	// Ключ подписи JWT для REST API (по умолчанию совпадает с SessionSecret)
	JWTSecret string
	// Время жизни bearer-токена
	JWTTTL time.Duration
	// Начальные учётные записи
	SeedAdminUsername string
	SeedAdminPassword string
	SeedUserUsername  string
	SeedUserPassword  string

	// --- Заявки ---

	// Часовой пояс, в котором пользователь вводит дату интервью
	Timezone *time.Location
	// Номер WhatsApp, на который формируется deep-link
	WhatsAppPhone string
	// Ограничение попыток вставки при коллизии токена
	TokenMaxAttempts int

	// --- Уведомления ---

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
	// Размер очереди post-commit событий
	NotifyQueueSize int

	// --- Отчёты ---

	// Формат отчёта: docx или pdf
	ReportFormat string
	// Путь к DOCX-шаблону
	ReportTemplatePath string
	// Путь к изображению шапки PDF (опционально)
	ReportHeaderImage string
	// Путь к TTF-шрифту с поддержкой UTF-8 (опционально)
	ReportFontPath string
	// Директория для аудиозаписей
	ScratchDir string
	// Директория с пресс-релизами (PDF) для главной страницы
	PressReleaseDir string
	// Директория изображений слайд-шоу главной страницы
	ImageDir string
	// Имена файлов ImageDir, не показываемые в слайд-шоу
	GalleryExclude []string

	// --- Ключевые слова ---

	KeywordCacheSize int
	KeywordCacheTTL  time.Duration

	// --- Мониторинг зависимостей ---

	DephealthGroup         string
	DephealthCheckInterval time.Duration

	// --- Graceful shutdown ---

	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
//
//nolint:gocyclo,cyclop // линейный разбор переменных
func Load() (*Config, error) {
	if err := loadEnvFile(getEnvDefault("BP_ENV_FILE", ".env")); err != nil {
		return nil, err
	}

	cfg := &Config{}
	var err error

	// --- Сервер ---

	cfg.Port, err = getEnvInt("BP_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("BP_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("BP_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	cfg.LogLevel, err = parseLogLevel(getEnvDefault("BP_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("BP_LOG_LEVEL: %w", err)
	}

	cfg.LogFormat = getEnvDefault("BP_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("BP_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- PostgreSQL ---

	if cfg.DBHost, err = getEnvRequired("BP_DB_HOST"); err != nil {
		return nil, err
	}
	cfg.DBPort, err = getEnvInt("BP_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("BP_DB_PORT: %w", err)
	}
	if cfg.DBName, err = getEnvRequired("BP_DB_NAME"); err != nil {
		return nil, err
	}
	if cfg.DBUser, err = getEnvRequired("BP_DB_USER"); err != nil {
		return nil, err
	}
	if cfg.DBPassword, err = getEnvRequired("BP_DB_PASSWORD"); err != nil {
		return nil, err
	}

	cfg.DBSSLMode = getEnvDefault("BP_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("BP_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	cfg.DBPreferIPv4, err = getEnvBool("BP_DB_PREFER_IPV4", true)
	if err != nil {
		return nil, fmt.Errorf("BP_DB_PREFER_IPV4: %w", err)
	}

	cfg.DBConnectTimeout, err = getEnvDuration("BP_DB_CONNECT_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("BP_DB_CONNECT_TIMEOUT: %w", err)
	}

	// --- Аутентификация ---

	cfg.SessionSecret = getEnvDefault("BP_SESSION_SECRET", "")
	cfg.SessionSecure, err = getEnvBool("BP_SESSION_SECURE", false)
	if err != nil {
		return nil, fmt.Errorf("BP_SESSION_SECURE: %w", err)
	}
	cfg.JWTSecret = getEnvDefault("BP_JWT_SECRET", cfg.SessionSecret)

	cfg.JWTTTL, err = getEnvDuration("BP_JWT_TTL", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("BP_JWT_TTL: %w", err)
	}

	cfg.SeedAdminUsername = getEnvDefault("BP_SEED_ADMIN_USERNAME", "admin")
	if cfg.SeedAdminPassword, err = getEnvRequired("BP_SEED_ADMIN_PASSWORD"); err != nil {
		return nil, err
	}
	cfg.SeedUserUsername = getEnvDefault("BP_SEED_USER_USERNAME", "")
	cfg.SeedUserPassword = getEnvDefault("BP_SEED_USER_PASSWORD", "")
	if cfg.SeedUserUsername != "" && cfg.SeedUserPassword == "" {
		return nil, errors.New("BP_SEED_USER_PASSWORD: обязателен, если задан BP_SEED_USER_USERNAME")
	}

	// --- Заявки ---

	tz := getEnvDefault("BP_TIMEZONE", "Asia/Jakarta")
	cfg.Timezone, err = time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("BP_TIMEZONE: неизвестный часовой пояс %q", tz)
	}

	if cfg.WhatsAppPhone, err = getEnvRequired("BP_WHATSAPP_PHONE"); err != nil {
		return nil, err
	}

	cfg.TokenMaxAttempts, err = getEnvInt("BP_TOKEN_MAX_ATTEMPTS", 5)
	if err != nil {
		return nil, fmt.Errorf("BP_TOKEN_MAX_ATTEMPTS: %w", err)
	}
	if cfg.TokenMaxAttempts < 1 || cfg.TokenMaxAttempts > 20 {
		return nil, fmt.Errorf("BP_TOKEN_MAX_ATTEMPTS: значение %d вне допустимого диапазона 1-20", cfg.TokenMaxAttempts)
	}

	// --- Уведомления ---

	cfg.SMTPHost = getEnvDefault("BP_SMTP_HOST", "")
	cfg.SMTPPort, err = getEnvInt("BP_SMTP_PORT", 587)
	if err != nil {
		return nil, fmt.Errorf("BP_SMTP_PORT: %w", err)
	}
	cfg.SMTPUsername = getEnvDefault("BP_SMTP_USERNAME", "")
	cfg.SMTPPassword = getEnvDefault("BP_SMTP_PASSWORD", "")
	cfg.SMTPFrom = getEnvDefault("BP_SMTP_FROM", cfg.SMTPUsername)
	if cfg.SMTPHost != "" && cfg.SMTPFrom == "" {
		return nil, errors.New("BP_SMTP_FROM: обязателен, если задан BP_SMTP_HOST")
	}

	cfg.NotifyQueueSize, err = getEnvInt("BP_NOTIFY_QUEUE_SIZE", 100)
	if err != nil {
		return nil, fmt.Errorf("BP_NOTIFY_QUEUE_SIZE: %w", err)
	}
	if cfg.NotifyQueueSize < 1 {
		return nil, fmt.Errorf("BP_NOTIFY_QUEUE_SIZE: значение %d должно быть положительным", cfg.NotifyQueueSize)
	}

	// --- Отчёты ---

	cfg.ReportFormat = strings.ToLower(getEnvDefault("BP_REPORT_FORMAT", ReportFormatDOCX))
	if cfg.ReportFormat != ReportFormatDOCX && cfg.ReportFormat != ReportFormatPDF {
		return nil, fmt.Errorf("BP_REPORT_FORMAT: недопустимое значение %q, допустимые: docx, pdf", cfg.ReportFormat)
	}
	cfg.ReportTemplatePath = getEnvDefault("BP_REPORT_TEMPLATE_PATH", "static/template.docx")
	cfg.ReportHeaderImage = getEnvDefault("BP_REPORT_HEADER_IMAGE", "")
	cfg.ReportFontPath = getEnvDefault("BP_REPORT_FONT_PATH", "")
	cfg.ScratchDir = getEnvDefault("BP_SCRATCH_DIR", "data/scratch")
	cfg.PressReleaseDir = getEnvDefault("BP_PRESS_RELEASE_DIR", "static/press_release")
	cfg.ImageDir = getEnvDefault("BP_IMAGE_DIR", "static/images")
	cfg.GalleryExclude = getEnvList("BP_GALLERY_EXCLUDE", []string{"headerbmkg.jpg"})

	// --- Ключевые слова ---

	cfg.KeywordCacheSize, err = getEnvInt("BP_KEYWORD_CACHE_SIZE", 256)
	if err != nil {
		return nil, fmt.Errorf("BP_KEYWORD_CACHE_SIZE: %w", err)
	}
	if cfg.KeywordCacheSize < 1 {
		return nil, fmt.Errorf("BP_KEYWORD_CACHE_SIZE: значение %d должно быть положительным", cfg.KeywordCacheSize)
	}
	cfg.KeywordCacheTTL, err = getEnvDuration("BP_KEYWORD_CACHE_TTL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("BP_KEYWORD_CACHE_TTL: %w", err)
	}

	// --- Мониторинг зависимостей ---

	cfg.DephealthGroup = getEnvDefault("BP_DEPHEALTH_GROUP", "bmkg-portal")
	cfg.DephealthCheckInterval, err = getEnvDuration("BP_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("BP_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// --- Graceful shutdown ---

	cfg.ShutdownTimeout, err = getEnvDuration("BP_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("BP_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s connect_timeout=%d",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
		int(c.DBConnectTimeout.Seconds()),
	)
}

// DatabaseURL возвращает URL подключения в формате postgres://.
// Используется для лейблов topologymetrics, не для подключения.
func (c *Config) DatabaseURL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     fmt.Sprintf("%s:%d", c.DBHost, c.DBPort),
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + c.DBSSLMode,
	}
	return u.String()
}

// MigrateURL возвращает URL для golang-migrate (драйвер pgx5).
func (c *Config) MigrateURL() string {
	u := url.URL{
		Scheme:   "pgx5",
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     fmt.Sprintf("%s:%d", c.DBHost, c.DBPort),
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + c.DBSSLMode,
	}
	return u.String()
}

// SMTPEnabled сообщает, настроена ли отправка email.
func (c *Config) SMTPEnabled() bool {
	return c.SMTPHost != ""
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// loadEnvFile подгружает переменные из dotenv-файла.
// Отсутствие файла не является ошибкой; уже заданные переменные не перезаписываются.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("BP_ENV_FILE: ошибка чтения %s: %w", path, err)
	}
	return nil
}

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvList читает список значений через запятую; пустые элементы отбрасываются.
func getEnvList(key string, defaultVal []string) []string {
	val, ok := os.LookupEnv(key)
	if !ok {
		return defaultVal
	}
	var out []string
	for _, item := range strings.Split(val, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvBool возвращает булево значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное булево значение: %q", val)
	}
	return b, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
