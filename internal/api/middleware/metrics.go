// metrics.go — Prometheus HTTP метрики портала.
// Регистрирует метрики: bp_http_requests_total, bp_http_request_duration_seconds.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP метрики
var (
	// httpRequestsTotal — общее количество HTTP-запросов.
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bp_http_requests_total",
			Help: "Общее количество HTTP-запросов к порталу",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDuration — гистограмма длительности HTTP-запросов.
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bp_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов к порталу в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// MetricsMiddleware возвращает HTTP middleware для сбора Prometheus метрик.
// Записывает количество запросов и длительность для каждого endpoint.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Токены, UUID и имена файлов заменяются шаблоном пути
			normalizedPath := normalizePath(r.URL.Path)

			wrapped := newMetricsResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(wrapped.statusCode)

			httpRequestsTotal.WithLabelValues(r.Method, normalizedPath, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, normalizedPath).Observe(duration)
		})
	}
}

// metricsResponseWriter — обёртка для перехвата статус-кода.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func newMetricsResponseWriter(w http.ResponseWriter) *metricsResponseWriter {
	return &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *metricsResponseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap позволяет http.ResponseController получить доступ к оригинальному ResponseWriter.
func (rw *metricsResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// staticPaths — пути без параметров.
var staticPaths = map[string]bool{
	"/":                    true,
	"/health/live":         true,
	"/health/ready":        true,
	"/metrics":             true,
	"/request-interview":   true,
	"/login":               true,
	"/logout":              true,
	"/set-language":        true,
	"/historical-data":     true,
	"/recorder":            true,
	"/generate_report_now": true,
	"/dashboard":           true,
	"/search_by_keyword":   true,
	"/api/v1/auth/token":   true,
	"/api/v1/requests":     true,
}

// dynamicPrefixes — пути с параметром в последнем (или предпоследнем) сегменте.
var dynamicPrefixes = []struct {
	prefix string
	result string
}{
	{"/api/v1/requests/", "/api/v1/requests/{token}"},
	{"/requests/", "/requests/{token}"},
	{"/get_topik/", "/get_topik/{token}"},
	{"/generate-pdf/", "/generate-pdf/{id}"},
	{"/download/", "/download/{filename}"},
	{"/images/", "/images/{filename}"},
	{"/static/", "/static/*"},
}

// normalizePath заменяет параметры пути шаблоном для предотвращения
// взрывного роста кардинальности метрик.
// /api/v1/requests/ABCD2345/status → /api/v1/requests/{token}/status
// Неизвестные пути сводятся к "other".
func normalizePath(path string) string {
	if staticPaths[path] {
		return path
	}

	for _, p := range dynamicPrefixes {
		rest, ok := strings.CutPrefix(path, p.prefix)
		if !ok || rest == "" {
			continue
		}
		if p.result == "/static/*" {
			return p.result
		}
		param, suffix, _ := strings.Cut(rest, "/")
		if param == "" {
			continue
		}
		switch suffix {
		case "":
			return p.result
		case "status":
			return p.result + "/status"
		default:
			return "other"
		}
	}

	return "other"
}
