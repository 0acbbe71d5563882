// Пакет errors — ошибки JSON-эндпоинтов портала: REST API /api/v1/*
// и JSON-данные страниц (/dashboard, /search_by_keyword, /get_topik).
// Тело ответа всегда {"error": {"code": "...", "message": "..."}},
// message — текст для оператора, code — для скриптов и recorder.js.
package errors

import (
	"encoding/json"
	"net/http"
)

// Машиночитаемые коды ошибок.
const (
	CodeValidationError = "VALIDATION_ERROR"
	CodeNotFound        = "NOT_FOUND"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeForbidden       = "FORBIDDEN"
	CodeConflict        = "CONFLICT"
	CodeInternalError   = "INTERNAL_ERROR"
)

// bearerChallenge — WWW-Authenticate для ответов 401 REST API.
const bearerChallenge = `Bearer realm="bmkg-portal"`

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError записывает ответ ошибки со статусом statusCode.
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorBody{
		Error: errorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// ValidationError — 400: некорректные поля заявки, фильтра или запроса токена.
func ValidationError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeValidationError, message)
}

// NotFound — 404: заявка с таким токеном не существует.
func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNotFound, message)
}

// Unauthorized — 401 REST API: нет или невалиден Bearer-токен.
func Unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", bearerChallenge)
	WriteError(w, http.StatusUnauthorized, CodeUnauthorized, message)
}

// SessionRequired — 401 JSON-данных страниц: нет cookie-сессии портала.
// Bearer-challenge не отправляется, вход выполняется через /login.
func SessionRequired(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, CodeUnauthorized, message)
}

// Forbidden — 403: роль ниже требуемой (смена статуса, тема заявки).
func Forbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, CodeForbidden, message)
}

// Conflict — 409: недопустимый переход статуса заявки.
func Conflict(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, CodeConflict, message)
}

// InternalError — 500.
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeInternalError, message)
}
