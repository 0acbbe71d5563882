// requests.go — JSON endpoints журнала заявок.
package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/bmkg-portal/internal/domain/model"
	"github.com/bigkaa/bmkg-portal/internal/service"
)

// requestDTO — представление заявки в API.
type requestDTO struct {
	ID              string  `json:"id"`
	Token           string  `json:"token"`
	InterviewerName string  `json:"interviewer_name"`
	MediaName       string  `json:"media_name"`
	Topic           string  `json:"topic"`
	Method          string  `json:"method"`
	ScheduledAt     string  `json:"scheduled_at"`
	MeetingLink     *string `json:"meeting_link,omitempty"`
	ContactEmail    *string `json:"contact_email,omitempty"`
	Status          string  `json:"status"`
	WhatsAppLink    *string `json:"whatsapp_link,omitempty"`
	RequestDate     string  `json:"request_date"`
	UpdatedAt       string  `json:"updated_at"`
	RecordingID     *string `json:"recording_id,omitempty"`
	Interviewee     *string `json:"interviewee,omitempty"`
}

// requestListResponse — ответ GET /api/v1/requests.
type requestListResponse struct {
	Items []requestDTO `json:"items"`
	Total int          `json:"total"`
}

// statusRequest — тело PATCH /api/v1/requests/{token}/status.
type statusRequest struct {
	Status string `json:"status"`
}

// topikResponse — ответ GET /get_topik/{token}.
type topikResponse struct {
	Topik string `json:"topik"`
}

func requestToDTO(req *model.InterviewRequest) requestDTO {
	return requestDTO{
		ID:              req.ID,
		Token:           req.Token,
		InterviewerName: req.InterviewerName,
		MediaName:       req.MediaName,
		Topic:           req.Topic,
		Method:          req.Method,
		ScheduledAt:     req.ScheduledAt.Format(time.RFC3339),
		MeetingLink:     req.MeetingLink,
		ContactEmail:    req.ContactEmail,
		Status:          req.Status,
		WhatsAppLink:    req.WhatsAppLink,
		RequestDate:     req.RequestDate.UTC().Format(time.RFC3339),
		UpdatedAt:       req.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// ListRequests — GET /api/v1/requests?q=&status=&date_from=&date_to=.
func (h *APIHandler) ListRequests(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter, err := h.requests.ParseFilter(service.FilterInput{
		Query:    q.Get("q"),
		Status:   q.Get("status"),
		DateFrom: q.Get("date_from"),
		DateTo:   q.Get("date_to"),
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	rows, err := h.requests.List(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	items := make([]requestDTO, 0, len(rows))
	for _, row := range rows {
		dto := requestToDTO(&row.InterviewRequest)
		dto.RecordingID = row.RecordingID
		dto.Interviewee = row.Interviewee
		items = append(items, dto)
	}
	writeJSON(w, http.StatusOK, requestListResponse{Items: items, Total: len(items)})
}

// GetRequest — GET /api/v1/requests/{token}.
func (h *APIHandler) GetRequest(w http.ResponseWriter, r *http.Request) {
	req, err := h.requests.FindByToken(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, requestToDTO(req))
}

// UpdateRequestStatus — PATCH /api/v1/requests/{token}/status.
func (h *APIHandler) UpdateRequestStatus(w http.ResponseWriter, r *http.Request) {
	var body statusRequest
	if err := decodeJSON(r, &body); err != nil {
		h.writeServiceError(w, r, &service.FieldError{Field: "status", Reason: service.ReasonInvalid})
		return
	}

	req, err := h.requests.TransitionStatus(r.Context(), chi.URLParam(r, "token"), body.Status)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, requestToDTO(req))
}

// GetTopik — GET /get_topik/{token}.
// Для неизвестного токена возвращается пустая тема со статусом 200:
// форма записи использует ответ только для предзаполнения.
func (h *APIHandler) GetTopik(w http.ResponseWriter, r *http.Request) {
	topic, err := h.requests.TopicByToken(r.Context(), chi.URLParam(r, "token"))
	if err != nil && !isNotFound(err) {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, topikResponse{Topik: topic})
}
