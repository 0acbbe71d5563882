package model

import "time"

// Статусы заявки.
const (
	StatusPending   = "Pending"
	StatusApproved  = "Approved"
	StatusCompleted = "Completed"
	StatusCanceled  = "Canceled"
)

// Способы проведения интервью.
const (
	MethodWhatsApp  = "whatsapp"
	MethodZoom      = "zoom"
	MethodTelepon   = "telepon"
	MethodTatapMuka = "tatap_muka"
	MethodEmail     = "email"
)

// Methods — допустимые способы проведения интервью в порядке отображения в форме.
var Methods = []string{MethodWhatsApp, MethodZoom, MethodTelepon, MethodTatapMuka, MethodEmail}

// Statuses — все статусы заявки.
var Statuses = []string{StatusPending, StatusApproved, StatusCompleted, StatusCanceled}

// transitions — допустимые переходы статуса.
var transitions = map[string][]string{
	StatusPending:  {StatusApproved, StatusCanceled},
	StatusApproved: {StatusCompleted, StatusCanceled},
}

// InterviewRequest — заявка на интервью.
// Хранится в таблице interview_requests. Token неизменяем и служит
// внешним идентификатором заявки.
type InterviewRequest struct {
	// ID — UUID записи
	ID string
	// Token — публичный 8-символьный идентификатор
	Token string
	// InterviewerName — имя журналиста
	InterviewerName string
	// MediaName — название СМИ
	MediaName string
	// Topic — тема интервью
	Topic string
	// Method — способ проведения (whatsapp, zoom, telepon, tatap_muka, email)
	Method string
	// ScheduledAt — запланированное время интервью
	ScheduledAt time.Time
	// MeetingLink — ссылка на встречу (опционально)
	MeetingLink *string
	// ContactEmail — адрес для уведомления заявителя (опционально)
	ContactEmail *string
	// Status — статус (Pending, Approved, Completed, Canceled)
	Status string
	// WhatsAppLink — deep-link с текстом заявки
	WhatsAppLink *string
	// RequestDate — время подачи заявки
	RequestDate time.Time
	// UpdatedAt — время последнего изменения
	UpdatedAt time.Time
}

// RequestWithRecording — строка исторического представления:
// заявка и (если есть) её запись.
type RequestWithRecording struct {
	InterviewRequest
	// RecordingID — UUID записи интервью (nil, если записи нет)
	RecordingID *string
	// Interviewee — имя собеседника из записи
	Interviewee *string
}

// RequestFilter — фильтры исторического представления.
// Пустые поля не участвуют в запросе.
type RequestFilter struct {
	// Query — подстрока для поиска по журналисту, СМИ, теме и токену
	Query string
	// Status — точное совпадение статуса
	Status string
	// From — нижняя граница request_date (включительно)
	From *time.Time
	// To — день верхней границы request_date (включительно весь день)
	To *time.Time
}

// IsValidMethod проверяет, является ли строка допустимым способом интервью.
func IsValidMethod(method string) bool {
	for _, m := range Methods {
		if m == method {
			return true
		}
	}
	return false
}

// IsValidStatus проверяет, является ли строка допустимым статусом.
func IsValidStatus(status string) bool {
	for _, s := range Statuses {
		if s == status {
			return true
		}
	}
	return false
}

// AllowedSources возвращает статусы, из которых допустим переход в to.
func AllowedSources(to string) []string {
	var sources []string
	for _, from := range Statuses {
		if CanTransition(from, to) {
			sources = append(sources, from)
		}
	}
	return sources
}

// CanTransition сообщает, допустим ли переход статуса from → to.
func CanTransition(from, to string) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
