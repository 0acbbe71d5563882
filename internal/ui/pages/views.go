package pages

import (
	"time"

	"github.com/a-h/templ"
)

// --- Главная страница ---

// PressRelease — строка списка пресс-релизов.
type PressRelease struct {
	Name       string
	Size       int64
	ModifiedAt time.Time
}

// LandingData — данные главной страницы.
type LandingData struct {
	Base
	// Slides — имена изображений слайд-шоу, новые первыми.
	Slides   []string
	Releases []PressRelease
}

// Landing — главная страница со слайд-шоу и списком пресс-релизов.
func Landing(data LandingData) templ.Component {
	return page("landing", data)
}

// --- Форма заявки ---

// Option — вариант выбора в форме.
type Option struct {
	Value    string
	Label    string
	Selected bool
}

// RequestFormValues — введённые значения формы (для повторного показа).
type RequestFormValues struct {
	InterviewerName string
	MediaName       string
	Topic           string
	Schedule        string
	MeetingLink     string
	ContactEmail    string
}

// Submitted — результат принятой заявки.
type Submitted struct {
	Token        string
	WhatsAppLink string
	Schedule     time.Time
}

// RequestFormData — данные страницы формы заявки.
type RequestFormData struct {
	Base
	Methods   []Option
	Values    RequestFormValues
	Error     string
	Submitted *Submitted
}

// RequestForm — форма подачи заявки на интервью.
func RequestForm(data RequestFormData) templ.Component {
	return page("request_form", data)
}

// --- Вход ---

// LoginData — данные страницы входа.
type LoginData struct {
	Base
	LoginName string
	Error     string
}

// Login — страница входа.
func Login(data LoginData) templ.Component {
	return page("login", data)
}

// --- Исторические данные ---

// FilterValues — значения фильтра исторического представления.
type FilterValues struct {
	Query    string
	Status   string
	DateFrom string
	DateTo   string
}

// RequestRow — строка таблицы заявок.
type RequestRow struct {
	Token           string
	InterviewerName string
	MediaName       string
	Topic           string
	Method          string
	ScheduledAt     time.Time
	RequestDate     time.Time
	Status          string
	WhatsAppLink    string
	MeetingLink     string
	Interviewee     string
	RecordingID     string
	// Transitions — статусы, в которые можно перевести заявку.
	Transitions []string
	// Recordable — интервью по заявке ещё можно записать.
	Recordable bool
}

// HistoricalData — данные страницы исторического представления.
type HistoricalData struct {
	Base
	Filter   FilterValues
	Statuses []Option
	Rows     []RequestRow
	Error    string
}

// Historical — таблица заявок с фильтрами.
func Historical(data HistoricalData) templ.Component {
	return page("historical", data)
}

// --- Запись интервью ---

// RequestChoice — заявка в подсказке поля токена.
type RequestChoice struct {
	Token           string
	Topic           string
	InterviewerName string
	MediaName       string
}

// RecorderData — данные страницы записи интервью.
type RecorderData struct {
	Base
	Requests    []RequestChoice
	Token       string
	Interviewee string
	Transcript  string
	Error       string
}

// Recorder — форма записи интервью и формирования отчёта.
func Recorder(data RecorderData) templ.Component {
	return page("recorder", data)
}

// --- Ошибка ---

// ErrorData — данные страницы ошибки.
type ErrorData struct {
	Base
	Status  int
	Message string
}

// Error — страница ошибки.
func Error(data ErrorData) templ.Component {
	return page("error", data)
}
