// Пакет report — формирование отчёта об интервью.
// Поддерживаются два формата: заполнение DOCX-шаблона
// и генерация PDF. Набор полей фиксирован.
package report

import (
	"errors"
	"fmt"
	"time"

	"github.com/bigkaa/bmkg-portal/internal/domain/model"
)

// ErrAssetMissing — шаблон, шрифт или изображение шапки отсутствуют либо повреждены.
var ErrAssetMissing = errors.New("ресурс отчёта недоступен")

// Форматы отчёта.
const (
	FormatDOCX = "docx"
	FormatPDF  = "pdf"
)

// ScheduleLayout — формат времени интервью в отчёте.
const ScheduleLayout = "02-01-2006 15:04"

// Ключи полей шаблона.
const (
	KeyWaktu       = "waktu"
	KeyJenis       = "jenis"
	KeyPewawancara = "pewawancara"
	KeyInstansi    = "instansi"
	KeyNarasumber  = "narasumber"
	KeyTopik       = "topik"
	KeyTranskripsi = "transkripsi"
)

// Fields — значения полей отчёта.
type Fields struct {
	Waktu       string
	Jenis       string
	Pewawancara string
	Instansi    string
	Narasumber  string
	Topik       string
	Transkripsi string
}

// NewFields собирает поля отчёта из заявки и данных записи.
// Время интервью выводится в часовом поясе loc.
func NewFields(req *model.InterviewRequest, interviewee, transcript string, loc *time.Location) Fields {
	if loc == nil {
		loc = time.UTC
	}
	return Fields{
		Waktu:       req.ScheduledAt.In(loc).Format(ScheduleLayout),
		Jenis:       req.Method,
		Pewawancara: req.InterviewerName,
		Instansi:    req.MediaName,
		Narasumber:  interviewee,
		Topik:       req.Topic,
		Transkripsi: transcript,
	}
}

// Values возвращает поля в виде map для подстановки по ключу.
func (f Fields) Values() map[string]string {
	return map[string]string{
		KeyWaktu:       f.Waktu,
		KeyJenis:       f.Jenis,
		KeyPewawancara: f.Pewawancara,
		KeyInstansi:    f.Instansi,
		KeyNarasumber:  f.Narasumber,
		KeyTopik:       f.Topik,
		KeyTranskripsi: f.Transkripsi,
	}
}

// Renderer формирует документ из полей.
type Renderer interface {
	// Render возвращает байты документа.
	Render(f Fields) ([]byte, error)
	// Format — формат документа (docx, pdf).
	Format() string
	// ContentType — MIME-тип документа.
	ContentType() string
	// Check проверяет доступность ресурсов без формирования документа.
	Check() error
}

// Filename возвращает имя файла отчёта: wawancara_<TOKEN>.<format>.
func Filename(token, format string) string {
	return fmt.Sprintf("wawancara_%s.%s", token, format)
}

// Options — ресурсы рендереров.
type Options struct {
	// TemplatePath — DOCX-шаблон
	TemplatePath string
	// PDF — ресурсы PDF-отчёта
	PDF PDFOptions
}

// New создаёт рендерер для формата format (docx или pdf).
func New(format string, opts Options) (Renderer, error) {
	switch format {
	case FormatDOCX:
		return NewDOCXRenderer(opts.TemplatePath), nil
	case FormatPDF:
		return NewPDFRenderer(opts.PDF), nil
	default:
		return nil, fmt.Errorf("неизвестный формат отчёта: %q", format)
	}
}
