package report

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/go-pdf/fpdf"
)

const (
	pdfContentType = "application/pdf"
	pdfFontFamily  = "report"
	pageWidth      = 190.0
	labelWidth     = 45.0
	lineHeight     = 6.0
)

// PDFOptions — ресурсы PDF-отчёта.
type PDFOptions struct {
	// HeaderImage — путь к изображению шапки (PNG/JPEG), пустой — без шапки
	HeaderImage string
	// FontPath — путь к TTF-шрифту с поддержкой UTF-8, пустой — Helvetica (cp1252)
	FontPath string
}

// PDFRenderer формирует PDF-отчёт на A4.
type PDFRenderer struct {
	opts PDFOptions
}

// NewPDFRenderer создаёт PDF-рендерер.
func NewPDFRenderer(opts PDFOptions) *PDFRenderer {
	return &PDFRenderer{opts: opts}
}

// Format возвращает "pdf".
func (r *PDFRenderer) Format() string { return FormatPDF }

// ContentType возвращает MIME-тип PDF.
func (r *PDFRenderer) ContentType() string { return pdfContentType }

// Check проверяет наличие шрифта и изображения шапки.
func (r *PDFRenderer) Check() error {
	for _, p := range []string{r.opts.FontPath, r.opts.HeaderImage} {
		if p == "" {
			continue
		}
		info, err := os.Stat(p)
		if err != nil || info.IsDir() {
			return fmt.Errorf("%w: %s", ErrAssetMissing, p)
		}
	}
	return nil
}

// Render формирует PDF: шапка, таблица полей, транскрипт
// по абзацу на каждую строку.
func (r *PDFRenderer) Render(f Fields) ([]byte, error) {
	if err := r.Check(); err != nil {
		return nil, err
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 10, 10)
	pdf.SetAutoPageBreak(true, 15)
	pdf.SetTitle("Laporan Wawancara", true)

	family := "Helvetica"
	tr := cp1252Translator(pdf)
	if r.opts.FontPath != "" {
		pdf.AddUTF8Font(pdfFontFamily, "", r.opts.FontPath)
		pdf.AddUTF8Font(pdfFontFamily, "B", r.opts.FontPath)
		family = pdfFontFamily
		tr = func(s string) string { return s }
	}
	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("%w: шрифт %s: %v", ErrAssetMissing, r.opts.FontPath, err)
	}

	pdf.AddPage()

	if r.opts.HeaderImage != "" {
		imgOpts := fpdf.ImageOptions{ReadDpi: true}
		info := pdf.RegisterImageOptions(r.opts.HeaderImage, imgOpts)
		if err := pdf.Error(); err != nil || info == nil || info.Width() == 0 {
			return nil, fmt.Errorf("%w: изображение шапки %s: %v", ErrAssetMissing, r.opts.HeaderImage, err)
		}
		height := pageWidth * info.Height() / info.Width()
		pdf.ImageOptions(r.opts.HeaderImage, 10, 10, pageWidth, 0, false, imgOpts, 0, "")
		pdf.SetY(10 + height + 4)
	}

	pdf.SetFont(family, "B", 14)
	pdf.CellFormat(0, 10, tr("LAPORAN WAWANCARA"), "", 1, "C", false, 0, "")
	pdf.Ln(2)

	rows := []struct{ label, value string }{
		{"Waktu", f.Waktu},
		{"Jenis Wawancara", f.Jenis},
		{"Pewawancara", f.Pewawancara},
		{"Instansi", f.Instansi},
		{"Narasumber", f.Narasumber},
		{"Topik", f.Topik},
	}
	for _, row := range rows {
		pdf.SetFont(family, "B", 11)
		pdf.CellFormat(labelWidth, lineHeight, tr(row.label), "", 0, "L", false, 0, "")
		pdf.SetFont(family, "", 11)
		pdf.MultiCell(pageWidth-labelWidth, lineHeight, tr(": "+row.value), "", "L", false)
	}

	pdf.Ln(4)
	pdf.SetFont(family, "B", 12)
	pdf.CellFormat(0, 8, tr("Transkripsi"), "B", 1, "L", false, 0, "")
	pdf.Ln(2)

	pdf.SetFont(family, "", 11)
	for _, line := range strings.Split(strings.ReplaceAll(f.Transkripsi, "\r\n", "\n"), "\n") {
		if strings.TrimSpace(line) == "" {
			pdf.Ln(lineHeight)
			continue
		}
		pdf.MultiCell(0, lineHeight, tr(line), "", "L", false)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("ошибка формирования PDF: %w", err)
	}
	return buf.Bytes(), nil
}

// cp1252Translator возвращает перевод UTF-8 → cp1252 для встроенных шрифтов.
// Символы вне cp1252 заменяются на "?".
func cp1252Translator(pdf *fpdf.Fpdf) func(string) string {
	tr := pdf.UnicodeTranslatorFromDescriptor("cp1252")
	return func(s string) string {
		return tr(cp1252Safe(s))
	}
}

// cp1252Extra — символы cp1252 из диапазона 0x80–0x9F.
const cp1252Extra = "€‚ƒ„…†‡ˆ‰Š‹ŒŽ‘’“”•–—˜™š›œžŸ"

// cp1252Safe заменяет символы, которых нет в cp1252, на "?".
func cp1252Safe(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r < 0x80, r >= 0xA0 && r <= 0xFF:
			return r
		case strings.ContainsRune(cp1252Extra, r):
			return r
		default:
			return '?'
		}
	}, s)
}
