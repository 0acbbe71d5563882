package report

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"regexp"
	"slices"
	"sort"
	"strings"
)

const docxContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

// placeholderRe — {{ key }} внутри склеенного текста абзаца.
var placeholderRe = regexp.MustCompile(`\{\{\s*([a-z_]+)\s*\}\}`)

// DOCXRenderer заполняет DOCX-шаблон.
// Шаблон читается при каждом вызове, его можно заменить без перезапуска.
type DOCXRenderer struct {
	templatePath string
}

// NewDOCXRenderer создаёт рендерер для шаблона по пути templatePath.
func NewDOCXRenderer(templatePath string) *DOCXRenderer {
	return &DOCXRenderer{templatePath: templatePath}
}

// Format возвращает "docx".
func (r *DOCXRenderer) Format() string { return FormatDOCX }

// ContentType возвращает MIME-тип DOCX.
func (r *DOCXRenderer) ContentType() string { return docxContentType }

// Check открывает шаблон и проверяет наличие word/document.xml.
func (r *DOCXRenderer) Check() error {
	zr, err := zip.OpenReader(r.templatePath)
	if err != nil {
		return fmt.Errorf("%w: шаблон %s: %v", ErrAssetMissing, r.templatePath, err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			return nil
		}
	}
	return fmt.Errorf("%w: в шаблоне %s нет word/document.xml", ErrAssetMissing, r.templatePath)
}

// Render подставляет поля в шаблон. Каждая строка многострочного значения
// становится отдельным абзацем, спецсимволы XML экранируются.
// Шаблон, который не удаётся разобрать, даёт ErrAssetMissing.
func (r *DOCXRenderer) Render(f Fields) ([]byte, error) {
	raw, err := os.ReadFile(r.templatePath)
	if err != nil {
		return nil, fmt.Errorf("%w: шаблон %s: %v", ErrAssetMissing, r.templatePath, err)
	}

	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, fmt.Errorf("%w: шаблон %s повреждён: %v", ErrAssetMissing, r.templatePath, err)
	}

	values := f.Values()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	foundBody := false

	for _, entry := range zr.File {
		if !isWordPart(entry.Name) {
			if err := zw.Copy(entry); err != nil {
				return nil, fmt.Errorf("ошибка копирования %s: %w", entry.Name, err)
			}
			continue
		}
		if entry.Name == "word/document.xml" {
			foundBody = true
		}

		content, err := readEntry(entry)
		if err != nil {
			return nil, fmt.Errorf("%w: часть %s повреждена: %v", ErrAssetMissing, entry.Name, err)
		}

		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     entry.Name,
			Method:   zip.Deflate,
			Modified: entry.Modified,
		})
		if err != nil {
			return nil, fmt.Errorf("ошибка записи %s: %w", entry.Name, err)
		}
		filled, err := fillDocumentXML(content, values)
		if err != nil {
			return nil, fmt.Errorf("%w: часть %s: %v", ErrAssetMissing, entry.Name, err)
		}
		if _, err := io.WriteString(w, filled); err != nil {
			return nil, fmt.Errorf("ошибка записи %s: %w", entry.Name, err)
		}
	}

	if !foundBody {
		return nil, fmt.Errorf("%w: в шаблоне %s нет word/document.xml", ErrAssetMissing, r.templatePath)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("ошибка сборки DOCX: %w", err)
	}
	return buf.Bytes(), nil
}

// isWordPart — части документа, в которых могут быть поля:
// основной текст, колонтитулы.
func isWordPart(name string) bool {
	if name == "word/document.xml" {
		return true
	}
	dir, file := path.Split(name)
	return dir == "word/" && path.Ext(file) == ".xml" &&
		(strings.HasPrefix(file, "header") || strings.HasPrefix(file, "footer"))
}

func readEntry(f *zip.File) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// fillDocumentXML заменяет поля в абзацах части документа.
//
// Word разбивает текст абзаца на несколько <w:r>, поэтому поле может
// оказаться разрезанным между узлами <w:t>. Поле ищется в склеенном тексте
// абзаца, значение пишется в узел, где поле начинается; узлы, которые поле
// задевает, теряют его фрагменты. Остальные узлы не меняются и сохраняют
// своё форматирование. Абзацы внутри надписей (w:txbxContent) обрабатываются
// отдельно от внешнего абзаца.
//
// Результат проверяется на корректность XML.
func fillDocumentXML(doc string, values map[string]string) (string, error) {
	paras, err := parseParagraphs(doc)
	if err != nil {
		return "", err
	}

	var edits []xmlEdit
	for _, p := range paras {
		edits = append(edits, p.fill(doc, values)...)
	}
	if len(edits) == 0 {
		return doc, nil
	}
	slices.SortFunc(edits, func(a, b xmlEdit) int { return a.start - b.start })

	var out strings.Builder
	out.Grow(len(doc))
	prev := 0
	for _, e := range edits {
		out.WriteString(doc[prev:e.start])
		out.WriteString(e.text)
		prev = e.end
	}
	out.WriteString(doc[prev:])

	result := out.String()
	if err := checkWellFormed(result); err != nil {
		return "", fmt.Errorf("результат подстановки некорректен: %w", err)
	}
	return result, nil
}

// xmlEdit — замена диапазона [start, end) документа.
type xmlEdit struct {
	start, end int
	text       string
}

// textNode — непустой узел <w:t> абзаца.
type textNode struct {
	open, close xmlTag
	// splittable — <w:t> лежит в <w:r>, а тот прямо в абзаце:
	// на месте перевода строки абзац можно закрыть и открыть заново.
	splittable bool
	// rPr — свойства run, повторяются в новом абзаце
	rPr string
}

// paragraph — абзац <w:p> и его собственные текстовые узлы.
type paragraph struct {
	pPr    string
	nodes  []textNode
	nested bool
}

// lineBreak возвращает разметку перевода строки внутри узла n.
// Если абзац нельзя разрезать, используется разрыв <w:br/>.
func (p *paragraph) lineBreak(n textNode) string {
	if !n.splittable || p.nested || strings.Contains(p.pPr, "<w:sectPr") {
		return `</w:t><w:br/><w:t xml:space="preserve">`
	}
	return `</w:t></w:r></w:p><w:p>` + p.pPr + `<w:r>` + n.rPr + `<w:t xml:space="preserve">`
}

// fill возвращает замены узлов абзаца. Неизвестные поля остаются как есть.
func (p *paragraph) fill(doc string, values map[string]string) []xmlEdit {
	if len(p.nodes) == 0 {
		return nil
	}

	// bounds[i] — смещение узла i в склеенном тексте
	bounds := make([]int, len(p.nodes)+1)
	var joined strings.Builder
	for i, n := range p.nodes {
		bounds[i] = joined.Len()
		joined.WriteString(doc[n.open.end:n.close.start])
	}
	bounds[len(p.nodes)] = joined.Len()
	text := joined.String()

	var matches [][]int
	for _, m := range placeholderRe.FindAllStringSubmatchIndex(text, -1) {
		if _, ok := values[text[m[2]:m[3]]]; ok {
			matches = append(matches, m)
		}
	}
	if len(matches) == 0 {
		return nil
	}

	owner := func(pos int) int {
		return sort.Search(len(p.nodes), func(k int) bool { return bounds[k+1] > pos })
	}
	out := make([]strings.Builder, len(p.nodes))
	changed := make([]bool, len(p.nodes))
	copyText := func(from, to int) {
		for from < to {
			k := owner(from)
			end := min(to, bounds[k+1])
			out[k].WriteString(text[from:end])
			from = end
		}
	}

	cursor := 0
	for _, m := range matches {
		copyText(cursor, m[0])
		first, last := owner(m[0]), owner(m[1]-1)
		out[first].WriteString(escapeRunText(values[text[m[2]:m[3]]], p.lineBreak(p.nodes[first])))
		for k := first; k <= last; k++ {
			changed[k] = true
		}
		cursor = m[1]
	}
	copyText(cursor, len(text))

	var edits []xmlEdit
	for i, n := range p.nodes {
		if !changed[i] {
			continue
		}
		edits = append(edits, xmlEdit{
			start: n.open.start,
			end:   n.close.end,
			text:  `<w:t xml:space="preserve">` + out[i].String() + `</w:t>`,
		})
	}
	return edits
}

// escapeRunText экранирует значение для <w:t>; переводы строк заменяются на br.
func escapeRunText(s, br string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		var b strings.Builder
		_ = xml.EscapeText(&b, []byte(line))
		lines[i] = b.String()
	}
	return strings.Join(lines, br)
}

// openElement — открытый элемент при разборе.
type openElement struct {
	name  string
	start int
	para  *paragraph
	rPr   string
}

// parseParagraphs находит абзацы и их текстовые узлы.
// Абзацы возвращаются в порядке закрытия (вложенные раньше внешних).
func parseParagraphs(doc string) ([]*paragraph, error) {
	tags, err := scanTags(doc)
	if err != nil {
		return nil, err
	}

	var (
		stack []openElement
		open  []*paragraph
		done  []*paragraph
		text  *textNode
	)
	for _, t := range tags {
		switch t.kind {
		case tagOpen:
			el := openElement{name: t.name, start: t.start}
			switch t.name {
			case "w:p":
				if len(open) > 0 {
					open[len(open)-1].nested = true
				}
				el.para = &paragraph{}
				open = append(open, el.para)
			case "w:t":
				if len(open) > 0 {
					text = &textNode{open: t}
					n := len(stack)
					if n >= 2 && stack[n-1].name == "w:r" && stack[n-2].para == open[len(open)-1] {
						text.splittable = true
						text.rPr = stack[n-1].rPr
					}
				}
			}
			stack = append(stack, el)

		case tagEmpty:
			if len(stack) == 0 {
				continue
			}
			top := &stack[len(stack)-1]
			switch {
			case t.name == "w:pPr" && top.para != nil:
				top.para.pPr = doc[t.start:t.end]
			case t.name == "w:rPr" && top.name == "w:r":
				top.rPr = doc[t.start:t.end]
			}

		case tagClose:
			if len(stack) == 0 || stack[len(stack)-1].name != t.name {
				return nil, fmt.Errorf("тег </%s> на позиции %d не соответствует открытому", t.name, t.start)
			}
			el := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			raw := doc[el.start:t.end]

			switch t.name {
			case "w:p":
				done = append(done, el.para)
				open = open[:len(open)-1]
			case "w:t":
				if text != nil {
					text.close = t
					p := open[len(open)-1]
					p.nodes = append(p.nodes, *text)
					text = nil
				}
			case "w:pPr":
				if len(stack) > 0 && stack[len(stack)-1].para != nil {
					stack[len(stack)-1].para.pPr = raw
				}
			case "w:rPr":
				if len(stack) > 0 && stack[len(stack)-1].name == "w:r" {
					stack[len(stack)-1].rPr = raw
				}
			}
		}
	}
	if len(stack) > 0 {
		return nil, fmt.Errorf("тег <%s> не закрыт", stack[len(stack)-1].name)
	}
	return done, nil
}

type tagKind int

const (
	tagOpen tagKind = iota
	tagClose
	tagEmpty
)

// xmlTag — тег в диапазоне [start, end) документа.
type xmlTag struct {
	start, end int
	name       string
	kind       tagKind
}

// scanTags перечисляет теги документа. Комментарии, CDATA,
// инструкции обработки и DOCTYPE пропускаются.
func scanTags(doc string) ([]xmlTag, error) {
	var tags []xmlTag
	pos := 0
	for {
		i := strings.IndexByte(doc[pos:], '<')
		if i < 0 {
			return tags, nil
		}
		start := pos + i
		rest := doc[start:]

		var end int
		switch {
		case strings.HasPrefix(rest, "<!--"):
			end = indexAfter(rest, "-->")
		case strings.HasPrefix(rest, "<![CDATA["):
			end = indexAfter(rest, "]]>")
		case strings.HasPrefix(rest, "<?"):
			end = indexAfter(rest, "?>")
		case strings.HasPrefix(rest, "<!"):
			end = indexAfter(rest, ">")
		default:
			end = tagEnd(rest)
			if end > 0 {
				tags = append(tags, parseTag(rest[:end], start))
			}
		}
		if end < 0 {
			return nil, fmt.Errorf("незакрытая разметка на позиции %d", start)
		}
		pos = start + end
	}
}

func indexAfter(s, sep string) int {
	i := strings.Index(s, sep)
	if i < 0 {
		return -1
	}
	return i + len(sep)
}

// tagEnd возвращает длину тега в начале s с учётом кавычек в атрибутах.
func tagEnd(s string) int {
	var quote byte
	for i := 1; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '>':
			return i + 1
		}
	}
	return -1
}

func parseTag(raw string, start int) xmlTag {
	t := xmlTag{start: start, end: start + len(raw), kind: tagOpen}
	body := raw[1 : len(raw)-1]
	switch {
	case strings.HasPrefix(body, "/"):
		t.kind = tagClose
		body = body[1:]
	case strings.HasSuffix(body, "/"):
		t.kind = tagEmpty
		body = body[:len(body)-1]
	}
	if i := strings.IndexAny(body, " \t\r\n"); i >= 0 {
		body = body[:i]
	}
	t.name = body
	return t
}

// checkWellFormed разбирает документ encoding/xml до конца.
func checkWellFormed(doc string) error {
	dec := xml.NewDecoder(strings.NewReader(doc))
	for {
		_, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
