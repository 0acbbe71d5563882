// Пакет pages — HTML-страницы портала.
// Шаблоны html/template встроены в бинарник и отдаются как templ.Component,
// поэтому обработчики рендерят страницы единообразно через Render(ctx, w).
package pages

import (
	"embed"
	"fmt"
	"html/template"
	"time"

	"github.com/a-h/templ"

	"github.com/bigkaa/bmkg-portal/internal/domain/rbac"
	"github.com/bigkaa/bmkg-portal/internal/ui/i18n"
)

//go:embed templates/*.html
var templateFS embed.FS

// templates — layout + страница, по одному набору на страницу.
var templates = map[string]*template.Template{}

func init() {
	for _, name := range []string{"landing", "request_form", "login", "historical", "recorder", "error"} {
		templates[name] = template.Must(
			template.New("layout.html").Funcs(funcs).ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html"),
		)
	}
}

var funcs = template.FuncMap{
	"datetime": func(t time.Time) string { return t.Format("02-01-2006 15:04") },
	"date":     func(t time.Time) string { return t.Format("02-01-2006") },
	"filesize": humanSize,
}

// Base — общие данные всех страниц: язык, пользователь, flash.
type Base struct {
	// Lang — текущий язык интерфейса (id, en).
	Lang string
	// Path — путь текущей страницы (для возврата после смены языка).
	Path string
	// Username — имя вошедшего пользователя (пусто для анонимных).
	Username string
	// Role — роль вошедшего пользователя.
	Role string
	// Flash — одноразовое сообщение.
	Flash *FlashMessage
}

// FlashMessage — переведённое flash-сообщение.
type FlashMessage struct {
	Kind string
	Text string
}

// T переводит ключ на язык страницы.
func (b Base) T(key string) string {
	return i18n.TLang(b.Lang, key)
}

// LoggedIn сообщает, выполнен ли вход.
func (b Base) LoggedIn() bool {
	return b.Username != ""
}

// IsAdmin сообщает, есть ли у пользователя роль admin.
func (b Base) IsAdmin() bool {
	return rbac.HasRole(b.Role, rbac.RoleAdmin)
}

// Languages — языки переключателя.
func (b Base) Languages() []string {
	return []string{"id", "en"}
}

// page рендерит шаблон name с данными data.
func page(name string, data any) templ.Component {
	return templ.FromGoHTML(templates[name], data)
}

func humanSize(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.0f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
