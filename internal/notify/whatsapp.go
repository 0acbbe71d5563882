// Пакет notify — уведомления о новых заявках: deep-link WhatsApp,
// email по SMTP и асинхронный диспетчер post-commit событий.
package notify

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/bigkaa/bmkg-portal/internal/domain/model"
)

// ScheduleLayout — формат времени интервью в уведомлениях.
const ScheduleLayout = "02-01-2006 15:04"

// Summary возвращает человекочитаемое описание заявки.
func Summary(req *model.InterviewRequest, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}

	var b strings.Builder
	b.WriteString("Permohonan Wawancara BMKG\n")
	fmt.Fprintf(&b, "Token: %s\n", req.Token)
	fmt.Fprintf(&b, "Pewawancara: %s\n", req.InterviewerName)
	fmt.Fprintf(&b, "Media: %s\n", req.MediaName)
	fmt.Fprintf(&b, "Topik: %s\n", req.Topic)
	fmt.Fprintf(&b, "Jadwal: %s\n", req.ScheduledAt.In(loc).Format(ScheduleLayout))
	fmt.Fprintf(&b, "Metode: %s", req.Method)
	if req.MeetingLink != nil && *req.MeetingLink != "" {
		fmt.Fprintf(&b, "\nLink: %s", *req.MeetingLink)
	}
	return b.String()
}

// WhatsAppLink формирует ссылку https://wa.me/<номер>?text=<описание>.
// Из номера оставляются только цифры.
func WhatsAppLink(phone string, req *model.InterviewRequest, loc *time.Location) string {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, phone)

	text := strings.ReplaceAll(url.QueryEscape(Summary(req, loc)), "+", "%20")
	return "https://wa.me/" + digits + "?text=" + text
}
