package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/bigkaa/bmkg-portal/internal/domain/model"
)

// ErrNoRecipient — у заявки нет адреса для уведомления.
var ErrNoRecipient = errors.New("у заявки нет контактного email")

// SMTPConfig — параметры SMTP-сервера.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// Timeout — таймаут соединения и отправки
	Timeout time.Duration
}

// MailSender отправляет готовое письмо. Реализуется *mail.Client.
type MailSender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

var emailTemplate = template.Must(template.New("email").Parse(`<!DOCTYPE html>
<html><body style="font-family: Arial, sans-serif">
<h2>Permohonan Wawancara BMKG</h2>
<p>Terima kasih, permohonan wawancara Anda telah kami terima.</p>
<table cellpadding="4">
<tr><td><b>Token</b></td><td>{{.Token}}</td></tr>
<tr><td><b>Pewawancara</b></td><td>{{.InterviewerName}}</td></tr>
<tr><td><b>Media</b></td><td>{{.MediaName}}</td></tr>
<tr><td><b>Topik</b></td><td>{{.Topic}}</td></tr>
<tr><td><b>Jadwal</b></td><td>{{.Schedule}}</td></tr>
<tr><td><b>Metode</b></td><td>{{.Method}}</td></tr>
{{if .MeetingLink}}<tr><td><b>Link</b></td><td>{{.MeetingLink}}</td></tr>{{end}}
</table>
<p>Simpan token ini untuk menanyakan status permohonan.</p>
</body></html>`))

type emailData struct {
	Token           string
	InterviewerName string
	MediaName       string
	Topic           string
	Schedule        string
	Method          string
	MeetingLink     string
}

// EmailNotifier отправляет заявителю HTML-письмо с описанием заявки.
type EmailNotifier struct {
	cfg    SMTPConfig
	loc    *time.Location
	sender MailSender
	logger *slog.Logger
}

// NewEmailNotifier создаёт отправителя на go-mail.
// Аутентификация включается, если задан Username.
func NewEmailNotifier(cfg SMTPConfig, loc *time.Location, logger *slog.Logger) (*EmailNotifier, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}

	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
		mail.WithTimeout(cfg.Timeout),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания SMTP-клиента: %w", err)
	}
	return NewEmailNotifierWithSender(cfg, loc, client, logger), nil
}

// NewEmailNotifierWithSender создаёт отправителя с явным транспортом (для тестов).
func NewEmailNotifierWithSender(cfg SMTPConfig, loc *time.Location, sender MailSender, logger *slog.Logger) *EmailNotifier {
	if loc == nil {
		loc = time.UTC
	}
	return &EmailNotifier{
		cfg:    cfg,
		loc:    loc,
		sender: sender,
		logger: logger.With(slog.String("component", "email_notifier")),
	}
}

// Channel возвращает имя канала для метрик.
func (n *EmailNotifier) Channel() string { return "email" }

// Notify отправляет письмо на ContactEmail заявки.
// Без адреса возвращает ErrNoRecipient.
func (n *EmailNotifier) Notify(ctx context.Context, req *model.InterviewRequest) error {
	if req.ContactEmail == nil || *req.ContactEmail == "" {
		return ErrNoRecipient
	}

	msg, err := n.buildMessage(req)
	if err != nil {
		return err
	}

	if err := n.sender.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("ошибка отправки email: %w", err)
	}

	n.logger.Info("Уведомление отправлено",
		slog.String("token", req.Token),
		slog.String("to", *req.ContactEmail),
	)
	return nil
}

func (n *EmailNotifier) buildMessage(req *model.InterviewRequest) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(n.cfg.From); err != nil {
		return nil, fmt.Errorf("некорректный адрес отправителя: %w", err)
	}
	if err := msg.To(*req.ContactEmail); err != nil {
		return nil, fmt.Errorf("некорректный адрес получателя: %w", err)
	}
	msg.Subject("Permohonan Wawancara BMKG - " + req.Token)

	data := emailData{
		Token:           req.Token,
		InterviewerName: req.InterviewerName,
		MediaName:       req.MediaName,
		Topic:           req.Topic,
		Schedule:        req.ScheduledAt.In(n.loc).Format(ScheduleLayout),
		Method:          req.Method,
	}
	if req.MeetingLink != nil {
		data.MeetingLink = *req.MeetingLink
	}

	var body bytes.Buffer
	if err := emailTemplate.Execute(&body, data); err != nil {
		return nil, fmt.Errorf("ошибка формирования письма: %w", err)
	}
	msg.SetBodyString(mail.TypeTextHTML, body.String())
	msg.AddAlternativeString(mail.TypeTextPlain, Summary(req, n.loc))
	return msg, nil
}
