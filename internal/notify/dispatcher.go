package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/bmkg-portal/internal/domain/model"
)

// notificationsTotal — результаты доставки уведомлений по каналам.
var notificationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "bp_notifications_total",
		Help: "Количество уведомлений о заявках по каналу и результату.",
	},
	[]string{"channel", "result"},
)

// Результаты доставки для метрики.
const (
	resultSent    = "sent"
	resultFailed  = "failed"
	resultSkipped = "skipped"
	resultDropped = "dropped"
)

// Notifier — канал уведомления о новой заявке.
type Notifier interface {
	// Channel — имя канала (email, whatsapp).
	Channel() string
	// Notify доставляет уведомление.
	Notify(ctx context.Context, req *model.InterviewRequest) error
}

// Dispatcher доставляет уведомления о созданных заявках в фоне.
// Publish вызывается после успешной записи и никогда не блокирует
// вызывающего: при переполненной очереди событие отбрасывается.
// Ошибки каналов только логируются и учитываются в метриках.
type Dispatcher struct {
	queue     chan *model.InterviewRequest
	notifiers []Notifier
	timeout   time.Duration
	logger    *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewDispatcher создаёт диспетчер с очередью размера queueSize.
func NewDispatcher(queueSize int, logger *slog.Logger, notifiers ...Notifier) *Dispatcher {
	if queueSize < 1 {
		queueSize = 1
	}
	return &Dispatcher{
		queue:     make(chan *model.InterviewRequest, queueSize),
		notifiers: notifiers,
		timeout:   30 * time.Second,
		logger:    logger.With(slog.String("component", "notify_dispatcher")),
	}
}

// Publish ставит заявку в очередь уведомлений.
// Возвращает false, если очередь заполнена и событие отброшено.
func (d *Dispatcher) Publish(req *model.InterviewRequest) bool {
	select {
	case d.queue <- req:
		return true
	default:
		for _, n := range d.notifiers {
			notificationsTotal.WithLabelValues(n.Channel(), resultDropped).Inc()
		}
		d.logger.Warn("Очередь уведомлений заполнена, событие отброшено",
			slog.String("token", req.Token),
		)
		return false
	}
}

// Start запускает фоновую обработку очереди.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.done != nil {
		return
	}

	ctx, d.cancel = context.WithCancel(ctx)
	d.done = make(chan struct{})

	go func() {
		defer close(d.done)

		d.logger.Info("Диспетчер уведомлений запущен",
			slog.Int("queue_size", cap(d.queue)),
			slog.Int("channels", len(d.notifiers)),
		)

		for {
			select {
			case <-ctx.Done():
				d.drain()
				d.logger.Info("Диспетчер уведомлений остановлен")
				return
			case req := <-d.queue:
				d.deliver(context.WithoutCancel(ctx), req)
			}
		}
	}()
}

// Stop останавливает обработку, предварительно доставив события из очереди.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	cancel, done := d.cancel, d.done
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// drain доставляет оставшиеся в очереди события.
func (d *Dispatcher) drain() {
	for {
		select {
		case req := <-d.queue:
			d.deliver(context.Background(), req)
		default:
			return
		}
	}
}

// deliver отправляет заявку во все каналы. Ошибки не распространяются.
func (d *Dispatcher) deliver(ctx context.Context, req *model.InterviewRequest) {
	for _, n := range d.notifiers {
		nctx, cancel := context.WithTimeout(ctx, d.timeout)
		err := n.Notify(nctx, req)
		cancel()

		switch {
		case err == nil:
			notificationsTotal.WithLabelValues(n.Channel(), resultSent).Inc()
		case errors.Is(err, ErrNoRecipient):
			notificationsTotal.WithLabelValues(n.Channel(), resultSkipped).Inc()
		default:
			notificationsTotal.WithLabelValues(n.Channel(), resultFailed).Inc()
			d.logger.Error("Ошибка доставки уведомления",
				slog.String("channel", n.Channel()),
				slog.String("token", req.Token),
				slog.String("error", err.Error()),
			)
		}
	}
}

// LinkNotifier записывает в журнал готовую ссылку WhatsApp,
// по которой оператор открывает переписку с заявителем.
type LinkNotifier struct {
	logger *slog.Logger
}

// NewLinkNotifier создаёт канал whatsapp.
func NewLinkNotifier(logger *slog.Logger) *LinkNotifier {
	return &LinkNotifier{logger: logger.With(slog.String("component", "whatsapp_notifier"))}
}

// Channel возвращает "whatsapp".
func (n *LinkNotifier) Channel() string { return "whatsapp" }

// Notify логирует ссылку. Без ссылки возвращает ErrNoRecipient.
func (n *LinkNotifier) Notify(_ context.Context, req *model.InterviewRequest) error {
	if req.WhatsAppLink == nil || *req.WhatsAppLink == "" {
		return ErrNoRecipient
	}
	n.logger.Info("Новая заявка на интервью",
		slog.String("token", req.Token),
		slog.String("media", req.MediaName),
		slog.String("whatsapp_link", *req.WhatsAppLink),
	)
	return nil
}
