// publisher.go (package alerts): рассылка созданных алертов.
package alerts

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/monad-curator/internal/events"
	"serotonyl.ru/monad-curator/internal/features/projects"
	"serotonyl.ru/monad-curator/internal/metrics"
)

const notifyTimeout = 30 * time.Second

// Notifier доставляет алерт во внешний канал (Telegram).
type Notifier interface {
	NotifyAlert(ctx context.Context, a *Alert, p *projects.Project) error
}

// NoopNotifier используется, когда внешний канал выключен.
type NoopNotifier struct{}

func (NoopNotifier) NotifyAlert(context.Context, *Alert, *projects.Project) error { return nil }

// Publisher публикует alert.created и отправляет уведомление в фоне.
// Ошибки доставки только логируются.
type Publisher struct {
	sink     events.Sink
	notifier Notifier
	metrics  *metrics.MetricService
	wg       sync.WaitGroup
}

// NewPublisher создаёт рассыльщик. notifier может быть nil.
func NewPublisher(sink events.Sink, notifier Notifier, m *metrics.MetricService) *Publisher {
	if notifier == nil {
		notifier = NoopNotifier{}
	}
	return &Publisher{sink: sink, notifier: notifier, metrics: m}
}

// Publish вызывается после коммита транзакции, создавшей алерт.
func (p *Publisher) Publish(a *Alert, project *projects.Project) {
	p.metrics.AlertCreated(string(a.AlertType))
	if p.sink != nil {
		p.sink.Publish(events.TopicAlertCreated, Created{Alert: a, ProjectName: project.Name})
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()

		if err := p.notifier.NotifyAlert(ctx, a, project); err != nil {
			p.metrics.NotifyFailed()
			log.WithError(err).WithFields(log.Fields{
				"alert_id":   a.ID,
				"project_id": a.ProjectID,
			}).Warn("Не удалось доставить алерт")
		}
	}()
}

// Wait ждёт фоновые отправки или отмену ctx.
func (p *Publisher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
