package mq

import (
	"context"
	"log/slog"
	"time"

	"github.com/shaiso/Deployer/internal/domain"
)

const defaultPublishTimeout = 5 * time.Second

// EventPublisher транслирует события контейнера и итоги pipeline в ExchangeEvents.
//
// Реализует container.Observer и pipeline.Recorder. Ошибки публикации
// события сервиса только логируются: шина событий не влияет на контейнер.
type EventPublisher struct {
	sender  Sender
	timeout time.Duration
	logger  *slog.Logger
}

// NewEventPublisher создаёт EventPublisher поверх sender.
func NewEventPublisher(sender Sender, logger *slog.Logger) *EventPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventPublisher{
		sender:  sender,
		timeout: defaultPublishTimeout,
		logger:  logger,
	}
}

// ServiceStateChanged реализует container.Observer.
func (p *EventPublisher) ServiceStateChanged(ctx context.Context, ev domain.ServiceEvent) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	msg := NewMessage(MessageTypeServiceStateChanged, ev)
	if err := p.sender.Publish(ctx, ExchangeEvents, ServiceKey(ev.To), msg); err != nil {
		p.logger.Warn("failed to publish service event",
			"service", ev.Service,
			"state", ev.To,
			"error", err,
		)
	}
}

// Record реализует pipeline.Recorder.
func (p *EventPublisher) Record(ctx context.Context, d *domain.Deployment) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	msg := NewMessage(MessageTypeDeploymentFinished, d)
	return p.sender.Publish(ctx, ExchangeEvents, DeploymentKey(d.Status), msg)
}
