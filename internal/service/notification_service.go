package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-sync/internal/config"
	"github.com/spec-kit/helpdesk-sync/internal/domain"
	"github.com/spec-kit/helpdesk-sync/internal/events"
	"github.com/spec-kit/helpdesk-sync/internal/repository"
)

// NotificationService turns domain events into queued webhook deliveries,
// one per subscriber URL. Email remains a logging stub.
type NotificationService struct {
	dispatcher events.Dispatcher
	deliveries repository.WebhookDeliveryRepository
	logger     *zap.Logger
	cfg        config.NotificationConfig
	now        func() time.Time
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, deliveries repository.WebhookDeliveryRepository, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: dispatcher,
		deliveries: deliveries,
		logger:     logger,
		cfg:        cfg,
		now:        time.Now,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	for _, eventType := range events.AllEventTypes {
		n.dispatcher.Subscribe(eventType, n.handleEvent)
	}
	n.dispatcher.Subscribe(events.EventTicketCreated, n.emailStub)
	n.dispatcher.Subscribe(events.EventTicketCommentAdded, n.emailStub)
}

func (n *NotificationService) handleEvent(ctx context.Context, event events.Event) error {
	n.logger.Info("ticket event",
		zap.String("event_type", string(event.Type)),
		zap.String("ticket_id", event.TicketID),
		zap.String("origin", string(event.Actor.Origin)))
	if n.deliveries == nil || len(n.cfg.WebhookURLs) == 0 {
		return nil
	}
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	for _, url := range n.cfg.WebhookURLs {
		url = strings.TrimSpace(url)
		if url == "" {
			continue
		}
		delivery := &domain.WebhookDelivery{
			EventID:       event.ID,
			EventType:     string(event.Type),
			TicketID:      event.TicketID,
			URL:           url,
			Payload:       body,
			Status:        domain.DeliveryStatusPending,
			NextAttemptAt: n.now(),
		}
		if err := n.deliveries.Enqueue(ctx, delivery); err != nil {
			return err
		}
		n.logger.Debug("webhook delivery queued",
			zap.String("delivery_id", delivery.ID),
			zap.String("url", url),
			zap.String("event_type", delivery.EventType))
	}
	return nil
}

func (n *NotificationService) emailStub(ctx context.Context, event events.Event) error {
	if strings.TrimSpace(n.cfg.EmailFrom) == "" {
		return nil
	}
	n.logger.Debug("sendEmailNotificationStub",
		zap.String("from", n.cfg.EmailFrom),
		zap.String("ticket_id", event.TicketID),
		zap.String("event_type", string(event.Type)))
	return nil
}
