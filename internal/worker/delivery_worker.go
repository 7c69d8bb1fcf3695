package worker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-sync/internal/config"
	"github.com/spec-kit/helpdesk-sync/internal/domain"
	"github.com/spec-kit/helpdesk-sync/internal/repository"
)

const deliveryBatchSize = 50

// DeliveryWorker drains the outbound webhook queue on a fixed tick.
type DeliveryWorker struct {
	repo        repository.WebhookDeliveryRepository
	client      *http.Client
	logger      *zap.Logger
	interval    time.Duration
	maxAttempts int
	backoff     time.Duration
	retention   time.Duration
	now         func() time.Time
}

// NewDeliveryWorker builds a worker from the notification settings.
func NewDeliveryWorker(repo repository.WebhookDeliveryRepository, cfg config.NotificationConfig, logger *zap.Logger) *DeliveryWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &DeliveryWorker{
		repo:        repo,
		client:      &http.Client{Timeout: cfg.DeliveryTimeout()},
		logger:      logger,
		interval:    cfg.PollInterval(),
		maxAttempts: maxAttempts,
		backoff:     cfg.Backoff(),
		retention:   cfg.Retention(),
		now:         time.Now,
	}
}

// Run ticks until ctx is cancelled.
func (w *DeliveryWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("delivery worker started", zap.Duration("interval", w.interval))
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("delivery worker stopped")
			return
		case <-ticker.C:
			if err := w.Tick(ctx); err != nil {
				w.logger.Warn("delivery tick failed", zap.Error(err))
			}
		}
	}
}

// Tick sends every due delivery once and purges finished rows past retention.
func (w *DeliveryWorker) Tick(ctx context.Context) error {
	due, err := w.repo.ListDue(ctx, w.now(), deliveryBatchSize)
	if err != nil {
		return fmt.Errorf("list due deliveries: %w", err)
	}
	for _, delivery := range due {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		w.deliver(ctx, delivery)
	}

	purged, err := w.repo.PurgeFinishedBefore(ctx, w.now().Add(-w.retention))
	if err != nil {
		return fmt.Errorf("purge deliveries: %w", err)
	}
	if purged > 0 {
		w.logger.Debug("purged finished deliveries", zap.Int64("count", purged))
	}
	return nil
}

func (w *DeliveryWorker) deliver(ctx context.Context, delivery domain.WebhookDelivery) {
	attempts := delivery.Attempts + 1
	log := w.logger.With(
		zap.String("delivery_id", delivery.ID),
		zap.String("event_type", delivery.EventType),
		zap.String("url", delivery.URL),
		zap.Int("attempt", attempts))

	sendErr := w.post(ctx, delivery)
	if sendErr == nil {
		if err := w.repo.MarkCompleted(ctx, delivery.ID, attempts); err != nil {
			log.Error("mark delivery completed", zap.Error(err))
			return
		}
		log.Debug("webhook delivered")
		return
	}

	if attempts >= w.maxAttempts {
		if err := w.repo.MarkFailed(ctx, delivery.ID, attempts, sendErr.Error()); err != nil {
			log.Error("mark delivery failed", zap.Error(err))
			return
		}
		log.Warn("webhook delivery abandoned", zap.Error(sendErr))
		return
	}

	next := w.now().Add(time.Duration(attempts) * w.backoff)
	if err := w.repo.MarkRetry(ctx, delivery.ID, attempts, next, sendErr.Error()); err != nil {
		log.Error("mark delivery retry", zap.Error(err))
		return
	}
	log.Info("webhook delivery will retry", zap.Time("next_attempt_at", next), zap.Error(sendErr))
}

func (w *DeliveryWorker) post(ctx context.Context, delivery domain.WebhookDelivery) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, delivery.URL, bytes.NewReader(delivery.Payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Type", delivery.EventType)
	req.Header.Set("X-Delivery-ID", delivery.ID)

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("subscriber responded %d", resp.StatusCode)
	}
	return nil
}
