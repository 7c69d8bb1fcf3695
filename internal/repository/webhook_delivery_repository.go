package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-sync/internal/domain"
)

// WebhookDeliveryRepository persists the outbound webhook queue.
type WebhookDeliveryRepository interface {
	Enqueue(ctx context.Context, delivery *domain.WebhookDelivery) error
	ListDue(ctx context.Context, now time.Time, limit int) ([]domain.WebhookDelivery, error)
	MarkCompleted(ctx context.Context, id string, attempts int) error
	MarkRetry(ctx context.Context, id string, attempts int, nextAttemptAt time.Time, lastError string) error
	MarkFailed(ctx context.Context, id string, attempts int, lastError string) error
	PurgeFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type webhookDeliveryRepository struct {
	pool *pgxpool.Pool
}

// NewWebhookDeliveryRepository builds repository.
func NewWebhookDeliveryRepository(pool *pgxpool.Pool) WebhookDeliveryRepository {
	return &webhookDeliveryRepository{pool: pool}
}

func (r *webhookDeliveryRepository) Enqueue(ctx context.Context, delivery *domain.WebhookDelivery) error {
	const query = `
        INSERT INTO webhook_deliveries (event_id, event_type, ticket_id, url, payload, status, attempts, next_attempt_at)
        VALUES ($1,$2,$3,$4,$5,$6,0,$7)
        RETURNING id, created_at, updated_at`
	if delivery.Status == "" {
		delivery.Status = domain.DeliveryStatusPending
	}
	if delivery.NextAttemptAt.IsZero() {
		delivery.NextAttemptAt = time.Now()
	}
	return r.pool.QueryRow(ctx, query,
		delivery.EventID,
		delivery.EventType,
		delivery.TicketID,
		delivery.URL,
		delivery.Payload,
		delivery.Status,
		delivery.NextAttemptAt,
	).Scan(&delivery.ID, &delivery.CreatedAt, &delivery.UpdatedAt)
}

func (r *webhookDeliveryRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.WebhookDelivery, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `
        SELECT id, event_id, event_type, ticket_id, url, payload, status, attempts, last_error,
               next_attempt_at, created_at, updated_at
        FROM webhook_deliveries
        WHERE status=$1 AND next_attempt_at <= $2
        ORDER BY next_attempt_at ASC LIMIT $3`
	rows, err := r.pool.Query(ctx, query, domain.DeliveryStatusPending, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.WebhookDelivery
	for rows.Next() {
		var d domain.WebhookDelivery
		if err := rows.Scan(
			&d.ID,
			&d.EventID,
			&d.EventType,
			&d.TicketID,
			&d.URL,
			&d.Payload,
			&d.Status,
			&d.Attempts,
			&d.LastError,
			&d.NextAttemptAt,
			&d.CreatedAt,
			&d.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	return result, rows.Err()
}

func (r *webhookDeliveryRepository) MarkCompleted(ctx context.Context, id string, attempts int) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE webhook_deliveries SET status=$1, attempts=$2, last_error=NULL, updated_at=NOW() WHERE id=$3`,
		domain.DeliveryStatusCompleted, attempts, id)
	return err
}

func (r *webhookDeliveryRepository) MarkRetry(ctx context.Context, id string, attempts int, nextAttemptAt time.Time, lastError string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE webhook_deliveries SET attempts=$1, next_attempt_at=$2, last_error=$3, updated_at=NOW() WHERE id=$4`,
		attempts, nextAttemptAt, lastError, id)
	return err
}

func (r *webhookDeliveryRepository) MarkFailed(ctx context.Context, id string, attempts int, lastError string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE webhook_deliveries SET status=$1, attempts=$2, last_error=$3, updated_at=NOW() WHERE id=$4`,
		domain.DeliveryStatusFailed, attempts, lastError, id)
	return err
}

func (r *webhookDeliveryRepository) PurgeFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	cmd, err := r.pool.Exec(ctx,
		`DELETE FROM webhook_deliveries WHERE status IN ($1,$2) AND updated_at < $3`,
		domain.DeliveryStatusCompleted, domain.DeliveryStatusFailed, cutoff)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}
