package dedup

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/helpdesk-sync/internal/domain"
)

const defaultKeyPrefix = "statussync"

// Redis stores each record as a key whose TTL equals the window, so dedup
// holds across every instance sharing the Redis database.
type Redis struct {
	client redis.Cmdable
	window time.Duration
	prefix string
}

// NewRedis builds a Redis-backed deduplicator.
func NewRedis(client redis.Cmdable, window time.Duration) *Redis {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Redis{client: client, window: window, prefix: defaultKeyPrefix}
}

func (r *Redis) RegisterChange(ctx context.Context, record domain.StatusChangeRecord) error {
	ts := record.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	key := r.key(record.TicketID, record.TaskID, record.NewStatus, record.Origin)
	return r.client.Set(ctx, key, strconv.FormatInt(ts.UnixMilli(), 10), r.window).Err()
}

func (r *Redis) IsDuplicateChange(ctx context.Context, ticketID, taskID string, status domain.TicketStatus, origin domain.ChangeOrigin) (bool, error) {
	n, err := r.client.Exists(ctx, r.key(ticketID, taskID, status, origin)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *Redis) Forget(ctx context.Context, record domain.StatusChangeRecord) error {
	return r.client.Del(ctx, r.key(record.TicketID, record.TaskID, record.NewStatus, record.Origin)).Err()
}

func (r *Redis) key(ticketID, taskID string, status domain.TicketStatus, origin domain.ChangeOrigin) string {
	return fmt.Sprintf("%s:%s:%s:%s:%s", r.prefix, ticketID, taskID, status, origin)
}
