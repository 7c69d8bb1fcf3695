package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk-sync/internal/domain"
)

// keyStore implements the two commands the Redis deduplicator issues.
type keyStore struct {
	redis.Cmdable
	ttl  map[string]time.Duration
	sets int
}

func (k *keyStore) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	k.sets++
	k.ttl[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (k *keyStore) Exists(ctx context.Context, keys ...string) *redis.IntCmd {
	var n int64
	for _, key := range keys {
		if _, ok := k.ttl[key]; ok {
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func (k *keyStore) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	var n int64
	for _, key := range keys {
		if _, ok := k.ttl[key]; ok {
			delete(k.ttl, key)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func TestRedis_RegisterSetsKeyWithWindowTTL(t *testing.T) {
	ctx := context.Background()
	store := &keyStore{ttl: map[string]time.Duration{}}
	d := NewRedis(store, 3*time.Second)

	require.NoError(t, d.RegisterChange(ctx, domain.StatusChangeRecord{
		TicketID:  "t1",
		TaskID:    "cu-1",
		NewStatus: domain.TicketStatusClosed,
		Origin:    domain.OriginRemote,
	}))
	assert.Equal(t, 3*time.Second, store.ttl["statussync:t1:cu-1:closed:remote"])

	dup, err := d.IsDuplicateChange(ctx, "t1", "cu-1", domain.TicketStatusClosed, domain.OriginRemote)
	require.NoError(t, err)
	assert.True(t, dup)

	dup, err = d.IsDuplicateChange(ctx, "t1", "cu-1", domain.TicketStatusClosed, domain.OriginLocal)
	require.NoError(t, err)
	assert.False(t, dup)
}

func TestRedis_DefaultWindow(t *testing.T) {
	store := &keyStore{ttl: map[string]time.Duration{}}
	require.NoError(t, NewRedis(store, 0).RegisterChange(context.Background(), domain.StatusChangeRecord{TicketID: "t", TaskID: "x", NewStatus: domain.TicketStatusOpen, Origin: domain.OriginLocal}))
	assert.Equal(t, DefaultWindow, store.ttl["statussync:t:x:open:local"])
}

func TestRedis_ForgetDeletesKey(t *testing.T) {
	ctx := context.Background()
	store := &keyStore{ttl: map[string]time.Duration{}}
	d := NewRedis(store, time.Second)
	rec := domain.StatusChangeRecord{TicketID: "t1", TaskID: "cu-1", NewStatus: domain.TicketStatusResolved, Origin: domain.OriginLocal}

	require.NoError(t, d.RegisterChange(ctx, rec))
	require.NoError(t, d.Forget(ctx, rec))

	dup, err := d.IsDuplicateChange(ctx, "t1", "cu-1", domain.TicketStatusResolved, domain.OriginLocal)
	require.NoError(t, err)
	assert.False(t, dup)
}
