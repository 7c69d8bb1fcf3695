// Package dedup records recent status transitions tagged with their origin and
// answers whether a new one repeats a transition already seen inside the window.
package dedup

import (
	"context"
	"time"

	"github.com/spec-kit/helpdesk-sync/internal/domain"
)

// DefaultWindow is how long a recorded change suppresses repeats.
const DefaultWindow = 5 * time.Second

// Deduplicator is the status-change loop guard. Matching is scoped to the
// same origin: a local write and its remote echo never match each other.
type Deduplicator interface {
	RegisterChange(ctx context.Context, record domain.StatusChangeRecord) error
	IsDuplicateChange(ctx context.Context, ticketID, taskID string, status domain.TicketStatus, origin domain.ChangeOrigin) (bool, error)
	// Forget drops a registered change so a retry is not suppressed.
	Forget(ctx context.Context, record domain.StatusChangeRecord) error
}
