package domain

import "time"

// ChangeOrigin tags which side of the sync produced a change.
type ChangeOrigin string

const (
	OriginLocal  ChangeOrigin = "local"
	OriginRemote ChangeOrigin = "remote"
)

// StatusChangeRecord is an ephemeral dedup entry for one status propagation attempt.
type StatusChangeRecord struct {
	TicketID  string
	TaskID    string
	NewStatus TicketStatus
	Origin    ChangeOrigin
	Timestamp time.Time
}
