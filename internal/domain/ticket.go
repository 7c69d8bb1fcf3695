package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "open"
	TicketStatusInProgress TicketStatus = "in_progress"
	TicketStatusResolved   TicketStatus = "resolved"
	TicketStatusClosed     TicketStatus = "closed"
)

// TicketStatuses lists every status in lifecycle order.
var TicketStatuses = []TicketStatus{
	TicketStatusOpen,
	TicketStatusInProgress,
	TicketStatusResolved,
	TicketStatusClosed,
}

// Valid reports whether s is a known status.
func (s TicketStatus) Valid() bool {
	for _, known := range TicketStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// TicketPriority enumerates SLA urgency.
type TicketPriority string

const (
	TicketPriorityLow      TicketPriority = "low"
	TicketPriorityMedium   TicketPriority = "medium"
	TicketPriorityHigh     TicketPriority = "high"
	TicketPriorityCritical TicketPriority = "critical"
)

// Valid reports whether p is a known priority.
func (p TicketPriority) Valid() bool {
	_, ok := prioritySLA[p]
	return ok
}

var prioritySLA = map[TicketPriority]time.Duration{
	TicketPriorityCritical: 4 * time.Hour,
	TicketPriorityHigh:     24 * time.Hour,
	TicketPriorityMedium:   72 * time.Hour,
	TicketPriorityLow:      168 * time.Hour,
}

// SLA returns the resolution window for a priority. Unknown priorities get the medium window.
func (p TicketPriority) SLA() time.Duration {
	if d, ok := prioritySLA[p]; ok {
		return d
	}
	return prioritySLA[TicketPriorityMedium]
}

// DeadlineFrom computes the ticket deadline for a priority starting at from.
func DeadlineFrom(p TicketPriority, from time.Time) time.Time {
	return from.Add(p.SLA())
}

// Ticket is the aggregate for support requests.
type Ticket struct {
	ID             string
	Title          string
	Description    string
	Status         TicketStatus
	Priority       TicketPriority
	Deadline       time.Time
	ExternalTaskID *string
	AssignedToID   *string
	AssignedToName *string
	CreatedByID    string
	CreatedByName  string
	Comments       []Comment
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// HasExternalTask reports whether the ticket is linked to a ClickUp task.
func (t *Ticket) HasExternalTask() bool {
	return t != nil && t.ExternalTaskID != nil && *t.ExternalTaskID != ""
}

// TaskID returns the linked task id or an empty string.
func (t *Ticket) TaskID() string {
	if !t.HasExternalTask() {
		return ""
	}
	return *t.ExternalTaskID
}
