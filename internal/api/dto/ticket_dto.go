package dto

import (
	"time"

	"github.com/spec-kit/helpdesk-sync/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Title          string                `json:"title"`
	Description    string                `json:"description"`
	Priority       domain.TicketPriority `json:"priority"`
	AssignedToID   *string               `json:"assigned_to_id"`
	AssignedToName *string               `json:"assigned_to_name"`
}

// UpdateTicketRequest edits title and description.
type UpdateTicketRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
}

// UpdateStatusRequest payload.
type UpdateStatusRequest struct {
	Status domain.TicketStatus `json:"status"`
}

// UpdatePriorityRequest payload.
type UpdatePriorityRequest struct {
	Priority domain.TicketPriority `json:"priority"`
}

// AssignRequest payload. A null assignee clears the assignment.
type AssignRequest struct {
	AssigneeID   *string `json:"assignee_id"`
	AssigneeName *string `json:"assignee_name"`
}

// CreateCommentRequest payload.
type CreateCommentRequest struct {
	Content string `json:"content"`
}

// TicketResponse is the full ticket view.
type TicketResponse struct {
	ID             string                `json:"id"`
	Title          string                `json:"title"`
	Description    string                `json:"description"`
	Status         domain.TicketStatus   `json:"status"`
	Priority       domain.TicketPriority `json:"priority"`
	Deadline       time.Time             `json:"deadline"`
	ExternalTaskID *string               `json:"external_task_id"`
	AssignedToID   *string               `json:"assigned_to_id"`
	AssignedToName *string               `json:"assigned_to_name"`
	CreatedByID    string                `json:"created_by_id"`
	CreatedByName  string                `json:"created_by_name"`
	Comments       []CommentResponse     `json:"comments,omitempty"`
	CreatedAt      time.Time             `json:"created_at"`
	UpdatedAt      time.Time             `json:"updated_at"`
}

// CommentResponse represents a thread entry.
type CommentResponse struct {
	ID                string               `json:"id"`
	Content           string               `json:"content"`
	AuthorID          string               `json:"author_id"`
	AuthorName        string               `json:"author_name"`
	Source            domain.CommentSource `json:"source"`
	ExternalCommentID *string              `json:"external_comment_id"`
	CreatedAt         time.Time            `json:"created_at"`
}

// HistoryResponse is one audit entry.
type HistoryResponse struct {
	ID          string                  `json:"id"`
	Origin      domain.ChangeOrigin     `json:"origin"`
	ChangedByID *string                 `json:"changed_by_id"`
	ChangeType  domain.TicketChangeType `json:"change_type"`
	OldValue    map[string]any          `json:"old_value"`
	NewValue    map[string]any          `json:"new_value"`
	CreatedAt   time.Time               `json:"created_at"`
}

// NewTicketResponse maps a domain ticket.
func NewTicketResponse(t *domain.Ticket) TicketResponse {
	resp := TicketResponse{
		ID:             t.ID,
		Title:          t.Title,
		Description:    t.Description,
		Status:         t.Status,
		Priority:       t.Priority,
		Deadline:       t.Deadline,
		ExternalTaskID: t.ExternalTaskID,
		AssignedToID:   t.AssignedToID,
		AssignedToName: t.AssignedToName,
		CreatedByID:    t.CreatedByID,
		CreatedByName:  t.CreatedByName,
		CreatedAt:      t.CreatedAt,
		UpdatedAt:      t.UpdatedAt,
	}
	for i := range t.Comments {
		resp.Comments = append(resp.Comments, NewCommentResponse(&t.Comments[i]))
	}
	return resp
}

// NewCommentResponse maps a domain comment.
func NewCommentResponse(c *domain.Comment) CommentResponse {
	return CommentResponse{
		ID:                c.ID,
		Content:           c.Content,
		AuthorID:          c.AuthorID,
		AuthorName:        c.AuthorName,
		Source:            c.Source,
		ExternalCommentID: c.ExternalCommentID,
		CreatedAt:         c.CreatedAt,
	}
}

// NewHistoryResponse maps an audit entry.
func NewHistoryResponse(h *domain.TicketHistory) HistoryResponse {
	return HistoryResponse{
		ID:          h.ID,
		Origin:      h.Origin,
		ChangedByID: h.ChangedByID,
		ChangeType:  h.ChangeType,
		OldValue:    h.OldValue,
		NewValue:    h.NewValue,
		CreatedAt:   h.CreatedAt,
	}
}
