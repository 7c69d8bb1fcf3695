package domain

import "time"

// CommentSource records where a comment was first written.
type CommentSource string

const (
	CommentSourceLocal   CommentSource = "local"
	CommentSourceClickUp CommentSource = "clickup"
	CommentSourceSystem  CommentSource = "system"
)

// Comment is an append-only entry in a ticket thread.
type Comment struct {
	ID                string
	TicketID          string
	Content           string
	AuthorID          string
	AuthorName        string
	Source            CommentSource
	ExternalCommentID *string
	CreatedAt         time.Time
}
