package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-sync/internal/domain"
)

// CommentRepository manages the append-only ticket comment thread.
type CommentRepository interface {
	Create(ctx context.Context, comment *domain.Comment) error
	ListByTicket(ctx context.Context, ticketID string) ([]domain.Comment, error)
	SetExternalID(ctx context.Context, commentID, externalID string) error
	ExistsByExternalID(ctx context.Context, ticketID, externalID string) (bool, error)
}

type commentRepository struct {
	pool *pgxpool.Pool
}

// NewCommentRepository builds repository.
func NewCommentRepository(pool *pgxpool.Pool) CommentRepository {
	return &commentRepository{pool: pool}
}

func (r *commentRepository) Create(ctx context.Context, comment *domain.Comment) error {
	const query = `
        INSERT INTO ticket_comments (ticket_id, content, author_id, author_name, source, external_comment_id)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		comment.TicketID,
		comment.Content,
		comment.AuthorID,
		comment.AuthorName,
		comment.Source,
		comment.ExternalCommentID,
	).Scan(&comment.ID, &comment.CreatedAt)
}

func (r *commentRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.Comment, error) {
	const query = `
        SELECT id, ticket_id, content, author_id, author_name, source, external_comment_id, created_at
        FROM ticket_comments WHERE ticket_id=$1 ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Comment
	for rows.Next() {
		var comment domain.Comment
		if err := rows.Scan(
			&comment.ID,
			&comment.TicketID,
			&comment.Content,
			&comment.AuthorID,
			&comment.AuthorName,
			&comment.Source,
			&comment.ExternalCommentID,
			&comment.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, comment)
	}
	return result, rows.Err()
}

func (r *commentRepository) SetExternalID(ctx context.Context, commentID, externalID string) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE ticket_comments SET external_comment_id=$1 WHERE id=$2`, externalID, commentID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *commentRepository) ExistsByExternalID(ctx context.Context, ticketID, externalID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM ticket_comments WHERE ticket_id=$1 AND external_comment_id=$2)`,
		ticketID, externalID,
	).Scan(&exists)
	return exists, err
}
