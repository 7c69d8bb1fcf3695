package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-sync/internal/clickup"
	"github.com/spec-kit/helpdesk-sync/internal/domain"
	"github.com/spec-kit/helpdesk-sync/internal/repository"
)

// SyncOptions tunes one ticket to task reconciliation.
type SyncOptions struct {
	// FieldsOnly skips the status transition; used when re-propagating
	// fields after a change that came from ClickUp itself.
	FieldsOnly bool
}

// SyncService reconciles tickets with their ClickUp tasks.
type SyncService struct {
	tasks   *TaskService
	tickets repository.TicketRepository
	history repository.TicketHistoryRepository
	logger  *zap.Logger
}

// SyncDependencies bundles collaborators for SyncService.
type SyncDependencies struct {
	Tasks       *TaskService
	TicketRepo  repository.TicketRepository
	HistoryRepo repository.TicketHistoryRepository
	Logger      *zap.Logger
}

// NewSyncService constructs the service.
func NewSyncService(deps SyncDependencies) *SyncService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SyncService{
		tasks:   deps.Tasks,
		tickets: deps.TicketRepo,
		history: deps.HistoryRepo,
		logger:  logger,
	}
}

// SyncTicketWithClickUp creates or updates the task mirroring ticket and
// returns its id. A task deleted on the ClickUp side is recreated.
func (s *SyncService) SyncTicketWithClickUp(ctx context.Context, ticket *domain.Ticket, opts SyncOptions) (string, error) {
	if !s.tasks.IsConfigured(ctx) {
		return "", ErrNotConfigured
	}
	if !ticket.HasExternalTask() {
		return s.tasks.CreateTask(ctx, ticket)
	}

	taskID := ticket.TaskID()
	exists, err := s.tasks.TaskExists(ctx, taskID)
	if err != nil {
		return "", err
	}
	if !exists {
		s.logger.Warn("clickup task missing, recreating",
			zap.String("ticket_id", ticket.ID), zap.String("task_id", taskID))
		return s.tasks.CreateTask(ctx, ticket)
	}

	if err := s.tasks.UpdateTask(ctx, taskID, ticket, opts.FieldsOnly); err != nil {
		if !isTaskGone(err) {
			return "", err
		}
		// A missing status on the list reads like a missing task; only a
		// second existence check tells them apart.
		stillExists, existsErr := s.tasks.TaskExists(ctx, taskID)
		if existsErr != nil || stillExists {
			return "", err
		}
		s.logger.Warn("clickup task vanished during update, recreating",
			zap.String("ticket_id", ticket.ID), zap.String("task_id", taskID), zap.Error(err))
		return s.tasks.CreateTask(ctx, ticket)
	}
	return taskID, nil
}

// SyncAndLink syncs ticket and persists a new task id when one was created.
// The returned ticket reflects the stored link.
func (s *SyncService) SyncAndLink(ctx context.Context, ticket *domain.Ticket, opts SyncOptions) (*domain.Ticket, error) {
	taskID, err := s.SyncTicketWithClickUp(ctx, ticket, opts)
	if err != nil {
		return ticket, err
	}
	if taskID == "" || taskID == ticket.TaskID() {
		return ticket, nil
	}

	previous := ticket.TaskID()
	updated, err := s.tickets.Update(ctx, ticket.ID, repository.TicketUpdate{ExternalTaskID: &taskID})
	if err != nil {
		return ticket, err
	}
	if s.history != nil {
		entry := &domain.TicketHistory{
			TicketID:   ticket.ID,
			Origin:     domain.OriginLocal,
			ChangeType: domain.ChangeTypeLink,
			OldValue:   map[string]any{"external_task_id": previous},
			NewValue:   map[string]any{"external_task_id": taskID},
		}
		if err := s.history.Create(ctx, entry); err != nil {
			s.logger.Warn("record task link failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
		}
	}
	updated.Comments = ticket.Comments
	return updated, nil
}

// DeleteTask removes the task linked to ticket. It never fails: a ticket
// without a task succeeds trivially and remote failures are only logged.
func (s *SyncService) DeleteTask(ctx context.Context, ticket *domain.Ticket) bool {
	if !ticket.HasExternalTask() {
		return true
	}
	if !s.tasks.IsConfigured(ctx) {
		s.logger.Warn("clickup delete skipped, integration not configured",
			zap.String("ticket_id", ticket.ID), zap.String("task_id", ticket.TaskID()))
		return false
	}
	return s.tasks.DeleteTask(ctx, ticket.TaskID())
}

// SyncComment mirrors a comment onto the task and returns the ClickUp comment id.
func (s *SyncService) SyncComment(ctx context.Context, ticketID, taskID, text string) (string, bool) {
	if taskID == "" {
		return "", false
	}
	if !s.tasks.IsConfigured(ctx) {
		s.logger.Debug("clickup comment skipped, integration not configured", zap.String("ticket_id", ticketID))
		return "", false
	}
	id, ok := s.tasks.AddComment(ctx, taskID, text)
	if !ok {
		s.logger.Warn("clickup comment mirror failed", zap.String("ticket_id", ticketID), zap.String("task_id", taskID))
	}
	return id, ok
}

func isTaskGone(err error) bool {
	if clickup.IsNotFound(err) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "not found")
}
