package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-sync/internal/clickup"
	"github.com/spec-kit/helpdesk-sync/internal/domain"
	"github.com/spec-kit/helpdesk-sync/internal/events"
	"github.com/spec-kit/helpdesk-sync/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-sync/pkg/util/errorutil"
)

// TicketService coordinates local ticket workflows and feeds the sync core.
type TicketService struct {
	tickets    repository.TicketRepository
	comments   repository.CommentRepository
	history    repository.TicketHistoryRepository
	sync       *SyncService
	statusSync *StatusSync
	dispatcher events.Dispatcher
	logger     *zap.Logger
	now        func() time.Time
}

// TicketDependencies bundles collaborators for ticket service.
type TicketDependencies struct {
	TicketRepo  repository.TicketRepository
	CommentRepo repository.CommentRepository
	HistoryRepo repository.TicketHistoryRepository
	Sync        *SyncService
	StatusSync  *StatusSync
	Dispatcher  events.Dispatcher
	Logger      *zap.Logger
	Now         func() time.Time
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Title          string
	Description    string
	Priority       domain.TicketPriority
	AssignedToID   *string
	AssignedToName *string
}

// TicketDetailsInput carries editable free-text fields; nil means unchanged.
type TicketDetailsInput struct {
	Title       *string
	Description *string
}

// TicketListFilter describes listing filters.
type TicketListFilter struct {
	Statuses     []domain.TicketStatus
	Priorities   []domain.TicketPriority
	AssignedToID *string
	SearchTerm   *string
	Limit        int
	Offset       int
}

// TicketResult is a mutated ticket plus a non-blocking warning when the
// background ClickUp sync failed.
type TicketResult struct {
	Ticket      *domain.Ticket
	SyncWarning string
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	s := &TicketService{
		tickets:    deps.TicketRepo,
		comments:   deps.CommentRepo,
		history:    deps.HistoryRepo,
		sync:       deps.Sync,
		statusSync: deps.StatusSync,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger,
		now:        deps.Now,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// CreateTicket stores a new ticket with a deadline from the priority SLA and
// mirrors it to ClickUp when the integration is configured.
func (s *TicketService) CreateTicket(ctx context.Context, actor domain.Principal, input TicketCreateInput) (*TicketResult, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, apperrors.NewValidationError("title is required", map[string]any{"field": "title"})
	}
	priority := input.Priority
	if priority == "" {
		priority = domain.TicketPriorityMedium
	}
	if !priority.Valid() {
		return nil, apperrors.NewValidationError("invalid priority", map[string]any{"priority": priority})
	}

	now := s.now()
	ticket := &domain.Ticket{
		Title:          title,
		Description:    strings.TrimSpace(input.Description),
		Status:         domain.TicketStatusOpen,
		Priority:       priority,
		Deadline:       domain.DeadlineFrom(priority, now),
		AssignedToID:   input.AssignedToID,
		AssignedToName: input.AssignedToName,
		CreatedByID:    actor.SubjectID,
		CreatedByName:  actor.Name,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.publish(ctx, actor, events.EventTicketCreated, ticket.ID, events.TicketCreatedPayload{
		Title:    ticket.Title,
		Status:   ticket.Status,
		Priority: ticket.Priority,
		Deadline: ticket.Deadline,
	})
	return s.backgroundSync(ctx, ticket, SyncOptions{}), nil
}

// GetTicket returns a ticket with its comment thread.
func (s *TicketService) GetTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.load(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	comments, err := s.comments.ListByTicket(ctx, ticket.ID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	ticket.Comments = comments
	return ticket, nil
}

// ListTickets returns a page of tickets.
func (s *TicketService) ListTickets(ctx context.Context, filter TicketListFilter) ([]domain.Ticket, error) {
	tickets, err := s.tickets.ListWithFilter(ctx, repository.TicketFilter{
		Statuses:     filter.Statuses,
		Priorities:   filter.Priorities,
		AssignedToID: filter.AssignedToID,
		SearchTerm:   filter.SearchTerm,
		Limit:        filter.Limit,
		Offset:       filter.Offset,
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return tickets, nil
}

// UpdateTicket edits title and description.
func (s *TicketService) UpdateTicket(ctx context.Context, actor domain.Principal, ticketID string, input TicketDetailsInput) (*TicketResult, error) {
	update := repository.TicketUpdate{}
	var fields []string
	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" {
			return nil, apperrors.NewValidationError("title is required", map[string]any{"field": "title"})
		}
		update.Title = &title
		fields = append(fields, "title")
	}
	if input.Description != nil {
		description := strings.TrimSpace(*input.Description)
		update.Description = &description
		fields = append(fields, "description")
	}
	if update.Empty() {
		ticket, err := s.load(ctx, ticketID)
		if err != nil {
			return nil, err
		}
		return &TicketResult{Ticket: ticket}, nil
	}

	ticket, err := s.tickets.Update(ctx, ticketID, update)
	if err != nil {
		return nil, s.mapRepoError(err, ticketID)
	}
	s.record(ctx, actor, ticket.ID, domain.ChangeTypeDetails, nil, map[string]any{"fields": fields})
	s.publish(ctx, actor, events.EventTicketUpdated, ticket.ID, events.TicketUpdatedPayload{Fields: fields})
	return s.backgroundSync(ctx, ticket, SyncOptions{FieldsOnly: true}), nil
}

// UpdateStatus is an explicit user action: the new status is stored, then
// pushed to ClickUp through the loop guard. A failed push is returned as
// SYNC_FAILED together with the stored ticket.
func (s *TicketService) UpdateStatus(ctx context.Context, actor domain.Principal, ticketID string, status domain.TicketStatus) (*TicketResult, error) {
	if !status.Valid() {
		return nil, apperrors.NewValidationError("invalid status", map[string]any{"status": status})
	}
	ticket, err := s.load(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	if ticket.Status != status {
		oldStatus := ticket.Status
		ticket, err = s.tickets.Update(ctx, ticketID, repository.TicketUpdate{Status: &status})
		if err != nil {
			return nil, s.mapRepoError(err, ticketID)
		}
		s.record(ctx, actor, ticket.ID, domain.ChangeTypeStatus,
			map[string]any{"status": oldStatus}, map[string]any{"status": status})
		s.publish(ctx, actor, events.EventTicketStatusChanged, ticket.ID, events.TicketStatusChangedPayload{
			OldStatus: oldStatus,
			NewStatus: status,
		})
	}

	synced, _, err := s.statusSync.ProcessLocalStatusChange(ctx, ticket)
	result := &TicketResult{Ticket: synced}
	if err != nil {
		s.logger.Error("status sync failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
		return result, syncError("clickup status sync failed", ticket, err)
	}
	return result, nil
}

// UpdatePriority changes priority and recomputes the deadline from now.
func (s *TicketService) UpdatePriority(ctx context.Context, actor domain.Principal, ticketID string, priority domain.TicketPriority) (*TicketResult, error) {
	if !priority.Valid() {
		return nil, apperrors.NewValidationError("invalid priority", map[string]any{"priority": priority})
	}
	ticket, err := s.load(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	oldPriority := ticket.Priority
	now := s.now()
	deadline := domain.DeadlineFrom(priority, now)
	ticket, err = s.tickets.Update(ctx, ticketID, repository.TicketUpdate{Priority: &priority, Deadline: &deadline, UpdatedAt: now})
	if err != nil {
		return nil, s.mapRepoError(err, ticketID)
	}
	s.record(ctx, actor, ticket.ID, domain.ChangeTypePriority,
		map[string]any{"priority": oldPriority},
		map[string]any{"priority": priority, "deadline": deadline})
	s.publish(ctx, actor, events.EventTicketPriorityChanged, ticket.ID, events.TicketPriorityChangedPayload{
		OldPriority: oldPriority,
		NewPriority: priority,
		Deadline:    deadline,
	})
	return s.backgroundSync(ctx, ticket, SyncOptions{FieldsOnly: true}), nil
}

// Assign sets or clears the assignee. Assignment stays local.
func (s *TicketService) Assign(ctx context.Context, actor domain.Principal, ticketID string, assigneeID, assigneeName *string) (*domain.Ticket, error) {
	ticket, err := s.load(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	id, name := "", ""
	if assigneeID != nil {
		id = strings.TrimSpace(*assigneeID)
	}
	if assigneeName != nil {
		name = strings.TrimSpace(*assigneeName)
	}
	if id == "" {
		name = ""
	}

	updated, err := s.tickets.Update(ctx, ticketID, repository.TicketUpdate{AssignedToID: &id, AssignedToName: &name})
	if err != nil {
		return nil, s.mapRepoError(err, ticketID)
	}
	s.record(ctx, actor, ticket.ID, domain.ChangeTypeAssignee,
		map[string]any{"assigned_to_id": ticket.AssignedToID},
		map[string]any{"assigned_to_id": id, "assigned_to_name": name})
	s.publish(ctx, actor, events.EventTicketAssigned, ticket.ID, events.TicketAssignedPayload{
		AssigneeID:   updated.AssignedToID,
		AssigneeName: updated.AssignedToName,
	})
	return updated, nil
}

// AddComment appends a comment and mirrors it to the linked task. The
// ClickUp comment id is stored so its webhook echo is recognised.
func (s *TicketService) AddComment(ctx context.Context, actor domain.Principal, ticketID, content string) (*domain.Comment, string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, "", apperrors.NewValidationError("comment content is required", map[string]any{"field": "content"})
	}
	ticket, err := s.load(ctx, ticketID)
	if err != nil {
		return nil, "", err
	}

	comment := &domain.Comment{
		TicketID:   ticket.ID,
		Content:    content,
		AuthorID:   actor.SubjectID,
		AuthorName: actor.Name,
		Source:     domain.CommentSourceLocal,
	}
	if err := s.comments.Create(ctx, comment); err != nil {
		return nil, "", apperrors.MapError(err)
	}
	s.publish(ctx, actor, events.EventTicketCommentAdded, ticket.ID, events.TicketCommentAddedPayload{
		CommentID:   comment.ID,
		Source:      comment.Source,
		AuthorName:  comment.AuthorName,
		BodyPreview: stringPreview(comment.Content, 120),
	})

	if !ticket.HasExternalTask() {
		return comment, "", nil
	}
	externalID, ok := s.sync.SyncComment(ctx, ticket.ID, ticket.TaskID(), mirrorCommentText(actor.Name, content))
	if !ok {
		return comment, "comment was not mirrored to ClickUp", nil
	}
	if externalID != "" {
		if err := s.comments.SetExternalID(ctx, comment.ID, externalID); err != nil {
			s.logger.Warn("link mirrored comment failed", zap.String("comment_id", comment.ID), zap.Error(err))
		} else {
			comment.ExternalCommentID = &externalID
		}
	}
	return comment, "", nil
}

// DeleteTicket removes the ClickUp task best-effort, then deletes the
// ticket unconditionally. It reports whether the remote delete succeeded.
func (s *TicketService) DeleteTicket(ctx context.Context, actor domain.Principal, ticketID string) (bool, error) {
	ticket, err := s.load(ctx, ticketID)
	if err != nil {
		return false, err
	}
	remoteDeleted := s.sync.DeleteTask(ctx, ticket)
	if err := s.tickets.Delete(ctx, ticket.ID); err != nil {
		return remoteDeleted, s.mapRepoError(err, ticketID)
	}
	s.publish(ctx, actor, events.EventTicketDeleted, ticket.ID, events.TicketDeletedPayload{
		Title:          ticket.Title,
		ExternalTaskID: ticket.ExternalTaskID,
		RemoteDeleted:  remoteDeleted,
	})
	return remoteDeleted, nil
}

// SyncNow is the explicit sync action; every failure is returned.
func (s *TicketService) SyncNow(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.load(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	synced, err := s.sync.SyncAndLink(ctx, ticket, SyncOptions{})
	if err != nil {
		return synced, syncError("clickup sync failed", ticket, err)
	}
	return synced, nil
}

// ListHistory returns audit entries for a ticket.
func (s *TicketService) ListHistory(ctx context.Context, ticketID string, limit, offset int) ([]domain.TicketHistory, error) {
	if s.history == nil {
		return []domain.TicketHistory{}, nil
	}
	if _, err := s.load(ctx, ticketID); err != nil {
		return nil, err
	}
	history, err := s.history.ListByTicket(ctx, ticketID, limit, offset)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return history, nil
}

// backgroundSync mirrors the ticket without failing the caller.
func (s *TicketService) backgroundSync(ctx context.Context, ticket *domain.Ticket, opts SyncOptions) *TicketResult {
	synced, err := s.sync.SyncAndLink(ctx, ticket, opts)
	if err == nil || errors.Is(err, ErrNotConfigured) {
		return &TicketResult{Ticket: synced}
	}
	s.logger.Warn("background sync failed",
		zap.String("ticket_id", ticket.ID), zap.String("task_id", ticket.TaskID()), zap.Error(err))
	return &TicketResult{Ticket: synced, SyncWarning: syncWarning(err)}
}

func (s *TicketService) load(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, s.mapRepoError(err, ticketID)
	}
	return ticket, nil
}

func (s *TicketService) mapRepoError(err error, ticketID string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
	}
	return apperrors.MapError(err)
}

func (s *TicketService) record(ctx context.Context, actor domain.Principal, ticketID string, changeType domain.TicketChangeType, oldValue, newValue map[string]any) {
	if s.history == nil {
		return
	}
	entry := &domain.TicketHistory{
		TicketID:   ticketID,
		Origin:     domain.OriginLocal,
		ChangeType: changeType,
		OldValue:   oldValue,
		NewValue:   newValue,
	}
	if actor.SubjectID != "" {
		id := actor.SubjectID
		entry.ChangedByID = &id
	}
	if err := s.history.Create(ctx, entry); err != nil {
		s.logger.Warn("record history failed", zap.String("ticket_id", ticketID), zap.Error(err))
	}
}

func (s *TicketService) publish(ctx context.Context, actor domain.Principal, eventType events.EventType, ticketID string, payload any) {
	ev := events.Event{
		Type:     eventType,
		TicketID: ticketID,
		Actor:    events.Actor{Origin: domain.OriginLocal, Name: actor.Name},
		Payload:  payload,
	}
	if actor.SubjectID != "" {
		id := actor.SubjectID
		ev.Actor.SubjectID = &id
	}
	publishEvent(ctx, s.dispatcher, s.now, ev)
}

func syncError(message string, ticket *domain.Ticket, err error) error {
	if errors.Is(err, ErrNotConfigured) {
		return apperrors.NewNotConfigured(err)
	}
	if errors.Is(err, ErrValidation) {
		return apperrors.NewValidationError(err.Error(), map[string]any{"ticket_id": ticket.ID})
	}
	if clickup.IsRateLimited(err) {
		return apperrors.NewRateLimited("clickup rate limit reached, retry shortly", err)
	}
	return apperrors.NewSyncFailed(message, map[string]any{
		"ticket_id": ticket.ID,
		"task_id":   ticket.TaskID(),
		"reason":    syncWarning(err),
	}, err)
}

func syncWarning(err error) string {
	switch {
	case clickup.IsUnauthorized(err):
		return "clickup rejected the credential"
	case clickup.IsRateLimited(err):
		return "clickup rate limit reached"
	case clickup.IsNetworkError(err):
		return "clickup unreachable"
	default:
		return "clickup sync failed: " + err.Error()
	}
}
