package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-sync/internal/dedup"
	"github.com/spec-kit/helpdesk-sync/internal/domain"
	"github.com/spec-kit/helpdesk-sync/internal/events"
	"github.com/spec-kit/helpdesk-sync/internal/repository"
)

// StatusOutcome describes what a status propagation did.
type StatusOutcome string

const (
	StatusApplied   StatusOutcome = "applied"
	StatusDuplicate StatusOutcome = "duplicate"
	StatusUnchanged StatusOutcome = "unchanged"
	StatusSkipped   StatusOutcome = "skipped"
)

// StatusSync routes status changes in both directions through the dedup
// loop guard. Inbound changes are written locally and never pushed back.
type StatusSync struct {
	tickets    repository.TicketRepository
	history    repository.TicketHistoryRepository
	sync       *SyncService
	mapper     *StatusMapper
	dedup      dedup.Deduplicator
	dispatcher events.Dispatcher
	logger     *zap.Logger
	now        func() time.Time
}

// StatusSyncDependencies bundles collaborators for StatusSync.
type StatusSyncDependencies struct {
	TicketRepo   repository.TicketRepository
	HistoryRepo  repository.TicketHistoryRepository
	Sync         *SyncService
	Mapper       *StatusMapper
	Deduplicator dedup.Deduplicator
	Dispatcher   events.Dispatcher
	Logger       *zap.Logger
	Now          func() time.Time
}

// NewStatusSync constructs the loop guard.
func NewStatusSync(deps StatusSyncDependencies) *StatusSync {
	s := &StatusSync{
		tickets:    deps.TicketRepo,
		history:    deps.HistoryRepo,
		sync:       deps.Sync,
		mapper:     deps.Mapper,
		dedup:      deps.Deduplicator,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger,
		now:        deps.Now,
	}
	if s.mapper == nil {
		s.mapper = NewStatusMapper(nil)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.dedup == nil {
		s.dedup = dedup.NewMemory(dedup.DefaultWindow, s.now)
	}
	return s
}

// ProcessLocalStatusChange propagates a ticket's already persisted status
// to ClickUp. A repeat of the same local change inside the window is
// dropped. The returned ticket carries any task id created on the way.
func (s *StatusSync) ProcessLocalStatusChange(ctx context.Context, ticket *domain.Ticket) (*domain.Ticket, StatusOutcome, error) {
	taskID := ticket.TaskID()
	if s.isDuplicate(ctx, ticket.ID, taskID, ticket.Status, domain.OriginLocal) {
		s.logger.Debug("local status change suppressed",
			zap.String("ticket_id", ticket.ID), zap.String("status", string(ticket.Status)))
		return ticket, StatusDuplicate, nil
	}
	record := s.register(ctx, ticket.ID, taskID, ticket.Status, domain.OriginLocal)

	synced, err := s.sync.SyncAndLink(ctx, ticket, SyncOptions{})
	if err != nil {
		// Nothing reached ClickUp, so a retry must not be suppressed.
		s.forget(ctx, record)
	}
	if errors.Is(err, ErrNotConfigured) {
		return ticket, StatusSkipped, nil
	}
	if err != nil {
		return synced, "", err
	}
	return synced, StatusApplied, nil
}

// ProcessClickUpStatusChange applies a status reported by ClickUp to the
// ticket linked to taskID. It writes the store directly, so nothing is sent
// back to ClickUp.
func (s *StatusSync) ProcessClickUpStatusChange(ctx context.Context, taskID, rawStatus string) (*domain.Ticket, StatusOutcome, error) {
	ticket, err := s.tickets.GetByExternalTaskID(ctx, taskID)
	if err != nil {
		return nil, "", err
	}
	return s.applyRemoteStatus(ctx, ticket, rawStatus)
}

func (s *StatusSync) applyRemoteStatus(ctx context.Context, ticket *domain.Ticket, rawStatus string) (*domain.Ticket, StatusOutcome, error) {
	taskID := ticket.TaskID()
	status := s.mapper.ExternalToStatus(rawStatus)
	if s.isDuplicate(ctx, ticket.ID, taskID, status, domain.OriginRemote) {
		s.logger.Debug("remote status change suppressed",
			zap.String("ticket_id", ticket.ID), zap.String("task_id", taskID), zap.String("status", string(status)))
		return ticket, StatusDuplicate, nil
	}
	s.register(ctx, ticket.ID, taskID, status, domain.OriginRemote)

	if ticket.Status == status {
		return ticket, StatusUnchanged, nil
	}

	oldStatus := ticket.Status
	updated, err := s.tickets.Update(ctx, ticket.ID, repository.TicketUpdate{Status: &status})
	if err != nil {
		return nil, "", err
	}
	if s.history != nil {
		entry := &domain.TicketHistory{
			TicketID:   ticket.ID,
			Origin:     domain.OriginRemote,
			ChangeType: domain.ChangeTypeStatus,
			OldValue:   map[string]any{"status": oldStatus},
			NewValue:   map[string]any{"status": status, "clickup_status": rawStatus},
		}
		if err := s.history.Create(ctx, entry); err != nil {
			s.logger.Warn("record remote status change failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
		}
	}
	publishEvent(ctx, s.dispatcher, s.now, events.Event{
		Type:     events.EventTicketStatusChanged,
		TicketID: ticket.ID,
		Actor:    events.Actor{Origin: domain.OriginRemote, Name: "clickup"},
		Payload: events.TicketStatusChangedPayload{
			OldStatus: oldStatus,
			NewStatus: status,
		},
	})
	s.logger.Info("ticket status updated from clickup",
		zap.String("ticket_id", ticket.ID), zap.String("task_id", taskID),
		zap.String("old_status", string(oldStatus)), zap.String("new_status", string(status)))
	return updated, StatusApplied, nil
}

// A failing dedup store must not block propagation.
func (s *StatusSync) isDuplicate(ctx context.Context, ticketID, taskID string, status domain.TicketStatus, origin domain.ChangeOrigin) bool {
	dup, err := s.dedup.IsDuplicateChange(ctx, ticketID, taskID, status, origin)
	if err != nil {
		s.logger.Warn("dedup lookup failed", zap.String("ticket_id", ticketID), zap.Error(err))
		return false
	}
	return dup
}

func (s *StatusSync) register(ctx context.Context, ticketID, taskID string, status domain.TicketStatus, origin domain.ChangeOrigin) domain.StatusChangeRecord {
	record := domain.StatusChangeRecord{
		TicketID:  ticketID,
		TaskID:    taskID,
		NewStatus: status,
		Origin:    origin,
		Timestamp: s.now(),
	}
	if err := s.dedup.RegisterChange(ctx, record); err != nil {
		s.logger.Warn("dedup register failed", zap.String("ticket_id", ticketID), zap.Error(err))
	}
	return record
}

func (s *StatusSync) forget(ctx context.Context, record domain.StatusChangeRecord) {
	if err := s.dedup.Forget(ctx, record); err != nil {
		s.logger.Warn("dedup forget failed", zap.String("ticket_id", record.TicketID), zap.Error(err))
	}
}
