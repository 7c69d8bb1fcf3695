package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-sync/internal/clickup"
	"github.com/spec-kit/helpdesk-sync/internal/domain"
	"github.com/spec-kit/helpdesk-sync/internal/events"
	"github.com/spec-kit/helpdesk-sync/internal/repository"
)

// ClickUp webhook event types handled by the ingest path.
const (
	EventTaskStatusUpdated   = "taskStatusUpdated"
	EventTaskDeleted         = "taskDeleted"
	EventTaskUpdated         = "taskUpdated"
	EventTaskCommentPosted   = "taskCommentPosted"
	EventTaskAssigned        = "taskAssigned"
	EventTaskAssigneeUpdated = "taskAssigneeUpdated"
	EventTaskPriorityUpdated = "taskPriorityUpdated"
)

// WebhookPayload is the inbound ClickUp webhook body.
type WebhookPayload struct {
	EventType    string        `json:"event_type"`
	Event        string        `json:"event"`
	TaskID       string        `json:"task_id"`
	WebhookID    string        `json:"webhook_id,omitempty"`
	Source       string        `json:"source,omitempty"`
	HistoryItems []HistoryItem `json:"history_items"`
}

// Type returns the event type; ClickUp sends it as "event", older relays as "event_type".
func (p WebhookPayload) Type() string {
	if p.EventType != "" {
		return p.EventType
	}
	return p.Event
}

// HistoryItem is one field change reported by ClickUp.
type HistoryItem struct {
	ID      string          `json:"id"`
	Field   string          `json:"field"`
	Before  json.RawMessage `json:"before"`
	After   json.RawMessage `json:"after"`
	Comment *HistoryComment `json:"comment,omitempty"`
	User    *clickup.User   `json:"user,omitempty"`
}

// HistoryComment is the comment embedded in a taskCommentPosted history item.
type HistoryComment struct {
	ID          clickup.FlexString `json:"id"`
	TextContent string             `json:"text_content"`
	CommentText string             `json:"comment_text"`
	User        *clickup.User      `json:"user,omitempty"`
}

// Text returns the plain comment body.
func (c *HistoryComment) Text() string {
	if strings.TrimSpace(c.TextContent) != "" {
		return c.TextContent
	}
	return c.CommentText
}

// WebhookResult is returned for every event; Success false maps to a 4xx.
type WebhookResult struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	TicketID string `json:"ticket_id,omitempty"`
}

// WebhookService applies ClickUp events to tickets.
type WebhookService struct {
	tickets    repository.TicketRepository
	comments   repository.CommentRepository
	history    repository.TicketHistoryRepository
	statusSync *StatusSync
	sync       *SyncService
	mapper     *StatusMapper
	dispatcher events.Dispatcher
	logger     *zap.Logger
	now        func() time.Time
}

// WebhookDependencies bundles collaborators for WebhookService.
type WebhookDependencies struct {
	TicketRepo  repository.TicketRepository
	CommentRepo repository.CommentRepository
	HistoryRepo repository.TicketHistoryRepository
	StatusSync  *StatusSync
	Sync        *SyncService
	Mapper      *StatusMapper
	Dispatcher  events.Dispatcher
	Logger      *zap.Logger
	Now         func() time.Time
}

// NewWebhookService constructs the service.
func NewWebhookService(deps WebhookDependencies) *WebhookService {
	s := &WebhookService{
		tickets:    deps.TicketRepo,
		comments:   deps.CommentRepo,
		history:    deps.HistoryRepo,
		statusSync: deps.StatusSync,
		sync:       deps.Sync,
		mapper:     deps.Mapper,
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
	return s
}

func failed(message string) WebhookResult {
	return WebhookResult{Success: false, Message: message}
}

// ProcessEvent classifies the event and routes it to a ticket mutation.
// Only store failures surface as errors; malformed or unactionable events
// yield a result with Success false.
func (s *WebhookService) ProcessEvent(ctx context.Context, payload WebhookPayload) (WebhookResult, error) {
	eventType := payload.Type()
	if !knownEvent(eventType) {
		return WebhookResult{Success: true, Message: fmt.Sprintf("event %q ignored", eventType)}, nil
	}
	if strings.TrimSpace(payload.TaskID) == "" {
		return failed("task_id is required"), nil
	}

	ticket, err := s.tickets.GetByExternalTaskID(ctx, payload.TaskID)
	if errors.Is(err, repository.ErrNotFound) {
		return failed(fmt.Sprintf("ticket not found for task %s", payload.TaskID)), nil
	}
	if err != nil {
		return WebhookResult{}, err
	}

	if selfOriginated(payload) {
		s.logger.Debug("clickup event ignored, self-originated",
			zap.String("event_type", eventType), zap.String("task_id", payload.TaskID))
		return WebhookResult{Success: true, Message: "ignored, self-originated", TicketID: ticket.ID}, nil
	}

	var result WebhookResult
	switch eventType {
	case EventTaskStatusUpdated:
		result, err = s.handleStatusUpdated(ctx, ticket, payload)
	case EventTaskDeleted:
		result, err = s.handleDeleted(ctx, ticket)
	case EventTaskUpdated, EventTaskPriorityUpdated:
		result, err = s.handleUpdated(ctx, ticket, payload)
	case EventTaskCommentPosted:
		result, err = s.handleCommentPosted(ctx, ticket, payload)
	case EventTaskAssigned, EventTaskAssigneeUpdated:
		result, err = s.handleAssigned(ctx, ticket, payload)
	}
	if err != nil {
		return WebhookResult{}, err
	}
	result.TicketID = ticket.ID
	s.logger.Info("clickup event processed",
		zap.String("event_type", eventType),
		zap.String("task_id", payload.TaskID),
		zap.String("ticket_id", ticket.ID),
		zap.Bool("success", result.Success),
		zap.String("message", result.Message))
	return result, nil
}

func (s *WebhookService) handleStatusUpdated(ctx context.Context, ticket *domain.Ticket, payload WebhookPayload) (WebhookResult, error) {
	item := findItem(payload.HistoryItems, "status")
	if item == nil {
		return failed("status history item is required"), nil
	}
	raw := rawString(item.After, "status")
	if raw == "" {
		return failed("status history item has no new status"), nil
	}
	updated, outcome, err := s.statusSync.applyRemoteStatus(ctx, ticket, raw)
	if err != nil {
		return WebhookResult{}, err
	}
	switch outcome {
	case StatusDuplicate:
		return WebhookResult{Success: true, Message: "ignored, duplicate status change"}, nil
	case StatusUnchanged:
		return WebhookResult{Success: true, Message: "status already " + string(updated.Status)}, nil
	default:
		return WebhookResult{Success: true, Message: "status updated to " + string(updated.Status)}, nil
	}
}

// handleDeleted keeps the ticket and its task link; the next sync recreates the task.
func (s *WebhookService) handleDeleted(ctx context.Context, ticket *domain.Ticket) (WebhookResult, error) {
	comment := &domain.Comment{
		TicketID:   ticket.ID,
		Content:    fmt.Sprintf("ClickUp task %s was deleted. It will be recreated on the next sync.", ticket.TaskID()),
		AuthorID:   "system",
		AuthorName: "ClickUp",
		Source:     domain.CommentSourceSystem,
	}
	if err := s.comments.Create(ctx, comment); err != nil {
		return WebhookResult{}, err
	}
	return WebhookResult{Success: true, Message: "task deletion recorded"}, nil
}

func (s *WebhookService) handleUpdated(ctx context.Context, ticket *domain.Ticket, payload WebhookPayload) (WebhookResult, error) {
	var (
		update   repository.TicketUpdate
		fields   []string
		statusTo string
	)
	oldPriority := ticket.Priority
	for i := range payload.HistoryItems {
		item := &payload.HistoryItems[i]
		switch item.Field {
		case "name":
			if name := strings.TrimSpace(rawString(item.After)); name != "" {
				update.Title = &name
				fields = append(fields, "title")
			}
		case "content", "description":
			description := rawString(item.After, "text_content", "content")
			update.Description = &description
			fields = append(fields, "description")
		case "priority":
			priority, ok := s.remotePriority(item.After)
			if !ok {
				return failed("priority history item has an unknown level"), nil
			}
			if priority != ticket.Priority {
				now := s.now()
				deadline := domain.DeadlineFrom(priority, now)
				update.Priority = &priority
				update.Deadline = &deadline
				update.UpdatedAt = now
				fields = append(fields, "priority")
			}
		case "status":
			statusTo = rawString(item.After, "status")
		}
	}

	message := "no tracked fields changed"
	if !update.Empty() {
		updated, err := s.tickets.Update(ctx, ticket.ID, update)
		if err != nil {
			return WebhookResult{}, err
		}
		s.recordRemoteUpdate(ctx, ticket, updated, oldPriority, fields)
		if update.Priority != nil && s.sync != nil {
			// The recomputed deadline goes back as the task's due date.
			if _, err := s.sync.SyncAndLink(ctx, updated, SyncOptions{FieldsOnly: true}); err != nil && !errors.Is(err, ErrNotConfigured) {
				s.logger.Warn("due date re-propagation failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
			}
		}
		ticket = updated
		message = "updated " + strings.Join(fields, ", ")
	}
	if statusTo != "" {
		if _, _, err := s.statusSync.applyRemoteStatus(ctx, ticket, statusTo); err != nil {
			return WebhookResult{}, err
		}
		if message == "no tracked fields changed" {
			message = "status processed"
		}
	}
	return WebhookResult{Success: true, Message: message}, nil
}

func (s *WebhookService) recordRemoteUpdate(ctx context.Context, before, after *domain.Ticket, oldPriority domain.TicketPriority, fields []string) {
	if s.history != nil {
		for _, field := range fields {
			entry := &domain.TicketHistory{TicketID: before.ID, Origin: domain.OriginRemote}
			switch field {
			case "priority":
				entry.ChangeType = domain.ChangeTypePriority
				entry.OldValue = map[string]any{"priority": oldPriority}
				entry.NewValue = map[string]any{"priority": after.Priority, "deadline": after.Deadline}
			default:
				entry.ChangeType = domain.ChangeTypeDetails
				entry.NewValue = map[string]any{"field": field}
			}
			if err := s.history.Create(ctx, entry); err != nil {
				s.logger.Warn("record remote update failed", zap.String("ticket_id", before.ID), zap.Error(err))
			}
		}
	}
	actor := events.Actor{Origin: domain.OriginRemote, Name: "clickup"}
	for _, field := range fields {
		if field == "priority" {
			publishEvent(ctx, s.dispatcher, s.now, events.Event{
				Type:     events.EventTicketPriorityChanged,
				TicketID: before.ID,
				Actor:    actor,
				Payload: events.TicketPriorityChangedPayload{
					OldPriority: oldPriority,
					NewPriority: after.Priority,
					Deadline:    after.Deadline,
				},
			})
		}
	}
	publishEvent(ctx, s.dispatcher, s.now, events.Event{
		Type:     events.EventTicketUpdated,
		TicketID: before.ID,
		Actor:    actor,
		Payload:  events.TicketUpdatedPayload{Fields: fields},
	})
}

func (s *WebhookService) handleCommentPosted(ctx context.Context, ticket *domain.Ticket, payload WebhookPayload) (WebhookResult, error) {
	var comment *HistoryComment
	for i := range payload.HistoryItems {
		if payload.HistoryItems[i].Comment != nil {
			comment = payload.HistoryItems[i].Comment
			break
		}
	}
	if comment == nil {
		return failed("comment history item is required"), nil
	}
	text := strings.TrimSpace(comment.Text())
	if text == "" {
		return failed("comment has no text"), nil
	}
	if hasCommentMarker(text) {
		return WebhookResult{Success: true, Message: "ignored, mirrored comment"}, nil
	}
	externalID := comment.ID.String()
	if externalID != "" {
		linked, err := s.comments.ExistsByExternalID(ctx, ticket.ID, externalID)
		if err != nil {
			return WebhookResult{}, err
		}
		if linked {
			return WebhookResult{Success: true, Message: "ignored, comment already linked"}, nil
		}
	}

	record := &domain.Comment{
		TicketID:   ticket.ID,
		Content:    text,
		AuthorName: "ClickUp",
		Source:     domain.CommentSourceClickUp,
	}
	if comment.User != nil {
		record.AuthorID = "clickup:" + comment.User.ID.String()
		if comment.User.Username != "" {
			record.AuthorName = comment.User.Username
		}
	}
	if externalID != "" {
		record.ExternalCommentID = &externalID
	}
	if err := s.comments.Create(ctx, record); err != nil {
		return WebhookResult{}, err
	}
	publishEvent(ctx, s.dispatcher, s.now, events.Event{
		Type:     events.EventTicketCommentAdded,
		TicketID: ticket.ID,
		Actor:    events.Actor{Origin: domain.OriginRemote, Name: record.AuthorName},
		Payload: events.TicketCommentAddedPayload{
			CommentID:   record.ID,
			Source:      record.Source,
			AuthorName:  record.AuthorName,
			BodyPreview: stringPreview(record.Content, 120),
		},
	})
	return WebhookResult{Success: true, Message: "comment added"}, nil
}

func (s *WebhookService) handleAssigned(ctx context.Context, ticket *domain.Ticket, payload WebhookPayload) (WebhookResult, error) {
	var (
		update repository.TicketUpdate
		found  bool
	)
	for i := range payload.HistoryItems {
		item := &payload.HistoryItems[i]
		switch item.Field {
		case "assignee_add":
			user, ok := decodeUser(item.After)
			if !ok {
				return failed("assignee_add history item has no user"), nil
			}
			id := "clickup:" + user.ID.String()
			name := user.Username
			if name == "" {
				name = user.Email
			}
			update.AssignedToID = &id
			update.AssignedToName = &name
			found = true
		case "assignee_rem":
			if update.AssignedToID == nil {
				empty := ""
				update.AssignedToID = &empty
				update.AssignedToName = &empty
			}
			found = true
		}
	}
	if !found {
		return failed("assignee history item is required"), nil
	}

	updated, err := s.tickets.Update(ctx, ticket.ID, update)
	if err != nil {
		return WebhookResult{}, err
	}
	if s.history != nil {
		entry := &domain.TicketHistory{
			TicketID:   ticket.ID,
			Origin:     domain.OriginRemote,
			ChangeType: domain.ChangeTypeAssignee,
			OldValue:   map[string]any{"assigned_to_id": ticket.AssignedToID, "assigned_to_name": ticket.AssignedToName},
			NewValue:   map[string]any{"assigned_to_id": updated.AssignedToID, "assigned_to_name": updated.AssignedToName},
		}
		if err := s.history.Create(ctx, entry); err != nil {
			s.logger.Warn("record remote assignment failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
		}
	}
	publishEvent(ctx, s.dispatcher, s.now, events.Event{
		Type:     events.EventTicketAssigned,
		TicketID: ticket.ID,
		Actor:    events.Actor{Origin: domain.OriginRemote, Name: "clickup"},
		Payload: events.TicketAssignedPayload{
			AssigneeID:   updated.AssignedToID,
			AssigneeName: updated.AssignedToName,
		},
	})
	if *update.AssignedToID == "" {
		return WebhookResult{Success: true, Message: "assignee removed"}, nil
	}
	return WebhookResult{Success: true, Message: "assigned to " + *update.AssignedToName}, nil
}

// remotePriority reads a ClickUp priority object, bare level or priority name.
func (s *WebhookService) remotePriority(raw json.RawMessage) (domain.TicketPriority, bool) {
	value := rawString(raw, "id", "priority")
	if level, err := strconv.Atoi(value); err == nil {
		priority, err := s.mapper.ExternalToPriority(level)
		return priority, err == nil
	}
	names := map[string]int{"urgent": 1, "high": 2, "normal": 3, "low": 4}
	if level, ok := names[strings.ToLower(value)]; ok {
		priority, err := s.mapper.ExternalToPriority(level)
		return priority, err == nil
	}
	return "", false
}

// selfOriginated reports whether the event carries our source tag, either
// at the top level or as the new value of a custom field.
func selfOriginated(payload WebhookPayload) bool {
	if isSourceTag(payload.Source) {
		return true
	}
	for _, item := range payload.HistoryItems {
		if item.Field != "custom_field" && !strings.HasPrefix(item.Field, "custom") {
			continue
		}
		if isSourceTag(rawString(item.After, "value")) {
			return true
		}
	}
	return false
}

func knownEvent(eventType string) bool {
	switch eventType {
	case EventTaskStatusUpdated, EventTaskDeleted, EventTaskUpdated, EventTaskCommentPosted,
		EventTaskAssigned, EventTaskAssigneeUpdated, EventTaskPriorityUpdated:
		return true
	}
	return false
}

func findItem(items []HistoryItem, field string) *HistoryItem {
	for i := range items {
		if items[i].Field == field {
			return &items[i]
		}
	}
	return nil
}

// rawString extracts a string from a JSON string, number, or from the first
// non-empty key of an object.
func rawString(raw json.RawMessage, keys ...string) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	switch raw[0] {
	case '"':
		var s string
		if json.Unmarshal(raw, &s) == nil {
			return s
		}
	case '{':
		var obj map[string]json.RawMessage
		if json.Unmarshal(raw, &obj) != nil {
			return ""
		}
		for _, key := range keys {
			if v := rawString(obj[key]); v != "" {
				return v
			}
		}
	default:
		var n json.Number
		if json.Unmarshal(raw, &n) == nil {
			return n.String()
		}
	}
	return ""
}

func decodeUser(raw json.RawMessage) (*clickup.User, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, false
	}
	var user clickup.User
	if err := json.Unmarshal(raw, &user); err != nil || user.ID == "" {
		return nil, false
	}
	return &user, true
}
