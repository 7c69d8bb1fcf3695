package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-sync/internal/clickup"
	"github.com/spec-kit/helpdesk-sync/internal/domain"
)

var (
	// ErrNotConfigured means no usable ClickUp integration is active.
	ErrNotConfigured = errors.New("clickup integration not configured")
	// ErrValidation means a ticket lacks a field required by ClickUp.
	ErrValidation = errors.New("validation failed")
)

// TaskAPI is the ClickUp surface the sync core consumes. *clickup.Client implements it.
type TaskAPI interface {
	CreateTask(ctx context.Context, listID string, req clickup.CreateTaskRequest) (*clickup.Task, error)
	UpdateTask(ctx context.Context, taskID string, req clickup.UpdateTaskRequest) (*clickup.Task, error)
	UpdateTaskStatus(ctx context.Context, taskID, status string) (*clickup.Task, error)
	SetCustomField(ctx context.Context, taskID, fieldID string, value any) error
	DeleteTask(ctx context.Context, taskID string) error
	GetTask(ctx context.Context, taskID string) (*clickup.Task, error)
	TaskExists(ctx context.Context, taskID string) (bool, error)
	GetList(ctx context.Context, listID string) (*clickup.List, error)
	AddComment(ctx context.Context, taskID, text string) (*clickup.Comment, error)
	ListWorkspaces(ctx context.Context) ([]clickup.Workspace, error)
	ListSpaces(ctx context.Context, workspaceID string) ([]clickup.Space, error)
	ListLists(ctx context.Context, spaceID string) ([]clickup.List, error)
}

// ClientFactory builds a TaskAPI for a credential.
type ClientFactory func(apiKey string) (TaskAPI, error)

// NewClickUpClientFactory returns a factory producing real ClickUp clients.
func NewClickUpClientFactory(baseURL string, timeout time.Duration) ClientFactory {
	return func(apiKey string) (TaskAPI, error) {
		return clickup.NewClient(clickup.Config{BaseURL: baseURL, APIKey: apiKey, Timeout: timeout})
	}
}

// TaskService holds the active integration configuration and exposes
// task-level operations against the configured list.
type TaskService struct {
	mu         sync.RWMutex
	cfg        *domain.IntegrationConfig
	client     TaskAPI
	verifiedAt time.Time

	newClient  ClientFactory
	mapper     *StatusMapper
	logger     *zap.Logger
	now        func() time.Time
	verifyTTL  time.Duration
	defaultDue time.Duration
}

// TaskDependencies bundles collaborators for TaskService.
type TaskDependencies struct {
	ClientFactory  ClientFactory
	Mapper         *StatusMapper
	Logger         *zap.Logger
	Now            func() time.Time
	VerifyTTL      time.Duration
	DefaultDueDays int
}

// NewTaskService constructs the service. It starts unconfigured.
func NewTaskService(deps TaskDependencies) *TaskService {
	s := &TaskService{
		newClient:  deps.ClientFactory,
		mapper:     deps.Mapper,
		logger:     deps.Logger,
		now:        deps.Now,
		verifyTTL:  deps.VerifyTTL,
		defaultDue: time.Duration(deps.DefaultDueDays) * 24 * time.Hour,
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
	if s.defaultDue <= 0 {
		s.defaultDue = 7 * 24 * time.Hour
	}
	return s
}

// Configure swaps the active integration record. A record that is inactive
// or lacks a credential or list leaves the service unconfigured.
func (s *TaskService) Configure(cfg *domain.IntegrationConfig) error {
	var client TaskAPI
	if cfg.Usable() {
		if s.newClient == nil {
			return errors.New("task service: no client factory")
		}
		c, err := s.newClient(cfg.APIKey)
		if err != nil {
			return fmt.Errorf("build clickup client: %w", err)
		}
		client = c
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if cfg != nil {
		copied := *cfg
		s.cfg = &copied
	} else {
		s.cfg = nil
	}
	s.client = client
	s.verifiedAt = time.Time{}
	return nil
}

// Config returns a copy of the active record, or nil.
func (s *TaskService) Config() *domain.IntegrationConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cfg == nil {
		return nil
	}
	copied := *s.cfg
	return &copied
}

// Verify checks the credential and list against ClickUp with a lightweight call.
func (s *TaskService) Verify(ctx context.Context) error {
	client, cfg, err := s.active()
	if err != nil {
		return err
	}
	if _, err := client.GetList(ctx, cfg.ListID); err != nil {
		return err
	}
	s.mu.Lock()
	s.verifiedAt = s.now()
	s.mu.Unlock()
	return nil
}

// IsConfigured is true only when a credential and list are present and a
// remote call succeeds. A successful check is reused for the verify TTL.
func (s *TaskService) IsConfigured(ctx context.Context) bool {
	s.mu.RLock()
	usable := s.client != nil && s.cfg.Usable()
	fresh := !s.verifiedAt.IsZero() && s.now().Sub(s.verifiedAt) < s.verifyTTL
	s.mu.RUnlock()
	if !usable {
		return false
	}
	if fresh {
		return true
	}
	if err := s.Verify(ctx); err != nil {
		s.logger.Warn("clickup verification failed", zap.Error(err))
		return false
	}
	return true
}

// CreateTask creates the ClickUp task mirroring ticket and returns its id.
func (s *TaskService) CreateTask(ctx context.Context, ticket *domain.Ticket) (string, error) {
	if strings.TrimSpace(ticket.Title) == "" {
		return "", fmt.Errorf("%w: ticket title is required", ErrValidation)
	}
	client, cfg, err := s.active()
	if err != nil {
		return "", err
	}
	status, err := s.mapper.StatusToExternal(ticket.Status)
	if err != nil {
		return "", err
	}
	priority, err := s.mapper.PriorityToExternal(ticket.Priority)
	if err != nil {
		return "", err
	}
	due := clickup.Millis(s.dueDate(ticket))

	req := clickup.CreateTaskRequest{
		Name:        ticket.Title,
		Description: ticket.Description,
		Status:      status,
		Priority:    &priority,
		DueDate:     &due,
		DueDateTime: true,
	}
	if cfg.SourceFieldID != "" {
		req.CustomFields = []clickup.CustomFieldValue{{ID: cfg.SourceFieldID, Value: newSourceTag()}}
	}

	task, err := client.CreateTask(ctx, cfg.ListID, req)
	if err != nil {
		s.logger.Error("clickup create task failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
		return "", err
	}
	s.logger.Info("clickup task created", zap.String("ticket_id", ticket.ID), zap.String("task_id", task.ID))
	return task.ID, nil
}

// UpdateTask pushes ticket fields, then its status. The status transition is
// a separate call issued only when the task's current status maps elsewhere.
func (s *TaskService) UpdateTask(ctx context.Context, taskID string, ticket *domain.Ticket, fieldsOnly bool) error {
	client, cfg, err := s.active()
	if err != nil {
		return err
	}
	priority, err := s.mapper.PriorityToExternal(ticket.Priority)
	if err != nil {
		return err
	}
	due := clickup.Millis(s.dueDate(ticket))
	dueTime := true
	req := clickup.UpdateTaskRequest{
		Name:        &ticket.Title,
		Description: &ticket.Description,
		Priority:    &priority,
		DueDate:     &due,
		DueDateTime: &dueTime,
	}
	if _, err := client.UpdateTask(ctx, taskID, req); err != nil {
		return fmt.Errorf("update task fields: %w", err)
	}
	s.tagSource(ctx, client, cfg, taskID)

	if fieldsOnly {
		return nil
	}
	return s.pushStatus(ctx, client, taskID, ticket.Status)
}

// UpdateStatus moves the task to the label mapped from status, skipping the
// write when the task already sits in an equivalent status.
func (s *TaskService) UpdateStatus(ctx context.Context, taskID string, status domain.TicketStatus) error {
	client, cfg, err := s.active()
	if err != nil {
		return err
	}
	s.tagSource(ctx, client, cfg, taskID)
	return s.pushStatus(ctx, client, taskID, status)
}

func (s *TaskService) pushStatus(ctx context.Context, client TaskAPI, taskID string, status domain.TicketStatus) error {
	label, err := s.mapper.StatusToExternal(status)
	if err != nil {
		return err
	}
	current, err := client.GetTask(ctx, taskID)
	if err != nil {
		return fmt.Errorf("read task status: %w", err)
	}
	if current.Status.Status != "" && s.mapper.ExternalToStatus(current.Status.Status) == status {
		return nil
	}
	if _, err := client.UpdateTaskStatus(ctx, taskID, label); err != nil {
		return fmt.Errorf("update task status to %q: %w", label, err)
	}
	s.logger.Info("clickup task status updated", zap.String("task_id", taskID), zap.String("status", label))
	return nil
}

// tagSource stamps the task with a fresh source marker so webhook events it
// triggers can be recognised. Failure only weakens loop detection.
func (s *TaskService) tagSource(ctx context.Context, client TaskAPI, cfg *domain.IntegrationConfig, taskID string) {
	if cfg.SourceFieldID == "" {
		return
	}
	if err := client.SetCustomField(ctx, taskID, cfg.SourceFieldID, newSourceTag()); err != nil {
		s.logger.Warn("clickup source tag failed", zap.String("task_id", taskID), zap.Error(err))
	}
}

// TaskExists reports whether the task is still present in ClickUp.
func (s *TaskService) TaskExists(ctx context.Context, taskID string) (bool, error) {
	client, _, err := s.active()
	if err != nil {
		return false, err
	}
	return client.TaskExists(ctx, taskID)
}

// DeleteTask removes the task and reports success instead of failing.
func (s *TaskService) DeleteTask(ctx context.Context, taskID string) bool {
	client, _, err := s.active()
	if err != nil {
		s.logger.Warn("clickup delete skipped", zap.String("task_id", taskID), zap.Error(err))
		return false
	}
	if err := client.DeleteTask(ctx, taskID); err != nil {
		s.logger.Warn("clickup delete task failed", zap.String("task_id", taskID), zap.Error(err))
		return false
	}
	s.logger.Info("clickup task deleted", zap.String("task_id", taskID))
	return true
}

// AddComment posts a comment and returns its ClickUp id. It reports failure
// through the boolean rather than an error.
func (s *TaskService) AddComment(ctx context.Context, taskID, text string) (string, bool) {
	client, _, err := s.active()
	if err != nil {
		s.logger.Warn("clickup comment skipped", zap.String("task_id", taskID), zap.Error(err))
		return "", false
	}
	comment, err := client.AddComment(ctx, taskID, text)
	if err != nil {
		s.logger.Warn("clickup add comment failed", zap.String("task_id", taskID), zap.Error(err))
		return "", false
	}
	return comment.ID.String(), true
}

// Workspaces lists workspaces visible to the active credential.
func (s *TaskService) Workspaces(ctx context.Context) ([]clickup.Workspace, error) {
	client, err := s.activeClient()
	if err != nil {
		return nil, err
	}
	return client.ListWorkspaces(ctx)
}

// Spaces lists the spaces of a workspace.
func (s *TaskService) Spaces(ctx context.Context, workspaceID string) ([]clickup.Space, error) {
	client, err := s.activeClient()
	if err != nil {
		return nil, err
	}
	return client.ListSpaces(ctx, workspaceID)
}

// Lists lists the folderless lists of a space.
func (s *TaskService) Lists(ctx context.Context, spaceID string) ([]clickup.List, error) {
	client, err := s.activeClient()
	if err != nil {
		return nil, err
	}
	return client.ListLists(ctx, spaceID)
}

func (s *TaskService) dueDate(ticket *domain.Ticket) time.Time {
	if !ticket.Deadline.IsZero() {
		return ticket.Deadline
	}
	return s.now().Add(s.defaultDue)
}

func (s *TaskService) active() (TaskAPI, *domain.IntegrationConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.client == nil || !s.cfg.Usable() {
		return nil, nil, ErrNotConfigured
	}
	copied := *s.cfg
	return s.client, &copied, nil
}

// activeClient only needs a credential; enumeration runs before a list is chosen.
func (s *TaskService) activeClient() (TaskAPI, error) {
	s.mu.RLock()
	cfg := s.cfg
	client := s.client
	s.mu.RUnlock()
	if client != nil {
		return client, nil
	}
	if cfg == nil || strings.TrimSpace(cfg.APIKey) == "" || s.newClient == nil {
		return nil, ErrNotConfigured
	}
	return s.newClient(cfg.APIKey)
}
