package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk-sync/internal/clickup"
	"github.com/spec-kit/helpdesk-sync/internal/dedup"
	"github.com/spec-kit/helpdesk-sync/internal/domain"
	"github.com/spec-kit/helpdesk-sync/internal/events"
	"github.com/spec-kit/helpdesk-sync/internal/repository"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// --- repositories ---

type fakeTicketRepo struct {
	clock   *fakeClock
	seq     int
	tickets map[string]*domain.Ticket
}

func newFakeTicketRepo(clock *fakeClock) *fakeTicketRepo {
	return &fakeTicketRepo{clock: clock, tickets: map[string]*domain.Ticket{}}
}

func (r *fakeTicketRepo) Create(ctx context.Context, ticket *domain.Ticket) error {
	r.seq++
	ticket.ID = fmt.Sprintf("ticket-%d", r.seq)
	if ticket.CreatedAt.IsZero() {
		ticket.CreatedAt = r.clock.Now()
	}
	if ticket.UpdatedAt.IsZero() {
		ticket.UpdatedAt = ticket.CreatedAt
	}
	stored := *ticket
	r.tickets[ticket.ID] = &stored
	return nil
}

func (r *fakeTicketRepo) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	t, ok := r.tickets[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *t
	return &copied, nil
}

func (r *fakeTicketRepo) GetByExternalTaskID(ctx context.Context, taskID string) (*domain.Ticket, error) {
	for _, t := range r.tickets {
		if t.TaskID() == taskID {
			copied := *t
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeTicketRepo) Update(ctx context.Context, id string, u repository.TicketUpdate) (*domain.Ticket, error) {
	t, ok := r.tickets[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if u.Title != nil {
		t.Title = *u.Title
	}
	if u.Description != nil {
		t.Description = *u.Description
	}
	if u.Status != nil {
		t.Status = *u.Status
	}
	if u.Priority != nil {
		t.Priority = *u.Priority
	}
	if u.Deadline != nil {
		t.Deadline = *u.Deadline
	}
	if u.ExternalTaskID != nil && *u.ExternalTaskID != "" {
		id := *u.ExternalTaskID
		t.ExternalTaskID = &id
	}
	if u.AssignedToID != nil {
		v := *u.AssignedToID
		t.AssignedToID = &v
	}
	if u.AssignedToName != nil {
		v := *u.AssignedToName
		t.AssignedToName = &v
	}
	t.UpdatedAt = r.clock.Now()
	if !u.UpdatedAt.IsZero() {
		t.UpdatedAt = u.UpdatedAt
	}
	copied := *t
	return &copied, nil
}

func (r *fakeTicketRepo) Delete(ctx context.Context, id string) error {
	if _, ok := r.tickets[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.tickets, id)
	return nil
}

func (r *fakeTicketRepo) ListWithFilter(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	var out []domain.Ticket
	for _, t := range r.tickets {
		out = append(out, *t)
	}
	return out, nil
}

type fakeCommentRepo struct {
	seq      int
	comments []domain.Comment
}

func (r *fakeCommentRepo) Create(ctx context.Context, c *domain.Comment) error {
	r.seq++
	c.ID = fmt.Sprintf("comment-%d", r.seq)
	r.comments = append(r.comments, *c)
	return nil
}

func (r *fakeCommentRepo) ListByTicket(ctx context.Context, ticketID string) ([]domain.Comment, error) {
	var out []domain.Comment
	for _, c := range r.comments {
		if c.TicketID == ticketID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *fakeCommentRepo) SetExternalID(ctx context.Context, commentID, externalID string) error {
	for i := range r.comments {
		if r.comments[i].ID == commentID {
			id := externalID
			r.comments[i].ExternalCommentID = &id
			return nil
		}
	}
	return repository.ErrNotFound
}

func (r *fakeCommentRepo) ExistsByExternalID(ctx context.Context, ticketID, externalID string) (bool, error) {
	for _, c := range r.comments {
		if c.TicketID == ticketID && c.ExternalCommentID != nil && *c.ExternalCommentID == externalID {
			return true, nil
		}
	}
	return false, nil
}

type fakeHistoryRepo struct {
	entries []domain.TicketHistory
}

func (r *fakeHistoryRepo) Create(ctx context.Context, h *domain.TicketHistory) error {
	h.ID = fmt.Sprintf("history-%d", len(r.entries)+1)
	r.entries = append(r.entries, *h)
	return nil
}

func (r *fakeHistoryRepo) ListByTicket(ctx context.Context, ticketID string, limit, offset int) ([]domain.TicketHistory, error) {
	var out []domain.TicketHistory
	for _, h := range r.entries {
		if h.TicketID == ticketID {
			out = append(out, h)
		}
	}
	return out, nil
}

func (r *fakeHistoryRepo) byType(changeType domain.TicketChangeType) []domain.TicketHistory {
	var out []domain.TicketHistory
	for _, h := range r.entries {
		if h.ChangeType == changeType {
			out = append(out, h)
		}
	}
	return out
}

type fakeIntegrationRepo struct {
	active *domain.IntegrationConfig
	saves  int
}

func (r *fakeIntegrationRepo) GetActive(ctx context.Context) (*domain.IntegrationConfig, error) {
	if r.active == nil || !r.active.Active {
		return nil, repository.ErrNotFound
	}
	copied := *r.active
	return &copied, nil
}

func (r *fakeIntegrationRepo) Save(ctx context.Context, cfg *domain.IntegrationConfig) error {
	r.saves++
	if cfg.ID == "" {
		cfg.ID = fmt.Sprintf("integration-%d", r.saves)
	}
	copied := *cfg
	r.active = &copied
	return nil
}

type fakeDeliveryRepo struct {
	queued []domain.WebhookDelivery
}

func (r *fakeDeliveryRepo) Enqueue(ctx context.Context, d *domain.WebhookDelivery) error {
	d.ID = fmt.Sprintf("delivery-%d", len(r.queued)+1)
	r.queued = append(r.queued, *d)
	return nil
}

func (r *fakeDeliveryRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.WebhookDelivery, error) {
	return nil, nil
}

func (r *fakeDeliveryRepo) MarkCompleted(ctx context.Context, id string, attempts int) error { return nil }

func (r *fakeDeliveryRepo) MarkRetry(ctx context.Context, id string, attempts int, next time.Time, lastErr string) error {
	return nil
}

func (r *fakeDeliveryRepo) MarkFailed(ctx context.Context, id string, attempts int, lastErr string) error {
	return nil
}

func (r *fakeDeliveryRepo) PurgeFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

// --- ClickUp ---

type fakeTaskAPI struct {
	seq   int
	tasks map[string]*clickup.Task
	calls []string

	createReqs   []clickup.CreateTaskRequest
	updateReqs   []clickup.UpdateTaskRequest
	statusWrites []string
	customFields map[string]any
	comments     map[string][]string

	getListErr error
	existsErr  error
	updateErr  error
	deleteErr  error
	commentErr error
	createErr  error
	statusErr  error

	// vanishOnUpdate deletes the task before the field update is answered.
	vanishOnUpdate bool
}

func newFakeTaskAPI() *fakeTaskAPI {
	return &fakeTaskAPI{
		tasks:        map[string]*clickup.Task{},
		customFields: map[string]any{},
		comments:     map[string][]string{},
	}
}

func (f *fakeTaskAPI) count(prefix string) int {
	n := 0
	for _, c := range f.calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func (f *fakeTaskAPI) CreateTask(ctx context.Context, listID string, req clickup.CreateTaskRequest) (*clickup.Task, error) {
	f.calls = append(f.calls, "create")
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.seq++
	task := &clickup.Task{ID: fmt.Sprintf("cu-%d", f.seq), Name: req.Name, Status: clickup.TaskStatus{Status: req.Status}, List: clickup.ListRef{ID: listID}}
	f.tasks[task.ID] = task
	f.createReqs = append(f.createReqs, req)
	return task, nil
}

func (f *fakeTaskAPI) UpdateTask(ctx context.Context, taskID string, req clickup.UpdateTaskRequest) (*clickup.Task, error) {
	f.calls = append(f.calls, "update:"+taskID)
	if f.vanishOnUpdate {
		delete(f.tasks, taskID)
	}
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	task, ok := f.tasks[taskID]
	if !ok {
		return nil, &clickup.APIError{Kind: clickup.KindNotFound, StatusCode: 404, Message: "Task not found"}
	}
	if req.Name != nil {
		task.Name = *req.Name
	}
	f.updateReqs = append(f.updateReqs, req)
	return task, nil
}

func (f *fakeTaskAPI) UpdateTaskStatus(ctx context.Context, taskID, status string) (*clickup.Task, error) {
	f.calls = append(f.calls, "status:"+taskID)
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	task, ok := f.tasks[taskID]
	if !ok {
		return nil, &clickup.APIError{Kind: clickup.KindNotFound, StatusCode: 404}
	}
	task.Status.Status = status
	f.statusWrites = append(f.statusWrites, status)
	return task, nil
}

func (f *fakeTaskAPI) SetCustomField(ctx context.Context, taskID, fieldID string, value any) error {
	f.calls = append(f.calls, "field:"+taskID)
	f.customFields[taskID+"/"+fieldID] = value
	return nil
}

func (f *fakeTaskAPI) DeleteTask(ctx context.Context, taskID string) error {
	f.calls = append(f.calls, "delete:"+taskID)
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.tasks, taskID)
	return nil
}

func (f *fakeTaskAPI) GetTask(ctx context.Context, taskID string) (*clickup.Task, error) {
	f.calls = append(f.calls, "get:"+taskID)
	task, ok := f.tasks[taskID]
	if !ok {
		return nil, &clickup.APIError{Kind: clickup.KindNotFound, StatusCode: 404}
	}
	copied := *task
	return &copied, nil
}

func (f *fakeTaskAPI) TaskExists(ctx context.Context, taskID string) (bool, error) {
	f.calls = append(f.calls, "exists:"+taskID)
	if f.existsErr != nil {
		return false, f.existsErr
	}
	_, ok := f.tasks[taskID]
	return ok, nil
}

func (f *fakeTaskAPI) GetList(ctx context.Context, listID string) (*clickup.List, error) {
	f.calls = append(f.calls, "list:"+listID)
	if f.getListErr != nil {
		return nil, f.getListErr
	}
	return &clickup.List{ID: listID}, nil
}

func (f *fakeTaskAPI) AddComment(ctx context.Context, taskID, text string) (*clickup.Comment, error) {
	f.calls = append(f.calls, "comment:"+taskID)
	if f.commentErr != nil {
		return nil, f.commentErr
	}
	f.comments[taskID] = append(f.comments[taskID], text)
	return &clickup.Comment{ID: clickup.FlexString(fmt.Sprintf("c-%d", len(f.comments[taskID]))), CommentText: text}, nil
}

func (f *fakeTaskAPI) ListWorkspaces(ctx context.Context) ([]clickup.Workspace, error) {
	return []clickup.Workspace{{ID: "w1", Name: "Support"}}, nil
}

func (f *fakeTaskAPI) ListSpaces(ctx context.Context, workspaceID string) ([]clickup.Space, error) {
	return []clickup.Space{{ID: "s1", Name: "Helpdesk"}}, nil
}

func (f *fakeTaskAPI) ListLists(ctx context.Context, spaceID string) ([]clickup.List, error) {
	return []clickup.List{{ID: "l1", Name: "Tickets"}}, nil
}

// --- harness ---

type harness struct {
	clock        *fakeClock
	api          *fakeTaskAPI
	tickets      *fakeTicketRepo
	comments     *fakeCommentRepo
	history      *fakeHistoryRepo
	integrations *fakeIntegrationRepo
	dispatcher   events.Dispatcher
	published    []events.Event

	tasks       *TaskService
	sync        *SyncService
	statusSync  *StatusSync
	webhooks    *WebhookService
	ticketSvc   *TicketService
	integration *IntegrationService
}

var testIntegration = &domain.IntegrationConfig{
	ID:            "integration-1",
	APIKey:        "pk_live_123456",
	ListID:        "list-1",
	SourceFieldID: "field-src",
	Active:        true,
}

func newHarness(t *testing.T, configured bool) *harness {
	t.Helper()
	h := &harness{
		clock:        newFakeClock(),
		api:          newFakeTaskAPI(),
		comments:     &fakeCommentRepo{},
		history:      &fakeHistoryRepo{},
		integrations: &fakeIntegrationRepo{},
		dispatcher:   events.NewInMemoryDispatcher(nil),
	}
	h.tickets = newFakeTicketRepo(h.clock)
	for _, eventType := range events.AllEventTypes {
		h.dispatcher.Subscribe(eventType, func(ctx context.Context, e events.Event) error {
			h.published = append(h.published, e)
			return nil
		})
	}

	mapper := NewStatusMapper(nil)
	h.tasks = NewTaskService(TaskDependencies{
		ClientFactory: func(apiKey string) (TaskAPI, error) { return h.api, nil },
		Mapper:        mapper,
		Now:           h.clock.Now,
		VerifyTTL:     time.Minute,
	})
	if configured {
		require.NoError(t, h.tasks.Configure(testIntegration))
	}
	h.sync = NewSyncService(SyncDependencies{
		Tasks:       h.tasks,
		TicketRepo:  h.tickets,
		HistoryRepo: h.history,
	})
	h.statusSync = NewStatusSync(StatusSyncDependencies{
		TicketRepo:   h.tickets,
		HistoryRepo:  h.history,
		Sync:         h.sync,
		Mapper:       mapper,
		Deduplicator: dedup.NewMemory(dedup.DefaultWindow, h.clock.Now),
		Dispatcher:   h.dispatcher,
		Now:          h.clock.Now,
	})
	h.webhooks = NewWebhookService(WebhookDependencies{
		TicketRepo:  h.tickets,
		CommentRepo: h.comments,
		HistoryRepo: h.history,
		StatusSync:  h.statusSync,
		Sync:        h.sync,
		Mapper:      mapper,
		Dispatcher:  h.dispatcher,
		Now:         h.clock.Now,
	})
	h.ticketSvc = NewTicketService(TicketDependencies{
		TicketRepo:  h.tickets,
		CommentRepo: h.comments,
		HistoryRepo: h.history,
		Sync:        h.sync,
		StatusSync:  h.statusSync,
		Dispatcher:  h.dispatcher,
		Now:         h.clock.Now,
	})
	h.integration = NewIntegrationService(h.integrations, h.tasks, nil)
	return h
}

// seedTicket stores a ticket directly, optionally linked to a task that
// exists in the fake ClickUp.
func (h *harness) seedTicket(t *testing.T, status domain.TicketStatus, taskID string) *domain.Ticket {
	t.Helper()
	ticket := &domain.Ticket{
		Title:    "VPN drops every hour",
		Status:   status,
		Priority: domain.TicketPriorityHigh,
		Deadline: domain.DeadlineFrom(domain.TicketPriorityHigh, h.clock.Now()),
	}
	if taskID != "" {
		ticket.ExternalTaskID = &taskID
		label, err := NewStatusMapper(nil).StatusToExternal(status)
		require.NoError(t, err)
		h.api.tasks[taskID] = &clickup.Task{ID: taskID, Name: ticket.Title, Status: clickup.TaskStatus{Status: label}}
	}
	require.NoError(t, h.tickets.Create(context.Background(), ticket))
	return ticket
}

func (h *harness) publishedOf(eventType events.EventType) []events.Event {
	var out []events.Event
	for _, e := range h.published {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

var agent = domain.Principal{SubjectID: "agent-7", Name: "Dana", Role: domain.RoleAgent}
