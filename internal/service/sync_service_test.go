package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk-sync/internal/clickup"
	"github.com/spec-kit/helpdesk-sync/internal/domain"
)

func TestSyncService_CreatesOnceWhenUnlinked(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true)
	ticket := h.seedTicket(t, domain.TicketStatusOpen, "")

	synced, err := h.sync.SyncAndLink(ctx, ticket, SyncOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, h.api.count("create"))
	assert.Equal(t, 0, h.api.count("update:"))
	require.True(t, synced.HasExternalTask())

	stored, err := h.tickets.GetByID(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, synced.TaskID(), stored.TaskID())
	assert.Len(t, h.history.byType(domain.ChangeTypeLink), 1)
}

func TestSyncService_UpdatesExistingTask(t *testing.T) {
	h := newHarness(t, true)
	ticket := h.seedTicket(t, domain.TicketStatusOpen, "cu-live")

	id, err := h.sync.SyncTicketWithClickUp(context.Background(), ticket, SyncOptions{})
	require.NoError(t, err)
	assert.Equal(t, "cu-live", id)
	assert.Equal(t, 0, h.api.count("create"))
	assert.Equal(t, 1, h.api.count("update:cu-live"))
}

func TestSyncService_RecreatesMissingTask(t *testing.T) {
	h := newHarness(t, true)
	ticket := h.seedTicket(t, domain.TicketStatusOpen, "")
	stale := "cu-gone"
	ticket.ExternalTaskID = &stale

	id, err := h.sync.SyncTicketWithClickUp(context.Background(), ticket, SyncOptions{})
	require.NoError(t, err)
	assert.NotEqual(t, stale, id)
	assert.NotEmpty(t, id)
	assert.Equal(t, 1, h.api.count("create"))
	assert.Equal(t, 0, h.api.count("update:"))
}

func TestSyncService_RecreatesWhenTaskVanishesDuringUpdate(t *testing.T) {
	h := newHarness(t, true)
	ticket := h.seedTicket(t, domain.TicketStatusOpen, "cu-race")
	h.api.vanishOnUpdate = true
	h.api.updateErr = errors.New("Task not found, deleted")

	id, err := h.sync.SyncTicketWithClickUp(context.Background(), ticket, SyncOptions{})
	require.NoError(t, err)
	assert.NotEqual(t, "cu-race", id)
	assert.Equal(t, 1, h.api.count("create"))
}

func TestSyncService_MissingStatusKeepsLiveTask(t *testing.T) {
	h := newHarness(t, true)
	ticket := h.seedTicket(t, domain.TicketStatusOpen, "cu-live")
	ticket.Status = domain.TicketStatusResolved
	h.api.statusErr = &clickup.APIError{Kind: clickup.KindNotFound, StatusCode: 400, Message: "Status not found"}

	id, err := h.sync.SyncTicketWithClickUp(context.Background(), ticket, SyncOptions{})
	require.Error(t, err)
	assert.Empty(t, id)
	assert.Contains(t, err.Error(), "update task status")
	assert.Equal(t, 0, h.api.count("create"))
	assert.Len(t, h.api.tasks, 1)
}

func TestSyncService_SurfacesOtherFailures(t *testing.T) {
	h := newHarness(t, true)
	ticket := h.seedTicket(t, domain.TicketStatusOpen, "cu-1")

	h.api.existsErr = &clickup.APIError{Kind: clickup.KindServerError, StatusCode: 503}
	_, err := h.sync.SyncTicketWithClickUp(context.Background(), ticket, SyncOptions{})
	assert.True(t, clickup.IsServerError(err))
	assert.Equal(t, 0, h.api.count("create"))

	h.api.existsErr = nil
	h.api.updateErr = &clickup.APIError{Kind: clickup.KindRateLimited, StatusCode: 429, Message: "Rate limit"}
	_, err = h.sync.SyncTicketWithClickUp(context.Background(), ticket, SyncOptions{})
	assert.True(t, clickup.IsRateLimited(err))
	assert.Equal(t, 0, h.api.count("create"))
}

func TestSyncService_NotConfigured(t *testing.T) {
	h := newHarness(t, false)
	ticket := h.seedTicket(t, domain.TicketStatusOpen, "")

	_, err := h.sync.SyncTicketWithClickUp(context.Background(), ticket, SyncOptions{})
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.Empty(t, h.api.calls)
}

func TestSyncService_DeleteTask(t *testing.T) {
	ctx := context.Background()

	h := newHarness(t, true)
	unlinked := h.seedTicket(t, domain.TicketStatusOpen, "")
	assert.True(t, h.sync.DeleteTask(ctx, unlinked))
	assert.Equal(t, 0, h.api.count("delete:"))

	linked := h.seedTicket(t, domain.TicketStatusOpen, "cu-5")
	h.api.deleteErr = errors.New("clickup down")
	assert.False(t, h.sync.DeleteTask(ctx, linked))

	unconfigured := newHarness(t, false)
	other := unconfigured.seedTicket(t, domain.TicketStatusOpen, "cu-6")
	assert.False(t, unconfigured.sync.DeleteTask(ctx, other))
}

func TestSyncService_SyncComment(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true)

	id, ok := h.sync.SyncComment(ctx, "ticket-1", "cu-1", "hello")
	assert.True(t, ok)
	assert.Equal(t, "c-1", id)
	assert.Equal(t, []string{"hello"}, h.api.comments["cu-1"])

	unconfigured := newHarness(t, false)
	_, ok = unconfigured.sync.SyncComment(ctx, "ticket-1", "cu-1", "hello")
	assert.False(t, ok)
}
