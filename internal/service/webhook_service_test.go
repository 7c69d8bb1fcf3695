package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk-sync/internal/domain"
	"github.com/spec-kit/helpdesk-sync/internal/events"
)

func decodePayload(t *testing.T, raw string) WebhookPayload {
	t.Helper()
	var p WebhookPayload
	require.NoError(t, json.Unmarshal([]byte(raw), &p))
	return p
}

func TestWebhookService_StatusUpdated(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true)
	ticket := h.seedTicket(t, domain.TicketStatusInProgress, "cu-42")
	h.api.calls = nil

	payload := decodePayload(t, `{
		"event_type": "taskStatusUpdated",
		"task_id": "cu-42",
		"history_items": [{"field": "status", "before": {"status": "em andamento"}, "after": {"status": "RESOLVIDO", "type": "done"}}]
	}`)
	result, err := h.webhooks.ProcessEvent(ctx, payload)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, ticket.ID, result.TicketID)

	stored, err := h.tickets.GetByID(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusResolved, stored.Status)
	assert.Empty(t, h.api.calls, "no outbound call for an inbound status")

	result, err = h.webhooks.ProcessEvent(ctx, payload)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "ignored, duplicate status change", result.Message)
	assert.Empty(t, h.api.calls)
}

func TestWebhookService_ClickUpEventField(t *testing.T) {
	h := newHarness(t, true)
	h.seedTicket(t, domain.TicketStatusOpen, "cu-1")

	result, err := h.webhooks.ProcessEvent(context.Background(), decodePayload(t,
		`{"event":"taskStatusUpdated","task_id":"cu-1","history_items":[{"field":"status","after":"fechado"}]}`))
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "status updated to closed", result.Message)
}

func TestWebhookService_Rejections(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true)
	h.seedTicket(t, domain.TicketStatusOpen, "cu-1")

	cases := []struct {
		name    string
		payload string
		message string
	}{
		{"missing task id", `{"event_type":"taskStatusUpdated"}`, "task_id is required"},
		{"unknown ticket", `{"event_type":"taskStatusUpdated","task_id":"cu-x","history_items":[{"field":"status","after":"aberto"}]}`, "ticket not found for task cu-x"},
		{"missing status item", `{"event_type":"taskStatusUpdated","task_id":"cu-1","history_items":[]}`, "status history item is required"},
		{"missing comment", `{"event_type":"taskCommentPosted","task_id":"cu-1","history_items":[{"field":"comment"}]}`, "comment history item is required"},
		{"missing assignee", `{"event_type":"taskAssigned","task_id":"cu-1","history_items":[]}`, "assignee history item is required"},
		{"bad priority", `{"event_type":"taskUpdated","task_id":"cu-1","history_items":[{"field":"priority","after":{"id":"9"}}]}`, "priority history item has an unknown level"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := h.webhooks.ProcessEvent(ctx, decodePayload(t, tc.payload))
			require.NoError(t, err)
			assert.False(t, result.Success)
			assert.Equal(t, tc.message, result.Message)
		})
	}
}

func TestWebhookService_UnknownEventIgnored(t *testing.T) {
	h := newHarness(t, true)
	result, err := h.webhooks.ProcessEvent(context.Background(), decodePayload(t, `{"event_type":"listCreated"}`))
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Contains(t, result.Message, "ignored")
}

func TestWebhookService_SelfOriginated(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true)
	ticket := h.seedTicket(t, domain.TicketStatusOpen, "cu-1")

	for name, raw := range map[string]string{
		"top-level source": `{"event_type":"taskStatusUpdated","task_id":"cu-1","source":"helpdesk-sync:abc",
			"history_items":[{"field":"status","after":"fechado"}]}`,
		"source custom field": `{"event_type":"taskUpdated","task_id":"cu-1",
			"history_items":[{"field":"custom_field","after":{"value":"helpdesk-sync:1234"}},{"field":"name","after":"Hijacked"}]}`,
	} {
		t.Run(name, func(t *testing.T) {
			result, err := h.webhooks.ProcessEvent(ctx, decodePayload(t, raw))
			require.NoError(t, err)
			assert.True(t, result.Success)
			assert.Equal(t, "ignored, self-originated", result.Message)
		})
	}

	stored, err := h.tickets.GetByID(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusOpen, stored.Status)
	assert.Equal(t, "VPN drops every hour", stored.Title)
}

func TestWebhookService_TaskDeletedKeepsLink(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true)
	ticket := h.seedTicket(t, domain.TicketStatusOpen, "cu-1")

	result, err := h.webhooks.ProcessEvent(ctx, decodePayload(t, `{"event_type":"taskDeleted","task_id":"cu-1"}`))
	require.NoError(t, err)
	assert.True(t, result.Success)

	stored, err := h.tickets.GetByID(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, "cu-1", stored.TaskID())
	require.Len(t, h.comments.comments, 1)
	assert.Equal(t, domain.CommentSourceSystem, h.comments.comments[0].Source)
}

func TestWebhookService_TaskUpdatedPriorityRecomputesDeadline(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true)
	ticket := h.seedTicket(t, domain.TicketStatusOpen, "cu-1")
	h.clock.Advance(time.Hour)
	h.api.calls = nil

	result, err := h.webhooks.ProcessEvent(ctx, decodePayload(t, `{
		"event_type":"taskUpdated","task_id":"cu-1",
		"history_items":[
			{"field":"priority","before":{"id":"2"},"after":{"id":"1","priority":"urgent"}},
			{"field":"name","after":"VPN down for everyone"},
			{"field":"due_date","after":"1700000000000"}
		]}`))
	require.NoError(t, err)
	assert.True(t, result.Success)

	stored, err := h.tickets.GetByID(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketPriorityCritical, stored.Priority)
	assert.Equal(t, "VPN down for everyone", stored.Title)
	assert.Equal(t, h.clock.Now().Add(4*time.Hour), stored.Deadline)

	// Deadline goes back as the due date; status is left alone.
	assert.Equal(t, 1, h.api.count("update:cu-1"))
	assert.Equal(t, 0, h.api.count("status:"))
	assert.Len(t, h.publishedOf(events.EventTicketPriorityChanged), 1)
}

func TestWebhookService_CommentPosted(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true)
	ticket := h.seedTicket(t, domain.TicketStatusOpen, "cu-1")

	raw := `{"event_type":"taskCommentPosted","task_id":"cu-1","history_items":[{"field":"comment",
		"comment":{"id":"9001","text_content":"Restarted the router","user":{"id":77,"username":"ops-lee"}}}]}`
	result, err := h.webhooks.ProcessEvent(ctx, decodePayload(t, raw))
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "comment added", result.Message)

	comments, err := h.comments.ListByTicket(ctx, ticket.ID)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, "ops-lee", comments[0].AuthorName)
	assert.Equal(t, "clickup:77", comments[0].AuthorID)
	assert.Equal(t, domain.CommentSourceClickUp, comments[0].Source)

	result, err = h.webhooks.ProcessEvent(ctx, decodePayload(t, raw))
	require.NoError(t, err)
	assert.Equal(t, "ignored, comment already linked", result.Message)
	assert.Len(t, h.comments.comments, 1)
}

func TestWebhookService_MirroredCommentEchoIgnored(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true)
	ticket := h.seedTicket(t, domain.TicketStatusOpen, "cu-1")

	comment, warning, err := h.ticketSvc.AddComment(ctx, agent, ticket.ID, "Please retry")
	require.NoError(t, err)
	assert.Empty(t, warning)
	require.NotNil(t, comment.ExternalCommentID)
	mirrored := h.api.comments["cu-1"][0]

	// Echo with the linked id.
	byID, err := json.Marshal(map[string]any{
		"event_type": "taskCommentPosted", "task_id": "cu-1",
		"history_items": []any{map[string]any{"field": "comment", "comment": map[string]any{"id": *comment.ExternalCommentID, "text_content": mirrored}}},
	})
	require.NoError(t, err)
	result, err := h.webhooks.ProcessEvent(ctx, decodePayload(t, string(byID)))
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "ignored, mirrored comment", result.Message)

	// Echo with an unknown id still carries the marker.
	byText, err := json.Marshal(map[string]any{
		"event_type": "taskCommentPosted", "task_id": "cu-1",
		"history_items": []any{map[string]any{"field": "comment", "comment": map[string]any{"id": "other", "text_content": mirrored}}},
	})
	require.NoError(t, err)
	result, err = h.webhooks.ProcessEvent(ctx, decodePayload(t, string(byText)))
	require.NoError(t, err)
	assert.Equal(t, "ignored, mirrored comment", result.Message)
	assert.Len(t, h.comments.comments, 1)
}

func TestWebhookService_Assignment(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true)
	ticket := h.seedTicket(t, domain.TicketStatusOpen, "cu-1")

	result, err := h.webhooks.ProcessEvent(ctx, decodePayload(t,
		`{"event_type":"taskAssigned","task_id":"cu-1","history_items":[{"field":"assignee_add","after":{"id":"55","username":"sam"}}]}`))
	require.NoError(t, err)
	assert.True(t, result.Success)
	stored, _ := h.tickets.GetByID(ctx, ticket.ID)
	require.NotNil(t, stored.AssignedToName)
	assert.Equal(t, "sam", *stored.AssignedToName)
	assert.Equal(t, "clickup:55", *stored.AssignedToID)

	result, err = h.webhooks.ProcessEvent(ctx, decodePayload(t,
		`{"event_type":"taskAssigneeUpdated","task_id":"cu-1","history_items":[{"field":"assignee_rem","before":{"id":"55"}}]}`))
	require.NoError(t, err)
	assert.Equal(t, "assignee removed", result.Message)
	stored, _ = h.tickets.GetByID(ctx, ticket.ID)
	assert.Equal(t, "", *stored.AssignedToID)
	assert.Len(t, h.history.byType(domain.ChangeTypeAssignee), 2)
}
