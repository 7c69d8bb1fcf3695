package http

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-sync/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-sync/internal/auth"
	"github.com/spec-kit/helpdesk-sync/internal/domain"
	"github.com/spec-kit/helpdesk-sync/internal/observability"
	"github.com/spec-kit/helpdesk-sync/internal/repository"
	"github.com/spec-kit/helpdesk-sync/internal/service"
)

const testSecret = "whsec_test"

// emptyTickets knows no tasks; other methods are never reached here.
type emptyTickets struct {
	repository.TicketRepository
}

func (emptyTickets) GetByExternalTaskID(ctx context.Context, taskID string) (*domain.Ticket, error) {
	return nil, repository.ErrNotFound
}

type testServer struct {
	app     *fiber.App
	tokens  *auth.TokenManager
	metrics *observability.Metrics
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	tokens := auth.NewTokenManager("jwt-secret", 30)

	webhooks := service.NewWebhookService(service.WebhookDependencies{TicketRepo: emptyTickets{}})

	app := fiber.New()
	RegisterMiddlewares(app, logger, metrics, 0)
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler("helpdesk-sync", "test", nil, metrics),
		Tickets:        handlers.NewTicketsHandler(nil),
		Webhooks:       handlers.NewWebhookHandler(webhooks, testSecret, metrics, logger),
		Integration:    handlers.NewIntegrationHandler(nil),
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
	})
	return &testServer{app: app, tokens: tokens, metrics: metrics}
}

func sign(body string) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write([]byte(body))
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *testServer) do(t *testing.T, req *http.Request) (int, map[string]any) {
	t.Helper()
	resp, err := s.app.Test(req)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var body map[string]any
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &body), string(raw))
	}
	return resp.StatusCode, body
}

func webhookRequest(body, signature string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/clickup", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set("X-Signature", signature)
	}
	return req
}

func errorCode(body map[string]any) string {
	envelope, _ := body["error"].(map[string]any)
	code, _ := envelope["code"].(string)
	return code
}

func TestWebhookRoute(t *testing.T) {
	s := newTestServer(t)

	t.Run("bad signature", func(t *testing.T) {
		status, body := s.do(t, webhookRequest(`{"event":"taskStatusUpdated"}`, "deadbeef"))
		assert.Equal(t, http.StatusUnauthorized, status)
		assert.Equal(t, "UNAUTHORIZED", errorCode(body))
	})

	t.Run("missing signature", func(t *testing.T) {
		status, _ := s.do(t, webhookRequest(`{"event":"taskStatusUpdated"}`, ""))
		assert.Equal(t, http.StatusUnauthorized, status)
	})

	t.Run("invalid json", func(t *testing.T) {
		payload := `{"event":`
		status, body := s.do(t, webhookRequest(payload, sign(payload)))
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, false, body["success"])
	})

	t.Run("unknown event acknowledged", func(t *testing.T) {
		payload := `{"event":"listCreated"}`
		status, body := s.do(t, webhookRequest(payload, "sha256="+sign(payload)))
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, true, body["success"])
	})

	t.Run("unknown task rejected", func(t *testing.T) {
		payload := `{"event":"taskStatusUpdated","task_id":"cu-404","history_items":[{"field":"status","after":"aberto"}]}`
		status, body := s.do(t, webhookRequest(payload, sign(payload)))
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, false, body["success"])
		assert.Equal(t, "ticket not found for task cu-404", body["message"])
	})

	snap := s.metrics.Snapshot()
	assert.Equal(t, int64(1), snap.Webhooks["listCreated|true"])
	assert.Equal(t, int64(1), snap.Webhooks["taskStatusUpdated|false"])
}

func TestProtectedRoutes(t *testing.T) {
	s := newTestServer(t)
	agentToken, _, err := s.tokens.GenerateToken(domain.Principal{SubjectID: "agent-1", Name: "Dana", Role: domain.RoleAgent})
	require.NoError(t, err)

	status, body := s.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/tickets", nil))
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", errorCode(body))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/integrations/clickup", nil)
	req.Header.Set("Authorization", "Bearer "+agentToken)
	status, body = s.do(t, req)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "FORBIDDEN", errorCode(body))

	req = httptest.NewRequest(http.MethodGet, "/api/v1/tickets?status=pending", nil)
	req.Header.Set("Authorization", "Bearer "+agentToken)
	status, body = s.do(t, req)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))
}

func TestHealthAndUnknownRoute(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "alive", body["status"])

	status, body = s.do(t, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ready", body["status"])

	status, body = s.do(t, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", errorCode(body))
}
