package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-sync/internal/observability"
	"github.com/spec-kit/helpdesk-sync/internal/service"
	apperrors "github.com/spec-kit/helpdesk-sync/pkg/util/errorutil"
)

const signatureHeader = "X-Signature"

// WebhookHandler receives ClickUp task events.
type WebhookHandler struct {
	service *service.WebhookService
	secret  []byte
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewWebhookHandler constructs handler. An empty secret disables signature checks.
func NewWebhookHandler(webhookService *service.WebhookService, secret string, metrics *observability.Metrics, logger *zap.Logger) *WebhookHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookHandler{service: webhookService, secret: []byte(secret), metrics: metrics, logger: logger}
}

// ClickUp POST /webhooks/clickup.
func (h *WebhookHandler) ClickUp(c *fiber.Ctx) error {
	body := c.Body()
	if len(h.secret) > 0 && !h.validSignature(body, c.Get(signatureHeader)) {
		h.logger.Warn("clickup webhook signature rejected", zap.String("ip", c.IP()))
		return apperrors.NewUnauthorized("invalid webhook signature")
	}

	var payload service.WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		h.metrics.RecordWebhook("", false)
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"success": false, "message": "invalid payload"})
	}

	result, err := h.service.ProcessEvent(c.UserContext(), payload)
	if err != nil {
		h.metrics.RecordWebhook(payload.Type(), false)
		return err
	}
	h.metrics.RecordWebhook(payload.Type(), result.Success)

	status := http.StatusOK
	if !result.Success {
		status = http.StatusBadRequest
	}
	resp := fiber.Map{"success": result.Success, "message": result.Message}
	if result.TicketID != "" {
		resp["ticket_id"] = result.TicketID
	}
	return c.Status(status).JSON(resp)
}

func (h *WebhookHandler) validSignature(body []byte, signature string) bool {
	signature = strings.TrimPrefix(strings.TrimSpace(signature), "sha256=")
	got, err := hex.DecodeString(signature)
	if err != nil || len(got) == 0 {
		return false
	}
	mac := hmac.New(sha256.New, h.secret)
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}
