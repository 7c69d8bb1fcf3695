package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-sync/internal/api/dto"
	"github.com/spec-kit/helpdesk-sync/internal/service"
	apperrors "github.com/spec-kit/helpdesk-sync/pkg/util/errorutil"
)

// IntegrationHandler exposes the ClickUp integration settings to admins.
type IntegrationHandler struct {
	service *service.IntegrationService
}

// NewIntegrationHandler constructs handler.
func NewIntegrationHandler(integrationService *service.IntegrationService) *IntegrationHandler {
	return &IntegrationHandler{service: integrationService}
}

// Get GET /integrations/clickup.
func (h *IntegrationHandler) Get(c *fiber.Ctx) error {
	cfg, err := h.service.Get(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewIntegrationResponse(cfg)})
}

// Save PUT /integrations/clickup.
func (h *IntegrationHandler) Save(c *fiber.Ctx) error {
	var req dto.SaveIntegrationRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	cfg, err := h.service.Save(c.UserContext(), service.IntegrationInput{
		APIKey:        req.APIKey,
		ListID:        req.ListID,
		WorkspaceID:   req.WorkspaceID,
		SpaceID:       req.SpaceID,
		SourceFieldID: req.SourceFieldID,
		Active:        active,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewIntegrationResponse(cfg)})
}

// Test POST /integrations/clickup/test.
func (h *IntegrationHandler) Test(c *fiber.Ctx) error {
	if err := h.service.Test(c.UserContext()); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"connected": true}})
}

// Workspaces GET /integrations/clickup/workspaces.
func (h *IntegrationHandler) Workspaces(c *fiber.Ctx) error {
	workspaces, err := h.service.Workspaces(c.UserContext())
	if err != nil {
		return err
	}
	items := make([]dto.RemoteEntry, 0, len(workspaces))
	for _, w := range workspaces {
		items = append(items, dto.RemoteEntry{ID: w.ID, Name: w.Name})
	}
	return c.JSON(fiber.Map{"data": items})
}

// Spaces GET /integrations/clickup/workspaces/:id/spaces.
func (h *IntegrationHandler) Spaces(c *fiber.Ctx) error {
	spaces, err := h.service.Spaces(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	items := make([]dto.RemoteEntry, 0, len(spaces))
	for _, s := range spaces {
		items = append(items, dto.RemoteEntry{ID: s.ID, Name: s.Name})
	}
	return c.JSON(fiber.Map{"data": items})
}

// Lists GET /integrations/clickup/spaces/:id/lists.
func (h *IntegrationHandler) Lists(c *fiber.Ctx) error {
	lists, err := h.service.Lists(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	items := make([]dto.RemoteEntry, 0, len(lists))
	for _, l := range lists {
		items = append(items, dto.RemoteEntry{ID: l.ID, Name: l.Name})
	}
	return c.JSON(fiber.Map{"data": items})
}
