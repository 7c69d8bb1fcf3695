package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-sync/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-sync/internal/auth"
	"github.com/spec-kit/helpdesk-sync/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Tickets        *handlers.TicketsHandler
	Webhooks       *handlers.WebhookHandler
	Integration    *handlers.IntegrationHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	// ClickUp signs its deliveries; no bearer token.
	app.Post("/webhooks/clickup", cfg.Webhooks.ClickUp)

	api := app.Group("/api/v1", cfg.AuthMiddleware.Handle, auth.RequireRole(domain.RoleAgent, domain.RoleAdmin))

	tickets := api.Group("/tickets")
	tickets.Post("/", cfg.Tickets.CreateTicket)
	tickets.Get("/", cfg.Tickets.ListTickets)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Patch("/:id", cfg.Tickets.UpdateTicket)
	tickets.Delete("/:id", cfg.Tickets.DeleteTicket)
	tickets.Patch("/:id/status", cfg.Tickets.UpdateStatus)
	tickets.Patch("/:id/priority", cfg.Tickets.UpdatePriority)
	tickets.Patch("/:id/assign", cfg.Tickets.Assign)
	tickets.Post("/:id/comments", cfg.Tickets.AddComment)
	tickets.Post("/:id/sync", cfg.Tickets.SyncNow)
	tickets.Get("/:id/history", cfg.Tickets.ListHistory)

	requireAdmin := auth.RequireRole(domain.RoleAdmin)
	api.Get("/metrics", requireAdmin, cfg.Health.Metrics)

	integration := api.Group("/integrations/clickup", requireAdmin)
	integration.Get("/", cfg.Integration.Get)
	integration.Put("/", cfg.Integration.Save)
	integration.Post("/test", cfg.Integration.Test)
	integration.Get("/workspaces", cfg.Integration.Workspaces)
	integration.Get("/workspaces/:id/spaces", cfg.Integration.Spaces)
	integration.Get("/spaces/:id/lists", cfg.Integration.Lists)
}
