package dto

import (
	"time"

	"github.com/spec-kit/helpdesk-sync/internal/domain"
)

// SaveIntegrationRequest upserts the ClickUp integration. Omitting api_key
// keeps the stored credential.
type SaveIntegrationRequest struct {
	APIKey        *string `json:"api_key"`
	ListID        string  `json:"list_id"`
	WorkspaceID   string  `json:"workspace_id"`
	SpaceID       string  `json:"space_id"`
	SourceFieldID string  `json:"source_field_id"`
	Active        *bool   `json:"active"`
}

// IntegrationResponse shows the record with a masked credential.
type IntegrationResponse struct {
	ID            string    `json:"id"`
	APIKey        string    `json:"api_key"`
	ListID        string    `json:"list_id"`
	WorkspaceID   string    `json:"workspace_id"`
	SpaceID       string    `json:"space_id"`
	SourceFieldID string    `json:"source_field_id"`
	Active        bool      `json:"active"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// NewIntegrationResponse maps an already masked record.
func NewIntegrationResponse(cfg *domain.IntegrationConfig) IntegrationResponse {
	return IntegrationResponse{
		ID:            cfg.ID,
		APIKey:        cfg.APIKey,
		ListID:        cfg.ListID,
		WorkspaceID:   cfg.WorkspaceID,
		SpaceID:       cfg.SpaceID,
		SourceFieldID: cfg.SourceFieldID,
		Active:        cfg.Active,
		UpdatedAt:     cfg.UpdatedAt,
	}
}

// RemoteEntry is a workspace, space or list offered by the setup flow.
type RemoteEntry struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
