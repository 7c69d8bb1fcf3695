package domain

import "time"

// IntegrationConfig is the active ClickUp integration record.
type IntegrationConfig struct {
	ID            string
	APIKey        string
	ListID        string
	WorkspaceID   string
	SpaceID       string
	SourceFieldID string
	Active        bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Usable reports whether the record carries the minimum needed to call ClickUp.
func (c *IntegrationConfig) Usable() bool {
	return c != nil && c.Active && c.APIKey != "" && c.ListID != ""
}
