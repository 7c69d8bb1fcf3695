package service

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-sync/internal/clickup"
	"github.com/spec-kit/helpdesk-sync/internal/config"
	"github.com/spec-kit/helpdesk-sync/internal/domain"
	"github.com/spec-kit/helpdesk-sync/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-sync/pkg/util/errorutil"
)

// IntegrationInput is an operator edit of the ClickUp integration record.
type IntegrationInput struct {
	APIKey        *string
	ListID        string
	WorkspaceID   string
	SpaceID       string
	SourceFieldID string
	Active        bool
}

// IntegrationService manages the stored integration record and keeps the
// TaskService in step with it.
type IntegrationService struct {
	repo   repository.IntegrationRepository
	tasks  *TaskService
	logger *zap.Logger
}

// NewIntegrationService constructs the service.
func NewIntegrationService(repo repository.IntegrationRepository, tasks *TaskService, logger *zap.Logger) *IntegrationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IntegrationService{repo: repo, tasks: tasks, logger: logger}
}

// Load activates the stored record. When none exists and the environment
// carries a credential and list, that seed is stored first.
func (s *IntegrationService) Load(ctx context.Context, seed config.ClickUpConfig) error {
	cfg, err := s.repo.GetActive(ctx)
	if errors.Is(err, repository.ErrNotFound) {
		if strings.TrimSpace(seed.APIKey) == "" || strings.TrimSpace(seed.ListID) == "" {
			s.logger.Info("clickup integration not configured")
			return s.tasks.Configure(nil)
		}
		cfg = &domain.IntegrationConfig{
			APIKey:        seed.APIKey,
			ListID:        seed.ListID,
			WorkspaceID:   seed.WorkspaceID,
			SpaceID:       seed.SpaceID,
			SourceFieldID: seed.SourceFieldID,
			Active:        true,
		}
		if err := s.repo.Save(ctx, cfg); err != nil {
			return err
		}
		s.logger.Info("clickup integration seeded from environment", zap.String("list_id", cfg.ListID))
	} else if err != nil {
		return err
	}
	return s.tasks.Configure(cfg)
}

// Get returns the active record with its credential masked.
func (s *IntegrationService) Get(ctx context.Context) (*domain.IntegrationConfig, error) {
	cfg, err := s.repo.GetActive(ctx)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewNotFound("clickup integration", nil)
	}
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	cfg.APIKey = MaskSecret(cfg.APIKey)
	return cfg, nil
}

// Save upserts the active record and reloads the TaskService. A nil APIKey
// keeps the stored credential.
func (s *IntegrationService) Save(ctx context.Context, input IntegrationInput) (*domain.IntegrationConfig, error) {
	cfg, err := s.repo.GetActive(ctx)
	if errors.Is(err, repository.ErrNotFound) {
		cfg = &domain.IntegrationConfig{}
	} else if err != nil {
		return nil, apperrors.MapError(err)
	}
	if input.APIKey != nil {
		cfg.APIKey = strings.TrimSpace(*input.APIKey)
	}
	cfg.ListID = strings.TrimSpace(input.ListID)
	cfg.WorkspaceID = strings.TrimSpace(input.WorkspaceID)
	cfg.SpaceID = strings.TrimSpace(input.SpaceID)
	cfg.SourceFieldID = strings.TrimSpace(input.SourceFieldID)
	cfg.Active = input.Active

	if cfg.APIKey == "" {
		return nil, apperrors.NewValidationError("api key is required", map[string]any{"field": "api_key"})
	}
	if cfg.Active && cfg.ListID == "" {
		return nil, apperrors.NewValidationError("list id is required for an active integration", map[string]any{"field": "list_id"})
	}

	if err := s.repo.Save(ctx, cfg); err != nil {
		return nil, apperrors.MapError(err)
	}
	if err := s.tasks.Configure(cfg); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.logger.Info("clickup integration saved", zap.String("list_id", cfg.ListID), zap.Bool("active", cfg.Active))

	masked := *cfg
	masked.APIKey = MaskSecret(cfg.APIKey)
	return &masked, nil
}

// Test verifies the active configuration against ClickUp.
func (s *IntegrationService) Test(ctx context.Context) error {
	if err := s.tasks.Verify(ctx); err != nil {
		return remoteError(err)
	}
	return nil
}

// Workspaces enumerates workspaces for the setup flow.
func (s *IntegrationService) Workspaces(ctx context.Context) ([]clickup.Workspace, error) {
	out, err := s.tasks.Workspaces(ctx)
	if err != nil {
		return nil, remoteError(err)
	}
	return out, nil
}

// Spaces enumerates spaces of a workspace.
func (s *IntegrationService) Spaces(ctx context.Context, workspaceID string) ([]clickup.Space, error) {
	out, err := s.tasks.Spaces(ctx, workspaceID)
	if err != nil {
		return nil, remoteError(err)
	}
	return out, nil
}

// Lists enumerates lists of a space.
func (s *IntegrationService) Lists(ctx context.Context, spaceID string) ([]clickup.List, error) {
	out, err := s.tasks.Lists(ctx, spaceID)
	if err != nil {
		return nil, remoteError(err)
	}
	return out, nil
}

// MaskSecret keeps the last four characters of a credential.
func MaskSecret(secret string) string {
	if len(secret) <= 4 {
		return strings.Repeat("*", len(secret))
	}
	return strings.Repeat("*", len(secret)-4) + secret[len(secret)-4:]
}

func remoteError(err error) error {
	switch {
	case errors.Is(err, ErrNotConfigured):
		return apperrors.NewNotConfigured(err)
	case clickup.IsUnauthorized(err):
		return apperrors.NewDomainError("CLICKUP_UNAUTHORIZED", "clickup rejected the credential", http.StatusBadGateway, nil)
	case clickup.IsRateLimited(err):
		return apperrors.NewRateLimited("clickup rate limit reached, retry shortly", err)
	case clickup.IsNotFound(err):
		return apperrors.NewNotFound("clickup resource", nil)
	default:
		return apperrors.NewSyncFailed("clickup request failed", nil, err)
	}
}
