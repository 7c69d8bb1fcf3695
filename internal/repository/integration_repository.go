package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-sync/internal/domain"
)

// IntegrationRepository is the config store holding the ClickUp integration record.
type IntegrationRepository interface {
	GetActive(ctx context.Context) (*domain.IntegrationConfig, error)
	Save(ctx context.Context, cfg *domain.IntegrationConfig) error
}

type integrationRepository struct {
	pool *pgxpool.Pool
}

// NewIntegrationRepository builds repository.
func NewIntegrationRepository(pool *pgxpool.Pool) IntegrationRepository {
	return &integrationRepository{pool: pool}
}

func (r *integrationRepository) GetActive(ctx context.Context) (*domain.IntegrationConfig, error) {
	const query = `
        SELECT id, api_key, list_id, workspace_id, space_id, source_field_id, active, created_at, updated_at
        FROM clickup_integrations WHERE active ORDER BY updated_at DESC LIMIT 1`
	var cfg domain.IntegrationConfig
	if err := r.pool.QueryRow(ctx, query).Scan(
		&cfg.ID,
		&cfg.APIKey,
		&cfg.ListID,
		&cfg.WorkspaceID,
		&cfg.SpaceID,
		&cfg.SourceFieldID,
		&cfg.Active,
		&cfg.CreatedAt,
		&cfg.UpdatedAt,
	); err != nil {
		return nil, mapNoRows(err)
	}
	return &cfg, nil
}

// Save inserts a new record, or updates it when ID is set. Activating a record
// deactivates every other one so a single active record exists.
func (r *integrationRepository) Save(ctx context.Context, cfg *domain.IntegrationConfig) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if cfg.Active {
		if _, err := tx.Exec(ctx, `UPDATE clickup_integrations SET active=false, updated_at=NOW() WHERE active`); err != nil {
			return err
		}
	}

	if cfg.ID == "" {
		const insert = `
            INSERT INTO clickup_integrations (api_key, list_id, workspace_id, space_id, source_field_id, active)
            VALUES ($1,$2,$3,$4,$5,$6)
            RETURNING id, created_at, updated_at`
		if err := tx.QueryRow(ctx, insert,
			cfg.APIKey, cfg.ListID, cfg.WorkspaceID, cfg.SpaceID, cfg.SourceFieldID, cfg.Active,
		).Scan(&cfg.ID, &cfg.CreatedAt, &cfg.UpdatedAt); err != nil {
			return err
		}
	} else {
		const update = `
            UPDATE clickup_integrations SET api_key=$1, list_id=$2, workspace_id=$3, space_id=$4,
                source_field_id=$5, active=$6, updated_at=NOW()
            WHERE id=$7
            RETURNING created_at, updated_at`
		if err := tx.QueryRow(ctx, update,
			cfg.APIKey, cfg.ListID, cfg.WorkspaceID, cfg.SpaceID, cfg.SourceFieldID, cfg.Active, cfg.ID,
		).Scan(&cfg.CreatedAt, &cfg.UpdatedAt); err != nil {
			return mapNoRows(err)
		}
	}
	return tx.Commit(ctx)
}
