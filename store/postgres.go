package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"wp-actionqueue/model"
)

const entryColumns = `id, website_id, integration_id, initiated_by, action_type,
	action_payload, before_state, after_state, resource_type, resource_id,
	priority, status, error_message, started_at, completed_at, created_at`

// Postgres is the pgx-backed Store used in production.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) Insert(ctx context.Context, entry model.ActionEntry) (string, error) {
	var id string
	err := p.pool.QueryRow(ctx, `
		INSERT INTO wp_action_queue (
			website_id, integration_id, initiated_by, action_type,
			action_payload, before_state, resource_type, resource_id,
			priority, status, started_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`,
		entry.WebsiteID, entry.IntegrationID, entry.InitiatedBy, entry.ActionType,
		entry.ActionPayload, entry.BeforeState, entry.ResourceType, entry.ResourceID,
		entry.Priority, entry.Status, entry.StartedAt,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("insert queue entry: %w", err)
	}
	return id, nil
}

func (p *Postgres) MarkCompleted(ctx context.Context, id string, afterState json.RawMessage) error {
	_, err := p.pool.Exec(ctx, `
		UPDATE wp_action_queue
		SET status = $2, after_state = $3, completed_at = now()
		WHERE id = $1 AND status IN ('pending', 'processing')`,
		id, model.StatusCompleted, afterState,
	)
	if err != nil {
		return fmt.Errorf("mark entry completed: %w", err)
	}
	return nil
}

func (p *Postgres) MarkFailed(ctx context.Context, id string, errorMessage string) error {
	_, err := p.pool.Exec(ctx, `
		UPDATE wp_action_queue
		SET status = $2, error_message = $3, completed_at = now()
		WHERE id = $1 AND status IN ('pending', 'processing')`,
		id, model.StatusFailed, errorMessage,
	)
	if err != nil {
		return fmt.Errorf("mark entry failed: %w", err)
	}
	return nil
}

func (p *Postgres) LatestLiveForResource(ctx context.Context, websiteID, resourceType, resourceID string) (*model.ActionEntry, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT `+entryColumns+`
		FROM wp_action_queue
		WHERE website_id = $1 AND resource_type = $2 AND resource_id = $3
			AND status IN ('pending', 'processing')
		ORDER BY created_at DESC
		LIMIT 1`,
		websiteID, resourceType, resourceID,
	)
	entry, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select live entry for resource: %w", err)
	}
	return entry, nil
}

func (p *Postgres) LiveForWebsite(ctx context.Context, websiteID string) ([]model.ActionEntry, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT `+entryColumns+`
		FROM wp_action_queue
		WHERE website_id = $1 AND status IN ('pending', 'processing')
		ORDER BY created_at DESC`,
		websiteID,
	)
	if err != nil {
		return nil, fmt.Errorf("select live entries: %w", err)
	}
	defer rows.Close()

	var entries []model.ActionEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan live entry: %w", err)
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate live entries: %w", err)
	}
	return entries, nil
}

func (p *Postgres) CountLive(ctx context.Context, websiteID string) (int, error) {
	var count int
	err := p.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM wp_action_queue
		WHERE website_id = $1 AND status IN ('pending', 'processing')`,
		websiteID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count live entries: %w", err)
	}
	return count, nil
}

func scanEntry(row pgx.Row) (*model.ActionEntry, error) {
	var entry model.ActionEntry
	err := row.Scan(
		&entry.ID,
		&entry.WebsiteID,
		&entry.IntegrationID,
		&entry.InitiatedBy,
		&entry.ActionType,
		&entry.ActionPayload,
		&entry.BeforeState,
		&entry.AfterState,
		&entry.ResourceType,
		&entry.ResourceID,
		&entry.Priority,
		&entry.Status,
		&entry.ErrorMessage,
		&entry.StartedAt,
		&entry.CompletedAt,
		&entry.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}
