package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS wp_action_queue (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	website_id TEXT NOT NULL,
	integration_id TEXT NOT NULL,
	initiated_by TEXT NOT NULL,
	action_type TEXT NOT NULL,
	action_payload JSONB NOT NULL DEFAULT '{}'::jsonb,
	before_state JSONB,
	after_state JSONB,
	resource_type TEXT NOT NULL DEFAULT '',
	resource_id TEXT NOT NULL DEFAULT '',
	priority INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT 'pending',
	error_message TEXT NOT NULL DEFAULT '',
	started_at TIMESTAMPTZ,
	completed_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS wp_action_queue_live_idx
	ON wp_action_queue (website_id, status, created_at DESC);

CREATE INDEX IF NOT EXISTS wp_action_queue_resource_idx
	ON wp_action_queue (website_id, resource_type, resource_id);
`

// EnsureSchema creates the queue table and indexes if missing.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure queue schema: %w", err)
	}
	return nil
}
