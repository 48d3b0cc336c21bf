// Package store persists action queue entries and exposes the narrow
// query surface the tracker needs: insert-with-returning-id, guarded
// update-by-id, and filtered selects over live entries.
package store

import (
	"context"
	"encoding/json"

	"wp-actionqueue/model"
)

// Store provides persistence for queue entries.
type Store interface {
	// Insert stores a new entry and returns its assigned id. The store
	// assigns ID and CreatedAt; everything else comes from the entry.
	Insert(ctx context.Context, entry model.ActionEntry) (string, error)

	// MarkCompleted moves a live entry to completed, storing the
	// optional after-state snapshot and stamping CompletedAt. Updating
	// an unknown or already terminal entry is a silent no-op.
	MarkCompleted(ctx context.Context, id string, afterState json.RawMessage) error

	// MarkFailed moves a live entry to failed with the given message
	// and stamps CompletedAt. Same no-op semantics as MarkCompleted.
	MarkFailed(ctx context.Context, id string, errorMessage string) error

	// LatestLiveForResource returns the most recently created pending
	// or processing entry for the given website and resource, or nil
	// when none exists.
	LatestLiveForResource(ctx context.Context, websiteID, resourceType, resourceID string) (*model.ActionEntry, error)

	// LiveForWebsite returns all pending and processing entries for a
	// website, newest first.
	LiveForWebsite(ctx context.Context, websiteID string) ([]model.ActionEntry, error)

	// CountLive returns the number of pending and processing entries
	// for a website.
	CountLive(ctx context.Context, websiteID string) (int, error)
}
