// Package tracker records proposed mutations against remote WordPress
// sites and answers "is anyone else currently touching this resource?".
//
// The queue is an append-only journal, not a job pipeline: every entry
// is created and resolved within a single request. Conflict checks are
// advisory; nothing prevents two racing callers from both enqueueing
// against the same resource. Bookkeeping failures never block the
// remote mutation they describe, so enqueue reports failure as a value
// and every other operation degrades silently.
package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"wp-actionqueue/model"
	"wp-actionqueue/store"
)

// Tracker drives queue entry lifecycles over a Store.
type Tracker struct {
	store  store.Store
	logger *slog.Logger
}

func New(st store.Store, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{store: st, logger: logger}
}

// Enqueue records a new action. Initial status defaults to pending; an
// entry created already processing gets StartedAt stamped at insertion.
// Persistence failures come back as an unsuccessful QueueResult, never
// an error: the caller's remote operation must not be blocked by
// bookkeeping.
func (t *Tracker) Enqueue(ctx context.Context, input model.ActionInput) model.QueueResult {
	if input.WebsiteID == "" || input.ActionType == "" {
		return model.QueueResult{Error: "website_id and action_type are required"}
	}

	status := input.Status
	if status == "" {
		status = model.StatusPending
	}
	if !status.IsLive() {
		return model.QueueResult{Error: fmt.Sprintf("invalid initial status %q", status)}
	}

	payload := input.ActionPayload
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}

	entry := model.ActionEntry{
		WebsiteID:     input.WebsiteID,
		IntegrationID: input.IntegrationID,
		InitiatedBy:   input.InitiatedBy,
		ActionType:    input.ActionType,
		ActionPayload: payload,
		BeforeState:   input.BeforeState,
		ResourceType:  input.ResourceType,
		ResourceID:    input.ResourceID,
		Priority:      input.Priority,
		Status:        status,
	}
	if status == model.StatusProcessing {
		now := time.Now().UTC()
		entry.StartedAt = &now
	}

	id, err := t.store.Insert(ctx, entry)
	if err != nil {
		t.logger.Error("enqueue action failed",
			"website_id", input.WebsiteID,
			"action_type", input.ActionType,
			"error", err)
		return model.QueueResult{Error: err.Error()}
	}
	return model.QueueResult{ActionID: id, Success: true}
}

// Complete marks the entry completed with an optional after-state
// snapshot. Unknown ids and already terminal entries are silent no-ops,
// so calling it without checking Enqueue's result is safe.
func (t *Tracker) Complete(ctx context.Context, actionID string, afterState json.RawMessage) {
	if actionID == "" {
		return
	}
	if err := t.store.MarkCompleted(ctx, actionID, afterState); err != nil {
		t.logger.Warn("complete action failed", "action_id", actionID, "error", err)
	}
}

// Fail marks the entry failed with the given message. Same no-op
// semantics as Complete.
func (t *Tracker) Fail(ctx context.Context, actionID, errorMessage string) {
	if actionID == "" {
		return
	}
	if err := t.store.MarkFailed(ctx, actionID, errorMessage); err != nil {
		t.logger.Warn("fail action failed", "action_id", actionID, "error", err)
	}
}

// CheckResourceConflict returns the most recently created live entry
// targeting the given resource, or nil when nobody is touching it.
// Store errors degrade to "no conflict": an unavailable bookkeeping
// table must never falsely flag a legitimate operation.
func (t *Tracker) CheckResourceConflict(ctx context.Context, websiteID, resourceType, resourceID string) *model.ActionEntry {
	if websiteID == "" || resourceType == "" || resourceID == "" {
		return nil
	}
	entry, err := t.store.LatestLiveForResource(ctx, websiteID, resourceType, resourceID)
	if err != nil {
		t.logger.Warn("conflict check failed",
			"website_id", websiteID,
			"resource", resourceType+":"+resourceID,
			"error", err)
		return nil
	}
	return entry
}

// CheckBatchConflicts reports conflicts for a batch of candidate
// resources in a single store round-trip: all live entries for the
// website are fetched once and matched in memory. The returned map is
// keyed "type:id" and only holds resources that have a conflicting
// entry.
func (t *Tracker) CheckBatchConflicts(ctx context.Context, websiteID string, resources []model.Resource) map[string]model.ActionEntry {
	conflicts := make(map[string]model.ActionEntry)
	if websiteID == "" || len(resources) == 0 {
		return conflicts
	}

	live, err := t.store.LiveForWebsite(ctx, websiteID)
	if err != nil {
		t.logger.Warn("batch conflict check failed", "website_id", websiteID, "error", err)
		return conflicts
	}

	latest := make(map[string]model.ActionEntry, len(live))
	for _, entry := range live {
		if !entry.HasResource() {
			continue
		}
		key := entry.Resource().Key()
		if current, ok := latest[key]; !ok || entry.CreatedAt.After(current.CreatedAt) {
			latest[key] = entry
		}
	}

	for _, resource := range resources {
		if resource.Type == "" || resource.ID == "" {
			continue
		}
		if entry, ok := latest[resource.Key()]; ok {
			conflicts[resource.Key()] = entry
		}
	}
	return conflicts
}

// PendingActionCount returns how many entries are still live for a
// website. Store errors degrade to zero.
func (t *Tracker) PendingActionCount(ctx context.Context, websiteID string) int {
	if websiteID == "" {
		return 0
	}
	count, err := t.store.CountLive(ctx, websiteID)
	if err != nil {
		t.logger.Warn("pending count failed", "website_id", websiteID, "error", err)
		return 0
	}
	return count
}
