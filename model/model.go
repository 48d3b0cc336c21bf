package model

import (
	"encoding/json"
	"strings"
	"time"
)

// Status is the lifecycle state of a queued remote action.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	// StatusRolledBack is reserved in the vocabulary; no transition
	// currently assigns it.
	StatusRolledBack Status = "rolled_back"
)

var allStatuses = []Status{
	StatusPending,
	StatusProcessing,
	StatusCompleted,
	StatusFailed,
	StatusRolledBack,
}

// AllStatuses returns the known status values.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	for _, s := range allStatuses {
		if s == normalized {
			return s, true
		}
	}
	return "", false
}

// IsLive reports whether a status can still conflict with new work.
func (s Status) IsLive() bool {
	return s == StatusPending || s == StatusProcessing
}

func (s Status) String() string {
	return string(s)
}

// ActionEntry is one attempted or completed mutation against a remote
// WordPress site. Entries are never deleted; completed and failed rows
// stay behind as an audit trail.
type ActionEntry struct {
	ID            string          `json:"id"`
	WebsiteID     string          `json:"website_id"`
	IntegrationID string          `json:"integration_id"`
	InitiatedBy   string          `json:"initiated_by"`
	ActionType    string          `json:"action_type"`
	ActionPayload json.RawMessage `json:"action_payload"`
	BeforeState   json.RawMessage `json:"before_state,omitempty"`
	AfterState    json.RawMessage `json:"after_state,omitempty"`
	ResourceType  string          `json:"resource_type,omitempty"`
	ResourceID    string          `json:"resource_id,omitempty"`
	Priority      int             `json:"priority"`
	Status        Status          `json:"status"`
	ErrorMessage  string          `json:"error_message,omitempty"`
	StartedAt     *time.Time      `json:"started_at,omitempty"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// HasResource reports whether the entry targets a specific remote
// object. Entries without one (e.g. a cache clear) never participate in
// conflict checks.
func (e ActionEntry) HasResource() bool {
	return e.ResourceType != "" && e.ResourceID != ""
}

// Resource returns the entry's contention domain.
func (e ActionEntry) Resource() Resource {
	return Resource{Type: e.ResourceType, ID: e.ResourceID}
}

// ActionInput is the caller-supplied portion of a new queue entry.
// Status defaults to pending when empty.
type ActionInput struct {
	WebsiteID     string          `json:"website_id"`
	IntegrationID string          `json:"integration_id"`
	InitiatedBy   string          `json:"initiated_by"`
	ActionType    string          `json:"action_type"`
	ActionPayload json.RawMessage `json:"action_payload"`
	BeforeState   json.RawMessage `json:"before_state,omitempty"`
	ResourceType  string          `json:"resource_type,omitempty"`
	ResourceID    string          `json:"resource_id,omitempty"`
	Priority      int             `json:"priority,omitempty"`
	Status        Status          `json:"status,omitempty"`
}

// QueueResult reports the outcome of an enqueue attempt. A failed
// enqueue is bookkeeping-only: callers decide whether to proceed with
// the underlying remote mutation unbooked.
type QueueResult struct {
	ActionID string `json:"action_id,omitempty"`
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
}

// Resource identifies a specific remote object (a page, plugin, menu
// item) that can be the target of contention.
type Resource struct {
	Type string `json:"resource_type"`
	ID   string `json:"resource_id"`
}

// Key returns the "type:id" form used to key conflict maps.
func (r Resource) Key() string {
	return r.Type + ":" + r.ID
}

// Lead is a normalized capture from an inbound lead webhook.
type Lead struct {
	Name        string            `json:"name,omitempty"`
	Email       string            `json:"email,omitempty"`
	Phone       string            `json:"phone,omitempty"`
	Message     string            `json:"message,omitempty"`
	Source      string            `json:"source"`
	FormID      string            `json:"form_id,omitempty"`
	CampaignID  string            `json:"campaign_id,omitempty"`
	UTM         map[string]string `json:"utm,omitempty"`
	Extra       map[string]string `json:"extra,omitempty"`
	SubmittedAt time.Time         `json:"submitted_at"`
}
