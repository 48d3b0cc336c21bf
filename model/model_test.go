package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseStatus(t *testing.T) {
	tests := []struct {
		in    string
		want  Status
		known bool
	}{
		{"pending", StatusPending, true},
		{" Processing ", StatusProcessing, true},
		{"COMPLETED", StatusCompleted, true},
		{"rolled_back", StatusRolledBack, true},
		{"", "", false},
		{"bogus", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseStatus(tt.in)
		assert.Equal(t, tt.known, ok, "input %q", tt.in)
		assert.Equal(t, tt.want, got, "input %q", tt.in)
	}
}

func TestStatusIsLive(t *testing.T) {
	assert.True(t, StatusPending.IsLive())
	assert.True(t, StatusProcessing.IsLive())
	assert.False(t, StatusCompleted.IsLive())
	assert.False(t, StatusFailed.IsLive())
	assert.False(t, StatusRolledBack.IsLive())
}

func TestResourceKey(t *testing.T) {
	assert.Equal(t, "page:42", Resource{Type: "page", ID: "42"}.Key())
}

func TestEntryHasResource(t *testing.T) {
	entry := ActionEntry{ResourceType: "page", ResourceID: "42"}
	assert.True(t, entry.HasResource())
	assert.Equal(t, Resource{Type: "page", ID: "42"}, entry.Resource())

	assert.False(t, ActionEntry{ResourceType: "page"}.HasResource())
	assert.False(t, ActionEntry{}.HasResource())
}
