package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wp-actionqueue/model"
	"wp-actionqueue/ratelimit"
	"wp-actionqueue/store"
	"wp-actionqueue/tracker"
)

func newTestServer(rateLimit int) (*Server, *store.Memory) {
	mem := store.NewMemory()
	return &Server{
		tracker: tracker.New(mem, nil),
		limiter: ratelimit.New(nil, rateLimit, time.Minute, nil),
		logger:  slog.Default(),
	}, mem
}

func enqueuePending(t *testing.T, srv *Server, websiteID, resourceType, resourceID string) string {
	t.Helper()
	result := srv.tracker.Enqueue(context.Background(), model.ActionInput{
		WebsiteID:     websiteID,
		IntegrationID: "int-1",
		InitiatedBy:   "user-1",
		ActionType:    "update_page",
		ResourceType:  resourceType,
		ResourceID:    resourceID,
	})
	require.True(t, result.Success)
	return result.ActionID
}

func TestPostAction(t *testing.T) {
	srv, mem := newTestServer(100)

	t.Run("valid request", func(t *testing.T) {
		payload := []byte(`{
			"website_id": "site-1",
			"integration_id": "int-1",
			"initiated_by": "user-1",
			"action_type": "update_page",
			"resource_type": "page",
			"resource_id": "42"
		}`)
		req := httptest.NewRequest("POST", "/actions", bytes.NewReader(payload))
		w := httptest.NewRecorder()

		srv.postAction(w, req)

		resp := w.Result()
		require.Equal(t, http.StatusCreated, resp.StatusCode)

		var result model.QueueResult
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
		assert.True(t, result.Success)

		entry, ok := mem.Get(result.ActionID)
		require.True(t, ok)
		assert.Equal(t, model.StatusPending, entry.Status)
	})

	t.Run("malformed JSON", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/actions", bytes.NewReader([]byte(`{oops}`)))
		w := httptest.NewRecorder()

		srv.postAction(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Result().StatusCode)
	})

	t.Run("missing required fields", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/actions", bytes.NewReader([]byte(`{"action_type":"x"}`)))
		w := httptest.NewRecorder()

		srv.postAction(w, req)

		resp := w.Result()
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

		var result model.QueueResult
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
		assert.False(t, result.Success)
		assert.NotEmpty(t, result.Error)
	})
}

func TestCompleteAndFailActions(t *testing.T) {
	srv, mem := newTestServer(100)

	t.Run("complete with after state", func(t *testing.T) {
		id := enqueuePending(t, srv, "site-1", "page", "42")

		req := httptest.NewRequest("POST", "/actions/"+id+"/complete",
			bytes.NewReader([]byte(`{"after_state": {"title": "new"}}`)))
		req.SetPathValue("id", id)
		w := httptest.NewRecorder()

		srv.completeAction(w, req)

		assert.Equal(t, http.StatusNoContent, w.Result().StatusCode)
		entry, ok := mem.Get(id)
		require.True(t, ok)
		assert.Equal(t, model.StatusCompleted, entry.Status)
		assert.JSONEq(t, `{"title": "new"}`, string(entry.AfterState))
	})

	t.Run("complete with empty body", func(t *testing.T) {
		id := enqueuePending(t, srv, "site-1", "page", "43")

		req := httptest.NewRequest("POST", "/actions/"+id+"/complete", nil)
		req.SetPathValue("id", id)
		w := httptest.NewRecorder()

		srv.completeAction(w, req)

		assert.Equal(t, http.StatusNoContent, w.Result().StatusCode)
		entry, ok := mem.Get(id)
		require.True(t, ok)
		assert.Equal(t, model.StatusCompleted, entry.Status)
	})

	t.Run("fail requires a message", func(t *testing.T) {
		id := enqueuePending(t, srv, "site-1", "page", "44")

		req := httptest.NewRequest("POST", "/actions/"+id+"/fail", bytes.NewReader([]byte(`{}`)))
		req.SetPathValue("id", id)
		w := httptest.NewRecorder()

		srv.failAction(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Result().StatusCode)
	})

	t.Run("fail records the message", func(t *testing.T) {
		id := enqueuePending(t, srv, "site-1", "page", "45")

		req := httptest.NewRequest("POST", "/actions/"+id+"/fail",
			bytes.NewReader([]byte(`{"error_message": "timed out"}`)))
		req.SetPathValue("id", id)
		w := httptest.NewRecorder()

		srv.failAction(w, req)

		assert.Equal(t, http.StatusNoContent, w.Result().StatusCode)
		entry, ok := mem.Get(id)
		require.True(t, ok)
		assert.Equal(t, model.StatusFailed, entry.Status)
		assert.Equal(t, "timed out", entry.ErrorMessage)
	})
}

func TestGetConflict(t *testing.T) {
	srv, _ := newTestServer(100)

	t.Run("missing params", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/websites/site-1/conflicts", nil)
		req.SetPathValue("id", "site-1")
		w := httptest.NewRecorder()

		srv.getConflict(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Result().StatusCode)
	})

	t.Run("no conflict", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/websites/site-1/conflicts?resource_type=page&resource_id=42", nil)
		req.SetPathValue("id", "site-1")
		w := httptest.NewRecorder()

		srv.getConflict(w, req)

		assert.Equal(t, http.StatusNoContent, w.Result().StatusCode)
	})

	t.Run("resolved first entry leaves the second live", func(t *testing.T) {
		firstID := enqueuePending(t, srv, "site-1", "page", "42")
		secondID := enqueuePending(t, srv, "site-1", "page", "42")
		srv.tracker.Complete(context.Background(), firstID, nil)

		req := httptest.NewRequest("GET", "/websites/site-1/conflicts?resource_type=page&resource_id=42", nil)
		req.SetPathValue("id", "site-1")
		w := httptest.NewRecorder()

		srv.getConflict(w, req)

		resp := w.Result()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var entry model.ActionEntry
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&entry))
		assert.Equal(t, secondID, entry.ID)
	})
}

func TestPostBatchConflicts(t *testing.T) {
	srv, _ := newTestServer(100)

	pageID := enqueuePending(t, srv, "site-1", "page", "3")
	enqueuePending(t, srv, "site-1", "menu", "main")

	payload := []byte(`{"resources": [
		{"resource_type": "page", "resource_id": "3"},
		{"resource_type": "page", "resource_id": "12"}
	]}`)
	req := httptest.NewRequest("POST", "/websites/site-1/conflicts/batch", bytes.NewReader(payload))
	req.SetPathValue("id", "site-1")
	w := httptest.NewRecorder()

	srv.postBatchConflicts(w, req)

	resp := w.Result()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var conflicts map[string]model.ActionEntry
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&conflicts))
	require.Len(t, conflicts, 1)
	assert.Equal(t, pageID, conflicts["page:3"].ID)
}

func TestGetPendingCount(t *testing.T) {
	srv, _ := newTestServer(100)

	enqueuePending(t, srv, "site-1", "page", "1")
	enqueuePending(t, srv, "site-1", "page", "2")

	req := httptest.NewRequest("GET", "/websites/site-1/actions/pending", nil)
	req.SetPathValue("id", "site-1")
	w := httptest.NewRecorder()

	srv.getPendingCount(w, req)

	resp := w.Result()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		WebsiteID string `json:"website_id"`
		Count     int    `json:"count"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "site-1", body.WebsiteID)
	assert.Equal(t, 2, body.Count)
}

func fakeWPServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /wp-json/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"name": "Client Site"}`))
	})
	mux.HandleFunc("GET /wp-json/wp/v2/users/me", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"name": "agency-bot"}`))
	})
	mux.HandleFunc("POST /wp-json/wp/v2/plugins/{plugin...}", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status": "active"}`))
	})
	mux.HandleFunc("POST /wp-json/wp/v2/pages/{pageID}", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id": 42}`))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestPostSiteCheck(t *testing.T) {
	srv, mem := newTestServer(100)
	wp := fakeWPServer(t)

	body, _ := json.Marshal(map[string]string{
		"integration_id": "int-1",
		"initiated_by":   "user-1",
		"site_url":       wp.URL,
		"username":       "agency-bot",
		"app_password":   "secret",
	})
	req := httptest.NewRequest("POST", "/websites/site-1/site-check", bytes.NewReader(body))
	req.SetPathValue("id", "site-1")
	w := httptest.NewRecorder()

	srv.postSiteCheck(w, req)

	resp := w.Result()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		ActionID  string `json:"action_id"`
		Diagnosis struct {
			Healthy bool   `json:"healthy"`
			Code    string `json:"code"`
		} `json:"diagnosis"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.True(t, result.Diagnosis.Healthy)
	assert.Equal(t, "ok", result.Diagnosis.Code)

	entry, ok := mem.Get(result.ActionID)
	require.True(t, ok)
	assert.Equal(t, model.StatusCompleted, entry.Status)
	assert.NotNil(t, entry.StartedAt)
	assert.NotNil(t, entry.CompletedAt)
}

func TestPostPluginToggle(t *testing.T) {
	wp := fakeWPServer(t)

	toggleBody := func() []byte {
		body, _ := json.Marshal(map[string]any{
			"integration_id": "int-1",
			"initiated_by":   "user-1",
			"site_url":       wp.URL,
			"username":       "agency-bot",
			"app_password":   "secret",
			"plugin":         "akismet/akismet",
			"active":         true,
		})
		return body
	}

	t.Run("toggles and books the action", func(t *testing.T) {
		srv, mem := newTestServer(100)

		req := httptest.NewRequest("POST", "/websites/site-1/plugins/toggle", bytes.NewReader(toggleBody()))
		req.SetPathValue("id", "site-1")
		w := httptest.NewRecorder()

		srv.postPluginToggle(w, req)

		resp := w.Result()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var result struct {
			ActionID string `json:"action_id"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))

		entry, ok := mem.Get(result.ActionID)
		require.True(t, ok)
		assert.Equal(t, model.StatusCompleted, entry.Status)
		assert.Equal(t, "toggle_plugin", entry.ActionType)
		assert.Equal(t, "plugin", entry.ResourceType)
		assert.Equal(t, "akismet/akismet", entry.ResourceID)
	})

	t.Run("conflicting live entry returns 409", func(t *testing.T) {
		srv, _ := newTestServer(100)
		heldBy := enqueuePending(t, srv, "site-1", "plugin", "akismet/akismet")

		req := httptest.NewRequest("POST", "/websites/site-1/plugins/toggle", bytes.NewReader(toggleBody()))
		req.SetPathValue("id", "site-1")
		w := httptest.NewRecorder()

		srv.postPluginToggle(w, req)

		resp := w.Result()
		require.Equal(t, http.StatusConflict, resp.StatusCode)

		var entry model.ActionEntry
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&entry))
		assert.Equal(t, heldBy, entry.ID)
	})
}

func TestPostPageUpdate(t *testing.T) {
	wp := fakeWPServer(t)

	updateBody := func() []byte {
		body, _ := json.Marshal(map[string]any{
			"integration_id": "int-1",
			"initiated_by":   "user-1",
			"site_url":       wp.URL,
			"username":       "agency-bot",
			"app_password":   "secret",
			"fields":         map[string]string{"title": "New Title"},
			"before_state":   map[string]string{"title": "Old Title"},
		})
		return body
	}

	t.Run("updates and books the action", func(t *testing.T) {
		srv, mem := newTestServer(100)

		req := httptest.NewRequest("POST", "/websites/site-1/pages/42", bytes.NewReader(updateBody()))
		req.SetPathValue("id", "site-1")
		req.SetPathValue("pageID", "42")
		w := httptest.NewRecorder()

		srv.postPageUpdate(w, req)

		resp := w.Result()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var result struct {
			ActionID string `json:"action_id"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))

		entry, ok := mem.Get(result.ActionID)
		require.True(t, ok)
		assert.Equal(t, model.StatusCompleted, entry.Status)
		assert.Equal(t, "update_page", entry.ActionType)
		assert.Equal(t, "page", entry.ResourceType)
		assert.Equal(t, "42", entry.ResourceID)
		assert.JSONEq(t, `{"title": "Old Title"}`, string(entry.BeforeState))
		assert.JSONEq(t, `{"title": "New Title"}`, string(entry.AfterState))
	})

	t.Run("conflicting live entry returns 409", func(t *testing.T) {
		srv, _ := newTestServer(100)
		heldBy := enqueuePending(t, srv, "site-1", "page", "42")

		req := httptest.NewRequest("POST", "/websites/site-1/pages/42", bytes.NewReader(updateBody()))
		req.SetPathValue("id", "site-1")
		req.SetPathValue("pageID", "42")
		w := httptest.NewRecorder()

		srv.postPageUpdate(w, req)

		resp := w.Result()
		require.Equal(t, http.StatusConflict, resp.StatusCode)

		var entry model.ActionEntry
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&entry))
		assert.Equal(t, heldBy, entry.ID)
	})

	t.Run("missing fields", func(t *testing.T) {
		srv, _ := newTestServer(100)

		req := httptest.NewRequest("POST", "/websites/site-1/pages/42", bytes.NewReader([]byte(`{"site_url": "http://x"}`)))
		req.SetPathValue("id", "site-1")
		req.SetPathValue("pageID", "42")
		w := httptest.NewRecorder()

		srv.postPageUpdate(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Result().StatusCode)
	})
}

func TestPostLeadWebhook(t *testing.T) {
	t.Run("normalizes a lead", func(t *testing.T) {
		srv, _ := newTestServer(100)

		payload := []byte(`{"name": "Jane", "email": "jane@example.com"}`)
		req := httptest.NewRequest("POST", "/webhooks/leads?website_id=site-1", bytes.NewReader(payload))
		w := httptest.NewRecorder()

		srv.postLeadWebhook(w, req)

		resp := w.Result()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var lead model.Lead
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&lead))
		assert.Equal(t, "Jane", lead.Name)
		assert.Equal(t, "generic", lead.Source)
	})

	t.Run("rate limited", func(t *testing.T) {
		srv, _ := newTestServer(1)

		payload := []byte(`{"email": "jane@example.com"}`)
		for i, want := range []int{http.StatusOK, http.StatusTooManyRequests} {
			req := httptest.NewRequest("POST", "/webhooks/leads?website_id=site-1", bytes.NewReader(payload))
			w := httptest.NewRecorder()

			srv.postLeadWebhook(w, req)

			assert.Equal(t, want, w.Result().StatusCode, "request %d", i)
		}
	})

	t.Run("invalid payload", func(t *testing.T) {
		srv, _ := newTestServer(100)

		req := httptest.NewRequest("POST", "/webhooks/leads?website_id=site-1", bytes.NewReader([]byte(`{oops}`)))
		w := httptest.NewRecorder()

		srv.postLeadWebhook(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Result().StatusCode)
	})

	t.Run("no lead fields", func(t *testing.T) {
		srv, _ := newTestServer(100)

		req := httptest.NewRequest("POST", "/webhooks/leads?website_id=site-1", bytes.NewReader([]byte(`{"widget": "footer"}`)))
		w := httptest.NewRecorder()

		srv.postLeadWebhook(w, req)

		assert.Equal(t, http.StatusUnprocessableEntity, w.Result().StatusCode)
	})
}
