// Package api exposes the action queue, conflict checks, lead webhook,
// and WordPress connector operations over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"

	"wp-actionqueue/model"
	"wp-actionqueue/ratelimit"
	"wp-actionqueue/tracker"
	"wp-actionqueue/webhook"
	"wp-actionqueue/wpconnect"
)

const maxBodyBytes = 1 << 20

type Server struct {
	tracker *tracker.Tracker
	limiter *ratelimit.Limiter
	logger  *slog.Logger
}

func NewServer(addr string, tr *tracker.Tracker, limiter *ratelimit.Limiter, logger *slog.Logger) *http.Server {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()

	srv := &Server{tracker: tr, limiter: limiter, logger: logger}
	mux.HandleFunc("POST /actions", srv.postAction)
	mux.HandleFunc("POST /actions/{id}/complete", srv.completeAction)
	mux.HandleFunc("POST /actions/{id}/fail", srv.failAction)
	mux.HandleFunc("GET /websites/{id}/conflicts", srv.getConflict)
	mux.HandleFunc("POST /websites/{id}/conflicts/batch", srv.postBatchConflicts)
	mux.HandleFunc("GET /websites/{id}/actions/pending", srv.getPendingCount)
	mux.HandleFunc("POST /websites/{id}/site-check", srv.postSiteCheck)
	mux.HandleFunc("POST /websites/{id}/plugins/toggle", srv.postPluginToggle)
	mux.HandleFunc("POST /websites/{id}/pages/{pageID}", srv.postPageUpdate)
	mux.HandleFunc("POST /webhooks/leads", srv.postLeadWebhook)

	return &http.Server{
		Addr:    addr,
		Handler: mux,
	}
}

func (s *Server) postAction(w http.ResponseWriter, r *http.Request) {
	var input model.ActionInput
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&input); err != nil {
		http.Error(w, "[API] Invalid action input: "+err.Error(), http.StatusBadRequest)
		return
	}

	result := s.tracker.Enqueue(r.Context(), input)
	status := http.StatusCreated
	if !result.Success {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, result)
}

func (s *Server) completeAction(w http.ResponseWriter, r *http.Request) {
	var body struct {
		AfterState json.RawMessage `json:"after_state"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "[API] Invalid body: "+err.Error(), http.StatusBadRequest)
		return
	}

	s.tracker.Complete(r.Context(), r.PathValue("id"), body.AfterState)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) failAction(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ErrorMessage string `json:"error_message"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		http.Error(w, "[API] Invalid body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if body.ErrorMessage == "" {
		http.Error(w, "[API] error_message is required", http.StatusBadRequest)
		return
	}

	s.tracker.Fail(r.Context(), r.PathValue("id"), body.ErrorMessage)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getConflict(w http.ResponseWriter, r *http.Request) {
	websiteID := r.PathValue("id")
	resourceType := r.URL.Query().Get("resource_type")
	resourceID := r.URL.Query().Get("resource_id")
	if resourceType == "" || resourceID == "" {
		http.Error(w, "[API] resource_type and resource_id are required", http.StatusBadRequest)
		return
	}

	entry := s.tracker.CheckResourceConflict(r.Context(), websiteID, resourceType, resourceID)
	if entry == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) postBatchConflicts(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Resources []model.Resource `json:"resources"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		http.Error(w, "[API] Invalid body: "+err.Error(), http.StatusBadRequest)
		return
	}

	conflicts := s.tracker.CheckBatchConflicts(r.Context(), r.PathValue("id"), body.Resources)
	writeJSON(w, http.StatusOK, conflicts)
}

func (s *Server) getPendingCount(w http.ResponseWriter, r *http.Request) {
	websiteID := r.PathValue("id")
	writeJSON(w, http.StatusOK, map[string]any{
		"website_id": websiteID,
		"count":      s.tracker.PendingActionCount(r.Context(), websiteID),
	})
}

type connectorRequest struct {
	IntegrationID string `json:"integration_id"`
	InitiatedBy   string `json:"initiated_by"`
	SiteURL       string `json:"site_url"`
	Username      string `json:"username"`
	AppPassword   string `json:"app_password"`
	Plugin        string `json:"plugin,omitempty"`
	Active        bool   `json:"active,omitempty"`
}

func (s *Server) postSiteCheck(w http.ResponseWriter, r *http.Request) {
	websiteID := r.PathValue("id")
	var req connectorRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		http.Error(w, "[API] Invalid body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.SiteURL == "" {
		http.Error(w, "[API] site_url is required", http.StatusBadRequest)
		return
	}

	payload, _ := json.Marshal(map[string]string{"site_url": req.SiteURL})
	result := s.tracker.Enqueue(r.Context(), model.ActionInput{
		WebsiteID:     websiteID,
		IntegrationID: req.IntegrationID,
		InitiatedBy:   req.InitiatedBy,
		ActionType:    "site_check",
		ActionPayload: payload,
		Status:        model.StatusProcessing,
	})

	client := wpconnect.New(req.SiteURL, req.Username, req.AppPassword)
	siteStatus, err := client.SiteCheck(r.Context())
	if err != nil {
		s.tracker.Fail(r.Context(), result.ActionID, err.Error())
		http.Error(w, "[API] Site check failed: "+err.Error(), http.StatusBadGateway)
		return
	}
	diagnosis := client.DiagnoseAuth(r.Context())

	afterState, _ := json.Marshal(map[string]any{"status": siteStatus, "diagnosis": diagnosis})
	if diagnosis.Healthy {
		s.tracker.Complete(r.Context(), result.ActionID, afterState)
	} else {
		s.tracker.Fail(r.Context(), result.ActionID, diagnosis.Detail)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"action_id": result.ActionID,
		"status":    siteStatus,
		"diagnosis": diagnosis,
	})
}

func (s *Server) postPluginToggle(w http.ResponseWriter, r *http.Request) {
	websiteID := r.PathValue("id")
	var req connectorRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		http.Error(w, "[API] Invalid body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.SiteURL == "" || req.Plugin == "" {
		http.Error(w, "[API] site_url and plugin are required", http.StatusBadRequest)
		return
	}

	// Advisory check: surface "someone else is editing this" before
	// touching the plugin. A race between two togglers is accepted.
	if conflict := s.tracker.CheckResourceConflict(r.Context(), websiteID, "plugin", req.Plugin); conflict != nil {
		writeJSON(w, http.StatusConflict, conflict)
		return
	}

	payload, _ := json.Marshal(map[string]any{"plugin": req.Plugin, "active": req.Active})
	result := s.tracker.Enqueue(r.Context(), model.ActionInput{
		WebsiteID:     websiteID,
		IntegrationID: req.IntegrationID,
		InitiatedBy:   req.InitiatedBy,
		ActionType:    "toggle_plugin",
		ActionPayload: payload,
		ResourceType:  "plugin",
		ResourceID:    req.Plugin,
		Status:        model.StatusProcessing,
	})

	client := wpconnect.New(req.SiteURL, req.Username, req.AppPassword)
	if err := client.TogglePlugin(r.Context(), req.Plugin, req.Active); err != nil {
		s.tracker.Fail(r.Context(), result.ActionID, err.Error())
		http.Error(w, "[API] Plugin toggle failed: "+err.Error(), http.StatusBadGateway)
		return
	}

	afterState, _ := json.Marshal(map[string]any{"plugin": req.Plugin, "active": req.Active})
	s.tracker.Complete(r.Context(), result.ActionID, afterState)

	writeJSON(w, http.StatusOK, map[string]any{
		"action_id": result.ActionID,
		"plugin":    req.Plugin,
		"active":    req.Active,
	})
}

type pageUpdateRequest struct {
	connectorRequest
	Fields      map[string]any  `json:"fields"`
	BeforeState json.RawMessage `json:"before_state,omitempty"`
}

func (s *Server) postPageUpdate(w http.ResponseWriter, r *http.Request) {
	websiteID := r.PathValue("id")
	pageID := r.PathValue("pageID")
	var req pageUpdateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		http.Error(w, "[API] Invalid body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.SiteURL == "" || len(req.Fields) == 0 {
		http.Error(w, "[API] site_url and fields are required", http.StatusBadRequest)
		return
	}

	if conflict := s.tracker.CheckResourceConflict(r.Context(), websiteID, "page", pageID); conflict != nil {
		writeJSON(w, http.StatusConflict, conflict)
		return
	}

	payload, _ := json.Marshal(req.Fields)
	result := s.tracker.Enqueue(r.Context(), model.ActionInput{
		WebsiteID:     websiteID,
		IntegrationID: req.IntegrationID,
		InitiatedBy:   req.InitiatedBy,
		ActionType:    "update_page",
		ActionPayload: payload,
		BeforeState:   req.BeforeState,
		ResourceType:  "page",
		ResourceID:    pageID,
		Status:        model.StatusProcessing,
	})

	client := wpconnect.New(req.SiteURL, req.Username, req.AppPassword)
	if err := client.UpdatePage(r.Context(), pageID, req.Fields); err != nil {
		s.tracker.Fail(r.Context(), result.ActionID, err.Error())
		http.Error(w, "[API] Page update failed: "+err.Error(), http.StatusBadGateway)
		return
	}

	s.tracker.Complete(r.Context(), result.ActionID, payload)

	writeJSON(w, http.StatusOK, map[string]any{
		"action_id": result.ActionID,
		"page_id":   pageID,
	})
}

func (s *Server) postLeadWebhook(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("website_id")
	if key == "" {
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			key = host
		} else {
			key = r.RemoteAddr
		}
	}
	if !s.limiter.Allow(r.Context(), key) {
		http.Error(w, "[API] Too many requests", http.StatusTooManyRequests)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "[API] Failed to read body", http.StatusBadRequest)
		return
	}

	lead, err := webhook.NormalizeLead(body)
	if err != nil {
		if errors.Is(err, webhook.ErrNoLeadFields) {
			http.Error(w, "[API] "+err.Error(), http.StatusUnprocessableEntity)
			return
		}
		http.Error(w, "[API] "+err.Error(), http.StatusBadRequest)
		return
	}

	s.logger.Info("lead captured",
		"source", lead.Source,
		"email", lead.Email,
		"form_id", lead.FormID)
	writeJSON(w, http.StatusOK, lead)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "[API] Encoding error", http.StatusInternalServerError)
	}
}
