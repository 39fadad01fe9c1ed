package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/jamesruggles/footprint/internal/database"
	"github.com/jamesruggles/footprint/internal/scanner"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// --- Scan API ---

func (s *Server) handleAPIScans(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req scanner.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	ack, err := s.orchestrator.StartScan(r.Context(), req)
	if err != nil {
		var ve *scanner.ValidationError
		var qe *scanner.QuotaExceededError
		switch {
		case errors.As(err, &ve):
			writeError(w, http.StatusBadRequest, ve.Error())
		case errors.As(err, &qe):
			writeError(w, http.StatusTooManyRequests, qe.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusAccepted, ack)
}

func (s *Server) handleAPIScan(w http.ResponseWriter, r *http.Request) {
	idStr := strings.TrimPrefix(r.URL.Path, "/api/scans/")
	if idStr == "" {
		writeError(w, http.StatusBadRequest, "missing scan id")
		return
	}

	if idStr == "recent" {
		scans, err := s.db.ListRecentScans(r.Context(), 10)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if scans == nil {
			scans = []database.Scan{}
		}
		writeJSON(w, http.StatusOK, scans)
		return
	}

	parts := strings.SplitN(idStr, "/", 2)
	id := parts[0]

	if len(parts) > 1 {
		switch parts[1] {
		case "events":
			s.handleAPIScanEvents(w, r, id)
		case "findings":
			s.handleAPIScanFindings(w, r, id)
		case "score":
			s.handleAPIScanScore(w, r, id)
		case "audit":
			s.handleAPIScanAudit(w, r, id)
		case "report":
			s.handleAPIScanReport(w, r, id)
		default:
			http.NotFound(w, r)
		}
		return
	}

	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	scan, err := s.db.GetScan(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if scan == nil {
		writeError(w, http.StatusNotFound, "scan not found")
		return
	}
	writeJSON(w, http.StatusOK, scan)
}

func (s *Server) handleAPIScanEvents(w http.ResponseWriter, r *http.Request, scanID string) {
	events, err := s.db.ListScanEvents(r.Context(), scanID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if events == nil {
		events = []database.ScanEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleAPIScanFindings(w http.ResponseWriter, r *http.Request, scanID string) {
	findings, err := s.db.ListFindingsByScan(r.Context(), scanID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if findings == nil {
		findings = []database.Finding{}
	}
	writeJSON(w, http.StatusOK, findings)
}

// handleAPIScanScore computes the exposure score from the scan's current
// finding set. Recomputed per request: the finding set is immutable once
// the scan is terminal, so results are stable.
func (s *Server) handleAPIScanScore(w http.ResponseWriter, r *http.Request, scanID string) {
	scan, err := s.db.GetScan(r.Context(), scanID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if scan == nil {
		writeError(w, http.StatusNotFound, "scan not found")
		return
	}
	findings, err := s.db.ListFindingsByScan(r.Context(), scanID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, scanner.CalculateExposureScore(findings))
}

func (s *Server) handleAPIScanAudit(w http.ResponseWriter, r *http.Request, scanID string) {
	records, err := s.db.ListAuditByScan(r.Context(), scanID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if records == nil {
		records = []database.AuditRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleAPIScanReport(w http.ResponseWriter, r *http.Request, scanID string) {
	content, err := s.reports.GenerateMarkdown(r.Context(), scanID)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Write([]byte(content))
}

// --- Provider API ---

func (s *Server) handleAPIProviders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.StatusAll())
}

// --- Webhook API ---

func (s *Server) handleAPIWebhooks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		endpoints, err := s.db.ListWebhookEndpoints(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if endpoints == nil {
			endpoints = []database.WebhookEndpoint{}
		}
		writeJSON(w, http.StatusOK, endpoints)

	case http.MethodPost:
		var req struct {
			URL           string   `json:"url"`
			SigningSecret string   `json:"signing_secret"`
			Events        []string `json:"events"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
		if req.URL == "" || req.SigningSecret == "" || len(req.Events) == 0 {
			writeError(w, http.StatusBadRequest, "url, signing_secret, and events are required")
			return
		}
		ep := &database.WebhookEndpoint{
			URL:               req.URL,
			SigningSecret:     req.SigningSecret,
			Events:            req.Events,
			IsActive:          true,
			MaxAttempts:       s.cfg.Webhooks.MaxAttempts,
			BackoffMultiplier: s.cfg.Webhooks.BackoffMultiplier,
		}
		if err := s.db.CreateWebhookEndpoint(r.Context(), ep); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, ep)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleAPIWebhook(w http.ResponseWriter, r *http.Request) {
	idStr := strings.TrimPrefix(r.URL.Path, "/api/webhooks/")
	if idStr == "" {
		writeError(w, http.StatusBadRequest, "missing webhook id")
		return
	}

	parts := strings.SplitN(idStr, "/", 2)
	id := parts[0]

	if len(parts) > 1 && parts[1] == "deliveries" {
		deliveries, err := s.db.ListDeliveriesByEndpoint(r.Context(), id, 50)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if deliveries == nil {
			deliveries = []database.WebhookDelivery{}
		}
		writeJSON(w, http.StatusOK, deliveries)
		return
	}

	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ep, err := s.db.GetWebhookEndpoint(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if ep == nil {
		writeError(w, http.StatusNotFound, "webhook endpoint not found")
		return
	}
	writeJSON(w, http.StatusOK, ep)
}

// handleAPIDelivery handles /api/deliveries/{id}/retry.
func (s *Server) handleAPIDelivery(w http.ResponseWriter, r *http.Request) {
	idStr := strings.TrimPrefix(r.URL.Path, "/api/deliveries/")
	parts := strings.SplitN(idStr, "/", 2)
	if len(parts) != 2 || parts[1] != "retry" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := s.webhooks.RetryNow(r.Context(), parts[0]); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "retried"})
}

// --- Watchlist API ---

func (s *Server) handleAPIWatchlists(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		lists, err := s.db.ListWatchlists(r.Context(), false)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if lists == nil {
			lists = []database.Watchlist{}
		}
		writeJSON(w, http.StatusOK, lists)

	case http.MethodPost:
		var wl database.Watchlist
		if err := json.NewDecoder(r.Body).Decode(&wl); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
		if wl.Name == "" {
			writeError(w, http.StatusBadRequest, "name is required")
			return
		}
		if err := s.db.CreateWatchlist(r.Context(), &wl); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, wl)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleAPIWatchlist(w http.ResponseWriter, r *http.Request) {
	idStr := strings.TrimPrefix(r.URL.Path, "/api/watchlists/")
	if idStr == "" {
		writeError(w, http.StatusBadRequest, "missing watchlist id")
		return
	}

	if idStr == "expand" {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		added, err := s.expander.ExpandAll(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]int64{"added": added})
		return
	}

	parts := strings.SplitN(idStr, "/", 2)
	id := parts[0]

	if len(parts) > 1 && parts[1] == "expand" {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		added, err := s.expander.Expand(r.Context(), id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]int64{"added": added})
		return
	}

	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	wl, err := s.db.GetWatchlist(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if wl == nil {
		writeError(w, http.StatusNotFound, "watchlist not found")
		return
	}
	writeJSON(w, http.StatusOK, wl)
}

func (s *Server) handleAPIEntities(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		entities, err := s.db.ListEntityNodes(r.Context(), 100)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if entities == nil {
			entities = []database.EntityNode{}
		}
		writeJSON(w, http.StatusOK, entities)

	case http.MethodPost:
		var e database.EntityNode
		if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
		if e.EntityType == "" || e.EntityValue == "" {
			writeError(w, http.StatusBadRequest, "entity_type and entity_value are required")
			return
		}
		if err := s.db.CreateEntityNode(r.Context(), &e); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, e)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// --- Stats API ---

func (s *Server) handleAPIStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.db.GetStats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
