package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jamesruggles/footprint/internal/config"
	"github.com/jamesruggles/footprint/internal/database"
)

func setupTestServer(t *testing.T) (*Server, *httptest.Server, *database.DB) {
	t.Helper()
	db, err := database.New(":memory:")
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	conf, err := config.Load("nonexistent.yaml")
	if err != nil {
		t.Fatalf("loading defaults: %v", err)
	}

	s := New(conf, db)
	ts := httptest.NewServer(recoveryMiddleware(securityHeaders(loggingMiddleware(s.mux))))
	t.Cleanup(ts.Close)
	return s, ts, db
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestScanValidationOverHTTP(t *testing.T) {
	_, ts, _ := setupTestServer(t)

	resp := postJSON(t, ts.URL+"/api/scans", map[string]any{
		"type": "email", "value": "not-an-email", "workspaceId": "ws-1",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	var body map[string]string
	decodeJSON(t, resp, &body)
	if body["error"] == "" {
		t.Error("error body missing")
	}
}

func TestScanNotFound(t *testing.T) {
	_, ts, _ := setupTestServer(t)

	resp, err := http.Get(ts.URL + "/api/scans/nope")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestScanSubresources(t *testing.T) {
	_, ts, db := setupTestServer(t)
	ctx := context.Background()

	scan := &database.Scan{
		WorkspaceID: "ws-1", TargetType: "email", TargetValue: "alice@example.com",
		Status: database.ScanComplete, Providers: []string{"p"},
	}
	if err := db.CreateScan(ctx, scan); err != nil {
		t.Fatalf("create scan: %v", err)
	}
	err := db.CreateFindings(ctx, []database.Finding{{
		ScanID: scan.ID, Provider: "p", Kind: "breach", Severity: "high", Confidence: 0.9,
		Evidence: []database.EvidencePair{{Key: "breach", Value: "x"}}, Tags: []string{},
	}})
	if err != nil {
		t.Fatalf("create finding: %v", err)
	}

	var findings []database.Finding
	resp, err := http.Get(fmt.Sprintf("%s/api/scans/%s/findings", ts.URL, scan.ID))
	if err != nil {
		t.Fatalf("GET findings: %v", err)
	}
	decodeJSON(t, resp, &findings)
	if len(findings) != 1 {
		t.Errorf("findings = %d, want 1", len(findings))
	}

	var score struct {
		Score      int    `json:"score"`
		Level      string `json:"level"`
		Categories []any  `json:"categories"`
	}
	resp, err = http.Get(fmt.Sprintf("%s/api/scans/%s/score", ts.URL, scan.ID))
	if err != nil {
		t.Fatalf("GET score: %v", err)
	}
	decodeJSON(t, resp, &score)
	if len(score.Categories) != 5 {
		t.Errorf("categories = %d, want 5", len(score.Categories))
	}
	if score.Level == "" {
		t.Error("level missing")
	}

	resp, err = http.Get(fmt.Sprintf("%s/api/scans/%s/report", ts.URL, scan.ID))
	if err != nil {
		t.Fatalf("GET report: %v", err)
	}
	resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/markdown; charset=utf-8" {
		t.Errorf("report content type = %q", ct)
	}
}

func TestWebhookEndpointAPI(t *testing.T) {
	_, ts, _ := setupTestServer(t)

	// Missing fields rejected.
	resp := postJSON(t, ts.URL+"/api/webhooks", map[string]any{"url": "http://example.com/hook"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("incomplete create status = %d, want 400", resp.StatusCode)
	}

	resp = postJSON(t, ts.URL+"/api/webhooks", map[string]any{
		"url":            "http://example.com/hook",
		"signing_secret": "s3cret",
		"events":         []string{"scan.completed"},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, want 201", resp.StatusCode)
	}
	var created database.WebhookEndpoint
	decodeJSON(t, resp, &created)
	if created.ID == "" || !created.IsActive {
		t.Errorf("created endpoint = %+v", created)
	}

	var listed []database.WebhookEndpoint
	resp, err := http.Get(ts.URL + "/api/webhooks")
	if err != nil {
		t.Fatalf("GET webhooks: %v", err)
	}
	decodeJSON(t, resp, &listed)
	if len(listed) != 1 {
		t.Errorf("endpoints = %d, want 1", len(listed))
	}

	// The signing secret never leaves the server.
	resp, err = http.Get(ts.URL + "/api/webhooks/" + created.ID)
	if err != nil {
		t.Fatalf("GET webhook: %v", err)
	}
	var raw map[string]any
	decodeJSON(t, resp, &raw)
	if _, leaked := raw["signing_secret"]; leaked {
		t.Error("signing_secret exposed in API response")
	}
}

func TestWatchlistAPI(t *testing.T) {
	_, ts, _ := setupTestServer(t)

	resp := postJSON(t, ts.URL+"/api/entities", map[string]any{
		"entity_type":  "email",
		"entity_value": "alice@example.com",
		"metadata":     map[string]string{"avatar_hash": "deadbeef"},
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create entity status = %d, want 201", resp.StatusCode)
	}

	resp = postJSON(t, ts.URL+"/api/watchlists", map[string]any{
		"name":      "impersonators",
		"is_active": true,
		"rules": []map[string]string{
			{"type": "avatar_hash", "operator": "equals", "value": "deadbeef"},
		},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create watchlist status = %d, want 201", resp.StatusCode)
	}
	var wl database.Watchlist
	decodeJSON(t, resp, &wl)

	resp = postJSON(t, ts.URL+"/api/watchlists/"+wl.ID+"/expand", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expand status = %d, want 200", resp.StatusCode)
	}
	var result map[string]int64
	decodeJSON(t, resp, &result)
	if result["added"] != 1 {
		t.Errorf("added = %d, want 1", result["added"])
	}
}

func TestProvidersAndStats(t *testing.T) {
	_, ts, _ := setupTestServer(t)

	var statuses []struct {
		Name    string   `json:"name"`
		Targets []string `json:"targets"`
	}
	resp, err := http.Get(ts.URL + "/api/providers")
	if err != nil {
		t.Fatalf("GET providers: %v", err)
	}
	decodeJSON(t, resp, &statuses)
	if len(statuses) == 0 {
		t.Fatal("no providers registered")
	}
	names := make(map[string]bool)
	for _, st := range statuses {
		names[st.Name] = true
		if len(st.Targets) == 0 {
			t.Errorf("provider %s supports no targets", st.Name)
		}
	}
	for _, want := range []string{"social_profiles", "breach_directory", "data_broker"} {
		if !names[want] {
			t.Errorf("provider %s missing from status list", want)
		}
	}

	var stats database.DashboardStats
	resp, err = http.Get(ts.URL + "/api/stats")
	if err != nil {
		t.Fatalf("GET stats: %v", err)
	}
	decodeJSON(t, resp, &stats)
	if stats.ScanCount != 0 {
		t.Errorf("scan count = %d, want 0", stats.ScanCount)
	}
}

func TestSecurityHeaders(t *testing.T) {
	_, ts, _ := setupTestServer(t)

	resp, err := http.Get(ts.URL + "/api/stats")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.Header.Get("X-Content-Type-Options") != "nosniff" {
		t.Error("nosniff header missing")
	}
	if resp.Header.Get("X-Frame-Options") != "DENY" {
		t.Error("frame options header missing")
	}
}

func TestRecentScans(t *testing.T) {
	_, ts, db := setupTestServer(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		scan := &database.Scan{
			WorkspaceID: "ws-1", TargetType: "username", TargetValue: fmt.Sprintf("user%d", i),
			CreatedAt: time.Now().UTC().Add(time.Duration(i) * time.Second),
		}
		if err := db.CreateScan(ctx, scan); err != nil {
			t.Fatalf("create scan: %v", err)
		}
	}

	var scans []database.Scan
	resp, err := http.Get(ts.URL + "/api/scans/recent")
	if err != nil {
		t.Fatalf("GET recent: %v", err)
	}
	decodeJSON(t, resp, &scans)
	if len(scans) != 3 {
		t.Fatalf("recent = %d, want 3", len(scans))
	}
	if scans[0].TargetValue != "user2" {
		t.Errorf("recent[0] = %s, want newest first", scans[0].TargetValue)
	}
}
