package server

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/jamesruggles/footprint/internal/database"
)

func TestWebSocketStreamsScanEvents(t *testing.T) {
	s, ts, _ := setupTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"scan_id":"scan-1"}`)); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	// Wait for the subscription to register before broadcasting.
	deadline := time.Now().Add(2 * time.Second)
	for {
		s.hub.mu.RLock()
		subscribed := len(s.hub.clients["scan-1"]) > 0
		s.hub.mu.RUnlock()
		if subscribed {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("subscription never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	want := database.ScanEvent{
		ScanID: "scan-1", Provider: "breach_directory",
		Stage: database.StageCompleted, Status: "ok",
	}
	s.hub.Broadcast("scan-1", want)

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var got database.ScanEvent
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.ScanID != want.ScanID || got.Provider != want.Provider || got.Stage != want.Stage {
		t.Errorf("event = %+v, want %+v", got, want)
	}
}

func TestWebSocketRejectsBadSubscribe(t *testing.T) {
	_, ts, _ := setupTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"scan_id":""}`)); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	// The server closes the connection; the next read fails.
	if _, _, err := conn.Read(ctx); err == nil {
		t.Error("read succeeded after invalid subscribe; want closed connection")
	}
}
