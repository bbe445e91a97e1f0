package events

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ashureev/remodel-intake/internal/intake"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

func TestRecentKeepsLastEvents(t *testing.T) {
	h := NewHub(3, nil)
	for _, typ := range []string{"a", "b", "c", "d"} {
		h.Publish(intake.Event{Type: typ})
	}

	recent := h.Recent()
	if len(recent) != 3 {
		t.Fatalf("Expected 3 events, got %d", len(recent))
	}
	got := []string{recent[0].Type, recent[1].Type, recent[2].Type}
	if strings.Join(got, ",") != "b,c,d" {
		t.Errorf("Expected b,c,d oldest first, got %v", got)
	}
}

func TestPublishAfterCloseIsIgnored(t *testing.T) {
	h := NewHub(2, nil)
	h.Close()
	h.Publish(intake.Event{Type: "late"})

	if len(h.Recent()) != 0 {
		t.Error("Expected no events after Close")
	}
}

func TestServeHTTPStreamsEvents(t *testing.T) {
	h := NewHub(10, nil)
	h.Publish(intake.Event{Type: intake.EventSessionStarted, UserID: "42"})

	srv := httptest.NewServer(h)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer func() { _ = conn.CloseNow() }()

	var ev intake.Event
	if err := wsjson.Read(ctx, conn, &ev); err != nil {
		t.Fatalf("Read replayed event: %v", err)
	}
	if ev.Type != intake.EventSessionStarted || ev.UserID != "42" {
		t.Errorf("Expected replayed session_started, got %+v", ev)
	}

	deadline := time.Now().Add(2 * time.Second)
	for h.Subscribers() != 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	h.Publish(intake.Event{Type: intake.EventSubmission, SubmissionID: "s1"})

	if err := wsjson.Read(ctx, conn, &ev); err != nil {
		t.Fatalf("Read live event: %v", err)
	}
	if ev.Type != intake.EventSubmission || ev.SubmissionID != "s1" {
		t.Errorf("Expected live submission event, got %+v", ev)
	}

	_ = conn.Close(websocket.StatusNormalClosure, "")
	deadline = time.Now().Add(2 * time.Second)
	for h.Subscribers() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if n := h.Subscribers(); n != 0 {
		t.Errorf("Expected subscriber to be removed, got %d", n)
	}
}

func TestOriginPatternsUseHosts(t *testing.T) {
	got := originPatterns([]string{"https://ops.example.com", "*", "http://localhost:5173", "::bad"})
	want := "ops.example.com,*,localhost:5173"
	if strings.Join(got, ",") != want {
		t.Errorf("Expected %s, got %v", want, got)
	}
}

func TestServeHTTPChecksOrigin(t *testing.T) {
	h := NewHub(10, []string{"https://ops.example.com"})
	defer h.Close()

	srv := httptest.NewServer(h)
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{"Origin": []string{"https://evil.example.com"}},
	})
	if err == nil {
		t.Fatal("Expected dial from a foreign origin to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("Expected 403 for a foreign origin, got %v", resp)
	}

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{"Origin": []string{"https://ops.example.com"}},
	})
	if err != nil {
		t.Fatalf("Expected dial from an allowed origin to succeed: %v", err)
	}
	_ = conn.CloseNow()
}
