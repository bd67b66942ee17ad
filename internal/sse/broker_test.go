package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients")
	}
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}
	b.Unsubscribe(ch)
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after unsub")
	}
}

func TestNotifyDelivery(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.Notify("design.saved", map[string]string{"id": "d1"})

	select {
	case msg := <-ch:
		s := string(msg)
		if !strings.Contains(s, "event: design.saved") {
			t.Errorf("missing event type in %q", s)
		}
		if !strings.Contains(s, `"id":"d1"`) {
			t.Errorf("missing data in %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestSessionChangedIsCoalesced(t *testing.T) {
	b := NewBroker(200 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	// First change goes out at once, the burst behind it collapses into the
	// last one, delivered when the window closes.
	b.Notify(SessionChanged, map[string]int{"revision": 1})
	b.Notify(SessionChanged, map[string]int{"revision": 2})
	b.Notify(SessionChanged, map[string]int{"revision": 3})
	b.Notify("error", map[string]string{"message": "boom"})

	var got []string
	deadline := time.After(time.Second)
	for len(got) < 3 {
		select {
		case msg := <-ch:
			got = append(got, string(msg))
		case <-deadline:
			t.Fatalf("got %d messages, want 3: %q", len(got), got)
		}
	}

	if !strings.Contains(got[0], `"revision":1`) {
		t.Errorf("first message = %q, want revision 1", got[0])
	}
	if !strings.Contains(got[1], "event: error") {
		t.Errorf("second message = %q, want the unthrottled error", got[1])
	}
	if !strings.Contains(got[2], `"revision":3`) {
		t.Errorf("trailing message = %q, want revision 3", got[2])
	}

	select {
	case msg := <-ch:
		t.Errorf("unexpected extra message %q", msg)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestSSEHandler(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()

	// Start handler in background.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req = req.WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	// Give handler time to subscribe.
	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client from handler")
	}

	b.Publish(Event{Type: "file.changed", Data: map[string]string{"path": "spring.json"}})
	time.Sleep(50 * time.Millisecond)

	// Cancel context to disconnect.
	cancel()
	<-done

	body := w.Body.String()
	if !strings.Contains(body, "event: file.changed") {
		t.Errorf("handler output missing event: %q", body)
	}

	// Client should be cleaned up.
	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 0 {
		t.Errorf("client not cleaned up after disconnect")
	}
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	// Fill buffer (capacity 64) and then one more should not block.
	for i := 0; i < 70; i++ {
		b.Publish(Event{Type: "test", Data: map[string]string{"i": "x"}})
	}
	// If we reach here without deadlock, the test passes.
}

func TestCloseClosesSubscribersAndStopsOperations(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}

	b.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected subscriber channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}

	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after close")
	}

	// Should be safe no-op after close.
	b.Notify(SessionChanged, map[string]int{"revision": 1})
}
