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

func TestPublishDelivery(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.Publish(Event{Type: "session.updated", Data: map[string]string{"view": "documents"}})

	select {
	case msg := <-ch:
		s := string(msg)
		if !strings.Contains(s, "event: session.updated") {
			t.Errorf("missing event type in %q", s)
		}
		if !strings.Contains(s, `"view":"documents"`) {
			t.Errorf("missing data in %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestPublishDocumentEvent_CollectionThrottle(t *testing.T) {
	b := NewBroker(500 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	// First event should trigger collection.updated.
	b.PublishDocumentEvent("created", []string{"d1"})
	// Second event immediately should NOT trigger another collection.updated.
	b.PublishDocumentEvent("deleted", []string{"d1"})

	var collectionEvents, docEvents int
	deadline := time.After(time.Second)
	for docEvents < 2 {
		select {
		case msg := <-ch:
			s := string(msg)
			if strings.Contains(s, "event: collection.updated") {
				collectionEvents++
			}
			if strings.Contains(s, "event: document.created") || strings.Contains(s, "event: document.deleted") {
				docEvents++
			}
		case <-deadline:
			t.Fatalf("timeout; got %d doc events, %d collection events", docEvents, collectionEvents)
		}
	}

	// Drain anything still pending briefly.
	drain := time.After(100 * time.Millisecond)
	for {
		select {
		case msg := <-ch:
			if strings.Contains(string(msg), "event: collection.updated") {
				collectionEvents++
			}
		case <-drain:
			if collectionEvents != 1 {
				t.Errorf("collection.updated events = %d, want 1", collectionEvents)
			}
			return
		}
	}
}

func TestDocumentEventCarriesIDs(t *testing.T) {
	b := NewBroker(time.Minute)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishDocumentEvent("deleted", []string{"d1", "d2"})

	select {
	case msg := <-ch:
		s := string(msg)
		if !strings.Contains(s, "event: document.deleted") {
			t.Errorf("unexpected event: %q", s)
		}
		if !strings.Contains(s, `"ids":["d1","d2"]`) {
			t.Errorf("missing ids in %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestServeHTTPStreamsEvents(t *testing.T) {
	b := NewBroker(time.Minute)
	defer b.Close()

	srv := httptest.NewServer(http.HandlerFunc(b.ServeHTTP))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if got := resp.Header.Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("content type = %q", got)
	}

	// Wait for the subscription to register before publishing.
	for i := 0; i < 100 && b.ClientCount() == 0; i++ {
		time.Sleep(10 * time.Millisecond)
	}
	b.PublishDocumentEvent("created", []string{"d1"})

	buf := make([]byte, 1024)
	n, err := resp.Body.Read(buf)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(buf[:n]), "document.created") {
		t.Errorf("stream = %q", string(buf[:n]))
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	b := NewBroker(time.Minute)
	ch := b.Subscribe()
	b.Close()
	b.Close()

	if _, ok := <-ch; ok {
		t.Error("expected closed client channel")
	}
	if b.ClientCount() != 0 {
		t.Error("expected 0 clients after close")
	}
}
