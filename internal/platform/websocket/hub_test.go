package websocket

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/clinichub/clinichub/internal/platform/pubsub"
)

func newTestClient(topics ...string) *Client {
	return &Client{
		ID:     "test-client",
		Topics: topics,
		Send:   make(chan []byte, 16),
	}
}

func TestRegisterAndPublish(t *testing.T) {
	h := NewHub(zerolog.Nop())
	client := newTestClient("batch-1")
	h.Register(client)

	h.Publish(pubsub.Event{Topic: "batch-1", Status: "submitting"})

	select {
	case data := <-client.Send:
		var evt pubsub.Event
		if err := json.Unmarshal(data, &evt); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if evt.Status != "submitting" {
			t.Errorf("expected status submitting, got %q", evt.Status)
		}
	default:
		t.Fatal("expected event delivered to subscribed client")
	}
}

func TestPublish_UnrelatedTopic(t *testing.T) {
	h := NewHub(zerolog.Nop())
	client := newTestClient("batch-1")
	h.Register(client)

	h.Publish(pubsub.Event{Topic: "batch-2", Status: "failed"})

	select {
	case <-client.Send:
		t.Fatal("client should not receive events for other batches")
	default:
	}
}

func TestUnregister(t *testing.T) {
	h := NewHub(zerolog.Nop())
	client := newTestClient("batch-1")
	h.Register(client)

	if h.ClientCount() != 1 {
		t.Fatalf("expected 1 client, got %d", h.ClientCount())
	}

	h.Unregister(client)
	if h.ClientCount() != 0 {
		t.Errorf("expected 0 clients, got %d", h.ClientCount())
	}
	if h.TopicCount("batch-1") != 0 {
		t.Errorf("expected topic cleared, got %d", h.TopicCount("batch-1"))
	}

	// Double unregister must not panic.
	h.Unregister(client)
}

func TestProcessMessage_SubscribeUnsubscribe(t *testing.T) {
	h := NewHub(zerolog.Nop())
	client := newTestClient()
	h.Register(client)

	h.ProcessMessage(client, ClientMessage{Action: "subscribe", BatchIDs: []string{"batch-1", "batch-2"}})
	if h.TopicCount("batch-1") != 1 || h.TopicCount("batch-2") != 1 {
		t.Error("expected client subscribed to both batches")
	}

	h.ProcessMessage(client, ClientMessage{Action: "unsubscribe", BatchIDs: []string{"batch-1"}})
	if h.TopicCount("batch-1") != 0 {
		t.Error("expected batch-1 subscription removed")
	}
	if h.TopicCount("batch-2") != 1 {
		t.Error("expected batch-2 subscription kept")
	}
	if len(client.Topics) != 1 || client.Topics[0] != "batch-2" {
		t.Errorf("unexpected client topics %v", client.Topics)
	}
}

func TestPublish_FullBufferDoesNotBlock(t *testing.T) {
	h := NewHub(zerolog.Nop())
	client := &Client{ID: "slow", Topics: []string{"batch-1"}, Send: make(chan []byte)}
	h.Register(client)

	done := make(chan struct{})
	go func() {
		h.Publish(pubsub.Event{Topic: "batch-1", Status: "queued"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Error("publish must not block on a full client buffer")
	}
}
