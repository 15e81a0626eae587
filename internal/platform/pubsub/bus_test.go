package pubsub

import (
	"sync"
	"testing"
	"time"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestSubscribeAndPublish(t *testing.T) {
	b := NewBus()

	var mu sync.Mutex
	var got []Event
	unsub := b.Subscribe("batch-1", func(e Event) {
		mu.Lock()
		got = append(got, e)
		mu.Unlock()
	})
	defer unsub()

	b.Publish(Event{Topic: "batch-1", Status: "queued"})
	b.Publish(Event{Topic: "batch-2", Status: "queued"}) // different topic

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	})

	mu.Lock()
	defer mu.Unlock()
	if got[0].Status != "queued" || got[0].Topic != "batch-1" {
		t.Errorf("unexpected event %+v", got[0])
	}
}

func TestDeliveryOrder(t *testing.T) {
	b := NewBus()

	var mu sync.Mutex
	var statuses []string
	unsub := b.Subscribe("batch-1", func(e Event) {
		mu.Lock()
		statuses = append(statuses, e.Status)
		mu.Unlock()
	})
	defer unsub()

	want := []string{"queued", "submitting", "retry_pending", "submitting", "submitted"}
	for _, s := range want {
		b.Publish(Event{Topic: "batch-1", Status: s})
	}

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(statuses) == len(want)
	})

	mu.Lock()
	defer mu.Unlock()
	for i, s := range want {
		if statuses[i] != s {
			t.Fatalf("event %d: got %q, want %q (order violated)", i, statuses[i], s)
		}
	}
}

func TestUnsubscribe(t *testing.T) {
	b := NewBus()

	var mu sync.Mutex
	count := 0
	unsub := b.Subscribe("batch-1", func(Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	b.Publish(Event{Topic: "batch-1", Status: "queued"})
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count == 1
	})

	unsub()
	if n := b.SubscriberCount("batch-1"); n != 0 {
		t.Errorf("expected 0 subscribers after unsubscribe, got %d", n)
	}

	b.Publish(Event{Topic: "batch-1", Status: "submitting"})
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Errorf("expected no delivery after unsubscribe, got %d events", count)
	}
}

func TestUnsubscribeTwice(t *testing.T) {
	b := NewBus()
	unsub := b.Subscribe("batch-1", func(Event) {})
	unsub()
	unsub() // must not panic
}

func TestMultipleSubscribers(t *testing.T) {
	b := NewBus()

	var mu sync.Mutex
	counts := make(map[int]int)
	for i := 0; i < 3; i++ {
		i := i
		defer b.Subscribe("batch-1", func(Event) {
			mu.Lock()
			counts[i]++
			mu.Unlock()
		})()
	}

	b.Publish(Event{Topic: "batch-1", Status: "queued"})

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return counts[0] == 1 && counts[1] == 1 && counts[2] == 1
	})
}
