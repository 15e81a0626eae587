package submission

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestScheduler_PromotesAndDrains(t *testing.T) {
	env := newTestEnv(t, 5, 0)
	b := env.seedBatch(t, "2026-03", 1)

	s := NewScheduler(env.engine, SchedulerConfig{
		WindowCheckInterval: 10 * time.Millisecond,
		DrainInterval:       10 * time.Millisecond,
		ReclaimInterval:     time.Hour,
		CleanupInterval:     time.Hour,
	}, zerolog.Nop())

	s.Start(context.Background())
	defer s.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		got, err := env.store.Batches().Get(context.Background(), b.ID)
		if err != nil {
			t.Fatalf("get batch: %v", err)
		}
		if got.Status == StatusSubmitted {
			if got.Method != MethodAutomatic {
				t.Errorf("scheduler promotion must use the automatic method, got %s", got.Method)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("batch was not submitted by the scheduler loops")
}

func TestScheduler_StopIsIdempotent(t *testing.T) {
	env := newTestEnv(t, 5, 0)
	s := NewScheduler(env.engine, SchedulerConfig{}, zerolog.Nop())

	s.Start(context.Background())
	s.Stop()
	s.Stop()
	// Restart after stop works.
	s.Start(context.Background())
	s.Stop()
}
