package session

import (
	"context"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMemoryStore_Contract(t *testing.T) {
	defer goleak.VerifyNone(t)
	clock := newFakeClock()
	exerciseStore(t, NewMemoryStore(WithClock(clock.Now)), clock)
}

func TestMemoryStore_SweepDropsExpired(t *testing.T) {
	clock := newFakeClock()
	m := NewMemoryStore(WithClock(clock.Now))
	defer m.Close()
	ctx := context.Background()

	m.Save(ctx, "short", []byte("x"), clock.Now().Add(time.Second))
	m.Save(ctx, "long", []byte("y"), clock.Now().Add(time.Hour))
	clock.Advance(time.Minute)

	if n := m.sweep(); n != 1 {
		t.Fatalf("sweep = %d, want 1", n)
	}
	if m.Count() != 1 {
		t.Fatalf("Count = %d, want 1", m.Count())
	}
}

func TestMemoryStore_CopiesData(t *testing.T) {
	m := NewMemoryStore()
	defer m.Close()
	ctx := context.Background()

	buf := []byte("abc")
	m.Save(ctx, "s", buf, time.Now().Add(time.Hour))
	buf[0] = 'z'

	got, _ := m.Load(ctx, "s")
	if string(got) != "abc" {
		t.Fatalf("stored data aliased caller buffer: %q", got)
	}
	got[1] = 'z'
	again, _ := m.Load(ctx, "s")
	if string(again) != "abc" {
		t.Fatalf("loaded data aliased store: %q", again)
	}
}

func TestMemoryStore_CleanupLoopStops(t *testing.T) {
	defer goleak.VerifyNone(t)
	m := NewMemoryStore(WithCleanupInterval(time.Millisecond))
	m.Save(context.Background(), "s", nil, time.Now().Add(-time.Second))

	deadline := time.Now().Add(2 * time.Second)
	for m.Count() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if m.Count() != 0 {
		t.Fatal("cleanup loop never removed the expired lease")
	}
	m.Close()
}
