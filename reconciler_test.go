package themis

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func TestReconcilerDispatchesLocalSubscribers(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Set(0, I32Value(42), false); err != nil {
		t.Fatalf("Set: %v", err)
	}

	rec := newReconciler(s, OptimizationSingleEvent, 64, int64(time.Hour))
	var mu sync.Mutex
	var gotValue Value
	received := make(chan struct{}, 1)

	rec.Subscribe(0, func(v Value) {
		mu.Lock()
		gotValue = v
		mu.Unlock()
		received <- struct{}{}
	})

	rec.NotifyChanged(0, nowTimestamp())
	go rec.ring.Run()
	defer rec.ring.Stop()

	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber callback never fired")
	}

	mu.Lock()
	defer mu.Unlock()
	n, _ := gotValue.Int32()
	if n != 42 {
		t.Fatalf("callback received %d, want 42", n)
	}
}

func TestReconcilerRescanLoopUsesFakeClock(t *testing.T) {
	s := openTestStore(t)
	rec := newReconciler(s, OptimizationAuto, 64, int64(time.Second))
	fake := clockwork.NewFakeClock()
	rec.clock = fake

	var mu sync.Mutex
	seen := map[ParamID]bool{}
	rec.Subscribe(0, func(Value) {
		mu.Lock()
		seen[0] = true
		mu.Unlock()
	})

	if _, err := s.Set(0, I32Value(7), false); err != nil {
		t.Fatalf("Set: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go rec.ring.Run()
	defer rec.ring.Stop()
	go rec.rescanLoop(ctx)

	fake.BlockUntil(1)
	fake.Advance(time.Second)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		ok := seen[0]
		mu.Unlock()
		if ok {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("rescan never delivered the pre-existing change via the fake clock tick")
}

func TestReconcilerRedeliversLatestValueNotStaleOne(t *testing.T) {
	dir := t.TempDir()
	s, err := openStore(filepath.Join(dir, "p.db"), testDescriptors())
	if err != nil {
		t.Fatalf("openStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	rec := newReconciler(s, OptimizationSingleEvent, 64, int64(time.Hour))
	got := make(chan int32, 4)
	rec.Subscribe(0, func(v Value) {
		n, _ := v.Int32()
		got <- n
	})

	go rec.ring.Run()
	defer rec.ring.Stop()

	if _, err := s.Set(0, I32Value(1), false); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, err := s.Set(0, I32Value(2), false); err != nil {
		t.Fatalf("Set: %v", err)
	}
	rec.NotifyChanged(0, nowTimestamp())

	select {
	case n := <-got:
		if n != 2 {
			t.Fatalf("dispatch delivered stale value %d, want latest 2", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber callback never fired")
	}
}
