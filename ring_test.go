package themis

import (
	"sync"
	"testing"
	"time"
)

func TestChangeRingSingleWriteDispatches(t *testing.T) {
	var mu sync.Mutex
	var got []ParamID

	r := newChangeRing(64, OptimizationSingleEvent, func(ev *changeEvent) {
		mu.Lock()
		got = append(got, ev.ID)
		mu.Unlock()
	})

	if !r.Write(7, 123) {
		t.Fatal("Write() returned false for a fresh ring")
	}
	if n := r.ProcessBatch(); n != 1 {
		t.Fatalf("ProcessBatch() = %d, want 1", n)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0] != 7 {
		t.Fatalf("dispatched IDs = %v, want [7]", got)
	}
}

func TestChangeRingBatchDrainsInOrder(t *testing.T) {
	var got []ParamID
	r := newChangeRing(64, OptimizationSmallBatch, func(ev *changeEvent) {
		got = append(got, ev.ID)
	})

	for i := ParamID(0); i < 4; i++ {
		r.Write(i, int64(i))
	}
	for r.ProcessBatch() > 0 {
	}

	if len(got) != 4 {
		t.Fatalf("len(got) = %d, want 4", len(got))
	}
	for i, id := range got {
		if id != ParamID(i) {
			t.Fatalf("got[%d] = %d, want %d (drain must preserve write order)", i, id, i)
		}
	}
}

func TestChangeRingStopPreventsFurtherWrites(t *testing.T) {
	r := newChangeRing(8, OptimizationAuto, func(*changeEvent) {})
	r.Stop()
	if r.Write(1, 1) {
		t.Fatal("Write() succeeded after Stop()")
	}
}

func TestChangeRingRunProcessesUntilStopped(t *testing.T) {
	var mu sync.Mutex
	count := 0
	r := newChangeRing(16, OptimizationAuto, func(*changeEvent) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	go r.Run()
	for i := 0; i < 5; i++ {
		r.Write(ParamID(i), int64(i))
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		c := count
		mu.Unlock()
		if c == 5 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	r.Stop()

	mu.Lock()
	defer mu.Unlock()
	if count != 5 {
		t.Fatalf("processed %d events, want 5", count)
	}
}

func TestChangeRingStatsReflectOccupancy(t *testing.T) {
	r := newChangeRing(8, OptimizationAuto, func(*changeEvent) {})
	r.Write(1, 1)
	r.Write(2, 2)

	stats := r.Stats()
	if stats["items_buffered"] != 2 {
		t.Fatalf("items_buffered = %d, want 2", stats["items_buffered"])
	}

	r.ProcessBatch()
	stats = r.Stats()
	if stats["items_processed"] != 2 {
		t.Fatalf("items_processed = %d, want 2", stats["items_processed"])
	}
}
