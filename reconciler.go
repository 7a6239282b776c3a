// reconciler.go: timer-driven full rescan and the change-event dispatcher
//
// Grounded on the teacher's BoreasLite consumer loop (ring.go, adapted from
// boreaslite.go) for the dispatcher half, and on
// _examples/malbeclabs-doublezero's use of clockwork for the timer half --
// a fake clock lets reconciler_test.go advance polling deterministically
// instead of sleeping real wall-clock time.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package themis

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// reconciler owns the change-event ring buffer (component E) and the
// timer thread that performs a full local rescan to cover any multicast
// notification the notifier dropped or never sent (e.g. another process
// on a host with multicast disabled).
type reconciler struct {
	clock        clockwork.Clock
	pollInterval func() int64 // nanoseconds, read each tick; returns the interval fixed at construction

	store *store
	ring  *changeRing

	callbacksMu sync.RWMutex
	callbacks   map[ParamID][]func(Value)

	lastRescan int64 // unix nanoseconds of last completed full rescan

	stopCh chan struct{}
	doneCh chan struct{}
}

func newReconciler(s *store, strategy OptimizationStrategy, capacity int64, pollIntervalNanos int64) *reconciler {
	r := &reconciler{
		clock:        clockwork.NewRealClock(),
		pollInterval: func() int64 { return pollIntervalNanos },
		store:        s,
		callbacks:    make(map[ParamID][]func(Value)),
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
	r.ring = newChangeRing(capacity, strategy, r.dispatch)
	return r
}

// Subscribe registers fn to be called, off the caller's goroutine,
// whenever id changes -- whether learned via multicast notification or
// via the full rescan.
func (r *reconciler) Subscribe(id ParamID, fn func(Value)) {
	r.callbacksMu.Lock()
	defer r.callbacksMu.Unlock()
	r.callbacks[id] = append(r.callbacks[id], fn)
}

// NotifyChanged is the producer-side entry point: the notifier's listener
// goroutine and the timer rescan both feed the ring through here.
func (r *reconciler) NotifyChanged(id ParamID, unixNanos int64) {
	r.ring.Write(id, unixNanos)
}

// dispatch is the ring's sole consumer callback (component E): for every
// drained event, re-read the current value from the store and invoke
// every subscriber for that ID. Re-reading rather than trusting the
// event payload means a rapid sequence of writes to the same ID always
// delivers the latest value, never a stale intermediate one.
func (r *reconciler) dispatch(ev *changeEvent) {
	r.callbacksMu.RLock()
	fns := r.callbacks[ev.ID]
	r.callbacksMu.RUnlock()
	if len(fns) == 0 {
		return
	}

	v, err := r.store.Get(ev.ID)
	if err != nil {
		return
	}
	for _, fn := range fns {
		fn(v)
	}
}

// Run drives both the ring consumer loop and the rescan timer until
// Stop is called. Launched with `go r.Run(ctx)`.
func (r *reconciler) Run(ctx context.Context) {
	defer close(r.doneCh)

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		r.ring.Run()
	}()

	go func() {
		defer wg.Done()
		r.rescanLoop(ctx)
	}()

	wg.Wait()
}

// rescanLoop performs a full IterChangedSince(lastRescan) sweep on every
// tick, feeding anything found into the same ring the notifier listener
// feeds -- this is how a dropped or never-sent multicast notification
// still gets delivered, bounded by PollInterval latency.
func (r *reconciler) rescanLoop(ctx context.Context) {
	for {
		interval := r.pollInterval()
		timer := r.clock.NewTimer(time.Duration(interval))

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-r.stopCh:
			timer.Stop()
			return
		case <-timer.Chan():
		}

		since := r.lastRescan
		now := nowTimestamp()
		ids, err := r.store.IterChangedSince(since)
		if err == nil {
			for _, id := range ids {
				r.ring.Write(id, now)
			}
		}
		r.lastRescan = now
	}
}

// Stop halts both the ring and the rescan timer, and blocks until Run
// returns.
func (r *reconciler) Stop() {
	select {
	case <-r.stopCh:
	default:
		close(r.stopCh)
	}
	r.ring.Stop()
	<-r.doneCh
}

