// ring.go: MPSC ring buffer for batching parameter change notifications,
// derived from the BoreasLite ring buffer this project's teacher uses for
// file-change events.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package themis

import (
	"runtime"
	"sync/atomic"
	"time"
)

// changeEvent is one parameter-changed notification queued for the
// dispatcher. Deliberately tiny (16 bytes) since, unlike a file path,
// a ParamID is already a dense integer — there's no variable-length
// payload to box.
type changeEvent struct {
	ID        ParamID
	Timestamp int64 // unix nanoseconds
}

// OptimizationStrategy selects how the change ring drains queued events.
type OptimizationStrategy int

const (
	// OptimizationAuto picks a strategy from current buffer occupancy.
	OptimizationAuto OptimizationStrategy = iota

	// OptimizationSingleEvent favors latency: a lone notification (the
	// common case — one process wrote one parameter) is dispatched
	// immediately with no batching.
	OptimizationSingleEvent

	// OptimizationSmallBatch balances latency and throughput for a
	// handful of IDs from one multicast notification burst.
	OptimizationSmallBatch

	// OptimizationLargeBatch favors throughput: used when the reconciler
	// has just reattached after a missed notification and is draining a
	// full local rescan's worth of changed IDs.
	OptimizationLargeBatch
)

// changeRing is a single-consumer MPSC ring buffer: the notifier's
// listener goroutine and the reconciler's poll-timer goroutine both
// produce, the dispatcher goroutine is the sole consumer.
type changeRing struct {
	buffer   []changeEvent
	capacity int64
	mask     int64

	writerCursor atomic.Int64
	readerCursor atomic.Int64
	_            [48]byte

	availableBuffer []atomic.Int64

	processor func(*changeEvent)

	strategy  OptimizationStrategy
	batchSize int64

	running atomic.Bool

	processed atomic.Int64
	dropped   atomic.Int64
}

// newChangeRing builds a ring of the given capacity (rounded up to a
// power of 2 by Config.WithDefaults before this is called; defensively
// re-checked here).
func newChangeRing(capacity int64, strategy OptimizationStrategy, processor func(*changeEvent)) *changeRing {
	if capacity <= 0 || (capacity&(capacity-1)) != 0 {
		capacity = 128
	}

	var batchSize int64
	switch strategy {
	case OptimizationSingleEvent:
		batchSize = 1
	case OptimizationSmallBatch:
		batchSize = 4
	case OptimizationLargeBatch:
		batchSize = 16
	default:
		batchSize = 4
	}

	r := &changeRing{
		buffer:          make([]changeEvent, capacity),
		capacity:        capacity,
		mask:            capacity - 1,
		availableBuffer: make([]atomic.Int64, capacity),
		processor:       processor,
		strategy:        strategy,
		batchSize:       batchSize,
	}
	for i := range r.availableBuffer {
		r.availableBuffer[i].Store(-1)
	}
	r.running.Store(true)
	return r
}

// Write enqueues one change notification. Returns false if the ring is
// stopped or full; a full ring means the dispatcher has fallen far enough
// behind that the reconciler's next full rescan will pick up the change
// anyway, so drops here are recoverable, not silent data loss.
func (r *changeRing) Write(id ParamID, ts int64) bool {
	if !r.running.Load() {
		r.dropped.Add(1)
		return false
	}

	for {
		sequence := r.writerCursor.Load()
		if sequence >= r.readerCursor.Load()+r.capacity {
			r.dropped.Add(1)
			return false
		}
		if !r.writerCursor.CompareAndSwap(sequence, sequence+1) {
			continue
		}

		slot := &r.buffer[sequence&r.mask]
		slot.ID = id
		slot.Timestamp = ts

		r.availableBuffer[sequence&r.mask].Store(sequence)
		return true
	}
}

// ProcessBatch drains whatever is currently available, choosing a batch
// strategy per the ring's configured OptimizationStrategy.
func (r *changeRing) ProcessBatch() int {
	current := r.readerCursor.Load()
	writerPos := r.writerCursor.Load()
	if current >= writerPos {
		return 0
	}

	occupancy := writerPos - current
	switch r.strategy {
	case OptimizationSingleEvent:
		return r.processSingle(current, writerPos)
	case OptimizationSmallBatch:
		return r.processBatchOf(current, writerPos, r.batchSize)
	case OptimizationLargeBatch:
		return r.processLarge(current, writerPos, occupancy)
	default:
		switch {
		case occupancy <= 3:
			return r.processSingle(current, writerPos)
		case occupancy <= 16:
			return r.processBatchOf(current, writerPos, 4)
		default:
			return r.processLarge(current, writerPos, occupancy)
		}
	}
}

func (r *changeRing) processSingle(current, writerPos int64) int {
	maxProcess := minInt64(3, writerPos-current)
	return r.drain(current, maxProcess)
}

func (r *changeRing) processBatchOf(current, writerPos, batch int64) int {
	maxProcess := minInt64(batch, writerPos-current)
	return r.drain(current, maxProcess)
}

func (r *changeRing) processLarge(current, writerPos, occupancy int64) int {
	batch := r.batchSize
	if occupancy > r.capacity*3/4 {
		batch = minInt64(batch*4, r.capacity/2)
	}
	maxProcess := minInt64(batch, writerPos-current)
	return r.drain(current, maxProcess)
}

func (r *changeRing) drain(current, maxProcess int64) int {
	available := current - 1
	for seq := current; seq < current+maxProcess; seq++ {
		if r.availableBuffer[seq&r.mask].Load() == seq {
			available = seq
		} else {
			break
		}
	}
	if available < current {
		return 0
	}

	processed := int(available - current + 1)
	for seq := current; seq <= available; seq++ {
		idx := seq & r.mask
		r.processor(&r.buffer[idx])
		r.availableBuffer[idx].Store(-1)
	}
	r.readerCursor.Store(available + 1)
	r.processed.Add(int64(processed))
	return processed
}

// Run drives the consumer loop: spin briefly, then yield, then sleep,
// adapting cadence to the configured strategy exactly as the draining
// logic above adapts its batch sizes.
func (r *changeRing) Run() {
	spins := 0
	for r.running.Load() {
		processed := r.ProcessBatch()
		if processed > 0 {
			spins = 0
			continue
		}
		spins++
		switch {
		case spins < 2000:
			continue
		case spins < 8000:
			if spins&7 == 0 {
				runtime.Gosched()
			}
		default:
			time.Sleep(200 * time.Microsecond)
			spins = 0
		}
	}

	drainAttempts := 0
	for r.ProcessBatch() > 0 && drainAttempts < 1000 {
		drainAttempts++
	}
}

// Stop halts Run's loop. A stopped ring still drains on its way out.
func (r *changeRing) Stop() {
	r.running.Store(false)
}

// Stats reports ring occupancy and lifetime counters, surfaced through
// Instance.Stats() for /api/info.
func (r *changeRing) Stats() map[string]int64 {
	writerPos := r.writerCursor.Load()
	readerPos := r.readerCursor.Load()
	return map[string]int64{
		"writer_position": writerPos,
		"reader_position": readerPos,
		"buffer_size":     r.capacity,
		"items_buffered":  writerPos - readerPos,
		"items_processed": r.processed.Load(),
		"items_dropped":   r.dropped.Load(),
		"running":         boolToInt64(r.running.Load()),
	}
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func boolToInt64(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
