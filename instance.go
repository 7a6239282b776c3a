// instance.go: Instance, the public entry point tying the store, the
// multicast notifier, and the reconciler/dispatcher together.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package themis

import (
	"context"
	"sync"
)

// Instance is a single process's handle onto a shared parameter store.
// Safe for concurrent use by multiple goroutines.
type Instance struct {
	cfg   *Config
	store *store

	notifier    *notifier
	reconciler  *reconciler
	auditLogger *AuditLogger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Open creates or attaches to the parameter store named by cfg, starts
// the multicast notifier (if cfg.MulticastGroup is set) and the
// reconciler/dispatcher, and returns a ready-to-use Instance. Callers
// must call Close when done.
func Open(cfg Config) (*Instance, error) {
	config := cfg.WithDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	st, err := openStore(config.DatabasePath, config.Descriptors)
	if err != nil {
		return nil, err
	}

	auditLogger, err := NewAuditLogger(config.Audit)
	if err != nil {
		st.Close()
		return nil, err
	}

	rec := newReconciler(st, config.OptimizationStrategy, config.RingCapacity, int64(config.PollInterval))

	inst := &Instance{
		cfg:         config,
		store:       st,
		reconciler:  rec,
		auditLogger: auditLogger,
	}
	inst.ctx, inst.cancel = context.WithCancel(context.Background())

	notif, err := newNotifier(config.MulticastGroup, config.MulticastPort, inst.onRemoteNotify, inst.reportError)
	if err != nil {
		auditLogger.Close()
		st.Close()
		inst.cancel()
		return nil, err
	}
	inst.notifier = notif

	inst.wg.Add(1)
	go func() {
		defer inst.wg.Done()
		rec.Run(inst.ctx)
	}()

	if notif.listenPC != nil {
		inst.wg.Add(1)
		go func() {
			defer inst.wg.Done()
			notif.Listen(inst.ctx)
		}()
		auditLogger.LogNotifierEvent("listener_started", config.MulticastGroup)
	}

	return inst, nil
}

// onRemoteNotify is the notifier's callback for a datagram received from
// another process: feed the reconciler's ring so the local dispatcher
// re-reads and fires subscriber callbacks, same as a local write would.
func (inst *Instance) onRemoteNotify(id ParamID, unixSeconds uint32) {
	inst.reconciler.NotifyChanged(id, int64(unixSeconds)*1e9)
}

func (inst *Instance) reportError(err error, context string) {
	if inst.cfg.ErrorHandler != nil {
		inst.cfg.ErrorHandler(err, context)
	}
}

// Get reads id's current value.
func (inst *Instance) Get(id ParamID) (Value, error) {
	return inst.store.Get(id)
}

// Set writes id's new value, notifying local subscribers and other
// processes on the multicast group.
func (inst *Instance) Set(id ParamID, v Value) error {
	old, _ := inst.store.Get(id)
	changed, err := inst.store.Set(id, v, false)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	inst.auditLogger.LogParameterChange(inst.descriptorName(id), old, v)

	now := nowTimestamp()
	inst.reconciler.NotifyChanged(id, now)
	inst.notifier.Send(id, uint32(now/1e9))
	return nil
}

// Watch registers fn to be invoked, off the caller's goroutine, whenever
// id changes -- locally or on another process sharing the multicast
// group.
func (inst *Instance) Watch(id ParamID, fn func(Value)) {
	inst.reconciler.Subscribe(id, fn)
}

// Save writes a point-in-time snapshot of all non-Runtime parameters to
// dstPath.
func (inst *Instance) Save(dstPath string) error {
	return inst.store.Save(dstPath)
}

// Restore replaces the local store's non-Runtime parameters with
// srcPath's snapshot (Runtime parameters keep their current values)
// and re-stamps every restored parameter as changed, so watchers
// re-fire.
func (inst *Instance) Restore(srcPath string) error {
	if err := inst.store.Restore(srcPath); err != nil {
		return err
	}
	inst.auditLogger.LogNotifierEvent("restored", srcPath)
	inst.rescanAfterBulkChange()
	return nil
}

// FactoryReset clears every parameter back to its compiled default and
// re-stamps every known ID as changed.
func (inst *Instance) FactoryReset() error {
	if err := inst.store.FactoryReset(); err != nil {
		return err
	}
	inst.auditLogger.LogNotifierEvent("factory_reset", "")
	inst.rescanAfterBulkChange()
	return nil
}

// rescanAfterBulkChange feeds every descriptor's ID through the
// reconciler immediately after a Restore/FactoryReset, instead of
// waiting for the next timer tick, so subscribers see the bulk change
// promptly.
func (inst *Instance) rescanAfterBulkChange() {
	now := nowTimestamp()
	for _, desc := range inst.store.descs {
		inst.reconciler.NotifyChanged(desc.ID, now)
	}
}

// Stats reports ring occupancy/throughput counters, for the JSON-RPC
// surface's /api/info handler.
func (inst *Instance) Stats() map[string]int64 {
	return inst.reconciler.ring.Stats()
}

func (inst *Instance) descriptorName(id ParamID) string {
	if desc, ok := inst.store.byID[id]; ok {
		return desc.FullName()
	}
	return ""
}

// Descriptors returns the compiled schema this Instance was opened with,
// in ID order -- the JSON-RPC surface's /api/info handler and paramctl's
// `list` subcommand walk this to enumerate every known parameter.
func (inst *Instance) Descriptors() []Descriptor {
	return inst.store.descs
}

// Describe returns id's compiled Descriptor, or ok=false if id is not
// part of the compiled schema.
func (inst *Instance) Describe(id ParamID) (Descriptor, bool) {
	desc, ok := inst.store.byID[id]
	if !ok {
		return Descriptor{}, false
	}
	return *desc, true
}

// Lookup resolves a "<group>.<name>" full name to its ParamID, for
// surfaces that address parameters by name rather than by compiled ID
// (the JSON-RPC surface, paramctl).
func (inst *Instance) Lookup(fullName string) (ParamID, bool) {
	desc, ok := inst.store.byName[fullName]
	if !ok {
		return 0, false
	}
	return desc.ID, true
}

// Close stops the notifier and reconciler goroutines, flushes the audit
// logger, and closes the underlying database.
func (inst *Instance) Close() error {
	inst.cancel()
	inst.reconciler.Stop()
	if inst.notifier != nil {
		inst.notifier.Close()
	}
	inst.wg.Wait()

	var firstErr error
	if err := inst.auditLogger.Close(); err != nil {
		firstErr = err
	}
	if err := inst.store.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
