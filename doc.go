// Package themis provides a shared configuration manager for co-operating
// processes on a single host: a typed parameter store backed by SQLite, a
// multicast change notifier, and a callback dispatcher that lets each
// process react to parameters changed by any of the others.
//
// # Architecture Overview
//
// Themis consists of five integrated subsystems:
//  1. **Schema Compiler**: build-time YAML IDL compiled into a parameter
//     table, a dense ID enum, typed accessor pairs, and a C header.
//  2. **Typed Store**: SQLite-backed storage of non-default parameter
//     values, with save/restore/factory-reset semantics.
//  3. **Multicast Notifier**: best-effort UDP multicast broadcast of
//     changed parameter IDs to every other process on the host.
//  4. **Reconciler & Dispatcher**: a BoreasLite-derived MPSC ring buffer
//     that batches incoming change notifications and invokes the
//     callbacks registered against each changed parameter.
//  5. **Control Surfaces**: a C-ABI façade for non-Go consumers and a
//     JSON-RPC/WebSocket (plus plain REST) surface for inspection tools.
//
// # Quick Start
//
// Compile a schema, open an instance, read and write parameters:
//
//	instance, err := themis.Open(themis.Config{
//		DatabasePath: "/var/run/myapp/params.db",
//		Descriptors:  deviceconfig.Descriptors,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer instance.Close()
//
//	v, _ := instance.Get(deviceconfig.IDDEVICE_IMAGE_WIDTH)
//	width, _ := v.Int32()
//	err = instance.Set(deviceconfig.IDDEVICE_IMAGE_WIDTH, themis.I32Value(512))
//
// # Cross-Process Propagation
//
// Writing a parameter in one process updates the local store, appends to
// the change log, and broadcasts a multicast notification. Every other
// process with a Notifier listening on the same group re-reads that
// parameter from the store, then runs any callback registered with Watch
// with the value it read:
//
//	instance.Watch(deviceconfig.IDDEVICE_IMAGE_WIDTH, func(v themis.Value) {
//		log.Printf("image_width changed to %v", v)
//	})
//
// # Adaptive Batching
//
// The reconciler's ring buffer adapts its draining strategy to load,
// exactly like the file-event ring buffer it's derived from:
//
//   - **Single**: one changed ID, lowest latency path.
//   - **Small**: a handful of IDs from one notification burst.
//   - **Large**: a full local rescan after reattaching to the database.
//
// # Save, Restore, Factory Reset
//
// The store supports atomic snapshot operations used by `paramctl`:
//
//	instance.Save("/var/backups/params-2026-08-02.db")
//	instance.Restore("/var/backups/params-2026-08-02.db")
//	instance.FactoryReset() // drops every non-default row
//
// # Error Handling
//
// Every operation returns a themis error carrying a stable ErrCode, built
// with github.com/agilira/go-errors, so callers can branch on failure kind
// without string-matching messages.
//
// # Control Plane Binaries
//
// cmd/paramd runs the long-lived per-process daemon: it opens an
// Instance, starts the notifier and reconciler, and optionally serves the
// JSON-RPC/WebSocket surface. cmd/paramctl is a git-style CLI for
// inspecting and mutating parameters through a running paramd's
// REST/WebSocket surface.
// cmd/schemagen compiles a YAML schema into generated Go and a C header.
package themis
