// config.go: Configuration for the themis shared parameter manager
//
// Copyright (c) 2025 AGILira
// Series: AGILira System Libraries
// SPDX-License-Identifier: MPL-2.0

package themis

import "time"

// Config controls how an Instance opens its store, reaches other
// processes, and batches incoming change notifications.
type Config struct {
	// DatabasePath is the SQLite file backing the parameter store. Created
	// if it does not exist.
	DatabasePath string

	// Descriptors is the compiled schema table generated by schemagen.
	Descriptors []Descriptor

	// MulticastGroup/MulticastPort address the change-notification group,
	// e.g. "239.0.0.1" / 9999. Zero value disables multicast entirely: the
	// instance still serves reads/writes, it just never learns of changes
	// made by other processes.
	MulticastGroup string
	MulticastPort  int

	// PollInterval bounds how long a full local rescan can lag behind a
	// missed or dropped multicast notification.
	PollInterval time.Duration

	// RingCapacity sizes the change-event ring buffer (component E).
	// Rounded up to the next power of 2.
	RingCapacity int64

	// RPCBindAddress is the listen address (host:port) for the optional
	// JSON-RPC/WebSocket and REST control surface (component G). Empty
	// disables it: an Instance never starts a listener on its own, cmd/paramd
	// does that using this address.
	RPCBindAddress string

	// OptimizationStrategy selects the ring buffer's batching strategy.
	OptimizationStrategy OptimizationStrategy

	// Audit configures the change-event audit trail (adapted from the
	// ambient audit subsystem).
	Audit AuditConfig

	// ErrorHandler receives errors the reconciler and notifier encounter
	// off the caller's goroutine (failed reads, malformed notifications).
	ErrorHandler func(err error, context string)
}

// WithDefaults returns a copy of c with zero-valued fields replaced by
// sensible defaults, following the same guard-rail pattern the rest of
// the ambient config stack uses.
func (c *Config) WithDefaults() *Config {
	config := *c

	if config.PollInterval <= 0 {
		config.PollInterval = 5 * time.Second
	}

	if config.Audit == (AuditConfig{}) {
		config.Audit = DefaultAuditConfig()
	}

	if config.OptimizationStrategy == OptimizationAuto {
		config.OptimizationStrategy = OptimizationAuto
	}

	if config.RingCapacity <= 0 {
		switch config.OptimizationStrategy {
		case OptimizationSingleEvent:
			config.RingCapacity = 64
		case OptimizationSmallBatch:
			config.RingCapacity = 128
		case OptimizationLargeBatch:
			config.RingCapacity = 256
		default: // OptimizationAuto
			config.RingCapacity = 128
		}
	}

	// Ensure capacity is a power of 2, matching the ring buffer's
	// index-masking requirement.
	if config.RingCapacity > 0 && (config.RingCapacity&(config.RingCapacity-1)) != 0 {
		capacity := int64(1)
		for capacity < config.RingCapacity {
			capacity <<= 1
		}
		config.RingCapacity = capacity
	}

	return &config
}
