// Command paramd is the long-running process that owns one themis
// parameter store and exposes it to other local processes: direct
// Get/Set via the shared SQLite store and multicast group, plus the
// optional JSON-RPC/WebSocket/REST control surface (component G).
//
// Flag parsing follows _examples/agilira-argus/integration.go's
// flash-flags fluent registration (flags.String/.Int/.Bool then
// flags.Parse), the ambient CLI stack's other half from paramctl's
// Orpheus-based command tree.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0
package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	flashflags "github.com/agilira/flash-flags"

	"github.com/agilira/themis"
	"github.com/agilira/themis/rpc"
	"github.com/agilira/themis/schemagen"
)

func main() {
	flags := flashflags.New("paramd")
	flags.SetDescription("Shared parameter daemon for the themis control surface")
	flags.SetVersion("1.0.0")

	flags.String("schema", "", "path to the YAML parameter schema (required)")
	flags.String("db", "params.db", "path to the SQLite parameter store")
	flags.String("rpc-bind", "", "JSON-RPC/WebSocket/REST bind address, e.g. :8700 (empty disables it)")
	flags.String("multicast-group", "", "change-notification multicast group, e.g. 239.0.0.1")
	flags.Int("multicast-port", 9999, "change-notification multicast port")
	flags.Duration("poll-interval", 5*time.Second, "full local rescan interval")

	if err := flags.Parse(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "paramd: %v\n", err)
		os.Exit(1)
	}

	if err := run(flags); err != nil {
		fmt.Fprintf(os.Stderr, "paramd: %v\n", err)
		os.Exit(1)
	}
}

// resolveSchemaPath returns the schema path to load: --schema if set,
// falling back to THEMIS_SCHEMA_PATH so paramd can be started from a
// systemd unit / container entrypoint without repeating the flag.
func resolveSchemaPath(flags *flashflags.FlagSet) (string, error) {
	if p := flags.GetString("schema"); p != "" {
		return p, nil
	}
	if env := os.Getenv("THEMIS_SCHEMA_PATH"); env != "" {
		return env, nil
	}
	return "", fmt.Errorf("--schema is required")
}

// buildConfig turns parsed flags plus a compiled schema file into the
// themis.Config run() opens an Instance with. Split out from run() so
// the schema-loading and flag-mapping logic can be exercised without
// also opening a SQLite store or blocking on a signal.
func buildConfig(flags *flashflags.FlagSet) (themis.Config, []themis.Descriptor, error) {
	schemaPath, err := resolveSchemaPath(flags)
	if err != nil {
		return themis.Config{}, nil, err
	}

	data, err := os.ReadFile(schemaPath)
	if err != nil {
		return themis.Config{}, nil, fmt.Errorf("reading schema: %w", err)
	}
	compiled, err := schemagen.Compile(data)
	if err != nil {
		return themis.Config{}, nil, fmt.Errorf("compiling schema: %w", err)
	}
	descriptors, err := compiled.ToDescriptors()
	if err != nil {
		return themis.Config{}, nil, fmt.Errorf("building descriptors: %w", err)
	}

	cfg := themis.Config{
		DatabasePath:   flags.GetString("db"),
		Descriptors:    descriptors,
		MulticastGroup: flags.GetString("multicast-group"),
		MulticastPort:  flags.GetInt("multicast-port"),
		PollInterval:   flags.GetDuration("poll-interval"),
		RPCBindAddress: flags.GetString("rpc-bind"),
		ErrorHandler: func(err error, context string) {
			log.Printf("paramd: %s: %v", context, err)
		},
	}
	return cfg, descriptors, nil
}

func run(flags *flashflags.FlagSet) error {
	cfg, descriptors, err := buildConfig(flags)
	if err != nil {
		return err
	}

	inst, err := themis.Open(cfg)
	if err != nil {
		return fmt.Errorf("opening instance: %w", err)
	}
	defer inst.Close()

	log.Printf("paramd: opened %d parameters from %s", len(descriptors), flags.GetString("schema"))

	var httpServer *http.Server
	if cfg.RPCBindAddress != "" {
		server := rpc.NewServer(inst)
		httpServer = &http.Server{Addr: cfg.RPCBindAddress, Handler: server.Handler()}
		go func() {
			log.Printf("paramd: control surface listening on %s", cfg.RPCBindAddress)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("paramd: control surface exited: %v", err)
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Print("paramd: shutting down")
	if httpServer != nil {
		_ = httpServer.Close()
	}
	return nil
}
