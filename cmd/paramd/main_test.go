package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	flashflags "github.com/agilira/flash-flags"
)

const testSchemaYAML = `
version: 1
groups:
  - name: camera
    parameters:
      - name: width
        kind: int32
        default: 1920
        validation:
          type: range
          min: 1
          max: 4096
`

// newTestFlags registers the same flags main() does, so tests exercise
// the real flag set rather than a hand-trimmed stand-in.
func newTestFlags(args ...string) (*flashflags.FlagSet, error) {
	flags := flashflags.New("paramd")
	flags.String("schema", "", "path to the YAML parameter schema (required)")
	flags.String("db", "params.db", "path to the SQLite parameter store")
	flags.String("rpc-bind", "", "JSON-RPC/WebSocket/REST bind address, e.g. :8700 (empty disables it)")
	flags.String("multicast-group", "", "change-notification multicast group, e.g. 239.0.0.1")
	flags.Int("multicast-port", 9999, "change-notification multicast port")
	flags.Duration("poll-interval", 5*time.Second, "full local rescan interval")
	if err := flags.Parse(args); err != nil {
		return nil, err
	}
	return flags, nil
}

func writeTestSchema(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "schema.yaml")
	if err := os.WriteFile(path, []byte(testSchemaYAML), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestResolveSchemaPathPrefersFlag(t *testing.T) {
	t.Setenv("THEMIS_SCHEMA_PATH", "/env/schema.yaml")
	flags, err := newTestFlags("--schema", "/flag/schema.yaml")
	if err != nil {
		t.Fatalf("newTestFlags: %v", err)
	}
	got, err := resolveSchemaPath(flags)
	if err != nil {
		t.Fatalf("resolveSchemaPath: %v", err)
	}
	if got != "/flag/schema.yaml" {
		t.Fatalf("resolveSchemaPath() = %q, want flag value", got)
	}
}

func TestResolveSchemaPathFallsBackToEnv(t *testing.T) {
	t.Setenv("THEMIS_SCHEMA_PATH", "/env/schema.yaml")
	flags, err := newTestFlags()
	if err != nil {
		t.Fatalf("newTestFlags: %v", err)
	}
	got, err := resolveSchemaPath(flags)
	if err != nil {
		t.Fatalf("resolveSchemaPath: %v", err)
	}
	if got != "/env/schema.yaml" {
		t.Fatalf("resolveSchemaPath() = %q, want env fallback", got)
	}
}

func TestResolveSchemaPathRequiresOne(t *testing.T) {
	t.Setenv("THEMIS_SCHEMA_PATH", "")
	flags, err := newTestFlags()
	if err != nil {
		t.Fatalf("newTestFlags: %v", err)
	}
	if _, err := resolveSchemaPath(flags); err == nil {
		t.Fatal("resolveSchemaPath() err = nil, want error when neither flag nor env set")
	}
}

func TestBuildConfigLoadsSchemaAndMapsFlags(t *testing.T) {
	schemaPath := writeTestSchema(t)
	dbPath := filepath.Join(t.TempDir(), "params.db")
	flags, err := newTestFlags(
		"--schema", schemaPath,
		"--db", dbPath,
		"--rpc-bind", ":8700",
		"--multicast-group", "239.0.0.1",
		"--multicast-port", "9001",
		"--poll-interval", "2s",
	)
	if err != nil {
		t.Fatalf("newTestFlags: %v", err)
	}

	cfg, descriptors, err := buildConfig(flags)
	if err != nil {
		t.Fatalf("buildConfig: %v", err)
	}
	if len(descriptors) != 1 {
		t.Fatalf("len(descriptors) = %d, want 1", len(descriptors))
	}
	if cfg.DatabasePath != dbPath {
		t.Fatalf("cfg.DatabasePath = %q, want %q", cfg.DatabasePath, dbPath)
	}
	if cfg.RPCBindAddress != ":8700" {
		t.Fatalf("cfg.RPCBindAddress = %q, want :8700", cfg.RPCBindAddress)
	}
	if cfg.MulticastGroup != "239.0.0.1" || cfg.MulticastPort != 9001 {
		t.Fatalf("cfg multicast = %q:%d, want 239.0.0.1:9001", cfg.MulticastGroup, cfg.MulticastPort)
	}
	if cfg.PollInterval != 2*time.Second {
		t.Fatalf("cfg.PollInterval = %v, want 2s", cfg.PollInterval)
	}
	if cfg.ErrorHandler == nil {
		t.Fatal("cfg.ErrorHandler not set")
	}
}

func TestBuildConfigRejectsMissingSchema(t *testing.T) {
	t.Setenv("THEMIS_SCHEMA_PATH", "")
	flags, err := newTestFlags()
	if err != nil {
		t.Fatalf("newTestFlags: %v", err)
	}
	if _, _, err := buildConfig(flags); err == nil {
		t.Fatal("buildConfig() err = nil, want error without -schema")
	}
}

func TestBuildConfigRejectsMalformedSchema(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(path, []byte("not: [valid"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	flags, err := newTestFlags("--schema", path)
	if err != nil {
		t.Fatalf("newTestFlags: %v", err)
	}
	if _, _, err := buildConfig(flags); err == nil {
		t.Fatal("buildConfig() err = nil, want error for malformed schema YAML")
	}
}
