package schemagen

import (
	"testing"

	"github.com/agilira/themis"
)

const runtimeTestYAML = `
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
      - name: mode
        kind: string
        default: "auto"
        validation:
          type: allowed_values
          values: ["auto", "manual"]
`

func TestToDescriptorsBuildsRuntimeDescriptors(t *testing.T) {
	schema, err := Compile([]byte(runtimeTestYAML))
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	descs, err := schema.ToDescriptors()
	if err != nil {
		t.Fatalf("ToDescriptors: %v", err)
	}
	if len(descs) != 2 {
		t.Fatalf("len(descs) = %d, want 2", len(descs))
	}

	width := descs[0]
	if width.Kind != themis.KindI32 {
		t.Fatalf("width.Kind = %v, want KindI32", width.Kind)
	}
	n, err := width.Default.Int32()
	if err != nil || n != 1920 {
		t.Fatalf("width.Default = %v, %v, want 1920", n, err)
	}
	if width.Validation.Kind != themis.ValidationRange || width.Validation.Max != 4096 {
		t.Fatalf("width.Validation = %+v, want range [1,4096]", width.Validation)
	}

	mode := descs[1]
	if mode.Validation.Kind != themis.ValidationAllowedValues || len(mode.Validation.AllowedValues) != 2 {
		t.Fatalf("mode.Validation = %+v, want 2 allowed values", mode.Validation)
	}
}

func TestToDescriptorsRejectsUnconvertibleDefault(t *testing.T) {
	badYAML := `
version: 1
groups:
  - name: g
    parameters:
      - name: flag
        kind: bool
        default: "not-a-bool"
`
	// Compile itself already rejects this at valueLiteral time, so
	// ToDescriptors never sees it; this documents that Compile is the
	// earlier failure point for malformed defaults.
	_, err := Compile([]byte(badYAML))
	if err == nil {
		t.Fatal("Compile() err = nil, want error for non-bool default")
	}
}
