package schemagen

import "testing"

const sampleSchema = `
version: 3
groups:
  - name: image_acquisition
    title: Image Acquisition
    comment: Camera image acquisition parameters
    parameters:
      - name: image_width
        kind: int32
        default: 256
        validation: {type: range, min: 256, max: 2048}
      - name: resolution
        kind: int32
        default: 256
        validation: {type: allowed_values, values: [256, 512, 1024]}
      - name: serial
        kind: string
        default: "unset"
        const: true
      - name: frame_count
        kind: u64_typo
        default: 0
`

const validSchema = `
version: 1
groups:
  - name: image_acquisition
    parameters:
      - name: image_width
        kind: int32
        default: 256
        validation: {type: range, min: 256, max: 2048}
      - name: calibration_blob
        kind: blob
        default_path: ./calibration.bin
        runtime: true
`

func TestCompileAssignsDenseIDsInDiscoveryOrder(t *testing.T) {
	schema, err := Compile([]byte(validSchema))
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if len(schema.Parameters) != 2 {
		t.Fatalf("got %d parameters, want 2", len(schema.Parameters))
	}
	if schema.Parameters[0].ID != 0 || schema.Parameters[1].ID != 1 {
		t.Fatalf("IDs not dense/ordered: %d, %d", schema.Parameters[0].ID, schema.Parameters[1].ID)
	}
}

func TestCompileRejectsUnknownKind(t *testing.T) {
	_, err := Compile([]byte(sampleSchema))
	if err == nil {
		t.Fatal("expected an error for the unknown kind u64_typo")
	}
}

func TestCompileBlobWithoutDefaultRequiresDefaultPath(t *testing.T) {
	bad := `
version: 1
groups:
  - name: g
    parameters:
      - name: blob_param
        kind: blob
`
	_, err := Compile([]byte(bad))
	if err == nil {
		t.Fatal("expected an error for a blob parameter with no default or default_path")
	}
}

func TestCompileBlobWithDefaultPathDefersDefault(t *testing.T) {
	schema, err := Compile([]byte(validSchema))
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	blob := schema.Parameters[1]
	if blob.DefaultPath != "./calibration.bin" {
		t.Fatalf("DefaultPath = %q, want ./calibration.bin", blob.DefaultPath)
	}
	if !blob.Runtime {
		t.Fatal("expected calibration_blob to be marked Runtime")
	}
}

func TestCompileRejectsMissingDefault(t *testing.T) {
	bad := `
version: 1
groups:
  - name: g
    parameters:
      - name: no_default
        kind: int32
`
	_, err := Compile([]byte(bad))
	if err == nil {
		t.Fatal("expected an error for a non-blob parameter with no default")
	}
}

func TestCompileRejectsDuplicateParameterNames(t *testing.T) {
	bad := `
version: 1
groups:
  - name: g
    parameters:
      - name: dup
        kind: int32
        default: 1
      - name: dup
        kind: int32
        default: 2
`
	_, err := Compile([]byte(bad))
	if err == nil {
		t.Fatal("expected an error for a duplicate parameter name")
	}
}

func TestCompileRangeValidationRequiresMinMax(t *testing.T) {
	bad := `
version: 1
groups:
  - name: g
    parameters:
      - name: p
        kind: int32
        default: 1
        validation: {type: range, min: 1}
`
	_, err := Compile([]byte(bad))
	if err == nil {
		t.Fatal("expected an error for a range validation missing max")
	}
}

func TestGenerateGoProducesAccessorNames(t *testing.T) {
	schema, err := Compile([]byte(validSchema))
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	src, err := GenerateGo("genparams", schema)
	if err != nil {
		t.Fatalf("GenerateGo: %v", err)
	}
	got := string(src)
	for _, want := range []string{
		"package genparams",
		"IDIMAGE_ACQUISITION_IMAGE_WIDTH",
		"func GetImageAcquisitionImageWidth",
		"func SetImageAcquisitionImageWidth",
	} {
		if !contains(got, want) {
			t.Fatalf("generated source missing %q:\n%s", want, got)
		}
	}
}

func TestGenerateCHeaderProducesGuardAndIDs(t *testing.T) {
	schema, err := Compile([]byte(validSchema))
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	src, err := GenerateCHeader("genparams", schema)
	if err != nil {
		t.Fatalf("GenerateCHeader: %v", err)
	}
	got := string(src)
	for _, want := range []string{
		"#ifndef GENPARAMS_H",
		"THEMIS_ID_IMAGE_ACQUISITION_IMAGE_WIDTH",
		"themis_handle",
	} {
		if !contains(got, want) {
			t.Fatalf("generated header missing %q:\n%s", want, got)
		}
	}
}

func contains(haystack, needle string) bool {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}
