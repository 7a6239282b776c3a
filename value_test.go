package themis

import (
	"encoding/json"
	"testing"
)

func TestValueConstructorsAndAccessors(t *testing.T) {
	tests := []struct {
		name string
		v    Value
		kind Kind
	}{
		{"bool", BoolValue(true), KindBool},
		{"i32", I32Value(-42), KindI32},
		{"u32", U32Value(42), KindU32},
		{"i64", I64Value(-1 << 40), KindI64},
		{"u64", U64Value(1 << 40), KindU64},
		{"f32", F32Value(1.5), KindF32},
		{"f64", F64Value(2.5), KindF64},
		{"string", StringValue("hello"), KindString},
		{"blob", BlobValue([]byte{1, 2, 3}), KindBlob},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.v.Kind(); got != tt.kind {
				t.Fatalf("Kind() = %v, want %v", got, tt.kind)
			}
		})
	}
}

func TestValueAccessorTypeMismatch(t *testing.T) {
	v := I32Value(7)
	if _, err := v.Bool(); !isTypeMismatch(err) {
		t.Fatalf("expected type mismatch error, got %v", err)
	}
	if _, err := v.Uint64(); !isTypeMismatch(err) {
		t.Fatalf("expected type mismatch error, got %v", err)
	}
}

func TestValueBlobCopiesOnConstructAndRead(t *testing.T) {
	src := []byte{1, 2, 3}
	v := BlobValue(src)
	src[0] = 99

	got, err := v.Bytes()
	if err != nil {
		t.Fatalf("Bytes() error: %v", err)
	}
	if got[0] != 1 {
		t.Fatalf("BlobValue did not copy its input: got %v", got)
	}

	got[0] = 42
	again, _ := v.Bytes()
	if again[0] != 1 {
		t.Fatalf("Bytes() did not return a defensive copy: got %v", again)
	}
}

func TestValueMarshalJSON(t *testing.T) {
	tests := []struct {
		name string
		v    Value
		want string
	}{
		{"bool true", BoolValue(true), "true"},
		{"bool false", BoolValue(false), "false"},
		{"i32", I32Value(-7), "-7"},
		{"u32", U32Value(7), "7"},
		{"string", StringValue("hi"), `"hi"`},
		{"blob", BlobValue([]byte("ab")), `"YWI="`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := json.Marshal(tt.v)
			if err != nil {
				t.Fatalf("Marshal error: %v", err)
			}
			if string(out) != tt.want {
				t.Fatalf("Marshal() = %s, want %s", out, tt.want)
			}
		})
	}
}

func TestValueTextFormatsScalarsForNonStringKinds(t *testing.T) {
	v := I32Value(5)
	text, err := v.Text()
	if err != nil {
		t.Fatalf("Text() error: %v", err)
	}
	if text != "I32: 5" {
		t.Fatalf("Text() = %q, want %q", text, "I32: 5")
	}

	if _, err := BlobValue([]byte{1}).Text(); !isTypeMismatch(err) {
		t.Fatalf("expected blob Text() to be a type mismatch, got %v", err)
	}
}

// isTypeMismatch is a small test helper checking the go-errors code on err.
func isTypeMismatch(err error) bool {
	return ErrorCode(err) == ErrCodeTypeMismatch
}
