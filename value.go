package themis

import (
	"encoding/base64"
	"fmt"

	"github.com/agilira/go-errors"
)

// Kind identifies which representation a Value holds. It mirrors the
// ParameterValue variants of the original schema, minus ValPath: a path
// default is resolved to a blob at first read rather than kept as its own
// wire type.
type Kind uint8

const (
	KindBool Kind = iota
	KindI32
	KindU32
	KindI64
	KindU64
	KindF32
	KindF64
	KindString
	KindBlob
)

// String returns the kind's name, used in type-mismatch error messages.
func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindI32:
		return "i32"
	case KindU32:
		return "u32"
	case KindI64:
		return "i64"
	case KindU64:
		return "u64"
	case KindF32:
		return "f32"
	case KindF64:
		return "f64"
	case KindString:
		return "string"
	case KindBlob:
		return "blob"
	default:
		return "unknown"
	}
}

// Value is a tagged union over the parameter wire types. Exactly one of
// its fields is meaningful, selected by Kind; unexported fields keep the
// zero value cheap to copy and avoid per-Value heap allocation for the
// scalar kinds.
type Value struct {
	kind Kind
	b    bool
	i64  int64  // backs i32/u32/i64/u64 (sign-extended or zero-extended as appropriate)
	f64  float64
	s    string // backs string
	blob []byte // backs blob
}

func BoolValue(v bool) Value      { return Value{kind: KindBool, b: v} }
func I32Value(v int32) Value      { return Value{kind: KindI32, i64: int64(v)} }
func U32Value(v uint32) Value     { return Value{kind: KindU32, i64: int64(v)} }
func I64Value(v int64) Value      { return Value{kind: KindI64, i64: v} }
func U64Value(v uint64) Value     { return Value{kind: KindU64, i64: int64(v)} }
func F32Value(v float32) Value    { return Value{kind: KindF32, f64: float64(v)} }
func F64Value(v float64) Value    { return Value{kind: KindF64, f64: v} }
func StringValue(v string) Value  { return Value{kind: KindString, s: v} }
func BlobValue(v []byte) Value    { return Value{kind: KindBlob, blob: append([]byte(nil), v...)} }

// Kind returns the value's wire type.
func (v Value) Kind() Kind { return v.kind }

func (v Value) Bool() (bool, error) {
	if v.kind != KindBool {
		return false, typeMismatch(KindBool, v.kind)
	}
	return v.b, nil
}

func (v Value) Int32() (int32, error) {
	if v.kind != KindI32 {
		return 0, typeMismatch(KindI32, v.kind)
	}
	return int32(v.i64), nil
}

func (v Value) Uint32() (uint32, error) {
	if v.kind != KindU32 {
		return 0, typeMismatch(KindU32, v.kind)
	}
	return uint32(v.i64), nil
}

func (v Value) Int64() (int64, error) {
	if v.kind != KindI64 {
		return 0, typeMismatch(KindI64, v.kind)
	}
	return v.i64, nil
}

func (v Value) Uint64() (uint64, error) {
	if v.kind != KindU64 {
		return 0, typeMismatch(KindU64, v.kind)
	}
	return uint64(v.i64), nil
}

func (v Value) Float32() (float32, error) {
	if v.kind != KindF32 {
		return 0, typeMismatch(KindF32, v.kind)
	}
	return float32(v.f64), nil
}

func (v Value) Float64() (float64, error) {
	if v.kind != KindF64 {
		return 0, typeMismatch(KindF64, v.kind)
	}
	return v.f64, nil
}

func (v Value) String() string {
	switch v.kind {
	case KindBool:
		return fmt.Sprintf("Bool: %v", v.b)
	case KindI32:
		return fmt.Sprintf("I32: %d", int32(v.i64))
	case KindU32:
		return fmt.Sprintf("U32: %d", uint32(v.i64))
	case KindI64:
		return fmt.Sprintf("I64: %d", v.i64)
	case KindU64:
		return fmt.Sprintf("U64: %d", uint64(v.i64))
	case KindF32:
		return fmt.Sprintf("F32: %+.4e", float32(v.f64))
	case KindF64:
		return fmt.Sprintf("F64: %+.4e", v.f64)
	case KindString:
		return fmt.Sprintf("String: %s", v.s)
	case KindBlob:
		n := len(v.blob)
		shown := n
		if shown > 8 {
			shown = 8
		}
		out := "["
		for _, b := range v.blob[:shown] {
			out += fmt.Sprintf("%02X ", b)
		}
		if n > shown {
			out += fmt.Sprintf("... (%d bytes)", n)
		}
		return out + "]"
	default:
		return "unknown"
	}
}

// Text returns the value's plain string content: the string itself for
// KindString, or the String() display form (e.g. "I32: 5") for the other
// scalar kinds. This is not the JSON-RPC wire form, which MarshalJSON
// produces. A blob is a type mismatch.
func (v Value) Text() (string, error) {
	if v.kind == KindString {
		return v.s, nil
	}
	if v.kind == KindBlob {
		return "", typeMismatch(KindString, v.kind)
	}
	return v.String(), nil
}

func (v Value) Bytes() ([]byte, error) {
	if v.kind != KindBlob {
		return nil, typeMismatch(KindBlob, v.kind)
	}
	return append([]byte(nil), v.blob...), nil
}

// MarshalJSON renders the value per the wire rules spec.md §4.B: numbers
// and bools render natively, strings render natively, blobs render as
// base64.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindBool:
		if v.b {
			return []byte("true"), nil
		}
		return []byte("false"), nil
	case KindI32, KindI64:
		return []byte(fmt.Sprintf("%d", v.i64)), nil
	case KindU32, KindU64:
		return []byte(fmt.Sprintf("%d", uint64(v.i64))), nil
	case KindF32:
		return []byte(fmt.Sprintf("%g", float32(v.f64))), nil
	case KindF64:
		return []byte(fmt.Sprintf("%g", v.f64)), nil
	case KindString:
		return []byte(fmt.Sprintf("%q", v.s)), nil
	case KindBlob:
		return []byte(fmt.Sprintf("%q", base64.StdEncoding.EncodeToString(v.blob))), nil
	default:
		return nil, errors.New(ErrCodeSerializationError, "value has unknown kind")
	}
}

func typeMismatch(want, got Kind) error {
	return errors.New(ErrCodeTypeMismatch,
		fmt.Sprintf("expected %s, got %s", want, got)).
		WithContext("want", want.String()).
		WithContext("got", got.String())
}
