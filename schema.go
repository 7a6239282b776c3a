package themis

import (
	"fmt"

	"github.com/agilira/go-errors"
)

// ParamID is the dense, zero-based identifier schemagen assigns to a
// parameter in discovery order. Generated code exposes these as named
// constants; application code should never hardcode a numeric ID.
type ParamID uint32

// ValidationKind selects how a Descriptor's value is checked before a
// write is accepted.
type ValidationKind uint8

const (
	ValidationNone ValidationKind = iota
	ValidationRange
	ValidationAllowedValues
	ValidationCustomCallback
)

// Validation describes how a parameter's new value is checked on write,
// grounded on the original schema's ValidationMethod enum.
type Validation struct {
	Kind          ValidationKind
	Min, Max      float64  // ValidationRange
	AllowedValues []Value  // ValidationAllowedValues
}

// Descriptor is one compiled parameter: its identity, wire kind, default,
// and validation rule. schemagen emits one Descriptor per schema
// parameter, in a slice indexed by ParamID.
type Descriptor struct {
	ID         ParamID
	Group      string
	Name       string
	Title      string
	Comment    string
	Kind       Kind
	Default    Value
	Validation Validation
	IsConst    bool // write always rejected, regardless of validation
	Runtime    bool // excluded from save/restore snapshots
	Internal   bool // hidden from the JSON-RPC/REST surface (UI-only)
	ReadOnly   bool // JSON-RPC/REST surface rejects writes (UI-only)
	WriteOnly  bool // JSON-RPC/REST surface omits from read/notify (UI-only)

	// DefaultPath names a file holding this parameter's blob default,
	// for KindBlob parameters whose default is too large to inline into
	// generated Go source. Resolved lazily by store.Get on first read of
	// an unset parameter, then cached onto Default.
	DefaultPath string
}

// FullName is the "<group>.<name>" form used by the JSON-RPC/REST surface
// and by paramctl.
func (d Descriptor) FullName() string {
	return d.Group + "." + d.Name
}

// Validate checks v against d's validation rule. A const parameter always
// fails regardless of the value. ValidationCustomCallback accepts
// anything: the callback mechanism the original scheme hooks into
// arbitrary application code has no equivalent here, so we accept every
// value, per spec.md's explicit direction.
func (d Descriptor) Validate(v Value) error {
	if d.IsConst {
		return errors.New(ErrCodeConstParameter,
			fmt.Sprintf("parameter %q is const and cannot be written", d.FullName()))
	}
	if v.Kind() != d.Kind {
		return typeMismatch(d.Kind, v.Kind())
	}
	switch d.Validation.Kind {
	case ValidationNone, ValidationCustomCallback:
		return nil
	case ValidationRange:
		f, err := asFloat(v)
		if err != nil {
			return err
		}
		if f < d.Validation.Min || f > d.Validation.Max {
			return errors.New(ErrCodeOutOfRange,
				fmt.Sprintf("%q: %v outside [%v, %v]", d.FullName(), f, d.Validation.Min, d.Validation.Max)).
				WithContext("parameter", d.FullName())
		}
		return nil
	case ValidationAllowedValues:
		for _, allowed := range d.Validation.AllowedValues {
			if valuesEqual(v, allowed) {
				return nil
			}
		}
		return errors.New(ErrCodeNotAllowed,
			fmt.Sprintf("%q: value not among allowed values", d.FullName())).
			WithContext("parameter", d.FullName())
	default:
		return errors.New(ErrCodeInternal, "unknown validation kind")
	}
}

func asFloat(v Value) (float64, error) {
	switch v.Kind() {
	case KindI32:
		n, _ := v.Int32()
		return float64(n), nil
	case KindU32:
		n, _ := v.Uint32()
		return float64(n), nil
	case KindI64:
		n, _ := v.Int64()
		return float64(n), nil
	case KindU64:
		n, _ := v.Uint64()
		return float64(n), nil
	case KindF32:
		n, _ := v.Float32()
		return float64(n), nil
	case KindF64:
		return v.Float64()
	default:
		return 0, errors.New(ErrCodeTypeMismatch, "range validation requires a numeric kind")
	}
}

func valuesEqual(a, b Value) bool {
	if a.Kind() != b.Kind() {
		return false
	}
	switch a.Kind() {
	case KindBool:
		av, _ := a.Bool()
		bv, _ := b.Bool()
		return av == bv
	case KindI32:
		av, _ := a.Int32()
		bv, _ := b.Int32()
		return av == bv
	case KindU32:
		av, _ := a.Uint32()
		bv, _ := b.Uint32()
		return av == bv
	case KindI64:
		av, _ := a.Int64()
		bv, _ := b.Int64()
		return av == bv
	case KindU64:
		av, _ := a.Uint64()
		bv, _ := b.Uint64()
		return av == bv
	case KindF32:
		av, _ := a.Float32()
		bv, _ := b.Float32()
		return av == bv
	case KindF64:
		av, _ := a.Float64()
		bv, _ := b.Float64()
		return av == bv
	case KindString:
		at, _ := a.Text()
		bt, _ := b.Text()
		return at == bt
	case KindBlob:
		ab, _ := a.Bytes()
		bb, _ := b.Bytes()
		if len(ab) != len(bb) {
			return false
		}
		for i := range ab {
			if ab[i] != bb[i] {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// ByName builds a lookup of FullName -> *Descriptor over a generated
// descriptor table. schemagen's generated code calls this once at
// package init to give name-based lookups; its typed accessors address
// parameters by ParamID and do not use it.
func ByName(descs []Descriptor) map[string]*Descriptor {
	m := make(map[string]*Descriptor, len(descs))
	for i := range descs {
		m[descs[i].FullName()] = &descs[i]
	}
	return m
}
