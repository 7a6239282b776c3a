package schemagen

import (
	"github.com/agilira/go-errors"

	"github.com/agilira/themis"
)

// ToDescriptors converts a compiled Schema directly into the runtime
// []themis.Descriptor table an Instance opens with. cmd/paramd uses this
// to run off a YAML schema with no build-time codegen step; the
// generated Go accessor package (GenerateGo) is the alternative for
// applications that want compile-time-checked, typed accessors instead.
func (s *Schema) ToDescriptors() ([]themis.Descriptor, error) {
	kindByName := map[string]themis.Kind{
		"KindBool":   themis.KindBool,
		"KindI32":    themis.KindI32,
		"KindU32":    themis.KindU32,
		"KindI64":    themis.KindI64,
		"KindU64":    themis.KindU64,
		"KindF32":    themis.KindF32,
		"KindF64":    themis.KindF64,
		"KindString": themis.KindString,
		"KindBlob":   themis.KindBlob,
	}

	descs := make([]themis.Descriptor, 0, len(s.Parameters))
	for _, p := range s.Parameters {
		kind, ok := kindByName[p.Kind]
		if !ok {
			return nil, errors.New(ErrCodeSchemaKind, "unknown kind "+p.Kind)
		}

		var def themis.Value
		if kind != themis.KindBlob {
			v, err := valueFromRaw(kind, p.DefaultRaw)
			if err != nil {
				return nil, err
			}
			def = v
		} else {
			def = themis.BlobValue(nil)
		}

		validation, err := validationFromCompiled(kind, p.Validation)
		if err != nil {
			return nil, err
		}

		descs = append(descs, themis.Descriptor{
			ID:          themis.ParamID(p.ID),
			Group:       p.Group,
			Name:        p.Name,
			Title:       p.Title,
			Comment:     p.Comment,
			Kind:        kind,
			Default:     def,
			Validation:  validation,
			IsConst:     p.IsConst,
			Runtime:     p.Runtime,
			Internal:    p.Internal,
			ReadOnly:    p.ReadOnly,
			WriteOnly:   p.WriteOnly,
			DefaultPath: p.DefaultPath,
		})
	}
	return descs, nil
}

func validationFromCompiled(kind themis.Kind, v Validation) (themis.Validation, error) {
	switch v.Kind {
	case "ValidationNone", "":
		return themis.Validation{Kind: themis.ValidationNone}, nil
	case "ValidationRange":
		return themis.Validation{Kind: themis.ValidationRange, Min: v.Min, Max: v.Max}, nil
	case "ValidationAllowedValues":
		allowed := make([]themis.Value, 0, len(v.AllowedRaw))
		for _, raw := range v.AllowedRaw {
			val, err := valueFromRaw(kind, raw)
			if err != nil {
				return themis.Validation{}, err
			}
			allowed = append(allowed, val)
		}
		return themis.Validation{Kind: themis.ValidationAllowedValues, AllowedValues: allowed}, nil
	case "ValidationCustomCallback":
		return themis.Validation{Kind: themis.ValidationCustomCallback}, nil
	default:
		return themis.Validation{}, errors.New(ErrCodeSchemaValidate, "unknown compiled validation kind "+v.Kind)
	}
}

// valueFromRaw builds a themis.Value of kind from a YAML-decoded scalar,
// the runtime counterpart of valueLiteral's Go-source rendering.
func valueFromRaw(kind themis.Kind, raw interface{}) (themis.Value, error) {
	switch kind {
	case themis.KindBool:
		b, ok := raw.(bool)
		if !ok {
			return themis.Value{}, errors.New(ErrCodeSchemaDefault, "expected a bool")
		}
		return themis.BoolValue(b), nil
	case themis.KindI32:
		n, err := asInt(raw)
		if err != nil {
			return themis.Value{}, err
		}
		return themis.I32Value(int32(n)), nil
	case themis.KindU32:
		n, err := asInt(raw)
		if err != nil {
			return themis.Value{}, err
		}
		return themis.U32Value(uint32(n)), nil
	case themis.KindI64:
		n, err := asInt(raw)
		if err != nil {
			return themis.Value{}, err
		}
		return themis.I64Value(n), nil
	case themis.KindU64:
		n, err := asInt(raw)
		if err != nil {
			return themis.Value{}, err
		}
		return themis.U64Value(uint64(n)), nil
	case themis.KindF32:
		f, err := asFloat(raw)
		if err != nil {
			return themis.Value{}, err
		}
		return themis.F32Value(float32(f)), nil
	case themis.KindF64:
		f, err := asFloat(raw)
		if err != nil {
			return themis.Value{}, err
		}
		return themis.F64Value(f), nil
	case themis.KindString:
		s, ok := raw.(string)
		if !ok {
			return themis.Value{}, errors.New(ErrCodeSchemaDefault, "expected a string")
		}
		return themis.StringValue(s), nil
	default:
		return themis.Value{}, errors.New(ErrCodeSchemaKind, "kind does not take an inline default")
	}
}
