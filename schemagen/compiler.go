// Package schemagen compiles a YAML parameter schema into Go source and a
// C header, playing the role spec.md assigns the build-time schema
// compiler (component A).
//
// Grounded on _examples/original_source/econfmanager/src/schema.rs (the
// Parameter/Group/ValidationMethod model this mirrors) and on
// econfmanager/build/file_generator.rs (the build-time codegen step
// build.rs invokes) -- re-expressed against a self-contained YAML IDL
// instead of a protobuf descriptor pool, since driving an external protoc
// toolchain is explicitly out of scope.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0
package schemagen

import (
	"fmt"
	"strings"

	"github.com/agilira/go-errors"
	"go.yaml.in/yaml/v3"
)

// Error codes for schema compilation failures, following the same
// ErrCode*/go-errors convention the rest of themis uses.
const (
	ErrCodeSchemaParse    = "SCHEMAGEN_PARSE_ERROR"
	ErrCodeSchemaInvalid  = "SCHEMAGEN_INVALID_SCHEMA"
	ErrCodeSchemaDefault  = "SCHEMAGEN_MISSING_DEFAULT"
	ErrCodeSchemaKind     = "SCHEMAGEN_UNKNOWN_KIND"
	ErrCodeSchemaValidate = "SCHEMAGEN_BAD_VALIDATION"
)

// document is the raw YAML shape, exactly the IDL spec.md §4.A
// concretises: a root version plus a list of groups, each carrying a list
// of parameters. Unknown YAML keys are ignored by yaml.Unmarshal's
// default decode behavior, mirroring "unknown option annotations are
// ignored".
type document struct {
	Version int            `yaml:"version"`
	Groups  []groupDocument `yaml:"groups"`
}

type groupDocument struct {
	Name       string              `yaml:"name"`
	Title      string              `yaml:"title"`
	Comment    string              `yaml:"comment"`
	Parameters []parameterDocument `yaml:"parameters"`
}

type parameterDocument struct {
	Name        string              `yaml:"name"`
	Title       string              `yaml:"title"`
	Comment     string              `yaml:"comment"`
	Kind        string              `yaml:"kind"`
	Default     interface{}         `yaml:"default"`
	DefaultPath string              `yaml:"default_path"`
	Validation  *validationDocument `yaml:"validation"`
	Const       bool                `yaml:"const"`
	Runtime     bool                `yaml:"runtime"`
	Internal    bool                `yaml:"internal"`
	ReadOnly    bool                `yaml:"readonly"`
	WriteOnly   bool                `yaml:"writeonly"`
}

type validationDocument struct {
	Type   string        `yaml:"type"` // range | allowed_values | custom_callback
	Min    *float64      `yaml:"min"`
	Max    *float64      `yaml:"max"`
	Values []interface{} `yaml:"values"`
}

// Parameter is one compiled, ID-assigned schema entry, ready for codegen.
// ID is the parameter's position in discovery order across every group,
// exactly spec.md's "dense, zero-based" assignment rule.
type Parameter struct {
	ID          uint32
	Group       string
	Name        string
	Title       string
	Comment     string
	Kind        string // themis.Kind constant name, e.g. "KindI32"
	GoType      string // accessor parameter/return Go type, e.g. "int32"
	Default     string // Go source literal constructing the default themis.Value
	DefaultRaw  interface{} // the same default, as the YAML-decoded scalar -- for ToDescriptors
	DefaultPath string
	Validation  Validation
	IsConst     bool
	Runtime     bool
	Internal    bool
	ReadOnly    bool
	WriteOnly   bool
}

// IDName is the dense enum constant name schemagen emits for this
// parameter, "<GROUP>_<NAME>" upper-cased, mirroring
// get_parameter_name_for_enum in the original build step.
func (p Parameter) IDName() string {
	return strings.ToUpper(p.Group) + "_" + strings.ToUpper(p.Name)
}

// AccessorSuffix is the "<Group><Name>" CamelCase fragment schemagen
// appends to Get/Set to build the typed accessor pair's names.
func (p Parameter) AccessorSuffix() string {
	return exportedCamel(p.Group) + exportedCamel(p.Name)
}

func exportedCamel(s string) string {
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == '_' || r == '-' })
	var b strings.Builder
	for _, part := range parts {
		if part == "" {
			continue
		}
		b.WriteString(strings.ToUpper(part[:1]))
		b.WriteString(part[1:])
	}
	return b.String()
}

// Validation is a compiled Validation, in the same shape schema.go's
// themis.Validation expects.
type Validation struct {
	Kind            string // themis.ValidationKind constant name
	Min, Max        float64
	AllowedLiterals []string      // Go source literals for the allowed themis.Value set
	AllowedRaw      []interface{} // the same values, as YAML-decoded scalars
}

// Schema is the fully compiled document: a declared version plus the
// dense parameter table.
type Schema struct {
	Version    int
	Parameters []Parameter
}

var kindTable = map[string]struct {
	themisKind string
	goType     string
}{
	"bool":   {"KindBool", "bool"},
	"int32":  {"KindI32", "int32"},
	"uint32": {"KindU32", "uint32"},
	"int64":  {"KindI64", "int64"},
	"uint64": {"KindU64", "uint64"},
	"float32": {"KindF32", "float32"},
	"float64": {"KindF64", "float64"},
	"string": {"KindString", "string"},
	"blob":   {"KindBlob", "[]byte"},
}

// Compile parses a YAML schema document and produces a Schema ready for
// GenerateGo/GenerateCHeader, or an error naming the first problem found.
func Compile(data []byte) (*Schema, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, ErrCodeSchemaParse, "failed to parse schema YAML")
	}
	if doc.Version <= 0 {
		return nil, errors.New(ErrCodeSchemaInvalid, "schema document requires a positive version")
	}
	if len(doc.Groups) == 0 {
		return nil, errors.New(ErrCodeSchemaInvalid, "schema document has no groups")
	}

	schema := &Schema{Version: doc.Version}
	var id uint32
	seen := make(map[string]bool)

	for _, g := range doc.Groups {
		if g.Name == "" {
			return nil, errors.New(ErrCodeSchemaInvalid, "group is missing a name")
		}
		for _, p := range g.Parameters {
			param, err := compileParameter(g, p, id)
			if err != nil {
				return nil, err
			}
			if seen[param.Group+"."+param.Name] {
				return nil, errors.New(ErrCodeSchemaInvalid,
					fmt.Sprintf("duplicate parameter %q", param.Group+"."+param.Name))
			}
			seen[param.Group+"."+param.Name] = true
			schema.Parameters = append(schema.Parameters, param)
			id++
		}
	}
	if len(schema.Parameters) == 0 {
		return nil, errors.New(ErrCodeSchemaInvalid, "schema document declares no parameters")
	}
	return schema, nil
}

func compileParameter(g groupDocument, p parameterDocument, id uint32) (Parameter, error) {
	if p.Name == "" {
		return Parameter{}, errors.New(ErrCodeSchemaInvalid,
			fmt.Sprintf("group %q has a parameter with no name", g.Name))
	}
	kindInfo, ok := kindTable[strings.ToLower(p.Kind)]
	if !ok {
		return Parameter{}, errors.New(ErrCodeSchemaKind,
			fmt.Sprintf("%s.%s: unknown kind %q", g.Name, p.Name, p.Kind))
	}

	param := Parameter{
		ID:        id,
		Group:     g.Name,
		Name:      p.Name,
		Title:     p.Title,
		Comment:   p.Comment,
		Kind:      kindInfo.themisKind,
		GoType:    kindInfo.goType,
		IsConst:   p.Const,
		Runtime:   p.Runtime,
		Internal:  p.Internal,
		ReadOnly:  p.ReadOnly,
		WriteOnly: p.WriteOnly,
	}

	if kindInfo.themisKind == "KindBlob" && p.Default == nil {
		if p.DefaultPath == "" {
			return Parameter{}, errors.New(ErrCodeSchemaDefault,
				fmt.Sprintf("%s.%s: blob parameter requires default or default_path", g.Name, p.Name))
		}
		param.DefaultPath = p.DefaultPath
		param.Default = "themis.BlobValue(nil)"
	} else {
		if p.Default == nil {
			return Parameter{}, errors.New(ErrCodeSchemaDefault,
				fmt.Sprintf("%s.%s: missing default", g.Name, p.Name))
		}
		lit, err := valueLiteral(kindInfo.themisKind, p.Default)
		if err != nil {
			return Parameter{}, errors.Wrap(err, ErrCodeSchemaDefault,
				fmt.Sprintf("%s.%s: invalid default", g.Name, p.Name))
		}
		param.Default = lit
		param.DefaultRaw = p.Default
	}

	v, err := compileValidation(g, p, kindInfo.themisKind)
	if err != nil {
		return Parameter{}, err
	}
	param.Validation = v
	return param, nil
}

func compileValidation(g groupDocument, p parameterDocument, kind string) (Validation, error) {
	if p.Validation == nil {
		return Validation{Kind: "ValidationNone"}, nil
	}
	switch strings.ToLower(p.Validation.Type) {
	case "", "none":
		return Validation{Kind: "ValidationNone"}, nil
	case "range":
		if p.Validation.Min == nil || p.Validation.Max == nil {
			return Validation{}, errors.New(ErrCodeSchemaValidate,
				fmt.Sprintf("%s.%s: range validation requires min and max", g.Name, p.Name))
		}
		return Validation{Kind: "ValidationRange", Min: *p.Validation.Min, Max: *p.Validation.Max}, nil
	case "allowed_values":
		if len(p.Validation.Values) == 0 {
			return Validation{}, errors.New(ErrCodeSchemaValidate,
				fmt.Sprintf("%s.%s: allowed_values validation requires at least one value", g.Name, p.Name))
		}
		var literals []string
		for _, raw := range p.Validation.Values {
			lit, err := valueLiteral(kind, raw)
			if err != nil {
				return Validation{}, errors.Wrap(err, ErrCodeSchemaValidate,
					fmt.Sprintf("%s.%s: invalid allowed value", g.Name, p.Name))
			}
			literals = append(literals, lit)
		}
		return Validation{Kind: "ValidationAllowedValues", AllowedLiterals: literals, AllowedRaw: p.Validation.Values}, nil
	case "custom_callback":
		return Validation{Kind: "ValidationCustomCallback"}, nil
	default:
		return Validation{}, errors.New(ErrCodeSchemaValidate,
			fmt.Sprintf("%s.%s: unknown validation type %q", g.Name, p.Name, p.Validation.Type))
	}
}

// valueLiteral renders a YAML-decoded scalar as the Go source that
// constructs the matching themis.Value constructor call.
func valueLiteral(kind string, raw interface{}) (string, error) {
	switch kind {
	case "KindBool":
		b, ok := raw.(bool)
		if !ok {
			return "", errors.New(ErrCodeSchemaDefault, "expected a bool")
		}
		return fmt.Sprintf("themis.BoolValue(%v)", b), nil
	case "KindI32":
		n, err := asInt(raw)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("themis.I32Value(%d)", n), nil
	case "KindU32":
		n, err := asInt(raw)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("themis.U32Value(%d)", n), nil
	case "KindI64":
		n, err := asInt(raw)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("themis.I64Value(%d)", n), nil
	case "KindU64":
		n, err := asInt(raw)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("themis.U64Value(%d)", n), nil
	case "KindF32":
		f, err := asFloat(raw)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("themis.F32Value(%v)", f), nil
	case "KindF64":
		f, err := asFloat(raw)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("themis.F64Value(%v)", f), nil
	case "KindString":
		s, ok := raw.(string)
		if !ok {
			return "", errors.New(ErrCodeSchemaDefault, "expected a string")
		}
		return fmt.Sprintf("themis.StringValue(%q)", s), nil
	default:
		return "", errors.New(ErrCodeSchemaKind, "kind does not take an inline default")
	}
}

func asInt(raw interface{}) (int64, error) {
	switch n := raw.(type) {
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	case float64:
		return int64(n), nil
	default:
		return 0, errors.New(ErrCodeSchemaDefault, "expected a number")
	}
}

func asFloat(raw interface{}) (float64, error) {
	switch n := raw.(type) {
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case float64:
		return n, nil
	default:
		return 0, errors.New(ErrCodeSchemaDefault, "expected a number")
	}
}
