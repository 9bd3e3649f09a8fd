package cassync

import (
	"errors"
	"fmt"
	"maps"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Params are request parameters keyed by field name.
type Params map[string]any

// Field declares one params field.
//
// Rule is an optional expr-lang expression that must evaluate to true for
// the field to be valid. It sees the field as `value` and the raw params as
// `params`, e.g. `value != "" && len(value) <= 64`.
type Field struct {
	Name     string
	Required bool
	Default  any // used when the field is absent or nil
	Rule     string
}

var errMissing = errors.New("required")

type compiledField struct {
	Field
	program *vm.Program
}

// Schema validates params before they are turned into a key.
type Schema struct {
	fields []compiledField
}

// NewSchema compiles the rules of fields. Field names must be unique.
func NewSchema(fields ...Field) (*Schema, error) {
	s := &Schema{fields: make([]compiledField, 0, len(fields))}
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if f.Name == "" {
			return nil, fmt.Errorf("cassync: schema field name is required")
		}
		if _, dup := seen[f.Name]; dup {
			return nil, fmt.Errorf("cassync: duplicate schema field %q", f.Name)
		}
		seen[f.Name] = struct{}{}

		cf := compiledField{Field: f}
		if f.Rule != "" {
			program, err := expr.Compile(f.Rule,
				expr.Env(map[string]any{}),
				expr.AllowUndefinedVariables(),
			)
			if err != nil {
				return nil, fmt.Errorf("cassync: compile rule for %q: %w", f.Name, err)
			}
			cf.program = program
		}
		s.fields = append(s.fields, cf)
	}
	return s, nil
}

// MustSchema is like NewSchema but panics on error. Handy for package-level
// schema variables.
func MustSchema(fields ...Field) *Schema {
	s, err := NewSchema(fields...)
	if err != nil {
		panic(err)
	}
	return s
}

// Validate returns a copy of p holding only declared fields, with defaults
// applied. Any failing field makes the whole call fail with *ValidationError.
func (s *Schema) Validate(p Params) (Params, error) {
	if s == nil {
		return maps.Clone(p), nil
	}
	out := make(Params, len(s.fields))
	var bad map[string]error
	for _, f := range s.fields {
		v, err := f.resolve(p)
		if err != nil {
			if bad == nil {
				bad = make(map[string]error)
			}
			bad[f.Name] = err
			continue
		}
		if v != nil {
			out[f.Name] = v
		}
	}
	if bad != nil {
		return nil, &ValidationError{Fields: bad}
	}
	return out, nil
}

// Lenient is Validate without failure: every field that does not validate
// becomes Wildcard. Optional fields that are simply absent stay absent.
func (s *Schema) Lenient(p Params) Params {
	if s == nil {
		return maps.Clone(p)
	}
	out := make(Params, len(s.fields))
	for _, f := range s.fields {
		v, err := f.resolve(p)
		switch {
		case err != nil:
			out[f.Name] = Wildcard
		case v != nil:
			out[f.Name] = v
		}
	}
	return out
}

func (f compiledField) resolve(p Params) (any, error) {
	v := p[f.Name]
	if v == nil {
		if f.Default != nil {
			return f.Default, nil
		}
		if f.Required {
			return nil, errMissing
		}
		return nil, nil
	}
	if f.program == nil {
		return v, nil
	}
	res, err := expr.Run(f.program, map[string]any{"value": v, "params": map[string]any(p)})
	if err != nil {
		return nil, fmt.Errorf("rule %q: %w", f.Rule, err)
	}
	if ok, _ := res.(bool); !ok {
		return nil, fmt.Errorf("rule %q not satisfied", f.Rule)
	}
	return v, nil
}
