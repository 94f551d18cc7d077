package rules

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/fieldstore/store"
)

// RuleSpec declares one rule. Exactly one of CUE and Expr must be set.
type RuleSpec struct {
	Name    string `yaml:"name" json:"name"`
	CUE     string `yaml:"cue,omitempty" json:"cue,omitempty"`
	Expr    string `yaml:"expr,omitempty" json:"expr,omitempty"`
	Message string `yaml:"message,omitempty" json:"message,omitempty"`
}

// Build compiles the rule into a validator.
func (r RuleSpec) Build() (*store.Validator, error) {
	switch {
	case r.CUE != "" && r.Expr != "":
		return nil, &RuleError{Rule: r.Name, Lang: LangCUE, Err: fmt.Errorf("rule sets both cue and expr")}
	case r.CUE != "":
		return CUE(r.Name, r.CUE, r.Message)
	case r.Expr != "":
		return Expr(r.Name, r.Expr, r.Message)
	default:
		return nil, &RuleError{Rule: r.Name, Lang: LangExpr, Err: fmt.Errorf("rule sets neither cue nor expr")}
	}
}

// BuildAll compiles rules in order.
func BuildAll(specs []RuleSpec) ([]*store.Validator, error) {
	out := make([]*store.Validator, 0, len(specs))
	for _, r := range specs {
		v, err := r.Build()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// FieldSpec is one field of a form schema.
type FieldSpec struct {
	Path       string
	Mode       store.Mode
	Initial    any
	HasInitial bool
	Rules      []RuleSpec
}

// Options returns the Register options for the field (rules excluded).
func (f FieldSpec) Options() []store.FieldOption {
	opts := []store.FieldOption{store.WithMode(f.Mode)}
	if f.HasInitial {
		opts = append(opts, store.WithInitialValue(f.Initial))
	}
	return opts
}

// Schema is a form description: fields in declaration order.
type Schema struct {
	Fields []FieldSpec
}

// LoadSchema compiles CUE source of the form:
//
//	fields: {
//	    "user.email": {
//	        mode:    "controlled"
//	        initial: ""
//	        rules: [
//	            {name: "required", expr: "value != \"\"", message: "required"},
//	            {name: "format", cue: "=~\"@\"", message: "must contain @"},
//	        ]
//	    }
//	}
func LoadSchema(filename string, src []byte) (*Schema, error) {
	ctx := cuecontext.New()
	return CompileSchema(ctx.CompileBytes(src, cue.Filename(filename)))
}

// CompileSchema parses a CUE value into a Schema.
func CompileSchema(v cue.Value) (*Schema, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	fieldsVal := v.LookupPath(cue.ParsePath("fields"))
	if !fieldsVal.Exists() {
		return nil, &SchemaError{Field: "fields", Message: "fields is required", Pos: v.Pos()}
	}
	iter, err := fieldsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	schema := &Schema{}
	for iter.Next() {
		f, err := parseField(iter.Selector().Unquoted(), iter.Value())
		if err != nil {
			return nil, err
		}
		schema.Fields = append(schema.Fields, f)
	}
	return schema, nil
}

func parseField(path string, v cue.Value) (FieldSpec, error) {
	f := FieldSpec{Path: path}

	if modeVal := v.LookupPath(cue.ParsePath("mode")); modeVal.Exists() {
		name, err := modeVal.String()
		if err != nil {
			return f, formatCUEError(err)
		}
		f.Mode = store.ParseMode(name)
		if f.Mode == store.ModeDefault && name != "" && name != "default" {
			return f, &SchemaError{
				Field:   "fields." + path + ".mode",
				Message: fmt.Sprintf("unknown mode %q", name),
				Pos:     modeVal.Pos(),
			}
		}
	}

	if initVal := v.LookupPath(cue.ParsePath("initial")); initVal.Exists() {
		var initial any
		if err := initVal.Decode(&initial); err != nil {
			return f, formatCUEError(err)
		}
		f.Initial = initial
		f.HasInitial = true
	}

	if rulesVal := v.LookupPath(cue.ParsePath("rules")); rulesVal.Exists() {
		list, err := rulesVal.List()
		if err != nil {
			return f, formatCUEError(err)
		}
		for list.Next() {
			var r RuleSpec
			rv := list.Value()
			if err := rv.Decode(&r); err != nil {
				return f, formatCUEError(err)
			}
			if r.Name == "" {
				r.Name = fmt.Sprintf("%s#%d", path, len(f.Rules))
			}
			if (r.CUE == "") == (r.Expr == "") {
				return f, &SchemaError{
					Field:   "fields." + path + ".rules",
					Message: "each rule needs exactly one of cue or expr",
					Pos:     rv.Pos(),
				}
			}
			f.Rules = append(f.Rules, r)
		}
	}
	return f, nil
}

// Bindings compiles every field's rules, keyed by path, for Plugin.
func (s *Schema) Bindings() (map[string][]*store.Validator, error) {
	out := make(map[string][]*store.Validator, len(s.Fields))
	for _, f := range s.Fields {
		if len(f.Rules) == 0 {
			continue
		}
		vs, err := BuildAll(f.Rules)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Path, err)
		}
		out[f.Path] = vs
	}
	return out, nil
}

// Register registers every field of the schema on s, in declaration order,
// and returns a function that unregisters them all.
func (s *Schema) Register(st *store.Store) func() {
	unregisters := make([]func() bool, 0, len(s.Fields))
	for _, f := range s.Fields {
		unregisters = append(unregisters, st.Register(f.Path, f.Options()...))
	}
	return func() {
		for _, u := range unregisters {
			u()
		}
	}
}
