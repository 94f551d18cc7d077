package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/fieldstore/plugins/rules"
)

// Scenario drives a store through a sequence of steps and checks the
// resulting field state.
type Scenario struct {
	// Name uniquely identifies this scenario. Golden files are named after it.
	Name string `yaml:"name"`

	// Description explains what this scenario exercises.
	Description string `yaml:"description"`

	// Schema is an optional CUE form schema (see rules.LoadSchema). Its fields
	// are registered first, in declaration order.
	Schema string `yaml:"schema,omitempty"`

	// Fields are registered after the schema fields, in order.
	Fields []FieldDef `yaml:"fields,omitempty"`

	// Subscriptions are created after registration.
	Subscriptions []SubscriptionDef `yaml:"subscriptions,omitempty"`

	// Watches are created after subscriptions.
	Watches []WatchDef `yaml:"watches,omitempty"`

	// Steps run in order. A final flush always follows the last step.
	Steps []Step `yaml:"steps"`

	// Expect is checked after the final flush.
	Expect Expect `yaml:"expect,omitempty"`
}

// FieldDef registers one field.
type FieldDef struct {
	Path    string           `yaml:"path"`
	Mode    string           `yaml:"mode,omitempty"`
	Initial *any             `yaml:"initial,omitempty"`
	Rules   []rules.RuleSpec `yaml:"rules,omitempty"`
}

// SubscriptionDef subscribes to one aspect of one field.
type SubscriptionDef struct {
	Name string `yaml:"name"`
	// Select is one of value, touched, dirty, error.
	Select string `yaml:"select"`
	Path   string `yaml:"path"`
}

// WatchDef watches a path pattern.
type WatchDef struct {
	Name    string `yaml:"name"`
	Pattern string `yaml:"pattern"`
}

// Step is one store operation. Exactly one operation field must be set.
type Step struct {
	Register     *FieldDef      `yaml:"register,omitempty"`
	Unregister   string         `yaml:"unregister,omitempty"`
	Touch        string         `yaml:"touch,omitempty"`
	Dirty        string         `yaml:"dirty,omitempty"`
	Set          *SetStep       `yaml:"set,omitempty"`
	Read         map[string]any `yaml:"read,omitempty"`
	Validate     string         `yaml:"validate,omitempty"`
	ValidateForm bool           `yaml:"validate_form,omitempty"`
	Flush        bool           `yaml:"flush,omitempty"`

	// Result, on validate and validate_form steps, is the expected outcome.
	Result *ResultExpect `yaml:"result,omitempty"`
}

// SetStep sets a controlled value.
type SetStep struct {
	Path  string `yaml:"path"`
	Value any    `yaml:"value"`
}

// ResultExpect is an expected validation outcome.
type ResultExpect struct {
	OK      bool   `yaml:"ok"`
	Message string `yaml:"message,omitempty"`
}

// Expect holds the end-of-scenario expectations.
type Expect struct {
	Fields []FieldExpect `yaml:"fields,omitempty"`

	// Deliveries maps subscription and watch names to the number of
	// callbacks they received, including the initial subscribe delivery.
	Deliveries map[string]int `yaml:"deliveries,omitempty"`
}

// FieldExpect checks one field. Unset properties are not checked.
type FieldExpect struct {
	Path       string  `yaml:"path"`
	Registered *bool   `yaml:"registered,omitempty"`
	Value      *any    `yaml:"value,omitempty"`
	Touched    *bool   `yaml:"touched,omitempty"`
	Dirty      *bool   `yaml:"dirty,omitempty"`
	Error      *string `yaml:"error,omitempty"`
}

// Step kinds.
const (
	StepRegister     = "register"
	StepUnregister   = "unregister"
	StepTouch        = "touch"
	StepDirty        = "dirty"
	StepSet          = "set"
	StepRead         = "read"
	StepValidate     = "validate"
	StepValidateForm = "validate_form"
	StepFlush        = "flush"
)

// Selector kinds.
const (
	SelectValue   = "value"
	SelectTouched = "touched"
	SelectDirty   = "dirty"
	SelectError   = "error"
)

// Kinds lists the operations set on the step.
func (s Step) Kinds() []string {
	var kinds []string
	if s.Register != nil {
		kinds = append(kinds, StepRegister)
	}
	if s.Unregister != "" {
		kinds = append(kinds, StepUnregister)
	}
	if s.Touch != "" {
		kinds = append(kinds, StepTouch)
	}
	if s.Dirty != "" {
		kinds = append(kinds, StepDirty)
	}
	if s.Set != nil {
		kinds = append(kinds, StepSet)
	}
	if s.Read != nil {
		kinds = append(kinds, StepRead)
	}
	if s.Validate != "" {
		kinds = append(kinds, StepValidate)
	}
	if s.ValidateForm {
		kinds = append(kinds, StepValidateForm)
	}
	if s.Flush {
		kinds = append(kinds, StepFlush)
	}
	return kinds
}

// Kind returns the step's single operation, or "" if it has none or several.
func (s Step) Kind() string {
	if kinds := s.Kinds(); len(kinds) == 1 {
		return kinds[0]
	}
	return ""
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or fails validation.
// A relative schema path is resolved against the scenario's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data, filepath.Dir(path))
}

// ParseScenario parses scenario YAML. basePath resolves a relative schema
// path; pass "" to leave it as is.
func ParseScenario(data []byte, basePath string) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Schema != "" && !filepath.IsAbs(scenario.Schema) && basePath != "" {
		scenario.Schema = filepath.Join(basePath, scenario.Schema)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if s.Schema != "" {
		if _, err := os.Stat(s.Schema); os.IsNotExist(err) {
			return fmt.Errorf("schema file not found: %s", s.Schema)
		}
	}

	for i, f := range s.Fields {
		if err := validateField(fmt.Sprintf("fields[%d]", i), f); err != nil {
			return err
		}
	}

	names := make(map[string]bool)
	for i, sub := range s.Subscriptions {
		if sub.Name == "" || sub.Path == "" {
			return fmt.Errorf("subscriptions[%d]: name and path are required", i)
		}
		switch sub.Select {
		case SelectValue, SelectTouched, SelectDirty, SelectError:
		default:
			return fmt.Errorf("subscriptions[%d]: unknown select %q", i, sub.Select)
		}
		if names[sub.Name] {
			return fmt.Errorf("subscriptions[%d]: duplicate name %q", i, sub.Name)
		}
		names[sub.Name] = true
	}
	for i, w := range s.Watches {
		if w.Name == "" || w.Pattern == "" {
			return fmt.Errorf("watches[%d]: name and pattern are required", i)
		}
		if names[w.Name] {
			return fmt.Errorf("watches[%d]: duplicate name %q", i, w.Name)
		}
		names[w.Name] = true
	}

	for i, step := range s.Steps {
		kinds := step.Kinds()
		switch len(kinds) {
		case 0:
			return fmt.Errorf("steps[%d]: no operation", i)
		case 1:
		default:
			return fmt.Errorf("steps[%d]: several operations %v", i, kinds)
		}
		if step.Register != nil {
			if err := validateField(fmt.Sprintf("steps[%d].register", i), *step.Register); err != nil {
				return err
			}
		}
		if step.Set != nil && step.Set.Path == "" {
			return fmt.Errorf("steps[%d].set: path is required", i)
		}
		if step.Result != nil && kinds[0] != StepValidate && kinds[0] != StepValidateForm {
			return fmt.Errorf("steps[%d]: result is only allowed on validate steps", i)
		}
	}

	for i, fe := range s.Expect.Fields {
		if fe.Path == "" {
			return fmt.Errorf("expect.fields[%d]: path is required", i)
		}
	}
	for name := range s.Expect.Deliveries {
		if !names[name] {
			return fmt.Errorf("expect.deliveries: unknown subscription or watch %q", name)
		}
	}
	return nil
}

func validateField(where string, f FieldDef) error {
	if f.Path == "" {
		return fmt.Errorf("%s: path is required", where)
	}
	switch f.Mode {
	case "", "default", "controlled", "uncontrolled":
	default:
		return fmt.Errorf("%s: unknown mode %q", where, f.Mode)
	}
	for j, r := range f.Rules {
		if (r.CUE == "") == (r.Expr == "") {
			return fmt.Errorf("%s.rules[%d]: exactly one of cue or expr is required", where, j)
		}
	}
	return nil
}
