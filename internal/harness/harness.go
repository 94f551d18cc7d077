package harness

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/roach88/fieldstore/internal/testutil"
	"github.com/roach88/fieldstore/plugins/rules"
	"github.com/roach88/fieldstore/store"
)

// DefaultSettleTimeout bounds how long a validate step waits for
// asynchronous validators.
const DefaultSettleTimeout = 5 * time.Second

// Option configures Run.
type Option func(*runConfig)

type runConfig struct {
	logger  *slog.Logger
	plugins []store.Plugin
	timeout time.Duration
}

// WithLogger sets the store logger. Default: discard.
func WithLogger(logger *slog.Logger) Option {
	return func(c *runConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithPlugins installs extra store plugins after the harness's own.
func WithPlugins(plugins ...store.Plugin) Option {
	return func(c *runConfig) {
		c.plugins = append(c.plugins, plugins...)
	}
}

// WithSettleTimeout overrides DefaultSettleTimeout.
func WithSettleTimeout(d time.Duration) Option {
	return func(c *runConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// runner executes one scenario against one store.
type runner struct {
	mu     sync.Mutex
	cfg    runConfig
	store  *store.Store
	sched  *store.ManualScheduler
	result *Result
	step   int
	unregs map[string]func() bool
}

// Run executes a scenario and returns the result.
//
// Each scenario runs on a fresh store with a manual scheduler and a step
// clock, so the same scenario always produces the same trace. Notifications
// are delivered only at flush steps and after the last step.
//
// Execution flow:
//  1. Compile schema and field rules
//  2. Register fields, then subscribe and watch
//  3. Execute steps
//  4. Flush, snapshot field state and check expectations
//
// An error is returned when the scenario cannot run (bad rules, unreadable
// schema, a validation that never settles, a failing store cleanup).
// Expectation failures are reported in Result.Errors instead.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	cfg := runConfig{
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		timeout: DefaultSettleTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	setup, bindings, err := compileSetup(scenario)
	if err != nil {
		return nil, err
	}

	r := &runner{
		cfg:    cfg,
		sched:  store.NewManualScheduler(),
		result: NewResult(),
		unregs: make(map[string]func() bool),
	}
	clock := testutil.NewStepClock(testutil.DefaultBase, 0)
	plugins := append([]store.Plugin{
		rules.Plugin("scenario-rules", bindings),
		r.tracePlugin(),
	}, cfg.plugins...)
	r.store = store.New(
		store.WithScheduler(r.sched),
		store.WithNow(clock.Now),
		store.WithLogger(cfg.logger),
		store.WithPlugins(plugins...),
	)

	for _, f := range setup {
		r.unregs[f.Path] = r.store.Register(f.Path, f.Options()...)
	}
	for _, sub := range scenario.Subscriptions {
		r.subscribe(sub)
	}
	for _, w := range scenario.Watches {
		r.watch(w)
	}

	for i, step := range scenario.Steps {
		r.setStep(i + 1)
		if err := r.exec(step); err != nil {
			_ = r.store.Destroy()
			return nil, fmt.Errorf("step %d (%s): %w", i+1, step.Kind(), err)
		}
	}

	r.setStep(len(scenario.Steps) + 1)
	r.flush()
	r.snapshot()
	for _, msg := range CheckExpectations(scenario.Expect, r.result) {
		r.result.AddError(msg)
	}

	if err := r.store.Destroy(); err != nil {
		return nil, fmt.Errorf("destroy store: %w", err)
	}
	return r.result, nil
}

// compileSetup merges schema fields and scenario fields into registration
// order and compiles their rules.
func compileSetup(scenario *Scenario) ([]rules.FieldSpec, map[string][]*store.Validator, error) {
	var specs []rules.FieldSpec
	if scenario.Schema != "" {
		data, err := os.ReadFile(scenario.Schema)
		if err != nil {
			return nil, nil, fmt.Errorf("read schema: %w", err)
		}
		schema, err := rules.LoadSchema(scenario.Schema, data)
		if err != nil {
			return nil, nil, fmt.Errorf("load schema: %w", err)
		}
		specs = append(specs, schema.Fields...)
	}
	for _, f := range scenario.Fields {
		specs = append(specs, f.fieldSpec())
	}

	bindings, err := (&rules.Schema{Fields: specs}).Bindings()
	if err != nil {
		return nil, nil, fmt.Errorf("compile rules: %w", err)
	}
	return specs, bindings, nil
}

func (f FieldDef) fieldSpec() rules.FieldSpec {
	spec := rules.FieldSpec{
		Path:  f.Path,
		Mode:  store.ParseMode(f.Mode),
		Rules: f.Rules,
	}
	if f.Initial != nil {
		spec.Initial = *f.Initial
		spec.HasInitial = true
	}
	return spec
}

// tracePlugin records commits and applied validations.
func (r *runner) tracePlugin() store.Plugin {
	return store.Plugin{
		Name: "harness-trace",
		Setup: func(pc *store.PluginContext) store.Cleanup {
			pc.On(store.EventCommit, func(ev store.Event) store.Cleanup {
				r.record(TraceEvent{
					Type:  EventCommit,
					Name:  string(ev.Mutation.Type),
					Path:  ev.Path,
					Value: commitValue(ev.Mutation),
				})
				return nil
			})
			pc.On(store.EventValidate, func(ev store.Event) store.Cleanup {
				r.record(TraceEvent{
					Type:    EventValidate,
					Path:    ev.Path,
					OK:      boolPtr(ev.Result.OK),
					Message: ev.Result.Message,
				})
				return nil
			})
			return nil
		},
	}
}

func commitValue(mc *store.MutationContext) any {
	switch mc.Type {
	case store.MutationSetValue:
		return mc.Payload
	case store.MutationRead:
		return mc.ChangedPaths()
	default:
		return nil
	}
}

func (r *runner) subscribe(def SubscriptionDef) {
	path := def.Path
	var sel store.Selector
	switch def.Select {
	case SelectTouched:
		sel = func(s store.Snapshot) any { return s.Touched(path) }
	case SelectDirty:
		sel = func(s store.Snapshot) any { return s.Dirty(path) }
	case SelectError:
		sel = func(s store.Snapshot) any { return s.Error(path) }
	default:
		sel = func(s store.Snapshot) any { return s.Value(path) }
	}
	r.store.Subscribe(sel, func(v any) {
		r.deliver(def.Name, TraceEvent{Type: EventNotify, Name: def.Name, Path: path, Value: v})
	})
}

func (r *runner) watch(def WatchDef) {
	r.store.Watch(def.Pattern, func(ev store.WatchEvent) {
		r.deliver(def.Name, TraceEvent{Type: EventWatch, Name: def.Name, Path: ev.Path, Value: ev.Value})
	})
}

func (r *runner) exec(step Step) error {
	switch step.Kind() {
	case StepRegister:
		def := *step.Register
		vs, err := rules.BuildAll(def.Rules)
		if err != nil {
			return err
		}
		for _, v := range vs {
			r.store.AddValidator(def.Path, v)
		}
		r.unregs[def.Path] = r.store.Register(def.Path, def.fieldSpec().Options()...)
	case StepUnregister:
		if unregister, ok := r.unregs[step.Unregister]; ok {
			unregister()
		}
	case StepTouch:
		r.store.MarkTouched(step.Touch)
	case StepDirty:
		r.store.MarkDirty(step.Dirty)
	case StepSet:
		r.store.SetControlledValue(step.Set.Path, step.Set.Value)
	case StepRead:
		r.store.Read(func(path string) any {
			if v, ok := step.Read[path]; ok {
				return v
			}
			return r.store.Value(path)
		})
	case StepValidate:
		return r.validate(StepValidate, step.Validate, r.store.Validate(step.Validate), step.Result)
	case StepValidateForm:
		return r.validate(StepValidateForm, "", r.store.ValidateForm(), step.Result)
	case StepFlush:
		r.flush()
	default:
		return fmt.Errorf("invalid step %v", step.Kinds())
	}
	return nil
}

func (r *runner) validate(kind, path string, v *store.Validation, want *ResultExpect) error {
	res, err := r.await(v)
	if err != nil {
		return err
	}
	r.record(TraceEvent{
		Type:    EventResult,
		Name:    kind,
		Path:    path,
		OK:      boolPtr(res.OK),
		Message: res.Message,
	})
	if want != nil && (want.OK != res.OK || want.Message != res.Message) {
		r.result.AddError((&AssertionError{
			Type:     kind,
			Subject:  fmt.Sprintf("step %d", r.currentStep()),
			Expected: formatResult(want.OK, want.Message),
			Actual:   formatResult(res.OK, res.Message),
		}).Error())
	}
	return nil
}

// await drains the scheduler until v settles.
func (r *runner) await(v *store.Validation) (store.Result, error) {
	deadline := time.Now().Add(r.cfg.timeout)
	for {
		if res, ok := v.Result(); ok {
			return res, nil
		}
		if time.Now().After(deadline) {
			return store.Result{}, fmt.Errorf("validation did not settle within %s", r.cfg.timeout)
		}
		r.sched.Drain()
		select {
		case <-v.Done():
		case <-time.After(time.Millisecond):
		}
	}
}

func (r *runner) flush() {
	n := r.sched.Drain()
	r.record(TraceEvent{Type: EventFlush, Value: n})
}

func (r *runner) snapshot() {
	for _, path := range r.store.Paths() {
		st, ok := r.store.Field(path)
		if !ok {
			continue
		}
		r.result.State[path] = FieldSnapshot{
			Mode:    st.Mode.String(),
			Value:   st.Value,
			Touched: st.Touched,
			Dirty:   st.Dirty,
			Error:   st.Error,
		}
	}
}

func (r *runner) setStep(i int) {
	r.mu.Lock()
	r.step = i
	r.mu.Unlock()
}

func (r *runner) currentStep() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.step
}

func (r *runner) record(ev TraceEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev.Step = r.step
	r.result.add(ev)
}

func (r *runner) deliver(name string, ev TraceEvent) {
	r.mu.Lock()
	r.result.Deliveries[name]++
	r.mu.Unlock()
	r.record(ev)
}
