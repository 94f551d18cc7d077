package harness

// Trace event types.
const (
	EventCommit   = "commit"   // a committed mutation
	EventValidate = "validate" // a validation result applied to a field
	EventNotify   = "notify"   // a subscription callback
	EventWatch    = "watch"    // a watch callback
	EventResult   = "result"   // the outcome of a validate or validate_form step
	EventFlush    = "flush"    // an explicit or final scheduler drain
)

// TraceEvent is one observable store event, in the order it happened.
type TraceEvent struct {
	Seq  int64  `json:"seq"`
	Step int    `json:"step"` // 0 for setup, then 1-based step index
	Type string `json:"type"`
	// Name is the mutation type, subscription or watch name, or step kind.
	Name    string `json:"name,omitempty"`
	Path    string `json:"path,omitempty"`
	Value   any    `json:"value,omitempty"`
	OK      *bool  `json:"ok,omitempty"`
	Message string `json:"message,omitempty"`
}

// FieldSnapshot is a field's final state.
type FieldSnapshot struct {
	Mode    string `json:"mode"`
	Value   any    `json:"value"`
	Touched bool   `json:"touched"`
	Dirty   bool   `json:"dirty"`
	Error   string `json:"error,omitempty"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every expectation held.
	Pass bool `json:"pass"`

	// Trace contains every store event in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains expectation failures. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// State is the final state of every registered field, keyed by path.
	State map[string]FieldSnapshot `json:"state"`

	// Deliveries counts callbacks per subscription and watch name.
	Deliveries map[string]int `json:"deliveries,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:       true,
		Trace:      []TraceEvent{},
		Errors:     []string{},
		State:      make(map[string]FieldSnapshot),
		Deliveries: make(map[string]int),
	}
}

// AddError adds a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

func (r *Result) add(ev TraceEvent) {
	ev.Seq = int64(len(r.Trace) + 1)
	r.Trace = append(r.Trace, ev)
}

func boolPtr(b bool) *bool {
	return &b
}
