package harness

// TraceEvent records one executed step.
type TraceEvent struct {
	Seq        int64
	Op         string
	Collection string
	Args       map[string]any
	Result     any    // canonical-encodable result; nil when the step failed
	Error      string // dberr code when the step failed
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every step and assertion matched.
	Pass bool `json:"pass"`

	// Trace contains every step in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// canonical returns the event as a map for canonical encoding.
func (e TraceEvent) canonical() map[string]any {
	m := map[string]any{
		"seq":  e.Seq,
		"op":   e.Op,
		"args": e.Args,
	}
	if e.Collection != "" {
		m["collection"] = e.Collection
	}
	if e.Error != "" {
		m["error"] = e.Error
	} else {
		m["result"] = e.Result
	}
	return m
}
