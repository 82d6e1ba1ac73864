package harness

// TraceEvent records one executed step and the state it left behind.
// Totals are only present for steps that ran against a tab.
type TraceEvent struct {
	Seq           int64          `json:"seq"`
	Tab           string         `json:"tab,omitempty"`
	Op            string         `json:"op"`
	Args          map[string]any `json:"args,omitempty"`
	Outcome       string         `json:"outcome"`
	TotalQuantity int            `json:"total_quantity,omitempty"`
	Total         string         `json:"total,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every expect clause and assertion matched.
	Pass bool `json:"pass"`

	// Trace contains every executed step in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains expectation and assertion failures.
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

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends a step to the trace.
func (r *Result) AddTrace(ev TraceEvent) {
	r.Trace = append(r.Trace, ev)
}
