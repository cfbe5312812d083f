package harness

// TraceEvent records what one step did.
type TraceEvent struct {
	Seq  int64  `json:"seq"`
	Step string `json:"step"`

	// CorrelationID is set for steps that created or touched an intent.
	CorrelationID string `json:"correlation_id,omitempty"`

	// Detail is a short outcome, e.g. "dispatched", "duplicate",
	// "expired c1" or an error code.
	Detail string `json:"detail,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every expectation held and no step failed
	// unexpectedly.
	Pass bool `json:"pass"`

	// Trace contains one event per executed step, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains expectation failures. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Final is the view state after the last step.
	Final FinalState `json:"final"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds an expectation failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends a step event.
func (r *Result) AddTrace(step, correlationID, detail string) {
	r.Trace = append(r.Trace, TraceEvent{
		Seq:           int64(len(r.Trace) + 1),
		Step:          step,
		CorrelationID: correlationID,
		Detail:        detail,
	})
}
