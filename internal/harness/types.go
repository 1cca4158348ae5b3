package harness

// TraceEvent is one façade operation as the harness observed it.
type TraceEvent struct {
	Seq    int64  `json:"seq"`
	Action string `json:"action"`
	Org    string `json:"org"`

	// Case is "ok" or the error kind of the response.
	Case string `json:"case"`

	// Field is the offending field of an error response.
	Field string `json:"field,omitempty"`

	// Result is the response result as generic JSON. It is not part of golden traces
	// because it carries timestamps and generated ids.
	Result any `json:"-"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass is true if every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace contains every setup and flow operation in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages. Empty if Pass is true.
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
