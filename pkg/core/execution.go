package core

import "time"

// ErrorKind classifies an execution failure.
type ErrorKind string

// Error kinds reported in ExecutionResult.Error.
const (
	// ErrorKindParse means the code failed static validation; nothing ran.
	ErrorKindParse ErrorKind = "ParseError"
	// ErrorKindRuntime means the code raised an error while running.
	ErrorKindRuntime ErrorKind = "RuntimeFailure"
	// ErrorKindTimeout means the wall-clock deadline or step budget ran out.
	ErrorKindTimeout ErrorKind = "TimeoutError"
	// ErrorKindCapability means the code reached for a name or module
	// outside the capability allowlist.
	ErrorKindCapability ErrorKind = "CapabilityViolation"
)

// ExecutionRequest is one call to run code against parameters.
type ExecutionRequest struct {
	Code       string
	Parameters map[string]any

	// Filename is used in error positions and traces. Defaults to "model.star".
	Filename string
}

// ExecutionResult is the outcome of one execution.
// Failures of the executed code are reported here, never as Go errors.
type ExecutionResult struct {
	Result   map[string]any `json:"result"`
	Console  string         `json:"console_output,omitempty"`
	Error    *ErrorRecord   `json:"error,omitempty"`
	Duration time.Duration  `json:"duration_ns"`
	Steps    uint64         `json:"steps"`
}

// Failed reports whether the execution produced an error record.
func (r *ExecutionResult) Failed() bool {
	return r != nil && r.Error != nil
}

// ErrorRecord describes a failed execution.
type ErrorRecord struct {
	Kind    ErrorKind `json:"type"`
	Message string    `json:"message"`
	Trace   string    `json:"traceback,omitempty"`
}
