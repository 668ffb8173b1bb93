package types

import "time"

// Status is the success/error tag carried by step and plan results.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Result is the outcome of one action execution or recovery attempt.
// Exactly one of the two variants applies: a success result carries Data and
// a message; an error result carries Error (and may still carry Data, e.g.
// collected page error indicators).
type Result struct {
	Status  Status         `json:"status"`
	Message string         `json:"message,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
	Error   string         `json:"error,omitempty"`

	// RequiresHuman marks a terminal-for-automation failure, such as a
	// detected CAPTCHA, that only a human can resolve.
	RequiresHuman bool `json:"requires_human,omitempty"`
}

// OK builds a success result.
func OK(message string, data map[string]any) Result {
	return Result{Status: StatusSuccess, Message: message, Data: data}
}

// Fail builds an error result.
func Fail(errMsg, message string) Result {
	return Result{Status: StatusError, Error: errMsg, Message: message}
}

// IsError reports whether the result carries the error variant.
func (r Result) IsError() bool {
	return r.Status == StatusError
}

// StepData is one entry in a plan result's ordered side list: the data a
// non-extraction step produced, tagged with its 1-based position.
type StepData struct {
	Step        int            `json:"step"`
	Description string         `json:"description"`
	Data        map[string]any `json:"data"`
}

// StepError records an unrecovered failure during plan execution.
type StepError struct {
	Step      int            `json:"step"`
	Action    string         `json:"action"`
	Message   string         `json:"error"`
	Timestamp time.Time      `json:"timestamp"`
	Details   map[string]any `json:"details,omitempty"`
}

// PlanResult is the deterministic, partial-failure-aware outcome of one
// plan execution. Data holds the primary payload (written by extraction
// steps); StepResults holds the ordered per-step data of everything else.
type PlanResult struct {
	Status         Status         `json:"status"`
	Message        string         `json:"message"`
	Data           map[string]any `json:"data"`
	StepResults    []StepData     `json:"step_results,omitempty"`
	StepsCompleted int            `json:"steps_completed"`
	StepsTotal     int            `json:"steps_total"`
	Errors         []StepError    `json:"errors,omitempty"`
	RequiresHuman  bool           `json:"requires_human,omitempty"`
}

// CommandResult is the engine API response for one executed command.
type CommandResult struct {
	SessionID string         `json:"session_id"`
	Status    Status         `json:"status"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
}
