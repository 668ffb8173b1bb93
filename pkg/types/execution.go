package types

import "time"

// ExecStatus is the state of one in-flight plan execution. Transitions are
// monotone for a single execution: idle -> running -> completed|error. Only
// a reset returns a tracker to idle.
type ExecStatus string

const (
	ExecIdle      ExecStatus = "idle"
	ExecRunning   ExecStatus = "running"
	ExecError     ExecStatus = "error"
	ExecCompleted ExecStatus = "completed"
)

// ExecutionEvent is one timestamped error or warning accumulated during an
// execution, tagged with the action that was in flight.
type ExecutionEvent struct {
	Timestamp time.Time      `json:"timestamp"`
	Action    string         `json:"action,omitempty"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
}

// ExecutionSnapshot is the full mutable record of one plan execution as
// mirrored into the context store's environment state.
type ExecutionSnapshot struct {
	Status           ExecStatus       `json:"status"`
	Command          string           `json:"command,omitempty"`
	CurrentStep      *Step            `json:"current_step,omitempty"`
	CurrentStepIndex int              `json:"current_step_index"`
	TotalSteps       int              `json:"total_steps"`
	StepsCompleted   int              `json:"steps_completed"`
	StartTime        time.Time        `json:"start_time,omitzero"`
	EndTime          time.Time        `json:"end_time,omitzero"`
	LastAction       string           `json:"last_action,omitempty"`
	LastActionTime   time.Time        `json:"last_action_time,omitzero"`
	LastActionResult *Result          `json:"last_action_result,omitempty"`
	Errors           []ExecutionEvent `json:"errors,omitempty"`
	Warnings         []ExecutionEvent `json:"warnings,omitempty"`
}

// ExecutionStatus is the derived read-only view served by status endpoints.
type ExecutionStatus struct {
	Status         ExecStatus    `json:"status"`
	Command        string        `json:"command,omitempty"`
	CurrentStep    int           `json:"current_step"`
	TotalSteps     int           `json:"total_steps"`
	StepsCompleted int           `json:"steps_completed"`
	Duration       time.Duration `json:"duration"`
	Errors         int           `json:"errors"`
	Warnings       int           `json:"warnings"`
}

// HistoryEntry is the summary of one completed execution kept in the
// bounded task history.
type HistoryEntry struct {
	Command        string           `json:"command"`
	StartTime      time.Time        `json:"start_time"`
	EndTime        time.Time        `json:"end_time"`
	Status         ExecStatus       `json:"status"`
	StepsCompleted int              `json:"steps_completed"`
	TotalSteps     int              `json:"total_steps"`
	Errors         []ExecutionEvent `json:"errors,omitempty"`
	Result         *PlanResult      `json:"result,omitempty"`
}
