// Package types defines the shared data model for the NatanAI execution
// engine: task plans, steps, recovery policies, step results, and the
// collaborator interfaces the orchestrator consumes.
//
// The types here are deliberately free of behavior beyond small helpers so
// that every package (session, memory, state, recovery, engine, browser)
// can depend on them without cycles. Nothing in this package depends on
// anything above the ActionExecutor boundary.
package types

// ErrorKind is the closed classification of a step failure. It is produced
// exclusively by the error classifier and consumed by recovery policies.
type ErrorKind string

const (
	KindTimeout         ErrorKind = "timeout"
	KindElementNotFound ErrorKind = "element_not_found"
	KindNavigation      ErrorKind = "navigation_error"
	KindNetwork         ErrorKind = "network_error"
	KindCaptcha         ErrorKind = "captcha_detected"
	KindValidation      ErrorKind = "validation_error"
	KindUnknown         ErrorKind = "unknown"

	// KindAny is the wildcard condition: a policy listing it matches every
	// classified kind.
	KindAny ErrorKind = "any"
)

// RecoveryAction names one fixed recovery behavior. Unknown names are
// rejected by the recovery engine with an UnknownActionError rather than
// being silently skipped.
type RecoveryAction string

const (
	RecoverRetry            RecoveryAction = "retry"
	RecoverWait             RecoveryAction = "wait"
	RecoverScrollIntoView   RecoveryAction = "scroll_into_view"
	RecoverCheckConnection  RecoveryAction = "check_connection"
	RecoverFindLoginLink    RecoveryAction = "find_login_link"
	RecoverPressEnter       RecoveryAction = "press_enter"
	RecoverCheckLoginStatus RecoveryAction = "check_login_status"
	RecoverReportLoginError RecoveryAction = "report_login_error"
	RecoverHandleCaptcha    RecoveryAction = "handle_captcha"
	RecoverAbort            RecoveryAction = "abort"
)

// RecoveryPolicy declares which error kinds a step is willing to recover
// from and, in order, which recovery actions to try when one matches.
type RecoveryPolicy struct {
	Conditions []ErrorKind      `json:"conditions" yaml:"conditions"`
	Actions    []RecoveryAction `json:"actions" yaml:"actions"`
}

// Matches reports whether the policy's conditions cover the given kind,
// either explicitly or via the "any" wildcard.
func (p RecoveryPolicy) Matches(kind ErrorKind) bool {
	for _, c := range p.Conditions {
		if c == kind || c == KindAny {
			return true
		}
	}
	return false
}

// Step is one unit of a task plan: an action name, its parameters, a
// human-readable description, and the recovery policy applied on failure.
type Step struct {
	Action      string         `json:"action" yaml:"action"`
	Params      map[string]any `json:"params" yaml:"params"`
	Description string         `json:"description" yaml:"description"`
	Recovery    RecoveryPolicy `json:"error_recovery" yaml:"error_recovery"`
}

// StringParam returns the named parameter as a string, or "" if absent or
// of another type.
func (s Step) StringParam(key string) string {
	v, ok := s.Params[key]
	if !ok {
		return ""
	}
	str, _ := v.(string)
	return str
}

// BoolParam returns the named parameter as a bool, false if absent.
func (s Step) BoolParam(key string) bool {
	v, ok := s.Params[key]
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// Plan is an ordered, immutable-once-produced sequence of steps plus the
// human-readable outcome the plan is expected to achieve.
type Plan struct {
	Steps           []Step `json:"steps" yaml:"steps"`
	ExpectedOutcome string `json:"expected_outcome" yaml:"expected_outcome"`
}

// ErrorPlan builds the single-step plan a plan producer returns to signal
// its own failure. The orchestrator executes it like any other plan and
// fails at step one with the given message.
func ErrorPlan(message string) *Plan {
	return &Plan{
		Steps: []Step{{
			Action:      "error",
			Params:      map[string]any{"error_message": message},
			Description: "Report a planning error",
			Recovery: RecoveryPolicy{
				Conditions: []ErrorKind{},
				Actions:    []RecoveryAction{RecoverAbort},
			},
		}},
		ExpectedOutcome: "Error in task planning",
	}
}

// ParsedCommand is the structured form of a natural-language command as
// produced by the (external) command parser. The engine records it in the
// command history but does not interpret it beyond the action name.
type ParsedCommand struct {
	Action string         `json:"action"`
	Target string         `json:"target,omitempty"`
	Params map[string]any `json:"params,omitempty"`
}
