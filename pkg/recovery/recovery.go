package recovery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nullfox-coder/NatanAI/pkg/logging"
	"github.com/nullfox-coder/NatanAI/pkg/types"
)

// loginLinkTexts are tried in order when searching for an alternate login
// affordance.
var loginLinkTexts = []string{"Log in", "Sign in", "Login", "Signin"}

// StepRunner re-executes a step through the orchestrator's own step path,
// so retried steps get identical dispatch semantics to first attempts.
type StepRunner func(ctx context.Context, step types.Step) types.Result

// UnknownActionError reports a recovery action name outside the closed set.
type UnknownActionError struct {
	Action types.RecoveryAction
}

func (e *UnknownActionError) Error() string {
	return fmt.Sprintf("unknown recovery action: %s", e.Action)
}

// Engine walks a failed step's recovery policy. It acts on the environment
// only through the ActionExecutor and the orchestrator-supplied StepRunner,
// never upward into session or planning state.
type Engine struct {
	executor        types.ActionExecutor
	retryDelay      time.Duration
	connectionDelay time.Duration
	actionTimeout   time.Duration
	maxRetries      int
	log             *logging.Logger

	// sleep is swappable in tests.
	sleep func(ctx context.Context, d time.Duration)
}

// Options configures a recovery engine.
type Options struct {
	// RetryDelay is the pause applied by the wait action before retrying.
	RetryDelay time.Duration

	// ConnectionDelay is the pause applied by check_connection.
	ConnectionDelay time.Duration

	// ActionTimeout bounds the side actions (scroll, press, find) the
	// engine performs itself.
	ActionTimeout time.Duration

	// MaxRetries caps how often one failed step may be re-executed across
	// its whole recovery walk. Zero means the default of 3.
	MaxRetries int
}

// NewEngine creates a recovery engine acting through the given executor.
func NewEngine(executor types.ActionExecutor, opts Options, log *logging.Logger) *Engine {
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Engine{
		executor:        executor,
		retryDelay:      opts.RetryDelay,
		connectionDelay: opts.ConnectionDelay,
		actionTimeout:   opts.ActionTimeout,
		maxRetries:      maxRetries,
		log:             log,
		sleep:           sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Attempt walks the step's recovery policy for the given failure.
//
// The failure is classified first; if the policy's conditions do not cover
// the classified kind (and do not contain the wildcard), no recovery is
// attempted and the original failure is returned. Otherwise actions run in
// declared order and the first one that produces a success result wins.
// Exhausting the list, or an explicit abort, returns the last failure.
//
// A non-nil error is returned only for an action name outside the closed
// set; every environmental failure is expressed through the result.
func (e *Engine) Attempt(ctx context.Context, sessionID string, step types.Step, failure types.Result, runStep StepRunner) (bool, types.Result, error) {
	kind := Classify(failure.Error)
	if e.log != nil {
		e.log.Infof("attempting recovery for %s failure: %s", kind, failure.Error)
	}

	if !step.Recovery.Matches(kind) {
		if e.log != nil {
			e.log.Warnf("no recovery configured for error kind %s", kind)
		}
		return false, failure, nil
	}

	// Re-executions of the step share one budget across the whole walk,
	// so a policy stacking retry-class actions cannot loop past the cap.
	attempts := 0
	counted := func(ctx context.Context, s types.Step) types.Result {
		attempts++
		return runStep(ctx, s)
	}

	for _, action := range step.Recovery.Actions {
		if reRunsStep(action) && attempts >= e.maxRetries {
			if e.log != nil {
				e.log.Warnf("retry budget (%d) exhausted, skipping %s", e.maxRetries, action)
			}
			continue
		}
		recovered, result, terminal, err := e.runAction(ctx, sessionID, action, step, failure, counted)
		if err != nil {
			return false, failure, err
		}
		if recovered {
			return true, result, nil
		}
		if terminal {
			return false, result, nil
		}
	}

	return false, failure, nil
}

// reRunsStep reports whether the action re-executes the failed step and
// therefore consumes retry budget.
func reRunsStep(action types.RecoveryAction) bool {
	switch action {
	case types.RecoverRetry, types.RecoverWait, types.RecoverScrollIntoView,
		types.RecoverCheckConnection, types.RecoverFindLoginLink:
		return true
	}
	return false
}

// runAction performs one recovery action. terminal means stop walking the
// list and surface the result as the final outcome.
func (e *Engine) runAction(ctx context.Context, sessionID string, action types.RecoveryAction, step types.Step, last types.Result, runStep StepRunner) (recovered bool, result types.Result, terminal bool, err error) {
	switch action {
	case types.RecoverRetry:
		ok, res := e.retry(ctx, step, runStep)
		return ok, pick(ok, res, last), false, nil

	case types.RecoverWait:
		if e.log != nil {
			e.log.Infof("waiting %s before retry", e.retryDelay)
		}
		e.sleep(ctx, e.retryDelay)
		ok, res := e.retry(ctx, step, runStep)
		return ok, pick(ok, res, last), false, nil

	case types.RecoverScrollIntoView:
		e.scrollTargetIntoView(ctx, sessionID, step)
		ok, res := e.retry(ctx, step, runStep)
		return ok, pick(ok, res, last), false, nil

	case types.RecoverCheckConnection:
		if e.log != nil {
			e.log.Infof("checking connection, pausing %s", e.connectionDelay)
		}
		e.sleep(ctx, e.connectionDelay)
		ok, res := e.retry(ctx, step, runStep)
		return ok, pick(ok, res, last), false, nil

	case types.RecoverFindLoginLink:
		ok, res := e.findLoginLink(ctx, sessionID, step, runStep)
		return ok, pick(ok, res, last), false, nil

	case types.RecoverPressEnter:
		res, perr := e.executor.Perform(ctx, sessionID, "press",
			map[string]any{"key": "Enter"}, e.actionTimeout)
		if perr == nil && !res.IsError() {
			return true, res, false, nil
		}
		return false, last, false, nil

	case types.RecoverCheckLoginStatus:
		res := runStep(ctx, types.Step{
			Action:      "check",
			Params:      map[string]any{"condition": "login_success"},
			Description: "Verify login state",
		})
		if !res.IsError() {
			return true, res, false, nil
		}
		return false, last, false, nil

	case types.RecoverHandleCaptcha:
		// No automated solver: surface that a human must act.
		return false, types.Result{
			Status:        types.StatusError,
			Error:         "CAPTCHA detected, human intervention required",
			Message:       "CAPTCHA detected, please solve it manually",
			RequiresHuman: true,
		}, true, nil

	case types.RecoverReportLoginError:
		return false, e.collectLoginErrors(ctx, sessionID), true, nil

	case types.RecoverAbort:
		if e.log != nil {
			e.log.Infof("recovery aborted by policy")
		}
		return false, last, true, nil

	default:
		return false, last, false, &UnknownActionError{Action: action}
	}
}

func (e *Engine) retry(ctx context.Context, step types.Step, runStep StepRunner) (bool, types.Result) {
	if e.log != nil {
		e.log.Infof("retrying step: %s", step.Description)
	}
	res := runStep(ctx, step)
	return !res.IsError(), res
}

// pick returns the successful result when recovered, otherwise the failure
// the walk started from.
func pick(ok bool, res, last types.Result) types.Result {
	if ok {
		return res
	}
	return last
}

// scrollTargetIntoView asks the executor to scroll the failed step's target
// into view. Only element-addressed actions carry a scrollable target.
func (e *Engine) scrollTargetIntoView(ctx context.Context, sessionID string, step types.Step) {
	switch step.Action {
	case "click", "type", "wait":
	default:
		return
	}
	element := step.StringParam("element")
	if element == "" {
		element = step.StringParam("selector")
	}
	if element == "" {
		return
	}
	if e.log != nil {
		e.log.Infof("scrolling %q into view", element)
	}
	_, _ = e.executor.Perform(ctx, sessionID, "scroll",
		map[string]any{"element": element, "behavior": "smooth"}, e.actionTimeout)
}

// findLoginLink searches for a login affordance by common link texts,
// clicks the first hit, and retries the original step.
func (e *Engine) findLoginLink(ctx context.Context, sessionID string, step types.Step, runStep StepRunner) (bool, types.Result) {
	for _, text := range loginLinkTexts {
		found, err := e.executor.Perform(ctx, sessionID, "find_text",
			map[string]any{"text": text}, e.actionTimeout)
		if err != nil || found.IsError() {
			continue
		}
		selector, _ := found.Data["selector"].(string)
		if selector == "" {
			continue
		}

		if e.log != nil {
			e.log.Infof("found login link %q, clicking", text)
		}
		_, _ = e.executor.Perform(ctx, sessionID, "click",
			map[string]any{"element": selector}, e.actionTimeout)
		e.sleep(ctx, time.Second)

		if ok, res := e.retry(ctx, step, runStep); ok {
			return true, res
		}
	}
	return false, types.Result{}
}

// collectLoginErrors gathers page-level error indicators into a descriptive
// terminal failure.
func (e *Engine) collectLoginErrors(ctx context.Context, sessionID string) types.Result {
	var messages []string
	res, err := e.executor.Perform(ctx, sessionID, "page_errors", nil, e.actionTimeout)
	if err == nil && !res.IsError() {
		if raw, ok := res.Data["messages"].([]string); ok {
			messages = raw
		} else if raw, ok := res.Data["messages"].([]any); ok {
			for _, m := range raw {
				if s, ok := m.(string); ok {
					messages = append(messages, s)
				}
			}
		}
	}

	detail := "Unknown error"
	if len(messages) > 0 {
		detail = strings.Join(messages, ", ")
	}
	return types.Result{
		Status:  types.StatusError,
		Error:   "Login failed",
		Message: "Login failed: " + detail,
		Data:    map[string]any{"error_messages": messages},
	}
}
