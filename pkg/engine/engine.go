// Package engine is the orchestrator: it owns the per-session stores and
// trackers, turns commands into plans, executes plan steps in order through
// the action executor, and routes step failures through the recovery
// engine. A plan stops at the first unrecovered failure and the result
// reports exactly how many steps completed.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nullfox-coder/NatanAI/pkg/config"
	"github.com/nullfox-coder/NatanAI/pkg/logging"
	"github.com/nullfox-coder/NatanAI/pkg/memory"
	"github.com/nullfox-coder/NatanAI/pkg/recovery"
	"github.com/nullfox-coder/NatanAI/pkg/session"
	"github.com/nullfox-coder/NatanAI/pkg/state"
	"github.com/nullfox-coder/NatanAI/pkg/types"
)

// CommandParser turns a raw command into its structured form. It must not
// fail: uninterpretable commands come back with the "unknown" action.
type CommandParser interface {
	Parse(ctx context.Context, command string) types.ParsedCommand
}

// PlanProducer turns a parsed command into an executable plan. Producers
// signal their own failure with a single-step error plan, never an error.
type PlanProducer interface {
	Produce(ctx context.Context, parsed types.ParsedCommand, env memory.EnvironmentState) *types.Plan
}

// ContextCloser releases the browsing context bound to a session id. The
// browser manager implements it; the engine calls it when a session is
// dropped so its browser does not outlive the session record.
type ContextCloser interface {
	Close(sessionID string) error
}

// bundle groups the per-session collaborators. The mutex serializes plan
// executions within one session; different sessions run concurrently.
type bundle struct {
	mu      sync.Mutex
	ctx     *memory.Store
	tracker *state.Tracker
}

// Engine executes natural-language commands against browser sessions.
type Engine struct {
	mu      sync.Mutex
	bundles map[string]*bundle

	sessions *session.Store
	executor types.ActionExecutor
	parser   CommandParser
	planner  PlanProducer
	recovery *recovery.Engine
	hints    memory.HintProvider
	closer   ContextCloser

	settings config.Settings
	log      *logging.Logger
}

// Options carries the optional engine collaborators.
type Options struct {
	// Hints, when set, lets the context store enhance commands with
	// model-derived interpretation before planning.
	Hints memory.HintProvider

	// Closer, when set, is invoked with the session id whenever a session
	// is dropped, releasing its browsing context.
	Closer ContextCloser
}

// New wires an engine from its collaborators. The session store, executor,
// parser, planner, and recovery engine are required.
func New(sessions *session.Store, executor types.ActionExecutor, cmdParser CommandParser,
	producer PlanProducer, rec *recovery.Engine, settings config.Settings,
	opts Options, log *logging.Logger) *Engine {
	return &Engine{
		bundles:  make(map[string]*bundle),
		sessions: sessions,
		executor: executor,
		parser:   cmdParser,
		planner:  producer,
		recovery: rec,
		hints:    opts.Hints,
		closer:   opts.Closer,
		settings: settings,
		log:      log,
	}
}

// resolveSession returns the existing session or creates a fresh one when
// the id is empty or expired.
func (e *Engine) resolveSession(sessionID, userID string) *session.Session {
	if sessionID != "" {
		if sess, err := e.sessions.Get(sessionID); err == nil {
			return sess
		}
		if e.log != nil {
			e.log.Infof("session %s not found, creating a new one", sessionID)
		}
	}
	return e.sessions.Create(userID)
}

// bundleFor returns the per-session bundle, creating it on first use.
func (e *Engine) bundleFor(sessionID string) *bundle {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, ok := e.bundles[sessionID]
	if !ok {
		ctxStore := memory.NewStore(e.settings.Session.MaxHistory, e.log)
		b = &bundle{
			ctx:     ctxStore,
			tracker: state.NewTracker(ctxStore, e.settings.Session.MaxHistory, e.log),
		}
		e.bundles[sessionID] = b
	}
	return b
}

// ExecuteCommand runs one natural-language command to completion within the
// given session (created if absent) and returns the outcome. Commands for
// the same session are serialized; the call blocks until the plan finishes
// or fails.
func (e *Engine) ExecuteCommand(ctx context.Context, command, sessionID, userID string) types.CommandResult {
	sess := e.resolveSession(sessionID, userID)
	b := e.bundleFor(sess.ID)

	b.mu.Lock()
	defer b.mu.Unlock()

	parsed := e.parser.Parse(ctx, command)
	b.ctx.RecordCommand(command, parsed)

	if e.hints != nil {
		hints := b.ctx.Enhance(ctx, e.hints, command)
		if e.log != nil && hints.InterpretedGoal != "Unknown" {
			e.log.Infof("session %s: interpreted goal: %s", sess.ID, hints.InterpretedGoal)
		}
	}

	plan := e.planner.Produce(ctx, parsed, b.ctx.Environment())
	b.ctx.RecordPlan(plan)

	b.tracker.Start(command, plan)
	result := e.executePlan(ctx, sess.ID, b, plan)
	b.tracker.Complete(&result)

	e.sessions.Update(sess.ID, session.Update{
		LastCommand: &command,
		LastResult:  &result,
	})

	return types.CommandResult{
		SessionID: sess.ID,
		Status:    result.Status,
		Message:   result.Message,
		Data:      result.Data,
	}
}

// executePlan walks the plan's steps in order. An extraction step
// overwrites the result's primary payload; any other step with data appends
// to the ordered side list. The first unrecovered failure stops the walk.
func (e *Engine) executePlan(ctx context.Context, sessionID string, b *bundle, plan *types.Plan) types.PlanResult {
	total := len(plan.Steps)
	result := types.PlanResult{
		Status:     types.StatusSuccess,
		Data:       map[string]any{},
		StepsTotal: total,
	}
	if total == 0 {
		result.Message = "No steps to execute"
		return result
	}

	runStep := func(ctx context.Context, step types.Step) types.Result {
		return e.dispatch(ctx, sessionID, b, step)
	}

	for i, step := range plan.Steps {
		if e.log != nil {
			e.log.Infof("session %s: step %d/%d: %s", sessionID, i+1, total, step.Description)
		}
		action := step.Action
		b.tracker.Apply(state.Update{LastAction: &action})

		stepResult := runStep(ctx, step)
		if stepResult.IsError() {
			recovered, recResult, err := e.recovery.Attempt(ctx, sessionID, step, stepResult, runStep)
			if err != nil {
				recovered, recResult = false, types.Fail(err.Error(), "Recovery failed")
			}
			if !recovered {
				b.tracker.Apply(state.Update{LastActionResult: &recResult})
				result.Status = types.StatusError
				result.RequiresHuman = recResult.RequiresHuman
				result.Errors = append(result.Errors, types.StepError{
					Step:      i + 1,
					Action:    step.Action,
					Message:   recResult.Error,
					Timestamp: time.Now(),
				})
				result.Message = failureMessage(step, recResult, i, total)
				return result
			}
			stepResult = recResult
		}

		b.tracker.Apply(state.Update{LastActionResult: &stepResult})

		if step.Action == "extract" {
			result.Data = stepResult.Data
		} else if len(stepResult.Data) > 0 {
			result.StepResults = append(result.StepResults, types.StepData{
				Step:        i + 1,
				Description: step.Description,
				Data:        stepResult.Data,
			})
		}

		completed := i
		b.tracker.Apply(state.Update{LastStepCompleted: &completed})
		result.StepsCompleted = i + 1

		switch step.Action {
		case "navigate", "reload", "back", "forward":
			e.refreshEnvironment(ctx, sessionID, b.ctx)
		}
	}

	if plan.ExpectedOutcome != "" {
		result.Message = plan.ExpectedOutcome
	} else {
		result.Message = fmt.Sprintf("Completed all %d steps", total)
	}
	return result
}

// failureMessage prefers the recovery engine's human-directed message
// (CAPTCHA, collected login errors) over the generic step-indexed one,
// which names the classified kind alongside the raw error.
func failureMessage(step types.Step, failure types.Result, index, total int) string {
	if failure.Message != "" && (failure.RequiresHuman || len(failure.Data) > 0) {
		return failure.Message
	}
	return fmt.Sprintf("Failed at step %d of %d (%s): %s: %s",
		index+1, total, step.Description, recovery.Classify(failure.Error), failure.Error)
}

// dispatch executes one step. The error and user_input actions are handled
// here; everything else goes to the action executor. Executor faults are
// folded into the error-result channel so they flow through classification
// like any reported failure.
func (e *Engine) dispatch(ctx context.Context, sessionID string, b *bundle, step types.Step) types.Result {
	switch step.Action {
	case "error":
		return types.Fail(step.StringParam("error_message"), "Planning failed")
	case "user_input":
		return e.resolveUserInput(ctx, sessionID, b, step)
	}

	result, err := e.executor.Perform(ctx, sessionID, step.Action, step.Params, e.stepTimeout(step))
	if err != nil {
		return types.Fail(err.Error(), "Action execution failed")
	}
	return result
}

// resolveUserInput fills a user_input step from the session's stored
// variables when the value is already known; otherwise the step fails with
// a requires-human result carrying the prompt.
func (e *Engine) resolveUserInput(ctx context.Context, sessionID string, b *bundle, step types.Step) types.Result {
	varName := "username"
	if step.BoolParam("is_password") {
		varName = "password"
	}
	if value, ok := b.ctx.SessionVar(varName, nil).(string); ok && value != "" {
		return e.dispatch(ctx, sessionID, b, types.Step{
			Action: "type",
			Params: map[string]any{
				"element": step.StringParam("field"),
				"text":    value,
			},
		})
	}
	return types.Result{
		Status:        types.StatusError,
		Error:         "user input required",
		Message:       step.StringParam("prompt"),
		RequiresHuman: true,
	}
}

// stepTimeout honors an explicit per-step timeout parameter (milliseconds)
// and otherwise falls back to the configured default for the action class.
func (e *Engine) stepTimeout(step types.Step) time.Duration {
	switch v := step.Params["timeout"].(type) {
	case float64:
		if v > 0 {
			return time.Duration(v) * time.Millisecond
		}
	case int:
		if v > 0 {
			return time.Duration(v) * time.Millisecond
		}
	}

	switch step.Action {
	case "navigate", "reload", "back", "forward":
		return e.settings.Browser.NavigationTimeout
	case "wait":
		return e.settings.Browser.WaitTimeout
	default:
		return e.settings.Browser.ActionTimeout
	}
}

// refreshEnvironment re-observes the page after a navigation-class step and
// merges the observation into the session's context store. Failures here
// are logged, never fatal.
func (e *Engine) refreshEnvironment(ctx context.Context, sessionID string, store *memory.Store) {
	observed, err := e.executor.Perform(ctx, sessionID, "extract",
		map[string]any{"format": "affordances"}, e.settings.Browser.ActionTimeout)
	if err != nil || observed.IsError() {
		if e.log != nil {
			e.log.Warnf("session %s: page observation failed", sessionID)
		}
		return
	}

	update := memory.StateUpdate{}
	if url, ok := observed.Data["url"].(string); ok {
		update.URL = &url
	}
	if title, ok := observed.Data["title"].(string); ok {
		update.Title = &title
	}
	if listed, ok := observed.Data["elements"].([]map[string]any); ok {
		elements := make([]memory.VisibleElement, 0, len(listed))
		for _, el := range listed {
			elements = append(elements, memory.VisibleElement{
				Role:        asString(el["role"]),
				Description: asString(el["description"]),
				Selector:    asString(el["selector"]),
			})
		}
		update.VisibleElements = elements
	}

	check, err := e.executor.Perform(ctx, sessionID, "check",
		map[string]any{"condition": "login_success"}, e.settings.Browser.ActionTimeout)
	loggedIn := err == nil && !check.IsError()
	update.LoggedIn = &loggedIn

	store.MergeEnvironmentState(update)
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

// Status reports the execution status of a session, or false when the
// session has never executed anything.
func (e *Engine) Status(sessionID string) (types.ExecutionStatus, bool) {
	e.mu.Lock()
	b, ok := e.bundles[sessionID]
	e.mu.Unlock()
	if !ok {
		return types.ExecutionStatus{}, false
	}
	return b.tracker.Status(), true
}

// History returns the bounded task history of a session.
func (e *Engine) History(sessionID string) []types.HistoryEntry {
	e.mu.Lock()
	b, ok := e.bundles[sessionID]
	e.mu.Unlock()
	if !ok {
		return nil
	}
	return b.tracker.History()
}

// Context exposes a session's context store for inspection endpoints.
func (e *Engine) Context(sessionID string) (*memory.Store, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, ok := e.bundles[sessionID]
	if !ok {
		return nil, false
	}
	return b.ctx, true
}

// DropSession removes the per-session bundle and the session record, and
// closes the session's browsing context.
func (e *Engine) DropSession(sessionID string) bool {
	e.mu.Lock()
	delete(e.bundles, sessionID)
	e.mu.Unlock()

	if e.closer != nil {
		if err := e.closer.Close(sessionID); err != nil && e.log != nil {
			e.log.Warnf("closing browsing context for %s: %v", sessionID, err)
		}
	}
	return e.sessions.Delete(sessionID)
}

// Sessions exposes the underlying session store.
func (e *Engine) Sessions() *session.Store { return e.sessions }
