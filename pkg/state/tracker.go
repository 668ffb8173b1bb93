// Package state tracks the progress of one plan execution per session: a
// small state machine over {idle, running, error, completed} with bounded
// task history. Every mutation mirrors the updated record into the
// session's context store so status readers and the planner always see the
// live execution state.
package state

import (
	"sync"
	"time"

	"github.com/nullfox-coder/NatanAI/pkg/logging"
	"github.com/nullfox-coder/NatanAI/pkg/memory"
	"github.com/nullfox-coder/NatanAI/pkg/types"
)

// Update is a partial tracker mutation. Nil fields are left untouched.
type Update struct {
	// LastStepCompleted advances steps-completed to the value plus one and,
	// when more steps remain, moves current-step forward by consulting the
	// most recent plan in the context store.
	LastStepCompleted *int

	// LastAction stamps the last-action time when it changes.
	LastAction *string

	// LastActionResult with an error status appends an error record and
	// forces the tracker into the error state.
	LastActionResult *types.Result
}

// Tracker owns the execution record for a single session. Safe for one
// concurrent writer plus any number of status readers.
type Tracker struct {
	mu         sync.RWMutex
	snap       types.ExecutionSnapshot
	history    []types.HistoryEntry
	maxHistory int
	ctxStore   *memory.Store
	log        *logging.Logger

	now func() time.Time
}

// NewTracker creates an idle tracker bound to the session's context store.
// The store may be nil in tests; mirroring is skipped.
func NewTracker(ctxStore *memory.Store, maxHistory int, log *logging.Logger) *Tracker {
	return &Tracker{
		snap:       types.ExecutionSnapshot{Status: types.ExecIdle},
		maxHistory: maxHistory,
		ctxStore:   ctxStore,
		log:        log,
		now:        time.Now,
	}
}

// Start resets the record to running and seeds it from the plan.
func (t *Tracker) Start(command string, plan *types.Plan) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.snap = types.ExecutionSnapshot{
		Status:    types.ExecRunning,
		Command:   command,
		StartTime: t.now(),
	}
	if plan != nil {
		t.snap.TotalSteps = len(plan.Steps)
		if len(plan.Steps) > 0 {
			step := plan.Steps[0]
			t.snap.CurrentStep = &step
		}
	}

	if t.log != nil {
		t.log.Infof("execution started: %s (%d steps)", command, t.snap.TotalSteps)
	}
	t.mirrorLocked()
}

// Apply merges a partial update into the record.
func (t *Tracker) Apply(u Update) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if u.LastAction != nil && *u.LastAction != t.snap.LastAction {
		t.snap.LastAction = *u.LastAction
		t.snap.LastActionTime = t.now()
	}
	if u.LastActionResult != nil {
		t.snap.LastActionResult = u.LastActionResult
		if u.LastActionResult.IsError() {
			t.appendErrorLocked(u.LastActionResult.Error, nil)
		}
	}
	if u.LastStepCompleted != nil {
		t.snap.StepsCompleted = *u.LastStepCompleted + 1
		t.advanceStepLocked()
	}

	t.mirrorLocked()
}

// advanceStepLocked moves current-step to steps-completed using the most
// recent plan in context history, if any steps remain.
func (t *Tracker) advanceStepLocked() {
	if t.snap.StepsCompleted >= t.snap.TotalSteps {
		t.snap.CurrentStep = nil
		t.snap.CurrentStepIndex = t.snap.TotalSteps
		return
	}
	t.snap.CurrentStepIndex = t.snap.StepsCompleted
	if t.ctxStore == nil {
		return
	}
	if plan := t.ctxStore.LatestPlan(); plan != nil && t.snap.CurrentStepIndex < len(plan.Steps) {
		step := plan.Steps[t.snap.CurrentStepIndex]
		t.snap.CurrentStep = &step
	}
}

// Complete closes the execution: completed on success, error otherwise, and
// appends a summary to the bounded task history.
func (t *Tracker) Complete(result *types.PlanResult) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if result != nil && result.Status == types.StatusSuccess {
		t.snap.Status = types.ExecCompleted
	} else {
		t.snap.Status = types.ExecError
	}
	t.snap.EndTime = t.now()

	entry := types.HistoryEntry{
		Command:        t.snap.Command,
		StartTime:      t.snap.StartTime,
		EndTime:        t.snap.EndTime,
		Status:         t.snap.Status,
		StepsCompleted: t.snap.StepsCompleted,
		TotalSteps:     t.snap.TotalSteps,
		Errors:         append([]types.ExecutionEvent(nil), t.snap.Errors...),
		Result:         result,
	}
	t.history = append(t.history, entry)
	if t.maxHistory > 0 && len(t.history) > t.maxHistory {
		t.history = t.history[len(t.history)-t.maxHistory:]
	}

	if t.log != nil {
		t.log.Infof("execution finished: %s (%d/%d steps, status=%s)",
			t.snap.Command, t.snap.StepsCompleted, t.snap.TotalSteps, t.snap.Status)
	}
	t.mirrorLocked()
}

// AddError appends an error record and forces the error state.
func (t *Tracker) AddError(message string, details map[string]any) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.appendErrorLocked(message, details)
	t.mirrorLocked()
}

func (t *Tracker) appendErrorLocked(message string, details map[string]any) {
	t.snap.Errors = append(t.snap.Errors, types.ExecutionEvent{
		Timestamp: t.now(),
		Action:    t.snap.LastAction,
		Message:   message,
		Details:   details,
	})
	t.snap.Status = types.ExecError
	if t.log != nil {
		t.log.Errorf("execution error: %s", message)
	}
}

// AddWarning appends a warning record without changing the status.
func (t *Tracker) AddWarning(message string, details map[string]any) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.snap.Warnings = append(t.snap.Warnings, types.ExecutionEvent{
		Timestamp: t.now(),
		Action:    t.snap.LastAction,
		Message:   message,
		Details:   details,
	})
	if t.log != nil {
		t.log.Warnf("execution warning: %s", message)
	}
	t.mirrorLocked()
}

// Status returns the derived read-only view. Duration is measured to now
// while running, to the end time once finished.
func (t *Tracker) Status() types.ExecutionStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var duration time.Duration
	if !t.snap.StartTime.IsZero() {
		if t.snap.Status == types.ExecRunning {
			duration = t.now().Sub(t.snap.StartTime)
		} else if !t.snap.EndTime.IsZero() {
			duration = t.snap.EndTime.Sub(t.snap.StartTime)
		}
	}

	return types.ExecutionStatus{
		Status:         t.snap.Status,
		Command:        t.snap.Command,
		CurrentStep:    t.snap.CurrentStepIndex,
		TotalSteps:     t.snap.TotalSteps,
		StepsCompleted: t.snap.StepsCompleted,
		Duration:       duration,
		Errors:         len(t.snap.Errors),
		Warnings:       len(t.snap.Warnings),
	}
}

// Snapshot returns a copy of the full execution record.
func (t *Tracker) Snapshot() types.ExecutionSnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.copySnapLocked()
}

// History returns the bounded task history, oldest first.
func (t *Tracker) History() []types.HistoryEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]types.HistoryEntry(nil), t.history...)
}

// Reset returns the tracker to the idle record. Task history is kept.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.snap = types.ExecutionSnapshot{Status: types.ExecIdle}
	t.mirrorLocked()
}

func (t *Tracker) copySnapLocked() types.ExecutionSnapshot {
	cp := t.snap
	cp.Errors = append([]types.ExecutionEvent(nil), t.snap.Errors...)
	cp.Warnings = append([]types.ExecutionEvent(nil), t.snap.Warnings...)
	if t.snap.CurrentStep != nil {
		step := *t.snap.CurrentStep
		cp.CurrentStep = &step
	}
	return cp
}

// mirrorLocked pushes the updated record into the context store's
// environment state. This is the only tracker -> context integration.
func (t *Tracker) mirrorLocked() {
	if t.ctxStore == nil {
		return
	}
	snap := t.copySnapLocked()
	t.ctxStore.MergeEnvironmentState(memory.StateUpdate{Execution: &snap})
}
