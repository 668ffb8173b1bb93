package state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nullfox-coder/NatanAI/pkg/memory"
	"github.com/nullfox-coder/NatanAI/pkg/types"
)

func twoStepPlan() *types.Plan {
	return &types.Plan{
		Steps: []types.Step{
			{Action: "navigate", Description: "go to example.com"},
			{Action: "click", Description: "click login"},
		},
		ExpectedOutcome: "logged in",
	}
}

func intPtr(i int) *int       { return &i }
func strPtr(s string) *string { return &s }

func TestStartSeedsFromPlan(t *testing.T) {
	tr := NewTracker(nil, 10, nil)
	tr.Start("log in", twoStepPlan())

	snap := tr.Snapshot()
	assert.Equal(t, types.ExecRunning, snap.Status)
	assert.Equal(t, "log in", snap.Command)
	assert.Equal(t, 2, snap.TotalSteps)
	require.NotNil(t, snap.CurrentStep)
	assert.Equal(t, "navigate", snap.CurrentStep.Action)
	assert.Equal(t, 0, snap.StepsCompleted)
}

func TestStartEmptyPlan(t *testing.T) {
	tr := NewTracker(nil, 10, nil)
	tr.Start("noop", &types.Plan{})

	snap := tr.Snapshot()
	assert.Equal(t, types.ExecRunning, snap.Status)
	assert.Zero(t, snap.TotalSteps)
	assert.Nil(t, snap.CurrentStep)
}

func TestApplyAdvancesCurrentStep(t *testing.T) {
	ctxStore := memory.NewStore(10, nil)
	plan := twoStepPlan()
	ctxStore.RecordPlan(plan)

	tr := NewTracker(ctxStore, 10, nil)
	tr.Start("log in", plan)

	tr.Apply(Update{LastStepCompleted: intPtr(0)})

	snap := tr.Snapshot()
	assert.Equal(t, 1, snap.StepsCompleted)
	assert.Equal(t, 1, snap.CurrentStepIndex)
	require.NotNil(t, snap.CurrentStep)
	assert.Equal(t, "click", snap.CurrentStep.Action)

	// Completing the final step clears the current step.
	tr.Apply(Update{LastStepCompleted: intPtr(1)})
	snap = tr.Snapshot()
	assert.Equal(t, 2, snap.StepsCompleted)
	assert.Nil(t, snap.CurrentStep)
}

func TestApplyLastActionStampsTime(t *testing.T) {
	tr := NewTracker(nil, 10, nil)
	base := time.Now()
	tr.now = func() time.Time { return base }
	tr.Start("cmd", twoStepPlan())

	tr.now = func() time.Time { return base.Add(time.Second) }
	tr.Apply(Update{LastAction: strPtr("navigate")})

	snap := tr.Snapshot()
	assert.Equal(t, "navigate", snap.LastAction)
	assert.Equal(t, base.Add(time.Second), snap.LastActionTime)

	// Same action again: no restamp.
	tr.now = func() time.Time { return base.Add(2 * time.Second) }
	tr.Apply(Update{LastAction: strPtr("navigate")})
	assert.Equal(t, base.Add(time.Second), tr.Snapshot().LastActionTime)
}

func TestApplyErrorResultForcesErrorState(t *testing.T) {
	tr := NewTracker(nil, 10, nil)
	tr.Start("cmd", twoStepPlan())

	res := types.Fail("element not found", "")
	tr.Apply(Update{LastActionResult: &res})

	snap := tr.Snapshot()
	assert.Equal(t, types.ExecError, snap.Status)
	require.Len(t, snap.Errors, 1)
	assert.Equal(t, "element not found", snap.Errors[0].Message)
}

func TestCompleteRecordsHistory(t *testing.T) {
	tr := NewTracker(nil, 10, nil)
	tr.Start("cmd", twoStepPlan())
	tr.Apply(Update{LastStepCompleted: intPtr(0)})
	tr.Apply(Update{LastStepCompleted: intPtr(1)})

	tr.Complete(&types.PlanResult{Status: types.StatusSuccess, Message: "done"})

	snap := tr.Snapshot()
	assert.Equal(t, types.ExecCompleted, snap.Status)
	assert.False(t, snap.EndTime.IsZero())

	history := tr.History()
	require.Len(t, history, 1)
	assert.Equal(t, "cmd", history[0].Command)
	assert.Equal(t, 2, history[0].StepsCompleted)
	assert.Equal(t, types.ExecCompleted, history[0].Status)
}

func TestCompleteWithErrorResult(t *testing.T) {
	tr := NewTracker(nil, 10, nil)
	tr.Start("cmd", twoStepPlan())
	tr.Complete(&types.PlanResult{Status: types.StatusError, Message: "failed at step 1"})

	assert.Equal(t, types.ExecError, tr.Snapshot().Status)
}

func TestHistoryIsBounded(t *testing.T) {
	tr := NewTracker(nil, 2, nil)
	for i := 0; i < 4; i++ {
		tr.Start("cmd", &types.Plan{})
		tr.Complete(&types.PlanResult{Status: types.StatusSuccess})
	}
	assert.Len(t, tr.History(), 2)
}

func TestAddErrorAndWarning(t *testing.T) {
	tr := NewTracker(nil, 10, nil)
	tr.Start("cmd", twoStepPlan())

	tr.AddWarning("slow page", nil)
	assert.Equal(t, types.ExecRunning, tr.Snapshot().Status)

	tr.AddError("boom", map[string]any{"step": 1})
	snap := tr.Snapshot()
	assert.Equal(t, types.ExecError, snap.Status)

	status := tr.Status()
	assert.Equal(t, 1, status.Errors)
	assert.Equal(t, 1, status.Warnings)
}

func TestStatusDuration(t *testing.T) {
	tr := NewTracker(nil, 10, nil)
	base := time.Now()
	tr.now = func() time.Time { return base }
	tr.Start("cmd", twoStepPlan())

	tr.now = func() time.Time { return base.Add(3 * time.Second) }
	assert.Equal(t, 3*time.Second, tr.Status().Duration)

	tr.Complete(&types.PlanResult{Status: types.StatusSuccess})

	// After completion the duration is frozen at end - start.
	tr.now = func() time.Time { return base.Add(10 * time.Second) }
	assert.Equal(t, 3*time.Second, tr.Status().Duration)
}

func TestReset(t *testing.T) {
	tr := NewTracker(nil, 10, nil)
	tr.Start("cmd", twoStepPlan())
	tr.AddError("boom", nil)
	tr.Complete(&types.PlanResult{Status: types.StatusError})

	tr.Reset()

	snap := tr.Snapshot()
	assert.Equal(t, types.ExecIdle, snap.Status)
	assert.Empty(t, snap.Errors)
	assert.Zero(t, snap.TotalSteps)
	// History survives a reset.
	assert.Len(t, tr.History(), 1)
}

func TestMutationsMirrorIntoContextStore(t *testing.T) {
	ctxStore := memory.NewStore(10, nil)
	tr := NewTracker(ctxStore, 10, nil)

	tr.Start("cmd", twoStepPlan())
	env := ctxStore.Environment()
	require.NotNil(t, env.Execution)
	assert.Equal(t, types.ExecRunning, env.Execution.Status)

	tr.AddError("boom", nil)
	env = ctxStore.Environment()
	require.NotNil(t, env.Execution)
	assert.Equal(t, types.ExecError, env.Execution.Status)
	assert.Len(t, env.Execution.Errors, 1)

	tr.Complete(&types.PlanResult{Status: types.StatusError})
	env = ctxStore.Environment()
	require.NotNil(t, env.Execution)
	assert.Equal(t, types.ExecError, env.Execution.Status)
	assert.False(t, env.Execution.EndTime.IsZero())
}
