package recovery

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nullfox-coder/NatanAI/pkg/types"
)

// fakeExecutor records side actions and serves canned responses per action
// name.
type fakeExecutor struct {
	calls     []string
	responses map[string]types.Result
}

func (f *fakeExecutor) Perform(_ context.Context, _ string, action string, _ map[string]any, _ time.Duration) (types.Result, error) {
	f.calls = append(f.calls, action)
	if res, ok := f.responses[action]; ok {
		return res, nil
	}
	return types.Fail("no such element: stub", ""), nil
}

func newTestEngine(exec *fakeExecutor) *Engine {
	e := NewEngine(exec, Options{
		RetryDelay:      time.Millisecond,
		ConnectionDelay: time.Millisecond,
		ActionTimeout:   time.Second,
	}, nil)
	e.sleep = func(context.Context, time.Duration) {}
	return e
}

// scriptedRunner fails a fixed number of times, then succeeds.
func scriptedRunner(failures int, attempts *int) StepRunner {
	return func(context.Context, types.Step) types.Result {
		*attempts++
		if *attempts <= failures {
			return types.Fail("no such element: #target", "")
		}
		return types.OK("recovered", map[string]any{"attempt": *attempts})
	}
}

func elementStep(actions ...types.RecoveryAction) types.Step {
	return types.Step{
		Action:      "click",
		Params:      map[string]any{"element": "#target"},
		Description: "click target",
		Recovery: types.RecoveryPolicy{
			Conditions: []types.ErrorKind{types.KindElementNotFound, types.KindTimeout},
			Actions:    actions,
		},
	}
}

func TestAttemptUnmatchedKindSkipsRecovery(t *testing.T) {
	exec := &fakeExecutor{}
	engine := newTestEngine(exec)

	step := elementStep(types.RecoverRetry)
	failure := types.Fail("reCAPTCHA challenge displayed", "")

	attempts := 0
	recovered, result, err := engine.Attempt(context.Background(), "s1", step, failure, scriptedRunner(0, &attempts))
	require.NoError(t, err)
	assert.False(t, recovered)
	assert.Equal(t, failure, result)
	// The runner must never be invoked for an unmatched kind.
	assert.Zero(t, attempts)
	assert.Empty(t, exec.calls)
}

func TestAttemptWildcardMatchesEverything(t *testing.T) {
	engine := newTestEngine(&fakeExecutor{})

	step := types.Step{
		Action: "click",
		Recovery: types.RecoveryPolicy{
			Conditions: []types.ErrorKind{types.KindAny},
			Actions:    []types.RecoveryAction{types.RecoverRetry},
		},
	}

	attempts := 0
	recovered, result, err := engine.Attempt(context.Background(), "s1", step,
		types.Fail("something inexplicable", ""), scriptedRunner(0, &attempts))
	require.NoError(t, err)
	assert.True(t, recovered)
	assert.Equal(t, types.StatusSuccess, result.Status)
}

func TestAttemptFirstSuccessWins(t *testing.T) {
	engine := newTestEngine(&fakeExecutor{})

	// retry succeeds immediately; wait must never run.
	step := elementStep(types.RecoverRetry, types.RecoverWait, types.RecoverAbort)

	attempts := 0
	recovered, result, err := engine.Attempt(context.Background(), "s1", step,
		types.Fail("no such element: #target", ""), scriptedRunner(0, &attempts))
	require.NoError(t, err)
	assert.True(t, recovered)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, "recovered", result.Message)
}

func TestAttemptActionsRunInDeclaredOrder(t *testing.T) {
	engine := newTestEngine(&fakeExecutor{})

	// First retry fails, the wait-then-retry succeeds.
	step := elementStep(types.RecoverRetry, types.RecoverWait)

	attempts := 0
	recovered, result, err := engine.Attempt(context.Background(), "s1", step,
		types.Fail("no such element: #target", ""), scriptedRunner(1, &attempts))
	require.NoError(t, err)
	assert.True(t, recovered)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, 2, result.Data["attempt"])
}

func TestAttemptExhaustedReturnsOriginalFailure(t *testing.T) {
	engine := newTestEngine(&fakeExecutor{})

	step := elementStep(types.RecoverRetry, types.RecoverWait)
	failure := types.Fail("no such element: #target", "")

	attempts := 0
	runner := func(context.Context, types.Step) types.Result {
		attempts++
		return types.Fail("still missing", "")
	}

	recovered, result, err := engine.Attempt(context.Background(), "s1", step, failure, runner)
	require.NoError(t, err)
	assert.False(t, recovered)
	assert.Equal(t, failure, result)
	assert.Equal(t, 2, attempts)
}

func TestAttemptAbortStopsImmediately(t *testing.T) {
	engine := newTestEngine(&fakeExecutor{})

	step := elementStep(types.RecoverAbort, types.RecoverRetry)
	failure := types.Fail("no such element: #target", "")

	attempts := 0
	recovered, result, err := engine.Attempt(context.Background(), "s1", step, failure, scriptedRunner(0, &attempts))
	require.NoError(t, err)
	assert.False(t, recovered)
	assert.Equal(t, failure, result)
	// The retry listed after abort never runs.
	assert.Zero(t, attempts)
}

func TestAttemptScrollIntoView(t *testing.T) {
	exec := &fakeExecutor{responses: map[string]types.Result{
		"scroll": types.OK("scrolled", nil),
	}}
	engine := newTestEngine(exec)

	step := elementStep(types.RecoverScrollIntoView)

	attempts := 0
	recovered, _, err := engine.Attempt(context.Background(), "s1", step,
		types.Fail("no such element: #target", ""), scriptedRunner(0, &attempts))
	require.NoError(t, err)
	assert.True(t, recovered)
	assert.Equal(t, []string{"scroll"}, exec.calls)
}

func TestAttemptScrollSkipsNonElementActions(t *testing.T) {
	exec := &fakeExecutor{}
	engine := newTestEngine(exec)

	step := types.Step{
		Action: "navigate",
		Params: map[string]any{"url": "https://example.com"},
		Recovery: types.RecoveryPolicy{
			Conditions: []types.ErrorKind{types.KindTimeout},
			Actions:    []types.RecoveryAction{types.RecoverScrollIntoView},
		},
	}

	attempts := 0
	recovered, _, err := engine.Attempt(context.Background(), "s1", step,
		types.Fail("Timeout 30000ms exceeded", ""), scriptedRunner(0, &attempts))
	require.NoError(t, err)
	assert.True(t, recovered)
	// No scroll call for a URL-addressed action, just the retry.
	assert.Empty(t, exec.calls)
}

func TestAttemptPressEnter(t *testing.T) {
	exec := &fakeExecutor{responses: map[string]types.Result{
		"press": types.OK("pressed Enter", nil),
	}}
	engine := newTestEngine(exec)

	step := elementStep(types.RecoverPressEnter)

	recovered, result, err := engine.Attempt(context.Background(), "s1", step,
		types.Fail("no such element: #target", ""),
		func(context.Context, types.Step) types.Result {
			t.Fatal("press_enter must substitute, not retry")
			return types.Result{}
		})
	require.NoError(t, err)
	assert.True(t, recovered)
	assert.Equal(t, "pressed Enter", result.Message)
}

func TestAttemptCheckLoginStatus(t *testing.T) {
	engine := newTestEngine(&fakeExecutor{})

	step := elementStep(types.RecoverCheckLoginStatus)

	var checked types.Step
	runner := func(_ context.Context, s types.Step) types.Result {
		checked = s
		return types.OK("logged in", nil)
	}

	recovered, _, err := engine.Attempt(context.Background(), "s1", step,
		types.Fail("no such element: #target", ""), runner)
	require.NoError(t, err)
	assert.True(t, recovered)
	assert.Equal(t, "check", checked.Action)
	assert.Equal(t, "login_success", checked.StringParam("condition"))
}

func TestAttemptHandleCaptchaRequiresHuman(t *testing.T) {
	engine := newTestEngine(&fakeExecutor{})

	step := types.Step{
		Action: "click",
		Recovery: types.RecoveryPolicy{
			Conditions: []types.ErrorKind{types.KindCaptcha},
			Actions:    []types.RecoveryAction{types.RecoverHandleCaptcha, types.RecoverRetry},
		},
	}

	attempts := 0
	recovered, result, err := engine.Attempt(context.Background(), "s1", step,
		types.Fail("reCAPTCHA challenge displayed", ""), scriptedRunner(0, &attempts))
	require.NoError(t, err)
	assert.False(t, recovered)
	assert.True(t, result.RequiresHuman)
	// Terminal for automation: the retry after it never runs.
	assert.Zero(t, attempts)
}

func TestAttemptReportLoginError(t *testing.T) {
	exec := &fakeExecutor{responses: map[string]types.Result{
		"page_errors": types.OK("", map[string]any{
			"messages": []any{"Invalid password", "Account locked"},
		}),
	}}
	engine := newTestEngine(exec)

	step := elementStep(types.RecoverReportLoginError)

	recovered, result, err := engine.Attempt(context.Background(), "s1", step,
		types.Fail("no such element: #submit", ""), nil)
	require.NoError(t, err)
	assert.False(t, recovered)
	assert.Equal(t, "Login failed", result.Error)
	assert.Contains(t, result.Message, "Invalid password, Account locked")
}

func TestAttemptFindLoginLink(t *testing.T) {
	exec := &fakeExecutor{responses: map[string]types.Result{
		"find_text": types.OK("found", map[string]any{"selector": "a.login"}),
		"click":     types.OK("clicked", nil),
	}}
	engine := newTestEngine(exec)

	step := elementStep(types.RecoverFindLoginLink)

	attempts := 0
	recovered, _, err := engine.Attempt(context.Background(), "s1", step,
		types.Fail("no such element: #username", ""), scriptedRunner(0, &attempts))
	require.NoError(t, err)
	assert.True(t, recovered)
	assert.Contains(t, exec.calls, "find_text")
	assert.Contains(t, exec.calls, "click")
	assert.Equal(t, 1, attempts)
}

func TestAttemptUnknownActionRejected(t *testing.T) {
	engine := newTestEngine(&fakeExecutor{})

	step := elementStep(types.RecoveryAction("summon_wizard"))

	_, _, err := engine.Attempt(context.Background(), "s1", step,
		types.Fail("no such element: #target", ""), nil)
	var unknownErr *UnknownActionError
	require.ErrorAs(t, err, &unknownErr)
	assert.Equal(t, types.RecoveryAction("summon_wizard"), unknownErr.Action)
}

func TestAttemptRetryBudgetCapsReExecutions(t *testing.T) {
	exec := &fakeExecutor{}
	engine := NewEngine(exec, Options{
		RetryDelay:      time.Millisecond,
		ConnectionDelay: time.Millisecond,
		ActionTimeout:   time.Second,
		MaxRetries:      2,
	}, nil)
	engine.sleep = func(context.Context, time.Duration) {}

	step := elementStep(
		types.RecoverRetry, types.RecoverWait, types.RecoverCheckConnection,
		types.RecoverRetry, types.RecoverAbort,
	)
	failure := types.Fail("no such element: #target", "")

	attempts := 0
	recovered, result, err := engine.Attempt(context.Background(), "s1", step,
		failure, scriptedRunner(99, &attempts))
	require.NoError(t, err)
	assert.False(t, recovered)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, failure.Error, result.Error)
}

func TestAttemptBudgetSkipLeavesTerminalActionsReachable(t *testing.T) {
	exec := &fakeExecutor{responses: map[string]types.Result{
		"page_errors": types.OK("collected", map[string]any{"messages": []string{"Bad password"}}),
	}}
	engine := NewEngine(exec, Options{
		RetryDelay:    time.Millisecond,
		ActionTimeout: time.Second,
		MaxRetries:    1,
	}, nil)
	engine.sleep = func(context.Context, time.Duration) {}

	step := types.Step{
		Action:      "check",
		Params:      map[string]any{"condition": "login_success"},
		Description: "verify login",
		Recovery: types.RecoveryPolicy{
			Conditions: []types.ErrorKind{types.KindValidation},
			Actions: []types.RecoveryAction{
				types.RecoverRetry, types.RecoverRetry, types.RecoverReportLoginError,
			},
		},
	}

	attempts := 0
	recovered, result, err := engine.Attempt(context.Background(), "s1", step,
		types.Fail("validation failed: no logged-in indicators found", ""),
		scriptedRunner(99, &attempts))
	require.NoError(t, err)
	assert.False(t, recovered)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, "Login failed: Bad password", result.Message)
}
