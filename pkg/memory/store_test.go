package memory

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nullfox-coder/NatanAI/pkg/types"
)

func TestRecordCommandEvictsOldest(t *testing.T) {
	store := NewStore(3, nil)

	for i := 1; i <= 5; i++ {
		store.RecordCommand(fmt.Sprintf("cmd %d", i), types.ParsedCommand{Action: "noop"})
	}

	recent := store.RecentCommands(10)
	require.Len(t, recent, 3)
	// Most recent first.
	assert.Equal(t, "cmd 5", recent[0].Raw)
	assert.Equal(t, "cmd 4", recent[1].Raw)
	assert.Equal(t, "cmd 3", recent[2].Raw)
}

func TestRecordPlanEvictsOldest(t *testing.T) {
	store := NewStore(2, nil)

	for i := 1; i <= 3; i++ {
		store.RecordPlan(&types.Plan{ExpectedOutcome: fmt.Sprintf("plan %d", i)})
	}

	latest := store.LatestPlan()
	require.NotNil(t, latest)
	assert.Equal(t, "plan 3", latest.ExpectedOutcome)

	snap := store.Export()
	require.Len(t, snap.Plans, 2)
	assert.Equal(t, "plan 2", snap.Plans[0].Plan.ExpectedOutcome)
}

func TestLatestPlanEmpty(t *testing.T) {
	store := NewStore(5, nil)
	assert.Nil(t, store.LatestPlan())
}

func TestMergeEnvironmentState(t *testing.T) {
	store := NewStore(5, nil)

	url := "https://example.com"
	title := "Example"
	store.MergeEnvironmentState(StateUpdate{URL: &url, Title: &title})

	loggedIn := true
	store.MergeEnvironmentState(StateUpdate{
		LoggedIn: &loggedIn,
		FormData: map[string]any{"email": "a@b.c"},
	})

	env := store.Environment()
	// Earlier fields survive a later partial update.
	assert.Equal(t, "https://example.com", env.URL)
	assert.Equal(t, "Example", env.Title)
	assert.True(t, env.LoggedIn)
	assert.Equal(t, "a@b.c", env.FormData["email"])
	assert.False(t, env.LastUpdated.IsZero())
}

func TestMergeEnvironmentStateFormDataMerges(t *testing.T) {
	store := NewStore(5, nil)

	store.MergeEnvironmentState(StateUpdate{FormData: map[string]any{"a": 1}})
	store.MergeEnvironmentState(StateUpdate{FormData: map[string]any{"b": 2}})

	env := store.Environment()
	assert.Equal(t, 1, env.FormData["a"])
	assert.Equal(t, 2, env.FormData["b"])
}

func TestEntityLifecycle(t *testing.T) {
	store := NewStore(5, nil)

	id := store.AddEntity("website", "example.com", "")
	assert.Equal(t, "website_1", id)

	id2 := store.AddEntity("product", "shoes", "")
	assert.Equal(t, "product_2", id2)

	// Explicit id wins over generation.
	id3 := store.AddEntity("user", "alice", "primary_user")
	assert.Equal(t, "primary_user", id3)

	e, ok := store.GetEntity(id)
	require.True(t, ok)
	assert.Equal(t, "website", e.Type)
	assert.Equal(t, 2, e.UsageCount)

	e, ok = store.GetEntity(id)
	require.True(t, ok)
	assert.Equal(t, 3, e.UsageCount)

	_, ok = store.GetEntity("missing")
	assert.False(t, ok)
}

func TestEntitiesByType(t *testing.T) {
	store := NewStore(5, nil)
	store.AddEntity("website", "a.com", "")
	store.AddEntity("website", "b.com", "")
	store.AddEntity("product", "shoes", "")

	sites := store.EntitiesByType("website")
	assert.Len(t, sites, 2)

	before := sites["website_1"].UsageCount
	// Type lookup must not bump usage.
	sites = store.EntitiesByType("website")
	assert.Equal(t, before, sites["website_1"].UsageCount)
}

func TestSessionVars(t *testing.T) {
	store := NewStore(5, nil)

	assert.Equal(t, "none", store.SessionVar("username", "none"))
	store.SetSessionVar("username", "alice")
	assert.Equal(t, "alice", store.SessionVar("username", "none"))
}

func TestExportImportRoundTrip(t *testing.T) {
	store := NewStore(3, nil)
	store.RecordCommand("go to example.com", types.ParsedCommand{Action: "navigate", Target: "example.com"})
	store.RecordCommand("click login", types.ParsedCommand{Action: "click", Target: "login"})
	store.RecordPlan(&types.Plan{ExpectedOutcome: "on example.com"})
	store.SetSessionVar("username", "alice")
	store.AddEntity("website", "example.com", "")
	url := "https://example.com"
	store.MergeEnvironmentState(StateUpdate{URL: &url})

	snap := store.Export()

	restored := NewStore(3, nil)
	restored.Import(snap)

	assert.Equal(t, "https://example.com", restored.Environment().URL)
	assert.Equal(t, "alice", restored.SessionVar("username", ""))

	recent := restored.RecentCommands(10)
	require.Len(t, recent, 2)
	assert.Equal(t, "click login", recent[0].Raw)
	assert.Equal(t, "go to example.com", recent[1].Raw)

	e, ok := restored.GetEntity("website_1")
	require.True(t, ok)
	assert.Equal(t, "example.com", e.Value)
}

func TestExportDetachesEnvironmentFromLiveStore(t *testing.T) {
	store := NewStore(3, nil)
	store.MergeEnvironmentState(StateUpdate{
		VisibleElements: []VisibleElement{{Role: "button", Description: "Login"}},
		FormData:        map[string]any{"email": "alice@example.com"},
		Execution: &types.ExecutionSnapshot{
			Status: types.ExecRunning,
			Errors: []types.ExecutionEvent{{Message: "first"}},
		},
	})

	snap := store.Export()
	snap.Environment.VisibleElements[0].Description = "mutated"
	snap.Environment.FormData["email"] = "mallory@example.com"
	snap.Environment.Execution.Status = types.ExecError
	snap.Environment.Execution.Errors[0].Message = "mutated"

	env := store.Environment()
	assert.Equal(t, "Login", env.VisibleElements[0].Description)
	assert.Equal(t, "alice@example.com", env.FormData["email"])
	assert.Equal(t, types.ExecRunning, env.Execution.Status)
	assert.Equal(t, "first", env.Execution.Errors[0].Message)
}

func TestImportDetachesEnvironmentFromSnapshot(t *testing.T) {
	snap := Snapshot{Environment: EnvironmentState{
		VisibleElements: []VisibleElement{{Role: "link", Description: "Home"}},
		Execution:       &types.ExecutionSnapshot{Status: types.ExecCompleted},
	}}

	store := NewStore(3, nil)
	store.Import(snap)

	snap.Environment.VisibleElements[0].Description = "mutated"
	snap.Environment.Execution.Status = types.ExecError

	env := store.Environment()
	assert.Equal(t, "Home", env.VisibleElements[0].Description)
	assert.Equal(t, types.ExecCompleted, env.Execution.Status)
}

func TestImportReappliesCap(t *testing.T) {
	big := NewStore(10, nil)
	for i := 1; i <= 6; i++ {
		big.RecordCommand(fmt.Sprintf("cmd %d", i), types.ParsedCommand{})
	}

	small := NewStore(2, nil)
	small.Import(big.Export())

	recent := small.RecentCommands(10)
	require.Len(t, recent, 2)
	assert.Equal(t, "cmd 6", recent[0].Raw)
	assert.Equal(t, "cmd 5", recent[1].Raw)
}

func TestImportedStoreKeepsEvicting(t *testing.T) {
	store := NewStore(2, nil)
	store.RecordCommand("one", types.ParsedCommand{})
	store.RecordCommand("two", types.ParsedCommand{})

	restored := NewStore(2, nil)
	restored.Import(store.Export())
	restored.RecordCommand("three", types.ParsedCommand{})

	recent := restored.RecentCommands(10)
	require.Len(t, recent, 2)
	assert.Equal(t, "three", recent[0].Raw)
	assert.Equal(t, "two", recent[1].Raw)
}

func TestClearHistory(t *testing.T) {
	store := NewStore(5, nil)
	store.RecordCommand("cmd", types.ParsedCommand{})
	store.RecordPlan(&types.Plan{})
	store.SetSessionVar("k", "v")

	store.ClearHistory()

	assert.Empty(t, store.RecentCommands(10))
	assert.Nil(t, store.LatestPlan())
	// Vars and environment survive a history clear.
	assert.Equal(t, "v", store.SessionVar("k", ""))
}

func TestHistoryPreservesInsertionOrder(t *testing.T) {
	store := NewStore(10, nil)
	store.now = func() time.Time { return time.Unix(100, 0) }
	store.RecordCommand("first", types.ParsedCommand{})
	store.now = func() time.Time { return time.Unix(50, 0) }
	store.RecordCommand("second", types.ParsedCommand{})

	// Insertion order, not timestamp order.
	snap := store.Export()
	require.Len(t, snap.Commands, 2)
	assert.Equal(t, "first", snap.Commands[0].Raw)
	assert.Equal(t, "second", snap.Commands[1].Raw)
}
