// Package memory implements the per-session context store: bounded command
// and plan histories, the mutable environment-state record shared with the
// execution tracker, named entities, and session variables. It also exposes
// the language-model backed hint path used to disambiguate commands.
package memory

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nullfox-coder/NatanAI/pkg/logging"
	"github.com/nullfox-coder/NatanAI/pkg/types"
)

// VisibleElement describes one interactable affordance on the current page,
// as reported by extraction actions.
type VisibleElement struct {
	Role        string `json:"role"`
	Description string `json:"description"`
	Selector    string `json:"selector,omitempty"`
}

// EnvironmentState is the store's view of the external environment: where
// the session currently is, what it can see, and how the last execution
// went. The tracker mirrors its record into Execution on every mutation.
type EnvironmentState struct {
	URL             string                   `json:"url,omitempty"`
	Title           string                   `json:"title,omitempty"`
	LoggedIn        bool                     `json:"is_logged_in"`
	VisibleElements []VisibleElement         `json:"visible_elements,omitempty"`
	FormData        map[string]any           `json:"form_data,omitempty"`
	Execution       *types.ExecutionSnapshot `json:"execution,omitempty"`
	LastUpdated     time.Time                `json:"last_updated,omitzero"`
}

// StateUpdate is a partial environment-state mutation. Nil fields are left
// untouched; set fields win last-write-wins.
type StateUpdate struct {
	URL             *string
	Title           *string
	LoggedIn        *bool
	VisibleElements []VisibleElement
	FormData        map[string]any
	Execution       *types.ExecutionSnapshot
}

// Entity is one remembered named value (a site, a product, a user) with
// usage bookkeeping so the planner can prefer recently used referents.
type Entity struct {
	Type       string    `json:"type"`
	Value      any       `json:"value"`
	FirstSeen  time.Time `json:"first_seen"`
	LastUsed   time.Time `json:"last_used"`
	UsageCount int       `json:"usage_count"`
}

// CommandRecord is one command-history entry, newest at the end.
type CommandRecord struct {
	Timestamp time.Time           `json:"timestamp"`
	Raw       string              `json:"raw"`
	Parsed    types.ParsedCommand `json:"parsed"`
}

// PlanRecord is one plan-history entry, newest at the end.
type PlanRecord struct {
	Timestamp time.Time   `json:"timestamp"`
	Plan      *types.Plan `json:"plan"`
}

// Snapshot is the full-fidelity export of a context store, the
// serialization seam for external persistence.
type Snapshot struct {
	Environment EnvironmentState  `json:"environment"`
	Commands    []CommandRecord   `json:"command_history"`
	Plans       []PlanRecord      `json:"plan_history"`
	SessionVars map[string]any    `json:"session_vars"`
	Entities    map[string]Entity `json:"entities"`
}

// Store holds one session's execution context. All methods are safe for the
// single-writer-per-session discipline plus concurrent readers.
type Store struct {
	mu         sync.RWMutex
	maxHistory int
	commands   []CommandRecord
	plans      []PlanRecord
	env        EnvironmentState
	vars       map[string]any
	entities   map[string]*Entity
	log        *logging.Logger

	now func() time.Time
}

// NewStore creates a context store with the given history cap. A cap of
// zero or less disables history retention entirely.
func NewStore(maxHistory int, log *logging.Logger) *Store {
	return &Store{
		maxHistory: maxHistory,
		env:        EnvironmentState{FormData: map[string]any{}},
		vars:       make(map[string]any),
		entities:   make(map[string]*Entity),
		log:        log,
		now:        time.Now,
	}
}

// RecordCommand appends a command to the history, evicting the oldest entry
// beyond the cap.
func (s *Store) RecordCommand(raw string, parsed types.ParsedCommand) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.commands = append(s.commands, CommandRecord{
		Timestamp: s.now(),
		Raw:       raw,
		Parsed:    parsed,
	})
	s.commands = capTail(s.commands, s.maxHistory)

	if s.log != nil {
		s.log.Debugf("recorded command: %s", raw)
	}
}

// RecordPlan appends a plan to the history with the same eviction rule.
func (s *Store) RecordPlan(plan *types.Plan) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.plans = append(s.plans, PlanRecord{Timestamp: s.now(), Plan: plan})
	s.plans = capTail(s.plans, s.maxHistory)

	if s.log != nil && plan != nil {
		s.log.Debugf("recorded plan with %d steps", len(plan.Steps))
	}
}

func capTail[T any](entries []T, max int) []T {
	if max <= 0 {
		return nil
	}
	if len(entries) > max {
		return entries[len(entries)-max:]
	}
	return entries
}

// MergeEnvironmentState applies a partial update last-write-wins and stamps
// the update time. FormData entries merge key-by-key.
func (s *Store) MergeEnvironmentState(u StateUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u.URL != nil {
		s.env.URL = *u.URL
	}
	if u.Title != nil {
		s.env.Title = *u.Title
	}
	if u.LoggedIn != nil {
		s.env.LoggedIn = *u.LoggedIn
	}
	if u.VisibleElements != nil {
		s.env.VisibleElements = u.VisibleElements
	}
	if u.Execution != nil {
		s.env.Execution = u.Execution
	}
	for k, v := range u.FormData {
		if s.env.FormData == nil {
			s.env.FormData = map[string]any{}
		}
		s.env.FormData[k] = v
	}
	s.env.LastUpdated = s.now()
}

// Environment returns a copy of the current environment state.
func (s *Store) Environment() EnvironmentState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.env
}

// AddEntity remembers a named value. When id is empty an id of the form
// "type_N" is assigned, N being one past the current entity count.
func (s *Store) AddEntity(entityType string, value any, id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id == "" {
		id = fmt.Sprintf("%s_%d", entityType, len(s.entities)+1)
	}
	now := s.now()
	s.entities[id] = &Entity{
		Type:       entityType,
		Value:      value,
		FirstSeen:  now,
		LastUsed:   now,
		UsageCount: 1,
	}

	if s.log != nil {
		s.log.Debugf("added entity %s (%s)", id, entityType)
	}
	return id
}

// GetEntity returns the entity by id. A hit bumps the usage count and
// refreshes last-used.
func (s *Store) GetEntity(id string) (Entity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entities[id]
	if !ok {
		return Entity{}, false
	}
	e.LastUsed = s.now()
	e.UsageCount++
	return *e, true
}

// EntitiesByType returns all entities of a type, keyed by id. Lookup by
// type does not count as usage.
func (s *Store) EntitiesByType(entityType string) map[string]Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]Entity)
	for id, e := range s.entities {
		if e.Type == entityType {
			result[id] = *e
		}
	}
	return result
}

// SessionVar returns a session variable, or def if unset.
func (s *Store) SessionVar(key string, def any) any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if v, ok := s.vars[key]; ok {
		return v
	}
	return def
}

// SetSessionVar sets a session variable.
func (s *Store) SetSessionVar(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vars[key] = value
}

// RecentCommands returns up to count commands, most recent first.
func (s *Store) RecentCommands(count int) []CommandRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.commands)
	if count > n {
		count = n
	}
	out := make([]CommandRecord, 0, count)
	for i := n - 1; i >= n-count; i-- {
		out = append(out, s.commands[i])
	}
	return out
}

// LatestPlan returns the most recently recorded plan, or nil if none.
func (s *Store) LatestPlan() *types.Plan {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.plans) == 0 {
		return nil
	}
	return s.plans[len(s.plans)-1].Plan
}

// ClearHistory drops the command and plan histories. Environment state,
// entities, and session variables are kept.
func (s *Store) ClearHistory() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.commands = nil
	s.plans = nil
	if s.log != nil {
		s.log.Infof("cleared command and plan history")
	}
}

// Export returns a full-fidelity snapshot of the store.
func (s *Store) Export() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Environment: cloneEnvironment(s.env),
		Commands:    append([]CommandRecord(nil), s.commands...),
		Plans:       append([]PlanRecord(nil), s.plans...),
		SessionVars: make(map[string]any, len(s.vars)),
		Entities:    make(map[string]Entity, len(s.entities)),
	}
	for k, v := range s.vars {
		snap.SessionVars[k] = v
	}
	for id, e := range s.entities {
		snap.Entities[id] = *e
	}
	return snap
}

// Import restores a snapshot, re-applying the history cap so an oversized
// snapshot is trimmed to the newest entries.
func (s *Store) Import(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.env = cloneEnvironment(snap.Environment)
	s.commands = capTail(append([]CommandRecord(nil), snap.Commands...), s.maxHistory)
	s.plans = capTail(append([]PlanRecord(nil), snap.Plans...), s.maxHistory)

	s.vars = make(map[string]any, len(snap.SessionVars))
	for k, v := range snap.SessionVars {
		s.vars[k] = v
	}
	s.entities = make(map[string]*Entity, len(snap.Entities))
	for id, e := range snap.Entities {
		cp := e
		s.entities[id] = &cp
	}

	if s.log != nil {
		s.log.Infof("imported context snapshot (%d commands, %d plans)", len(s.commands), len(s.plans))
	}
}

// cloneEnvironment deep-copies an environment state so snapshots and the
// live store never share slices, maps, or the execution record.
func cloneEnvironment(env EnvironmentState) EnvironmentState {
	out := env
	if env.VisibleElements != nil {
		out.VisibleElements = append([]VisibleElement(nil), env.VisibleElements...)
	}
	if env.FormData != nil {
		out.FormData = make(map[string]any, len(env.FormData))
		for k, v := range env.FormData {
			out.FormData[k] = v
		}
	}
	if env.Execution != nil {
		exec := *env.Execution
		if env.Execution.CurrentStep != nil {
			step := *env.Execution.CurrentStep
			exec.CurrentStep = &step
		}
		if env.Execution.LastActionResult != nil {
			res := *env.Execution.LastActionResult
			exec.LastActionResult = &res
		}
		exec.Errors = append([]types.ExecutionEvent(nil), env.Execution.Errors...)
		exec.Warnings = append([]types.ExecutionEvent(nil), env.Execution.Warnings...)
		out.Execution = &exec
	}
	return out
}

// historySummary formats recent commands for the hint prompt.
func (s *Store) historySummary(count int) string {
	recent := s.RecentCommands(count)
	var b strings.Builder
	for i, cmd := range recent {
		fmt.Fprintf(&b, "- %d. %q (%s)\n", i+1, cmd.Raw, cmd.Parsed.Action)
	}
	return strings.TrimRight(b.String(), "\n")
}

// elementSummary formats up to limit visible elements for the hint prompt.
func (s *Store) elementSummary(limit int) string {
	env := s.Environment()
	elems := env.VisibleElements
	if len(elems) > limit {
		elems = elems[:limit]
	}
	var b strings.Builder
	for _, el := range elems {
		role := el.Role
		if role == "" {
			role = "element"
		}
		desc := el.Description
		if desc == "" {
			desc = "unknown"
		}
		fmt.Fprintf(&b, "- %s: %s\n", role, desc)
	}
	return strings.TrimRight(b.String(), "\n")
}
