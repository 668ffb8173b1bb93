package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/nullfox-coder/NatanAI/pkg/llm"
)

// HintRequest is the structured prompt payload handed to the hint provider:
// current location, what is visible, and the recent command trail.
type HintRequest struct {
	CurrentPage     string
	PageTitle       string
	VisibleElements string
	CommandHistory  string
	Command         string
}

// HintProvider is the external language-model collaborator consulted by
// Enhance. The returned text is expected to contain a JSON object; anything
// else degrades to default hints rather than an error.
type HintProvider interface {
	Hint(ctx context.Context, req HintRequest) (string, error)
}

// Hints is the disambiguation structure Enhance extracts from the model
// output.
type Hints struct {
	InterpretedGoal     string         `json:"interpreted_goal"`
	RelevantElements    []string       `json:"relevant_elements"`
	Disambiguation      map[string]any `json:"disambiguation"`
	ContextEnhancements []string       `json:"context_enhancements"`
}

// DefaultHints is the well-defined fallback returned when the model output
// carries no parsable JSON.
func DefaultHints() Hints {
	return Hints{
		InterpretedGoal:     "Unknown",
		RelevantElements:    []string{},
		Disambiguation:      map[string]any{},
		ContextEnhancements: []string{},
	}
}

// Enhance asks the hint provider to disambiguate a command against the
// current environment state and recent history. It never fails on bad model
// output: malformed or missing JSON yields DefaultHints. A nil provider
// also yields DefaultHints.
func (s *Store) Enhance(ctx context.Context, provider HintProvider, command string) Hints {
	if provider == nil {
		return DefaultHints()
	}

	env := s.Environment()
	currentPage := env.URL
	if currentPage == "" {
		currentPage = "Unknown"
	}
	pageTitle := env.Title
	if pageTitle == "" {
		pageTitle = "Unknown"
	}

	req := HintRequest{
		CurrentPage:     currentPage,
		PageTitle:       pageTitle,
		VisibleElements: s.elementSummary(20),
		CommandHistory:  s.historySummary(5),
		Command:         command,
	}

	raw, err := provider.Hint(ctx, req)
	if err != nil {
		if s.log != nil {
			s.log.Errorf("hint provider failed: %v", err)
		}
		return DefaultHints()
	}

	var hints Hints
	if err := llm.ExtractJSON(raw, &hints); err != nil {
		if s.log != nil {
			s.log.Errorf("unparsable hint output: %v", err)
		}
		return DefaultHints()
	}

	if hints.RelevantElements == nil {
		hints.RelevantElements = []string{}
	}
	if hints.Disambiguation == nil {
		hints.Disambiguation = map[string]any{}
	}
	if hints.ContextEnhancements == nil {
		hints.ContextEnhancements = []string{}
	}
	return hints
}

const hintPrompt = `You are assisting a browser automation engine. Given the
current page and recent commands, interpret the user's latest command.

Current page: %s
Page title: %s

Visible elements:
%s

Recent commands:
%s

Latest command: %q

Respond with a JSON object:
{
  "interpreted_goal": "what the user wants to achieve",
  "relevant_elements": ["elements on the page relevant to the goal"],
  "disambiguation": {"ambiguous term": "resolved meaning"},
  "context_enhancements": ["facts from history that refine the goal"]
}`

// CompleterHints adapts an llm.Completer to the HintProvider interface
// using the engine's standard hint prompt. When a token counter and budget
// are set, the history and element sections are truncated oldest-first so
// the prompt stays inside the budget.
type CompleterHints struct {
	Completer llm.Completer
	Counter   llm.TokenCounter
	Budget    int
}

func (c CompleterHints) Hint(ctx context.Context, req HintRequest) (string, error) {
	history := req.CommandHistory
	elements := req.VisibleElements
	if c.Counter != nil && c.Budget > 0 {
		history = truncateLines(c.Counter, history, c.Budget)
		elements = truncateLines(c.Counter, elements, c.Budget)
	}

	prompt := fmt.Sprintf(hintPrompt,
		req.CurrentPage, req.PageTitle, elements, history, req.Command)
	return c.Completer.Complete(ctx, llm.Request{
		System: "You translate browsing context into structured hints. Reply with JSON only.",
		User:   prompt,
	})
}

func truncateLines(counter llm.TokenCounter, text string, budget int) string {
	if text == "" {
		return text
	}
	lines := llm.TruncateHistory(counter, strings.Split(text, "\n"), budget)
	return strings.Join(lines, "\n")
}
