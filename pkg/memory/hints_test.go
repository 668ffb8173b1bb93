package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nullfox-coder/NatanAI/pkg/llm"
	"github.com/nullfox-coder/NatanAI/pkg/types"
)

type stubHints struct {
	response string
	err      error
	lastReq  HintRequest
}

func (s *stubHints) Hint(_ context.Context, req HintRequest) (string, error) {
	s.lastReq = req
	return s.response, s.err
}

func TestEnhanceParsesModelOutput(t *testing.T) {
	store := NewStore(5, nil)
	provider := &stubHints{response: "```json\n" + `{
		"interpreted_goal": "log into example.com",
		"relevant_elements": ["login button"],
		"disambiguation": {"it": "the login form"},
		"context_enhancements": ["user visited example.com before"]
	}` + "\n```"}

	hints := store.Enhance(context.Background(), provider, "log in")
	assert.Equal(t, "log into example.com", hints.InterpretedGoal)
	assert.Equal(t, []string{"login button"}, hints.RelevantElements)
	assert.Equal(t, "the login form", hints.Disambiguation["it"])
}

func TestEnhanceDefaultsOnMalformedOutput(t *testing.T) {
	store := NewStore(5, nil)
	provider := &stubHints{response: "I am not sure what you mean."}

	hints := store.Enhance(context.Background(), provider, "do the thing")
	assert.Equal(t, DefaultHints(), hints)
}

func TestEnhanceDefaultsOnProviderError(t *testing.T) {
	store := NewStore(5, nil)
	provider := &stubHints{err: errors.New("model unavailable")}

	hints := store.Enhance(context.Background(), provider, "do the thing")
	assert.Equal(t, DefaultHints(), hints)
}

func TestEnhanceDefaultsOnNilProvider(t *testing.T) {
	store := NewStore(5, nil)
	assert.Equal(t, DefaultHints(), store.Enhance(context.Background(), nil, "anything"))
}

func TestEnhanceRequestPayload(t *testing.T) {
	store := NewStore(5, nil)
	url := "https://example.com/cart"
	title := "Cart"
	store.MergeEnvironmentState(StateUpdate{
		URL:   &url,
		Title: &title,
		VisibleElements: []VisibleElement{
			{Role: "button", Description: "Checkout"},
			{Description: "Promo banner"},
		},
	})
	store.RecordCommand("add shoes to cart", types.ParsedCommand{Action: "click"})

	provider := &stubHints{response: "{}"}
	store.Enhance(context.Background(), provider, "check out")

	req := provider.lastReq
	assert.Equal(t, "https://example.com/cart", req.CurrentPage)
	assert.Equal(t, "Cart", req.PageTitle)
	assert.Contains(t, req.VisibleElements, "button: Checkout")
	assert.Contains(t, req.VisibleElements, "element: Promo banner")
	assert.Contains(t, req.CommandHistory, `"add shoes to cart" (click)`)
	assert.Equal(t, "check out", req.Command)
}

func TestEnhanceUnknownPageDefaults(t *testing.T) {
	store := NewStore(5, nil)
	provider := &stubHints{response: "{}"}

	hints := store.Enhance(context.Background(), provider, "start")
	require.NotNil(t, hints.RelevantElements)
	assert.Equal(t, "Unknown", provider.lastReq.CurrentPage)
	assert.Equal(t, "Unknown", provider.lastReq.PageTitle)
}

// runeCounter treats every rune as one token, making budgets readable.
type runeCounter struct{}

func (runeCounter) Count(text string) int { return len([]rune(text)) }

func TestCompleterHintsTruncatesHistoryToBudget(t *testing.T) {
	var prompt string
	completer := llm.CompleterFunc(func(_ context.Context, req llm.Request) (string, error) {
		prompt = req.User
		return `{"interpreted_goal": "g"}`, nil
	})

	hints := CompleterHints{Completer: completer, Counter: runeCounter{}, Budget: 20}
	_, err := hints.Hint(context.Background(), HintRequest{
		CurrentPage:    "https://example.com",
		PageTitle:      "Example",
		CommandHistory: "1. oldest command that is far too long to keep\n2. newest",
		Command:        "click the button",
	})
	require.NoError(t, err)

	assert.NotContains(t, prompt, "oldest command")
	assert.Contains(t, prompt, "2. newest")
}

func TestCompleterHintsWithoutBudgetKeepsEverything(t *testing.T) {
	var prompt string
	completer := llm.CompleterFunc(func(_ context.Context, req llm.Request) (string, error) {
		prompt = req.User
		return `{"interpreted_goal": "g"}`, nil
	})

	hints := CompleterHints{Completer: completer}
	_, err := hints.Hint(context.Background(), HintRequest{
		CommandHistory: "1. oldest\n2. newest",
		Command:        "click",
	})
	require.NoError(t, err)

	assert.Contains(t, prompt, "1. oldest")
	assert.Contains(t, prompt, "2. newest")
}
