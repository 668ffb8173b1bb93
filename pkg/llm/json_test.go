package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON_FencedBlock(t *testing.T) {
	text := "Here is the plan:\n```json\n{\"action\": \"navigate\", \"target\": \"example.com\"}\n```\nDone."

	var out map[string]string
	require.NoError(t, ExtractJSON(text, &out))
	assert.Equal(t, "navigate", out["action"])
	assert.Equal(t, "example.com", out["target"])
}

func TestExtractJSON_FenceWithoutLanguage(t *testing.T) {
	text := "```\n{\"a\": 1}\n```"

	var out map[string]int
	require.NoError(t, ExtractJSON(text, &out))
	assert.Equal(t, 1, out["a"])
}

func TestExtractJSON_BareObject(t *testing.T) {
	text := `The answer is {"steps": [{"action": "click"}]} as requested.`

	var out struct {
		Steps []struct {
			Action string `json:"action"`
		} `json:"steps"`
	}
	require.NoError(t, ExtractJSON(text, &out))
	require.Len(t, out.Steps, 1)
	assert.Equal(t, "click", out.Steps[0].Action)
}

func TestExtractJSON_RepairsMalformed(t *testing.T) {
	// Trailing comma and single quotes, typical model slop.
	text := "```json\n{'action': 'type', 'text': 'hello',}\n```"

	var out map[string]string
	require.NoError(t, ExtractJSON(text, &out))
	assert.Equal(t, "type", out["action"])
	assert.Equal(t, "hello", out["text"])
}

func TestExtractJSON_NoJSON(t *testing.T) {
	var out map[string]any
	err := ExtractJSON("I could not produce a plan for that.", &out)
	assert.Error(t, err)
}

type fixedCounter struct{}

// One token per rune keeps the arithmetic obvious.
func (fixedCounter) Count(text string) int { return len([]rune(text)) }

func TestTruncateHistory(t *testing.T) {
	entries := []string{"aaaa", "bbbb", "cccc"}

	got := TruncateHistory(fixedCounter{}, entries, 8)
	assert.Equal(t, []string{"bbbb", "cccc"}, got)

	// Budget smaller than the newest entry: keep the newest anyway.
	got = TruncateHistory(fixedCounter{}, entries, 2)
	assert.Equal(t, []string{"cccc"}, got)

	// Everything fits.
	got = TruncateHistory(fixedCounter{}, entries, 100)
	assert.Equal(t, entries, got)

	assert.Empty(t, TruncateHistory(fixedCounter{}, nil, 10))
}
