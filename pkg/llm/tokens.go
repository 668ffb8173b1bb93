package llm

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter estimates the token cost of prompt text so callers can
// truncate history before hitting a model's context window.
type TokenCounter interface {
	Count(text string) int
}

// TiktokenCounter counts tokens with the cl100k_base encoding, which
// matches the GPT-4 family closely enough for budgeting purposes.
type TiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

// NewTokenCounter builds a tiktoken-backed counter. The encoding data is
// fetched on first use, so construction can fail offline.
func NewTokenCounter() (*TiktokenCounter, error) {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("loading token encoding: %w", err)
	}
	return &TiktokenCounter{enc: enc}, nil
}

func (c *TiktokenCounter) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

// TruncateHistory drops the oldest entries until the joined text fits the
// budget. The newest entries are always preserved, even if the last one
// alone exceeds the budget.
func TruncateHistory(counter TokenCounter, entries []string, budget int) []string {
	if len(entries) == 0 {
		return entries
	}
	total := 0
	for _, e := range entries {
		total += counter.Count(e)
	}
	start := 0
	for total > budget && start < len(entries)-1 {
		total -= counter.Count(entries[start])
		start++
	}
	return entries[start:]
}
