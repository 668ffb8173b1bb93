package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// Matches a fenced ```json block, or a bare object/array spanning the rest
// of the text.
var jsonBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*\\n(.*?)\\n\\s*```|(\\{.*\\}|\\[.*\\])")

// ExtractJSON locates the JSON payload in free-form model output and
// unmarshals it into v. Fenced code blocks are preferred; a bare object or
// array is accepted as a fallback. Slightly malformed JSON (trailing
// commas, single quotes, unquoted keys) is repaired before unmarshalling.
func ExtractJSON(text string, v any) error {
	candidate := strings.TrimSpace(text)

	if m := jsonBlockRe.FindStringSubmatch(candidate); m != nil {
		if m[1] != "" {
			candidate = m[1]
		} else {
			candidate = m[2]
		}
	}

	if err := json.Unmarshal([]byte(candidate), v); err == nil {
		return nil
	}

	repaired, err := jsonrepair.JSONRepair(candidate)
	if err != nil {
		return fmt.Errorf("no parsable JSON in model output: %w", err)
	}
	if err := json.Unmarshal([]byte(repaired), v); err != nil {
		return fmt.Errorf("unmarshalling repaired model output: %w", err)
	}
	return nil
}
