// Package planner turns raw commands into task plans: a regex fast path
// for the common browsing verbs, a language-model fallback for everything
// else, and per-action recovery policies attached to every produced step.
package planner

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/nullfox-coder/NatanAI/pkg/llm"
	"github.com/nullfox-coder/NatanAI/pkg/logging"
	"github.com/nullfox-coder/NatanAI/pkg/types"
)

var (
	urlRe = regexp.MustCompile(`https?://(?:[-\w.]|(?:%[\da-fA-F]{2}))+(?:/[-\w%!.~'()*+,;=:@/&?#]*)?`)

	navigateRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:go to|open|navigate to|visit)\s+(https?://\S+)`),
		regexp.MustCompile(`(?i)(?:go to|open|navigate to|visit)\s+(?:the\s+)?(?:website|site|page)?\s*(?:at|of|called|named)?\s*([\w.-]+(?:\s[\w.-]+)*)`),
	}
	searchRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:search for|look up|find)\s+(.+)`),
		regexp.MustCompile(`(?i)(?:search|google)\s+(.+)`),
	}
	loginCredsRe = regexp.MustCompile(`(?i)(?:log|sign)\s?(?:in|into)\s+(?:with|using)\s+(?:username|user)\s+['"]?([\w@.-]+)['"]?\s+(?:and|with)\s+(?:password|pass)\s+['"]?(\S+?)['"]?$`)
	loginSiteRe  = regexp.MustCompile(`(?i)(?:log|sign)\s?(?:in|into)\s+(?:to\s+)?(?:the\s+)?(?:website|site|page)?\s*(?:at|of|called|named)?\s*([\w.-]+(?:/\S*)?)`)
)

// Parser converts natural-language commands to structured ones. Pattern
// matching is tried first; the language model is only consulted when no
// pattern fires.
type Parser struct {
	completer llm.Completer
	log       *logging.Logger
}

// NewParser creates a command parser. The completer may be nil, in which
// case unmatched commands parse to the "unknown" action.
func NewParser(completer llm.Completer, log *logging.Logger) *Parser {
	return &Parser{completer: completer, log: log}
}

// Parse never fails: commands that neither a pattern nor the model can
// interpret come back with the "unknown" action and the raw text in
// params.
func (p *Parser) Parse(ctx context.Context, command string) types.ParsedCommand {
	if parsed, ok := p.patternMatch(command); ok {
		if p.log != nil {
			p.log.Debugf("parsed via pattern: %s -> %s", command, parsed.Action)
		}
		return parsed
	}

	if p.completer != nil {
		if parsed, ok := p.modelParse(ctx, command); ok {
			if p.log != nil {
				p.log.Debugf("parsed via model: %s -> %s", command, parsed.Action)
			}
			return parsed
		}
	}

	return types.ParsedCommand{
		Action: "unknown",
		Params: map[string]any{"raw": command},
	}
}

func (p *Parser) patternMatch(command string) (types.ParsedCommand, bool) {
	// Credentials form first: the generic login pattern would swallow it.
	if m := loginCredsRe.FindStringSubmatch(command); m != nil {
		return types.ParsedCommand{
			Action: "login",
			Params: map[string]any{"username": m[1], "password": m[2]},
		}, true
	}

	if m := loginSiteRe.FindStringSubmatch(command); m != nil {
		return types.ParsedCommand{
			Action: "login",
			Target: ensureURL(m[1]),
		}, true
	}

	for _, re := range navigateRes {
		if m := re.FindStringSubmatch(command); m != nil {
			return types.ParsedCommand{
				Action: "navigate",
				Target: ensureURL(strings.TrimSpace(m[1])),
			}, true
		}
	}

	for _, re := range searchRes {
		if m := re.FindStringSubmatch(command); m != nil {
			return types.ParsedCommand{
				Action: "search",
				Target: "https://www.google.com",
				Params: map[string]any{"search_term": strings.TrimSpace(m[1])},
			}, true
		}
	}

	return types.ParsedCommand{}, false
}

// ensureURL turns a bare site name into a URL; multi-word targets become a
// web search.
func ensureURL(target string) string {
	if urlRe.MatchString(target) || strings.HasPrefix(target, "http") {
		return target
	}
	if strings.Contains(target, ".") && !strings.Contains(target, " ") {
		return "https://" + target
	}
	return "https://www.google.com/search?q=" + strings.ReplaceAll(target, " ", "+")
}

const parsePrompt = `Parse this browser automation command into JSON:

Command: %q

Respond with a JSON object:
{
  "action": "navigate|click|search|extract|login|fill|scroll|wait|unknown",
  "target": "URL or element description",
  "params": {"any action-specific parameters"}
}`

func (p *Parser) modelParse(ctx context.Context, command string) (types.ParsedCommand, bool) {
	raw, err := p.completer.Complete(ctx, llm.Request{
		System: "You parse browser automation commands. Reply with JSON only.",
		User:   fmt.Sprintf(parsePrompt, command),
	})
	if err != nil {
		if p.log != nil {
			p.log.Errorf("model parse failed: %v", err)
		}
		return types.ParsedCommand{}, false
	}

	var parsed types.ParsedCommand
	if err := llm.ExtractJSON(raw, &parsed); err != nil {
		if p.log != nil {
			p.log.Errorf("unparsable model output: %v", err)
		}
		return types.ParsedCommand{}, false
	}
	if parsed.Action == "" {
		parsed.Action = "unknown"
	}
	return parsed, true
}
