package browser

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gobwas/glob"

	"github.com/nullfox-coder/NatanAI/pkg/config"
	"github.com/nullfox-coder/NatanAI/pkg/logging"
	"github.com/nullfox-coder/NatanAI/pkg/types"
)

// Executor dispatches engine actions to Playwright sessions. It implements
// types.ActionExecutor over a closed action table: an action name outside
// the table yields an error result, never a panic.
type Executor struct {
	manager  *Manager
	settings config.BrowserSettings
	allowed  []glob.Glob
	log      *logging.Logger
}

// NewExecutor builds an executor over the given manager. AllowedURLs glob
// patterns are compiled once; an empty list allows every URL.
func NewExecutor(manager *Manager, settings config.BrowserSettings, log *logging.Logger) (*Executor, error) {
	var allowed []glob.Glob
	for _, pattern := range settings.AllowedURLs {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid allowed_urls pattern %q: %w", pattern, err)
		}
		allowed = append(allowed, g)
	}
	return &Executor{
		manager:  manager,
		settings: settings,
		allowed:  allowed,
		log:      log,
	}, nil
}

// Perform executes one named action against the session's browser context.
// Environmental failures are returned as error results so they flow
// through classification; the error return is reserved for infrastructure
// faults such as an unresolvable browser context.
func (e *Executor) Perform(ctx context.Context, sessionID, action string, params map[string]any, timeout time.Duration) (types.Result, error) {
	session, err := e.manager.Resolve(sessionID)
	if err != nil {
		return types.Result{}, fmt.Errorf("resolving browser context: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return types.Fail(fmt.Sprintf("context cancelled: %v", err), ""), nil
	}

	if e.log != nil {
		e.log.Debugf("session %s: %s %v", sessionID, action, params)
	}

	step := types.Step{Action: action, Params: params}
	switch action {
	case "navigate":
		return e.navigate(session, step, timeout), nil
	case "click":
		return e.click(session, step, timeout), nil
	case "type":
		return e.typeText(session, step, timeout), nil
	case "press":
		return e.press(session, step, timeout), nil
	case "scroll":
		return e.scroll(session, step, timeout), nil
	case "wait":
		return e.wait(session, step, timeout), nil
	case "extract":
		return e.extract(session, step), nil
	case "screenshot":
		return e.screenshot(session, step), nil
	case "reload":
		return e.simpleNav(session.Reload, "reloaded page", timeout), nil
	case "back":
		return e.simpleNav(session.Back, "navigated back", timeout), nil
	case "forward":
		return e.simpleNav(session.Forward, "navigated forward", timeout), nil
	case "check":
		return e.check(session, step), nil
	case "find_text":
		return e.findText(session, step, timeout), nil
	case "page_errors":
		return e.pageErrors(session), nil
	default:
		return types.Fail(
			fmt.Sprintf("invalid parameter: unsupported action %q", action),
			fmt.Sprintf("The action %q is not supported", action)), nil
	}
}

func (e *Executor) navigate(s *Session, step types.Step, timeout time.Duration) types.Result {
	target := step.StringParam("url")
	if target == "" {
		return types.Fail("missing parameter: url", "Navigation requires a url parameter")
	}
	if !strings.Contains(target, "://") {
		target = "https://" + target
	}

	if !e.urlAllowed(target) {
		return types.Fail(
			fmt.Sprintf("validation failed: url %q is not in the allowed list", target),
			"Navigation blocked by URL allowlist")
	}

	if err := s.Navigate(target, timeout); err != nil {
		return types.Fail(err.Error(), "Navigation failed")
	}

	meta := s.Metadata()
	return types.OK(fmt.Sprintf("Navigated to %s", meta["url"]), map[string]any{
		"url":   meta["url"],
		"title": meta["title"],
	})
}

// urlAllowed matches the full URL and its host against the allowlist.
func (e *Executor) urlAllowed(target string) bool {
	if len(e.allowed) == 0 {
		return true
	}
	host := target
	if u, err := url.Parse(target); err == nil && u.Host != "" {
		host = u.Host
	}
	for _, g := range e.allowed {
		if g.Match(target) || g.Match(host) {
			return true
		}
	}
	return false
}

func elementSelector(step types.Step) string {
	if sel := step.StringParam("element"); sel != "" {
		return sel
	}
	return step.StringParam("selector")
}

func (e *Executor) click(s *Session, step types.Step, timeout time.Duration) types.Result {
	selector := elementSelector(step)
	if selector == "" {
		return types.Fail("missing parameter: element", "Click requires an element parameter")
	}
	if err := s.Click(selector, timeout); err != nil {
		return types.Fail(err.Error(), fmt.Sprintf("Could not click %s", selector))
	}
	return types.OK(fmt.Sprintf("Clicked %s", selector), map[string]any{"url": s.CurrentURL})
}

func (e *Executor) typeText(s *Session, step types.Step, timeout time.Duration) types.Result {
	selector := elementSelector(step)
	if selector == "" {
		return types.Fail("missing parameter: element", "Typing requires an element parameter")
	}
	text := step.StringParam("text")
	if text == "" {
		text = step.StringParam("value")
	}
	if err := s.Fill(selector, text, timeout); err != nil {
		return types.Fail(err.Error(), fmt.Sprintf("Could not type into %s", selector))
	}
	return types.OK(fmt.Sprintf("Typed into %s", selector), nil)
}

func (e *Executor) press(s *Session, step types.Step, timeout time.Duration) types.Result {
	key := step.StringParam("key")
	if key == "" {
		return types.Fail("missing parameter: key", "Press requires a key parameter")
	}
	if err := s.Press(elementSelector(step), key, timeout); err != nil {
		return types.Fail(err.Error(), fmt.Sprintf("Could not press %s", key))
	}
	return types.OK(fmt.Sprintf("Pressed %s", key), nil)
}

func (e *Executor) scroll(s *Session, step types.Step, timeout time.Duration) types.Result {
	if selector := elementSelector(step); selector != "" {
		if err := s.ScrollTo(selector, timeout); err != nil {
			return types.Fail(err.Error(), fmt.Sprintf("Could not scroll to %s", selector))
		}
		return types.OK(fmt.Sprintf("Scrolled %s into view", selector), nil)
	}

	y := 600
	if raw, ok := step.Params["amount"].(float64); ok {
		y = int(raw)
	} else if raw, ok := step.Params["amount"].(int); ok {
		y = raw
	}
	if step.StringParam("direction") == "up" {
		y = -y
	}
	if err := s.ScrollBy(0, y); err != nil {
		return types.Fail(err.Error(), "Could not scroll the page")
	}
	return types.OK("Scrolled the page", nil)
}

func (e *Executor) wait(s *Session, step types.Step, timeout time.Duration) types.Result {
	// A bare duration wait is represented by a "duration" parameter in
	// milliseconds, bounded by the step timeout.
	if raw, ok := step.Params["duration"]; ok {
		ms := 0
		switch v := raw.(type) {
		case float64:
			ms = int(v)
		case int:
			ms = v
		}
		d := time.Duration(ms) * time.Millisecond
		if timeout > 0 && d > timeout {
			d = timeout
		}
		time.Sleep(d)
		return types.OK(fmt.Sprintf("Waited %s", d), nil)
	}

	selector := elementSelector(step)
	if err := s.WaitFor(selector, step.StringParam("state"), timeout); err != nil {
		return types.Fail(err.Error(), fmt.Sprintf("Timed out waiting for %s", selector))
	}
	return types.OK(fmt.Sprintf("Element %s is ready", selector), nil)
}

func (e *Executor) extract(s *Session, step types.Step) types.Result {
	maxLength := 10000
	if raw, ok := step.Params["max_length"].(float64); ok && raw > 0 {
		maxLength = int(raw)
	}

	switch step.StringParam("format") {
	case "", "text":
		text, err := s.Text(elementSelector(step))
		if err != nil {
			return types.Fail(err.Error(), "Content extraction failed")
		}
		if len(text) > maxLength {
			text = text[:maxLength]
		}
		meta := s.Metadata()
		return types.OK("Extracted page text", map[string]any{
			"content": strings.TrimSpace(text),
			"url":     meta["url"],
			"title":   meta["title"],
		})
	case "affordances":
		elements, err := s.Affordances(20)
		if err != nil {
			return types.Fail(err.Error(), "Content extraction failed")
		}
		listed := make([]map[string]any, 0, len(elements))
		for _, el := range elements {
			listed = append(listed, map[string]any{
				"role":        el.Role,
				"description": el.Description,
				"selector":    el.Selector,
			})
		}
		meta := s.Metadata()
		return types.OK("Extracted interactable elements", map[string]any{
			"elements": listed,
			"url":      meta["url"],
			"title":    meta["title"],
		})
	case "html":
		cleaned, err := s.CleanContent(maxLength)
		if err != nil {
			return types.Fail(err.Error(), "Content extraction failed")
		}
		return types.OK("Extracted page structure", map[string]any{
			"content":     cleaned.HTML,
			"title":       cleaned.Title,
			"description": cleaned.Description,
			"truncated":   cleaned.Truncated,
		})
	default:
		return types.Fail(
			fmt.Sprintf("invalid parameter: unsupported format %q", step.StringParam("format")),
			"Unsupported extraction format")
	}
}

func (e *Executor) screenshot(s *Session, step types.Step) types.Result {
	encoded, err := s.Screenshot(step.BoolParam("full_page"))
	if err != nil {
		return types.Fail(err.Error(), "Screenshot failed")
	}
	return types.OK("Captured screenshot", map[string]any{
		"screenshot": encoded,
		"encoding":   "base64/png",
	})
}

func (e *Executor) simpleNav(nav func(time.Duration) error, message string, timeout time.Duration) types.Result {
	if err := nav(timeout); err != nil {
		return types.Fail(err.Error(), "Navigation failed")
	}
	return types.OK(message, nil)
}

// check evaluates a named condition against the page.
func (e *Executor) check(s *Session, step types.Step) types.Result {
	condition := step.StringParam("condition")
	switch condition {
	case "login_success":
		if s.IsLoggedIn() {
			return types.OK("Login confirmed", map[string]any{"is_logged_in": true})
		}
		return types.Fail("validation failed: no logged-in indicators found",
			"The page does not look authenticated")
	case "element_present":
		selector := elementSelector(step)
		if selector == "" {
			return types.Fail("missing parameter: element", "Condition requires an element parameter")
		}
		element, err := s.Page.QuerySelector(selector)
		if err != nil || element == nil {
			return types.Fail(fmt.Sprintf("no such element: %s", selector),
				fmt.Sprintf("Element %s is not present", selector))
		}
		return types.OK(fmt.Sprintf("Element %s is present", selector), nil)
	default:
		return types.Fail(
			fmt.Sprintf("invalid parameter: unknown condition %q", condition),
			fmt.Sprintf("Cannot check unknown condition: %s", condition))
	}
}

func (e *Executor) findText(s *Session, step types.Step, timeout time.Duration) types.Result {
	text := step.StringParam("text")
	if text == "" {
		return types.Fail("missing parameter: text", "Text search requires a text parameter")
	}
	selector, err := s.FindByText(text, timeout)
	if err != nil {
		return types.Fail(err.Error(), fmt.Sprintf("No element found with text %q", text))
	}
	return types.OK(fmt.Sprintf("Found element with text %q", text), map[string]any{
		"selector": selector,
	})
}

func (e *Executor) pageErrors(s *Session) types.Result {
	messages := s.PageErrors()
	return types.OK(fmt.Sprintf("Collected %d page error indicators", len(messages)), map[string]any{
		"messages": messages,
	})
}
