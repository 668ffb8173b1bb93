package planner

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nullfox-coder/NatanAI/pkg/config"
	"github.com/nullfox-coder/NatanAI/pkg/llm"
	"github.com/nullfox-coder/NatanAI/pkg/logging"
	"github.com/nullfox-coder/NatanAI/pkg/memory"
	"github.com/nullfox-coder/NatanAI/pkg/types"
)

// Recovery policies shared by the step builders.
var (
	defaultPolicy = types.RecoveryPolicy{
		Conditions: []types.ErrorKind{types.KindTimeout, types.KindElementNotFound},
		Actions:    []types.RecoveryAction{types.RecoverRetry, types.RecoverWait, types.RecoverAbort},
	}
	navigatePolicy = types.RecoveryPolicy{
		Conditions: []types.ErrorKind{types.KindTimeout, types.KindNavigation},
		Actions:    []types.RecoveryAction{types.RecoverRetry, types.RecoverCheckConnection, types.RecoverAbort},
	}
	waitVisiblePolicy = types.RecoveryPolicy{
		Conditions: []types.ErrorKind{types.KindTimeout, types.KindElementNotFound},
		Actions:    []types.RecoveryAction{types.RecoverScrollIntoView, types.RecoverRetry, types.RecoverAbort},
	}
	clickPolicy = types.RecoveryPolicy{
		Conditions: []types.ErrorKind{types.KindElementNotFound},
		Actions:    []types.RecoveryAction{types.RecoverScrollIntoView, types.RecoverRetry, types.RecoverAbort},
	}
	retryAbortTimeout = types.RecoveryPolicy{
		Conditions: []types.ErrorKind{types.KindTimeout},
		Actions:    []types.RecoveryAction{types.RecoverRetry, types.RecoverAbort},
	}
	retryAbortElement = types.RecoveryPolicy{
		Conditions: []types.ErrorKind{types.KindTimeout, types.KindElementNotFound},
		Actions:    []types.RecoveryAction{types.RecoverRetry, types.RecoverAbort},
	}
	typePolicy = types.RecoveryPolicy{
		Conditions: []types.ErrorKind{types.KindElementNotFound, types.KindValidation},
		Actions:    []types.RecoveryAction{types.RecoverRetry, types.RecoverAbort},
	}
)

// Planner converts parsed commands into executable task plans. Each of the
// common actions has a handwritten builder; anything else is planned by
// the language model.
type Planner struct {
	settings  config.BrowserSettings
	completer llm.Completer
	log       *logging.Logger
}

// NewPlanner creates a task planner. A nil completer disables the model
// fallback; unplannable commands then yield an error plan.
func NewPlanner(settings config.BrowserSettings, completer llm.Completer, log *logging.Logger) *Planner {
	return &Planner{settings: settings, completer: completer, log: log}
}

// Produce builds a plan for the parsed command. It never returns an error:
// planning failures come back as a single-step error plan the orchestrator
// fails at step one.
func (p *Planner) Produce(ctx context.Context, parsed types.ParsedCommand, env memory.EnvironmentState) *types.Plan {
	if p.log != nil {
		p.log.Infof("planning for action %q", parsed.Action)
	}

	switch parsed.Action {
	case "navigate":
		return p.planNavigate(parsed)
	case "click":
		return p.planClick(parsed, env)
	case "search":
		return p.planSearch(parsed)
	case "login":
		return p.planLogin(parsed)
	case "scroll":
		return p.planScroll(parsed)
	case "wait":
		return p.planWait(parsed)
	default:
		// extract, fill, and anything unrecognized need page awareness the
		// builders don't have.
		return p.planWithModel(ctx, parsed, env)
	}
}

func (p *Planner) waitMillis() float64 {
	return float64(p.settings.WaitTimeout.Milliseconds())
}

func (p *Planner) navMillis() float64 {
	return float64(p.settings.NavigationTimeout.Milliseconds())
}

func navigateStep(url string, timeout float64) types.Step {
	return types.Step{
		Action:      "navigate",
		Params:      map[string]any{"url": url, "timeout": timeout},
		Description: fmt.Sprintf("Navigate to %s", url),
		Recovery:    navigatePolicy,
	}
}

func (p *Planner) planNavigate(parsed types.ParsedCommand) *types.Plan {
	if parsed.Target == "" {
		return types.ErrorPlan("No target URL provided for navigation")
	}
	return &types.Plan{
		Steps:           []types.Step{navigateStep(parsed.Target, p.navMillis())},
		ExpectedOutcome: fmt.Sprintf("Successfully navigated to %s", parsed.Target),
	}
}

func (p *Planner) planClick(parsed types.ParsedCommand, env memory.EnvironmentState) *types.Plan {
	element := parsed.Target
	if element == "" {
		element, _ = parsed.Params["element"].(string)
	}
	if element == "" {
		return types.ErrorPlan("No target element provided for clicking")
	}

	var steps []types.Step
	// Navigate first when the command names a page we are not on.
	if url, _ := parsed.Params["url"].(string); url != "" && url != env.URL {
		steps = append(steps, navigateStep(url, p.navMillis()))
	}

	steps = append(steps,
		types.Step{
			Action:      "wait",
			Params:      map[string]any{"element": element, "state": "visible", "timeout": p.waitMillis()},
			Description: fmt.Sprintf("Wait for %s to be visible", element),
			Recovery:    waitVisiblePolicy,
		},
		types.Step{
			Action:      "click",
			Params:      map[string]any{"element": element},
			Description: fmt.Sprintf("Click on %s", element),
			Recovery:    clickPolicy,
		},
	)

	return &types.Plan{
		Steps:           steps,
		ExpectedOutcome: fmt.Sprintf("Successfully clicked on %s", element),
	}
}

func (p *Planner) planSearch(parsed types.ParsedCommand) *types.Plan {
	term, _ := parsed.Params["search_term"].(string)
	if term == "" {
		return types.ErrorPlan("No search term provided")
	}

	target := parsed.Target
	if target == "" {
		target = "https://www.google.com"
	}
	searchBox, _ := parsed.Params["search_box"].(string)
	if searchBox == "" {
		searchBox = "textarea[name=\"q\"], input[name=\"q\"]"
	}

	steps := []types.Step{
		navigateStep(target, p.navMillis()),
		{
			Action:      "wait",
			Params:      map[string]any{"element": searchBox, "state": "visible", "timeout": p.waitMillis()},
			Description: "Wait for the search box to be visible",
			Recovery:    retryAbortElement,
		},
		{
			Action:      "type",
			Params:      map[string]any{"element": searchBox, "text": term},
			Description: fmt.Sprintf("Type %q into the search box", term),
			Recovery:    typePolicy,
		},
		{
			Action:      "press",
			Params:      map[string]any{"key": "Enter"},
			Description: "Press Enter to submit the search",
			Recovery:    retryAbortTimeout,
		},
		{
			Action:      "wait",
			Params:      map[string]any{"duration": float64(1500)},
			Description: "Wait for search results to load",
			Recovery:    retryAbortTimeout,
		},
	}

	return &types.Plan{
		Steps:           steps,
		ExpectedOutcome: fmt.Sprintf("Successfully searched for %q", term),
	}
}

func (p *Planner) planLogin(parsed types.ParsedCommand) *types.Plan {
	if parsed.Target == "" {
		return types.ErrorPlan("No target URL provided for login")
	}
	username, _ := parsed.Params["username"].(string)
	password, _ := parsed.Params["password"].(string)

	userField := "input[name=\"username\"], input[type=\"email\"], input[name=\"email\"]"
	passField := "input[type=\"password\"]"

	steps := []types.Step{
		navigateStep(parsed.Target, p.navMillis()),
		{
			Action:      "wait",
			Params:      map[string]any{"element": userField, "state": "visible", "timeout": p.waitMillis()},
			Description: "Wait for the username field to be visible",
			Recovery: types.RecoveryPolicy{
				Conditions: []types.ErrorKind{types.KindTimeout, types.KindElementNotFound},
				Actions:    []types.RecoveryAction{types.RecoverRetry, types.RecoverFindLoginLink, types.RecoverAbort},
			},
		},
	}

	steps = append(steps, credentialStep(userField, username, "Please enter your username:", false))

	steps = append(steps, types.Step{
		Action:      "wait",
		Params:      map[string]any{"element": passField, "state": "visible", "timeout": p.waitMillis()},
		Description: "Wait for the password field to be visible",
		Recovery:    retryAbortElement,
	})

	steps = append(steps, credentialStep(passField, password, "Please enter your password:", true))

	steps = append(steps,
		types.Step{
			Action:      "click",
			Params:      map[string]any{"element": "button[type=\"submit\"], input[type=\"submit\"]"},
			Description: "Click the login button",
			Recovery: types.RecoveryPolicy{
				Conditions: []types.ErrorKind{types.KindElementNotFound},
				Actions:    []types.RecoveryAction{types.RecoverRetry, types.RecoverPressEnter, types.RecoverAbort},
			},
		},
		types.Step{
			Action:      "wait",
			Params:      map[string]any{"duration": float64(2000)},
			Description: "Wait for the login to complete",
			Recovery: types.RecoveryPolicy{
				Conditions: []types.ErrorKind{types.KindTimeout, types.KindNavigation},
				Actions:    []types.RecoveryAction{types.RecoverCheckLoginStatus, types.RecoverRetry, types.RecoverAbort},
			},
		},
		types.Step{
			Action:      "check",
			Params:      map[string]any{"condition": "login_success"},
			Description: "Verify successful login",
			Recovery: types.RecoveryPolicy{
				Conditions: []types.ErrorKind{types.KindValidation, types.KindCaptcha},
				Actions:    []types.RecoveryAction{types.RecoverHandleCaptcha, types.RecoverReportLoginError, types.RecoverAbort},
			},
		},
	)

	return &types.Plan{
		Steps:           steps,
		ExpectedOutcome: "Successfully logged in to the website",
	}
}

// credentialStep types a known credential, or asks the caller for it when
// missing.
func credentialStep(field, value, prompt string, secret bool) types.Step {
	if value != "" {
		desc := fmt.Sprintf("Type the username into %s", field)
		if secret {
			desc = "Type the password (hidden)"
		}
		return types.Step{
			Action:      "type",
			Params:      map[string]any{"element": field, "text": value},
			Description: desc,
			Recovery:    typePolicy,
		}
	}
	return types.Step{
		Action: "user_input",
		Params: map[string]any{
			"prompt":      prompt,
			"field":       field,
			"is_password": secret,
		},
		Description: "Request the missing credential from the caller",
		Recovery:    typePolicy,
	}
}

func (p *Planner) planScroll(parsed types.ParsedCommand) *types.Plan {
	direction, _ := parsed.Params["direction"].(string)
	if direction == "" {
		direction = "down"
	}
	amount := parsed.Params["amount"]
	if amount == nil {
		amount = float64(600)
	}

	return &types.Plan{
		Steps: []types.Step{{
			Action:      "scroll",
			Params:      map[string]any{"direction": direction, "amount": amount},
			Description: fmt.Sprintf("Scroll %s", direction),
			Recovery: types.RecoveryPolicy{
				Conditions: []types.ErrorKind{types.KindUnknown},
				Actions:    []types.RecoveryAction{types.RecoverRetry, types.RecoverAbort},
			},
		}},
		ExpectedOutcome: fmt.Sprintf("Successfully scrolled %s", direction),
	}
}

func (p *Planner) planWait(parsed types.ParsedCommand) *types.Plan {
	duration := float64(2000)
	switch v := parsed.Params["duration"].(type) {
	case float64:
		duration = v
	case int:
		duration = float64(v)
	}

	return &types.Plan{
		Steps: []types.Step{{
			Action:      "wait",
			Params:      map[string]any{"duration": duration},
			Description: fmt.Sprintf("Wait for %.0f milliseconds", duration),
			Recovery:    types.RecoveryPolicy{},
		}},
		ExpectedOutcome: fmt.Sprintf("Successfully waited for %.0f milliseconds", duration),
	}
}

const planPrompt = `Build a browser automation plan for this command.

Command:
%s

Current page: %s (%s)

Respond with a JSON object:
{
  "steps": [
    {
      "action": "navigate|click|type|press|scroll|wait|extract|check",
      "params": {"action-specific parameters"},
      "description": "what this step does",
      "error_recovery": {
        "conditions": ["timeout", "element_not_found", "navigation_error", "network_error", "validation_error"],
        "actions": ["retry", "wait", "scroll_into_view", "check_connection", "abort"]
      }
    }
  ],
  "expected_outcome": "what success looks like"
}`

// planWithModel asks the language model for a plan and normalizes the
// result. Any failure yields an error plan rather than an error.
func (p *Planner) planWithModel(ctx context.Context, parsed types.ParsedCommand, env memory.EnvironmentState) *types.Plan {
	if p.completer == nil {
		return types.ErrorPlan(fmt.Sprintf("No planner available for action %q", parsed.Action))
	}

	encoded, err := json.MarshalIndent(parsed, "", "  ")
	if err != nil {
		return types.ErrorPlan(fmt.Sprintf("Failed to create task plan: %v", err))
	}

	raw, err := p.completer.Complete(ctx, llm.Request{
		System: "You plan browser automation steps. Reply with JSON only.",
		User:   fmt.Sprintf(planPrompt, encoded, env.URL, env.Title),
	})
	if err != nil {
		if p.log != nil {
			p.log.Errorf("model planning failed: %v", err)
		}
		return types.ErrorPlan(fmt.Sprintf("Failed to create task plan: %v", err))
	}

	var plan types.Plan
	if err := llm.ExtractJSON(raw, &plan); err != nil {
		if p.log != nil {
			p.log.Errorf("unparsable plan output: %v", err)
		}
		return types.ErrorPlan(fmt.Sprintf("Failed to create task plan: %v", err))
	}

	normalizePlan(&plan)
	return &plan
}

// normalizePlan fills the defaults the model tends to omit.
func normalizePlan(plan *types.Plan) {
	if plan.ExpectedOutcome == "" {
		plan.ExpectedOutcome = "Complete the requested action"
	}
	for i := range plan.Steps {
		step := &plan.Steps[i]
		if step.Action == "" {
			step.Action = "unknown"
		}
		if step.Params == nil {
			step.Params = map[string]any{}
		}
		if step.Description == "" {
			step.Description = fmt.Sprintf("Step %d", i+1)
		}
		if len(step.Recovery.Conditions) == 0 && len(step.Recovery.Actions) == 0 {
			step.Recovery = defaultPolicy
		}
	}
}
