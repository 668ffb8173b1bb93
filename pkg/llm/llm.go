// Package llm abstracts the language-model collaborator used for command
// parsing, task planning, and context hints.
//
// Example usage:
//
//	provider, err := openai.NewProvider(
//	    os.Getenv("OPENAI_API_KEY"),
//	    openai.WithModel("gpt-4o"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	text, err := provider.Complete(ctx, llm.Request{
//	    System: "You are a planner.",
//	    User:   "Plan a search for shoes.",
//	})
package llm

import (
	"context"
	"time"
)

// Request carries one completion call: a system instruction and a user
// payload. Temperature and MaxTokens of zero fall back to provider
// defaults.
type Request struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int
}

// Completer is the minimal surface the engine needs from a language model.
// Implementations must honor the context's deadline and return its error on
// expiry so timeouts flow through the ordinary classification path.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// CompleterFunc adapts a plain function to the Completer interface.
type CompleterFunc func(ctx context.Context, req Request) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// RequestDefaults decorates a Completer so every call carries an explicit
// deadline and the configured sampling parameters. Request fields already
// set by the caller win; zero decorator fields leave the call untouched.
type RequestDefaults struct {
	Completer   Completer
	Timeout     time.Duration
	Temperature float64
	MaxTokens   int
}

func (d RequestDefaults) Complete(ctx context.Context, req Request) (string, error) {
	if req.Temperature == 0 {
		req.Temperature = d.Temperature
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = d.MaxTokens
	}
	if d.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}
	return d.Completer.Complete(ctx, req)
}
