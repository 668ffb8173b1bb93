// Package main provides the NatanAI engine binary. It runs either as an
// HTTP server (the default) or executes a single natural-language command
// and prints the result as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nullfox-coder/NatanAI/pkg/api"
	"github.com/nullfox-coder/NatanAI/pkg/browser"
	"github.com/nullfox-coder/NatanAI/pkg/config"
	"github.com/nullfox-coder/NatanAI/pkg/engine"
	"github.com/nullfox-coder/NatanAI/pkg/llm"
	"github.com/nullfox-coder/NatanAI/pkg/llm/openai"
	"github.com/nullfox-coder/NatanAI/pkg/logging"
	"github.com/nullfox-coder/NatanAI/pkg/memory"
	"github.com/nullfox-coder/NatanAI/pkg/planner"
	"github.com/nullfox-coder/NatanAI/pkg/recovery"
	"github.com/nullfox-coder/NatanAI/pkg/session"
	"github.com/nullfox-coder/NatanAI/pkg/types"
)

const version = "0.1.0"

// CLIConfig holds command-line configuration.
type CLIConfig struct {
	ConfigFile  string
	Addr        string
	Command     string
	SessionID   string
	APIKey      string
	BaseURL     string
	Model       string
	Headed      bool
	ShowVersion bool
}

func main() {
	cli := parseFlags()

	if cli.ShowVersion {
		fmt.Printf("NatanAI v%s\n", version)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nshutting down...")
		cancel()
	}()

	if err := run(ctx, cli); err != nil {
		cancel()
		log.Printf("natan failed: %v", err)
		os.Exit(1)
	}
	cancel()
}

func parseFlags() *CLIConfig {
	cli := &CLIConfig{}

	flag.StringVar(&cli.ConfigFile, "config", "", "Path to configuration file (YAML)")
	flag.StringVar(&cli.Addr, "addr", "", "Listen address for server mode (overrides config)")
	flag.StringVar(&cli.Command, "command", "", "Execute one command and exit instead of serving")
	flag.StringVar(&cli.SessionID, "session", "", "Session id for one-shot command mode")
	flag.StringVar(&cli.APIKey, "api-key", os.Getenv("OPENAI_API_KEY"), "OpenAI API key")
	flag.StringVar(&cli.BaseURL, "base-url", os.Getenv("OPENAI_BASE_URL"), "OpenAI API base URL")
	flag.StringVar(&cli.Model, "model", "", "LLM model to use (overrides config)")
	flag.BoolVar(&cli.Headed, "headed", false, "Run the browser with a visible window")
	flag.BoolVar(&cli.ShowVersion, "version", false, "Show version and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "NatanAI - Browser Automation Engine\n\n")
		fmt.Fprintf(os.Stderr, "Usage: natan [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  # Serve the HTTP API\n")
		fmt.Fprintf(os.Stderr, "  natan -addr :8080\n\n")
		fmt.Fprintf(os.Stderr, "  # Execute one command\n")
		fmt.Fprintf(os.Stderr, "  natan -command \"go to https://example.com\"\n\n")
	}

	flag.Parse()
	return cli
}

func run(ctx context.Context, cli *CLIConfig) error {
	settings, err := config.Load(cli.ConfigFile)
	if err != nil {
		return err
	}
	if cli.Addr != "" {
		settings.Server.Addr = cli.Addr
	}
	if cli.Model != "" {
		settings.LLM.Model = cli.Model
	}
	if cli.APIKey != "" {
		settings.LLM.APIKey = cli.APIKey
	}
	if cli.BaseURL != "" {
		settings.LLM.BaseURL = cli.BaseURL
	}
	if cli.Headed {
		settings.Browser.Headless = false
	}

	logger, err := logging.NewLogger("natan")
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer logger.Close()

	manager := browser.NewManager(settings.Browser, logger)
	if err := manager.Initialize(); err != nil {
		return fmt.Errorf("initializing browser: %w", err)
	}
	defer manager.Shutdown()

	executor, err := browser.NewExecutor(manager, settings.Browser, logger)
	if err != nil {
		return err
	}

	// The language model is optional: without an API key the regex parser
	// and rule-based planners still work.
	var completer llm.Completer
	var opts engine.Options
	opts.Closer = manager
	if settings.LLM.APIKey != "" || os.Getenv("OPENAI_API_KEY") != "" {
		providerOpts := []openai.ProviderOption{openai.WithModel(settings.LLM.Model)}
		if settings.LLM.BaseURL != "" {
			providerOpts = append(providerOpts, openai.WithBaseURL(settings.LLM.BaseURL))
		}
		provider, err := openai.NewProvider(settings.LLM.APIKey, providerOpts...)
		if err != nil {
			return err
		}
		completer = llm.RequestDefaults{
			Completer:   provider,
			Timeout:     settings.LLM.RequestTimeout,
			Temperature: settings.LLM.Temperature,
			MaxTokens:   settings.LLM.MaxTokens,
		}

		hints := memory.CompleterHints{Completer: completer, Budget: settings.LLM.PromptTokenBudget}
		if counter, err := llm.NewTokenCounter(); err == nil {
			hints.Counter = counter
		} else {
			logger.Warnf("token counter unavailable, hint prompts run unbudgeted: %v", err)
		}
		opts.Hints = hints
	} else {
		logger.Warnf("no API key configured, running without language-model support")
	}

	eng := engine.New(
		session.NewStore(settings.Session.Expiry, logger),
		executor,
		planner.NewParser(completer, logger),
		planner.NewPlanner(settings.Browser, completer, logger),
		recovery.NewEngine(executor, recovery.Options{
			RetryDelay:      settings.Retry.RetryDelay,
			ConnectionDelay: settings.Retry.ConnectionDelay,
			ActionTimeout:   settings.Browser.ActionTimeout,
			MaxRetries:      settings.Retry.MaxRetries,
		}, logger),
		settings,
		opts,
		logger,
	)

	// Sweep idle browser contexts and expired sessions the whole time the
	// process runs, so abandoned sessions release their MaxSessions slot.
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := manager.CloseIdle(settings.Session.Expiry); n > 0 {
					logger.Infof("closed %d idle browser contexts", n)
				}
				eng.Sessions().CleanupExpired()
			}
		}
	}()

	if cli.Command != "" {
		return runOnce(ctx, eng, cli)
	}
	return serve(ctx, eng, settings, logger)
}

// runOnce executes a single command and prints the result as JSON.
func runOnce(ctx context.Context, eng *engine.Engine, cli *CLIConfig) error {
	result := eng.ExecuteCommand(ctx, cli.Command, cli.SessionID, "")

	encoded, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(encoded))

	if result.Status != types.StatusSuccess {
		return fmt.Errorf("command failed: %s", result.Message)
	}
	return nil
}

// serve runs the HTTP API until the context is cancelled.
func serve(ctx context.Context, eng *engine.Engine, settings config.Settings, logger *logging.Logger) error {
	server := api.NewServer(eng, settings.Server, logger)

	errChan := make(chan error, 1)
	go func() { errChan <- server.Start() }()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}
