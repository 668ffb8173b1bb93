// Package config holds the explicit configuration for the NatanAI engine.
//
// There is no global configuration state: a Settings value is constructed
// once at startup (defaults, optionally a YAML file, optionally environment
// overrides) and threaded into each component's constructor.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// BrowserSettings configures the Playwright-backed action executor.
type BrowserSettings struct {
	Headless       bool     `yaml:"headless"`
	BrowserType    string   `yaml:"browser_type"` // "chromium", "firefox", or "webkit"
	ViewportWidth  int      `yaml:"viewport_width"`
	ViewportHeight int      `yaml:"viewport_height"`
	UserAgent      string   `yaml:"user_agent"`
	AllowedURLs    []string `yaml:"allowed_urls"` // glob patterns; empty means allow all
	MaxSessions    int      `yaml:"max_sessions"`

	NavigationTimeout time.Duration `yaml:"navigation_timeout"`
	ActionTimeout     time.Duration `yaml:"action_timeout"`
	WaitTimeout       time.Duration `yaml:"wait_timeout"`
}

// LLMSettings configures the language-model collaborators (hint provider
// and plan producer fallback).
type LLMSettings struct {
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`

	// PromptTokenBudget bounds how much history the hint prompt may carry.
	PromptTokenBudget int           `yaml:"prompt_token_budget"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`
}

// SessionSettings configures session lifetime and context history bounds.
type SessionSettings struct {
	Expiry     time.Duration `yaml:"expiry"`
	MaxHistory int           `yaml:"max_history"`
}

// RetrySettings configures the recovery engine's wait behavior.
type RetrySettings struct {
	MaxRetries      int           `yaml:"max_retries"`
	RetryDelay      time.Duration `yaml:"retry_delay"`
	ConnectionDelay time.Duration `yaml:"connection_delay"`
}

// ServerSettings configures the HTTP front end.
type ServerSettings struct {
	Addr        string   `yaml:"addr"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// Settings is the complete engine configuration.
type Settings struct {
	Browser BrowserSettings `yaml:"browser"`
	LLM     LLMSettings     `yaml:"llm"`
	Session SessionSettings `yaml:"session"`
	Retry   RetrySettings   `yaml:"retry"`
	Server  ServerSettings  `yaml:"server"`
}

// Default returns the baseline settings.
func Default() Settings {
	return Settings{
		Browser: BrowserSettings{
			Headless:          true,
			BrowserType:       "chromium",
			ViewportWidth:     1280,
			ViewportHeight:    720,
			MaxSessions:       5,
			NavigationTimeout: 30 * time.Second,
			ActionTimeout:     10 * time.Second,
			WaitTimeout:       5 * time.Second,
		},
		LLM: LLMSettings{
			Model:             "gpt-4o",
			Temperature:       0.2,
			MaxTokens:         1000,
			PromptTokenBudget: 2000,
			RequestTimeout:    60 * time.Second,
		},
		Session: SessionSettings{
			Expiry:     time.Hour,
			MaxHistory: 50,
		},
		Retry: RetrySettings{
			MaxRetries:      3,
			RetryDelay:      time.Second,
			ConnectionDelay: 2 * time.Second,
		},
		Server: ServerSettings{
			Addr:        ":8080",
			CORSOrigins: []string{"*"},
		},
	}
}

// Load builds settings from defaults, an optional YAML file, and
// environment overrides, in that order.
func Load(path string) (Settings, error) {
	s := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return s, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &s); err != nil {
			return s, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	s.applyEnv()

	if err := s.Validate(); err != nil {
		return s, err
	}
	return s, nil
}

// applyEnv overlays environment variables onto the settings.
func (s *Settings) applyEnv() {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" && s.LLM.APIKey == "" {
		s.LLM.APIKey = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" && s.LLM.BaseURL == "" {
		s.LLM.BaseURL = v
	}
	if v := os.Getenv("NATAN_MODEL"); v != "" {
		s.LLM.Model = v
	}
	if v := os.Getenv("NATAN_HEADLESS"); v != "" {
		s.Browser.Headless = v == "true" || v == "1"
	}
	if v := os.Getenv("NATAN_BROWSER_TYPE"); v != "" {
		s.Browser.BrowserType = v
	}
	if v := os.Getenv("NATAN_SESSION_EXPIRY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			s.Session.Expiry = d
		}
	}
	if v := os.Getenv("NATAN_MAX_HISTORY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			s.Session.MaxHistory = n
		}
	}
	if v := os.Getenv("NATAN_ADDR"); v != "" {
		s.Server.Addr = v
	}
}

// Validate checks the settings for values the engine cannot run with.
func (s Settings) Validate() error {
	switch s.Browser.BrowserType {
	case "chromium", "firefox", "webkit":
	default:
		return fmt.Errorf("invalid browser_type %q (must be chromium, firefox, or webkit)", s.Browser.BrowserType)
	}
	if s.Session.MaxHistory <= 0 {
		return fmt.Errorf("session max_history must be positive, got %d", s.Session.MaxHistory)
	}
	if s.Session.Expiry <= 0 {
		return fmt.Errorf("session expiry must be positive, got %s", s.Session.Expiry)
	}
	return nil
}
