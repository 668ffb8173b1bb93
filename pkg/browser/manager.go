// Package browser implements the Playwright-backed action executor: one
// browser context per engine session, resolved lazily on first use and
// reused across that session's plans.
package browser

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/nullfox-coder/NatanAI/pkg/config"
	"github.com/nullfox-coder/NatanAI/pkg/logging"
)

// Manager owns the Playwright runtime and all per-session browser
// contexts.
type Manager struct {
	mu          sync.Mutex
	sessions    map[string]*Session
	playwright  *playwright.Playwright
	settings    config.BrowserSettings
	maxSessions int
	log         *logging.Logger
	initialized bool
}

// NewManager creates a manager for the given browser settings.
func NewManager(settings config.BrowserSettings, log *logging.Logger) *Manager {
	max := settings.MaxSessions
	if max <= 0 {
		max = 5
	}
	return &Manager{
		sessions:    make(map[string]*Session),
		settings:    settings,
		maxSessions: max,
		log:         log,
	}
}

// Initialize installs and starts Playwright. Must be called before any
// session is resolved.
func (m *Manager) Initialize() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.initialized {
		return nil
	}

	// Discard driver output so it does not interleave with our logs.
	opts := &playwright.RunOptions{
		Verbose: false,
		Stdout:  io.Discard,
		Stderr:  io.Discard,
	}

	if err := playwright.Install(opts); err != nil {
		return fmt.Errorf("failed to install playwright: %w", err)
	}

	pw, err := playwright.Run(opts)
	if err != nil {
		return fmt.Errorf("failed to start playwright: %w", err)
	}

	m.playwright = pw
	m.initialized = true
	if m.log != nil {
		m.log.Infof("playwright runtime started (%s)", m.browserName())
	}
	return nil
}

func (m *Manager) browserName() string {
	switch m.settings.BrowserType {
	case "firefox", "webkit", "chromium":
		return m.settings.BrowserType
	default:
		return "chromium"
	}
}

func (m *Manager) browserType() playwright.BrowserType {
	switch m.browserName() {
	case "firefox":
		return m.playwright.Firefox
	case "webkit":
		return m.playwright.WebKit
	default:
		return m.playwright.Chromium
	}
}

// Resolve returns the session's browser context, creating it on first use.
// One context exists per engine session id.
func (m *Manager) Resolve(sessionID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[sessionID]; ok {
		return s, nil
	}

	if !m.initialized {
		return nil, fmt.Errorf("browser manager not initialized")
	}
	if len(m.sessions) >= m.maxSessions {
		return nil, fmt.Errorf("maximum number of browser sessions (%d) reached", m.maxSessions)
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(m.settings.Headless),
	}
	browser, err := m.browserType().Launch(launchOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	contextOpts := playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  m.settings.ViewportWidth,
			Height: m.settings.ViewportHeight,
		},
	}
	if m.settings.UserAgent != "" {
		contextOpts.UserAgent = playwright.String(m.settings.UserAgent)
	}
	context, err := browser.NewContext(contextOpts)
	if err != nil {
		browser.Close()
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	page, err := context.NewPage()
	if err != nil {
		context.Close()
		browser.Close()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	page.SetDefaultTimeout(float64(m.settings.ActionTimeout.Milliseconds()))

	now := time.Now()
	session := &Session{
		ID:         sessionID,
		Browser:    browser,
		Context:    context,
		Page:       page,
		CreatedAt:  now,
		LastUsedAt: now,
		CurrentURL: "about:blank",
	}
	m.sessions[sessionID] = session

	if m.log != nil {
		m.log.Infof("created browser context for session %s", sessionID)
	}
	return session, nil
}

// Close tears down one session's browser context.
func (m *Manager) Close(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[sessionID]
	if !ok {
		return fmt.Errorf("browser session %q not found", sessionID)
	}
	session.close()
	delete(m.sessions, sessionID)
	if m.log != nil {
		m.log.Infof("closed browser context for session %s", sessionID)
	}
	return nil
}

// CloseIdle closes contexts unused for longer than the given duration and
// returns how many were closed.
func (m *Manager) CloseIdle(idle time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	closed := 0
	for id, session := range m.sessions {
		if now.Sub(session.LastUsedAt) > idle {
			session.close()
			delete(m.sessions, id)
			closed++
		}
	}
	return closed
}

// Shutdown closes every context and stops the Playwright runtime.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, session := range m.sessions {
		session.close()
		delete(m.sessions, id)
	}

	if m.initialized && m.playwright != nil {
		if err := m.playwright.Stop(); err != nil {
			return fmt.Errorf("failed to stop playwright: %w", err)
		}
		m.initialized = false
	}
	return nil
}
