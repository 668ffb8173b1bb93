package browser

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
)

// Session holds one engine session's browser resources. All methods must
// be called through the executor, which serializes access per session.
type Session struct {
	ID         string
	Browser    playwright.Browser
	Context    playwright.BrowserContext
	Page       playwright.Page
	CreatedAt  time.Time
	LastUsedAt time.Time
	CurrentURL string
}

func (s *Session) touch() {
	s.LastUsedAt = time.Now()
}

func (s *Session) close() {
	_ = s.Page.Close()
	_ = s.Context.Close()
	_ = s.Browser.Close()
}

// Navigate loads a URL and waits for the DOM to be ready.
func (s *Session) Navigate(url string, timeout time.Duration) error {
	s.touch()

	opts := playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	}
	if timeout > 0 {
		opts.Timeout = playwright.Float(float64(timeout.Milliseconds()))
	}

	if _, err := s.Page.Goto(url, opts); err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}
	s.CurrentURL = s.Page.URL()
	return nil
}

// Click clicks the element addressed by selector.
func (s *Session) Click(selector string, timeout time.Duration) error {
	s.touch()

	opts := playwright.PageClickOptions{}
	if timeout > 0 {
		opts.Timeout = playwright.Float(float64(timeout.Milliseconds()))
	}
	if err := s.Page.Click(selector, opts); err != nil {
		return fmt.Errorf("click failed: %w", err)
	}

	// The click may have navigated.
	s.CurrentURL = s.Page.URL()
	return nil
}

// Fill types text into an input element.
func (s *Session) Fill(selector, value string, timeout time.Duration) error {
	s.touch()

	opts := playwright.PageFillOptions{}
	if timeout > 0 {
		opts.Timeout = playwright.Float(float64(timeout.Milliseconds()))
	}
	if err := s.Page.Fill(selector, value, opts); err != nil {
		return fmt.Errorf("fill failed: %w", err)
	}
	return nil
}

// Press sends a key press to the focused element, or to a selector when
// given.
func (s *Session) Press(selector, key string, timeout time.Duration) error {
	s.touch()

	if selector == "" {
		if err := s.Page.Keyboard().Press(key); err != nil {
			return fmt.Errorf("key press failed: %w", err)
		}
		return nil
	}

	opts := playwright.PagePressOptions{}
	if timeout > 0 {
		opts.Timeout = playwright.Float(float64(timeout.Milliseconds()))
	}
	if err := s.Page.Press(selector, key, opts); err != nil {
		return fmt.Errorf("key press failed: %w", err)
	}
	return nil
}

// ScrollTo scrolls the element addressed by selector into view.
func (s *Session) ScrollTo(selector string, timeout time.Duration) error {
	s.touch()

	locator := s.Page.Locator(selector)
	opts := playwright.LocatorScrollIntoViewIfNeededOptions{}
	if timeout > 0 {
		opts.Timeout = playwright.Float(float64(timeout.Milliseconds()))
	}
	if err := locator.ScrollIntoViewIfNeeded(opts); err != nil {
		return fmt.Errorf("scroll failed: %w", err)
	}
	return nil
}

// ScrollBy scrolls the viewport by the given pixel offsets.
func (s *Session) ScrollBy(x, y int) error {
	s.touch()

	_, err := s.Page.Evaluate(fmt.Sprintf("window.scrollBy(%d, %d)", x, y))
	if err != nil {
		return fmt.Errorf("scroll failed: %w", err)
	}
	return nil
}

// WaitFor waits until the selector reaches the given state ("visible" when
// empty).
func (s *Session) WaitFor(selector, state string, timeout time.Duration) error {
	s.touch()

	if selector == "" {
		return fmt.Errorf("missing parameter: selector")
	}

	opts := playwright.PageWaitForSelectorOptions{}
	if state != "" {
		st := playwright.WaitForSelectorState(state)
		opts.State = &st
	}
	if timeout > 0 {
		opts.Timeout = playwright.Float(float64(timeout.Milliseconds()))
	}
	if _, err := s.Page.WaitForSelector(selector, opts); err != nil {
		return fmt.Errorf("wait failed: %w", err)
	}
	return nil
}

// Text returns the text content of the selector, or the whole body when
// the selector is empty.
func (s *Session) Text(selector string) (string, error) {
	s.touch()

	if selector == "" {
		selector = "body"
	}
	element, err := s.Page.QuerySelector(selector)
	if err != nil {
		return "", fmt.Errorf("selector query failed: %w", err)
	}
	if element == nil {
		return "", fmt.Errorf("no element found matching selector: %s", selector)
	}
	content, err := element.TextContent()
	if err != nil {
		return "", fmt.Errorf("text extraction failed: %w", err)
	}
	return content, nil
}

// CleanContent returns the page's HTML reduced to its semantic structure,
// capped at maxLength characters.
func (s *Session) CleanContent(maxLength int) (*CleanedHTML, error) {
	s.touch()

	raw, err := s.Page.Content()
	if err != nil {
		return nil, fmt.Errorf("content extraction failed: %w", err)
	}
	return cleanHTML(raw, maxLength)
}

// Affordances lists the page's interactable elements, up to limit.
func (s *Session) Affordances(limit int) ([]Affordance, error) {
	s.touch()

	raw, err := s.Page.Content()
	if err != nil {
		return nil, fmt.Errorf("content extraction failed: %w", err)
	}
	return extractAffordances(raw, limit)
}

// Screenshot captures the viewport as base64-encoded PNG.
func (s *Session) Screenshot(fullPage bool) (string, error) {
	s.touch()

	data, err := s.Page.Screenshot(playwright.PageScreenshotOptions{
		FullPage: playwright.Bool(fullPage),
	})
	if err != nil {
		return "", fmt.Errorf("screenshot failed: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// Reload reloads the current page.
func (s *Session) Reload(timeout time.Duration) error {
	s.touch()

	opts := playwright.PageReloadOptions{}
	if timeout > 0 {
		opts.Timeout = playwright.Float(float64(timeout.Milliseconds()))
	}
	if _, err := s.Page.Reload(opts); err != nil {
		return fmt.Errorf("reload failed: %w", err)
	}
	s.CurrentURL = s.Page.URL()
	return nil
}

// Back navigates one entry back in history.
func (s *Session) Back(timeout time.Duration) error {
	s.touch()

	opts := playwright.PageGoBackOptions{}
	if timeout > 0 {
		opts.Timeout = playwright.Float(float64(timeout.Milliseconds()))
	}
	if _, err := s.Page.GoBack(opts); err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}
	s.CurrentURL = s.Page.URL()
	return nil
}

// Forward navigates one entry forward in history.
func (s *Session) Forward(timeout time.Duration) error {
	s.touch()

	opts := playwright.PageGoForwardOptions{}
	if timeout > 0 {
		opts.Timeout = playwright.Float(float64(timeout.Milliseconds()))
	}
	if _, err := s.Page.GoForward(opts); err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}
	s.CurrentURL = s.Page.URL()
	return nil
}

// FindByText locates a clickable element whose visible text matches, and
// returns a selector addressing it.
func (s *Session) FindByText(text string, timeout time.Duration) (string, error) {
	s.touch()

	locator := s.Page.GetByText(text, playwright.PageGetByTextOptions{
		Exact: playwright.Bool(false),
	}).First()

	opts := playwright.LocatorWaitForOptions{
		State: playwright.WaitForSelectorStateVisible,
	}
	if timeout > 0 {
		opts.Timeout = playwright.Float(float64(timeout.Milliseconds()))
	}
	if err := locator.WaitFor(opts); err != nil {
		return "", fmt.Errorf("no element found with text %q: %w", text, err)
	}
	return fmt.Sprintf("text=%s", text), nil
}

// Selectors commonly carrying page-level error or alert text.
var errorIndicatorSelectors = []string{
	".error", ".alert", ".alert-danger", ".error-message",
	"[role='alert']", ".validation-error", ".form-error",
}

// PageErrors collects visible page-level error indicator texts.
func (s *Session) PageErrors() []string {
	s.touch()

	var messages []string
	for _, selector := range errorIndicatorSelectors {
		elements, err := s.Page.QuerySelectorAll(selector)
		if err != nil {
			continue
		}
		for _, el := range elements {
			visible, err := el.IsVisible()
			if err != nil || !visible {
				continue
			}
			text, err := el.TextContent()
			if err != nil {
				continue
			}
			text = strings.TrimSpace(text)
			if text != "" {
				messages = append(messages, text)
			}
		}
	}
	return messages
}

// Selectors whose presence suggests an authenticated page.
var loggedInSelectors = []string{
	"[href*='logout']", "[href*='signout']", "[href*='sign-out']",
	".logout", ".avatar", ".user-menu", "[aria-label*='account']",
}

// IsLoggedIn heuristically checks whether the page shows signs of an
// authenticated state.
func (s *Session) IsLoggedIn() bool {
	s.touch()

	for _, selector := range loggedInSelectors {
		element, err := s.Page.QuerySelector(selector)
		if err != nil || element == nil {
			continue
		}
		if visible, err := element.IsVisible(); err == nil && visible {
			return true
		}
	}
	return false
}

// Metadata returns the current page title and URL.
func (s *Session) Metadata() map[string]string {
	s.touch()

	title, err := s.Page.Title()
	if err != nil {
		title = ""
	}
	return map[string]string{
		"title": title,
		"url":   s.Page.URL(),
	}
}
