package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	s := Default()

	assert.True(t, s.Browser.Headless)
	assert.Equal(t, "chromium", s.Browser.BrowserType)
	assert.Equal(t, 30*time.Second, s.Browser.NavigationTimeout)
	assert.Equal(t, time.Hour, s.Session.Expiry)
	assert.Equal(t, 50, s.Session.MaxHistory)
	assert.Equal(t, time.Second, s.Retry.RetryDelay)
	assert.NoError(t, s.Validate())
}

func TestLoad_YAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "natan.yaml")
	content := `
browser:
  headless: false
  browser_type: firefox
  navigation_timeout: 10s
session:
  expiry: 30m
  max_history: 10
server:
  addr: ":9090"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	s, err := Load(path)
	require.NoError(t, err)

	assert.False(t, s.Browser.Headless)
	assert.Equal(t, "firefox", s.Browser.BrowserType)
	assert.Equal(t, 10*time.Second, s.Browser.NavigationTimeout)
	assert.Equal(t, 30*time.Minute, s.Session.Expiry)
	assert.Equal(t, 10, s.Session.MaxHistory)
	assert.Equal(t, ":9090", s.Server.Addr)

	// Unspecified values keep their defaults
	assert.Equal(t, 5, s.Browser.MaxSessions)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("NATAN_BROWSER_TYPE", "webkit")
	t.Setenv("NATAN_SESSION_EXPIRY", "2h")
	t.Setenv("NATAN_MAX_HISTORY", "25")

	s, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "webkit", s.Browser.BrowserType)
	assert.Equal(t, 2*time.Hour, s.Session.Expiry)
	assert.Equal(t, 25, s.Session.MaxHistory)
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"bad browser type", func(s *Settings) { s.Browser.BrowserType = "netscape" }},
		{"zero history", func(s *Settings) { s.Session.MaxHistory = 0 }},
		{"zero expiry", func(s *Settings) { s.Session.Expiry = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Default()
			tt.mutate(&s)
			assert.Error(t, s.Validate())
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/natan.yaml")
	assert.Error(t, err)
}
