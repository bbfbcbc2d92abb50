// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML loading, env var expansion, duration parsing, and defaults

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chatgate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const validConfig = `
server:
  http_addr: "0.0.0.0:8080"

database:
  path: "./test.db"

auth:
  endpoint: "https://api.example.com"
  email: "bot@example.com"
  api_key: "secret-key"

anthropic:
  api_key: "sk-ant-test"
  model: "claude-3-5-sonnet-20241022"
  max_tokens: 2000

mcp:
  server_url: "https://tools.example.com/mcp"

sessions:
  idle_timeout: "30m"
  sweep_interval: "5m"
  shared: false

web:
  cookie_secret: "cookie-secret"
  password_hash: "$2a$10$abcdefghijklmnopqrstuv"

logging:
  level: "debug"
  format: "json"
`

func TestLoad_ValidConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Server.HTTPAddr)
	assert.Equal(t, "./test.db", cfg.Database.Path)
	assert.Equal(t, "https://api.example.com", cfg.Auth.Endpoint)
	assert.Equal(t, "bot@example.com", cfg.Auth.Email)
	assert.Equal(t, "sk-ant-test", cfg.Anthropic.APIKey)
	assert.Equal(t, 2000, cfg.Anthropic.MaxTokens)
	assert.Equal(t, "https://tools.example.com/mcp", cfg.MCP.ServerURL)
	assert.Equal(t, 30*time.Minute, cfg.Sessions.IdleTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Sessions.SweepInterval)
	assert.False(t, cfg.Sessions.Shared)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
server:
  http_addr: ":8080"
database:
  path: "./test.db"
auth:
  endpoint: "https://api.example.com"
anthropic:
  api_key: "sk-ant-test"
mcp:
  server_url: "https://tools.example.com/mcp"
web:
  cookie_secret: "s"
`))
	require.NoError(t, err)

	assert.Equal(t, DefaultModel, cfg.Anthropic.Model)
	assert.Equal(t, DefaultMaxTokens, cfg.Anthropic.MaxTokens)
	assert.Equal(t, "https://api.anthropic.com/v1", cfg.Anthropic.BaseURL)
	assert.Equal(t, DefaultIdleTimeout, cfg.Sessions.IdleTimeout)
	assert.Equal(t, DefaultSweepInterval, cfg.Sessions.SweepInterval)
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_ANTHROPIC_KEY", "sk-from-env")

	cfg, err := Load(writeConfig(t, `
server:
  http_addr: ":8080"
database:
  path: "./test.db"
auth:
  endpoint: "https://api.example.com"
anthropic:
  api_key: "${TEST_ANTHROPIC_KEY}"
mcp:
  server_url: "https://tools.example.com/mcp"
web:
  cookie_secret: "s"
`))
	require.NoError(t, err)
	assert.Equal(t, "sk-from-env", cfg.Anthropic.APIKey)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_InvalidDuration(t *testing.T) {
	_, err := Load(writeConfig(t, `
server:
  http_addr: ":8080"
database:
  path: "./test.db"
auth:
  endpoint: "https://api.example.com"
anthropic:
  api_key: "k"
mcp:
  server_url: "https://tools.example.com/mcp"
web:
  cookie_secret: "s"
sessions:
  idle_timeout: "not-a-duration"
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "idle_timeout")
}

func TestValidate_Failures(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"missing http addr", func(c *Config) { c.Server.HTTPAddr = "" }, "http_addr"},
		{"missing database path", func(c *Config) { c.Database.Path = "" }, "database.path"},
		{"missing anthropic key", func(c *Config) { c.Anthropic.APIKey = "" }, "anthropic.api_key"},
		{"missing mcp url", func(c *Config) { c.MCP.ServerURL = "" }, "mcp.server_url"},
		{"missing auth endpoint", func(c *Config) { c.Auth.Endpoint = "" }, "auth.endpoint"},
		{"missing cookie secret", func(c *Config) { c.Web.CookieSecret = "" }, "cookie_secret"},
		{"tailscale without hostname", func(c *Config) {
			c.Tailscale.Enabled = true
			c.Tailscale.Hostname = ""
		}, "tailscale.hostname"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, validConfig))
			require.NoError(t, err)

			tt.mutate(cfg)
			err = cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_TailscaleAllowsMissingAddr(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	require.NoError(t, err)

	cfg.Server.HTTPAddr = ""
	cfg.Tailscale.Enabled = true
	cfg.Tailscale.Hostname = "chatgate"
	assert.NoError(t, cfg.Validate())
}
