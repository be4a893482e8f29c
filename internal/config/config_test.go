// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML and TOML loading, env var expansion, defaults, and validation

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, "gateway.yaml", `
server:
  http_addr: "0.0.0.0:8000"
  allowed_origins:
    - "http://localhost:3000"

database:
  path: "./test.db"

sessions:
  backend: sqlite
  idle_threshold: "90m"
  min_messages: 8

agent:
  binary: "/usr/local/bin/claude"
  model: "sonnet"
  turn_timeout: "5m"
  extra_args: ["--max-turns", "12"]

auth:
  bridge_token_ttl: "30m"

speech:
  enabled: true
  api_key: "sk-test"
  voice: "nova"
  timeout: "20s"

realtime:
  enabled: true
  api_key: "sk-test"
  rate: 2
  burst: 4

tools:
  meals:
    url: "https://example.supabase.co"
    api_key: "anon"
    default_user: "michael"

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "0.0.0.0:8000" {
		t.Errorf("Server.HTTPAddr = %q", cfg.Server.HTTPAddr)
	}
	if len(cfg.Server.AllowedOrigins) != 1 || cfg.Server.AllowedOrigins[0] != "http://localhost:3000" {
		t.Errorf("Server.AllowedOrigins = %v", cfg.Server.AllowedOrigins)
	}
	if cfg.Sessions.IdleThreshold != 90*time.Minute {
		t.Errorf("Sessions.IdleThreshold = %v, want 90m", cfg.Sessions.IdleThreshold)
	}
	if cfg.Sessions.MinMessages != 8 {
		t.Errorf("Sessions.MinMessages = %d, want 8", cfg.Sessions.MinMessages)
	}
	if cfg.Agent.TurnTimeout != 5*time.Minute {
		t.Errorf("Agent.TurnTimeout = %v, want 5m", cfg.Agent.TurnTimeout)
	}
	if len(cfg.Agent.ExtraArgs) != 2 {
		t.Errorf("Agent.ExtraArgs = %v", cfg.Agent.ExtraArgs)
	}
	if cfg.Auth.BridgeTokenTTL != 30*time.Minute {
		t.Errorf("Auth.BridgeTokenTTL = %v, want 30m", cfg.Auth.BridgeTokenTTL)
	}
	if cfg.Speech.Timeout != 20*time.Second {
		t.Errorf("Speech.Timeout = %v, want 20s", cfg.Speech.Timeout)
	}
	if cfg.Speech.Format != "mp3" {
		t.Errorf("Speech.Format = %q, want default mp3", cfg.Speech.Format)
	}
	if cfg.Realtime.Rate != 2 || cfg.Realtime.Burst != 4 {
		t.Errorf("Realtime = %+v", cfg.Realtime)
	}
	if cfg.Tools.Meals.DefaultUser != "michael" {
		t.Errorf("Tools.Meals.DefaultUser = %q", cfg.Tools.Meals.DefaultUser)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q", cfg.Logging.Format)
	}
}

func TestLoad_TOML(t *testing.T) {
	path := writeConfig(t, "gateway.toml", `
[server]
http_addr = "127.0.0.1:9000"

[sessions]
backend = "file"
dir = "/tmp/larder-sessions"
idle_threshold = "2h"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.HTTPAddr != "127.0.0.1:9000" {
		t.Errorf("Server.HTTPAddr = %q", cfg.Server.HTTPAddr)
	}
	if cfg.Sessions.Backend != BackendFile || cfg.Sessions.Dir != "/tmp/larder-sessions" {
		t.Errorf("Sessions = %+v", cfg.Sessions)
	}
	if cfg.Sessions.IdleThreshold != 2*time.Hour {
		t.Errorf("Sessions.IdleThreshold = %v, want 2h", cfg.Sessions.IdleThreshold)
	}
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "gateway.yaml", "logging:\n  level: warn\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "127.0.0.1:8000" {
		t.Errorf("Server.HTTPAddr = %q, want default", cfg.Server.HTTPAddr)
	}
	if cfg.Sessions.Backend != BackendSQLite {
		t.Errorf("Sessions.Backend = %q, want sqlite", cfg.Sessions.Backend)
	}
	if cfg.Sessions.IdleThreshold != time.Hour || cfg.Sessions.MinMessages != 5 {
		t.Errorf("resume thresholds = %v/%d, want 1h/5", cfg.Sessions.IdleThreshold, cfg.Sessions.MinMessages)
	}
	if cfg.Agent.Binary != "claude" || cfg.Agent.PermissionMode != "bypassPermissions" {
		t.Errorf("Agent = %+v", cfg.Agent)
	}
	if len(cfg.Server.AllowedOrigins) != 1 || cfg.Server.AllowedOrigins[0] != "*" {
		t.Errorf("Server.AllowedOrigins = %v, want [*]", cfg.Server.AllowedOrigins)
	}
	if cfg.Database.Path == "" {
		t.Error("Database.Path should have a default")
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("LARDER_TEST_OPENAI_KEY", "sk-from-env")
	t.Setenv("LARDER_TEST_SECRET", strings.Repeat("s", 32))

	path := writeConfig(t, "gateway.yaml", `
auth:
  jwt_secret: "${LARDER_TEST_SECRET}"
speech:
  enabled: true
  api_key: "${LARDER_TEST_OPENAI_KEY}"
tools:
  meals:
    url: "${LARDER_TEST_UNSET_URL}"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Speech.APIKey != "sk-from-env" {
		t.Errorf("Speech.APIKey = %q, want sk-from-env", cfg.Speech.APIKey)
	}
	if cfg.Auth.JWTSecret != strings.Repeat("s", 32) {
		t.Errorf("Auth.JWTSecret not expanded")
	}
	if cfg.Tools.Meals.URL != "" {
		t.Errorf("unset env var should expand to empty, got %q", cfg.Tools.Meals.URL)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "invalid duration",
			content: "sessions:\n  idle_threshold: soon\n",
			wantErr: "sessions.idle_threshold",
		},
		{
			name:    "unknown backend",
			content: "sessions:\n  backend: redis\n",
			wantErr: "sessions.backend",
		},
		{
			name:    "short secret",
			content: "auth:\n  jwt_secret: short\n",
			wantErr: "jwt_secret",
		},
		{
			name:    "speech without key",
			content: "speech:\n  enabled: true\n",
			wantErr: "speech.api_key",
		},
		{
			name:    "realtime without key",
			content: "realtime:\n  enabled: true\n",
			wantErr: "realtime.api_key",
		},
		{
			name:    "meals without key",
			content: "tools:\n  meals:\n    url: https://x.supabase.co\n",
			wantErr: "tools.meals.api_key",
		},
		{
			name:    "tailscale without hostname",
			content: "tailscale:\n  enabled: true\n",
			wantErr: "tailscale.hostname",
		},
		{
			name:    "relative public url",
			content: "server:\n  public_url: localhost:8000\n",
			wantErr: "public_url",
		},
		{
			name:    "bad log format",
			content: "logging:\n  format: xml\n",
			wantErr: "logging.format",
		},
		{
			name:    "invalid yaml",
			content: "server: [unterminated\n",
			wantErr: "parsing config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, "gateway.yaml", tt.content))
			if err == nil {
				t.Fatal("Load() expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("Load() expected error for missing file")
	}
}

func TestDefaultPath(t *testing.T) {
	t.Setenv(EnvConfigPath, "/etc/larder/custom.yaml")
	if got := DefaultPath(); got != "/etc/larder/custom.yaml" {
		t.Errorf("DefaultPath() = %q", got)
	}

	t.Setenv(EnvConfigPath, "")
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	if got := DefaultPath(); got != filepath.Join("/xdg", "larder", "gateway.yaml") {
		t.Errorf("DefaultPath() = %q", got)
	}
}

func TestBridgeURL(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{name: "public url wins", cfg: Config{Server: ServerConfig{HTTPAddr: ":8000", PublicURL: "https://larder.example/"}}, want: "https://larder.example"},
		{name: "wildcard host", cfg: Config{Server: ServerConfig{HTTPAddr: "0.0.0.0:8000"}}, want: "http://127.0.0.1:8000"},
		{name: "empty host", cfg: Config{Server: ServerConfig{HTTPAddr: ":9000"}}, want: "http://127.0.0.1:9000"},
		{name: "explicit host", cfg: Config{Server: ServerConfig{HTTPAddr: "10.0.0.5:8000"}}, want: "http://10.0.0.5:8000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.BridgeURL(); got != tt.want {
				t.Errorf("BridgeURL() = %q, want %q", got, tt.want)
			}
		})
	}
}
