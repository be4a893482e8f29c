// ABOUTME: Configuration loading and parsing for larder-gateway
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// EnvConfigPath overrides the default config location.
const EnvConfigPath = "LARDER_CONFIG"

// Session backends.
const (
	BackendSQLite = "sqlite"
	BackendFile   = "file"
)

// Config represents the complete larder-gateway configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Tailscale TailscaleConfig `yaml:"tailscale" toml:"tailscale"`
	Database  DatabaseConfig  `yaml:"database" toml:"database"`
	Sessions  SessionsConfig  `yaml:"sessions" toml:"sessions"`
	Agent     AgentConfig     `yaml:"agent" toml:"agent"`
	Auth      AuthConfig      `yaml:"auth" toml:"auth"`
	Speech    SpeechConfig    `yaml:"speech" toml:"speech"`
	Realtime  RealtimeConfig  `yaml:"realtime" toml:"realtime"`
	Tools     ToolsConfig     `yaml:"tools" toml:"tools"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
}

// ServerConfig holds the HTTP listener configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`
	// PublicURL is how the agent runtime reaches the tool bridge.
	// Derived from http_addr when empty.
	PublicURL      string   `yaml:"public_url" toml:"public_url"`
	AllowedOrigins []string `yaml:"allowed_origins" toml:"allowed_origins"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Hostname  string `yaml:"hostname" toml:"hostname"`
	AuthKey   string `yaml:"auth_key" toml:"auth_key"`
	StateDir  string `yaml:"state_dir" toml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral" toml:"ephemeral"`
	HTTPS     bool   `yaml:"https" toml:"https"`   // serve on :443 with tailnet certs
	Funnel    bool   `yaml:"funnel" toml:"funnel"` // expose publicly via Funnel (implies HTTPS)
}

// DatabaseConfig holds the SQLite session database location
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// SessionsConfig selects the session backend and the resume thresholds
type SessionsConfig struct {
	Backend     string `yaml:"backend" toml:"backend"`
	Dir         string `yaml:"dir" toml:"dir"`
	MinMessages int    `yaml:"min_messages" toml:"min_messages"`

	IdleThreshold    time.Duration `yaml:"-" toml:"-"`
	IdleThresholdRaw string        `yaml:"idle_threshold" toml:"idle_threshold"`
}

// AgentConfig configures the Claude CLI runtime
type AgentConfig struct {
	Binary         string   `yaml:"binary" toml:"binary"`
	Model          string   `yaml:"model" toml:"model"`
	WorkingDir     string   `yaml:"working_dir" toml:"working_dir"`
	SystemPrompt   string   `yaml:"system_prompt" toml:"system_prompt"`
	PermissionMode string   `yaml:"permission_mode" toml:"permission_mode"`
	ExtraArgs      []string `yaml:"extra_args" toml:"extra_args"`

	TurnTimeout    time.Duration `yaml:"-" toml:"-"`
	TurnTimeoutRaw string        `yaml:"turn_timeout" toml:"turn_timeout"`
}

// AuthConfig holds tool bridge token configuration
type AuthConfig struct {
	// JWTSecret signs bridge tokens. A random per-process secret is used when empty.
	JWTSecret string `yaml:"jwt_secret" toml:"jwt_secret"`

	BridgeTokenTTL    time.Duration `yaml:"-" toml:"-"`
	BridgeTokenTTLRaw string        `yaml:"bridge_token_ttl" toml:"bridge_token_ttl"`
}

// SpeechConfig configures text-to-speech for assistant replies
type SpeechConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	APIKey  string `yaml:"api_key" toml:"api_key"`
	BaseURL string `yaml:"base_url" toml:"base_url"`
	Model   string `yaml:"model" toml:"model"`
	Voice   string `yaml:"voice" toml:"voice"`
	Format  string `yaml:"format" toml:"format"`

	Timeout    time.Duration `yaml:"-" toml:"-"`
	TimeoutRaw string        `yaml:"timeout" toml:"timeout"`
}

// RealtimeConfig configures transcription token minting
type RealtimeConfig struct {
	Enabled bool    `yaml:"enabled" toml:"enabled"`
	APIKey  string  `yaml:"api_key" toml:"api_key"`
	BaseURL string  `yaml:"base_url" toml:"base_url"`
	Model   string  `yaml:"model" toml:"model"`
	Rate    float64 `yaml:"rate" toml:"rate"` // tokens per second
	Burst   int     `yaml:"burst" toml:"burst"`
}

// ToolsConfig configures optional agent tools
type ToolsConfig struct {
	Meals MealsConfig `yaml:"meals" toml:"meals"`
}

// MealsConfig points log_meal at a Supabase project. Empty URL disables the tool.
type MealsConfig struct {
	URL         string `yaml:"url" toml:"url"`
	APIKey      string `yaml:"api_key" toml:"api_key"`
	DefaultUser string `yaml:"default_user" toml:"default_user"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// DefaultPath returns the config file location: $LARDER_CONFIG, then
// $XDG_CONFIG_HOME/larder/gateway.yaml, then ~/.config/larder/gateway.yaml.
func DefaultPath() string {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "larder", "gateway.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".config", "larder", "gateway.yaml")
	}
	return filepath.Join(home, ".config", "larder", "gateway.yaml")
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are parsed as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

func applyDefaults(cfg *Config) {
	if cfg.Server.HTTPAddr == "" && !cfg.Tailscale.Enabled {
		cfg.Server.HTTPAddr = "127.0.0.1:8000"
	}
	if len(cfg.Server.AllowedOrigins) == 0 {
		cfg.Server.AllowedOrigins = []string{"*"}
	}
	if cfg.Tailscale.Funnel {
		cfg.Tailscale.HTTPS = true
	}

	if cfg.Sessions.Backend == "" {
		cfg.Sessions.Backend = BackendSQLite
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = filepath.Join(dataDir(), "sessions.db")
	}
	if cfg.Sessions.Dir == "" {
		cfg.Sessions.Dir = filepath.Join(dataDir(), "sessions")
	}
	if cfg.Sessions.IdleThreshold == 0 {
		cfg.Sessions.IdleThreshold = time.Hour
	}
	if cfg.Sessions.MinMessages == 0 {
		cfg.Sessions.MinMessages = 5
	}

	if cfg.Agent.Binary == "" {
		cfg.Agent.Binary = "claude"
	}
	if cfg.Agent.PermissionMode == "" {
		cfg.Agent.PermissionMode = "bypassPermissions"
	}
	if cfg.Agent.TurnTimeout == 0 {
		cfg.Agent.TurnTimeout = 10 * time.Minute
	}

	if cfg.Auth.BridgeTokenTTL == 0 {
		cfg.Auth.BridgeTokenTTL = time.Hour
	}

	if cfg.Speech.Format == "" {
		cfg.Speech.Format = "mp3"
	}
	if cfg.Speech.Timeout == 0 {
		cfg.Speech.Timeout = 30 * time.Second
	}

	if cfg.Realtime.Rate == 0 {
		cfg.Realtime.Rate = 0.5
	}
	if cfg.Realtime.Burst == 0 {
		cfg.Realtime.Burst = 3
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}

func dataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "larder")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".local", "share", "larder")
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if !c.Tailscale.Enabled && c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required (or enable tailscale)")
	}
	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}
	if c.Server.PublicURL != "" {
		u, err := url.Parse(c.Server.PublicURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("server.public_url %q must be an absolute URL", c.Server.PublicURL)
		}
	}

	switch c.Sessions.Backend {
	case BackendSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for the sqlite backend")
		}
	case BackendFile:
		if c.Sessions.Dir == "" {
			return fmt.Errorf("sessions.dir is required for the file backend")
		}
	default:
		return fmt.Errorf("sessions.backend must be %q or %q, got %q", BackendSQLite, BackendFile, c.Sessions.Backend)
	}
	if c.Sessions.MinMessages < 0 {
		return fmt.Errorf("sessions.min_messages must not be negative")
	}
	if c.Sessions.IdleThreshold < 0 {
		return fmt.Errorf("sessions.idle_threshold must not be negative")
	}

	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("auth.jwt_secret must be at least 32 bytes")
	}

	if c.Speech.Enabled && c.Speech.APIKey == "" {
		return fmt.Errorf("speech.api_key is required when speech is enabled")
	}
	if c.Realtime.Enabled && c.Realtime.APIKey == "" {
		return fmt.Errorf("realtime.api_key is required when realtime is enabled")
	}
	if c.Realtime.Rate < 0 || c.Realtime.Burst < 0 {
		return fmt.Errorf("realtime.rate and realtime.burst must not be negative")
	}
	if c.Tools.Meals.URL != "" && c.Tools.Meals.APIKey == "" {
		return fmt.Errorf("tools.meals.api_key is required when tools.meals.url is set")
	}

	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

// BridgeURL returns the base URL the agent runtime uses to reach this gateway.
func (c *Config) BridgeURL() string {
	if c.Server.PublicURL != "" {
		return strings.TrimRight(c.Server.PublicURL, "/")
	}
	host, port, err := net.SplitHostPort(c.Server.HTTPAddr)
	if err != nil {
		return "http://" + c.Server.HTTPAddr
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"sessions.idle_threshold", cfg.Sessions.IdleThresholdRaw, &cfg.Sessions.IdleThreshold},
		{"agent.turn_timeout", cfg.Agent.TurnTimeoutRaw, &cfg.Agent.TurnTimeout},
		{"auth.bridge_token_ttl", cfg.Auth.BridgeTokenTTLRaw, &cfg.Auth.BridgeTokenTTL},
		{"speech.timeout", cfg.Speech.TimeoutRaw, &cfg.Speech.Timeout},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}
	return nil
}
