// ABOUTME: init subcommand: interactively writes a YAML config file
// ABOUTME: Generates a random bridge signing secret and creates the data directory

package main

import (
	"bufio"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/2389/larder-gateway/internal/config"
)

func newInitCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create a new config file interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInit(cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

// initAnswers holds the values collected by the init prompts.
type initAnswers struct {
	HTTPAddr  string
	Backend   string
	StorePath string

	AgentBinary string
	AgentModel  string

	Tailscale         bool
	TailscaleHostname string
	TailscaleAuthKey  string
	TailscaleFunnel   bool

	SpeechAPIKey string
	MealsURL     string
	MealsAPIKey  string

	LogLevel  string
	LogFormat string
}

func runInit(in io.Reader, out io.Writer) error {
	reader := bufio.NewReader(in)
	defaults := config.Default()

	fmt.Fprintln(out, "larder-gateway configuration setup")
	fmt.Fprintln(out, "==================================")
	fmt.Fprintln(out)

	outputFile := prompt(reader, out, "Config file path", configPath)
	if _, err := os.Stat(outputFile); err == nil {
		if !yes(prompt(reader, out, "File exists. Overwrite?", "no")) {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	var a initAnswers

	fmt.Fprintln(out, "\n--- Server ---")
	a.HTTPAddr = prompt(reader, out, "HTTP address", defaults.Server.HTTPAddr)

	fmt.Fprintln(out, "\n--- Sessions ---")
	a.Backend = prompt(reader, out, "Session backend (sqlite/file)", config.BackendSQLite)
	if a.Backend == config.BackendFile {
		a.StorePath = prompt(reader, out, "Session directory", defaults.Sessions.Dir)
	} else {
		a.StorePath = prompt(reader, out, "SQLite database path", defaults.Database.Path)
	}

	fmt.Fprintln(out, "\n--- Agent Runtime ---")
	a.AgentBinary = prompt(reader, out, "Claude CLI binary", defaults.Agent.Binary)
	a.AgentModel = prompt(reader, out, "Model (leave empty for the CLI default)", "")

	fmt.Fprintln(out, "\n--- Tailscale ---")
	a.Tailscale = yes(prompt(reader, out, "Enable Tailscale?", "no"))
	if a.Tailscale {
		a.TailscaleHostname = prompt(reader, out, "Tailscale hostname", "larder")
		a.TailscaleAuthKey = prompt(reader, out, "Tailscale auth key (leave empty to use TS_AUTHKEY)", "")
		a.TailscaleFunnel = yes(prompt(reader, out, "Enable Funnel (public HTTPS)?", "no"))
	}

	fmt.Fprintln(out, "\n--- Optional Services ---")
	a.SpeechAPIKey = prompt(reader, out, "OpenAI API key for speech and transcription (leave empty to disable)", "")
	a.MealsURL = prompt(reader, out, "Supabase URL for meal logging (leave empty to disable)", "")
	if a.MealsURL != "" {
		a.MealsAPIKey = prompt(reader, out, "Supabase API key", "")
	}

	fmt.Fprintln(out, "\n--- Logging ---")
	a.LogLevel = prompt(reader, out, "Log level (debug/info/warn/error)", "info")
	a.LogFormat = prompt(reader, out, "Log format (text/json)", "text")

	secret, err := generateSecret()
	if err != nil {
		return err
	}

	data, err := renderInitConfig(a, secret)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(outputFile), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	// the file carries secrets
	if err := os.WriteFile(outputFile, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	dataDir := a.StorePath
	if a.Backend != config.BackendFile {
		dataDir = filepath.Dir(a.StorePath)
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	fmt.Fprintf(out, "\nConfig written to %s\n", outputFile)
	fmt.Fprintf(out, "Data directory: %s\n", dataDir)
	fmt.Fprintln(out, "\nTo start the server:")
	fmt.Fprintf(out, "  larder-gateway serve --config %s\n", outputFile)
	return nil
}

// renderInitConfig builds the YAML document for a.
func renderInitConfig(a initAnswers, secret string) ([]byte, error) {
	cfg := config.Config{
		Server: config.ServerConfig{
			HTTPAddr:       a.HTTPAddr,
			AllowedOrigins: []string{"*"},
		},
		Sessions: config.SessionsConfig{
			Backend:          a.Backend,
			MinMessages:      5,
			IdleThresholdRaw: "1h",
		},
		Agent: config.AgentConfig{
			Binary:         a.AgentBinary,
			Model:          a.AgentModel,
			TurnTimeoutRaw: "10m",
		},
		Auth: config.AuthConfig{
			JWTSecret:         secret,
			BridgeTokenTTLRaw: "1h",
		},
		Logging: config.LoggingConfig{
			Level:  a.LogLevel,
			Format: a.LogFormat,
		},
	}

	if a.Backend == config.BackendFile {
		cfg.Sessions.Dir = a.StorePath
	} else {
		cfg.Database.Path = a.StorePath
	}

	if a.Tailscale {
		cfg.Tailscale = config.TailscaleConfig{
			Enabled:  true,
			Hostname: a.TailscaleHostname,
			AuthKey:  a.TailscaleAuthKey,
			Funnel:   a.TailscaleFunnel,
		}
	}

	if a.SpeechAPIKey != "" {
		cfg.Speech = config.SpeechConfig{
			Enabled:    true,
			APIKey:     a.SpeechAPIKey,
			Voice:      "alloy",
			Format:     "mp3",
			TimeoutRaw: "30s",
		}
		cfg.Realtime = config.RealtimeConfig{
			Enabled: true,
			APIKey:  a.SpeechAPIKey,
			Rate:    0.5,
			Burst:   3,
		}
	}

	if a.MealsURL != "" {
		cfg.Tools.Meals = config.MealsConfig{
			URL:    a.MealsURL,
			APIKey: a.MealsAPIKey,
		}
	}

	body, err := yaml.Marshal(&cfg)
	if err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}
	header := "# larder-gateway configuration\n# Generated by larder-gateway init\n\n"
	return append([]byte(header), body...), nil
}

// generateSecret returns a random base64 secret long enough for bridge tokens.
func generateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating jwt secret: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}

func yes(s string) bool {
	s = strings.ToLower(s)
	return s == "yes" || s == "y"
}

func prompt(reader *bufio.Reader, out io.Writer, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Fprintf(out, "%s [%s]: ", question, defaultVal)
	} else {
		fmt.Fprintf(out, "%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil && input == "" {
		// On EOF or error, return default
		fmt.Fprintln(out)
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
