// ABOUTME: Stand-in for the Claude CLI that speaks stream-json, for local runs and E2E tests
// ABOUTME: Reads the query from stdin and echoes it back; --resume keeps the session id

package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

type options struct {
	resume         string
	model          string
	outputFormat   string
	permissionMode string
	systemPrompt   string
	mcpConfig      string
	allowedTools   string
	print          bool
	verbose        bool
}

func main() {
	var opts options
	cmd := &cobra.Command{
		Use:           "fake-agent",
		Short:         "Echo agent emitting Claude CLI stream-json",
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.InOrStdin(), cmd.OutOrStdout(), opts)
		},
	}
	cmd.FParseErrWhitelist.UnknownFlags = true

	f := cmd.Flags()
	f.StringVar(&opts.resume, "resume", "", "session id to resume")
	f.StringVar(&opts.model, "model", "fake", "model name reported in init")
	f.StringVar(&opts.outputFormat, "output-format", "stream-json", "only stream-json is supported")
	f.StringVar(&opts.permissionMode, "permission-mode", "", "accepted and ignored")
	f.StringVar(&opts.systemPrompt, "append-system-prompt", "", "accepted and ignored")
	f.StringVar(&opts.mcpConfig, "mcp-config", "", "accepted and ignored")
	f.StringVar(&opts.allowedTools, "allowedTools", "", "comma separated tool names")
	f.BoolVar(&opts.print, "print", false, "accepted and ignored")
	f.BoolVar(&opts.verbose, "verbose", false, "accepted and ignored")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fake-agent: %v\n", err)
		os.Exit(1)
	}
}

func run(in io.Reader, out io.Writer, opts options) error {
	if opts.outputFormat != "stream-json" {
		return fmt.Errorf("unsupported output format %q", opts.outputFormat)
	}

	query, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("reading query: %w", err)
	}
	text := strings.TrimSpace(string(query))
	if text == "" {
		return fmt.Errorf("empty query on stdin")
	}

	sessionID := opts.resume
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	var tools []string
	if opts.allowedTools != "" {
		tools = strings.Split(opts.allowedTools, ",")
	}

	w := bufio.NewWriter(out)
	enc := json.NewEncoder(w)

	lines := []any{
		map[string]any{
			"type":       "system",
			"subtype":    "init",
			"session_id": sessionID,
			"model":      opts.model,
			"tools":      tools,
		},
		map[string]any{
			"type":       "assistant",
			"session_id": sessionID,
			"message": map[string]any{
				"role": "assistant",
				"content": []map[string]any{
					{"type": "text", "text": "echo: " + text},
				},
			},
		},
		map[string]any{
			"type":           "result",
			"subtype":        "success",
			"is_error":       false,
			"result":         "echo: " + text,
			"session_id":     sessionID,
			"total_cost_usd": 0,
			"usage": map[string]any{
				"input_tokens":  len(strings.Fields(text)),
				"output_tokens": len(strings.Fields(text)) + 1,
			},
		},
	}
	for _, line := range lines {
		if err := enc.Encode(line); err != nil {
			return fmt.Errorf("writing stream-json: %w", err)
		}
	}
	return w.Flush()
}
