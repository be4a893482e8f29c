// ABOUTME: health subcommand: queries a running gateway's /health or /health/ready endpoint
// ABOUTME: Resolves the gateway address the same way the tool bridge does

package main

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/2389/larder-gateway/internal/config"
)

func newHealthCommand() *cobra.Command {
	var ready bool
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check gateway health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			path := "/health"
			if ready {
				path = "/health/ready"
			}
			return checkHealth(cmd, cfg.BridgeURL()+path)
		},
	}
	cmd.Flags().BoolVar(&ready, "ready", false, "report active channels from /health/ready")
	return cmd
}

func checkHealth(cmd *cobra.Command, url string) error {
	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Fprint(cmd.OutOrStdout(), string(body))
	return nil
}
