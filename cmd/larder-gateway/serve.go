// ABOUTME: serve subcommand: prints the startup banner and runs the gateway until signaled
// ABOUTME: Loads config, builds the logger, and hands both to gateway.New

package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/larder-gateway/internal/config"
	"github.com/2389/larder-gateway/internal/gateway"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway server",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging, cmd.OutOrStdout())

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	if cfg.Server.HTTPAddr != "" {
		green.Print("    ▶ ")
		fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	}
	green.Print("    ▶ ")
	fmt.Printf("Sessions:  %s\n", describeBackend(cfg))
	green.Print("    ▶ ")
	fmt.Printf("Runtime:   %s\n", cfg.Agent.Binary)

	if cfg.Tailscale.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Tailscale: ")
		cyan.Print(cfg.Tailscale.Hostname)
		if cfg.Tailscale.Funnel {
			yellow.Print(" [funnel]")
		}
		if cfg.Tailscale.Ephemeral {
			gray.Print(" (ephemeral)")
		}
		fmt.Println()
	}

	var extras []string
	if cfg.Speech.Enabled {
		extras = append(extras, "speech")
	}
	if cfg.Realtime.Enabled {
		extras = append(extras, "realtime")
	}
	if cfg.Tools.Meals.URL != "" {
		extras = append(extras, "meals")
	}
	if len(extras) > 0 {
		green.Print("    ▶ ")
		fmt.Printf("Enabled:   %v\n", extras)
	}
	fmt.Println()

	logger.Info("starting larder-gateway",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"backend", cfg.Sessions.Backend,
	)

	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}
	return gw.Run(cmd.Context())
}

func describeBackend(cfg *config.Config) string {
	if cfg.Sessions.Backend == config.BackendFile {
		return "file " + cfg.Sessions.Dir
	}
	return "sqlite " + cfg.Database.Path
}
