// ABOUTME: Entry point for larder-gateway, the channel session gateway
// ABOUTME: Cobra root command wiring serve, init, health, and sessions subcommands

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/2389/larder-gateway/internal/config"
	"github.com/2389/larder-gateway/internal/gateway"
)

// version is set by goreleaser at build time.
var version = "dev"

const banner = `
  _               _
 | | __ _ _ __ __| | ___ _ __
 | |/ _' | '__/ _' |/ _ \ '__|
 | | (_| | | | (_| |  __/ |
 |_|\__,_|_|  \__,_|\___|_|
`

var configPath string

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "larder-gateway",
		Short:         "Channel session gateway for the larder kitchen assistant",
		Long:          "larder-gateway accepts one websocket per channel, drives the agent runtime turn by turn, and streams its replies, plots, and audio back to the browser.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath(),
		"config file (YAML, or TOML when it ends in .toml); overrides $"+config.EnvConfigPath)

	root.AddCommand(newServeCommand())
	root.AddCommand(newInitCommand())
	root.AddCommand(newHealthCommand())
	root.AddCommand(newSessionsCommand())
	return root
}

func main() {
	gateway.Version = version

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		cancel()
		os.Exit(1)
	}
}
