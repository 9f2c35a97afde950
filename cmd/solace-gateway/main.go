// ABOUTME: Entry point for the solace-gateway conversation server
// ABOUTME: Cobra root command, config path resolution and the startup banner

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/solace-gateway/internal/config"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
           _                                 _
 ___  ___ | | __ _  ___ ___    __ _  __ _| |_ _____      ____ _ _   _
/ __|/ _ \| |/ _' |/ __/ _ \  / _' |/ _' | __/ _ \ \ /\ / / _' | | | |
\__ \ (_) | | (_| | (_|  __/ | (_| | (_| | ||  __/\ V  V / (_| | |_| |
|___/\___/|_|\__,_|\___\___|  \__, |\__,_|\__\___| \_/\_/ \__,_|\__, |
                              |___/                             |___/
`

// configPath is set by the --config flag.
var configPath string

// getConfigPath returns the path to the gateway config file.
// Priority: SOLACE_CONFIG env var > XDG_CONFIG_HOME/solace/gateway.yaml > ~/.config/solace/gateway.yaml
func getConfigPath() string {
	if envPath := os.Getenv("SOLACE_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml"
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "solace", "gateway.yaml")
}

// getDataPath returns the solace data directory.
// Priority: XDG_DATA_HOME/solace > ~/.local/share/solace
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data"
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "solace")
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "solace-gateway",
		Short:         "Real-time conversation gateway",
		Long:          "solace-gateway serves authenticated WebSocket chat sessions backed by SQLite and a reply pipeline.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", getConfigPath(), "path to the gateway config file (.yaml or .toml)")

	root.AddCommand(
		newServeCmd(),
		newInitCmd(),
		newUserAddCmd(),
		newTokenCmd(),
		newHealthCmd(),
	)
	return root
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		color.New(color.FgRed).Fprint(os.Stderr, "Error: ")
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
