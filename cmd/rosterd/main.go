package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/l1jgo/roster/internal/config"
	"github.com/spf13/cobra"
)

// Version is the server build version.
const Version = "0.1.0"

const defaultConfigPath = "config/server.toml"

var cfgFile string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "rosterd",
		Short:         "Roster server: players, characters and their lifecycle.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default "+defaultConfigPath+", or $ROSTERD_CONFIG)")

	root.AddCommand(newServeCmd(), newMigrateCmd(), newVersionCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the game server (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

// loadConfig resolves the config path from --config, then $ROSTERD_CONFIG,
// then the default. A missing default file falls back to built-in settings.
func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		path = os.Getenv("ROSTERD_CONFIG")
	}
	if path == "" {
		path = defaultConfigPath
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return config.Default(), nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
