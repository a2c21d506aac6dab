package main

import (
	"fmt"

	"github.com/example/musicdaemon/internal/config"
	"github.com/example/musicdaemon/internal/logging"
	"github.com/spf13/cobra"
)

var (
	cfgFile   string
	activeCfg config.Config
)

// NewRootCmd builds the musicdaemon command tree: serve (the daemon itself),
// model (asset download/verify), and doctor (environment preflight).
func NewRootCmd() *cobra.Command {
	defaults := config.DefaultConfig()

	cmd := &cobra.Command{
		Use:   "musicdaemon",
		Short: "Local offline music-generation daemon",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := config.Load(config.LoadOptions{
				Cmd:        cmd,
				ConfigFile: cfgFile,
				Defaults:   defaults,
			})
			if err != nil {
				return err
			}

			activeCfg = loaded
			logging.Setup(loaded.LogLevel)

			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Optional config file (yaml|toml|json)")
	config.RegisterFlags(cmd.PersistentFlags(), defaults)

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newModelCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newGenerateCmd())

	return cmd
}

// requireConfig returns the config loaded by PersistentPreRunE, erroring if
// a subcommand's RunE somehow runs before it (e.g. unit tests calling RunE
// directly).
func requireConfig() (config.Config, error) {
	if activeCfg.Cache.Dir == "" {
		return config.Config{}, fmt.Errorf("configuration not loaded")
	}

	return activeCfg, nil
}
