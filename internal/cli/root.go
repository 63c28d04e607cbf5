// Package cli implements the vdb command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"vdb/internal/config"
	"vdb/internal/core/bootstrap"
)

const (
	FlagConfig   = "config"
	FlagLogLevel = "log-level"
)

// state is shared by every subcommand of one invocation
type state struct {
	configPath string
	logLevel   string

	cfg    *config.Config
	logger *slog.Logger
}

// Execute runs the root command and exits non-zero on failure
func Execute() {
	if err := New().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

// New builds the root command
func New() *cobra.Command {
	st := &state{}

	cmd := &cobra.Command{
		Use:   "vdb [sub-command]",
		Short: "Virtual database of schema-backed repositories",
		Long: `vdb routes vdb:// identifiers to repositories. Schema definitions are
kept in a self-hosted catalog, and every schema is served through a proxy
under its namespace.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return st.load(cmd.ErrOrStderr())
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&st.configPath, FlagConfig, "",
		fmt.Sprintf("path to the config file (default: $%s, ./%s, then the user config dir)", config.EnvConfigPath, config.ConfigFileName))
	cmd.PersistentFlags().StringVar(&st.logLevel, FlagLogLevel, "", "log level: debug, info, warn or error")

	cmd.AddCommand(newServeCommand(st))
	cmd.AddCommand(newSchemaCommand(st))
	cmd.AddCommand(newReposCommand(st))
	cmd.AddCommand(newQueryCommand(st))
	cmd.AddCommand(newTypeCommand(st))
	return cmd
}

// load reads the configuration and installs the logger
func (st *state) load(logOut io.Writer) error {
	var (
		cfg *config.Config
		err error
	)
	if st.configPath != "" {
		cfg, _, err = config.LoadFromPath(st.configPath)
	} else {
		cfg, _, err = config.Load()
	}
	if err != nil {
		return err
	}
	if st.logLevel != "" {
		cfg.Log.Level = st.logLevel
	}

	logger, err := cfg.Log.NewLogger(logOut)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	st.cfg = cfg
	st.logger = logger
	return nil
}

// open starts the application for a one-shot command
func (st *state) open(ctx context.Context) (*bootstrap.App, error) {
	return bootstrap.Run(ctx, st.cfg, bootstrap.WithLogger(st.logger))
}
