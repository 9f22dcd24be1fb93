package main

import (
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/anime-shed/image-eval-go/internal/config"
	"github.com/anime-shed/image-eval-go/internal/logger"
)

// cli carries state shared by the subcommands
type cli struct {
	configPath string
	logLevel   string
	logFormat  string

	cfg *config.Config

	// isTerminal reports whether a stream is an interactive terminal
	isTerminal func(stream interface{}) bool
}

func isTerminal(stream interface{}) bool {
	f, ok := stream.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// newRootCmd builds the imgeval command tree
func newRootCmd() *cobra.Command {
	app := &cli{isTerminal: isTerminal}

	rootCmd := &cobra.Command{
		Use:          "imgeval",
		Short:        "Score improved images against their base images",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.loadConfig(cmd)
		},
	}

	rootCmd.PersistentFlags().StringVar(&app.configPath, "config", "", "Configuration file (.yaml, .yml or .toml)")
	rootCmd.PersistentFlags().StringVar(&app.logLevel, "log", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&app.logFormat, "log-format", "", "Log format (text, json)")

	rootCmd.AddCommand(
		app.newCompareCmd(),
		app.newScoreCmd(),
		app.newServeCmd(),
		app.newRunsCmd(),
	)
	return rootCmd
}

// loadConfig layers defaults, the config file and the environment, then the
// global flags
func (a *cli) loadConfig(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("log") {
		cfg.Log.Level = a.logLevel
	}
	if cmd.Flags().Changed("log-format") {
		cfg.Log.Format = a.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger.Configure(cfg.Log.Level, cfg.Log.Format)
	a.cfg = cfg
	return nil
}

func (a *cli) stdinIsTerminal(cmd *cobra.Command) bool {
	return a.isTerminal(cmd.InOrStdin())
}

func (a *cli) stdoutIsTerminal(cmd *cobra.Command) bool {
	return a.isTerminal(cmd.OutOrStdout())
}
