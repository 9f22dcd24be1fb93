package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/anime-shed/image-eval-go/internal/container"
	"github.com/anime-shed/image-eval-go/internal/logger"
	"github.com/anime-shed/image-eval-go/internal/observer"
)

type compareOptions struct {
	baseDir     string
	improvedDir string
	workers     int
	threshold   int
	skipVMAF    bool
	noColor     bool
	progress    bool
	cache       string
	store       string
}

func (a *cli) newCompareCmd() *cobra.Command {
	opts := &compareOptions{}

	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Compare every base/improved pair in two directories",
		Long: "Pairs <key>_base.* files with <key>_improved.* files, prints the metrics and verdict " +
			"of each pair, and prints the running batch average once more than --threshold pairs were compared. " +
			"Directories may be local paths or az://container/prefix URIs.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runCompare(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.baseDir, "base", "", "Directory with the reference images (default <cwd>/base)")
	cmd.Flags().StringVar(&opts.improvedDir, "improved", "", "Directory with the generated images (default <cwd>/improved)")
	cmd.Flags().IntVar(&opts.workers, "workers", 0, "Pairs evaluated in parallel")
	cmd.Flags().IntVar(&opts.threshold, "threshold", 0, "Comparisons after which a batch average follows every pair")
	cmd.Flags().BoolVar(&opts.skipVMAF, "skip-vmaf", false, "Do not run ffmpeg; VMAF is reported as 0")
	cmd.Flags().BoolVar(&opts.noColor, "no-color", false, "Disable colored output")
	cmd.Flags().BoolVar(&opts.progress, "progress", false, "Show a progress bar on stderr")
	cmd.Flags().StringVar(&opts.cache, "cache", "", "Metric cache backend (none, memory, redis)")
	cmd.Flags().StringVar(&opts.store, "store", "", "SQLite file recording the run history")
	return cmd
}

// applyFlags overlays explicitly set flags on the loaded configuration
func (o *compareOptions) applyFlags(cmd *cobra.Command, a *cli) error {
	cfg := a.cfg
	flags := cmd.Flags()
	if flags.Changed("base") {
		cfg.Compare.BaseDir = o.baseDir
	}
	if flags.Changed("improved") {
		cfg.Compare.ImprovedDir = o.improvedDir
	}
	if flags.Changed("workers") {
		cfg.Compare.Workers = o.workers
	}
	if flags.Changed("threshold") {
		cfg.Compare.SummaryThreshold = o.threshold
	}
	if flags.Changed("skip-vmaf") {
		cfg.Metrics.SkipVMAF = o.skipVMAF
	}
	if flags.Changed("cache") {
		cfg.Cache.Backend = o.cache
	}
	if flags.Changed("store") {
		cfg.Store.Path = o.store
	}
	return cfg.Validate()
}

func (a *cli) runCompare(cmd *cobra.Command, opts *compareOptions) error {
	if err := opts.applyFlags(cmd, a); err != nil {
		return err
	}
	cfg := a.cfg

	baseDir, improvedDir, err := a.resolveDirectories(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := container.NewContainer(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	defer c.Close()

	useColor := !opts.noColor && a.stdoutIsTerminal(cmd)
	c.Publisher().Subscribe(observer.NewConsoleObserver(cmd.OutOrStdout(), useColor))
	if opts.progress {
		c.Publisher().Subscribe(observer.NewProgressObserver(cmd.ErrOrStderr()))
	}

	base, err := c.Sources().Open(baseDir)
	if err != nil {
		return err
	}
	improved, err := c.Sources().Open(improvedDir)
	if err != nil {
		return err
	}

	report, err := c.Service().CompareDirectories(ctx, base, improved)
	if err != nil {
		if errors.Is(err, context.Canceled) && report != nil {
			logger.WithFields(logrus.Fields{
				"run_id":      report.RunID,
				"comparisons": len(report.Pairs),
			}).Warn("Comparison interrupted")
		}
		return err
	}
	if len(report.Failures) > 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "%d pair(s) could not be compared\n", len(report.Failures))
	}
	if c.HasRunStore() {
		fmt.Fprintf(cmd.ErrOrStderr(), "Run %s recorded\n", report.RunID)
	}
	return nil
}

// resolveDirectories returns the configured directories, asking for missing
// ones when stdin is a terminal. Empty answers select <cwd>/base and
// <cwd>/improved.
func (a *cli) resolveDirectories(cmd *cobra.Command) (string, string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", "", fmt.Errorf("cannot determine working directory: %w", err)
	}
	defaultBase := filepath.Join(cwd, "base")
	defaultImproved := filepath.Join(cwd, "improved")

	baseDir, improvedDir := a.cfg.Compare.BaseDir, a.cfg.Compare.ImprovedDir
	interactive := a.stdinIsTerminal(cmd)
	reader := bufio.NewReader(cmd.InOrStdin())

	if baseDir == "" {
		if interactive {
			baseDir = prompt(reader, cmd.OutOrStdout(),
				fmt.Sprintf("Enter the path to your reference images directory (default: %s): ", defaultBase))
		}
		if baseDir == "" {
			baseDir = defaultBase
		}
	}
	if improvedDir == "" {
		if interactive {
			improvedDir = prompt(reader, cmd.OutOrStdout(),
				fmt.Sprintf("Enter the path to your generated images directory (default: %s): ", defaultImproved))
		}
		if improvedDir == "" {
			improvedDir = defaultImproved
		}
	}
	return baseDir, improvedDir, nil
}

func prompt(r *bufio.Reader, w io.Writer, question string) string {
	fmt.Fprint(w, question)
	line, err := r.ReadString('\n')
	if err != nil && line == "" {
		return ""
	}
	return strings.TrimSpace(line)
}
