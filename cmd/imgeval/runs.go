package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/anime-shed/image-eval-go/internal/container"
	apperrors "github.com/anime-shed/image-eval-go/internal/errors"
)

func (a *cli) newRunsCmd() *cobra.Command {
	var store string

	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect the stored run history",
	}
	runsCmd.PersistentFlags().StringVar(&store, "store", "", "SQLite file recording the run history")

	openContainer := func(cmd *cobra.Command) (*container.Container, error) {
		if cmd.Flags().Changed("store") {
			a.cfg.Store.Path = store
		}
		if a.cfg.Store.Path == "" {
			return nil, apperrors.NewValidationError("no run store configured; set --store or RUN_STORE_PATH", nil)
		}
		return container.NewContainer(cmd.Context(), a.cfg)
	}

	var limit int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List the most recent runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openContainer(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			runs, err := c.Service().ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}

			table := newTable(cmd.OutOrStdout(), "ID", "Started", "Pairs", "Failed", "Score", "Verdict")
			for _, r := range runs {
				score, verdict := "-", "(running)"
				if r.Final != nil {
					score = fmt.Sprintf("%.4f", r.Final.Result.Score)
					verdict = string(r.Final.Result.Verdict)
				} else if r.FinishedAt != nil {
					verdict = "(no pairs)"
				}
				table.Append([]string{
					r.ID,
					r.StartedAt.Local().Format(time.DateTime),
					strconv.Itoa(r.Comparisons),
					strconv.Itoa(r.Failures),
					score,
					verdict,
				})
			}
			table.Render()
			return nil
		},
	}
	listCmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs")

	showCmd := &cobra.Command{
		Use:   "show ID",
		Short: "Print a stored run with its pair results as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openContainer(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			run, err := c.Service().GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(run)
		},
	}

	runsCmd.AddCommand(listCmd, showCmd)
	return runsCmd
}
