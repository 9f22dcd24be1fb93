package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	apperrors "github.com/anime-shed/image-eval-go/internal/errors"
	"github.com/anime-shed/image-eval-go/pkg/models"
	"github.com/anime-shed/image-eval-go/pkg/scoring"
)

func (a *cli) newScoreCmd() *cobra.Command {
	var explain bool

	cmd := &cobra.Command{
		Use:   "score FILE",
		Short: "Score a metric record stored as JSON, YAML or TOML",
		Long: "Reads a document mapping metric names (mse, edge_mse, fft_mse, ssim, ms_ssim, gsim, psnr, " +
			"brisque_diff, hist_corr, entropy_diff, vmaf) to values and prints the weighted score and verdict.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := readMetricFile(args[0])
			if err != nil {
				return err
			}
			scorer, err := scoring.NewScorerWithWeights(a.cfg.ScoreWeights())
			if err != nil {
				return err
			}
			result, err := scorer.Score(values)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if explain {
				contributions, err := scorer.Explain(values)
				if err != nil {
					return err
				}
				table := newTable(out, "Metric", "Value", "Normalized", "Weight")
				for _, c := range contributions {
					table.Append([]string{
						string(c.Metric),
						fmt.Sprintf("%.4f", c.Value),
						fmt.Sprintf("%.4f", c.Normalized),
						fmt.Sprintf("%g", c.Weight),
					})
				}
				table.Render()
			}
			fmt.Fprintln(out, result.String())
			return nil
		},
	}

	cmd.Flags().BoolVar(&explain, "explain", false, "Print the contribution of every metric")
	return cmd
}

// readMetricFile decodes a metric record, choosing the format by extension
func readMetricFile(path string) (models.MetricValues, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.NewValidationError(fmt.Sprintf("cannot read %s", path), err)
	}

	raw := map[string]interface{}{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &raw)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &raw)
	case ".toml":
		_, err = toml.Decode(string(data), &raw)
	default:
		return nil, apperrors.NewValidationError(fmt.Sprintf("unsupported metric file format %q", filepath.Ext(path)), nil)
	}
	if err != nil {
		return nil, apperrors.NewValidationError(fmt.Sprintf("cannot parse %s", path), err)
	}

	values, err := models.ParseMetricValues(raw)
	if err != nil {
		return nil, apperrors.NewValidationError(err.Error(), err)
	}
	return values, nil
}
