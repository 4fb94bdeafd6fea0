package cococmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/lehigh-university-libraries/segprep/internal/config"
	"github.com/lehigh-university-libraries/segprep/internal/mask"
	"github.com/lehigh-university-libraries/segprep/internal/records"
	"github.com/spf13/cobra"
)

// NewRecordsCmd creates the records command
func NewRecordsCmd() *cobra.Command {
	var flags datasetFlags
	var manifest bool

	cmd := &cobra.Command{
		Use:   "records",
		Short: "Encode image/mask pairs into record containers",
		Long: `Pair each split's images with its masks by file name and encode every pair
into one record container per split.

Pairs are written in file name order. An image and mask of different sizes
abort the encode.`,
		Example: `  # Encode every configured split
  segprep coco records

  # Encode val2014 without the parquet manifest
  segprep coco records --split val2014 --manifest=false`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, func(c *config.Config) {
				flags.apply(c)
				if cmd.Flags().Changed("manifest") {
					c.Manifest = manifest
				}
			})
			if err != nil {
				return err
			}
			splits, err := selectSplits(cfg, flags.splits)
			if err != nil {
				return err
			}
			_, err = executeRecords(cmd.Context(), cfg, splits)
			return err
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&manifest, "manifest", true, "Write a parquet manifest next to each container")

	return cmd
}

func executeRecords(ctx context.Context, cfg config.Config, splits []config.Split) ([]*records.Summary, error) {
	var summaries []*records.Summary
	for _, s := range splits {
		if report, err := mask.LoadReport(reportPath(cfg, s)); err == nil {
			if report.Skipped {
				slog.Warn("Masks were not generated for split, skipping", "split", s.Name, "reason", report.SkipReason)
				continue
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			slog.Warn("Could not read mask report", "split", s.Name, "error", err)
		}

		pairs, err := records.Pairs(cfg.Resolve(s.Images), cfg.Resolve(s.Masks), cfg.ImageExt, cfg.MaskExt)
		if err != nil {
			return summaries, fmt.Errorf("failed to pair %s: %w", s.Name, err)
		}
		if len(pairs) == 0 {
			slog.Warn("No image/mask pairs found", "split", s.Name)
			continue
		}

		summary, err := records.Encode(ctx, pairs, cfg.Resolve(s.Records), records.EncodeOptions{Manifest: cfg.Manifest})
		if err != nil {
			return summaries, fmt.Errorf("failed to encode %s: %w", s.Name, err)
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}
