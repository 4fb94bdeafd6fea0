package cococmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lehigh-university-libraries/segprep/internal/coco"
	"github.com/lehigh-university-libraries/segprep/internal/config"
	"github.com/lehigh-university-libraries/segprep/internal/mask"
	"github.com/spf13/cobra"
)

// NewMasksCmd creates the masks command
func NewMasksCmd() *cobra.Command {
	var flags datasetFlags
	var includeEmpty bool

	cmd := &cobra.Command{
		Use:   "masks",
		Short: "Rasterize instance annotations into label masks",
		Long: `Rasterize the instance annotations of each split into single-channel PNG masks.

Each pixel holds the category id of the last annotation covering it, 0 for
background. Annotation files without instance segmentation (captions, image
info) are skipped with a warning. A YAML report is written next to each mask
directory.`,
		Example: `  # Rasterize every configured split
  segprep coco masks

  # Only val2014, eight workers, also write masks for unannotated images
  segprep coco masks --split val2014 --workers 8 --include-empty`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, func(c *config.Config) {
				flags.apply(c)
				if includeEmpty {
					c.IncludeEmptyMasks = true
				}
			})
			if err != nil {
				return err
			}
			splits, err := selectSplits(cfg, flags.splits)
			if err != nil {
				return err
			}
			_, err = executeMasks(cmd.Context(), cfg, splits)
			return err
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&includeEmpty, "include-empty", false, "Also write all-background masks for images without annotations")

	return cmd
}

func executeMasks(ctx context.Context, cfg config.Config, splits []config.Split) ([]*mask.Report, error) {
	rasterizer := mask.NewRasterizer(mask.Options{
		Workers:      cfg.Workers,
		IncludeEmpty: cfg.IncludeEmptyMasks,
		Ext:          cfg.MaskExt,
	})

	var reports []*mask.Report
	for _, s := range splits {
		annPath := cfg.Resolve(s.Annotations)
		slog.Info("Loading annotations", "split", s.Name, "path", annPath)

		src, err := coco.Load(annPath)
		if err != nil {
			return reports, fmt.Errorf("failed to load annotations for %s: %w", s.Name, err)
		}

		report, err := rasterizer.Run(ctx, src, cfg.Resolve(s.Masks))
		if err != nil {
			return reports, fmt.Errorf("failed to rasterize %s: %w", s.Name, err)
		}
		report.Split = s.Name

		path := reportPath(cfg, s)
		if err := mask.SaveReport(report, path); err != nil {
			return reports, err
		}
		slog.Info("Wrote mask report", "split", s.Name, "path", path)
		reports = append(reports, report)
	}
	return reports, nil
}
