package cococmd

import (
	"context"
	"fmt"
	"io"

	"github.com/lehigh-university-libraries/segprep/internal/config"
	"github.com/spf13/cobra"
)

// NewSetupCmd creates the setup command, which runs download, masks and
// records in order.
func NewSetupCmd() *cobra.Command {
	var flags datasetFlags
	var skipDownload bool

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Download the dataset, rasterize masks and encode records",
		Example: `  # Full pipeline
  segprep coco setup --workers 4

  # Archives are already extracted
  segprep coco setup --skip-download`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, flags.apply)
			if err != nil {
				return err
			}
			splits, err := selectSplits(cfg, flags.splits)
			if err != nil {
				return err
			}
			return executeSetup(cmd.Context(), cmd.OutOrStdout(), cfg, splits, skipDownload)
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&skipDownload, "skip-download", false, "Use the archives already extracted in the dataset directory")

	return cmd
}

func executeSetup(ctx context.Context, w io.Writer, cfg config.Config, splits []config.Split, skipDownload bool) error {
	if !skipDownload {
		if err := executeDownload(ctx, cfg); err != nil {
			return err
		}
	}

	reports, err := executeMasks(ctx, cfg, splits)
	if err != nil {
		return err
	}
	summaries, err := executeRecords(ctx, cfg, splits)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "\nSetup complete!\n")
	for _, r := range reports {
		if r.Skipped {
			fmt.Fprintf(w, "  %s: skipped (%s)\n", r.Split, r.SkipReason)
			continue
		}
		fmt.Fprintf(w, "  %s: %d masks, %d annotations painted, %d skipped, %d dropped\n",
			r.Split, r.MasksWritten, r.AnnotationsPainted, r.AnnotationsSkipped, r.AnnotationsDropped)
	}
	for _, s := range summaries {
		fmt.Fprintf(w, "  %s: %d records\n", s.Dest, s.Records)
	}
	return nil
}
