package cococmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/lehigh-university-libraries/segprep/internal/archive"
	"github.com/lehigh-university-libraries/segprep/internal/config"
	"github.com/spf13/cobra"
)

// NewFilesCmd creates the files command
func NewFilesCmd() *cobra.Command {
	var flags datasetFlags

	cmd := &cobra.Command{
		Use:   "files",
		Short: "List the dataset archives and split paths",
		Long: `List every configured archive with its md5 and local state, followed by the
annotation, image, mask and record paths of each split.`,
		Example: `  # Show what would be downloaded
  segprep coco files

  # Use a custom dataset directory
  segprep coco files --dataset-path /mnt/data/coco`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, flags.apply)
			if err != nil {
				return err
			}
			splits, err := selectSplits(cfg, flags.splits)
			if err != nil {
				return err
			}
			return executeFiles(cmd.OutOrStdout(), cfg, splits)
		},
	}
	flags.register(cmd)

	return cmd
}

func executeFiles(w io.Writer, cfg config.Config, splits []config.Split) error {
	fmt.Fprintf(w, "Dataset path: %s\n", cfg.DatasetDir())
	fmt.Fprintln(w, strings.Repeat("=", 80))

	fmt.Fprintf(w, "Archives (%d):\n", len(cfg.Archives))
	paths := cfg.ArchivePaths()
	for i, a := range cfg.Archives {
		path := paths[i]
		state := "missing"
		if _, err := os.Stat(path); err == nil {
			state = "downloaded"
		}
		if _, err := os.Stat(archive.MarkerPath(path, cfg.DatasetDir())); err == nil {
			state = "extracted"
		}
		fmt.Fprintf(w, "  %-45s %-10s %s\n", a.Filename(), state, a.MD5)
		fmt.Fprintf(w, "    %s\n", a.URL)
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Splits (%d):\n", len(splits))
	for _, s := range splits {
		fmt.Fprintf(w, "  %s\n", s.Name)
		fmt.Fprintf(w, "    annotations: %s\n", cfg.Resolve(s.Annotations))
		fmt.Fprintf(w, "    images:      %s\n", cfg.Resolve(s.Images))
		fmt.Fprintf(w, "    masks:       %s\n", cfg.Resolve(s.Masks))
		fmt.Fprintf(w, "    records:     %s\n", cfg.Resolve(s.Records))
	}
	return nil
}
