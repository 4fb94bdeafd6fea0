package cococmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lehigh-university-libraries/segprep/internal/archive"
	"github.com/lehigh-university-libraries/segprep/internal/config"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// NewDownloadCmd creates the download command
func NewDownloadCmd() *cobra.Command {
	var flags datasetFlags
	var force bool

	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download, verify and extract the dataset archives",
		Long: `Download every configured archive into the dataset directory, verify its md5
and extract it in place.

Archives already present with a matching checksum are reused, and archives
already extracted are not unpacked again.`,
		Example: `  # Download everything with four parallel downloads
  segprep coco download --workers 4

  # Ignore cached archives
  segprep coco download --force`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, func(c *config.Config) {
				flags.apply(c)
				if force {
					c.ForceDownload = true
				}
			})
			if err != nil {
				return err
			}
			return executeDownload(cmd.Context(), cfg)
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&force, "force", false, "Download even if a verified archive is cached")

	return cmd
}

func executeDownload(ctx context.Context, cfg config.Config) error {
	start := time.Now()
	dir := cfg.DatasetDir()
	downloader := archive.NewDownloader(archive.DownloadConfig{
		CacheDir:      dir,
		ForceDownload: cfg.ForceDownload,
	})

	slog.Info("Starting download", "archives", len(cfg.Archives), "dest", dir, "workers", cfg.Workers)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for _, a := range cfg.Archives {
		g.Go(func() error {
			path, err := downloader.Fetch(gctx, a)
			if err != nil {
				return err
			}
			if err := archive.Extract(gctx, path, dir); err != nil {
				return fmt.Errorf("failed to extract %s: %w", a.Filename(), err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("Download complete", "archives", len(cfg.Archives), "duration", time.Since(start).Round(time.Second))
	return nil
}
