package cococmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/lehigh-university-libraries/segprep/internal/raster"
	"github.com/lehigh-university-libraries/segprep/internal/records"
	"github.com/spf13/cobra"
)

// inspectOptions controls executeInspect
type inspectOptions struct {
	limit       int
	exportDir   string
	interactive bool
	in          io.Reader
}

// NewInspectCmd creates the inspect command
func NewInspectCmd() *cobra.Command {
	var opts inspectOptions

	cmd := &cobra.Command{
		Use:   "inspect <file.segrec>",
		Short: "Decode and summarize a record container",
		Long: `Decode a record container one record at a time and print each record's shape
and the label values present in its mask.

When a parquet manifest sits next to the container, every record is checked
against it. Records can also be written back out as PNG files.`,
		Example: `  # Show the first 5 records
  segprep records inspect ~/datasets/coco/val2014.segrec --limit 5

  # Step through records one at a time
  segprep records inspect val2014.segrec --interactive

  # Write every record back to image/mask PNGs
  segprep records inspect val2014.segrec --limit 0 --export ./decoded`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := loadConfig(cmd, nil); err != nil {
				return err
			}
			opts.in = cmd.InOrStdin()
			return executeInspect(cmd.Context(), cmd.OutOrStdout(), args[0], opts)
		},
	}

	cmd.Flags().IntVar(&opts.limit, "limit", 10, "Number of records to show (0 for all)")
	cmd.Flags().StringVar(&opts.exportDir, "export", "", "Directory to write decoded image/mask PNGs to")
	cmd.Flags().BoolVar(&opts.interactive, "interactive", false, "Pause after each record (press Enter to continue)")

	return cmd
}

func executeInspect(ctx context.Context, w io.Writer, path string, opts inspectOptions) error {
	r, err := records.Open(path)
	if err != nil {
		return err
	}
	defer r.Close()

	var manifest []records.ManifestEntry
	if _, err := os.Stat(records.ManifestPath(path)); err == nil {
		manifest, err = records.ReadManifest(records.ManifestPath(path))
		if err != nil {
			return err
		}
	}

	fmt.Fprintf(w, "Container %s (format version %d)\n", path, r.Version())
	if manifest != nil {
		fmt.Fprintf(w, "Manifest: %d entries\n", len(manifest))
	}
	fmt.Fprintln(w, strings.Repeat("=", 80))

	var reader *bufio.Reader
	if opts.interactive && opts.in != nil {
		reader = bufio.NewReader(opts.in)
	}

	count := 0
	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(w, "\nInspection interrupted.")
			return nil
		default:
		}

		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read record %d: %w", count, err)
		}

		if opts.limit <= 0 || count < opts.limit {
			name := fmt.Sprintf("%06d", count)
			if count < len(manifest) {
				name = manifest[count].Stem
			}
			printRecord(w, count, name, rec)

			if opts.exportDir != "" {
				if err := exportRecord(opts.exportDir, name, rec); err != nil {
					return err
				}
			}

			if reader != nil {
				fmt.Fprint(w, "Press Enter to continue to next record (or Ctrl+C to quit)...")
				if _, err := reader.ReadString('\n'); err != nil {
					fmt.Fprintln(w)
					reader = nil
				}
			}
		}

		if count < len(manifest) {
			if err := checkManifest(manifest[count], rec); err != nil {
				return fmt.Errorf("record %d does not match manifest: %w", count, err)
			}
		}
		count++
	}

	if manifest != nil && count != len(manifest) {
		return fmt.Errorf("container has %d records but manifest lists %d", count, len(manifest))
	}

	fmt.Fprintln(w, strings.Repeat("=", 80))
	fmt.Fprintf(w, "Total records: %d\n", count)
	return nil
}

func printRecord(w io.Writer, index int, name string, rec records.Record) {
	fmt.Fprintf(w, "RECORD %d (%s)\n", index, name)
	fmt.Fprintf(w, "  Shape:          %dx%d\n", rec.Height, rec.Width)
	fmt.Fprintf(w, "  Channels:       image %d, mask %d\n", rec.ImageChannels, rec.MaskChannels)
	fmt.Fprintf(w, "  Labels:         %s\n", formatLabels(rec.Mask))
	fmt.Fprintln(w)
}

// formatLabels lists the distinct mask values with their pixel counts
func formatLabels(m []byte) string {
	var counts [256]int
	for _, v := range m {
		counts[v]++
	}
	var values []int
	for v, n := range counts {
		if n > 0 {
			values = append(values, v)
		}
	}
	slices.Sort(values)

	parts := make([]string, 0, len(values))
	for _, v := range values {
		parts = append(parts, fmt.Sprintf("%d:%d", v, counts[v]))
	}
	return strings.Join(parts, " ")
}

func checkManifest(e records.ManifestEntry, rec records.Record) error {
	if int(e.Height) != rec.Height || int(e.Width) != rec.Width {
		return fmt.Errorf("shape %dx%d, manifest %dx%d", rec.Height, rec.Width, e.Height, e.Width)
	}
	if int(e.ImageChannels) != rec.ImageChannels || int(e.MaskChannels) != rec.MaskChannels {
		return fmt.Errorf("channels %d/%d, manifest %d/%d", rec.ImageChannels, rec.MaskChannels, e.ImageChannels, e.MaskChannels)
	}
	return nil
}

func exportRecord(dir, name string, rec records.Record) error {
	img, err := rec.ImageRaster()
	if err != nil {
		return err
	}
	m, err := rec.MaskRaster()
	if err != nil {
		return err
	}
	if err := raster.Save(img, filepath.Join(dir, "images", name+".png")); err != nil {
		return err
	}
	return raster.Save(m, filepath.Join(dir, "masks", name+".png"))
}
