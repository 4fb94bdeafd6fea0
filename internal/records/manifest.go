package records

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/parquet-go/parquet-go"
)

// ManifestEntry describes one written record
type ManifestEntry struct {
	Index         int64  `parquet:"index"`
	Stem          string `parquet:"stem"`
	ImagePath     string `parquet:"image_path"`
	MaskPath      string `parquet:"mask_path"`
	Height        int32  `parquet:"height"`
	Width         int32  `parquet:"width"`
	ImageChannels int32  `parquet:"image_channels"`
	MaskChannels  int32  `parquet:"mask_channels"`
	Offset        int64  `parquet:"offset"`
	Length        int64  `parquet:"length"`
}

// ManifestPath is where the manifest for a container lives
func ManifestPath(dest string) string {
	return dest + ".manifest.parquet"
}

// WriteManifest writes entries to a parquet file at path
func WriteManifest(path string, entries []ManifestEntry) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create manifest: %w", err)
	}
	defer f.Close()

	w := parquet.NewGenericWriter[ManifestEntry](f)
	if _, err := w.Write(entries); err != nil {
		return fmt.Errorf("failed to write manifest rows: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finish manifest: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close manifest: %w", err)
	}

	slog.Debug("Wrote manifest", "path", path, "rows", len(entries))
	return nil
}

// ReadManifest reads every entry from a manifest file
func ReadManifest(path string) ([]ManifestEntry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat manifest: %w", err)
	}

	pf, err := parquet.OpenFile(file, info.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet: %w", err)
	}

	reader := parquet.NewGenericReader[ManifestEntry](pf)
	defer reader.Close()

	entries := make([]ManifestEntry, 0, pf.NumRows())
	rows := make([]ManifestEntry, 128)
	for {
		n, err := reader.Read(rows)
		entries = append(entries, rows[:n]...)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read manifest rows: %w", err)
		}
	}
	return entries, nil
}
