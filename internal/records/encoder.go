package records

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lehigh-university-libraries/segprep/internal/raster"
)

// EncodeOptions controls Encode
type EncodeOptions struct {
	// Manifest writes a parquet sidecar next to the container
	Manifest bool
}

// Summary describes a finished encode
type Summary struct {
	Dest         string
	Records      int
	Bytes        int64
	ManifestPath string
	Duration     time.Duration
}

// Encode writes one record per pair to dest, in order. Pairs are loaded and
// written one at a time so memory use does not grow with the dataset.
//
// A pair whose image and mask differ in size aborts the encode with a
// *ShapeMismatchError before any of that pair is written. An unreadable
// file aborts with a *FileError. The container is closed on every path.
func Encode(ctx context.Context, pairs []Pair, dest string, opts EncodeOptions) (summary *Summary, err error) {
	start := time.Now()

	w, err := Create(dest)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := w.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()

	summary = &Summary{Dest: dest}
	var manifest []ManifestEntry
	if opts.Manifest {
		manifest = make([]ManifestEntry, 0, len(pairs))
	}

	slog.Info("Encoding records", "pairs", len(pairs), "dest", dest)

	for i, pair := range pairs {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		rec, err := loadPair(pair)
		if err != nil {
			slog.Error("Encode aborted", "pair", i, "stem", pair.Stem, "error", err)
			return summary, err
		}

		offset, length, err := w.Write(rec)
		if err != nil {
			return summary, fmt.Errorf("failed to write record %d (%s): %w", i, pair.Stem, err)
		}
		summary.Records++
		summary.Bytes = offset + length

		if opts.Manifest {
			manifest = append(manifest, ManifestEntry{
				Index:         int64(i),
				Stem:          pair.Stem,
				ImagePath:     pair.ImagePath,
				MaskPath:      pair.MaskPath,
				Height:        int32(rec.Height),
				Width:         int32(rec.Width),
				ImageChannels: int32(rec.ImageChannels),
				MaskChannels:  int32(rec.MaskChannels),
				Offset:        offset,
				Length:        length,
			})
		}

		if (i+1)%1000 == 0 {
			slog.Info("Encoding progress", "records", i+1, "total", len(pairs))
		}
	}

	if opts.Manifest {
		path := ManifestPath(dest)
		if err := WriteManifest(path, manifest); err != nil {
			return summary, err
		}
		summary.ManifestPath = path
	}

	summary.Duration = time.Since(start)
	slog.Info("Encoding complete",
		"records", summary.Records,
		"bytes", summary.Bytes,
		"dest", dest,
		"duration", summary.Duration.Round(time.Millisecond))
	return summary, nil
}

func loadPair(pair Pair) (Record, error) {
	img, err := raster.LoadRGB(pair.ImagePath)
	if err != nil {
		return Record{}, &FileError{Path: pair.ImagePath, Err: err}
	}
	msk, err := raster.LoadMask(pair.MaskPath)
	if err != nil {
		return Record{}, &FileError{Path: pair.MaskPath, Err: err}
	}
	if img.Height != msk.Height || img.Width != msk.Width {
		return Record{}, &ShapeMismatchError{
			ImagePath:   pair.ImagePath,
			MaskPath:    pair.MaskPath,
			ImageHeight: img.Height,
			ImageWidth:  img.Width,
			MaskHeight:  msk.Height,
			MaskWidth:   msk.Width,
		}
	}
	return NewRecord(img, msk)
}
