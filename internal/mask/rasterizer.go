package mask

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/lehigh-university-libraries/segprep/internal/coco"
	"github.com/lehigh-university-libraries/segprep/internal/raster"
	"golang.org/x/sync/errgroup"
)

// ErrMissingImage marks an annotation whose image id has no metadata entry
var ErrMissingImage = errors.New("image metadata not found")

// Options configures a Rasterizer
type Options struct {
	// Workers is the number of images rasterized concurrently
	Workers int
	// IncludeEmpty writes an all-background mask for images without annotations
	IncludeEmpty bool
	// Ext is the mask file extension, ".png" when empty
	Ext string
}

// Rasterizer turns instance annotations into per-image label masks
type Rasterizer struct {
	opts Options
}

// NewRasterizer creates a rasterizer
func NewRasterizer(opts Options) *Rasterizer {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Ext == "" {
		opts.Ext = ".png"
	}
	return &Rasterizer{opts: opts}
}

// Group collects annotations by image id, keeping encounter order within
// each image.
func Group(anns []coco.Annotation) map[int64][]coco.Annotation {
	groups := make(map[int64][]coco.Annotation)
	for _, ann := range anns {
		groups[ann.ImageID] = append(groups[ann.ImageID], ann)
	}
	return groups
}

// MaskFileName replaces the extension of an image file name
func MaskFileName(imageFileName, ext string) string {
	base := filepath.Base(imageFileName)
	return strings.TrimSuffix(base, filepath.Ext(base)) + ext
}

// Rasterize paints anns onto a fresh mask of the image's size, in order.
// Annotations with malformed geometry or an unusable category are skipped
// and returned as errors; the rest are still painted.
func Rasterize(img coco.Image, anns []coco.Annotation) (*LabelMask, int, []error) {
	m := NewLabelMask(img.Height, img.Width)
	painted := 0
	var skipped []error

	for _, ann := range anns {
		if ann.CategoryID < 1 || ann.CategoryID > 255 {
			skipped = append(skipped, fmt.Errorf("annotation %d: %w: category id %d outside 1..255",
				ann.ID, coco.ErrMalformedGeometry, ann.CategoryID))
			continue
		}
		cov, err := AnnotationCoverage(ann, img.Height, img.Width)
		if err != nil {
			skipped = append(skipped, fmt.Errorf("annotation %d: %w", ann.ID, err))
			continue
		}
		m.Paint(cov, uint8(ann.CategoryID))
		painted++
	}
	return m, painted, skipped
}

// Run rasterizes every image of src into outDir. Caption and unknown sources
// are skipped with a diagnostic and produce no files.
func (r *Rasterizer) Run(ctx context.Context, src coco.Source, outDir string) (*Report, error) {
	report := &Report{AnnotationFile: src.Path(), Kind: src.Kind().String(), MaskDir: outDir}

	switch s := src.(type) {
	case *coco.InstanceAnnotations:
		return report, r.runInstances(ctx, s, outDir, report)
	case *coco.CaptionAnnotations:
		report.Skipped = true
		report.SkipReason = "no instances in annotations, sentences conversion not supported"
		slog.Warn("Skipping annotation file", "path", src.Path(), "reason", report.SkipReason, "captions", len(s.Captions))
		return report, nil
	case *coco.UnknownAnnotations:
		report.Skipped = true
		report.SkipReason = "no instances in annotations: " + s.Reason
		slog.Warn("Skipping annotation file", "path", src.Path(), "reason", report.SkipReason)
		return report, nil
	default:
		return nil, fmt.Errorf("unsupported annotation source %T", src)
	}
}

func (r *Rasterizer) runInstances(ctx context.Context, src *coco.InstanceAnnotations, outDir string, report *Report) error {
	images := src.ImageIndex()
	groups := Group(src.Annotations)

	// drop annotations that point at unknown images before scheduling work
	for id, anns := range groups {
		img, ok := images[id]
		if ok && img.Height > 0 && img.Width > 0 {
			continue
		}
		err := ErrMissingImage
		if ok {
			err = fmt.Errorf("%w: image %d has size %dx%d", ErrMissingImage, id, img.Height, img.Width)
		}
		for _, ann := range anns {
			slog.Warn("Dropping annotation", "annotation", ann.ID, "image_id", id, "error", err)
		}
		report.AnnotationsDropped += len(anns)
		delete(groups, id)
	}

	ids := slices.Sorted(maps.Keys(groups))
	if r.opts.IncludeEmpty {
		for id, img := range images {
			if _, ok := groups[id]; !ok && img.Height > 0 && img.Width > 0 {
				ids = append(ids, id)
			}
		}
		slices.Sort(ids)
	}
	report.Images = len(ids)

	slog.Info("Rasterizing masks", "annotations", src.Path(), "images", len(ids), "output", outDir, "workers", r.opts.Workers)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Workers)

	for i, id := range ids {
		if gctx.Err() != nil {
			break
		}
		img := images[id]
		anns := groups[id]
		g.Go(func() error {
			m, painted, skipped := Rasterize(img, anns)
			for _, err := range skipped {
				slog.Warn("Skipping annotation", "image_id", img.ID, "file", img.FileName, "error", err)
			}

			path := filepath.Join(outDir, MaskFileName(img.FileName, r.opts.Ext))
			if err := raster.Save(m.Image(), path); err != nil {
				return err
			}

			mu.Lock()
			report.MasksWritten++
			report.AnnotationsPainted += painted
			report.AnnotationsSkipped += len(skipped)
			mu.Unlock()

			if (i+1)%1000 == 0 {
				slog.Debug("Rasterizing masks", "progress", fmt.Sprintf("%d/%d", i+1, len(ids)))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	slog.Info("Masks written",
		"output", outDir,
		"masks", report.MasksWritten,
		"painted", report.AnnotationsPainted,
		"skipped", report.AnnotationsSkipped,
		"dropped", report.AnnotationsDropped)
	return nil
}
