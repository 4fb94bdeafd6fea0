package records

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// Pair is an image file and the mask file that labels it
type Pair struct {
	Stem      string
	ImagePath string
	MaskPath  string
}

// Pairs matches images in imageDir to masks in maskDir by file stem.
// Results are sorted by stem. Files without a partner are logged and left out.
func Pairs(imageDir, maskDir, imageExt, maskExt string) ([]Pair, error) {
	images, err := listByStem(imageDir, imageExt)
	if err != nil {
		return nil, fmt.Errorf("failed to list images: %w", err)
	}
	masks, err := listByStem(maskDir, maskExt)
	if err != nil {
		return nil, fmt.Errorf("failed to list masks: %w", err)
	}

	var pairs []Pair
	unmatched := 0
	for _, stem := range sortedStems(images) {
		maskPath, ok := masks[stem]
		if !ok {
			unmatched++
			slog.Debug("Image has no mask", "image", images[stem])
			continue
		}
		pairs = append(pairs, Pair{Stem: stem, ImagePath: images[stem], MaskPath: maskPath})
	}
	if unmatched > 0 {
		slog.Warn("Images without masks were left out", "count", unmatched, "image_dir", imageDir)
	}

	for _, stem := range sortedStems(masks) {
		if _, ok := images[stem]; !ok {
			slog.Warn("Mask has no image", "mask", masks[stem])
		}
	}

	slog.Debug("Paired images and masks", "pairs", len(pairs), "images", len(images), "masks", len(masks))
	return pairs, nil
}

func listByStem(dir, ext string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	files := make(map[string]string, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		name := e.Name()
		if !strings.EqualFold(filepath.Ext(name), ext) {
			continue
		}
		files[strings.TrimSuffix(name, filepath.Ext(name))] = filepath.Join(dir, name)
	}
	return files, nil
}

func sortedStems(files map[string]string) []string {
	stems := make([]string, 0, len(files))
	for stem := range files {
		stems = append(stems, stem)
	}
	slices.Sort(stems)
	return stems
}
