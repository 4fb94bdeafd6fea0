package archive

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
)

// MarkerPath is the file whose presence means zipPath was already
// extracted into dest.
func MarkerPath(zipPath, dest string) string {
	return filepath.Join(dest, "."+filepath.Base(zipPath)+".extracted")
}

// Extract unpacks zipPath into dest. It is a no-op when the marker from a
// previous run exists. Entries that would land outside dest are refused.
func Extract(ctx context.Context, zipPath, dest string) error {
	marker := MarkerPath(zipPath, dest)
	if _, err := os.Stat(marker); err == nil {
		slog.Info("Archive already extracted", "archive", zipPath, "dest", dest)
		return nil
	}

	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer r.Close()

	if err := os.MkdirAll(dest, 0755); err != nil {
		return fmt.Errorf("failed to create extraction directory: %w", err)
	}
	root, err := filepath.Abs(dest)
	if err != nil {
		return fmt.Errorf("failed to resolve extraction directory: %w", err)
	}

	slog.Info("Extracting archive", "archive", zipPath, "entries", len(r.File), "dest", dest)

	for i, f := range r.File {
		if err := ctx.Err(); err != nil {
			return err
		}

		target, err := entryPath(root, f.Name)
		if err != nil {
			return err
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return fmt.Errorf("failed to create directory %s: %w", target, err)
			}
			continue
		}
		if err := extractFile(f, target); err != nil {
			return err
		}

		if (i+1)%10000 == 0 {
			slog.Debug("Extraction progress", "archive", filepath.Base(zipPath), "entries", i+1, "total", len(r.File))
		}
	}

	if err := os.WriteFile(marker, nil, 0644); err != nil {
		return fmt.Errorf("failed to write extraction marker: %w", err)
	}
	slog.Info("Archive extracted", "archive", zipPath)
	return nil
}

// entryPath joins name onto root and rejects paths that escape it
func entryPath(root, name string) (string, error) {
	target := filepath.Join(root, name)
	if target != root && !strings.HasPrefix(target, root+string(os.PathSeparator)) {
		return "", fmt.Errorf("archive entry %q escapes extraction directory", name)
	}
	return target, nil
}

func extractFile(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", target, err)
	}

	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("failed to open archive entry %s: %w", f.Name, err)
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", target, err)
	}
	_, err = io.Copy(out, rc)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("failed to extract %s: %w", f.Name, err)
	}
	return nil
}
