// Package archive downloads and unpacks the dataset archives.
package archive

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/lehigh-university-libraries/segprep/internal/config"
)

// ErrChecksumMismatch is returned when a downloaded archive fails its md5 check
var ErrChecksumMismatch = errors.New("checksum mismatch")

const progressStep = 10 * 1024 * 1024

// DownloadConfig configures archive downloading
type DownloadConfig struct {
	CacheDir      string
	ForceDownload bool
	Client        *http.Client
}

// Downloader fetches dataset archives into a cache directory
type Downloader struct {
	config DownloadConfig
}

// NewDownloader creates a new archive downloader
func NewDownloader(cfg DownloadConfig) *Downloader {
	// Expand ~ to home directory
	if strings.HasPrefix(cfg.CacheDir, "~") {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			cfg.CacheDir = filepath.Join(homeDir, cfg.CacheDir[1:])
		}
	}
	if cfg.Client == nil {
		cfg.Client = http.DefaultClient
	}
	return &Downloader{config: cfg}
}

// CachePath returns where an archive is stored once downloaded
func (d *Downloader) CachePath(a config.Archive) string {
	return filepath.Join(d.config.CacheDir, a.Filename())
}

// Fetch downloads an archive unless a cached copy with the right md5 exists.
// Returns the path to the archive on disk.
func (d *Downloader) Fetch(ctx context.Context, a config.Archive) (string, error) {
	if err := os.MkdirAll(d.config.CacheDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create cache directory: %w", err)
	}

	cachedPath := d.CachePath(a)

	if !d.config.ForceDownload {
		if _, err := os.Stat(cachedPath); err == nil {
			if err := Verify(cachedPath, a.MD5); err == nil {
				slog.Info("Using cached archive", "path", cachedPath)
				return cachedPath, nil
			}
			slog.Warn("Cached archive failed verification, downloading again", "path", cachedPath)
		}
	}

	slog.Info("Downloading archive", "url", a.URL)

	if err := d.downloadFile(ctx, a, cachedPath); err != nil {
		return "", fmt.Errorf("failed to download %s: %w", a.Filename(), err)
	}

	slog.Info("Archive downloaded successfully", "path", cachedPath)
	return cachedPath, nil
}

// downloadFile streams url into destPath through a temp file, hashing as it goes
func (d *Downloader) downloadFile(ctx context.Context, a config.Archive, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.URL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := d.config.Client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed with status: %d", resp.StatusCode)
	}

	tempPath := destPath + ".tmp"
	out, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}

	sum := md5.New()
	pw := &progressWriter{total: resp.ContentLength, name: a.Filename()}
	_, err = io.Copy(io.MultiWriter(out, sum, pw), resp.Body)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("download failed: %w", err)
	}

	if err := checkSum(sum, a.MD5); err != nil {
		os.Remove(tempPath)
		return err
	}

	// Move temp file to final location
	if err := os.Rename(tempPath, destPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to move file: %w", err)
	}
	return nil
}

// Verify checks the md5 of the file at path. An empty want always passes.
func Verify(path, want string) error {
	if want == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer f.Close()

	sum := md5.New()
	if _, err := io.Copy(sum, f); err != nil {
		return fmt.Errorf("failed to hash archive: %w", err)
	}
	return checkSum(sum, want)
}

func checkSum(sum hash.Hash, want string) error {
	if want == "" {
		return nil
	}
	got := hex.EncodeToString(sum.Sum(nil))
	if !strings.EqualFold(got, want) {
		return fmt.Errorf("%w: got %s, want %s", ErrChecksumMismatch, got, want)
	}
	return nil
}

// progressWriter logs download progress every 10MB
type progressWriter struct {
	name       string
	total      int64
	downloaded int64
	next       int64
}

func (p *progressWriter) Write(b []byte) (int, error) {
	p.downloaded += int64(len(b))
	if p.downloaded >= p.next+progressStep {
		p.next = p.downloaded - p.downloaded%progressStep
		attrs := []any{"file", p.name, "downloaded_mb", p.downloaded / (1024 * 1024)}
		if p.total > 0 {
			progress := float64(p.downloaded) / float64(p.total) * 100
			attrs = append(attrs, "total_mb", p.total/(1024*1024), "progress", fmt.Sprintf("%.1f%%", progress))
		}
		slog.Debug("Download progress", attrs...)
	}
	return len(b), nil
}
