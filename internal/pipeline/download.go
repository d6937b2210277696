// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdiddy/refextract/internal/httputil"
	"github.com/pdiddy/refextract/pkg/types"
)

// DefaultUserAgent identifies the client to arXiv. Some mirrors reject
// requests without a browser-like agent string.
const DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) refextract/1.0"

// Downloader fetches paper PDFs into a local directory, reusing files that
// are already present.
type Downloader struct {
	Client *http.Client
	cfg    types.DownloadConfig
}

// NewDownloader builds a Downloader. Zero-valued cfg fields fall back to
// package defaults.
func NewDownloader(cfg types.DownloadConfig) *Downloader {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = httputil.DefaultRetryBaseDelay
	}
	return &Downloader{
		Client: &http.Client{Timeout: cfg.Timeout},
		cfg:    cfg,
	}
}

// sanitizeID maps a paper identifier to a filesystem-safe name. Characters
// outside [A-Za-z0-9._-] become underscores; when anything was replaced, a
// short content hash of the original identifier is appended so distinct
// identifiers never collide on the same filename.
func sanitizeID(id string) string {
	var b strings.Builder
	b.Grow(len(id))
	changed := false
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
			changed = true
		}
	}
	if !changed {
		return b.String()
	}
	sum := sha256.Sum256([]byte(id))
	return fmt.Sprintf("%s-%x", b.String(), sum[:4])
}

// PDFPath returns the local path the paper's PDF is (or would be) stored at.
func (d *Downloader) PDFPath(paperID string) string {
	return filepath.Join(d.cfg.Dir, sanitizeID(paperID)+".pdf")
}

// Fetch ensures the paper's PDF is on disk and returns its path. A
// non-empty existing file is reused without a network call; an empty file
// left behind by an interrupted run is re-downloaded.
func (d *Downloader) Fetch(ctx context.Context, paper types.Paper) (path string, reused bool, err error) {
	path = d.PDFPath(paper.ID)

	if info, statErr := os.Stat(path); statErr == nil && info.Size() > 0 {
		return path, true, nil
	}

	if paper.PDFURL == "" {
		return "", false, fmt.Errorf("paper %s has no PDF URL", paper.ID)
	}
	if err := os.MkdirAll(d.cfg.Dir, 0o755); err != nil {
		return "", false, fmt.Errorf("creating download directory: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, paper.PDFURL, nil)
	if err != nil {
		return "", false, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", d.cfg.UserAgent)
	req.Header.Set("Accept", "application/pdf")

	resp, err := httputil.DoWithRetry(ctx, d.Client, req, d.cfg.MaxRetries, d.cfg.RetryBaseDelay)
	if err != nil {
		return "", false, fmt.Errorf("downloading %s: %w", paper.PDFURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", false, fmt.Errorf("HTTP %d from %s", resp.StatusCode, paper.PDFURL)
	}

	// Download to a temp file in the target directory, rename on success so
	// a crash never leaves a partial PDF at the final path.
	tmpFile, err := os.CreateTemp(d.cfg.Dir, ".download-*.tmp")
	if err != nil {
		return "", false, fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	written, copyErr := io.Copy(tmpFile, resp.Body)
	closeErr := tmpFile.Close()
	if copyErr != nil {
		os.Remove(tmpPath)
		return "", false, fmt.Errorf("writing download: %w", copyErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return "", false, fmt.Errorf("closing temp file: %w", closeErr)
	}
	if written == 0 {
		os.Remove(tmpPath)
		return "", false, fmt.Errorf("empty response body from %s", paper.PDFURL)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return "", false, fmt.Errorf("renaming temp file: %w", err)
	}
	return path, false, nil
}
