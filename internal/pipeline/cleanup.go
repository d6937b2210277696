// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// CleanupPDFs removes downloaded PDFs whose modification time is older than
// maxAge. Non-PDF files are left alone. Returns the number of files removed
// and the bytes reclaimed.
func CleanupPDFs(dir string, maxAge time.Duration, w io.Writer) (removed int, reclaimed int64, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, 0, nil
		}
		return 0, 0, fmt.Errorf("reading download directory: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".pdf") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := os.Remove(path); err != nil {
			fmt.Fprintf(w, "  warning: removing %s: %v\n", path, err)
			continue
		}
		removed++
		reclaimed += info.Size()
	}
	return removed, reclaimed, nil
}
