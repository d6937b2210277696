// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestCleanupPDFsRemovesOldFiles(t *testing.T) {
	dir := t.TempDir()

	old := filepath.Join(dir, "old.pdf")
	if err := os.WriteFile(old, []byte("%PDF old"), 0o644); err != nil {
		t.Fatal(err)
	}
	stale := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(old, stale, stale); err != nil {
		t.Fatal(err)
	}

	fresh := filepath.Join(dir, "fresh.pdf")
	if err := os.WriteFile(fresh, []byte("%PDF fresh"), 0o644); err != nil {
		t.Fatal(err)
	}

	notPDF := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(notPDF, []byte("keep"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(notPDF, stale, stale); err != nil {
		t.Fatal(err)
	}

	removed, reclaimed, err := CleanupPDFs(dir, 24*time.Hour, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("CleanupPDFs: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if reclaimed != int64(len("%PDF old")) {
		t.Errorf("reclaimed = %d", reclaimed)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Error("old PDF survived")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Error("fresh PDF removed")
	}
	if _, err := os.Stat(notPDF); err != nil {
		t.Error("non-PDF file removed")
	}
}

func TestCleanupPDFsMissingDir(t *testing.T) {
	removed, reclaimed, err := CleanupPDFs(filepath.Join(t.TempDir(), "absent"), time.Hour, &bytes.Buffer{})
	if err != nil || removed != 0 || reclaimed != 0 {
		t.Errorf("got removed=%d reclaimed=%d err=%v", removed, reclaimed, err)
	}
}
