package thumbnail

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMissingToolIsNotFatal(t *testing.T) {
	g := NewGenerator("definitely-not-a-real-binary-name", t.TempDir(), discardLogger())

	if g.Available() {
		t.Fatal("tool should be unavailable")
	}

	// Capture fails with an error, never panics.
	if _, err := g.Capture(context.Background(), "s1", "http://origin.test/seg.ts"); err == nil {
		t.Error("expected error when tool is missing")
	}
}

func TestSweepRemovesOldFiles(t *testing.T) {
	dir := t.TempDir()
	g := NewGenerator("definitely-not-a-real-binary-name", dir, discardLogger())

	oldFile := filepath.Join(dir, "s1_1.jpg")
	newFile := filepath.Join(dir, "s1_2.jpg")
	for _, f := range []string{oldFile, newFile} {
		if err := os.WriteFile(f, []byte("jpg"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	stale := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(oldFile, stale, stale); err != nil {
		t.Fatal(err)
	}

	g.sweep(24 * time.Hour)

	if _, err := os.Stat(oldFile); !os.IsNotExist(err) {
		t.Error("old thumbnail not removed")
	}
	if _, err := os.Stat(newFile); err != nil {
		t.Error("fresh thumbnail removed")
	}
}

func TestSweepMissingDir(t *testing.T) {
	g := NewGenerator("definitely-not-a-real-binary-name", filepath.Join(t.TempDir(), "nope"), discardLogger())
	g.sweep(time.Hour) // must not panic
}
