package persist

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/randomizedcoder/go-hls-streamwatch/internal/model"
)

func TestLoadMissingFile(t *testing.T) {
	fs := NewFileStore(filepath.Join(t.TempDir(), "streams.json"))
	streams, err := fs.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if streams != nil {
		t.Errorf("streams = %v, want nil for missing file", streams)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "streams.json")
	fs := NewFileStore(path)

	in := []model.Stream{
		{ID: "a1b2c3d4", Name: "main feed", ManifestURL: "https://cdn.example.com/live/master.m3u8", CreatedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
		{ID: "e5f6a7b8", Name: "backup", ManifestURL: "https://backup.example.com/live/master.m3u8", CreatedAt: time.Date(2024, 5, 2, 12, 0, 0, 0, time.UTC)},
	}
	if err := fs.Save(in); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	out, err := fs.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("loaded %d streams", len(out))
	}
	for i := range in {
		if out[i].ID != in[i].ID || out[i].ManifestURL != in[i].ManifestURL || !out[i].CreatedAt.Equal(in[i].CreatedAt) {
			t.Errorf("stream[%d] = %+v, want %+v", i, out[i], in[i])
		}
	}

	// No stray temp file left behind.
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file left behind")
	}
}

func TestSaveOverwrites(t *testing.T) {
	fs := NewFileStore(filepath.Join(t.TempDir(), "streams.json"))

	if err := fs.Save([]model.Stream{{ID: "one"}, {ID: "two"}}); err != nil {
		t.Fatal(err)
	}
	if err := fs.Save([]model.Stream{{ID: "three"}}); err != nil {
		t.Fatal(err)
	}

	out, err := fs.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 || out[0].ID != "three" {
		t.Errorf("loaded = %+v", out)
	}
}

func TestLoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "streams.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	fs := NewFileStore(path)
	if _, err := fs.Load(); err == nil {
		t.Error("expected error for corrupt document")
	}
}
