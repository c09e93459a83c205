package eventlog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"pcl-radar/internal/types"
)

func TestPersistWritesEventAndManifest(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	w, err := NewWriter(dir, 4)
	if err != nil {
		t.Fatal(err)
	}

	rd := types.NewRDMap(16, 32)
	rd.Set(8, 16, 1)

	id, err := w.Persist(123.5, types.Detection{DopplerIdx: 8, RangeIdx: 16, Power: 1}, rd)
	if err != nil {
		t.Fatal(err)
	}

	eventPath := filepath.Join(dir, "events", id+".json")
	if _, err := os.Stat(eventPath); err != nil {
		t.Fatalf("event file not written: %v", err)
	}
	patchPath := filepath.Join(dir, "patches", id+".png")
	if _, err := os.Stat(patchPath); err != nil {
		t.Fatalf("patch file not written: %v", err)
	}

	manifestData, err := os.ReadFile(filepath.Join(dir, "manifest.json"))
	if err != nil {
		t.Fatal(err)
	}
	var manifest []manifestEntry
	if err := json.Unmarshal(manifestData, &manifest); err != nil {
		t.Fatal(err)
	}
	if len(manifest) != 1 || manifest[0].ID != id {
		t.Fatalf("manifest = %+v, want one entry with id %s", manifest, id)
	}
}

func TestPersistWithoutRDMapSkipsPatch(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	w, err := NewWriter(dir, 4)
	if err != nil {
		t.Fatal(err)
	}

	id, err := w.Persist(1.0, types.Detection{DopplerIdx: 1, RangeIdx: 1, Power: 1}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "patches", id+".png")); err == nil {
		t.Fatal("expected no patch file when rd is nil")
	}
}

func TestNewWriterReloadsExistingManifest(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	w1, err := NewWriter(dir, 4)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w1.Persist(1.0, types.Detection{DopplerIdx: 0, RangeIdx: 0, Power: 1}, nil); err != nil {
		t.Fatal(err)
	}

	w2, err := NewWriter(dir, 4)
	if err != nil {
		t.Fatal(err)
	}
	if len(w2.manifest) != 1 {
		t.Fatalf("got %d manifest entries reloaded, want 1", len(w2.manifest))
	}
}
