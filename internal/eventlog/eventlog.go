// Package eventlog persists detections to an append-only directory of JSON
// event files, optional PNG patch snapshots, and a manifest index (spec §6
// "Event log (collaborator)").
package eventlog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"pcl-radar/internal/types"
)

// Event is the JSON document written to events/<uuid>.json.
type Event struct {
	ID            string  `json:"id"`
	TimestampUnix float64 `json:"timestamp"`
	DopplerIdx    int     `json:"doppler_idx"`
	RangeIdx      int     `json:"range_idx"`
	Power         float32 `json:"power"`
	PatchPath     string  `json:"patch_path,omitempty"`
}

// manifestEntry is one row of manifest.json.
type manifestEntry struct {
	ID            string  `json:"id"`
	EventPath     string  `json:"event_path"`
	PatchPath     string  `json:"patch_path,omitempty"`
	TimestampUnix float64 `json:"timestamp"`
}

// Writer owns the event-log directory and the in-memory manifest index
// flushed after each write.
type Writer struct {
	dir         string
	patchRadius int

	mu       sync.Mutex
	manifest []manifestEntry
}

// NewWriter prepares the events/, patches/ subdirectories under dir.
// patchRadius is the half-width, in cells, of the RD neighborhood snapshot
// taken around each persisted detection.
func NewWriter(dir string, patchRadius int) (*Writer, error) {
	for _, sub := range []string{"events", "patches"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("eventlog: create %s dir: %w", sub, err)
		}
	}
	w := &Writer{dir: dir, patchRadius: patchRadius}
	w.loadManifest()
	return w, nil
}

func (w *Writer) loadManifest() {
	data, err := os.ReadFile(filepath.Join(w.dir, "manifest.json"))
	if err != nil {
		return
	}
	_ = json.Unmarshal(data, &w.manifest)
}

// Persist writes one detection's event JSON, an optional PNG patch of the
// RD neighborhood around it, and appends a manifest entry.
func (w *Writer) Persist(timestampUnix float64, det types.Detection, rd *types.RDMap) (string, error) {
	id := uuid.NewString()

	ev := Event{
		ID:            id,
		TimestampUnix: timestampUnix,
		DopplerIdx:    det.DopplerIdx,
		RangeIdx:      det.RangeIdx,
		Power:         det.Power,
	}

	eventRel := filepath.Join("events", id+".json")
	var patchRel string
	if rd != nil {
		patchRel = filepath.Join("patches", id+".png")
		if err := w.writePatch(patchRel, det, rd); err != nil {
			return "", fmt.Errorf("eventlog: write patch: %w", err)
		}
		ev.PatchPath = patchRel
	}

	data, err := json.MarshalIndent(ev, "", "  ")
	if err != nil {
		return "", fmt.Errorf("eventlog: marshal event: %w", err)
	}
	if err := os.WriteFile(filepath.Join(w.dir, eventRel), data, 0o644); err != nil {
		return "", fmt.Errorf("eventlog: write event: %w", err)
	}

	w.mu.Lock()
	w.manifest = append(w.manifest, manifestEntry{
		ID:            id,
		EventPath:     eventRel,
		PatchPath:     patchRel,
		TimestampUnix: timestampUnix,
	})
	manifest := w.manifest
	w.mu.Unlock()

	if err := w.flushManifest(manifest); err != nil {
		return "", err
	}
	return id, nil
}

func (w *Writer) flushManifest(manifest []manifestEntry) error {
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("eventlog: marshal manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(w.dir, "manifest.json"), data, 0o644); err != nil {
		return fmt.Errorf("eventlog: write manifest: %w", err)
	}
	return nil
}

// writePatch renders the RD neighborhood around det as a grayscale PNG,
// magnitude mapped linearly to [0,255] against the neighborhood's own max.
func (w *Writer) writePatch(relPath string, det types.Detection, rd *types.RDMap) error {
	r := w.patchRadius
	d0, d1 := clamp(det.DopplerIdx-r, 0, rd.NumDoppler), clamp(det.DopplerIdx+r+1, 0, rd.NumDoppler)
	r0, r1 := clamp(det.RangeIdx-r, 0, rd.NumRange), clamp(det.RangeIdx+r+1, 0, rd.NumRange)

	h, wdt := d1-d0, r1-r0
	if h <= 0 || wdt <= 0 {
		return fmt.Errorf("empty patch neighborhood")
	}

	var maxVal float32
	for d := d0; d < d1; d++ {
		for rr := r0; rr < r1; rr++ {
			if v := rd.At(d, rr); v > maxVal {
				maxVal = v
			}
		}
	}
	if maxVal <= 0 {
		maxVal = 1
	}

	img := image.NewGray(image.Rect(0, 0, wdt, h))
	for d := d0; d < d1; d++ {
		for rr := r0; rr < r1; rr++ {
			lvl := uint8(255 * rd.At(d, rr) / maxVal)
			img.SetGray(rr-r0, d-d0, color.Gray{Y: lvl})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	return os.WriteFile(filepath.Join(w.dir, relPath), buf.Bytes(), 0o644)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
