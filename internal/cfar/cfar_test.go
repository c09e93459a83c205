package cfar

import (
	"testing"

	"pcl-radar/internal/types"
)

func TestRunMaskShapeMatchesInput(t *testing.T) {
	t.Parallel()
	m := types.NewRDMap(32, 64)
	det := NewDetector([2]int{2, 2}, [2]int{8, 8}, 1e-3)
	res := det.Run(m)
	if len(res.Mask) != len(m.Data) || res.NumDopp != m.NumDoppler || res.NumRange != m.NumRange {
		t.Fatalf("mask shape mismatch")
	}
}

func TestRunBorderIsAlwaysClear(t *testing.T) {
	t.Parallel()
	m := types.NewRDMap(32, 64)
	for i := range m.Data {
		m.Data[i] = 1 // uniform power everywhere, border cells included
	}
	det := NewDetector([2]int{2, 2}, [2]int{8, 8}, 1e-3)
	res := det.Run(m)

	margin := 10 // Gd+Td = Gr+Tr = 10
	for i := 0; i < margin; i++ {
		for j := 0; j < m.NumRange; j++ {
			if res.Mask[i*m.NumRange+j] {
				t.Fatalf("border cell (%d,%d) should be clear", i, j)
			}
		}
	}
}

func TestRunDetectsIsolatedPeak(t *testing.T) {
	t.Parallel()
	m := types.NewRDMap(32, 64)
	// Background is near-zero noise; one cell has a strong peak.
	m.Set(16, 32, 100)

	det := NewDetector([2]int{2, 2}, [2]int{8, 8}, 1e-3)
	res := det.Run(m)
	if !res.Mask[16*m.NumRange+32] {
		t.Fatal("expected a detection at the strong peak")
	}
	dets := Detections(res.Mask, m)
	if len(dets) == 0 {
		t.Fatal("expected at least one detection")
	}
}

func TestRunOnPureNoiseHasFewDetections(t *testing.T) {
	t.Parallel()
	// A small deterministic pseudo-random noise field: no cell is an
	// outlier, so CA-CFAR at pfa=1e-3 should flag very few cells.
	m := types.NewRDMap(32, 64)
	seed := uint32(12345)
	for i := range m.Data {
		seed = seed*1664525 + 1013904223
		m.Data[i] = float32(seed%1000) / 1000
	}
	det := NewDetector([2]int{2, 2}, [2]int{8, 8}, 1e-3)
	res := det.Run(m)
	count := 0
	for _, v := range res.Mask {
		if v {
			count++
		}
	}
	if count > len(m.Data)/10 {
		t.Fatalf("detected %d/%d cells on near-uniform noise, want a small minority", count, len(m.Data))
	}
}
