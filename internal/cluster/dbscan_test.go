package cluster

import (
	"testing"

	"pcl-radar/internal/types"
)

func TestRunWithInfiniteEpsAndMinSamplesOneMergesAll(t *testing.T) {
	t.Parallel()
	dets := []types.Detection{
		{DopplerIdx: 0, RangeIdx: 0, Power: 1},
		{DopplerIdx: 50, RangeIdx: 50, Power: 1},
		{DopplerIdx: 100, RangeIdx: 0, Power: 1},
	}
	out := Run(dets, 1e9, 1)
	if len(out) != 1 {
		t.Fatalf("got %d clusters, want 1", len(out))
	}
	if len(out[0].Detections) != 3 {
		t.Fatalf("got %d detections in the cluster, want 3", len(out[0].Detections))
	}
}

func TestRunSeparatesDistantGroups(t *testing.T) {
	t.Parallel()
	dets := []types.Detection{
		{DopplerIdx: 0, RangeIdx: 0, Power: 1},
		{DopplerIdx: 1, RangeIdx: 0, Power: 1},
		{DopplerIdx: 0, RangeIdx: 1, Power: 1},
		{DopplerIdx: 100, RangeIdx: 100, Power: 1},
		{DopplerIdx: 101, RangeIdx: 100, Power: 1},
		{DopplerIdx: 100, RangeIdx: 101, Power: 1},
	}
	out := Run(dets, 3.0, 3)
	if len(out) != 2 {
		t.Fatalf("got %d clusters, want 2", len(out))
	}
}

func TestCentroidIsPowerWeighted(t *testing.T) {
	t.Parallel()
	dets := []types.Detection{
		{DopplerIdx: 0, RangeIdx: 0, Power: 1},
		{DopplerIdx: 10, RangeIdx: 10, Power: 9},
	}
	out := Run(dets, 20, 1)
	if len(out) != 1 {
		t.Fatalf("got %d clusters, want 1", len(out))
	}
	// Weighted mean heavily favors the high-power detection at (10,10).
	if out[0].CentroidDoppler < 8 || out[0].CentroidRange < 8 {
		t.Fatalf("centroid = (%f,%f), expected close to the high-power point",
			out[0].CentroidDoppler, out[0].CentroidRange)
	}
}

func TestSparsePointsAreNoise(t *testing.T) {
	t.Parallel()
	dets := []types.Detection{
		{DopplerIdx: 0, RangeIdx: 0, Power: 1},
		{DopplerIdx: 200, RangeIdx: 200, Power: 1},
		{DopplerIdx: 400, RangeIdx: 400, Power: 1},
	}
	out := Run(dets, 3.0, 3)
	if len(out) != 0 {
		t.Fatalf("got %d clusters, want 0 (all isolated points are noise)", len(out))
	}
}
