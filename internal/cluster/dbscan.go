// Package cluster implements DBSCAN over detection coordinates and reduces
// each cluster to a power-weighted centroid (spec §4.5).
package cluster

import (
	"math"

	"pcl-radar/internal/types"
)

const noiseLabel = -1

// Run clusters dets by Euclidean distance in the (doppler_idx, range_idx)
// plane with neighborhood radius eps and the min_samples density
// threshold, then converts each non-noise cluster to a types.Cluster whose
// centroid is the power-weighted mean of its detections.
func Run(dets []types.Detection, eps float64, minSamples int) []types.Cluster {
	labels := dbscan(dets, eps, minSamples)

	byLabel := make(map[int][]types.Detection)
	for i, lbl := range labels {
		if lbl == noiseLabel {
			continue
		}
		byLabel[lbl] = append(byLabel[lbl], dets[i])
	}

	out := make([]types.Cluster, 0, len(byLabel))
	for lbl, members := range byLabel {
		out = append(out, centroid(lbl, members))
	}
	return out
}

// dbscan returns a label per detection: a non-negative cluster id, or -1
// for noise.
func dbscan(dets []types.Detection, eps float64, minSamples int) []int {
	n := len(dets)
	labels := make([]int, n)
	for i := range labels {
		labels[i] = noiseLabel - 1 // "unvisited" sentinel, distinct from noise
	}

	nextLabel := 0
	for i := 0; i < n; i++ {
		if labels[i] != noiseLabel-1 {
			continue
		}

		neighbors := regionQuery(dets, i, eps)
		if len(neighbors) < minSamples {
			labels[i] = noiseLabel
			continue
		}

		labels[i] = nextLabel
		seeds := append([]int(nil), neighbors...)
		for k := 0; k < len(seeds); k++ {
			j := seeds[k]
			if labels[j] == noiseLabel {
				labels[j] = nextLabel
			}
			if labels[j] != noiseLabel-1 {
				continue
			}
			labels[j] = nextLabel
			jNeighbors := regionQuery(dets, j, eps)
			if len(jNeighbors) >= minSamples {
				seeds = append(seeds, jNeighbors...)
			}
		}
		nextLabel++
	}

	return labels
}

func regionQuery(dets []types.Detection, i int, eps float64) []int {
	var out []int
	for j := range dets {
		if dist(dets[i], dets[j]) <= eps {
			out = append(out, j)
		}
	}
	return out
}

func dist(a, b types.Detection) float64 {
	dd := float64(a.DopplerIdx - b.DopplerIdx)
	dr := float64(a.RangeIdx - b.RangeIdx)
	return math.Hypot(dd, dr)
}

func centroid(label int, members []types.Detection) types.Cluster {
	var sumD, sumR, sumW float64
	for _, d := range members {
		w := float64(d.Power)
		sumD += float64(d.DopplerIdx) * w
		sumR += float64(d.RangeIdx) * w
		sumW += w
	}
	var cd, cr float64
	if sumW > 0 {
		cd, cr = sumD/sumW, sumR/sumW
	}
	return types.Cluster{
		Label:           label,
		Detections:      members,
		CentroidDoppler: cd,
		CentroidRange:   cr,
		TotalPower:      sumW,
	}
}
