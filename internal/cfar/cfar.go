// Package cfar implements the 2-D cell-averaging constant-false-alarm-rate
// detector (spec §4.4).
package cfar

import (
	"math"

	"pcl-radar/internal/types"
)

// Detector holds the guard/training cell geometry and false-alarm
// probability for repeated application across frames.
type Detector struct {
	GuardD, GuardR int
	TrainD, TrainR int
	Pfa            float64
	alpha          float64 // K * (Pfa^(-1/K) - 1), precomputed once
}

// NewDetector builds a Detector from guard cells (Gd, Gr), training cells
// (Td, Tr) and the target false-alarm probability.
func NewDetector(guard, train [2]int, pfa float64) *Detector {
	gd, gr := guard[0], guard[1]
	td, tr := train[0], train[1]
	k := float64((2*(gd+td)+1)*(2*(gr+tr)+1) - (2*gd+1)*(2*gr+1))
	alpha := k * (math.Pow(pfa, -1/k) - 1)
	return &Detector{
		GuardD: gd, GuardR: gr,
		TrainD: td, TrainR: tr,
		Pfa:   pfa,
		alpha: alpha,
	}
}

// Result holds the binary detection mask and the per-cell threshold map
// produced by one Run, both shaped like the input RD map.
type Result struct {
	Mask      []bool
	Threshold []float32
	NumDopp   int
	NumRange  int
}

// idx returns the Result's (d,r) index into the flat row-major slices.
func (res *Result) idx(d, r int) int { return d*res.NumRange + r }

// Run slides the CUT window over every interior cell of m and emits a
// detection where m exceeds the locally estimated threshold (spec §4.4
// steps 1-5). Border cells within (Gd+Td, Gr+Tr) of any edge are always 0.
func (d *Detector) Run(m *types.RDMap) *Result {
	res := &Result{
		Mask:      make([]bool, len(m.Data)),
		Threshold: make([]float32, len(m.Data)),
		NumDopp:   m.NumDoppler,
		NumRange:  m.NumRange,
	}

	marginD := d.GuardD + d.TrainD
	marginR := d.GuardR + d.TrainR

	for i := marginD; i < m.NumDoppler-marginD; i++ {
		for j := marginR; j < m.NumRange-marginR; j++ {
			var sum float64
			for di := -marginD; di <= marginD; di++ {
				for dj := -marginR; dj <= marginR; dj++ {
					if intAbs(di) <= d.GuardD && intAbs(dj) <= d.GuardR {
						continue // guard region excluded from the noise estimate
					}
					sum += float64(m.At(i+di, j+dj))
				}
			}
			k := float64((2*marginD+1)*(2*marginR+1) - (2*d.GuardD+1)*(2*d.GuardR+1))
			mu := sum / k
			threshold := float32(d.alpha * mu)
			idx := res.idx(i, j)
			res.Threshold[idx] = threshold
			res.Mask[idx] = m.At(i, j) > threshold
		}
	}

	return res
}

// Detections enumerates the set pixels of a row-major boolean mask against
// the source map, producing (doppler_idx, range_idx, power) triples (spec
// §4.4 "Peak extraction"). mask may be the raw CFAR mask or a cleaned
// morphology mask; either shares m's shape.
func Detections(mask []bool, m *types.RDMap) []types.Detection {
	var out []types.Detection
	for i := 0; i < m.NumDoppler; i++ {
		for j := 0; j < m.NumRange; j++ {
			if mask[i*m.NumRange+j] {
				out = append(out, types.Detection{DopplerIdx: i, RangeIdx: j, Power: m.At(i, j)})
			}
		}
	}
	return out
}

func intAbs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
