// Package preprocess implements the per-channel clutter-suppression chain
// of spec §4.2: normalization, DC removal, phase calibration against a
// reference channel, FIR high-pass filtering and MTI lagged-difference
// filtering. Each stage preserves the input shape.
package preprocess

import (
	"math"
	"math/cmplx"

	"pcl-radar/internal/types"
)

const normalizeEpsilon = 1e-9

// Chain bundles the configured preprocessing stages and their precomputed
// coefficients (the FIR taps) so they are built once per configuration,
// not per frame.
type Chain struct {
	ReferenceChannel int
	FIRTaps          []float32 // windowed-sinc high-pass taps
	MTIDelta         int
}

// NewChain builds a Chain. cutoff is f_c/(f_s/2), i.e. already normalized to
// Nyquist, per spec §4.2 step 4.
func NewChain(referenceChannel, firOrder int, cutoff float64, mtiDelta int) *Chain {
	return &Chain{
		ReferenceChannel: referenceChannel,
		FIRTaps:          highPassTaps(firOrder, cutoff),
		MTIDelta:         mtiDelta,
	}
}

// Process runs all five stages, in order, over every channel of block,
// in place.
func (c *Chain) Process(block *types.IQBlock) {
	for ch := range block.Channels {
		normalize(block.Channels[ch])
		removeDC(block.Channels[ch])
	}

	if c.ReferenceChannel >= 0 && c.ReferenceChannel < len(block.Channels) {
		ref := block.Channels[c.ReferenceChannel]
		for ch := range block.Channels {
			if ch == c.ReferenceChannel {
				continue
			}
			phaseCalibrate(ref, block.Channels[ch])
		}
	}

	for ch := range block.Channels {
		block.Channels[ch] = firHighPass(block.Channels[ch], c.FIRTaps)
		block.Channels[ch] = mti(block.Channels[ch], c.MTIDelta)
	}
}

// normalize divides x by sqrt(mean|x|^2 + eps), in place (spec §4.2 step 1).
func normalize(x []types.Sample) {
	if len(x) == 0 {
		return
	}
	var sumSq float64
	for _, v := range x {
		sumSq += float64(real(v))*float64(real(v)) + float64(imag(v))*float64(imag(v))
	}
	mean := sumSq / float64(len(x))
	scale := float32(1.0 / math.Sqrt(mean+normalizeEpsilon))
	for i := range x {
		x[i] *= complex(scale, 0)
	}
}

// removeDC subtracts the per-channel mean, in place (spec §4.2 step 2).
func removeDC(x []types.Sample) {
	if len(x) == 0 {
		return
	}
	var sum complex128
	for _, v := range x {
		sum += complex128(v)
	}
	mean := types.Sample(sum / complex(float64(len(x)), 0))
	for i := range x {
		x[i] -= mean
	}
}

// phaseCalibrate rotates xc by e^{-i*phase(<ref, xc>)}, in place (spec
// §4.2 step 3).
func phaseCalibrate(ref, xc []types.Sample) {
	n := min(len(ref), len(xc))
	var inner complex128
	for i := 0; i < n; i++ {
		inner += cmplx.Conj(complex128(ref[i])) * complex128(xc[i])
	}
	if inner == 0 {
		return
	}
	phi := cmplx.Phase(inner)
	rot := complex64(cmplx.Exp(complex(0, -phi)))
	for i := range xc {
		xc[i] *= rot
	}
}

// highPassTaps builds windowed-sinc FIR high-pass taps of the given odd
// order at normalized cutoff (pass-zero = false), using a Hamming window.
func highPassTaps(order int, cutoff float64) []float32 {
	if order%2 == 0 {
		order++ // an odd-length linear-phase kernel is required for the spectral-inversion trick
	}
	taps := make([]float64, order)
	m := order - 1
	center := float64(m) / 2

	for n := 0; n < order; n++ {
		x := float64(n) - center
		var sinc float64
		if x == 0 {
			sinc = cutoff
		} else {
			sinc = math.Sin(math.Pi*cutoff*x) / (math.Pi * x)
		}
		window := 0.54 - 0.46*math.Cos(2*math.Pi*float64(n)/float64(m))
		taps[n] = sinc * window
	}

	// Normalize the low-pass kernel to unity DC gain, then spectrally
	// invert to obtain a high-pass kernel (pass-zero = false).
	var sum float64
	for _, t := range taps {
		sum += t
	}
	out := make([]float32, order)
	for n := range taps {
		lp := taps[n] / sum
		if n == centerIndex(order) {
			out[n] = float32(1 - lp)
		} else {
			out[n] = float32(-lp)
		}
	}
	return out
}

func centerIndex(order int) int {
	return (order - 1) / 2
}

// firHighPass applies the taps as a causal convolution along the time
// axis, returning a new slice of the same length (spec §4.2 step 4).
func firHighPass(x []types.Sample, taps []float32) []types.Sample {
	out := make([]types.Sample, len(x))
	for n := range x {
		var acc complex64
		for k, tap := range taps {
			idx := n - k
			if idx < 0 {
				continue
			}
			acc += x[idx] * complex(tap, 0)
		}
		out[n] = acc
	}
	return out
}

// mti computes output[n] = x[n] - x[n-delta] for n >= delta, zero below,
// returning a new slice of the same length (spec §4.2 step 5).
func mti(x []types.Sample, delta int) []types.Sample {
	out := make([]types.Sample, len(x))
	for n := range x {
		if n < delta {
			out[n] = 0
			continue
		}
		out[n] = x[n] - x[n-delta]
	}
	return out
}
