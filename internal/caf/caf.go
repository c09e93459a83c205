// Package caf implements the cross-ambiguity function engine (spec §4.3):
// it turns a reference/surveillance channel pair into a range-Doppler
// magnitude map. The reference spectrum is precomputed once per block from
// its first nfft samples; each overlapping surveillance segment is
// correlated against it to yield a delay vector, segments are stacked in
// slow time, and a second FFT across segments extracts Doppler. Magnitude
// is taken once after the fast-time cross-correlation and again after the
// slow-time (Doppler) transform, matching the two-stage abs()/abs()
// reduction of the reference implementation this engine was adapted from.
package caf

import (
	"fmt"
	"math"
	"sync"

	algofft "github.com/MeKo-Christian/algo-fft"

	"pcl-radar/internal/types"
)

// planCache hands out one FFT plan per transform size, shared across every
// Engine since algo-fft plans hold no per-call state (spec §9 "Global FFT
// plan cache").
type planCache struct {
	mu    sync.Mutex
	plans map[int]*algofft.Plan[complex64]
}

var plans = &planCache{plans: make(map[int]*algofft.Plan[complex64])}

func (c *planCache) get(size int) (*algofft.Plan[complex64], error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.plans[size]; ok {
		return p, nil
	}
	p, err := algofft.NewPlan32(size)
	if err != nil {
		return nil, fmt.Errorf("build fft plan size %d: %w", size, err)
	}
	c.plans[size] = p
	return p, nil
}

// Engine computes CAF range-Doppler maps for a fixed segment size, overlap
// and Doppler bin count.
type Engine struct {
	nfft        int
	hop         int
	dopplerBins int

	fastPlan *algofft.Plan[complex64] // size nfft, fast-time (delay) transform
	slowPlan *algofft.Plan[complex64] // size dopplerBins, slow-time (Doppler) transform

	window []float32 // Hann window applied to each fast-time segment

	// scratch buffers reused across Process calls to avoid per-frame
	// allocation in the hot path.
	refSeg, echoSeg []complex64
	refSpecConj     []complex64
	echoSpec        []complex64
	corr            []complex64
	delayMag        [][]float32 // [segment][range bin], magnitude of the cross-correlation
	slowIn, slowOut []complex64
}

// NewEngine builds an Engine for blocks of blockLen samples, per spec §6
// caf.{nfft,overlap,doppler_bins}. dopplerBins is a ceiling, not a hard
// requirement: a block of blockLen samples at the configured nfft/overlap
// yields S = max(1, floor((N-nfft)/(nfft*(1-overlap)))+1) segments (spec
// §4.3), and if S < dopplerBins the engine clamps its effective Doppler bin
// count down to S rather than failing to construct. This keeps the
// canonical defaults (block_size=32768, nfft=2048, doppler_bins=128, which
// only yields S=31 segments per block) buildable out of the box; the
// output shape is still stable across frames since S is a deterministic
// function of a fixed configuration. Construction only fails when blockLen
// is too short to produce even one full segment.
func NewEngine(blockLen, nfft int, overlap float64, dopplerBins int) (*Engine, error) {
	if nfft <= 0 || nfft&(nfft-1) != 0 {
		return nil, fmt.Errorf("caf: nfft must be a positive power of two, got %d", nfft)
	}
	if overlap < 0 || overlap >= 1 {
		return nil, fmt.Errorf("caf: overlap must be in [0,1), got %f", overlap)
	}
	if dopplerBins <= 0 {
		return nil, fmt.Errorf("caf: doppler_bins must be positive, got %d", dopplerBins)
	}

	hop := int(float64(nfft) * (1 - overlap))
	if hop <= 0 {
		hop = 1
	}
	segments := numSegments(blockLen, nfft, hop)
	if segments < 1 {
		return nil, fmt.Errorf("caf: block of %d samples is shorter than nfft %d, cannot form a single segment",
			blockLen, nfft)
	}
	if segments < dopplerBins {
		dopplerBins = segments
	}

	fastPlan, err := plans.get(nfft)
	if err != nil {
		return nil, err
	}
	slowPlan, err := plans.get(dopplerBins)
	if err != nil {
		return nil, err
	}

	delayMag := make([][]float32, dopplerBins)
	for i := range delayMag {
		delayMag[i] = make([]float32, nfft)
	}

	return &Engine{
		nfft:        nfft,
		hop:         hop,
		dopplerBins: dopplerBins,
		fastPlan:    fastPlan,
		slowPlan:    slowPlan,
		window:      hannWindow(nfft),
		refSeg:      make([]complex64, nfft),
		echoSeg:     make([]complex64, nfft),
		refSpecConj: make([]complex64, nfft),
		echoSpec:    make([]complex64, nfft),
		corr:        make([]complex64, nfft),
		delayMag:    delayMag,
		slowIn:      make([]complex64, dopplerBins),
		slowOut:     make([]complex64, dopplerBins),
	}, nil
}

func numSegments(blockLen, nfft, hop int) int {
	if blockLen < nfft {
		return 0
	}
	return (blockLen-nfft)/hop + 1
}

// NumRangeBins is the number of delay (range) bins in a produced RDMap.
func (e *Engine) NumRangeBins() int { return e.nfft }

// NumDopplerBins is the number of Doppler bins in a produced RDMap.
func (e *Engine) NumDopplerBins() int { return e.dopplerBins }

// Process computes one range-Doppler map from a reference channel and one
// surveillance channel of a preprocessed IQ block (spec §4.3). The
// reference spectrum is taken once from ref[0:nfft]; the most recent
// dopplerBins overlapping segments of echo supply the slow-time history.
func (e *Engine) Process(ref, echo []types.Sample) (*types.RDMap, error) {
	n := len(ref)
	if n != len(echo) {
		n = min(n, len(echo))
	}
	if n < e.nfft {
		return nil, fmt.Errorf("caf: channel length %d shorter than nfft %d", n, e.nfft)
	}

	if err := e.precomputeReference(ref); err != nil {
		return nil, err
	}

	segments := numSegments(n, e.nfft, e.hop)
	if segments < e.dopplerBins {
		return nil, fmt.Errorf("caf: block yields only %d segments, need %d", segments, e.dopplerBins)
	}
	firstSeg := segments - e.dopplerBins

	for s := 0; s < e.dopplerBins; s++ {
		start := (firstSeg + s) * e.hop
		if err := e.correlateSegment(echo, start); err != nil {
			return nil, err
		}
		for r := 0; r < e.nfft; r++ {
			e.delayMag[s][r] = complex64Abs(e.corr[r])
		}
	}

	out := types.NewRDMap(e.dopplerBins, e.nfft)
	for r := 0; r < e.nfft; r++ {
		for s := 0; s < e.dopplerBins; s++ {
			e.slowIn[s] = complex(e.delayMag[s][r], 0)
		}
		if err := e.slowPlan.Forward(e.slowOut, e.slowIn); err != nil {
			return nil, fmt.Errorf("caf: doppler fft: %w", err)
		}
		for d := 0; d < e.dopplerBins; d++ {
			shifted := (d + e.dopplerBins/2) % e.dopplerBins
			out.Set(shifted, r, complex64Abs(e.slowOut[d]))
		}
	}

	normalize(out)
	return out, nil
}

// precomputeReference windowed-FFTs ref[0:nfft] and stores its conjugate
// (spec §4.3 "Precompute conj(FFT(ref[0:nfft]))").
func (e *Engine) precomputeReference(ref []types.Sample) error {
	for i := 0; i < e.nfft; i++ {
		e.refSeg[i] = complex64(ref[i]) * complex(e.window[i], 0)
	}
	if err := e.fastPlan.Forward(e.refSpecConj, e.refSeg); err != nil {
		return fmt.Errorf("caf: reference fft: %w", err)
	}
	for i := range e.refSpecConj {
		e.refSpecConj[i] = conj64(e.refSpecConj[i])
	}
	return nil
}

// correlateSegment windowed-FFTs the echo segment starting at start,
// multiplies by the precomputed conjugate reference spectrum, and inverse
// FFTs into e.corr (spec §4.3 "For each segment s").
func (e *Engine) correlateSegment(echo []types.Sample, start int) error {
	for i := 0; i < e.nfft; i++ {
		e.echoSeg[i] = complex64(echo[start+i]) * complex(e.window[i], 0)
	}
	if err := e.fastPlan.Forward(e.echoSpec, e.echoSeg); err != nil {
		return fmt.Errorf("caf: echo fft: %w", err)
	}
	for i := range e.corr {
		e.corr[i] = e.echoSpec[i] * e.refSpecConj[i]
	}
	return e.fastPlan.Inverse(e.corr, e.corr)
}

// Average elementwise-averages multiple per-channel-pair RD maps into one
// merged frame (spec §4.3 "Multi-channel variant"). All maps must share the
// same shape.
func Average(maps []*types.RDMap) (*types.RDMap, error) {
	if len(maps) == 0 {
		return nil, fmt.Errorf("caf: Average requires at least one map")
	}
	nd, nr := maps[0].NumDoppler, maps[0].NumRange
	out := types.NewRDMap(nd, nr)
	for _, m := range maps {
		if m.NumDoppler != nd || m.NumRange != nr {
			return nil, fmt.Errorf("caf: Average shape mismatch: (%d,%d) vs (%d,%d)", m.NumDoppler, m.NumRange, nd, nr)
		}
		for i, v := range m.Data {
			out.Data[i] += v
		}
	}
	scale := 1 / float32(len(maps))
	for i := range out.Data {
		out.Data[i] *= scale
	}
	return out, nil
}

// normalize scales an RD map so its maximum magnitude is exactly 1,
// preserving the spec §8 invariant max(rdmap) <= 1+1e-9 and avoiding
// division by zero on a silent input.
func normalize(m *types.RDMap) {
	max := m.Max()
	if max <= 0 {
		return
	}
	scale := 1 / (max + 1e-12)
	for i := range m.Data {
		m.Data[i] *= scale
	}
}

func conj64(c complex64) complex64 {
	return complex(real(c), -imag(c))
}

func complex64Abs(c complex64) float32 {
	return float32(math.Hypot(float64(real(c)), float64(imag(c))))
}

// hannWindow builds a size-n Hann window to reduce spectral leakage in the
// fast-time correlation (spec §4.3 step 1).
func hannWindow(n int) []float32 {
	w := make([]float32, n)
	if n == 1 {
		w[0] = 1
		return w
	}
	for i := range w {
		w[i] = float32(0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n-1)))
	}
	return w
}
