package coordinator

import (
	"math"
	"testing"

	"pcl-radar/internal/config"
	"pcl-radar/internal/types"
)

func syntheticBlock(channels, blockLen int) *types.IQBlock {
	block := types.NewIQBlock(channels, blockLen)
	for c := 0; c < channels; c++ {
		for i := 0; i < blockLen; i++ {
			phase := float64(i) * 0.05
			block.Channels[c][i] = complex(float32(math.Cos(phase)), float32(math.Sin(phase)))
		}
	}
	return block
}

func TestProcessBlockProducesFrameWithoutError(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.Channels = 2
	cfg.BlockSize = 16384
	cfg.CAF.NFFT = 1024
	cfg.CAF.DopplerBins = 16

	co, err := New(cfg, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	var gotFrame bool
	co.Observe(func(rd *types.RDMap, dets []types.Detection, tracks []types.TrackSnapshot) {
		gotFrame = true
		if rd.NumDoppler != cfg.CAF.DopplerBins || rd.NumRange != cfg.CAF.NFFT {
			t.Errorf("unexpected merged frame shape (%d,%d)", rd.NumDoppler, rd.NumRange)
		}
	})

	block := syntheticBlock(cfg.Channels, cfg.BlockSize)
	if err := co.processBlock(block); err != nil {
		t.Fatal(err)
	}
	if !gotFrame {
		t.Fatal("expected the frame observer to be invoked")
	}
	if co.Counters().FramesOut != 1 {
		t.Fatalf("FramesOut = %d, want 1", co.Counters().FramesOut)
	}
}

func TestNewRejectsBadCAFConfig(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.BlockSize = 64 // shorter than nfft: can't even form one segment
	if _, err := New(cfg, nil, nil); err == nil {
		t.Fatal("expected an error constructing CAF engines for an undersized block")
	}
}

func TestNewAndProcessBlockWithCanonicalDefaults(t *testing.T) {
	t.Parallel()
	// config.Default() alone (block_size=32768, nfft=2048, doppler_bins=128)
	// only yields 31 segments per block; the pipeline must still construct
	// and process a frame rather than failing, with the merged frame's
	// Doppler axis clamped down to the segments actually available.
	cfg := config.Default()
	cfg.Channels = 2

	co, err := New(cfg, nil, nil)
	if err != nil {
		t.Fatalf("config.Default() must build a working pipeline: %v", err)
	}

	var gotFrame bool
	co.Observe(func(rd *types.RDMap, dets []types.Detection, tracks []types.TrackSnapshot) {
		gotFrame = true
		if rd.NumDoppler != 31 || rd.NumRange != cfg.CAF.NFFT {
			t.Errorf("unexpected merged frame shape (%d,%d), want (31,%d)", rd.NumDoppler, rd.NumRange, cfg.CAF.NFFT)
		}
	})

	block := syntheticBlock(cfg.Channels, cfg.BlockSize)
	if err := co.processBlock(block); err != nil {
		t.Fatal(err)
	}
	if !gotFrame {
		t.Fatal("expected the frame observer to be invoked")
	}
}
