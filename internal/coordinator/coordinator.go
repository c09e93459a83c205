// Package coordinator wires the per-channel preprocessing/CAF fan-out into
// a merged range-Doppler frame and drives it through CFAR, morphology,
// clustering and tracking (spec §2 "Coordinator" and §5 "Concurrency &
// Resource Model").
package coordinator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"pcl-radar/internal/broadcast"
	"pcl-radar/internal/caf"
	"pcl-radar/internal/cfar"
	"pcl-radar/internal/cluster"
	"pcl-radar/internal/config"
	"pcl-radar/internal/eventlog"
	"pcl-radar/internal/morph"
	"pcl-radar/internal/preprocess"
	"pcl-radar/internal/ring"
	"pcl-radar/internal/track"
	"pcl-radar/internal/types"
)

// Counters tracks pipeline-wide observability per spec §7.
type Counters struct {
	FramesOut  uint64
	Detections uint64
	TracksBorn uint64
	TracksDied uint64
}

// FrameObserver receives a completed frame's products for downstream
// consumers (broadcast, dashboard, event log).
type FrameObserver func(rd *types.RDMap, dets []types.Detection, tracks []types.TrackSnapshot)

// Coordinator owns the per-channel preprocessing chain, the CAF engines,
// and the single-threaded CFAR->morphology->clustering->tracker pipeline
// that runs on the merged frame (spec §5 "Scheduling model").
type Coordinator struct {
	cfg   config.Config
	chain *preprocess.Chain
	cafs  []*caf.Engine // one per surveillance channel, index i => i-th non-reference channel

	detector *cfar.Detector
	tracker  *track.Tracker

	hub     *broadcast.Hub
	events  *eventlog.Writer
	counters Counters

	observers []FrameObserver
	mu        sync.Mutex
}

// New builds a Coordinator from cfg. hub and events may be nil to disable
// broadcast or persistence respectively.
func New(cfg config.Config, hub *broadcast.Hub, events *eventlog.Writer) (*Coordinator, error) {
	normalizedCutoff := cfg.Preprocess.CutoffHz / (cfg.SampleRate / 2)
	chain := preprocess.NewChain(cfg.Preprocess.ReferenceChannel, cfg.Preprocess.FIROrder, normalizedCutoff, cfg.Preprocess.MTIDelta)

	cafs := make([]*caf.Engine, 0, cfg.Channels-1)
	for c := 0; c < cfg.Channels; c++ {
		if c == cfg.Preprocess.ReferenceChannel {
			continue
		}
		eng, err := caf.NewEngine(cfg.BlockSize, cfg.CAF.NFFT, cfg.CAF.Overlap, cfg.CAF.DopplerBins)
		if err != nil {
			return nil, err
		}
		cafs = append(cafs, eng)
	}

	return &Coordinator{
		cfg:      cfg,
		chain:    chain,
		cafs:     cafs,
		detector: cfar.NewDetector(cfg.CFAR.Guard, cfg.CFAR.Train, cfg.CFAR.Pfa),
		tracker: track.NewTracker(cfg.Tracker.DT, cfg.Tracker.DistThreshold,
			cfg.Tracker.ProcessVar, cfg.Tracker.MeasVar, cfg.Tracker.MaxMissed),
		hub:    hub,
		events: events,
	}, nil
}

// Observe registers a callback invoked with every completed frame's
// products, in addition to the built-in broadcast/event-log sinks.
func (c *Coordinator) Observe(fn FrameObserver) {
	c.mu.Lock()
	c.observers = append(c.observers, fn)
	c.mu.Unlock()
}

// Counters returns a snapshot of the pipeline counters.
func (c *Coordinator) Counters() Counters {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counters
}

// Run reads blocks from buf through a ring.Reader until ctx is canceled,
// processing one merged frame per IQ block read. It polls buf for a new
// slot every 2ms.
func (c *Coordinator) Run(ctx context.Context, buf *ring.Buffer) {
	r := ring.NewReader(buf)
	ticker := time.NewTicker(2 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		block, ok := r.Next()
		if !ok {
			continue
		}
		if err := c.processBlock(block); err != nil {
			slog.Warn("coordinator: frame dropped", "error", err)
		}
	}
}

// processBlock runs one block through preprocessing, per-channel CAF
// (fan-out, averaged), CFAR, morphology, clustering and the tracker.
func (c *Coordinator) processBlock(block *types.IQBlock) error {
	c.chain.Process(block)

	ref := block.Channels[c.cfg.Preprocess.ReferenceChannel]

	var wg sync.WaitGroup
	maps := make([]*types.RDMap, len(c.cafs))
	errs := make([]error, len(c.cafs))

	idx := 0
	for ch := range block.Channels {
		if ch == c.cfg.Preprocess.ReferenceChannel {
			continue
		}
		i := idx
		engine := c.cafs[i]
		echo := block.Channels[ch]
		wg.Add(1)
		go func() {
			defer wg.Done()
			rd, err := engine.Process(ref, echo)
			maps[i] = rd
			errs[i] = err
		}()
		idx++
	}
	wg.Wait()

	var live []*types.RDMap
	for i, m := range maps {
		if errs[i] != nil {
			slog.Warn("coordinator: caf worker error", "channel", i, "error", errs[i])
			continue
		}
		live = append(live, m)
	}
	if len(live) == 0 {
		return nil
	}

	merged, err := caf.Average(live)
	if err != nil {
		return err
	}

	res := c.detector.Run(merged)
	mask := morph.FromSlice(res.NumDopp, res.NumRange, res.Mask)
	cleaned := morph.Clean(mask, c.cfg.Morph.StructSize, c.cfg.Morph.MinSize)
	dets := cfar.Detections(cleaned.Data, merged)

	clusters := cluster.Run(dets, c.cfg.Cluster.Eps, c.cfg.Cluster.MinSamples)

	timestampUnix := float64(block.SeqNo) * c.cfg.Tracker.DT
	before := c.tracker.IDs()
	beforeIDs := make(map[uint64]bool, len(before))
	for _, id := range before {
		beforeIDs[id] = true
	}

	snaps := c.tracker.Step(clusters, timestampUnix)

	var born, died int
	afterIDs := make(map[uint64]bool, len(snaps))
	for _, t := range snaps {
		afterIDs[t.ID] = true
		if !beforeIDs[t.ID] {
			born++
		}
	}
	for id := range beforeIDs {
		if !afterIDs[id] {
			died++
		}
	}

	c.mu.Lock()
	c.counters.FramesOut++
	c.counters.Detections += uint64(len(dets))
	c.counters.TracksBorn += uint64(born)
	c.counters.TracksDied += uint64(died)
	observers := append([]FrameObserver(nil), c.observers...)
	c.mu.Unlock()

	if c.hub != nil {
		c.hub.Publish(broadcast.FrameFromSnapshot(timestampUnix, dets, snaps))
	}
	if c.events != nil {
		for _, d := range dets {
			if _, err := c.events.Persist(timestampUnix, d, merged); err != nil {
				slog.Warn("coordinator: event persist failed", "error", err)
			}
		}
	}
	for _, obs := range observers {
		obs(merged, dets, snaps)
	}

	return nil
}
