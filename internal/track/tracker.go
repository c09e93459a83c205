package track

import (
	"math"
	"sort"

	"pcl-radar/internal/types"
)

// maxHistory bounds the number of (timestamp, range, doppler) points kept
// per track for visualization (spec §3 Track invariant: "bounded history").
// A long-lived track otherwise accumulates one point per frame forever.
const maxHistory = 64

// track is the tracker's internal representation of one target, distinct
// from types.TrackSnapshot which is the broadcast-safe read-only view.
type track struct {
	id             uint64
	st             state
	missed         int
	state          types.TrackState
	lastUpdateUnix float64
	history        []types.HistoryPoint
}

// Tracker holds the live track table and the configured dynamics and
// gating parameters (spec §4.6).
type Tracker struct {
	DT            float64
	DistThreshold float64
	MaxMissed     int
	ProcessVar    float64
	MeasVar       float64

	tracks []*track
	nextID uint64
}

// NewTracker builds an empty Tracker.
func NewTracker(dt, distThreshold, processVar, measVar float64, maxMissed int) *Tracker {
	return &Tracker{
		DT:            dt,
		DistThreshold: distThreshold,
		MaxMissed:     maxMissed,
		ProcessVar:    processVar,
		MeasVar:       measVar,
	}
}

// Step runs one full frame of the predict -> gate&assign -> update -> spawn
// -> prune protocol (spec §4.6 "Per-frame protocol") and returns a
// broadcast-safe snapshot of the surviving track table. timestampUnix
// stamps any history points appended this frame.
func (tr *Tracker) Step(measurements []types.Cluster, timestampUnix float64) []types.TrackSnapshot {
	// Tracks are kept sorted by ascending id so the assignment solver's
	// deterministic row order matches the spec's id-then-index tie-break.
	sort.Slice(tr.tracks, func(i, j int) bool { return tr.tracks[i].id < tr.tracks[j].id })

	for _, t := range tr.tracks {
		t.st.predict(tr.DT, tr.ProcessVar)
		t.missed++
	}

	assignment := tr.gateAndAssign(measurements)

	matchedMeas := make(map[int]bool, len(assignment))
	for ti, mi := range assignment {
		if mi < 0 {
			continue
		}
		matchedMeas[mi] = true
		t := tr.tracks[ti]
		z := [2]float64{measurements[mi].CentroidRange, measurements[mi].CentroidDoppler}
		if t.st.update(z, tr.MeasVar) {
			t.missed = 0
			t.state = types.TrackUpdated
			t.lastUpdateUnix = timestampUnix
			t.pushHistory(types.HistoryPoint{
				TimestampUnix: timestampUnix,
				Range:         t.st.x[0],
				Doppler:       t.st.x[1],
			})
		} else {
			// Singular innovation covariance: coast instead of crashing.
			t.state = types.TrackCoasted
		}
	}
	for ti, t := range tr.tracks {
		if assignment[ti] < 0 {
			t.state = types.TrackCoasted
		}
	}

	for mi, m := range measurements {
		if matchedMeas[mi] {
			continue
		}
		tr.spawn(m, timestampUnix)
	}

	tr.prune()

	return tr.snapshot(timestampUnix)
}

// gateAndAssign builds the Euclidean cost matrix between track predictions
// and measurement centroids, replaces costs beyond DistThreshold with an
// infinity sentinel, and solves the assignment (spec §4.6 step 2).
// assignment[i] is the measurement index matched to tr.tracks[i], or -1.
func (tr *Tracker) gateAndAssign(measurements []types.Cluster) []int {
	if len(tr.tracks) == 0 || len(measurements) == 0 {
		out := make([]int, len(tr.tracks))
		for i := range out {
			out[i] = -1
		}
		return out
	}

	cost := make([][]float64, len(tr.tracks))
	for i, t := range tr.tracks {
		cost[i] = make([]float64, len(measurements))
		for j, m := range measurements {
			d := math.Hypot(t.st.x[0]-m.CentroidRange, t.st.x[1]-m.CentroidDoppler)
			if d > tr.DistThreshold {
				cost[i][j] = infCost
			} else {
				cost[i][j] = d
			}
		}
	}

	return solveAssignment(cost)
}

// spawn creates a new track from an unmatched measurement (spec §4.6 step
// 4), with strictly increasing unique ids.
func (tr *Tracker) spawn(m types.Cluster, timestampUnix float64) {
	tr.nextID++
	t := &track{
		id:             tr.nextID,
		st:             newState(m.CentroidRange, m.CentroidDoppler),
		state:          types.TrackBorn,
		lastUpdateUnix: timestampUnix,
		history: []types.HistoryPoint{
			{TimestampUnix: timestampUnix, Range: m.CentroidRange, Doppler: m.CentroidDoppler},
		},
	}
	tr.tracks = append(tr.tracks, t)
}

// pushHistory appends p, dropping the oldest point once history exceeds
// maxHistory so a long-lived track's history stays bounded.
func (t *track) pushHistory(p types.HistoryPoint) {
	t.history = append(t.history, p)
	if len(t.history) > maxHistory {
		t.history = t.history[len(t.history)-maxHistory:]
	}
}

// prune terminates any track with missed > MaxMissed (spec §4.6 step 5).
func (tr *Tracker) prune() {
	kept := tr.tracks[:0]
	for _, t := range tr.tracks {
		if t.missed > tr.MaxMissed {
			continue
		}
		kept = append(kept, t)
	}
	tr.tracks = kept
}

// IDs returns the ids of every currently live track, for callers that need
// to diff the track table across frames without copying full snapshots.
func (tr *Tracker) IDs() []uint64 {
	ids := make([]uint64, len(tr.tracks))
	for i, t := range tr.tracks {
		ids[i] = t.id
	}
	return ids
}

// snapshot produces the broadcast-safe view of the current track table,
// never aliasing internal slices.
func (tr *Tracker) snapshot(timestampUnix float64) []types.TrackSnapshot {
	out := make([]types.TrackSnapshot, len(tr.tracks))
	for i, t := range tr.tracks {
		hist := make([]types.HistoryPoint, len(t.history))
		copy(hist, t.history)
		out[i] = types.TrackSnapshot{
			ID:             t.id,
			Range:          t.st.x[0],
			Doppler:        t.st.x[1],
			VelRange:       t.st.x[2],
			VelDoppler:     t.st.x[3],
			Missed:         t.missed,
			State:          t.state,
			LastUpdateUnix: t.lastUpdateUnix,
			History:        hist,
		}
	}
	return out
}
