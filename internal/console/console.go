// Package console renders a live termbox dashboard of ring-buffer fill,
// frame counters and the current track table, adapted from the parameter
// readout / metering dashboard pattern of a terminal audio controller.
package console

import (
	"fmt"
	"sync"
	"time"

	"github.com/nsf/termbox-go"

	"pcl-radar/internal/types"
)

const (
	colDef    = termbox.ColorDefault
	colWhite  = termbox.ColorWhite
	colGreen  = termbox.ColorGreen
	colYellow = termbox.ColorYellow
	colCyan   = termbox.ColorCyan
)

// Stats is the set of counters the dashboard displays, refreshed by the
// coordinator once per frame.
type Stats struct {
	RingDepth     int
	RingFillRatio float64
	BlocksIn      uint64
	BlocksDropped uint64
	FramesOut     uint64
	Detections    uint64
	TracksBorn    uint64
	TracksDied    uint64
	Tracks        []types.TrackSnapshot
}

// Dashboard owns the termbox session and the latest stats snapshot.
type Dashboard struct {
	mu    sync.Mutex
	stats Stats
	exit  chan struct{}
	done  chan struct{}
}

// New builds an unstarted Dashboard.
func New() *Dashboard {
	return &Dashboard{exit: make(chan struct{}), done: make(chan struct{})}
}

// Update replaces the displayed stats; safe to call from any goroutine.
func (d *Dashboard) Update(s Stats) {
	d.mu.Lock()
	d.stats = s
	d.mu.Unlock()
}

// Run initializes termbox and redraws on a fixed tick or keypress until Esc
// or 'q' is pressed or Stop is called. Intended to run in its own goroutine.
func (d *Dashboard) Run() error {
	if err := termbox.Init(); err != nil {
		close(d.done)
		return fmt.Errorf("console: termbox init: %w", err)
	}
	defer termbox.Close()
	termbox.SetInputMode(termbox.InputEsc)

	events := make(chan termbox.Event)
	go func() {
		for {
			events <- termbox.PollEvent()
		}
	}()

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	d.draw()
	for {
		select {
		case <-d.exit:
			close(d.done)
			return nil
		case ev := <-events:
			if ev.Type == termbox.EventKey && (ev.Key == termbox.KeyEsc || ev.Ch == 'q') {
				close(d.done)
				return nil
			}
			if ev.Type == termbox.EventResize {
				d.draw()
			}
		case <-ticker.C:
			d.draw()
		}
	}
}

// Stop requests the dashboard loop to exit and blocks until it has.
func (d *Dashboard) Stop() {
	select {
	case <-d.done:
		return
	default:
	}
	close(d.exit)
	<-d.done
}

func (d *Dashboard) draw() {
	d.mu.Lock()
	s := d.stats
	d.mu.Unlock()

	_ = termbox.Clear(colDef, colDef)

	printTB(0, 0, colCyan, colDef, "pcl-radar — live pipeline status")
	printTB(0, 1, colWhite, colDef, "'q' or Esc to quit")
	printTB(0, 2, colDef, colDef, "------------------------------------------------")

	printTB(0, 4, colYellow, colDef, "Ring:")
	drawBar(2, 5, "fill", s.RingFillRatio, colGreen)
	printTB(0, 7, colWhite, colDef, fmt.Sprintf("blocks in: %-10d dropped: %-10d", s.BlocksIn, s.BlocksDropped))
	printTB(0, 8, colWhite, colDef, fmt.Sprintf("frames out: %-9d detections: %-10d", s.FramesOut, s.Detections))
	printTB(0, 9, colWhite, colDef, fmt.Sprintf("tracks born: %-8d tracks died: %-10d", s.TracksBorn, s.TracksDied))

	printTB(0, 11, colYellow, colDef, fmt.Sprintf("Tracks (%d):", len(s.Tracks)))
	printTB(0, 12, colWhite, colDef, "  id     range    doppler    vr       vd    missed  state")
	for i, t := range s.Tracks {
		if i >= 20 {
			printTB(0, 13+i, colDef, colDef, "  ...")
			break
		}
		line := fmt.Sprintf("  %-6d %-8.1f %-10.2f %-8.2f %-8.2f %-7d %s",
			t.ID, t.Range, t.Doppler, t.VelRange, t.VelDoppler, t.Missed, stateLabel(t.State))
		printTB(0, 13+i, colDef, colDef, line)
	}

	termbox.Flush()
}

func stateLabel(s types.TrackState) string {
	switch s {
	case types.TrackBorn:
		return "born"
	case types.TrackUpdated:
		return "updated"
	case types.TrackCoasted:
		return "coasted"
	case types.TrackTerminated:
		return "terminated"
	default:
		return "?"
	}
}

func drawBar(xPos, yPos int, label string, ratio float64, color termbox.Attribute) {
	const barWidth = 40
	if ratio < 0 {
		ratio = 0
	}
	if ratio > 1 {
		ratio = 1
	}
	filled := int(ratio * float64(barWidth))

	printTB(0, yPos, colDef, colDef, fmt.Sprintf("%-5s[%-5.1f%%] ", label, ratio*100))
	for i := 0; i < barWidth; i++ {
		ch := '░'
		if i < filled {
			ch = '█'
		}
		termbox.SetCell(xPos+15+i, yPos, ch, color, colDef)
	}
}

func printTB(x, y int, fg, bg termbox.Attribute, msg string) {
	for _, c := range msg {
		termbox.SetCell(x, y, c, fg, bg)
		x++
	}
}
