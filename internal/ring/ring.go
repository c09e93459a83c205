// Package ring implements the shared IQ-block ring buffer described in
// spec §3 "Ring slot" and §5 "Shared state": a fixed-depth ring of IQ
// blocks with a single writer (the Ingestor), a monotonic write index
// visible to readers, and a one-shot readiness signal fired after the
// first slot is written.
package ring

import (
	"sync"
	"sync/atomic"

	"pcl-radar/internal/types"
)

// Buffer is a fixed-depth ring of IQBlock slots. The Ingestor is the sole
// writer; readers only ever read slots through Latest, At or a Reader, and
// must not mutate the blocks they get back. On a full ring the oldest
// slot is silently overwritten (lossy by contract, spec §4.1).
type Buffer struct {
	depth int
	slots []*types.IQBlock

	mu         sync.RWMutex
	writeIndex uint64 // monotonically increasing; slot = writeIndex % depth

	readyOnce sync.Once
	readyCh   chan struct{}

	dropped atomic.Uint64 // count of slots overwritten, whether or not a reader had read them
}

// NewBuffer allocates a ring of the given depth. Slots are allocated lazily
// on first write since IQBlock shape depends on the Ingestor's source.
func NewBuffer(depth int) *Buffer {
	if depth < 2 {
		depth = 2
	}
	return &Buffer{
		depth:   depth,
		slots:   make([]*types.IQBlock, depth),
		readyCh: make(chan struct{}),
	}
}

// Depth returns the ring depth D.
func (b *Buffer) Depth() int {
	return b.depth
}

// Write stores block into the next slot, overwriting the oldest slot if the
// ring is full, and advances the write index. It is safe to call only from
// the single Ingestor writer.
func (b *Buffer) Write(block *types.IQBlock) {
	b.mu.Lock()
	idx := b.writeIndex
	slot := int(idx % uint64(b.depth))
	if b.slots[slot] != nil && idx >= uint64(b.depth) {
		b.dropped.Add(1)
	}
	block.SeqNo = idx
	b.slots[slot] = block
	b.writeIndex = idx + 1
	b.mu.Unlock()

	b.readyOnce.Do(func() { close(b.readyCh) })
}

// Ready returns a channel that closes once the first slot has been written.
// All readers should wait on this before consuming.
func (b *Buffer) Ready() <-chan struct{} {
	return b.readyCh
}

// WriteIndex returns the current monotonic write index (count of blocks
// written so far).
func (b *Buffer) WriteIndex() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.writeIndex
}

// Dropped returns the count of slots overwritten by later writes (the
// ring-overflow frame-drop counter of spec §8 scenario 6). The ring does not
// track reads, so a block that a reader had already consumed still counts.
func (b *Buffer) Dropped() uint64 {
	return b.dropped.Load()
}

// Latest returns the most recently written block and its write index, or
// (nil, 0, false) if nothing has been written yet. The returned block must
// not be mutated by the caller.
func (b *Buffer) Latest() (*types.IQBlock, uint64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.writeIndex == 0 {
		return nil, 0, false
	}
	idx := b.writeIndex - 1
	slot := int(idx % uint64(b.depth))
	return b.slots[slot], idx, true
}

// At returns the block written at the given monotonic index, or false if
// that slot has since been overwritten or not yet written.
func (b *Buffer) At(index uint64) (*types.IQBlock, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if index >= b.writeIndex {
		return nil, false
	}
	if b.writeIndex-index > uint64(b.depth) {
		return nil, false // overwritten
	}
	slot := int(index % uint64(b.depth))
	blk := b.slots[slot]
	if blk == nil || blk.SeqNo != index {
		return nil, false
	}
	return blk, true
}

// Reader tracks per-worker consumption progress against a Buffer, processing
// slots in write order and skipping forward to the newest available frame
// when it falls behind (spec §5 "Downstream stages ... skip to the newest
// RD frame rather than queue up old ones").
type Reader struct {
	buf  *Buffer
	next uint64
}

// NewReader creates a Reader over buf starting at write index 0.
func NewReader(buf *Buffer) *Reader {
	return &Reader{buf: buf}
}

// Next returns the next unread block in write order. If the reader has
// fallen behind (whether or not its next slot has actually been
// overwritten yet), it skips straight to the newest written block rather
// than draining the backlog in order (spec §5 "Backpressure": downstream
// stages "skip to the newest RD frame rather than queue up old ones").
// Returns false if no new block has been written since the last call.
func (r *Reader) Next() (*types.IQBlock, bool) {
	r.buf.mu.RLock()
	writeIndex := r.buf.writeIndex
	r.buf.mu.RUnlock()

	if r.next >= writeIndex {
		return nil, false
	}

	// More than one block behind: jump straight to the newest block,
	// dropping the backlog instead of draining it in order.
	if writeIndex-r.next > 1 {
		r.next = writeIndex - 1
	}

	blk, ok := r.buf.At(r.next)
	r.next++
	if !ok {
		return nil, false
	}
	return blk, true
}
