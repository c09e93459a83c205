package ring

import (
	"testing"
	"time"

	"pcl-radar/internal/types"
)

func TestBufferReadyFiresOnce(t *testing.T) {
	t.Parallel()
	buf := NewBuffer(4)

	select {
	case <-buf.Ready():
		t.Fatal("ready fired before any write")
	default:
	}

	buf.Write(types.NewIQBlock(2, 8))

	select {
	case <-buf.Ready():
	case <-time.After(time.Second):
		t.Fatal("ready did not fire after first write")
	}
}

func TestBufferOverwritesOldestOnFull(t *testing.T) {
	t.Parallel()
	depth := 3
	buf := NewBuffer(depth)

	for i := 0; i < depth+2; i++ {
		buf.Write(types.NewIQBlock(1, 4))
	}

	if got := buf.Dropped(); got != 2 {
		t.Fatalf("Dropped() = %d, want 2", got)
	}

	if _, ok := buf.At(0); ok {
		t.Fatal("slot 0 should have been overwritten")
	}
	if _, ok := buf.At(4); !ok {
		t.Fatal("slot 4 (latest) should still be present")
	}
}

func TestReaderSkipsToNewestWhenBehind(t *testing.T) {
	t.Parallel()
	depth := 2
	buf := NewBuffer(depth)
	r := NewReader(buf)

	for i := 0; i < 5; i++ {
		buf.Write(types.NewIQBlock(1, 4))
	}

	blk, ok := r.Next()
	if !ok {
		t.Fatal("expected a block")
	}
	if blk.SeqNo != 4 {
		t.Fatalf("expected reader to skip straight to the newest block (seq 4), got %d", blk.SeqNo)
	}

	if _, ok := r.Next(); ok {
		t.Fatal("expected no more blocks")
	}
}

func TestReaderProcessesInWriteOrderWhenCaughtUp(t *testing.T) {
	t.Parallel()
	buf := NewBuffer(8)
	r := NewReader(buf)

	for i := 0; i < 3; i++ {
		buf.Write(types.NewIQBlock(1, 4))
		blk, ok := r.Next()
		if !ok {
			t.Fatalf("iteration %d: expected a block", i)
		}
		if blk.SeqNo != uint64(i) {
			t.Fatalf("iteration %d: got seq %d", i, blk.SeqNo)
		}
	}
}
