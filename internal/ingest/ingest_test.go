package ingest

import (
	"context"
	"encoding/binary"
	"io"
	"math"
	"net"
	"os"
	"testing"

	"pcl-radar/internal/ring"
)

func writeComplexFile(t *testing.T, samples []complex64) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "iq-*.raw")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	for _, s := range samples {
		var buf [8]byte
		binary.LittleEndian.PutUint32(buf[0:4], math.Float32bits(real(s)))
		binary.LittleEndian.PutUint32(buf[4:8], math.Float32bits(imag(s)))
		if _, err := f.Write(buf[:]); err != nil {
			t.Fatal(err)
		}
	}
	return f.Name()
}

func TestFileSourceReadsExactBlock(t *testing.T) {
	t.Parallel()
	const channels, blockSize = 2, 4
	samples := make([]complex64, channels*blockSize)
	for i := range samples {
		samples[i] = complex(float32(i), float32(-i))
	}
	path := writeComplexFile(t, samples)

	src, err := NewFileSource(path, channels, blockSize, "complex64")
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	block, err := src.Next(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if block.NumChannels() != channels || block.BlockLen() != blockSize {
		t.Fatalf("unexpected shape (%d,%d)", block.NumChannels(), block.BlockLen())
	}
	if block.Channels[0][0] != samples[0] {
		t.Fatalf("channel 0 sample 0 = %v, want %v", block.Channels[0][0], samples[0])
	}
	if block.Channels[1][0] != samples[blockSize] {
		t.Fatalf("channel 1 sample 0 = %v, want %v", block.Channels[1][0], samples[blockSize])
	}

	if _, err := src.Next(context.Background()); err != io.EOF {
		t.Fatalf("expected EOF on second read, got %v", err)
	}
}

func TestIngestorRunDrainsOnEOF(t *testing.T) {
	t.Parallel()
	const channels, blockSize = 1, 2
	samples := make([]complex64, channels*blockSize*3)
	path := writeComplexFile(t, samples)

	src, err := NewFileSource(path, channels, blockSize, "complex64")
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	buf := ring.NewBuffer(4)
	ing := New(src, buf)

	if err := ing.Run(context.Background()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if ing.Counters().BlocksIn != 3 {
		t.Fatalf("BlocksIn = %d, want 3", ing.Counters().BlocksIn)
	}
	if buf.WriteIndex() != 3 {
		t.Fatalf("ring write index = %d, want 3", buf.WriteIndex())
	}
}

func TestUDPSourceDropsUndersizedDatagram(t *testing.T) {
	t.Parallel()
	const channels, blockSize = 1, 4
	src, err := NewUDPSource("127.0.0.1", 0, channels, blockSize)
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	addr := src.conn.LocalAddr()
	sender, err := net.Dial("udp", addr.String())
	if err != nil {
		t.Fatal(err)
	}
	defer sender.Close()

	// Undersized datagram: dropped silently, then a valid one arrives.
	if _, err := sender.Write([]byte{1, 2, 3}); err != nil {
		t.Fatal(err)
	}

	want := channels * blockSize * 8
	valid := make([]byte, want)
	for i := range valid {
		valid[i] = byte(i)
	}
	if _, err := sender.Write(valid); err != nil {
		t.Fatal(err)
	}

	block, err := src.Next(context.Background())
	if err != nil {
		t.Fatalf("Next returned error (undersized datagram should have been skipped): %v", err)
	}
	if block.NumChannels() != channels || block.BlockLen() != blockSize {
		t.Fatalf("unexpected shape (%d,%d)", block.NumChannels(), block.BlockLen())
	}
}
