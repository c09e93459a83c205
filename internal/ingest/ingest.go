// Package ingest implements the Ingestor component (spec §4.1): it produces
// IQ blocks of shape (C, N) from either a raw file or a UDP datagram stream
// and writes each into the shared ring buffer.
package ingest

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"os"
	"time"

	"pcl-radar/internal/config"
	"pcl-radar/internal/ring"
	"pcl-radar/internal/types"
)

// Counters tracks Ingestor-level observability per spec §7.
type Counters struct {
	BlocksIn      uint64
	BlocksDropped uint64 // malformed/undersized frames discarded
}

// Source produces a finite or infinite lazy sequence of IQ blocks. The file
// source is restartable (a fresh Source can be constructed to read again);
// the UDP source is not.
type Source interface {
	// Next blocks until the next IQ block is available, ctx is canceled, or
	// the source is exhausted (io.EOF).
	Next(ctx context.Context) (*types.IQBlock, error)
	// Close releases any resources held by the source.
	Close() error
}

// Ingestor owns the ring buffer for writes and drives a Source into it
// until ctx is canceled or the source is exhausted.
type Ingestor struct {
	src      Source
	buf      *ring.Buffer
	counters Counters
}

// New creates an Ingestor from a configured Source.
func New(src Source, buf *ring.Buffer) *Ingestor {
	return &Ingestor{src: src, buf: buf}
}

// Counters returns a snapshot of the ingest counters.
func (ing *Ingestor) Counters() Counters {
	return ing.counters
}

// Run drives blocks from the source into the ring buffer until ctx is
// canceled or the source returns io.EOF, at which point it returns nil so
// callers can signal downstream workers to drain (spec §4.1).
func (ing *Ingestor) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		block, err := ing.src.Next(ctx)
		switch {
		case errors.Is(err, io.EOF):
			slog.Info("ingest: source exhausted")
			return nil
		case errors.Is(err, context.Canceled):
			return nil
		case err != nil:
			ing.counters.BlocksDropped++
			slog.Warn("ingest: malformed frame discarded", "error", err)
			continue
		}

		ing.counters.BlocksIn++
		ing.buf.Write(block)
	}
}

// NewSourceFromConfig constructs the configured Source (file or UDP).
func NewSourceFromConfig(cfg config.Config) (Source, error) {
	switch cfg.Mode {
	case config.ModeFile:
		return NewFileSource(cfg.File.Path, cfg.Channels, cfg.BlockSize, cfg.File.Dtype)
	case config.ModeUDP:
		return NewUDPSource(cfg.UDP.Host, cfg.UDP.Port, cfg.Channels, cfg.BlockSize)
	default:
		return nil, fmt.Errorf("unknown ingest mode %q", cfg.Mode)
	}
}

// FileSource reads raw interleaved float32 or native complex64 IQ blocks
// from a file with no header (spec §6 "IQ ingest — file"). It is
// restartable: Rewind seeks back to the start.
type FileSource struct {
	f         *os.File
	r         *bufio.Reader
	channels  int
	blockSize int
	dtype     string // "complex64" or "interleaved_f32"
}

// NewFileSource opens path for file-mode ingest. A missing file is a fatal
// startup error per spec §7.
func NewFileSource(path string, channels, blockSize int, dtype string) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open IQ file %q: %w", path, err)
	}
	if dtype == "" {
		dtype = "complex64"
	}
	return &FileSource{
		f:         f,
		r:         bufio.NewReaderSize(f, 1<<20),
		channels:  channels,
		blockSize: blockSize,
		dtype:     dtype,
	}, nil
}

// Rewind seeks the file back to the start, making the source restartable.
func (s *FileSource) Rewind() error {
	_, err := s.f.Seek(0, io.SeekStart)
	if err != nil {
		return err
	}
	s.r.Reset(s.f)
	return nil
}

// Next reads the next (C, N) block. Returns io.EOF once the file is
// exhausted mid-block or at the boundary.
func (s *FileSource) Next(ctx context.Context) (*types.IQBlock, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	block := types.NewIQBlock(s.channels, s.blockSize)
	for c := 0; c < s.channels; c++ {
		for i := 0; i < s.blockSize; i++ {
			sample, err := s.readSample()
			if err != nil {
				return nil, err
			}
			block.Channels[c][i] = sample
		}
	}
	return block, nil
}

// readSample decodes one (I, Q) pair. Both recognized dtypes ("complex64"
// and "interleaved_f32") share the same little-endian float32-pair wire
// layout; the distinction exists for documentation at the config boundary.
func (s *FileSource) readSample() (types.Sample, error) {
	var iBits, qBits uint32
	if err := binary.Read(s.r, binary.LittleEndian, &iBits); err != nil {
		return 0, err
	}
	if err := binary.Read(s.r, binary.LittleEndian, &qBits); err != nil {
		return 0, err
	}
	return complex(math.Float32frombits(iBits), math.Float32frombits(qBits)), nil
}

// Close closes the underlying file.
func (s *FileSource) Close() error {
	return s.f.Close()
}

// UDPSource receives IQ blocks as per-packet payloads of C*N complex64
// values, row-major by channel then sample (spec §6 "IQ ingest —
// datagram"). It is not restartable.
type UDPSource struct {
	conn      *net.UDPConn
	channels  int
	blockSize int
	buf       []byte
}

// NewUDPSource binds a UDP socket at host:port. A bind failure is fatal at
// startup per spec §7.
func NewUDPSource(host string, port, channels, blockSize int) (*UDPSource, error) {
	addr := &net.UDPAddr{IP: net.ParseIP(host), Port: port}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("bind udp %s:%d: %w", host, port, err)
	}
	return &UDPSource{
		conn:      conn,
		channels:  channels,
		blockSize: blockSize,
		buf:       make([]byte, channels*blockSize*8+1024), // headroom for oversized packets
	}, nil
}

// expectedPayloadSize returns C*N*8 bytes (complex64 = 8 bytes each).
func (s *UDPSource) expectedPayloadSize() int {
	return s.channels * s.blockSize * 8
}

// Next reads the next datagram. Undersized datagrams are dropped silently
// (spec §4.1 policy); oversized datagrams are truncated to the expected
// size.
func (s *UDPSource) Next(ctx context.Context) (*types.IQBlock, error) {
	want := s.expectedPayloadSize()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		_ = s.conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
		n, err := s.conn.Read(s.buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			return nil, fmt.Errorf("udp read: %w", err)
		}

		if n < want {
			// Undersized: dropped silently per spec.
			continue
		}

		payload := s.buf[:want] // oversized packets are truncated
		block := types.NewIQBlock(s.channels, s.blockSize)
		off := 0
		for c := 0; c < s.channels; c++ {
			for i := 0; i < s.blockSize; i++ {
				re := math.Float32frombits(binary.LittleEndian.Uint32(payload[off:]))
				im := math.Float32frombits(binary.LittleEndian.Uint32(payload[off+4:]))
				block.Channels[c][i] = complex(re, im)
				off += 8
			}
		}
		return block, nil
	}
}

// Close closes the UDP socket, which wakes any blocked receive (spec §5
// "Cancellation").
func (s *UDPSource) Close() error {
	return s.conn.Close()
}
