// Package config defines the closed configuration document recognized by the
// pipeline (spec §6) and its defaults, YAML loading and validation.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Mode selects the IQ ingest source.
type Mode string

const (
	ModeFile Mode = "file"
	ModeUDP  Mode = "udp"
)

// FileConfig configures file-mode ingest.
type FileConfig struct {
	Path      string `yaml:"path"`
	ChunkSize int    `yaml:"chunk_size"`
	// Dtype selects how samples are decoded from the file: "complex64" for
	// native complex64 pairs, or "interleaved_f32" for interleaved (I, Q)
	// float32 pairs.
	Dtype string `yaml:"dtype"`
}

// UDPConfig configures datagram-mode ingest.
type UDPConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// CAFConfig configures the cross-ambiguity function engine.
type CAFConfig struct {
	NFFT        int     `yaml:"nfft"`
	Overlap     float64 `yaml:"overlap"`
	DopplerBins int     `yaml:"doppler_bins"`
}

// CFARConfig configures the 2-D CA-CFAR detector.
type CFARConfig struct {
	Guard [2]int  `yaml:"guard"`
	Train [2]int  `yaml:"train"`
	Pfa   float64 `yaml:"pfa"`
}

// MorphConfig configures morphological cleanup.
type MorphConfig struct {
	MinSize    int `yaml:"min_size"`
	StructSize int `yaml:"struct_size"`
}

// ClusterConfig configures DBSCAN.
type ClusterConfig struct {
	Eps        float64 `yaml:"eps"`
	MinSamples int     `yaml:"min_samples"`
}

// TrackerConfig configures the Kalman/Hungarian tracker.
type TrackerConfig struct {
	DT             float64 `yaml:"dt"`
	DistThreshold  float64 `yaml:"dist_threshold"`
	MaxMissed      int     `yaml:"max_missed"`
	ProcessVar     float64 `yaml:"process_var"`
	MeasVar        float64 `yaml:"meas_var"`
}

// PreprocessConfig configures the per-channel clutter-suppression stages.
type PreprocessConfig struct {
	ReferenceChannel int     `yaml:"reference_channel"`
	FIROrder         int     `yaml:"fir_order"`
	CutoffHz         float64 `yaml:"cutoff_hz"`
	MTIDelta         int     `yaml:"mti_delta"`
}

// BroadcastConfig configures the WebSocket broadcast server.
type BroadcastConfig struct {
	Port int `yaml:"port"`
}

// EventLogConfig configures the append-only event/manifest writer.
type EventLogConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

// FusionConfig configures the outbound fusion collaborator client.
type FusionConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
}

// Config is the closed, validated configuration document for the pipeline.
// Recognized options are exactly the fields below; unknown YAML keys are
// rejected at load time.
type Config struct {
	Mode Mode `yaml:"mode"`

	File FileConfig `yaml:"file"`
	UDP  UDPConfig  `yaml:"udp"`

	SampleRate float64 `yaml:"sample_rate"`
	Channels   int     `yaml:"channels"`
	BlockSize  int     `yaml:"block_size"`
	RingDepth  int     `yaml:"ring_depth"`

	Preprocess PreprocessConfig `yaml:"preprocess"`
	CAF        CAFConfig        `yaml:"caf"`
	CFAR       CFARConfig       `yaml:"cfar"`
	Morph      MorphConfig      `yaml:"morph"`
	Cluster    ClusterConfig    `yaml:"cluster"`
	Tracker    TrackerConfig    `yaml:"tracker"`
	Broadcast  BroadcastConfig  `yaml:"broadcast"`
	EventLog   EventLogConfig   `yaml:"event_log"`
	Fusion     FusionConfig     `yaml:"fusion"`

	LogFile string `yaml:"log_file"`
}

// Default returns a Config populated with the canonical defaults from §6.
func Default() Config {
	return Config{
		Mode: ModeFile,
		File: FileConfig{
			ChunkSize: 4096,
			Dtype:     "complex64",
		},
		UDP: UDPConfig{
			Host: "0.0.0.0",
			Port: 5000,
		},
		SampleRate: 2_000_000,
		Channels:   5,
		BlockSize:  32768,
		RingDepth:  8,
		Preprocess: PreprocessConfig{
			ReferenceChannel: 0,
			FIROrder:         101,
			CutoffHz:         50_000,
			MTIDelta:         1,
		},
		CAF: CAFConfig{
			NFFT:        2048,
			Overlap:     0.5,
			DopplerBins: 128,
		},
		CFAR: CFARConfig{
			Guard: [2]int{2, 2},
			Train: [2]int{8, 8},
			Pfa:   1e-3,
		},
		Morph: MorphConfig{
			MinSize:    5,
			StructSize: 3,
		},
		Cluster: ClusterConfig{
			Eps:        3.0,
			MinSamples: 3,
		},
		Tracker: TrackerConfig{
			DT:            1.0,
			DistThreshold: 12.0,
			MaxMissed:     5,
			ProcessVar:    1.0,
			MeasVar:       10.0,
		},
		Broadcast: BroadcastConfig{Port: 8090},
		EventLog:  EventLogConfig{Enabled: false, Dir: "events"},
		Fusion:    FusionConfig{Enabled: false},
		LogFile:   "pcl-radar.log",
	}
}

// Load reads a YAML document from path, overlaying it onto Default().
// Unknown keys in the document are rejected.
func Load(path string) (Config, error) {
	cfg := Default()

	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("open config %q: %w", path, err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config %q: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %q: %w", path, err)
	}

	return cfg, nil
}

// Validate checks cross-field invariants not expressible as simple defaults.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeFile:
		if c.File.Path == "" {
			return fmt.Errorf("mode=file requires file.path")
		}
	case ModeUDP:
		if c.UDP.Port <= 0 {
			return fmt.Errorf("udp.port must be positive")
		}
	default:
		return fmt.Errorf("mode must be %q or %q, got %q", ModeFile, ModeUDP, c.Mode)
	}

	if c.Channels < 2 {
		return fmt.Errorf("channels must be >= 2 (one reference + one surveillance), got %d", c.Channels)
	}
	if c.BlockSize <= 0 || c.BlockSize&(c.BlockSize-1) != 0 {
		return fmt.Errorf("block_size must be a positive power of two, got %d", c.BlockSize)
	}
	if c.RingDepth < 2 {
		return fmt.Errorf("ring_depth must be >= 2, got %d", c.RingDepth)
	}
	if c.CAF.NFFT <= 0 || c.CAF.NFFT&(c.CAF.NFFT-1) != 0 {
		return fmt.Errorf("caf.nfft must be a positive power of two, got %d", c.CAF.NFFT)
	}
	if c.CAF.Overlap < 0 || c.CAF.Overlap >= 1 {
		return fmt.Errorf("caf.overlap must be in [0, 1), got %f", c.CAF.Overlap)
	}
	if c.CAF.DopplerBins <= 0 {
		return fmt.Errorf("caf.doppler_bins must be positive, got %d", c.CAF.DopplerBins)
	}
	if c.CFAR.Pfa <= 0 || c.CFAR.Pfa >= 1 {
		return fmt.Errorf("cfar.pfa must be in (0, 1), got %f", c.CFAR.Pfa)
	}
	if c.Preprocess.ReferenceChannel < 0 || c.Preprocess.ReferenceChannel >= c.Channels {
		return fmt.Errorf("preprocess.reference_channel %d out of range [0,%d)", c.Preprocess.ReferenceChannel, c.Channels)
	}
	if c.Preprocess.CutoffHz <= 0 || c.Preprocess.CutoffHz >= c.SampleRate/2 {
		return fmt.Errorf("preprocess.cutoff_hz must be in (0, sample_rate/2=%f), got %f", c.SampleRate/2, c.Preprocess.CutoffHz)
	}
	if c.Tracker.MaxMissed < 0 {
		return fmt.Errorf("tracker.max_missed must be >= 0, got %d", c.Tracker.MaxMissed)
	}

	return nil
}
