package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultValidates(t *testing.T) {
	t.Parallel()
	cfg := Default()
	cfg.File.Path = "iq.raw" // mode=file requires a path
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default() should validate once a file path is set: %v", err)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yaml")
	doc := "mode: file\nfile:\n  path: iq.raw\nbogus_key: 1\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for an unrecognized config key")
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yaml")
	doc := "mode: file\nfile:\n  path: iq.raw\nchannels: 7\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Channels != 7 {
		t.Fatalf("Channels = %d, want 7 (overlay)", cfg.Channels)
	}
	if cfg.BlockSize != Default().BlockSize {
		t.Fatalf("BlockSize = %d, want default %d preserved", cfg.BlockSize, Default().BlockSize)
	}
}

func TestValidateRejectsNonPowerOfTwoBlockSize(t *testing.T) {
	t.Parallel()
	cfg := Default()
	cfg.File.Path = "iq.raw"
	cfg.BlockSize = 1000
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for a non-power-of-two block_size")
	}
}

func TestValidateRejectsCutoffAboveNyquist(t *testing.T) {
	t.Parallel()
	cfg := Default()
	cfg.File.Path = "iq.raw"
	cfg.Preprocess.CutoffHz = cfg.SampleRate // well above Nyquist
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for preprocess.cutoff_hz >= sample_rate/2")
	}
}

func TestValidateRequiresUDPPortInUDPMode(t *testing.T) {
	t.Parallel()
	cfg := Default()
	cfg.Mode = ModeUDP
	cfg.UDP.Port = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for udp mode with port 0")
	}
}
