package config

import (
	"errors"
	"testing"
)

func TestNewConfig(t *testing.T) {
	cfg := NewConfig("/input", "/log", "/tmp/videosentinel")

	if cfg.InputDir != "/input" {
		t.Errorf("expected InputDir=/input, got %s", cfg.InputDir)
	}
	if cfg.LogDir != "/log" {
		t.Errorf("expected LogDir=/log, got %s", cfg.LogDir)
	}
	if cfg.TempDir != "/tmp/videosentinel" {
		t.Errorf("expected TempDir=/tmp/videosentinel, got %s", cfg.TempDir)
	}

	if cfg.BufferSize != DefaultBufferSize {
		t.Errorf("expected BufferSize=%d, got %d", DefaultBufferSize, cfg.BufferSize)
	}
	if cfg.MaxTempSize != DefaultMaxTempSizeBytes {
		t.Errorf("expected MaxTempSize=%d, got %d", DefaultMaxTempSizeBytes, cfg.MaxTempSize)
	}
	if cfg.DuplicateThreshold != DefaultDuplicateThreshold {
		t.Errorf("expected DuplicateThreshold=%d, got %d", DefaultDuplicateThreshold, cfg.DuplicateThreshold)
	}
	if cfg.PreviewCompatibilityBonus != DefaultPreviewCompatibilityBonus {
		t.Errorf("expected PreviewCompatibilityBonus=%d, got %d", DefaultPreviewCompatibilityBonus, cfg.PreviewCompatibilityBonus)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name         string
		modify       func(*Config)
		wantErr      bool
		wantSentinel error
	}{
		{
			name:    "default config is valid",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:         "buffer_size 1 is invalid",
			modify:       func(c *Config) { c.BufferSize = 1 },
			wantErr:      true,
			wantSentinel: ErrInvalidBufferSize,
		},
		{
			name:         "buffer_size 6 is invalid",
			modify:       func(c *Config) { c.BufferSize = 6 },
			wantErr:      true,
			wantSentinel: ErrInvalidBufferSize,
		},
		{
			name:    "buffer_size 2 is valid",
			modify:  func(c *Config) { c.BufferSize = 2 },
			wantErr: false,
		},
		{
			name:    "buffer_size 5 is valid",
			modify:  func(c *Config) { c.BufferSize = 5 },
			wantErr: false,
		},
		{
			name:         "negative max_files is invalid",
			modify:       func(c *Config) { c.MaxFiles = -1 },
			wantErr:      true,
			wantSentinel: ErrInvalidMaxFiles,
		},
		{
			name:    "zero max_files (unlimited) is valid",
			modify:  func(c *Config) { c.MaxFiles = 0 },
			wantErr: false,
		},
		{
			name:         "negative duplicate_threshold is invalid",
			modify:       func(c *Config) { c.DuplicateThreshold = -1 },
			wantErr:      true,
			wantSentinel: ErrInvalidThreshold,
		},
		{
			name:         "zero hash_frame_count is invalid",
			modify:       func(c *Config) { c.HashFrameCount = 0 },
			wantErr:      true,
			wantSentinel: ErrInvalidThreshold,
		},
		{
			name: "manual CRF override out of range is invalid",
			modify: func(c *Config) {
				c.CRFTable = []crfRow{{hevc: 64, av1: 20, h264: 16}}
			},
			wantErr:      true,
			wantSentinel: ErrInvalidCRF,
		},
		{
			name: "manual CRF override in range is valid",
			modify: func(c *Config) {
				c.CRFTable = []crfRow{{hevc: 18, av1: 20, h264: 16}}
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig("/input", "/log", "/tmp")
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantSentinel != nil && !errors.Is(err, tt.wantSentinel) {
				t.Errorf("Validate() error = %v, want sentinel %v", err, tt.wantSentinel)
			}
		})
	}
}

func TestCRFForBPP(t *testing.T) {
	cfg := NewConfig("/input", "/log", "/tmp")

	tests := []struct {
		name     string
		target   Codec
		bpp      float64
		known    bool
		expected uint8
	}{
		{"hevc high bitrate", CodecHEVC, 0.30, true, 18},
		{"hevc mid-high tier", CodecHEVC, 0.20, true, 20},
		{"hevc matches S1 scenario", CodecHEVC, 1_000_000.0 / (640 * 480 * 30), true, 22},
		{"hevc low tier", CodecHEVC, 0.06, true, 25},
		{"hevc unknown bpp picks lowest tier", CodecHEVC, 0, false, 28},
		{"av1 high bitrate", CodecAV1, 0.30, true, 20},
		{"av1 unknown bpp", CodecAV1, 0, false, 32},
		{"h264 high bitrate", CodecH264, 0.30, true, 16},
		{"h264 unknown bpp", CodecH264, 0, false, 26},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cfg.CRFForBPP(tt.target, tt.bpp, tt.known)
			if got != tt.expected {
				t.Errorf("CRFForBPP(%v, %v, %v) = %d, want %d", tt.target, tt.bpp, tt.known, got, tt.expected)
			}
		})
	}
}

func TestCRFForBPPPanicsOnVP9(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected CRFForBPP(CodecVP9, ...) to panic")
		}
	}()
	cfg := NewConfig("/input", "/log", "/tmp")
	cfg.CRFForBPP(CodecVP9, 0.2, true)
}
