package videosentinel

import (
	"testing"

	"github.com/markperdomo/videosentinel/internal/config"
)

func TestNew_AppliesOptionsAndValidates(t *testing.T) {
	engine, err := New(
		WithMaxFiles(10),
		WithOnlyNonCompliant(),
		WithReplaceOriginal(),
		WithRecover(),
		WithDownscale(),
		WithTargetCodec(config.CodecAV1),
		WithBufferSize(3),
		WithMaxTempSize(1024),
		WithDuplicateThreshold(5),
		WithVerbose(),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	cfg := engine.config
	if cfg.MaxFiles != 10 {
		t.Errorf("MaxFiles = %d, want 10", cfg.MaxFiles)
	}
	if !cfg.OnlyNonCompliant || !cfg.ReplaceOriginal || !cfg.Recover || !cfg.Downscale || !cfg.Verbose {
		t.Error("expected all boolean options to be applied")
	}
	if cfg.TargetCodec != config.CodecAV1 {
		t.Errorf("TargetCodec = %q, want av1", cfg.TargetCodec)
	}
	if cfg.BufferSize != 3 {
		t.Errorf("BufferSize = %d, want 3", cfg.BufferSize)
	}
	if cfg.MaxTempSize != 1024 {
		t.Errorf("MaxTempSize = %d, want 1024", cfg.MaxTempSize)
	}
	if cfg.DuplicateThreshold != 5 {
		t.Errorf("DuplicateThreshold = %d, want 5", cfg.DuplicateThreshold)
	}
}

func TestNew_RejectsInvalidBufferSize(t *testing.T) {
	_, err := New(WithBufferSize(99))
	if err == nil {
		t.Fatal("expected validation error for out-of-range buffer size")
	}
}

func TestDedupeByFilename_EmptyDirectoryErrors(t *testing.T) {
	engine, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	dir := t.TempDir()
	if _, err := engine.DedupeByFilename(dir); err == nil {
		t.Error("expected an error discovering an empty directory")
	}
}
