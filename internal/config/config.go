// Package config provides configuration types and defaults for videosentinel.
package config

import "fmt"

// Default constants for the network pipeline, duplicate detection and
// duplicate ranking.
const (
	// DefaultBufferSize is the depth of the in-flight staging buffer shared
	// by the three network-pipeline workers (spec §4.5).
	DefaultBufferSize int = 4
	// MinBufferSize and MaxBufferSize bound BufferSize.
	MinBufferSize int = 2
	MaxBufferSize int = 5

	// DefaultMaxTempSizeBytes bounds total local staging size (50 GiB, §4.5/§8).
	DefaultMaxTempSizeBytes uint64 = 50 * 1024 * 1024 * 1024

	// DefaultDuplicateThreshold is the mean Hamming distance at or below which two
	// videos are considered perceptually duplicate (spec §4.7/§4.8).
	DefaultDuplicateThreshold int = 15

	// DefaultHashFrameCount is the number of evenly-spaced frames sampled per
	// video for perceptual hashing (spec §4.7).
	DefaultHashFrameCount int = 10

	// DefaultPreviewCompatibilityBonus is the duplicate-ranking bonus for a
	// file already in a preview-compatible HEVC/mp4 form (spec §4.8, §9).
	DefaultPreviewCompatibilityBonus int = 5000

	// SuffixBonus is the duplicate-ranking bonus for filenames carrying a
	// _reencoded/_quicklook suffix (spec §4.8).
	SuffixBonus int = 50000
)

// CRF table rows are indexed by bits-per-pixel tier (spec §4.3).
// Row order matches the spec table, from highest to lowest bpp tier.
type crfRow struct {
	hevc, av1, h264 uint8
}

var defaultCRFTable = []crfRow{
	{hevc: 18, av1: 20, h264: 16}, // bpp > 0.25
	{hevc: 20, av1: 24, h264: 18}, // 0.15..0.25
	{hevc: 22, av1: 28, h264: 20}, // 0.10..0.15
	{hevc: 23, av1: 30, h264: 21}, // 0.07..0.10
	{hevc: 25, av1: 30, h264: 23}, // 0.05..0.07
	{hevc: 28, av1: 32, h264: 26}, // < 0.05 or unknown
}

// Config holds all configuration for a videosentinel batch run.
type Config struct {
	// Input/output paths
	InputDir string
	LogDir   string
	TempDir  string // Local staging directory; defaults to system temp + "/videosentinel"

	// Quality policy (C3): manual CRF table override, row-major as above.
	// Nil means use defaultCRFTable.
	CRFTable []crfRow

	// Batch controller (C4) knobs
	MaxFiles         int    // 0 means unlimited
	OnlyNonCompliant bool   // restrict the batch to files failing the compliance rule
	ReplaceOriginal  bool   // atomically replace the source after validation
	Recover          bool   // recovery mode: lenient duration validation, permissive decode
	Downscale        bool   // downscale anything wider than 1920 or taller than 1080
	TargetCodec      Codec  // codec to migrate non-compliant sources to; defaults to HEVC

	// Network pipeline (C5) knobs
	BufferSize  int    // depth of the shared in-flight staging buffer, 2..5
	MaxTempSize uint64 // bytes of local staging space the pipeline may use

	// Duplicate detection (C7/C8) knobs
	DuplicateThreshold        int // max mean Hamming distance considered a duplicate
	HashFrameCount            int // frames sampled per video
	PreviewCompatibilityBonus int // duplicate-ranking bonus, spec §9

	// Debug options
	Verbose bool
	// NoLog disables the operator-facing run log file (spec ambient logging).
	NoLog bool
}

// NewConfig creates a new Config with default values.
func NewConfig(inputDir, logDir, tempDir string) *Config {
	return &Config{
		InputDir:                  inputDir,
		LogDir:                    logDir,
		TempDir:                   tempDir,
		BufferSize:                DefaultBufferSize,
		MaxTempSize:               DefaultMaxTempSizeBytes,
		TargetCodec:               CodecHEVC,
		DuplicateThreshold:        DefaultDuplicateThreshold,
		HashFrameCount:            DefaultHashFrameCount,
		PreviewCompatibilityBonus: DefaultPreviewCompatibilityBonus,
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.BufferSize < MinBufferSize || c.BufferSize > MaxBufferSize {
		return fmt.Errorf("%w: buffer_size must be %d-%d, got %d", ErrInvalidBufferSize, MinBufferSize, MaxBufferSize, c.BufferSize)
	}

	if c.MaxFiles < 0 {
		return fmt.Errorf("%w: max_files must be non-negative, got %d", ErrInvalidMaxFiles, c.MaxFiles)
	}

	if c.DuplicateThreshold < 0 {
		return fmt.Errorf("%w: duplicate_threshold must be non-negative, got %d", ErrInvalidThreshold, c.DuplicateThreshold)
	}

	if c.HashFrameCount < 1 {
		return fmt.Errorf("%w: hash_frame_count must be at least 1, got %d", ErrInvalidThreshold, c.HashFrameCount)
	}

	if c.CRFTable != nil {
		for _, row := range c.CRFTable {
			if row.hevc > 63 || row.av1 > 63 || row.h264 > 63 {
				return fmt.Errorf("%w: CRF values must be 0-63", ErrInvalidCRF)
			}
		}
	}

	return nil
}

// crfTable returns the active CRF table, falling back to the built-in
// defaults when no override has been configured.
func (c *Config) crfTable() []crfRow {
	if c.CRFTable != nil {
		return c.CRFTable
	}
	return defaultCRFTable
}

// bppTier maps a bits-per-pixel value to a row index in the CRF table,
// matching the spec §4.3 table from highest to lowest bpp.
func bppTier(bpp float64, known bool) int {
	if !known {
		return len(defaultCRFTable) - 1
	}
	switch {
	case bpp > 0.25:
		return 0
	case bpp > 0.15:
		return 1
	case bpp > 0.10:
		return 2
	case bpp > 0.07:
		return 3
	case bpp > 0.05:
		return 4
	default:
		return 5
	}
}

// Codec is a normalized, lower-case codec name as reported by the probe tool
// (spec §3, §4.3).
type Codec string

const (
	CodecHEVC Codec = "hevc"
	CodecAV1  Codec = "av1"
	CodecVP9  Codec = "vp9"
	CodecH264 Codec = "h264"
)

// CRFForBPP returns the CRF the quality policy recommends for re-encoding to
// target, given a bits-per-pixel value. known is false when bpp could not be
// computed (missing bitrate, width, height, or fps); the lowest-quality tier
// is selected in that case, per spec §4.3.
//
// CodecVP9 is never a re-encode target (spec §9 Open Question decision): a
// VP9 source that needs fixing is remuxed or classified compliant, never
// routed through the CRF table. Calling CRFForBPP with CodecVP9 is a
// programmer error.
func (c *Config) CRFForBPP(target Codec, bpp float64, known bool) uint8 {
	row := c.crfTable()[bppTier(bpp, known)]
	switch target {
	case CodecHEVC:
		return row.hevc
	case CodecAV1:
		return row.av1
	case CodecH264:
		return row.h264
	default:
		panic(fmt.Sprintf("config: CRF requested for non-reencode-target codec %q", target))
	}
}
