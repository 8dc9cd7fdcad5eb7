// Package config provides configuration types and defaults for videosentinel.
package config

import "errors"

// Sentinel errors for configuration validation.
var (
	// ErrInvalidCRF indicates a CRF value outside the valid 0-63 range.
	ErrInvalidCRF = errors.New("CRF value out of range")

	// ErrInvalidBufferSize indicates buffer_size outside the valid 2-5 range.
	ErrInvalidBufferSize = errors.New("buffer size out of range")

	// ErrInvalidMaxFiles indicates a negative max_files value.
	ErrInvalidMaxFiles = errors.New("max files out of range")

	// ErrInvalidThreshold indicates an invalid duplicate-detection threshold
	// or hash frame count.
	ErrInvalidThreshold = errors.New("threshold out of range")
)
