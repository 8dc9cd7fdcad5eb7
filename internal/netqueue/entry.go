// Package netqueue implements the network pipeline's durable work queue
// and its three concurrent workers (spec §4.5, C5).
package netqueue

import (
	"time"

	"github.com/markperdomo/videosentinel/internal/config"
)

// State is one of the QueueEntry lifecycle states named in spec §3.
type State string

const (
	StatePending     State = "PENDING"
	StateDownloading State = "DOWNLOADING"
	StateLocal       State = "LOCAL"
	StateEncoding    State = "ENCODING"
	StateEncoded     State = "ENCODED"
	StateUploading   State = "UPLOADING"
	StateComplete    State = "COMPLETE"
	StateFailed      State = "FAILED"
)

// active reports whether a state counts against buffer_size (spec §4.5:
// "bounds in-flight entries excluding COMPLETE/FAILED/PENDING").
func (s State) active() bool {
	switch s {
	case StateLocal, StateEncoding, StateEncoded, StateUploading:
		return true
	default:
		return false
	}
}

func (s State) terminal() bool {
	return s == StateComplete || s == StateFailed
}

// QueueEntry is C5's durable per-file record (spec §3).
type QueueEntry struct {
	ID         string `json:"id"`
	SourcePath string `json:"source_path"`

	LocalInputPath  string `json:"local_input_path"`
	LocalOutputPath string `json:"local_output_path"`
	FinalRemotePath string `json:"final_remote_path"`

	TargetCodec     config.Codec `json:"target_codec"`
	CRF             uint8        `json:"crf"`
	Recover         bool         `json:"recover"`
	Downscale       bool         `json:"downscale"`
	FixPreviewOnly  bool         `json:"fix_preview_only"`
	ReplaceOriginal bool         `json:"replace_original"`

	State State  `json:"state"`
	Error string `json:"error,omitempty"`

	LocalInputBytes  int64 `json:"local_input_bytes"`
	LocalOutputBytes int64 `json:"local_output_bytes"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// stagedBytes is the on-disk footprint this entry currently contributes
// to bounded staging (spec §8 invariant 4).
func (e *QueueEntry) stagedBytes() int64 {
	var total int64
	switch e.State {
	case StateLocal, StateEncoding:
		total += e.LocalInputBytes
	case StateEncoded, StateUploading:
		total += e.LocalInputBytes + e.LocalOutputBytes
	}
	return total
}
