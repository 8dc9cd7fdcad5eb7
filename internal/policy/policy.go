// Package policy maps probed media statistics to a compliance verdict and a
// recommended CRF/target codec, per spec §4.3 (C3).
package policy

import (
	"strings"

	"github.com/markperdomo/videosentinel/internal/config"
	"github.com/markperdomo/videosentinel/internal/probe"
)

// VerdictKind is one of the four compliance outcomes the spec's data model
// (§3) names.
type VerdictKind int

const (
	// Compliant means no work is needed.
	Compliant VerdictKind = iota
	// NeedsRemux means a container/tag change suffices; no pixel data change.
	NeedsRemux
	// NeedsFullFix means pixel format forces a full re-encode for preview
	// compatibility (a §4.4 NEEDS_REENCODE job with fix-preview-only set).
	NeedsFullFix
	// NeedsReencode means codec or container is outside the modern set.
	NeedsReencode
)

func (k VerdictKind) String() string {
	switch k {
	case Compliant:
		return "compliant"
	case NeedsRemux:
		return "needs_remux"
	case NeedsFullFix:
		return "needs_full_fix"
	case NeedsReencode:
		return "needs_reencode"
	default:
		return "unknown"
	}
}

// Verdict is C3's output for a single file (spec §3 ComplianceVerdict).
type Verdict struct {
	Kind VerdictKind

	// TargetCodec and CRF are populated when Kind requires an encode
	// (NeedsFullFix or NeedsReencode).
	TargetCodec config.Codec
	CRF         uint8
}

// modernContainers and modernCodecs are the spec §4.3 compliance sets.
var modernContainers = map[string]bool{"mp4": true, "mkv": true, "webm": true}

var modernCodecs = map[string]bool{
	string(config.CodecHEVC): true,
	string(config.CodecAV1):  true,
	string(config.CodecVP9):  true,
	string(config.CodecH264): true,
}

// acceptablePixelFormats are the 4:2:0 chroma families preview systems
// accept without a full re-encode.
var acceptablePixelFormats = map[string]bool{
	"yuv420p":    true,
	"yuvj420p":   true,
	"yuv420p10le": true,
	"yuv420p10be": true,
	"nv12":       true,
	"p010le":     true,
}

// hevcPreviewTag is the four-char tag preview systems require for HEVC in
// an mp4 container; anything else forces a remux (spec §4.2/§4.3).
const hevcPreviewTag = "hvc1"

// Classify maps info to a Verdict. target names the codec to re-encode to
// when info needs work and is itself non-compliant in codec (ignored when
// info is already in an acceptable codec and only needs a remux or pixel
// fix — the codec is then preserved).
func Classify(cfg *config.Config, info *probe.MediaInfo, target config.Codec) Verdict {
	codec := strings.ToLower(info.Codec)
	container := strings.ToLower(info.Container)

	if !modernCodecs[codec] || !modernContainers[container] {
		return reencodeVerdict(cfg, info, target)
	}

	if !acceptablePixelFormat(codec, info.PixelFormat) {
		return reencodeVerdict(cfg, info, config.Codec(codec))
	}

	if needsRemux(codec, container, info.CodecTag) {
		return Verdict{Kind: NeedsRemux}
	}

	return Verdict{Kind: Compliant}
}

func acceptablePixelFormat(codec, pixFmt string) bool {
	if codec == string(config.CodecVP9) {
		// VP9 is never a re-encode target (spec §9); any pixel format it
		// already has is accepted as-is once codec/container are modern.
		return true
	}
	return acceptablePixelFormats[strings.ToLower(pixFmt)]
}

func needsRemux(codec, container, tag string) bool {
	if container != "mp4" {
		return true
	}
	if codec == string(config.CodecHEVC) && strings.ToLower(tag) != hevcPreviewTag {
		return true
	}
	return false
}

func reencodeVerdict(cfg *config.Config, info *probe.MediaInfo, target config.Codec) Verdict {
	kind := NeedsReencode
	if modernCodecs[strings.ToLower(info.Codec)] && modernContainers[strings.ToLower(info.Container)] {
		// Codec/container were already modern; only the pixel format forced
		// this path, so it's a full preview-fix, not a codec migration.
		kind = NeedsFullFix
		target = config.Codec(strings.ToLower(info.Codec))
	}

	if target == config.CodecVP9 {
		// VP9 is never a re-encode target; callers must route VP9 sources
		// needing a pixel-format fix through the fix-preview remux path
		// instead of reaching this branch. Treat as a programmer error.
		panic("policy: VP9 is not a valid re-encode target")
	}

	bpp, known := info.BitsPerPixel()
	return Verdict{
		Kind:        kind,
		TargetCodec: target,
		CRF:         cfg.CRFForBPP(target, bpp, known),
	}
}
