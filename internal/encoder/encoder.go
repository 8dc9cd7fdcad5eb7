// Package encoder drives the external encoder subprocess: command
// construction, progress parsing, remux, and output validation (spec §4.2,
// C2).
package encoder

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/markperdomo/videosentinel/internal/config"
	vserrors "github.com/markperdomo/videosentinel/internal/errors"
	"github.com/markperdomo/videosentinel/internal/ffmpeg"
	"github.com/markperdomo/videosentinel/internal/probe"
	"github.com/markperdomo/videosentinel/internal/util"
)

const (
	pixelFormat10Bit420 = "yuv420p10le"
	pixelFormat8Bit420  = "yuv420p"
	hevcPreviewTag      = "hvc1"

	minValidOutputBytes = 1024
	durationToleranceSecs = 2.0

	stderrTailBytes = 4096
)

// Params describes one encode invocation (derived from an EncodeJob plus
// the MediaInfo that drove classification).
type Params struct {
	InputPath  string
	OutputPath string

	TargetCodec config.Codec
	CRF         uint8

	Downscale     bool
	SourceWidth   uint32
	SourceHeight  uint32
	SourceIs8Bit  bool
	SourceDuration float64

	Recover  bool
	HasAudio bool
}

func FFmpegCodecName(c config.Codec) string {
	switch c {
	case config.CodecHEVC:
		return "libx265"
	case config.CodecAV1:
		return "libsvtav1"
	case config.CodecH264:
		return "libx264"
	default:
		panic(fmt.Sprintf("encoder: no ffmpeg codec mapping for target codec %q", c))
	}
}

// PresetFor returns the encoder's -preset token. SVT-AV1 takes a numeric
// preset (0 slowest/best - 13 fastest); x264/x265 take named presets.
func PresetFor(c config.Codec) string {
	if c == config.CodecAV1 {
		return "6"
	}
	return "medium"
}

func PixelFormatFor(p Params) string {
	if p.SourceIs8Bit && !p.Recover {
		return pixelFormat8Bit420
	}
	return pixelFormat10Bit420
}

// scaleFilter builds a downscale filter that preserves aspect ratio and
// rounds both dimensions to even integers (spec §4.2), or "" when no
// downscale is needed.
func scaleFilter(p Params) string {
	if !p.Downscale {
		return ""
	}
	if p.SourceWidth <= 1920 && p.SourceHeight <= 1080 {
		return ""
	}
	return "scale=w='min(1920,iw)':h='min(1080,ih)':force_original_aspect_ratio=decrease," +
		"scale=trunc(iw/2)*2:trunc(ih/2)*2"
}

// recoveryInputFlags returns input-side flags that tell the decoder to
// tolerate a damaged source (spec §4.2 Recovery).
func recoveryInputFlags() []string {
	return []string{
		"-err_detect", "ignore_err",
		"-fflags", "+genpts+discardcorrupt",
		"-ignore_unknown",
	}
}

// recoveryOutputFlags enlarges the mux queue and relaxes the output error
// rate so a damaged decode doesn't abort the whole mux.
func recoveryOutputFlags() []string {
	return []string{"-max_muxing_queue_size", "9999", "-max_error_rate", "1.0"}
}

// BuildCommand assembles the argument list for the external encoder tool
// per the §6 contract: `encoder -i INPUT ... -c:v CODEC -preset PRESET
// -crf CRF -pix_fmt PIXFMT -tag:v TAG -movflags faststart -c:a aac OUTPUT`.
// `-tag:v` is only added for HEVC targets, a source without audio gets
// `-an` instead of `-c:a aac`, and recovery mode adds its input flags
// before `-i` and its output flags before OUTPUT.
func BuildCommand(p Params) []string {
	var args []string

	if p.Recover {
		args = append(args, recoveryInputFlags()...)
	}
	args = append(args, "-i", p.InputPath)

	chain := ffmpeg.NewVideoFilterChain()
	chain.AddFilter(scaleFilter(p))
	if !chain.IsEmpty() {
		args = append(args, "-vf", chain.Build())
	}

	args = append(args,
		"-c:v", FFmpegCodecName(p.TargetCodec),
		"-preset", PresetFor(p.TargetCodec),
		"-crf", strconv.Itoa(int(p.CRF)),
		"-pix_fmt", PixelFormatFor(p),
	)

	if p.TargetCodec == config.CodecHEVC {
		args = append(args, "-tag:v", hevcPreviewTag)
	}

	args = append(args, "-movflags", "faststart")

	if p.HasAudio {
		args = append(args, "-c:a", "aac")
	} else {
		args = append(args, "-an")
	}

	if p.Recover {
		args = append(args, recoveryOutputFlags()...)
	}

	args = append(args, p.OutputPath)
	return args
}

// Result is the outcome of a successful encode.
type Result struct {
	StderrTail string
}

// Encode runs the external encoder synchronously, streaming progress
// updates to onProgress. On failure the partial output is deleted, per the
// §6 contract ("partial output may exist and must be deleted by the
// caller").
func Encode(ctx context.Context, p Params, onProgress ffmpeg.ProgressCallback) (*Result, error) {
	args := BuildCommand(p)
	cmd := exec.CommandContext(ctx, "encoder", args...)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, vserrors.NewEncodeError(p.InputPath, -1, err.Error())
	}
	if err := cmd.Start(); err != nil {
		return nil, vserrors.NewEncodeError(p.InputPath, -1, err.Error())
	}

	captured := ffmpeg.ParseStderr(stderr, p.SourceDuration, onProgress)

	waitErr := cmd.Wait()
	if waitErr != nil {
		_ = os.Remove(p.OutputPath)
		if ctx.Err() != nil {
			return nil, vserrors.NewCancelledError()
		}
		return nil, vserrors.NewEncodeError(p.InputPath, exitCodeOf(waitErr), tail(captured, stderrTailBytes))
	}

	return &Result{StderrTail: tail(captured, stderrTailBytes)}, nil
}

// Remux re-containers source into dest via stream copy, optionally fixing
// the HEVC codec tag, without touching pixel data (spec §4.2).
func Remux(ctx context.Context, sourcePath, destPath string, fixHEVCTag bool) error {
	args := []string{"-i", sourcePath, "-c", "copy"}
	if fixHEVCTag {
		args = append(args, "-tag:v", hevcPreviewTag)
	}
	args = append(args, "-movflags", "faststart", destPath)

	cmd := exec.CommandContext(ctx, "encoder", args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		_ = os.Remove(destPath)
		if ctx.Err() != nil {
			return vserrors.NewCancelledError()
		}
		return vserrors.NewEncodeError(sourcePath, exitCodeOf(err), tail(stderr.String(), stderrTailBytes))
	}
	return nil
}

// Validate implements the §4.2 validation checks: existence, minimum size,
// a successful probe with at least one video stream, and (unless lenient)
// duration within tolerance of the source.
func Validate(path string, expectedDuration *float64, lenient bool) error {
	stat, err := os.Stat(path)
	if err != nil {
		return vserrors.NewValidationError(path, "output does not exist")
	}
	if stat.Size() <= minValidOutputBytes {
		return vserrors.NewValidationError(path, fmt.Sprintf("output is %d bytes, want > %d", stat.Size(), minValidOutputBytes))
	}

	info, err := probe.Probe(path)
	if err != nil {
		return vserrors.NewValidationError(path, "probe failed: "+err.Error())
	}
	if info.ProbeInvalid() {
		return vserrors.NewValidationError(path, "no video stream with non-zero dimensions")
	}

	if expectedDuration != nil && !lenient {
		diff := math.Abs(info.DurationSecs - *expectedDuration)
		if diff > durationToleranceSecs {
			return vserrors.NewValidationError(path, fmt.Sprintf(
				"duration %.1fs differs from source %.1fs by more than %.0fs",
				info.DurationSecs, *expectedDuration, durationToleranceSecs))
		}
	}

	return nil
}

// FindExistingOutput looks for a valid sibling intermediate
// (`<stem>_reencoded.mp4` / `<stem>_quicklook.mp4`) that can stand in for a
// fresh encode (spec §4.4 resume-probe). An invalid sibling is removed.
func FindExistingOutput(sourcePath string, suffixes []string) (string, bool) {
	for _, suffix := range suffixes {
		candidate := util.IntermediatePath(sourcePath, suffix)
		if _, err := os.Stat(candidate); err != nil {
			continue
		}
		if err := Validate(candidate, nil, true); err == nil {
			return candidate, true
		}
		_ = os.Remove(candidate)
	}
	return "", false
}

func exitCodeOf(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
