// Package batch orchestrates a local batch run: ordering, resume
// detection, the per-file state machine, and atomic replacement (spec
// §4.4, C4).
package batch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/markperdomo/videosentinel/internal/cache"
	"github.com/markperdomo/videosentinel/internal/config"
	"github.com/markperdomo/videosentinel/internal/discovery"
	"github.com/markperdomo/videosentinel/internal/encoder"
	vserrors "github.com/markperdomo/videosentinel/internal/errors"
	"github.com/markperdomo/videosentinel/internal/ffmpeg"
	"github.com/markperdomo/videosentinel/internal/logging"
	"github.com/markperdomo/videosentinel/internal/policy"
	"github.com/markperdomo/videosentinel/internal/probe"
	"github.com/markperdomo/videosentinel/internal/reporter"
	"github.com/markperdomo/videosentinel/internal/shutdown"
	"github.com/markperdomo/videosentinel/internal/util"
)

// replaceRetries and replaceRetryDelay bound the atomic-replace retry loop
// (spec §4.4: "both operations must be retried on transient filesystem
// errors").
const (
	replaceRetries    = 3
	replaceRetryDelay = 200 * time.Millisecond
)

// State is a position in the spec §4.4 per-file lifecycle.
type State int

const (
	StateDiscovered State = iota
	StateProbed
	StateClassified
	StateCompliant
	StateNeedsRemux
	StateRemuxed
	StateNeedsReencode
	StateExistingValid
	StateEncoding
	StateValidated
	StateReplaced
	StateDone
	StateFailed
	StateSkipped
)

func (s State) String() string {
	switch s {
	case StateDiscovered:
		return "DISCOVERED"
	case StateProbed:
		return "PROBED"
	case StateClassified:
		return "CLASSIFIED"
	case StateCompliant:
		return "COMPLIANT"
	case StateNeedsRemux:
		return "NEEDS_REMUX"
	case StateRemuxed:
		return "REMUXED"
	case StateNeedsReencode:
		return "NEEDS_REENCODE"
	case StateExistingValid:
		return "EXISTING_VALID"
	case StateEncoding:
		return "ENCODING"
	case StateValidated:
		return "VALIDATED"
	case StateReplaced:
		return "REPLACED"
	case StateDone:
		return "DONE"
	case StateFailed:
		return "FAILED"
	case StateSkipped:
		return "SKIPPED"
	default:
		return "UNKNOWN"
	}
}

// FileRecord is C4's per-file work item (spec §3 EncodeJob, adapted for a
// local, non-queued run).
type FileRecord struct {
	SourcePath       string
	IntermediatePath string
	FinalPath        string

	TargetCodec config.Codec
	CRF         uint8

	Recover         bool
	Downscale       bool
	FixPreviewOnly  bool
	ReplaceOriginal bool

	State State
	Err   error
}

// Result is the outcome of one Controller.Run call.
type Result struct {
	Records []*FileRecord
}

// Controller runs a local batch against Config.InputDir.
type Controller struct {
	Config   *config.Config
	Shutdown *shutdown.Coordinator
	Reporter reporter.Reporter

	// Cache, when set, serves and populates MediaInfo lookups from a disk
	// cache instead of re-probing every file on every run (spec §4.1). A
	// nil Cache falls back to probing directly.
	Cache *cache.CachingProber

	// Logger, when set, mirrors discovery and per-file outcomes into the
	// operator-facing run log alongside whatever Reporter prints to the
	// terminal or emits as NDJSON. A nil Logger disables file logging.
	Logger *logging.Logger
}

// New builds a Controller. A nil coordinator or reporter is replaced with
// a harmless default (never-stopped, discard-everything respectively).
func New(cfg *config.Config, coord *shutdown.Coordinator, rep reporter.Reporter) *Controller {
	if coord == nil {
		coord = shutdown.New()
	}
	if rep == nil {
		rep = reporter.NullReporter{}
	}
	return &Controller{Config: cfg, Shutdown: coord, Reporter: rep}
}

// probeFile returns MediaInfo for path, consulting Cache when set.
func (c *Controller) probeFile(ctx context.Context, path string) (*probe.MediaInfo, error) {
	if c.Cache != nil {
		return c.Cache.Probe(ctx, path)
	}
	return probe.Probe(path)
}

// markWritten excludes path from cache lookups for the rest of this run,
// since its content just changed on disk.
func (c *Controller) markWritten(path string) {
	if c.Cache != nil {
		c.Cache.MarkWritten(path)
	}
}

var _ discovery.DiscoveryLogger = (*logging.Logger)(nil)

// discoverFiles finds video files under Config.InputDir, routing through
// discovery.FindVideoFilesWithLogging so the run log records what was
// found when a Logger is set.
func (c *Controller) discoverFiles() ([]string, error) {
	if c.Logger == nil {
		return discovery.FindVideoFiles(c.Config.InputDir)
	}
	result, err := discovery.FindVideoFilesWithLogging(c.Config.InputDir, c.Logger)
	if err != nil {
		return nil, err
	}
	return result.Files, nil
}

// Run discovers, selects, and processes a batch, returning one FileRecord
// per selected file. Discovery/selection errors are fatal to the batch;
// per-file errors are recorded on that file's FileRecord and the batch
// continues (spec §7).
func (c *Controller) Run(ctx context.Context) (*Result, error) {
	info := util.GetSystemInfo()
	c.Reporter.Hardware(reporter.HardwareSummary{Hostname: info.Hostname})

	files, err := c.discoverFiles()
	if err != nil {
		return nil, err
	}

	selected, err := c.selectFiles(files)
	if err != nil {
		return nil, err
	}

	c.Reporter.BatchStarted(reporter.BatchStartInfo{
		TotalFiles: len(selected),
		FileList:   selected,
		OutputDir:  c.Config.InputDir,
	})

	result := &Result{Records: make([]*FileRecord, 0, len(selected))}
	for i, path := range selected {
		if c.Shutdown.IsStopped() || ctx.Err() != nil {
			result.Records = append(result.Records, &FileRecord{SourcePath: path, State: StateSkipped})
			continue
		}

		c.Reporter.FileProgress(reporter.FileProgressContext{CurrentFile: i + 1, TotalFiles: len(selected)})
		rec := c.processFile(ctx, path)
		result.Records = append(result.Records, rec)

		if rec.State == StateFailed {
			c.Reporter.Error(reporter.ReporterError{
				Title:   "file failed",
				Message: rec.Err.Error(),
				Context: path,
			})
			c.Logger.Error("%s: %v", path, rec.Err)
		} else {
			c.Logger.Debug("%s: %s", path, rec.State)
		}
	}

	summary := summarize(result)
	c.Reporter.BatchComplete(summary)
	c.Reporter.OperationComplete(fmt.Sprintf("%d of %d files processed", summary.SuccessfulCount, summary.TotalFiles))
	c.Logger.Info("batch finished: %d of %d files succeeded", summary.SuccessfulCount, summary.TotalFiles)
	return result, nil
}

// selectFiles applies max_files and the "only non-compliant" probing rule
// (spec §4.4). When only_non_compliant is set alongside max_files, probing
// continues until 2×max_files non-compliant files are found (or the
// directory is exhausted), and the first max_files of those are kept.
// Without max_files, only_non_compliant probes every file and keeps all the
// non-compliant ones.
func (c *Controller) selectFiles(files []string) ([]string, error) {
	if !c.Config.OnlyNonCompliant {
		if c.Config.MaxFiles > 0 && len(files) > c.Config.MaxFiles {
			return files[:c.Config.MaxFiles], nil
		}
		return files, nil
	}

	target := 2 * c.Config.MaxFiles
	nonCompliant := make([]string, 0, target)
	for _, path := range files {
		if c.Shutdown.IsStopped() {
			break
		}
		info, err := c.probeFile(context.Background(), path)
		if err != nil || info.ProbeInvalid() {
			continue
		}
		if policy.Classify(c.Config, info, c.targetCodec()).Kind != policy.Compliant {
			nonCompliant = append(nonCompliant, path)
		}
		if target > 0 && len(nonCompliant) >= target {
			break
		}
	}

	if c.Config.MaxFiles > 0 && len(nonCompliant) > c.Config.MaxFiles {
		nonCompliant = nonCompliant[:c.Config.MaxFiles]
	}
	return nonCompliant, nil
}

func (c *Controller) targetCodec() config.Codec {
	if c.Config.TargetCodec != "" {
		return c.Config.TargetCodec
	}
	return config.CodecHEVC
}

// processFile drives a single file through the §4.4 state machine.
func (c *Controller) processFile(ctx context.Context, path string) *FileRecord {
	rec := &FileRecord{
		SourcePath:      path,
		TargetCodec:     c.targetCodec(),
		Recover:         c.Config.Recover,
		Downscale:       c.Config.Downscale,
		ReplaceOriginal: c.Config.ReplaceOriginal,
		State:           StateDiscovered,
	}

	if !util.FileExists(path) {
		return c.completedReplacementOrFail(rec)
	}

	if existing, ok := encoder.FindExistingOutput(path, util.IntermediateSuffixes); ok {
		rec.IntermediatePath = existing
		rec.State = StateExistingValid
		return c.finishReplaceOrDone(rec)
	}

	info, err := c.probeFile(ctx, path)
	if err != nil {
		rec.State = StateFailed
		rec.Err = err
		return rec
	}
	if info.ProbeInvalid() {
		rec.State = StateFailed
		rec.Err = vserrors.NewValidationError(path, "probe-invalid: zero dimensions or non-positive duration")
		return rec
	}
	rec.State = StateProbed
	c.reportInitialization(rec, info)

	verdict := policy.Classify(c.Config, info, rec.TargetCodec)
	rec.State = StateClassified
	c.Reporter.Verbose(fmt.Sprintf("classification: %s", verdict.Kind))

	switch verdict.Kind {
	case policy.Compliant:
		rec.State = StateDone
		return rec

	case policy.NeedsRemux:
		return c.runRemux(ctx, rec, info)

	case policy.NeedsFullFix, policy.NeedsReencode:
		rec.TargetCodec = verdict.TargetCodec
		rec.CRF = verdict.CRF
		rec.FixPreviewOnly = verdict.Kind == policy.NeedsFullFix
		return c.runReencode(ctx, rec, info)

	default:
		rec.State = StateFailed
		rec.Err = fmt.Errorf("batch: unknown verdict kind %v", verdict.Kind)
		return rec
	}
}

// completedReplacementOrFail implements spec §4.4's "completed-replacement
// detection": a missing source with a valid bare `<stem>.mp4` beside it
// means a previous run already finished this file.
func (c *Controller) completedReplacementOrFail(rec *FileRecord) *FileRecord {
	finalPath := util.FinalPath(rec.SourcePath)
	if util.FileExists(finalPath) && encoder.Validate(finalPath, nil, true) == nil {
		rec.FinalPath = finalPath
		rec.State = StateDone
		return rec
	}
	rec.State = StateFailed
	rec.Err = vserrors.NewPathError("source missing and no valid replacement found for " + rec.SourcePath)
	return rec
}

func (c *Controller) runRemux(ctx context.Context, rec *FileRecord, info *probe.MediaInfo) *FileRecord {
	rec.State = StateNeedsRemux
	rec.IntermediatePath = util.IntermediatePath(rec.SourcePath, util.QuicklookSuffix)

	c.Reporter.StageProgress(reporter.StageProgress{
		Stage:   "remux",
		Message: "remuxing " + rec.SourcePath,
	})

	fixTag := info.Codec == string(config.CodecHEVC)
	if err := encoder.Remux(ctx, rec.SourcePath, rec.IntermediatePath, fixTag); err != nil {
		rec.State = StateFailed
		rec.Err = err
		return rec
	}

	duration := info.DurationSecs
	if err := c.validateIntermediate(rec, &duration); err != nil {
		rec.State = StateFailed
		rec.Err = err
		return rec
	}

	rec.State = StateRemuxed
	return c.finishReplaceOrDone(rec)
}

func (c *Controller) runReencode(ctx context.Context, rec *FileRecord, info *probe.MediaInfo) *FileRecord {
	rec.State = StateNeedsReencode
	rec.IntermediatePath = util.IntermediatePath(rec.SourcePath, util.ReencodedSuffix)

	params := encoder.Params{
		InputPath:      rec.SourcePath,
		OutputPath:     rec.IntermediatePath,
		TargetCodec:    rec.TargetCodec,
		CRF:            rec.CRF,
		Downscale:      rec.Downscale,
		SourceWidth:    info.Width,
		SourceHeight:   info.Height,
		SourceIs8Bit:   info.ColorDepth == 8,
		SourceDuration: info.DurationSecs,
		Recover:        rec.Recover,
		HasAudio:       info.HasAudio,
	}

	audioCodec := "none"
	if info.HasAudio {
		audioCodec = "aac"
	}
	c.Reporter.EncodingConfig(reporter.EncodingConfigSummary{
		Encoder:          encoder.FFmpegCodecName(rec.TargetCodec),
		Preset:           encoder.PresetFor(rec.TargetCodec),
		Quality:          fmt.Sprintf("CRF %d", rec.CRF),
		PixelFormat:      encoder.PixelFormatFor(params),
		AudioCodec:       audioCodec,
		AudioDescription: audioDescriptionOf(info),
	})

	var totalFrames uint64
	if info.FrameRate > 0 && info.DurationSecs > 0 {
		totalFrames = uint64(info.DurationSecs * info.FrameRate)
	}
	c.Reporter.EncodingStarted(totalFrames)

	rec.State = StateEncoding
	start := time.Now()
	if _, err := encoder.Encode(ctx, params, c.onProgress()); err != nil {
		rec.State = StateFailed
		rec.Err = err
		return rec
	}

	duration := info.DurationSecs
	if err := c.validateIntermediate(rec, &duration); err != nil {
		rec.State = StateFailed
		rec.Err = err
		return rec
	}

	c.reportEncodingComplete(rec, info.DurationSecs, time.Since(start))
	rec.State = StateValidated
	return c.finishReplaceOrDone(rec)
}

// validateIntermediate runs encoder.Validate, reports the outcome, and
// discards the intermediate on failure so a retry starts clean.
func (c *Controller) validateIntermediate(rec *FileRecord, expectedDuration *float64) error {
	err := encoder.Validate(rec.IntermediatePath, expectedDuration, rec.Recover)
	c.Reporter.ValidationComplete(reporter.ValidationSummary{
		Passed: err == nil,
		Steps: []reporter.ValidationStep{
			{Name: "duration and integrity", Passed: err == nil, Details: validationDetails(err)},
		},
	})
	if err != nil {
		if rmErr := os.Remove(rec.IntermediatePath); rmErr != nil && !os.IsNotExist(rmErr) {
			c.Reporter.Warning(fmt.Sprintf("could not remove rejected intermediate %s: %v", rec.IntermediatePath, rmErr))
		}
	}
	return err
}

func validationDetails(err error) string {
	if err == nil {
		return "ok"
	}
	return err.Error()
}

func (c *Controller) reportEncodingComplete(rec *FileRecord, sourceDuration float64, elapsed time.Duration) {
	originalSize, _ := util.GetFileSize(rec.SourcePath)
	encodedSize, _ := util.GetFileSize(rec.IntermediatePath)

	var speed float32
	if elapsed.Seconds() > 0 {
		speed = float32(sourceDuration / elapsed.Seconds())
	}

	c.Reporter.EncodingComplete(reporter.EncodingOutcome{
		InputFile:    rec.SourcePath,
		OutputFile:   filepath.Base(rec.IntermediatePath),
		OriginalSize: originalSize,
		EncodedSize:  encodedSize,
		TotalTime:    elapsed,
		AverageSpeed: speed,
		OutputPath:   rec.IntermediatePath,
	})
}

// reportInitialization tells the reporter which file is about to be
// classified, before the policy decision is known.
func (c *Controller) reportInitialization(rec *FileRecord, info *probe.MediaInfo) {
	c.Reporter.Initialization(reporter.InitializationSummary{
		InputFile:        rec.SourcePath,
		OutputFile:       util.FinalPath(rec.SourcePath),
		Duration:         util.FormatDuration(info.DurationSecs),
		Resolution:       fmt.Sprintf("%dx%d", info.Width, info.Height),
		DynamicRange:     dynamicRangeOf(info),
		AudioDescription: audioDescriptionOf(info),
	})
}

func dynamicRangeOf(info *probe.MediaInfo) string {
	if info.HDR.IsHDR {
		return "HDR"
	}
	return "SDR"
}

func audioDescriptionOf(info *probe.MediaInfo) string {
	if info.HasAudio {
		return "present"
	}
	return "none"
}

func (c *Controller) onProgress() ffmpeg.ProgressCallback {
	return func(p ffmpeg.Progress) {
		c.Reporter.EncodingProgress(reporter.ProgressSnapshot{
			CurrentFrame: p.CurrentFrame,
			Percent:      p.Percent,
			Speed:        p.Speed,
			FPS:          p.FPS,
			ETA:          p.ETA,
			Bitrate:      p.Bitrate,
		})
	}
}

// finishReplaceOrDone performs the atomic replace (spec §4.4) when
// requested, or marks the file DONE with the intermediate left in place.
func (c *Controller) finishReplaceOrDone(rec *FileRecord) *FileRecord {
	if !rec.ReplaceOriginal {
		rec.State = StateDone
		return rec
	}

	finalPath := util.FinalPath(rec.SourcePath)
	if err := atomicReplace(rec.SourcePath, rec.IntermediatePath, finalPath); err != nil {
		rec.State = StateFailed
		rec.Err = vserrors.NewReplaceError(rec.SourcePath, err)
		return rec
	}

	rec.FinalPath = finalPath
	rec.State = StateDone
	c.markWritten(finalPath)
	return rec
}

// atomicReplace deletes sourcePath then renames intermediatePath to
// finalPath, retrying each step on a transient filesystem error. On
// failure the intermediate is left in place so a later run can retry
// (spec §4.4).
func atomicReplace(sourcePath, intermediatePath, finalPath string) error {
	if err := retry(replaceRetries, func() error { return removeIfExists(sourcePath) }); err != nil {
		return fmt.Errorf("remove source: %w", err)
	}
	if err := retry(replaceRetries, func() error { return os.Rename(intermediatePath, finalPath) }); err != nil {
		return fmt.Errorf("rename intermediate: %w", err)
	}
	return nil
}

func removeIfExists(path string) error {
	err := os.Remove(path)
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

func retry(attempts int, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		time.Sleep(replaceRetryDelay)
	}
	return err
}

func summarize(result *Result) reporter.BatchSummary {
	summary := reporter.BatchSummary{TotalFiles: len(result.Records)}
	for _, rec := range result.Records {
		if rec.State == StateDone {
			summary.SuccessfulCount++
		}
	}
	return summary
}
