// Package videosentinel provides a Go library for batch video-library
// maintenance: discovering a library, classifying each file against a
// modernization policy, re-encoding or remuxing non-compliant files, moving
// finished files over a durable three-stage network pipeline, and grouping
// perceptual or filename duplicates so a keeper can be chosen.
//
// Basic usage:
//
//	engine, err := videosentinel.New(
//	    videosentinel.WithMaxFiles(50),
//	    videosentinel.WithReplaceOriginal(),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	result, err := engine.Encode(ctx, "/library", "/var/log/videosentinel", "/tmp/videosentinel")
package videosentinel

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/markperdomo/videosentinel/internal/batch"
	"github.com/markperdomo/videosentinel/internal/cache"
	"github.com/markperdomo/videosentinel/internal/config"
	"github.com/markperdomo/videosentinel/internal/dedupe"
	"github.com/markperdomo/videosentinel/internal/discovery"
	"github.com/markperdomo/videosentinel/internal/logging"
	"github.com/markperdomo/videosentinel/internal/netqueue"
	"github.com/markperdomo/videosentinel/internal/phash"
	"github.com/markperdomo/videosentinel/internal/probe"
	"github.com/markperdomo/videosentinel/internal/remote"
	"github.com/markperdomo/videosentinel/internal/reporter"
	"github.com/markperdomo/videosentinel/internal/shutdown"
)

// Engine is the main entry point for library maintenance runs.
type Engine struct {
	config *config.Config
}

// Option configures the engine.
type Option func(*config.Config)

// New creates a new Engine with the given options.
func New(opts ...Option) (*Engine, error) {
	cfg := config.NewConfig(".", ".", ".")

	for _, opt := range opts {
		opt(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Engine{config: cfg}, nil
}

// WithMaxFiles caps how many files a batch run selects (spec §4.4). 0 means
// unlimited.
func WithMaxFiles(n int) Option {
	return func(c *config.Config) { c.MaxFiles = n }
}

// WithOnlyNonCompliant restricts a batch run to files failing the
// compliance rule (spec §4.4).
func WithOnlyNonCompliant() Option {
	return func(c *config.Config) { c.OnlyNonCompliant = true }
}

// WithReplaceOriginal atomically replaces each source file with its
// validated output (spec §4.4).
func WithReplaceOriginal() Option {
	return func(c *config.Config) { c.ReplaceOriginal = true }
}

// WithRecover enables recovery mode: lenient duration validation and
// permissive decode (spec §4.2/§4.4).
func WithRecover() Option {
	return func(c *config.Config) { c.Recover = true }
}

// WithDownscale downscales anything wider than 1920 or taller than 1080
// during re-encode (spec §4.3/§4.4).
func WithDownscale() Option {
	return func(c *config.Config) { c.Downscale = true }
}

// WithTargetCodec overrides the codec non-compliant sources are migrated
// to. Defaults to HEVC.
func WithTargetCodec(codec config.Codec) Option {
	return func(c *config.Config) { c.TargetCodec = codec }
}

// WithBufferSize sets the network pipeline's in-flight staging depth,
// 2..5 (spec §4.5).
func WithBufferSize(n int) Option {
	return func(c *config.Config) { c.BufferSize = n }
}

// WithMaxTempSize bounds the local staging space the network pipeline may
// use, in bytes (spec §4.5/§8).
func WithMaxTempSize(bytes uint64) Option {
	return func(c *config.Config) { c.MaxTempSize = bytes }
}

// WithDuplicateThreshold sets the max mean Hamming distance considered a
// perceptual duplicate (spec §4.7/§4.8).
func WithDuplicateThreshold(n int) Option {
	return func(c *config.Config) { c.DuplicateThreshold = n }
}

// WithVerbose enables verbose reporter output.
func WithVerbose() Option {
	return func(c *config.Config) { c.Verbose = true }
}

// WithNoLog disables the operator-facing run log file Encode would
// otherwise write under logDir.
func WithNoLog() Option {
	return func(c *config.Config) { c.NoLog = true }
}

// Encode runs a batch modernization pass over inputDir, reporting progress
// through rep (a reporter.NullReporter is used if rep is nil). It returns
// once every selected file reaches a terminal state, the shutdown
// coordinator fires, or ctx is cancelled (spec §4.4).
func (e *Engine) Encode(ctx context.Context, inputDir, logDir, tempDir string, rep reporter.Reporter) (*batch.Result, error) {
	cfg := *e.config
	cfg.InputDir = inputDir
	cfg.LogDir = logDir
	cfg.TempDir = tempDir

	if rep == nil {
		rep = reporter.NullReporter{}
	}

	logger, err := logging.Setup(logDir, cfg.Verbose, cfg.NoLog)
	if err != nil {
		return nil, fmt.Errorf("set up run log: %w", err)
	}
	defer func() { _ = logger.Close() }()

	coord := shutdown.New()
	cancelSignals := shutdown.ListenForSignals(coord)
	defer cancelSignals()

	controller := batch.New(&cfg, coord, rep)
	controller.Logger = logger
	if store, err := cache.Open(filepath.Join(logDir, "mediainfo-cache.db")); err == nil {
		defer store.Close()
		controller.Cache = cache.NewCachingProber(store)
	}
	return controller.Run(ctx)
}

// Resume reopens the durable network-pipeline queue at statePath and runs
// its three workers (downloader, encoder, uploader) against store to
// completion (spec §4.5/§4.6).
func (e *Engine) Resume(ctx context.Context, statePath string, store remote.Store, logger netqueue.Logger) error {
	queue, err := netqueue.Open(statePath)
	if err != nil {
		return fmt.Errorf("open queue state: %w", err)
	}

	coord := shutdown.New()
	cancelSignals := shutdown.ListenForSignals(coord)
	defer cancelSignals()

	pipeline := &netqueue.Pipeline{
		Queue:       queue,
		Store:       store,
		TempDir:     e.config.TempDir,
		BufferSize:  e.config.BufferSize,
		MaxTempSize: e.config.MaxTempSize,
		Shutdown:    coord,
		Logger:      logger,
	}
	return pipeline.Run(ctx)
}

// Dedupe discovers every video file under inputDir, perceptually hashes
// each one, and returns the duplicate groups found (spec §4.7/§4.8). A
// file that fails hashing is silently excluded from Perceptual grouping,
// matching HashVideo's own fail-open contract.
func (e *Engine) Dedupe(ctx context.Context, inputDir string) ([]dedupe.Group, error) {
	files, err := discovery.FindVideoFiles(inputDir)
	if err != nil {
		return nil, fmt.Errorf("discover video files: %w", err)
	}

	candidates := make([]dedupe.Candidate, 0, len(files))
	hashes := make(map[string][]phash.FrameHash, len(files))

	for _, path := range files {
		info, err := probe.Probe(path)
		if err != nil {
			continue
		}
		candidates = append(candidates, dedupe.Candidate{Path: path, Info: info})

		h, err := phash.HashVideo(ctx, path, e.config.HashFrameCount, 12, e.config.TempDir)
		if err == nil {
			hashes[path] = h
		}
	}

	return dedupe.GroupPerceptual(e.config, candidates, hashes), nil
}

// DedupeByFilename discovers every video file under inputDir and groups
// duplicates by normalized filename with a duration cross-check, skipping
// perceptual hashing entirely (spec §4.8 Filename mode).
func (e *Engine) DedupeByFilename(inputDir string) ([]dedupe.Group, error) {
	files, err := discovery.FindVideoFiles(inputDir)
	if err != nil {
		return nil, fmt.Errorf("discover video files: %w", err)
	}

	candidates := make([]dedupe.Candidate, 0, len(files))
	for _, path := range files {
		info, err := probe.Probe(path)
		if err != nil {
			continue
		}
		candidates = append(candidates, dedupe.Candidate{Path: path, Info: info})
	}

	return dedupe.GroupByFilename(e.config, candidates), nil
}
