package netqueue

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/markperdomo/videosentinel/internal/encoder"
	"github.com/markperdomo/videosentinel/internal/ffmpeg"
	"github.com/markperdomo/videosentinel/internal/remote"
	"github.com/markperdomo/videosentinel/internal/shutdown"
	"github.com/markperdomo/videosentinel/internal/util"
)

// pollInterval is how often an idle worker rechecks for claimable work.
const pollInterval = 250 * time.Millisecond

// Logger is the minimal logging surface Pipeline needs.
type Logger interface {
	Info(format string, args ...any)
	Error(format string, args ...any)
}

// Pipeline runs the three C5 workers (downloader, encoder, uploader)
// against a shared Queue (spec §4.5).
type Pipeline struct {
	Queue       *Queue
	Store       remote.Store
	TempDir     string
	BufferSize  int
	MaxTempSize uint64
	Shutdown    *shutdown.Coordinator
	OnProgress  ffmpeg.ProgressCallback
	Logger      Logger
}

// Run starts all three workers and blocks until every entry reaches a
// terminal state, the shutdown coordinator fires, or ctx is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.runDownloader(ctx) })
	g.Go(func() error { return p.runEncoder(ctx) })
	g.Go(func() error { return p.runUploader(ctx) })
	return g.Wait()
}

func (p *Pipeline) logInfo(format string, args ...any) {
	if p.Logger != nil {
		p.Logger.Info(format, args...)
	}
}

func (p *Pipeline) logError(format string, args ...any) {
	if p.Logger != nil {
		p.Logger.Error(format, args...)
	}
}

func (p *Pipeline) idle(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(pollInterval):
		return true
	}
}

// runDownloader implements spec §4.5's Downloader rule.
func (p *Pipeline) runDownloader(ctx context.Context) error {
	for {
		if p.Shutdown.IsStopped() || ctx.Err() != nil {
			return nil
		}

		entry, ok := p.Queue.ClaimForDownload(p.BufferSize, p.MaxTempSize)
		if !ok {
			if !p.Queue.HasUnstartedEntries() {
				return nil
			}
			if !p.idle(ctx) {
				return nil
			}
			continue
		}

		localPath := filepath.Join(p.TempDir, "download_"+filepath.Base(entry.SourcePath))
		if err := p.Store.CopyFrom(ctx, entry.SourcePath, localPath); err != nil {
			p.logError("download failed for %s: %v", entry.SourcePath, err)
			_ = p.Queue.SetFailed(entry.ID, fmt.Errorf("download: %w", err))
			continue
		}

		size, _, err := p.Store.Stat(ctx, entry.SourcePath)
		if err != nil {
			if stat, statErr := os.Stat(localPath); statErr == nil {
				size = stat.Size()
			}
		}
		if err := p.Queue.SetLocal(entry.ID, localPath, size); err != nil {
			return err
		}
		p.logInfo("downloaded %s", entry.SourcePath)
	}
}

// runEncoder implements spec §4.5's Encoder rule: single-threaded, oldest
// LOCAL entry first.
func (p *Pipeline) runEncoder(ctx context.Context) error {
	for {
		if p.Shutdown.IsStopped() || ctx.Err() != nil {
			return nil
		}

		entry, ok := p.Queue.ClaimForEncode()
		if !ok {
			if p.Queue.AllTerminal() {
				return nil
			}
			if !p.idle(ctx) {
				return nil
			}
			continue
		}

		outputPath := filepath.Join(p.TempDir, "encoded_"+util.GetFileStem(entry.SourcePath)+".mp4")
		params := encoder.Params{
			InputPath:   entry.LocalInputPath,
			OutputPath:  outputPath,
			TargetCodec: entry.TargetCodec,
			CRF:         entry.CRF,
			Downscale:   entry.Downscale,
			Recover:     entry.Recover,
			HasAudio:    true,
		}

		if _, err := encoder.Encode(ctx, params, p.OnProgress); err != nil {
			p.logError("encode failed for %s: %v", entry.SourcePath, err)
			_ = os.Remove(entry.LocalInputPath)
			_ = p.Queue.SetFailed(entry.ID, err)
			continue
		}

		stat, err := os.Stat(outputPath)
		if err != nil {
			_ = p.Queue.SetFailed(entry.ID, fmt.Errorf("encode: output missing after success: %w", err))
			continue
		}
		if err := p.Queue.SetEncoded(entry.ID, outputPath, stat.Size()); err != nil {
			return err
		}
		p.logInfo("encoded %s", entry.SourcePath)
	}
}

// runUploader implements spec §4.5's Uploader rule.
func (p *Pipeline) runUploader(ctx context.Context) error {
	for {
		if p.Shutdown.IsStopped() || ctx.Err() != nil {
			return nil
		}

		entry, ok := p.Queue.ClaimForUpload()
		if !ok {
			if p.Queue.AllTerminal() {
				return nil
			}
			if !p.idle(ctx) {
				return nil
			}
			continue
		}

		if err := p.Store.CopyTo(ctx, entry.LocalOutputPath, entry.FinalRemotePath); err != nil {
			p.logError("upload failed for %s: %v", entry.SourcePath, err)
			_ = p.Queue.SetFailed(entry.ID, fmt.Errorf("upload: %w", err))
			continue
		}

		if entry.ReplaceOriginal && entry.FinalRemotePath != entry.SourcePath {
			if err := p.Store.Remove(ctx, entry.SourcePath); err != nil {
				p.logError("could not remove replaced remote original %s: %v", entry.SourcePath, err)
			}
		}

		_ = os.Remove(entry.LocalInputPath)
		_ = os.Remove(entry.LocalOutputPath)
		if err := p.Queue.SetComplete(entry.ID); err != nil {
			return err
		}
		p.logInfo("uploaded %s", entry.SourcePath)
	}
}
