// Command videosentinel discovers, modernizes, ships, and deduplicates a
// video library.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/markperdomo/videosentinel"
	"github.com/markperdomo/videosentinel/internal/config"
	"github.com/markperdomo/videosentinel/internal/dedupe"
	"github.com/markperdomo/videosentinel/internal/logging"
	"github.com/markperdomo/videosentinel/internal/netqueue"
	"github.com/markperdomo/videosentinel/internal/remote"
	"github.com/markperdomo/videosentinel/internal/reporter"
)

const appVersion = "0.1.0"

func main() {
	root := &cobra.Command{
		Use:     "videosentinel",
		Short:   "Batch video-library discovery, modernization, and deduplication",
		Version: appVersion,
	}

	root.AddCommand(newEncodeCmd(), newDedupeCmd(), newResumeCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newEncodeCmd() *cobra.Command {
	var (
		logDir           string
		tempDir          string
		maxFiles         int
		onlyNonCompliant bool
		replace          bool
		recoverMode      bool
		downscale        bool
		targetCodec      string
		verbose          bool
		jsonOutput       bool
		noLog            bool
	)

	cmd := &cobra.Command{
		Use:   "encode <input-dir>",
		Short: "Classify and modernize every video file under a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inputDir := args[0]
			if tempDir == "" {
				tempDir = os.TempDir() + "/videosentinel"
			}
			if logDir == "" {
				homeDir, err := os.UserHomeDir()
				if err != nil {
					return fmt.Errorf("failed to get home directory: %w", err)
				}
				logDir = filepath.Join(homeDir, ".local", "state", "videosentinel", "logs")
			}

			opts := []videosentinel.Option{
				videosentinel.WithMaxFiles(maxFiles),
			}
			if noLog {
				opts = append(opts, videosentinel.WithNoLog())
			}
			if onlyNonCompliant {
				opts = append(opts, videosentinel.WithOnlyNonCompliant())
			}
			if replace {
				opts = append(opts, videosentinel.WithReplaceOriginal())
			}
			if recoverMode {
				opts = append(opts, videosentinel.WithRecover())
			}
			if downscale {
				opts = append(opts, videosentinel.WithDownscale())
			}
			if targetCodec != "" {
				opts = append(opts, videosentinel.WithTargetCodec(config.Codec(targetCodec)))
			}
			if verbose {
				opts = append(opts, videosentinel.WithVerbose())
			}

			engine, err := videosentinel.New(opts...)
			if err != nil {
				return err
			}

			var rep reporter.Reporter = reporter.NewTerminalReporter()
			if jsonOutput {
				rep = reporter.NewJSONReporter()
			}

			ctx := cmd.Context()
			result, err := engine.Encode(ctx, inputDir, logDir, tempDir, rep)
			if err != nil {
				return err
			}

			failed := 0
			for _, rec := range result.Records {
				if rec.Err != nil {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d files failed", failed, len(result.Records))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&logDir, "log-dir", "l", "", "Log directory (defaults to ~/.local/state/videosentinel/logs)")
	cmd.Flags().StringVarP(&tempDir, "temp-dir", "t", "", "Local staging/scratch directory")
	cmd.Flags().IntVar(&maxFiles, "max-files", 0, "Cap the number of files selected (0 = unlimited)")
	cmd.Flags().BoolVar(&onlyNonCompliant, "only-non-compliant", false, "Restrict the batch to files failing the compliance rule")
	cmd.Flags().BoolVar(&replace, "replace", false, "Atomically replace each source after validation")
	cmd.Flags().BoolVar(&recoverMode, "recover", false, "Recovery mode: lenient duration validation, permissive decode")
	cmd.Flags().BoolVar(&downscale, "downscale", false, "Downscale anything wider than 1920 or taller than 1080")
	cmd.Flags().StringVar(&targetCodec, "target-codec", "", "Codec to migrate non-compliant sources to (default hevc)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose reporter output")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit newline-delimited JSON events instead of terminal output")
	cmd.Flags().BoolVar(&noLog, "no-log", false, "Disable run log file creation")

	return cmd
}

func newDedupeCmd() *cobra.Command {
	var (
		tempDir   string
		threshold int
		mode      string
		apply     bool
	)

	cmd := &cobra.Command{
		Use:   "dedupe <input-dir>",
		Short: "Find and rank duplicate video files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inputDir := args[0]
			if tempDir == "" {
				tempDir = os.TempDir() + "/videosentinel"
			}

			opts := []videosentinel.Option{}
			if threshold > 0 {
				opts = append(opts, videosentinel.WithDuplicateThreshold(threshold))
			}

			engine, err := videosentinel.New(opts...)
			if err != nil {
				return err
			}

			var groups []dedupe.Group
			switch mode {
			case "", "perceptual":
				groups, err = engine.Dedupe(cmd.Context(), inputDir)
			case "filename":
				groups, err = engine.DedupeByFilename(inputDir)
			default:
				return fmt.Errorf("unknown mode %q (want perceptual or filename)", mode)
			}
			if err != nil {
				return err
			}

			for _, g := range groups {
				fmt.Printf("duplicate group: keeper=%s (%d members)\n", g.Keeper.Path, len(g.Members))
				for _, m := range g.Members {
					marker := " "
					if m.Path == g.Keeper.Path {
						marker = "*"
					}
					fmt.Printf("  %s %s\n", marker, m.Path)
				}
				if apply {
					if err := dedupe.Cleanup(g); err != nil {
						return fmt.Errorf("cleanup group for %s: %w", g.Keeper.Path, err)
					}
				}
			}
			if !apply && len(groups) > 0 {
				fmt.Println("\n(dry run: pass --apply to remove non-keepers)")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&tempDir, "temp-dir", "t", "", "Scratch directory for extracted hash frames")
	cmd.Flags().IntVar(&threshold, "threshold", 0, "Max mean Hamming distance considered a duplicate (default 15)")
	cmd.Flags().StringVar(&mode, "mode", "perceptual", "Grouping mode: perceptual or filename")
	cmd.Flags().BoolVar(&apply, "apply", false, "Remove non-keepers and rename the keeper to its bare name")

	return cmd
}

func newResumeCmd() *cobra.Command {
	var (
		queuePath   string
		tempDir     string
		bufferSize  int
		maxTempSize uint64
	)

	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Resume the network pipeline's durable queue to completion",
		RunE: func(cmd *cobra.Command, args []string) error {
			if queuePath == "" {
				return fmt.Errorf("--queue is required")
			}
			if tempDir == "" {
				tempDir = os.TempDir() + "/videosentinel"
			}

			opts := []videosentinel.Option{}
			if bufferSize > 0 {
				opts = append(opts, videosentinel.WithBufferSize(bufferSize))
			}
			if maxTempSize > 0 {
				opts = append(opts, videosentinel.WithMaxTempSize(maxTempSize))
			}

			engine, err := videosentinel.New(opts...)
			if err != nil {
				return err
			}

			structured := logging.New(logging.DefaultStructuredConfig())
			store := remote.NewLocalStore(structured)

			return engine.Resume(cmd.Context(), queuePath, store, slogNetqueueLogger{structured})
		},
	}

	cmd.Flags().StringVar(&queuePath, "queue", "", "Path to the durable queue state file")
	cmd.Flags().StringVarP(&tempDir, "temp-dir", "t", "", "Local staging directory")
	cmd.Flags().IntVar(&bufferSize, "buffer-size", 0, "In-flight staging buffer depth, 2-5 (default 4)")
	cmd.Flags().Uint64Var(&maxTempSize, "max-temp-size", 0, "Bytes of local staging space the pipeline may use (default 50GiB)")

	return cmd
}

// slogNetqueueLogger adapts logging.StructuredLogger's key=value slog
// calls to netqueue.Logger's printf-style contract.
type slogNetqueueLogger struct {
	logger *logging.StructuredLogger
}

func (l slogNetqueueLogger) Info(format string, args ...any) {
	l.logger.Log(context.Background(), slog.LevelInfo, fmt.Sprintf(format, args...))
}

func (l slogNetqueueLogger) Error(format string, args ...any) {
	l.logger.Log(context.Background(), slog.LevelError, fmt.Sprintf(format, args...))
}

var _ netqueue.Logger = slogNetqueueLogger{}
