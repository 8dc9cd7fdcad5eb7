package batch

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/markperdomo/videosentinel/internal/config"
	"github.com/markperdomo/videosentinel/internal/shutdown"
)

func newTestController(t *testing.T, inputDir string) *Controller {
	t.Helper()
	cfg := config.NewConfig(inputDir, t.TempDir(), t.TempDir())
	return New(cfg, shutdown.New(), nil)
}

func TestSelectFiles_NoLimitReturnsAll(t *testing.T) {
	c := newTestController(t, t.TempDir())
	files := []string{"/a", "/b", "/c"}
	got, err := c.selectFiles(files)
	if err != nil {
		t.Fatalf("selectFiles() error = %v", err)
	}
	if len(got) != 3 {
		t.Errorf("selectFiles() len = %d, want 3", len(got))
	}
}

func TestSelectFiles_MaxFilesCapsWithoutOnlyNonCompliant(t *testing.T) {
	c := newTestController(t, t.TempDir())
	c.Config.MaxFiles = 2
	got, err := c.selectFiles([]string{"/a", "/b", "/c", "/d"})
	if err != nil {
		t.Fatalf("selectFiles() error = %v", err)
	}
	if len(got) != 2 || got[0] != "/a" || got[1] != "/b" {
		t.Errorf("selectFiles() = %v, want the first 2 in order", got)
	}
}

func TestSelectFiles_MaxFilesUnderTotalCountIsNoOp(t *testing.T) {
	c := newTestController(t, t.TempDir())
	c.Config.MaxFiles = 10
	got, err := c.selectFiles([]string{"/a", "/b"})
	if err != nil {
		t.Fatalf("selectFiles() error = %v", err)
	}
	if len(got) != 2 {
		t.Errorf("selectFiles() len = %d, want 2", len(got))
	}
}

func TestTargetCodec_DefaultsToHEVC(t *testing.T) {
	c := newTestController(t, t.TempDir())
	c.Config.TargetCodec = ""
	if got := c.targetCodec(); got != config.CodecHEVC {
		t.Errorf("targetCodec() = %v, want HEVC", got)
	}
}

func TestTargetCodec_HonorsConfiguredOverride(t *testing.T) {
	c := newTestController(t, t.TempDir())
	c.Config.TargetCodec = config.CodecAV1
	if got := c.targetCodec(); got != config.CodecAV1 {
		t.Errorf("targetCodec() = %v, want AV1", got)
	}
}

func TestCompletedReplacementOrFail_UnprobeableFinalFails(t *testing.T) {
	dir := t.TempDir()
	finalPath := filepath.Join(dir, "movie.mp4")
	// Write enough bytes to pass Validate's minimum-size check; Validate
	// also probes the file, so this path alone cannot exercise the
	// success branch without a real probe binary — confirm it fails
	// closed (FAILED) instead of crashing when probing is unavailable.
	if err := os.WriteFile(finalPath, make([]byte, 4096), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	c := newTestController(t, dir)
	rec := &FileRecord{SourcePath: filepath.Join(dir, "movie.avi")}
	got := c.completedReplacementOrFail(rec)
	if got.State != StateFailed {
		t.Errorf("State = %v, want FAILED when validation cannot run (no probe binary in the test environment)", got.State)
	}
}

func TestCompletedReplacementOrFail_NoFinalFails(t *testing.T) {
	dir := t.TempDir()
	c := newTestController(t, dir)
	rec := &FileRecord{SourcePath: filepath.Join(dir, "movie.avi")}
	got := c.completedReplacementOrFail(rec)
	if got.State != StateFailed {
		t.Errorf("State = %v, want FAILED", got.State)
	}
}

func TestAtomicReplace_RemovesSourceAndRenamesIntermediate(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "movie.avi")
	intermediate := filepath.Join(dir, "movie_reencoded.mp4")
	final := filepath.Join(dir, "movie.mp4")

	if err := os.WriteFile(source, []byte("source"), 0644); err != nil {
		t.Fatalf("WriteFile(source) error = %v", err)
	}
	if err := os.WriteFile(intermediate, []byte("intermediate"), 0644); err != nil {
		t.Fatalf("WriteFile(intermediate) error = %v", err)
	}

	if err := atomicReplace(source, intermediate, final); err != nil {
		t.Fatalf("atomicReplace() error = %v", err)
	}

	if _, err := os.Stat(source); !os.IsNotExist(err) {
		t.Errorf("source should be removed, stat err = %v", err)
	}
	if _, err := os.Stat(intermediate); !os.IsNotExist(err) {
		t.Errorf("intermediate should be renamed away, stat err = %v", err)
	}
	data, err := os.ReadFile(final)
	if err != nil {
		t.Fatalf("ReadFile(final) error = %v", err)
	}
	if string(data) != "intermediate" {
		t.Errorf("final content = %q, want %q", data, "intermediate")
	}
}

func TestAtomicReplace_MissingIntermediateFails(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "movie.avi")
	if err := os.WriteFile(source, []byte("source"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	err := atomicReplace(source, filepath.Join(dir, "does-not-exist.mp4"), filepath.Join(dir, "movie.mp4"))
	if err == nil {
		t.Error("atomicReplace() error = nil, want error for a missing intermediate")
	}
}

func TestStateString(t *testing.T) {
	cases := map[State]string{
		StateDiscovered:    "DISCOVERED",
		StateNeedsReencode: "NEEDS_REENCODE",
		StateDone:          "DONE",
		StateFailed:        "FAILED",
		StateSkipped:       "SKIPPED",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", state, got, want)
		}
	}
}

func TestSummarize_CountsOnlyDoneAsSuccessful(t *testing.T) {
	result := &Result{Records: []*FileRecord{
		{State: StateDone},
		{State: StateFailed},
		{State: StateDone},
		{State: StateSkipped},
	}}
	summary := summarize(result)
	if summary.TotalFiles != 4 {
		t.Errorf("TotalFiles = %d, want 4", summary.TotalFiles)
	}
	if summary.SuccessfulCount != 2 {
		t.Errorf("SuccessfulCount = %d, want 2", summary.SuccessfulCount)
	}
}

func TestRun_StopsImmediatelyWhenShutdownAlreadyFired(t *testing.T) {
	dir := t.TempDir()
	// A directory with no video files would make discovery fail before
	// selection even runs, so give it one file it will never touch.
	if err := os.WriteFile(filepath.Join(dir, "a.mp4"), []byte("x"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	c := newTestController(t, dir)
	c.Shutdown.Stop()

	result, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(result.Records) != 1 || result.Records[0].State != StateSkipped {
		t.Errorf("Records = %+v, want a single SKIPPED record", result.Records)
	}
}
