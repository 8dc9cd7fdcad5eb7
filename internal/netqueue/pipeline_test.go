package netqueue

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/markperdomo/videosentinel/internal/remote"
	"github.com/markperdomo/videosentinel/internal/shutdown"
)

// fakeLogger discards everything; it exists only to satisfy the Logger
// interface in tests that don't assert on log output.
type fakeLogger struct{}

func (fakeLogger) Info(string, ...any)  {}
func (fakeLogger) Error(string, ...any) {}

// TestPipeline_DownloadsThenUploadsWithoutEncoding exercises the
// downloader and uploader workers end to end against a LocalStore,
// using an entry that starts already ENCODED so the run never needs to
// shell out to the external encoder binary.
func TestPipeline_DownloadsThenUploadsWithoutEncoding(t *testing.T) {
	remoteDir := t.TempDir()
	tempDir := t.TempDir()

	remoteInput := filepath.Join(remoteDir, "source.mkv")
	if err := os.WriteFile(remoteInput, []byte("source bytes"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	localOutput := filepath.Join(tempDir, "encoded_source.mp4")
	if err := os.WriteFile(localOutput, []byte("encoded bytes"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	remoteOutput := filepath.Join(remoteDir, "source.mp4")

	q, err := Open(filepath.Join(tempDir, "queue_state.json"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	entry := &QueueEntry{
		SourcePath:       remoteInput,
		LocalOutputPath:  localOutput,
		LocalOutputBytes: int64(len("encoded bytes")),
		FinalRemotePath:  remoteOutput,
		State:            StateEncoded,
		ReplaceOriginal:  false,
		CreatedAt:        time.Now(),
		UpdatedAt:        time.Now(),
	}
	if err := q.Enqueue(entry); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	pipeline := &Pipeline{
		Queue:       q,
		Store:       remote.NewLocalStore(nil),
		TempDir:     tempDir,
		BufferSize:  4,
		MaxTempSize: 1 << 30,
		Shutdown:    shutdown.New(),
		Logger:      fakeLogger{},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pipeline.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	snap := q.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("Snapshot() len = %d, want 1", len(snap))
	}
	if snap[0].State != StateComplete {
		t.Errorf("State = %v, want COMPLETE", snap[0].State)
	}
	if _, err := os.Stat(remoteOutput); err != nil {
		t.Errorf("remote output was not uploaded: %v", err)
	}
	if _, err := os.Stat(remoteInput); err != nil {
		t.Errorf("source should survive when ReplaceOriginal is false, but: %v", err)
	}
}

// TestPipeline_StopsWhenShutdownAlreadyFired confirms that a pre-stopped
// coordinator makes every worker return immediately without touching the
// queue, even with claimable work present.
func TestPipeline_StopsWhenShutdownAlreadyFired(t *testing.T) {
	tempDir := t.TempDir()
	q, err := Open(filepath.Join(tempDir, "queue_state.json"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := q.Enqueue(&QueueEntry{SourcePath: "/videos/a.mkv"}); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	coord := shutdown.New()
	coord.Stop()

	pipeline := &Pipeline{
		Queue:       q,
		Store:       remote.NewLocalStore(nil),
		TempDir:     tempDir,
		BufferSize:  4,
		MaxTempSize: 1 << 30,
		Shutdown:    coord,
		Logger:      fakeLogger{},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := pipeline.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	snap := q.Snapshot()
	if snap[0].State != StatePending {
		t.Errorf("State = %v, want PENDING (untouched) when shutdown fired before Run", snap[0].State)
	}
}
