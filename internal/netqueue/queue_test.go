package netqueue

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestOpen_MissingFileIsEmptyQueue(t *testing.T) {
	q, err := Open(filepath.Join(t.TempDir(), "queue_state.json"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if len(q.Snapshot()) != 0 {
		t.Errorf("Snapshot() len = %d, want 0", len(q.Snapshot()))
	}
}

func TestOpen_RejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue_state.json")
	if err := os.WriteFile(path, []byte(`{"entries": [}`), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if _, err := Open(path); err == nil {
		t.Error("Open() error = nil, want error for a corrupt queue file")
	}
}

func TestEnqueue_RejectsDuplicateSourcePath(t *testing.T) {
	q, _ := Open(filepath.Join(t.TempDir(), "queue_state.json"))
	if err := q.Enqueue(&QueueEntry{SourcePath: "/videos/a.mkv"}); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if err := q.Enqueue(&QueueEntry{SourcePath: "/videos/a.mkv"}); err == nil {
		t.Error("Enqueue() error = nil, want error for a duplicate source path")
	}
}

func TestPersistAndReopen_RoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue_state.json")
	q, _ := Open(path)
	if err := q.Enqueue(&QueueEntry{SourcePath: "/videos/a.mkv"}); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	q2, err := Open(path)
	if err != nil {
		t.Fatalf("Open() (reload) error = %v", err)
	}
	snap := q2.Snapshot()
	if len(snap) != 1 || snap[0].SourcePath != "/videos/a.mkv" {
		t.Errorf("Snapshot() after reload = %+v", snap)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	var file queueFile
	if err := json.Unmarshal(raw, &file); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if file.Schema != 1 {
		t.Errorf("Schema = %d, want 1", file.Schema)
	}
}

func TestResume_UploadingWithMissingOutputReencodesOrRestarts(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "in.bin")
	if err := os.WriteFile(input, []byte("x"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	e := &QueueEntry{State: StateUploading, LocalInputPath: input, LocalOutputPath: filepath.Join(dir, "missing-output")}
	resumeEntry(e)
	if e.State != StateEncoding {
		t.Errorf("State = %v, want ENCODING when output is missing but input survives", e.State)
	}
}

func TestResume_EncodingWithMissingInputGoesPending(t *testing.T) {
	e := &QueueEntry{State: StateEncoding, LocalInputPath: filepath.Join(t.TempDir(), "gone")}
	resumeEntry(e)
	if e.State != StatePending {
		t.Errorf("State = %v, want PENDING", e.State)
	}
}

func TestResume_DownloadingAlwaysGoesPending(t *testing.T) {
	e := &QueueEntry{State: StateDownloading}
	resumeEntry(e)
	if e.State != StatePending {
		t.Errorf("State = %v, want PENDING", e.State)
	}
}

func TestResume_TerminalStatesUntouched(t *testing.T) {
	for _, s := range []State{StateComplete, StateFailed} {
		e := &QueueEntry{State: s}
		resumeEntry(e)
		if e.State != s {
			t.Errorf("State = %v, want unchanged %v", e.State, s)
		}
	}
}

func TestClaimForDownload_RespectsBufferSize(t *testing.T) {
	q, _ := Open(filepath.Join(t.TempDir(), "queue_state.json"))
	_ = q.Enqueue(&QueueEntry{SourcePath: "/a", State: StateLocal})
	_ = q.Enqueue(&QueueEntry{SourcePath: "/b", State: StatePending})

	if _, ok := q.ClaimForDownload(1, 1<<40); ok {
		t.Error("ClaimForDownload() ok = true, want false when active count already meets buffer_size")
	}
	if _, ok := q.ClaimForDownload(2, 1<<40); !ok {
		t.Error("ClaimForDownload() ok = false, want true under a larger buffer_size")
	}
}

func TestClaimForEncode_PicksOldestLocalFirst(t *testing.T) {
	q, _ := Open(filepath.Join(t.TempDir(), "queue_state.json"))
	_ = q.Enqueue(&QueueEntry{SourcePath: "/newer", State: StateLocal})
	time.Sleep(2 * time.Millisecond)
	_ = q.Enqueue(&QueueEntry{SourcePath: "/older", State: StateLocal})

	// Force a clear ordering independent of enqueue timestamps.
	for _, e := range q.entries {
		if e.SourcePath == "/older" {
			e.UpdatedAt = time.Unix(0, 0)
		} else {
			e.UpdatedAt = time.Unix(100, 0)
		}
	}

	claimed, ok := q.ClaimForEncode()
	if !ok {
		t.Fatal("ClaimForEncode() ok = false, want true")
	}
	if claimed.SourcePath != "/older" {
		t.Errorf("claimed = %q, want the oldest LOCAL entry", claimed.SourcePath)
	}
}

func TestAllTerminal(t *testing.T) {
	q, _ := Open(filepath.Join(t.TempDir(), "queue_state.json"))
	_ = q.Enqueue(&QueueEntry{SourcePath: "/a", State: StatePending})
	if q.AllTerminal() {
		t.Error("AllTerminal() = true, want false while a PENDING entry remains")
	}
	_ = q.mutate(q.entries[onlyID(q)].ID, func(e *QueueEntry) { e.State = StateComplete })
	if !q.AllTerminal() {
		t.Error("AllTerminal() = false, want true once every entry is COMPLETE")
	}
}

func onlyID(q *Queue) string {
	for id := range q.entries {
		return id
	}
	return ""
}
