package netqueue

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/google/renameio/v2"
	"github.com/google/uuid"

	vserrors "github.com/markperdomo/videosentinel/internal/errors"
)

// schemaVersion is the queue state file's on-disk schema version (spec §6).
const schemaVersion = 1

type queueFile struct {
	Entries []*QueueEntry `json:"entries"`
	Schema  int           `json:"schema"`
}

// Queue is the mutex-serialized, durably-persisted work queue shared by
// the three C5 workers (spec §4.5 concurrency contract: "queue mutation
// is serialized by a single mutex; reads under the same mutex").
type Queue struct {
	mu        sync.Mutex
	entries   map[string]*QueueEntry
	statePath string
}

// Open loads statePath if it exists (applying the §4.5 resume rules to
// every entry) or starts an empty queue if it does not.
func Open(statePath string) (*Queue, error) {
	q := &Queue{entries: make(map[string]*QueueEntry), statePath: statePath}

	data, err := os.ReadFile(statePath)
	if err != nil {
		if os.IsNotExist(err) {
			return q, nil
		}
		return nil, vserrors.NewQueueIOError("read queue state", err)
	}

	var file queueFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, vserrors.NewQueueIOError("decode queue state (possibly a half-written file)", err)
	}

	for _, e := range file.Entries {
		resumeEntry(e)
		q.entries[e.ID] = e
	}
	return q, nil
}

// resumeEntry applies the spec §4.5 resume table in place.
func resumeEntry(e *QueueEntry) {
	switch e.State {
	case StateComplete, StateFailed:
		// Terminal states are never retried automatically.
	case StateUploading:
		if !exists(e.LocalOutputPath) {
			if exists(e.LocalInputPath) {
				e.State = StateEncoding
			} else {
				e.State = StatePending
			}
		}
	case StateEncoded:
		if !exists(e.LocalOutputPath) {
			if exists(e.LocalInputPath) {
				e.State = StateEncoding
			} else {
				e.State = StatePending
			}
		}
	case StateEncoding:
		if exists(e.LocalInputPath) {
			e.State = StateLocal
		} else {
			e.State = StatePending
		}
	case StateLocal:
		if !exists(e.LocalInputPath) {
			e.State = StatePending
		}
	case StateDownloading:
		e.State = StatePending
	}
}

func exists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

// Enqueue adds entry, rejecting a duplicate source path (spec §3
// invariant: "at most one entry per source path").
func (q *Queue) Enqueue(entry *QueueEntry) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, e := range q.entries {
		if e.SourcePath == entry.SourcePath {
			return fmt.Errorf("netqueue: %s is already queued", entry.SourcePath)
		}
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.State == "" {
		entry.State = StatePending
	}
	q.entries[entry.ID] = entry
	return q.persistLocked()
}

// Snapshot returns a stable-ordered copy of every entry, for reporting.
func (q *Queue) Snapshot() []QueueEntry {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]QueueEntry, 0, len(q.entries))
	for _, e := range q.entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourcePath < out[j].SourcePath })
	return out
}

// ActiveCount returns the number of entries in an "active" state (spec
// §4.5: LOCAL+ENCODING+ENCODED+UPLOADING).
func (q *Queue) ActiveCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	for _, e := range q.entries {
		if e.State.active() {
			n++
		}
	}
	return n
}

// StagedBytes returns the current total on-disk staging footprint (spec
// §8 invariant 4).
func (q *Queue) StagedBytes() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()

	var total int64
	for _, e := range q.entries {
		total += e.stagedBytes()
	}
	return total
}

// AllTerminal reports whether every entry has reached COMPLETE or FAILED —
// the signal each worker uses to know the run is finished.
func (q *Queue) AllTerminal() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, e := range q.entries {
		if !e.State.terminal() {
			return false
		}
	}
	return true
}

// HasUnstartedEntries reports whether any entry is still PENDING.
func (q *Queue) HasUnstartedEntries() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, e := range q.entries {
		if e.State == StatePending {
			return true
		}
	}
	return false
}

// mutate applies fn to the entry with the given ID under the queue lock
// and persists the result. fn must not block.
func (q *Queue) mutate(id string, fn func(*QueueEntry)) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.entries[id]
	if !ok {
		return fmt.Errorf("netqueue: unknown entry %s", id)
	}
	fn(e)
	return q.persistLocked()
}

// persistLocked writes the full queue state durably (write-to-temp,
// fsync, rename), per spec §6/§4.5. Caller must hold q.mu.
func (q *Queue) persistLocked() error {
	entries := make([]*QueueEntry, 0, len(q.entries))
	for _, e := range q.entries {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].SourcePath < entries[j].SourcePath })

	payload, err := json.MarshalIndent(queueFile{Entries: entries, Schema: schemaVersion}, "", "  ")
	if err != nil {
		return vserrors.NewQueueIOError("encode queue state", err)
	}

	pending, err := renameio.NewPendingFile(q.statePath)
	if err != nil {
		return vserrors.NewQueueIOError("open pending queue state file", err)
	}
	defer pending.Cleanup()

	if _, err := pending.Write(payload); err != nil {
		return vserrors.NewQueueIOError("write queue state", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return vserrors.NewQueueIOError("commit queue state", err)
	}
	return nil
}
