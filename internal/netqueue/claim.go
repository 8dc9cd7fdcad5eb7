package netqueue

import "time"

// ClaimForDownload picks the oldest PENDING entry and marks it
// DOWNLOADING, subject to the buffer_size/max_temp_size bounds (spec
// §4.5 Downloader rule). Returns false when nothing may be claimed right
// now (either no PENDING entry exists, or a bound would be exceeded).
func (q *Queue) ClaimForDownload(bufferSize int, maxTempSize uint64) (QueueEntry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	active := 0
	var staged int64
	for _, e := range q.entries {
		if e.State.active() {
			active++
		}
		staged += e.stagedBytes()
	}
	if active >= bufferSize || uint64(staged) >= maxTempSize {
		return QueueEntry{}, false
	}

	oldest := q.oldestWithStateLocked(StatePending)
	if oldest == nil {
		return QueueEntry{}, false
	}
	oldest.State = StateDownloading
	oldest.UpdatedAt = timeNow()
	_ = q.persistLocked()
	return *oldest, true
}

// ClaimForEncode picks the oldest LOCAL entry and marks it ENCODING (spec
// §4.5 Encoder rule: "single-threaded; picks the oldest LOCAL entry").
func (q *Queue) ClaimForEncode() (QueueEntry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	oldest := q.oldestWithStateLocked(StateLocal)
	if oldest == nil {
		return QueueEntry{}, false
	}
	oldest.State = StateEncoding
	oldest.UpdatedAt = timeNow()
	_ = q.persistLocked()
	return *oldest, true
}

// ClaimForUpload picks the oldest ENCODED entry and marks it UPLOADING
// (spec §4.5 Uploader rule).
func (q *Queue) ClaimForUpload() (QueueEntry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	oldest := q.oldestWithStateLocked(StateEncoded)
	if oldest == nil {
		return QueueEntry{}, false
	}
	oldest.State = StateUploading
	oldest.UpdatedAt = timeNow()
	_ = q.persistLocked()
	return *oldest, true
}

func (q *Queue) oldestWithStateLocked(state State) *QueueEntry {
	var oldest *QueueEntry
	for _, e := range q.entries {
		if e.State != state {
			continue
		}
		if oldest == nil || e.UpdatedAt.Before(oldest.UpdatedAt) {
			oldest = e
		}
	}
	return oldest
}

// SetLocal records a completed download.
func (q *Queue) SetLocal(id, localInputPath string, sizeBytes int64) error {
	return q.mutate(id, func(e *QueueEntry) {
		e.LocalInputPath = localInputPath
		e.LocalInputBytes = sizeBytes
		e.State = StateLocal
		e.UpdatedAt = timeNow()
	})
}

// SetEncoded records a completed encode.
func (q *Queue) SetEncoded(id, localOutputPath string, sizeBytes int64) error {
	return q.mutate(id, func(e *QueueEntry) {
		e.LocalOutputPath = localOutputPath
		e.LocalOutputBytes = sizeBytes
		e.State = StateEncoded
		e.UpdatedAt = timeNow()
	})
}

// SetComplete marks an entry COMPLETE after a successful upload and local
// cleanup.
func (q *Queue) SetComplete(id string) error {
	return q.mutate(id, func(e *QueueEntry) {
		e.State = StateComplete
		e.LocalInputPath = ""
		e.LocalOutputPath = ""
		e.UpdatedAt = timeNow()
	})
}

// SetFailed marks an entry FAILED with a recorded reason (spec §7:
// per-file errors are contained, the batch continues).
func (q *Queue) SetFailed(id string, cause error) error {
	return q.mutate(id, func(e *QueueEntry) {
		e.State = StateFailed
		e.Error = cause.Error()
		e.UpdatedAt = timeNow()
	})
}

// timeNow is a thin seam so tests can observe ordering without relying on
// wall-clock resolution.
var timeNow = time.Now
