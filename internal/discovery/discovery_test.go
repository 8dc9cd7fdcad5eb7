package discovery

import (
	"os"
	"path/filepath"
	"testing"
)

type fakeLogger struct {
	infoCalls  []string
	debugCalls []string
}

func (l *fakeLogger) Info(format string, args ...any) {
	l.infoCalls = append(l.infoCalls, format)
}

func (l *fakeLogger) Debug(format string, args ...any) {
	l.debugCalls = append(l.debugCalls, format)
}

func writeFiles(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
			t.Fatalf("WriteFile(%s) error = %v", name, err)
		}
	}
}

func TestFindVideoFiles_FiltersAndSorts(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "c.mkv", "a.mp4", "b.avi", "readme.txt", ".hidden.mp4")
	if err := os.Mkdir(filepath.Join(dir, "subdir"), 0755); err != nil {
		t.Fatalf("Mkdir() error = %v", err)
	}

	files, err := FindVideoFiles(dir)
	if err != nil {
		t.Fatalf("FindVideoFiles() error = %v", err)
	}
	if len(files) != 3 {
		t.Fatalf("len(files) = %d, want 3: %v", len(files), files)
	}
	want := []string{
		filepath.Join(dir, "a.mp4"),
		filepath.Join(dir, "b.avi"),
		filepath.Join(dir, "c.mkv"),
	}
	for i, w := range want {
		if files[i] != w {
			t.Errorf("files[%d] = %q, want %q", i, files[i], w)
		}
	}
}

func TestFindVideoFiles_NoVideosIsError(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "notes.txt")

	if _, err := FindVideoFiles(dir); err == nil {
		t.Error("FindVideoFiles() error = nil, want error for a directory with no video files")
	}
}

func TestFindVideoFiles_MissingDirectory(t *testing.T) {
	if _, err := FindVideoFiles(filepath.Join(t.TempDir(), "does-not-exist")); err == nil {
		t.Error("FindVideoFiles() error = nil, want error for a missing directory")
	}
}

func TestFindVideoFilesWithLogging_ReportsSkipped(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "a.mp4", "b.mp4", "notes.txt")

	logger := &fakeLogger{}
	result, err := FindVideoFilesWithLogging(dir, logger)
	if err != nil {
		t.Fatalf("FindVideoFilesWithLogging() error = %v", err)
	}
	if len(result.Files) != 2 {
		t.Errorf("len(result.Files) = %d, want 2", len(result.Files))
	}
	if result.SkippedCount != 1 {
		t.Errorf("SkippedCount = %d, want 1", result.SkippedCount)
	}
	if len(logger.infoCalls) == 0 {
		t.Error("logger.Info was never called")
	}
}
