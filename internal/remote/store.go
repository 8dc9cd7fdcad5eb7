// Package remote abstracts the slow remote storage tier that the network
// pipeline (C5) stages files to and from (spec §4.5).
package remote

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Store is the minimal remote-storage contract C5 needs: stat, copy in
// each direction, and remove. A filesystem-backed implementation is
// provided (LocalStore); network-backed stores (SFTP, S3-mounted paths,
// etc.) implement the same four operations.
type Store interface {
	Stat(ctx context.Context, remotePath string) (size int64, mtime time.Time, err error)
	CopyFrom(ctx context.Context, remotePath, localPath string) error
	CopyTo(ctx context.Context, localPath, remotePath string) error
	Remove(ctx context.Context, remotePath string) error
}

// InfoLogger receives non-fatal downgrade notices (spec §4.5 fallback
// semantics: a metadata-copy failure is "downgraded to info", not an
// error).
type InfoLogger interface {
	Info(format string, args ...any)
}

type nullLogger struct{}

func (nullLogger) Info(string, ...any) {}

// LocalStore implements Store against a plain local filesystem path —
// the common case of a slow NFS/SMB mount presented as local paths.
type LocalStore struct {
	Logger InfoLogger
}

// NewLocalStore returns a LocalStore. A nil logger is replaced with a
// no-op one.
func NewLocalStore(logger InfoLogger) *LocalStore {
	if logger == nil {
		logger = nullLogger{}
	}
	return &LocalStore{Logger: logger}
}

func (s *LocalStore) Stat(_ context.Context, remotePath string) (int64, time.Time, error) {
	info, err := os.Stat(remotePath)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("remote: stat %s: %w", remotePath, err)
	}
	return info.Size(), info.ModTime(), nil
}

func (s *LocalStore) CopyFrom(ctx context.Context, remotePath, localPath string) error {
	return s.copy(ctx, remotePath, localPath)
}

func (s *LocalStore) CopyTo(ctx context.Context, localPath, remotePath string) error {
	if err := os.MkdirAll(filepath.Dir(remotePath), 0755); err != nil {
		return fmt.Errorf("remote: create destination directory for %s: %w", remotePath, err)
	}
	return s.copy(ctx, localPath, remotePath)
}

func (s *LocalStore) Remove(_ context.Context, remotePath string) error {
	if err := os.Remove(remotePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remote: remove %s: %w", remotePath, err)
	}
	return nil
}

// copy performs a metadata-preserving copy (mode + mtime) first; if the
// filesystem refuses the metadata step (commonly EPERM on chmod/utime
// across a network mount), it falls back to a plain data copy and
// downgrades the failure to an info log rather than propagating it
// (spec §4.5 fallback semantics).
func (s *LocalStore) copy(ctx context.Context, src, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("remote: open %s: %w", src, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("remote: stat %s: %w", src, err)
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode())
	if err != nil {
		return fmt.Errorf("remote: create %s: %w", dst, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		_ = os.Remove(dst)
		return fmt.Errorf("remote: copy %s to %s: %w", src, dst, err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(dst)
		return fmt.Errorf("remote: close %s: %w", dst, err)
	}

	if err := os.Chmod(dst, info.Mode()); err != nil {
		s.Logger.Info("remote: preserving permissions on %s failed, using defaults: %v", dst, err)
		return nil
	}
	if err := os.Chtimes(dst, info.ModTime(), info.ModTime()); err != nil {
		s.Logger.Info("remote: preserving mtime on %s failed, using current time: %v", dst, err)
	}
	return nil
}
