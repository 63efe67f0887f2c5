package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ObjectRef identifies a stored object.
type ObjectRef struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

// Notifier is told about every object written. It must not block for long.
type Notifier func(ctx context.Context, ref ObjectRef) error

// ValidateKey rejects keys that could escape the store directory.
func ValidateKey(key string) error {
	if key == "" {
		return errors.New("object key must not be empty")
	}
	if key == "." || key == ".." || strings.ContainsAny(key, `/\`) || strings.ContainsRune(key, 0) {
		return fmt.Errorf("invalid object key %q", key)
	}
	return nil
}

// FSStore keeps objects as files in one directory.
type FSStore struct {
	dir    string
	bucket string
	logger *slog.Logger

	mu     sync.RWMutex
	notify Notifier
}

// NewFSStore creates dir if needed.
func NewFSStore(dir, bucket string, logger *slog.Logger) (*FSStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}
	return &FSStore{dir: dir, bucket: bucket, logger: logger}, nil
}

// Bucket returns the bucket name this store serves.
func (s *FSStore) Bucket() string { return s.bucket }

// SetNotifier installs the object-created notifier.
func (s *FSStore) SetNotifier(n Notifier) {
	s.mu.Lock()
	s.notify = n
	s.mu.Unlock()
}

// Put writes the object atomically, then emits an object-created
// notification. A failed notification is logged; the object stays stored
// and is picked up again by startup recovery.
func (s *FSStore) Put(ctx context.Context, key string, r io.Reader) (ObjectRef, error) {
	if err := ValidateKey(key); err != nil {
		return ObjectRef{}, err
	}

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return ObjectRef{}, fmt.Errorf("create temp object: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return ObjectRef{}, fmt.Errorf("write object %s: %w", key, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return ObjectRef{}, fmt.Errorf("sync object %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return ObjectRef{}, fmt.Errorf("close object %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, key)); err != nil {
		return ObjectRef{}, fmt.Errorf("commit object %s: %w", key, err)
	}

	ref := ObjectRef{Bucket: s.bucket, Key: key}
	s.mu.RLock()
	notify := s.notify
	s.mu.RUnlock()
	if notify != nil {
		if err := notify(ctx, ref); err != nil {
			s.logger.Warn("blob: object-created notification failed", "key", key, "error", err)
		}
	}
	return ref, nil
}

// Exists reports whether an object is stored under key.
func (s *FSStore) Exists(key string) bool {
	if ValidateKey(key) != nil {
		return false
	}
	fi, err := os.Stat(filepath.Join(s.dir, key))
	return err == nil && fi.Mode().IsRegular()
}

// Path returns the local file backing ref.
func (s *FSStore) Path(ref ObjectRef) (string, error) {
	if ref.Bucket != s.bucket {
		return "", fmt.Errorf("unknown bucket %q", ref.Bucket)
	}
	if err := ValidateKey(ref.Key); err != nil {
		return "", err
	}
	p := filepath.Join(s.dir, ref.Key)
	if _, err := os.Stat(p); err != nil {
		return "", fmt.Errorf("object %s/%s: %w", ref.Bucket, ref.Key, err)
	}
	return p, nil
}
