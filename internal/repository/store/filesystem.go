package store

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// FilesystemStore keeps entries as files under a base directory, one
// file per key. Counter increments are serialized with a mutex since
// the filesystem gives no atomic read-modify-write.
type FilesystemStore struct {
	dir string
	mu  sync.Mutex
}

func NewFilesystemStore(dir string) (*FilesystemStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &FilesystemStore{dir: dir}, nil
}

var _ Store = (*FilesystemStore)(nil)

func (s *FilesystemStore) path(key string) string {
	// keys never contain path separators, but don't trust that
	return filepath.Join(s.dir, strings.ReplaceAll(key, string(os.PathSeparator), "_"))
}

func (s *FilesystemStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	content, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return content, true, nil
}

func (s *FilesystemStore) Set(_ context.Context, key string, value []byte) error {
	return os.WriteFile(s.path(key), value, 0644)
}

func (s *FilesystemStore) Delete(_ context.Context, key string) error {
	err := os.Remove(s.path(key))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (s *FilesystemStore) Incr(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	if content, err := os.ReadFile(s.path(key)); err == nil {
		n, _ = strconv.ParseInt(string(content), 10, 64)
	}
	n++
	if err := os.WriteFile(s.path(key), []byte(strconv.FormatInt(n, 10)), 0644); err != nil {
		return 0, err
	}
	return n, nil
}
