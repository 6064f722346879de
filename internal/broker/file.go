package broker

import (
	"os"
	"strconv"
	"strings"
	"sync"

	"context"

	"github.com/spf13/afero"

	"github.com/pgsync-io/pgsync/internal/errs"
)

// FileStore is the Store used when REDIS_CHECKPOINT is unset: one file per (database,
// index) under a base directory, via afero.Fs so the store is swappable for an in-memory
// filesystem in tests. Grounded on afero's presence in cockroachdb/cockroach's dependency
// graph as the pack's filesystem-abstraction library of choice (see DESIGN.md), in place
// of a direct os.ReadFile/os.WriteFile pair.
type FileStore struct {
	fs   afero.Fs
	base string

	mu sync.Mutex
}

// NewFileStore creates base (and any missing parents) under fs and returns a FileStore
// rooted there.
func NewFileStore(fs afero.Fs, base string) (*FileStore, error) {
	if err := fs.MkdirAll(base, 0o755); err != nil {
		return nil, errs.Wrap(errs.BrokerUnavailable, "create checkpoint directory", err)
	}
	return &FileStore{fs: fs, base: base}, nil
}

func fileName(database, index string) string {
	return sanitize(database) + "_" + sanitize(index) + ".checkpoint"
}

func sanitize(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

func (s *FileStore) path(database, index string) string {
	return s.base + string(os.PathSeparator) + fileName(database, index)
}

func (s *FileStore) Get(_ context.Context, database, index string) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := afero.ReadFile(s.fs, s.path(database, index))
	if os.IsNotExist(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errs.Wrap(errs.BrokerUnavailable, "read checkpoint file", err)
	}
	txmin, err := strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64)
	if err != nil {
		return 0, false, errs.Wrap(errs.BrokerUnavailable, "parse checkpoint file", err)
	}
	return txmin, true, nil
}

func (s *FileStore) Set(_ context.Context, database, index string, txmin int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Write to a temporary file and rename over the target so a crash mid-write never
	// leaves a truncated checkpoint behind.
	target := s.path(database, index)
	tmp := target + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, []byte(strconv.FormatInt(txmin, 10)), 0o644); err != nil {
		return errs.Wrap(errs.BrokerUnavailable, "write checkpoint file", err)
	}
	if err := s.fs.Rename(tmp, target); err != nil {
		return errs.Wrap(errs.BrokerUnavailable, "commit checkpoint file", err)
	}
	return nil
}

func (s *FileStore) Close() error {
	return nil
}
