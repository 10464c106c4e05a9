package cache

import (
	"errors"
	"fmt"
	"os"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/mrz1836/coinsync/internal/fileutil"
)

const (
	snapshotVersion = 1
	snapshotPerm    = 0o640
)

//nolint:gochecknoglobals // codec shared by Save and Load
var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	// ErrCorruptCache means the balance file could not be decoded. It has
	// been moved aside.
	ErrCorruptCache = errors.New("cache file is corrupted")

	// ErrUnknownVersion means the balance file was written by a newer
	// coinsync. It is left in place and ignored.
	ErrUnknownVersion = errors.New("cache file version is not supported")
)

type snapshot struct {
	Version int     `json:"version"`
	Entries []Entry `json:"entries"`
}

// FileStorage persists a BalanceCache as a JSON snapshot.
type FileStorage struct {
	path string
	now  func() time.Time
}

// NewFileStorage returns storage for the snapshot at path.
func NewFileStorage(path string) *FileStorage {
	return &FileStorage{path: path, now: time.Now}
}

// Save replaces the snapshot with the current cache contents.
func (s *FileStorage) Save(c *BalanceCache) error {
	data, err := json.MarshalIndent(snapshot{Version: snapshotVersion, Entries: c.Entries()}, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding balance cache: %w", err)
	}
	if err = fileutil.WriteAtomic(s.path, data, snapshotPerm); err != nil {
		return fmt.Errorf("saving balance cache: %w", err)
	}
	return nil
}

// Load builds a cache from the snapshot. The returned cache is always
// usable: a missing file gives an empty cache with no error, and an
// unreadable one gives an empty cache together with the reason, so callers
// can log it and carry on.
func (s *FileStorage) Load(opts ...Option) (*BalanceCache, error) {
	c := NewBalanceCache(opts...)

	data, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return c, nil
	case err != nil:
		return c, fmt.Errorf("reading balance cache: %w", err)
	}

	var snap snapshot
	if err = json.Unmarshal(data, &snap); err != nil {
		return c, s.quarantine(err)
	}
	if snap.Version > snapshotVersion {
		return c, fmt.Errorf("%w: %d", ErrUnknownVersion, snap.Version)
	}

	c.Restore(snap.Entries)
	return c, nil
}

// quarantine renames an undecodable snapshot so the next Save starts fresh
// and the bad file stays around for inspection.
func (s *FileStorage) quarantine(cause error) error {
	aside := fmt.Sprintf("%s.corrupt.%d", s.path, s.now().UTC().UnixNano())
	if err := os.Rename(s.path, aside); err != nil {
		return fmt.Errorf("%w: %w (could not move it aside: %w)", ErrCorruptCache, cause, err)
	}
	return fmt.Errorf("%w: %w (moved to %s)", ErrCorruptCache, cause, aside)
}
