package blockstore

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bitfsorg/libvault-go/blockcrypt"
)

// tempPrefix marks in-flight writes inside a shard directory.
const tempPrefix = ".tmp-"

// FileStore implements Store on the local filesystem.
// Files are stored at: {baseDir}/{hex(hash[0])}/{hex(hash[1])}/{hex(hash)}
// Two levels of one-byte sharding give 65536 leaf directories.
type FileStore struct {
	baseDir string
	locks   hashLocks
	metrics *Metrics
}

// Option configures a FileStore.
type Option func(*FileStore)

// WithMetrics attaches Prometheus metrics to the store.
func WithMetrics(m *Metrics) Option {
	return func(s *FileStore) { s.metrics = m }
}

// NewFileStore creates a new file-based block store.
// The directory is created if it does not exist.
func NewFileStore(baseDir string, opts ...Option) (*FileStore, error) {
	if baseDir == "" {
		return nil, ErrInvalidBaseDir
	}

	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}

	s := &FileStore{baseDir: baseDir}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// BaseDir returns the root directory of the store.
func (s *FileStore) BaseDir() string {
	return s.baseDir
}

// LeafPath converts a content hash to its filesystem path.
func LeafPath(baseDir string, hash blockcrypt.ContentHash) string {
	hexHash := hash.String()
	return filepath.Join(baseDir, hexHash[0:2], hexHash[2:4], hexHash)
}

// shardDir returns the leaf directory for a hash.
func (s *FileStore) shardDir(hash blockcrypt.ContentHash) string {
	hexHash := hash.String()
	return filepath.Join(s.baseDir, hexHash[0:2], hexHash[2:4])
}

// Put stores a leaf under hash.
//
// If a leaf already exists nothing is written and AlreadyExists is returned.
// Otherwise the leaf is written to a temporary file in the shard directory,
// synced, and renamed into place, so a crash never leaves a partial leaf
// under its final name. Concurrent Puts of the same hash from other
// processes are benign: every candidate is a complete, valid leaf.
func (s *FileStore) Put(hash blockcrypt.ContentHash, leaf *Leaf) (PutResult, error) {
	if err := leaf.validate(); err != nil {
		return PutUnknown, err
	}

	defer s.locks.lock(hash)()

	path := LeafPath(s.baseDir, hash)
	if _, err := os.Stat(path); err == nil {
		s.metrics.observePut(AlreadyExists, 0)
		return AlreadyExists, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return PutUnknown, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}

	dir := s.shardDir(hash)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return PutUnknown, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}

	if err := writeAtomic(dir, path, leaf); err != nil {
		return PutUnknown, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}

	s.metrics.observePut(Stored, leaf.Size())
	return Stored, nil
}

// writeAtomic writes leaf to a temp file in dir and renames it to path.
func writeAtomic(dir, path string, leaf *Leaf) (err error) {
	tmp := filepath.Join(dir, tempPrefix+uuid.NewString())
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(tmp)
		}
	}()

	if _, err = leaf.WriteTo(f); err != nil {
		return err
	}
	if err = f.Sync(); err != nil {
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	if err = os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	syncDir(dir)
	return nil
}

// syncDir flushes directory metadata so the rename is durable. Errors are
// ignored: some platforms cannot fsync a directory.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}

// Get retrieves the leaf stored under hash.
func (s *FileStore) Get(hash blockcrypt.ContentHash) (*Leaf, error) {
	data, err := os.ReadFile(LeafPath(s.baseDir, hash))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.metrics.observeGet("miss")
			return nil, ErrNotFound
		}
		s.metrics.observeGet("error")
		return nil, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}

	leaf, err := DecodeLeaf(data)
	if err != nil {
		s.metrics.observeGet("error")
		return nil, fmt.Errorf("%w: %s", err, hash)
	}
	s.metrics.observeGet("hit")
	return leaf, nil
}

// Exists reports whether a leaf is stored under hash.
func (s *FileStore) Exists(hash blockcrypt.ContentHash) (bool, error) {
	_, err := os.Stat(LeafPath(s.baseDir, hash))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	return true, nil
}

// DeleteIfUnreferenced removes the leaf for hash when refs reports it as
// unreferenced. Deleting a missing leaf is not an error, so the call is
// idempotent. The reference check and the removal happen under the hash's
// lock, so they cannot interleave with a Put of the same hash in
// this process. Shard directories are left in place: removing an empty one
// could race with a Put of a different hash into the same directory.
func (s *FileStore) DeleteIfUnreferenced(hash blockcrypt.ContentHash, refs RefChecker) (bool, error) {
	if refs == nil {
		return false, ErrNilRefChecker
	}

	defer s.locks.lock(hash)()

	referenced, err := refs.IsReferenced(hash)
	if err != nil {
		return false, fmt.Errorf("blockstore: reference check for %s: %w", hash, err)
	}
	if referenced {
		return false, nil
	}

	if err := os.Remove(LeafPath(s.baseDir, hash)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	s.metrics.observeDelete()
	return true, nil
}

// Size returns the on-disk size of the leaf stored under hash.
func (s *FileStore) Size(hash blockcrypt.ContentHash) (int64, error) {
	info, err := os.Stat(LeafPath(s.baseDir, hash))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	return info.Size(), nil
}

// Walk calls fn for every stored hash by scanning the shard directories.
// Temporary files and names that do not match their shard are skipped.
func (s *FileStore) Walk(fn func(hash blockcrypt.ContentHash) error) error {
	return s.walkLeaves(func(hash blockcrypt.ContentHash, _ fs.DirEntry) error {
		return fn(hash)
	})
}

// walkLeaves iterates over leaf files with their directory entries.
func (s *FileStore) walkLeaves(fn func(hash blockcrypt.ContentHash, entry fs.DirEntry) error) error {
	level1, err := os.ReadDir(s.baseDir)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrIOFailure, err)
	}

	for _, d1 := range level1 {
		if !isShardName(d1) {
			continue
		}
		dir1 := filepath.Join(s.baseDir, d1.Name())
		level2, err := os.ReadDir(dir1)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrIOFailure, err)
		}

		for _, d2 := range level2 {
			if !isShardName(d2) {
				continue
			}
			prefix := d1.Name() + d2.Name()
			files, err := os.ReadDir(filepath.Join(dir1, d2.Name()))
			if err != nil {
				return fmt.Errorf("%w: %w", ErrIOFailure, err)
			}

			for _, f := range files {
				if f.IsDir() {
					continue
				}
				name := f.Name()
				if !strings.HasPrefix(name, prefix) {
					continue // temp files and strays
				}
				hash, err := blockcrypt.ParseContentHash(name)
				if err != nil {
					continue
				}
				if err := fn(hash, f); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// isShardName reports whether e is a two-character lowercase hex directory.
func isShardName(e fs.DirEntry) bool {
	if !e.IsDir() || len(e.Name()) != 2 {
		return false
	}
	name := e.Name()
	if strings.ToLower(name) != name {
		return false
	}
	_, err := hex.DecodeString(name)
	return err == nil
}

// List returns all stored hashes.
func (s *FileStore) List() ([]blockcrypt.ContentHash, error) {
	var result []blockcrypt.ContentHash
	err := s.Walk(func(hash blockcrypt.ContentHash) error {
		result = append(result, hash)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Stats summarizes the store contents.
type Stats struct {
	Blocks int64
	Bytes  int64
}

// Stats counts stored leaves and their total size.
func (s *FileStore) Stats() (Stats, error) {
	var st Stats
	err := s.walkLeaves(func(_ blockcrypt.ContentHash, entry fs.DirEntry) error {
		info, err := entry.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil // deleted during the walk
			}
			return fmt.Errorf("%w: %w", ErrIOFailure, err)
		}
		st.Blocks++
		st.Bytes += info.Size()
		return nil
	})
	return st, err
}

// CleanTemp removes temporary files older than olderThan, left behind by a
// crash between create and rename. It returns the number of files removed.
func (s *FileStore) CleanTemp(olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)
	removed := 0

	err := filepath.WalkDir(s.baseDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() || !strings.HasPrefix(d.Name(), tempPrefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if info.ModTime().After(cutoff) {
			return nil
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		removed++
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	return removed, nil
}

// Compile-time interface check.
var _ Store = (*FileStore)(nil)
