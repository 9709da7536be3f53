// Package vault splits files into encrypted, deduplicated blocks and
// reassembles them.
//
// Repository layout:
//
//	{repo}/.vault/blocks/{hex(h[0])}/{hex(h[1])}/{hex(h)}   block leaves
//	{repo}/.vault/vault.lock                                 process lock
package vault

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/bitfsorg/libvault-go/blockcrypt"
	"github.com/bitfsorg/libvault-go/blockstore"
	"github.com/bitfsorg/libvault-go/config"
)

const (
	// BlockSize is the plaintext size of every block except possibly the last.
	BlockSize = 4 * 1024 * 1024

	// MetaDirName is the hidden directory inside a repository.
	MetaDirName = config.MetaDirName

	blocksDirName = "blocks"
	lockFileName  = "vault.lock"
)

// BlocksDir returns the block store root for a repository.
func BlocksDir(repoPath string) string {
	return filepath.Join(repoPath, MetaDirName, blocksDirName)
}

// Options configures a Vault. The zero value is usable.
type Options struct {
	// Logger receives operational logs. Nil discards them.
	Logger logrus.FieldLogger

	// Metrics is attached to the block store opened by Open.
	Metrics *blockstore.Metrics

	// Workers bounds ImportBatch parallelism. Zero means GOMAXPROCS.
	Workers int
}

// Vault imports and exports files against one block store.
type Vault struct {
	store   blockstore.Store
	log     logrus.FieldLogger
	workers int

	repoPath string
	lockFile *os.File
	closers  []io.Closer

	mu     sync.Mutex
	closed bool

	// pins counts in-flight imports per hash. DeleteUnreferenced skips
	// pinned hashes, and pinMu orders pin registration against deletion.
	pinMu sync.Mutex
	pins  map[blockcrypt.ContentHash]int
}

// New wraps an existing block store. No repository lock is taken.
func New(store blockstore.Store, opts *Options) *Vault {
	if opts == nil {
		opts = &Options{}
	}
	v := &Vault{
		store:   store,
		log:     opts.Logger,
		workers: opts.Workers,
		pins:    make(map[blockcrypt.ContentHash]int),
	}
	if v.log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		v.log = l
	}
	if v.workers <= 0 {
		v.workers = runtime.GOMAXPROCS(0)
	}
	return v
}

// Open prepares the repository layout under repoPath, takes the exclusive
// repository lock and opens the block store.
//
// Temporary files left by an interrupted write are removed: holding the
// lock means no other process can be writing them.
func Open(repoPath string, opts *Options) (*Vault, error) {
	if repoPath == "" {
		return nil, ErrEmptyRepoPath
	}
	if opts == nil {
		opts = &Options{}
	}

	metaDir := filepath.Join(repoPath, MetaDirName)
	if err := os.MkdirAll(metaDir, 0700); err != nil {
		return nil, fmt.Errorf("vault: create %s: %w", metaDir, err)
	}

	lf, err := tryLock(filepath.Join(metaDir, lockFileName))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRepositoryLocked, err)
	}

	fs, err := blockstore.NewFileStore(BlocksDir(repoPath), blockstore.WithMetrics(opts.Metrics))
	if err != nil {
		releaseLock(lf)
		return nil, fmt.Errorf("vault: init block store: %w", err)
	}

	v := New(fs, opts)
	v.repoPath = repoPath
	v.lockFile = lf

	removed, err := fs.CleanTemp(0)
	if err != nil {
		v.log.WithError(err).Warn("temp file cleanup failed")
	} else if removed > 0 {
		v.log.WithField("files", removed).Info("removed interrupted block writes")
	}

	v.log.WithField("repo", repoPath).Debug("repository opened")
	return v, nil
}

// OpenConfig validates cfg, builds its logger and opens the repository at
// cfg.RepoPath. Block store metrics are registered with reg when it is
// non-nil. The log file, if any, is closed by Close.
func OpenConfig(cfg config.Config, reg prometheus.Registerer) (*Vault, error) {
	if err := config.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	logger, closeLog, err := config.NewLogger(cfg)
	if err != nil {
		return nil, err
	}

	opts := &Options{Logger: logger, Workers: cfg.Workers}
	if reg != nil {
		opts.Metrics = blockstore.NewMetrics(reg)
	}

	v, err := Open(cfg.RepoPath, opts)
	if err != nil {
		_ = closeLog()
		return nil, err
	}
	v.closers = append(v.closers, closerFunc(closeLog))
	return v, nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// Store returns the underlying block store.
func (v *Vault) Store() blockstore.Store {
	return v.store
}

// RepoPath returns the repository root, or "" for a Vault built with New.
func (v *Vault) RepoPath() string {
	return v.repoPath
}

// Close releases the repository lock. It is safe to call more than once.
func (v *Vault) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return nil
	}
	v.closed = true
	releaseLock(v.lockFile)
	v.lockFile = nil

	var firstErr error
	for _, c := range v.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	v.closers = nil
	return firstErr
}

// checkOpen returns ErrClosed after Close.
func (v *Vault) checkOpen() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return ErrClosed
	}
	return nil
}

// pin marks hash as in use by an import that has not finished.
func (v *Vault) pin(hash blockcrypt.ContentHash) {
	v.pinMu.Lock()
	v.pins[hash]++
	v.pinMu.Unlock()
}

// unpin releases one pin per listed occurrence.
func (v *Vault) unpin(hashes []blockcrypt.ContentHash) {
	v.pinMu.Lock()
	defer v.pinMu.Unlock()
	for _, h := range hashes {
		if v.pins[h] <= 1 {
			delete(v.pins, h)
			continue
		}
		v.pins[h]--
	}
}

// pinned reports the number of hashes with in-flight imports.
func (v *Vault) pinned() int {
	v.pinMu.Lock()
	defer v.pinMu.Unlock()
	return len(v.pins)
}
