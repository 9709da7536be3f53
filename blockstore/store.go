// Package blockstore is the content-addressed, deduplicating store for
// encrypted blocks.
//
// A block's location is a pure function of its plaintext content hash, so no
// index is needed to find it:
//
//	{baseDir}/{hex(hash[0])}/{hex(hash[1])}/{hex(hash)}
//
// The store holds no reference counts. Whoever tracks which files use which
// blocks answers IsReferenced when a block is considered for deletion.
package blockstore

import "github.com/bitfsorg/libvault-go/blockcrypt"

// PutResult reports whether Put wrote a new leaf or found one already present.
type PutResult int

const (
	// PutUnknown is returned alongside an error; nothing is known to be stored.
	PutUnknown PutResult = iota
	// Stored means a new leaf file was written.
	Stored
	// AlreadyExists means a leaf for the hash was present and nothing was written.
	AlreadyExists
)

func (r PutResult) String() string {
	switch r {
	case Stored:
		return "stored"
	case AlreadyExists:
		return "already_exists"
	default:
		return "unknown"
	}
}

// RefChecker reports whether a block is still referenced by any file.
type RefChecker interface {
	IsReferenced(hash blockcrypt.ContentHash) (bool, error)
}

// RefCheckerFunc adapts a function to RefChecker.
type RefCheckerFunc func(hash blockcrypt.ContentHash) (bool, error)

// IsReferenced calls f(hash).
func (f RefCheckerFunc) IsReferenced(hash blockcrypt.ContentHash) (bool, error) {
	return f(hash)
}

// Store provides content-addressed storage for encrypted blocks.
type Store interface {
	// Put stores a leaf under hash unless one is already present.
	Put(hash blockcrypt.ContentHash, leaf *Leaf) (PutResult, error)

	// Get retrieves the leaf stored under hash, or ErrNotFound.
	Get(hash blockcrypt.ContentHash) (*Leaf, error)

	// Exists reports whether a leaf is stored under hash.
	Exists(hash blockcrypt.ContentHash) (bool, error)

	// DeleteIfUnreferenced removes the leaf if refs says nothing uses it.
	// It returns true only when a file was actually removed.
	DeleteIfUnreferenced(hash blockcrypt.ContentHash, refs RefChecker) (bool, error)

	// Size returns the on-disk size of the leaf in bytes.
	Size(hash blockcrypt.ContentHash) (int64, error)

	// Walk calls fn for every stored hash. Iteration stops at the first error.
	Walk(fn func(hash blockcrypt.ContentHash) error) error
}
