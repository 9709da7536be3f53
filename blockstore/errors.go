package blockstore

import "errors"

var (
	// ErrNotFound indicates no block is stored under the given content hash.
	ErrNotFound = errors.New("blockstore: block not found")

	// ErrIOFailure indicates a file read/write error.
	ErrIOFailure = errors.New("blockstore: I/O failure")

	// ErrInvalidBaseDir indicates the base directory path is invalid.
	ErrInvalidBaseDir = errors.New("blockstore: invalid base directory")

	// ErrInvalidLeaf indicates a leaf with a wrong salt or tag length was passed to Put.
	ErrInvalidLeaf = errors.New("blockstore: invalid leaf")

	// ErrCorruptLeaf indicates a stored leaf file is too short to hold salt and tag.
	ErrCorruptLeaf = errors.New("blockstore: corrupt leaf file")

	// ErrNilRefChecker indicates DeleteIfUnreferenced was called without a reference checker.
	ErrNilRefChecker = errors.New("blockstore: reference checker is nil")
)
