package vault

import "errors"

var (
	// ErrMissingBlock indicates a hash in a block list has no stored block.
	ErrMissingBlock = errors.New("vault: missing block")

	// ErrCorruptBlock indicates a stored block failed authentication or its
	// decrypted content does not match its address.
	ErrCorruptBlock = errors.New("vault: corrupt block")

	// ErrRepositoryLocked indicates another process holds the repository lock.
	ErrRepositoryLocked = errors.New("vault: repository is in use by another process")

	// ErrEmptyRepoPath indicates an empty repository path.
	ErrEmptyRepoPath = errors.New("vault: repository path must not be empty")

	// ErrClosed indicates an operation on a closed vault.
	ErrClosed = errors.New("vault: closed")
)
