package keyring

import "errors"

var (
	// ErrInvalidPin indicates the PIN is not a digit string of at least MinPinLen characters.
	ErrInvalidPin = errors.New("keyring: PIN must be at least 4 digits")

	// ErrInvalidKeyFormat indicates an explicit master key is not 64 hex characters.
	ErrInvalidKeyFormat = errors.New("keyring: master key must be 64 hex characters (32 bytes)")

	// ErrWrongPin indicates the PIN did not unlock the wrapped master key.
	ErrWrongPin = errors.New("keyring: wrong PIN")

	// ErrLocked indicates an operation needed the master key while the session was locked.
	ErrLocked = errors.New("keyring: session is locked")

	// ErrInvalidRecord indicates a wrapped master key record is malformed.
	ErrInvalidRecord = errors.New("keyring: invalid wrapped key record")

	// ErrInvalidKDFParams indicates Argon2id parameters outside the accepted range.
	ErrInvalidKDFParams = errors.New("keyring: invalid KDF parameters")

	// ErrUnsupportedVersion indicates a wrapped key record from an unknown format version.
	ErrUnsupportedVersion = errors.New("keyring: unsupported wrapped key record version")
)
