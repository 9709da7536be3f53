package blockcrypt

import "errors"

var (
	// ErrInvalidKey indicates a key is not exactly KeyLen bytes.
	ErrInvalidKey = errors.New("blockcrypt: key must be 32 bytes")

	// ErrInvalidSalt indicates a block salt is not exactly SaltLen bytes.
	ErrInvalidSalt = errors.New("blockcrypt: salt must be 16 bytes")

	// ErrInvalidTag indicates an authentication tag is not exactly TagLen bytes.
	ErrInvalidTag = errors.New("blockcrypt: authentication tag must be 16 bytes")

	// ErrAuthenticationFailed indicates the Poly1305 tag did not verify.
	// No plaintext is ever returned alongside this error.
	ErrAuthenticationFailed = errors.New("blockcrypt: authentication failed")

	// ErrInvalidContentHash indicates a content hash string or slice is malformed.
	ErrInvalidContentHash = errors.New("blockcrypt: invalid content hash")

	// ErrRandomSource indicates the system CSPRNG could not be read.
	ErrRandomSource = errors.New("blockcrypt: random source failure")
)
