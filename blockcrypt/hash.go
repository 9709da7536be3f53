// Package blockcrypt holds the per-block cryptography of the vault:
// content addressing, per-block key derivation and authenticated encryption.
//
// Addressing:
//
//	content_hash = BLAKE2b-256(plaintext)
//
// Key derivation:
//
//	BLAKE2b-512(master_key || salt) = block_key(32B) || nonce(24B) || unused(8B)
//
// Encryption:
//
//	ciphertext || tag = XChaCha20-Poly1305(block_key, nonce, plaintext)
package blockcrypt

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// HashLen is the length of a content hash in bytes.
const HashLen = blake2b.Size256

// ContentHash is the BLAKE2b-256 digest of a plaintext block. It is the
// dedup key and the on-disk address of the block.
type ContentHash [HashLen]byte

// Hash computes the content hash of a plaintext block. It depends only on
// the plaintext bytes, never on salt or ciphertext.
func Hash(plaintext []byte) ContentHash {
	return blake2b.Sum256(plaintext)
}

// String returns the lowercase hex encoding of the hash.
func (h ContentHash) String() string {
	return hex.EncodeToString(h[:])
}

// Bytes returns a copy of the hash as a slice.
func (h ContentHash) Bytes() []byte {
	b := make([]byte, HashLen)
	copy(b, h[:])
	return b
}

// IsZero reports whether h is the all-zero value.
func (h ContentHash) IsZero() bool {
	return h == ContentHash{}
}

// ParseContentHash decodes a 64-character hex string into a ContentHash.
func ParseContentHash(s string) (ContentHash, error) {
	var h ContentHash
	if len(s) != HashLen*2 {
		return h, fmt.Errorf("%w: want %d hex chars, got %d", ErrInvalidContentHash, HashLen*2, len(s))
	}
	if _, err := hex.Decode(h[:], []byte(s)); err != nil {
		return h, fmt.Errorf("%w: %w", ErrInvalidContentHash, err)
	}
	return h, nil
}

// ContentHashFromBytes copies a 32-byte slice into a ContentHash.
func ContentHashFromBytes(b []byte) (ContentHash, error) {
	var h ContentHash
	if len(b) != HashLen {
		return h, fmt.Errorf("%w: got %d bytes", ErrInvalidContentHash, len(b))
	}
	copy(h[:], b)
	return h, nil
}

// MarshalText implements encoding.TextMarshaler.
func (h ContentHash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *ContentHash) UnmarshalText(text []byte) error {
	parsed, err := ParseContentHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}
