package blockcrypt

import (
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// TagLen is the length of the Poly1305 authentication tag in bytes.
const TagLen = chacha20poly1305.Overhead

// Sealed is an encrypted block with its tag carried separately.
type Sealed struct {
	Ciphertext []byte
	Tag        []byte
}

// Encrypt encrypts plaintext under a single-use block key.
//
// The ciphertext has the same length as the plaintext; the 16-byte tag is
// split off so it can be laid out independently on disk.
func Encrypt(plaintext []byte, key *BlockKey) (*Sealed, error) {
	if key == nil {
		return nil, ErrInvalidKey
	}
	aead, err := chacha20poly1305.NewX(key.Key[:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}

	out := aead.Seal(make([]byte, 0, len(plaintext)+TagLen), key.Nonce[:], plaintext, nil)
	n := len(out) - TagLen
	return &Sealed{
		Ciphertext: out[:n:n],
		Tag:        out[n:],
	}, nil
}

// Decrypt authenticates and decrypts a block. On any tag mismatch it
// returns ErrAuthenticationFailed and a nil plaintext.
func Decrypt(ciphertext, tag []byte, key *BlockKey) ([]byte, error) {
	if key == nil {
		return nil, ErrInvalidKey
	}
	if len(tag) != TagLen {
		return nil, fmt.Errorf("%w: got %d bytes", ErrInvalidTag, len(tag))
	}
	aead, err := chacha20poly1305.NewX(key.Key[:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}

	sealed := make([]byte, 0, len(ciphertext)+TagLen)
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := aead.Open(sealed[:0], key.Nonce[:], sealed, nil)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}
	// Normalize nil to empty slice for consistency.
	if plaintext == nil {
		plaintext = []byte{}
	}
	return plaintext, nil
}

// SealBlock derives a key from masterKey and salt, then encrypts plaintext.
func SealBlock(masterKey, salt, plaintext []byte) (*Sealed, error) {
	key, err := DeriveBlockKey(masterKey, salt)
	if err != nil {
		return nil, err
	}
	defer key.Zero()
	return Encrypt(plaintext, key)
}

// OpenBlock derives a key from masterKey and salt, then decrypts.
func OpenBlock(masterKey, salt, ciphertext, tag []byte) ([]byte, error) {
	key, err := DeriveBlockKey(masterKey, salt)
	if err != nil {
		return nil, err
	}
	defer key.Zero()
	return Decrypt(ciphertext, tag, key)
}
