package blockcrypt

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	// KeyLen is the length of master and block keys in bytes.
	KeyLen = chacha20poly1305.KeySize

	// SaltLen is the length of a per-block salt in bytes.
	SaltLen = 16

	// NonceLen is the XChaCha20 nonce length in bytes.
	NonceLen = chacha20poly1305.NonceSizeX
)

// BlockKey is the single-use key material for one stored block instance.
type BlockKey struct {
	Key   [KeyLen]byte
	Nonce [NonceLen]byte
}

// Zero overwrites the key material.
func (k *BlockKey) Zero() {
	for i := range k.Key {
		k.Key[i] = 0
	}
	for i := range k.Nonce {
		k.Nonce[i] = 0
	}
}

// DeriveBlockKey derives the block key and nonce for a salt.
//
//	digest = BLAKE2b-512(masterKey || salt)
//	key    = digest[0:32]
//	nonce  = digest[32:56]
//
// The derivation is deterministic, so the salt stored with a block is
// enough to re-derive both values on read. Uniqueness of the (key, nonce)
// pair rests entirely on the salt being fresh for every written block.
func DeriveBlockKey(masterKey, salt []byte) (*BlockKey, error) {
	if len(masterKey) != KeyLen {
		return nil, fmt.Errorf("%w: got %d bytes", ErrInvalidKey, len(masterKey))
	}
	if len(salt) != SaltLen {
		return nil, fmt.Errorf("%w: got %d bytes", ErrInvalidSalt, len(salt))
	}

	h, err := blake2b.New512(nil)
	if err != nil {
		return nil, fmt.Errorf("blockcrypt: init blake2b: %w", err)
	}
	h.Write(masterKey)
	h.Write(salt)
	digest := h.Sum(nil)

	bk := &BlockKey{}
	copy(bk.Key[:], digest[:KeyLen])
	copy(bk.Nonce[:], digest[KeyLen:KeyLen+NonceLen])
	for i := range digest {
		digest[i] = 0
	}
	return bk, nil
}

// NewSalt returns SaltLen bytes from the system CSPRNG.
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRandomSource, err)
	}
	return salt, nil
}
