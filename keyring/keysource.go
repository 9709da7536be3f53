package keyring

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/bitfsorg/libvault-go/blockcrypt"
)

// MasterKeyLen is the master key length in bytes (256 bits).
const MasterKeyLen = blockcrypt.KeyLen

// MasterKey is the root secret of a repository. It only ever lives in memory.
type MasterKey [MasterKeyLen]byte

// Zero overwrites the key bytes.
func (k *MasterKey) Zero() {
	for i := range k {
		k[i] = 0
	}
}

// Hex returns the key as 64 lowercase hex characters, for backup display.
func (k MasterKey) Hex() string {
	return hex.EncodeToString(k[:])
}

// KeySource selects where a new master key comes from.
type KeySource struct {
	explicit string
	isSet    bool
}

// RandomKey generates the master key from the system CSPRNG.
func RandomKey() KeySource {
	return KeySource{}
}

// ExplicitKey uses a caller-supplied hex-encoded master key.
func ExplicitKey(hexKey string) KeySource {
	return KeySource{explicit: hexKey, isSet: true}
}

// resolve produces the master key described by the source.
func (s KeySource) resolve() (MasterKey, error) {
	var mk MasterKey
	if !s.isSet {
		if _, err := rand.Read(mk[:]); err != nil {
			return mk, fmt.Errorf("keyring: generate master key: %w", err)
		}
		return mk, nil
	}
	return ParseMasterKey(s.explicit)
}

// ParseMasterKey decodes a 64-character hex string. Surrounding whitespace
// is ignored and either letter case is accepted.
func ParseMasterKey(hexKey string) (MasterKey, error) {
	var mk MasterKey
	hexKey = strings.TrimSpace(hexKey)
	if len(hexKey) != MasterKeyLen*2 {
		return mk, fmt.Errorf("%w: got %d characters", ErrInvalidKeyFormat, len(hexKey))
	}
	if _, err := hex.Decode(mk[:], []byte(hexKey)); err != nil {
		return mk, fmt.Errorf("%w: %w", ErrInvalidKeyFormat, err)
	}
	return mk, nil
}
