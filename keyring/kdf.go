// Package keyring implements the PIN-protected master key hierarchy.
//
//	wrap_key   = Argon2id(pin, kdf_salt, params)
//	wrapped    = XChaCha20-Poly1305(wrap_key, nonce, master_key)
//	verify     = BLAKE2b-256(master_key)
//
// The master key itself is never persisted; only the wrapped record is.
package keyring

import (
	"fmt"

	"golang.org/x/crypto/argon2"
)

const (
	// MinPinLen is the minimum number of digits in a PIN.
	MinPinLen = 4

	// KDFSaltLen is the Argon2id salt length in bytes.
	KDFSaltLen = 16

	// Bounds accepted when unwrapping a record, so a tampered record cannot
	// request an absurd amount of work or memory.
	maxKDFTime      = 64
	maxKDFMemoryKiB = 4 * 1024 * 1024
	maxKDFThreads   = 64
)

// KDFParams are the Argon2id cost parameters stored with a wrapped key.
type KDFParams struct {
	Time      uint32 `json:"time"`
	MemoryKiB uint32 `json:"memory_kib"`
	Threads   uint8  `json:"threads"`
}

// ModerateKDFParams is the default cost tier (3 passes, 256 MiB), which
// targets roughly half a second to a second on commodity hardware.
var ModerateKDFParams = KDFParams{Time: 3, MemoryKiB: 256 * 1024, Threads: 1}

// InteractiveKDFParams is a cheaper tier for constrained hosts.
var InteractiveKDFParams = KDFParams{Time: 2, MemoryKiB: 64 * 1024, Threads: 1}

// Validate checks that the parameters are usable and within bounds.
func (p KDFParams) Validate() error {
	if p.Time == 0 || p.Time > maxKDFTime {
		return fmt.Errorf("%w: time must be 1..%d, got %d", ErrInvalidKDFParams, maxKDFTime, p.Time)
	}
	if p.MemoryKiB < 8*uint32(max(p.Threads, 1)) || p.MemoryKiB > maxKDFMemoryKiB {
		return fmt.Errorf("%w: memory %d KiB out of range", ErrInvalidKDFParams, p.MemoryKiB)
	}
	if p.Threads == 0 || p.Threads > maxKDFThreads {
		return fmt.Errorf("%w: threads must be 1..%d, got %d", ErrInvalidKDFParams, maxKDFThreads, p.Threads)
	}
	return nil
}

// deriveWrapKey stretches the PIN into a 32-byte wrapping key.
func deriveWrapKey(pin string, salt []byte, p KDFParams) []byte {
	return argon2.IDKey([]byte(pin), salt, p.Time, p.MemoryKiB, p.Threads, MasterKeyLen)
}

// ValidatePin checks that pin is a string of at least MinPinLen ASCII digits.
func ValidatePin(pin string) error {
	if len(pin) < MinPinLen {
		return fmt.Errorf("%w: got %d characters", ErrInvalidPin, len(pin))
	}
	for _, c := range pin {
		if c < '0' || c > '9' {
			return fmt.Errorf("%w: non-digit character", ErrInvalidPin)
		}
	}
	return nil
}
