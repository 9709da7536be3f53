package keyring

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/chacha20poly1305"
)

// RecordVersion is the current wrapped key record format.
const RecordVersion = 1

// VerificationHashLen is the length of the master key verification hash.
const VerificationHashLen = blake2b.Size256

// WrappedMasterKey is the persistable form of a master key.
//
// The caller stores it (see the catalog package); the keyring never
// writes it anywhere.
type WrappedMasterKey struct {
	Version          int       `json:"version"`
	KDFSalt          []byte    `json:"kdf_salt"`
	KDFParams        KDFParams `json:"kdf_params"`
	Nonce            []byte    `json:"nonce"`
	Ciphertext       []byte    `json:"ciphertext"`
	VerificationHash []byte    `json:"verification_hash"`
}

// Validate checks the structural integrity of the record.
func (w *WrappedMasterKey) Validate() error {
	if w == nil {
		return fmt.Errorf("%w: nil record", ErrInvalidRecord)
	}
	if w.Version != RecordVersion {
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, w.Version)
	}
	if len(w.KDFSalt) != KDFSaltLen {
		return fmt.Errorf("%w: kdf salt must be %d bytes", ErrInvalidRecord, KDFSaltLen)
	}
	if len(w.Nonce) != chacha20poly1305.NonceSizeX {
		return fmt.Errorf("%w: nonce must be %d bytes", ErrInvalidRecord, chacha20poly1305.NonceSizeX)
	}
	if len(w.Ciphertext) != MasterKeyLen+chacha20poly1305.Overhead {
		return fmt.Errorf("%w: ciphertext must be %d bytes", ErrInvalidRecord, MasterKeyLen+chacha20poly1305.Overhead)
	}
	if len(w.VerificationHash) != VerificationHashLen {
		return fmt.Errorf("%w: verification hash must be %d bytes", ErrInvalidRecord, VerificationHashLen)
	}
	return w.KDFParams.Validate()
}

// Marshal encodes the record as JSON.
func (w *WrappedMasterKey) Marshal() ([]byte, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(w)
}

// UnmarshalWrappedMasterKey decodes and validates a JSON record.
func UnmarshalWrappedMasterKey(data []byte) (*WrappedMasterKey, error) {
	var w WrappedMasterKey
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return &w, nil
}

// VerificationHash returns BLAKE2b-256 of the master key.
func VerificationHash(mk MasterKey) []byte {
	sum := blake2b.Sum256(mk[:])
	return sum[:]
}

// Setup creates a new master key from src and wraps it under pin using
// ModerateKDFParams.
func Setup(pin string, src KeySource) (*WrappedMasterKey, error) {
	return SetupWithParams(pin, src, ModerateKDFParams)
}

// SetupWithParams is Setup with explicit Argon2id cost parameters.
//
// Process:
//  1. Validates the PIN (digits only, at least MinPinLen)
//  2. Resolves the master key (random or explicit hex)
//  3. Derives the wrapping key with Argon2id over a fresh salt
//  4. Seals the master key with XChaCha20-Poly1305 under a random nonce
//  5. Records BLAKE2b-256(master key) for unlock verification
func SetupWithParams(pin string, src KeySource, params KDFParams) (*WrappedMasterKey, error) {
	if err := ValidatePin(pin); err != nil {
		return nil, err
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	mk, err := src.resolve()
	if err != nil {
		return nil, err
	}
	defer mk.Zero()

	return wrap(pin, mk, params)
}

// wrap seals mk under pin with fresh salt and nonce.
func wrap(pin string, mk MasterKey, params KDFParams) (*WrappedMasterKey, error) {
	salt := make([]byte, KDFSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("keyring: generate kdf salt: %w", err)
	}

	wrapKey := deriveWrapKey(pin, salt, params)
	defer zeroBytes(wrapKey)

	aead, err := chacha20poly1305.NewX(wrapKey)
	if err != nil {
		return nil, fmt.Errorf("keyring: cipher creation failed: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("keyring: generate nonce: %w", err)
	}

	return &WrappedMasterKey{
		Version:          RecordVersion,
		KDFSalt:          salt,
		KDFParams:        params,
		Nonce:            nonce,
		Ciphertext:       aead.Seal(nil, nonce, mk[:], nil),
		VerificationHash: VerificationHash(mk),
	}, nil
}

// Unlock re-derives the wrapping key from pin and recovers the master key.
//
// Any authentication failure or verification hash mismatch is reported as
// ErrWrongPin; no key material is returned in that case.
func Unlock(pin string, wrapped *WrappedMasterKey) (MasterKey, error) {
	var mk MasterKey
	if err := wrapped.Validate(); err != nil {
		return mk, err
	}
	if pin == "" {
		return mk, ErrWrongPin
	}

	wrapKey := deriveWrapKey(pin, wrapped.KDFSalt, wrapped.KDFParams)
	defer zeroBytes(wrapKey)

	aead, err := chacha20poly1305.NewX(wrapKey)
	if err != nil {
		return mk, fmt.Errorf("keyring: cipher creation failed: %w", err)
	}

	plain, err := aead.Open(nil, wrapped.Nonce, wrapped.Ciphertext, nil)
	if err != nil {
		return mk, ErrWrongPin
	}
	defer zeroBytes(plain)
	if len(plain) != MasterKeyLen {
		return mk, ErrWrongPin
	}
	copy(mk[:], plain)

	if subtle.ConstantTimeCompare(VerificationHash(mk), wrapped.VerificationHash) != 1 {
		mk.Zero()
		return mk, ErrWrongPin
	}
	return mk, nil
}

// ChangePin unwraps with oldPin and re-wraps the same master key under
// newPin with a fresh salt and nonce. The KDF cost of the original record
// is kept.
func ChangePin(oldPin, newPin string, wrapped *WrappedMasterKey) (*WrappedMasterKey, error) {
	if err := ValidatePin(newPin); err != nil {
		return nil, err
	}
	mk, err := Unlock(oldPin, wrapped)
	if err != nil {
		return nil, err
	}
	defer mk.Zero()
	return wrap(newPin, mk, wrapped.KDFParams)
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
