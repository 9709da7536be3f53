package vault

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/bitfsorg/libvault-go/blockcrypt"
	"github.com/bitfsorg/libvault-go/blockstore"
	"github.com/bitfsorg/libvault-go/keyring"
)

// FileImportResult describes an imported file. The caller owns it and is
// responsible for recording it and reference-counting its hashes.
type FileImportResult struct {
	// Hashes lists block addresses in file order. Repeated content repeats
	// the same hash.
	Hashes []blockcrypt.ContentHash `json:"hashes"`

	// TotalLength is the file length in bytes.
	TotalLength int64 `json:"total_length"`

	// LastBlockLength is the true length of the final block (0 for an empty file).
	LastBlockLength int `json:"last_block_length"`

	// NewBlocks counts blocks written by this import; the rest were deduplicated.
	NewBlocks int `json:"new_blocks"`
}

// BlockCount returns the number of blocks in the file.
func (r *FileImportResult) BlockCount() int {
	return len(r.Hashes)
}

// Import splits r into BlockSize blocks and stores each one that is not
// already present. It returns a result only when every block is durably
// stored; on error or cancellation it returns nil, though blocks written
// before the failure stay in the store as valid, reusable content.
//
// While Import runs, DeleteUnreferenced leaves the file's blocks alone.
// Callers that record the result in a reference store concurrently with
// cleanup should use ImportWith so the protection lasts until the record
// is written.
func (v *Vault) Import(ctx context.Context, r io.Reader, sess *keyring.Session) (*FileImportResult, error) {
	return v.ImportWith(ctx, r, sess, nil)
}

// ImportWith is Import followed by commit, which runs before the file's
// blocks become eligible for DeleteUnreferenced. A commit error is returned
// and the result discarded.
func (v *Vault) ImportWith(ctx context.Context, r io.Reader, sess *keyring.Session, commit func(*FileImportResult) error) (*FileImportResult, error) {
	if err := v.checkOpen(); err != nil {
		return nil, err
	}
	if sess == nil || !sess.IsUnlocked() {
		return nil, keyring.ErrLocked
	}

	var pinned []blockcrypt.ContentHash
	defer func() { v.unpin(pinned) }()

	buf := make([]byte, BlockSize)
	res := &FileImportResult{}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		n, readErr := io.ReadFull(r, buf)
		eof := readErr == io.EOF || readErr == io.ErrUnexpectedEOF
		if readErr != nil && !eof {
			return nil, fmt.Errorf("vault: read input: %w", readErr)
		}
		if n > 0 {
			hash := blockcrypt.Hash(buf[:n])
			v.pin(hash)
			pinned = append(pinned, hash)

			isNew, err := v.putBlock(hash, buf[:n], sess)
			if err != nil {
				return nil, err
			}
			res.Hashes = append(res.Hashes, hash)
			res.TotalLength += int64(n)
			res.LastBlockLength = n
			if isNew {
				res.NewBlocks++
			}
		}

		if eof {
			break
		}
	}

	if commit != nil {
		if err := commit(res); err != nil {
			return nil, err
		}
	}

	v.log.WithFields(logrus.Fields{
		"blocks":     len(res.Hashes),
		"new_blocks": res.NewBlocks,
		"bytes":      res.TotalLength,
	}).Debug("import complete")
	return res, nil
}

// ImportBytes imports an in-memory file.
func (v *Vault) ImportBytes(ctx context.Context, data []byte, sess *keyring.Session) (*FileImportResult, error) {
	return v.Import(ctx, bytes.NewReader(data), sess)
}

// ImportFile imports the local file at path.
func (v *Vault) ImportFile(ctx context.Context, path string, sess *keyring.Session) (*FileImportResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("vault: open %s: %w", path, err)
	}
	defer f.Close()

	res, err := v.Import(ctx, f, sess)
	if err != nil {
		return nil, err
	}
	v.log.WithFields(logrus.Fields{"path": path, "bytes": res.TotalLength}).Info("file imported")
	return res, nil
}

// putBlock stores one plaintext block under hash unless present. The
// caller has pinned hash, so a block found here cannot be deleted before
// the import finishes.
//
// The dedup short-circuit happens before any salt is drawn or key derived.
// A new block always gets a fresh salt, and therefore a fresh key/nonce
// pair, so no (key, nonce) is ever used for two plaintexts.
func (v *Vault) putBlock(hash blockcrypt.ContentHash, plain []byte, sess *keyring.Session) (bool, error) {
	isNew := false

	err := sess.WithKey(func(mk *keyring.MasterKey) error {
		exists, err := v.store.Exists(hash)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}

		salt, err := blockcrypt.NewSalt()
		if err != nil {
			return err
		}
		sealed, err := blockcrypt.SealBlock(mk[:], salt, plain)
		if err != nil {
			return err
		}

		res, err := v.store.Put(hash, &blockstore.Leaf{
			Salt:       salt,
			Ciphertext: sealed.Ciphertext,
			Tag:        sealed.Tag,
		})
		if err != nil {
			return err
		}
		isNew = res == blockstore.Stored
		return nil
	})
	if err != nil {
		if errors.Is(err, keyring.ErrLocked) {
			return false, err
		}
		return false, fmt.Errorf("vault: store block %s: %w", hash, err)
	}
	return isNew, nil
}
