package vault

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/bitfsorg/libvault-go/blockcrypt"
	"github.com/bitfsorg/libvault-go/blockstore"
	"github.com/bitfsorg/libvault-go/keyring"
)

// Export fetches, decrypts and verifies each block in order and writes the
// plaintext to w. It returns the number of bytes written.
//
// Blocks are verified one at a time, so w may have received earlier blocks
// when a later one fails. Use ExportBytes or ExportFile when a partial
// result must never be observed.
func (v *Vault) Export(ctx context.Context, hashes []blockcrypt.ContentHash, sess *keyring.Session, w io.Writer) (int64, error) {
	if err := v.checkOpen(); err != nil {
		return 0, err
	}
	if sess == nil || !sess.IsUnlocked() {
		return 0, keyring.ErrLocked
	}

	var written int64
	for _, hash := range hashes {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		plain, err := v.getBlock(hash, sess)
		if err != nil {
			return written, err
		}
		n, err := w.Write(plain)
		written += int64(n)
		if err != nil {
			return written, fmt.Errorf("vault: write output: %w", err)
		}
	}
	return written, nil
}

// ExportBytes reassembles a file in memory. On error no bytes are returned.
func (v *Vault) ExportBytes(ctx context.Context, hashes []blockcrypt.ContentHash, sess *keyring.Session) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := v.Export(ctx, hashes, sess, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ExportFile reassembles a file to dst. Output goes to a temporary file in
// the destination directory and is renamed into place only after every
// block verified, so a failed export never leaves a partial dst.
func (v *Vault) ExportFile(ctx context.Context, hashes []blockcrypt.ContentHash, sess *keyring.Session, dst string) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".export-*")
	if err != nil {
		return fmt.Errorf("vault: create temp for %s: %w", dst, err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	n, err := v.Export(ctx, hashes, sess, tmp)
	if err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("vault: sync %s: %w", tmp.Name(), err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("vault: close %s: %w", tmp.Name(), err)
	}
	if err = os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("vault: rename to %s: %w", dst, err)
	}

	v.log.WithFields(logrus.Fields{"path": dst, "bytes": n}).Info("file exported")
	return nil
}

// VerifyBlocks decrypts and re-hashes every block without producing output.
func (v *Vault) VerifyBlocks(ctx context.Context, hashes []blockcrypt.ContentHash, sess *keyring.Session) error {
	_, err := v.Export(ctx, hashes, sess, io.Discard)
	return err
}

// getBlock loads, decrypts and verifies a single block.
func (v *Vault) getBlock(hash blockcrypt.ContentHash, sess *keyring.Session) ([]byte, error) {
	var plain []byte
	err := sess.WithKey(func(mk *keyring.MasterKey) error {
		leaf, err := v.store.Get(hash)
		if err != nil {
			switch {
			case errors.Is(err, blockstore.ErrNotFound):
				return fmt.Errorf("%w: %s", ErrMissingBlock, hash)
			case errors.Is(err, blockstore.ErrCorruptLeaf):
				return fmt.Errorf("%w: %s: %w", ErrCorruptBlock, hash, err)
			default:
				return fmt.Errorf("vault: read block %s: %w", hash, err)
			}
		}

		p, err := blockcrypt.OpenBlock(mk[:], leaf.Salt, leaf.Ciphertext, leaf.Tag)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrCorruptBlock, hash, err)
		}
		if blockcrypt.Hash(p) != hash {
			return fmt.Errorf("%w: %s: content does not match address", ErrCorruptBlock, hash)
		}
		plain = p
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrCorruptBlock) {
			v.log.WithField("hash", hash.String()).WithError(err).Error("block integrity check failed")
		}
		return nil, err
	}
	return plain, nil
}
