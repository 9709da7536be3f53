package vault

import (
	"context"
	"errors"
	"fmt"

	"github.com/bitfsorg/libvault-go/blockcrypt"
	"github.com/bitfsorg/libvault-go/blockstore"
	"github.com/bitfsorg/libvault-go/keyring"
)

// ErrNilRefChecker is returned when DeleteUnreferenced has no reference source.
var ErrNilRefChecker = blockstore.ErrNilRefChecker

// DeleteUnreferenced removes each candidate block that refs reports as
// unreferenced and no running import has pinned. Imports pin a hash before
// their dedup check, and pinning waits for any delete in progress, so an
// import never reuses a block that is being removed. It returns the number
// of blocks removed; candidates that are still referenced, pinned or
// already gone are skipped.
func (v *Vault) DeleteUnreferenced(ctx context.Context, candidates []blockcrypt.ContentHash, refs blockstore.RefChecker, sess *keyring.Session) (int, error) {
	if err := v.checkOpen(); err != nil {
		return 0, err
	}
	if refs == nil {
		return 0, ErrNilRefChecker
	}

	removed := 0
	for _, hash := range candidates {
		if err := ctx.Err(); err != nil {
			return removed, err
		}

		var deleted bool
		err := sess.WithKey(func(*keyring.MasterKey) error {
			var err error
			deleted, err = v.deleteIfUnpinned(hash, refs)
			return err
		})
		if err != nil {
			if errors.Is(err, keyring.ErrLocked) {
				return removed, err
			}
			return removed, fmt.Errorf("vault: delete block %s: %w", hash, err)
		}
		if deleted {
			removed++
			v.log.WithField("hash", hash.String()).Debug("block deleted")
		}
	}
	return removed, nil
}

// deleteIfUnpinned holds pinMu across the reference check and removal.
func (v *Vault) deleteIfUnpinned(hash blockcrypt.ContentHash, refs blockstore.RefChecker) (bool, error) {
	v.pinMu.Lock()
	defer v.pinMu.Unlock()
	if v.pins[hash] > 0 {
		return false, nil
	}
	return v.store.DeleteIfUnreferenced(hash, refs)
}
