// Package catalog records imported files and counts block references.
//
// The vault stores blocks but does not know which files use them. The
// catalog is the reference source consulted before a block is deleted:
// every occurrence of a hash in a recorded file counts as one reference.
//
// File names and comments are sealed under the master key. The files bucket
// is keyed by a BLAKE2b MAC of the name, so the database never holds a
// name in the clear.
package catalog

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.etcd.io/bbolt"
	"golang.org/x/crypto/blake2b"

	"github.com/bitfsorg/libvault-go/blockcrypt"
	"github.com/bitfsorg/libvault-go/blockstore"
	"github.com/bitfsorg/libvault-go/keyring"
)

var (
	bucketFiles = []byte("files")
	bucketRefs  = []byte("refs")
	bucketMeta  = []byte("meta")

	keyWrappedMasterKey = []byte("wrapped_master_key")

	nameIndexDomain = []byte("libvault/catalog/name-index\x00")
)

// FileName is the catalog database name inside a repository's meta directory.
const FileName = "catalog.db"

// FileRecord describes one imported file.
type FileRecord struct {
	Name            string
	Comment         string
	Hashes          []blockcrypt.ContentHash
	TotalLength     int64
	LastBlockLength int
	CreatedAt       time.Time
}

// sealedField is a string encrypted with blockcrypt under a fresh salt.
type sealedField struct {
	Salt       []byte
	Ciphertext []byte
	Tag        []byte
}

// storedRecord is the on-disk form of a FileRecord.
type storedRecord struct {
	Name            sealedField
	Comment         sealedField
	Hashes          []blockcrypt.ContentHash
	TotalLength     int64
	LastBlockLength int
	CreatedAt       time.Time
}

// Catalog wraps a bbolt database holding file records and reference counts.
type Catalog struct {
	db *bbolt.DB
}

// Compile-time interface check.
var _ blockstore.RefChecker = (*Catalog)(nil)

// Open opens or creates the catalog database at dbPath.
// The parent directory is created if it does not exist.
func Open(dbPath string) (*Catalog, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("catalog: create directory: %w", err)
	}
	db, err := bbolt.Open(dbPath, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("catalog: open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketFiles, bucketRefs, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("catalog: create bucket %q: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Catalog{db: db}, nil
}

// Close closes the underlying database.
func (c *Catalog) Close() error { return c.db.Close() }

// countValue encodes a reference count as an 8-byte big-endian value.
func countValue(n uint64) []byte {
	v := make([]byte, 8)
	binary.BigEndian.PutUint64(v, n)
	return v
}

func readCount(v []byte) uint64 {
	if len(v) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(v)
}

func encodeGob(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeGob(data []byte, v interface{}) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}

// nameKey returns the files bucket key for name: BLAKE2b-256 keyed with the
// master key over a domain prefix and the name.
func nameKey(mk *keyring.MasterKey, name string) ([]byte, error) {
	h, err := blake2b.New256(mk[:])
	if err != nil {
		return nil, fmt.Errorf("catalog: init name mac: %w", err)
	}
	h.Write(nameIndexDomain)
	h.Write([]byte(name))
	return h.Sum(nil), nil
}

func sealField(mk *keyring.MasterKey, plain string) (sealedField, error) {
	salt, err := blockcrypt.NewSalt()
	if err != nil {
		return sealedField{}, err
	}
	s, err := blockcrypt.SealBlock(mk[:], salt, []byte(plain))
	if err != nil {
		return sealedField{}, err
	}
	return sealedField{Salt: salt, Ciphertext: s.Ciphertext, Tag: s.Tag}, nil
}

func openField(mk *keyring.MasterKey, f sealedField) (string, error) {
	p, err := blockcrypt.OpenBlock(mk[:], f.Salt, f.Ciphertext, f.Tag)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrCorruptRecord, err)
	}
	return string(p), nil
}

func sealRecord(mk *keyring.MasterKey, rec *FileRecord) ([]byte, error) {
	name, err := sealField(mk, rec.Name)
	if err != nil {
		return nil, err
	}
	comment, err := sealField(mk, rec.Comment)
	if err != nil {
		return nil, err
	}
	data, err := encodeGob(&storedRecord{
		Name:            name,
		Comment:         comment,
		Hashes:          rec.Hashes,
		TotalLength:     rec.TotalLength,
		LastBlockLength: rec.LastBlockLength,
		CreatedAt:       rec.CreatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("catalog: encode file record: %w", err)
	}
	return data, nil
}

// openRecord decrypts a stored record and checks that it sits under the
// index key of its own name.
func openRecord(mk *keyring.MasterKey, key, data []byte) (*FileRecord, error) {
	var st storedRecord
	if err := decodeGob(data, &st); err != nil {
		return nil, fmt.Errorf("catalog: decode file record: %w", err)
	}
	name, err := openField(mk, st.Name)
	if err != nil {
		return nil, err
	}
	comment, err := openField(mk, st.Comment)
	if err != nil {
		return nil, err
	}
	want, err := nameKey(mk, name)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(want, key) {
		return nil, fmt.Errorf("%w: record stored under another name", ErrCorruptRecord)
	}
	return &FileRecord{
		Name:            name,
		Comment:         comment,
		Hashes:          st.Hashes,
		TotalLength:     st.TotalLength,
		LastBlockLength: st.LastBlockLength,
		CreatedAt:       st.CreatedAt,
	}, nil
}

// PutFile records a file and adds one reference per hash occurrence.
// CreatedAt is set to the current time when zero.
func (c *Catalog) PutFile(rec *FileRecord, sess *keyring.Session) error {
	if rec == nil {
		return fmt.Errorf("%w: record", ErrNilParam)
	}
	if rec.Name == "" {
		return ErrInvalidName
	}
	for i, h := range rec.Hashes {
		if h.IsZero() {
			return fmt.Errorf("%w: block %d has no hash", ErrInvalidRecord, i)
		}
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	return sess.WithKey(func(mk *keyring.MasterKey) error {
		key, err := nameKey(mk, rec.Name)
		if err != nil {
			return err
		}
		data, err := sealRecord(mk, rec)
		if err != nil {
			return err
		}

		return c.db.Update(func(tx *bbolt.Tx) error {
			files := tx.Bucket(bucketFiles)
			if files.Get(key) != nil {
				return fmt.Errorf("%w: %s", ErrDuplicateFile, rec.Name)
			}
			if err := files.Put(key, data); err != nil {
				return fmt.Errorf("catalog: put file record: %w", err)
			}

			refs := tx.Bucket(bucketRefs)
			for _, h := range rec.Hashes {
				n := readCount(refs.Get(h[:]))
				if err := refs.Put(h[:], countValue(n+1)); err != nil {
					return fmt.Errorf("catalog: increment ref %s: %w", h, err)
				}
			}
			return nil
		})
	})
}

// GetFile returns the record stored under name.
func (c *Catalog) GetFile(name string, sess *keyring.Session) (*FileRecord, error) {
	var rec *FileRecord
	err := sess.WithKey(func(mk *keyring.MasterKey) error {
		key, err := nameKey(mk, name)
		if err != nil {
			return err
		}
		return c.db.View(func(tx *bbolt.Tx) error {
			data := tx.Bucket(bucketFiles).Get(key)
			if data == nil {
				return fmt.Errorf("%w: %s", ErrFileNotFound, name)
			}
			rec, err = openRecord(mk, key, data)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ListFiles returns all records ordered by name.
func (c *Catalog) ListFiles(sess *keyring.Session) ([]*FileRecord, error) {
	var out []*FileRecord
	err := sess.WithKey(func(mk *keyring.MasterKey) error {
		return c.db.View(func(tx *bbolt.Tx) error {
			return tx.Bucket(bucketFiles).ForEach(func(k, v []byte) error {
				rec, err := openRecord(mk, k, v)
				if err != nil {
					return err
				}
				out = append(out, rec)
				return nil
			})
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// RemoveFile deletes the record under name and drops its references. It
// returns the hashes whose reference count reached zero, in first-occurrence
// order. Those blocks are candidates for deletion from the block store.
func (c *Catalog) RemoveFile(name string, sess *keyring.Session) ([]blockcrypt.ContentHash, error) {
	var orphaned []blockcrypt.ContentHash
	err := sess.WithKey(func(mk *keyring.MasterKey) error {
		key, err := nameKey(mk, name)
		if err != nil {
			return err
		}
		return c.db.Update(func(tx *bbolt.Tx) error {
			files := tx.Bucket(bucketFiles)
			data := files.Get(key)
			if data == nil {
				return fmt.Errorf("%w: %s", ErrFileNotFound, name)
			}
			rec, err := openRecord(mk, key, data)
			if err != nil {
				return err
			}

			refs := tx.Bucket(bucketRefs)
			for _, h := range rec.Hashes {
				n := readCount(refs.Get(h[:]))
				if n <= 1 {
					if n == 1 {
						orphaned = append(orphaned, h)
					}
					if err := refs.Delete(h[:]); err != nil {
						return fmt.Errorf("catalog: delete ref %s: %w", h, err)
					}
					continue
				}
				if err := refs.Put(h[:], countValue(n-1)); err != nil {
					return fmt.Errorf("catalog: decrement ref %s: %w", h, err)
				}
			}

			if err := files.Delete(key); err != nil {
				return fmt.Errorf("catalog: delete file record: %w", err)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return orphaned, nil
}

// RefCount returns the number of recorded occurrences of hash.
func (c *Catalog) RefCount(hash blockcrypt.ContentHash) (uint64, error) {
	var n uint64
	err := c.db.View(func(tx *bbolt.Tx) error {
		n = readCount(tx.Bucket(bucketRefs).Get(hash[:]))
		return nil
	})
	return n, err
}

// IsReferenced reports whether any recorded file uses hash.
func (c *Catalog) IsReferenced(hash blockcrypt.ContentHash) (bool, error) {
	n, err := c.RefCount(hash)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// SaveWrappedKey stores the wrapped master key record, replacing any
// previous one.
func (c *Catalog) SaveWrappedKey(w *keyring.WrappedMasterKey) error {
	if w == nil {
		return fmt.Errorf("%w: wrapped key", ErrNilParam)
	}
	data, err := w.Marshal()
	if err != nil {
		return err
	}
	return c.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketMeta).Put(keyWrappedMasterKey, data)
	})
}

// LoadWrappedKey returns the stored wrapped master key record.
func (c *Catalog) LoadWrappedKey() (*keyring.WrappedMasterKey, error) {
	var data []byte
	err := c.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketMeta).Get(keyWrappedMasterKey)
		if v == nil {
			return ErrNoWrappedKey
		}
		data = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keyring.UnmarshalWrappedMasterKey(data)
}
