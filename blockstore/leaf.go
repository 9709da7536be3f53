package blockstore

import (
	"fmt"
	"io"

	"github.com/bitfsorg/libvault-go/blockcrypt"
)

// MinLeafSize is the size of a leaf holding an empty ciphertext.
const MinLeafSize = blockcrypt.SaltLen + blockcrypt.TagLen

// Leaf is the content of one stored block file.
//
// On-disk byte order, no header or padding:
//
//	salt(16B) || ciphertext(nB) || tag(16B)
type Leaf struct {
	Salt       []byte
	Ciphertext []byte
	Tag        []byte
}

// Size returns the encoded length of the leaf.
func (l *Leaf) Size() int64 {
	return int64(len(l.Salt) + len(l.Ciphertext) + len(l.Tag))
}

// validate checks salt and tag lengths.
func (l *Leaf) validate() error {
	if l == nil {
		return fmt.Errorf("%w: nil leaf", ErrInvalidLeaf)
	}
	if len(l.Salt) != blockcrypt.SaltLen {
		return fmt.Errorf("%w: salt must be %d bytes, got %d", ErrInvalidLeaf, blockcrypt.SaltLen, len(l.Salt))
	}
	if len(l.Tag) != blockcrypt.TagLen {
		return fmt.Errorf("%w: tag must be %d bytes, got %d", ErrInvalidLeaf, blockcrypt.TagLen, len(l.Tag))
	}
	return nil
}

// WriteTo encodes the leaf to w.
func (l *Leaf) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for _, part := range [][]byte{l.Salt, l.Ciphertext, l.Tag} {
		n, err := w.Write(part)
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Encode returns the on-disk encoding of the leaf.
func (l *Leaf) Encode() []byte {
	out := make([]byte, 0, l.Size())
	out = append(out, l.Salt...)
	out = append(out, l.Ciphertext...)
	out = append(out, l.Tag...)
	return out
}

// DecodeLeaf splits an on-disk leaf into its parts. The returned slices
// alias data.
func DecodeLeaf(data []byte) (*Leaf, error) {
	if len(data) < MinLeafSize {
		return nil, fmt.Errorf("%w: %d bytes, need at least %d", ErrCorruptLeaf, len(data), MinLeafSize)
	}
	tagStart := len(data) - blockcrypt.TagLen
	return &Leaf{
		Salt:       data[:blockcrypt.SaltLen:blockcrypt.SaltLen],
		Ciphertext: data[blockcrypt.SaltLen:tagStart:tagStart],
		Tag:        data[tagStart:],
	}, nil
}
