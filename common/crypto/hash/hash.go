// Package hash provides the content digest type used to address blocks,
// objects and commits.
package hash

import (
	"encoding/base64"
	"errors"

	"lukechampine.com/blake3"
)

const (
	// Size is the size of a digest in bytes.
	Size = 32
)

// ErrMalformed is the error returned when a digest is malformed.
var ErrMalformed = errors.New("hash: malformed digest")

// H is a 32-byte BLAKE3 digest.
type H [Size]byte

// Sum returns the BLAKE3 digest of data.
func Sum(data []byte) H {
	var h H
	sum := blake3.Sum256(data)
	copy(h[:], sum[:])
	return h
}

// SumKeyed returns the BLAKE3 keyed digest of data under key.
//
// key is hashed down to 32 bytes first if it isn't already, matching the
// convergent-key derivation in use throughout the store and topic layers.
func SumKeyed(key []byte, data ...[]byte) H {
	var keyArr [32]byte
	if len(key) == 32 {
		copy(keyArr[:], key)
	} else {
		keyArr = blake3.Sum256(key)
	}
	hasher := blake3.New(Size, keyArr[:])
	for _, d := range data {
		_, _ = hasher.Write(d)
	}
	var h H
	copy(h[:], hasher.Sum(nil))
	return h
}

// IsEmpty returns true iff the digest is the all-zero value.
func (h H) IsEmpty() bool {
	return h == H{}
}

// Equal compares vs another digest for equality.
func (h *H) Equal(cmp *H) bool {
	if cmp == nil {
		return false
	}
	return *h == *cmp
}

// MarshalBinary encodes a digest into binary form.
func (h H) MarshalBinary() (data []byte, err error) {
	data = append([]byte{}, h[:]...)
	return
}

// UnmarshalBinary decodes a binary marshaled digest.
func (h *H) UnmarshalBinary(data []byte) error {
	if len(data) != Size {
		return ErrMalformed
	}
	copy(h[:], data)
	return nil
}

// MarshalText encodes a digest into URL-safe base64 text form, without padding.
func (h H) MarshalText() ([]byte, error) {
	return []byte(base64.RawURLEncoding.EncodeToString(h[:])), nil
}

// UnmarshalText decodes a text marshaled digest.
func (h *H) UnmarshalText(text []byte) error {
	b, err := base64.RawURLEncoding.DecodeString(string(text))
	if err != nil {
		return err
	}
	return h.UnmarshalBinary(b)
}

// String returns the URL-safe base64 representation of the digest.
func (h H) String() string {
	return base64.RawURLEncoding.EncodeToString(h[:])
}

// FromSlice builds a digest from an arbitrary-length byte slice, erroring if
// the length does not match Size.
func FromSlice(b []byte) (H, error) {
	var h H
	err := h.UnmarshalBinary(b)
	return h, err
}
