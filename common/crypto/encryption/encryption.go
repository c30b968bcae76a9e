// Package encryption implements the convergent ChaCha20 content encryption
// and X25519 key agreement described in spec §3: block content keys are a
// pure function of the plaintext and a per-store convergence secret, so
// identical plaintexts in the same store deduplicate while identical
// plaintexts in different stores never correlate.
package encryption

import (
	"crypto/rand"
	gohash "hash"
	"io"

	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
	"lukechampine.com/blake3"

	"github.com/nextgraph-org/ng-repo-go/common/crypto/hash"
	"github.com/nextgraph-org/ng-repo-go/common/errors"
)

const moduleName = "common/crypto/encryption"

// ErrInvalidKey is returned when a key does not have the expected length.
var ErrInvalidKey = errors.New(moduleName, 1, "encryption: invalid key length")

// K is a 32-byte symmetric or X25519 key.
type K [32]byte

// ConvergenceKey is the per-Store secret used to derive convergent content
// keys: convergence_key = BLAKE3(store_id ‖ store_read_cap_secret).
func ConvergenceKey(storeID hash.H, storeReadCapSecret K) K {
	h := hash.Sum(append(append([]byte{}, storeID[:]...), storeReadCapSecret[:]...))
	return K(h)
}

// ContentKey derives the convergent content key for one plaintext chunk:
// key = BLAKE3_keyed(convergence_key, plaintext_chunk).
func ContentKey(convergenceKey K, plaintext []byte) K {
	h := hash.SumKeyed(convergenceKey[:], plaintext)
	return K(h)
}

// Encrypt ChaCha20-encrypts plaintext under key with a zero nonce. Safe only
// because the key itself is a function of the plaintext (convergent
// encryption): reusing a zero nonce across distinct plaintexts under the
// same key never happens, since a distinct plaintext implies a distinct key.
func Encrypt(key K, plaintext []byte) ([]byte, error) {
	return xorChaCha20(key, plaintext)
}

// Decrypt is the inverse of Encrypt (ChaCha20 is its own inverse under a
// fixed key/nonce keystream).
func Decrypt(key K, ciphertext []byte) ([]byte, error) {
	return xorChaCha20(key, ciphertext)
}

func xorChaCha20(key K, in []byte) ([]byte, error) {
	var nonce [chacha20.NonceSize]byte // zero nonce, see Encrypt doc comment
	cipher, err := chacha20.NewUnauthenticatedCipher(key[:], nonce[:])
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(in))
	cipher.XORKeyStream(out, in)
	return out, nil
}

// DH keys (X25519) are used for header key distribution between members of
// a branch, following curve25519 scalar multiplication directly (the
// teacher's go.mod replace directives pin golang.org/x/crypto's
// curve25519/ed25519 packages for exactly this purpose).

// GenerateDHKeyPair returns a new X25519 key pair.
func GenerateDHKeyPair() (priv K, pub K, err error) {
	if _, err = io.ReadFull(rand.Reader, priv[:]); err != nil {
		return K{}, K{}, err
	}
	// Clamp per RFC 7748.
	priv[0] &= 248
	priv[31] &= 127
	priv[31] |= 64

	pubBytes, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return K{}, K{}, err
	}
	copy(pub[:], pubBytes)
	return priv, pub, nil
}

// DH computes the shared X25519 secret between priv and peerPub.
func DH(priv K, peerPub K) (K, error) {
	shared, err := curve25519.X25519(priv[:], peerPub[:])
	if err != nil {
		return K{}, err
	}
	var out K
	copy(out[:], shared)
	return out, nil
}

// SealRandom encrypts plaintext under key with a fresh random nonce,
// prepended to the returned ciphertext. Unlike Encrypt, key here is not a
// function of plaintext, so a fixed nonce would leak keystream reuse across
// calls; used wherever a key is chosen independently of what it protects
// (e.g. a wallet's own symmetric key).
func SealRandom(key K, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// OpenRandom is the inverse of SealRandom.
func OpenRandom(key K, sealed []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, err
	}
	if len(sealed) < aead.NonceSize() {
		return nil, ErrInvalidKey
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	return aead.Open(nil, nonce, ciphertext, nil)
}

// DeriveKey expands a shared secret into a symmetric key using HKDF with
// the given info string, used wherever a DH output needs to become a
// ChaCha20 content key (e.g. header key wrapping on member add/refresh).
func DeriveKey(secret K, info string) (K, error) {
	newBlake3 := func() gohash.Hash { return blake3.New(hash.Size, nil) }
	r := hkdf.New(newBlake3, secret[:], nil, []byte(info))
	var out K
	if _, err := io.ReadFull(r, out[:]); err != nil {
		return K{}, err
	}
	return out, nil
}
