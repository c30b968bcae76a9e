// Package signature implements Ed25519 keys and domain-separated signed
// envelopes, following the teacher's common/entity.Signed/Signer/Context
// idiom (sign over a context-prefixed digest rather than the raw bytes, so
// the same key material can't be replayed for a different purpose).
package signature

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/nextgraph-org/ng-repo-go/common/cbor"
	"github.com/nextgraph-org/ng-repo-go/common/crypto/hash"
	"github.com/nextgraph-org/ng-repo-go/common/errors"
)

const moduleName = "common/crypto/signature"

var (
	// ErrMalformedPublicKey is the error returned when a public key is malformed.
	ErrMalformedPublicKey = errors.New(moduleName, 1, "signature: malformed public key")
	// ErrInvalidSignature is the error returned when a signature does not verify.
	ErrInvalidSignature = errors.New(moduleName, 2, "signature: invalid signature")
)

// Context is a domain-separation tag prefixed to every signed digest so
// that a signature over a CommitContent, a repository descriptor, a
// PublisherAdvert and a topic event can never be confused for one another.
type Context []byte

// Commonly used signature contexts, named after the structures they sign.
var (
	CommitSigContext    = Context("ng-repo commit content v0")
	RepositorySigContext = Context("ng-repo repository descriptor v0")
	TopicAdvertContext  = Context("ng-repo publisher advert v0")
	EventContext        = Context("ng-repo topic event v0")
)

// PublicKey is an Ed25519 public key.
type PublicKey [ed25519.PublicKeySize]byte

// PrivateKey is an Ed25519 private key.
type PrivateKey [ed25519.PrivateKeySize]byte

// Signature is an Ed25519 signature.
type Signature [ed25519.SignatureSize]byte

// String returns the base64 text form of the public key.
func (p PublicKey) String() string {
	return base64.RawURLEncoding.EncodeToString(p[:])
}

// Equal compares vs another public key for equality.
func (p *PublicKey) Equal(cmp *PublicKey) bool {
	if cmp == nil {
		return false
	}
	return *p == *cmp
}

// Hash returns the plain (unkeyed) BLAKE3 digest of the public key. Author
// identifiers are not derived from it: repo.AuthorDigest uses a keyed hash.
func (p PublicKey) Hash() hash.H {
	return hash.Sum(p[:])
}

// Verify checks sig over ctx-prefixed message.
func (p PublicKey) Verify(ctx Context, message []byte, sig *Signature) bool {
	digest := digestFor(ctx, message)
	return ed25519.Verify(ed25519.PublicKey(p[:]), digest, sig[:])
}

// Signer signs messages under a single Ed25519 key pair. The private key is
// held only as long as the Signer is live; Reset zeroizes it.
type Signer struct {
	priv PrivateKey
	pub  PublicKey
}

// NewSigner generates a fresh random Ed25519 key pair.
func NewSigner() (*Signer, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	s := &Signer{}
	copy(s.priv[:], priv)
	copy(s.pub[:], pub)
	return s, nil
}

// NewSignerFromSeed deterministically derives a signer from a 32-byte seed,
// used by the wallet layer to derive per-repo author keys from a single
// wallet secret.
func NewSignerFromSeed(seed []byte) (*Signer, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("signature: seed must be %d bytes", ed25519.SeedSize)
	}
	priv := ed25519.NewKeyFromSeed(seed)
	s := &Signer{}
	copy(s.priv[:], priv)
	copy(s.pub[:], priv.Public().(ed25519.PublicKey))
	return s, nil
}

// Public returns the signer's public key.
func (s *Signer) Public() PublicKey {
	return s.pub
}

// Sign signs ctx-prefixed message.
func (s *Signer) Sign(ctx Context, message []byte) (*Signature, error) {
	digest := digestFor(ctx, message)
	raw := ed25519.Sign(ed25519.PrivateKey(s.priv[:]), digest)
	var sig Signature
	copy(sig[:], raw)
	return &sig, nil
}

// Reset zeroizes the private key material.
func (s *Signer) Reset() {
	for i := range s.priv {
		s.priv[i] = 0
	}
}

// digestFor hashes the context and message together so that verification
// never needs to retain the raw message.
func digestFor(ctx Context, message []byte) []byte {
	h := hash.SumKeyed([]byte(ctx), message)
	return h[:]
}

// Signed is a signed, CBOR-serialized blob: the canonical encoding of some
// value plus a signature over it in a given context. It is the wire/storage
// representation of every signed structure in the system (commits,
// repository descriptors, publisher adverts).
type Signed struct {
	// Blob is the canonical CBOR encoding of the signed value.
	Blob []byte `cbor:"1,keyasint"`
	// Signature is the Ed25519 signature over Blob in some Context.
	Signature Signature `cbor:"2,keyasint"`
}

// SignSigned serializes v canonically and signs it under signer/ctx.
func SignSigned(signer *Signer, ctx Context, v interface{}) (*Signed, error) {
	blob := cbor.Marshal(v)
	sig, err := signer.Sign(ctx, blob)
	if err != nil {
		return nil, err
	}
	return &Signed{Blob: blob, Signature: *sig}, nil
}

// Open verifies the envelope against pub/ctx and, if valid, unmarshals the
// blob into v.
func (s *Signed) Open(ctx Context, pub PublicKey, v interface{}) error {
	if !pub.Verify(ctx, s.Blob, &s.Signature) {
		return ErrInvalidSignature
	}
	return cbor.Unmarshal(s.Blob, v)
}
