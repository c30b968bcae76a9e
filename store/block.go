// Package store implements the immutable, content-addressed, convergently
// encrypted block and object store (spec §4.1).
package store

import (
	"github.com/nextgraph-org/ng-repo-go/common/cbor"
	"github.com/nextgraph-org/ng-repo-go/common/crypto/encryption"
	"github.com/nextgraph-org/ng-repo-go/common/crypto/hash"
)

// CommitHeaderRef is the root block's embedded reference to its commit
// header: either the header is small enough to embed directly, or it
// overflows into its own Object and only the id is carried.
type CommitHeaderRef struct {
	// Id references a header stored as its own Object, when too large to embed.
	Id *hash.H `cbor:"1,keyasint,omitempty"`
	// EncryptedContent is the embedded, convergently-encrypted header bytes.
	EncryptedContent []byte `cbor:"2,keyasint,omitempty"`
	// RandomAccess marks a block whose header is a RandomAccessFileMeta
	// rather than a CommitHeader (large-file objects). Nothing in this
	// package sets it or builds such metadata.
	RandomAccess bool `cbor:"3,keyasint,omitempty"`
}

// IsNone reports whether this ref carries no header at all (leaf/internal
// chunk blocks, and the Repository singleton commit).
func (r *CommitHeaderRef) IsNone() bool {
	return r == nil
}

// Block is an immutable, content-addressed Merkle node: either a leaf
// (DataChunk) or an internal node (list of child block ids), always stored
// convergently encrypted. Block id is a pure function of EncryptedContent.
type Block struct {
	// CommitHeader embeds or references the commit header for a root block.
	CommitHeader *CommitHeaderRef `cbor:"1,keyasint,omitempty"`
	// HeaderKey is the symmetric key needed to decrypt a referenced header
	// object, carried alongside the root block so a single ref conveys the
	// whole header.
	HeaderKey *encryption.K `cbor:"2,keyasint,omitempty"`
	// Children lists the ids of this block's child blocks, in order, for
	// internal nodes. Empty for leaves.
	Children []hash.H `cbor:"3,keyasint,omitempty"`
	// EncryptedContent is the ChaCha20-convergently-encrypted chunk payload.
	EncryptedContent []byte `cbor:"4,keyasint"`
}

// ID computes the block's content address: BLAKE3(serialized_content). It
// hashes the whole serialized Block, HeaderKey included; that key is itself
// a pure function of the (convergence key, plaintext) pair for root blocks
// and nil for leaf/internal chunk blocks, so two stores holding the same
// ciphertext under the same per-store convergence key still agree on id.
func (b *Block) ID() hash.H {
	return hash.Sum(cbor.Marshal(b))
}

// Key is a (id, decryption key) pair identifying and unlocking one block or
// subtree, i.e. spec's ObjectRef.
type Key struct {
	ID  hash.H       `cbor:"1,keyasint"`
	Key encryption.K `cbor:"2,keyasint"`
}

// newEncryptedBlock builds a Block from plaintext content under the given
// per-store convergence key, returning the block plus the content key a
// reader needs to decrypt it.
func newEncryptedBlock(convergenceKey encryption.K, plaintext []byte, children []hash.H) (*Block, encryption.K, error) {
	contentKey := encryption.ContentKey(convergenceKey, plaintext)
	ciphertext, err := encryption.Encrypt(contentKey, plaintext)
	if err != nil {
		return nil, encryption.K{}, err
	}
	return &Block{
		Children:         children,
		EncryptedContent: ciphertext,
	}, contentKey, nil
}

// decrypt recovers the plaintext content of a block given its content key.
func (b *Block) decrypt(key encryption.K) ([]byte, error) {
	return encryption.Decrypt(key, b.EncryptedContent)
}

func marshalBlock(b *Block) []byte {
	return cbor.Marshal(b)
}

func unmarshalBlock(data []byte) (*Block, error) {
	var b Block
	if err := cbor.Unmarshal(data, &b); err != nil {
		return nil, err
	}
	return &b, nil
}
