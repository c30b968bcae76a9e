package store

import (
	"github.com/nextgraph-org/ng-repo-go/common/cbor"
	"github.com/nextgraph-org/ng-repo-go/common/crypto/encryption"
	"github.com/nextgraph-org/ng-repo-go/common/crypto/hash"
)

// DefaultMaxBlockSize is used whenever callers pass 0 for maxBlockSize.
const DefaultMaxBlockSize = 4096

// headerEmbedDivisor bounds how large a serialized header may be before it
// is promoted to its own Object rather than embedded in the root block
// (spec §4.1 "Header embedding"): embed iff len(header) <= maxBlockSize/headerEmbedDivisor.
const headerEmbedDivisor = 4

// MissingBlocks is returned by Load when one or more descendant blocks are
// absent from the store; it enumerates every missing id found across the
// whole walk, not just the first (spec §4.1).
type MissingBlocks struct {
	IDs []hash.H
}

func (e *MissingBlocks) Error() string {
	return "store: missing blocks"
}

// node is one materialized Merkle tree node awaiting (or already) persisted.
type node struct {
	block    *Block
	id       hash.H
	key      encryption.K
	children []*node // nil for leaves
}

// Object is the in-memory reconstruction of a Merkle tree rooted at a
// Block: root ref, fully materialized plaintext, and (if present) the
// decoded commit header.
type Object struct {
	Root    Key
	Content []byte
	Header  []byte // nil if this object carries no header

	root     *node   // the just-built (not necessarily yet persisted) tree
	all      []*node // every node in build order: leaves first, root last
	headerObj *Object // non-nil if the header overflowed into its own Object
}

// NewObject chunks content (already CBOR-serialized by the caller) into
// leaves of at most maxBlockSize bytes (0 = DefaultMaxBlockSize) and builds
// the bottom-up Merkle tree. The returned Object is not yet persisted; call
// Save to write its blocks.
func NewObject(content []byte, header []byte, maxBlockSize int, s *Store) (*Object, error) {
	if maxBlockSize <= 0 {
		maxBlockSize = DefaultMaxBlockSize
	}

	leaves, err := chunk(content, maxBlockSize)
	if err != nil {
		return nil, err
	}

	var level []*node
	for _, leaf := range leaves {
		n, err := leafNode(s, leaf)
		if err != nil {
			return nil, err
		}
		level = append(level, n)
	}

	arity := childArity(maxBlockSize)
	var all []*node
	all = append(all, level...)
	for len(level) > 1 {
		var next []*node
		for i := 0; i < len(level); i += arity {
			end := i + arity
			if end > len(level) {
				end = len(level)
			}
			group := level[i:end]
			in, err := internalNode(s, group)
			if err != nil {
				return nil, err
			}
			next = append(next, in)
		}
		all = append(all, next...)
		level = next
	}

	root := level[0]
	obj := &Object{Content: content, Header: header, root: root, all: all}

	if header != nil {
		if len(header) <= maxBlockSize/headerEmbedDivisor {
			key := encryption.ContentKey(s.convergenceKey, header)
			ciphertext, err := encryption.Encrypt(key, header)
			if err != nil {
				return nil, err
			}
			root.block.CommitHeader = &CommitHeaderRef{EncryptedContent: ciphertext}
			root.block.HeaderKey = &key
		} else {
			headerObj, err := NewObject(header, nil, maxBlockSize, s)
			if err != nil {
				return nil, err
			}
			root.block.CommitHeader = &CommitHeaderRef{Id: &headerObj.Root.ID}
			root.block.HeaderKey = &headerObj.Root.Key
			obj.headerObj = headerObj
		}
		// Header fields mutate the root block's content, so its id changes.
		root.id = root.block.ID()
	}

	obj.Root = Key{ID: root.id, Key: root.key}
	return obj, nil
}

func leafNode(s *Store, plaintext []byte) (*node, error) {
	block, key, err := newEncryptedBlock(s.convergenceKey, plaintext, nil)
	if err != nil {
		return nil, err
	}
	return &node{block: block, id: block.ID(), key: key}, nil
}

func internalNode(s *Store, group []*node) (*node, error) {
	refs := make([]Key, len(group))
	childIDs := make([]hash.H, len(group))
	for i, c := range group {
		refs[i] = Key{ID: c.id, Key: c.key}
		childIDs[i] = c.id
	}
	encoded := cbor.Marshal(refs)
	block, key, err := newEncryptedBlock(s.convergenceKey, encoded, childIDs)
	if err != nil {
		return nil, err
	}
	return &node{block: block, id: block.ID(), key: key, children: group}, nil
}

// Save writes every block of the object (and, if present, its detached
// header object) to s, returning the header object's ids first, then this
// object's ids in root-first order.
func (o *Object) Save(s *Store) ([]hash.H, error) {
	var ids []hash.H
	if o.headerObj != nil {
		headerIDs, err := o.headerObj.Save(s)
		if err != nil {
			return nil, err
		}
		ids = append(ids, headerIDs...)
	}

	if err := s.Put(o.root.id, o.root.block); err != nil {
		return nil, err
	}
	ids = append(ids, o.root.id)

	var walk func(n *node) error
	walk = func(n *node) error {
		for _, c := range n.children {
			if err := s.Put(c.id, c.block); err != nil {
				return err
			}
			ids = append(ids, c.id)
			if err := walk(c); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(o.root); err != nil {
		return nil, err
	}
	return ids, nil
}

// Load walks the Merkle tree rooted at ref, decrypting and reassembling the
// original content. It returns a *MissingBlocks error enumerating every
// absent descendant found across the whole walk, not just the first.
func Load(ref Key, s *Store) (*Object, error) {
	var missing []hash.H

	var content []byte
	block, err := s.Get(ref.ID)
	if err != nil {
		missing = append(missing, ref.ID)
	} else {
		plaintext, derr := block.decrypt(ref.Key)
		if derr != nil {
			return nil, derr
		}
		if len(block.Children) == 0 {
			content = plaintext
		} else {
			var refs []Key
			if err := cbor.Unmarshal(plaintext, &refs); err != nil {
				return nil, err
			}
			for _, childRef := range refs {
				childObj, err := Load(childRef, s)
				if err != nil {
					if mb, ok := err.(*MissingBlocks); ok {
						missing = append(missing, mb.IDs...)
						continue
					}
					return nil, err
				}
				content = append(content, childObj.Content...)
			}
		}
	}

	if len(missing) > 0 {
		return nil, &MissingBlocks{IDs: missing}
	}

	obj := &Object{Root: ref, Content: content}

	if block.CommitHeader != nil {
		if block.CommitHeader.Id != nil {
			headerRef := Key{ID: *block.CommitHeader.Id, Key: *block.HeaderKey}
			headerObj, err := Load(headerRef, s)
			if err != nil {
				return nil, err
			}
			obj.Header = headerObj.Content
			obj.headerObj = headerObj
		} else if block.HeaderKey != nil {
			headerPlain, err := encryption.Decrypt(*block.HeaderKey, block.CommitHeader.EncryptedContent)
			if err != nil {
				return nil, err
			}
			obj.Header = headerPlain
		}
	}

	return obj, nil
}

// chunk splits content into leaves of at most maxBlockSize bytes. A single
// empty chunk is produced for empty content so every object has at least
// one leaf.
func chunk(content []byte, maxBlockSize int) ([][]byte, error) {
	if len(content) == 0 {
		return [][]byte{{}}, nil
	}
	var chunks [][]byte
	for i := 0; i < len(content); i += maxBlockSize {
		end := i + maxBlockSize
		if end > len(content) {
			end = len(content)
		}
		chunks = append(chunks, content[i:end])
	}
	return chunks, nil
}

// childArity derives how many (id, key) child refs fit in an internal
// node's plaintext while staying under maxBlockSize, per spec "Arity and
// depth are fixed per object ... or derived from chunking". A Key CBOR-
// encodes to roughly hash.Size + 32 bytes plus framing overhead.
func childArity(maxBlockSize int) int {
	const approxRefSize = hash.Size + 32 + 8
	arity := maxBlockSize / approxRefSize
	if arity < 2 {
		arity = 2
	}
	return arity
}
