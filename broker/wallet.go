package broker

import (
	"github.com/nextgraph-org/ng-repo-go/common/cbor"
	"github.com/nextgraph-org/ng-repo-go/common/crypto/encryption"
)

// WalletName identifies a wallet in LocalBroker.wallets.
type WalletName string

// LocalWalletStorage is the persisted, at-rest form of a wallet: its
// content is encrypted under the wallet key, so the file on disk (or
// JsStorage blob) never carries plaintext secrets (spec §4.7 "wallets:
// Map<wallet_name, LocalWalletStorage> (persisted)").
type LocalWalletStorage struct {
	Name   WalletName `cbor:"1,keyasint"`
	Sealed []byte     `cbor:"2,keyasint"`
}

// OpenedWallet is the in-memory, decrypted form of a wallet: its key
// material, live only as long as the wallet stays open (spec §4.7
// "opened_wallets: Map<wallet_name, OpenedWallet> (in-memory, secrets)").
type OpenedWallet struct {
	Name WalletName
	Key  encryption.K
}

// Zero overwrites the wallet's key material, used on wallet_close and on
// process teardown so no residual secret survives the OpenedWallet's
// lifetime (spec P10 "session isolation").
func (w *OpenedWallet) Zero() {
	for i := range w.Key {
		w.Key[i] = 0
	}
}

func sealWallet(name WalletName, key encryption.K, plaintext []byte) (*LocalWalletStorage, error) {
	sealed, err := encryption.SealRandom(key, plaintext)
	if err != nil {
		return nil, err
	}
	return &LocalWalletStorage{Name: name, Sealed: sealed}, nil
}

func openWallet(stored *LocalWalletStorage, key encryption.K) ([]byte, error) {
	return encryption.OpenRandom(key, stored.Sealed)
}

// WalletCreate creates and persists a new, empty wallet under key,
// returning it opened (spec §4.7 "wallet_create").
func (b *LocalBroker) WalletCreate(name WalletName, key encryption.K) (*OpenedWallet, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.wallets[name]; exists {
		return nil, ErrAlreadyExists
	}

	stored, err := sealWallet(name, key, cbor.Marshal(struct{}{}))
	if err != nil {
		return nil, err
	}
	if err := b.persist.Save(string(name), cbor.Marshal(stored)); err != nil {
		return nil, err
	}

	b.wallets[name] = stored
	opened := &OpenedWallet{Name: name, Key: key}
	b.openedWallets[name] = opened
	return opened, nil
}

// WalletOpen decrypts and opens an already-created wallet (spec §4.7
// "wallet_open").
func (b *LocalBroker) WalletOpen(name WalletName, key encryption.K) (*OpenedWallet, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	stored, ok := b.wallets[name]
	if !ok {
		raw, err := b.persist.Load(string(name))
		if err != nil {
			return nil, ErrNotFound
		}
		stored = &LocalWalletStorage{}
		if err := cbor.Unmarshal(raw, stored); err != nil {
			return nil, ErrNotFound
		}
		b.wallets[name] = stored
	}

	if _, err := openWallet(stored, key); err != nil {
		return nil, ErrWrongKey
	}

	opened := &OpenedWallet{Name: name, Key: key}
	b.openedWallets[name] = opened
	return opened, nil
}

// WalletImport registers an externally-supplied wallet blob (e.g. restored
// from a mnemonic elsewhere in the stack; mnemonic encoding itself is a
// spec Non-goal) under name/key.
func (b *LocalBroker) WalletImport(name WalletName, key encryption.K, plaintext []byte) (*OpenedWallet, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	stored, err := sealWallet(name, key, plaintext)
	if err != nil {
		return nil, err
	}
	if err := b.persist.Save(string(name), cbor.Marshal(stored)); err != nil {
		return nil, err
	}

	b.wallets[name] = stored
	opened := &OpenedWallet{Name: name, Key: key}
	b.openedWallets[name] = opened
	return opened, nil
}

// WalletClose zeroes name's in-memory secrets and drops it from
// opened_wallets; the persisted, still-encrypted form is untouched.
func (b *LocalBroker) WalletClose(name WalletName) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	opened, ok := b.openedWallets[name]
	if !ok {
		return ErrNotFound
	}
	opened.Zero()
	delete(b.openedWallets, name)
	return nil
}
