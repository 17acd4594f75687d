package didstore

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/tyler-smith/go-bip39"

	"github.com/elastos/Elastos.DID.JS.SDK-sub002/pkg/hdkey"
	"github.com/elastos/Elastos.DID.JS.SDK-sub002/pkg/storage"
)

// RootIdentity is a stored HD wallet root. PreDerivedPublicKey is the
// extended public key of the m/44'/0'/0' account node; Index is the next
// unused DID key index.
type RootIdentity struct {
	ID                  string `json:"id"`
	PreDerivedPublicKey string `json:"preDerivedPublicKey"`
	Index               int    `json:"index"`
	Alias               string `json:"alias,omitempty"`
}

// NewMnemonic returns a fresh 12-word English mnemonic.
func NewMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(128)
	if err != nil {
		return "", err
	}
	return bip39.NewMnemonic(entropy)
}

func IsMnemonicValid(mnemonic string) bool {
	return bip39.IsMnemonicValid(normalizeMnemonic(mnemonic))
}

// RootIdentityID is hex(MD5(serialized pre-derived public key)).
func RootIdentityID(preDerived *hdkey.ExtendedKey) string {
	sum := md5.Sum(preDerived.SerializePublic())
	return hex.EncodeToString(sum[:])
}

// CreateRootIdentity generates a mnemonic, imports it and returns both.
func (s *Store) CreateRootIdentity(passphrase, storepass string) (RootIdentity, string, error) {
	mnemonic, err := NewMnemonic()
	if err != nil {
		return RootIdentity{}, "", err
	}
	identity, err := s.ImportRootIdentity(mnemonic, passphrase, storepass)
	if err != nil {
		return RootIdentity{}, "", err
	}
	return identity, mnemonic, nil
}

// ImportRootIdentity stores the root derived from mnemonic and passphrase.
// The first root identity of a store becomes its default.
func (s *Store) ImportRootIdentity(mnemonic, passphrase, storepass string) (RootIdentity, error) {
	mnemonic = normalizeMnemonic(mnemonic)
	if !bip39.IsMnemonicValid(mnemonic) {
		return RootIdentity{}, ErrInvalidMnemonic
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkPassword(storepass); err != nil {
		return RootIdentity{}, err
	}

	root, err := hdkey.FromMnemonic(mnemonic, passphrase)
	if err != nil {
		return RootIdentity{}, ErrInvalidMnemonic
	}
	defer root.Wipe()

	preDerived, err := root.Derive(hdkey.PreDerivedPath)
	if err != nil {
		return RootIdentity{}, err
	}
	defer preDerived.Wipe()

	id := RootIdentityID(preDerived)
	if _, err := s.storage.LoadRootIdentity(id); err == nil {
		return RootIdentity{}, ErrRootIdentityExists
	} else if !errors.Is(err, storage.ErrNotFound) {
		return RootIdentity{}, err
	}

	serialized, err := root.Serialize()
	if err != nil {
		return RootIdentity{}, err
	}
	defer zeroBytes(serialized)
	encryptedKey, err := encrypt(storepass, serialized)
	if err != nil {
		return RootIdentity{}, err
	}
	encryptedMnemonic, err := encrypt(storepass, []byte(mnemonic))
	if err != nil {
		return RootIdentity{}, err
	}

	publicKey := preDerived.PublicExtendedKey()
	if err := s.storage.StoreRootIdentity(id, encryptedMnemonic, encryptedKey, publicKey, 0); err != nil {
		return RootIdentity{}, err
	}

	meta, err := s.storage.LoadMetadata()
	if err != nil {
		return RootIdentity{}, err
	}
	if meta.DefaultRootIdentity == "" {
		meta.DefaultRootIdentity = id
		if err := s.storage.StoreMetadata(meta); err != nil {
			return RootIdentity{}, err
		}
	}
	s.logInfo("import root identity", "root identity imported", "root_identity_id", id)
	return RootIdentity{ID: id, PreDerivedPublicKey: publicKey}, nil
}

func (s *Store) LoadRootIdentity(id string) (RootIdentity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadRootIdentity(id)
}

func (s *Store) loadRootIdentity(id string) (RootIdentity, error) {
	record, err := s.storage.LoadRootIdentity(id)
	if err != nil {
		return RootIdentity{}, err
	}
	meta, err := s.storage.LoadRootIdentityMetadata(id)
	if err != nil {
		return RootIdentity{}, err
	}
	return RootIdentity{
		ID:                  record.ID,
		PreDerivedPublicKey: record.PublicKey,
		Index:               record.Index,
		Alias:               meta.Alias(),
	}, nil
}

func (s *Store) ListRootIdentities() ([]RootIdentity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.storage.ListRootIdentities()
	if err != nil {
		return nil, err
	}
	out := make([]RootIdentity, 0, len(records))
	for _, record := range records {
		identity, err := s.loadRootIdentity(record.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, identity)
	}
	return out, nil
}

func (s *Store) SetRootIdentityAlias(id, alias string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.storage.LoadRootIdentity(id); err != nil {
		return err
	}
	meta, err := s.storage.LoadRootIdentityMetadata(id)
	if err != nil {
		return err
	}
	meta.SetAlias(alias)
	return s.storage.StoreRootIdentityMetadata(id, meta)
}

// DefaultRootIdentity returns the id recorded in the store metadata, or
// the only stored root identity when none is recorded.
func (s *Store) DefaultRootIdentity() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.defaultRootIdentity()
}

func (s *Store) defaultRootIdentity() (string, error) {
	meta, err := s.storage.LoadMetadata()
	if err != nil {
		return "", err
	}
	if meta.DefaultRootIdentity != "" {
		return meta.DefaultRootIdentity, nil
	}
	records, err := s.storage.ListRootIdentities()
	if err != nil {
		return "", err
	}
	if len(records) != 1 {
		return "", ErrNoRootIdentity
	}
	return records[0].ID, nil
}

func (s *Store) SetDefaultRootIdentity(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.storage.LoadRootIdentity(id); err != nil {
		return err
	}
	meta, err := s.storage.LoadMetadata()
	if err != nil {
		return err
	}
	meta.DefaultRootIdentity = id
	return s.storage.StoreMetadata(meta)
}

// DeleteRootIdentity removes the identity and clears it as default. DIDs
// derived from it stay in the store.
func (s *Store) DeleteRootIdentity(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted, err := s.storage.DeleteRootIdentity(id)
	if err != nil || !deleted {
		return deleted, err
	}
	meta, err := s.storage.LoadMetadata()
	if err != nil {
		return true, err
	}
	if meta.DefaultRootIdentity == id {
		meta.DefaultRootIdentity = ""
		if err := s.storage.StoreMetadata(meta); err != nil {
			return true, err
		}
	}
	s.logInfo("delete root identity", "root identity deleted", "root_identity_id", id)
	return true, nil
}

// ExportMnemonic decrypts the mnemonic of a root identity.
func (s *Store) ExportMnemonic(id, storepass string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkPassword(storepass); err != nil {
		return "", err
	}
	if !s.storage.ContainsRootIdentityMnemonic(id) {
		if _, err := s.storage.LoadRootIdentity(id); err != nil {
			return "", err
		}
		return "", ErrMnemonicNotAvailable
	}
	encrypted, err := s.storage.LoadRootIdentityMnemonic(id)
	if err != nil {
		return "", err
	}
	plain, err := s.decrypt(storepass, encrypted)
	if err != nil {
		return "", err
	}
	defer zeroBytes(plain)
	mnemonic := string(plain)
	if !bip39.IsMnemonicValid(mnemonic) {
		return "", ErrInvalidStoredKey
	}
	return mnemonic, nil
}

// rootKey decrypts the root extended private key of id. Callers wipe it.
func (s *Store) rootKey(id, storepass string) (*hdkey.ExtendedKey, error) {
	encrypted, err := s.storage.LoadRootIdentityPrivateKey(id)
	if err != nil {
		return nil, err
	}
	plain, err := s.decrypt(storepass, encrypted)
	if err != nil {
		return nil, err
	}
	defer zeroBytes(plain)
	key, err := hdkey.Parse(plain)
	if err != nil || !key.IsPrivate() {
		return nil, ErrInvalidStoredKey
	}
	return key, nil
}

// preDerivedKey parses the stored account-level public key of id.
func (s *Store) preDerivedKey(id string) (*hdkey.ExtendedKey, RootIdentity, error) {
	identity, err := s.loadRootIdentity(id)
	if err != nil {
		return nil, RootIdentity{}, err
	}
	key, err := hdkey.ParseBase58(identity.PreDerivedPublicKey)
	if err != nil {
		return nil, RootIdentity{}, ErrInvalidStoredKey
	}
	return key, identity, nil
}

func normalizeMnemonic(mnemonic string) string {
	return strings.Join(strings.Fields(mnemonic), " ")
}
