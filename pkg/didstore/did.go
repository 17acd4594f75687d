package didstore

import (
	"encoding/json"
	"errors"
	"runtime"

	"github.com/mr-tron/base58/base58"

	"github.com/elastos/Elastos.DID.JS.SDK-sub002/pkg/did"
	"github.com/elastos/Elastos.DID.JS.SDK-sub002/pkg/hdkey"
	"github.com/elastos/Elastos.DID.JS.SDK-sub002/pkg/securestore"
	"github.com/elastos/Elastos.DID.JS.SDK-sub002/pkg/signer"
	"github.com/elastos/Elastos.DID.JS.SDK-sub002/pkg/storage"
)

const (
	// PrimaryKeyFragment names the key every derived DID is created with.
	PrimaryKeyFragment = "#primary"

	KeyType = "ECDSAsecp256r1"
)

// Document is the minimal DID document written for a derived DID.
type Document struct {
	ID             did.DID     `json:"id"`
	PublicKey      []PublicKey `json:"publicKey"`
	Authentication []string    `json:"authentication"`
}

type PublicKey struct {
	ID              string  `json:"id"`
	Type            string  `json:"type"`
	Controller      did.DID `json:"controller"`
	PublicKeyBase58 string  `json:"publicKeyBase58"`
}

// Key returns the public key entry whose id matches url.
func (d *Document) Key(url did.DIDURL) (PublicKey, bool) {
	for _, pk := range d.PublicKey {
		if pk.ID == url.String() || pk.ID == url.RelativeString() {
			return pk, true
		}
	}
	return PublicKey{}, false
}

// DIDAt computes the DID for index from the stored pre-derived public key.
// No password is needed.
func (s *Store) DIDAt(rootID string, index int) (did.DID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	preDerived, _, err := s.preDerivedKey(rootID)
	if err != nil {
		return did.DID{}, err
	}
	key, err := preDerived.Derive(publicChildPath(index))
	if err != nil {
		return did.DID{}, err
	}
	return did.New(key.Address())
}

// NewDID derives the next unused DID of rootID, stores its document and
// encrypted primary key and advances the root identity index. An empty
// rootID selects the default root identity.
func (s *Store) NewDID(rootID, alias, storepass string) (did.DID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkPassword(storepass); err != nil {
		return did.DID{}, err
	}
	if rootID == "" {
		id, err := s.defaultRootIdentity()
		if err != nil {
			return did.DID{}, err
		}
		rootID = id
	}
	identity, err := s.loadRootIdentity(rootID)
	if err != nil {
		return did.DID{}, err
	}
	root, err := s.rootKey(rootID, storepass)
	if err != nil {
		return did.DID{}, err
	}
	defer root.Wipe()

	index := identity.Index
	var (
		key *hdkey.ExtendedKey
		id  did.DID
	)
	for {
		key, err = root.Derive(hdkey.DerivePath(index))
		if err != nil {
			return did.DID{}, err
		}
		id, err = did.New(key.Address())
		if err != nil {
			key.Wipe()
			return did.DID{}, err
		}
		if !s.storage.ContainsDID(id) {
			break
		}
		key.Wipe()
		index++
	}
	defer key.Wipe()

	if err := s.storeDerivedDID(id, key, storepass); err != nil {
		return did.DID{}, err
	}
	meta := did.NewMetadata()
	meta.SetAlias(alias)
	meta.SetRootIdentity(rootID)
	meta.Set(did.PropIndex, index)
	meta.SetTime(did.PropCreated, s.now())
	if err := s.storage.StoreDIDMetadata(id, meta); err != nil {
		return did.DID{}, err
	}
	if err := s.storage.UpdateRootIdentityIndex(rootID, index+1); err != nil {
		return did.DID{}, err
	}
	s.logInfo("new did", "did created", "did", id.String(), "root_identity_id", rootID)
	return id, nil
}

func (s *Store) storeDerivedDID(id did.DID, key *hdkey.ExtendedKey, storepass string) error {
	keyID, err := did.NewDIDURL(id, PrimaryKeyFragment)
	if err != nil {
		return err
	}
	doc := Document{
		ID: id,
		PublicKey: []PublicKey{{
			ID:              keyID.String(),
			Type:            KeyType,
			Controller:      id,
			PublicKeyBase58: key.PublicKeyBase58(),
		}},
		Authentication: []string{keyID.String()},
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	serialized, err := key.Serialize()
	if err != nil {
		return err
	}
	defer zeroBytes(serialized)
	encrypted, err := encrypt(storepass, serialized)
	if err != nil {
		return err
	}
	if err := s.storage.StorePrivateKey(keyID, encrypted); err != nil {
		return err
	}
	return s.storage.StoreDID(id, raw)
}

func (s *Store) LoadDocument(id did.DID) (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadDocument(id)
}

func (s *Store) loadDocument(id did.DID) (*Document, error) {
	raw, err := s.storage.LoadDID(id)
	if err != nil {
		return nil, err
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (s *Store) LoadDIDMetadata(id did.DID) (*did.Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.storage.LoadDIDMetadata(id)
}

func (s *Store) SetDIDAlias(id did.DID, alias string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.storage.ContainsDID(id) {
		_, err := s.storage.LoadDID(id)
		return err
	}
	meta, err := s.storage.LoadDIDMetadata(id)
	if err != nil {
		return err
	}
	meta.SetAlias(alias)
	return s.storage.StoreDIDMetadata(id, meta)
}

func (s *Store) ListDIDs() ([]did.DID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.storage.ListDIDs()
}

// DeleteDID removes the document, its keys, credentials and metadata.
func (s *Store) DeleteDID(id did.DID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.storage.DeleteDID(id)
}

// LoadPrivateKey decrypts the raw 32-byte private key of keyID.
func (s *Store) LoadPrivateKey(keyID did.DIDURL, storepass string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkPassword(storepass); err != nil {
		return nil, err
	}
	return s.loadPrivateKey(keyID, storepass)
}

func (s *Store) loadPrivateKey(keyID did.DIDURL, storepass string) ([]byte, error) {
	encrypted, err := s.storage.LoadPrivateKey(keyID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrPrivateKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	plain, err := s.decrypt(storepass, encrypted)
	if err != nil {
		return nil, err
	}
	defer zeroBytes(plain)

	// Keys are stored as extended keys; raw 32-byte keys are accepted too.
	if len(plain) == 32 {
		return append([]byte(nil), plain...), nil
	}
	key, err := hdkey.Parse(plain)
	if err != nil || !key.IsPrivate() {
		return nil, ErrInvalidStoredKey
	}
	defer key.Wipe()
	return key.PrivateKey(), nil
}

// Sign signs the concatenation of parts with the key stored under keyID.
func (s *Store) Sign(keyID did.DIDURL, storepass string, parts ...[]byte) (signer.Signature, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkPassword(storepass); err != nil {
		return signer.Signature{}, err
	}
	priv, err := s.loadPrivateKey(keyID, storepass)
	if err != nil {
		return signer.Signature{}, err
	}
	defer zeroBytes(priv)
	return s.signer.SignData(priv, parts...)
}

// Verify checks sig against the public key that keyID names in the stored
// document of its DID.
func (s *Store) Verify(keyID did.DIDURL, sig []byte, parts ...[]byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.loadDocument(keyID.DID())
	if err != nil {
		return false, err
	}
	pk, ok := doc.Key(keyID)
	if !ok {
		return false, ErrPublicKeyNotFound
	}
	pub, err := base58.Decode(pk.PublicKeyBase58)
	if err != nil {
		return false, ErrPublicKeyNotFound
	}
	return s.signer.VerifyData(pub, sig, parts...), nil
}

// StoreCredential persists a credential. With a non-empty storepass the
// payload is encrypted and tagged with the credential magic header.
func (s *Store) StoreCredential(id did.DIDURL, data []byte, storepass string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if storepass == "" {
		return s.storage.StoreCredential(id, data)
	}
	if err := s.checkPassword(storepass); err != nil {
		return err
	}
	encrypted, err := encrypt(storepass, data)
	if err != nil {
		return err
	}
	return s.storage.StoreEncryptedCredential(id, encrypted)
}

// LoadCredential returns the credential payload, decrypting it when it was
// stored encrypted.
func (s *Store) LoadCredential(id did.DIDURL, storepass string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, err := s.storage.LoadCredential(id)
	if err != nil {
		return nil, err
	}
	if !record.Encrypted {
		return record.Data, nil
	}
	if storepass == "" {
		return nil, ErrCredentialNotReadable
	}
	if err := s.checkPassword(storepass); err != nil {
		return nil, err
	}
	return s.decrypt(storepass, string(record.Data))
}

func (s *Store) ListCredentials(id did.DID) ([]did.DIDURL, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.storage.ListCredentials(id)
}

func (s *Store) DeleteCredential(id did.DIDURL) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.storage.DeleteCredential(id)
}

// publicChildPath addresses DerivePath(index) relative to the pre-derived
// account node.
func publicChildPath(index int) string {
	return "m" + hdkey.DerivePath(index)[len(hdkey.PreDerivedPath):]
}

func encrypt(storepass string, plain []byte) (string, error) {
	return securestore.EncryptToBase64(storepass, plain)
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(b)
}
