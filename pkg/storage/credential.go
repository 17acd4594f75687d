package storage

import (
	"bytes"
	"errors"
	"os"

	"github.com/elastos/Elastos.DID.JS.SDK-sub002/pkg/did"
)

// CredentialMagic prefixes credential files whose payload is ciphertext.
var CredentialMagic = []byte{0x0E, 0x0C, 0x56, 0x43}

var (
	errEmptyDID   = errors.New("empty DID")
	errForeignURL = errors.New("DID URL has no relative part")
)

// CredentialRecord is a stored credential. When Encrypted is set Data holds
// the ciphertext text with the magic header removed.
type CredentialRecord struct {
	ID        did.DIDURL
	Data      []byte
	Encrypted bool
}

func (s *Storage) credentialPath(id did.DIDURL, elem ...string) string {
	return s.didPath(id.DID(), append([]string{credentialsDir, escapeURL(id)}, elem...)...)
}

func (s *Storage) checkURL(op string, id did.DIDURL) error {
	if err := s.checkDID(op, id.DID()); err != nil {
		return err
	}
	if id.RelativeString() == "" {
		return s.fail(op, id.String(), ErrInvalidID, errForeignURL)
	}
	if err := validateSegment(escapeURL(id)); err != nil {
		return s.fail(op, id.String(), ErrInvalidID, err)
	}
	return nil
}

// StoreCredential writes a plaintext credential.
func (s *Storage) StoreCredential(id did.DIDURL, data []byte) error {
	if bytes.HasPrefix(data, CredentialMagic) {
		return s.fail("store credential", id.String(), nil, errors.New("plaintext credential starts with the encryption header"))
	}
	return s.storeCredential("store credential", id, data)
}

// StoreEncryptedCredential writes ciphertext framed by CredentialMagic.
func (s *Storage) StoreEncryptedCredential(id did.DIDURL, ciphertext string) error {
	framed := make([]byte, 0, len(CredentialMagic)+len(ciphertext))
	framed = append(framed, CredentialMagic...)
	framed = append(framed, ciphertext...)
	return s.storeCredential("store encrypted credential", id, framed)
}

func (s *Storage) storeCredential(op string, id did.DIDURL, payload []byte) error {
	if err := s.checkURL(op, id); err != nil {
		return err
	}
	if len(payload) == 0 {
		return s.fail(op, s.credentialPath(id, credentialFile), nil, errEmptyPayload)
	}
	path := s.credentialPath(id, credentialFile)
	if err := writeFileAtomic(path, payload); err != nil {
		return s.fail(op, path, nil, err)
	}
	s.done(op)
	s.logDebug(op, "credential stored", "credential_id", id.String())
	return nil
}

func (s *Storage) LoadCredential(id did.DIDURL) (CredentialRecord, error) {
	const op = "load credential"
	if err := s.checkURL(op, id); err != nil {
		return CredentialRecord{}, err
	}
	path := s.credentialPath(id, credentialFile)
	raw, ok, err := readFile(path)
	if err != nil {
		return CredentialRecord{}, s.fail(op, path, nil, err)
	}
	if !ok {
		return CredentialRecord{}, s.missing(op, path)
	}
	s.done(op)
	if bytes.HasPrefix(raw, CredentialMagic) {
		return CredentialRecord{ID: id, Data: raw[len(CredentialMagic):], Encrypted: true}, nil
	}
	return CredentialRecord{ID: id, Data: raw}, nil
}

func (s *Storage) ContainsCredential(id did.DIDURL) bool {
	return s.checkURLQuiet(id) && isFile(s.credentialPath(id, credentialFile))
}

// ContainsCredentials reports whether d has at least one credential.
func (s *Storage) ContainsCredentials(d did.DID) (bool, error) {
	ids, err := s.ListCredentials(d)
	if err != nil {
		return false, err
	}
	return len(ids) > 0, nil
}

// DeleteCredential removes one credential and prunes an empty credentials
// directory.
func (s *Storage) DeleteCredential(id did.DIDURL) (bool, error) {
	const op = "delete credential"
	if err := s.checkURL(op, id); err != nil {
		return false, err
	}
	path := s.credentialPath(id)
	existed, err := removeIfExists(path)
	if err != nil {
		return existed, s.fail(op, path, nil, err)
	}
	parent := s.didPath(id.DID(), credentialsDir)
	if err := pruneIfEmpty(parent); err != nil {
		return existed, s.fail(op, parent, nil, err)
	}
	s.done(op)
	return existed, nil
}

func (s *Storage) ListCredentials(d did.DID) ([]did.DIDURL, error) {
	const op = "list credentials"
	if err := s.checkDID(op, d); err != nil {
		return nil, err
	}
	dir := s.didPath(d, credentialsDir)
	names, err := listEntries(dir, func(e os.DirEntry) bool { return e.IsDir() })
	if err != nil {
		return nil, s.fail(op, dir, nil, err)
	}
	out := make([]did.DIDURL, 0, len(names))
	for _, name := range names {
		if !isFile(s.didPath(d, credentialsDir, name, credentialFile)) {
			continue
		}
		id, err := did.ParseDIDURL(unescapeURL(name), d)
		if err != nil {
			s.logWarn(op, "skipping unparsable credential directory", "entry", name)
			continue
		}
		out = append(out, id)
	}
	s.done(op)
	return out, nil
}

func (s *Storage) StoreCredentialMetadata(id did.DIDURL, meta *did.Metadata) error {
	const op = "store credential metadata"
	if err := s.checkURL(op, id); err != nil {
		return err
	}
	return s.storeEntityMetadata(op, s.credentialPath(id, metadataFile), meta)
}

func (s *Storage) LoadCredentialMetadata(id did.DIDURL) (*did.Metadata, error) {
	const op = "load credential metadata"
	if err := s.checkURL(op, id); err != nil {
		return nil, err
	}
	return s.loadEntityMetadata(op, s.credentialPath(id, metadataFile))
}

func (s *Storage) checkURLQuiet(id did.DIDURL) bool {
	return !id.DID().IsZero() &&
		validateSegment(id.DID().MethodSpecificID()) == nil &&
		id.RelativeString() != "" &&
		validateSegment(escapeURL(id)) == nil
}
