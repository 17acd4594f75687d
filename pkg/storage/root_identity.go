package storage

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/elastos/Elastos.DID.JS.SDK-sub002/pkg/did"
)

// RootIdentityRecord is the public part of a stored root identity. The
// encrypted mnemonic and private key are loaded separately.
type RootIdentityRecord struct {
	ID        string
	PublicKey string
	Index     int
}

func (s *Storage) rootPath(id string, elem ...string) string {
	return s.dataPath(append([]string{rootsDir, id}, elem...)...)
}

// StoreRootIdentity writes a root identity. mnemonic and privateKey are
// ciphertexts and may be empty; publicKey is the extended public key of the
// pre-derived account node.
func (s *Storage) StoreRootIdentity(id, mnemonic, privateKey, publicKey string, index int) error {
	const op = "store root identity"
	if err := validateSegment(id); err != nil {
		return s.fail(op, id, ErrInvalidID, err)
	}
	if publicKey == "" {
		return s.fail(op, s.rootPath(id, rootPublicFile), nil, errEmptyPayload)
	}
	files := []struct {
		name  string
		value string
	}{
		{rootMnemonicFile, mnemonic},
		{rootPrivateFile, privateKey},
		{rootPublicFile, publicKey},
		{rootIndexFile, strconv.Itoa(index)},
	}
	for _, f := range files {
		if f.value == "" {
			continue
		}
		path := s.rootPath(id, f.name)
		if err := writeFileAtomic(path, []byte(f.value)); err != nil {
			return s.fail(op, path, nil, err)
		}
	}
	s.done(op)
	s.logDebug(op, "root identity stored", "root_identity_id", id)
	return nil
}

func (s *Storage) LoadRootIdentity(id string) (RootIdentityRecord, error) {
	const op = "load root identity"
	if err := validateSegment(id); err != nil {
		return RootIdentityRecord{}, s.fail(op, id, ErrInvalidID, err)
	}
	pubPath := s.rootPath(id, rootPublicFile)
	pub, ok, err := readFile(pubPath)
	if err != nil {
		return RootIdentityRecord{}, s.fail(op, pubPath, nil, err)
	}
	if !ok {
		return RootIdentityRecord{}, s.missing(op, pubPath)
	}
	index, err := s.loadRootIndex(id)
	if err != nil {
		return RootIdentityRecord{}, err
	}
	s.done(op)
	return RootIdentityRecord{ID: id, PublicKey: strings.TrimSpace(string(pub)), Index: index}, nil
}

func (s *Storage) loadRootIndex(id string) (int, error) {
	path := s.rootPath(id, rootIndexFile)
	raw, ok, err := readFile(path)
	if err != nil {
		return 0, s.fail("load root identity", path, nil, err)
	}
	if !ok {
		return 0, nil
	}
	index, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil || index < 0 {
		return 0, s.fail("load root identity", path, ErrCorruptStore, fmt.Errorf("bad index %q", raw))
	}
	return index, nil
}

func (s *Storage) UpdateRootIdentityIndex(id string, index int) error {
	const op = "update root identity index"
	if err := validateSegment(id); err != nil {
		return s.fail(op, id, ErrInvalidID, err)
	}
	if index < 0 {
		return s.fail(op, id, nil, fmt.Errorf("negative index %d", index))
	}
	if !isDir(s.rootPath(id)) {
		return s.missing(op, s.rootPath(id))
	}
	path := s.rootPath(id, rootIndexFile)
	if err := writeFileAtomic(path, []byte(strconv.Itoa(index))); err != nil {
		return s.fail(op, path, nil, err)
	}
	s.done(op)
	return nil
}

func (s *Storage) LoadRootIdentityPrivateKey(id string) (string, error) {
	return s.loadRootSecret("load root identity private key", id, rootPrivateFile)
}

func (s *Storage) LoadRootIdentityMnemonic(id string) (string, error) {
	return s.loadRootSecret("load root identity mnemonic", id, rootMnemonicFile)
}

func (s *Storage) ContainsRootIdentityMnemonic(id string) bool {
	return validateSegment(id) == nil && isFile(s.rootPath(id, rootMnemonicFile))
}

func (s *Storage) loadRootSecret(op, id, name string) (string, error) {
	if err := validateSegment(id); err != nil {
		return "", s.fail(op, id, ErrInvalidID, err)
	}
	path := s.rootPath(id, name)
	raw, ok, err := readFile(path)
	if err != nil {
		return "", s.fail(op, path, nil, err)
	}
	if !ok {
		return "", s.missing(op, path)
	}
	s.done(op)
	return strings.TrimSpace(string(raw)), nil
}

// DeleteRootIdentity removes the identity directory. It reports false when
// nothing was stored under id.
func (s *Storage) DeleteRootIdentity(id string) (bool, error) {
	const op = "delete root identity"
	if err := validateSegment(id); err != nil {
		return false, s.fail(op, id, ErrInvalidID, err)
	}
	path := s.rootPath(id)
	existed, err := removeIfExists(path)
	if err != nil {
		return existed, s.fail(op, path, nil, err)
	}
	if err := pruneIfEmpty(s.dataPath(rootsDir)); err != nil {
		return existed, s.fail(op, s.dataPath(rootsDir), nil, err)
	}
	s.done(op)
	if existed {
		s.logDebug(op, "root identity deleted", "root_identity_id", id)
	}
	return existed, nil
}

// ListRootIdentities returns every identity that has a public key, sorted
// by id.
func (s *Storage) ListRootIdentities() ([]RootIdentityRecord, error) {
	const op = "list root identities"
	dir := s.dataPath(rootsDir)
	names, err := listEntries(dir, func(e os.DirEntry) bool { return e.IsDir() })
	if err != nil {
		return nil, s.fail(op, dir, nil, err)
	}
	out := make([]RootIdentityRecord, 0, len(names))
	for _, name := range names {
		if !isFile(s.rootPath(name, rootPublicFile)) {
			continue
		}
		record, err := s.LoadRootIdentity(name)
		if err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	s.done(op)
	return out, nil
}

func (s *Storage) ContainsRootIdentities() (bool, error) {
	dir := s.dataPath(rootsDir)
	names, err := listEntries(dir, func(e os.DirEntry) bool { return e.IsDir() })
	if err != nil {
		return false, s.fail("contains root identities", dir, nil, err)
	}
	for _, name := range names {
		if isFile(s.rootPath(name, rootPublicFile)) {
			return true, nil
		}
	}
	return false, nil
}

func (s *Storage) StoreRootIdentityMetadata(id string, meta *did.Metadata) error {
	const op = "store root identity metadata"
	if err := validateSegment(id); err != nil {
		return s.fail(op, id, ErrInvalidID, err)
	}
	return s.storeEntityMetadata(op, s.rootPath(id, metadataFile), meta)
}

func (s *Storage) LoadRootIdentityMetadata(id string) (*did.Metadata, error) {
	const op = "load root identity metadata"
	if err := validateSegment(id); err != nil {
		return nil, s.fail(op, id, ErrInvalidID, err)
	}
	return s.loadEntityMetadata(op, s.rootPath(id, metadataFile))
}

// validateSegment rejects ids that would escape their parent directory.
func validateSegment(id string) error {
	switch {
	case strings.TrimSpace(id) == "":
		return errors.New("empty id")
	case id == "." || id == "..":
		return fmt.Errorf("reserved id %q", id)
	case strings.ContainsAny(id, `/\`+"\x00"):
		return fmt.Errorf("id %q contains a path separator", id)
	case strings.HasSuffix(id, tmpExt):
		return fmt.Errorf("id %q uses a reserved suffix", id)
	}
	return nil
}
