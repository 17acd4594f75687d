package storage

import (
	"os"
	"strings"

	"github.com/elastos/Elastos.DID.JS.SDK-sub002/pkg/did"
)

func (s *Storage) privateKeyPath(id did.DIDURL) string {
	return s.didPath(id.DID(), privateKeysDir, escapeURL(id))
}

// StorePrivateKey writes an encrypted private key for a DID key id.
func (s *Storage) StorePrivateKey(id did.DIDURL, encrypted string) error {
	const op = "store private key"
	if err := s.checkURL(op, id); err != nil {
		return err
	}
	path := s.privateKeyPath(id)
	if encrypted == "" {
		return s.fail(op, path, nil, errEmptyPayload)
	}
	if err := writeFileAtomic(path, []byte(encrypted)); err != nil {
		return s.fail(op, path, nil, err)
	}
	s.done(op)
	s.logDebug(op, "private key stored", "key_id", id.String())
	return nil
}

func (s *Storage) LoadPrivateKey(id did.DIDURL) (string, error) {
	const op = "load private key"
	if err := s.checkURL(op, id); err != nil {
		return "", err
	}
	path := s.privateKeyPath(id)
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

func (s *Storage) ContainsPrivateKey(id did.DIDURL) bool {
	return s.checkURLQuiet(id) && isFile(s.privateKeyPath(id))
}

func (s *Storage) ContainsPrivateKeys(d did.DID) (bool, error) {
	if err := s.checkDID("contains private keys", d); err != nil {
		return false, err
	}
	ok, err := hasEntries(s.didPath(d, privateKeysDir))
	if err != nil {
		return false, s.fail("contains private keys", s.didPath(d, privateKeysDir), nil, err)
	}
	return ok, nil
}

// DeletePrivateKey removes one key and prunes an empty privatekeys
// directory.
func (s *Storage) DeletePrivateKey(id did.DIDURL) (bool, error) {
	const op = "delete private key"
	if err := s.checkURL(op, id); err != nil {
		return false, err
	}
	path := s.privateKeyPath(id)
	existed, err := removeIfExists(path)
	if err != nil {
		return existed, s.fail(op, path, nil, err)
	}
	parent := s.didPath(id.DID(), privateKeysDir)
	if err := pruneIfEmpty(parent); err != nil {
		return existed, s.fail(op, parent, nil, err)
	}
	s.done(op)
	return existed, nil
}

func (s *Storage) ListPrivateKeys(d did.DID) ([]did.DIDURL, error) {
	const op = "list private keys"
	if err := s.checkDID(op, d); err != nil {
		return nil, err
	}
	dir := s.didPath(d, privateKeysDir)
	names, err := listEntries(dir, func(e os.DirEntry) bool {
		return e.Type().IsRegular() && !strings.HasSuffix(e.Name(), tmpExt)
	})
	if err != nil {
		return nil, s.fail(op, dir, nil, err)
	}
	out := make([]did.DIDURL, 0, len(names))
	for _, name := range names {
		id, err := did.ParseDIDURL(unescapeURL(name), d)
		if err != nil {
			s.logWarn(op, "skipping unparsable private key file", "entry", name)
			continue
		}
		out = append(out, id)
	}
	s.done(op)
	return out, nil
}
