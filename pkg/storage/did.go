package storage

import (
	"os"
	"strings"

	"github.com/elastos/Elastos.DID.JS.SDK-sub002/pkg/did"
)

func (s *Storage) didPath(d did.DID, elem ...string) string {
	return s.dataPath(append([]string{idsDir, d.MethodSpecificID()}, elem...)...)
}

func (s *Storage) checkDID(op string, d did.DID) error {
	if d.IsZero() {
		return s.fail(op, "", ErrInvalidID, errEmptyDID)
	}
	if err := validateSegment(d.MethodSpecificID()); err != nil {
		return s.fail(op, d.MethodSpecificID(), ErrInvalidID, err)
	}
	return nil
}

// StoreDID writes the serialized DID document.
func (s *Storage) StoreDID(d did.DID, document []byte) error {
	const op = "store did"
	if err := s.checkDID(op, d); err != nil {
		return err
	}
	if len(document) == 0 {
		return s.fail(op, s.didPath(d, documentFile), nil, errEmptyPayload)
	}
	path := s.didPath(d, documentFile)
	if err := writeFileAtomic(path, document); err != nil {
		return s.fail(op, path, nil, err)
	}
	s.done(op)
	s.logDebug(op, "did document stored", "did", d.String())
	return nil
}

func (s *Storage) LoadDID(d did.DID) ([]byte, error) {
	const op = "load did"
	if err := s.checkDID(op, d); err != nil {
		return nil, err
	}
	path := s.didPath(d, documentFile)
	raw, ok, err := readFile(path)
	if err != nil {
		return nil, s.fail(op, path, nil, err)
	}
	if !ok {
		return nil, s.missing(op, path)
	}
	s.done(op)
	return raw, nil
}

func (s *Storage) ContainsDID(d did.DID) bool {
	return !d.IsZero() && validateSegment(d.MethodSpecificID()) == nil && isFile(s.didPath(d, documentFile))
}

// DeleteDID removes the DID directory with its credentials and keys.
func (s *Storage) DeleteDID(d did.DID) (bool, error) {
	const op = "delete did"
	if err := s.checkDID(op, d); err != nil {
		return false, err
	}
	path := s.didPath(d)
	existed, err := removeIfExists(path)
	if err != nil {
		return existed, s.fail(op, path, nil, err)
	}
	if err := pruneIfEmpty(s.dataPath(idsDir)); err != nil {
		return existed, s.fail(op, s.dataPath(idsDir), nil, err)
	}
	s.done(op)
	if existed {
		s.logDebug(op, "did deleted", "did", d.String())
	}
	return existed, nil
}

// ListDIDs returns the DIDs that have a stored document.
func (s *Storage) ListDIDs() ([]did.DID, error) {
	const op = "list dids"
	dir := s.dataPath(idsDir)
	names, err := listEntries(dir, func(e os.DirEntry) bool { return e.IsDir() })
	if err != nil {
		return nil, s.fail(op, dir, nil, err)
	}
	out := make([]did.DID, 0, len(names))
	for _, name := range names {
		if !isFile(s.dataPath(idsDir, name, documentFile)) {
			continue
		}
		d, err := did.New(name)
		if err != nil {
			s.logWarn(op, "skipping unparsable did directory", "entry", name)
			continue
		}
		out = append(out, d)
	}
	s.done(op)
	return out, nil
}

func (s *Storage) StoreDIDMetadata(d did.DID, meta *did.Metadata) error {
	const op = "store did metadata"
	if err := s.checkDID(op, d); err != nil {
		return err
	}
	return s.storeEntityMetadata(op, s.didPath(d, metadataFile), meta)
}

func (s *Storage) LoadDIDMetadata(d did.DID) (*did.Metadata, error) {
	const op = "load did metadata"
	if err := s.checkDID(op, d); err != nil {
		return nil, err
	}
	return s.loadEntityMetadata(op, s.didPath(d, metadataFile))
}

var (
	escapeReplacer   = strings.NewReplacer(";", "+", "/", "~", "?", "!")
	unescapeReplacer = strings.NewReplacer("+", ";", "~", "/", "!", "?")
)

// escapeURL turns the DID-relative part of a DID URL into a file name.
func escapeURL(u did.DIDURL) string {
	return escapeReplacer.Replace(u.RelativeString())
}

func unescapeURL(name string) string {
	return unescapeReplacer.Replace(name)
}
