package storage

import (
	"encoding/json"
	"errors"

	"github.com/elastos/Elastos.DID.JS.SDK-sub002/pkg/did"
)

const (
	StoreType    = "did:elastos:store"
	StoreVersion = 3
)

// StoreMetadata is persisted as data/.metadata.
type StoreMetadata struct {
	Type                string `json:"type"`
	Version             int    `json:"version"`
	Fingerprint         string `json:"fingerprint,omitempty"`
	DefaultRootIdentity string `json:"defaultRootIdentity,omitempty"`
}

func NewStoreMetadata() StoreMetadata {
	return StoreMetadata{Type: StoreType, Version: StoreVersion}
}

func (s *Storage) StoreMetadata(meta StoreMetadata) error {
	path := s.dataPath(metadataFile)
	raw, err := json.Marshal(meta)
	if err != nil {
		return s.fail("store metadata", path, nil, err)
	}
	if err := writeFileAtomic(path, raw); err != nil {
		return s.fail("store metadata", path, nil, err)
	}
	s.done("store metadata")
	return nil
}

func (s *Storage) LoadMetadata() (StoreMetadata, error) {
	path := s.dataPath(metadataFile)
	raw, ok, err := readFile(path)
	if err != nil {
		return StoreMetadata{}, s.fail("load metadata", path, nil, err)
	}
	if !ok {
		return StoreMetadata{}, s.missing("load metadata", path)
	}
	var meta StoreMetadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return StoreMetadata{}, s.fail("load metadata", path, ErrCorruptStore, err)
	}
	s.done("load metadata")
	return meta, nil
}

// storeEntityMetadata writes a .metadata sidecar, or deletes it when meta
// is empty.
func (s *Storage) storeEntityMetadata(op, path string, meta *did.Metadata) error {
	if meta.IsEmpty() {
		if _, err := removeIfExists(path); err != nil {
			return s.fail(op, path, nil, err)
		}
		s.done(op)
		return nil
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return s.fail(op, path, nil, err)
	}
	if err := writeFileAtomic(path, raw); err != nil {
		return s.fail(op, path, nil, err)
	}
	s.done(op)
	return nil
}

// loadEntityMetadata returns empty metadata when the sidecar is absent.
func (s *Storage) loadEntityMetadata(op, path string) (*did.Metadata, error) {
	raw, ok, err := readFile(path)
	if err != nil {
		return nil, s.fail(op, path, nil, err)
	}
	if !ok {
		s.done(op)
		return did.NewMetadata(), nil
	}
	meta, err := did.ParseMetadata(raw)
	if err != nil {
		return nil, s.fail(op, path, ErrCorruptStore, err)
	}
	s.done(op)
	return meta, nil
}

func (s *Storage) missing(op, path string) error {
	e := opError(op, s.relative(path), ErrNotFound, nil)
	s.recorder.ObserveOperation(op, e)
	return e
}

var errEmptyPayload = errors.New("empty payload")
