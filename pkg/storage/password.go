package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ReEncryptor rewrites one encrypted payload under a new password. It
// receives the stored text form and returns the replacement.
type ReEncryptor func(data string) (string, error)

type changeOptions struct {
	metadata *StoreMetadata
}

type ChangeOption func(*changeOptions)

// WithMetadata replaces data/.metadata in the journal, so store metadata
// that depends on the password flips together with the keys.
func WithMetadata(meta StoreMetadata) ChangeOption {
	return func(o *changeOptions) { o.metadata = &meta }
}

// ChangePassword re-encrypts every secret in the store through a journal
// copy of the data directory. The live data directory is only replaced
// after the journal is complete; on any earlier failure the journal is
// removed and the store keeps its old password.
func (s *Storage) ChangePassword(reEncryptor ReEncryptor, opts ...ChangeOption) error {
	const op = "change password"
	if reEncryptor == nil {
		return s.fail(op, "", ErrPasswordChange, errors.New("nil re-encryptor"))
	}
	var o changeOptions
	for _, opt := range opts {
		opt(&o)
	}
	start := s.now()
	data := s.dataPath()
	journal := s.path(journalDir)

	abort := func(path string, err error) error {
		if rmErr := os.RemoveAll(journal); rmErr != nil {
			err = errors.Join(err, rmErr)
		}
		s.recorder.ObservePasswordChange("failed", s.now().Sub(start), 0)
		return s.fail(op, path, ErrPasswordChange, err)
	}

	if err := os.RemoveAll(journal); err != nil {
		return s.fail(op, journal, ErrPasswordChange, err)
	}
	count, err := s.copyJournal(data, journal, reEncryptor)
	if err != nil {
		return abort(journal, err)
	}
	if o.metadata != nil {
		raw, err := json.Marshal(o.metadata)
		if err != nil {
			return abort(journal, err)
		}
		if err := writeFileSync(filepath.Join(journal, metadataFile), raw); err != nil {
			return abort(journal, err)
		}
	}
	if err := s.hit(crashJournalComplete); err != nil {
		return err
	}

	stage := s.path(stageFile)
	if err := writeFileSync(stage, nil); err != nil {
		_ = os.Remove(stage)
		return abort(stage, err)
	}
	_ = syncDir(s.root)
	if err := s.hit(crashStageWritten); err != nil {
		return err
	}

	if err := s.postOperations(); err != nil {
		s.recorder.ObservePasswordChange("failed", s.now().Sub(start), count)
		return err
	}
	s.recorder.ObservePasswordChange("ok", s.now().Sub(start), count)
	s.done(op)
	s.logInfo(op, "store password changed", "re_encrypted", count)
	return nil
}

// copyJournal mirrors src into dst, passing secret-bearing files through
// reEncryptor. It returns the number of re-encrypted files.
func (s *Storage) copyJournal(src, dst string, reEncryptor ReEncryptor) (int, error) {
	count := 0
	err := filepath.WalkDir(src, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, dirPerm)
		}
		if !d.Type().IsRegular() || strings.HasSuffix(d.Name(), tmpExt) {
			return nil
		}

		raw, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		out, rewritten, err := rewriteForJournal(filepath.ToSlash(rel), raw, reEncryptor)
		if err != nil {
			return fmt.Errorf("%s: %w", filepath.ToSlash(rel), err)
		}
		if rewritten {
			count++
		}
		return writeFileSync(target, out)
	})
	if err != nil {
		return count, err
	}
	return count, syncDir(dst)
}

// rewriteForJournal decides, by path, whether a file holds a secret. Root
// identity mnemonics and private keys, DID private keys and credential
// files carrying CredentialMagic are re-encrypted; everything else is
// copied verbatim.
func rewriteForJournal(rel string, raw []byte, reEncryptor ReEncryptor) ([]byte, bool, error) {
	parts := strings.Split(rel, "/")
	switch {
	case len(parts) == 3 && parts[0] == rootsDir && (parts[2] == rootPrivateFile || parts[2] == rootMnemonicFile),
		len(parts) == 4 && parts[0] == idsDir && parts[2] == privateKeysDir:
		out, err := reEncryptor(strings.TrimSpace(string(raw)))
		if err != nil {
			return nil, false, err
		}
		return []byte(out), true, nil

	case len(parts) == 5 && parts[0] == idsDir && parts[2] == credentialsDir && parts[4] == credentialFile &&
		bytes.HasPrefix(raw, CredentialMagic):
		out, err := reEncryptor(string(raw[len(CredentialMagic):]))
		if err != nil {
			return nil, false, err
		}
		framed := make([]byte, 0, len(CredentialMagic)+len(out))
		framed = append(framed, CredentialMagic...)
		framed = append(framed, out...)
		return framed, true, nil
	}
	return raw, false, nil
}
