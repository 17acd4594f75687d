// Package storage maps DID store entities onto a directory tree and rotates
// the store password atomically through a journal directory.
//
// Layout under the store root:
//
//	data/.metadata
//	data/roots/<id>/{mnemonic,private,public,index,.metadata}
//	data/ids/<method-specific-id>/{document,.metadata}
//	data/ids/<method-specific-id>/credentials/<escaped-url>/{credential,.metadata}
//	data/ids/<method-specific-id>/privatekeys/<escaped-url>
//
// A Storage assumes it is the only writer of its root.
package storage

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	componentName = "storage"

	dataDir        = "data"
	journalDir     = "data.journal"
	stageFile      = "postChangePassword"
	backupPrefix   = "data_"
	metadataFile   = ".metadata"
	rootsDir       = "roots"
	idsDir         = "ids"
	credentialsDir = "credentials"
	privateKeysDir = "privatekeys"

	rootMnemonicFile = "mnemonic"
	rootPrivateFile  = "private"
	rootPublicFile   = "public"
	rootIndexFile    = "index"
	documentFile     = "document"
	credentialFile   = "credential"
)

type options struct {
	logger        *slog.Logger
	recorder      Recorder
	now           func() time.Time
	retainBackups bool
}

type Option func(*options)

func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func WithRecorder(r Recorder) Option {
	return func(o *options) {
		if r != nil {
			o.recorder = r
		}
	}
}

// WithClock replaces time.Now for backup directory names and durations.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithBackupRetention controls whether the data_<ts> directory left by a
// password change is kept. Backups are kept by default.
func WithBackupRetention(retain bool) Option {
	return func(o *options) { o.retainBackups = retain }
}

// Storage is a DID store rooted at one directory.
type Storage struct {
	root          string
	logger        *slog.Logger
	recorder      Recorder
	now           func() time.Time
	retainBackups bool

	// crash lets tests stop a password change at a named point without
	// any cleanup, as a process kill would.
	crash func(point string) error
}

const (
	crashJournalComplete = "journal_complete"
	crashStageWritten    = "stage_written"
	crashDataMoved       = "data_moved"
)

// Open initializes a new store at root, or recovers and validates an
// existing one. Recovery completes or discards an interrupted password
// change before the store metadata is checked.
func Open(root string, opts ...Option) (*Storage, error) {
	o := options{
		logger:        slog.Default(),
		recorder:      nopRecorder{},
		now:           time.Now,
		retainBackups: true,
	}
	for _, opt := range opts {
		opt(&o)
	}
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, opError("open", root, ErrInvalidID, errors.New("empty store root"))
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, opError("open", root, nil, err)
	}
	s := &Storage{
		root:          abs,
		logger:        o.logger,
		recorder:      o.recorder,
		now:           o.now,
		retainBackups: o.retainBackups,
	}

	if isDir(s.root) {
		if err := s.postOperations(); err != nil {
			return nil, err
		}
		if isDir(s.dataPath()) {
			if err := s.checkStore(); err != nil {
				return nil, err
			}
			s.logDebug("open", "store opened", "root", s.root)
			return s, nil
		}
	}
	if err := s.initializeStore(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Storage) Root() string { return s.root }

func (s *Storage) initializeStore() error {
	if err := os.MkdirAll(s.dataPath(), dirPerm); err != nil {
		return s.fail("initialize", s.dataPath(), nil, err)
	}
	if err := s.StoreMetadata(NewStoreMetadata()); err != nil {
		return err
	}
	s.logInfo("initialize", "store initialized", "root", s.root)
	return nil
}

func (s *Storage) checkStore() error {
	path := s.dataPath(metadataFile)
	meta, err := s.LoadMetadata()
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return s.fail("check", path, ErrCorruptStore, errors.New("missing store metadata"))
		}
		return err
	}
	if meta.Type != StoreType {
		return s.fail("check", path, ErrCorruptStore, fmt.Errorf("unknown store type %q", meta.Type))
	}
	if meta.Version != StoreVersion {
		return s.fail("check", path, ErrUnsupportedVersion, fmt.Errorf("version %d", meta.Version))
	}
	return nil
}

// postOperations finishes a password change whose journal was completed,
// or drops a journal that never was. Each step re-checks the filesystem so
// an interrupted run can be repeated.
func (s *Storage) postOperations() error {
	stage := s.path(stageFile)
	journal := s.path(journalDir)
	data := s.dataPath()

	if !exists(stage) {
		if exists(journal) {
			if err := os.RemoveAll(journal); err != nil {
				return s.fail("recover", journal, nil, err)
			}
			s.recorder.ObserveRecovery(RecoveryJournalDiscarded)
			s.logInfo("recover", "incomplete password change journal discarded")
		}
		return nil
	}

	if exists(journal) {
		var backup string
		if exists(data) {
			backup = s.backupPath()
			if err := os.Rename(data, backup); err != nil {
				return s.fail("recover", data, nil, err)
			}
			if err := s.hit(crashDataMoved); err != nil {
				return err
			}
		}
		if err := os.Rename(journal, data); err != nil {
			return s.fail("recover", journal, nil, err)
		}
		_ = syncDir(s.root)
		s.recorder.ObserveRecovery(RecoveryJournalCommitted)
		s.logInfo("recover", "password change journal committed")
		if backup != "" && !s.retainBackups {
			if err := os.RemoveAll(backup); err != nil {
				s.logWarn("recover", "backup removal failed", "error", err.Error())
			}
		}
	}

	if err := os.Remove(stage); err != nil && !errors.Is(err, os.ErrNotExist) {
		return s.fail("recover", stage, nil, err)
	}
	s.recorder.ObserveRecovery(RecoveryStageCleared)
	return nil
}

// backupPath returns data_<unix-seconds>, bumping the suffix while taken.
func (s *Storage) backupPath() string {
	ts := s.now().Unix()
	for {
		candidate := s.path(backupPrefix + strconv.FormatInt(ts, 10))
		if !exists(candidate) {
			return candidate
		}
		ts++
	}
}

// Backups lists the data_<ts> directories left by password changes.
func (s *Storage) Backups() ([]string, error) {
	names, err := listEntries(s.root, func(e os.DirEntry) bool {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), backupPrefix) {
			return false
		}
		_, err := strconv.ParseInt(strings.TrimPrefix(e.Name(), backupPrefix), 10, 64)
		return err == nil
	})
	if err != nil {
		return nil, s.fail("list backups", s.root, nil, err)
	}
	return names, nil
}

func (s *Storage) hit(point string) error {
	if s.crash == nil {
		return nil
	}
	return s.crash(point)
}

func (s *Storage) path(elem ...string) string {
	return filepath.Join(append([]string{s.root}, elem...)...)
}

func (s *Storage) dataPath(elem ...string) string {
	return filepath.Join(append([]string{s.root, dataDir}, elem...)...)
}

// fail builds an *Error, records it and logs it at warn level.
func (s *Storage) fail(op, path string, kind, err error) error {
	e := opError(op, path, kind, err)
	s.recorder.ObserveOperation(op, e)
	s.logWarn(op, "storage operation failed", "path", s.relative(path), "error", e.Error())
	return e
}

func (s *Storage) done(op string) {
	s.recorder.ObserveOperation(op, nil)
}

func (s *Storage) relative(path string) string {
	if rel, err := filepath.Rel(s.root, path); err == nil {
		return rel
	}
	return path
}

func (s *Storage) logDebug(operation, message string, attrs ...any) {
	base := []any{"component", componentName, "operation", operation}
	s.logger.Debug(message, append(base, attrs...)...)
}

func (s *Storage) logInfo(operation, message string, attrs ...any) {
	base := []any{"component", componentName, "operation", operation}
	s.logger.Info(message, append(base, attrs...)...)
}

func (s *Storage) logWarn(operation, message string, attrs ...any) {
	base := []any{"component", componentName, "operation", operation}
	s.logger.Warn(message, append(base, attrs...)...)
}
