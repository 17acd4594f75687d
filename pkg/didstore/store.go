// Package didstore manages root identities, DIDs and their keys on top of
// an encrypted storage root. Every secret is encrypted with the store
// password (storepass) before it reaches the disk.
package didstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/elastos/Elastos.DID.JS.SDK-sub002/internal/platform/ratelimiter"
	"github.com/elastos/Elastos.DID.JS.SDK-sub002/pkg/securestore"
	"github.com/elastos/Elastos.DID.JS.SDK-sub002/pkg/signer"
	"github.com/elastos/Elastos.DID.JS.SDK-sub002/pkg/storage"
)

const componentName = "didstore"

var (
	ErrPasswordRequired      = errors.New("didstore: store password is required")
	ErrWrongPassword         = fmt.Errorf("didstore: %w", securestore.ErrWrongPassword)
	ErrPasswordLocked        = errors.New("didstore: password attempts are temporarily locked")
	ErrInvalidMnemonic       = errors.New("didstore: invalid mnemonic")
	ErrRootIdentityExists    = errors.New("didstore: root identity already exists")
	ErrNoRootIdentity        = errors.New("didstore: no root identity")
	ErrMnemonicNotAvailable  = errors.New("didstore: mnemonic is not available")
	ErrPrivateKeyNotFound    = errors.New("didstore: private key not found")
	ErrPublicKeyNotFound     = errors.New("didstore: public key not found")
	ErrInvalidStoredKey      = errors.New("didstore: stored key is invalid")
	ErrCredentialNotReadable = errors.New("didstore: encrypted credential needs the store password")
)

// PasswordFailureObserver is notified about rejected store passwords. The
// outcome is "wrong" or "locked".
type PasswordFailureObserver interface {
	ObservePasswordFailure(outcome string)
}

type options struct {
	logger         *slog.Logger
	now            func() time.Time
	limiter        *ratelimiter.AttemptLimiter
	observer       PasswordFailureObserver
	storageOptions []storage.Option
}

type Option func(*options)

func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithAttemptLimiter throttles wrong store passwords. A nil limiter
// disables throttling.
func WithAttemptLimiter(l *ratelimiter.AttemptLimiter) Option {
	return func(o *options) { o.limiter = l }
}

func WithPasswordFailureObserver(obs PasswordFailureObserver) Option {
	return func(o *options) { o.observer = obs }
}

// WithStorageOptions forwards options to storage.Open.
func WithStorageOptions(opts ...storage.Option) Option {
	return func(o *options) { o.storageOptions = append(o.storageOptions, opts...) }
}

// Store serializes every operation on one storage root.
type Store struct {
	mu       sync.Mutex
	storage  *storage.Storage
	signer   *signer.Signer
	logger   *slog.Logger
	now      func() time.Time
	limiter  *ratelimiter.AttemptLimiter
	observer PasswordFailureObserver
}

// Open opens or initializes the store rooted at root. Passwords are
// throttled with six failures per minute and a burst of five unless
// WithAttemptLimiter says otherwise.
func Open(root string, opts ...Option) (*Store, error) {
	o := options{
		logger:  slog.Default(),
		now:     time.Now,
		limiter: ratelimiter.New(6, 5, 10*time.Minute),
	}
	for _, opt := range opts {
		opt(&o)
	}
	storageOpts := append([]storage.Option{
		storage.WithLogger(o.logger),
		storage.WithClock(o.now),
	}, o.storageOptions...)
	st, err := storage.Open(root, storageOpts...)
	if err != nil {
		return nil, err
	}
	return &Store{
		storage:  st,
		signer:   signer.New(),
		logger:   o.logger,
		now:      o.now,
		limiter:  o.limiter,
		observer: o.observer,
	}, nil
}

func (s *Store) Root() string { return s.storage.Root() }

// Storage exposes the underlying file store for read-only inspection such
// as listing backups.
func (s *Store) Storage() *storage.Storage { return s.storage }

// ChangePassword re-encrypts every secret from oldPassword to newPassword.
// The old password stays valid if the change fails for any reason.
func (s *Store) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(newPassword) == "" {
		return ErrPasswordRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkPassword(oldPassword); err != nil {
		return err
	}
	meta, err := s.storage.LoadMetadata()
	if err != nil {
		return err
	}
	fingerprint, err := securestore.Fingerprint(newPassword)
	if err != nil {
		return err
	}
	meta.Fingerprint = fingerprint

	reEncrypt := func(data string) (string, error) {
		return securestore.ReEncryptBase64(data, oldPassword, newPassword)
	}
	if err := s.storage.ChangePassword(reEncrypt, storage.WithMetadata(meta)); err != nil {
		if errors.Is(err, securestore.ErrWrongPassword) {
			s.logWarn("change password", "store holds secrets that do not decrypt under the current password")
		}
		return err
	}
	s.logInfo("change password", "store password changed")
	return nil
}

// checkPassword compares storepass with the fingerprint in the store
// metadata. A store without a fingerprint records one once storepass has
// decrypted an existing secret.
// Callers hold s.mu.
func (s *Store) checkPassword(storepass string) error {
	if strings.TrimSpace(storepass) == "" {
		return ErrPasswordRequired
	}
	key := s.storage.Root()
	now := s.now()
	if s.limiter.Blocked(key, now) {
		s.observePasswordFailure("locked")
		return ErrPasswordLocked
	}

	meta, err := s.storage.LoadMetadata()
	if err != nil {
		return err
	}
	fingerprint, err := securestore.Fingerprint(storepass)
	if err != nil {
		return err
	}
	if meta.Fingerprint == "" {
		// Stores written without a fingerprint adopt the first password
		// that opens one of their secrets.
		if err := s.verifyAgainstSecrets(storepass); err != nil {
			if errors.Is(err, ErrWrongPassword) {
				return s.passwordRejected(key, now)
			}
			return err
		}
		meta.Fingerprint = fingerprint
		if err := s.storage.StoreMetadata(meta); err != nil {
			return err
		}
		s.limiter.Reset(key)
		return nil
	}
	if meta.Fingerprint != fingerprint {
		return s.passwordRejected(key, now)
	}
	s.limiter.Reset(key)
	return nil
}

// verifyAgainstSecrets decrypts one stored private key with storepass. A
// store holding no private key accepts any password. Callers hold s.mu.
func (s *Store) verifyAgainstSecrets(storepass string) error {
	roots, err := s.storage.ListRootIdentities()
	if err != nil {
		return err
	}
	for _, record := range roots {
		key, err := s.rootKey(record.ID, storepass)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			continue
		case errors.Is(err, ErrInvalidStoredKey):
			return ErrWrongPassword
		case err != nil:
			return err
		}
		key.Wipe()
		return nil
	}

	dids, err := s.storage.ListDIDs()
	if err != nil {
		return err
	}
	for _, d := range dids {
		keys, err := s.storage.ListPrivateKeys(d)
		if err != nil {
			return err
		}
		if len(keys) == 0 {
			continue
		}
		priv, err := s.loadPrivateKey(keys[0], storepass)
		switch {
		case errors.Is(err, ErrInvalidStoredKey):
			return ErrWrongPassword
		case err != nil:
			return err
		}
		zeroBytes(priv)
		return nil
	}
	return nil
}

func (s *Store) passwordRejected(key string, now time.Time) error {
	if !s.limiter.Fail(key, now) {
		s.observePasswordFailure("locked")
		s.logWarn("check password", "store password locked after repeated failures")
		return ErrPasswordLocked
	}
	s.observePasswordFailure("wrong")
	s.logWarn("check password", "wrong store password")
	return ErrWrongPassword
}

func (s *Store) observePasswordFailure(outcome string) {
	if s.observer != nil {
		s.observer.ObservePasswordFailure(outcome)
	}
}

// decrypt opens a stored ciphertext; a padding failure means the password
// does not match the one the secret was written with.
func (s *Store) decrypt(storepass, ciphertext string) ([]byte, error) {
	plain, err := securestore.DecryptFromBase64(storepass, ciphertext)
	if errors.Is(err, securestore.ErrWrongPassword) {
		return nil, ErrWrongPassword
	}
	return plain, err
}

func (s *Store) logInfo(operation, message string, attrs ...any) {
	s.logger.Info(message, append([]any{"component", componentName, "operation", operation}, attrs...)...)
}

func (s *Store) logWarn(operation, message string, attrs ...any) {
	s.logger.Warn(message, append([]any{"component", componentName, "operation", operation}, attrs...)...)
}
