package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/elastos/Elastos.DID.JS.SDK-sub002/internal/config"
	"github.com/elastos/Elastos.DID.JS.SDK-sub002/internal/metrics"
	"github.com/elastos/Elastos.DID.JS.SDK-sub002/internal/platform/privacylog"
	"github.com/elastos/Elastos.DID.JS.SDK-sub002/internal/platform/ratelimiter"
	"github.com/elastos/Elastos.DID.JS.SDK-sub002/pkg/didstore"
	"github.com/elastos/Elastos.DID.JS.SDK-sub002/pkg/storage"
)

type storeFlags struct {
	configPath *string
	root       *string
	storepass  *string
}

func registerStoreFlags(fs *flag.FlagSet) storeFlags {
	return storeFlags{
		configPath: fs.String("config", "", "Path to didsdk.yaml (optional)"),
		root:       fs.String("root", "", "store root directory (overrides config)"),
		storepass:  fs.String("storepass", os.Getenv("DIDSDK_STOREPASS"), "store password"),
	}
}

type storeSession struct {
	store   *didstore.Store
	metrics *metrics.StoreMetrics
	cfg     config.Config
	logger  *slog.Logger
}

// openStore loads configuration and opens the store. A non-zero code means
// the failure was already reported.
func openStore(f storeFlags) (*storeSession, int) {
	cfg, err := config.Load(*f.configPath)
	if err != nil {
		return nil, writeStderrln(err.Error(), exitInvalidInput)
	}
	if root := strings.TrimSpace(*f.root); root != "" {
		cfg.Store.Root = root
	}
	logger, err := privacylog.NewLogger(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, writeStderrln(err.Error(), exitInvalidInput)
	}

	m := metrics.New()
	// Attempt state lives in this process only; each invocation starts with
	// a full bucket.
	limiter := ratelimiter.New(cfg.Security.PasswordAttemptsPerMinute, cfg.Security.PasswordBurst, 10*time.Minute)
	st, err := didstore.Open(cfg.Store.Root,
		didstore.WithLogger(logger),
		didstore.WithAttemptLimiter(limiter),
		didstore.WithPasswordFailureObserver(m),
		didstore.WithStorageOptions(
			storage.WithRecorder(m),
			storage.WithBackupRetention(cfg.RetainBackups()),
		),
	)
	if err != nil {
		return nil, writeStderrln(err.Error(), exitStoreFailed)
	}
	return &storeSession{store: st, metrics: m, cfg: cfg, logger: logger}, exitOK
}

// close flushes metrics to the configured textfile.
func (s *storeSession) close() {
	path := strings.TrimSpace(s.cfg.Metrics.TextfilePath)
	if path == "" {
		return
	}
	if err := s.metrics.WriteTextfile(path); err != nil {
		s.logger.Warn("metrics textfile write failed", "component", "didsdk", "operation", "metrics", "error", err)
	}
}

func (s *storeSession) fail(err error) int {
	s.close()
	code := exitStoreFailed
	switch {
	case errors.Is(err, didstore.ErrWrongPassword), errors.Is(err, didstore.ErrPasswordLocked):
		code = exitWrongPassword
	case errors.Is(err, didstore.ErrPasswordRequired), errors.Is(err, didstore.ErrInvalidMnemonic):
		code = exitInvalidInput
	}
	return writeStderrln(err.Error(), code)
}

func (s *storeSession) finish(v any) int {
	if err := printJSON(v); err != nil {
		return s.fail(err)
	}
	s.close()
	return exitOK
}

func runStore(args []string) int {
	if len(args) < 1 {
		printUsage()
		return exitInvalidInput
	}
	switch args[0] {
	case "init":
		return runStoreInit(args[1:])
	case "import":
		return runStoreImport(args[1:])
	case "new-did":
		return runStoreNewDID(args[1:])
	case "list":
		return runStoreList(args[1:])
	case "change-password":
		return runStoreChangePassword(args[1:])
	default:
		printUsage()
		return exitInvalidInput
	}
}

func runStoreInit(args []string) int {
	fs := flag.NewFlagSet("store init", flag.ContinueOnError)
	f := registerStoreFlags(fs)
	if err := fs.Parse(args); err != nil {
		return exitInvalidInput
	}
	s, code := openStore(f)
	if code != exitOK {
		return code
	}
	meta, err := s.store.Storage().LoadMetadata()
	if err != nil {
		return s.fail(err)
	}
	return s.finish(map[string]any{
		"root":    s.store.Root(),
		"type":    meta.Type,
		"version": meta.Version,
	})
}

func runStoreImport(args []string) int {
	fs := flag.NewFlagSet("store import", flag.ContinueOnError)
	f := registerStoreFlags(fs)
	mnemonic := fs.String("mnemonic", os.Getenv("DIDSDK_MNEMONIC"), "BIP39 mnemonic; a new one is generated when empty")
	passphrase := fs.String("passphrase", "", "BIP39 passphrase")
	alias := fs.String("alias", "", "root identity alias")
	if err := fs.Parse(args); err != nil {
		return exitInvalidInput
	}
	s, code := openStore(f)
	if code != exitOK {
		return code
	}

	var (
		identity  didstore.RootIdentity
		generated string
		err       error
	)
	if strings.TrimSpace(*mnemonic) == "" {
		identity, generated, err = s.store.CreateRootIdentity(*passphrase, *f.storepass)
	} else {
		identity, err = s.store.ImportRootIdentity(*mnemonic, *passphrase, *f.storepass)
	}
	if err != nil {
		return s.fail(err)
	}
	if *alias != "" {
		if err := s.store.SetRootIdentityAlias(identity.ID, *alias); err != nil {
			return s.fail(err)
		}
	}
	out := map[string]any{
		"id":                  identity.ID,
		"preDerivedPublicKey": identity.PreDerivedPublicKey,
	}
	if generated != "" {
		out["mnemonic"] = generated
	}
	return s.finish(out)
}

func runStoreNewDID(args []string) int {
	fs := flag.NewFlagSet("store new-did", flag.ContinueOnError)
	f := registerStoreFlags(fs)
	rootID := fs.String("root-identity", "", "root identity id (default root identity when empty)")
	alias := fs.String("alias", "", "DID alias")
	if err := fs.Parse(args); err != nil {
		return exitInvalidInput
	}
	s, code := openStore(f)
	if code != exitOK {
		return code
	}
	id, err := s.store.NewDID(*rootID, *alias, *f.storepass)
	if err != nil {
		return s.fail(err)
	}
	doc, err := s.store.LoadDocument(id)
	if err != nil {
		return s.fail(err)
	}
	return s.finish(doc)
}

func runStoreList(args []string) int {
	fs := flag.NewFlagSet("store list", flag.ContinueOnError)
	f := registerStoreFlags(fs)
	if err := fs.Parse(args); err != nil {
		return exitInvalidInput
	}
	s, code := openStore(f)
	if code != exitOK {
		return code
	}

	roots, err := s.store.ListRootIdentities()
	if err != nil {
		return s.fail(err)
	}
	dids, err := s.store.ListDIDs()
	if err != nil {
		return s.fail(err)
	}
	defaultRoot, err := s.store.DefaultRootIdentity()
	if err != nil && !errors.Is(err, didstore.ErrNoRootIdentity) {
		return s.fail(err)
	}

	type didEntry struct {
		DID          string `json:"did"`
		Alias        string `json:"alias,omitempty"`
		RootIdentity string `json:"rootIdentity,omitempty"`
	}
	entries := make([]didEntry, 0, len(dids))
	for _, d := range dids {
		meta, err := s.store.LoadDIDMetadata(d)
		if err != nil {
			return s.fail(err)
		}
		entries = append(entries, didEntry{DID: d.String(), Alias: meta.Alias(), RootIdentity: meta.RootIdentity()})
	}
	return s.finish(map[string]any{
		"defaultRootIdentity": defaultRoot,
		"rootIdentities":      roots,
		"dids":                entries,
	})
}

func runStoreChangePassword(args []string) int {
	fs := flag.NewFlagSet("store change-password", flag.ContinueOnError)
	f := registerStoreFlags(fs)
	newPass := fs.String("new-storepass", os.Getenv("DIDSDK_NEW_STOREPASS"), "new store password")
	if err := fs.Parse(args); err != nil {
		return exitInvalidInput
	}
	s, code := openStore(f)
	if code != exitOK {
		return code
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := s.store.ChangePassword(ctx, *f.storepass, *newPass); err != nil {
		return s.fail(err)
	}
	backups, err := s.store.Storage().Backups()
	if err != nil {
		return s.fail(err)
	}
	return s.finish(map[string]any{
		"changed": true,
		"backups": backups,
	})
}
