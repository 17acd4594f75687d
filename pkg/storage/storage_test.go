package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/elastos/Elastos.DID.JS.SDK-sub002/internal/testutil/fsperm"
	"github.com/elastos/Elastos.DID.JS.SDK-sub002/pkg/did"
)

var fixedClock = func() time.Time { return time.Unix(1700000000, 0) }

func openTestStorage(t *testing.T, root string, opts ...Option) *Storage {
	t.Helper()
	opts = append([]Option{WithClock(fixedClock)}, opts...)
	s, err := Open(root, opts...)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	return s
}

func mustDID(t *testing.T, id string) did.DID {
	t.Helper()
	d, err := did.New(id)
	if err != nil {
		t.Fatalf("new did failed: %v", err)
	}
	return d
}

func mustURL(t *testing.T, d did.DID, rel string) did.DIDURL {
	t.Helper()
	u, err := did.NewDIDURL(d, rel)
	if err != nil {
		t.Fatalf("new did url failed: %v", err)
	}
	return u
}

func readString(t *testing.T, path string) string {
	t.Helper()
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s failed: %v", path, err)
	}
	return string(raw)
}

func TestOpenInitializesStore(t *testing.T) {
	root := filepath.Join(t.TempDir(), "store")
	s := openTestStorage(t, root)
	fsperm.AssertPrivateTree(t, filepath.Join(root, "data"))

	raw := readString(t, filepath.Join(root, "data", ".metadata"))
	var meta map[string]any
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		t.Fatalf("metadata is not json: %v", err)
	}
	if meta["type"] != "did:elastos:store" || meta["version"] != float64(3) {
		t.Fatalf("unexpected metadata: %s", raw)
	}

	m, err := s.LoadMetadata()
	if err != nil {
		t.Fatalf("load metadata failed: %v", err)
	}
	m.DefaultRootIdentity = "abc"
	if err := s.StoreMetadata(m); err != nil {
		t.Fatalf("store metadata failed: %v", err)
	}

	reopened := openTestStorage(t, root)
	m2, err := reopened.LoadMetadata()
	if err != nil {
		t.Fatalf("load metadata after reopen failed: %v", err)
	}
	if m2.DefaultRootIdentity != "abc" {
		t.Fatalf("metadata not persisted: %+v", m2)
	}
}

func TestOpenInitializesEmptyDirectory(t *testing.T) {
	root := t.TempDir()
	openTestStorage(t, root)
	if _, err := os.Stat(filepath.Join(root, "data", ".metadata")); err != nil {
		t.Fatalf("empty root must be initialized in place: %v", err)
	}
}

func TestOpenRejectsCorruptStore(t *testing.T) {
	cases := []struct {
		name     string
		metadata string
		want     error
	}{
		{name: "missing", metadata: "", want: ErrCorruptStore},
		{name: "garbage", metadata: "{not json", want: ErrCorruptStore},
		{name: "wrong type", metadata: `{"type":"DIDStore","version":3}`, want: ErrCorruptStore},
		{name: "old version", metadata: `{"type":"did:elastos:store","version":2}`, want: ErrUnsupportedVersion},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			root := t.TempDir()
			if err := os.MkdirAll(filepath.Join(root, "data"), 0o700); err != nil {
				t.Fatalf("mkdir failed: %v", err)
			}
			if tc.metadata != "" {
				if err := os.WriteFile(filepath.Join(root, "data", ".metadata"), []byte(tc.metadata), 0o600); err != nil {
					t.Fatalf("write failed: %v", err)
				}
			}
			_, err := Open(root)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			var serr *Error
			if !errors.As(err, &serr) {
				t.Fatalf("expected *Error, got %T", err)
			}
		})
	}
}

func TestOpenAcceptsExistingSDKMetadata(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "data"), 0o700); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	raw := `{"type":"did:elastos:store","version":3,"fingerprint":"fp","defaultRootIdentity":"bc67f131c43869b3ab9b0ed346a1f8a4"}`
	if err := os.WriteFile(filepath.Join(root, "data", ".metadata"), []byte(raw), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	st, err := Open(root)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	meta, err := st.LoadMetadata()
	if err != nil {
		t.Fatalf("load metadata failed: %v", err)
	}
	if meta.Fingerprint != "fp" || meta.DefaultRootIdentity != "bc67f131c43869b3ab9b0ed346a1f8a4" {
		t.Fatalf("unexpected metadata: %+v", meta)
	}
}

func TestRootIdentityLayout(t *testing.T) {
	root := t.TempDir()
	s := openTestStorage(t, root)

	if ok, err := s.ContainsRootIdentities(); err != nil || ok {
		t.Fatalf("new store must not contain root identities: %v %v", ok, err)
	}
	if err := s.StoreRootIdentity("r1", "enc-mnemonic", "enc-private", "xpub-r1", 0); err != nil {
		t.Fatalf("store root identity failed: %v", err)
	}
	if err := s.StoreRootIdentity("r2", "", "enc-private-2", "xpub-r2", 4); err != nil {
		t.Fatalf("store second root identity failed: %v", err)
	}

	dir := filepath.Join(root, "data", "roots", "r1")
	for name, want := range map[string]string{"mnemonic": "enc-mnemonic", "private": "enc-private", "public": "xpub-r1", "index": "0"} {
		if got := readString(t, filepath.Join(dir, name)); got != want {
			t.Fatalf("%s: got %q want %q", name, got, want)
		}
	}
	if _, err := os.Stat(filepath.Join(root, "data", "roots", "r2", "mnemonic")); !os.IsNotExist(err) {
		t.Fatalf("empty mnemonic must not be written: %v", err)
	}
	if s.ContainsRootIdentityMnemonic("r2") || !s.ContainsRootIdentityMnemonic("r1") {
		t.Fatal("unexpected mnemonic presence")
	}

	if err := s.UpdateRootIdentityIndex("r1", 7); err != nil {
		t.Fatalf("update index failed: %v", err)
	}
	rec, err := s.LoadRootIdentity("r1")
	if err != nil {
		t.Fatalf("load root identity failed: %v", err)
	}
	if rec.PublicKey != "xpub-r1" || rec.Index != 7 {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if priv, err := s.LoadRootIdentityPrivateKey("r1"); err != nil || priv != "enc-private" {
		t.Fatalf("unexpected private key %q: %v", priv, err)
	}
	if _, err := s.LoadRootIdentityMnemonic("r2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	meta := did.NewMetadata()
	meta.SetAlias("main")
	if err := s.StoreRootIdentityMetadata("r1", meta); err != nil {
		t.Fatalf("store metadata failed: %v", err)
	}
	loaded, err := s.LoadRootIdentityMetadata("r1")
	if err != nil || loaded.Alias() != "main" {
		t.Fatalf("unexpected metadata %v: %v", loaded, err)
	}
	if err := s.StoreRootIdentityMetadata("r1", did.NewMetadata()); err != nil {
		t.Fatalf("clear metadata failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, ".metadata")); !os.IsNotExist(err) {
		t.Fatalf("empty metadata must delete the sidecar: %v", err)
	}

	list, err := s.ListRootIdentities()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(list) != 2 || list[0].ID != "r1" || list[1].ID != "r2" || list[1].Index != 4 {
		t.Fatalf("unexpected list: %+v", list)
	}

	if deleted, err := s.DeleteRootIdentity("r1"); err != nil || !deleted {
		t.Fatalf("delete failed: %v %v", deleted, err)
	}
	if deleted, err := s.DeleteRootIdentity("r1"); err != nil || deleted {
		t.Fatalf("second delete must report false: %v %v", deleted, err)
	}
	if _, err := s.LoadRootIdentity("r1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	for _, bad := range []string{"", "..", "a/b"} {
		if err := s.StoreRootIdentity(bad, "", "", "xpub", 0); !errors.Is(err, ErrInvalidID) {
			t.Fatalf("expected ErrInvalidID for %q, got %v", bad, err)
		}
	}
}

func TestDIDCredentialAndKeyLayout(t *testing.T) {
	root := t.TempDir()
	s := openTestStorage(t, root)
	d := mustDID(t, "iabc")

	if err := s.StoreDID(d, []byte(`{"id":"did:elastos:iabc"}`)); err != nil {
		t.Fatalf("store did failed: %v", err)
	}
	didMeta := did.NewMetadata()
	didMeta.SetAlias("me")
	if err := s.StoreDIDMetadata(d, didMeta); err != nil {
		t.Fatalf("store did metadata failed: %v", err)
	}

	cred := mustURL(t, d, ";svc/path?q=1#profile")
	if err := s.StoreCredential(cred, []byte(`{"type":"profile"}`)); err != nil {
		t.Fatalf("store credential failed: %v", err)
	}
	secretCred := mustURL(t, d, "#secret")
	if err := s.StoreEncryptedCredential(secretCred, "CIPHERTEXT"); err != nil {
		t.Fatalf("store encrypted credential failed: %v", err)
	}
	key := mustURL(t, d, "#primary")
	if err := s.StorePrivateKey(key, "enc-key"); err != nil {
		t.Fatalf("store private key failed: %v", err)
	}

	base := filepath.Join(root, "data", "ids", "iabc")
	if readString(t, filepath.Join(base, "document")) != `{"id":"did:elastos:iabc"}` {
		t.Fatal("unexpected document contents")
	}
	if !strings.Contains(readString(t, filepath.Join(base, ".metadata")), `"alias":"me"`) {
		t.Fatal("did metadata sidecar missing alias")
	}
	if readString(t, filepath.Join(base, "credentials", "+svc~path!q=1#profile", "credential")) != `{"type":"profile"}` {
		t.Fatal("escaped credential path mismatch")
	}
	framed, err := os.ReadFile(filepath.Join(base, "credentials", "#secret", "credential"))
	if err != nil {
		t.Fatalf("read encrypted credential failed: %v", err)
	}
	if !bytes.Equal(framed[:4], []byte{0x0E, 0x0C, 0x56, 0x43}) || string(framed[4:]) != "CIPHERTEXT" {
		t.Fatalf("unexpected credential framing: %x", framed)
	}
	if readString(t, filepath.Join(base, "privatekeys", "#primary")) != "enc-key" {
		t.Fatal("unexpected private key file")
	}

	rec, err := s.LoadCredential(secretCred)
	if err != nil || !rec.Encrypted || string(rec.Data) != "CIPHERTEXT" {
		t.Fatalf("unexpected encrypted credential record %+v: %v", rec, err)
	}
	rec, err = s.LoadCredential(cred)
	if err != nil || rec.Encrypted {
		t.Fatalf("unexpected plaintext credential record %+v: %v", rec, err)
	}

	creds, err := s.ListCredentials(d)
	if err != nil {
		t.Fatalf("list credentials failed: %v", err)
	}
	if len(creds) != 2 {
		t.Fatalf("unexpected credential count %d", len(creds))
	}
	found := false
	for _, c := range creds {
		if c.Equal(cred) {
			found = true
		}
	}
	if !found {
		t.Fatalf("listed credentials must unescape back to %s", cred)
	}
	keys, err := s.ListPrivateKeys(d)
	if err != nil || len(keys) != 1 || !keys[0].Equal(key) {
		t.Fatalf("unexpected private keys %v: %v", keys, err)
	}
	dids, err := s.ListDIDs()
	if err != nil || len(dids) != 1 || !dids[0].Equal(d) {
		t.Fatalf("unexpected dids %v: %v", dids, err)
	}

	if err := s.StoreCredential(cred, append([]byte{0x0E, 0x0C, 0x56, 0x43}, 'x')); err == nil {
		t.Fatal("plaintext credential with magic header must be rejected")
	}
	if err := s.StorePrivateKey(mustURL(t, d, ""), "x"); !errors.Is(err, ErrInvalidID) {
		t.Fatalf("expected ErrInvalidID for bare DID URL, got %v", err)
	}
}

func TestDeletePrunesEmptyDirectories(t *testing.T) {
	root := t.TempDir()
	s := openTestStorage(t, root)
	d := mustDID(t, "iprune")
	cred := mustURL(t, d, "#c1")
	key := mustURL(t, d, "#k1")

	if err := s.StoreDID(d, []byte("doc")); err != nil {
		t.Fatalf("store did failed: %v", err)
	}
	if err := s.StoreCredential(cred, []byte("cred")); err != nil {
		t.Fatalf("store credential failed: %v", err)
	}
	if err := s.StorePrivateKey(key, "enc"); err != nil {
		t.Fatalf("store private key failed: %v", err)
	}
	if ok, err := s.ContainsCredentials(d); err != nil || !ok {
		t.Fatalf("expected credentials: %v %v", ok, err)
	}
	if ok, err := s.ContainsPrivateKeys(d); err != nil || !ok {
		t.Fatalf("expected private keys: %v %v", ok, err)
	}

	if deleted, err := s.DeleteCredential(cred); err != nil || !deleted {
		t.Fatalf("delete credential failed: %v %v", deleted, err)
	}
	if deleted, err := s.DeletePrivateKey(key); err != nil || !deleted {
		t.Fatalf("delete private key failed: %v %v", deleted, err)
	}
	base := filepath.Join(root, "data", "ids", "iprune")
	for _, dir := range []string{"credentials", "privatekeys"} {
		if _, err := os.Stat(filepath.Join(base, dir)); !os.IsNotExist(err) {
			t.Fatalf("%s directory must be pruned: %v", dir, err)
		}
	}
	if deleted, err := s.DeletePrivateKey(key); err != nil || deleted {
		t.Fatalf("deleting a missing key must report false: %v %v", deleted, err)
	}
	if ok, err := s.ContainsPrivateKeys(d); err != nil || ok {
		t.Fatalf("expected no private keys: %v %v", ok, err)
	}

	if deleted, err := s.DeleteDID(d); err != nil || !deleted {
		t.Fatalf("delete did failed: %v %v", deleted, err)
	}
	if _, err := s.LoadDID(d); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
