// Package fsperm asserts the owner-only permissions the DID store applies to
// everything it persists.
package fsperm

import (
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

const (
	PrivateDir  fs.FileMode = 0o700
	PrivateFile fs.FileMode = 0o600
)

// AssertPrivateDirPerm verifies that dir exists and is owner-only.
func AssertPrivateDirPerm(t testing.TB, dir string) {
	t.Helper()
	assertPerm(t, dir, true, PrivateDir)
}

// AssertPrivateFilePerm verifies that path is a regular owner-only file.
func AssertPrivateFilePerm(t testing.TB, path string) {
	t.Helper()
	assertPerm(t, path, false, PrivateFile)
}

// AssertPrivateTree walks root and checks every directory and file below it.
func AssertPrivateTree(t testing.TB, root string) {
	t.Helper()
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			AssertPrivateDirPerm(t, path)
		} else {
			AssertPrivateFilePerm(t, path)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walk %s failed: %v", root, err)
	}
}

func assertPerm(t testing.TB, path string, wantDir bool, want fs.FileMode) {
	t.Helper()
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat failed: %v", err)
	}
	if info.IsDir() != wantDir {
		t.Fatalf("unexpected entry kind for %s: dir=%v", path, info.IsDir())
	}
	if runtime.GOOS == "windows" {
		return
	}
	if perm := info.Mode().Perm(); perm != want {
		t.Fatalf("expected perm %04o, got %04o for %s", want, perm, path)
	}
}
