package main

import (
	"testing"
)

const (
	testMnemonic = "cloth always junk crash fun exist stumble shift over benefit fun toe"
	testXpub     = "xpub6D85mnCjCnAh7JtBicwxdeW2qmUayEppbRBt84UwYFzmYKWuwfHW9nTrKqMmXvPjspDQU1zcbFv8wmSDyQh4kG96FA1eKc6i6Mwae2mGyGU"
)

func TestRunReturnsExitCodes(t *testing.T) {
	cases := []struct {
		name string
		args []string
		want int
	}{
		{name: "no command", args: nil, want: exitInvalidInput},
		{name: "unknown command", args: []string{"bogus"}, want: exitInvalidInput},
		{name: "derive", args: []string{"derive", "--mnemonic", testMnemonic, "--index", "0"}, want: exitOK},
		{name: "derive bad path", args: []string{"derive", "--mnemonic", testMnemonic, "--path", "m/x"}, want: exitInvalidInput},
		{name: "derive missing mnemonic", args: []string{"derive", "--mnemonic", " "}, want: exitInvalidInput},
		{name: "address check", args: []string{"address", "--check", "iY4Ghz9tCuWvB5rNwvn4ngWvthZMNzEA7U"}, want: exitOK},
		{name: "address check invalid", args: []string{"address", "--check", "iY4Ghz9tCuWvB5rNwvn4ngWvthZMNzEA7V"}, want: exitInvalidInput},
		{name: "sign with public key", args: []string{"sign", "--key", testXpub, "--data", "x"}, want: exitInvalidInput},
		{name: "verify malformed signature", args: []string{"verify", "--key", testXpub, "--data", "x", "--sig", "AAAA"}, want: exitBadSignature},
		{name: "unknown flag", args: []string{"mnemonic", "--nope"}, want: exitInvalidInput},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := run(tc.args); got != tc.want {
				t.Fatalf("run(%q) = %d, want %d", tc.args, got, tc.want)
			}
		})
	}
}

func TestRunStoreCommands(t *testing.T) {
	t.Setenv("DIDSDK_STOREPASS", "")
	t.Setenv("DIDSDK_METRICS_TEXTFILE", "")
	root := t.TempDir()

	if got := run([]string{"store", "init", "--root", root}); got != exitOK {
		t.Fatalf("store init = %d", got)
	}
	if got := run([]string{"store", "import", "--root", root, "--storepass", "pw-1", "--mnemonic", testMnemonic}); got != exitOK {
		t.Fatalf("store import = %d", got)
	}
	if got := run([]string{"store", "new-did", "--root", root, "--storepass", "wrong"}); got != exitWrongPassword {
		t.Fatalf("store new-did with wrong password = %d, want %d", got, exitWrongPassword)
	}
	if got := run([]string{"store", "new-did", "--root", root, "--storepass", "pw-1"}); got != exitOK {
		t.Fatalf("store new-did = %d", got)
	}
	if got := run([]string{"store", "change-password", "--root", root, "--storepass", "pw-1", "--new-storepass", "pw-2"}); got != exitOK {
		t.Fatalf("store change-password = %d", got)
	}
	if got := run([]string{"store", "list", "--root", root}); got != exitOK {
		t.Fatalf("store list = %d", got)
	}
}
