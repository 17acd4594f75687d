package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/elastos/Elastos.DID.JS.SDK-sub002/pkg/didstore"
	"github.com/elastos/Elastos.DID.JS.SDK-sub002/pkg/hdkey"
	"github.com/elastos/Elastos.DID.JS.SDK-sub002/pkg/signer"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

const (
	exitOK            = 0
	exitFailed        = 1
	exitInvalidInput  = 10
	exitStoreFailed   = 20
	exitWrongPassword = 30
	exitBadSignature  = 40
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run dispatches one command and returns the process exit code. Commands
// return instead of exiting so deferred key wipes run.
func run(args []string) int {
	if len(args) < 1 {
		printUsage()
		return exitInvalidInput
	}

	switch args[0] {
	case "version", "-version", "--version":
		return writeStdoutf("didsdk version=%s commit=%s build_date=%s\n", version, commit, buildDate)
	case "mnemonic":
		return runMnemonic(args[1:])
	case "derive":
		return runDerive(args[1:])
	case "address":
		return runAddress(args[1:])
	case "sign":
		return runSign(args[1:])
	case "verify":
		return runVerify(args[1:])
	case "store":
		return runStore(args[1:])
	default:
		printUsage()
		return exitInvalidInput
	}
}

func runMnemonic(args []string) int {
	fs := flag.NewFlagSet("mnemonic", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return exitInvalidInput
	}
	mnemonic, err := didstore.NewMnemonic()
	if err != nil {
		return writeStderrln(err.Error(), exitFailed)
	}
	return writeStdoutln(mnemonic)
}

func runDerive(args []string) int {
	fs := flag.NewFlagSet("derive", flag.ContinueOnError)
	mnemonic := fs.String("mnemonic", os.Getenv("DIDSDK_MNEMONIC"), "BIP39 mnemonic")
	passphrase := fs.String("passphrase", "", "BIP39 passphrase")
	path := fs.String("path", hdkey.DerivePath(0), "derivation path")
	index := fs.Int("index", -1, "DID key index, shorthand for --path "+hdkey.DerivePathPrefix+"<index>")
	public := fs.Bool("public", false, "omit the extended private key")
	if err := fs.Parse(args); err != nil {
		return exitInvalidInput
	}
	if strings.TrimSpace(*mnemonic) == "" {
		return writeStderrln("mnemonic is required", exitInvalidInput)
	}
	if *index >= 0 {
		*path = hdkey.DerivePath(*index)
	}

	root, err := hdkey.FromMnemonic(*mnemonic, *passphrase)
	if err != nil {
		return writeStderrln(err.Error(), exitInvalidInput)
	}
	defer root.Wipe()
	key, err := root.Derive(*path)
	if err != nil {
		return writeStderrln(err.Error(), exitInvalidInput)
	}
	defer key.Wipe()

	out := map[string]any{
		"path":            *path,
		"depth":           key.Depth(),
		"xpub":            key.PublicExtendedKey(),
		"publicKeyBase58": key.PublicKeyBase58(),
		"address":         key.Address(),
	}
	if !*public {
		xprv, err := key.PrivateExtendedKey()
		if err != nil {
			return writeStderrln(err.Error(), exitFailed)
		}
		out["xprv"] = xprv
	}
	if err := printJSON(out); err != nil {
		return writeStderrln(err.Error(), exitFailed)
	}
	return exitOK
}

func runAddress(args []string) int {
	fs := flag.NewFlagSet("address", flag.ContinueOnError)
	key := fs.String("key", "", "extended key (xprv or xpub)")
	check := fs.String("check", "", "address to validate instead of computing one")
	if err := fs.Parse(args); err != nil {
		return exitInvalidInput
	}
	if *check != "" {
		if !hdkey.IsAddressValid(*check) {
			return writeStderrln("invalid address", exitInvalidInput)
		}
		return writeStdoutln("valid")
	}
	k, err := parseExtendedKey(*key)
	if err != nil {
		return writeStderrln(err.Error(), exitInvalidInput)
	}
	defer k.Wipe()
	return writeStdoutln(k.Address())
}

func runSign(args []string) int {
	fs := flag.NewFlagSet("sign", flag.ContinueOnError)
	key := fs.String("key", os.Getenv("DIDSDK_SIGNING_KEY"), "extended private key")
	data := fs.String("data", "", "data to sign")
	if err := fs.Parse(args); err != nil {
		return exitInvalidInput
	}
	k, err := parseExtendedKey(*key)
	if err != nil {
		return writeStderrln(err.Error(), exitInvalidInput)
	}
	defer k.Wipe()
	if !k.IsPrivate() {
		return writeStderrln("sign needs an extended private key", exitInvalidInput)
	}
	priv := k.PrivateKey()
	defer zeroBytes(priv)
	sig, err := signer.New().SignData(priv, []byte(*data))
	if err != nil {
		return writeStderrln(err.Error(), exitFailed)
	}
	return writeStdoutln(sig.String())
}

func runVerify(args []string) int {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	key := fs.String("key", "", "extended key (xprv or xpub)")
	data := fs.String("data", "", "signed data")
	sigText := fs.String("sig", "", "URL-safe Base64 compact signature")
	if err := fs.Parse(args); err != nil {
		return exitInvalidInput
	}
	k, err := parseExtendedKey(*key)
	if err != nil {
		return writeStderrln(err.Error(), exitInvalidInput)
	}
	defer k.Wipe()
	sig, err := signer.ParseBase64(*sigText)
	if err != nil {
		return writeStderrln(err.Error(), exitBadSignature)
	}
	if !signer.New().VerifyData(k.PublicKey(), sig.Bytes(), []byte(*data)) {
		return writeStderrln("signature does not verify", exitBadSignature)
	}
	return writeStdoutln("ok")
}

func parseExtendedKey(text string) (*hdkey.ExtendedKey, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("key is required")
	}
	return hdkey.ParseBase58(text)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printUsage() {
	lines := []string{
		"didsdk <command> [flags]",
		"commands:",
		"  version",
		"  mnemonic",
		"  derive   --mnemonic <words> [--passphrase p] [--path m/...|--index n] [--public]",
		"  address  --key <xprv|xpub> | --check <address>",
		"  sign     --key <xprv> --data <text>",
		"  verify   --key <xprv|xpub> --data <text> --sig <base64>",
		"  store    init|import|new-did|list|change-password [--config path] [--root dir] [--storepass p] ...",
	}
	for _, line := range lines {
		if writeStdoutln(line) != exitOK {
			return
		}
	}
}

func writeStdoutln(line string) int {
	if _, err := fmt.Fprintln(os.Stdout, line); err != nil {
		return exitFailed
	}
	return exitOK
}

func writeStdoutf(format string, args ...any) int {
	if _, err := fmt.Fprintf(os.Stdout, format, args...); err != nil {
		return exitFailed
	}
	return exitOK
}

// writeStderrln reports line and returns exitCode for the caller to return.
func writeStderrln(line string, exitCode int) int {
	_, _ = fmt.Fprintln(os.Stderr, line)
	return exitCode
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
