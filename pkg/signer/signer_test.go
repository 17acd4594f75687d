package signer

import (
	"bytes"
	"encoding/base64"
	"math/big"
	"testing"

	"github.com/elastos/Elastos.DID.JS.SDK-sub002/pkg/p256"
)

func testKeyPair(t *testing.T, fill byte) ([]byte, []byte) {
	t.Helper()
	priv := bytes.Repeat([]byte{fill}, 32)
	pub, err := p256.New().PublicKeyCreate(priv, true)
	if err != nil {
		t.Fatalf("public key create failed: %v", err)
	}
	return priv, pub
}

func TestSignVerifyRoundTrip(t *testing.T) {
	priv, pub := testKeyPair(t, 0x11)
	s := New()

	sig, err := s.SignData(priv, []byte("did:elastos:"), []byte("payload"))
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	if !s.VerifyData(pub, sig.Bytes(), []byte("did:elastos:"), []byte("payload")) {
		t.Fatal("signature must verify")
	}
	if !s.VerifyData(pub, sig.Bytes(), []byte("did:elastos:payload")) {
		t.Fatal("verification must depend only on the concatenated bytes")
	}
	if s.VerifyData(pub, sig.Bytes(), []byte("payload"), []byte("did:elastos:")) {
		t.Fatal("part order must matter")
	}

	uncompressed, err := p256.New().PublicKeyConvert(pub, false)
	if err != nil {
		t.Fatalf("convert failed: %v", err)
	}
	if !VerifyData(uncompressed, sig.Bytes(), []byte("did:elastos:payload")) {
		t.Fatal("uncompressed public key must verify too")
	}
}

func TestSignatureIsLowS(t *testing.T) {
	priv, _ := testKeyPair(t, 0x22)
	half := new(big.Int).Rsh(p256.New().Order(), 1)
	for i := 0; i < 16; i++ {
		sig, err := SignData(priv, []byte{byte(i)})
		if err != nil {
			t.Fatalf("sign failed: %v", err)
		}
		if sig.S().Cmp(half) > 0 {
			t.Fatalf("signature %d has high s", i)
		}
	}
}

func TestTamperedInputFailsVerification(t *testing.T) {
	priv, pub := testKeyPair(t, 0x33)
	msg := []byte("hello elastos")
	sig, err := SignData(priv, msg)
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}

	for i := 0; i < SignatureSize; i++ {
		bad := sig.Bytes()
		bad[i] ^= 0x01
		if VerifyData(pub, bad, msg) {
			t.Fatalf("flipping signature byte %d must fail verification", i)
		}
	}
	for i := range msg {
		bad := append([]byte(nil), msg...)
		bad[i] ^= 0x01
		if VerifyData(pub, sig.Bytes(), bad) {
			t.Fatalf("flipping message byte %d must fail verification", i)
		}
	}

	_, otherPub := testKeyPair(t, 0x44)
	if VerifyData(otherPub, sig.Bytes(), msg) {
		t.Fatal("wrong public key must fail verification")
	}
	if VerifyData(pub, sig.Bytes()[:63], msg) {
		t.Fatal("short signature must fail verification")
	}
	if VerifyData(pub, append(sig.Bytes(), 0x00), msg) {
		t.Fatal("long signature must fail verification")
	}
	if VerifyData(pub, make([]byte, SignatureSize), msg) {
		t.Fatal("zero signature must fail verification")
	}
	if VerifyData([]byte{0x02}, sig.Bytes(), msg) {
		t.Fatal("malformed public key must fail verification")
	}
}

func TestSignatureEncodings(t *testing.T) {
	priv, pub := testKeyPair(t, 0x55)
	sig, err := SignData(priv, []byte("encode"))
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}

	der, err := sig.DER()
	if err != nil {
		t.Fatalf("der failed: %v", err)
	}
	fromDER, err := ParseDER(der)
	if err != nil {
		t.Fatalf("parse der failed: %v", err)
	}
	if fromDER != sig {
		t.Fatal("der round trip mismatch")
	}

	text := sig.String()
	fromText, err := ParseBase64(text)
	if err != nil {
		t.Fatalf("parse base64 failed: %v", err)
	}
	if fromText != sig {
		t.Fatal("base64 round trip mismatch")
	}
	padded := base64.URLEncoding.EncodeToString(sig[:])
	if fromPadded, err := ParseBase64(padded); err != nil || fromPadded != sig {
		t.Fatalf("padded base64 must parse, got %v", err)
	}
	if !VerifyData(pub, fromText.Bytes(), []byte("encode")) {
		t.Fatal("decoded signature must verify")
	}

	if _, err := ParseSignature(make([]byte, 10)); err == nil {
		t.Fatal("expected error for short signature")
	}
	if _, err := ParseDER([]byte{0x30, 0x00}); err == nil {
		t.Fatal("expected error for empty der sequence")
	}
	if _, err := ParseBase64("!!"); err == nil {
		t.Fatal("expected error for invalid base64")
	}
}

func TestSignRejectsInvalidPrivateKey(t *testing.T) {
	if _, err := SignData(make([]byte, 32), []byte("x")); err == nil {
		t.Fatal("expected error for zero private key")
	}
	if _, err := New().SignDigest(bytes.Repeat([]byte{0x01}, 32), []byte("short")); err == nil {
		t.Fatal("expected error for short digest")
	}
}

func TestPackageHelpersInteroperateWithExplicitSigner(t *testing.T) {
	priv, pub := testKeyPair(t, 0x22)
	explicit := NewWithCurve(p256.New())

	sig, err := SignData(priv, []byte("payload"))
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	if !explicit.VerifyData(pub, sig.Bytes(), []byte("payload")) {
		t.Fatal("package signature must verify with an explicit signer")
	}

	sig, err = explicit.SignData(priv, []byte("payload"))
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	if !VerifyData(pub, sig.Bytes(), []byte("payload")) {
		t.Fatal("explicit signature must verify with the package helper")
	}
	if NewWithCurve(nil).curve == nil {
		t.Fatal("nil curve must fall back to P-256")
	}
}
