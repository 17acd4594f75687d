package p256

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"math/big"
	"testing"
)

const generatorCompressed = "036b17d1f2e12c4247f8bce6e563a440f277037d812deb33a0f4a13945d898c296"

func scalar(v int64) []byte {
	return big.NewInt(v).FillBytes(make([]byte, 32))
}

func orderMinus(c *Curve, v int64) []byte {
	d := new(big.Int).Sub(c.Order(), big.NewInt(v))
	return d.FillBytes(make([]byte, 32))
}

func TestPrivateKeyVerifyBounds(t *testing.T) {
	c := New()
	cases := []struct {
		name string
		key  []byte
		want bool
	}{
		{"zero", make([]byte, 32), false},
		{"one", scalar(1), true},
		{"order minus one", orderMinus(c, 1), true},
		{"order", c.Order().FillBytes(make([]byte, 32)), false},
		{"short", []byte{1, 2, 3}, false},
		{"long", make([]byte, 33), false},
	}
	for _, tc := range cases {
		if got := c.PrivateKeyVerify(tc.key); got != tc.want {
			t.Fatalf("%s: PrivateKeyVerify=%v want %v", tc.name, got, tc.want)
		}
	}
}

func TestPublicKeyCreateGenerator(t *testing.T) {
	c := New()
	pub, err := c.PublicKeyCreate(scalar(1), true)
	if err != nil {
		t.Fatalf("public key create failed: %v", err)
	}
	if got := hex.EncodeToString(pub); got != generatorCompressed {
		t.Fatalf("unexpected generator encoding: %s", got)
	}
	uncompressed, err := c.PublicKeyConvert(pub, false)
	if err != nil {
		t.Fatalf("convert failed: %v", err)
	}
	if len(uncompressed) != UncompressedPublicKeySize || uncompressed[0] != 0x04 {
		t.Fatalf("unexpected uncompressed encoding: %x", uncompressed)
	}
	back, err := c.PublicKeyConvert(uncompressed, true)
	if err != nil {
		t.Fatalf("convert back failed: %v", err)
	}
	if !bytes.Equal(back, pub) {
		t.Fatalf("compression round trip mismatch: %x != %x", back, pub)
	}
}

func TestPublicKeyConvertRejectsInvalidPoints(t *testing.T) {
	c := New()
	offCurve := append([]byte{0x02}, bytes.Repeat([]byte{0xff}, 32)...)
	badPrefix := append([]byte{0x05}, bytes.Repeat([]byte{0x01}, 32)...)
	for _, pub := range [][]byte{offCurve, badPrefix, {0x04}, nil} {
		if _, err := c.PublicKeyConvert(pub, true); !errors.Is(err, ErrInvalidPoint) {
			t.Fatalf("expected ErrInvalidPoint for %x, got %v", pub, err)
		}
		if c.PublicKeyVerify(pub) {
			t.Fatalf("PublicKeyVerify accepted %x", pub)
		}
	}
}

func TestTweakAddPrivateAndPublicAgree(t *testing.T) {
	c := New()
	k := scalar(7)
	tweak := scalar(35)
	sum, err := c.PrivateKeyTweakAdd(k, tweak)
	if err != nil {
		t.Fatalf("private tweak add failed: %v", err)
	}
	if !bytes.Equal(sum, scalar(42)) {
		t.Fatalf("unexpected tweaked scalar: %x", sum)
	}
	pub, _ := c.PublicKeyCreate(k, true)
	tweakedPub, err := c.PublicKeyTweakAdd(pub, tweak, true)
	if err != nil {
		t.Fatalf("public tweak add failed: %v", err)
	}
	expected, _ := c.PublicKeyCreate(sum, true)
	if !bytes.Equal(tweakedPub, expected) {
		t.Fatalf("tweaked public key mismatch: %x != %x", tweakedPub, expected)
	}
}

func TestTweakAddFailures(t *testing.T) {
	c := New()
	order := c.Order().FillBytes(make([]byte, 32))
	if _, err := c.PrivateKeyTweakAdd(scalar(1), order); !errors.Is(err, ErrInvalidTweak) {
		t.Fatalf("expected ErrInvalidTweak for tweak >= n, got %v", err)
	}
	if _, err := c.PrivateKeyTweakAdd(orderMinus(c, 1), scalar(1)); !errors.Is(err, ErrInvalidTweak) {
		t.Fatalf("expected ErrInvalidTweak for zero result, got %v", err)
	}
	if _, err := c.PrivateKeyTweakAdd(make([]byte, 32), scalar(1)); !errors.Is(err, ErrInvalidPrivateKey) {
		t.Fatalf("expected ErrInvalidPrivateKey, got %v", err)
	}

	negOne, _ := c.PublicKeyCreate(orderMinus(c, 1), true)
	if _, err := c.PublicKeyTweakAdd(negOne, scalar(1), true); !errors.Is(err, ErrPointAtInfinity) {
		t.Fatalf("expected ErrPointAtInfinity, got %v", err)
	}
	if _, err := c.PublicKeyTweakAdd(negOne, order, true); !errors.Is(err, ErrInvalidTweak) {
		t.Fatalf("expected ErrInvalidTweak for public tweak >= n, got %v", err)
	}
}

func TestPrivateKeyNegate(t *testing.T) {
	c := New()
	k := scalar(12345)
	neg, err := c.PrivateKeyNegate(k)
	if err != nil {
		t.Fatalf("negate failed: %v", err)
	}
	pub, _ := c.PublicKeyCreate(k, true)
	negPub, _ := c.PublicKeyCreate(neg, true)
	if !bytes.Equal(pub[1:], negPub[1:]) || pub[0] == negPub[0] {
		t.Fatalf("negated key should mirror y: %x vs %x", pub, negPub)
	}
}

func TestSignVerifyAndRecover(t *testing.T) {
	c := New()
	k := scalar(0x1d2c3b4a)
	pub, _ := c.PublicKeyCreate(k, true)
	hash := sha256.Sum256([]byte("p256 signing"))

	der, err := c.Sign(hash[:], k)
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	if !c.Verify(hash[:], der, pub) {
		t.Fatal("signature should verify")
	}
	r, s, err := ParseDER(der)
	if err != nil {
		t.Fatalf("parse der failed: %v", err)
	}
	halfN := new(big.Int).Rsh(c.Order(), 1)
	if s.Cmp(halfN) > 0 {
		t.Fatal("signature s must be low")
	}

	other := sha256.Sum256([]byte("other message"))
	if c.Verify(other[:], der, pub) {
		t.Fatal("signature must not verify for a different hash")
	}
	if c.Verify(hash[:], []byte{0x30, 0x00}, pub) {
		t.Fatal("malformed DER must not verify")
	}
	if c.Verify(hash[:], der, []byte{0x02}) {
		t.Fatal("malformed public key must not verify")
	}

	compact := make([]byte, 64)
	r.FillBytes(compact[:32])
	s.FillBytes(compact[32:])
	found := false
	for recID := byte(0); recID < 4; recID++ {
		recovered, err := c.Recover(hash[:], compact, recID, true)
		if err != nil {
			continue
		}
		if bytes.Equal(recovered, pub) {
			found = true
			break
		}
	}
	if !found {
		t.Fatal("no recovery id reproduced the signing public key")
	}
}

func TestDEREncodingRejectsNonPositive(t *testing.T) {
	if _, err := EncodeDER(big.NewInt(0), big.NewInt(1)); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
	der, err := EncodeDER(big.NewInt(1), big.NewInt(2))
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if _, _, err := ParseDER(append(der, 0x00)); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("trailing bytes must be rejected, got %v", err)
	}
}
