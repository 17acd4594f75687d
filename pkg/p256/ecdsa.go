package p256

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"math/big"

	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/cryptobyte/asn1"
)

// Sign produces a DER encoded ECDSA signature over a 32-byte hash. The s
// component is normalized to the lower half of the group order.
func (c *Curve) Sign(hash, k []byte) ([]byte, error) {
	if len(hash) != HashSize {
		return nil, ErrInvalidHash
	}
	if !c.PrivateKeyVerify(k) {
		return nil, ErrInvalidPrivateKey
	}
	priv, err := ecdsa.ParseRawPrivateKey(c.curve, k)
	if err != nil {
		return nil, ErrInvalidPrivateKey
	}
	der, err := ecdsa.SignASN1(rand.Reader, priv, hash)
	if err != nil {
		return nil, err
	}
	r, s, err := ParseDER(der)
	if err != nil {
		return nil, err
	}
	if s.Cmp(c.halfN) > 0 {
		s.Sub(c.n, s)
	}
	return EncodeDER(r, s)
}

// Verify reports whether der is a valid signature of hash by pub. Any
// malformed input yields false.
func (c *Curve) Verify(hash, der, pub []byte) bool {
	if len(hash) != HashSize || len(der) == 0 {
		return false
	}
	r, s, err := ParseDER(der)
	if err != nil || !c.inRange(r) || !c.inRange(s) {
		return false
	}
	x, y, err := c.unmarshal(pub)
	if err != nil {
		return false
	}
	pk, err := ecdsa.ParseUncompressedPublicKey(c.curve, elliptic.Marshal(c.curve, x, y))
	if err != nil {
		return false
	}
	return ecdsa.VerifyASN1(pk, hash, der)
}

// Recover computes the public key that produced the compact r‖s signature
// over hash, following SEC 1 v2 section 4.1.6. recID selects among the
// candidate points: bit 0 is the parity of R.y, bit 1 selects R.x = r + n.
func (c *Curve) Recover(hash, compact []byte, recID byte, compressed bool) ([]byte, error) {
	if len(hash) != HashSize {
		return nil, ErrInvalidHash
	}
	if len(compact) != CompactSignatureSize || recID > 3 {
		return nil, ErrInvalidSignature
	}
	r := new(big.Int).SetBytes(compact[:32])
	s := new(big.Int).SetBytes(compact[32:])
	if !c.inRange(r) || !c.inRange(s) {
		return nil, ErrInvalidSignature
	}

	rx := new(big.Int).Set(r)
	if recID&2 != 0 {
		rx.Add(rx, c.n)
		if rx.Cmp(c.p) >= 0 {
			return nil, ErrRecoveryFailed
		}
	}
	enc := make([]byte, CompressedPublicKeySize)
	enc[0] = 0x02 | (recID & 1)
	rx.FillBytes(enc[1:])
	px, py := elliptic.UnmarshalCompressed(c.curve, enc)
	if px == nil {
		return nil, ErrRecoveryFailed
	}

	// Q = r^-1 (sR - eG)
	e := new(big.Int).SetBytes(hash)
	e.Mod(e, c.n)
	negE := new(big.Int).Sub(c.n, e)
	negE.Mod(negE, c.n)

	sRx, sRy := c.curve.ScalarMult(px, py, c.scalarBytes(s))
	eGx, eGy := c.curve.ScalarBaseMult(c.scalarBytes(negE))
	sumX, sumY := c.curve.Add(sRx, sRy, eGx, eGy)
	if isInfinity(sumX, sumY) {
		return nil, ErrRecoveryFailed
	}
	rInv := new(big.Int).ModInverse(r, c.n)
	qx, qy := c.curve.ScalarMult(sumX, sumY, c.scalarBytes(rInv))
	if isInfinity(qx, qy) {
		return nil, ErrRecoveryFailed
	}
	return c.marshal(qx, qy, compressed), nil
}

// EncodeDER encodes (r, s) as an ASN.1 SEQUENCE of two INTEGERs.
func EncodeDER(r, s *big.Int) ([]byte, error) {
	if r == nil || s == nil || r.Sign() <= 0 || s.Sign() <= 0 {
		return nil, ErrInvalidSignature
	}
	var b cryptobyte.Builder
	b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1BigInt(r)
		b.AddASN1BigInt(s)
	})
	return b.Bytes()
}

// ParseDER decodes a strict DER ECDSA signature.
func ParseDER(der []byte) (r, s *big.Int, err error) {
	r, s = new(big.Int), new(big.Int)
	var inner cryptobyte.String
	input := cryptobyte.String(der)
	if !input.ReadASN1(&inner, asn1.SEQUENCE) ||
		!input.Empty() ||
		!inner.ReadASN1Integer(r) ||
		!inner.ReadASN1Integer(s) ||
		!inner.Empty() {
		return nil, nil, ErrInvalidSignature
	}
	if r.Sign() <= 0 || s.Sign() <= 0 {
		return nil, nil, ErrInvalidSignature
	}
	return r, s, nil
}
