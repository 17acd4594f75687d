// Package p256 implements the secp256r1 scalar and point operations used by
// hierarchical key derivation and compact ECDSA signing.
//
// All operations hang off a Curve value. A Curve is immutable after New and
// safe for concurrent use.
package p256

import (
	"crypto/elliptic"
	"errors"
	"math/big"
)

const (
	PrivateKeySize            = 32
	CompressedPublicKeySize   = 33
	UncompressedPublicKeySize = 65
	CompactSignatureSize      = 64
	HashSize                  = 32
)

var (
	ErrInvalidPrivateKey = errors.New("p256: invalid private key")
	ErrInvalidPoint      = errors.New("p256: invalid public key")
	ErrInvalidTweak      = errors.New("p256: invalid tweak")
	ErrPointAtInfinity   = errors.New("p256: point at infinity")
	ErrInvalidSignature  = errors.New("p256: invalid signature")
	ErrInvalidHash       = errors.New("p256: hash must be 32 bytes")
	ErrRecoveryFailed    = errors.New("p256: public key recovery failed")
)

// Curve binds the operations to the P-256 domain parameters.
type Curve struct {
	curve elliptic.Curve
	n     *big.Int
	halfN *big.Int
	p     *big.Int
}

func New() *Curve {
	c := elliptic.P256()
	params := c.Params()
	return &Curve{
		curve: c,
		n:     params.N,
		halfN: new(big.Int).Rsh(params.N, 1),
		p:     params.P,
	}
}

// Order returns a copy of the group order n.
func (c *Curve) Order() *big.Int {
	return new(big.Int).Set(c.n)
}

// PrivateKeyVerify reports whether k is a 32-byte scalar with 0 < k < n.
func (c *Curve) PrivateKeyVerify(k []byte) bool {
	if len(k) != PrivateKeySize {
		return false
	}
	d := new(big.Int).SetBytes(k)
	return d.Sign() > 0 && d.Cmp(c.n) < 0
}

func (c *Curve) PrivateKeyNegate(k []byte) ([]byte, error) {
	if !c.PrivateKeyVerify(k) {
		return nil, ErrInvalidPrivateKey
	}
	d := new(big.Int).SetBytes(k)
	d.Sub(c.n, d)
	return c.scalarBytes(d), nil
}

// PrivateKeyTweakAdd returns (k + tweak) mod n.
func (c *Curve) PrivateKeyTweakAdd(k, tweak []byte) ([]byte, error) {
	if !c.PrivateKeyVerify(k) {
		return nil, ErrInvalidPrivateKey
	}
	t, err := c.parseTweak(tweak)
	if err != nil {
		return nil, err
	}
	d := new(big.Int).SetBytes(k)
	d.Add(d, t).Mod(d, c.n)
	if d.Sign() == 0 {
		return nil, ErrInvalidTweak
	}
	return c.scalarBytes(d), nil
}

func (c *Curve) PublicKeyCreate(k []byte, compressed bool) ([]byte, error) {
	if !c.PrivateKeyVerify(k) {
		return nil, ErrInvalidPrivateKey
	}
	x, y := c.curve.ScalarBaseMult(k)
	return c.marshal(x, y, compressed), nil
}

func (c *Curve) PublicKeyVerify(pub []byte) bool {
	_, _, err := c.unmarshal(pub)
	return err == nil
}

// PublicKeyConvert re-encodes pub in compressed (33 bytes) or uncompressed
// (65 bytes) SEC1 form.
func (c *Curve) PublicKeyConvert(pub []byte, compressed bool) ([]byte, error) {
	x, y, err := c.unmarshal(pub)
	if err != nil {
		return nil, err
	}
	return c.marshal(x, y, compressed), nil
}

// PublicKeyTweakAdd returns tweak·G + pub.
func (c *Curve) PublicKeyTweakAdd(pub, tweak []byte, compressed bool) ([]byte, error) {
	x, y, err := c.unmarshal(pub)
	if err != nil {
		return nil, err
	}
	if _, err := c.parseTweak(tweak); err != nil {
		return nil, err
	}
	tx, ty := c.curve.ScalarBaseMult(tweak)
	rx, ry := c.curve.Add(x, y, tx, ty)
	if isInfinity(rx, ry) {
		return nil, ErrPointAtInfinity
	}
	return c.marshal(rx, ry, compressed), nil
}

func (c *Curve) parseTweak(tweak []byte) (*big.Int, error) {
	if len(tweak) != PrivateKeySize {
		return nil, ErrInvalidTweak
	}
	t := new(big.Int).SetBytes(tweak)
	if t.Cmp(c.n) >= 0 {
		return nil, ErrInvalidTweak
	}
	return t, nil
}

func (c *Curve) marshal(x, y *big.Int, compressed bool) []byte {
	if compressed {
		return elliptic.MarshalCompressed(c.curve, x, y)
	}
	return elliptic.Marshal(c.curve, x, y)
}

func (c *Curve) unmarshal(pub []byte) (x, y *big.Int, err error) {
	switch len(pub) {
	case CompressedPublicKeySize:
		if pub[0] != 0x02 && pub[0] != 0x03 {
			return nil, nil, ErrInvalidPoint
		}
		x, y = elliptic.UnmarshalCompressed(c.curve, pub)
	case UncompressedPublicKeySize:
		if pub[0] != 0x04 {
			return nil, nil, ErrInvalidPoint
		}
		x, y = elliptic.Unmarshal(c.curve, pub)
	default:
		return nil, nil, ErrInvalidPoint
	}
	if x == nil || y == nil {
		return nil, nil, ErrInvalidPoint
	}
	return x, y, nil
}

func (c *Curve) scalarBytes(d *big.Int) []byte {
	return d.FillBytes(make([]byte, PrivateKeySize))
}

// inRange reports 0 < v < n.
func (c *Curve) inRange(v *big.Int) bool {
	return v.Sign() > 0 && v.Cmp(c.n) < 0
}

// The legacy elliptic API represents the point at infinity as (0, 0).
func isInfinity(x, y *big.Int) bool {
	return x.Sign() == 0 && y.Sign() == 0
}
