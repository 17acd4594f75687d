// Package signer signs and verifies byte sequences with P-256 ECDSA over
// SHA-256 and frames the result as a 64-byte compact signature.
package signer

import (
	"crypto/sha256"
	"fmt"

	"github.com/elastos/Elastos.DID.JS.SDK-sub002/pkg/p256"
)

// Signer binds signing operations to one curve context.
type Signer struct {
	curve *p256.Curve
}

func New() *Signer {
	return &Signer{curve: p256.New()}
}

func NewWithCurve(c *p256.Curve) *Signer {
	if c == nil {
		c = p256.New()
	}
	return &Signer{curve: c}
}

// Digest hashes the concatenation of parts in order. The order is part of
// the wire contract: signer and verifier must pass the same sequence.
func Digest(parts ...[]byte) []byte {
	h := sha256.New()
	for _, part := range parts {
		_, _ = h.Write(part)
	}
	return h.Sum(nil)
}

// SignData signs SHA256(parts[0] ‖ parts[1] ‖ ...) with a 32-byte private key.
func (s *Signer) SignData(privateKey []byte, parts ...[]byte) (Signature, error) {
	return s.SignDigest(privateKey, Digest(parts...))
}

// SignDigest signs a precomputed 32-byte digest.
func (s *Signer) SignDigest(privateKey, digest []byte) (Signature, error) {
	der, err := s.curve.Sign(digest, privateKey)
	if err != nil {
		return Signature{}, fmt.Errorf("signer: sign: %w", err)
	}
	return ParseDER(der)
}

// VerifyData reports whether sig is a valid signature by publicKey over
// SHA256 of the concatenated parts. Malformed input of any kind, including a
// signature that is not exactly 64 bytes, yields false.
func (s *Signer) VerifyData(publicKey, sig []byte, parts ...[]byte) bool {
	return s.VerifyDigest(publicKey, sig, Digest(parts...))
}

func (s *Signer) VerifyDigest(publicKey, sig, digest []byte) bool {
	compact, err := ParseSignature(sig)
	if err != nil {
		return false
	}
	der, err := compact.DER()
	if err != nil {
		return false
	}
	return s.curve.Verify(digest, der, publicKey)
}

// SignData signs with a signer bound to a fresh P-256 curve value.
func SignData(privateKey []byte, parts ...[]byte) (Signature, error) {
	return New().SignData(privateKey, parts...)
}

// VerifyData verifies with a signer bound to a fresh P-256 curve value.
func VerifyData(publicKey, sig []byte, parts ...[]byte) bool {
	return New().VerifyData(publicKey, sig, parts...)
}
