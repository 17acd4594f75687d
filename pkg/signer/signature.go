package signer

import (
	"encoding/base64"
	"errors"
	"math/big"
	"strings"

	"github.com/elastos/Elastos.DID.JS.SDK-sub002/pkg/p256"
)

// SignatureSize is the length of a compact r‖s signature.
const SignatureSize = p256.CompactSignatureSize

var ErrInvalidSignature = errors.New("signer: invalid signature")

// Signature is a compact ECDSA signature: r and s as 32-byte big-endian
// integers, left-padded with zeros.
type Signature [SignatureSize]byte

// ParseSignature copies a 64-byte compact signature.
func ParseSignature(b []byte) (Signature, error) {
	var sig Signature
	if len(b) != SignatureSize {
		return sig, ErrInvalidSignature
	}
	copy(sig[:], b)
	return sig, nil
}

// ParseDER converts an ASN.1 DER signature into compact form.
func ParseDER(der []byte) (Signature, error) {
	r, s, err := p256.ParseDER(der)
	if err != nil {
		return Signature{}, ErrInvalidSignature
	}
	return fromScalars(r, s)
}

// ParseBase64 decodes the URL-safe Base64 text form. Padded input is
// accepted.
func ParseBase64(text string) (Signature, error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(text, "="))
	if err != nil {
		return Signature{}, ErrInvalidSignature
	}
	return ParseSignature(raw)
}

func fromScalars(r, s *big.Int) (Signature, error) {
	var sig Signature
	if r.Sign() <= 0 || s.Sign() <= 0 || r.BitLen() > 256 || s.BitLen() > 256 {
		return sig, ErrInvalidSignature
	}
	r.FillBytes(sig[:32])
	s.FillBytes(sig[32:])
	return sig, nil
}

func (sig Signature) R() *big.Int { return new(big.Int).SetBytes(sig[:32]) }
func (sig Signature) S() *big.Int { return new(big.Int).SetBytes(sig[32:]) }

func (sig Signature) Bytes() []byte {
	return append([]byte(nil), sig[:]...)
}

// String returns the URL-safe unpadded Base64 form used at API boundaries.
func (sig Signature) String() string {
	return base64.RawURLEncoding.EncodeToString(sig[:])
}

// DER encodes the signature as SEQUENCE{INTEGER r, INTEGER s}.
func (sig Signature) DER() ([]byte, error) {
	der, err := p256.EncodeDER(sig.R(), sig.S())
	if err != nil {
		return nil, ErrInvalidSignature
	}
	return der, nil
}
