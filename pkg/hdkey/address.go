package hdkey

import (
	"bytes"

	"github.com/mr-tron/base58/base58"

	"github.com/elastos/Elastos.DID.JS.SDK-sub002/pkg/p256"
)

const (
	scriptPushPublicKey = 0x21
	scriptCheckDID      = 0xAD
	addressPrefix       = 0x67
	addressSize         = 1 + 20 + checksumSize
)

// Address derives the DID address of a compressed public key:
// Base58(0x67 ‖ RIPEMD160(SHA256(0x21 ‖ pub ‖ 0xAD)) ‖ checksum).
func Address(pub []byte) (string, error) {
	if len(pub) != p256.CompressedPublicKeySize {
		return "", ErrInvalidPublicKey
	}
	script := make([]byte, 0, len(pub)+2)
	script = append(script, scriptPushPublicKey)
	script = append(script, pub...)
	script = append(script, scriptCheckDID)

	program := make([]byte, 0, addressSize)
	program = append(program, addressPrefix)
	program = append(program, hash160(script)...)
	program = append(program, checksum(program)...)
	return base58.Encode(program), nil
}

// Address returns the DID address of the node's public key.
func (k *ExtendedKey) Address() string {
	addr, _ := Address(k.publicKey)
	return addr
}

// IsAddressValid checks the length, prefix and checksum of a DID address.
func IsAddressValid(addr string) bool {
	if addr == "" {
		return false
	}
	raw, err := base58.Decode(addr)
	if err != nil || len(raw) != addressSize || raw[0] != addressPrefix {
		return false
	}
	program, sum := raw[:addressSize-checksumSize], raw[addressSize-checksumSize:]
	return bytes.Equal(checksum(program), sum)
}
