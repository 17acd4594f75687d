package hdkey

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"

	"github.com/mr-tron/base58/base58"
)

const (
	// SerializedSize is version(4) depth(1) parent(4) index(4) chain(32) key(33).
	SerializedSize = 78
	checksumSize   = 4
)

var (
	ErrInvalidLength   = errors.New("hdkey: invalid extended key length")
	ErrInvalidChecksum = errors.New("hdkey: invalid extended key checksum")
	ErrVersionMismatch = errors.New("hdkey: version mismatch")
	ErrKeyTypeMismatch = errors.New("hdkey: key type does not match version")
)

// Serialize encodes the node with its private key and the private version.
func (k *ExtendedKey) Serialize() ([]byte, error) {
	if k.wiped {
		return nil, ErrWiped
	}
	if k.privateKey == nil {
		return nil, ErrNoPrivateKey
	}
	key := make([]byte, 0, 33)
	key = append(key, 0x00)
	key = append(key, k.privateKey...)
	return k.serialize(k.versions.Private, key), nil
}

// SerializePublic encodes the node with its public key and the public version.
func (k *ExtendedKey) SerializePublic() []byte {
	return k.serialize(k.versions.Public, k.publicKey)
}

func (k *ExtendedKey) serialize(version uint32, key []byte) []byte {
	buf := make([]byte, 0, SerializedSize)
	buf = binary.BigEndian.AppendUint32(buf, version)
	buf = append(buf, k.depth)
	buf = binary.BigEndian.AppendUint32(buf, k.parentFingerprint)
	buf = binary.BigEndian.AppendUint32(buf, k.index)
	buf = append(buf, k.chainCode...)
	buf = append(buf, key...)
	return buf
}

// PrivateExtendedKey returns the Base58Check form of Serialize.
func (k *ExtendedKey) PrivateExtendedKey() (string, error) {
	raw, err := k.Serialize()
	if err != nil {
		return "", err
	}
	defer zeroBytes(raw)
	return EncodeCheck(raw), nil
}

// PublicExtendedKey returns the Base58Check form of SerializePublic.
func (k *ExtendedKey) PublicExtendedKey() string {
	return EncodeCheck(k.SerializePublic())
}

func (k *ExtendedKey) String() string {
	if k.privateKey != nil {
		if s, err := k.PrivateExtendedKey(); err == nil {
			return s
		}
	}
	return k.PublicExtendedKey()
}

// PublicKeyBase58 is the Base58 encoding of the compressed public key.
func (k *ExtendedKey) PublicKeyBase58() string {
	return base58.Encode(k.publicKey)
}

// Parse decodes a 78-byte extended key. The version must be one of the
// declared versions and agree with the key marker byte.
func Parse(data []byte, opts ...Option) (*ExtendedKey, error) {
	if len(data) != SerializedSize {
		return nil, ErrInvalidLength
	}
	o := buildOptions(opts)

	version := binary.BigEndian.Uint32(data[0:4])
	if version != o.versions.Private && version != o.versions.Public {
		return nil, ErrVersionMismatch
	}
	key := &ExtendedKey{
		curve:             o.curve,
		versions:          o.versions,
		depth:             data[4],
		parentFingerprint: binary.BigEndian.Uint32(data[5:9]),
		index:             binary.BigEndian.Uint32(data[9:13]),
		chainCode:         append([]byte(nil), data[13:45]...),
	}
	material := data[45:SerializedSize]
	if material[0] == 0x00 {
		if version != o.versions.Private {
			return nil, ErrKeyTypeMismatch
		}
		if err := key.setPrivateKey(material[1:]); err != nil {
			return nil, err
		}
		return key, nil
	}
	if version != o.versions.Public {
		return nil, ErrKeyTypeMismatch
	}
	if err := key.setPublicKey(material); err != nil {
		return nil, err
	}
	return key, nil
}

// ParseBase58 decodes the Base58Check text form of an extended key.
func ParseBase58(s string, opts ...Option) (*ExtendedKey, error) {
	raw, err := DecodeCheck(s)
	if err != nil {
		return nil, err
	}
	defer zeroBytes(raw)
	return Parse(raw, opts...)
}

// EncodeCheck appends the first four bytes of SHA256(SHA256(payload)) and
// Base58 encodes the result.
func EncodeCheck(payload []byte) string {
	buf := make([]byte, 0, len(payload)+checksumSize)
	buf = append(buf, payload...)
	buf = append(buf, checksum(payload)...)
	return base58.Encode(buf)
}

// DecodeCheck reverses EncodeCheck.
func DecodeCheck(s string) ([]byte, error) {
	if s == "" {
		return nil, ErrInvalidLength
	}
	raw, err := base58.Decode(s)
	if err != nil {
		return nil, ErrInvalidChecksum
	}
	if len(raw) <= checksumSize {
		return nil, ErrInvalidLength
	}
	payload, sum := raw[:len(raw)-checksumSize], raw[len(raw)-checksumSize:]
	if !bytes.Equal(checksum(payload), sum) {
		return nil, ErrInvalidChecksum
	}
	return payload, nil
}

func checksum(payload []byte) []byte {
	first := sha256.Sum256(payload)
	second := sha256.Sum256(first[:])
	return second[:checksumSize]
}
