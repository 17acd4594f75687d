// Package hdkey implements BIP32 hierarchical deterministic key derivation
// over the P-256 curve.
//
// The byte layout of extended keys, the HMAC domain separation string and the
// child derivation rules follow BIP32 exactly; only the underlying curve
// differs. Extended keys are therefore wire compatible with BIP32 tooling at
// the byte level but are not interchangeable with secp256k1 keys.
package hdkey

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"errors"
	"runtime"

	"github.com/elastos/Elastos.DID.JS.SDK-sub002/pkg/p256"

	"github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/ripemd160"
)

const (
	HardenedOffset uint32 = 0x80000000
	ChainCodeSize         = 32
	SeedMinSize           = 16
	SeedMaxSize           = 64
	MaxDepth              = 255

	// Collisions happen with probability below 2^-127 per step.
	maxDerivationAttempts = 16
)

var masterSecret = []byte("Bitcoin seed")

// deriveOnce computes a single child without retrying; tests substitute it
// to force collisions.
var deriveOnce = (*ExtendedKey).deriveChildOnce

var (
	ErrInvalidSeed         = errors.New("hdkey: seed must be between 16 and 64 bytes")
	ErrInvalidMnemonic     = errors.New("hdkey: invalid mnemonic")
	ErrInvalidMasterKey    = errors.New("hdkey: seed produced an invalid master key")
	ErrInvalidPrivateKey   = errors.New("hdkey: invalid private key")
	ErrInvalidPublicKey    = errors.New("hdkey: invalid public key")
	ErrHardenedPublic      = errors.New("hdkey: cannot derive hardened child from public key")
	ErrDepthOverflow       = errors.New("hdkey: maximum derivation depth exceeded")
	ErrDerivationExhausted = errors.New("hdkey: no valid child key in index range")
	ErrNoPrivateKey        = errors.New("hdkey: extended key has no private key")
	ErrWiped               = errors.New("hdkey: extended key has been wiped")

	errDerivationCollision = errors.New("hdkey: derived key is invalid")
)

// Versions are the 4-byte prefixes written in front of serialized keys.
type Versions struct {
	Private uint32
	Public  uint32
}

var DefaultVersions = Versions{Private: 0x0488ADE4, Public: 0x0488B21E}

type options struct {
	curve    *p256.Curve
	versions Versions
}

type Option func(*options)

func WithVersions(v Versions) Option {
	return func(o *options) { o.versions = v }
}

// WithCurve shares an existing curve context instead of building one.
func WithCurve(c *p256.Curve) Option {
	return func(o *options) {
		if c != nil {
			o.curve = c
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{versions: DefaultVersions}
	for _, opt := range opts {
		opt(&o)
	}
	if o.curve == nil {
		o.curve = p256.New()
	}
	return o
}

// ExtendedKey is one node of a derivation tree. It holds either a private key
// (and the public key computed from it) or only a compressed public key.
// Derivation never mutates a node.
type ExtendedKey struct {
	curve    *p256.Curve
	versions Versions

	depth             uint8
	index             uint32
	parentFingerprint uint32
	chainCode         []byte

	privateKey  []byte
	publicKey   []byte
	identifier  []byte
	fingerprint uint32
	wiped       bool
}

// FromMasterSeed builds the root node from a BIP32 seed.
func FromMasterSeed(seed []byte, opts ...Option) (*ExtendedKey, error) {
	if len(seed) < SeedMinSize || len(seed) > SeedMaxSize {
		return nil, ErrInvalidSeed
	}
	o := buildOptions(opts)

	mac := hmac.New(sha512.New, masterSecret)
	_, _ = mac.Write(seed)
	I := mac.Sum(nil)
	defer zeroBytes(I)

	key := &ExtendedKey{
		curve:     o.curve,
		versions:  o.versions,
		chainCode: append([]byte(nil), I[32:]...),
	}
	if err := key.setPrivateKey(I[:32]); err != nil {
		return nil, ErrInvalidMasterKey
	}
	return key, nil
}

// FromMnemonic validates a BIP39 mnemonic and derives the root node from its
// seed.
func FromMnemonic(mnemonic, passphrase string, opts ...Option) (*ExtendedKey, error) {
	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, passphrase)
	if err != nil {
		return nil, ErrInvalidMnemonic
	}
	defer zeroBytes(seed)
	return FromMasterSeed(seed, opts...)
}

func (k *ExtendedKey) setPrivateKey(priv []byte) error {
	if !k.curve.PrivateKeyVerify(priv) {
		return ErrInvalidPrivateKey
	}
	pub, err := k.curve.PublicKeyCreate(priv, true)
	if err != nil {
		return ErrInvalidPrivateKey
	}
	k.privateKey = append([]byte(nil), priv...)
	k.setPublicFields(pub)
	return nil
}

func (k *ExtendedKey) setPublicKey(pub []byte) error {
	compressed, err := k.curve.PublicKeyConvert(pub, true)
	if err != nil {
		return ErrInvalidPublicKey
	}
	k.privateKey = nil
	k.setPublicFields(compressed)
	return nil
}

func (k *ExtendedKey) setPublicFields(pub []byte) {
	k.publicKey = pub
	k.identifier = hash160(pub)
	k.fingerprint = binary.BigEndian.Uint32(k.identifier[:4])
}

// DeriveChild derives the child at index. Indexes at or above HardenedOffset
// require a private key. An index that yields an invalid key is skipped in
// favour of the next one, as BIP32 prescribes.
func (k *ExtendedKey) DeriveChild(index uint32) (*ExtendedKey, error) {
	if k.wiped {
		return nil, ErrWiped
	}
	if k.depth == MaxDepth {
		return nil, ErrDepthOverflow
	}
	hardened := index >= HardenedOffset
	if hardened && k.privateKey == nil {
		return nil, ErrHardenedPublic
	}

	for attempt := 0; attempt < maxDerivationAttempts; attempt++ {
		child, err := deriveOnce(k, index)
		if err == nil {
			return child, nil
		}
		if !errors.Is(err, errDerivationCollision) {
			return nil, err
		}
		next := index + 1
		if next == 0 || (next >= HardenedOffset) != hardened {
			break
		}
		index = next
	}
	return nil, ErrDerivationExhausted
}

func (k *ExtendedKey) deriveChildOnce(index uint32) (*ExtendedKey, error) {
	data := make([]byte, 0, 37)
	if index >= HardenedOffset {
		data = append(data, 0x00)
		data = append(data, k.privateKey...)
	} else {
		data = append(data, k.publicKey...)
	}
	data = binary.BigEndian.AppendUint32(data, index)
	defer zeroBytes(data)

	mac := hmac.New(sha512.New, k.chainCode)
	_, _ = mac.Write(data)
	I := mac.Sum(nil)
	defer zeroBytes(I)
	IL, IR := I[:32], I[32:]

	if !k.curve.PrivateKeyVerify(IL) {
		return nil, errDerivationCollision
	}

	child := &ExtendedKey{
		curve:             k.curve,
		versions:          k.versions,
		depth:             k.depth + 1,
		index:             index,
		parentFingerprint: k.fingerprint,
		chainCode:         append([]byte(nil), IR...),
	}
	if k.privateKey != nil {
		priv, err := k.curve.PrivateKeyTweakAdd(IL, k.privateKey)
		if err != nil {
			return nil, errDerivationCollision
		}
		defer zeroBytes(priv)
		if err := child.setPrivateKey(priv); err != nil {
			return nil, errDerivationCollision
		}
		return child, nil
	}

	pub, err := k.curve.PublicKeyTweakAdd(k.publicKey, IL, true)
	if err != nil {
		return nil, errDerivationCollision
	}
	if err := child.setPublicKey(pub); err != nil {
		return nil, errDerivationCollision
	}
	return child, nil
}

// Derive walks a path such as m/44'/0'/0'/0/3 from this node.
func (k *ExtendedKey) Derive(path string) (*ExtendedKey, error) {
	if k.wiped {
		return nil, ErrWiped
	}
	indexes, err := ParsePath(path)
	if err != nil {
		return nil, err
	}
	node := k.clone()
	for _, index := range indexes {
		child, err := node.DeriveChild(index)
		if err != nil {
			return nil, err
		}
		node = child
	}
	return node, nil
}

// Neuter returns a public-only copy of the node.
func (k *ExtendedKey) Neuter() *ExtendedKey {
	n := k.clone()
	n.privateKey = nil
	return n
}

func (k *ExtendedKey) clone() *ExtendedKey {
	c := *k
	c.chainCode = append([]byte(nil), k.chainCode...)
	c.publicKey = append([]byte(nil), k.publicKey...)
	c.identifier = append([]byte(nil), k.identifier...)
	if k.privateKey != nil {
		c.privateKey = append([]byte(nil), k.privateKey...)
	}
	return &c
}

// Wipe zeroes the private key and chain code. The node must not be used
// afterwards.
func (k *ExtendedKey) Wipe() {
	zeroBytes(k.privateKey)
	zeroBytes(k.chainCode)
	k.privateKey = nil
	k.chainCode = nil
	k.wiped = true
}

func (k *ExtendedKey) Depth() uint8              { return k.depth }
func (k *ExtendedKey) Index() uint32             { return k.index }
func (k *ExtendedKey) ParentFingerprint() uint32 { return k.parentFingerprint }
func (k *ExtendedKey) Fingerprint() uint32       { return k.fingerprint }
func (k *ExtendedKey) IsPrivate() bool           { return k.privateKey != nil }
func (k *ExtendedKey) IsHardened() bool          { return k.index >= HardenedOffset }
func (k *ExtendedKey) Versions() Versions        { return k.versions }

func (k *ExtendedKey) ChainCode() []byte {
	return append([]byte(nil), k.chainCode...)
}

// PrivateKey returns a copy of the 32-byte private key, or nil for a
// public-only node.
func (k *ExtendedKey) PrivateKey() []byte {
	if k.privateKey == nil {
		return nil
	}
	return append([]byte(nil), k.privateKey...)
}

// PublicKey returns the 33-byte compressed public key.
func (k *ExtendedKey) PublicKey() []byte {
	return append([]byte(nil), k.publicKey...)
}

// Identifier is RIPEMD160(SHA256(publicKey)).
func (k *ExtendedKey) Identifier() []byte {
	return append([]byte(nil), k.identifier...)
}

func hash160(b []byte) []byte {
	sum := sha256.Sum256(b)
	h := ripemd160.New()
	_, _ = h.Write(sum[:])
	return h.Sum(nil)
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(b)
}
