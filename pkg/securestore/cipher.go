// Package securestore protects secrets at rest with AES-256-CBC.
//
// Keys are derived from the store password with the legacy MD5 chain
// (k1 = MD5(pw), k2 = MD5(k1‖pw), iv = MD5(k2‖pw), key = k1‖k2) so existing
// stores stay readable. The derivation has no salt and no work factor.
package securestore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"encoding/base64"
	"errors"
	"runtime"
	"strings"
)

const (
	KeySize = 32
	IVSize  = aes.BlockSize
)

var (
	ErrWrongPassword     = errors.New("securestore: wrong password")
	ErrInvalidCiphertext = errors.New("securestore: invalid ciphertext")
)

// DeriveKeyAndIV expands password into a 32-byte AES key and a 16-byte IV.
func DeriveKeyAndIV(password string) (key, iv []byte) {
	pw := []byte(password)
	defer zeroBytes(pw)

	k1 := md5.Sum(pw)
	k2 := md5.Sum(append(k1[:], pw...))
	v := md5.Sum(append(k2[:], pw...))

	key = make([]byte, 0, KeySize)
	key = append(key, k1[:]...)
	key = append(key, k2[:]...)
	return key, v[:]
}

// Encrypt pads plaintext with PKCS#7 and encrypts it under password.
func Encrypt(password string, plaintext []byte) ([]byte, error) {
	key, iv := DeriveKeyAndIV(password)
	defer zeroBytes(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	padded := pad(plaintext)
	defer zeroBytes(padded)

	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)
	return out, nil
}

// Decrypt reverses Encrypt. A padding failure, which is what a wrong password
// almost always produces, is reported as ErrWrongPassword.
func Decrypt(password string, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, ErrInvalidCiphertext
	}
	key, iv := DeriveKeyAndIV(password)
	defer zeroBytes(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, ciphertext)

	plain, ok := unpad(out)
	if !ok {
		zeroBytes(out)
		return nil, ErrWrongPassword
	}
	return plain, nil
}

// EncryptToBase64 encrypts and frames the result as URL-safe Base64 without
// padding.
func EncryptToBase64(password string, plaintext []byte) (string, error) {
	ct, err := Encrypt(password, plaintext)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(ct), nil
}

// DecryptFromBase64 accepts padded and unpadded URL-safe Base64.
func DecryptFromBase64(password, text string) ([]byte, error) {
	ct, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(strings.TrimSpace(text), "="))
	if err != nil {
		return nil, ErrInvalidCiphertext
	}
	return Decrypt(password, ct)
}

// ReEncryptBase64 decrypts text with oldPassword and encrypts the plaintext
// again with newPassword.
func ReEncryptBase64(text, oldPassword, newPassword string) (string, error) {
	plain, err := DecryptFromBase64(oldPassword, text)
	if err != nil {
		return "", err
	}
	defer zeroBytes(plain)
	return EncryptToBase64(newPassword, plain)
}

// Fingerprint identifies password without storing it: MD5(password)
// encrypted under password, as URL-safe Base64.
func Fingerprint(password string) (string, error) {
	digest := md5.Sum([]byte(password))
	return EncryptToBase64(password, digest[:])
}

func pad(b []byte) []byte {
	n := aes.BlockSize - len(b)%aes.BlockSize
	out := make([]byte, len(b)+n)
	copy(out, b)
	for i := len(b); i < len(out); i++ {
		out[i] = byte(n)
	}
	return out
}

func unpad(b []byte) ([]byte, bool) {
	if len(b) == 0 {
		return nil, false
	}
	n := int(b[len(b)-1])
	if n == 0 || n > aes.BlockSize || n > len(b) {
		return nil, false
	}
	for _, v := range b[len(b)-n:] {
		if int(v) != n {
			return nil, false
		}
	}
	return b[:len(b)-n], true
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(b)
}
