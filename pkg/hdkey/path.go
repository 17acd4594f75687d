package hdkey

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	// PreDerivedPath is the account level node published as a root
	// identity's extended public key.
	PreDerivedPath = "m/44'/0'/0'"

	// DerivePathPrefix is completed with the key index to address DID keys.
	DerivePathPrefix = "m/44'/0'/0'/0/"
)

var ErrInvalidDerivationPath = errors.New("hdkey: invalid derivation path")

// ParsePath converts a path such as m/44'/0'/0'/0/7 into child indexes. A
// trailing ' marks a hardened segment.
func ParsePath(path string) ([]uint32, error) {
	segments := strings.Split(strings.TrimSpace(path), "/")
	switch segments[0] {
	case "m", "M", "m'", "M'":
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidDerivationPath, path)
	}

	indexes := make([]uint32, 0, len(segments)-1)
	for _, segment := range segments[1:] {
		hardened := strings.HasSuffix(segment, "'")
		digits := strings.TrimSuffix(segment, "'")
		if digits == "" || strings.IndexFunc(digits, isNotDigit) >= 0 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidDerivationPath, path)
		}
		v, err := strconv.ParseUint(digits, 10, 32)
		if err != nil || uint32(v) >= HardenedOffset {
			return nil, fmt.Errorf("%w: index out of range in %q", ErrInvalidDerivationPath, path)
		}
		index := uint32(v)
		if hardened {
			index += HardenedOffset
		}
		indexes = append(indexes, index)
	}
	return indexes, nil
}

// DerivePath returns the DID key path for index.
func DerivePath(index int) string {
	return DerivePathPrefix + strconv.Itoa(index)
}

func isNotDigit(r rune) bool {
	return r < '0' || r > '9'
}
