package did

import (
	"fmt"
	"strings"
)

// DIDURL is a DID followed by an optional path, query and fragment, such as
// did:elastos:iXyz#primary. The part after the DID is kept verbatim.
type DIDURL struct {
	did  DID
	rest string
}

// NewDIDURL builds a URL under base. rest must be empty or start with one of
// ; / ? #.
func NewDIDURL(base DID, rest string) (DIDURL, error) {
	if base.IsZero() {
		return DIDURL{}, fmt.Errorf("%w: missing DID", ErrMalformedDIDURL)
	}
	if rest != "" && !strings.ContainsRune(";/?#", rune(rest[0])) {
		return DIDURL{}, fmt.Errorf("%w: %q", ErrMalformedDIDURL, rest)
	}
	if strings.ContainsAny(rest, " \t\r\n") {
		return DIDURL{}, fmt.Errorf("%w: %q", ErrMalformedDIDURL, rest)
	}
	return DIDURL{did: base, rest: rest}, nil
}

// ParseDIDURL parses an absolute URL, or a relative one (#key, ;p, /path,
// ?q) resolved against base.
func ParseDIDURL(s string, base DID) (DIDURL, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DIDURL{}, fmt.Errorf("%w: empty", ErrMalformedDIDURL)
	}
	if strings.ContainsRune(";/?#", rune(s[0])) {
		return NewDIDURL(base, s)
	}

	cut := strings.IndexAny(s, ";/?#")
	didPart, rest := s, ""
	if cut >= 0 {
		didPart, rest = s[:cut], s[cut:]
	}
	d, err := Parse(didPart)
	if err != nil {
		return DIDURL{}, fmt.Errorf("%w: %v", ErrMalformedDIDURL, err)
	}
	return NewDIDURL(d, rest)
}

func (u DIDURL) DID() DID { return u.did }

// RelativeString is the URL without its DID, e.g. #primary.
func (u DIDURL) RelativeString() string { return u.rest }

// Fragment is the text after #, or empty.
func (u DIDURL) Fragment() string {
	if i := strings.IndexByte(u.rest, '#'); i >= 0 {
		return u.rest[i+1:]
	}
	return ""
}

func (u DIDURL) String() string {
	return u.did.String() + u.rest
}

func (u DIDURL) Equal(other DIDURL) bool {
	return u.did.Equal(other.did) && u.rest == other.rest
}
