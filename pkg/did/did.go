// Package did holds the identifier values the store is keyed by: DIDs of the
// form did:elastos:<method-specific-id> and DID URLs that address a key or
// credential inside a DID.
package did

import (
	"errors"
	"fmt"
	"strings"
)

const (
	Scheme = "did"
	Method = "elastos"
)

var (
	ErrMalformedDID    = errors.New("did: malformed DID")
	ErrMalformedDIDURL = errors.New("did: malformed DID URL")
)

// DID is an immutable decentralized identifier.
type DID struct {
	method string
	id     string
}

func New(methodSpecificID string) (DID, error) {
	return NewWithMethod(Method, methodSpecificID)
}

func NewWithMethod(method, methodSpecificID string) (DID, error) {
	if !validSegment(method) || !validSegment(methodSpecificID) {
		return DID{}, fmt.Errorf("%w: %q", ErrMalformedDID, method+":"+methodSpecificID)
	}
	return DID{method: method, id: methodSpecificID}, nil
}

// Parse accepts did:<method>:<id>.
func Parse(s string) (DID, error) {
	s = strings.TrimSpace(s)
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 || parts[0] != Scheme {
		return DID{}, fmt.Errorf("%w: %q", ErrMalformedDID, s)
	}
	return NewWithMethod(parts[1], parts[2])
}

func (d DID) Method() string           { return d.method }
func (d DID) MethodSpecificID() string { return d.id }
func (d DID) IsZero() bool             { return d.id == "" }

func (d DID) String() string {
	if d.IsZero() {
		return ""
	}
	return Scheme + ":" + d.method + ":" + d.id
}

func (d DID) Equal(other DID) bool {
	return d.method == other.method && d.id == other.id
}

func (d DID) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *DID) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func validSegment(s string) bool {
	if s == "" {
		return false
	}
	return !strings.ContainsAny(s, ":;/?# \t\r\n")
}
