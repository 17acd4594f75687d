package storage

import (
	"errors"
	"strings"
)

var (
	ErrNotFound           = errors.New("storage: entity not found")
	ErrCorruptStore       = errors.New("storage: corrupt store")
	ErrUnsupportedVersion = errors.New("storage: unsupported store version")
	ErrPasswordChange     = errors.New("storage: password change failed")
	ErrInvalidID          = errors.New("storage: invalid identifier")
)

// Error is returned by every Storage operation that touches the filesystem.
// It matches both its Kind sentinel and the underlying cause with errors.Is.
type Error struct {
	Op   string
	Path string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("storage: ")
	b.WriteString(e.Op)
	if e.Path != "" {
		b.WriteString(" ")
		b.WriteString(e.Path)
	}
	switch {
	case e.Kind != nil && e.Err != nil:
		b.WriteString(": ")
		b.WriteString(strings.TrimPrefix(e.Kind.Error(), "storage: "))
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	case e.Kind != nil:
		b.WriteString(": ")
		b.WriteString(strings.TrimPrefix(e.Kind.Error(), "storage: "))
	case e.Err != nil:
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

func opError(op, path string, kind, err error) error {
	return &Error{Op: op, Path: path, Kind: kind, Err: err}
}
