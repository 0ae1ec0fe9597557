// Package digest resolves configured digest names to hash constructors.
package digest

import (
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"errors"
	"fmt"
	"hash"
	"strings"
)

// ErrUnsupported is returned for names that do not resolve.
var ErrUnsupported = errors.New("unsupported digest algorithm")

// Func resolves names such as "SHA-256", "sha512" or "SHA1". Case and dashes
// are ignored; the empty name selects SHA-256.
func Func(name string) (func() hash.Hash, error) {
	switch Normalize(name) {
	case "", "SHA256":
		return sha256.New, nil
	case "SHA1":
		return sha1.New, nil
	case "SHA224":
		return sha256.New224, nil
	case "SHA384":
		return sha512.New384, nil
	case "SHA512":
		return sha512.New, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupported, name)
	}
}

// Normalize upper-cases name and strips dashes and surrounding space.
func Normalize(name string) string {
	return strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(name)), "-", "")
}
