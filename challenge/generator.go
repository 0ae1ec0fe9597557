package challenge

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"math/big"
	"strings"

	"github.com/MrEthical07/goStepUp/clock"
	"github.com/MrEthical07/goStepUp/internal/digest"
)

var (
	// ErrUnsupportedAlgorithm is returned for digest names the generator cannot resolve.
	ErrUnsupportedAlgorithm = errors.New("challenge: unsupported digest algorithm")
	// ErrInvalidLength is returned for negative maximum lengths.
	ErrInvalidLength = errors.New("challenge: max length must be >= 0")
	// ErrInvalidDigits is returned for out-of-range numeric code sizes.
	ErrInvalidDigits = errors.New("challenge: digits must be between 6 and 10")
)

// Generator produces a challenge for target. An empty target requests a
// generic challenge that is not bound to any destination.
type Generator interface {
	Generate(target string) (string, error)
}

// DigestConfig configures a DigestGenerator.
type DigestConfig struct {
	// Algorithm is a digest name such as "SHA-256" or "sha512".
	Algorithm string
	// Salt is mixed into every challenge and should be unique per installation.
	Salt string
	// MaxLength bounds the challenge. Longer output is truncated, shorter output is never padded.
	MaxLength int
	// Decimal re-encodes the digest as decimal digits instead of hex.
	Decimal bool
}

// DigestGenerator hashes target, salt, the current time and a random nonce.
type DigestGenerator struct {
	newHash   func() hash.Hash
	size      int
	salt      []byte
	maxLength int
	decimal   bool
	clock     clock.Clock
	rand      io.Reader
}

// NewDigestGenerator validates cfg and returns a generator reading time from c.
func NewDigestGenerator(cfg DigestConfig, c clock.Clock) (*DigestGenerator, error) {
	newHash, err := HashFunc(cfg.Algorithm)
	if err != nil {
		return nil, err
	}
	if cfg.MaxLength < 0 {
		return nil, ErrInvalidLength
	}
	return &DigestGenerator{
		newHash:   newHash,
		size:      newHash().Size(),
		salt:      []byte(cfg.Salt),
		maxLength: cfg.MaxLength,
		decimal:   cfg.Decimal,
		clock:     clock.OrSystem(c),
		rand:      rand.Reader,
	}, nil
}

// OutputLength is the length of the untruncated encoded digest.
func (g *DigestGenerator) OutputLength() int {
	if g.decimal {
		return decimalWidth(g.size)
	}
	return hex.EncodedLen(g.size)
}

// Generate returns a fresh challenge of length min(MaxLength, OutputLength).
func (g *DigestGenerator) Generate(target string) (string, error) {
	if g.maxLength == 0 {
		return "", nil
	}

	var nonce [16]byte
	if _, err := io.ReadFull(g.rand, nonce[:]); err != nil {
		return "", fmt.Errorf("challenge: read nonce: %w", err)
	}

	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(g.clock.Now().UnixNano()))

	h := g.newHash()
	h.Write([]byte(target))
	h.Write([]byte{0})
	h.Write(g.salt)
	h.Write([]byte{0})
	h.Write(ts[:])
	h.Write(nonce[:])
	sum := h.Sum(nil)

	if g.decimal {
		out := encodeDecimal(sum, decimalWidth(g.size))
		if len(out) > g.maxLength {
			// low-order digits are uniformly distributed, leading ones are not
			out = out[len(out)-g.maxLength:]
		}
		return out, nil
	}

	out := hex.EncodeToString(sum)
	if len(out) > g.maxLength {
		out = out[:g.maxLength]
	}
	return out, nil
}

// HashFunc resolves a digest name. Dashes and case are ignored.
func HashFunc(name string) (func() hash.Hash, error) {
	h, err := digest.Func(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedAlgorithm, err)
	}
	return h, nil
}

func decimalWidth(size int) int {
	limit := new(big.Int).Lsh(big.NewInt(1), uint(size*8))
	limit.Sub(limit, big.NewInt(1))
	return len(limit.String())
}

func encodeDecimal(sum []byte, width int) string {
	s := new(big.Int).SetBytes(sum).String()
	if len(s) < width {
		s = strings.Repeat("0", width-len(s)) + s
	}
	return s
}

// DigitsGenerator produces uniformly random numeric codes of a fixed size.
type DigitsGenerator struct {
	digits int
}

// NewDigitsGenerator returns a generator of digits-long codes.
func NewDigitsGenerator(digits int) (*DigitsGenerator, error) {
	if digits < 6 || digits > 10 {
		return nil, ErrInvalidDigits
	}
	return &DigitsGenerator{digits: digits}, nil
}

// Generate ignores target and returns a random numeric code.
func (g *DigitsGenerator) Generate(string) (string, error) {
	var b strings.Builder
	b.Grow(g.digits)

	ten := big.NewInt(10)
	for i := 0; i < g.digits; i++ {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}
