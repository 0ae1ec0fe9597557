package challenge

import (
	"regexp"
	"testing"
	"time"

	"github.com/MrEthical07/goStepUp/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var hexPattern = regexp.MustCompile(`^[0-9a-f]+$`)
var digitPattern = regexp.MustCompile(`^[0-9]+$`)

func TestDigestGeneratorEightHexChars(t *testing.T) {
	g, err := NewDigestGenerator(DigestConfig{Algorithm: "SHA-256", Salt: "s", MaxLength: 8}, nil)
	require.NoError(t, err)

	first, err := g.Generate("user1")
	require.NoError(t, err)
	second, err := g.Generate("user1")
	require.NoError(t, err)

	assert.Len(t, first, 8)
	assert.Regexp(t, hexPattern, first)
	assert.NotEqual(t, first, second)
}

func TestDigestGeneratorDiffersUnderFrozenClock(t *testing.T) {
	fake := clock.NewFake(time.Unix(1700000000, 0))
	g, err := NewDigestGenerator(DigestConfig{Salt: "s", MaxLength: 16}, fake)
	require.NoError(t, err)

	a, err := g.Generate("user1")
	require.NoError(t, err)
	b, err := g.Generate("user1")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestDigestGeneratorLengthIsBoundedByOutput(t *testing.T) {
	cases := []struct {
		name      string
		algorithm string
		maxLength int
		decimal   bool
	}{
		{name: "sha256 short", algorithm: "SHA-256", maxLength: 8},
		{name: "sha256 longer than digest", algorithm: "SHA-256", maxLength: 500},
		{name: "sha1 exact", algorithm: "sha1", maxLength: 40},
		{name: "sha512 decimal", algorithm: "SHA512", maxLength: 12, decimal: true},
		{name: "sha256 decimal unbounded", algorithm: "SHA-256", maxLength: 1000, decimal: true},
		{name: "zero", algorithm: "SHA-384", maxLength: 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g, err := NewDigestGenerator(DigestConfig{
				Algorithm: tc.algorithm,
				Salt:      "salt",
				MaxLength: tc.maxLength,
				Decimal:   tc.decimal,
			}, nil)
			require.NoError(t, err)

			out, err := g.Generate("target")
			require.NoError(t, err)
			assert.Len(t, out, min(tc.maxLength, g.OutputLength()))
			if tc.decimal && out != "" {
				assert.Regexp(t, digitPattern, out)
			}
		})
	}
}

func TestDigestGeneratorAcceptsEmptyTarget(t *testing.T) {
	g, err := NewDigestGenerator(DigestConfig{Salt: "s", MaxLength: 6, Decimal: true}, nil)
	require.NoError(t, err)

	out, err := g.Generate("")
	require.NoError(t, err)
	assert.Len(t, out, 6)
}

func TestDigestGeneratorOutputLength(t *testing.T) {
	hexGen, err := NewDigestGenerator(DigestConfig{Algorithm: "SHA-256", MaxLength: 1}, nil)
	require.NoError(t, err)
	assert.Equal(t, 64, hexGen.OutputLength())

	decGen, err := NewDigestGenerator(DigestConfig{Algorithm: "SHA-256", MaxLength: 1, Decimal: true}, nil)
	require.NoError(t, err)
	assert.Equal(t, 78, decGen.OutputLength())
}

func TestDigestGeneratorRejectsBadConfig(t *testing.T) {
	_, err := NewDigestGenerator(DigestConfig{Algorithm: "MD4", MaxLength: 8}, nil)
	assert.ErrorIs(t, err, ErrUnsupportedAlgorithm)

	_, err = NewDigestGenerator(DigestConfig{MaxLength: -1}, nil)
	assert.ErrorIs(t, err, ErrInvalidLength)
}

func TestDigitsGenerator(t *testing.T) {
	g, err := NewDigitsGenerator(6)
	require.NoError(t, err)

	code, err := g.Generate("+15550100")
	require.NoError(t, err)
	assert.Regexp(t, `^[0-9]{6}$`, code)

	_, err = NewDigitsGenerator(4)
	assert.ErrorIs(t, err, ErrInvalidDigits)
}
