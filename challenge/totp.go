package challenge

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/goStepUp/clock"
	"github.com/MrEthical07/goStepUp/internal/digest"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// TOTPConfig holds the RFC 6238 parameters shared by enrolment and verification.
type TOTPConfig struct {
	Issuer    string
	Period    uint
	Skew      uint
	Digits    int
	Algorithm string
}

// DefaultTOTPConfig returns 30 second, 6 digit, SHA1 codes with one step of skew.
func DefaultTOTPConfig() TOTPConfig {
	return TOTPConfig{
		Period:    30,
		Skew:      1,
		Digits:    6,
		Algorithm: "SHA1",
	}
}

func (c TOTPConfig) validateOpts() (totp.ValidateOpts, error) {
	if c.Period == 0 {
		c.Period = 30
	}
	var digits otp.Digits
	switch c.Digits {
	case 0, 6:
		digits = otp.DigitsSix
	case 8:
		digits = otp.DigitsEight
	default:
		return totp.ValidateOpts{}, errors.New("challenge: totp digits must be 6 or 8")
	}
	alg, err := otpAlgorithm(c.Algorithm)
	if err != nil {
		return totp.ValidateOpts{}, err
	}
	return totp.ValidateOpts{
		Period:    c.Period,
		Skew:      c.Skew,
		Digits:    digits,
		Algorithm: alg,
	}, nil
}

func otpAlgorithm(name string) (otp.Algorithm, error) {
	switch digest.Normalize(name) {
	case "", "SHA1":
		return otp.AlgorithmSHA1, nil
	case "SHA256":
		return otp.AlgorithmSHA256, nil
	case "SHA512":
		return otp.AlgorithmSHA512, nil
	default:
		return otp.AlgorithmSHA1, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, name)
	}
}

// TOTPVerifier recomputes time-based codes from the account target, which
// holds the base32 shared secret.
type TOTPVerifier struct {
	opts  totp.ValidateOpts
	clock clock.Clock
}

// NewTOTPVerifier builds a verifier for cfg reading time from c.
func NewTOTPVerifier(cfg TOTPConfig, c clock.Clock) (*TOTPVerifier, error) {
	opts, err := cfg.validateOpts()
	if err != nil {
		return nil, err
	}
	return &TOTPVerifier{opts: opts, clock: clock.OrSystem(c)}, nil
}

// Standalone always reports true.
func (v *TOTPVerifier) Standalone() bool { return true }

// Verify ignores challenge and validates response against the secret in target.
func (v *TOTPVerifier) Verify(_, response, target string) bool {
	secret := strings.TrimSpace(target)
	code := strings.TrimSpace(response)
	if secret == "" || code == "" {
		return false
	}
	ok, err := totp.ValidateCustom(code, secret, v.clock.Now().UTC(), v.opts)
	return err == nil && ok
}

// Code returns the code for secret at t.
func (v *TOTPVerifier) Code(secret string, t time.Time) (string, error) {
	return totp.GenerateCodeCustom(secret, t.UTC(), v.opts)
}

// GenerateTOTPKey creates a new shared secret for accountName. The returned
// key's Secret() is stored as the account target and URL() is shown to the
// user as an otpauth:// provisioning URI.
func GenerateTOTPKey(cfg TOTPConfig, accountName string) (*otp.Key, error) {
	opts, err := cfg.validateOpts()
	if err != nil {
		return nil, err
	}
	if cfg.Issuer == "" {
		return nil, errors.New("challenge: totp issuer required")
	}
	return totp.Generate(totp.GenerateOpts{
		Issuer:      cfg.Issuer,
		AccountName: accountName,
		Period:      opts.Period,
		Digits:      opts.Digits,
		Algorithm:   opts.Algorithm,
	})
}
