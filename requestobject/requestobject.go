package requestobject

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/goStepUp/clock"
	"github.com/MrEthical07/goStepUp/replay"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SigningMethod selects the JWS algorithm.
type SigningMethod string

const (
	// MethodEd25519 signs with EdDSA over Ed25519 keys.
	MethodEd25519 SigningMethod = "ed25519"
	// MethodHS256 signs with a shared HMAC secret.
	MethodHS256 SigningMethod = "hs256"
)

var (
	// ErrInvalid is returned for request objects that fail signature or claim checks.
	ErrInvalid = errors.New("requestobject: invalid request object")
	// ErrMissingIssuedAt is returned when iat is absent.
	ErrMissingIssuedAt = errors.New("requestobject: iat required")
	// ErrMissingReplayValue is returned when jti, state and nonce are all absent.
	ErrMissingReplayValue = errors.New("requestobject: jti, state or nonce required")
)

// Config configures signing and validation.
type Config struct {
	SigningMethod SigningMethod
	// PrivateKey is the HMAC secret for hs256, or the Ed25519 private key (raw or PEM).
	PrivateKey []byte
	// PublicKey is the Ed25519 public key (raw or PEM).
	PublicKey []byte
	// VerifyKeys maps kid to verification key for key rotation.
	VerifyKeys map[string][]byte
	KeyID      string
	Issuer     string
	Audience   string
	Leeway     time.Duration
}

// Claims are the request parameters carried by the object.
type Claims struct {
	ClientID  string `json:"client_id,omitempty"`
	State     string `json:"state,omitempty"`
	Nonce     string `json:"nonce,omitempty"`
	Scope     string `json:"scope,omitempty"`
	ACRValues string `json:"acr_values,omitempty"`
	jwt.RegisteredClaims
}

// ReplayValue is the value remembered by the replay guard: jti, else state, else nonce.
func (c *Claims) ReplayValue() string {
	switch {
	case c.ID != "":
		return c.ID
	case c.State != "":
		return c.State
	default:
		return c.Nonce
	}
}

// Validator checks request objects and rejects replays.
type Validator struct {
	config Config
	guard  *replay.Guard
	clock  clock.Clock
}

// NewValidator validates cfg. guard may be nil to skip replay protection.
func NewValidator(cfg Config, guard *replay.Guard, c clock.Clock) (*Validator, error) {
	if err := validateConfig(&cfg, false); err != nil {
		return nil, err
	}
	return &Validator{config: cfg, guard: guard, clock: clock.OrSystem(c)}, nil
}

// Validate parses token, checks its signature and registered claims, then
// runs the freshness gate and replay cache on its identifying value.
func (v *Validator) Validate(ctx context.Context, token string) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{signingMethod(v.config.SigningMethod).Alg()}),
		jwt.WithTimeFunc(v.clock.Now),
	}
	if v.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(v.config.Leeway))
	}
	if v.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(v.config.Issuer))
	}
	if v.config.Audience != "" {
		options = append(options, jwt.WithAudience(v.config.Audience))
	}

	parsed, err := jwt.NewParser(options...).ParseWithClaims(token, &Claims{}, v.keyFunc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalid
	}
	if claims.IssuedAt == nil {
		return nil, ErrMissingIssuedAt
	}
	value := claims.ReplayValue()
	if value == "" {
		return nil, ErrMissingReplayValue
	}

	if v.guard != nil {
		if err := v.guard.Accept(ctx, value, claims.IssuedAt.Time); err != nil {
			return nil, err
		}
	}
	return claims, nil
}

func (v *Validator) keyFunc(t *jwt.Token) (interface{}, error) {
	if t.Method.Alg() != signingMethod(v.config.SigningMethod).Alg() {
		return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
	}

	if len(v.config.VerifyKeys) > 0 {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("missing kid")
		}
		key, ok := v.config.VerifyKeys[kid]
		if !ok {
			return nil, errors.New("unknown kid")
		}
		return verifyKey(v.config.SigningMethod, key)
	}

	if v.config.KeyID != "" {
		kid, _ := t.Header["kid"].(string)
		if kid != v.config.KeyID {
			return nil, errors.New("unknown kid")
		}
	}

	if v.config.SigningMethod == MethodHS256 {
		return v.config.PrivateKey, nil
	}
	return parseEdPublicKey(v.config.PublicKey)
}

// Signer produces request objects, typically on the relying party side or in tests.
type Signer struct {
	config Config
	clock  clock.Clock
}

// NewSigner validates cfg for signing.
func NewSigner(cfg Config, c clock.Clock) (*Signer, error) {
	if err := validateConfig(&cfg, true); err != nil {
		return nil, err
	}
	return &Signer{config: cfg, clock: clock.OrSystem(c)}, nil
}

// Sign fills iat, jti, iss and aud when absent and signs claims.
func (s *Signer) Sign(claims Claims) (string, error) {
	now := s.clock.Now()
	if claims.IssuedAt == nil {
		claims.IssuedAt = jwt.NewNumericDate(now)
	}
	if claims.ID == "" {
		claims.ID = uuid.NewString()
	}
	if claims.Issuer == "" {
		claims.Issuer = s.config.Issuer
	}
	if len(claims.Audience) == 0 && s.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{s.config.Audience}
	}

	token := jwt.NewWithClaims(signingMethod(s.config.SigningMethod), claims)
	if s.config.KeyID != "" {
		token.Header["kid"] = s.config.KeyID
	}

	var key interface{} = s.config.PrivateKey
	if s.config.SigningMethod == MethodEd25519 {
		edKey, err := parseEdPrivateKey(s.config.PrivateKey)
		if err != nil {
			return "", err
		}
		key = edKey
	}
	return token.SignedString(key)
}

func validateConfig(cfg *Config, signing bool) error {
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return errors.New("requestobject: invalid leeway configuration")
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)

	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) == 0 && len(cfg.VerifyKeys) == 0 {
			return errors.New("requestobject: hs256 requires a shared secret")
		}
		if signing && len(cfg.PrivateKey) == 0 {
			return errors.New("requestobject: hs256 signing requires a shared secret")
		}
	case MethodEd25519:
		if signing {
			if _, err := parseEdPrivateKey(cfg.PrivateKey); err != nil {
				return err
			}
			return nil
		}
		if len(cfg.PublicKey) == 0 && len(cfg.VerifyKeys) == 0 {
			return errors.New("requestobject: ed25519 requires public key or verify key set")
		}
		if len(cfg.PublicKey) > 0 {
			if _, err := parseEdPublicKey(cfg.PublicKey); err != nil {
				return err
			}
		}
		for kid, key := range cfg.VerifyKeys {
			if strings.TrimSpace(kid) == "" {
				return errors.New("requestobject: verify key map contains empty kid")
			}
			if _, err := parseEdPublicKey(key); err != nil {
				return fmt.Errorf("requestobject: invalid verify key for kid %q: %w", kid, err)
			}
		}
	default:
		return errors.New("requestobject: unsupported signing method")
	}
	return nil
}

func signingMethod(m SigningMethod) jwt.SigningMethod {
	if m == MethodHS256 {
		return jwt.SigningMethodHS256
	}
	return jwt.SigningMethodEdDSA
}

func verifyKey(m SigningMethod, key []byte) (interface{}, error) {
	if m == MethodHS256 {
		return key, nil
	}
	return parseEdPublicKey(key)
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("requestobject: invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("requestobject: invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("requestobject: invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("requestobject: invalid ed25519 public key type")
	}
	return edKey, nil
}
