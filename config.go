package goStepUp

import (
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/MrEthical07/goStepUp/challenge"
	"github.com/MrEthical07/goStepUp/fieldcrypt"
	"github.com/MrEthical07/goStepUp/internal/digest"
	"github.com/MrEthical07/goStepUp/requestobject"
	"github.com/MrEthical07/goStepUp/restrictor"
)

// Config is the complete engine configuration. Build clones it, so later
// changes by the caller have no effect on a built Engine.
type Config struct {
	Challenge     ChallengeConfig
	TOTP          TOTPConfig
	Restrictor    RestrictorConfig
	Replay        ReplayConfig
	RequestObject RequestObjectConfig
	Encryption    EncryptionConfig
	Storage       StorageConfig
	Audit         AuditConfig
	Metrics       MetricsConfig
}

// Backend selects where shared state lives.
type Backend string

const (
	BackendMemory Backend = "memory"
	BackendRedis  Backend = "redis"
	BackendSQL    Backend = "sql"
)

// SQLDialect selects placeholder style and default statements.
type SQLDialect string

const (
	DialectPostgres SQLDialect = "postgres"
	DialectSQLite   SQLDialect = "sqlite"
)

/*
====================================
CHALLENGE CONFIG
====================================
*/

// ChallengeConfig drives the digest generator of the built-in account kinds.
type ChallengeConfig struct {
	// Algorithm is a digest name such as "SHA-256".
	Algorithm string
	Salt      string
	MaxLength int
	Decimal   bool
	// Digits is the code length of the "sms" kind.
	Digits int
}

// TOTPConfig drives the "totp" kind and key enrolment.
type TOTPConfig struct {
	Issuer    string
	Digits    int
	Period    uint
	Skew      uint
	Algorithm string
}

/*
====================================
RESTRICTOR CONFIG
====================================
*/

// RestrictorConfig holds the window tables, keyed by window in milliseconds.
type RestrictorConfig struct {
	Enabled     bool
	Backend     Backend
	RedisPrefix string
	SQLDialect  SQLDialect
	// Total caps events of every type.
	Total map[string]int
	// Failures caps failed verifications only.
	Failures map[string]int
}

/*
====================================
REPLAY CONFIG
====================================
*/

// ReplayConfig configures the signed-request replay guard.
type ReplayConfig struct {
	Enabled        bool
	Backend        Backend
	RedisPrefix    string
	Window         time.Duration
	MaxFutureSkew  time.Duration
	PruneThreshold int
}

// RequestObjectConfig configures signed authentication request validation.
type RequestObjectConfig struct {
	Enabled       bool
	SigningMethod string // "ed25519" (default), "hs256" optional
	PrivateKey    []byte
	PublicKey     []byte
	VerifyKeys    map[string][]byte
	KeyID         string
	Issuer        string
	Audience      string
	Leeway        time.Duration
}

/*
====================================
STORAGE CONFIG
====================================
*/

// EncryptionConfig toggles per-field encryption at the storage boundary.
type EncryptionConfig struct {
	EncryptName   bool
	EncryptTarget bool
	EncryptKey    bool
	Secret        []byte
	Digest        string
	Cipher        string
}

// Enabled reports whether any field is encrypted.
func (c EncryptionConfig) Enabled() bool {
	return c.EncryptName || c.EncryptTarget || c.EncryptKey
}

// StorageConfig selects the account store.
type StorageConfig struct {
	Backend     Backend
	RedisPrefix string
	SQLDialect  SQLDialect
	// Statements override the dialect defaults. Positional parameters are
	// (name, enabled, editable, target, key, type[, id]); see storage.SQLStatements.
	Statements SQLStatements
}

// SQLStatements are the configuration-supplied account statements.
type SQLStatements struct {
	Insert string
	Update string
	Delete string
	Select string
}

func (s SQLStatements) empty() bool {
	return s.Insert == "" && s.Update == "" && s.Delete == "" && s.Select == ""
}

func (s SQLStatements) complete() bool {
	return s.Insert != "" && s.Update != "" && s.Delete != "" && s.Select != ""
}

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the configuration used when none is supplied.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Challenge: ChallengeConfig{
			Algorithm: "SHA-256",
			MaxLength: 8,
			Decimal:   false,
			Digits:    6,
		},
		TOTP: TOTPConfig{
			Digits:    6,
			Period:    30,
			Skew:      1,
			Algorithm: "SHA1",
		},
		Restrictor: RestrictorConfig{
			Enabled:     true,
			Backend:     BackendMemory,
			RedisPrefix: "sre",
			SQLDialect:  DialectPostgres,
			Total:       map[string]int{"60000": 10, "3600000": 50},
			Failures:    map[string]int{"300000": 5},
		},
		Replay: ReplayConfig{
			Enabled:        true,
			Backend:        BackendMemory,
			RedisPrefix:    "srp",
			Window:         5 * time.Minute,
			MaxFutureSkew:  30 * time.Second,
			PruneThreshold: 1024,
		},
		RequestObject: RequestObjectConfig{
			Enabled:       false,
			SigningMethod: "ed25519",
			Leeway:        0,
		},
		Encryption: EncryptionConfig{
			Digest: "SHA-256",
			Cipher: "AES-256-GCM",
		},
		Storage: StorageConfig{
			Backend:     BackendMemory,
			RedisPrefix: "sta",
			SQLDialect:  DialectPostgres,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Restrictor.Total = maps.Clone(cfg.Restrictor.Total)
	out.Restrictor.Failures = maps.Clone(cfg.Restrictor.Failures)
	out.RequestObject.PrivateKey = cloneBytes(cfg.RequestObject.PrivateKey)
	out.RequestObject.PublicKey = cloneBytes(cfg.RequestObject.PublicKey)
	if cfg.RequestObject.VerifyKeys != nil {
		out.RequestObject.VerifyKeys = make(map[string][]byte, len(cfg.RequestObject.VerifyKeys))
		for kid, key := range cfg.RequestObject.VerifyKeys {
			out.RequestObject.VerifyKeys[kid] = cloneBytes(key)
		}
	}
	out.Encryption.Secret = cloneBytes(cfg.Encryption.Secret)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func validBackend(b Backend, allowSQL bool) bool {
	switch b {
	case BackendMemory, BackendRedis:
		return true
	case BackendSQL:
		return allowSQL
	}
	return false
}

func validDialect(d SQLDialect) bool {
	return d == DialectPostgres || d == DialectSQLite
}

// Validate checks the configuration without touching any backend.
func (c *Config) Validate() error {
	// Challenge
	if c.Challenge.MaxLength <= 0 {
		return errors.New("Challenge MaxLength must be > 0")
	}
	if _, err := digest.Func(c.Challenge.Algorithm); err != nil {
		return fmt.Errorf("Challenge Algorithm: %w", err)
	}
	if c.Challenge.Digits < 6 || c.Challenge.Digits > 10 {
		return errors.New("Challenge Digits must be between 6 and 10")
	}

	// TOTP
	if c.TOTP.Period == 0 {
		return errors.New("TOTP Period must be > 0")
	}
	if c.TOTP.Digits != 6 && c.TOTP.Digits != 8 {
		return errors.New("TOTP Digits must be 6 or 8")
	}
	if c.TOTP.Skew > 5 {
		return errors.New("TOTP Skew must be <= 5")
	}
	if _, err := challenge.NewTOTPVerifier(c.totpConfig(), nil); err != nil {
		return fmt.Errorf("TOTP: %w", err)
	}

	// Restrictor
	if c.Restrictor.Enabled {
		if !validBackend(c.Restrictor.Backend, true) {
			return errors.New("Restrictor Backend must be memory, redis, or sql")
		}
		if c.Restrictor.Backend == BackendSQL && !validDialect(c.Restrictor.SQLDialect) {
			return errors.New("Restrictor SQLDialect must be postgres or sqlite")
		}
		if _, err := c.restrictorConfig(); err != nil {
			return err
		}
	}

	// Replay
	if c.Replay.Enabled {
		if !validBackend(c.Replay.Backend, false) {
			return errors.New("Replay Backend must be memory or redis")
		}
		if c.Replay.Window <= 0 {
			return errors.New("Replay Window must be > 0")
		}
		if c.Replay.MaxFutureSkew < 0 || c.Replay.MaxFutureSkew > c.Replay.Window {
			return errors.New("Replay MaxFutureSkew must be between 0 and Window")
		}
		if c.Replay.PruneThreshold < 0 {
			return errors.New("Replay PruneThreshold must be >= 0")
		}
	}

	// Request objects
	if c.RequestObject.Enabled {
		if !c.Replay.Enabled {
			return errors.New("RequestObject requires Replay to be enabled")
		}
		switch requestobject.SigningMethod(c.RequestObject.SigningMethod) {
		case requestobject.MethodEd25519:
			if len(c.RequestObject.PublicKey) == 0 && len(c.RequestObject.VerifyKeys) == 0 {
				return errors.New("RequestObject ed25519 requires PublicKey or VerifyKeys")
			}
		case requestobject.MethodHS256:
			if len(c.RequestObject.PrivateKey) == 0 && len(c.RequestObject.VerifyKeys) == 0 {
				return errors.New("RequestObject hs256 requires PrivateKey or VerifyKeys")
			}
		default:
			return errors.New("RequestObject SigningMethod must be ed25519 or hs256")
		}
		if c.RequestObject.Leeway < 0 {
			return errors.New("RequestObject Leeway must be >= 0")
		}
	}

	// Encryption
	if c.Encryption.Enabled() {
		if _, err := fieldcrypt.New(c.fieldcryptConfig()); err != nil {
			return fmt.Errorf("Encryption: %w", err)
		}
	}

	// Storage
	if !validBackend(c.Storage.Backend, true) {
		return errors.New("Storage Backend must be memory, redis, or sql")
	}
	if c.Storage.Backend == BackendSQL {
		if !validDialect(c.Storage.SQLDialect) {
			return errors.New("Storage SQLDialect must be postgres or sqlite")
		}
		if !c.Storage.Statements.empty() && !c.Storage.Statements.complete() {
			return errors.New("Storage Statements must set insert, update, delete and select together")
		}
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when Audit is enabled")
	}

	return nil
}

func (c *Config) totpConfig() challenge.TOTPConfig {
	return challenge.TOTPConfig{
		Issuer:    c.TOTP.Issuer,
		Period:    c.TOTP.Period,
		Skew:      c.TOTP.Skew,
		Digits:    c.TOTP.Digits,
		Algorithm: c.TOTP.Algorithm,
	}
}

func (c *Config) digestConfig() challenge.DigestConfig {
	return challenge.DigestConfig{
		Algorithm: c.Challenge.Algorithm,
		Salt:      c.Challenge.Salt,
		MaxLength: c.Challenge.MaxLength,
		Decimal:   c.Challenge.Decimal,
	}
}

func (c *Config) restrictorConfig() (restrictor.Config, error) {
	total, err := restrictor.PoliciesFromMillis(c.Restrictor.Total)
	if err != nil {
		return restrictor.Config{}, fmt.Errorf("Restrictor Total: %w", err)
	}
	failures, err := restrictor.PoliciesFromMillis(c.Restrictor.Failures)
	if err != nil {
		return restrictor.Config{}, fmt.Errorf("Restrictor Failures: %w", err)
	}
	return restrictor.Config{Total: total, Failures: failures}, nil
}

func (c *Config) fieldcryptConfig() fieldcrypt.Config {
	return fieldcrypt.Config{
		Secret: cloneBytes(c.Encryption.Secret),
		Digest: c.Encryption.Digest,
		Cipher: c.Encryption.Cipher,
	}
}

func (c *Config) requestObjectConfig() requestobject.Config {
	return requestobject.Config{
		SigningMethod: requestobject.SigningMethod(c.RequestObject.SigningMethod),
		PrivateKey:    cloneBytes(c.RequestObject.PrivateKey),
		PublicKey:     cloneBytes(c.RequestObject.PublicKey),
		VerifyKeys:    c.RequestObject.VerifyKeys,
		KeyID:         c.RequestObject.KeyID,
		Issuer:        c.RequestObject.Issuer,
		Audience:      c.RequestObject.Audience,
		Leeway:        c.RequestObject.Leeway,
	}
}
