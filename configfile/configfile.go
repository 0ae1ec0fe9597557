// Package configfile loads a goStepUp configuration from a YAML, TOML or
// JSON file and STEPUP_* environment variables.
package configfile

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	goStepUp "github.com/MrEthical07/goStepUp"
	"github.com/MrEthical07/goStepUp/storage"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. STEPUP_REPLAY_WINDOW.
const EnvPrefix = "STEPUP"

// File mirrors goStepUp.Config with string secrets plus the connection
// settings a host needs to reach Redis and the database.
type File struct {
	Challenge     Challenge     `mapstructure:"challenge"`
	TOTP          TOTP          `mapstructure:"totp"`
	Restrictor    Restrictor    `mapstructure:"restrictor"`
	Replay        Replay        `mapstructure:"replay"`
	RequestObject RequestObject `mapstructure:"request_object"`
	Encryption    Encryption    `mapstructure:"encryption"`
	Storage       Storage       `mapstructure:"storage"`
	Audit         Audit         `mapstructure:"audit"`
	Metrics       Metrics       `mapstructure:"metrics"`

	Redis    Redis    `mapstructure:"redis"`
	Database Database `mapstructure:"database"`
}

type Challenge struct {
	Algorithm string `mapstructure:"algorithm"`
	Salt      string `mapstructure:"salt"`
	MaxLength int    `mapstructure:"max_length"`
	Decimal   bool   `mapstructure:"decimal"`
	Digits    int    `mapstructure:"digits"`
}

type TOTP struct {
	Issuer    string `mapstructure:"issuer"`
	Digits    int    `mapstructure:"digits"`
	Period    uint   `mapstructure:"period"`
	Skew      uint   `mapstructure:"skew"`
	Algorithm string `mapstructure:"algorithm"`
}

// Restrictor tables map a window in milliseconds to its cap. A table left
// out of the file keeps its default.
type Restrictor struct {
	Enabled     bool           `mapstructure:"enabled"`
	Backend     string         `mapstructure:"backend"`
	RedisPrefix string         `mapstructure:"redis_prefix"`
	SQLDialect  string         `mapstructure:"sql_dialect"`
	Total       map[string]int `mapstructure:"total"`
	Failures    map[string]int `mapstructure:"failures"`
}

type Replay struct {
	Enabled        bool          `mapstructure:"enabled"`
	Backend        string        `mapstructure:"backend"`
	RedisPrefix    string        `mapstructure:"redis_prefix"`
	Window         time.Duration `mapstructure:"window"`
	MaxFutureSkew  time.Duration `mapstructure:"max_future_skew"`
	PruneThreshold int           `mapstructure:"prune_threshold"`
}

// RequestObject keys are PEM text, or "base64:"-prefixed raw bytes.
type RequestObject struct {
	Enabled       bool              `mapstructure:"enabled"`
	SigningMethod string            `mapstructure:"signing_method"`
	PrivateKey    string            `mapstructure:"private_key"`
	PublicKey     string            `mapstructure:"public_key"`
	VerifyKeys    map[string]string `mapstructure:"verify_keys"`
	KeyID         string            `mapstructure:"key_id"`
	Issuer        string            `mapstructure:"issuer"`
	Audience      string            `mapstructure:"audience"`
	Leeway        time.Duration     `mapstructure:"leeway"`
}

type Encryption struct {
	EncryptName   bool   `mapstructure:"encrypt_name"`
	EncryptTarget bool   `mapstructure:"encrypt_target"`
	EncryptKey    bool   `mapstructure:"encrypt_key"`
	Secret        string `mapstructure:"secret"`
	Digest        string `mapstructure:"digest"`
	Cipher        string `mapstructure:"cipher"`
}

type Storage struct {
	Backend     string     `mapstructure:"backend"`
	RedisPrefix string     `mapstructure:"redis_prefix"`
	SQLDialect  string     `mapstructure:"sql_dialect"`
	Statements  Statements `mapstructure:"statements"`
}

type Statements struct {
	Insert string `mapstructure:"insert"`
	Update string `mapstructure:"update"`
	Delete string `mapstructure:"delete"`
	Select string `mapstructure:"select"`
}

type Audit struct {
	Enabled    bool `mapstructure:"enabled"`
	BufferSize int  `mapstructure:"buffer_size"`
	DropIfFull bool `mapstructure:"drop_if_full"`
}

type Metrics struct {
	Enabled           bool `mapstructure:"enabled"`
	LatencyHistograms bool `mapstructure:"latency_histograms"`
}

type Redis struct {
	Addr     string `mapstructure:"addr"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type Database struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// Load reads path when non-empty, then applies STEPUP_* overrides. Keys
// nest with underscores: replay.window is STEPUP_REPLAY_WINDOW.
func Load(path string) (*File, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("configfile: read %s: %w", path, err)
		}
	}
	return decode(v)
}

// LoadBytes reads configuration of configType ("yaml", "json", "toml")
// from memory, then applies STEPUP_* overrides.
func LoadBytes(configType string, data []byte) (*File, error) {
	if strings.TrimSpace(configType) == "" {
		return nil, errors.New("configfile: config type is required")
	}
	v := newViper()
	v.SetConfigType(configType)
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("configfile: parse: %w", err)
	}
	return decode(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, goStepUp.DefaultConfig())
	return v
}

// setDefaults registers every scalar key so that AutomaticEnv can see it.
// Window tables are filled after decoding; viper would merge default and
// file entries key by key.
func setDefaults(v *viper.Viper, cfg goStepUp.Config) {
	defaults := map[string]any{
		"challenge.algorithm":  cfg.Challenge.Algorithm,
		"challenge.salt":       cfg.Challenge.Salt,
		"challenge.max_length": cfg.Challenge.MaxLength,
		"challenge.decimal":    cfg.Challenge.Decimal,
		"challenge.digits":     cfg.Challenge.Digits,

		"totp.issuer":    cfg.TOTP.Issuer,
		"totp.digits":    cfg.TOTP.Digits,
		"totp.period":    cfg.TOTP.Period,
		"totp.skew":      cfg.TOTP.Skew,
		"totp.algorithm": cfg.TOTP.Algorithm,

		"restrictor.enabled":      cfg.Restrictor.Enabled,
		"restrictor.backend":      string(cfg.Restrictor.Backend),
		"restrictor.redis_prefix": cfg.Restrictor.RedisPrefix,
		"restrictor.sql_dialect":  string(cfg.Restrictor.SQLDialect),

		"replay.enabled":         cfg.Replay.Enabled,
		"replay.backend":         string(cfg.Replay.Backend),
		"replay.redis_prefix":    cfg.Replay.RedisPrefix,
		"replay.window":          cfg.Replay.Window,
		"replay.max_future_skew": cfg.Replay.MaxFutureSkew,
		"replay.prune_threshold": cfg.Replay.PruneThreshold,

		"request_object.enabled":        cfg.RequestObject.Enabled,
		"request_object.signing_method": cfg.RequestObject.SigningMethod,
		"request_object.private_key":    "",
		"request_object.public_key":     "",
		"request_object.key_id":         "",
		"request_object.issuer":         "",
		"request_object.audience":       "",
		"request_object.leeway":         cfg.RequestObject.Leeway,

		"encryption.encrypt_name":   false,
		"encryption.encrypt_target": false,
		"encryption.encrypt_key":    false,
		"encryption.secret":         "",
		"encryption.digest":         cfg.Encryption.Digest,
		"encryption.cipher":         cfg.Encryption.Cipher,

		"storage.backend":      string(cfg.Storage.Backend),
		"storage.redis_prefix": cfg.Storage.RedisPrefix,
		"storage.sql_dialect":  string(cfg.Storage.SQLDialect),

		"audit.enabled":      cfg.Audit.Enabled,
		"audit.buffer_size":  cfg.Audit.BufferSize,
		"audit.drop_if_full": cfg.Audit.DropIfFull,

		"metrics.enabled":            cfg.Metrics.Enabled,
		"metrics.latency_histograms": cfg.Metrics.EnableLatencyHistograms,

		"redis.addr":                 "",
		"redis.username":             "",
		"redis.password":             "",
		"redis.db":                   0,
		"database.dsn":               "",
		"database.max_open_conns":    0,
		"database.max_idle_conns":    0,
		"database.conn_max_lifetime": time.Duration(0),
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}

func decode(v *viper.Viper) (*File, error) {
	var f File
	if err := v.Unmarshal(&f); err != nil {
		return nil, fmt.Errorf("configfile: decode: %w", err)
	}
	def := goStepUp.DefaultConfig()
	if f.Restrictor.Total == nil {
		f.Restrictor.Total = def.Restrictor.Total
	}
	if f.Restrictor.Failures == nil {
		f.Restrictor.Failures = def.Restrictor.Failures
	}
	return &f, nil
}

// Config converts f into an engine configuration and validates it.
func (f *File) Config() (goStepUp.Config, error) {
	secret, err := decodeSecret(f.Encryption.Secret)
	if err != nil {
		return goStepUp.Config{}, fmt.Errorf("configfile: encryption.secret: %w", err)
	}
	privateKey, err := decodeSecret(f.RequestObject.PrivateKey)
	if err != nil {
		return goStepUp.Config{}, fmt.Errorf("configfile: request_object.private_key: %w", err)
	}
	publicKey, err := decodeSecret(f.RequestObject.PublicKey)
	if err != nil {
		return goStepUp.Config{}, fmt.Errorf("configfile: request_object.public_key: %w", err)
	}
	var verifyKeys map[string][]byte
	if len(f.RequestObject.VerifyKeys) > 0 {
		verifyKeys = make(map[string][]byte, len(f.RequestObject.VerifyKeys))
		for kid, key := range f.RequestObject.VerifyKeys {
			raw, err := decodeSecret(key)
			if err != nil {
				return goStepUp.Config{}, fmt.Errorf("configfile: request_object.verify_keys.%s: %w", kid, err)
			}
			verifyKeys[kid] = raw
		}
	}

	cfg := goStepUp.Config{
		Challenge: goStepUp.ChallengeConfig{
			Algorithm: f.Challenge.Algorithm,
			Salt:      f.Challenge.Salt,
			MaxLength: f.Challenge.MaxLength,
			Decimal:   f.Challenge.Decimal,
			Digits:    f.Challenge.Digits,
		},
		TOTP: goStepUp.TOTPConfig{
			Issuer:    f.TOTP.Issuer,
			Digits:    f.TOTP.Digits,
			Period:    f.TOTP.Period,
			Skew:      f.TOTP.Skew,
			Algorithm: f.TOTP.Algorithm,
		},
		Restrictor: goStepUp.RestrictorConfig{
			Enabled:     f.Restrictor.Enabled,
			Backend:     goStepUp.Backend(f.Restrictor.Backend),
			RedisPrefix: f.Restrictor.RedisPrefix,
			SQLDialect:  goStepUp.SQLDialect(f.Restrictor.SQLDialect),
			Total:       f.Restrictor.Total,
			Failures:    f.Restrictor.Failures,
		},
		Replay: goStepUp.ReplayConfig{
			Enabled:        f.Replay.Enabled,
			Backend:        goStepUp.Backend(f.Replay.Backend),
			RedisPrefix:    f.Replay.RedisPrefix,
			Window:         f.Replay.Window,
			MaxFutureSkew:  f.Replay.MaxFutureSkew,
			PruneThreshold: f.Replay.PruneThreshold,
		},
		RequestObject: goStepUp.RequestObjectConfig{
			Enabled:       f.RequestObject.Enabled,
			SigningMethod: f.RequestObject.SigningMethod,
			PrivateKey:    privateKey,
			PublicKey:     publicKey,
			VerifyKeys:    verifyKeys,
			KeyID:         f.RequestObject.KeyID,
			Issuer:        f.RequestObject.Issuer,
			Audience:      f.RequestObject.Audience,
			Leeway:        f.RequestObject.Leeway,
		},
		Encryption: goStepUp.EncryptionConfig{
			EncryptName:   f.Encryption.EncryptName,
			EncryptTarget: f.Encryption.EncryptTarget,
			EncryptKey:    f.Encryption.EncryptKey,
			Secret:        secret,
			Digest:        f.Encryption.Digest,
			Cipher:        f.Encryption.Cipher,
		},
		Storage: goStepUp.StorageConfig{
			Backend:     goStepUp.Backend(f.Storage.Backend),
			RedisPrefix: f.Storage.RedisPrefix,
			SQLDialect:  goStepUp.SQLDialect(f.Storage.SQLDialect),
			Statements: goStepUp.SQLStatements{
				Insert: f.Storage.Statements.Insert,
				Update: f.Storage.Statements.Update,
				Delete: f.Storage.Statements.Delete,
				Select: f.Storage.Statements.Select,
			},
		},
		Audit: goStepUp.AuditConfig{
			Enabled:    f.Audit.Enabled,
			BufferSize: f.Audit.BufferSize,
			DropIfFull: f.Audit.DropIfFull,
		},
		Metrics: goStepUp.MetricsConfig{
			Enabled:                 f.Metrics.Enabled,
			EnableLatencyHistograms: f.Metrics.LatencyHistograms,
		},
	}
	if err := cfg.Validate(); err != nil {
		return goStepUp.Config{}, err
	}
	return cfg, nil
}

// RedisOptions returns nil when no address is configured.
func (f *File) RedisOptions() *redis.Options {
	if f.Redis.Addr == "" {
		return nil
	}
	return &redis.Options{
		Addr:     f.Redis.Addr,
		Username: f.Redis.Username,
		Password: f.Redis.Password,
		DB:       f.Redis.DB,
	}
}

// OpenDatabase opens the configured PostgreSQL pool. It returns nil, nil
// when no DSN is set.
func (f *File) OpenDatabase(ctx context.Context) (*sql.DB, error) {
	if f.Database.DSN == "" {
		return nil, nil
	}
	return storage.OpenPostgres(ctx, f.Database.DSN, f.PoolConfig())
}

func (f *File) PoolConfig() storage.PoolConfig {
	return storage.PoolConfig{
		MaxOpenConns:    f.Database.MaxOpenConns,
		MaxIdleConns:    f.Database.MaxIdleConns,
		ConnMaxLifetime: f.Database.ConnMaxLifetime,
	}
}

func decodeSecret(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	if rest, ok := strings.CutPrefix(s, "base64:"); ok {
		return base64.StdEncoding.DecodeString(rest)
	}
	return []byte(s), nil
}
