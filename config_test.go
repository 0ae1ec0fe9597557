package goStepUp

import (
	"slices"
	"testing"
	"time"
)

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{
			name:      "challenge length zero",
			mutate:    func(c *Config) { c.Challenge.MaxLength = 0 },
			wantValid: false,
		},
		{
			name:      "challenge digest unknown",
			mutate:    func(c *Config) { c.Challenge.Algorithm = "MD4" },
			wantValid: false,
		},
		{
			name:      "challenge digest alias",
			mutate:    func(c *Config) { c.Challenge.Algorithm = "sha512" },
			wantValid: true,
		},
		{
			name:      "sms digits too short",
			mutate:    func(c *Config) { c.Challenge.Digits = 4 },
			wantValid: false,
		},
		{
			name:      "totp digits invalid",
			mutate:    func(c *Config) { c.TOTP.Digits = 7 },
			wantValid: false,
		},
		{
			name:      "totp algorithm invalid",
			mutate:    func(c *Config) { c.TOTP.Algorithm = "MD5" },
			wantValid: false,
		},
		{
			name:      "restrictor backend invalid",
			mutate:    func(c *Config) { c.Restrictor.Backend = "etcd" },
			wantValid: false,
		},
		{
			name:      "restrictor window not numeric",
			mutate:    func(c *Config) { c.Restrictor.Failures = map[string]int{"5m": 3} },
			wantValid: false,
		},
		{
			name:      "restrictor cap zero",
			mutate:    func(c *Config) { c.Restrictor.Total = map[string]int{"60000": 0} },
			wantValid: false,
		},
		{
			name: "restrictor disabled ignores tables",
			mutate: func(c *Config) {
				c.Restrictor.Enabled = false
				c.Restrictor.Total = map[string]int{"x": 0}
			},
			wantValid: true,
		},
		{
			name:      "replay sql backend invalid",
			mutate:    func(c *Config) { c.Replay.Backend = BackendSQL },
			wantValid: false,
		},
		{
			name:      "replay future skew beyond window",
			mutate:    func(c *Config) { c.Replay.MaxFutureSkew = 10 * time.Minute },
			wantValid: false,
		},
		{
			name: "request objects require replay",
			mutate: func(c *Config) {
				c.RequestObject.Enabled = true
				c.RequestObject.SigningMethod = "hs256"
				c.RequestObject.PrivateKey = []byte("secret")
				c.Replay.Enabled = false
			},
			wantValid: false,
		},
		{
			name: "request objects ed25519 need key",
			mutate: func(c *Config) {
				c.RequestObject.Enabled = true
			},
			wantValid: false,
		},
		{
			name: "encryption secret short",
			mutate: func(c *Config) {
				c.Encryption.EncryptTarget = true
				c.Encryption.Secret = []byte("short")
			},
			wantValid: false,
		},
		{
			name: "encryption cipher unknown",
			mutate: func(c *Config) {
				c.Encryption.EncryptName = true
				c.Encryption.Secret = []byte("0123456789abcdef")
				c.Encryption.Cipher = "DES"
			},
			wantValid: false,
		},
		{
			name: "storage statements partial",
			mutate: func(c *Config) {
				c.Storage.Backend = BackendSQL
				c.Storage.Statements = SQLStatements{Insert: "INSERT"}
			},
			wantValid: false,
		},
		{
			name: "storage sqlite",
			mutate: func(c *Config) {
				c.Storage.Backend = BackendSQL
				c.Storage.SQLDialect = DialectSQLite
			},
			wantValid: true,
		},
		{
			name: "audit buffer zero",
			mutate: func(c *Config) {
				c.Audit.Enabled = true
				c.Audit.BufferSize = 0
			},
			wantValid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantValid && err != nil {
				t.Fatalf("expected valid, got %v", err)
			}
			if !tt.wantValid && err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestCloneConfigIsDeep(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Encryption.Secret = []byte("0123456789abcdef")
	clone := cloneConfig(cfg)

	clone.Restrictor.Total["1000"] = 1
	clone.Encryption.Secret[0] = 'x'
	if _, ok := cfg.Restrictor.Total["1000"]; ok {
		t.Fatal("restrictor table shared with clone")
	}
	if cfg.Encryption.Secret[0] != '0' {
		t.Fatal("secret shared with clone")
	}
}

func TestEngineConfigIsCopy(t *testing.T) {
	te := newTestEngine(t, testConfig())
	cfg := te.Config()
	cfg.Restrictor.Failures["1"] = 1

	if _, ok := te.Config().Restrictor.Failures["1"]; ok {
		t.Fatal("Config must return a copy")
	}
}

func TestLintDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	codes := cfg.Lint().Codes()
	for _, unwanted := range []string{"restrictor_disabled", "failure_limit_missing", "challenge_short"} {
		if slices.Contains(codes, unwanted) {
			t.Errorf("default config should not produce %q", unwanted)
		}
	}
	if len(cfg.Lint().BySeverity(LintHigh)) != 0 {
		t.Error("default config should have no high severity warnings")
	}
}

func TestLintFlagsWeakSettings(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Restrictor.Failures = map[string]int{"60000": 50}
	cfg.TOTP.Skew = 3
	cfg.Storage.Backend = BackendRedis
	codes := cfg.Lint().Codes()

	for _, want := range []string{"failure_limit_high", "totp_skew_large", "target_unencrypted"} {
		if !slices.Contains(codes, want) {
			t.Errorf("expected %q in %v", want, codes)
		}
	}

	cfg.Restrictor.Enabled = false
	if !slices.Contains(cfg.Lint().Codes(), "restrictor_disabled") {
		t.Error("expected restrictor_disabled")
	}
}
