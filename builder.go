package goStepUp

import (
	"database/sql"
	"errors"
	"log/slog"
	"maps"
	"time"

	"github.com/MrEthical07/goStepUp/clock"
	"github.com/MrEthical07/goStepUp/delivery"
	"github.com/MrEthical07/goStepUp/fieldcrypt"
	internalaudit "github.com/MrEthical07/goStepUp/internal/audit"
	"github.com/MrEthical07/goStepUp/replay"
	"github.com/MrEthical07/goStepUp/requestobject"
	"github.com/MrEthical07/goStepUp/restrictor"
	"github.com/MrEthical07/goStepUp/storage"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an Engine. A Builder can be built once.
type Builder struct {
	config Config
	redis  redis.UniversalClient
	db     *sql.DB
	logger *slog.Logger
	clock  clock.Clock

	store     storage.Storage
	senders   map[string]delivery.Sender
	kinds     []AccountKind
	auditSink AuditSink

	built bool
}

// New returns a Builder holding the default configuration.
func New() *Builder {
	return &Builder{
		config:  defaultConfig(),
		senders: make(map[string]delivery.Sender),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis supplies the client used by every redis backend.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithDB supplies the database used by every sql backend. The engine does
// not create tables; see storage.PostgresSchema and restrictor.EventsSchema.
func (b *Builder) WithDB(db *sql.DB) *Builder {
	b.db = db
	return b
}

func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

func (b *Builder) WithClock(c clock.Clock) *Builder {
	b.clock = c
	return b
}

// WithStorage overrides the configured storage backend.
func (b *Builder) WithStorage(s storage.Storage) *Builder {
	b.store = s
	return b
}

// WithSender registers a built-in kind named kind that delivers through
// sender. The "sms" kind uses numeric codes; others use the digest generator.
func (b *Builder) WithSender(kind string, sender delivery.Sender) *Builder {
	b.senders[kind] = sender
	return b
}

// WithAccountKind registers a custom kind, replacing a built-in of the same name.
func (b *Builder) WithAccountKind(kind AccountKind) *Builder {
	b.kinds = append(b.kinds, kind)
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires every component.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := b.checkBackends(&cfg); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	clk := clock.OrSystem(b.clock)

	engine := &Engine{
		config: cloneConfig(cfg),
		logger: logger,
		clock:  clk,
	}

	// -------- ENCRYPTION --------
	if cfg.Encryption.Enabled() || len(cfg.Encryption.Secret) > 0 {
		enc, err := fieldcrypt.New(cfg.fieldcryptConfig())
		if err != nil {
			return nil, err
		}
		engine.encryptor = enc
	}

	// -------- STORAGE --------
	store, err := b.buildStorage(&cfg, engine.encryptor)
	if err != nil {
		return nil, err
	}
	engine.storage = store

	// -------- RESTRICTOR --------
	if cfg.Restrictor.Enabled {
		r, err := b.buildRestrictor(&cfg, clk, logger)
		if err != nil {
			return nil, err
		}
		engine.restrictor = r
	}

	// -------- REPLAY --------
	if cfg.Replay.Enabled {
		var cache replay.Cache
		switch cfg.Replay.Backend {
		case BackendRedis:
			cache = replay.NewRedisCache(b.redis, cfg.Replay.RedisPrefix, cfg.Replay.Window)
		default:
			cache = replay.NewMemoryCache(cfg.Replay.Window, cfg.Replay.PruneThreshold, clk)
		}
		guard, err := replay.NewGuard(cache, cfg.Replay.Window, cfg.Replay.MaxFutureSkew, clk)
		if err != nil {
			return nil, err
		}
		engine.replay = guard
	}

	if cfg.RequestObject.Enabled {
		v, err := requestobject.NewValidator(cfg.requestObjectConfig(), engine.replay, clk)
		if err != nil {
			return nil, err
		}
		engine.requests = v
	}

	// -------- ACCOUNT KINDS --------
	kinds, err := builtinKinds(&cfg, clk, logger, maps.Clone(b.senders))
	if err != nil {
		return nil, err
	}
	for _, k := range b.kinds {
		if err := k.validate(); err != nil {
			return nil, err
		}
		kinds[k.Name] = k
	}
	engine.kinds = kinds

	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink, clk.Now)
	engine.metrics = NewMetrics(cfg.Metrics)

	b.built = true

	return engine, nil
}

func (b *Builder) checkBackends(cfg *Config) error {
	needRedis := (cfg.Restrictor.Enabled && cfg.Restrictor.Backend == BackendRedis) ||
		(cfg.Replay.Enabled && cfg.Replay.Backend == BackendRedis) ||
		(b.store == nil && cfg.Storage.Backend == BackendRedis)
	if needRedis && b.redis == nil {
		return errors.New("redis backend requires redis client")
	}

	needDB := (cfg.Restrictor.Enabled && cfg.Restrictor.Backend == BackendSQL) ||
		(b.store == nil && cfg.Storage.Backend == BackendSQL)
	if needDB && b.db == nil {
		return errors.New("sql backend requires database")
	}
	return nil
}

func (b *Builder) buildStorage(cfg *Config, enc *fieldcrypt.Encryptor) (storage.Storage, error) {
	if b.store != nil {
		return b.store, nil
	}

	encryption := storage.Encryption{
		Name:   cfg.Encryption.EncryptName,
		Target: cfg.Encryption.EncryptTarget,
		Key:    cfg.Encryption.EncryptKey,
	}
	if enc != nil {
		encryption.Cipher = enc
	}

	switch cfg.Storage.Backend {
	case BackendRedis:
		return storage.NewRedisStorage(b.redis, cfg.Storage.RedisPrefix, encryption)
	case BackendSQL:
		stmts := storage.SQLStatements(cfg.Storage.Statements)
		if cfg.Storage.Statements.empty() {
			stmts = storage.PostgresStatements()
			if cfg.Storage.SQLDialect == DialectSQLite {
				stmts = storage.SQLiteStatements()
			}
		}
		return storage.NewSQLStorage(b.db, stmts, encryption)
	default:
		return storage.NewMemoryStorage(encryption)
	}
}

func (b *Builder) buildRestrictor(cfg *Config, clk clock.Clock, logger *slog.Logger) (*restrictor.Restrictor, error) {
	rc, err := cfg.restrictorConfig()
	if err != nil {
		return nil, err
	}
	rc.Logger = logger

	var store restrictor.EventStore
	switch cfg.Restrictor.Backend {
	case BackendRedis:
		store = restrictor.NewRedisStore(b.redis, cfg.Restrictor.RedisPrefix, retention(rc))
	case BackendSQL:
		stmts := restrictor.PostgresStatements()
		if cfg.Restrictor.SQLDialect == DialectSQLite {
			stmts = restrictor.SQLiteStatements()
		}
		sqlStore, err := restrictor.NewSQLStore(b.db, stmts)
		if err != nil {
			return nil, err
		}
		store = sqlStore
	default:
		store = restrictor.NewMemoryStore()
	}
	return restrictor.New(store, rc, clk)
}

// retention is the largest configured window; older events are never read.
func retention(cfg restrictor.Config) time.Duration {
	var longest time.Duration
	for _, p := range append(cfg.Total, cfg.Failures...) {
		longest = max(longest, p.Window)
	}
	return longest
}
