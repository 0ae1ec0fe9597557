package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/MrEthical07/goStepUp/storage"

// SQLStatements are supplied by configuration. Parameters are positional:
//
//	Insert: (name, enabled, editable, target, key, type) returning id
//	Update: (name, enabled, editable, target, key, type, id)
//	Delete: (key, type, id)
//	Select: (key, type) -> id, name, enabled, editable, target
type SQLStatements struct {
	Insert string
	Update string
	Delete string
	Select string
}

// PostgresStatements targets the stepup_accounts table.
func PostgresStatements() SQLStatements {
	return SQLStatements{
		Insert: `INSERT INTO stepup_accounts (name, enabled, editable, target, account_key, account_type) VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		Update: `UPDATE stepup_accounts SET name = $1, enabled = $2, editable = $3, target = $4 WHERE account_key = $5 AND account_type = $6 AND id = $7`,
		Delete: `DELETE FROM stepup_accounts WHERE account_key = $1 AND account_type = $2 AND id = $3`,
		Select: `SELECT id, name, enabled, editable, target FROM stepup_accounts WHERE account_key = $1 AND account_type = $2 ORDER BY id`,
	}
}

// SQLiteStatements targets the same table with ? placeholders.
func SQLiteStatements() SQLStatements {
	return SQLStatements{
		Insert: `INSERT INTO stepup_accounts (name, enabled, editable, target, account_key, account_type) VALUES (?, ?, ?, ?, ?, ?) RETURNING id`,
		Update: `UPDATE stepup_accounts SET name = ?, enabled = ?, editable = ?, target = ? WHERE account_key = ? AND account_type = ? AND id = ?`,
		Delete: `DELETE FROM stepup_accounts WHERE account_key = ? AND account_type = ? AND id = ?`,
		Select: `SELECT id, name, enabled, editable, target FROM stepup_accounts WHERE account_key = ? AND account_type = ? ORDER BY id`,
	}
}

const (
	// PostgresSchema creates the accounts table on PostgreSQL.
	PostgresSchema = `CREATE TABLE IF NOT EXISTS stepup_accounts (
	id BIGSERIAL PRIMARY KEY,
	account_key TEXT NOT NULL,
	account_type TEXT NOT NULL,
	name TEXT NOT NULL DEFAULT '',
	target TEXT NOT NULL DEFAULT '',
	enabled BOOLEAN NOT NULL DEFAULT TRUE,
	editable BOOLEAN NOT NULL DEFAULT TRUE
)`
	// SQLiteSchema creates the accounts table on SQLite.
	SQLiteSchema = `CREATE TABLE IF NOT EXISTS stepup_accounts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	account_key TEXT NOT NULL,
	account_type TEXT NOT NULL,
	name TEXT NOT NULL DEFAULT '',
	target TEXT NOT NULL DEFAULT '',
	enabled BOOLEAN NOT NULL DEFAULT TRUE,
	editable BOOLEAN NOT NULL DEFAULT TRUE
)`
)

// SQLStorage stores one row per account.
type SQLStorage struct {
	db     *sql.DB
	stmts  SQLStatements
	codec  codec
	tracer trace.Tracer
}

// SQLOption customises an SQLStorage.
type SQLOption func(*SQLStorage)

// WithTracerProvider replaces the global tracer provider.
func WithTracerProvider(tp trace.TracerProvider) SQLOption {
	return func(s *SQLStorage) {
		if tp != nil {
			s.tracer = tp.Tracer(tracerName)
		}
	}
}

// NewSQLStorage validates stmts and enc.
func NewSQLStorage(db *sql.DB, stmts SQLStatements, enc Encryption, opts ...SQLOption) (*SQLStorage, error) {
	if db == nil {
		return nil, errors.New("storage: sql db required")
	}
	if stmts.Insert == "" || stmts.Update == "" || stmts.Delete == "" || stmts.Select == "" {
		return nil, errors.New("storage: insert, update, delete and select statements required")
	}
	c, err := newCodec(enc)
	if err != nil {
		return nil, err
	}
	s := &SQLStorage{db: db, stmts: stmts, codec: c, tracer: otel.Tracer(tracerName)}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *SQLStorage) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name)
}

func (s *SQLStorage) endSpan(span trace.Span, err error) {
	if err != nil && !errors.Is(err, ErrNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (s *SQLStorage) mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrConflict
	}
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
}

func (s *SQLStorage) Add(ctx context.Context, key, accountType string, rec Record) (out Record, err error) {
	ctx, span := s.startSpan(ctx, "Add")
	defer func() { s.endSpan(span, err) }()

	sealedKey, err := s.codec.sealKey(key, accountType)
	if err != nil {
		return Record{}, err
	}
	sealed, err := s.codec.seal(rec)
	if err != nil {
		return Record{}, err
	}

	var id int64
	row := s.db.QueryRowContext(ctx, s.stmts.Insert, sealed.Name, sealed.Enabled, sealed.Editable, sealed.Target, sealedKey, accountType)
	if err = row.Scan(&id); err != nil {
		return Record{}, s.mapError("insert", err)
	}
	rec.ID = id
	return rec, nil
}

func (s *SQLStorage) Update(ctx context.Context, key, accountType string, rec Record) (err error) {
	ctx, span := s.startSpan(ctx, "Update")
	defer func() { s.endSpan(span, err) }()

	if rec.ID < 0 {
		return ErrNotPersisted
	}
	sealedKey, err := s.codec.sealKey(key, accountType)
	if err != nil {
		return err
	}
	sealed, err := s.codec.seal(rec)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, s.stmts.Update, sealed.Name, sealed.Enabled, sealed.Editable, sealed.Target, sealedKey, accountType, rec.ID)
	if err != nil {
		return s.mapError("update", err)
	}
	return s.requireRow(res, "update")
}

func (s *SQLStorage) Remove(ctx context.Context, key, accountType string, rec Record) (err error) {
	ctx, span := s.startSpan(ctx, "Remove")
	defer func() { s.endSpan(span, err) }()

	if rec.ID < 0 {
		return ErrNotPersisted
	}
	sealedKey, err := s.codec.sealKey(key, accountType)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, s.stmts.Delete, sealedKey, accountType, rec.ID)
	if err != nil {
		return s.mapError("delete", err)
	}
	return s.requireRow(res, "delete")
}

func (s *SQLStorage) requireRow(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return s.mapError(op, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStorage) GetAccounts(ctx context.Context, key, accountType string) (out []Record, err error) {
	ctx, span := s.startSpan(ctx, "GetAccounts")
	defer func() { s.endSpan(span, err) }()

	sealedKey, err := s.codec.sealKey(key, accountType)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, s.stmts.Select, sealedKey, accountType)
	if err != nil {
		return nil, s.mapError("select", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rec Record
		if err = rows.Scan(&rec.ID, &rec.Name, &rec.Enabled, &rec.Editable, &rec.Target); err != nil {
			return nil, s.mapError("scan", err)
		}
		if rec, err = s.codec.open(rec); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err = rows.Err(); err != nil {
		return nil, s.mapError("select", err)
	}
	sortByID(out)
	return out, nil
}

func (s *SQLStorage) GetAccount(ctx context.Context, key, accountType string) (*Record, error) {
	recs, err := s.GetAccounts(ctx, key, accountType)
	if err != nil {
		return nil, err
	}
	return first(recs), nil
}
