package restrictor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SQLStatements are the statements used by SQLStore. Parameters are
// positional:
//
//	Insert: (account_key, event_type, occurred_at_ms)
//	Count:  (account_key, event_type, since_ms) -> count
//	Prune:  (account_key, before_ms)
//	Lock:   (account_key), optional, executed first inside AppendWithin
type SQLStatements struct {
	Insert string
	Count  string
	Prune  string
	Lock   string
}

// PostgresStatements targets the stepup_events table with an advisory
// transaction lock per account key.
func PostgresStatements() SQLStatements {
	return SQLStatements{
		Insert: `INSERT INTO stepup_events (account_key, event_type, occurred_at) VALUES ($1, $2, $3)`,
		Count:  `SELECT COUNT(*) FROM stepup_events WHERE account_key = $1 AND event_type = $2 AND occurred_at >= $3`,
		Prune:  `DELETE FROM stepup_events WHERE account_key = $1 AND occurred_at < $2`,
		Lock:   `SELECT pg_advisory_xact_lock(hashtext($1)::bigint)`,
	}
}

// SQLiteStatements targets the same schema with ? placeholders. SQLite
// serialises writers, so no lock statement is needed.
func SQLiteStatements() SQLStatements {
	return SQLStatements{
		Insert: `INSERT INTO stepup_events (account_key, event_type, occurred_at) VALUES (?, ?, ?)`,
		Count:  `SELECT COUNT(*) FROM stepup_events WHERE account_key = ? AND event_type = ? AND occurred_at >= ?`,
		Prune:  `DELETE FROM stepup_events WHERE account_key = ? AND occurred_at < ?`,
	}
}

// EventsSchema creates the events table. It is valid for both PostgreSQL and SQLite.
const EventsSchema = `CREATE TABLE IF NOT EXISTS stepup_events (
	account_key TEXT NOT NULL,
	event_type SMALLINT NOT NULL,
	occurred_at BIGINT NOT NULL
)`

// SQLStore persists events through database/sql.
type SQLStore struct {
	db    *sql.DB
	stmts SQLStatements
}

// NewSQLStore returns a store using stmts against db.
func NewSQLStore(db *sql.DB, stmts SQLStatements) (*SQLStore, error) {
	if db == nil {
		return nil, errors.New("restrictor: sql db required")
	}
	if stmts.Insert == "" || stmts.Count == "" || stmts.Prune == "" {
		return nil, errors.New("restrictor: insert, count and prune statements required")
	}
	return &SQLStore{db: db, stmts: stmts}, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLStore) Count(ctx context.Context, key string, since time.Time, types ...EventType) (int, error) {
	return s.count(ctx, s.db, key, since, types)
}

func (s *SQLStore) count(ctx context.Context, q queryer, key string, since time.Time, types []EventType) (int, error) {
	if len(types) == 0 {
		types = AllEventTypes
	}
	total := 0
	for _, t := range types {
		var n int
		if err := q.QueryRowContext(ctx, s.stmts.Count, key, int(t), since.UnixMilli()).Scan(&n); err != nil {
			return 0, fmt.Errorf("count events: %w", err)
		}
		total += n
	}
	return total, nil
}

func (s *SQLStore) Append(ctx context.Context, ev Event) error {
	if _, err := s.db.ExecContext(ctx, s.stmts.Insert, ev.Key, int(ev.Type), ev.At.UnixMilli()); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// AppendWithin runs lock, counts and insert in one transaction.
func (s *SQLStore) AppendWithin(ctx context.Context, ev Event, rules []Rule) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return -1, fmt.Errorf("begin event tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if s.stmts.Lock != "" {
		if _, err := tx.ExecContext(ctx, s.stmts.Lock, ev.Key); err != nil {
			return -1, fmt.Errorf("acquire event lock: %w", err)
		}
	}

	for i, rule := range rules {
		n, err := s.count(ctx, tx, ev.Key, ev.At.Add(-rule.Policy.Window), rule.Types)
		if err != nil {
			return -1, err
		}
		if n >= rule.Policy.Max {
			return i, nil
		}
	}

	if _, err := tx.ExecContext(ctx, s.stmts.Insert, ev.Key, int(ev.Type), ev.At.UnixMilli()); err != nil {
		return -1, fmt.Errorf("insert event: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return -1, fmt.Errorf("commit event tx: %w", err)
	}
	return -1, nil
}

func (s *SQLStore) Prune(ctx context.Context, key string, before time.Time) error {
	if _, err := s.db.ExecContext(ctx, s.stmts.Prune, key, before.UnixMilli()); err != nil {
		return fmt.Errorf("prune events: %w", err)
	}
	return nil
}
