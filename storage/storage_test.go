package storage

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MrEthical07/goStepUp/fieldcrypt"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
	_ "modernc.org/sqlite"
)

func testEncryption(t *testing.T) Encryption {
	t.Helper()
	enc, err := fieldcrypt.New(fieldcrypt.Config{Secret: []byte("0123456789abcdef0123456789abcdef")})
	require.NoError(t, err)
	return Encryption{Name: true, Target: true, Key: true, Cipher: enc}
}

func newSQLiteStorage(t *testing.T, enc Encryption) (*SQLStorage, *sql.DB) {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "accounts.db"))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(SQLiteSchema)
	require.NoError(t, err)

	s, err := NewSQLStorage(db, SQLiteStatements(), enc, WithTracerProvider(noop.NewTracerProvider()))
	require.NoError(t, err)
	return s, db
}

func newRedisStorage(t *testing.T, enc Encryption) (*RedisStorage, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	s, err := NewRedisStorage(client, "test", enc)
	require.NoError(t, err)
	return s, mr
}

func backends(t *testing.T, enc Encryption) map[string]Storage {
	mem, err := NewMemoryStorage(enc)
	require.NoError(t, err)
	sqlStore, _ := newSQLiteStorage(t, enc)
	redisStore, _ := newRedisStorage(t, enc)
	return map[string]Storage{
		"memory": mem,
		"sqlite": sqlStore,
		"redis":  redisStore,
	}
}

func TestRoundTripWithEncryption(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t, testEncryption(t)) {
		t.Run(name, func(t *testing.T) {
			added, err := s.Add(ctx, "alice", "email", Record{ID: UnsetID, Name: "work mail", Target: "alice@example.org", Enabled: true, Editable: true})
			require.NoError(t, err)
			assert.GreaterOrEqual(t, added.ID, int64(0))

			recs, err := s.GetAccounts(ctx, "alice", "email")
			require.NoError(t, err)
			require.Len(t, recs, 1)
			assert.Equal(t, added, recs[0])

			added.Name = "personal"
			added.Target = "alice@home.example"
			added.Enabled = false
			require.NoError(t, s.Update(ctx, "alice", "email", added))

			got, err := s.GetAccount(ctx, "alice", "email")
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, "personal", got.Name)
			assert.Equal(t, "alice@home.example", got.Target)
			assert.False(t, got.Enabled)
			assert.True(t, got.Editable)

			require.NoError(t, s.Remove(ctx, "alice", "email", added))
			recs, err = s.GetAccounts(ctx, "alice", "email")
			require.NoError(t, err)
			assert.Empty(t, recs)

			got, err = s.GetAccount(ctx, "alice", "email")
			require.NoError(t, err)
			assert.Nil(t, got)
		})
	}
}

func TestMissingAccountErrors(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t, Encryption{}) {
		t.Run(name, func(t *testing.T) {
			err := s.Update(ctx, "nobody", "email", Record{ID: 7})
			assert.ErrorIs(t, err, ErrNotFound)

			err = s.Remove(ctx, "nobody", "email", Record{ID: 7})
			assert.ErrorIs(t, err, ErrNotFound)

			err = s.Update(ctx, "nobody", "email", Record{ID: UnsetID})
			assert.ErrorIs(t, err, ErrNotPersisted)

			_, err = s.Add(ctx, "", "email", Record{})
			assert.ErrorIs(t, err, ErrKeyRequired)

			_, err = s.GetAccounts(ctx, "nobody", "")
			assert.ErrorIs(t, err, ErrAccountTypeRequired)
		})
	}
}

func TestRelationalKeepsMultipleAccountsOrdered(t *testing.T) {
	ctx := context.Background()
	mem, err := NewMemoryStorage(Encryption{})
	require.NoError(t, err)
	sqlStore, _ := newSQLiteStorage(t, Encryption{})

	for name, s := range map[string]Storage{"memory": mem, "sqlite": sqlStore} {
		t.Run(name, func(t *testing.T) {
			a, err := s.Add(ctx, "bob", "email", Record{Name: "first"})
			require.NoError(t, err)
			b, err := s.Add(ctx, "bob", "email", Record{Name: "second"})
			require.NoError(t, err)
			require.Less(t, a.ID, b.ID)

			recs, err := s.GetAccounts(ctx, "bob", "email")
			require.NoError(t, err)
			require.Len(t, recs, 2)
			assert.Equal(t, "first", recs[0].Name)
			assert.Equal(t, "second", recs[1].Name)

			got, err := s.GetAccount(ctx, "bob", "email")
			require.NoError(t, err)
			assert.Equal(t, a.ID, got.ID)
		})
	}
}

func TestAccountTypesAreIsolated(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t, testEncryption(t)) {
		t.Run(name, func(t *testing.T) {
			mail, err := s.Add(ctx, "frank", "email", Record{Name: "mail", Target: "frank@example.org", Enabled: true})
			require.NoError(t, err)
			phone, err := s.Add(ctx, "frank", "sms", Record{Name: "phone", Target: "+15550101", Enabled: true})
			require.NoError(t, err)

			recs, err := s.GetAccounts(ctx, "frank", "sms")
			require.NoError(t, err)
			require.Len(t, recs, 1)
			assert.Equal(t, "+15550101", recs[0].Target)

			require.NoError(t, s.Remove(ctx, "frank", "sms", phone))
			got, err := s.GetAccount(ctx, "frank", "email")
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, mail, *got)

			recs, err = s.GetAccounts(ctx, "frank", "totp")
			require.NoError(t, err)
			assert.Empty(t, recs)
		})
	}
}

func TestRedisLastWriterWins(t *testing.T) {
	ctx := context.Background()
	s, _ := newRedisStorage(t, Encryption{})

	_, err := s.Add(ctx, "carol", "email", Record{Name: "one", Enabled: true})
	require.NoError(t, err)
	_, err = s.Add(ctx, "carol", "email", Record{Name: "two"})
	require.NoError(t, err)

	recs, err := s.GetAccounts(ctx, "carol", "email")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, int64(0), recs[0].ID)
	assert.Equal(t, "two", recs[0].Name)
	assert.False(t, recs[0].Enabled)
}

func TestEncryptedFieldsAtRest(t *testing.T) {
	ctx := context.Background()
	enc := testEncryption(t)

	sqlStore, db := newSQLiteStorage(t, enc)
	_, err := sqlStore.Add(ctx, "dave", "email", Record{Name: "phone", Target: "+15550100"})
	require.NoError(t, err)

	var rawKey, rawName, rawTarget string
	require.NoError(t, db.QueryRow(`SELECT account_key, name, target FROM stepup_accounts`).Scan(&rawKey, &rawName, &rawTarget))
	assert.NotEqual(t, "dave", rawKey)
	assert.NotEqual(t, "phone", rawName)
	assert.NotEqual(t, "+15550100", rawTarget)

	redisStore, mr := newRedisStorage(t, enc)
	_, err = redisStore.Add(ctx, "dave", "email", Record{Name: "phone", Target: "+15550100"})
	require.NoError(t, err)
	keys := mr.Keys()
	require.Len(t, keys, 1)
	assert.False(t, strings.Contains(keys[0], "dave"))
	blob, err := mr.Get(keys[0])
	require.NoError(t, err)
	assert.False(t, strings.Contains(blob, "+15550100"))
}

func TestPartialEncryptionLeavesOtherFieldsPlain(t *testing.T) {
	ctx := context.Background()
	enc := testEncryption(t)
	enc.Name = false
	enc.Key = false

	s, db := newSQLiteStorage(t, enc)
	_, err := s.Add(ctx, "erin", "email", Record{Name: "desk", Target: "erin@example.org"})
	require.NoError(t, err)

	var rawKey, rawName, rawTarget string
	require.NoError(t, db.QueryRow(`SELECT account_key, name, target FROM stepup_accounts`).Scan(&rawKey, &rawName, &rawTarget))
	assert.Equal(t, "erin", rawKey)
	assert.Equal(t, "desk", rawName)
	assert.NotEqual(t, "erin@example.org", rawTarget)
}

func TestEncryptionWithoutCipher(t *testing.T) {
	_, err := NewMemoryStorage(Encryption{Target: true})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestBlobRejectsUnknownVersion(t *testing.T) {
	blob, err := encodeBlob(Record{Name: "x", Target: "y", Enabled: true})
	require.NoError(t, err)

	rec, err := decodeBlob(blob)
	require.NoError(t, err)
	assert.Equal(t, Record{Name: "x", Target: "y", Enabled: true}, rec)

	blob[0] = 9
	_, err = decodeBlob(blob)
	assert.ErrorIs(t, err, errBlobVersion)
}

func TestSQLStorageRequiresStatements(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "x.db"))
	require.NoError(t, err)
	defer db.Close()

	_, err = NewSQLStorage(db, SQLStatements{Insert: "x"}, Encryption{})
	assert.Error(t, err)
}
