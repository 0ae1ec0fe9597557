// Package storage persists step-up accounts under a lookup key, scoped by
// account type so that methods sharing a claim never see each other's
// accounts.
//
// Implementations encrypt the name, target and lookup key independently
// according to [Encryption]. Encryption happens only here: records passed in
// and returned always hold plaintext.
package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/MrEthical07/goStepUp/fieldcrypt"
)

var (
	// ErrNotFound is returned when an update or remove matches no account.
	ErrNotFound = errors.New("storage: account not found")
	// ErrConflict is returned when the backend rejects a duplicate.
	ErrConflict = errors.New("storage: account conflict")
	// ErrUnavailable wraps backend failures.
	ErrUnavailable = errors.New("storage: backend unavailable")
	// ErrKeyRequired is returned for an empty lookup key.
	ErrKeyRequired = errors.New("storage: key required")
	// ErrAccountTypeRequired is returned for an empty account type.
	ErrAccountTypeRequired = errors.New("storage: account type required")
	// ErrNotPersisted is returned when updating or removing a record without an id.
	ErrNotPersisted = errors.New("storage: account not persisted")
	// ErrNotConfigured is returned when a field is marked encrypted but no cipher is set.
	ErrNotConfigured = errors.New("storage: encryption enabled without cipher")
)

// UnsetID marks a record that has not been persisted.
const UnsetID int64 = -1

// Record is the persisted form of an account.
type Record struct {
	ID       int64
	Name     string
	Target   string
	Enabled  bool
	Editable bool
}

// Storage is the persistence contract for accounts. Every call is scoped by
// (key, accountType); equal keys under different types are unrelated.
type Storage interface {
	// Add stores rec under key and returns it with its assigned id.
	Add(ctx context.Context, key, accountType string, rec Record) (Record, error)
	// Update overwrites the stored account with rec.ID.
	Update(ctx context.Context, key, accountType string, rec Record) error
	// Remove deletes the stored account with rec.ID.
	Remove(ctx context.Context, key, accountType string, rec Record) error
	// GetAccounts returns every account under key ordered by id.
	GetAccounts(ctx context.Context, key, accountType string) ([]Record, error)
	// GetAccount returns the lowest-id account under key, or nil.
	GetAccount(ctx context.Context, key, accountType string) (*Record, error)
}

// FieldCipher seals individual field values.
type FieldCipher interface {
	Encrypt(field fieldcrypt.Field, plaintext string) (string, error)
	EncryptDeterministic(field fieldcrypt.Field, plaintext string) (string, error)
	Decrypt(field fieldcrypt.Field, ciphertext string) (string, error)
}

// Encryption toggles per-field encryption.
type Encryption struct {
	Name   bool
	Target bool
	Key    bool
	Cipher FieldCipher
}

// Enabled reports whether any field is encrypted.
func (e Encryption) Enabled() bool {
	return e.Name || e.Target || e.Key
}

type codec struct {
	enc Encryption
}

func newCodec(enc Encryption) (codec, error) {
	if enc.Enabled() && enc.Cipher == nil {
		return codec{}, ErrNotConfigured
	}
	return codec{enc: enc}, nil
}

func (c codec) sealKey(key, accountType string) (string, error) {
	if key == "" {
		return "", ErrKeyRequired
	}
	if accountType == "" {
		return "", ErrAccountTypeRequired
	}
	if !c.enc.Key {
		return key, nil
	}
	sealed, err := c.enc.Cipher.EncryptDeterministic(fieldcrypt.FieldKey, key)
	if err != nil {
		return "", fmt.Errorf("seal key: %w", err)
	}
	return sealed, nil
}

func (c codec) seal(rec Record) (Record, error) {
	var err error
	if c.enc.Name {
		if rec.Name, err = c.enc.Cipher.Encrypt(fieldcrypt.FieldName, rec.Name); err != nil {
			return Record{}, fmt.Errorf("seal name: %w", err)
		}
	}
	if c.enc.Target {
		if rec.Target, err = c.enc.Cipher.Encrypt(fieldcrypt.FieldTarget, rec.Target); err != nil {
			return Record{}, fmt.Errorf("seal target: %w", err)
		}
	}
	return rec, nil
}

func (c codec) open(rec Record) (Record, error) {
	var err error
	if c.enc.Name {
		if rec.Name, err = c.enc.Cipher.Decrypt(fieldcrypt.FieldName, rec.Name); err != nil {
			return Record{}, fmt.Errorf("open name: %w", err)
		}
	}
	if c.enc.Target {
		if rec.Target, err = c.enc.Cipher.Decrypt(fieldcrypt.FieldTarget, rec.Target); err != nil {
			return Record{}, fmt.Errorf("open target: %w", err)
		}
	}
	return rec, nil
}

func sortByID(recs []Record) {
	sort.Slice(recs, func(i, j int) bool { return recs[i].ID < recs[j].ID })
}

func first(recs []Record) *Record {
	if len(recs) == 0 {
		return nil
	}
	rec := recs[0]
	return &rec
}
