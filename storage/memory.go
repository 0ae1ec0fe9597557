package storage

import (
	"context"
	"sync"
)

// MemoryStorage keeps sealed records in memory with an id sequence per
// process. It applies the same encryption as the persistent stores.
type MemoryStorage struct {
	codec codec

	mu     sync.RWMutex
	nextID int64
	byKey  map[slot][]Record
}

type slot struct {
	accountType string
	key         string
}

// NewMemoryStorage returns an empty store.
func NewMemoryStorage(enc Encryption) (*MemoryStorage, error) {
	c, err := newCodec(enc)
	if err != nil {
		return nil, err
	}
	return &MemoryStorage{codec: c, byKey: make(map[slot][]Record)}, nil
}

func (s *MemoryStorage) Add(_ context.Context, key, accountType string, rec Record) (Record, error) {
	sk, err := s.slotFor(key, accountType)
	if err != nil {
		return Record{}, err
	}
	sealed, err := s.codec.seal(rec)
	if err != nil {
		return Record{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	sealed.ID = s.nextID
	s.byKey[sk] = append(s.byKey[sk], sealed)

	rec.ID = sealed.ID
	return rec, nil
}

func (s *MemoryStorage) Update(_ context.Context, key, accountType string, rec Record) error {
	if rec.ID < 0 {
		return ErrNotPersisted
	}
	sk, err := s.slotFor(key, accountType)
	if err != nil {
		return err
	}
	sealed, err := s.codec.seal(rec)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.byKey[sk] {
		if existing.ID == rec.ID {
			s.byKey[sk][i] = sealed
			return nil
		}
	}
	return ErrNotFound
}

func (s *MemoryStorage) Remove(_ context.Context, key, accountType string, rec Record) error {
	if rec.ID < 0 {
		return ErrNotPersisted
	}
	sk, err := s.slotFor(key, accountType)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	recs := s.byKey[sk]
	for i, existing := range recs {
		if existing.ID == rec.ID {
			s.byKey[sk] = append(recs[:i:i], recs[i+1:]...)
			if len(s.byKey[sk]) == 0 {
				delete(s.byKey, sk)
			}
			return nil
		}
	}
	return ErrNotFound
}

func (s *MemoryStorage) GetAccounts(_ context.Context, key, accountType string) ([]Record, error) {
	sk, err := s.slotFor(key, accountType)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	sealed := append([]Record(nil), s.byKey[sk]...)
	s.mu.RUnlock()

	out := make([]Record, 0, len(sealed))
	for _, rec := range sealed {
		opened, err := s.codec.open(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, opened)
	}
	sortByID(out)
	return out, nil
}

func (s *MemoryStorage) GetAccount(ctx context.Context, key, accountType string) (*Record, error) {
	recs, err := s.GetAccounts(ctx, key, accountType)
	if err != nil {
		return nil, err
	}
	return first(recs), nil
}

func (s *MemoryStorage) slotFor(key, accountType string) (slot, error) {
	sealed, err := s.codec.sealKey(key, accountType)
	if err != nil {
		return slot{}, err
	}
	return slot{accountType: accountType, key: sealed}, nil
}
