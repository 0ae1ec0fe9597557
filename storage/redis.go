package storage

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/redis/go-redis/v9"
)

const (
	blobFormatVersion = 1

	flagEnabled  byte = 1 << 0
	flagEditable byte = 1 << 1

	maxBlobField = 1<<16 - 1
)

var errBlobVersion = errors.New("storage: unsupported blob version")

// RedisStorage keeps one serialized account per (account type, key) under
// prefix:type:key. Writes are last-writer-wins and every stored account
// carries id 0.
type RedisStorage struct {
	client redis.UniversalClient
	prefix string
	codec  codec
}

// NewRedisStorage uses prefix "sta" when empty.
func NewRedisStorage(client redis.UniversalClient, prefix string, enc Encryption) (*RedisStorage, error) {
	if client == nil {
		return nil, errors.New("storage: redis client required")
	}
	if prefix == "" {
		prefix = "sta"
	}
	c, err := newCodec(enc)
	if err != nil {
		return nil, err
	}
	return &RedisStorage{client: client, prefix: prefix, codec: c}, nil
}

func (s *RedisStorage) redisKey(key, accountType string) (string, error) {
	sealed, err := s.codec.sealKey(key, accountType)
	if err != nil {
		return "", err
	}
	return s.prefix + ":" + accountType + ":" + sealed, nil
}

func (s *RedisStorage) Add(ctx context.Context, key, accountType string, rec Record) (Record, error) {
	rk, err := s.redisKey(key, accountType)
	if err != nil {
		return Record{}, err
	}
	rec.ID = 0
	blob, err := s.encode(rec)
	if err != nil {
		return Record{}, err
	}
	if err := s.client.Set(ctx, rk, blob, 0).Err(); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return rec, nil
}

func (s *RedisStorage) Update(ctx context.Context, key, accountType string, rec Record) error {
	if rec.ID < 0 {
		return ErrNotPersisted
	}
	rk, err := s.redisKey(key, accountType)
	if err != nil {
		return err
	}
	rec.ID = 0
	blob, err := s.encode(rec)
	if err != nil {
		return err
	}
	ok, err := s.client.SetXX(ctx, rk, blob, redis.KeepTTL).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

func (s *RedisStorage) Remove(ctx context.Context, key, accountType string, rec Record) error {
	if rec.ID < 0 {
		return ErrNotPersisted
	}
	rk, err := s.redisKey(key, accountType)
	if err != nil {
		return err
	}
	n, err := s.client.Del(ctx, rk).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *RedisStorage) GetAccounts(ctx context.Context, key, accountType string) ([]Record, error) {
	rec, err := s.GetAccount(ctx, key, accountType)
	if err != nil || rec == nil {
		return nil, err
	}
	return []Record{*rec}, nil
}

func (s *RedisStorage) GetAccount(ctx context.Context, key, accountType string) (*Record, error) {
	rk, err := s.redisKey(key, accountType)
	if err != nil {
		return nil, err
	}
	raw, err := s.client.Get(ctx, rk).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	rec, err := s.decode(raw)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *RedisStorage) encode(rec Record) ([]byte, error) {
	sealed, err := s.codec.seal(rec)
	if err != nil {
		return nil, err
	}
	return encodeBlob(sealed)
}

func (s *RedisStorage) decode(raw []byte) (Record, error) {
	rec, err := decodeBlob(raw)
	if err != nil {
		return Record{}, err
	}
	return s.codec.open(rec)
}

func encodeBlob(rec Record) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(blobFormatVersion)

	var flags byte
	if rec.Enabled {
		flags |= flagEnabled
	}
	if rec.Editable {
		flags |= flagEditable
	}
	buf.WriteByte(flags)

	for _, field := range []string{rec.Name, rec.Target} {
		if len(field) > maxBlobField {
			return nil, errors.New("storage: field too long")
		}
		if err := binary.Write(&buf, binary.BigEndian, uint16(len(field))); err != nil {
			return nil, err
		}
		buf.WriteString(field)
	}
	return buf.Bytes(), nil
}

func decodeBlob(data []byte) (Record, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return Record{}, err
	}
	if version != blobFormatVersion {
		return Record{}, errBlobVersion
	}
	flags, err := reader.ReadByte()
	if err != nil {
		return Record{}, err
	}

	readField := func() (string, error) {
		var n uint16
		if err := binary.Read(reader, binary.BigEndian, &n); err != nil {
			return "", err
		}
		b := make([]byte, n)
		if _, err := io.ReadFull(reader, b); err != nil {
			return "", err
		}
		return string(b), nil
	}

	rec := Record{
		Enabled:  flags&flagEnabled != 0,
		Editable: flags&flagEditable != 0,
	}
	if rec.Name, err = readField(); err != nil {
		return Record{}, err
	}
	if rec.Target, err = readField(); err != nil {
		return Record{}, err
	}
	if reader.Len() != 0 {
		return Record{}, errors.New("storage: trailing blob bytes")
	}
	return rec, nil
}
