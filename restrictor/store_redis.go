package restrictor

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const redisMaxRetries = 4

// ErrContention is returned when optimistic transactions keep colliding.
var ErrContention = errors.New("restrictor: event store contention")

type zcounter interface {
	ZCount(ctx context.Context, key, min, max string) *redis.IntCmd
}

// RedisStore keeps one sorted set per account key and event type, scored by
// event time in milliseconds.
type RedisStore struct {
	redis     redis.UniversalClient
	prefix    string
	retention time.Duration
}

// NewRedisStore returns a store writing under prefix. Keys expire after
// retention of inactivity; pass the restrictor's largest window.
func NewRedisStore(client redis.UniversalClient, prefix string, retention time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "sre"
	}
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &RedisStore{redis: client, prefix: prefix, retention: retention}
}

func (s *RedisStore) key(accountKey string, t EventType) string {
	return s.prefix + ":" + t.String() + ":" + accountKey
}

func (s *RedisStore) keys(accountKey string) []string {
	out := make([]string, 0, len(AllEventTypes))
	for _, t := range AllEventTypes {
		out = append(out, s.key(accountKey, t))
	}
	return out
}

func (s *RedisStore) Count(ctx context.Context, key string, since time.Time, types ...EventType) (int, error) {
	return s.count(ctx, s.redis, key, since, types)
}

func (s *RedisStore) count(ctx context.Context, cmd zcounter, key string, since time.Time, types []EventType) (int, error) {
	if len(types) == 0 {
		types = AllEventTypes
	}
	lower := strconv.FormatInt(since.UnixMilli(), 10)
	total := 0
	for _, t := range types {
		n, err := cmd.ZCount(ctx, s.key(key, t), lower, "+inf").Result()
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		total += int(n)
	}
	return total, nil
}

func (s *RedisStore) Append(ctx context.Context, ev Event) error {
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		s.appendPipe(ctx, pipe, ev)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *RedisStore) appendPipe(ctx context.Context, pipe redis.Pipeliner, ev Event) {
	key := s.key(ev.Key, ev.Type)
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(ev.At.UnixMilli()),
		Member: uuid.NewString(),
	})
	pipe.PExpire(ctx, key, s.retention)
}

// AppendWithin counts and appends inside a WATCH transaction, retrying when
// another writer touches the same account.
func (s *RedisStore) AppendWithin(ctx context.Context, ev Event, rules []Rule) (int, error) {
	keys := s.keys(ev.Key)

	for i := 0; i < redisMaxRetries; i++ {
		violated := -1
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			for idx, rule := range rules {
				n, err := s.count(ctx, tx, ev.Key, ev.At.Add(-rule.Policy.Window), rule.Types)
				if err != nil {
					return err
				}
				if n >= rule.Policy.Max {
					violated = idx
					return nil
				}
			}
			_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				s.appendPipe(ctx, pipe, ev)
				return nil
			})
			return err
		}, keys...)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			if errors.Is(err, ErrStoreUnavailable) {
				return -1, err
			}
			return -1, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		return violated, nil
	}

	return -1, ErrContention
}

func (s *RedisStore) Prune(ctx context.Context, key string, before time.Time) error {
	upper := "(" + strconv.FormatInt(before.UnixMilli(), 10)
	_, err := s.redis.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, k := range s.keys(key) {
			pipe.ZRemRangeByScore(ctx, k, "-inf", upper)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}
