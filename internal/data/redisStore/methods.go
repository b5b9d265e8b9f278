package redisStore

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

const maxWatchRetries = 10

var ErrContention = errors.New("redis: too much contention on watched key")

// HashMutation is computed from the current hash contents inside a WATCH block.
type HashMutation func(current map[string]string) (set map[string]string, remove []string, err error)

func (s *Store) IsNil(err error) bool {
	return errors.Is(err, redis.Nil)
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	count, err := s.client.Exists(ctx, key).Result()
	return count > 0, err
}

func (s *Store) HashGetAll(ctx context.Context, key string) (map[string]string, error) {
	return s.client.HGetAll(ctx, key).Result()
}

// HashGetMany reads several hashes in one round trip, in the order of keys.
func (s *Store) HashGetMany(ctx context.Context, keys []string) ([]map[string]string, error) {
	cmds := make([]*redis.MapStringStringCmd, len(keys))
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, key := range keys {
			cmds[i] = pipe.HGetAll(ctx, key)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	out := make([]map[string]string, len(keys))
	for i, cmd := range cmds {
		out[i] = cmd.Val()
	}
	return out, nil
}

// HashReplace overwrites the hash at key and registers member in the index set.
func (s *Store) HashReplace(ctx context.Context, key string, fields map[string]string, indexKey, member string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if args := flatten(fields); len(args) > 0 {
			pipe.HSet(ctx, key, args...)
		}
		pipe.ZAdd(ctx, indexKey, redis.Z{Score: 0, Member: member})
		return nil
	})
	return err
}

// HashUpdate applies mutate to the hash at key with optimistic locking, retrying
// when another client touched the key between WATCH and EXEC.
func (s *Store) HashUpdate(ctx context.Context, key string, indexKey, member string, mutate HashMutation) error {
	txf := func(tx *redis.Tx) error {
		current, err := tx.HGetAll(ctx, key).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		set, remove, err := mutate(current)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if len(remove) > 0 {
				pipe.HDel(ctx, key, remove...)
			}
			if args := flatten(set); len(args) > 0 {
				pipe.HSet(ctx, key, args...)
			}
			pipe.ZAdd(ctx, indexKey, redis.Z{Score: 0, Member: member})
			return nil
		})
		return err
	}

	for i := 0; i < maxWatchRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			logger.Debug("watched key changed, retrying", "key", key, "attempt", i+1)
			continue
		}
		return err
	}
	return ErrContention
}

func (s *Store) HashDelete(ctx context.Context, key string, indexKey, member string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.ZRem(ctx, indexKey, member)
		return nil
	})
	return err
}

// IndexMembers lists an index set. All scores are zero, so members come back in
// lexicographic order.
func (s *Store) IndexMembers(ctx context.Context, indexKey string) ([]string, error) {
	return s.client.ZRange(ctx, indexKey, 0, -1).Result()
}

func flatten(fields map[string]string) []any {
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return args
}
