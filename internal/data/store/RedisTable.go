package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/akolanti/ProposalAPI/internal/data/redisStore"
	"github.com/akolanti/ProposalAPI/pkg/logger_i"
)

// RedisTable keeps every item as a hash at <table>:<partition>:<sort> and every
// partition as a zero-score sorted set of sort keys at <table>:idx:<partition>.
type RedisTable struct {
	store  *redisStore.Store
	name   string
	logger *logger_i.Logger
}

// GetRedisTable returns nil when redis cannot be reached so the caller can fall back.
func GetRedisTable(ctx context.Context, name string, opts redisStore.Options) *RedisTable {
	s := redisStore.GetRedisStore(ctx, opts)
	if s == nil {
		return nil
	}
	return NewRedisTable(s, name)
}

func NewRedisTable(s *redisStore.Store, name string) *RedisTable {
	return &RedisTable{
		store:  s,
		name:   name,
		logger: logger_i.NewLogger("RedisTable"),
	}
}

func (t *RedisTable) itemKey(key Key) string {
	return t.name + ":" + key.Partition + ":" + key.Sort
}

func (t *RedisTable) indexKey(partition string) string {
	return t.name + ":idx:" + partition
}

func (t *RedisTable) Get(ctx context.Context, key Key) (Item, error) {
	fields, err := t.store.HashGetAll(ctx, t.itemKey(key))
	if err != nil {
		if t.store.IsNil(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis get %s/%s: %w", key.Partition, key.Sort, err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	return fields, nil
}

func (t *RedisTable) Put(ctx context.Context, key Key, item Item) error {
	if err := t.store.HashReplace(ctx, t.itemKey(key), item, t.indexKey(key.Partition), key.Sort); err != nil {
		return fmt.Errorf("redis put %s/%s: %w", key.Partition, key.Sort, err)
	}
	return nil
}

func (t *RedisTable) Update(ctx context.Context, key Key, expr UpdateExpression) error {
	err := t.store.HashUpdate(ctx, t.itemKey(key), t.indexKey(key.Partition), key.Sort,
		func(current map[string]string) (map[string]string, []string, error) {
			if expr.Condition != nil && !expr.Condition.Holds(current) {
				return nil, nil, ErrConditionFailed
			}
			return expr.Set, expr.Remove, nil
		})
	if errors.Is(err, ErrConditionFailed) {
		return err
	}
	if err != nil {
		return fmt.Errorf("redis update %s/%s: %w", key.Partition, key.Sort, err)
	}
	t.logger.Debug("item updated", "partition", key.Partition, "sort", key.Sort, "set", len(expr.Set), "removed", len(expr.Remove))
	return nil
}

func (t *RedisTable) Delete(ctx context.Context, key Key) error {
	if err := t.store.HashDelete(ctx, t.itemKey(key), t.indexKey(key.Partition), key.Sort); err != nil {
		return fmt.Errorf("redis delete %s/%s: %w", key.Partition, key.Sort, err)
	}
	return nil
}

func (t *RedisTable) QueryPartition(ctx context.Context, partition string) ([]Record, error) {
	sorts, err := t.store.IndexMembers(ctx, t.indexKey(partition))
	if err != nil {
		return nil, fmt.Errorf("redis query %s: %w", partition, err)
	}
	if len(sorts) == 0 {
		return []Record{}, nil
	}
	keys := make([]string, len(sorts))
	for i, sort := range sorts {
		keys[i] = t.itemKey(Key{Partition: partition, Sort: sort})
	}
	items, err := t.store.HashGetMany(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("redis query %s: %w", partition, err)
	}
	records := make([]Record, 0, len(items))
	for i, item := range items {
		if len(item) == 0 {
			// index entry left behind by an update that removed every field
			continue
		}
		records = append(records, Record{Key: Key{Partition: partition, Sort: sorts[i]}, Item: item})
	}
	sortRecords(records)
	return records, nil
}
