package badgerStore

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/akolanti/ProposalAPI/internal/data/store"
	"github.com/akolanti/ProposalAPI/pkg/logger_i"
	"github.com/dgraph-io/badger/v4"
	"github.com/timshannon/badgerhold/v4"
)

const maxConflictRetries = 5

type record struct {
	Partition string `badgerhold:"index"`
	Sort      string
	Fields    map[string]string
}

// Table is the embedded store.Table backend, used when no redis is available.
type Table struct {
	db     *badgerhold.Store
	logger *logger_i.Logger
}

// Open opens (or creates) the database under path. An empty path opens an
// in-memory database.
func Open(path string) (*Table, error) {
	options := badgerhold.DefaultOptions
	options.Logger = nil
	if path == "" {
		options.InMemory = true
		options.Dir = ""
		options.ValueDir = ""
	} else {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create badger directory: %w", err)
		}
		options.Dir = path
		options.ValueDir = path
	}

	db, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}
	logger := logger_i.NewLogger("BadgerTable")
	logger.Info("Badger table opened", "path", path)
	return &Table{db: db, logger: logger}, nil
}

func (t *Table) Close() error {
	return t.db.Close()
}

func storageKey(key store.Key) string {
	return key.Partition + "\x00" + key.Sort
}

func (t *Table) Get(ctx context.Context, key store.Key) (store.Item, error) {
	var rec record
	if err := t.db.Get(storageKey(key), &rec); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("badger get %s/%s: %w", key.Partition, key.Sort, err)
	}
	return store.Item(rec.Fields), nil
}

func (t *Table) Put(ctx context.Context, key store.Key, item store.Item) error {
	rec := record{Partition: key.Partition, Sort: key.Sort, Fields: item}
	if err := t.db.Upsert(storageKey(key), &rec); err != nil {
		return fmt.Errorf("badger put %s/%s: %w", key.Partition, key.Sort, err)
	}
	return nil
}

// Update runs read-evaluate-write inside one badger transaction. Badger aborts
// the commit with ErrConflict when a concurrent transaction wrote the same key,
// in which case the whole evaluation is repeated.
func (t *Table) Update(ctx context.Context, key store.Key, expr store.UpdateExpression) error {
	id := storageKey(key)
	for attempt := 1; attempt <= maxConflictRetries; attempt++ {
		err := t.db.Badger().Update(func(tx *badger.Txn) error {
			var current record
			err := t.db.TxGet(tx, id, &current)
			if err != nil && !errors.Is(err, badgerhold.ErrNotFound) {
				return err
			}
			next, err := store.ApplyUpdate(current.Fields, expr)
			if err != nil {
				return err
			}
			return t.db.TxUpsert(tx, id, &record{Partition: key.Partition, Sort: key.Sort, Fields: next})
		})
		if errors.Is(err, badger.ErrConflict) {
			t.logger.Debug("transaction conflict, retrying", "partition", key.Partition, "attempt", attempt)
			continue
		}
		if errors.Is(err, store.ErrConditionFailed) {
			return err
		}
		if err != nil {
			return fmt.Errorf("badger update %s/%s: %w", key.Partition, key.Sort, err)
		}
		return nil
	}
	return fmt.Errorf("badger update %s/%s: %w", key.Partition, key.Sort, badger.ErrConflict)
}

func (t *Table) Delete(ctx context.Context, key store.Key) error {
	err := t.db.Delete(storageKey(key), record{})
	if err != nil && !errors.Is(err, badgerhold.ErrNotFound) {
		return fmt.Errorf("badger delete %s/%s: %w", key.Partition, key.Sort, err)
	}
	return nil
}

func (t *Table) QueryPartition(ctx context.Context, partition string) ([]store.Record, error) {
	var recs []record
	if err := t.db.Find(&recs, badgerhold.Where("Partition").Eq(partition).Index("Partition").SortBy("Sort")); err != nil {
		return nil, fmt.Errorf("badger query %s: %w", partition, err)
	}
	out := make([]store.Record, 0, len(recs))
	for _, rec := range recs {
		out = append(out, store.Record{
			Key:  store.Key{Partition: rec.Partition, Sort: rec.Sort},
			Item: store.Item(rec.Fields),
		})
	}
	return out, nil
}
