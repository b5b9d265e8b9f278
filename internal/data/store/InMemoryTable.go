package store

import (
	"context"
	"sync"

	"github.com/akolanti/ProposalAPI/pkg/logger_i"
)

var inMemLogger = logger_i.NewLogger("InMem Table")

type InMemoryTable struct {
	mu         *sync.RWMutex
	partitions map[string]map[string]Item
}

func InitInMemoryTable() *InMemoryTable {
	return &InMemoryTable{
		mu:         new(sync.RWMutex),
		partitions: make(map[string]map[string]Item),
	}
}

func (t *InMemoryTable) Get(ctx context.Context, key Key) (Item, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	item, found := t.partitions[key.Partition][key.Sort]
	if !found {
		return nil, ErrNotFound
	}
	return copyItem(item), nil
}

func (t *InMemoryTable) Put(ctx context.Context, key Key, item Item) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.put(key, copyItem(item))
	return nil
}

func (t *InMemoryTable) Update(ctx context.Context, key Key, expr UpdateExpression) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	next, err := ApplyUpdate(t.partitions[key.Partition][key.Sort], expr)
	if err != nil {
		inMemLogger.Debug("conditional update rejected", "partition", key.Partition, "sort", key.Sort)
		return err
	}
	t.put(key, next)
	return nil
}

func (t *InMemoryTable) Delete(ctx context.Context, key Key) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if partition, ok := t.partitions[key.Partition]; ok {
		delete(partition, key.Sort)
		if len(partition) == 0 {
			delete(t.partitions, key.Partition)
		}
	}
	return nil
}

func (t *InMemoryTable) QueryPartition(ctx context.Context, partition string) ([]Record, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	records := make([]Record, 0, len(t.partitions[partition]))
	for sort, item := range t.partitions[partition] {
		records = append(records, Record{Key: Key{Partition: partition, Sort: sort}, Item: copyItem(item)})
	}
	sortRecords(records)
	return records, nil
}

func (t *InMemoryTable) put(key Key, item Item) {
	partition, ok := t.partitions[key.Partition]
	if !ok {
		partition = make(map[string]Item)
		t.partitions[key.Partition] = partition
	}
	partition[key.Sort] = item
}

func copyItem(item Item) Item {
	out := make(Item, len(item))
	for k, v := range item {
		out[k] = v
	}
	return out
}
