package store_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/akolanti/ProposalAPI/internal/config"
	"github.com/akolanti/ProposalAPI/internal/data/badgerStore"
	"github.com/akolanti/ProposalAPI/internal/data/redisStore"
	"github.com/akolanti/ProposalAPI/internal/data/store"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type tableFactory func(t *testing.T) store.Table

func backends() map[string]tableFactory {
	return map[string]tableFactory{
		"memory": func(t *testing.T) store.Table {
			return store.InitInMemoryTable()
		},
		"redis": func(t *testing.T) store.Table {
			mr := miniredis.RunT(t)
			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { _ = client.Close() })
			return store.NewRedisTable(redisStore.NewTestStore(client), "test")
		},
		"badger": func(t *testing.T) store.Table {
			tbl, err := badgerStore.Open("")
			if err != nil {
				t.Fatalf("open badger: %v", err)
			}
			t.Cleanup(func() { _ = tbl.Close() })
			return tbl
		},
	}
}

func TestTable_Lifecycle(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			tbl := factory(t)
			ctx := context.WithValue(context.Background(), config.TRACE_ID_KEY, "test-trace")
			key := store.Key{Partition: "PROPOSAL#P-1", Sort: "METADATA"}

			t.Run("Get Non-Existent Item", func(t *testing.T) {
				_, err := tbl.Get(ctx, key)
				if !errors.Is(err, store.ErrNotFound) {
					t.Fatalf("expected ErrNotFound, got %v", err)
				}
			})

			t.Run("Put and Get Roundtrip", func(t *testing.T) {
				if err := tbl.Put(ctx, key, store.Item{"title": "Water access", "donor": "EU"}); err != nil {
					t.Fatalf("Put failed: %v", err)
				}
				item, err := tbl.Get(ctx, key)
				if err != nil {
					t.Fatalf("Get failed: %v", err)
				}
				if item["title"] != "Water access" || item["donor"] != "EU" {
					t.Errorf("data mismatch: %v", item)
				}
			})

			t.Run("Update sets and removes", func(t *testing.T) {
				err := tbl.Update(ctx, key, store.UpdateExpression{
					Set:    map[string]string{"status": "processing"},
					Remove: []string{"donor"},
				})
				if err != nil {
					t.Fatalf("Update failed: %v", err)
				}
				item, _ := tbl.Get(ctx, key)
				if item["status"] != "processing" || item["title"] != "Water access" {
					t.Errorf("unexpected item after update: %v", item)
				}
				if _, ok := item["donor"]; ok {
					t.Error("removed field still present")
				}
			})

			t.Run("Delete", func(t *testing.T) {
				if err := tbl.Delete(ctx, key); err != nil {
					t.Fatalf("Delete failed: %v", err)
				}
				if _, err := tbl.Get(ctx, key); !errors.Is(err, store.ErrNotFound) {
					t.Errorf("item still present after delete: %v", err)
				}
			})
		})
	}
}

func TestTable_ConditionalUpdate(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			tbl := factory(t)
			ctx := context.Background()
			key := store.Key{Partition: "PROPOSAL#P-2", Sort: "METADATA"}
			notProcessing := &store.Condition{Field: "status", Op: store.CondNotEquals, Value: "processing"}

			// missing item counts as empty, so the first transition succeeds
			err := tbl.Update(ctx, key, store.UpdateExpression{
				Set:       map[string]string{"status": "processing"},
				Condition: notProcessing,
			})
			if err != nil {
				t.Fatalf("first conditional update failed: %v", err)
			}

			err = tbl.Update(ctx, key, store.UpdateExpression{
				Set:       map[string]string{"status": "processing", "other": "x"},
				Condition: notProcessing,
			})
			if !errors.Is(err, store.ErrConditionFailed) {
				t.Fatalf("expected ErrConditionFailed, got %v", err)
			}
			item, _ := tbl.Get(ctx, key)
			if _, ok := item["other"]; ok {
				t.Error("rejected update must not write")
			}

			err = tbl.Update(ctx, key, store.UpdateExpression{
				Set:       map[string]string{"status": "completed"},
				Condition: &store.Condition{Field: "status", Op: store.CondIn, Values: []string{"processing", "completed"}},
			})
			if err != nil {
				t.Fatalf("CondIn update failed: %v", err)
			}
		})
	}
}

func TestCondition_And(t *testing.T) {
	cond := store.Condition{
		Field: "status", Op: store.CondEquals, Value: "processing",
		And: []store.Condition{{Field: "started_at", Op: store.CondEquals, Value: "2024-05-01T12:00:00Z"}},
	}
	if !cond.Holds(store.Item{"status": "processing", "started_at": "2024-05-01T12:00:00Z"}) {
		t.Error("both parts hold")
	}
	if cond.Holds(store.Item{"status": "processing", "started_at": "2024-05-01T12:19:00Z"}) {
		t.Error("started_at differs")
	}
	if cond.Holds(store.Item{"status": "failed", "started_at": "2024-05-01T12:00:00Z"}) {
		t.Error("status differs")
	}
}

func TestTable_QueryPartitionSorted(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			tbl := factory(t)
			ctx := context.Background()
			for _, sort := range []string{"c", "a", "b"} {
				if err := tbl.Put(ctx, store.Key{Partition: "PROMPT", Sort: sort}, store.Item{"id": sort}); err != nil {
					t.Fatalf("Put failed: %v", err)
				}
			}
			_ = tbl.Put(ctx, store.Key{Partition: "OTHER", Sort: "z"}, store.Item{"id": "z"})

			records, err := tbl.QueryPartition(ctx, "PROMPT")
			if err != nil {
				t.Fatalf("QueryPartition failed: %v", err)
			}
			if len(records) != 3 {
				t.Fatalf("expected 3 records, got %d", len(records))
			}
			for i, want := range []string{"a", "b", "c"} {
				if records[i].Key.Sort != want || records[i].Item["id"] != want {
					t.Errorf("record %d: got %+v, want sort %s", i, records[i], want)
				}
			}

			empty, err := tbl.QueryPartition(ctx, "NOTHING")
			if err != nil || len(empty) != 0 {
				t.Errorf("expected empty partition, got %v %v", empty, err)
			}
		})
	}
}

func TestTable_ConcurrentBeginOnlyOneWins(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			tbl := factory(t)
			ctx := context.Background()
			key := store.Key{Partition: "PROPOSAL#race", Sort: "METADATA"}

			const workers = 20
			var wg sync.WaitGroup
			var mu sync.Mutex
			wins := 0
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					err := tbl.Update(ctx, key, store.UpdateExpression{
						Set:       map[string]string{"status": "processing"},
						Condition: &store.Condition{Field: "status", Op: store.CondNotEquals, Value: "processing"},
					})
					if err == nil {
						mu.Lock()
						wins++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()
			if wins != 1 {
				t.Errorf("expected exactly one winner, got %d", wins)
			}
		})
	}
}
