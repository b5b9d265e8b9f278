package store

import (
	"context"
	"errors"
	"slices"
)

var (
	ErrNotFound        = errors.New("item not found")
	ErrConditionFailed = errors.New("conditional check failed")
)

// Key addresses one item in the single logical table.
type Key struct {
	Partition string
	Sort      string
}

// Item is a flat attribute map. Structured values are stored as JSON strings.
type Item map[string]string

type Record struct {
	Key  Key
	Item Item
}

type ConditionOp int

const (
	CondEquals ConditionOp = iota
	CondNotEquals
	CondIn
	CondAbsent
)

// Condition guards an update. A missing item behaves like an item with no fields,
// so "status != processing" holds for an item that was never written. Every
// condition in And must hold as well.
type Condition struct {
	Field  string
	Op     ConditionOp
	Value  string
	Values []string
	And    []Condition
}

func (c Condition) Holds(item Item) bool {
	for _, other := range c.And {
		if !other.Holds(item) {
			return false
		}
	}
	value, present := item[c.Field]
	switch c.Op {
	case CondEquals:
		return present && value == c.Value
	case CondNotEquals:
		return !present || value != c.Value
	case CondIn:
		return present && slices.Contains(c.Values, value)
	case CondAbsent:
		return !present
	}
	return false
}

// UpdateExpression is a partial update: fields in Set are written, fields in Remove
// are deleted, both only when Condition (if any) holds.
type UpdateExpression struct {
	Set       map[string]string
	Remove    []string
	Condition *Condition
}

// Table is the key-value store contract shared by the Redis, Badger and in-memory
// backends. Update upserts: the item is created when it does not exist.
type Table interface {
	Get(ctx context.Context, key Key) (Item, error)
	Put(ctx context.Context, key Key, item Item) error
	Update(ctx context.Context, key Key, expr UpdateExpression) error
	Delete(ctx context.Context, key Key) error
	QueryPartition(ctx context.Context, partition string) ([]Record, error)
}

// ApplyUpdate evaluates expr against current and returns the resulting item.
// current is never modified.
func ApplyUpdate(current Item, expr UpdateExpression) (Item, error) {
	if expr.Condition != nil && !expr.Condition.Holds(current) {
		return nil, ErrConditionFailed
	}
	next := make(Item, len(current)+len(expr.Set))
	for k, v := range current {
		next[k] = v
	}
	for _, field := range expr.Remove {
		delete(next, field)
	}
	for k, v := range expr.Set {
		next[k] = v
	}
	return next, nil
}

func sortRecords(records []Record) {
	slices.SortFunc(records, func(a, b Record) int {
		switch {
		case a.Key.Sort < b.Key.Sort:
			return -1
		case a.Key.Sort > b.Key.Sort:
			return 1
		}
		return 0
	})
}
