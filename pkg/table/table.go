package table

import (
	"context"
	"errors"

	"github.com/LeeDigitalWorks/zaptable/pkg/storage/index"
)

// Record is one row of a table.
type Record struct {
	Key   int64
	Value string
}

// Table is a named, ordered int64 → string map.
type Table struct {
	schema Schema
	rows   index.Indexer[int64, string]
}

func (t *Table) Schema() Schema {
	return t.schema
}

func (t *Table) Upsert(ctx context.Context, key int64, value string) error {
	return t.rows.Put(ctx, key, value)
}

// Get returns the value for key; ok is false when the row does not exist.
func (t *Table) Get(ctx context.Context, key int64) (value string, ok bool, err error) {
	value, err = t.rows.Get(ctx, key)
	if errors.Is(err, index.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// Delete removes key and reports whether it existed.
func (t *Table) Delete(ctx context.Context, key int64) (bool, error) {
	return t.rows.Delete(ctx, key)
}

// Scan returns every row in key order.
func (t *Table) Scan(ctx context.Context) ([]Record, error) {
	var out []Record
	err := t.rows.Iterate(ctx, func(k int64, v string) error {
		out = append(out, Record{Key: k, Value: v})
		return nil
	})
	return out, err
}

func (t *Table) Len(ctx context.Context) (int, error) {
	return t.rows.Len(ctx)
}
