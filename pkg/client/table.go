package client

import (
	"context"
	"fmt"

	"github.com/LeeDigitalWorks/zaptable/proto/table_pb"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Schema describes a table on the server.
type Schema struct {
	Name        string
	KeyColumn   string
	ValueColumn string
}

// Record is one row of a table.
type Record struct {
	Key   int64
	Value string
}

// Tables resolves and manages tables of a session.
type Tables struct {
	c *Client
}

// Table looks up a table by name. It returns nil and no error when the
// server has no such table.
func (ts *Tables) Table(ctx context.Context, name string) (*Table, error) {
	var schema table_pb.Schema
	err := ts.c.execute(ctx, func(ctx context.Context, tables table_pb.TableServiceClient) error {
		st, err := tables.GetTable(ctx, wrapperspb.String(name))
		if err != nil {
			return err
		}
		schema, err = table_pb.SchemaFromStruct(st)
		return err
	})
	if status.Code(err) == codes.NotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get table %s: %w", name, err)
	}
	return ts.c.newTable(schema), nil
}

// List returns every table sorted by name.
func (ts *Tables) List(ctx context.Context) ([]Schema, error) {
	var schemas []table_pb.Schema
	err := ts.c.execute(ctx, func(ctx context.Context, tables table_pb.TableServiceClient) error {
		lv, err := tables.ListTables(ctx, &emptypb.Empty{})
		if err != nil {
			return err
		}
		schemas, err = table_pb.SchemasFromList(lv)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}

	out := make([]Schema, 0, len(schemas))
	for _, s := range schemas {
		out = append(out, Schema(s))
	}
	return out, nil
}

// Create creates a table. Empty column names take the server defaults.
func (ts *Tables) Create(ctx context.Context, schema Schema) (*Table, error) {
	var created table_pb.Schema
	err := ts.c.execute(ctx, func(ctx context.Context, tables table_pb.TableServiceClient) error {
		st, err := tables.CreateTable(ctx, table_pb.Schema(schema).ToStruct())
		if err != nil {
			return err
		}
		created, err = table_pb.SchemaFromStruct(st)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create table %s: %w", schema.Name, err)
	}
	return ts.c.newTable(created), nil
}

func (ts *Tables) Drop(ctx context.Context, name string) error {
	err := ts.c.execute(ctx, func(ctx context.Context, tables table_pb.TableServiceClient) error {
		_, err := tables.DropTable(ctx, wrapperspb.String(name))
		return err
	})
	if err != nil {
		return fmt.Errorf("drop table %s: %w", name, err)
	}
	return nil
}

// Table is a handle to one server-side table.
type Table struct {
	c      *Client
	schema table_pb.Schema
}

func (c *Client) newTable(s table_pb.Schema) *Table {
	return &Table{c: c, schema: s}
}

func (t *Table) Name() string {
	return t.schema.Name
}

func (t *Table) KeyColumn() string {
	return t.schema.KeyColumn
}

func (t *Table) ValueColumn() string {
	return t.schema.ValueColumn
}

// Upsert writes value under key, replacing any previous value.
func (t *Table) Upsert(ctx context.Context, key int64, value string) error {
	row := table_pb.Row{Table: t.schema.Name, Key: key, Value: value}
	return t.c.execute(ctx, func(ctx context.Context, tables table_pb.TableServiceClient) error {
		_, err := tables.Upsert(ctx, row.ToStruct())
		return err
	})
}

// Get returns the value of key; ok is false when the key is absent.
func (t *Table) Get(ctx context.Context, key int64) (value string, ok bool, err error) {
	err = t.c.execute(ctx, func(ctx context.Context, tables table_pb.TableServiceClient) error {
		st, err := tables.Get(ctx, table_pb.KeyStruct(t.schema.Name, key))
		if err != nil {
			return err
		}
		if !table_pb.HasValue(st) {
			ok = false
			return nil
		}
		row, err := table_pb.RowFromStruct(st)
		if err != nil {
			return err
		}
		value, ok = row.Value, true
		return nil
	})
	if err != nil {
		return "", false, err
	}
	return value, ok, nil
}

// Delete removes key and reports whether it existed.
func (t *Table) Delete(ctx context.Context, key int64) (bool, error) {
	var existed bool
	err := t.c.execute(ctx, func(ctx context.Context, tables table_pb.TableServiceClient) error {
		resp, err := tables.Delete(ctx, table_pb.KeyStruct(t.schema.Name, key))
		if err != nil {
			return err
		}
		existed = resp.GetValue()
		return nil
	})
	return existed, err
}

// Scan returns every row in key order.
func (t *Table) Scan(ctx context.Context) ([]Record, error) {
	var records []Record
	err := t.c.execute(ctx, func(ctx context.Context, tables table_pb.TableServiceClient) error {
		lv, err := tables.Scan(ctx, wrapperspb.String(t.schema.Name))
		if err != nil {
			return err
		}
		rows, err := table_pb.RowsFromList(lv)
		if err != nil {
			return err
		}
		records = make([]Record, 0, len(rows))
		for _, r := range rows {
			records = append(records, Record{Key: r.Key, Value: r.Value})
		}
		return nil
	})
	return records, err
}
