// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package table keeps the catalog of named key/value tables served by a
// ZapTable server. Table schemas and rows live in the configured storage
// engine, so a LevelDB or Redis backed catalog survives a restart.
package table

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/LeeDigitalWorks/zaptable/pkg/logger"
	"github.com/LeeDigitalWorks/zaptable/pkg/storage/index"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultKeyColumn   = "key"
	DefaultValueColumn = "val"

	// DefaultRedisPrefix namespaces all hashes written by a catalog.
	DefaultRedisPrefix = "zaptable:"

	catalogDir = "_catalog"
)

var (
	ErrTableNotFound = errors.New("table not found")
	ErrTableExists   = errors.New("table already exists")
	ErrCatalogClosed = errors.New("catalog is closed")
)

// Config selects the storage engine of a catalog.
type Config struct {
	Engine index.Kind

	// DataDir is the root directory for the leveldb engine.
	DataDir string

	// Redis is the shared client for the redis engine.
	Redis       *redis.Client
	RedisPrefix string
}

// Catalog owns every table of a server.
type Catalog struct {
	mu     sync.RWMutex
	cfg    Config
	meta   index.Indexer[string, Schema]
	tables map[string]*Table
	closed bool
}

// Open opens the catalog and every table recorded in it.
func Open(ctx context.Context, cfg Config) (*Catalog, error) {
	if cfg.Engine == "" {
		cfg.Engine = index.KindMemory
	}
	if cfg.RedisPrefix == "" {
		cfg.RedisPrefix = DefaultRedisPrefix
	}

	c := &Catalog{
		cfg:    cfg,
		tables: make(map[string]*Table),
	}

	meta, err := openIndex[string, Schema](cfg, catalogDir, index.StringKeys)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	c.meta = meta

	err = meta.Iterate(ctx, func(name string, schema Schema) error {
		rows, err := openIndex[int64, string](cfg, tableDir(name), index.Int64Keys)
		if err != nil {
			return fmt.Errorf("open table %s: %w", name, err)
		}
		c.tables[name] = &Table{schema: schema, rows: rows}
		return nil
	})
	if err != nil {
		c.Close()
		return nil, err
	}

	logger.Info().
		Str("engine", string(cfg.Engine)).
		Int("tables", len(c.tables)).
		Msg("Opened table catalog")
	return c, nil
}

func openIndex[K cmp.Ordered, V any](cfg Config, name string, keys index.KeyCodec[K]) (index.Indexer[K, V], error) {
	switch cfg.Engine {
	case index.KindMemory:
		return index.NewMemoryIndexer[K, V](), nil
	case index.KindLevelDB:
		if cfg.DataDir == "" {
			return nil, errors.New("leveldb engine requires a data directory")
		}
		idx, err := index.NewLevelDBIndexer[K, V](filepath.Join(cfg.DataDir, name), nil, keys)
		if err != nil {
			return nil, err
		}
		return idx, nil
	case index.KindRedis:
		if cfg.Redis == nil {
			return nil, errors.New("redis engine requires a redis client")
		}
		return index.NewRedisIndexer[K, V](cfg.Redis, cfg.RedisPrefix+name, keys), nil
	default:
		return nil, fmt.Errorf("unknown storage engine %q", cfg.Engine)
	}
}

// tableDir maps a table name onto a single path element.
func tableDir(name string) string {
	r := strings.NewReplacer("/", "_", "\\", "_", "..", "_")
	return "t_" + r.Replace(name)
}

// Create adds a table. Missing column names take the defaults.
func (c *Catalog) Create(ctx context.Context, schema Schema) (*Table, error) {
	schema = schema.WithDefaults()
	if err := schema.Validate(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrCatalogClosed
	}
	if _, ok := c.tables[schema.Name]; ok {
		return nil, fmt.Errorf("%s: %w", schema.Name, ErrTableExists)
	}

	rows, err := openIndex[int64, string](c.cfg, tableDir(schema.Name), index.Int64Keys)
	if err != nil {
		return nil, fmt.Errorf("create table %s: %w", schema.Name, err)
	}
	if err := c.meta.Put(ctx, schema.Name, schema); err != nil {
		rows.Close()
		return nil, fmt.Errorf("record table %s: %w", schema.Name, err)
	}

	t := &Table{schema: schema, rows: rows}
	c.tables[schema.Name] = t

	logger.Info().
		Str("table", schema.Name).
		Str("key_column", schema.KeyColumn).
		Str("value_column", schema.ValueColumn).
		Msg("Created table")
	return t, nil
}

// Ensure returns the named table, creating it when absent.
func (c *Catalog) Ensure(ctx context.Context, schema Schema) (*Table, error) {
	if t, err := c.Table(schema.Name); err == nil {
		return t, nil
	}
	t, err := c.Create(ctx, schema)
	if errors.Is(err, ErrTableExists) {
		return c.Table(schema.Name)
	}
	return t, err
}

// Table returns the named table or ErrTableNotFound.
func (c *Catalog) Table(name string) (*Table, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, ErrCatalogClosed
	}
	t, ok := c.tables[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrTableNotFound)
	}
	return t, nil
}

// Drop removes a table and all of its rows.
func (c *Catalog) Drop(ctx context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrCatalogClosed
	}
	t, ok := c.tables[name]
	if !ok {
		return fmt.Errorf("%s: %w", name, ErrTableNotFound)
	}
	delete(c.tables, name)

	if _, err := c.meta.Delete(ctx, name); err != nil {
		return fmt.Errorf("drop table %s: %w", name, err)
	}
	if err := t.rows.Destroy(); err != nil {
		return fmt.Errorf("drop table %s: %w", name, err)
	}
	logger.Info().Str("table", name).Msg("Dropped table")
	return nil
}

// List returns every schema sorted by table name.
func (c *Catalog) List() []Schema {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Schema, 0, len(c.tables))
	for _, t := range c.tables {
		out = append(out, t.schema)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// IsOpen reports whether the catalog still serves requests.
func (c *Catalog) IsOpen() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.closed
}

// Close closes every table. It is safe to call more than once.
func (c *Catalog) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	var errs []error
	for name, t := range c.tables {
		if err := t.rows.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close table %s: %w", name, err))
		}
	}
	if c.meta != nil {
		if err := c.meta.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close catalog: %w", err))
		}
	}
	return errors.Join(errs...)
}
