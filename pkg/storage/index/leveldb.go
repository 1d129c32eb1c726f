package index

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/LeeDigitalWorks/zaptable/pkg/utils"

	"github.com/syndtr/goleveldb/leveldb"
	lerrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

type LevelDBIndexer[K cmp.Ordered, V any] struct {
	db      *leveldb.DB
	dbDir   string
	options *opt.Options
	keys    KeyCodec[K]

	writeOpts     *opt.WriteOptions // Normal writes (buffered)
	writeOptsSync *opt.WriteOptions // Durable writes (fsync)
}

func NewLevelDBIndexer[K cmp.Ordered, V any](dbDir string, opts *opt.Options, keys KeyCodec[K]) (*LevelDBIndexer[K, V], error) {
	if err := utils.EnsureWritableDir(dbDir); err != nil {
		return nil, err
	}

	m := &LevelDBIndexer[K, V]{
		dbDir:         dbDir,
		options:       opts,
		keys:          keys,
		writeOpts:     &opt.WriteOptions{Sync: false},
		writeOptsSync: &opt.WriteOptions{Sync: true},
	}
	db, err := leveldb.OpenFile(dbDir, opts)
	if err != nil && !lerrors.IsCorrupted(err) {
		return nil, fmt.Errorf("open leveldb %s: %w", dbDir, err)
	}
	if lerrors.IsCorrupted(err) {
		db, err = leveldb.RecoverFile(dbDir, opts)
		if err != nil {
			return nil, fmt.Errorf("recover leveldb %s: %w", dbDir, err)
		}
	}
	m.db = db
	return m, nil
}

func (m *LevelDBIndexer[K, V]) Put(_ context.Context, key K, value V) error {
	data, err := serialize(value)
	if err != nil {
		return err
	}
	return m.db.Put(m.keys.Encode(key), data, m.writeOpts)
}

func (m *LevelDBIndexer[K, V]) Get(_ context.Context, key K) (V, error) {
	var zero V
	data, err := m.db.Get(m.keys.Encode(key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return zero, fmt.Errorf("get %v: %w", key, ErrNotFound)
	}
	if err != nil {
		return zero, err
	}
	return deserialize[V](data)
}

func (m *LevelDBIndexer[K, V]) Delete(_ context.Context, key K) (bool, error) {
	k := m.keys.Encode(key)
	ok, err := m.db.Has(k, nil)
	if err != nil || !ok {
		return false, err
	}
	return true, m.db.Delete(k, m.writeOpts)
}

func (m *LevelDBIndexer[K, V]) Iterate(ctx context.Context, fn func(key K, value V) error) error {
	iter := m.db.NewIterator(nil, nil)
	defer iter.Release()

	for iter.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		key, err := m.keys.Decode(iter.Key())
		if err != nil {
			return err
		}
		value, err := deserialize[V](iter.Value())
		if err != nil {
			return err
		}
		if err := fn(key, value); err != nil {
			return err
		}
	}
	return iter.Error()
}

func (m *LevelDBIndexer[K, V]) Len(ctx context.Context) (int, error) {
	iter := m.db.NewIterator(nil, nil)
	defer iter.Release()

	n := 0
	for iter.Next() {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		n++
	}
	return n, iter.Error()
}

func (m *LevelDBIndexer[K, V]) Close() error {
	return m.db.Close()
}

// Sync forces all buffered writes to disk.
func (m *LevelDBIndexer[K, V]) Sync() error {
	// LevelDB has no explicit sync; an empty synced batch flushes the journal.
	batch := new(leveldb.Batch)
	return m.db.Write(batch, m.writeOptsSync)
}

func (m *LevelDBIndexer[K, V]) Destroy() error {
	if err := m.Close(); err != nil && !errors.Is(err, leveldb.ErrClosed) {
		return err
	}
	return os.RemoveAll(m.dbDir)
}
