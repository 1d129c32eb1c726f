// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package index provides ordered key/value indexes used as table row storage.
// Three engines share one interface: an in-memory B-tree, LevelDB on local
// disk, and a Redis hash.
package index

import (
	"bytes"
	"cmp"
	"context"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrNotFound is returned by Get when the key is absent.
var ErrNotFound = errors.New("key not found")

type Kind string

const (
	KindMemory  Kind = "memory"
	KindLevelDB Kind = "leveldb"
	KindRedis   Kind = "redis"
)

// ParseKind maps a configuration string onto an engine kind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindMemory, KindLevelDB, KindRedis:
		return k, nil
	case "":
		return KindMemory, nil
	default:
		return "", fmt.Errorf("unknown storage engine %q", s)
	}
}

// Indexer stores values by ordered key. Iterate visits keys in ascending
// order on every engine.
type Indexer[K cmp.Ordered, V any] interface {
	io.Closer
	Put(ctx context.Context, key K, value V) error
	Get(ctx context.Context, key K) (V, error)
	Delete(ctx context.Context, key K) (bool, error)
	Iterate(ctx context.Context, fn func(key K, value V) error) error
	Len(ctx context.Context) (int, error)

	// Destroy removes all data held by the index and closes it
	Destroy() error

	// Sync forces buffered writes to durable storage
	Sync() error
}

// KeyCodec converts keys to bytes whose lexical order matches key order.
type KeyCodec[K cmp.Ordered] struct {
	Encode func(K) []byte
	Decode func([]byte) (K, error)
}

// Int64Keys encodes int64 keys big-endian with the sign bit flipped, so
// negative keys sort before positive ones.
var Int64Keys = KeyCodec[int64]{
	Encode: func(k int64) []byte {
		b := make([]byte, 8)
		binary.BigEndian.PutUint64(b, uint64(k)^(1<<63))
		return b
	},
	Decode: func(b []byte) (int64, error) {
		if len(b) != 8 {
			return 0, fmt.Errorf("invalid int64 key length %d", len(b))
		}
		return int64(binary.BigEndian.Uint64(b) ^ (1 << 63)), nil
	},
}

// StringKeys stores string keys verbatim.
var StringKeys = KeyCodec[string]{
	Encode: func(k string) []byte { return []byte(k) },
	Decode: func(b []byte) (string, error) { return string(b), nil },
}

// Serialize struct to bytes
func serialize[T any](v T) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Deserialize bytes to struct
func deserialize[T any](data []byte) (T, error) {
	var v T
	err := gob.NewDecoder(bytes.NewReader(data)).Decode(&v)
	return v, err
}
