// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package index

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
)

// RedisIndexer keeps an index in a single Redis hash. Fields are the encoded
// keys, so sorting fields bytewise yields key order.
type RedisIndexer[K cmp.Ordered, V any] struct {
	client *redis.Client
	hash   string
	keys   KeyCodec[K]
}

// NewRedisIndexer stores the index under the hash named hash. The client is
// shared and is not closed by Close.
func NewRedisIndexer[K cmp.Ordered, V any](client *redis.Client, hash string, keys KeyCodec[K]) *RedisIndexer[K, V] {
	return &RedisIndexer[K, V]{
		client: client,
		hash:   hash,
		keys:   keys,
	}
}

func (r *RedisIndexer[K, V]) Put(ctx context.Context, key K, value V) error {
	data, err := serialize(value)
	if err != nil {
		return err
	}
	return r.client.HSet(ctx, r.hash, r.keys.Encode(key), data).Err()
}

func (r *RedisIndexer[K, V]) Get(ctx context.Context, key K) (V, error) {
	var zero V
	data, err := r.client.HGet(ctx, r.hash, string(r.keys.Encode(key))).Bytes()
	if errors.Is(err, redis.Nil) {
		return zero, fmt.Errorf("get %v: %w", key, ErrNotFound)
	}
	if err != nil {
		return zero, err
	}
	return deserialize[V](data)
}

func (r *RedisIndexer[K, V]) Delete(ctx context.Context, key K) (bool, error) {
	n, err := r.client.HDel(ctx, r.hash, string(r.keys.Encode(key))).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *RedisIndexer[K, V]) Iterate(ctx context.Context, fn func(key K, value V) error) error {
	all, err := r.client.HGetAll(ctx, r.hash).Result()
	if err != nil {
		return err
	}

	fields := make([]string, 0, len(all))
	for f := range all {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	for _, f := range fields {
		key, err := r.keys.Decode([]byte(f))
		if err != nil {
			return err
		}
		value, err := deserialize[V]([]byte(all[f]))
		if err != nil {
			return err
		}
		if err := fn(key, value); err != nil {
			return err
		}
	}
	return nil
}

func (r *RedisIndexer[K, V]) Len(ctx context.Context) (int, error) {
	n, err := r.client.HLen(ctx, r.hash).Result()
	return int(n), err
}

func (r *RedisIndexer[K, V]) Close() error {
	return nil
}

func (r *RedisIndexer[K, V]) Destroy() error {
	return r.client.Del(context.Background(), r.hash).Err()
}

// Sync is a no-op; durability follows the server's persistence settings.
func (r *RedisIndexer[K, V]) Sync() error {
	return nil
}
