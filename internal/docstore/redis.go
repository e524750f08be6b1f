package docstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"
)

// Redis stores each document under doc:{collection}:{key} and keeps a set of
// keys per collection for Query. Update uses WATCH/MULTI so a concurrent
// write to the same document aborts the transaction and triggers a retry.
type Redis struct {
	rdb *redis.Client
}

func NewRedis(rdb *redis.Client) *Redis {
	return &Redis{rdb: rdb}
}

func docKey(collection, key string) string { return "doc:" + collection + ":" + key }
func indexKey(collection string) string    { return "docidx:" + collection }

func (r *Redis) Get(ctx context.Context, collection, key string) ([]byte, error) {
	b, err := r.rdb.Get(ctx, docKey(collection, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return b, nil
}

func (r *Redis) Update(ctx context.Context, collection, key string, fn UpdateFunc) ([]byte, error) {
	k := docKey(collection, key)
	var out []byte
	txf := func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, k).Bytes()
		exists := true
		if errors.Is(err, redis.Nil) {
			exists, cur = false, nil
		} else if err != nil {
			return err
		}
		next, err := fn(cur, exists)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, k, next, 0)
			pipe.SAdd(ctx, indexKey(collection), key)
			return nil
		})
		out = next
		return err
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		err := r.rdb.Watch(ctx, txf, k)
		if err == nil {
			return out, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, err
	}
	return nil, ErrConflict
}

func (r *Redis) Query(ctx context.Context, collection string, f Filter) ([]Document, error) {
	members, err := r.rdb.SMembers(ctx, indexKey(collection)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers: %w", err)
	}
	keys := make([]string, 0, len(members))
	for _, m := range members {
		if strings.HasPrefix(m, f.KeyPrefix) {
			keys = append(keys, m)
		}
	}
	if len(keys) == 0 {
		return nil, nil
	}
	sort.Strings(keys)

	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = docKey(collection, k)
	}
	vals, err := r.rdb.MGet(ctx, full...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget: %w", err)
	}

	out := make([]Document, 0, len(keys))
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			// indexed but deleted in between
			continue
		}
		out = append(out, Document{Key: keys[i], Data: []byte(s)})
	}
	return out, nil
}

func (r *Redis) Delete(ctx context.Context, collection, key string) error {
	var del *redis.IntCmd
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, docKey(collection, key))
		pipe.SRem(ctx, indexKey(collection), key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis delete: %w", err)
	}
	if del.Val() == 0 {
		return ErrNotFound
	}
	return nil
}

// Close is a no-op; the client is owned by redisx.
func (r *Redis) Close() error { return nil }
