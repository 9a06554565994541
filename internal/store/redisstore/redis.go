// Package redisstore implements store.Store on Redis.
//
// Every path is a hash whose fields hold JSON-encoded values. Each parent path
// keeps a sorted set of its child keys, all with score 0, so lexicographic
// range queries give key order the way the Realtime Database's orderByKey does
// for non-numeric keys.
package redisstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/rewired-gh/solarcast/internal/store"
)

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// Store keeps the document tree in Redis.
type Store struct {
	client redis.UniversalClient
	prefix string
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, opts Options) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     10,
		MinIdleConns: 1,
		MaxRetries:   3,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewWithClient(client, opts.Prefix), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "solarcast"
	}
	return &Store{client: client, prefix: prefix}
}

func (s *Store) docKey(path string) string {
	return s.prefix + ":doc:" + store.Join(path)
}

func (s *Store) childrenKey(path string) string {
	return s.prefix + ":children:" + store.Join(path)
}

type edge struct {
	parent string
	child  string
}

// ancestry lists every parent/child edge from the root down to path.
func ancestry(path string) []edge {
	var edges []edge
	for p := store.Join(path); p != ""; {
		parent, child := store.Split(p)
		edges = append(edges, edge{parent: parent, child: child})
		p = parent
	}
	return edges
}

func encodeDoc(doc map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to encode field %s: %w", k, err)
		}
		out[k] = string(b)
	}
	return out, nil
}

func decodeDoc(raw map[string]string) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(raw))
	for k, s := range raw {
		var v any
		if err := json.Unmarshal([]byte(s), &v); err != nil {
			return nil, fmt.Errorf("field %s: %w: %w", k, store.ErrMalformed, err)
		}
		out[k] = v
	}
	return out, nil
}

// Get returns the document at path.
func (s *Store) Get(ctx context.Context, path string) (map[string]any, error) {
	raw, err := s.client.HGetAll(ctx, s.docKey(path)).Result()
	if err != nil {
		return nil, store.Unavailable("get", path, err)
	}
	doc, err := decodeDoc(raw)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return doc, nil
}

func (s *Store) write(ctx context.Context, op, path string, doc map[string]any, replace bool) error {
	fields, err := encodeDoc(doc)
	if err != nil {
		return err
	}
	key := s.docKey(path)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if replace {
			pipe.Del(ctx, key)
		}
		if len(fields) > 0 {
			pipe.HSet(ctx, key, fields)
		}
		for _, e := range ancestry(path) {
			pipe.ZAdd(ctx, s.childrenKey(e.parent), redis.Z{Score: 0, Member: e.child})
		}
		return nil
	})
	if err != nil {
		return store.Unavailable(op, path, err)
	}
	return nil
}

// Set replaces the document at path.
func (s *Store) Set(ctx context.Context, path string, doc map[string]any) error {
	return s.write(ctx, "set", path, doc, true)
}

// Update merges fields into the document at path.
func (s *Store) Update(ctx context.Context, path string, fields map[string]any) error {
	return s.write(ctx, "update", path, fields, false)
}

// LastChild returns the lexicographically greatest child of prefix.
func (s *Store) LastChild(ctx context.Context, prefix string) (string, bool, error) {
	keys, err := s.client.ZRevRangeByLex(ctx, s.childrenKey(prefix), &redis.ZRangeBy{
		Max:   "+",
		Min:   "-",
		Count: 1,
	}).Result()
	if err != nil {
		return "", false, store.Unavailable("last_child", prefix, err)
	}
	if len(keys) == 0 {
		return "", false, nil
	}
	return keys[0], true, nil
}

// Close closes the Redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
