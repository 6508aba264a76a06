package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	backend "github.com/redis/go-redis/v9"
	"github.com/sgttomas/chirality-runtime/pkg/domain"
)

// neverExpires is the index score of records saved without a TTL (2100-01-01).
const neverExpires = 4102444800

// Store implements ports.Repository[T] using Redis.
// Each record is a JSON string; a ZSET indexes ids by expiry for List.
type Store[T any] struct {
	client *backend.Client
	entity string
	prefix string
	ttl    time.Duration
}

// Option configures a Store.
type Option func(*options)

type options struct {
	prefix string
	ttl    time.Duration
}

// WithTTL sets the expiration for records.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) {
		o.ttl = ttl
	}
}

// WithPrefix sets the key prefix for records.
func WithPrefix(prefix string) Option {
	return func(o *options) {
		o.prefix = prefix
	}
}

// New creates a Redis store for one entity kind, dialing its own client.
func New[T any](entity, address, password string, db int, opts ...Option) *Store[T] {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient[T](rdb, entity, opts...)
}

// NewFromClient creates a Redis store from an existing client.
// The default key prefix is "chirality:<entity>:".
func NewFromClient[T any](client *backend.Client, entity string, opts ...Option) *Store[T] {
	o := options{prefix: "chirality:" + strings.ToLower(entity) + ":"}
	for _, opt := range opts {
		opt(&o)
	}

	return &Store[T]{
		client: client,
		entity: entity,
		prefix: o.prefix,
		ttl:    o.ttl,
	}
}

func (s *Store[T]) key(id string) string {
	return s.prefix + id
}

func (s *Store[T]) indexKey() string {
	return s.prefix + "index"
}

// Save persists the record and refreshes its index entry.
func (s *Store[T]) Save(ctx context.Context, id string, v *T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", s.entity, err)
	}

	score := float64(time.Now().Add(s.ttl).Unix())
	if s.ttl == 0 {
		score = neverExpires
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.key(id), data, s.ttl)
	pipe.ZAdd(ctx, s.indexKey(), backend.Z{
		Score:  score,
		Member: id,
	})

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save to redis: %w", err)
	}
	return nil
}

// Load retrieves the record.
func (s *Store[T]) Load(ctx context.Context, id string) (*T, error) {
	val, err := s.client.Get(ctx, s.key(id)).Result()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, &domain.NotFoundError{EntityType: s.entity, ID: id}
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	var v T
	if err := json.Unmarshal([]byte(val), &v); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", s.entity, err)
	}
	return &v, nil
}

// Delete removes the record and its index entry.
func (s *Store[T]) Delete(ctx context.Context, id string) error {
	pipe := s.client.Pipeline()
	pipe.Del(ctx, s.key(id))
	pipe.ZRem(ctx, s.indexKey(), id)

	_, err := pipe.Exec(ctx)
	return err
}

// List returns live ids, pruning index entries whose TTL has passed.
func (s *Store[T]) List(ctx context.Context) ([]string, error) {
	now := float64(time.Now().Unix())
	err := s.client.ZRemRangeByScore(ctx, s.indexKey(), "-inf", fmt.Sprintf("%f", now)).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to prune expired %s records: %w", s.entity, err)
	}

	ids, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list %s records: %w", s.entity, err)
	}
	return ids, nil
}

// Close closes the redis client.
func (s *Store[T]) Close() error {
	return s.client.Close()
}
