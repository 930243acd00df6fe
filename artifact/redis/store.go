// Package redis implements core.ArtifactStore on Redis. Metadata and content
// are kept in separate keys so staleness checks never transfer content, and
// a sorted set indexes artifact names for prefix listing.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	backend "github.com/redis/go-redis/v9"

	"github.com/hupe1980/llmflow/core"
)

// Store implements core.ArtifactStore using Redis.
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
	clock  *core.Clock
}

type Option func(*Store)

// WithTTL sets the expiration for artifacts. Zero keeps them forever.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix for artifacts.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a new Redis store with options.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a new Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: "llmflow:artifact:",
		clock:  core.NewClock(),
	}

	for _, opt := range opts {
		opt(store)
	}

	return store
}

func (s *Store) metaKey(name string) string    { return s.prefix + "meta:" + name }
func (s *Store) contentKey(name string) string { return s.prefix + "content:" + name }
func (s *Store) indexKey() string              { return s.prefix + "index" }

func getMetadata(ctx context.Context, c backend.Cmdable, key string) (*core.ArtifactMetadata, error) {
	val, err := c.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, core.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}
	var md core.ArtifactMetadata
	if err := json.Unmarshal(val, &md); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return &md, nil
}

// LatestMetadata loads only the metadata key.
func (s *Store) LatestMetadata(ctx context.Context, name string) (*core.ArtifactMetadata, error) {
	return getMetadata(ctx, s.client, s.metaKey(name))
}

// Latest loads metadata and content.
func (s *Store) Latest(ctx context.Context, name string) (*core.Artifact, error) {
	md, err := s.LatestMetadata(ctx, name)
	if err != nil {
		return nil, err
	}
	content, err := s.client.Get(ctx, s.contentKey(name)).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, core.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}
	return &core.Artifact{Metadata: *md, Content: content}, nil
}

// Save persists the artifact inside a WATCH transaction on the metadata key.
// A concurrent writer that commits first turns this save into a
// *core.WriteConflictError.
func (s *Store) Save(ctx context.Context, a core.Artifact) (*core.ArtifactMetadata, error) {
	name := a.Metadata.Name
	mk := s.metaKey(name)

	var saved core.ArtifactMetadata
	err := s.client.Watch(ctx, func(tx *backend.Tx) error {
		var current core.ArtifactMetadata
		prev, err := getMetadata(ctx, tx, mk)
		switch {
		case err == nil:
			current = *prev
		case !errors.Is(err, core.ErrNotFound):
			return err
		}
		if current.Version != a.Metadata.Version {
			return &core.WriteConflictError{Name: name, Expected: a.Metadata.Version, Actual: current.Version}
		}

		saved = a.Metadata.Clone()
		saved.Version = current.Version + 1
		saved.Timestamp = s.clock.After(current.Timestamp)
		saved.SizeBytes = len(a.Content)

		data, err := json.Marshal(saved)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
			pipe.Set(ctx, s.contentKey(name), a.Content, s.ttl)
			pipe.Set(ctx, mk, data, s.ttl)
			// score 0 for every member keeps the set in lexical order
			pipe.ZAdd(ctx, s.indexKey(), backend.Z{Score: 0, Member: name})
			return nil
		})
		return err
	}, mk)

	if errors.Is(err, backend.TxFailedErr) {
		actual := a.Metadata.Version + 1
		if md, mdErr := s.LatestMetadata(ctx, name); mdErr == nil {
			actual = md.Version
		}
		return nil, &core.WriteConflictError{Name: name, Expected: a.Metadata.Version, Actual: actual}
	}
	if err != nil {
		var conflict *core.WriteConflictError
		if errors.As(err, &conflict) || errors.Is(err, core.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to save to redis: %w", err)
	}
	return &saved, nil
}

// Delete removes the artifact.
func (s *Store) Delete(ctx context.Context, name string) error {
	n, err := s.client.Exists(ctx, s.metaKey(name)).Result()
	if err != nil {
		return fmt.Errorf("failed to check redis: %w", err)
	}
	if n == 0 {
		return core.ErrNotFound
	}

	pipe := s.client.Pipeline()
	pipe.Del(ctx, s.metaKey(name), s.contentKey(name))
	pipe.ZRem(ctx, s.indexKey(), name)

	_, err = pipe.Exec(ctx)
	return err
}

// List returns indexed names starting with prefix in lexical order. Names
// whose keys expired are dropped from the index lazily.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	rng := &backend.ZRangeBy{Min: "-", Max: "+"}
	if prefix != "" {
		rng = &backend.ZRangeBy{Min: "[" + prefix, Max: "[" + prefix + "\xff"}
	}
	names, err := s.client.ZRangeByLex(ctx, s.indexKey(), rng).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list redis index: %w", err)
	}
	if s.ttl == 0 || len(names) == 0 {
		return names, nil
	}

	live := make([]string, 0, len(names))
	for _, name := range names {
		n, err := s.client.Exists(ctx, s.metaKey(name)).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to check redis: %w", err)
		}
		if n == 0 {
			s.client.ZRem(ctx, s.indexKey(), name)
			continue
		}
		live = append(live, name)
	}
	return live, nil
}
