package credentials

import (
	"context"

	"crm-tag-proxy/internal/common/errors"
)

// HashClient defines the Redis hash operations needed by the store.
// The interface abstracts the Redis client so tests can substitute a mock.
type HashClient interface {
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HSet(ctx context.Context, key string, fields map[string]interface{}) error
}

// RedisStore persists the credential record as a single Redis hash.
// Partial updates map directly onto HSET, which merges only the given
// fields and is atomic per key.
type RedisStore struct {
	client HashClient
	key    string
}

// DefaultKey is the hash key holding the singleton credential record.
const DefaultKey = "zoho:credentials"

// NewRedisStore creates a credential store over the given Redis client.
// An empty key falls back to DefaultKey.
func NewRedisStore(client HashClient, key string) *RedisStore {
	if key == "" {
		key = DefaultKey
	}
	return &RedisStore{client: client, key: key}
}

// Get reads the credential record. A missing record yields an empty Record,
// which the token manager treats as stale.
func (s *RedisStore) Get(ctx context.Context) (*Record, error) {
	fields, err := s.client.HGetAll(ctx, s.key)
	if err != nil {
		return nil, errors.StorageError("failed to read credential record", err).WithContext("key", s.key)
	}
	return FromFields(fields), nil
}

// Update merges the given fields into the stored record.
func (s *RedisStore) Update(ctx context.Context, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return nil
	}
	if err := s.client.HSet(ctx, s.key, fields); err != nil {
		return errors.StorageError("failed to update credential record", err).WithContext("key", s.key)
	}
	return nil
}

// Seed writes the full record if no record exists yet. It is used at startup
// to bootstrap the app-registration secrets from the environment.
func (s *RedisStore) Seed(ctx context.Context, record *Record) error {
	existing, err := s.Get(ctx)
	if err != nil {
		return err
	}
	if existing.ClientID != "" {
		return nil
	}
	return s.Update(ctx, record.Fields())
}
