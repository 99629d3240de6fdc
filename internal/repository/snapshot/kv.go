package snapshot

import (
	"context"
	"errors"
	"fmt"

	"github.com/kailas-cloud/tokenwatch/internal/db"
	"github.com/kailas-cloud/tokenwatch/internal/domain"
	"github.com/kailas-cloud/tokenwatch/internal/domain/usage"
)

// DefaultKey is the key holding the document when storage.key is not set.
const DefaultKey = domain.KeyPrefix + "state"

// kvStore is the consumer interface for the key-value backend (ISP).
type kvStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Ping(ctx context.Context) error
	Close()
}

// KV stores the document under one key of a db.KVStore (Redis).
type KV struct {
	store kvStore
	key   string
}

// NewKV creates a key-value backend. An empty key falls back to DefaultKey.
func NewKV(s kvStore, key string) *KV {
	if key == "" {
		key = DefaultKey
	}
	return &KV{store: s, key: key}
}

// Load reads the document.
func (k *KV) Load(ctx context.Context) (*usage.State, error) {
	data, err := k.store.Get(ctx, k.key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("snapshot GET %s: %w", k.key, err)
	}
	return decode(data)
}

// Save overwrites the document. SET replaces the value atomically.
func (k *KV) Save(ctx context.Context, state *usage.State) error {
	data, err := encode(state)
	if err != nil {
		return err
	}
	if err := k.store.Set(ctx, k.key, data); err != nil {
		return fmt.Errorf("snapshot SET %s: %w", k.key, err)
	}
	return nil
}

// Ping checks connectivity.
func (k *KV) Ping(ctx context.Context) error {
	return k.store.Ping(ctx)
}

// Close closes the underlying client.
func (k *KV) Close() error {
	k.store.Close()
	return nil
}
