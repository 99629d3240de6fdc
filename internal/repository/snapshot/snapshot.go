// Package snapshot persists the usage document to durable storage.
//
// Every backend reads and writes the whole document at once; a write either
// fully lands or leaves the previous snapshot in place.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kailas-cloud/tokenwatch/internal/domain"
	"github.com/kailas-cloud/tokenwatch/internal/domain/usage"
)

// ErrNotFound is returned by Load when nothing has been persisted yet.
var ErrNotFound = fmt.Errorf("snapshot %w", domain.ErrNotFound)

// Driver names accepted by storage.driver.
const (
	DriverFile   = "file"
	DriverRedis  = "redis"
	DriverSQLite = "sqlite"
)

// Backend is a durable home for the usage document.
type Backend interface {
	Load(ctx context.Context) (*usage.State, error)
	Save(ctx context.Context, state *usage.State) error
	Ping(ctx context.Context) error
	Close() error
}

func encode(state *usage.State) ([]byte, error) {
	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return data, nil
}

func decode(data []byte) (*usage.State, error) {
	state := usage.NewState()
	if err := json.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return state, nil
}
