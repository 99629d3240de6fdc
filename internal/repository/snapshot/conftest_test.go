package snapshot

import (
	"context"
	"time"

	"github.com/kailas-cloud/tokenwatch/internal/db"
	"github.com/kailas-cloud/tokenwatch/internal/domain/usage"
)

// mockStore implements the kvStore consumer interface for tests.
type mockStore struct {
	data   map[string][]byte
	getErr error
	setErr error
	closed bool
}

func newMockStore() *mockStore {
	return &mockStore{data: make(map[string][]byte)}
}

func (m *mockStore) Get(_ context.Context, key string) ([]byte, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	v, ok := m.data[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return v, nil
}

func (m *mockStore) Set(_ context.Context, key string, value []byte) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.data[key] = value
	return nil
}

func (m *mockStore) Ping(_ context.Context) error { return nil }

func (m *mockStore) Close() { m.closed = true }

func sampleState() *usage.State {
	s := usage.NewState()
	s.SessionTokens["private_42"] = 150
	s.TokenCounts["private_42"] = 150
	s.LastUsage["private_42"] = 150
	s.UserTokens["u1"] = 150
	s.TotalTokens = 150
	s.SessionOrder = []string{"private_42"}
	s.Display["private_42"] = true
	s.History = append(s.History, usage.HistoryEntry{At: time.Unix(1700000000, 0).UTC(), Tokens: 150})
	return s
}
