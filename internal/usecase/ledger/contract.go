package ledger

import (
	"context"

	"github.com/kailas-cloud/tokenwatch/internal/domain/usage"
)

// Store is the durable home of the usage document.
type Store interface {
	Load(ctx context.Context) (*usage.State, error)
	Save(ctx context.Context, state *usage.State) error
}
