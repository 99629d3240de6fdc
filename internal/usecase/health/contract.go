package health

import "context"

// StoragePinger checks snapshot backend availability.
type StoragePinger interface {
	Ping(ctx context.Context) error
}

// DurabilityReporter reports whether every in-memory mutation has been persisted.
type DurabilityReporter interface {
	Durable() bool
}
