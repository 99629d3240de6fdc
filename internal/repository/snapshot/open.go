package snapshot

import (
	"context"
	"fmt"
	"time"

	dbRedis "github.com/kailas-cloud/tokenwatch/internal/db/redis"
)

// Config selects and configures a backend.
type Config struct {
	Driver           string
	Path             string // file and sqlite
	Addrs            []string
	Username         string
	Password         string
	DB               int
	Key              string
	ReadinessTimeout time.Duration // redis only
	BusyTimeout      time.Duration // sqlite only
}

// Open builds the backend named by cfg.Driver. A Redis backend is returned
// only after the server answers a ping within ReadinessTimeout.
func Open(ctx context.Context, cfg Config) (Backend, error) {
	switch cfg.Driver {
	case DriverFile, "":
		f, err := NewFile(cfg.Path)
		if err != nil {
			return nil, err
		}
		return f, nil
	case DriverSQLite:
		s, err := NewSQLite(ctx, cfg.Path, cfg.BusyTimeout)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverRedis:
		store, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Addrs,
			Username: cfg.Username,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
		if err != nil {
			return nil, fmt.Errorf("create redis store: %w", err)
		}
		timeout := cfg.ReadinessTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		if err := store.WaitForReady(ctx, timeout); err != nil {
			store.Close()
			return nil, fmt.Errorf("redis not ready: %w", err)
		}
		return NewKV(store, cfg.Key), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
