// Package store persists the last seen fingerprint per device.
//
// The poller reads a device's fingerprint and writes it back later in the
// same run. The read-then-write is not atomic: two overlapping runs for the
// same device can lose an update. Backends only have to provide
// last-write-wins semantics.
package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/cros-updates/cros-updates/internal/fingerprint"
	"github.com/cros-updates/cros-updates/pkg/config"
	"github.com/nats-io/nats.go"
)

type Store interface {
	// Get returns the stored fingerprint. found is false when nothing is
	// stored for deviceID; a non-nil error always means the read failed.
	Get(ctx context.Context, deviceID string) (fp fingerprint.Fingerprint, found bool, err error)
	// Put stores fp for deviceID, replacing any previous value.
	Put(ctx context.Context, deviceID string, fp fingerprint.Fingerprint) error
	Close() error
}

// Open creates the backend selected in cfg.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Backend {
	case config.StoreBackendFile:
		return NewFileStore(cfg.Path), nil
	case config.StoreBackendMemory:
		return NewMemoryStore(), nil
	case config.StoreBackendSQLite:
		dsn := cfg.DSN
		if dsn == "" {
			dsn = cfg.Path
		}
		db, err := sql.Open(DriverSQLite, dsn)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		db.SetMaxOpenConns(1)
		return NewSQLStore(ctx, db, cfg.Table)
	case config.StoreBackendPG:
		db, err := sql.Open(DriverPostgres, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return NewSQLStore(ctx, db, cfg.Table)
	case config.StoreBackendNATS:
		nc, err := nats.Connect(cfg.NATSURL, nats.Name("cros-updates-store"))
		if err != nil {
			return nil, fmt.Errorf("connect nats store: %w", err)
		}
		s, err := NewKVStore(ctx, nc, cfg.Bucket)
		if err != nil {
			nc.Close()
			return nil, err
		}
		s.ownsConn = true
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
