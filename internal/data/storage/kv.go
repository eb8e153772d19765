package storage

import (
	"context"
	"fmt"
)

// KV is the key-value persistence surface shared by every backend. Values are
// opaque JSON documents; Get reports ErrNotFound for missing keys.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Open returns the backend named by driver.
func Open(driver, dsn string) (KV, error) {
	switch driver {
	case DriverMemory:
		return NewMemoryKV(), nil
	case DriverSQLite, "":
		return NewSQLiteKV(dsn)
	case DriverPostgres:
		return NewPostgresStorage(dsn)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
}

func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidInput)
	}
	return nil
}
