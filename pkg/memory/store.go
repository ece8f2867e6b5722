package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownBackend is returned by Open for unsupported backend names.
var ErrUnknownBackend = errors.New("memory: unknown backend")

// Store persists context records.
type Store interface {
	// Append stores r. Appending a record whose id is already stored is a no-op.
	Append(ctx context.Context, r Record) error

	// Recent returns up to n records for agentID, oldest first.
	Recent(ctx context.Context, agentID string, n int) ([]Record, error)

	// HasAuthor reports whether author has any record for agentID.
	HasAuthor(ctx context.Context, agentID, author string) (bool, error)

	// Close releases any resources held by the store.
	Close() error
}

// Options selects and configures a backend for Open.
type Options struct {
	Backend    string // memory, file, redis
	Path       string
	MaxRecords int

	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// Open builds the store named by opts.Backend.
func Open(opts Options) (Store, error) {
	switch strings.ToLower(opts.Backend) {
	case "", "memory":
		return NewMemoryStore(opts.MaxRecords), nil
	case "file":
		s, err := NewFileStore(opts.Path, opts.MaxRecords)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "redis":
		s, err := NewRedisStore(RedisConfig{
			Addr:       opts.RedisAddr,
			Password:   opts.RedisPassword,
			DB:         opts.RedisDB,
			MaxRecords: opts.MaxRecords,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
	}
}
