// Package store persists run state between invocations: the handle to id
// cache, per-account watermarks and cached author details.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Namespaces used by the fetch engine.
const (
	NamespaceHandles    = "handle_to_id"
	NamespaceWatermarks = "watermark_by_id"
	NamespaceAuthors    = "author_info_by_id"
)

// Drivers accepted by Open.
const (
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

// ErrNotInitialized is returned when a method is called on a nil or closed store.
var ErrNotInitialized = errors.New("store is not initialized")

// KV is a durable string map partitioned by namespace.
type KV interface {
	// Get returns the value for key and whether it was present.
	Get(ctx context.Context, namespace, key string) (string, bool, error)
	Put(ctx context.Context, namespace, key, value string) error
	// PutMany writes all entries or none of them.
	PutMany(ctx context.Context, namespace string, entries map[string]string) error
	Delete(ctx context.Context, namespace, key string) error
	List(ctx context.Context, namespace string) (map[string]string, error)
	Close() error
}

// Options selects and configures a backend.
type Options struct {
	Driver string

	// sqlite
	Path string

	// redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
}

// Open returns the backend named by opts.Driver. An empty driver means sqlite.
func Open(ctx context.Context, opts Options) (KV, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Driver)) {
	case "", DriverSQLite:
		return OpenSQLite(opts.Path)
	case DriverRedis:
		return OpenRedis(ctx, opts.RedisAddr, opts.RedisPassword, opts.RedisDB, opts.RedisPrefix)
	default:
		return nil, fmt.Errorf("unknown storage driver %q (want sqlite or redis)", opts.Driver)
	}
}

func validateKey(namespace, key string) error {
	if strings.TrimSpace(namespace) == "" {
		return errors.New("namespace is required")
	}
	if key == "" {
		return errors.New("key is required")
	}
	return nil
}
