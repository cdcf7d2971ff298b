package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "postnotify"

// Redis keeps each namespace in one hash named "<prefix>:<namespace>".
type Redis struct {
	client *redis.Client
	prefix string
}

var _ KV = (*Redis)(nil)

// OpenRedis connects to addr and checks the connection with PING.
func OpenRedis(ctx context.Context, addr, password string, db int, prefix string) (*Redis, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, errors.New("redis addr is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}

	return NewRedis(client, prefix), nil
}

// NewRedis wraps an existing client.
func NewRedis(client *redis.Client, prefix string) *Redis {
	if strings.TrimSpace(prefix) == "" {
		prefix = defaultRedisPrefix
	}
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) hashKey(namespace string) string {
	return r.prefix + ":" + namespace
}

func (r *Redis) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	err := r.client.Close()
	r.client = nil
	return err
}

func (r *Redis) Get(ctx context.Context, namespace, key string) (string, bool, error) {
	if r == nil || r.client == nil {
		return "", false, ErrNotInitialized
	}
	if err := validateKey(namespace, key); err != nil {
		return "", false, err
	}

	value, err := r.client.HGet(ctx, r.hashKey(namespace), key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %s/%s: %w", namespace, key, err)
	}
	return value, true, nil
}

func (r *Redis) Put(ctx context.Context, namespace, key, value string) error {
	return r.PutMany(ctx, namespace, map[string]string{key: value})
}

func (r *Redis) PutMany(ctx context.Context, namespace string, entries map[string]string) error {
	if r == nil || r.client == nil {
		return ErrNotInitialized
	}
	if len(entries) == 0 {
		return nil
	}

	fields := make([]any, 0, len(entries)*2)
	for key, value := range entries {
		if err := validateKey(namespace, key); err != nil {
			return err
		}
		fields = append(fields, key, value)
	}

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, r.hashKey(namespace), fields...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", namespace, err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, namespace, key string) error {
	if r == nil || r.client == nil {
		return ErrNotInitialized
	}
	if err := validateKey(namespace, key); err != nil {
		return err
	}
	if err := r.client.HDel(ctx, r.hashKey(namespace), key).Err(); err != nil {
		return fmt.Errorf("delete %s/%s: %w", namespace, key, err)
	}
	return nil
}

func (r *Redis) List(ctx context.Context, namespace string) (map[string]string, error) {
	if r == nil || r.client == nil {
		return nil, ErrNotInitialized
	}
	result, err := r.client.HGetAll(ctx, r.hashKey(namespace)).Result()
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", namespace, err)
	}
	return result, nil
}
