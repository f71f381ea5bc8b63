package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/repositories"
)

const (
	maxRetries      = 3
	minRetryBackoff = 100 * time.Millisecond
	maxRetryBackoff = 300 * time.Millisecond
	pingTimeout     = 5 * time.Second
)

// Options configures the Redis connection.
type Options struct {
	Addr         string
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Connect opens a Redis client and verifies it with a ping.
func Connect(ctx context.Context, opts Options) (*goredis.Client, error) {
	addr := strings.TrimSpace(opts.Addr)
	if addr == "" {
		return nil, errors.New("redis: address is required")
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:            addr,
		Password:        opts.Password,
		DB:              opts.DB,
		MaxRetries:      maxRetries,
		MinRetryBackoff: minRetryBackoff,
		MaxRetryBackoff: maxRetryBackoff,
		DialTimeout:     opts.DialTimeout,
		ReadTimeout:     opts.ReadTimeout,
		WriteTimeout:    opts.WriteTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", addr, err)
	}
	return client, nil
}

// CartRepository stores the encoded cart snapshot under a single key.
type CartRepository struct {
	client goredis.Cmdable
	key    string
}

var _ repositories.CartSnapshotRepository = (*CartRepository)(nil)

// NewCartRepository constructs a Redis-backed cart repository.
func NewCartRepository(client goredis.Cmdable, key string) (*CartRepository, error) {
	if client == nil {
		return nil, errors.New("redis cart repository: client is required")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		key = repositories.DefaultStorageKey
	}
	return &CartRepository{client: client, key: key}, nil
}

// Load implements repositories.CartSnapshotRepository.
func (r *CartRepository) Load(ctx context.Context) (domain.Cart, error) {
	data, err := r.client.Get(ctx, r.key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return domain.Cart{}, repositories.NewNotFoundError("redis cart load")
	}
	if err != nil {
		return domain.Cart{}, repositories.NewUnavailableError("redis cart load", err)
	}
	cart, err := repositories.DecodeCart(data)
	if err != nil {
		return domain.Cart{}, repositories.NewCorruptError("redis cart load", err)
	}
	return cart, nil
}

// Save implements repositories.CartSnapshotRepository.
func (r *CartRepository) Save(ctx context.Context, cart domain.Cart) error {
	data, err := repositories.EncodeCart(cart)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.key, data, 0).Err(); err != nil {
		return repositories.NewUnavailableError("redis cart save", err)
	}
	return nil
}

// Ping reports whether Redis answers.
func (r *CartRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
