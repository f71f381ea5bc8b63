package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/hanko-field/storefront/internal/platform/config"
	pfirestore "github.com/hanko-field/storefront/internal/platform/firestore"
	"github.com/hanko-field/storefront/internal/platform/idempotency"
	"github.com/hanko-field/storefront/internal/platform/jobs"
	"github.com/hanko-field/storefront/internal/platform/observability"
	"github.com/hanko-field/storefront/internal/repositories"
	"github.com/hanko-field/storefront/internal/repositories/filestore"
	firestoreRepo "github.com/hanko-field/storefront/internal/repositories/firestore"
	"github.com/hanko-field/storefront/internal/repositories/memory"
	redisRepo "github.com/hanko-field/storefront/internal/repositories/redis"
	"github.com/hanko-field/storefront/internal/services"
)

const dependencyCheckTimeout = 1500 * time.Millisecond

type cartBackend struct {
	repo    repositories.CartSnapshotRepository
	checks  []repositories.DependencyCheck
	redis   *goredis.Client
	closers []func() error
}

func (b cartBackend) Close(logger *zap.Logger) {
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			logger.Warn("cart backend close error", zap.Error(err))
		}
	}
}

func openCartBackend(ctx context.Context, cfg config.Config) (cartBackend, error) {
	switch cfg.Cart.Backend {
	case config.CartBackendFile:
		repo, err := filestore.NewCartRepository(cfg.Cart.FilePath)
		if err != nil {
			return cartBackend{}, err
		}
		return cartBackend{repo: repo, checks: []repositories.DependencyCheck{pingCheck("cart_file", repo.Ping)}}, nil

	case config.CartBackendRedis:
		client, err := redisRepo.Connect(ctx, redisRepo.Options{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err != nil {
			return cartBackend{}, err
		}
		repo, err := redisRepo.NewCartRepository(client, cfg.Cart.StorageKey)
		if err != nil {
			_ = client.Close()
			return cartBackend{}, err
		}
		return cartBackend{
			repo:    repo,
			checks:  []repositories.DependencyCheck{pingCheck("redis", repo.Ping)},
			redis:   client,
			closers: []func() error{client.Close},
		}, nil

	case config.CartBackendFirestore:
		provider := pfirestore.NewProvider(cfg.Firestore,
			pfirestore.WithDialTimeout(cfg.Firestore.DialTimeout),
			pfirestore.WithClientOptions(option.WithUserAgent(userAgent(cfg))),
		)
		repo, err := firestoreRepo.NewCartRepository(provider, cfg.Firestore.Collection, cfg.Cart.StorageKey)
		if err != nil {
			return cartBackend{}, err
		}
		closeProvider := func() error {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return provider.Close(closeCtx)
		}
		return cartBackend{
			repo:    repo,
			checks:  []repositories.DependencyCheck{pingCheck("firestore", repo.Ping)},
			closers: []func() error{closeProvider},
		}, nil

	case config.CartBackendMemory:
		repo := memory.NewCartRepository()
		return cartBackend{repo: repo, checks: []repositories.DependencyCheck{loadCheck("cart_memory", repo)}}, nil
	}
	return cartBackend{}, fmt.Errorf("unknown cart backend %q", cfg.Cart.Backend)
}

func pingCheck(name string, ping func(context.Context) error) repositories.DependencyCheck {
	return repositories.DependencyCheck{Name: name, Timeout: dependencyCheckTimeout, Check: ping}
}

// loadCheck probes a backend without a ping by loading the snapshot. A missing snapshot is healthy.
func loadCheck(name string, repo repositories.CartSnapshotRepository) repositories.DependencyCheck {
	return repositories.DependencyCheck{
		Name:    name,
		Timeout: dependencyCheckTimeout,
		Check: func(ctx context.Context) error {
			_, err := repo.Load(ctx)
			var repoErr repositories.RepositoryError
			if errors.As(err, &repoErr) && repoErr.IsNotFound() {
				return nil
			}
			return err
		},
	}
}

// newIdempotencyStore shares redis with the cart backend when available so replays survive restarts.
func newIdempotencyStore(backend cartBackend) idempotency.Store {
	if backend.redis != nil {
		store, err := idempotency.NewRedisStore(backend.redis)
		if err == nil {
			return store
		}
	}
	return idempotency.NewMemoryStore()
}

func buildNotifier(ctx context.Context, cfg config.Config, logger *zap.Logger) (services.Notifier, func(), error) {
	notifiers := services.MultiNotifier{services.NewLogNotifier(logger)}
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	eventLogger := observability.EventLogger(logger.Named("jobs"))

	if topicName := strings.TrimSpace(cfg.Notifications.PubSubTopic); topicName != "" {
		client, err := pubsub.NewClient(ctx, cfg.Notifications.PubSubProjectID, option.WithUserAgent(userAgent(cfg)))
		if err != nil {
			return nil, closeAll, fmt.Errorf("pubsub client: %w", err)
		}
		notifier, err := jobs.NewPubSubNotifier(client.Topic(topicName), eventLogger)
		if err != nil {
			_ = client.Close()
			return nil, closeAll, err
		}
		notifiers = append(notifiers, notifier)
		closers = append(closers, func() {
			notifier.Close()
			if err := client.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		})
	}

	if url := strings.TrimSpace(cfg.Notifications.NATSURL); url != "" {
		conn, err := jobs.ConnectNATS(url)
		if err != nil {
			closeAll()
			return nil, func() {}, err
		}
		notifier, err := jobs.NewNATSNotifier(conn, cfg.Notifications.NATSSubjectPrefix, eventLogger)
		if err != nil {
			conn.Close()
			closeAll()
			return nil, func() {}, err
		}
		notifiers = append(notifiers, notifier)
		closers = append(closers, func() {
			if err := conn.Drain(); err != nil {
				logger.Warn("nats drain error", zap.Error(err))
			}
		})
	}

	return notifiers, closeAll, nil
}

func userAgent(cfg config.Config) string {
	if version := strings.TrimSpace(cfg.Build.Version); version != "" {
		return "storefront/" + version
	}
	return "storefront"
}
