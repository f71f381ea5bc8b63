package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultEnvFile              = ".env"
	defaultPort                 = "8080"
	defaultReadTimeout          = 15 * time.Second
	defaultWriteTimeout         = 30 * time.Second
	defaultIdleTimeout          = 120 * time.Second
	defaultEnvironment          = "local"
	defaultLogLevel             = "info"
	defaultCartBackend          = CartBackendFile
	defaultCartStorageKey       = "shopping-cart"
	defaultCartFile             = ".data/shopping-cart.json"
	defaultRedisAddr            = "127.0.0.1:6379"
	defaultRedisDialTimeout     = 5 * time.Second
	defaultRedisIOTimeout       = 3 * time.Second
	defaultFirestoreCollection  = "carts"
	defaultFirestoreDialTimeout = 10 * time.Second
	defaultCatalogBaseURL       = "https://fakestoreapi.com"
	defaultCatalogTimeout       = 10 * time.Second
	defaultCatalogAttempts      = 3
	defaultProcessingDelay      = 2 * time.Second
	defaultNATSSubjectPrefix    = "storefront.notifications"
	defaultIdempotencyHeader    = "Idempotency-Key"
	defaultIdempotencyTTL       = 24 * time.Hour
	defaultIdempotencyInterval  = time.Hour
	defaultIdempotencyBatch     = 200
)

// Cart persistence backends.
const (
	CartBackendFile      = "file"
	CartBackendRedis     = "redis"
	CartBackendFirestore = "firestore"
	CartBackendMemory    = "memory"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server        ServerConfig
	Logging       LoggingConfig
	Cart          CartConfig
	Redis         RedisConfig
	Firestore     FirestoreConfig
	Catalog       CatalogConfig
	Checkout      CheckoutConfig
	Notifications NotificationConfig
	Idempotency   IdempotencyConfig
	Build         BuildConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	Level string
}

// CartConfig selects where the cart snapshot lives.
type CartConfig struct {
	Backend    string
	StorageKey string
	FilePath   string
}

// RedisConfig stores connection parameters for the redis backend.
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
	Collection   string
	DialTimeout  time.Duration
}

// CatalogConfig points at the remote product API.
type CatalogConfig struct {
	BaseURL     string
	Timeout     time.Duration
	MaxAttempts int
}

// CheckoutConfig tunes the simulated order placement.
type CheckoutConfig struct {
	ProcessingDelay time.Duration
}

// NotificationConfig enables optional notification sinks. Empty values disable a sink.
type NotificationConfig struct {
	PubSubProjectID   string
	PubSubTopic       string
	NATSURL           string
	NATSSubjectPrefix string
}

// IdempotencyConfig controls idempotency middleware behaviour.
type IdempotencyConfig struct {
	Header           string
	TTL              time.Duration
	CleanupInterval  time.Duration
	CleanupBatchSize int
}

// BuildConfig describes the running binary.
type BuildConfig struct {
	Version     string
	CommitSHA   string
	Environment string
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
}

// WithEnvFile overrides the .env file path used for local overrides. An empty path disables it.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map. Values in the map take precedence over
// system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from the process environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// Load assembles the configuration from defaults, the .env file, the environment and explicit overrides.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	if ctx == nil {
		return Config{}, errors.New("config: context is required")
	}
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if options.envMap != nil {
			if value, ok := options.envMap[key]; ok {
				return value, true
			}
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if dotEnvValues != nil {
			if value, ok := dotEnvValues[key]; ok {
				return value, true
			}
		}
		return "", false
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         stringWithDefault(lookup, "STOREFRONT_SERVER_PORT", stringWithDefault(lookup, "PORT", defaultPort)),
			ReadTimeout:  durationWithDefault(lookup, "STOREFRONT_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationWithDefault(lookup, "STOREFRONT_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationWithDefault(lookup, "STOREFRONT_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Logging: LoggingConfig{
			Level: strings.ToLower(stringWithDefault(lookup, "LOG_LEVEL", defaultLogLevel)),
		},
		Cart: CartConfig{
			Backend:    strings.ToLower(stringWithDefault(lookup, "STOREFRONT_CART_BACKEND", defaultCartBackend)),
			StorageKey: stringWithDefault(lookup, "STOREFRONT_CART_STORAGE_KEY", defaultCartStorageKey),
			FilePath:   stringWithDefault(lookup, "STOREFRONT_CART_FILE", defaultCartFile),
		},
		Redis: RedisConfig{
			Addr:         stringWithDefault(lookup, "STOREFRONT_REDIS_ADDR", defaultRedisAddr),
			Password:     stringWithDefault(lookup, "STOREFRONT_REDIS_PASSWORD", ""),
			DB:           intWithDefault(lookup, "STOREFRONT_REDIS_DB", 0),
			DialTimeout:  durationWithDefault(lookup, "STOREFRONT_REDIS_DIAL_TIMEOUT", defaultRedisDialTimeout),
			ReadTimeout:  durationWithDefault(lookup, "STOREFRONT_REDIS_READ_TIMEOUT", defaultRedisIOTimeout),
			WriteTimeout: durationWithDefault(lookup, "STOREFRONT_REDIS_WRITE_TIMEOUT", defaultRedisIOTimeout),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(lookup, "STOREFRONT_FIRESTORE_PROJECT_ID", stringWithDefault(lookup, "GOOGLE_CLOUD_PROJECT", "")),
			EmulatorHost: stringWithDefault(lookup, "FIRESTORE_EMULATOR_HOST", ""),
			Collection:   stringWithDefault(lookup, "STOREFRONT_FIRESTORE_COLLECTION", defaultFirestoreCollection),
			DialTimeout:  durationWithDefault(lookup, "STOREFRONT_FIRESTORE_DIAL_TIMEOUT", defaultFirestoreDialTimeout),
		},
		Catalog: CatalogConfig{
			BaseURL:     strings.TrimRight(stringWithDefault(lookup, "STOREFRONT_CATALOG_BASE_URL", defaultCatalogBaseURL), "/"),
			Timeout:     durationWithDefault(lookup, "STOREFRONT_CATALOG_TIMEOUT", defaultCatalogTimeout),
			MaxAttempts: intWithDefault(lookup, "STOREFRONT_CATALOG_MAX_ATTEMPTS", defaultCatalogAttempts),
		},
		Checkout: CheckoutConfig{
			ProcessingDelay: durationWithDefault(lookup, "STOREFRONT_CHECKOUT_PROCESSING_DELAY", defaultProcessingDelay),
		},
		Notifications: NotificationConfig{
			PubSubProjectID:   stringWithDefault(lookup, "STOREFRONT_PUBSUB_PROJECT_ID", ""),
			PubSubTopic:       stringWithDefault(lookup, "STOREFRONT_PUBSUB_TOPIC", ""),
			NATSURL:           stringWithDefault(lookup, "STOREFRONT_NATS_URL", ""),
			NATSSubjectPrefix: stringWithDefault(lookup, "STOREFRONT_NATS_SUBJECT_PREFIX", defaultNATSSubjectPrefix),
		},
		Idempotency: IdempotencyConfig{
			Header:           stringWithDefault(lookup, "STOREFRONT_IDEMPOTENCY_HEADER", defaultIdempotencyHeader),
			TTL:              durationWithDefault(lookup, "STOREFRONT_IDEMPOTENCY_TTL", defaultIdempotencyTTL),
			CleanupInterval:  durationWithDefault(lookup, "STOREFRONT_IDEMPOTENCY_CLEANUP_INTERVAL", defaultIdempotencyInterval),
			CleanupBatchSize: intWithDefault(lookup, "STOREFRONT_IDEMPOTENCY_CLEANUP_BATCH", defaultIdempotencyBatch),
		},
		Build: BuildConfig{
			Version:     stringWithDefault(lookup, "STOREFRONT_BUILD_VERSION", "dev"),
			CommitSHA:   stringWithDefault(lookup, "STOREFRONT_BUILD_COMMIT_SHA", "unknown"),
			Environment: strings.ToLower(stringWithDefault(lookup, "STOREFRONT_ENVIRONMENT", defaultEnvironment)),
		},
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validateConfig(cfg Config) error {
	var missing []string

	if strings.TrimSpace(cfg.Server.Port) == "" {
		missing = append(missing, "Server.Port")
	} else if port, err := strconv.Atoi(cfg.Server.Port); err != nil || port <= 0 || port > 65535 {
		missing = append(missing, "Server.Port")
	}
	if cfg.Server.ReadTimeout <= 0 {
		missing = append(missing, "Server.ReadTimeout")
	}
	if cfg.Server.WriteTimeout <= 0 {
		missing = append(missing, "Server.WriteTimeout")
	}

	switch cfg.Cart.Backend {
	case CartBackendFile:
		if strings.TrimSpace(cfg.Cart.FilePath) == "" {
			missing = append(missing, "Cart.FilePath")
		}
	case CartBackendRedis:
		if strings.TrimSpace(cfg.Redis.Addr) == "" {
			missing = append(missing, "Redis.Addr")
		}
	case CartBackendFirestore:
		if strings.TrimSpace(cfg.Firestore.ProjectID) == "" {
			missing = append(missing, "Firestore.ProjectID")
		}
		if strings.TrimSpace(cfg.Firestore.Collection) == "" {
			missing = append(missing, "Firestore.Collection")
		}
	case CartBackendMemory:
	default:
		missing = append(missing, "Cart.Backend")
	}
	if strings.TrimSpace(cfg.Cart.StorageKey) == "" {
		missing = append(missing, "Cart.StorageKey")
	}

	if strings.TrimSpace(cfg.Catalog.BaseURL) == "" {
		missing = append(missing, "Catalog.BaseURL")
	}
	if cfg.Catalog.MaxAttempts <= 0 {
		missing = append(missing, "Catalog.MaxAttempts")
	}
	if cfg.Checkout.ProcessingDelay < 0 {
		missing = append(missing, "Checkout.ProcessingDelay")
	}
	if strings.TrimSpace(cfg.Notifications.PubSubTopic) != "" && strings.TrimSpace(cfg.Notifications.PubSubProjectID) == "" {
		missing = append(missing, "Notifications.PubSubProjectID")
	}
	if strings.TrimSpace(cfg.Idempotency.Header) == "" {
		missing = append(missing, "Idempotency.Header")
	}
	if cfg.Idempotency.TTL <= 0 {
		missing = append(missing, "Idempotency.TTL")
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}
	if _, err := os.Stat(absPath); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	values, err := godotenv.Read(absPath)
	if err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		d, err := time.ParseDuration(strings.TrimSpace(value))
		if err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return fallback
}
