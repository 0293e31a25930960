package config

import (
	"errors"  // Sentinel errors
	"fmt"     // Error wrapping
	"strings"      // Strategy normalisation
	"time"         // Durations
	"unicode/utf8" // Alphabet check

	"github.com/caarlos0/env/v11" // Struct tag based environment parsing
	"github.com/joho/godotenv"    // For loading .env files
)

// ErrConfiguration marks settings the process cannot start with
var ErrConfiguration = errors.New("configuration error")

// Transaction id strategies
const (
	TxIDSequential = "sequential" // Monotonic sequence kept in the database
	TxIDRandom     = "random"     // Random ids checked for collisions
)

// Event transports
const (
	TransportRedis = "redis" // Redis pub/sub
	TransportNATS  = "nats"  // NATS core subjects
)

// Config holds the application configuration
type Config struct {
	AppPort    string `env:"APP_PORT"`                  // Application port
	DBUser     string `env:"DB_USER,required,notEmpty"` // Database user
	DBPassword string `env:"DB_PASSWORD"`               // Database password
	DBHost     string `env:"DB_HOST,required,notEmpty"` // Database host
	DBPort     string `env:"DB_PORT"`                   // Database port
	DBName     string `env:"DB_NAME,required,notEmpty"` // Database name
	JWTSecret  string `env:"JWT_SECRET"`                // JWT secret key
	IsProd     bool   `env:"IS_PROD"`                   // Is production environment
	LogLevel   string `env:"LOG_LEVEL"`                 // Logrus level name
	ProcessID  string `env:"PROCESS_ID"`                // Identifier of this process, random when empty

	Cache       CacheConfig       `envPrefix:"CACHE_"`
	Leaderboard LeaderboardConfig `envPrefix:"LEADERBOARD_"`
	Distributed DistributedConfig
	TxID        TxIDConfig `envPrefix:"TXID_"`
	Workers     WorkersConfig
}

// KindConfig configures one local cache kind
type KindConfig struct {
	TTL     time.Duration `env:"TTL"`      // Age after which an entry is a miss
	MaxSize int           `env:"MAX_SIZE"` // Entry count that triggers batch eviction
}

// CacheConfig configures the local cache
type CacheConfig struct {
	Enabled       bool          `env:"ENABLED"`             // Cache switch, off means every read hits the database
	SweepInterval time.Duration `env:"SWEEP_INTERVAL"`      // Background expiry sweep interval
	Balance       KindConfig    `envPrefix:"BALANCE_"`      // Balance cache
	Profile       KindConfig    `envPrefix:"PROFILE_"`      // Profile cache
	Settings      KindConfig    `envPrefix:"SETTINGS_"`     // Settings cache
	Transactions  KindConfig    `envPrefix:"TRANSACTIONS_"` // Transaction list cache
}

// LeaderboardConfig configures the leaderboard refresher and mirror
type LeaderboardConfig struct {
	RefreshInterval time.Duration `env:"REFRESH_INTERVAL"` // Scheduled full rebuild interval
	TTL             time.Duration `env:"TTL"`              // Age after which the local snapshot is stale
	MirrorTTL       time.Duration `env:"MIRROR_TTL"`       // Expiry of the shared snapshot key
	MemoTTL         time.Duration `env:"MEMO_TTL"`         // Local memoization of the shared snapshot
	Size            int           `env:"SIZE"`             // Default number of rows returned
}

// DistributedConfig configures the shared directory and the event bus
type DistributedConfig struct {
	Enabled        bool          `env:"DISTRIBUTED_ENABLED"`  // Distributed tier switch
	RedisAddr      string        `env:"REDIS_ADDR"`           // Redis server address
	RedisPass      string        `env:"REDIS_PASS"`           // Redis password
	RedisDB        int           `env:"REDIS_DB"`             // Redis database number
	KeyPrefix      string        `env:"REDIS_KEY_PREFIX"`     // Prefix of every shared key
	PresenceTTL    time.Duration `env:"PRESENCE_TTL"`         // Expiry of presence records
	EventTransport string        `env:"EVENT_TRANSPORT"`      // redis or nats
	NATSURL        string        `env:"NATS_URL"`             // NATS server url
	ChannelPrefix  string        `env:"EVENT_CHANNEL_PREFIX"` // Prefix of every event channel
}

// TxIDConfig configures transaction id generation
type TxIDConfig struct {
	Strategy    string `env:"STRATEGY"`     // sequential or random
	Length      int    `env:"LENGTH"`       // Random id length
	Alphabet    string `env:"ALPHABET"`     // Random id alphabet
	MaxAttempts int    `env:"MAX_ATTEMPTS"` // Collision retries before giving up
}

// WorkersConfig configures the worker pool and shutdown
type WorkersConfig struct {
	PoolSize        int           `env:"WORKER_POOL_SIZE"`  // Number of I/O workers
	QueueSize       int           `env:"WORKER_QUEUE_SIZE"` // Pending task capacity
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT"`  // Bound on the shutdown drain
}

// Defaults returns a configuration with every optional value filled in
func Defaults() Config {
	return Config{
		AppPort:  "8080", // Application port
		DBPort:   "3306", // MySQL default port
		LogLevel: "info", // Log level
		Cache: CacheConfig{
			Enabled:       true,
			SweepInterval: 5 * time.Minute,
			Balance:       KindConfig{TTL: 30 * time.Second, MaxSize: 10000},
			Profile:       KindConfig{TTL: 5 * time.Minute, MaxSize: 10000},
			Settings:      KindConfig{TTL: 5 * time.Minute, MaxSize: 10000},
			Transactions:  KindConfig{TTL: time.Minute, MaxSize: 2000},
		},
		Leaderboard: LeaderboardConfig{
			RefreshInterval: time.Minute,
			TTL:             2 * time.Minute,
			MirrorTTL:       2 * time.Minute,
			MemoTTL:         30 * time.Second,
			Size:            10,
		},
		Distributed: DistributedConfig{
			KeyPrefix:      "wallet_sync:",
			PresenceTTL:    5 * time.Minute,
			EventTransport: TransportRedis,
			ChannelPrefix:  "wallet_sync.events.",
		},
		TxID: TxIDConfig{
			Strategy:    TxIDRandom,
			Length:      12,
			Alphabet:    "ABCDEFGHJKLMNPQRSTUVWXYZ23456789",
			MaxAttempts: 5,
		},
		Workers: WorkersConfig{
			PoolSize:        4,
			QueueSize:       256,
			ShutdownTimeout: 10 * time.Second,
		},
	}
}

// LoadConfig loads configuration from .env and environment variables
func LoadConfig() (*Config, error) {
	_ = godotenv.Load() // Load .env file if present
	cfg := Defaults()   // Start from defaults, env overrides what is set
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err) // Missing or unparseable variable
	}
	if err := cfg.Validate(); err != nil {
		return nil, err // Values parsed but unusable
	}
	return &cfg, nil
}

// Validate checks the values env parsing cannot
func (c *Config) Validate() error {
	c.TxID.Strategy = strings.ToLower(strings.TrimSpace(c.TxID.Strategy))
	switch c.TxID.Strategy {
	case TxIDSequential, TxIDRandom:
	default:
		return fmt.Errorf("%w: unknown TXID_STRATEGY %q", ErrConfiguration, c.TxID.Strategy)
	}
	if c.TxID.Strategy == TxIDRandom && (c.TxID.Length <= 0 || len(c.TxID.Alphabet) < 2 || c.TxID.MaxAttempts <= 0) {
		return fmt.Errorf("%w: random transaction ids need a length, an alphabet of two or more symbols and a positive attempt bound", ErrConfiguration)
	}
	if strings.IndexFunc(c.TxID.Alphabet, func(r rune) bool { return r >= utf8.RuneSelf }) >= 0 {
		return fmt.Errorf("%w: TXID_ALPHABET must be ASCII", ErrConfiguration) // Ids are built byte by byte
	}
	for name, kind := range map[string]KindConfig{
		"balance":      c.Cache.Balance,
		"profile":      c.Cache.Profile,
		"settings":     c.Cache.Settings,
		"transactions": c.Cache.Transactions,
	} {
		if kind.TTL <= 0 || kind.MaxSize <= 0 {
			return fmt.Errorf("%w: cache %s needs a positive ttl and max size", ErrConfiguration, name)
		}
	}
	if c.Cache.SweepInterval <= 0 || c.Leaderboard.RefreshInterval <= 0 || c.Leaderboard.TTL <= 0 {
		return fmt.Errorf("%w: sweep and leaderboard intervals must be positive", ErrConfiguration)
	}
	switch c.Distributed.EventTransport {
	case TransportRedis, TransportNATS:
	default:
		return fmt.Errorf("%w: unknown EVENT_TRANSPORT %q", ErrConfiguration, c.Distributed.EventTransport)
	}
	if c.Distributed.Enabled && c.Distributed.RedisAddr == "" {
		return fmt.Errorf("%w: DISTRIBUTED_ENABLED needs REDIS_ADDR", ErrConfiguration)
	}
	if c.Workers.PoolSize <= 0 || c.Workers.QueueSize <= 0 {
		return fmt.Errorf("%w: worker pool and queue sizes must be positive", ErrConfiguration)
	}
	return nil
}

// DSN builds the MySQL data source name
func (c *Config) DSN() string {
	return c.DBUser + ":" + c.DBPassword + "@tcp(" + c.DBHost + ":" + c.DBPort + ")/" + c.DBName + "?parseTime=true"
}
