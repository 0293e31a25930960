package main

import (
	"context"   // Startup and shutdown contexts
	"errors"    // Error inspection
	"net/http"  // HTTP server
	"os"        // Signals
	"os/signal" // Signal notification
	"syscall"   // SIGTERM
	"time"      // Timeouts

	"github.com/gin-gonic/gin"                                  // Gin web framework
	"github.com/google/uuid"                                    // Process identifiers
	"github.com/prometheus/client_golang/prometheus"            // Metrics registry
	"github.com/prometheus/client_golang/prometheus/collectors" // Runtime collectors
	"github.com/prometheus/client_golang/prometheus/promhttp"   // Metrics endpoint
	"github.com/redis/go-redis/v9"                              // Redis client
	"github.com/sirupsen/logrus"                                // Logrus for structured logging

	"wallet_sync/internal/api"         // Custom package for API handlers
	"wallet_sync/internal/cache"       // Local cache tables
	"wallet_sync/internal/config"      // Custom package for configuration
	"wallet_sync/internal/db"          // Database connection
	"wallet_sync/internal/directory"   // Shared presence and leaderboard
	"wallet_sync/internal/economy"     // Account service
	"wallet_sync/internal/events"      // Cross-process events
	"wallet_sync/internal/leaderboard" // Leaderboard refresher
	"wallet_sync/internal/metrics"     // Prometheus collectors
	"wallet_sync/internal/store"       // Persistence gateway
	"wallet_sync/internal/txid"        // Transaction ids
	"wallet_sync/internal/workers"     // Pool, owner and shutdown queue
)

// Main function to set up and run the server
func main() {
	cfg, err := config.LoadConfig() // Load configuration
	if err != nil {
		logrus.Fatalf("invalid configuration: %v", err) // Refuse to start with unusable settings
	}

	// Setup logger
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	} else {
		log.Warnf("unknown LOG_LEVEL %q, using info", cfg.LogLevel)
	}
	if cfg.ProcessID == "" {
		cfg.ProcessID = uuid.NewString() // One id per process lifetime
	}

	var shutdown workers.ShutdownQueue // Closed in reverse order of registration

	// Connect to the database
	conn, err := db.Open(cfg.DSN(), !cfg.IsProd)
	if err != nil {
		log.Fatalf("failed to connect to DB: %v", err) // Fatal error if DB connection fails
	}
	if sqlDB, err := conn.DB(); err == nil {
		shutdown.Add("database", func(context.Context) error { return sqlDB.Close() })
	}
	gw := store.NewGormGateway(conn)

	// Setup metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Setup the distributed tier, falling back to local-only when it is unreachable
	var dir directory.Directory = directory.Noop{}
	var bus economy.EventBus // Stays nil without a transport
	if cfg.Distributed.Enabled {
		dir, bus = connectDistributed(cfg, log, m, &shutdown)
	}

	pool := workers.NewPool(cfg.Workers.PoolSize, cfg.Workers.QueueSize, log) // I/O workers
	owner := workers.NewOwner(cfg.Workers.QueueSize, log)                     // Serialized notification delivery
	shutdown.Add("worker pool", pool.Shutdown)
	shutdown.Add("owner", owner.Stop)

	svc := economy.New(economy.Deps{
		Gateway: gw,
		Caches:  cache.New(cfg.Cache, m, nil),
		Board: leaderboard.New(leaderboard.Options{
			Source:  gw,
			Mirror:  dir,
			TTL:     cfg.Leaderboard.TTL,
			Log:     log,
			Metrics: m,
		}),
		Directory: dir,
		Events:    bus,
		IDs:       txid.New(cfg.TxID, gw),
		Pool:      pool,
		Owner:     owner,
		Config:    config.NewStore(cfg),
		ProcessID: cfg.ProcessID,
		Log:       log,
		Metrics:   m,
	})
	ctx, cancel := context.WithCancel(context.Background())
	svc.Start(ctx)
	shutdown.Add("service", svc.Close)

	// Set Mode to Release if in production
	if cfg.IsProd {
		gin.SetMode(gin.ReleaseMode)
	}

	// Setup Gin
	r := gin.Default() // Gin router instance

	// Set trusted proxies for Gin
	if err := r.SetTrustedProxies([]string{"127.0.0.1"}); err != nil {
		log.Fatalf("failed to set trusted proxies: %v", err)
	}
	api.RegisterRoutes(r, svc, cfg.JWTSecret)                                      // Application routes
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))) // Metrics endpoint

	srv := &http.Server{Addr: ":" + cfg.AppPort, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	shutdown.Add("http server", srv.Shutdown)
	go func() {
		log.Info("Server running on " + cfg.AppPort) // Log server start
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server failed: %v", err)
		}
	}()

	// Wait for a termination signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	log.Info("Shutting down")
	cancel()

	stop, done := context.WithTimeout(context.Background(), cfg.Workers.ShutdownTimeout)
	defer done()
	if err := shutdown.Shutdown(stop); err != nil {
		log.Errorf("shutdown incomplete: %v", err)
	}
}

// connectDistributed builds the shared directory and the event bus. Failures
// are logged and leave the matching tier disabled.
func connectDistributed(cfg *config.Config, log *logrus.Logger, m *metrics.Metrics, shutdown *workers.ShutdownQueue) (directory.Directory, economy.EventBus) {
	var dir directory.Directory = directory.Noop{}

	// Setup Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Distributed.RedisAddr, // Redis server address
		Password: cfg.Distributed.RedisPass, // Redis password
		DB:       cfg.Distributed.RedisDB,   // Redis database number
	})
	shutdown.Add("redis", func(context.Context) error { return redisClient.Close() })

	// Test Redis connection
	ping, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(ping).Err(); err != nil {
		log.Warnf("redis unreachable, running without the shared directory: %v", err)
	} else {
		dir = directory.NewRedis(redisClient, directory.Options{
			ProcessID:       cfg.ProcessID,
			KeyPrefix:       cfg.Distributed.KeyPrefix,
			PresenceTTL:     cfg.Distributed.PresenceTTL,
			LeaderboardTTL:  cfg.Leaderboard.MirrorTTL,
			MemoTTL:         cfg.Leaderboard.MemoTTL,
			RefreshInterval: cfg.Leaderboard.RefreshInterval,
			Log:             log,
			Metrics:         m,
		})
	}

	var transport events.Transport
	switch cfg.Distributed.EventTransport {
	case config.TransportNATS:
		nc, err := events.ConnectNATS(cfg.Distributed.NATSURL, log)
		if err != nil {
			log.Warnf("nats unreachable, running without events: %v", err)
			return dir, nil
		}
		transport = events.NewNATSTransport(nc)
	default:
		transport = events.NewRedisTransport(redisClient)
	}
	synchronizer := events.New(events.Options{
		ProcessID:     cfg.ProcessID,
		ChannelPrefix: cfg.Distributed.ChannelPrefix,
		Transport:     transport,
		Log:           log,
		Metrics:       m,
	})
	shutdown.Add("events", func(context.Context) error { return synchronizer.Close() })
	return dir, synchronizer
}
