package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sector-registry/sectorhub/internal/api"
	"sector-registry/sectorhub/internal/common"
	"sector-registry/sectorhub/internal/config"
	"sector-registry/sectorhub/internal/constants"
	"sector-registry/sectorhub/internal/db"
	"sector-registry/sectorhub/internal/jobs"
	"sector-registry/sectorhub/internal/logging"
	"sector-registry/sectorhub/internal/metrics"
	"sector-registry/sectorhub/internal/routes"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

const shutdownTimeout = 15 * time.Second

func main() {
	log.SetOutput(os.Stdout)
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize structured logging
	if err := logging.Init(cfg.App.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logging.Close()

	loc, err := cfg.Location()
	if err != nil {
		logging.Fatal("Invalid transition timezone", "error", err.Error())
	}
	logging.Info("Sector registry starting up",
		"environment", cfg.App.Env,
		"timezone", loc.String(),
		"timestamp", time.Now().Format(time.RFC3339),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect to DB with GORM
	orm, err := db.InitPostgresORM(ctx, cfg.PostgresDSN())
	if err != nil {
		logging.Fatal("Failed to connect to Postgres (GORM)", "error", err.Error())
	}
	if err := db.AutoMigrate(orm); err != nil {
		logging.Fatal("Schema migration failed", "error", err.Error())
	}

	// Connect to DB with sqlx for the reporting queries
	sqlDB, err := db.InitPostgres(ctx, cfg.PostgresDSN())
	if err != nil {
		logging.Fatal("Failed to connect to Postgres (sqlx)", "error", err.Error())
	}
	defer sqlDB.Close()

	var (
		redisClient *redis.Client
		cache       common.CacheInterface = common.NewCacheService(cfg.Cache.DefaultTTL, cfg.Cache.CleanupInterval)
		runLock     common.RunLock        = common.NoopRunLock{}
	)
	if cfg.Redis.Enabled {
		redisClient = common.NewRedisClient(common.RedisOptions{
			Addr:     cfg.RedisAddr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		cache = common.NewRedisCacheService(redisClient, "sectorhub:cache:")
		hostname, _ := os.Hostname()
		runLock = common.NewRedisRunLock(redisClient, constants.TransitionLockPrefix, hostname)
	}

	metricsReg := metrics.NewMetricsRegistry(prometheus.DefaultRegisterer)

	deps, err := api.InitDependencies(api.DependencyOptions{
		ORM:      orm,
		SQL:      sqlDB,
		Cache:    cache,
		Metrics:  metricsReg,
		Location: loc,
	})
	if err != nil {
		logging.Fatal("Failed to initialize dependencies", "error", err.Error())
	}
	defer deps.Close()

	job, err := jobs.InitializeJobs(ctx, deps.Services.Transitions, cfg.Transition, runLock)
	if err != nil {
		logging.Fatal("Failed to start transition job", "error", err.Error())
	}
	deps.Job = job

	router := routes.RegisterRoutes(routes.RouterOptions{
		Deps:           deps,
		Metrics:        metricsReg,
		Gatherer:       prometheus.DefaultGatherer,
		DB:             sqlDB,
		Redis:          redisClient,
		JWTSecret:      cfg.Auth.JWTSecret,
		RateLimitRPS:   cfg.RateLimit.RPS,
		RateLimitBurst: cfg.RateLimit.Burst,
		Location:       loc,
		UpSince:        time.Now(),
	})

	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logging.Info("Server starting", "addr", cfg.HTTP.Addr, "environment", cfg.App.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("HTTP server failed", "error", err.Error())
			stop()
		}
	}()

	<-ctx.Done()
	logging.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logging.Error("HTTP shutdown failed", "error", err.Error())
	}
	job.Stop()
}
