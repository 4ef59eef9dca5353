package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/streamforge/live/internal/accesstoken"
	"github.com/streamforge/live/internal/config"
	"github.com/streamforge/live/internal/edge"
	"github.com/streamforge/live/internal/eventbus"
	"github.com/streamforge/live/internal/logger"
	"github.com/streamforge/live/internal/mediastore"
	"github.com/streamforge/live/internal/metastore"
	"github.com/streamforge/live/internal/metrics"
	"github.com/streamforge/live/internal/recordingdb"
)

func main() {
	cli, err := parseFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}
	if cli.showVersion {
		printVersion()
		return
	}

	logger.Init()
	log := logger.Logger().With("component", "cmd/edge")

	loader, err := config.NewLoader(cli.configPath, cli.envPrefix)
	if err != nil {
		log.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg, err := loader.LoadEdge()
	if err != nil {
		log.Error("invalid config", "error", err)
		os.Exit(1)
	}
	if err := logger.SetLevel(cfg.LogLevel); err != nil {
		log.Warn("invalid log level, using default", "log_level", cfg.LogLevel)
	}

	ctx := context.Background()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	defer rdb.Close()
	meta := metastore.NewRedisStore(rdb)
	bus := eventbus.NewRedisBus(rdb)

	media, err := mediastore.NewFromConfig(ctx, mediastore.BackendConfig{
		Backend:        cfg.ObjectStorage.Backend,
		LocalBaseDir:   cfg.ObjectStorage.LocalBaseDir,
		GCSBucket:      cfg.ObjectStorage.GCSBucket,
		AzureAccount:   cfg.ObjectStorage.AzureAccount,
		AzureContainer: cfg.ObjectStorage.AzureContainer,
		BaseDir:        cfg.ObjectStorage.BaseDir,
	})
	if err != nil {
		log.Error("failed to open media store", "error", err)
		os.Exit(1)
	}

	keys, err := accesstoken.LoadFileKeyProvider(cfg.JWTPublicKeyPath)
	if err != nil {
		log.Error("failed to load jwt public key", "error", err)
		os.Exit(1)
	}

	var recordings edge.RecordingIndex
	var revokes accesstoken.RevokeChecker
	if cfg.Postgres.DSN != "" {
		db, err := recordingdb.Open(ctx, recordingdb.Config{
			DSN:                 cfg.Postgres.DSN,
			MaxConnections:      cfg.Postgres.MaxConnections,
			MinConnections:      cfg.Postgres.MinConnections,
			MaxConnLifetime:     cfg.Postgres.MaxConnLifetime,
			MaxConnIdleTime:     cfg.Postgres.MaxConnIdleTime,
			HealthCheckInterval: cfg.Postgres.HealthCheckInterval,
		})
		if err != nil {
			log.Error("failed to open recording index", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		recordings = db

		revokeTable, err := accesstoken.OpenRevokeTable(ctx, cfg.Postgres.DSN)
		if err != nil {
			log.Error("failed to open revoke table", "error", err)
			os.Exit(1)
		}
		defer revokeTable.Close()
		revokes = revokeTable
	} else {
		log.Warn("no postgres configured: VOD playback and token revocation are disabled")
	}

	validator := &accesstoken.Validator{Keys: keys, Revokes: revokes}
	m := metrics.New()

	deps := edge.Deps{
		Meta:       meta,
		Media:      media,
		Recordings: recordings,
		Tokens:     validator,
		Metrics:    m,
		Policy:     cfg.Policy,
		Bus:        bus,
	}

	server := edge.New(edge.Config{ListenAddr: cfg.ListenAddr}, deps, log)
	if err := server.Start(); err != nil {
		log.Error("failed to start edge server", "error", err)
		os.Exit(1)
	}
	log.Info("edge server started", "addr", server.Addr().String(), "version", version)

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()
	log.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		if err := server.Stop(); err != nil {
			log.Error("server stop error", "error", err)
		}
		close(done)
	}()

	select {
	case <-done:
		log.Info("edge server stopped cleanly")
	case <-shutdownCtx.Done():
		fmt.Fprintln(os.Stderr, "forced exit after shutdown timeout")
	}
}
