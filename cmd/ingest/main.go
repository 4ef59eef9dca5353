package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/streamforge/live/internal/config"
	"github.com/streamforge/live/internal/eventbus"
	"github.com/streamforge/live/internal/ingest"
	"github.com/streamforge/live/internal/logger"
	"github.com/streamforge/live/internal/metastore"
	"github.com/streamforge/live/internal/metrics"
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
	log := logger.Logger().With("component", "cmd/ingest")

	loader, err := config.NewLoader(cli.configPath, cli.envPrefix)
	if err != nil {
		log.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg, err := loader.LoadIngest()
	if err != nil {
		log.Error("invalid config", "error", err)
		os.Exit(1)
	}
	if err := logger.SetLevel(cfg.LogLevel); err != nil {
		log.Warn("invalid log level, using default", "log_level", cfg.LogLevel)
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	defer rdb.Close()

	meta := metastore.NewRedisStore(rdb)
	bus := eventbus.NewRedisBus(rdb)
	m := metrics.New()

	deps := ingest.Deps{
		ControlPlane:      &ingest.MetaControlPlane{Meta: meta},
		Queue:             &ingest.MetaQueue{Meta: meta, Bus: bus},
		Dialer:            ingest.NetDialer{Timeout: 5 * time.Second},
		Bus:               bus,
		Metrics:           m,
		Policy:            cfg.Policy,
		TranscoderWaitMax: cfg.TranscoderWaitMax,
	}

	server := ingest.New(ingest.Config{ListenAddr: cfg.ListenAddr}, deps, log)
	if err := server.Start(); err != nil {
		log.Error("failed to start ingest server", "error", err)
		os.Exit(1)
	}
	log.Info("ingest server started", "addr", server.Addr().String(), "version", version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
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
		log.Info("ingest server stopped cleanly")
	case <-shutdownCtx.Done():
		fmt.Fprintln(os.Stderr, "forced exit after shutdown timeout")
	}
}
