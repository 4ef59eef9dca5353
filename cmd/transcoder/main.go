package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/streamforge/live/internal/config"
	"github.com/streamforge/live/internal/eventbus"
	"github.com/streamforge/live/internal/logger"
	"github.com/streamforge/live/internal/mediastore"
	"github.com/streamforge/live/internal/metastore"
	"github.com/streamforge/live/internal/metrics"
	"github.com/streamforge/live/internal/recordingdb"
	"github.com/streamforge/live/internal/transcoder"
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
	log := logger.Logger().With("component", "cmd/transcoder")

	loader, err := config.NewLoader(cli.configPath, cli.envPrefix)
	if err != nil {
		log.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg, err := loader.LoadTranscoder()
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

	transcoderID := cfg.TranscoderID
	if transcoderID == "" {
		if hostname, herr := os.Hostname(); herr == nil {
			transcoderID = hostname
		} else {
			transcoderID = "transcoder"
		}
	}
	listenHost := cfg.ListenHost
	if listenHost == "" {
		listenHost = "0.0.0.0"
	}

	// Rooms (ladder + recording-enabled lookup) is left nil: it is served
	// by the external control plane, outside this service's boundary.
	// Without it, every room gets domain.DefaultLadder and the recording
	// tap stays disabled (transcoder.Deps.Recordings requires Rooms too).
	log.Warn("no control-plane room lookup wired: default ladder only, recording tap disabled")

	m := metrics.New()
	deps := transcoder.Deps{
		Meta:               meta,
		Media:              media,
		Bus:                bus,
		Recordings:         db,
		Metrics:            m,
		FFmpegPath:         cfg.FFmpegPath,
		LeaseTTL:           cfg.LeaseTTL,
		ClaimAcceptTimeout: cfg.ClaimAcceptTimeout,
		TranscoderID:       transcoderID,
		ListenHost:         listenHost,
	}

	worker := transcoder.New(deps, log)
	log.Info("transcoder worker started", "transcoder_id", transcoderID, "version", version)

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := worker.Run(sigCtx); err != nil {
		log.Error("transcoder worker exited with error", "error", err)
		os.Exit(1)
	}
	log.Info("transcoder worker stopped cleanly")
}
