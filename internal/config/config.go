// Package config is the layered file+env configuration loader shared by
// cmd/ingest, cmd/transcoder, and cmd/edge. YAML file values are the base
// layer; environment variables (prefixed per service) override them.
// The loader applies no defaults: a field neither source sets stays zero,
// and Validate rejects the required ones.
package config

import (
	"fmt"
	"time"
)

// PolicyThresholds carries the tunables the spec's Open Questions left as
// configuration rather than constants: bytes-since-keyframe cap, publish
// cadence cap, and edge blocking-reload cap.
type PolicyThresholds struct {
	MaxBytesSinceKeyframe uint64        `koanf:"max_bytes_since_keyframe"`
	PublishCadenceCap     time.Duration `koanf:"publish_cadence_cap"`
	EdgeBlockingCap       time.Duration `koanf:"edge_blocking_cap"`
}

// DefaultPolicyThresholds matches the spec's stated targets (2s cadence
// cap, 5s edge blocking cap).
var DefaultPolicyThresholds = PolicyThresholds{
	MaxBytesSinceKeyframe: 8 << 20,
	PublishCadenceCap:     2 * time.Second,
	EdgeBlockingCap:       5 * time.Second,
}

// Redis configures the Meta Store / event bus connection.
type Redis struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

// Postgres configures the recording index connection.
type Postgres struct {
	DSN                 string        `koanf:"dsn"`
	MaxConnections      int32         `koanf:"max_connections"`
	MinConnections      int32         `koanf:"min_connections"`
	MaxConnLifetime     time.Duration `koanf:"max_conn_lifetime"`
	MaxConnIdleTime     time.Duration `koanf:"max_conn_idle_time"`
	HealthCheckInterval time.Duration `koanf:"health_check_interval"`
}

// ObjectStorage selects and configures one Media Store backend.
type ObjectStorage struct {
	Backend       string `koanf:"backend"` // "local", "gcs", "azure"
	LocalBaseDir  string `koanf:"local_base_dir"`
	GCSBucket     string `koanf:"gcs_bucket"`
	AzureAccount  string `koanf:"azure_account_url"`
	AzureContainer string `koanf:"azure_container"`
	BaseDir       string `koanf:"base_dir"`
}

func (o ObjectStorage) validate() error {
	switch o.Backend {
	case "local":
		if o.LocalBaseDir == "" {
			return fmt.Errorf("object_storage.local_base_dir is required for backend=local")
		}
	case "gcs":
		if o.GCSBucket == "" {
			return fmt.Errorf("object_storage.gcs_bucket is required for backend=gcs")
		}
	case "azure":
		if o.AzureAccount == "" || o.AzureContainer == "" {
			return fmt.Errorf("object_storage.azure_account_url and azure_container are required for backend=azure")
		}
	default:
		return fmt.Errorf("object_storage.backend must be one of local|gcs|azure, got %q", o.Backend)
	}
	return nil
}

// Ingest is cmd/ingest's full configuration.
type Ingest struct {
	ListenAddr       string           `koanf:"listen_addr"`
	LogLevel         string           `koanf:"log_level"`
	Redis            Redis            `koanf:"redis"`
	Policy           PolicyThresholds `koanf:"policy"`
	TranscoderWaitMax time.Duration   `koanf:"transcoder_wait_max"`
}

func (c Ingest) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr is required")
	}
	if err := validateLogLevel(c.LogLevel); err != nil {
		return err
	}
	if c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required")
	}
	return nil
}

// Transcoder is cmd/transcoder's full configuration.
type Transcoder struct {
	LogLevel      string           `koanf:"log_level"`
	Redis         Redis            `koanf:"redis"`
	Postgres      Postgres         `koanf:"postgres"`
	ObjectStorage ObjectStorage    `koanf:"object_storage"`
	Policy        PolicyThresholds `koanf:"policy"`
	FFmpegPath    string           `koanf:"ffmpeg_path"`
	LeaseTTL      time.Duration    `koanf:"lease_ttl"`
	// TranscoderID identifies this worker process in claim reasons and
	// logs; defaults to the hostname when empty.
	TranscoderID string `koanf:"transcoder_id"`
	// ListenHost is the interface ephemeral per-connection claim
	// listeners bind to; ingest must be able to reach it. Defaults to
	// 0.0.0.0.
	ListenHost         string        `koanf:"listen_host"`
	ClaimAcceptTimeout time.Duration `koanf:"claim_accept_timeout"`
}

func (c Transcoder) Validate() error {
	if err := validateLogLevel(c.LogLevel); err != nil {
		return err
	}
	if c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required")
	}
	if c.Postgres.DSN == "" {
		return fmt.Errorf("postgres.dsn is required")
	}
	if c.FFmpegPath == "" {
		return fmt.Errorf("ffmpeg_path is required")
	}
	if c.LeaseTTL <= 0 {
		return fmt.Errorf("lease_ttl must be positive")
	}
	return c.ObjectStorage.validate()
}

// Edge is cmd/edge's full configuration. Postgres is optional: when its
// DSN is empty, edge serves live playback only and VOD lookups 404.
type Edge struct {
	ListenAddr    string           `koanf:"listen_addr"`
	LogLevel      string           `koanf:"log_level"`
	Redis         Redis            `koanf:"redis"`
	Postgres      Postgres         `koanf:"postgres"`
	ObjectStorage ObjectStorage    `koanf:"object_storage"`
	Policy        PolicyThresholds `koanf:"policy"`
	JWTPublicKeyPath string        `koanf:"jwt_public_key_path"`
}

func (c Edge) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr is required")
	}
	if err := validateLogLevel(c.LogLevel); err != nil {
		return err
	}
	if c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required")
	}
	if c.JWTPublicKeyPath == "" {
		return fmt.Errorf("jwt_public_key_path is required")
	}
	return c.ObjectStorage.validate()
}

func validateLogLevel(level string) error {
	switch level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("invalid log_level %q", level)
	}
}
