package mediastore

import (
	"context"
	"fmt"
)

// BackendConfig is the subset of config.ObjectStorage the factory needs.
// Declared locally instead of importing internal/config, so mediastore
// (depended on by both transcoder and edge) never has to import the
// config package back.
type BackendConfig struct {
	Backend        string
	LocalBaseDir   string
	GCSBucket      string
	AzureAccount   string
	AzureContainer string
	BaseDir        string
}

// NewFromConfig builds the Store cmd/transcoder and cmd/edge both need
// from one config.ObjectStorage-shaped value, so neither binary duplicates
// the backend switch.
func NewFromConfig(ctx context.Context, cfg BackendConfig) (Store, error) {
	switch cfg.Backend {
	case "local":
		return NewLocalStore(cfg.LocalBaseDir)
	case "gcs":
		return NewGCSStore(ctx, cfg.GCSBucket, cfg.BaseDir)
	case "azure":
		return NewAzureStore(cfg.AzureAccount, cfg.AzureContainer, cfg.BaseDir)
	default:
		return nil, fmt.Errorf("mediastore: unknown backend %q", cfg.Backend)
	}
}
