package config

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Loader layers a YAML file under environment variables and unmarshals the
// result into any of Ingest/Transcoder/Edge. One Loader per process.
type Loader struct {
	mu        sync.RWMutex
	k         *koanf.Koanf
	filePath  string
	envPrefix string
}

// NewLoader loads filePath (if non-empty) then envPrefix-scoped environment
// variables on top, and returns the combined Loader.
func NewLoader(filePath, envPrefix string) (*Loader, error) {
	l := &Loader{filePath: filePath, envPrefix: envPrefix}
	if err := l.reload(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Loader) reload() error {
	k := koanf.New(".")
	if l.filePath != "" {
		if err := k.Load(file.Provider(l.filePath), yaml.Parser()); err != nil {
			return fmt.Errorf("config: load yaml %s: %w", l.filePath, err)
		}
	}
	// Nesting levels are separated by "__" (e.g. REDIS__ADDR -> redis.addr)
	// so that single underscores remain part of a field's own name
	// (e.g. LISTEN_ADDR -> listen_addr, not listen.addr).
	envProvider := env.Provider(".", env.Opt{
		Prefix: l.envPrefix + "_",
		TransformFunc: func(k, v string) (string, any) {
			k = strings.TrimPrefix(k, l.envPrefix+"_")
			k = strings.ToLower(k)
			return strings.ReplaceAll(k, "__", "."), v
		},
	})
	if err := k.Load(envProvider, nil); err != nil {
		return fmt.Errorf("config: load env: %w", err)
	}
	l.mu.Lock()
	l.k = k
	l.mu.Unlock()
	return nil
}

// Reload re-reads the file and environment, atomically swapping the
// in-memory tree. Call after a fsnotify event.
func (l *Loader) Reload() error { return l.reload() }

// LoadIngest unmarshals and validates an Ingest config.
func (l *Loader) LoadIngest() (*Ingest, error) {
	var cfg Ingest
	if err := l.unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: invalid ingest config: %w", err)
	}
	return &cfg, nil
}

// LoadTranscoder unmarshals and validates a Transcoder config.
func (l *Loader) LoadTranscoder() (*Transcoder, error) {
	var cfg Transcoder
	if err := l.unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: invalid transcoder config: %w", err)
	}
	return &cfg, nil
}

// LoadEdge unmarshals and validates an Edge config.
func (l *Loader) LoadEdge() (*Edge, error) {
	var cfg Edge
	if err := l.unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: invalid edge config: %w", err)
	}
	return &cfg, nil
}

func (l *Loader) unmarshal(v interface{}) error {
	l.mu.RLock()
	k := l.k
	l.mu.RUnlock()
	if err := k.Unmarshal("", v); err != nil {
		return fmt.Errorf("config: unmarshal: %w", err)
	}
	return nil
}

// Watch blocks, reloading on every file-change event until ctx is
// cancelled, invoking onReload (if non-nil) after each successful reload.
// Known limitation shared with the upstream koanf file.Provider: the
// underlying fsnotify goroutine is not stoppable and outlives ctx
// cancellation; it is collected at process exit.
func (l *Loader) Watch(ctx context.Context, onReload func(error)) error {
	if l.filePath == "" {
		return fmt.Errorf("config: cannot watch, no file path configured")
	}
	fp := file.Provider(l.filePath)
	if err := fp.Watch(func(_ interface{}, err error) {
		if err != nil {
			if onReload != nil {
				onReload(fmt.Errorf("config: watch: %w", err))
			}
			return
		}
		reloadErr := l.reload()
		if onReload != nil {
			onReload(reloadErr)
		}
	}); err != nil {
		return fmt.Errorf("config: start watch: %w", err)
	}
	<-ctx.Done()
	return nil
}
