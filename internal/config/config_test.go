package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeYAML(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write yaml: %v", err)
	}
	return path
}

func TestLoadEdgeFromYAML(t *testing.T) {
	path := writeYAML(t, t.TempDir(), "edge.yaml", `
listen_addr: ":8080"
log_level: "info"
jwt_public_key_path: "/etc/edge/jwt.pem"
redis:
  addr: "127.0.0.1:6379"
object_storage:
  backend: "local"
  local_base_dir: "/var/lib/edge"
`)
	loader, err := NewLoader(path, "EDGE")
	if err != nil {
		t.Fatalf("new loader: %v", err)
	}
	cfg, err := loader.LoadEdge()
	if err != nil {
		t.Fatalf("load edge: %v", err)
	}
	if cfg.ListenAddr != ":8080" || cfg.Redis.Addr != "127.0.0.1:6379" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestEnvOverridesYAML(t *testing.T) {
	path := writeYAML(t, t.TempDir(), "edge.yaml", `
listen_addr: ":8080"
log_level: "info"
jwt_public_key_path: "/etc/edge/jwt.pem"
redis:
  addr: "127.0.0.1:6379"
object_storage:
  backend: "local"
  local_base_dir: "/var/lib/edge"
`)
	t.Setenv("EDGE_LISTEN_ADDR", ":9090")
	loader, err := NewLoader(path, "EDGE")
	if err != nil {
		t.Fatalf("new loader: %v", err)
	}
	cfg, err := loader.LoadEdge()
	if err != nil {
		t.Fatalf("load edge: %v", err)
	}
	if cfg.ListenAddr != ":9090" {
		t.Fatalf("expected env override, got %q", cfg.ListenAddr)
	}
}

func TestLoadEdgeMissingRequiredFieldFails(t *testing.T) {
	path := writeYAML(t, t.TempDir(), "edge.yaml", `
listen_addr: ":8080"
log_level: "info"
`)
	loader, err := NewLoader(path, "EDGE")
	if err != nil {
		t.Fatalf("new loader: %v", err)
	}
	if _, err := loader.LoadEdge(); err == nil {
		t.Fatal("expected validation error for missing redis/object_storage/jwt fields")
	}
}

func TestObjectStorageValidateUnknownBackend(t *testing.T) {
	o := ObjectStorage{Backend: "s3"}
	if err := o.validate(); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}
