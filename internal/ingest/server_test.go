package ingest

import (
	"testing"

	"github.com/streamforge/live/internal/config"
)

func TestServer_StartListensAndStopCleansUp(t *testing.T) {
	deps := Deps{
		ControlPlane: &fakeControlPlane{},
		Queue:        &fakeQueue{},
		Dialer:       &fakeDialer{},
		Policy:       config.DefaultPolicyThresholds,
	}
	srv := New(Config{ListenAddr: "127.0.0.1:0"}, deps, nil)

	if err := srv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if srv.Addr() == nil {
		t.Fatalf("Addr() = nil after Start")
	}
	if err := srv.Start(); err == nil {
		t.Fatalf("expected error starting an already-started server")
	}
	if err := srv.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if got := srv.SessionCount(); got != 0 {
		t.Fatalf("SessionCount after Stop = %d, want 0", got)
	}
}
