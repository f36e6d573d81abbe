package tor

import (
	"testing"
	"time"
)

func TestNewEmbeddedTor(t *testing.T) {
	t.Parallel()

	t.Run("defaults", func(t *testing.T) {
		t.Parallel()

		e := NewEmbeddedTor("127.0.0.1:9050")
		if e.startupTimeout != 3*time.Minute {
			t.Errorf("expected default timeout 3m, got %v", e.startupTimeout)
		}
		if e.SocksAddr() != "127.0.0.1:9050" {
			t.Errorf("SocksAddr() = %q", e.SocksAddr())
		}
	})

	t.Run("WithStartupTimeout", func(t *testing.T) {
		t.Parallel()

		e := NewEmbeddedTor("127.0.0.1:9050", WithStartupTimeout(30*time.Second))
		if e.startupTimeout != 30*time.Second {
			t.Errorf("expected 30s, got %v", e.startupTimeout)
		}
	})
}

func TestEmbeddedTorBeforeStart(t *testing.T) {
	t.Parallel()

	e := NewEmbeddedTor("127.0.0.1:9050")
	if e.IsRunning() {
		t.Error("expected IsRunning false before start")
	}
	if e.ControlAddr() != "" || e.DataDir() != "" {
		t.Error("expected empty control address and data dir before start")
	}
	if err := e.Stop(); err != nil {
		t.Errorf("Stop on unstarted instance: %v", err)
	}
	if err := e.Stop(); err != nil {
		t.Errorf("second Stop: %v", err)
	}
}

func TestSupervisorWithEmbedded(t *testing.T) {
	t.Parallel()

	s := NewSupervisor(WithPort(19050), WithEmbedded(WithStartupTimeout(time.Minute)))
	if s.embedded == nil {
		t.Fatal("expected embedded backend")
	}
	if s.embedded.SocksAddr() != s.SocksAddr() {
		t.Errorf("embedded address %q differs from supervisor %q", s.embedded.SocksAddr(), s.SocksAddr())
	}
	if !s.Status().Embedded {
		t.Error("expected Status().Embedded")
	}
}
