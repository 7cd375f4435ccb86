package connector

import (
	"errors"
	"fmt"
	"testing"
)

// mockAdapter implements Adapter for registry tests. Only the connection
// methods are exercised; the embedded nil interface covers the rest.
type mockAdapter struct {
	Adapter
	connected    bool
	disconnected bool
	cfg          ConnectionConfig
}

func (m *mockAdapter) Connect(cfg ConnectionConfig) error {
	if cfg.DSN == "fail" {
		return fmt.Errorf("mock connect failure")
	}
	m.connected = true
	m.cfg = cfg
	return nil
}

func (m *mockAdapter) Disconnect() error {
	m.disconnected = true
	m.connected = false
	return nil
}

func (m *mockAdapter) DriverName() string { return "mock" }

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()
	if r == nil {
		t.Fatal("NewRegistry() returned nil")
	}
	if len(r.Drivers()) != 0 {
		t.Error("new registry should have no drivers")
	}
}

func TestRegisterDriver(t *testing.T) {
	r := NewRegistry()
	r.RegisterDriver("mock", func() Adapter { return &mockAdapter{} })

	if _, ok := r.factories["mock"]; !ok {
		t.Error("expected mock driver to be registered")
	}
}

func TestOpen(t *testing.T) {
	r := NewRegistry()
	r.RegisterDriver("mock", func() Adapter { return &mockAdapter{} })

	a, err := r.Open(ConnectionConfig{Driver: "mock", DSN: "test-dsn"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ma := a.(*mockAdapter)
	if !ma.connected {
		t.Error("adapter should be connected")
	}
	if ma.cfg.DSN != "test-dsn" {
		t.Errorf("expected DSN test-dsn, got %s", ma.cfg.DSN)
	}
}

func TestOpenSanitizesDSN(t *testing.T) {
	r := NewRegistry()
	r.RegisterDriver("mysql", func() Adapter { return &mockAdapter{} })

	a, err := r.Open(ConnectionConfig{Driver: "mysql", DSN: "root:secret@localhost:3306/app"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := a.(*mockAdapter).cfg.DSN; got != "root:secret@tcp(localhost:3306)/app" {
		t.Errorf("DSN = %q, want tcp() wrapper", got)
	}
}

func TestOpenUnsupportedDriver(t *testing.T) {
	r := NewRegistry()

	_, err := r.Open(ConnectionConfig{Driver: "unknown"})
	if err == nil {
		t.Fatal("expected error for unsupported driver")
	}
	if !errors.Is(err, ErrUnsupportedDriver) {
		t.Errorf("expected ErrUnsupportedDriver, got %v", err)
	}
}

func TestOpenFailure(t *testing.T) {
	r := NewRegistry()
	r.RegisterDriver("mock", func() Adapter { return &mockAdapter{} })

	_, err := r.Open(ConnectionConfig{Driver: "mock", DSN: "fail"})
	if err == nil {
		t.Fatal("expected error for connection failure")
	}
}

func TestDriversSorted(t *testing.T) {
	r := NewRegistry()
	for _, d := range []string{"sqlite", "mysql", "postgres"} {
		r.RegisterDriver(d, func() Adapter { return &mockAdapter{} })
	}

	got := r.Drivers()
	want := []string{"mysql", "postgres", "sqlite"}
	if len(got) != len(want) {
		t.Fatalf("Drivers() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Drivers()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
