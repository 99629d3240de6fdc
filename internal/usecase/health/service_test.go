package health

import (
	"context"
	"errors"
	"testing"
)

// --- Mocks ---

type mockPinger struct {
	err error
}

func (m *mockPinger) Ping(_ context.Context) error { return m.err }

type mockDurability struct {
	durable bool
}

func (m *mockDurability) Durable() bool { return m.durable }

// --- Tests ---

func TestCheck_AllHealthy(t *testing.T) {
	svc := New(&mockPinger{}, &mockDurability{durable: true})
	r := svc.Check(context.Background())

	if r.Status != Healthy {
		t.Errorf("expected %q, got %q", Healthy, r.Status)
	}
	if r.Checks["storage"] != CheckOK {
		t.Errorf("expected storage %q, got %q", CheckOK, r.Checks["storage"])
	}
	if r.Checks["persistence"] != CheckOK {
		t.Errorf("expected persistence %q, got %q", CheckOK, r.Checks["persistence"])
	}
}

func TestCheck_StorageError(t *testing.T) {
	svc := New(&mockPinger{err: errors.New("conn refused")}, &mockDurability{durable: true})
	r := svc.Check(context.Background())

	if r.Status != Degraded {
		t.Errorf("expected %q, got %q", Degraded, r.Status)
	}
	if r.Checks["storage"] != CheckError {
		t.Errorf("expected storage %q, got %q", CheckError, r.Checks["storage"])
	}
}

func TestCheck_PendingWrites(t *testing.T) {
	svc := New(&mockPinger{}, &mockDurability{durable: false})
	r := svc.Check(context.Background())

	if r.Status != Degraded {
		t.Errorf("expected %q, got %q", Degraded, r.Status)
	}
	if r.Checks["persistence"] != CheckPending {
		t.Errorf("expected persistence %q, got %q", CheckPending, r.Checks["persistence"])
	}
}

func TestCheck_NilDurability(t *testing.T) {
	svc := New(&mockPinger{}, nil)
	r := svc.Check(context.Background())

	if r.Status != Healthy {
		t.Errorf("expected %q, got %q", Healthy, r.Status)
	}
	if _, ok := r.Checks["persistence"]; ok {
		t.Error("expected no persistence check when reporter is nil")
	}
}
