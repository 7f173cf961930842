package credentials

import (
	"testing"
	"time"
)

func TestConnectionTrack(t *testing.T) {
	m := NewRotationManager(RefreshPolicy{MaxAge: time.Hour, GracePeriod: 10 * time.Minute})
	conn := m.Track("tenant-1", "page")

	if conn.State != ConnectionActive {
		t.Fatal("expected ACTIVE")
	}
	if conn.RefreshGen != 1 {
		t.Fatal("expected generation 1")
	}
}

func TestConnectionRotate(t *testing.T) {
	m := NewRotationManager(RefreshPolicy{MaxAge: time.Hour})
	old := m.Track("tenant-1", "photo")

	newConn, err := m.Rotate(old.ConnectionID)
	if err != nil {
		t.Fatal(err)
	}

	if newConn.RefreshGen != 2 {
		t.Fatal("expected generation 2")
	}

	oldConn, _ := m.Get(old.ConnectionID)
	if oldConn.State != ConnectionRotated {
		t.Fatal("old should be ROTATED")
	}
}

func TestConnectionIsValid(t *testing.T) {
	m := NewRotationManager(RefreshPolicy{MaxAge: time.Hour})
	conn := m.Track("t", "page")

	if !m.IsValid(conn.ConnectionID) {
		t.Fatal("expected valid")
	}
}

func TestConnectionExpiry(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	m := NewRotationManager(RefreshPolicy{MaxAge: time.Hour, GracePeriod: 10 * time.Minute}).
		WithClock(func() time.Time { return now })

	m.Track("t", "page")

	m.WithClock(func() time.Time { return now.Add(55 * time.Minute) })
	expiring := m.CheckExpiry()
	if len(expiring) != 1 {
		t.Fatalf("expected 1 expiring, got %d", len(expiring))
	}
}

func TestConnectionRevoke(t *testing.T) {
	m := NewRotationManager(RefreshPolicy{MaxAge: time.Hour})
	conn := m.Track("t", "page")

	_ = m.Revoke(conn.ConnectionID)

	if m.IsValid(conn.ConnectionID) {
		t.Fatal("should be invalid after revocation")
	}
}

func TestConnectionNotFound(t *testing.T) {
	m := NewRotationManager(RefreshPolicy{MaxAge: time.Hour})
	_, err := m.Rotate("nonexistent")
	if err == nil {
		t.Fatal("expected error")
	}
}
