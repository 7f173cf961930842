// Package credentials — connection refresh scheduling.
package credentials

import (
	"fmt"
	"sync"
	"time"
)

// ConnectionState tracks the lifecycle state of a tracked SocialConnection
// credential as seen by the refresher, independent of the row's persisted
// state in the store.
type ConnectionState string

const (
	ConnectionActive  ConnectionState = "ACTIVE"
	ConnectionExpired ConnectionState = "EXPIRED"
	ConnectionRevoked ConnectionState = "REVOKED"
	ConnectionRotated ConnectionState = "ROTATED"
)

// TrackedConnection mirrors a SocialConnection's refresh lifecycle.
type TrackedConnection struct {
	ConnectionID string          `json:"connection_id"`
	TenantID     string          `json:"tenant_id"`
	Platform     string          `json:"platform"`
	State        ConnectionState `json:"state"`
	IssuedAt     time.Time       `json:"issued_at"`
	ExpiresAt    time.Time       `json:"expires_at"`
	RefreshedAt  *time.Time      `json:"refreshed_at,omitempty"`
	RefreshGen   int             `json:"refresh_gen"`
}

// RefreshPolicy defines the threshold and cadence the refresher uses to
// decide which connections are due.
type RefreshPolicy struct {
	MaxAge      time.Duration
	AutoRotate  bool
	GracePeriod time.Duration
}

// RotationManager tracks in-memory connection lifecycle state between
// refresher sweeps. It does not itself persist anything — pkg/store is the
// source of truth — but gives the refresher a deterministic, clock-injected
// view for scheduling decisions and tests.
type RotationManager struct {
	mu          sync.Mutex
	connections map[string]*TrackedConnection
	policy      RefreshPolicy
	seq         int64
	clock       func() time.Time
}

// NewRotationManager creates a new manager.
func NewRotationManager(policy RefreshPolicy) *RotationManager {
	return &RotationManager{
		connections: make(map[string]*TrackedConnection),
		policy:      policy,
		clock:       time.Now,
	}
}

// WithClock overrides the clock for deterministic tests.
func (m *RotationManager) WithClock(clock func() time.Time) *RotationManager {
	m.clock = clock
	return m
}

// Track registers a connection for refresh scheduling.
func (m *RotationManager) Track(tenantID, platform string) *TrackedConnection {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	now := m.clock()
	id := fmt.Sprintf("conn-%d", m.seq)

	conn := &TrackedConnection{
		ConnectionID: id,
		TenantID:     tenantID,
		Platform:     platform,
		State:        ConnectionActive,
		IssuedAt:     now,
		ExpiresAt:    now.Add(m.policy.MaxAge),
		RefreshGen:   1,
	}

	m.connections[id] = conn
	return conn
}

// Rotate records a successful refresh, advancing the connection to a new
// generation with an extended expiry.
func (m *RotationManager) Rotate(connectionID string) (*TrackedConnection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	old, ok := m.connections[connectionID]
	if !ok {
		return nil, fmt.Errorf("connection %q not tracked", connectionID)
	}

	now := m.clock()
	old.State = ConnectionRotated
	old.RefreshedAt = &now

	m.seq++
	newID := fmt.Sprintf("conn-%d", m.seq)
	newConn := &TrackedConnection{
		ConnectionID: newID,
		TenantID:     old.TenantID,
		Platform:     old.Platform,
		State:        ConnectionActive,
		IssuedAt:     now,
		ExpiresAt:    now.Add(m.policy.MaxAge),
		RefreshGen:   old.RefreshGen + 1,
	}

	m.connections[newID] = newConn
	return newConn, nil
}

// CheckExpiry returns all tracked connections within the refresh policy's
// grace window of expiring.
func (m *RotationManager) CheckExpiry() []*TrackedConnection {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock()
	var expiring []*TrackedConnection

	for _, conn := range m.connections {
		if conn.State != ConnectionActive {
			continue
		}
		if now.After(conn.ExpiresAt) || now.After(conn.ExpiresAt.Add(-m.policy.GracePeriod)) {
			expiring = append(expiring, conn)
		}
	}
	return expiring
}

// Revoke marks a connection as revoked.
func (m *RotationManager) Revoke(connectionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	conn, ok := m.connections[connectionID]
	if !ok {
		return fmt.Errorf("connection %q not tracked", connectionID)
	}
	conn.State = ConnectionRevoked
	return nil
}

// Get retrieves a tracked connection.
func (m *RotationManager) Get(connectionID string) (*TrackedConnection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conn, ok := m.connections[connectionID]
	if !ok {
		return nil, fmt.Errorf("connection %q not tracked", connectionID)
	}
	return conn, nil
}

// IsValid reports whether a connection is active and unexpired.
func (m *RotationManager) IsValid(connectionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	conn, ok := m.connections[connectionID]
	if !ok {
		return false
	}
	if conn.State != ConnectionActive {
		return false
	}
	return m.clock().Before(conn.ExpiresAt)
}
