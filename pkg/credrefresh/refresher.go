package credrefresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/CRT-AUTO/bridge-core/pkg/credentials"
	"github.com/CRT-AUTO/bridge-core/pkg/store"
)

// DefaultInterval is how often a proactive refresh sweep runs absent an
// override.
const DefaultInterval = 24 * time.Hour

// DefaultWindow is how far ahead of expiry a connection is eligible for
// refresh.
const DefaultWindow = 7 * 24 * time.Hour

// Expiry display bands, keyed by daysUntilExpiry.
const (
	BandExpired = "expired"
	BandRed     = "red"
	BandYellow  = "yellow"
	BandGreen   = "green"
)

// Result is one connection's outcome from a refresh run.
type Result struct {
	ConnectionID string     `json:"connection_id"`
	Status       string     `json:"status"` // "ok" | "error"
	NewExpiry    *time.Time `json:"new_expiry,omitempty"`
	Error        string     `json:"error,omitempty"`
}

// Refresher scans SocialConnections nearing expiry and rotates their
// access tokens via the provider's long-lived-token exchange.
type Refresher struct {
	Store     *store.Store
	Locker    store.Locker
	Exchange  *ProviderTokenExchange
	Encryptor *credentials.Encryptor
	Window    time.Duration
	Logger    *slog.Logger
}

func (r *Refresher) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

// DaysUntilExpiry returns floor((expiry-now)/86400000), matching the
// operator dashboard's countdown semantics exactly (negative once expired).
func DaysUntilExpiry(expiry time.Time, now time.Time) int {
	ms := expiry.Sub(now).Milliseconds()
	days := ms / 86400000
	if ms%86400000 != 0 && ms < 0 {
		days--
	}
	return int(days)
}

// ExpiryBand classifies a days-until-expiry count into a display band.
func ExpiryBand(days int) string {
	switch {
	case days <= 0:
		return BandExpired
	case days <= 5:
		return BandRed
	case days <= 14:
		return BandYellow
	default:
		return BandGreen
	}
}

// RunSweep refreshes every connection expiring within Window (DefaultWindow
// if unset), returning one Result per connection attempted.
func (r *Refresher) RunSweep(ctx context.Context) ([]Result, error) {
	window := r.Window
	if window <= 0 {
		window = DefaultWindow
	}

	connections, err := r.Store.SocialConnectionsExpiringBefore(ctx, time.Now().Add(window))
	if err != nil {
		return nil, fmt.Errorf("list expiring connections: %w", err)
	}

	results := make([]Result, 0, len(connections))
	for _, c := range connections {
		results = append(results, r.refreshOne(ctx, c))
	}
	return results, nil
}

// RefreshConnection refreshes a single connection on demand (C12's
// /api/refresh/{connection_id} handler), regardless of its current
// expiry window.
func (r *Refresher) RefreshConnection(ctx context.Context, connectionID string) (Result, error) {
	connections, err := r.Store.SocialConnectionsExpiringBefore(ctx, time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC))
	if err != nil {
		return Result{}, fmt.Errorf("load connection %s: %w", connectionID, err)
	}
	for _, c := range connections {
		if c.ID == connectionID {
			return r.refreshOne(ctx, c), nil
		}
	}
	return Result{}, fmt.Errorf("connection %s: %w", connectionID, errConnectionNotFound)
}

var errConnectionNotFound = errors.New("connection not found")

func (r *Refresher) refreshOne(ctx context.Context, c store.SocialConnection) Result {
	result := Result{ConnectionID: c.ID}
	log := r.logger().With("connection_id", c.ID, "tenant_id", c.TenantID)

	lockKey := "credential-refresh:" + c.ID
	token, err := r.Locker.Lock(ctx, lockKey, 30*time.Second)
	if err != nil {
		result.Status = "error"
		result.Error = fmt.Sprintf("lock: %v", err)
		return result
	}
	defer r.Locker.Unlock(ctx, lockKey, token)

	currentToken, err := r.Encryptor.Decrypt(c.AccessToken)
	if err != nil {
		result.Status = "error"
		result.Error = fmt.Sprintf("decrypt current token: %v", err)
		log.Error("failed to decrypt token for refresh", "error", err)
		return result
	}

	tok, err := r.Exchange.ExchangeForLongLived(ctx, currentToken)
	if err != nil {
		result.Status = "error"
		result.Error = err.Error()
		log.Warn("token exchange failed", "error", err)
		return result
	}

	encrypted, err := r.Encryptor.Encrypt(tok.AccessToken)
	if err != nil {
		result.Status = "error"
		result.Error = fmt.Sprintf("encrypt refreshed token: %v", err)
		log.Error("failed to encrypt refreshed token", "error", err)
		return result
	}

	expiry := time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	if tok.ExpiresIn <= 0 {
		expiry = time.Now().Add(60 * 24 * time.Hour)
	}

	if err := r.Store.UpdateSocialConnectionToken(ctx, c.ID, encrypted, expiry); err != nil {
		result.Status = "error"
		result.Error = fmt.Sprintf("persist refreshed token: %v", err)
		log.Error("failed to persist refreshed token", "error", err)
		return result
	}

	result.Status = "ok"
	result.NewExpiry = &expiry
	log.Info("refreshed social connection token", "new_expiry", expiry, "days_until_expiry", DaysUntilExpiry(expiry, time.Now()))
	return result
}
