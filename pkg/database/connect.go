// Package database opens and health-checks the bridge's persistence
// connection, dispatching between the Postgres driver used in production
// and the SQLite driver used in lite mode.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Backend identifies which sql.DB driver a DSN should be opened with.
type Backend string

const (
	BackendPostgres Backend = "postgres"
	BackendSQLite   Backend = "sqlite"
)

// Config describes the single persistence connection the bridge keeps open.
type Config struct {
	Backend             Backend
	DSN                 string
	HealthCheckInterval time.Duration
	MaxOpenConns        int
	MaxIdleConns        int
}

// Connector wraps a *sql.DB with a background health check, mirroring the
// health-map pattern of a region-aware router but for the bridge's single
// active backend.
type Connector struct {
	mu      sync.RWMutex
	db      *sql.DB
	backend Backend
	healthy bool
	stopCh  chan struct{}
}

// Connect opens the configured backend and starts its health check loop.
func Connect(cfg Config) (*Connector, error) {
	driver := driverName(cfg.Backend)

	db, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}

	c := &Connector{
		db:      db,
		backend: cfg.Backend,
		healthy: true,
		stopCh:  make(chan struct{}),
	}

	interval := cfg.HealthCheckInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	go c.healthLoop(interval)

	return c, nil
}

func driverName(b Backend) string {
	if b == BackendSQLite {
		return "sqlite"
	}
	return "postgres"
}

func (c *Connector) healthLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			err := c.db.PingContext(ctx)
			cancel()

			c.mu.Lock()
			c.healthy = err == nil
			c.mu.Unlock()
		}
	}
}

// DB returns the underlying connection pool.
func (c *Connector) DB() *sql.DB {
	return c.db
}

// Backend reports which driver this connector was opened with.
func (c *Connector) Backend() Backend {
	return c.backend
}

// Healthy reports the result of the most recent background ping.
func (c *Connector) Healthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.healthy
}

// Close stops the health loop and closes the underlying pool.
func (c *Connector) Close() error {
	close(c.stopCh)
	return c.db.Close()
}
