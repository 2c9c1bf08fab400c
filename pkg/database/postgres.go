package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/lib/pq"

	"github.com/pickflow/separation/internal/config"
	"github.com/pickflow/separation/pkg/observability"
)

// DB wraps sql.DB with the pool-health monitoring the order store (G) and
// the access log (I) run on top of. The generic read-replica routing,
// query cache, and per-query metrics the pooled-connection pattern
// supports upstream aren't exercised here: every order mutation goes
// through a single primary and a single Transaction, so they're left out
// rather than carried as dead weight.
type DB struct {
	*sql.DB
	logger *observability.Logger
	config *PoolConfig

	mu      sync.RWMutex
	metrics PoolMetrics
}

// PoolConfig holds the connection pool settings applied at startup and
// re-checked by monitorPool.
type PoolConfig struct {
	MaxOpenConns        int
	MaxIdleConns        int
	ConnMaxLifetime     time.Duration
	ConnMaxIdleTime     time.Duration
	HealthCheckInterval time.Duration
}

// PoolMetrics is the last pool snapshot monitorPool observed.
type PoolMetrics struct {
	OpenConnections int
	InUse           int
	Idle            int
	WaitCount       int64
	WaitDuration    time.Duration
}

// NewPostgresDB opens the order store's Postgres connection, applies pool
// limits from cfg, and starts background pool monitoring.
func NewPostgresDB(cfg config.DatabaseConfig, logger *observability.Logger) (*DB, error) {
	primary, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open order store connection: %w", err)
	}

	poolConfig := &PoolConfig{
		MaxOpenConns:        cfg.MaxOpenConns,
		MaxIdleConns:        cfg.MaxIdleConns,
		ConnMaxLifetime:     cfg.ConnMaxLifetime,
		ConnMaxIdleTime:     cfg.ConnMaxIdleTime,
		HealthCheckInterval: 30 * time.Second,
	}

	primary.SetMaxOpenConns(poolConfig.MaxOpenConns)
	primary.SetMaxIdleConns(poolConfig.MaxIdleConns)
	primary.SetConnMaxLifetime(poolConfig.ConnMaxLifetime)
	primary.SetConnMaxIdleTime(poolConfig.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := primary.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping order store: %w", err)
	}

	db := &DB{
		DB:     primary,
		logger: logger,
		config: poolConfig,
	}

	go db.monitorPool()

	logger.Info(context.Background(), "order store connection established", map[string]interface{}{
		"max_open_conns":    poolConfig.MaxOpenConns,
		"max_idle_conns":    poolConfig.MaxIdleConns,
		"conn_max_lifetime": poolConfig.ConnMaxLifetime,
	})

	return db, nil
}

// monitorPool periodically samples the pool's connection stats, logging a
// warning when the pool is running near saturation (every open connection
// in use means the next order-upload or batch-apply request queues for a
// connection instead of running immediately).
func (db *DB) monitorPool() {
	ticker := time.NewTicker(db.config.HealthCheckInterval)
	defer ticker.Stop()

	for range ticker.C {
		db.sampleStats()
	}
}

func (db *DB) sampleStats() {
	stats := db.DB.Stats()

	db.mu.Lock()
	db.metrics = PoolMetrics{
		OpenConnections: stats.OpenConnections,
		InUse:           stats.InUse,
		Idle:            stats.Idle,
		WaitCount:       stats.WaitCount,
		WaitDuration:    stats.WaitDuration,
	}
	db.mu.Unlock()

	ctx := context.Background()
	if db.config.MaxOpenConns > 0 && stats.InUse >= db.config.MaxOpenConns {
		db.logger.Warn(ctx, "order store connection pool saturated", map[string]interface{}{
			"in_use":          stats.InUse,
			"max_open_conns":  db.config.MaxOpenConns,
			"wait_count":      stats.WaitCount,
			"wait_duration":   stats.WaitDuration,
		})
		return
	}

	db.logger.Debug(ctx, "order store pool stats", map[string]interface{}{
		"open_connections": stats.OpenConnections,
		"in_use":           stats.InUse,
		"idle":             stats.Idle,
	})
}

// PoolStats returns the most recent pool snapshot monitorPool observed,
// reported by the /health endpoint.
func (db *DB) PoolStats() PoolMetrics {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.metrics
}

// Close closes the order store connection.
func (db *DB) Close() error {
	db.logger.Info(context.Background(), "closing order store connection")
	return db.DB.Close()
}

// Health checks that the order store is reachable.
func (db *DB) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("order store health check failed: %w", err)
	}
	return nil
}

// Transaction runs fn within a database transaction, committing on a nil
// return and rolling back on error or panic. Every order mutation in the
// Postgres store (G) goes through this rather than bare Exec calls, so a
// batch apply's item updates and order-counter refresh commit atomically.
func (db *DB) Transaction(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		} else if err != nil {
			tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	err = fn(tx)
	return err
}
