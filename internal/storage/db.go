package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
)

// DB wraps the database connection and provides health checks
type DB struct {
	conn *sqlx.DB

	// Cache for API key lookups on the hot request path
	apiKeyCache *LRUCache
}

// DBConfig holds database configuration
type DBConfig struct {
	DSN string

	// Pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	// Cache settings
	APIKeyCacheSize int
	APIKeyCacheTTL  time.Duration
}

// NewDB creates a new database connection with caching
func NewDB(cfg DBConfig) (*DB, error) {
	conn, err := sqlx.Connect("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	conn.SetMaxOpenConns(cfg.MaxOpenConns)
	conn.SetMaxIdleConns(cfg.MaxIdleConns)
	conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	conn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	db := &DB{
		conn:        conn,
		apiKeyCache: NewLRUCache(cfg.APIKeyCacheSize, cfg.APIKeyCacheTTL),
	}

	return db, nil
}

// Close closes the database connection and clears caches
func (db *DB) Close() error {
	db.apiKeyCache.Clear()
	return db.conn.Close()
}

// Ping checks if the database is reachable
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Health returns the health status of the database
func (db *DB) Health(ctx context.Context) error {
	if err := db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	var result int
	err := db.conn.GetContext(ctx, &result, "SELECT 1")
	if err != nil {
		return fmt.Errorf("health check query failed: %w", err)
	}

	return nil
}

// BeginTx starts a new transaction
func (db *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return db.conn.BeginTxx(ctx, opts)
}

// Conn returns the underlying sqlx connection
// Use this for custom queries not covered by repositories
func (db *DB) Conn() *sqlx.DB {
	return db.conn
}

// GetAPIKeyCache returns the API key cache
func (db *DB) GetAPIKeyCache() *LRUCache {
	return db.apiKeyCache
}

// EnsureSchema creates the gateway tables if they do not exist.
// Idempotent; safe to run on every startup.
func (db *DB) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS api_keys (
			id UUID PRIMARY KEY,
			name TEXT NOT NULL,
			key_hash CHAR(64) NOT NULL UNIQUE,
			revoked BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			last_used_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS credit_accounts (
			key_id UUID PRIMARY KEY REFERENCES api_keys(id),
			balance INTEGER NOT NULL DEFAULT 0 CHECK (balance >= 0),
			lifetime_issued INTEGER NOT NULL DEFAULT 0,
			lifetime_consumed INTEGER NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS usage_records (
			id UUID PRIMARY KEY,
			key_id UUID NOT NULL REFERENCES api_keys(id),
			job_id UUID,
			credits INTEGER NOT NULL,
			outcome TEXT NOT NULL,
			endpoint TEXT NOT NULL,
			processing_ms INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_usage_key_created
			ON usage_records (key_id, created_at)`,
		// One billed success and one refund per job, enforced at the store
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_usage_job_success
			ON usage_records (job_id) WHERE outcome = 'success' AND job_id IS NOT NULL`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_usage_job_refund
			ON usage_records (job_id) WHERE outcome = 'refunded' AND job_id IS NOT NULL`,
		`CREATE TABLE IF NOT EXISTS conversion_jobs (
			id UUID PRIMARY KEY,
			key_id UUID NOT NULL REFERENCES api_keys(id),
			state TEXT NOT NULL,
			source TEXT NOT NULL,
			options TEXT NOT NULL DEFAULT '',
			credits INTEGER NOT NULL DEFAULT 0,
			result_ref TEXT,
			error_detail TEXT,
			retryable BOOLEAN,
			submitted_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			completed_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_key ON conversion_jobs (key_id)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_state ON conversion_jobs (state)`,
		`CREATE TABLE IF NOT EXISTS admin_users (
			id UUID PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			enabled BOOLEAN NOT NULL DEFAULT TRUE,
			last_login_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	}

	for _, stmt := range statements {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}
	return nil
}

// Repository factory methods

// NewAPIKeyRepository creates a new API key repository
func (db *DB) NewAPIKeyRepository() *APIKeyRepository {
	return NewAPIKeyRepository(db)
}

// NewLedgerRepository creates a new ledger repository
func (db *DB) NewLedgerRepository() *LedgerRepository {
	return NewLedgerRepository(db)
}

// NewJobRepository creates a new job repository
func (db *DB) NewJobRepository() *JobRepository {
	return NewJobRepository(db)
}

// NewAdminUserRepository creates a new admin user repository
func (db *DB) NewAdminUserRepository() *AdminUserRepository {
	return NewAdminUserRepository(db)
}
