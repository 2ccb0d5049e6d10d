package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vaultgate/vaultgate/internal/config"
	"github.com/vaultgate/vaultgate/pkg/models"
)

// PostgresStore persists usage records in Postgres
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new Postgres-backed store
func NewPostgresStore(cfg config.DatabaseConfig) (*PostgresStore, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s pool_max_conns=%d pool_min_conns=%d",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
		cfg.MaxConns, cfg.MinConns,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	// Set connection pool settings
	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Ping the database to verify connection
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// EnsureSchema creates the usage_records table if it does not exist
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS usage_records (
			principal          TEXT PRIMARY KEY,
			daily_usage_bytes  BIGINT NOT NULL DEFAULT 0,
			total_stored_bytes BIGINT NOT NULL DEFAULT 0,
			last_reset         TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`

	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}

	return nil
}

// Get retrieves the usage record for a principal, or nil if absent
func (s *PostgresStore) Get(ctx context.Context, principal string) (*models.UsageRecord, error) {
	var rec models.UsageRecord

	query := `
		SELECT principal, daily_usage_bytes, total_stored_bytes, last_reset
		FROM usage_records
		WHERE principal = $1
	`

	err := s.pool.QueryRow(ctx, query, principal).Scan(
		&rec.Principal, &rec.DailyUsageBytes, &rec.TotalStoredBytes, &rec.LastReset,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get usage record: %w", err)
	}

	return &rec, nil
}

// Put upserts a usage record
func (s *PostgresStore) Put(ctx context.Context, rec *models.UsageRecord) error {
	query := `
		INSERT INTO usage_records (principal, daily_usage_bytes, total_stored_bytes, last_reset)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (principal) DO UPDATE
		SET daily_usage_bytes = $2, total_stored_bytes = $3, last_reset = $4
	`

	_, err := s.pool.Exec(ctx, query,
		rec.Principal, rec.DailyUsageBytes, rec.TotalStoredBytes, rec.LastReset,
	)

	if err != nil {
		return fmt.Errorf("failed to put usage record: %w", err)
	}

	return nil
}

// Close closes the connection pool
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Health checks if the database is reachable
func (s *PostgresStore) Health(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
