package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"certtrader/internal/model"
)

// CatalogDocument is the persisted, versioned strategy catalog: the
// ranked scores for one scope plus the promoted names the live engine
// loads at startup.
type CatalogDocument struct {
	Name      string                `json:"name"`
	Version   int                   `json:"version"`
	Scope     string                `json:"scope"`
	Scores    []model.StrategyScore `json:"scores"`
	Use       []string              `json:"use"`
	UpdatedAt time.Time             `json:"updated_at"`
}

// ErrCatalogNotFound is returned when no catalog has been persisted yet.
var ErrCatalogNotFound = errors.New("strategy catalog not found")

// Repository defines the standard interface for database operations.
type Repository interface {
	Migrate(ctx context.Context) error
	SaveCatalog(ctx context.Context, doc CatalogDocument) error
	LoadCatalog(ctx context.Context, name string) (CatalogDocument, error)
	LogTrade(ctx context.Context, trade model.TradeRecord) error
	SaveRunSummary(ctx context.Context, summary model.RunSummary) error
}

// PostgresRepository implements Repository on a pgx connection pool.
type PostgresRepository struct {
	Pool *pgxpool.Pool
}

// NewPostgresRepository connects a pool to the given DSN.
func NewPostgresRepository(ctx context.Context, dsn string) (*PostgresRepository, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	return &PostgresRepository{Pool: pool}, nil
}

// Migrate creates the schema.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	_, err := r.Pool.Exec(ctx, `
	CREATE TABLE IF NOT EXISTS strategy_catalogs (
		id SERIAL PRIMARY KEY,
		name VARCHAR(100) NOT NULL,
		version INT NOT NULL,
		scope VARCHAR(50) NOT NULL,
		document JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (name, version)
	);
	CREATE TABLE IF NOT EXISTS trades (
		id SERIAL PRIMARY KEY,
		run_id VARCHAR(36) NOT NULL,
		instrument VARCHAR(10) NOT NULL,
		entry_price NUMERIC(20, 8) NOT NULL,
		exit_price NUMERIC(20, 8) NOT NULL,
		volume NUMERIC(20, 8) NOT NULL,
		verdict VARCHAR(10) NOT NULL,
		entry_time TIMESTAMPTZ NOT NULL,
		exit_time TIMESTAMPTZ NOT NULL
	);
	CREATE TABLE IF NOT EXISTS run_summaries (
		run_id VARCHAR(36) PRIMARY KEY,
		started_at TIMESTAMPTZ NOT NULL,
		finished_at TIMESTAMPTZ NOT NULL,
		balance_before NUMERIC(20, 8) NOT NULL,
		balance_after NUMERIC(20, 8) NOT NULL,
		budget NUMERIC(20, 8) NOT NULL,
		error_count INT NOT NULL
	);`)
	return err
}

// SaveCatalog persists a new version of the named catalog document.
func (r *PostgresRepository) SaveCatalog(ctx context.Context, doc CatalogDocument) error {
	doc.UpdatedAt = time.Now()
	var version int
	err := r.Pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM strategy_catalogs WHERE name = $1`,
		doc.Name).Scan(&version)
	if err != nil {
		return fmt.Errorf("next catalog version: %w", err)
	}
	doc.Version = version + 1
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode catalog: %w", err)
	}
	_, err = r.Pool.Exec(ctx,
		`INSERT INTO strategy_catalogs (name, version, scope, document, updated_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		doc.Name, doc.Version, doc.Scope, payload, doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save catalog: %w", err)
	}
	return nil
}

// LoadCatalog returns the latest version of the named catalog.
func (r *PostgresRepository) LoadCatalog(ctx context.Context, name string) (CatalogDocument, error) {
	var payload []byte
	err := r.Pool.QueryRow(ctx,
		`SELECT document FROM strategy_catalogs
		 WHERE name = $1 ORDER BY version DESC LIMIT 1`,
		name).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return CatalogDocument{}, ErrCatalogNotFound
	}
	if err != nil {
		return CatalogDocument{}, fmt.Errorf("load catalog: %w", err)
	}
	var doc CatalogDocument
	if err := json.Unmarshal(payload, &doc); err != nil {
		return CatalogDocument{}, fmt.Errorf("decode catalog: %w", err)
	}
	return doc, nil
}

// LogTrade appends one closed trade to the ledger.
func (r *PostgresRepository) LogTrade(ctx context.Context, trade model.TradeRecord) error {
	_, err := r.Pool.Exec(ctx,
		`INSERT INTO trades (run_id, instrument, entry_price, exit_price, volume, verdict, entry_time, exit_time)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		trade.RunID, trade.Instrument.String(), trade.EntryPrice, trade.ExitPrice,
		trade.Volume, trade.Verdict, trade.EntryTime, trade.ExitTime)
	return err
}

// SaveRunSummary upserts the end-of-run report.
func (r *PostgresRepository) SaveRunSummary(ctx context.Context, s model.RunSummary) error {
	_, err := r.Pool.Exec(ctx,
		`INSERT INTO run_summaries (run_id, started_at, finished_at, balance_before, balance_after, budget, error_count)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (run_id) DO UPDATE SET
		   finished_at = EXCLUDED.finished_at,
		   balance_after = EXCLUDED.balance_after,
		   budget = EXCLUDED.budget,
		   error_count = EXCLUDED.error_count`,
		s.RunID, s.StartedAt, s.FinishedAt, s.BalanceBefore, s.BalanceAfter, s.Budget, s.ErrorCount)
	return err
}

// Close releases the pool.
func (r *PostgresRepository) Close() {
	r.Pool.Close()
}
