package datastore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/yourusername/quant-replay/internal/database"
	"github.com/yourusername/quant-replay/internal/models"
)

const createRunsTable = `
CREATE TABLE IF NOT EXISTS backtest_runs (
    session_id TEXT PRIMARY KEY,
    prices     JSONB NOT NULL,
    result     JSONB NOT NULL,
    metadata   JSONB NOT NULL DEFAULT '{}'::jsonb,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresStore is the Postgres-backed RunStore. Saving the same session id
// twice replaces the stored artifact.
type PostgresStore struct {
	db *database.DB
}

// NewPostgresStore creates the store and ensures the schema exists.
func NewPostgresStore(ctx context.Context, db *database.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, models.NewConfigurationError("database", "is required")
	}
	if _, err := db.Pool().Exec(ctx, createRunsTable); err != nil {
		return nil, fmt.Errorf("failed to create backtest_runs table: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// SaveRun upserts the run row and returns its logical location.
func (s *PostgresStore) SaveRun(ctx context.Context, sessionID string, prices []models.Bar, result interface{}, metadata map[string]interface{}) (string, error) {
	if sessionID == "" {
		return "", models.ErrSessionIDRequired
	}
	pricesJSON, err := json.Marshal(prices)
	if err != nil {
		return "", fmt.Errorf("failed to serialize prices: %w", err)
	}
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("failed to serialize result: %w", err)
	}
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("failed to serialize metadata: %w", err)
	}

	_, err = s.db.Pool().Exec(ctx, `
		INSERT INTO backtest_runs (session_id, prices, result, metadata)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (session_id) DO UPDATE
		SET prices = EXCLUDED.prices,
		    result = EXCLUDED.result,
		    metadata = EXCLUDED.metadata`,
		sessionID, pricesJSON, resultJSON, metadataJSON)
	if err != nil {
		return "", fmt.Errorf("failed to persist run: %w", err)
	}
	return "postgres://backtest_runs/" + sessionID, nil
}

// LoadRun retrieves a stored run row.
func (s *PostgresStore) LoadRun(ctx context.Context, sessionID string) (*StoredRun, error) {
	if sessionID == "" {
		return nil, models.ErrSessionIDRequired
	}
	var (
		pricesJSON   []byte
		resultJSON   []byte
		metadataJSON []byte
	)
	err := s.db.Pool().QueryRow(ctx, `
		SELECT prices, result, metadata FROM backtest_runs WHERE session_id = $1`,
		sessionID).Scan(&pricesJSON, &resultJSON, &metadataJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load run: %w", err)
	}

	run := &StoredRun{SessionID: sessionID, Result: resultJSON}
	if err := json.Unmarshal(pricesJSON, &run.Prices); err != nil {
		return nil, fmt.Errorf("failed to parse stored prices: %w", err)
	}
	if err := json.Unmarshal(metadataJSON, &run.Metadata); err != nil {
		return nil, fmt.Errorf("failed to parse stored metadata: %w", err)
	}
	return run, nil
}
