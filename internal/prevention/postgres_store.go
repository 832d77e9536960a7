package prevention

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mbd888/walletguard/internal/threat"
)

// PostgresStore persists evaluations in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed evaluation store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the evaluations table if it doesn't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS evaluations (
			id            VARCHAR(36) PRIMARY KEY,
			wallet        VARCHAR(64) NOT NULL,
			recipient     VARCHAR(64) NOT NULL,
			allowed       BOOLEAN NOT NULL,
			risk_level    VARCHAR(10) NOT NULL CHECK (risk_level IN ('safe', 'low', 'medium', 'high', 'critical')),
			risk_score    INTEGER NOT NULL CHECK (risk_score >= 0),
			threats       INTEGER NOT NULL DEFAULT 0,
			evaluated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_evaluations_wallet
			ON evaluations (wallet, evaluated_at DESC);

		CREATE INDEX IF NOT EXISTS idx_evaluations_blocks
			ON evaluations (evaluated_at DESC) WHERE allowed = FALSE;
	`)
	return err
}

func (s *PostgresStore) Record(ctx context.Context, eval *Evaluation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO evaluations (id, wallet, recipient, allowed, risk_level, risk_score, threats, evaluated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		eval.ID,
		eval.Wallet,
		eval.To,
		eval.Allowed,
		string(eval.RiskLevel),
		eval.RiskScore,
		eval.Threats,
		eval.EvaluatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record evaluation: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByWallet(ctx context.Context, wallet string, limit int) ([]*Evaluation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, wallet, recipient, allowed, risk_level, risk_score, threats, evaluated_at
		FROM evaluations
		WHERE wallet = $1
		ORDER BY evaluated_at DESC
		LIMIT $2
	`, wallet, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list evaluations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Evaluation
	for rows.Next() {
		var e Evaluation
		var level string
		var evaluatedAt time.Time

		if err := rows.Scan(&e.ID, &e.Wallet, &e.To, &e.Allowed, &level, &e.RiskScore, &e.Threats, &evaluatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan evaluation: %w", err)
		}
		e.RiskLevel = threat.RiskLevel(level)
		e.EvaluatedAt = evaluatedAt
		result = append(result, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list evaluations: %w", err)
	}
	return result, nil
}
