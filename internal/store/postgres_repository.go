/**
 * @description
 * PostgreSQL implementation of the wallet registry. This is the
 * production backing store: writes are row-level and committed before
 * the call returns, so it is safe for concurrent writer processes,
 * unlike the file-backed mirror.
 *
 * Expected schema:
 *
 *   CREATE TABLE user_wallets (
 *       user_id    TEXT PRIMARY KEY,
 *       wallet_id  TEXT NOT NULL,
 *       address    TEXT NOT NULL,
 *       blockchain TEXT NOT NULL,
 *       tier       TEXT NOT NULL DEFAULT 'free',
 *       created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
 *   );
 */
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/subguard/treasury-service/internal/domain"
)

// PostgresRepository stores wallet records in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL-backed registry.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetWallet retrieves the wallet record for a user.
func (r *PostgresRepository) GetWallet(ctx context.Context, userID string) (*domain.WalletRecord, error) {
	var rec domain.WalletRecord
	query := `
        SELECT user_id, wallet_id, address, blockchain, tier, created_at
        FROM user_wallets
        WHERE user_id = $1
    `
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&rec.UserID,
		&rec.WalletID,
		&rec.Address,
		&rec.Blockchain,
		&rec.Tier,
		&rec.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWalletNotFound
		}
		return nil, fmt.Errorf("failed to query wallet record: %w", err)
	}
	return &rec, nil
}

// CreateWallet inserts a new wallet record. The primary key on user_id
// enforces the exactly-once-per-user create at the database level.
func (r *PostgresRepository) CreateWallet(ctx context.Context, rec *domain.WalletRecord) error {
	query := `
        INSERT INTO user_wallets (user_id, wallet_id, address, blockchain, tier, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)
    `
	_, err := r.db.Exec(ctx, query,
		rec.UserID,
		rec.WalletID,
		rec.Address,
		rec.Blockchain,
		rec.Tier,
		rec.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrWalletExists
		}
		return fmt.Errorf("failed to insert wallet record: %w", err)
	}
	return nil
}

// SetTier updates the tier column for an existing record.
func (r *PostgresRepository) SetTier(ctx context.Context, userID string, tier domain.Tier) error {
	tag, err := r.db.Exec(ctx, `UPDATE user_wallets SET tier = $2 WHERE user_id = $1`, userID, tier)
	if err != nil {
		return fmt.Errorf("failed to update tier: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrWalletNotFound
	}
	return nil
}
