/**
 * @description
 * This file defines the `Repository` interface for the wallet registry,
 * the durable user -> wallet -> tier mapping owned by this service. By
 * defining an interface, the business logic is decoupled from the
 * backing storage, which ships in three flavors: PostgreSQL for
 * production, a JSON file mirror for single-node deployments, and an
 * in-memory map for tests.
 *
 * All implementations honor the same contract: a create is
 * exactly-once per user (ErrWalletExists on conflict), and every
 * mutation is durable before the call returns.
 */
package store

import (
	"context"
	"errors"

	"github.com/subguard/treasury-service/internal/domain"
)

// ErrWalletNotFound is returned when no wallet record exists for a user.
var ErrWalletNotFound = errors.New("wallet not found")

// ErrWalletExists is returned by CreateWallet when a record already
// exists for the user. Callers that want upsert semantics must not use
// this store; wallet records are created exactly once.
var ErrWalletExists = errors.New("wallet already exists for user")

// Repository defines the persistence contract for wallet records.
type Repository interface {
	// GetWallet looks up the wallet record for a user. Returns
	// ErrWalletNotFound when absent. Pure read, no side effects.
	GetWallet(ctx context.Context, userID string) (*domain.WalletRecord, error)

	// CreateWallet persists a new wallet record. Returns ErrWalletExists
	// if a record for rec.UserID is already present.
	CreateWallet(ctx context.Context, rec *domain.WalletRecord) error

	// SetTier updates the tier of an existing record. Returns
	// ErrWalletNotFound if the user has never been provisioned.
	SetTier(ctx context.Context, userID string, tier domain.Tier) error
}
