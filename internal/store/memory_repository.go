/**
 * @description
 * In-memory implementation of the wallet registry, used by tests. It
 * honors the same contract as the durable implementations but keeps
 * everything in a map.
 */
package store

import (
	"context"
	"sync"

	"github.com/subguard/treasury-service/internal/domain"
)

// MemoryRepository stores wallet records in a map guarded by a mutex.
type MemoryRepository struct {
	mu      sync.RWMutex
	records map[string]*domain.WalletRecord
}

// NewMemoryRepository creates an empty in-memory registry.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{records: make(map[string]*domain.WalletRecord)}
}

// GetWallet retrieves the wallet record for a user.
func (r *MemoryRepository) GetWallet(_ context.Context, userID string) (*domain.WalletRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[userID]
	if !ok {
		return nil, ErrWalletNotFound
	}
	cp := *rec
	return &cp, nil
}

// CreateWallet adds a new record.
func (r *MemoryRepository) CreateWallet(_ context.Context, rec *domain.WalletRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[rec.UserID]; ok {
		return ErrWalletExists
	}
	cp := *rec
	r.records[rec.UserID] = &cp
	return nil
}

// SetTier updates the tier of an existing record.
func (r *MemoryRepository) SetTier(_ context.Context, userID string, tier domain.Tier) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[userID]
	if !ok {
		return ErrWalletNotFound
	}
	rec.Tier = tier
	return nil
}
