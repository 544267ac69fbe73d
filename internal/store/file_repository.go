/**
 * @description
 * File-backed implementation of the wallet registry. The full record
 * set is loaded into an in-memory mirror once at construction and
 * rewritten to a JSON file on every mutation. The write is synced to
 * disk before the mutating call returns, so a crash immediately after
 * a successful call never loses that write.
 *
 * @notes
 * - The mirror assumes a single writer process. Multi-process
 *   deployments must use the PostgreSQL registry instead.
 * - Whole-file rewrites are acceptable at the small scale this store
 *   targets; row-level writes belong to the PostgreSQL implementation.
 */
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/subguard/treasury-service/internal/domain"
)

// FileRepository stores wallet records in a JSON file with an in-memory
// read mirror.
type FileRepository struct {
	path string

	mu      sync.RWMutex
	records map[string]*domain.WalletRecord
}

// NewFileRepository opens (or creates) the registry file at path and
// loads the full mirror.
func NewFileRepository(path string) (*FileRepository, error) {
	r := &FileRepository{
		path:    path,
		records: make(map[string]*domain.WalletRecord),
	}
	if err := r.load(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *FileRepository) load() error {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read registry file: %w", err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, &r.records); err != nil {
		return fmt.Errorf("failed to parse registry file %s: %w", r.path, err)
	}
	return nil
}

// flush rewrites the whole record set and syncs it to disk. Callers
// must hold the write lock.
func (r *FileRepository) flush() error {
	if dir := filepath.Dir(r.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create registry directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(r.records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal registry: %w", err)
	}

	f, err := os.OpenFile(r.path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open registry file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("failed to write registry file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("failed to sync registry file: %w", err)
	}
	return f.Close()
}

// GetWallet retrieves the wallet record for a user from the mirror.
func (r *FileRepository) GetWallet(_ context.Context, userID string) (*domain.WalletRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[userID]
	if !ok {
		return nil, ErrWalletNotFound
	}
	cp := *rec
	return &cp, nil
}

// CreateWallet adds a new record and flushes the file before returning.
func (r *FileRepository) CreateWallet(_ context.Context, rec *domain.WalletRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[rec.UserID]; ok {
		return ErrWalletExists
	}

	cp := *rec
	r.records[rec.UserID] = &cp
	if err := r.flush(); err != nil {
		delete(r.records, rec.UserID)
		return err
	}
	return nil
}

// SetTier mutates the tier of an existing record and flushes the file
// before returning.
func (r *FileRepository) SetTier(_ context.Context, userID string, tier domain.Tier) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[userID]
	if !ok {
		return ErrWalletNotFound
	}

	previous := rec.Tier
	rec.Tier = tier
	if err := r.flush(); err != nil {
		rec.Tier = previous
		return err
	}
	return nil
}
