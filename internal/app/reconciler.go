/**
 * @description
 * Cron-scheduled reconciliation of the local wallet registry against
 * the upstream provider. The provider is the source of truth for which
 * wallets exist; a registry rebuilt from nothing on redeploy is healed
 * on demand by EnsureWallet, and proactively here.
 */
package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/subguard/treasury-service/internal/domain"
	"github.com/subguard/treasury-service/internal/store"
)

// ReconcileRegistry scans the provider's wallet listing and writes a
// registry record for every wallet whose reference id has no local
// entry. Returns the number of records healed.
func (s *Service) ReconcileRegistry(ctx context.Context) (int, error) {
	wallets, err := s.provider.ListWallets(ctx, s.walletSetID)
	if err != nil {
		return 0, err
	}

	healed := 0
	for i := range wallets {
		userID := wallets[i].RefID
		if userID == "" {
			continue
		}
		_, err := s.repo.GetWallet(ctx, userID)
		if err == nil {
			continue
		}
		if !errors.Is(err, store.ErrWalletNotFound) {
			return healed, err
		}

		rec := &domain.WalletRecord{
			UserID:     userID,
			WalletID:   wallets[i].ID,
			Address:    wallets[i].Address,
			Blockchain: blockchainOrDefault(wallets[i].Blockchain),
			Tier:       domain.TierFree,
			CreatedAt:  time.Now().UTC(),
		}
		if err := s.repo.CreateWallet(ctx, rec); err != nil {
			if errors.Is(err, store.ErrWalletExists) {
				continue
			}
			return healed, err
		}
		healed++
	}
	return healed, nil
}

// Reconciler runs registry reconciliation on a cron schedule.
type Reconciler struct {
	cron     *cron.Cron
	service  *Service
	logger   *slog.Logger
	schedule string
}

// NewReconciler creates a reconciler with the given cron schedule
// expression.
func NewReconciler(service *Service, logger *slog.Logger, schedule string) *Reconciler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger)))

	return &Reconciler{
		cron:     c,
		service:  service,
		logger:   logger,
		schedule: schedule,
	}
}

// Start registers the reconciliation job and starts the scheduler.
func (r *Reconciler) Start() {
	if _, err := r.cron.AddFunc(r.schedule, r.run); err != nil {
		r.logger.Error("failed to schedule registry reconciliation job", "error", err)
		return
	}
	r.logger.Info("scheduled registry reconciliation job", "schedule", r.schedule)
	r.cron.Start()
}

func (r *Reconciler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	healed, err := r.service.ReconcileRegistry(ctx)
	if err != nil {
		r.logger.Error("registry reconciliation failed", "error", err)
		return
	}
	if healed > 0 {
		r.logger.Info("registry reconciliation healed records", "count", healed)
	}
}

// Stop gracefully stops the scheduler.
func (r *Reconciler) Stop() context.Context {
	return r.cron.Stop()
}
