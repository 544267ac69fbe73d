/**
 * @description
 * This file contains the tier upgrade orchestration, the core financial
 * state machine of the service: validate the requested tier, check
 * affordability, execute the payment to the admin settlement address,
 * and only then commit the tier change to the registry.
 *
 * The pay-before-commit ordering is the critical invariant. A crash
 * between payment and commit leaves a submitted transfer without a tier
 * upgrade, which is recoverable and auditable via the transaction id.
 * The reverse (tier upgraded with no payment) is unrecoverable and must
 * never happen.
 *
 * Two concurrent upgrades for the same user can both pass the balance
 * check against the same pre-payment balance before either commits.
 * With a single admin settlement wallet this check-then-act race is
 * accepted; serializing upgrades per user would require a distributed
 * lock or a ledger-level atomic check.
 */
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/subguard/treasury-service/internal/domain"
	"github.com/subguard/treasury-service/internal/store"
)

// ErrUnknownTier is returned when the requested tier id is not in the
// catalog.
var ErrUnknownTier = errors.New("unknown tier id")

// ErrPaymentFailed wraps any failure of the upgrade payment submission.
// The tier is never committed when this is returned.
var ErrPaymentFailed = errors.New("tier payment failed")

// InsufficientFundsError reports that a wallet cannot cover a tier
// price. Both figures are exposed so the caller can render an
// actionable message.
type InsufficientFundsError struct {
	Required decimal.Decimal
	Current  decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: need %s USDC, have %s USDC", e.Required, e.Current)
}

// TierUpgrade is the result of a successful upgrade. TransactionID is
// empty for the free tier.
type TierUpgrade struct {
	Tier          domain.Tier `json:"tier"`
	TransactionID string      `json:"transaction_id,omitempty"`
}

// terminal provider transaction states that mean the transfer was not
// accepted.
func transferRejected(state string) bool {
	switch state {
	case "FAILED", "DENIED", "CANCELLED":
		return true
	}
	return false
}

// Upgrade moves a user to the requested tier. For paid tiers it checks
// affordability, transfers exactly the catalog price to the admin
// settlement address, and commits the tier only after the transfer has
// been accepted by the provider.
func (s *Service) Upgrade(ctx context.Context, userID, tierID string) (*TierUpgrade, error) {
	// 1. Validate against the catalog. The price always comes from the
	// catalog, never from the client.
	def, ok := domain.LookupTier(tierID)
	if !ok {
		return nil, ErrUnknownTier
	}

	// 2. Resolve the funding wallet. Absence is terminal: payment
	// cannot be sourced, the user must re-onboard.
	rec, err := s.repo.GetWallet(ctx, userID)
	if err != nil {
		return nil, err
	}

	// 3. Free tier needs no payment.
	if def.PriceUSDC.IsZero() {
		if err := s.commitTier(ctx, userID, def, ""); err != nil {
			return nil, err
		}
		return &TierUpgrade{Tier: def.ID}, nil
	}

	// 4. Affordability check against the live provider balance.
	balance, err := s.walletBalance(ctx, rec.WalletID)
	if err != nil {
		return nil, err
	}
	current, err := decimal.NewFromString(balance.Amount)
	if err != nil {
		return nil, fmt.Errorf("provider returned unparsable balance %q: %w", balance.Amount, err)
	}
	if current.LessThan(def.PriceUSDC) {
		return nil, &InsufficientFundsError{Required: def.PriceUSDC, Current: current}
	}

	// 5. Pay. The amount is the catalog price as a decimal string.
	log.Printf("Tier upgrade: transferring %s USDC from wallet %s to settlement address %s", def.PriceUSDC, rec.WalletID, s.adminAddress)
	tx, err := s.provider.CreateTransfer(ctx, rec.WalletID, s.adminAddress, def.PriceUSDC.String())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPaymentFailed, err)
	}
	if tx.ID == "" || transferRejected(tx.State) {
		return nil, fmt.Errorf("%w: provider returned state %q", ErrPaymentFailed, tx.State)
	}

	// 6. Commit only after the payment was accepted.
	if err := s.commitTier(ctx, userID, def, tx.ID); err != nil {
		// Payment is out the door but the tier is not recorded. The
		// transaction id makes this auditable and manually recoverable.
		log.Printf("CRITICAL: tier commit failed after payment for user %s (tier %s, transaction %s): %v", userID, def.ID, tx.ID, err)
		return nil, fmt.Errorf("tier commit failed after payment %s: %w", tx.ID, err)
	}

	log.Printf("User %s upgraded to %s (transaction %s)", userID, def.ID, tx.ID)
	return &TierUpgrade{Tier: def.ID, TransactionID: tx.ID}, nil
}

// CurrentTier returns the user's tier, defaulting to free when the user
// has no wallet record. Pure read, no side effects.
func (s *Service) CurrentTier(ctx context.Context, userID string) (domain.Tier, error) {
	rec, err := s.repo.GetWallet(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrWalletNotFound) {
			return domain.TierFree, nil
		}
		return "", err
	}
	return rec.Tier, nil
}

func (s *Service) commitTier(ctx context.Context, userID string, def domain.TierDefinition, transactionID string) error {
	if err := s.repo.SetTier(ctx, userID, def.ID); err != nil {
		return err
	}
	s.publishTierUpgraded(ctx, userID, def, transactionID)
	return nil
}

func (s *Service) publishTierUpgraded(ctx context.Context, userID string, def domain.TierDefinition, transactionID string) {
	if s.events == nil {
		return
	}
	event := domain.TierUpgradedEvent{
		EventID:       uuid.NewString(),
		UserID:        userID,
		Tier:          string(def.ID),
		PriceUSDC:     def.PriceUSDC.String(),
		TransactionID: transactionID,
		OccurredAt:    time.Now().UTC(),
	}
	if err := s.events.Publish(ctx, EventsExchange, "tier.upgraded", event); err != nil {
		log.Printf("WARN: failed to publish tier.upgraded event for user %s: %v", userID, err)
	}
}
