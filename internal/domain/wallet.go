/**
 * @description
 * This file defines the core domain models for the treasury-service.
 * It includes the WalletRecord struct persisted by the registry and the
 * static tier catalog consulted by the upgrade flow.
 *
 * @notes
 * - A WalletRecord binds exactly one custodial wallet to one user. The
 *   identifiers are assigned upstream (identity provider and Circle) and
 *   are never regenerated once set.
 * - Tier prices live only in the catalog below. Client-supplied prices
 *   are never trusted.
 */
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// BlockchainArcTestnet is the single blockchain supported at build time.
const BlockchainArcTestnet = "ARC-TESTNET"

// Tier identifies a purchased feature-access level.
type Tier string

const (
	TierFree Tier = "free"
	Tier1    Tier = "tier1"
	Tier2    Tier = "tier2"
)

// WalletRecord represents the custodial wallet bound to one user, as
// stored in the wallet registry.
type WalletRecord struct {
	UserID     string    `json:"user_id"`
	WalletID   string    `json:"wallet_id"`
	Address    string    `json:"address"`
	Blockchain string    `json:"blockchain"`
	Tier       Tier      `json:"tier"`
	CreatedAt  time.Time `json:"created_at"`
}

// TierDefinition describes one entry of the static tier catalog.
type TierDefinition struct {
	ID        Tier            `json:"id"`
	PriceUSDC decimal.Decimal `json:"price_usdc"`
	MaxCards  int             `json:"max_cards"`
}

// TierCatalog is the fixed price table for tier upgrades. Prices are in
// whole USDC.
var TierCatalog = map[Tier]TierDefinition{
	TierFree: {ID: TierFree, PriceUSDC: decimal.Zero, MaxCards: 1},
	Tier1:    {ID: Tier1, PriceUSDC: decimal.NewFromInt(20), MaxCards: 2},
	Tier2:    {ID: Tier2, PriceUSDC: decimal.NewFromInt(40), MaxCards: 4},
}

// LookupTier returns the catalog entry for a client-supplied tier id.
func LookupTier(id string) (TierDefinition, bool) {
	def, ok := TierCatalog[Tier(id)]
	return def, ok
}

// Balance is the USDC balance of a wallet as reported by the provider.
// The amount is a decimal string end-to-end; it is never converted to a
// float.
type Balance struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

// TransferReceipt carries the provider-assigned identifiers for a
// submitted transfer. State reflects the provider's initial transaction
// state (e.g. INITIATED, QUEUED), not finality.
type TransferReceipt struct {
	TransactionID string `json:"transaction_id"`
	State         string `json:"state"`
}
