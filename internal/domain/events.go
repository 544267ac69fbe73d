package domain

import "time"

// WalletProvisionedEvent is published after a wallet has been created or
// recovered for a user.
type WalletProvisionedEvent struct {
	EventID    string    `json:"event_id"`
	UserID     string    `json:"user_id"`
	WalletID   string    `json:"wallet_id"`
	Address    string    `json:"address"`
	Blockchain string    `json:"blockchain"`
	Recovered  bool      `json:"recovered"`
	OccurredAt time.Time `json:"occurred_at"`
}

// TierUpgradedEvent is published after a tier change has been committed
// to the registry.
type TierUpgradedEvent struct {
	EventID       string    `json:"event_id"`
	UserID        string    `json:"user_id"`
	Tier          string    `json:"tier"`
	PriceUSDC     string    `json:"price_usdc"`
	TransactionID string    `json:"transaction_id,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}
