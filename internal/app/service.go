/**
 * @description
 * This file contains the core business logic for wallet lifecycle
 * management: idempotent provisioning of exactly one custodial wallet
 * per user, balance reads, and transfer submission through the Circle
 * W3S API.
 *
 * Key features:
 * - EnsureWallet short-circuits on a registry hit, then attempts
 *   recovery from the upstream provider before creating a new wallet,
 *   healing a registry that was rebuilt from nothing on redeploy.
 * - Upstream failures are never swallowed into a success path; the one
 *   exception is the recovery lookup, which is an optimization and
 *   falls through to creation on error.
 *
 * @dependencies
 * - context, errors, fmt, log, strings, time: Standard Go libraries.
 * - github.com/google/uuid: For event identifiers.
 * - internal/domain, internal/store: For domain models and data access.
 * - pkg/circleclient, pkg/rabbitmq: For external service communication.
 */
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/subguard/treasury-service/internal/domain"
	"github.com/subguard/treasury-service/internal/store"
	"github.com/subguard/treasury-service/pkg/circleclient"
	"github.com/subguard/treasury-service/pkg/rabbitmq"
)

// EventsExchange is the topic exchange domain events are published to.
const EventsExchange = "subguard.events"

// WalletProvider is the contract the service needs from the upstream
// wallet-as-a-service provider. *circleclient.Client satisfies it.
type WalletProvider interface {
	CreateWallet(ctx context.Context, walletSetID, blockchain, refID string) (*circleclient.Wallet, error)
	ListWallets(ctx context.Context, walletSetID string) ([]circleclient.Wallet, error)
	GetTokenBalances(ctx context.Context, walletID string) ([]circleclient.TokenBalance, error)
	CreateTransfer(ctx context.Context, walletID, destinationAddress, amount string) (*circleclient.Transaction, error)
}

// WalletInfo is returned by EnsureWallet. IsNew reports whether the
// upstream wallet was created by this call.
type WalletInfo struct {
	WalletID   string      `json:"wallet_id"`
	Address    string      `json:"address"`
	Blockchain string      `json:"blockchain"`
	Tier       domain.Tier `json:"tier"`
	IsNew      bool        `json:"is_new"`
}

// Service provides the core business logic for the treasury service.
type Service struct {
	repo         store.Repository
	provider     WalletProvider
	events       rabbitmq.Publisher
	walletSetID  string
	adminAddress string
}

// NewService creates a new treasury service instance. adminAddress is
// the fixed settlement address that receives tier-upgrade payments.
func NewService(repo store.Repository, provider WalletProvider, events rabbitmq.Publisher, walletSetID, adminAddress string) *Service {
	return &Service{
		repo:         repo,
		provider:     provider,
		events:       events,
		walletSetID:  walletSetID,
		adminAddress: adminAddress,
	}
}

// EnsureWallet returns the user's wallet, provisioning one upstream if
// needed. The call is idempotent: repeated calls for the same user
// return the same wallet.
func (s *Service) EnsureWallet(ctx context.Context, userID string) (*WalletInfo, error) {
	// 1. Registry hit short-circuits everything else.
	rec, err := s.repo.GetWallet(ctx, userID)
	if err == nil {
		return walletInfoFromRecord(rec, false), nil
	}
	if !errors.Is(err, store.ErrWalletNotFound) {
		return nil, fmt.Errorf("failed to look up wallet registry: %w", err)
	}

	// 2. Recovery: the upstream provider retains state across our
	// redeploys, so scan its listing before assuming absence. Failure
	// here is non-fatal; recovery is an optimization, not a requirement.
	if recovered := s.recoverWallet(ctx, userID); recovered != nil {
		return recovered, nil
	}

	// 3. Creation. Errors propagate: no mock wallet is ever substituted.
	log.Printf("Creating new wallet on %s for user %s", domain.BlockchainArcTestnet, userID)
	wallet, err := s.provider.CreateWallet(ctx, s.walletSetID, domain.BlockchainArcTestnet, userID)
	if err != nil {
		return nil, fmt.Errorf("wallet provisioning failed: %w", err)
	}

	rec = &domain.WalletRecord{
		UserID:     userID,
		WalletID:   wallet.ID,
		Address:    wallet.Address,
		Blockchain: blockchainOrDefault(wallet.Blockchain),
		Tier:       domain.TierFree,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.persistRecovered(ctx, rec); err != nil {
		return nil, err
	}

	s.publishProvisioned(ctx, rec, false)
	log.Printf("Wallet created for user %s: %s", userID, rec.Address)
	return walletInfoFromRecord(rec, true), nil
}

// recoverWallet searches the provider's wallet listing for a wallet
// whose reference id matches userID and heals the local registry with
// it. Returns nil when nothing was recovered, for any reason.
func (s *Service) recoverWallet(ctx context.Context, userID string) *WalletInfo {
	wallets, err := s.provider.ListWallets(ctx, s.walletSetID)
	if err != nil {
		log.Printf("WARN: wallet recovery lookup failed for user %s, falling through to creation: %v", userID, err)
		return nil
	}

	for i := range wallets {
		if wallets[i].RefID != userID {
			continue
		}
		rec := &domain.WalletRecord{
			UserID:     userID,
			WalletID:   wallets[i].ID,
			Address:    wallets[i].Address,
			Blockchain: blockchainOrDefault(wallets[i].Blockchain),
			Tier:       domain.TierFree,
			CreatedAt:  time.Now().UTC(),
		}
		if err := s.persistRecovered(ctx, rec); err != nil {
			log.Printf("WARN: failed to persist recovered wallet for user %s: %v", userID, err)
			return nil
		}
		s.publishProvisioned(ctx, rec, true)
		log.Printf("Recovered upstream wallet %s for user %s", rec.WalletID, userID)
		return walletInfoFromRecord(rec, false)
	}
	return nil
}

// persistRecovered writes a record, tolerating a concurrent create for
// the same user by re-reading the winner.
func (s *Service) persistRecovered(ctx context.Context, rec *domain.WalletRecord) error {
	err := s.repo.CreateWallet(ctx, rec)
	if err == nil {
		return nil
	}
	if errors.Is(err, store.ErrWalletExists) {
		existing, getErr := s.repo.GetWallet(ctx, rec.UserID)
		if getErr != nil {
			return fmt.Errorf("wallet record conflict for user %s: %w", rec.UserID, getErr)
		}
		*rec = *existing
		return nil
	}
	return fmt.Errorf("failed to persist wallet record: %w", err)
}

// Balance returns the USDC balance of the user's wallet. The amount is
// a decimal string as reported by the provider; a wallet holding no
// USDC has balance "0".
func (s *Service) Balance(ctx context.Context, userID string) (*domain.Balance, error) {
	rec, err := s.repo.GetWallet(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.walletBalance(ctx, rec.WalletID)
}

func (s *Service) walletBalance(ctx context.Context, walletID string) (*domain.Balance, error) {
	balances, err := s.provider.GetTokenBalances(ctx, walletID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch token balances: %w", err)
	}
	return &domain.Balance{Amount: selectUSDCAmount(balances), Currency: "USDC"}, nil
}

// selectUSDCAmount picks the USDC entry out of a token balance listing.
// Upstream token metadata is not perfectly uniform, so matching
// tolerates casing and bridged-asset suffixes ("USDC.e") and falls back
// to the token name.
func selectUSDCAmount(balances []circleclient.TokenBalance) string {
	for _, b := range balances {
		symbol := strings.ToUpper(strings.TrimSpace(b.Token.Symbol))
		if symbol == "USDC" || strings.HasPrefix(symbol, "USDC.") {
			return b.Amount
		}
	}
	for _, b := range balances {
		if strings.Contains(strings.ToLower(b.Token.Name), "usd coin") {
			return b.Amount
		}
	}
	return "0"
}

// Send submits a transfer of amount USDC from the user's wallet to
// toAddress. The returned state is the provider's initial transaction
// state; funds have not necessarily settled when this returns.
// Destination and amount are validated by the caller before this point.
func (s *Service) Send(ctx context.Context, userID, toAddress, amount string) (*domain.TransferReceipt, error) {
	rec, err := s.repo.GetWallet(ctx, userID)
	if err != nil {
		return nil, err
	}

	log.Printf("Submitting transfer of %s USDC from wallet %s to %s", amount, rec.WalletID, toAddress)
	tx, err := s.provider.CreateTransfer(ctx, rec.WalletID, toAddress, amount)
	if err != nil {
		return nil, fmt.Errorf("transfer submission failed: %w", err)
	}
	return &domain.TransferReceipt{TransactionID: tx.ID, State: tx.State}, nil
}

func (s *Service) publishProvisioned(ctx context.Context, rec *domain.WalletRecord, recovered bool) {
	if s.events == nil {
		return
	}
	event := domain.WalletProvisionedEvent{
		EventID:    uuid.NewString(),
		UserID:     rec.UserID,
		WalletID:   rec.WalletID,
		Address:    rec.Address,
		Blockchain: rec.Blockchain,
		Recovered:  recovered,
		OccurredAt: time.Now().UTC(),
	}
	if err := s.events.Publish(ctx, EventsExchange, "wallet.provisioned", event); err != nil {
		log.Printf("WARN: failed to publish wallet.provisioned event for user %s: %v", rec.UserID, err)
	}
}

func walletInfoFromRecord(rec *domain.WalletRecord, isNew bool) *WalletInfo {
	return &WalletInfo{
		WalletID:   rec.WalletID,
		Address:    rec.Address,
		Blockchain: rec.Blockchain,
		Tier:       rec.Tier,
		IsNew:      isNew,
	}
}

func blockchainOrDefault(blockchain string) string {
	if blockchain == "" {
		return domain.BlockchainArcTestnet
	}
	return blockchain
}
