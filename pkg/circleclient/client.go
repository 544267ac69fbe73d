/**
 * @description
 * This package provides a client for the Circle developer-controlled
 * wallets (W3S) API. It encapsulates the logic for making authenticated
 * HTTP requests to Circle's endpoints: creating wallets in a wallet
 * set, listing them, reading token balances, and submitting transfers.
 *
 * Key features:
 * - Manages the API base URL, API key and entity secret ciphertext.
 * - Generates an idempotency key per mutating request.
 * - Handles JSON serialization/deserialization and error handling.
 *
 * @dependencies
 * - bytes, context, encoding/json, fmt, io, net/http, time: Standard Go libraries.
 * - github.com/google/uuid: For idempotency keys.
 */
package circleclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
)

// FeeLevelMedium is the fixed fee policy for all transfers submitted by
// this service.
const FeeLevelMedium = "MEDIUM"

// Client is a client for the Circle W3S API.
type Client struct {
	baseURL        string
	apiKey         string
	entitySecret   string
	defaultTokenID string
	httpClient     *http.Client
}

// NewClient creates a new Circle API client. tokenID selects the token
// used for transfers (USDC on the target chain).
func NewClient(baseURL, apiKey, entitySecret, tokenID string) *Client {
	return &Client{
		baseURL:        baseURL,
		apiKey:         apiKey,
		entitySecret:   entitySecret,
		defaultTokenID: tokenID,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Wallet is a wallet as represented by Circle.
type Wallet struct {
	ID         string `json:"id"`
	Address    string `json:"address"`
	Blockchain string `json:"blockchain"`
	RefID      string `json:"refId"`
	State      string `json:"state"`
}

// TokenBalance is one entry of a wallet's token balance listing.
type TokenBalance struct {
	Token struct {
		Symbol string `json:"symbol"`
		Name   string `json:"name"`
	} `json:"token"`
	Amount string `json:"amount"`
}

// Transaction is the provider-side record of a submitted transfer.
type Transaction struct {
	ID    string `json:"id"`
	State string `json:"state"`
}

type createWalletsRequest struct {
	IdempotencyKey string              `json:"idempotencyKey"`
	WalletSetID    string              `json:"walletSetId"`
	Blockchains    []string            `json:"blockchains"`
	Count          int                 `json:"count"`
	Metadata       []map[string]string `json:"metadata,omitempty"`
	EntitySecret   string              `json:"entitySecretCiphertext"`
}

type createWalletsResponse struct {
	Data struct {
		Wallets []Wallet `json:"wallets"`
	} `json:"data"`
}

type listWalletsResponse struct {
	Data struct {
		Wallets []Wallet `json:"wallets"`
	} `json:"data"`
}

type walletBalancesResponse struct {
	Data struct {
		TokenBalances []TokenBalance `json:"tokenBalances"`
	} `json:"data"`
}

type createTransferRequest struct {
	IdempotencyKey     string   `json:"idempotencyKey"`
	WalletID           string   `json:"walletId"`
	TokenID            string   `json:"tokenId"`
	DestinationAddress string   `json:"destinationAddress"`
	Amounts            []string `json:"amounts"`
	Fee                struct {
		Type   string `json:"type"`
		Config struct {
			FeeLevel string `json:"feeLevel"`
		} `json:"config"`
	} `json:"fee"`
	EntitySecret string `json:"entitySecretCiphertext"`
}

type createTransferResponse struct {
	Data Transaction `json:"data"`
}

// CreateWallet creates one wallet in the wallet set on the given
// blockchain, tagged with refID so it can be matched back to a user
// later.
func (c *Client) CreateWallet(ctx context.Context, walletSetID, blockchain, refID string) (*Wallet, error) {
	req := createWalletsRequest{
		IdempotencyKey: uuid.NewString(),
		WalletSetID:    walletSetID,
		Blockchains:    []string{blockchain},
		Count:          1,
		Metadata:       []map[string]string{{"refId": refID}},
		EntitySecret:   c.entitySecret,
	}

	var resp createWalletsResponse
	endpoint := fmt.Sprintf("%s/v1/w3s/developer/wallets", c.baseURL)
	if err := c.do(ctx, http.MethodPost, endpoint, req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data.Wallets) == 0 {
		return nil, fmt.Errorf("circle API returned no wallets for wallet set %s", walletSetID)
	}
	return &resp.Data.Wallets[0], nil
}

// ListWallets fetches the full wallet listing for a wallet set. Each
// wallet carries the refId it was created with.
func (c *Client) ListWallets(ctx context.Context, walletSetID string) ([]Wallet, error) {
	var resp listWalletsResponse
	endpoint := fmt.Sprintf("%s/v1/w3s/wallets?walletSetId=%s", c.baseURL, url.QueryEscape(walletSetID))
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Data.Wallets, nil
}

// GetTokenBalances fetches all token balances for a wallet.
func (c *Client) GetTokenBalances(ctx context.Context, walletID string) ([]TokenBalance, error) {
	var resp walletBalancesResponse
	endpoint := fmt.Sprintf("%s/v1/w3s/wallets/%s/balances", c.baseURL, url.PathEscape(walletID))
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Data.TokenBalances, nil
}

// CreateTransfer submits a single on-chain transfer from a wallet to a
// destination address with the fixed MEDIUM fee level. The returned
// state is the provider's initial transaction state, not finality.
func (c *Client) CreateTransfer(ctx context.Context, walletID, destinationAddress, amount string) (*Transaction, error) {
	req := createTransferRequest{
		IdempotencyKey:     uuid.NewString(),
		WalletID:           walletID,
		TokenID:            c.defaultTokenID,
		DestinationAddress: destinationAddress,
		Amounts:            []string{amount},
		EntitySecret:       c.entitySecret,
	}
	req.Fee.Type = "level"
	req.Fee.Config.FeeLevel = FeeLevelMedium

	var resp createTransferResponse
	endpoint := fmt.Sprintf("%s/v1/w3s/developer/transactions/transfer", c.baseURL)
	if err := c.do(ctx, http.MethodPost, endpoint, req, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

// do is a helper function to make HTTP requests to the Circle API.
func (c *Client) do(ctx context.Context, method, endpoint string, body, target interface{}) error {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create http request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	log.Printf("Making Circle API request: %s %s", method, endpoint)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Printf("Circle API returned non-success status code %d: %s", resp.StatusCode, string(respBody))
		return fmt.Errorf("circle API error: status %d, body: %s", resp.StatusCode, string(respBody))
	}

	if target != nil {
		if err := json.Unmarshal(respBody, target); err != nil {
			return fmt.Errorf("failed to unmarshal response body: %w", err)
		}
	}

	return nil
}
