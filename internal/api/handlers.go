/**
 * @description
 * This file contains the HTTP handlers for the treasury-service API.
 * Handlers parse incoming requests, call the application service, and
 * write the HTTP response. Upstream failures are logged in full
 * server-side but surfaced to callers only as generic messages, so no
 * provider internals or secrets leak through error text.
 *
 * @dependencies
 * - encoding/json, errors, log, net/http: Standard Go libraries.
 * - internal/app, internal/store: For service logic and custom errors.
 */
package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/subguard/treasury-service/internal/app"
	"github.com/subguard/treasury-service/internal/store"
)

// Handler holds the application service that handlers will use.
type Handler struct {
	service *app.Service
}

// NewHandler creates a new Handler with the given service.
func NewHandler(service *app.Service) *Handler {
	return &Handler{service: service}
}

type onboardResponse struct {
	Success       bool   `json:"success"`
	WalletAddress string `json:"walletAddress"`
	WalletID      string `json:"walletId"`
	Blockchain    string `json:"blockchain"`
	IsNew         bool   `json:"isNew"`
	// Card issuance is mocked; these fields exist for response
	// compatibility with the dashboard client.
	CardID    string `json:"cardId"`
	CardLast4 string `json:"cardLast4"`
}

// handleOnboard provisions (or returns) the caller's wallet.
func (h *Handler) handleOnboard(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	info, err := h.service.EnsureWallet(r.Context(), userID)
	if err != nil {
		log.Printf("Onboarding failed for user %s: %v", userID, err)
		respondWithError(w, http.StatusInternalServerError, "Wallet creation failed")
		return
	}

	respondWithJSON(w, http.StatusOK, onboardResponse{
		Success:       true,
		WalletAddress: info.Address,
		WalletID:      info.WalletID,
		Blockchain:    info.Blockchain,
		IsNew:         info.IsNew,
		CardID:        "card_mock_" + time.Now().UTC().Format("20060102150405"),
		CardLast4:     "4242",
	})
}

// handleGetWallet returns the caller's wallet, lazily provisioning one.
func (h *Handler) handleGetWallet(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	info, err := h.service.EnsureWallet(r.Context(), userID)
	if err != nil {
		log.Printf("Wallet fetch failed for user %s: %v", userID, err)
		respondWithError(w, http.StatusInternalServerError, "Wallet fetch failed")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"wallet": map[string]interface{}{
			"id":         info.WalletID,
			"address":    info.Address,
			"blockchain": info.Blockchain,
			"tier":       info.Tier,
		},
	})
}

// handleGetBalance returns the caller's USDC balance.
func (h *Handler) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	balance, err := h.service.Balance(r.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrWalletNotFound) {
			respondWithError(w, http.StatusNotFound, "No wallet found for this user. Please sign in again.")
			return
		}
		log.Printf("Balance fetch failed for user %s: %v", userID, err)
		respondWithError(w, http.StatusInternalServerError, "Balance fetch failed")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"balance":  balance.Amount,
		"currency": balance.Currency,
	})
}

type sendRequest struct {
	ToAddress string `json:"toAddress"`
	Amount    string `json:"amount"`
}

// handleSend submits a USDC transfer from the caller's wallet. Input is
// validated before any gateway call is made.
func (h *Handler) handleSend(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := validateAddress(req.ToAddress); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validateAmount(req.Amount); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	receipt, err := h.service.Send(r.Context(), userID, req.ToAddress, req.Amount)
	if err != nil {
		if errors.Is(err, store.ErrWalletNotFound) {
			respondWithError(w, http.StatusNotFound, "No wallet found for this user. Please sign in again.")
			return
		}
		log.Printf("Send failed for user %s: %v", userID, err)
		respondWithError(w, http.StatusInternalServerError, "Transfer failed. Please try again.")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success":       true,
		"transactionId": receipt.TransactionID,
		"status":        receipt.State,
	})
}

type tierUpgradeRequest struct {
	TierID string `json:"tierId"`
}

// handleTierUpgrade upgrades the caller's tier after payment.
func (h *Handler) handleTierUpgrade(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req tierUpgradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := h.service.Upgrade(r.Context(), userID, req.TierID)
	if err != nil {
		h.writeUpgradeError(w, userID, err)
		return
	}

	resp := map[string]interface{}{
		"success": true,
		"tier":    result.Tier,
	}
	if result.TransactionID != "" {
		resp["transactionId"] = result.TransactionID
	}
	respondWithJSON(w, http.StatusOK, resp)
}

func (h *Handler) writeUpgradeError(w http.ResponseWriter, userID string, err error) {
	var insufficient *app.InsufficientFundsError

	switch {
	case errors.Is(err, app.ErrUnknownTier):
		respondWithError(w, http.StatusBadRequest, "Invalid tier ID. Must be: free, tier1, or tier2")
	case errors.Is(err, store.ErrWalletNotFound):
		respondWithError(w, http.StatusNotFound, "No wallet found for this user. Please sign in again.")
	case errors.As(err, &insufficient):
		respondWithJSON(w, http.StatusBadRequest, map[string]interface{}{
			"success":         false,
			"error":           insufficient.Error() + ". Deposit USDC to upgrade tier.",
			"requiredBalance": insufficient.Required.String(),
			"currentBalance":  insufficient.Current.String(),
		})
	case errors.Is(err, app.ErrPaymentFailed):
		log.Printf("Tier upgrade payment failed for user %s: %v", userID, err)
		respondWithError(w, http.StatusInternalServerError, "Payment transfer failed. Please try again.")
	default:
		log.Printf("Tier upgrade failed for user %s: %v", userID, err)
		respondWithError(w, http.StatusInternalServerError, "Tier upgrade failed. Please try again.")
	}
}

// handleGetTier returns the caller's current tier.
func (h *Handler) handleGetTier(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	tier, err := h.service.CurrentTier(r.Context(), userID)
	if err != nil {
		log.Printf("Tier lookup failed for user %s: %v", userID, err)
		respondWithError(w, http.StatusInternalServerError, "Tier lookup failed")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"tier":    tier,
	})
}

// respondWithJSON writes a JSON response.
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

// respondWithError writes the standard error envelope with a safe,
// non-leaking message.
func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}
