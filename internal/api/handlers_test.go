package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/subguard/treasury-service/internal/app"
	"github.com/subguard/treasury-service/internal/store"
	"github.com/subguard/treasury-service/pkg/circleclient"
	appmw "github.com/subguard/treasury-service/pkg/middleware"
)

const testUserID = "did:privy:test-user"

// stubVerifier satisfies TokenVerifier without a JWKS endpoint.
type stubVerifier struct {
	userID string
	err    error
}

func (v *stubVerifier) Verify(_ context.Context, _ string) (string, error) {
	if v.err != nil {
		return "", v.err
	}
	return v.userID, nil
}

// stubProvider satisfies app.WalletProvider and counts gateway calls so
// tests can assert that validation rejects bad input before any call.
type stubProvider struct {
	createCalls   int
	listCalls     int
	balanceCalls  int
	transferCalls int

	wallet   circleclient.Wallet
	balances []circleclient.TokenBalance
	transfer circleclient.Transaction
}

func (p *stubProvider) CreateWallet(_ context.Context, _, _, _ string) (*circleclient.Wallet, error) {
	p.createCalls++
	w := p.wallet
	return &w, nil
}

func (p *stubProvider) ListWallets(_ context.Context, _ string) ([]circleclient.Wallet, error) {
	p.listCalls++
	return nil, nil
}

func (p *stubProvider) GetTokenBalances(_ context.Context, _ string) ([]circleclient.TokenBalance, error) {
	p.balanceCalls++
	return p.balances, nil
}

func (p *stubProvider) CreateTransfer(_ context.Context, _, _, _ string) (*circleclient.Transaction, error) {
	p.transferCalls++
	tx := p.transfer
	return &tx, nil
}

func usdcBalance(amount string) []circleclient.TokenBalance {
	b := circleclient.TokenBalance{Amount: amount}
	b.Token.Symbol = "USDC"
	b.Token.Name = "USD Coin"
	return []circleclient.TokenBalance{b}
}

func newTestRouter(t *testing.T, verifier TokenVerifier, provider *stubProvider) (http.Handler, *store.MemoryRepository) {
	t.Helper()

	repo := store.NewMemoryRepository()
	service := app.NewService(repo, provider, nil, "wallet-set-test", "0xCD4c2FCB8af53d5DCcC95eD0230985431E3D2289")
	limiter := appmw.NewSlidingWindowLimiter(100, time.Minute)
	return NewRouter(NewHandler(service), verifier, limiter), repo
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()

	var body map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding response body: %v", err)
	}
	return body
}

func TestRoutesRejectMissingToken(t *testing.T) {
	provider := &stubProvider{}
	router, _ := newTestRouter(t, &stubVerifier{userID: testUserID}, provider)

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/onboard"},
		{http.MethodGet, "/api/wallet"},
		{http.MethodGet, "/api/wallet/balance"},
		{http.MethodPost, "/api/wallet/send"},
		{http.MethodGet, "/api/tier"},
		{http.MethodPost, "/api/tier/upgrade"},
	}

	for _, p := range paths {
		req := httptest.NewRequest(p.method, p.path, nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s: expected 401 without token, got %d", p.method, p.path, rr.Code)
		}
		body := decodeBody(t, rr)
		if body["success"] != false {
			t.Fatalf("%s %s: expected success=false, got %v", p.method, p.path, body["success"])
		}
	}
	if provider.createCalls+provider.listCalls+provider.balanceCalls+provider.transferCalls != 0 {
		t.Fatal("unauthenticated requests must not reach the wallet provider")
	}
}

func TestRoutesRejectInvalidToken(t *testing.T) {
	router, _ := newTestRouter(t, &stubVerifier{err: errors.New("token expired")}, &stubProvider{})

	req := httptest.NewRequest(http.MethodGet, "/api/wallet", nil)
	req.Header.Set("Authorization", "Bearer bogus")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for invalid token, got %d", rr.Code)
	}
}

func TestOnboardProvisionsWallet(t *testing.T) {
	provider := &stubProvider{
		wallet: circleclient.Wallet{
			ID:         "wallet_1",
			Address:    "0x1111111111111111111111111111111111111111",
			Blockchain: "ARC-TESTNET",
		},
	}
	router, repo := newTestRouter(t, &stubVerifier{userID: testUserID}, provider)

	req := httptest.NewRequest(http.MethodPost, "/api/onboard", nil)
	req.Header.Set("Authorization", "Bearer good")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	if body["success"] != true {
		t.Fatalf("expected success=true, got %v", body["success"])
	}
	if body["walletId"] != "wallet_1" {
		t.Fatalf("expected walletId wallet_1, got %v", body["walletId"])
	}
	if body["isNew"] != true {
		t.Fatalf("expected isNew=true on first onboard, got %v", body["isNew"])
	}
	if _, err := repo.GetWallet(context.Background(), testUserID); err != nil {
		t.Fatalf("expected wallet record after onboarding: %v", err)
	}
}

func TestSendRejectsInvalidInputBeforeGateway(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "negative amount", body: `{"toAddress":"0x1111111111111111111111111111111111111111","amount":"-5"}`},
		{name: "malformed address", body: `{"toAddress":"not-an-address","amount":"10"}`},
		{name: "too many decimals", body: `{"toAddress":"0x1111111111111111111111111111111111111111","amount":"1.0000001"}`},
		{name: "invalid json", body: `{`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &stubProvider{}
			router, _ := newTestRouter(t, &stubVerifier{userID: testUserID}, provider)

			req := httptest.NewRequest(http.MethodPost, "/api/wallet/send", strings.NewReader(tt.body))
			req.Header.Set("Authorization", "Bearer good")
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rr.Code, rr.Body.String())
			}
			if provider.transferCalls != 0 {
				t.Fatal("invalid input must be rejected before any transfer call")
			}
		})
	}
}

func TestSendWithoutWalletReturnsNotFound(t *testing.T) {
	provider := &stubProvider{}
	router, _ := newTestRouter(t, &stubVerifier{userID: testUserID}, provider)

	body := `{"toAddress":"0x1111111111111111111111111111111111111111","amount":"10"}`
	req := httptest.NewRequest(http.MethodPost, "/api/wallet/send", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer good")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for user without wallet, got %d", rr.Code)
	}
	if provider.transferCalls != 0 {
		t.Fatal("missing wallet must not trigger a transfer call")
	}
}

func TestTierUpgradeRejectsUnknownTier(t *testing.T) {
	provider := &stubProvider{
		wallet: circleclient.Wallet{
			ID:         "wallet_1",
			Address:    "0x1111111111111111111111111111111111111111",
			Blockchain: "ARC-TESTNET",
		},
	}
	router, _ := newTestRouter(t, &stubVerifier{userID: testUserID}, provider)

	onboard := httptest.NewRequest(http.MethodPost, "/api/onboard", nil)
	onboard.Header.Set("Authorization", "Bearer good")
	router.ServeHTTP(httptest.NewRecorder(), onboard)

	req := httptest.NewRequest(http.MethodPost, "/api/tier/upgrade", strings.NewReader(`{"tierId":"platinum"}`))
	req.Header.Set("Authorization", "Bearer good")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown tier, got %d: %s", rr.Code, rr.Body.String())
	}
	if provider.transferCalls != 0 {
		t.Fatal("unknown tier must not trigger a payment")
	}
}

func TestTierUpgradeInsufficientFundsEnvelope(t *testing.T) {
	provider := &stubProvider{
		wallet: circleclient.Wallet{
			ID:         "wallet_1",
			Address:    "0x1111111111111111111111111111111111111111",
			Blockchain: "ARC-TESTNET",
		},
		balances: usdcBalance("5.00"),
	}
	router, _ := newTestRouter(t, &stubVerifier{userID: testUserID}, provider)

	onboard := httptest.NewRequest(http.MethodPost, "/api/onboard", nil)
	onboard.Header.Set("Authorization", "Bearer good")
	router.ServeHTTP(httptest.NewRecorder(), onboard)

	req := httptest.NewRequest(http.MethodPost, "/api/tier/upgrade", strings.NewReader(`{"tierId":"tier1"}`))
	req.Header.Set("Authorization", "Bearer good")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for insufficient funds, got %d: %s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	if body["requiredBalance"] != "20" {
		t.Fatalf("expected requiredBalance 20, got %v", body["requiredBalance"])
	}
	if body["currentBalance"] != "5" {
		t.Fatalf("expected currentBalance 5, got %v", body["currentBalance"])
	}
	if provider.transferCalls != 0 {
		t.Fatal("insufficient funds must not trigger a payment")
	}
}

func TestTierUpgradeSuccessReturnsTransactionID(t *testing.T) {
	provider := &stubProvider{
		wallet: circleclient.Wallet{
			ID:         "wallet_1",
			Address:    "0x1111111111111111111111111111111111111111",
			Blockchain: "ARC-TESTNET",
		},
		balances: usdcBalance("50.00"),
		transfer: circleclient.Transaction{ID: "tx_abc", State: "INITIATED"},
	}
	router, _ := newTestRouter(t, &stubVerifier{userID: testUserID}, provider)

	onboard := httptest.NewRequest(http.MethodPost, "/api/onboard", nil)
	onboard.Header.Set("Authorization", "Bearer good")
	router.ServeHTTP(httptest.NewRecorder(), onboard)

	req := httptest.NewRequest(http.MethodPost, "/api/tier/upgrade", strings.NewReader(`{"tierId":"tier1"}`))
	req.Header.Set("Authorization", "Bearer good")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	if body["tier"] != "tier1" {
		t.Fatalf("expected tier tier1, got %v", body["tier"])
	}
	if body["transactionId"] != "tx_abc" {
		t.Fatalf("expected transactionId tx_abc, got %v", body["transactionId"])
	}
}

func TestRateLimitedRouteReturns429(t *testing.T) {
	provider := &stubProvider{
		wallet: circleclient.Wallet{
			ID:         "wallet_1",
			Address:    "0x1111111111111111111111111111111111111111",
			Blockchain: "ARC-TESTNET",
		},
	}
	repo := store.NewMemoryRepository()
	service := app.NewService(repo, provider, nil, "wallet-set-test", "0xCD4c2FCB8af53d5DCcC95eD0230985431E3D2289")
	limiter := appmw.NewSlidingWindowLimiter(1, time.Minute)
	router := NewRouter(NewHandler(service), &stubVerifier{userID: testUserID}, limiter)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/onboard", nil)
		req.Header.Set("Authorization", "Bearer good")
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		if i == 0 && rr.Code != http.StatusOK {
			t.Fatalf("first request should pass, got %d", rr.Code)
		}
		if i == 1 && rr.Code != http.StatusTooManyRequests {
			t.Fatalf("second request should be throttled, got %d", rr.Code)
		}
	}
}
