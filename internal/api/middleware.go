/**
 * @description
 * Authentication middleware for the treasury-service. Requests carry a
 * bearer token issued by the Privy identity provider; the middleware
 * verifies it against Privy's JWKS endpoint and injects the stable user
 * id (the token subject) into the request context.
 *
 * Every verification failure, from a malformed header to an upstream
 * JWKS outage, is surfaced uniformly as 401 so the response leaks
 * nothing about verification internals. One verification attempt per
 * request; retrying is the client's job.
 *
 * @dependencies
 * - crypto/ecdsa, crypto/elliptic, crypto/rsa: Key material for JWKS keys.
 * - github.com/golang-jwt/jwt/v5: Token parsing and validation.
 */
package api

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const userIDContextKey contextKey = "userID"

// TokenVerifier validates a bearer token and returns the stable user id
// embedded in it.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

// AuthMiddleware validates bearer tokens with the given verifier and
// injects the user id into the request context.
func AuthMiddleware(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				respondWithError(w, http.StatusUnauthorized, "Authentication required")
				return
			}

			userID, err := verifier.Verify(r.Context(), token)
			if err != nil {
				respondWithError(w, http.StatusUnauthorized, "Authentication required")
				return
			}

			ctx := context.WithValue(r.Context(), userIDContextKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserFromContext returns the authenticated user id from the request
// context.
func UserFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	return userID, ok
}

func bearerToken(authHeader string) (string, bool) {
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}

// JWKSVerifier verifies tokens against a JWKS endpoint with a kid-keyed
// key cache. Privy signs access tokens with ES256; RS256 is accepted
// for providers that rotate onto RSA keys.
type JWKSVerifier struct {
	jwksURL        string
	expectedIssuer string
	httpClient     *http.Client
	cacheTTL       time.Duration

	mu       sync.RWMutex
	expires  time.Time
	keyByKID map[string]crypto.PublicKey
}

// NewJWKSVerifier creates a verifier for the given JWKS endpoint.
// expectedIssuer is enforced when non-empty.
func NewJWKSVerifier(jwksURL, expectedIssuer string) *JWKSVerifier {
	return &JWKSVerifier{
		jwksURL:        strings.TrimSpace(jwksURL),
		expectedIssuer: strings.TrimSpace(expectedIssuer),
		httpClient:     &http.Client{Timeout: 5 * time.Second},
		cacheTTL:       10 * time.Minute,
		keyByKID:       map[string]crypto.PublicKey{},
	}
}

// Verify parses and validates a token, returning its subject claim.
func (v *JWKSVerifier) Verify(ctx context.Context, tokenString string) (string, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{"ES256", "RS256"}), jwt.WithLeeway(30*time.Second))
	claims := jwt.MapClaims{}

	token, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		kid, ok := token.Header["kid"].(string)
		if !ok || strings.TrimSpace(kid) == "" {
			return nil, errors.New("missing kid in token")
		}
		return v.getPublicKey(ctx, kid)
	})
	if err != nil || !token.Valid {
		return "", errors.New("token validation failed")
	}

	if v.expectedIssuer != "" {
		issuer, ok := claims["iss"].(string)
		if !ok || issuer != v.expectedIssuer {
			return "", errors.New("issuer mismatch")
		}
	}

	sub, ok := claims["sub"].(string)
	if !ok || strings.TrimSpace(sub) == "" {
		return "", errors.New("subject claim missing")
	}
	return sub, nil
}

func (v *JWKSVerifier) getPublicKey(ctx context.Context, kid string) (crypto.PublicKey, error) {
	if key := v.getCachedKey(kid); key != nil {
		return key, nil
	}

	if err := v.refreshKeys(ctx); err != nil {
		return nil, err
	}

	if key := v.getCachedKey(kid); key != nil {
		return key, nil
	}
	return nil, fmt.Errorf("key not found for kid %s", kid)
}

func (v *JWKSVerifier) getCachedKey(kid string) crypto.PublicKey {
	now := time.Now()

	v.mu.RLock()
	defer v.mu.RUnlock()

	if now.After(v.expires) {
		return nil
	}
	return v.keyByKID[kid]
}

func (v *JWKSVerifier) refreshKeys(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.jwksURL, nil)
	if err != nil {
		return err
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("jwks endpoint returned %d", resp.StatusCode)
	}

	var payload struct {
		Keys []struct {
			Kid string `json:"kid"`
			Kty string `json:"kty"`
			Crv string `json:"crv"`
			X   string `json:"x"`
			Y   string `json:"y"`
			N   string `json:"n"`
			E   string `json:"e"`
		} `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return err
	}

	keys := map[string]crypto.PublicKey{}
	for _, key := range payload.Keys {
		if key.Kid == "" {
			continue
		}
		switch key.Kty {
		case "EC":
			pub, err := parseECPublicKey(key.Crv, key.X, key.Y)
			if err != nil {
				continue
			}
			keys[key.Kid] = pub
		case "RSA":
			pub, err := parseRSAPublicKey(key.N, key.E)
			if err != nil {
				continue
			}
			keys[key.Kid] = pub
		}
	}
	if len(keys) == 0 {
		return errors.New("no usable keys in JWKS")
	}

	v.mu.Lock()
	v.keyByKID = keys
	v.expires = time.Now().Add(v.cacheTTL)
	v.mu.Unlock()

	return nil
}

func parseECPublicKey(crv, x, y string) (*ecdsa.PublicKey, error) {
	if crv != "P-256" {
		return nil, fmt.Errorf("unsupported curve %s", crv)
	}
	xb, err := base64.RawURLEncoding.DecodeString(x)
	if err != nil {
		return nil, fmt.Errorf("failed to decode x coordinate: %w", err)
	}
	yb, err := base64.RawURLEncoding.DecodeString(y)
	if err != nil {
		return nil, fmt.Errorf("failed to decode y coordinate: %w", err)
	}
	return &ecdsa.PublicKey{
		Curve: elliptic.P256(),
		X:     new(big.Int).SetBytes(xb),
		Y:     new(big.Int).SetBytes(yb),
	}, nil
}

func parseRSAPublicKey(n, e string) (*rsa.PublicKey, error) {
	nb, err := base64.RawURLEncoding.DecodeString(n)
	if err != nil {
		return nil, fmt.Errorf("failed to decode modulus: %w", err)
	}
	eb, err := base64.RawURLEncoding.DecodeString(e)
	if err != nil {
		return nil, fmt.Errorf("failed to decode exponent: %w", err)
	}

	var exp uint64
	for _, b := range eb {
		exp = (exp << 8) | uint64(b)
	}
	if exp == 0 {
		return nil, errors.New("invalid exponent")
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nb),
		E: int(exp),
	}, nil
}
