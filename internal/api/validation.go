/**
 * @description
 * Input validation for the send endpoint. Destination addresses and
 * amounts are validated here, before any call reaches the gateway or
 * the upstream provider.
 */
package api

import (
	"errors"
	"regexp"

	"github.com/shopspring/decimal"
)

var (
	// EVM-style hex address for the target chain.
	addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	// Positive decimal with up to 6 fractional digits, matching USDC
	// precision.
	amountPattern = regexp.MustCompile(`^\d+(\.\d{1,6})?$`)
)

var maxSendAmount = decimal.NewFromInt(1_000_000)

var (
	errInvalidAddress = errors.New("invalid destination address")
	errInvalidAmount  = errors.New("amount must be a positive number with up to 6 decimal places, at most 1,000,000 USDC")
)

// validateAddress checks that addr is a syntactically valid chain
// address.
func validateAddress(addr string) error {
	if !addressPattern.MatchString(addr) {
		return errInvalidAddress
	}
	return nil
}

// validateAmount checks the amount string format and that its value
// lies in (0, 1_000_000].
func validateAmount(amount string) error {
	if !amountPattern.MatchString(amount) {
		return errInvalidAmount
	}
	value, err := decimal.NewFromString(amount)
	if err != nil {
		return errInvalidAmount
	}
	if !value.IsPositive() || value.GreaterThan(maxSendAmount) {
		return errInvalidAmount
	}
	return nil
}
