package trading

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Errors a user can fix by changing their request. Handlers map these to
// 400 responses; everything else is an upstream or server failure.
var (
	ErrPriceUnavailable = errors.New("Could not fetch market price")
	ErrMissingPrice     = errors.New("Price is required for limit orders")
	ErrNoSubaccount     = errors.New("No subaccount found. Please create a subaccount first.")
)

// ErrBackendWalletNotConfigured means the custody key is absent. This is a
// deployment problem, not a user one.
var ErrBackendWalletNotConfigured = errors.New("Backend wallet not configured")

type MarketNotFoundError struct {
	Name string
}

func (e *MarketNotFoundError) Error() string {
	return fmt.Sprintf("Market %s not found", e.Name)
}

type SizeTooSmallError struct {
	Size decimal.Decimal
	Min  decimal.Decimal
}

func (e *SizeTooSmallError) Error() string {
	return fmt.Sprintf("Order size %s is below minimum size %s", e.Size, e.Min)
}

// IsInputError reports whether the error should surface as a bad request.
func IsInputError(err error) bool {
	if errors.Is(err, ErrPriceUnavailable) || errors.Is(err, ErrMissingPrice) || errors.Is(err, ErrNoSubaccount) {
		return true
	}
	var marketErr *MarketNotFoundError
	if errors.As(err, &marketErr) {
		return true
	}
	var sizeErr *SizeTooSmallError
	return errors.As(err, &sizeErr)
}
