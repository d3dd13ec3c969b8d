// Package format converts ledger amounts and strings into display values.
package format

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// Decimals is the fixed scale of the payment token.
const Decimals = 18

const (
	Currency             = "cUSD"
	addressDisplayLength = 10
	descriptionMaxLength = 150
	explorerAddressURL   = "https://alfajores-blockscout.celo-testnet.org/address/%s/transactions"
)

var ErrInvalidAmount = errors.New("invalid amount")

// FromBaseUnits rescales a base-unit amount to human units.
func FromBaseUnits(v *big.Int) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(v, -Decimals)
}

// ToBaseUnits parses a human amount such as "12.5" into base units.
// Negative values and values finer than the token scale are rejected.
func ToBaseUnits(s string) (*big.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("%w: %q is negative", ErrInvalidAmount, s)
	}
	shifted := d.Shift(Decimals)
	if !shifted.IsInteger() {
		return nil, fmt.Errorf("%w: %q has more than %d decimals", ErrInvalidAmount, s, Decimals)
	}
	return shifted.BigInt(), nil
}

// PriceToCurrency renders a base-unit amount with two decimals and thousands separators.
func PriceToCurrency(v *big.Int) string {
	return groupThousands(FromBaseUnits(v).StringFixed(2))
}

// Amount renders a base-unit amount followed by the currency symbol.
func Amount(v *big.Int) string {
	return PriceToCurrency(v) + " " + Currency
}

func groupThousands(fixed string) string {
	sign := ""
	if strings.HasPrefix(fixed, "-") {
		sign, fixed = "-", fixed[1:]
	}
	intPart, frac, _ := strings.Cut(fixed, ".")

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if frac != "" {
		b.WriteByte('.')
		b.WriteString(frac)
	}
	return sign + b.String()
}

// TruncateAddress keeps the first ten characters of an address.
func TruncateAddress(address string) string {
	return truncate(address, addressDisplayLength)
}

// TruncateDescription keeps the first 150 characters and always appends an ellipsis.
func TruncateDescription(description string) string {
	return truncate(description, descriptionMaxLength) + "..."
}

// ExplorerURL links an address to its transaction list on the block explorer.
func ExplorerURL(address string) string {
	return fmt.Sprintf(explorerAddressURL, address)
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
