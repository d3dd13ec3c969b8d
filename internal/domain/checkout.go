package domain

import "math/big"

// Step names the gateway call a purchase was executing.
type Step string

const (
	StepApprove          Step = "approve"
	StepClearCartAddress Step = "clear_cart_addresses"
	StepSetCartAddress   Step = "set_cart_addresses"
	StepBuyCart          Step = "buy_cart"
	StepBuyItem          Step = "buy_item"
	StepCreateItem       Step = "create_item"
)

// String representation (for logging)
func (s Step) String() string {
	return string(s)
}

// CheckoutSession holds the seller addresses staged for one buyCart call.
// It lives only for the duration of a checkout.
type CheckoutSession struct {
	Sellers []string
	Total   *big.Int
}

// NewCheckoutSession builds a session from the cart entries, one seller per entry in cart order.
func NewCheckoutSession(entries []CartEntry, total *big.Int) *CheckoutSession {
	sellers := make([]string, len(entries))
	for i, e := range entries {
		sellers[i] = e.Owner
	}
	return &CheckoutSession{
		Sellers: sellers,
		Total:   CopyAmount(total),
	}
}
