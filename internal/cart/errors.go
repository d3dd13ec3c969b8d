package cart

import (
	"errors"
	"fmt"

	"github.com/clothly/storefront/internal/domain"
)

var (
	ErrDuplicateItem      = errors.New("item already in cart")
	ErrItemNotInCart      = errors.New("item not in cart")
	ErrEmptyCart          = errors.New("cart is empty, nothing to checkout")
	ErrCheckoutInProgress = errors.New("checkout already in progress")
)

// CheckoutError reports the gateway step that failed during a purchase.
type CheckoutError struct {
	Step domain.Step
	Err  error
}

func (e *CheckoutError) Error() string {
	return fmt.Sprintf("checkout failed at %s: %v", e.Step, e.Err)
}

func (e *CheckoutError) Unwrap() error {
	return e.Err
}
