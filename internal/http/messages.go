package http

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/clothly/storefront/internal/cart"
	"github.com/clothly/storefront/internal/format"
	"github.com/clothly/storefront/internal/service"
)

func addedMessage(name string) string {
	return fmt.Sprintf("%s has been added to CART!", name)
}

func duplicateMessage(name string) string {
	return fmt.Sprintf("%s already in CART!", name)
}

func cartBoughtMessage(total *big.Int) string {
	return fmt.Sprintf("You successfully bought \"%s %s\" worth of clothes.",
		format.FromBaseUnits(total).StringFixed(2), format.Currency)
}

func itemBoughtMessage(name string) string {
	return fmt.Sprintf("You successfully bought \"%s\".", name)
}

func itemCreatedMessage(name string) string {
	return fmt.Sprintf("You successfully added \"%s\".", name)
}

func warning(text string) string {
	return fmt.Sprintf("%s.", text)
}

func messageFor(err error) string {
	switch {
	case errors.Is(err, cart.ErrEmptyCart):
		return "Please add items to cart first"
	case errors.Is(err, format.ErrInvalidAmount):
		return warning(err.Error())
	case errors.Is(err, service.ErrInvalidItem):
		return "\"FORM\" Can not be empty!!!"
	default:
		return warning(err.Error())
	}
}
