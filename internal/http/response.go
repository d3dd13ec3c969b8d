package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/clothly/storefront/internal/cart"
	"github.com/clothly/storefront/internal/catalog"
	"github.com/clothly/storefront/internal/format"
	"github.com/clothly/storefront/internal/gateway"
	"github.com/clothly/storefront/internal/service"
	"go.uber.org/zap"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
	Message string `json:"message,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Warn("failed to encode response", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error:   message,
		Code:    code,
		Message: warning(message),
	})
}

// handleError converts storefront errors to HTTP status codes.
func handleError(w http.ResponseWriter, err error) {
	var httpStatus int
	var code string
	details := ""

	var checkoutErr *cart.CheckoutError
	switch {
	case errors.Is(err, cart.ErrDuplicateItem):
		httpStatus = http.StatusConflict
		code = "already_in_cart"
	case errors.Is(err, cart.ErrCheckoutInProgress):
		httpStatus = http.StatusConflict
		code = "checkout_in_progress"
	case errors.Is(err, cart.ErrEmptyCart):
		httpStatus = http.StatusBadRequest
		code = "empty_cart"
	case errors.Is(err, service.ErrInvalidItem), errors.Is(err, format.ErrInvalidAmount):
		httpStatus = http.StatusBadRequest
		code = "invalid_argument"
	case errors.Is(err, catalog.ErrItemNotFound), errors.Is(err, cart.ErrItemNotInCart):
		httpStatus = http.StatusNotFound
		code = "not_found"
	case errors.Is(err, context.DeadlineExceeded):
		httpStatus = http.StatusGatewayTimeout
		code = "timeout"
		if errors.As(err, &checkoutErr) {
			details = checkoutErr.Step.String()
		}
	case errors.Is(err, gateway.ErrNodeUnavailable):
		httpStatus = http.StatusServiceUnavailable
		code = "service_unavailable"
		if errors.As(err, &checkoutErr) {
			details = checkoutErr.Step.String()
		}
	case errors.As(err, &checkoutErr):
		httpStatus = http.StatusBadGateway
		code = "transaction_failed"
		details = checkoutErr.Step.String()
	default:
		zap.L().Error("unhandled error", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}

	respondJSON(w, httpStatus, ErrorResponse{
		Error:   err.Error(),
		Code:    code,
		Details: details,
		Message: messageFor(err),
	})
}
