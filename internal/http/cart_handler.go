package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/clothly/storefront/internal/cart"
	"github.com/clothly/storefront/internal/domain"
)

const (
	defaultPurchasesLimit = 50
	maxPurchasesLimit     = 500
)

type CartHandler struct {
	store   Storefront
	timeout time.Duration
}

// NewCartHandler creates the cart endpoints. timeout applies to reads only.
func NewCartHandler(store Storefront, timeout time.Duration) *CartHandler {
	return &CartHandler{
		store:   store,
		timeout: timeout,
	}
}

type AddItemRequestDTO struct {
	Index *uint64 `json:"index"`
}

// GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, toCartResponse(h.store.Cart()))
}

// POST /api/v1/cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Index == nil {
		respondError(w, http.StatusBadRequest, "invalid_index", "index is required")
		return
	}

	item, err := h.store.AddToCart(*req.Index)
	if errors.Is(err, cart.ErrDuplicateItem) {
		// informational; the cart is returned unchanged
		resp := toCartResponse(h.store.Cart())
		resp.Message = duplicateMessage(item.Name)
		respondJSON(w, http.StatusConflict, resp)
		return
	}
	if err != nil {
		handleError(w, err)
		return
	}

	resp := toCartResponse(h.store.Cart())
	resp.Message = addedMessage(item.Name)
	respondJSON(w, http.StatusCreated, resp)
}

// DELETE /api/v1/cart/items/{index}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	index, ok := indexParam(w, r)
	if !ok {
		return
	}

	if err := h.store.RemoveFromCart(index); err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, toCartResponse(h.store.Cart()))
}

// DELETE /api/v1/cart
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.store.ClearCart(); err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, toCartResponse(h.store.Cart()))
}

// POST /api/v1/cart/checkout
//
// No deadline: the checkout runs until every transaction is mined or one
// fails, even if the client goes away.
func (h *CartHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	receipt, err := h.store.Checkout(r.Context())
	if err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, ReceiptResponse{
		Receipt: receipt,
		Message: cartBoughtMessage(receiptTotal(receipt)),
	})
}

// GET /api/v1/purchases?limit=N
func (h *CartHandler) Purchases(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	limit := defaultPurchasesLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 || n > maxPurchasesLimit {
			respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	receipts, err := h.store.Purchases(ctx, limit)
	if err != nil {
		handleError(w, err)
		return
	}
	if receipts == nil {
		receipts = []*domain.Receipt{}
	}

	respondJSON(w, http.StatusOK, PurchasesResponse{
		Purchases: receipts,
		Count:     len(receipts),
	})
}
