package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/clothly/storefront/internal/format"
	"github.com/clothly/storefront/internal/service"
	"github.com/go-chi/chi/v5"
)

type ItemHandler struct {
	store   Storefront
	timeout time.Duration
}

func NewItemHandler(store Storefront, timeout time.Duration) *ItemHandler {
	return &ItemHandler{
		store:   store,
		timeout: timeout,
	}
}

// GET /api/v1/items
func (h *ItemHandler) List(w http.ResponseWriter, r *http.Request) {
	items := h.store.Items()

	if refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh")); refresh {
		ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
		defer cancel()

		var err error
		items, err = h.store.RefreshCatalog(ctx)
		if err != nil {
			handleError(w, err)
			return
		}
	}

	respondJSON(w, http.StatusOK, ItemsResponse{
		Items: toItemDTOs(items),
		Count: len(items),
	})
}

// GET /api/v1/items/{index}
func (h *ItemHandler) Get(w http.ResponseWriter, r *http.Request) {
	index, ok := indexParam(w, r)
	if !ok {
		return
	}

	item, err := h.store.Item(index)
	if err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, toItemDTO(item))
}

// POST /api/v1/items
func (h *ItemHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req service.CreateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	tx, err := h.store.CreateItem(r.Context(), req)
	if err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, TxResponse{
		TxHash:      tx.Hash,
		BlockNumber: tx.BlockNumber,
		Message:     itemCreatedMessage(req.Name),
	})
}

// POST /api/v1/items/{index}/buy
func (h *ItemHandler) Buy(w http.ResponseWriter, r *http.Request) {
	index, ok := indexParam(w, r)
	if !ok {
		return
	}

	receipt, err := h.store.BuyItem(r.Context(), index)
	if err != nil {
		handleError(w, err)
		return
	}

	name := ""
	if len(receipt.Entries) > 0 {
		name = receipt.Entries[0].Name
	}
	respondJSON(w, http.StatusOK, ReceiptResponse{
		Receipt: receipt,
		Message: itemBoughtMessage(name),
	})
}

// GET /api/v1/balance
func (h *ItemHandler) Balance(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	b, err := h.store.Balance(ctx)
	if err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, BalanceResponse{
		Account:        b.Account,
		Balance:        b.Amount.String(),
		BalanceDisplay: format.PriceToCurrency(b.Amount),
	})
}

func indexParam(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	index, err := strconv.ParseUint(chi.URLParam(r, "index"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_index", "index must be a non-negative integer")
		return 0, false
	}
	return index, true
}
