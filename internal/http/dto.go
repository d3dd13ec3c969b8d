package http

import (
	"context"
	"math/big"

	"github.com/clothly/storefront/internal/domain"
	"github.com/clothly/storefront/internal/format"
	"github.com/clothly/storefront/internal/gateway"
	"github.com/clothly/storefront/internal/service"
)

// Storefront is the service the handlers drive.
type Storefront interface {
	RefreshCatalog(ctx context.Context) ([]domain.Item, error)
	Items() []domain.Item
	Item(index uint64) (domain.Item, error)
	Balance(ctx context.Context) (*service.Balance, error)
	AddToCart(index uint64) (domain.Item, error)
	RemoveFromCart(index uint64) error
	ClearCart() error
	Cart() service.CartView
	Checkout(ctx context.Context) (*domain.Receipt, error)
	BuyItem(ctx context.Context, index uint64) (*domain.Receipt, error)
	CreateItem(ctx context.Context, req service.CreateItemRequest) (*gateway.TxResult, error)
	Purchases(ctx context.Context, limit int) ([]*domain.Receipt, error)
}

type ItemDTO struct {
	Index            uint64 `json:"index"`
	Owner            string `json:"owner"`
	OwnerShort       string `json:"owner_short"`
	OwnerURL         string `json:"owner_url"`
	Name             string `json:"name"`
	Image            string `json:"image"`
	Description      string `json:"description"`
	DescriptionShort string `json:"description_short"`
	Collection       string `json:"collection"`
	Price            string `json:"price"`
	PriceDisplay     string `json:"price_display"`
	Sold             uint64 `json:"sold"`
}

type ItemsResponse struct {
	Items []ItemDTO `json:"items"`
	Count int       `json:"count"`
}

type CartResponse struct {
	Items        []ItemDTO `json:"items"`
	Count        int       `json:"count"`
	Total        string    `json:"total"`
	TotalDisplay string    `json:"total_display"`
	Message      string    `json:"message,omitempty"`
}

type BalanceResponse struct {
	Account        string `json:"account"`
	Balance        string `json:"balance"`
	BalanceDisplay string `json:"balance_display"`
}

type ReceiptResponse struct {
	Receipt *domain.Receipt `json:"receipt"`
	Message string          `json:"message"`
}

type TxResponse struct {
	TxHash      string `json:"tx_hash"`
	BlockNumber uint64 `json:"block_number"`
	Message     string `json:"message"`
}

type PurchasesResponse struct {
	Purchases []*domain.Receipt `json:"purchases"`
	Count     int               `json:"count"`
}

func toItemDTO(item domain.Item) ItemDTO {
	return ItemDTO{
		Index:            item.Index,
		Owner:            item.Owner,
		OwnerShort:       format.TruncateAddress(item.Owner),
		OwnerURL:         format.ExplorerURL(item.Owner),
		Name:             item.Name,
		Image:            item.Image,
		Description:      item.Description,
		DescriptionShort: format.TruncateDescription(item.Description),
		Collection:       item.Collection,
		Price:            domain.CopyAmount(item.Price).String(),
		PriceDisplay:     format.PriceToCurrency(item.Price),
		Sold:             item.Sold,
	}
}

func toItemDTOs(items []domain.Item) []ItemDTO {
	out := make([]ItemDTO, len(items))
	for i, item := range items {
		out[i] = toItemDTO(item)
	}
	return out
}

func toCartResponse(view service.CartView) CartResponse {
	items := make([]ItemDTO, len(view.Entries))
	for i, e := range view.Entries {
		items[i] = toItemDTO(domain.Item(e))
	}
	total := domain.CopyAmount(view.Total)
	return CartResponse{
		Items:        items,
		Count:        len(items),
		Total:        total.String(),
		TotalDisplay: format.PriceToCurrency(total),
	}
}

func receiptTotal(r *domain.Receipt) *big.Int {
	v, ok := new(big.Int).SetString(r.Total, 10)
	if !ok {
		return new(big.Int)
	}
	return v
}
