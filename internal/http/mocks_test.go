package http

import (
	"context"
	"math/big"

	"github.com/clothly/storefront/internal/cart"
	"github.com/clothly/storefront/internal/catalog"
	"github.com/clothly/storefront/internal/domain"
	"github.com/clothly/storefront/internal/gateway"
	"github.com/clothly/storefront/internal/service"
)

// StoreMock keeps catalog and cart in memory. err, when set, is returned by
// every ledger operation.
type StoreMock struct {
	items     []domain.Item
	entries   []domain.CartEntry
	err       error
	cartErr   error
	refreshed bool
	created   *service.CreateItemRequest
	receipt   *domain.Receipt
	purchases []*domain.Receipt
	limit     int
	// deadlines records, per ledger write, whether its context had one
	deadlines []bool
}

func (m *StoreMock) noteDeadline(ctx context.Context) {
	_, ok := ctx.Deadline()
	m.deadlines = append(m.deadlines, ok)
}

func (m *StoreMock) RefreshCatalog(context.Context) ([]domain.Item, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.refreshed = true
	return m.items, nil
}

func (m *StoreMock) Items() []domain.Item {
	return m.items
}

func (m *StoreMock) Item(index uint64) (domain.Item, error) {
	if index >= uint64(len(m.items)) {
		return domain.Item{}, catalog.ErrItemNotFound
	}
	return m.items[index], nil
}

func (m *StoreMock) Balance(context.Context) (*service.Balance, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &service.Balance{Account: "0xbuyer", Amount: eth(1234)}, nil
}

func (m *StoreMock) AddToCart(index uint64) (domain.Item, error) {
	item, err := m.Item(index)
	if err != nil {
		return domain.Item{}, err
	}
	if m.cartErr != nil {
		return item, m.cartErr
	}
	for _, e := range m.entries {
		if e.Index == index {
			return item, cart.ErrDuplicateItem
		}
	}
	m.entries = append(m.entries, domain.EntryFromItem(item))
	return item, nil
}

func (m *StoreMock) RemoveFromCart(index uint64) error {
	if m.cartErr != nil {
		return m.cartErr
	}
	for i, e := range m.entries {
		if e.Index == index {
			m.entries = append(m.entries[:i], m.entries[i+1:]...)
			return nil
		}
	}
	return cart.ErrItemNotInCart
}

func (m *StoreMock) ClearCart() error {
	if m.cartErr != nil {
		return m.cartErr
	}
	m.entries = nil
	return nil
}

func (m *StoreMock) Cart() service.CartView {
	total := new(big.Int)
	for _, e := range m.entries {
		total.Add(total, e.Price)
	}
	return service.CartView{Entries: m.entries, Total: total}
}

func (m *StoreMock) Checkout(ctx context.Context) (*domain.Receipt, error) {
	m.noteDeadline(ctx)
	if m.err != nil {
		return nil, m.err
	}
	if len(m.entries) == 0 {
		return nil, cart.ErrEmptyCart
	}
	view := m.Cart()
	m.entries = nil
	return &domain.Receipt{
		Kind:    domain.ReceiptKindCart,
		Total:   view.Total.String(),
		Entries: view.Entries,
		TxHash:  "0xbuycart",
	}, nil
}

func (m *StoreMock) BuyItem(ctx context.Context, index uint64) (*domain.Receipt, error) {
	m.noteDeadline(ctx)
	item, err := m.Item(index)
	if err != nil {
		return nil, err
	}
	if m.err != nil {
		return nil, m.err
	}
	return &domain.Receipt{
		Kind:    domain.ReceiptKindItem,
		Total:   item.Price.String(),
		Entries: []domain.CartEntry{domain.EntryFromItem(item)},
		TxHash:  "0xbuyitem",
	}, nil
}

func (m *StoreMock) CreateItem(ctx context.Context, req service.CreateItemRequest) (*gateway.TxResult, error) {
	m.noteDeadline(ctx)
	m.created = &req
	if m.err != nil {
		return nil, m.err
	}
	return &gateway.TxResult{Hash: "0xcreate", BlockNumber: 7}, nil
}

func (m *StoreMock) Purchases(_ context.Context, limit int) ([]*domain.Receipt, error) {
	m.limit = limit
	if m.err != nil {
		return nil, m.err
	}
	return m.purchases, nil
}

func eth(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000_000_000_000))
}
