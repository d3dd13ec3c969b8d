package service

import (
	"context"
	"math/big"
	"sync"

	"github.com/clothly/storefront/internal/domain"
	"github.com/clothly/storefront/internal/gateway"
	"github.com/google/uuid"
)

// mockGateway serves items from memory and records write calls in order.
type mockGateway struct {
	mu      sync.Mutex
	items   []domain.Item
	calls   []string
	failOn  string
	err     error
	balance *big.Int
	created []domain.NewItem
	// block, when set, holds SetCartAddresses until it is closed
	block   chan struct{}
	entered chan struct{}
}

func (m *mockGateway) record(method string) (*gateway.TxResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, method)
	if m.failOn == method {
		return nil, m.err
	}
	return &gateway.TxResult{Hash: "0x" + method, BlockNumber: uint64(len(m.calls))}, nil
}

func (m *mockGateway) Approve(context.Context, string, *big.Int) (*gateway.TxResult, error) {
	return m.record("approve")
}

func (m *mockGateway) ClearCartAddresses(context.Context) (*gateway.TxResult, error) {
	return m.record("clearCartAddresses")
}

func (m *mockGateway) SetCartAddresses(context.Context, []string) (*gateway.TxResult, error) {
	if m.block != nil {
		close(m.entered)
		<-m.block
	}
	return m.record("setCartAddresses")
}

func (m *mockGateway) BuyCart(context.Context, *big.Int) (*gateway.TxResult, error) {
	return m.record("buyCart")
}

func (m *mockGateway) BuyItem(_ context.Context, index uint64) (*gateway.TxResult, error) {
	tx, err := m.record("buyItem")
	if err == nil {
		m.mu.Lock()
		m.items[index].Sold++
		m.mu.Unlock()
	}
	return tx, err
}

func (m *mockGateway) CreateItem(_ context.Context, item domain.NewItem) (*gateway.TxResult, error) {
	tx, err := m.record("createItem")
	if err == nil {
		m.mu.Lock()
		m.created = append(m.created, item)
		m.items = append(m.items, domain.Item{
			Owner: testAccount,
			Name:  item.Name,
			Price: item.Price,
		})
		m.mu.Unlock()
	}
	return tx, err
}

func (m *mockGateway) ListLength(context.Context) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return uint64(len(m.items)), nil
}

func (m *mockGateway) ReadItem(_ context.Context, index uint64) (domain.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items[index], nil
}

func (m *mockGateway) Balance(context.Context) (*big.Int, error) {
	if m.failOn == "balance" {
		return nil, m.err
	}
	return m.balance, nil
}

func (m *mockGateway) Account() string { return testAccount }

func (m *mockGateway) MarketAddress() string { return testMarket }

func (m *mockGateway) methods() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// MockRepository implements repository.RepoInterface for testing
type MockRepository struct {
	mu       sync.Mutex
	Saved    []*domain.Receipt
	SaveErr  error
	ListErr  error
	ListArgs []int
}

func (m *MockRepository) Close() error {
	return nil
}

func (m *MockRepository) RunMigrations(string) error {
	return nil
}

func (m *MockRepository) SaveReceipt(ctx context.Context, receipt *domain.Receipt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.Saved = append(m.Saved, receipt)
	return nil
}

func (m *MockRepository) ListReceipts(_ context.Context, limit int) ([]*domain.Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ListArgs = append(m.ListArgs, limit)
	return m.Saved, m.ListErr
}

func (m *MockRepository) GetUnpublishedReceipts(context.Context, int) ([]*domain.Receipt, error) {
	return nil, nil
}

func (m *MockRepository) MarkReceiptPublished(context.Context, uuid.UUID) error {
	return nil
}
