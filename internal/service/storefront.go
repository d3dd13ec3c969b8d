// Package service ties the cart, the catalog and the receipt history to the
// contract gateway.
package service

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/clothly/storefront/internal/cart"
	"github.com/clothly/storefront/internal/catalog"
	"github.com/clothly/storefront/internal/domain"
	"github.com/clothly/storefront/internal/format"
	"github.com/clothly/storefront/internal/gateway"
	"github.com/clothly/storefront/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Gateway is everything the storefront asks of the ledger.
type Gateway interface {
	cart.Gateway
	catalog.Reader
	CreateItem(ctx context.Context, item domain.NewItem) (*gateway.TxResult, error)
	BuyItem(ctx context.Context, index uint64) (*gateway.TxResult, error)
	Balance(ctx context.Context) (*big.Int, error)
	Account() string
	MarketAddress() string
}

// CreateItemRequest is seller input. Price is in whole currency units, e.g. "12.5".
type CreateItemRequest struct {
	Name        string `json:"name"`
	Image       string `json:"image"`
	Description string `json:"description"`
	Collection  string `json:"collection"`
	Price       string `json:"price"`
}

type Balance struct {
	Account string
	Amount  *big.Int
}

type CartView struct {
	Entries []domain.CartEntry
	Total   *big.Int
}

// refreshTimeout bounds the catalog reload that follows a mined write.
const refreshTimeout = 30 * time.Second

type Storefront struct {
	gw      Gateway
	engine  *cart.Engine
	catalog *catalog.Store
	repo    repository.RepoInterface
	logger  *zap.Logger
	now     func() time.Time
}

func NewStorefront(gw Gateway, engine *cart.Engine, store *catalog.Store, repo repository.RepoInterface, logger *zap.Logger) *Storefront {
	return &Storefront{
		gw:      gw,
		engine:  engine,
		catalog: store,
		repo:    repo,
		logger:  logger,
		now:     time.Now,
	}
}

func (s *Storefront) RefreshCatalog(ctx context.Context) ([]domain.Item, error) {
	return s.catalog.Refresh(ctx, s.gw)
}

func (s *Storefront) Items() []domain.Item {
	return s.catalog.Items()
}

func (s *Storefront) Item(index uint64) (domain.Item, error) {
	return s.catalog.Get(index)
}

func (s *Storefront) Balance(ctx context.Context) (*Balance, error) {
	amount, err := s.gw.Balance(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read balance: %w", err)
	}
	return &Balance{Account: s.gw.Account(), Amount: amount}, nil
}

// AddToCart looks the index up in the current catalog and adds it. The item
// is returned even on ErrDuplicateItem so callers can name it.
func (s *Storefront) AddToCart(index uint64) (domain.Item, error) {
	item, err := s.catalog.Get(index)
	if err != nil {
		return domain.Item{}, err
	}
	return item, s.engine.AddItem(item)
}

func (s *Storefront) RemoveFromCart(index uint64) error {
	return s.engine.RemoveItem(index)
}

func (s *Storefront) ClearCart() error {
	return s.engine.Clear()
}

func (s *Storefront) Cart() CartView {
	return CartView{
		Entries: s.engine.Entries(),
		Total:   s.engine.Total(),
	}
}

// Checkout pays for the cart and records a receipt. Like every ledger write
// here it outlives the caller: cancelling ctx does not stop it.
func (s *Storefront) Checkout(ctx context.Context) (*domain.Receipt, error) {
	ctx = context.WithoutCancel(ctx)

	result, err := s.engine.Checkout(ctx, s.gw)
	if err != nil {
		return nil, err
	}

	receipt := &domain.Receipt{
		ID:        uuid.New(),
		Kind:      domain.ReceiptKindCart,
		Account:   s.gw.Account(),
		Total:     result.Total.String(),
		Entries:   result.Entries,
		Sellers:   result.Sellers,
		TxHash:    result.TxHash,
		CreatedAt: s.now().UTC(),
	}
	s.saveReceipt(ctx, receipt)
	s.refreshAfterWrite(ctx)
	return receipt, nil
}

// BuyItem purchases a single item directly: approve its price, then buy.
// A failed approval stops before the purchase is sent. It shares the ledger
// write slot with checkout and returns cart.ErrCheckoutInProgress while one
// is running.
func (s *Storefront) BuyItem(ctx context.Context, index uint64) (*domain.Receipt, error) {
	ctx = context.WithoutCancel(ctx)

	item, err := s.catalog.Get(index)
	if err != nil {
		return nil, err
	}
	price := domain.CopyAmount(item.Price)

	log := s.logger.With(zap.Uint64("index", index), zap.String("price", price.String()))
	var tx *gateway.TxResult
	err = s.engine.Exclusive(func() error {
		if _, err := s.gw.Approve(ctx, s.gw.MarketAddress(), price); err != nil {
			log.Warn("item purchase failed", zap.Stringer("step", domain.StepApprove), zap.Error(err))
			return &cart.CheckoutError{Step: domain.StepApprove, Err: err}
		}
		var err error
		tx, err = s.gw.BuyItem(ctx, index)
		if err != nil {
			log.Warn("item purchase failed", zap.Stringer("step", domain.StepBuyItem), zap.Error(err))
			return &cart.CheckoutError{Step: domain.StepBuyItem, Err: err}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	receipt := &domain.Receipt{
		ID:        uuid.New(),
		Kind:      domain.ReceiptKindItem,
		Account:   s.gw.Account(),
		Total:     price.String(),
		Entries:   []domain.CartEntry{domain.EntryFromItem(item)},
		Sellers:   []string{item.Owner},
		TxHash:    txHash(tx),
		CreatedAt: s.now().UTC(),
	}
	log.Info("item purchased", zap.String("tx_hash", receipt.TxHash))
	s.saveReceipt(ctx, receipt)
	s.refreshAfterWrite(ctx)
	return receipt, nil
}

// CreateItem lists a new item after checking that every field is present.
func (s *Storefront) CreateItem(ctx context.Context, req CreateItemRequest) (*gateway.TxResult, error) {
	item, err := req.validate()
	if err != nil {
		return nil, err
	}

	ctx = context.WithoutCancel(ctx)

	var tx *gateway.TxResult
	err = s.engine.Exclusive(func() error {
		var err error
		tx, err = s.gw.CreateItem(ctx, item)
		if err != nil {
			s.logger.Warn("create item failed", zap.String("name", item.Name), zap.Error(err))
			return &cart.CheckoutError{Step: domain.StepCreateItem, Err: err}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("item created", zap.String("name", item.Name), zap.String("tx_hash", txHash(tx)))
	s.refreshAfterWrite(ctx)
	return tx, nil
}

func (s *Storefront) Purchases(ctx context.Context, limit int) ([]*domain.Receipt, error) {
	return s.repo.ListReceipts(ctx, limit)
}

func (req CreateItemRequest) validate() (domain.NewItem, error) {
	fields := []struct {
		name  string
		value string
	}{
		{"name", req.Name},
		{"image", req.Image},
		{"description", req.Description},
		{"collection", req.Collection},
		{"price", req.Price},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return domain.NewItem{}, fmt.Errorf("%w: %s is required", ErrInvalidItem, f.name)
		}
	}

	price, err := format.ToBaseUnits(strings.TrimSpace(req.Price))
	if err != nil {
		return domain.NewItem{}, fmt.Errorf("%w: %w", ErrInvalidItem, err)
	}

	return domain.NewItem{
		Name:        strings.TrimSpace(req.Name),
		Image:       strings.TrimSpace(req.Image),
		Description: strings.TrimSpace(req.Description),
		Collection:  strings.TrimSpace(req.Collection),
		Price:       price,
	}, nil
}

// saveReceipt never fails the purchase; the transaction is already mined.
func (s *Storefront) saveReceipt(ctx context.Context, receipt *domain.Receipt) {
	if err := s.repo.SaveReceipt(ctx, receipt); err != nil {
		s.logger.Error("failed to save receipt",
			zap.Stringer("receipt_id", receipt.ID),
			zap.String("tx_hash", receipt.TxHash),
			zap.Error(err))
	}
}

func (s *Storefront) refreshAfterWrite(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, refreshTimeout)
	defer cancel()

	s.catalog.Invalidate(ctx)
	if _, err := s.catalog.Refresh(ctx, s.gw); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("catalog refresh after write failed", zap.Error(err))
	}
}

func txHash(tx *gateway.TxResult) string {
	if tx == nil {
		return ""
	}
	return tx.Hash
}
