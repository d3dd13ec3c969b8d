// Package cart holds the local cart and sequences the on-chain checkout.
package cart

import (
	"context"
	"math/big"
	"sync"

	"github.com/clothly/storefront/internal/domain"
	"github.com/clothly/storefront/internal/gateway"
	"go.uber.org/zap"
)

// Gateway is the subset of the contract gateway a checkout needs.
// Every call returns only after its transaction is mined.
type Gateway interface {
	Approve(ctx context.Context, spender string, amount *big.Int) (*gateway.TxResult, error)
	ClearCartAddresses(ctx context.Context) (*gateway.TxResult, error)
	SetCartAddresses(ctx context.Context, addresses []string) (*gateway.TxResult, error)
	BuyCart(ctx context.Context, amount *big.Int) (*gateway.TxResult, error)
}

// Result describes a completed checkout.
type Result struct {
	Total   *big.Int
	Entries []domain.CartEntry
	Sellers []string
	TxHash  string
}

// Engine owns the cart. All mutation goes through its methods.
//
// The engine also owns the ledger write slot: one signer means one sequence
// of transactions at a time, whether a checkout or an Exclusive call.
type Engine struct {
	mu       sync.Mutex
	spender  string
	entries  []domain.CartEntry
	session  *domain.CheckoutSession
	inFlight bool // checkout running, cart frozen
	writing  bool // ledger write slot taken
	logger   *zap.Logger
}

// NewEngine creates an empty cart. spender is the marketplace contract
// that the token approval is granted to.
func NewEngine(spender string, logger *zap.Logger) *Engine {
	return &Engine{
		spender: spender,
		logger:  logger,
	}
}

// AddItem appends a copy of item. Adding an index that is already present
// leaves the cart unchanged and returns ErrDuplicateItem.
func (e *Engine) AddItem(item domain.Item) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.inFlight {
		return ErrCheckoutInProgress
	}
	if e.indexOf(item.Index) >= 0 {
		return ErrDuplicateItem
	}

	e.entries = append(e.entries, domain.EntryFromItem(item))
	e.logger.Debug("item added to cart",
		zap.Uint64("index", item.Index),
		zap.String("total", sum(e.entries).String()))
	return nil
}

// RemoveItem drops the entry with the given index.
func (e *Engine) RemoveItem(index uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.inFlight {
		return ErrCheckoutInProgress
	}
	i := e.indexOf(index)
	if i < 0 {
		return ErrItemNotInCart
	}

	e.entries = append(e.entries[:i:i], e.entries[i+1:]...)
	return nil
}

// Clear empties the cart.
func (e *Engine) Clear() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.inFlight {
		return ErrCheckoutInProgress
	}
	e.entries = nil
	return nil
}

// Entries returns a copy of the cart in insertion order.
func (e *Engine) Entries() []domain.CartEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return cloneEntries(e.entries)
}

// Len is the number of entries in the cart.
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.entries)
}

// Total is the exact sum of entry prices in base units.
func (e *Engine) Total() *big.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return sum(e.entries)
}

// InProgress reports whether a checkout is currently running.
func (e *Engine) InProgress() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inFlight
}

// Exclusive runs fn while holding the ledger write slot, so its transactions
// never interleave with a checkout. It returns ErrCheckoutInProgress without
// calling fn when the slot is taken. The cart stays editable meanwhile.
func (e *Engine) Exclusive(fn func() error) error {
	e.mu.Lock()
	if e.writing {
		e.mu.Unlock()
		return ErrCheckoutInProgress
	}
	e.writing = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.writing = false
		e.mu.Unlock()
	}()
	return fn()
}

// Checkout pays for the whole cart: approve, clear the staged sellers, stage
// the current sellers, buy. The calls are independent transactions, so a
// failure part way leaves earlier ones committed on the ledger. The cart is
// emptied only when all four succeed.
//
// Checkout ignores cancellation of ctx and has no deadline of its own: once
// started it runs until every step is mined or one fails. Values carried by
// ctx are kept.
func (e *Engine) Checkout(ctx context.Context, gw Gateway) (*Result, error) {
	ctx = context.WithoutCancel(ctx)

	session, entries, err := e.begin()
	if err != nil {
		return nil, err
	}
	defer e.end()

	log := e.logger.With(
		zap.String("total", session.Total.String()),
		zap.Int("entries", len(entries)))
	log.Info("checkout started")

	if _, err := gw.Approve(ctx, e.spender, session.Total); err != nil {
		return nil, e.fail(log, domain.StepApprove, err)
	}
	if _, err := gw.ClearCartAddresses(ctx); err != nil {
		return nil, e.fail(log, domain.StepClearCartAddress, err)
	}
	if _, err := gw.SetCartAddresses(ctx, session.Sellers); err != nil {
		return nil, e.fail(log, domain.StepSetCartAddress, err)
	}
	tx, err := gw.BuyCart(ctx, session.Total)
	if err != nil {
		return nil, e.fail(log, domain.StepBuyCart, err)
	}

	e.mu.Lock()
	e.entries = nil
	e.mu.Unlock()

	result := &Result{
		Total:   domain.CopyAmount(session.Total),
		Entries: entries,
		Sellers: session.Sellers,
	}
	if tx != nil {
		result.TxHash = tx.Hash
	}
	log.Info("checkout completed", zap.String("tx_hash", result.TxHash))
	return result, nil
}

// begin claims the checkout slot and snapshots the cart.
func (e *Engine) begin() (*domain.CheckoutSession, []domain.CartEntry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.writing {
		return nil, nil, ErrCheckoutInProgress
	}
	total := sum(e.entries)
	if total.Sign() <= 0 {
		return nil, nil, ErrEmptyCart
	}

	entries := cloneEntries(e.entries)
	e.session = domain.NewCheckoutSession(entries, total)
	e.inFlight = true
	e.writing = true
	return e.session, entries, nil
}

// end discards the session whatever the outcome.
func (e *Engine) end() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.session = nil
	e.inFlight = false
	e.writing = false
}

func (e *Engine) fail(log *zap.Logger, step domain.Step, err error) error {
	log.Warn("checkout failed", zap.Stringer("step", step), zap.Error(err))
	return &CheckoutError{Step: step, Err: err}
}

func (e *Engine) indexOf(index uint64) int {
	for i, entry := range e.entries {
		if entry.Index == index {
			return i
		}
	}
	return -1
}

func sum(entries []domain.CartEntry) *big.Int {
	total := new(big.Int)
	for _, entry := range entries {
		if entry.Price != nil {
			total.Add(total, entry.Price)
		}
	}
	return total
}

func cloneEntries(entries []domain.CartEntry) []domain.CartEntry {
	out := make([]domain.CartEntry, len(entries))
	for i, entry := range entries {
		out[i] = entry.Clone()
	}
	return out
}
