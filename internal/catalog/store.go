// Package catalog keeps the last list of items read from the marketplace.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/clothly/storefront/internal/cache"
	"github.com/clothly/storefront/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var ErrItemNotFound = errors.New("item not found")

// maxPrealloc caps the slice capacity taken from the ledger's reported length.
const maxPrealloc = 1024

// Reader is the read side of the contract gateway.
type Reader interface {
	ListLength(ctx context.Context) (uint64, error)
	ReadItem(ctx context.Context, index uint64) (domain.Item, error)
}

// Store holds one catalog snapshot, keyed by item index.
type Store struct {
	mu     sync.RWMutex
	items  []domain.Item
	market string
	cache  cache.CatalogCache
	sfg    singleflight.Group // one ledger read at a time
	logger *zap.Logger
}

// NewStore creates an empty store. cache may be nil.
func NewStore(market string, c cache.CatalogCache, logger *zap.Logger) *Store {
	return &Store{
		market: market,
		cache:  c,
		logger: logger,
	}
}

// Refresh reads the item count and then every item in index order.
// Any failed read fails the whole refresh and the previous snapshot stays.
func (s *Store) Refresh(ctx context.Context, r Reader) ([]domain.Item, error) {
	v, err, shared := s.sfg.Do("refresh", func() (interface{}, error) {
		n, err := r.ListLength(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to read catalog length: %w", err)
		}

		items := make([]domain.Item, 0, min(n, maxPrealloc))
		for i := uint64(0); i < n; i++ {
			item, err := r.ReadItem(ctx, i)
			if err != nil {
				return nil, fmt.Errorf("failed to read item %d: %w", i, err)
			}
			item.Index = i
			items = append(items, item)
		}

		s.replace(items)
		s.storeCache(items)
		s.logger.Info("catalog refreshed", zap.Int("items", len(items)))
		return items, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		s.logger.Debug("catalog refresh shared with a concurrent caller")
	}
	return cloneItems(v.([]domain.Item)), nil
}

// Warm loads the cached snapshot, if any, so the catalog can be served
// before the first ledger read finishes.
func (s *Store) Warm(ctx context.Context) error {
	if s.cache == nil {
		return cache.ErrCacheMiss
	}
	items, err := s.cache.Get(ctx, s.market)
	if err != nil {
		return err
	}
	s.replace(items)
	s.logger.Info("catalog loaded from cache", zap.Int("items", len(items)))
	return nil
}

// Invalidate drops the cached snapshot after a write to the ledger.
func (s *Store) Invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := s.cache.Delete(ctx, s.market); err != nil {
		s.logger.Warn("catalog cache invalidate error", zap.Error(err))
	}
}

// Get returns the item at index from the current snapshot.
func (s *Store) Get(index uint64) (domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if index >= uint64(len(s.items)) {
		return domain.Item{}, fmt.Errorf("%w: index %d", ErrItemNotFound, index)
	}
	return cloneItem(s.items[index]), nil
}

// Items returns a copy of the current snapshot.
func (s *Store) Items() []domain.Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneItems(s.items)
}

// Len is the number of items in the current snapshot.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func (s *Store) replace(items []domain.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = cloneItems(items)
}

func (s *Store) storeCache(items []domain.Item) {
	if s.cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Set(ctx, s.market, items); err != nil {
		s.logger.Warn("catalog cache set error", zap.Error(err))
	}
}

func cloneItem(item domain.Item) domain.Item {
	item.Price = domain.CopyAmount(item.Price)
	return item
}

func cloneItems(items []domain.Item) []domain.Item {
	out := make([]domain.Item, len(items))
	for i, item := range items {
		out[i] = cloneItem(item)
	}
	return out
}
