package cache

import (
	"context"
	"errors"

	"github.com/clothly/storefront/internal/domain"
)

// CatalogCache stores the last catalog snapshot read from the ledger.
type CatalogCache interface {
	Get(ctx context.Context, market string) ([]domain.Item, error)
	Set(ctx context.Context, market string, items []domain.Item) error
	Delete(ctx context.Context, market string) error
}

var ErrCacheMiss = errors.New("cache miss")
