// Package consumer reacts to purchase events published by any storefront instance.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/clothly/storefront/internal/domain"
	"github.com/clothly/storefront/internal/publisher"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// CatalogRefresher re-reads the catalog from the ledger.
type CatalogRefresher interface {
	RefreshCatalog(ctx context.Context) ([]domain.Item, error)
}

// MessageReader is satisfied by *kafka.Reader.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

const defaultRefreshTimeout = 30 * time.Second

// PurchaseConsumer refreshes the local catalog whenever a purchase lands, so
// sold counts stay current across instances.
type PurchaseConsumer struct {
	catalog CatalogRefresher
	reader  MessageReader
	logger  *zap.Logger
	// refreshTimeout bounds one catalog reload so a stuck node cannot stall
	// the consumer.
	refreshTimeout time.Duration
}

// NewPurchaseConsumer joins groupID on the purchases topic. Each instance
// needs its own group to see every event.
func NewPurchaseConsumer(catalog CatalogRefresher, groupID string, logger *zap.Logger, brokers ...string) *PurchaseConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    publisher.Topic,
		GroupID:  groupID,
		MaxBytes: 10e6, // 10MB
	})
	return newPurchaseConsumer(catalog, reader, logger)
}

func newPurchaseConsumer(catalog CatalogRefresher, reader MessageReader, logger *zap.Logger) *PurchaseConsumer {
	return &PurchaseConsumer{
		catalog:        catalog,
		reader:         reader,
		logger:         logger,
		refreshTimeout: defaultRefreshTimeout,
	}
}

func (c *PurchaseConsumer) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		c.processMessage(ctx)
	}
}

func (c *PurchaseConsumer) Close() {
	if err := c.reader.Close(); err != nil {
		c.logger.Warn("error closing kafka reader", zap.Error(err))
	}
}

func (c *PurchaseConsumer) processMessage(ctx context.Context) {
	m, err := c.reader.ReadMessage(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		c.logger.Warn("error reading message", zap.Error(err))
		return
	}

	if eventType(m) != publisher.EventPurchaseDone {
		return
	}

	var event publisher.PurchaseEvent
	if err := json.Unmarshal(m.Value, &event); err != nil {
		c.logger.Warn("error parsing message", zap.ByteString("key", m.Key), zap.Error(err))
		return
	}

	log := c.logger.With(zap.String("receipt_id", event.ReceiptID), zap.String("tx_hash", event.TxHash))
	refreshCtx, cancel := context.WithTimeout(ctx, c.refreshTimeout)
	defer cancel()
	if _, err := c.catalog.RefreshCatalog(refreshCtx); err != nil {
		log.Warn("catalog refresh after purchase event failed", zap.Error(err))
		return
	}
	log.Debug("catalog refreshed after purchase event")
}

func eventType(m kafka.Message) string {
	for _, h := range m.Headers {
		if h.Key == "event_type" {
			return string(h.Value)
		}
	}
	return ""
}
