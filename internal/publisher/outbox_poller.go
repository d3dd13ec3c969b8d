// Package publisher forwards stored purchase receipts to Kafka.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/clothly/storefront/internal/domain"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	Topic             = "storefront-purchases"
	EventPurchaseDone = "purchase_completed"
	batchSize         = 100
)

// ReceiptSource is the outbox side of the receipt repository.
type ReceiptSource interface {
	GetUnpublishedReceipts(ctx context.Context, limit int) ([]*domain.Receipt, error)
	MarkReceiptPublished(ctx context.Context, id uuid.UUID) error
}

// MessageWriter is satisfied by *kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// PurchaseEvent is the message body published for every receipt.
type PurchaseEvent struct {
	ReceiptID string             `json:"receipt_id"`
	Kind      string             `json:"kind"`
	Account   string             `json:"account"`
	Total     string             `json:"total"`
	Sellers   []string           `json:"sellers"`
	Items     []domain.CartEntry `json:"items"`
	TxHash    string             `json:"tx_hash"`
	CreatedAt time.Time          `json:"created_at"`
}

type OutboxPoller struct {
	eventTick time.Duration
	repo      ReceiptSource
	writer    MessageWriter
	logger    *zap.Logger
}

func NewOutboxPoller(repo ReceiptSource, logger *zap.Logger, brokers ...string) *OutboxPoller {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  Topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
	return newOutboxPoller(repo, w, time.Second, logger)
}

func newOutboxPoller(repo ReceiptSource, w MessageWriter, tick time.Duration, logger *zap.Logger) *OutboxPoller {
	return &OutboxPoller{
		eventTick: tick,
		repo:      repo,
		writer:    w,
		logger:    logger,
	}
}

func (p *OutboxPoller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.eventTick)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.processUnpublishedReceipts(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (p *OutboxPoller) Close() {
	if err := p.writer.Close(); err != nil {
		p.logger.Warn("error closing kafka writer", zap.Error(err))
	}
}

func (p *OutboxPoller) processUnpublishedReceipts(ctx context.Context) {
	receipts, err := p.repo.GetUnpublishedReceipts(ctx, batchSize)
	if err != nil {
		p.logger.Error("failed to fetch unpublished receipts", zap.Error(err))
		return
	}

	for _, receipt := range receipts {
		msg, err := buildMessage(receipt)
		if err != nil {
			p.logger.Error("failed to build message", zap.Stringer("receipt_id", receipt.ID), zap.Error(err))
			continue
		}

		if err := p.writer.WriteMessages(ctx, msg); err != nil {
			p.logger.Warn("failed to publish receipt", zap.Stringer("receipt_id", receipt.ID), zap.Error(err))
			continue
		}

		if err := p.repo.MarkReceiptPublished(ctx, receipt.ID); err != nil {
			p.logger.Warn("failed to mark receipt as published", zap.Stringer("receipt_id", receipt.ID), zap.Error(err))
			continue
		}
	}
}

func buildMessage(receipt *domain.Receipt) (kafka.Message, error) {
	payload, err := json.Marshal(PurchaseEvent{
		ReceiptID: receipt.ID.String(),
		Kind:      string(receipt.Kind),
		Account:   receipt.Account,
		Total:     receipt.Total,
		Sellers:   receipt.Sellers,
		Items:     receipt.Entries,
		TxHash:    receipt.TxHash,
		CreatedAt: receipt.CreatedAt,
	})
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to marshal purchase event: %w", err)
	}

	return kafka.Message{
		Key:   []byte(receipt.ID.String()),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(EventPurchaseDone)},
		},
	}, nil
}
