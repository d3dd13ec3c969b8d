package domain

import (
	"time"

	"github.com/google/uuid"
)

type ReceiptKind string

const (
	ReceiptKindCart ReceiptKind = "cart"
	ReceiptKindItem ReceiptKind = "item"
)

// Receipt records a confirmed purchase. Total is a base-unit decimal string.
type Receipt struct {
	ID        uuid.UUID   `json:"id"`
	Kind      ReceiptKind `json:"kind"`
	Account   string      `json:"account"`
	Total     string      `json:"total"`
	Entries   []CartEntry `json:"entries"`
	Sellers   []string    `json:"sellers"`
	TxHash    string      `json:"tx_hash"`
	Published bool        `json:"published"`
	CreatedAt time.Time   `json:"created_at"`
}
