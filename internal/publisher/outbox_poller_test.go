package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/clothly/storefront/internal/domain"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockSource struct {
	mu        sync.Mutex
	receipts  []*domain.Receipt
	fetchErr  error
	markErr   error
	published []uuid.UUID
}

func (m *mockSource) GetUnpublishedReceipts(context.Context, int) ([]*domain.Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	var out []*domain.Receipt
	for _, r := range m.receipts {
		if !r.Published {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockSource) MarkReceiptPublished(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.markErr != nil {
		return m.markErr
	}
	for _, r := range m.receipts {
		if r.ID == id {
			r.Published = true
		}
	}
	m.published = append(m.published, id)
	return nil
}

type mockWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *mockWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *mockWriter) Close() error {
	w.closed = true
	return nil
}

func (w *mockWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.messages)
}

func testReceipt() *domain.Receipt {
	return &domain.Receipt{
		ID:      uuid.New(),
		Kind:    domain.ReceiptKindCart,
		Account: "0xbuyer",
		Total:   "3000000000000000000",
		Entries: []domain.CartEntry{
			{Index: 3, Owner: "0xowner3", Price: big.NewInt(2)},
			{Index: 7, Owner: "0xowner7", Price: big.NewInt(1)},
		},
		Sellers:   []string{"0xowner3", "0xowner7"},
		TxHash:    "0xbuy",
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestBuildMessage(t *testing.T) {
	r := testReceipt()

	msg, err := buildMessage(r)
	require.NoError(t, err)

	assert.Equal(t, r.ID.String(), string(msg.Key))
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "event_type", msg.Headers[0].Key)
	assert.Equal(t, EventPurchaseDone, string(msg.Headers[0].Value))

	var event PurchaseEvent
	require.NoError(t, json.Unmarshal(msg.Value, &event))
	assert.Equal(t, r.ID.String(), event.ReceiptID)
	assert.Equal(t, "cart", event.Kind)
	assert.Equal(t, "3000000000000000000", event.Total)
	assert.Equal(t, []string{"0xowner3", "0xowner7"}, event.Sellers)
	assert.Len(t, event.Items, 2)
	assert.True(t, r.CreatedAt.Equal(event.CreatedAt))
}

func TestProcessUnpublishedReceipts_PublishesAndMarks(t *testing.T) {
	source := &mockSource{receipts: []*domain.Receipt{testReceipt(), testReceipt()}}
	writer := &mockWriter{}
	p := newOutboxPoller(source, writer, time.Hour, zap.NewNop())

	p.processUnpublishedReceipts(context.Background())

	assert.Equal(t, 2, writer.count())
	assert.Len(t, source.published, 2)

	// second pass has nothing left to send
	p.processUnpublishedReceipts(context.Background())
	assert.Equal(t, 2, writer.count())
}

func TestProcessUnpublishedReceipts_WriteErrorLeavesReceiptPending(t *testing.T) {
	source := &mockSource{receipts: []*domain.Receipt{testReceipt()}}
	writer := &mockWriter{err: errors.New("broker unavailable")}
	p := newOutboxPoller(source, writer, time.Hour, zap.NewNop())

	p.processUnpublishedReceipts(context.Background())

	assert.Empty(t, source.published)
	assert.False(t, source.receipts[0].Published)
}

func TestProcessUnpublishedReceipts_FetchError(t *testing.T) {
	source := &mockSource{fetchErr: errors.New("db locked")}
	writer := &mockWriter{}
	p := newOutboxPoller(source, writer, time.Hour, zap.NewNop())

	p.processUnpublishedReceipts(context.Background())

	assert.Equal(t, 0, writer.count())
}

func TestProcessUnpublishedReceipts_MarkErrorContinues(t *testing.T) {
	source := &mockSource{
		receipts: []*domain.Receipt{testReceipt(), testReceipt()},
		markErr:  errors.New("db locked"),
	}
	writer := &mockWriter{}
	p := newOutboxPoller(source, writer, time.Hour, zap.NewNop())

	p.processUnpublishedReceipts(context.Background())

	// both are sent; they will be sent again next tick, consumers dedupe by key
	assert.Equal(t, 2, writer.count())
}

func TestRun_StopsOnCancel(t *testing.T) {
	source := &mockSource{receipts: []*domain.Receipt{testReceipt()}}
	writer := &mockWriter{}
	p := newOutboxPoller(source, writer, 10*time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return writer.count() == 1 }, time.Second, 10*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop")
	}

	p.Close()
	assert.True(t, writer.closed)
}
