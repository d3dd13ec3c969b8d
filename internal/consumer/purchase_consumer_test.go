package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/clothly/storefront/internal/domain"
	"github.com/clothly/storefront/internal/publisher"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockRefresher struct {
	calls atomic.Int32
	err   error
	// hang makes RefreshCatalog wait for its context
	hang bool
}

func (m *mockRefresher) RefreshCatalog(ctx context.Context) ([]domain.Item, error) {
	m.calls.Add(1)
	if m.hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return nil, m.err
}

// mockReader hands out queued messages, then blocks until ctx is done.
type mockReader struct {
	mu       sync.Mutex
	messages []kafka.Message
	errs     []error
	closed   bool
}

func (r *mockReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.errs) > 0 {
		err := r.errs[0]
		r.errs = r.errs[1:]
		r.mu.Unlock()
		return kafka.Message{}, err
	}
	if len(r.messages) > 0 {
		m := r.messages[0]
		r.messages = r.messages[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()

	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *mockReader) Close() error {
	r.closed = true
	return nil
}

func purchaseMessage(t *testing.T, eventType string) kafka.Message {
	t.Helper()
	payload, err := json.Marshal(publisher.PurchaseEvent{ReceiptID: "r-1", Kind: "cart", TxHash: "0xabc"})
	require.NoError(t, err)
	return kafka.Message{
		Key:     []byte("r-1"),
		Value:   payload,
		Headers: []kafka.Header{{Key: "event_type", Value: []byte(eventType)}},
	}
}

func TestProcessMessage_RefreshesCatalog(t *testing.T) {
	refresher := &mockRefresher{}
	reader := &mockReader{messages: []kafka.Message{purchaseMessage(t, publisher.EventPurchaseDone)}}
	c := newPurchaseConsumer(refresher, reader, zap.NewNop())

	c.processMessage(context.Background())

	assert.Equal(t, int32(1), refresher.calls.Load())
}

func TestProcessMessage_IgnoresOtherEvents(t *testing.T) {
	refresher := &mockRefresher{}
	reader := &mockReader{messages: []kafka.Message{purchaseMessage(t, "something_else")}}
	c := newPurchaseConsumer(refresher, reader, zap.NewNop())

	c.processMessage(context.Background())

	assert.Equal(t, int32(0), refresher.calls.Load())
}

func TestProcessMessage_BadPayload(t *testing.T) {
	refresher := &mockRefresher{}
	reader := &mockReader{messages: []kafka.Message{{
		Value:   []byte("{not json"),
		Headers: []kafka.Header{{Key: "event_type", Value: []byte(publisher.EventPurchaseDone)}},
	}}}
	c := newPurchaseConsumer(refresher, reader, zap.NewNop())

	c.processMessage(context.Background())

	assert.Equal(t, int32(0), refresher.calls.Load())
}

func TestProcessMessage_RefreshErrorIsLogged(t *testing.T) {
	refresher := &mockRefresher{err: errors.New("rpc down")}
	reader := &mockReader{messages: []kafka.Message{purchaseMessage(t, publisher.EventPurchaseDone)}}
	c := newPurchaseConsumer(refresher, reader, zap.NewNop())

	assert.NotPanics(t, func() { c.processMessage(context.Background()) })
	assert.Equal(t, int32(1), refresher.calls.Load())
}

func TestProcessMessage_RefreshIsBounded(t *testing.T) {
	refresher := &mockRefresher{hang: true}
	reader := &mockReader{messages: []kafka.Message{purchaseMessage(t, publisher.EventPurchaseDone)}}
	c := newPurchaseConsumer(refresher, reader, zap.NewNop())
	c.refreshTimeout = 20 * time.Millisecond

	done := make(chan struct{})
	go func() {
		c.processMessage(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("refresh was not cut off")
	}
	assert.Equal(t, int32(1), refresher.calls.Load())
}

func TestRun_ContinuesAfterReadErrorAndStopsOnCancel(t *testing.T) {
	refresher := &mockRefresher{}
	reader := &mockReader{
		errs:     []error{errors.New("broker gone")},
		messages: []kafka.Message{purchaseMessage(t, publisher.EventPurchaseDone)},
	}
	c := newPurchaseConsumer(refresher, reader, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return refresher.calls.Load() == 1 }, time.Second, 10*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop")
	}

	c.Close()
	assert.True(t, reader.closed)
}
