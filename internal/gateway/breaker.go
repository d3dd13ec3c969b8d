package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// ErrNodeUnavailable is returned without contacting the node while the read
// breaker is open.
var ErrNodeUnavailable = errors.New("node unavailable")

const (
	breakerFailures = 5
	breakerTimeout  = 30 * time.Second
)

func newReadBreaker(logger *zap.Logger) *gobreaker.CircuitBreaker[[]interface{}] {
	return gobreaker.NewCircuitBreaker[[]interface{}](gobreaker.Settings{
		Name:        "contract-reads",
		MaxRequests: 1,
		Timeout:     breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailures
		},
		// a caller giving up says nothing about the node
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to))
		},
	})
}

// call runs a view method through the read breaker.
func (g *Ethereum) call(ctx context.Context, contract *bind.BoundContract, method string, params ...interface{}) ([]interface{}, error) {
	out, err := g.reads.Execute(func() ([]interface{}, error) {
		var out []interface{}
		err := contract.Call(&bind.CallOpts{Context: ctx}, &out, method, params...)
		return out, err
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, errors.Join(ErrNodeUnavailable, err)
	}
	return out, err
}
