// Package gateway talks to the marketplace and payment token contracts.
package gateway

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/clothly/storefront/internal/domain"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

var (
	ErrTxReverted     = errors.New("transaction reverted")
	ErrInvalidAddress = errors.New("invalid address")
	ErrUnexpectedData = errors.New("unexpected contract output")
	ErrReadOnly       = errors.New("gateway has no signing key")
)

// TxResult identifies a mined transaction.
type TxResult struct {
	Hash        string
	BlockNumber uint64
}

// Backend is what the gateway needs from a node connection.
// *ethclient.Client satisfies it.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
}

type Config struct {
	RPCURL        string
	ChainID       int64 // 0 asks the node
	PrivateKey    string
	MarketAddress string
	TokenAddress  string
}

// Ethereum is the contract gateway over an EVM JSON-RPC node.
type Ethereum struct {
	backend    Backend
	market     *bind.BoundContract
	token      *bind.BoundContract
	marketAddr common.Address
	auth       *bind.TransactOpts
	reads      *gobreaker.CircuitBreaker[[]interface{}]
	logger     *zap.Logger
	closer     func()
}

// Dial connects to the node in cfg and signs with cfg.PrivateKey. An empty
// key gives a read-only gateway.
func Dial(ctx context.Context, cfg Config, logger *zap.Logger) (*Ethereum, error) {
	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial node: %w", err)
	}

	chainID := big.NewInt(cfg.ChainID)
	if cfg.ChainID == 0 {
		chainID, err = client.ChainID(ctx)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to read chain id: %w", err)
		}
	}

	var key *ecdsa.PrivateKey
	if cfg.PrivateKey != "" {
		key, err = crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
	}

	g, err := New(client, cfg.MarketAddress, cfg.TokenAddress, key, chainID, logger)
	if err != nil {
		client.Close()
		return nil, err
	}
	g.closer = client.Close
	return g, nil
}

// New binds both contracts on an existing backend. A nil key makes every
// write and Balance fail with ErrReadOnly.
func New(backend Backend, marketAddress, tokenAddress string, key *ecdsa.PrivateKey, chainID *big.Int, logger *zap.Logger) (*Ethereum, error) {
	marketAddr, err := parseAddress(marketAddress)
	if err != nil {
		return nil, fmt.Errorf("market contract: %w", err)
	}
	tokenAddr, err := parseAddress(tokenAddress)
	if err != nil {
		return nil, fmt.Errorf("token contract: %w", err)
	}

	marketABI, err := abi.JSON(strings.NewReader(MarketABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse market abi: %w", err)
	}
	tokenABI, err := abi.JSON(strings.NewReader(ERC20ABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse token abi: %w", err)
	}

	var auth *bind.TransactOpts
	if key != nil {
		auth, err = bind.NewKeyedTransactorWithChainID(key, chainID)
		if err != nil {
			return nil, fmt.Errorf("failed to create transactor: %w", err)
		}
	}

	return &Ethereum{
		backend:    backend,
		market:     bind.NewBoundContract(marketAddr, marketABI, backend, backend, backend),
		token:      bind.NewBoundContract(tokenAddr, tokenABI, backend, backend, backend),
		marketAddr: marketAddr,
		auth:       auth,
		reads:      newReadBreaker(logger),
		logger:     logger,
	}, nil
}

// Close releases the node connection when the gateway owns it.
func (g *Ethereum) Close() {
	if g.closer != nil {
		g.closer()
	}
}

// Account is the address transactions are sent from, empty when read-only.
func (g *Ethereum) Account() string {
	if g.auth == nil {
		return ""
	}
	return g.auth.From.Hex()
}

// MarketAddress is the marketplace contract, the spender of token approvals.
func (g *Ethereum) MarketAddress() string {
	return g.marketAddr.Hex()
}

func (g *Ethereum) ListLength(ctx context.Context) (uint64, error) {
	out, err := g.call(ctx, g.market, "getClothesLength")
	if err != nil {
		return 0, fmt.Errorf("getClothesLength: %w", err)
	}
	n, err := lengthOutput(out)
	if err != nil {
		return 0, fmt.Errorf("getClothesLength: %w", err)
	}
	return n, nil
}

func (g *Ethereum) ReadItem(ctx context.Context, index uint64) (domain.Item, error) {
	out, err := g.call(ctx, g.market, "readCloth", new(big.Int).SetUint64(index))
	if err != nil {
		return domain.Item{}, fmt.Errorf("readCloth %d: %w", index, err)
	}
	return decodeItem(index, out)
}

// Balance returns the payment token balance of the signing account.
func (g *Ethereum) Balance(ctx context.Context) (*big.Int, error) {
	if g.auth == nil {
		return nil, ErrReadOnly
	}
	out, err := g.call(ctx, g.token, "balanceOf", g.auth.From)
	if err != nil {
		return nil, fmt.Errorf("balanceOf: %w", err)
	}
	return uintOutput(out)
}

func (g *Ethereum) CreateItem(ctx context.Context, item domain.NewItem) (*TxResult, error) {
	return g.transact(ctx, g.market, "writeCloth",
		item.Name, item.Image, item.Description, item.Collection, domain.CopyAmount(item.Price))
}

func (g *Ethereum) BuyItem(ctx context.Context, index uint64) (*TxResult, error) {
	return g.transact(ctx, g.market, "buyCloth", new(big.Int).SetUint64(index))
}

func (g *Ethereum) Approve(ctx context.Context, spender string, amount *big.Int) (*TxResult, error) {
	addr, err := parseAddress(spender)
	if err != nil {
		return nil, err
	}
	return g.transact(ctx, g.token, "approve", addr, domain.CopyAmount(amount))
}

func (g *Ethereum) ClearCartAddresses(ctx context.Context) (*TxResult, error) {
	return g.transact(ctx, g.market, "clearCartAddress")
}

func (g *Ethereum) SetCartAddresses(ctx context.Context, addresses []string) (*TxResult, error) {
	addrs := make([]common.Address, len(addresses))
	for i, a := range addresses {
		addr, err := parseAddress(a)
		if err != nil {
			return nil, err
		}
		addrs[i] = addr
	}
	return g.transact(ctx, g.market, "addCartAddress", addrs)
}

func (g *Ethereum) BuyCart(ctx context.Context, amount *big.Int) (*TxResult, error) {
	return g.transact(ctx, g.market, "buyCart", domain.CopyAmount(amount))
}

// transact sends the call and waits for it to be mined.
func (g *Ethereum) transact(ctx context.Context, contract *bind.BoundContract, method string, params ...interface{}) (*TxResult, error) {
	if g.auth == nil {
		return nil, fmt.Errorf("%s: %w", method, ErrReadOnly)
	}
	opts := *g.auth
	opts.Context = ctx

	tx, err := contract.Transact(&opts, method, params...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	g.logger.Debug("transaction sent", zap.String("method", method), zap.String("tx_hash", tx.Hash().Hex()))

	receipt, err := bind.WaitMined(ctx, g.backend, tx)
	if err != nil {
		return nil, fmt.Errorf("%s: waiting for %s: %w", method, tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("%s: %w: %s", method, ErrTxReverted, tx.Hash().Hex())
	}

	result := &TxResult{Hash: tx.Hash().Hex()}
	if receipt.BlockNumber != nil {
		result.BlockNumber = receipt.BlockNumber.Uint64()
	}
	g.logger.Info("transaction mined",
		zap.String("method", method),
		zap.String("tx_hash", result.Hash),
		zap.Uint64("block", result.BlockNumber))
	return result, nil
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return common.HexToAddress(s), nil
}

func uintOutput(out []interface{}) (*big.Int, error) {
	if len(out) != 1 {
		return nil, fmt.Errorf("%w: want 1 value, got %d", ErrUnexpectedData, len(out))
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%w: %T is not uint256", ErrUnexpectedData, out[0])
	}
	return v, nil
}

// lengthOutput reads a uint256 count that must fit in a uint64.
func lengthOutput(out []interface{}) (uint64, error) {
	n, err := uintOutput(out)
	if err != nil {
		return 0, err
	}
	if !n.IsUint64() {
		return 0, fmt.Errorf("%w: length %s overflows uint64", ErrUnexpectedData, n)
	}
	return n.Uint64(), nil
}

// decodeItem maps the readCloth tuple (owner, name, image, description,
// collection, price, sold) onto an Item.
func decodeItem(index uint64, out []interface{}) (domain.Item, error) {
	if len(out) != 7 {
		return domain.Item{}, fmt.Errorf("readCloth %d: %w: want 7 values, got %d", index, ErrUnexpectedData, len(out))
	}

	owner, ok := out[0].(common.Address)
	if !ok {
		return domain.Item{}, fmt.Errorf("readCloth %d: %w: owner is %T", index, ErrUnexpectedData, out[0])
	}
	var fields [4]string
	for i := range fields {
		s, ok := out[i+1].(string)
		if !ok {
			return domain.Item{}, fmt.Errorf("readCloth %d: %w: field %d is %T", index, ErrUnexpectedData, i+1, out[i+1])
		}
		fields[i] = s
	}
	price, ok := out[5].(*big.Int)
	if !ok {
		return domain.Item{}, fmt.Errorf("readCloth %d: %w: price is %T", index, ErrUnexpectedData, out[5])
	}
	sold, ok := out[6].(*big.Int)
	if !ok {
		return domain.Item{}, fmt.Errorf("readCloth %d: %w: sold is %T", index, ErrUnexpectedData, out[6])
	}
	if !sold.IsUint64() {
		return domain.Item{}, fmt.Errorf("readCloth %d: %w: sold %s overflows uint64", index, ErrUnexpectedData, sold)
	}

	return domain.Item{
		Index:       index,
		Owner:       owner.Hex(),
		Name:        fields[0],
		Image:       fields[1],
		Description: fields[2],
		Collection:  fields[3],
		Price:       domain.CopyAmount(price),
		Sold:        sold.Uint64(),
	}, nil
}
