// Package config reads process settings from the environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/clothly/storefront/internal/gateway"
	"github.com/joho/godotenv"
)

const (
	DefaultMarketContract = "0x35DCCA4B67d6437466aB2A020Ac001C07023fcab"
	DefaultTokenContract  = "0x874069Fa1Eb16D44d622F2e0Ca25eeA172369bC1"
	DefaultRPCURL         = "https://alfajores-forno.celo-testnet.org"
	DefaultChainID        = 44787
)

var ErrMissingPrivateKey = errors.New("PRIVATE_KEY is required")

type Config struct {
	HTTPPort           string
	GRPCPort           string
	Gateway            gateway.Config
	RedisAddr          string
	RedisPassword      string
	DBPath             string
	MigrationsPath     string
	KafkaBrokers       []string
	ConsumerGroup      string
	RequestTimeout     time.Duration
	ShutdownTimeout    time.Duration
	MaxRequestBodySize int64
}

// Load reads envFile when it exists, then the environment. Variables already
// set in the environment win over the file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read %s: %w", envFile, err)
		}
	}

	chainID, err := getInt("CHAIN_ID", DefaultChainID)
	if err != nil {
		return nil, err
	}
	requestTimeout, err := getDuration("REQUEST_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}
	shutdownTimeout, err := getDuration("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}

	return &Config{
		HTTPPort: getEnv("HTTP_PORT", "8080"),
		GRPCPort: getEnv("GRPC_PORT", "50051"),
		Gateway: gateway.Config{
			RPCURL:        getEnv("RPC_URL", DefaultRPCURL),
			ChainID:       chainID,
			PrivateKey:    strings.TrimPrefix(os.Getenv("PRIVATE_KEY"), "0x"),
			MarketAddress: getEnv("MARKET_CONTRACT", DefaultMarketContract),
			TokenAddress:  getEnv("TOKEN_CONTRACT", DefaultTokenContract),
		},
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		DBPath:             getEnv("DB_PATH", "./storefront.db"),
		MigrationsPath:     getEnv("MIGRATIONS_PATH", "./internal/repository/migrations"),
		KafkaBrokers:       splitList(os.Getenv("KAFKA_BROKERS")),
		ConsumerGroup:      getEnv("KAFKA_CONSUMER_GROUP", defaultConsumerGroup()),
		RequestTimeout:     requestTimeout,
		ShutdownTimeout:    shutdownTimeout,
		MaxRequestBodySize: 1 << 20, // 1MB
	}, nil
}

// Validate checks settings needed to sign transactions.
func (c *Config) Validate() error {
	if c.Gateway.PrivateKey == "" {
		return ErrMissingPrivateKey
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int64) (int64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return n, nil
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return d, nil
}

// defaultConsumerGroup is per host so every instance sees every purchase.
func defaultConsumerGroup() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "storefront"
	}
	return "storefront-" + host
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
