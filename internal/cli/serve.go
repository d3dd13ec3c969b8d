package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/clothly/storefront/internal/cache"
	"github.com/clothly/storefront/internal/cart"
	"github.com/clothly/storefront/internal/catalog"
	"github.com/clothly/storefront/internal/config"
	"github.com/clothly/storefront/internal/consumer"
	"github.com/clothly/storefront/internal/gateway"
	h "github.com/clothly/storefront/internal/http"
	"github.com/clothly/storefront/internal/publisher"
	"github.com/clothly/storefront/internal/repository"
	"github.com/clothly/storefront/internal/service"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

const serviceName = "storefront"

func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "serve",
		Short:        "Run the HTTP API and the gRPC health endpoint",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(rootOpts)
			if err != nil {
				return err
			}
			logger, err := newLogger(rootOpts.Verbose)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, logger)
		},
	}
}

func loadConfig(opts *RootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.EnvFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runServe(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	gw, err := gateway.Dial(ctx, cfg.Gateway, logger)
	if err != nil {
		return err
	}
	defer gw.Close()
	logger.Info("connected to ledger",
		zap.String("rpc", cfg.Gateway.RPCURL),
		zap.String("account", gw.Account()),
		zap.String("market", gw.MarketAddress()))

	var catalogCache cache.CatalogCache
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       0,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis connection failed: %w", err)
		}
		logger.Info("redis ping succeeded", zap.String("addr", cfg.RedisAddr))
		catalogCache = cache.NewRedisCache(redisClient)
	}

	repo, err := repository.NewRepository(cfg.DBPath)
	if err != nil {
		return err
	}
	defer repo.Close()
	if err := repo.RunMigrations(cfg.MigrationsPath); err != nil {
		return err
	}
	logger.Info("database migrations completed", zap.String("db", cfg.DBPath))

	store := catalog.NewStore(gw.MarketAddress(), catalogCache, logger)
	if err := store.Warm(ctx); err != nil && !errors.Is(err, cache.ErrCacheMiss) {
		logger.Warn("catalog cache warm failed", zap.Error(err))
	}
	if _, err := store.Refresh(ctx, gw); err != nil {
		// the catalog can be refreshed later through the API
		logger.Warn("initial catalog refresh failed", zap.Error(err))
	}

	svc := service.NewStorefront(gw, cart.NewEngine(gw.MarketAddress(), logger), store, repo, logger)

	if len(cfg.KafkaBrokers) > 0 {
		poller := publisher.NewOutboxPoller(repo, logger, cfg.KafkaBrokers...)
		defer poller.Close()
		go poller.Run(ctx)
		logger.Info("receipt outbox publisher started", zap.Strings("brokers", cfg.KafkaBrokers))

		purchases := consumer.NewPurchaseConsumer(svc, cfg.ConsumerGroup, logger, cfg.KafkaBrokers...)
		defer purchases.Close()
		go purchases.Run(ctx)
		logger.Info("purchase consumer started", zap.String("group", cfg.ConsumerGroup))
	}

	srv := &http.Server{
		Addr: ":" + cfg.HTTPPort,
		Handler: h.NewRouter(svc, h.RouterConfig{
			RequestTimeout:     cfg.RequestTimeout,
			MaxRequestBodySize: cfg.MaxRequestBodySize,
		}, logger),
		ReadTimeout: 10 * time.Second,
		// no WriteTimeout: a checkout response waits on mined transactions
		IdleTimeout: 60 * time.Second,
	}

	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	grpcServer, healthServer := newGRPCServer()

	errCh := make(chan error, 2)
	go func() {
		logger.Info("http server starting", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		logger.Info("grpc health server starting", zap.String("port", cfg.GRPCPort))
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	logger.Info("shutting down")
	healthServer.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	grpcServer.GracefulStop()
	logger.Info("server exited")
	return runErr
}

// newGRPCServer exposes the standard health service for orchestrators.
func newGRPCServer() (*grpc.Server, *health.Server) {
	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))

	healthServer := health.NewServer()
	healthServer.SetServingStatus(serviceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	// Enable reflection for grpcurl/grpcui
	reflection.Register(grpcServer)
	return grpcServer, healthServer
}
