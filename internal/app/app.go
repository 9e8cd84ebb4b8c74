package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path/filepath"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dnsoftware/pvx-wallet/config"
	grpcadapter "github.com/dnsoftware/pvx-wallet/internal/adapter/grpc"
	"github.com/dnsoftware/pvx-wallet/internal/adapter/kafka_consumer/transfers"
	"github.com/dnsoftware/pvx-wallet/internal/adapter/ledger"
	"github.com/dnsoftware/pvx-wallet/internal/adapter/memory"
	"github.com/dnsoftware/pvx-wallet/internal/adapter/postgres"
	"github.com/dnsoftware/pvx-wallet/internal/adapter/rest"
	"github.com/dnsoftware/pvx-wallet/internal/adapter/ristretto"
	"github.com/dnsoftware/pvx-wallet/internal/constants"
	"github.com/dnsoftware/pvx-wallet/internal/crypto"
	"github.com/dnsoftware/pvx-wallet/internal/usecase/transfer"
	"github.com/dnsoftware/pvx-wallet/internal/usecase/wallet"
	"github.com/dnsoftware/pvx-wallet/pkg/kafka_reader"
	"github.com/dnsoftware/pvx-wallet/pkg/kafka_writer"
	"github.com/dnsoftware/pvx-wallet/pkg/logger"
	"github.com/dnsoftware/pvx-wallet/pkg/metrics"
	otelpkg "github.com/dnsoftware/pvx-wallet/pkg/otel"
	"github.com/dnsoftware/pvx-wallet/pkg/utils"
)

// Dependencies хранилища и кеш, закрываются в обратном порядке при остановке
type Dependencies struct {
	Wallets   wallet.WalletStorage
	Transfers transfer.TransferStorage
	Pinger    rest.Pinger
	Cache     *ristretto.RistrettoWalletCache

	closers []func()
}

func (d *Dependencies) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

// Run запуск сервиса, блокирует до отмены ctx
func Run(ctx context.Context, cfg config.Config, log logger.AppLogger) (err error) {
	// Инициализация трассировщика
	shutdownTracer, err := otelpkg.InitTracer(ctx, otelpkg.Config{
		ServiceName:        cfg.App.Name,
		Exporter:           cfg.Otel.Exporter,
		CollectorEndpoint:  cfg.Otel.Endpoint,
		BatchTimeout:       cfg.Otel.BatchTimeout,
		MaxExportBatchSize: cfg.Otel.MaxExportBatchSize,
		MaxQueueSize:       cfg.Otel.MaxQueueSize,
		SkipSpans:          []string{"/health", "/metrics"},
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			log.Warn("tracer shutdown failed", zap.Error(err))
		}
	}()

	kdf, err := crypto.NewKDF(cfg.KDFParams(), log)
	if err != nil {
		return err
	}

	deps, err := newDependencies(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer deps.Close()

	m := metrics.New()
	hub := rest.NewTransferHub(log)
	fanout := ledger.NewFanout(m, log)

	// Леджер в Кафке
	if cfg.KafkaLedger.Enabled {
		writer, err := kafka_writer.NewKafkaWriter(kafka_writer.Config{
			Brokers: cfg.KafkaLedger.Brokers,
			Topic:   cfg.KafkaLedger.Topic,
		}, log)
		if err != nil {
			return fmt.Errorf("kafka writer: %w", err)
		}
		writer.Start()
		defer writer.Close()

		fanout.Add("kafka", ledger.NewKafkaLedger(writer))
	}

	// Лента websocket: из топика леджера (все экземпляры сервиса) или напрямую из usecase
	if cfg.KafkaLedger.FeedEnabled {
		consumer, err := newFeedConsumer(cfg, hub, log)
		if err != nil {
			return err
		}
		consumer.StartConsume()
		defer consumer.Close()
	} else {
		fanout.Add("feed", hub)
	}

	// nil-указатель в интерфейсе не должен попасть в usecase
	var walletCache wallet.WalletCache
	var transferCache transfer.WalletCache
	if deps.Cache != nil {
		walletCache, transferCache = deps.Cache, deps.Cache
	}

	wallets := wallet.NewWalletUseCase(wallet.Config{
		MinPassphraseLength: cfg.Wallet.MinPassphraseLength,
		CreateAttempts:      cfg.Wallet.CreateAttempts,
	}, deps.Wallets, walletCache, kdf, m, log)
	transfers := transfer.NewTransferUseCase(deps.Transfers, fanout, transferCache, kdf, m, log)

	handler := rest.NewHandler(rest.Config{
		AdminToken:   cfg.HTTP.AdminToken,
		MaxBodyBytes: cfg.HTTP.MaxBodyBytes,
		RateRPS:      cfg.HTTP.RateLimit.RPS,
		RateBurst:    cfg.HTTP.RateLimit.Burst,
		RateIdleTTL:  cfg.HTTP.RateLimit.IdleTTL,
	}, wallets, transfers, hub, m, deps.Pinger, log)

	httpServer := &http.Server{
		Addr: cfg.HTTP.Listen,
		Handler: otelhttp.NewHandler(handler.Routes(), "http",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			})),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	var healthServer *grpcadapter.HealthServer
	var grpcListener net.Listener
	if cfg.GRPC.Listen != "" {
		grpcListener, err = net.Listen("tcp", cfg.GRPC.Listen)
		if err != nil {
			return fmt.Errorf("grpc listen: %w", err)
		}
		healthServer = grpcadapter.NewHealthServer(deps.Pinger, 0, log)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("http server started", zap.String("listen", cfg.HTTP.Listen))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if healthServer != nil {
		g.Go(func() error {
			log.Info("grpc health server started", zap.String("listen", cfg.GRPC.Listen))
			return healthServer.Serve(gctx, grpcListener)
		})
	}

	// Настройка graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down service...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()

		if healthServer != nil {
			healthServer.Stop()
		}
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func newDependencies(ctx context.Context, cfg config.Config, log logger.AppLogger) (*Dependencies, error) {
	deps := &Dependencies{}

	switch cfg.Storage.Type {
	case constants.StorageTypePostgres:
		if cfg.Postgres.Migrate {
			if err := postgres.Migrate(cfg.Postgres.DSN, migrationDir(cfg.Postgres.MigrationDir)); err != nil {
				return nil, err
			}
			log.Info("postgres migrations applied")
		}

		pool, err := postgres.NewPool(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConns)
		if err != nil {
			return nil, err
		}
		deps.closers = append(deps.closers, pool.Close)

		pgCfg := postgres.Config{QueryTimeout: cfg.Postgres.QueryTimeout, Retries: cfg.Postgres.Retries}
		walletStorage, err := postgres.NewPostgresWalletStorage(pool, pgCfg, log)
		if err != nil {
			deps.Close()
			return nil, err
		}
		transferStorage, err := postgres.NewPostgresTransferStorage(pool, pgCfg, log)
		if err != nil {
			deps.Close()
			return nil, err
		}
		deps.Wallets, deps.Transfers, deps.Pinger = walletStorage, transferStorage, walletStorage

	case constants.StorageTypeMemory:
		store := memory.NewStore()
		deps.Wallets, deps.Transfers, deps.Pinger = store, store, store
		log.Warn("memory storage is not persistent")

	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Storage.Type)
	}

	// Ristretto кэш
	if cfg.Cache.Enabled {
		cache, err := ristretto.NewRistrettoWalletCache(ristretto.CacheConfig{
			NumCounters: cfg.Cache.NumCounters,
			MaxCost:     cfg.Cache.MaxCost,
			TTL:         cfg.Cache.TTL,
		})
		if err != nil {
			deps.Close()
			return nil, fmt.Errorf("wallet cache: %w", err)
		}
		deps.Cache = cache
		deps.closers = append(deps.closers, cache.Close)
	}

	return deps, nil
}

// newFeedConsumer у каждого экземпляра своя группа, чтобы получать все переводы топика
func newFeedConsumer(cfg config.Config, hub *rest.TransferHub, log logger.AppLogger) (*transfers.TransferConsumer, error) {
	reader, err := kafka_reader.NewKafkaReader(kafka_reader.Config{
		Brokers:            cfg.KafkaLedger.Brokers,
		Group:              cfg.KafkaLedger.Group + "-" + uuid.NewString(),
		Topic:              cfg.KafkaLedger.Topic,
		AutoCommitEnable:   true,
		AutoCommitInterval: constants.KafkaLedgerAutocommitInterval,
		InitialOffset:      sarama.OffsetNewest,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("kafka reader: %w", err)
	}

	return transfers.NewTransferConsumer(transfers.Config{
		BatchSize:     cfg.KafkaLedger.ReadBatchSize,
		FlushInterval: cfg.KafkaLedger.ReadFlushInterval,
	}, reader, hub, log), nil
}

// migrationDir относительный путь считается от корня проекта
func migrationDir(dir string) string {
	if filepath.IsAbs(dir) {
		return dir
	}
	if root, err := utils.GetProjectRoot(constants.ProjectRootAnchorFile); err == nil {
		return filepath.Join(root, dir)
	}
	return dir
}
