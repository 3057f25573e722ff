package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/vladislavdragonenkov/workshop/internal/domain"
	"github.com/vladislavdragonenkov/workshop/internal/filestore"
	healthcheck "github.com/vladislavdragonenkov/workshop/internal/health"
	"github.com/vladislavdragonenkov/workshop/internal/metrics"
	"github.com/vladislavdragonenkov/workshop/internal/service/booking"
	"github.com/vladislavdragonenkov/workshop/internal/service/cart"
	"github.com/vladislavdragonenkov/workshop/internal/service/checkout"
	"github.com/vladislavdragonenkov/workshop/internal/service/idempotency"
	"github.com/vladislavdragonenkov/workshop/internal/service/inventory"
	"github.com/vladislavdragonenkov/workshop/internal/service/invoice"
	"github.com/vladislavdragonenkov/workshop/internal/service/outbox"
	"github.com/vladislavdragonenkov/workshop/internal/service/partsrequest"
	"github.com/vladislavdragonenkov/workshop/internal/service/retry"
	"github.com/vladislavdragonenkov/workshop/internal/storage/memory"
	"github.com/vladislavdragonenkov/workshop/internal/storage/postgres"
	"github.com/vladislavdragonenkov/workshop/internal/storage/redisseq"
	"github.com/vladislavdragonenkov/workshop/internal/transport/httpapi"
)

// storage — выбранное хранилище и его служебные части.
type storage struct {
	uow             domain.UnitOfWork
	sequence        domain.InvoiceSequence
	outboxRepo      domain.OutboxRepository
	idempotencyRepo domain.IdempotencyRepository
	checker         healthcheck.Checker
	closeFn         func()
}

// runtimeDependencies содержит всё, что запускает Run.
type runtimeDependencies struct {
	services      httpapi.Services
	outboxWorker  *outbox.Worker
	cleanupWorker *idempotency.CleanupWorker
	checkers      map[string]healthcheck.Checker
	closers       []func()
}

// Close освобождает подключения в порядке, обратном открытию.
func (d *runtimeDependencies) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
	d.closers = nil
}

func (d *runtimeDependencies) registerHealth(h *healthcheck.Handler) {
	for name, checker := range d.checkers {
		h.RegisterChecker(name, checker)
	}
}

// initRuntimeDependencies собирает хранилище, брокер, файловое хранилище и сервисы.
// При ошибке уже открытые подключения закрываются.
func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (_ *runtimeDependencies, err error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}
	deps := &runtimeDependencies{checkers: make(map[string]healthcheck.Checker)}
	defer func() {
		if err != nil {
			deps.Close()
		}
	}()

	store, err := initStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	deps.closers = append(deps.closers, store.closeFn)
	deps.checkers["storage"] = store.checker

	sequence := store.sequence
	if cfg.RedisAddr != "" {
		seq, client, err := redisseq.Dial(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, fmt.Errorf("init invoice sequence: %w", err)
		}
		sequence = seq
		deps.closers = append(deps.closers, func() {
			if err := client.Close(); err != nil {
				logger.WithError(err).Warn("failed to close redis client")
			}
		})
		deps.checkers["redis"] = healthcheck.NewSimpleChecker("redis", func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
		logger.WithField("addr", cfg.RedisAddr).Info("invoice numbers are issued by redis")
	}

	receipts, err := initReceiptStore(cfg, logger)
	if err != nil {
		return nil, err
	}
	if remote, ok := receipts.(*filestore.RemoteStore); ok {
		deps.checkers["filestore"] = healthcheck.NewOptionalChecker("filestore", func(context.Context) error {
			if remote.State() == gobreaker.StateOpen {
				return filestore.ErrUnavailable
			}
			return nil
		})
	}

	publishers, kafkaErr := initOutboxPublishers(cfg, logger)
	if publishers.producer != nil {
		producer := publishers.producer
		deps.closers = append(deps.closers, func() { closeKafka(producer, logger) })
	}
	if len(cfg.Brokers()) > 0 {
		deps.checkers["kafka"] = healthcheck.NewOptionalChecker("kafka", func(context.Context) error {
			if publishers.producer == nil {
				return fmt.Errorf("kafka producer unavailable: %w", kafkaErr)
			}
			return nil
		})
	}

	fulfillment := metrics.NewFulfillmentMetrics()
	retryCfg := retry.DefaultConfig()
	retryCfg.MaxAttempts = cfg.RetryMaxAttempts
	retrier := retry.New(retryCfg, logger.WithField("component", "retry"), fulfillment)

	ledger := inventory.NewService(store.uow,
		inventory.WithLogger(logger.WithField("component", "inventory")),
		inventory.WithMetrics(fulfillment),
		inventory.WithRetryConfig(retryCfg),
	)
	invoices, err := invoice.NewService(store.uow, invoice.Config{
		Sequence: sequence,
		Receipts: receipts,
		Pricing:  cfg.InvoicePartsPricing,
		Retrier:  retrier,
		Logger:   logger.WithField("component", "invoice"),
		Metrics:  fulfillment,
	})
	if err != nil {
		return nil, fmt.Errorf("init invoice service: %w", err)
	}

	idempotencyMetrics := metrics.NewIdempotencyMetrics(prometheus.DefaultRegisterer)
	deps.services = httpapi.Services{
		Inventory:     ledger,
		Carts:         cart.NewService(store.uow, retrier, logger.WithField("component", "cart")),
		Checkout:      checkout.NewService(store.uow, ledger, receipts, retrier, logger.WithField("component", "checkout"), fulfillment),
		PartsRequests: partsrequest.NewService(store.uow, ledger, retrier, logger.WithField("component", "parts-request"), fulfillment),
		Bookings:      booking.NewService(store.uow, logger.WithField("component", "booking")),
		Invoices:      invoices,
		Idempotency:   idempotency.NewGuard(store.idempotencyRepo, cfg.IdempotencyTTL, logger.WithField("component", "idempotency"), idempotencyMetrics),
	}

	workerOpts := []outbox.Option{
		outbox.WithLogger(logger.WithField("component", "outbox-worker")),
		outbox.WithMetrics(metrics.NewOutboxMetrics(prometheus.DefaultRegisterer)),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
	}
	if publishers.dlq != nil {
		workerOpts = append(workerOpts, outbox.WithDLQPublisher(publishers.dlq))
	}
	deps.outboxWorker = outbox.NewWorker(store.outboxRepo, publishers.events, workerOpts...)
	deps.cleanupWorker = idempotency.NewCleanupWorker(store.idempotencyRepo,
		idempotency.WithLogger(logger.WithField("component", "idempotency-cleanup")),
		idempotency.WithMetrics(idempotencyMetrics),
		idempotency.WithInterval(cfg.IdempotencyCleanupInterval),
		idempotency.WithBatchSize(cfg.IdempotencyCleanupBatchSize),
	)

	return deps, nil
}

// initStorage открывает хранилище по драйверу из конфигурации.
func initStorage(ctx context.Context, cfg Config, logger *log.Entry) (storage, error) {
	switch cfg.StorageDriver {
	case "", StorageDriverMemory:
		store := memory.NewStore()
		logger.Info("using in-memory storage")
		return storage{
			uow:             store,
			sequence:        store,
			outboxRepo:      store.Outbox(),
			idempotencyRepo: memory.NewIdempotencyRepository(cfg.IdempotencyTTL),
			checker:         healthcheck.NewSimpleChecker("storage", func(context.Context) error { return nil }),
			closeFn:         func() {},
		}, nil
	case StorageDriverPostgres:
		if cfg.PostgresDSN == "" {
			return storage{}, errors.New("postgres storage requires a DSN")
		}
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return storage{}, err
		}
		if cfg.PostgresAutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				_ = store.Close()
				return storage{}, fmt.Errorf("apply migrations: %w", err)
			}
		}
		logger.Info("using postgres storage")
		return storage{
			uow:             store,
			sequence:        store,
			outboxRepo:      store.Outbox(),
			idempotencyRepo: postgres.NewIdempotencyRepository(store, cfg.IdempotencyTTL),
			checker:         healthcheck.NewSimpleChecker("storage", store.Ping),
			closeFn: func() {
				if err := store.Close(); err != nil {
					logger.WithError(err).Warn("failed to close postgres store")
				}
			},
		}, nil
	default:
		return storage{}, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}

// initReceiptStore выбирает хранилище чеков: внешнее по URL или in-memory для разработки.
func initReceiptStore(cfg Config, logger *log.Entry) (domain.ReceiptStore, error) {
	if cfg.FileStoreURL == "" {
		logger.Warn("receipt files are kept in memory; set WORKSHOP_FILESTORE_URL for durable storage")
		return filestore.NewMemoryStore(), nil
	}
	remote, err := filestore.NewRemoteStore(filestore.RemoteConfig{
		BaseURL: cfg.FileStoreURL,
		Logger:  logger.WithField("component", "filestore"),
	})
	if err != nil {
		return nil, fmt.Errorf("init receipt store: %w", err)
	}
	return remote, nil
}
