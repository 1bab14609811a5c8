package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/groovy/replicasync/internal/adapters/cache"
	eventadapter "github.com/groovy/replicasync/internal/adapters/events"
	grpcadapter "github.com/groovy/replicasync/internal/adapters/grpc"
	httpadapter "github.com/groovy/replicasync/internal/adapters/http"
	"github.com/groovy/replicasync/internal/adapters/memory"
	"github.com/groovy/replicasync/internal/adapters/postgres"
	"github.com/groovy/replicasync/internal/adapters/sqlite"
	"github.com/groovy/replicasync/internal/adapters/syncclient"
	"github.com/groovy/replicasync/internal/application"
	"github.com/groovy/replicasync/internal/ports"
)

type Runtime struct {
	cfg        Config
	logger     *slog.Logger
	transport  ports.Transport
	publisher  *application.Publisher
	engine     *application.Engine
	httpServer *http.Server
	health     *grpcadapter.HealthReporter
	subscriber *eventadapter.SubscriptionWorker
	reconciler *eventadapter.ReconcileWorker
	closers    []func() error
}

type stores struct {
	users       ports.UserReplicaRepository
	songs       ports.SongReplicaRepository
	catalog     ports.SongCatalogRepository
	checkpoints ports.CheckpointRepository
	dedup       ports.EventDedupRepository
}

func NewRuntime(ctx context.Context, configPath string) (*Runtime, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})).With("service", cfg.ServiceID)
	slog.SetDefault(logger)
	return newRuntime(ctx, cfg, logger)
}

func newRuntime(ctx context.Context, cfg Config, logger *slog.Logger) (*Runtime, error) {
	r := &Runtime{cfg: cfg, logger: logger}
	fail := func(err error) (*Runtime, error) {
		r.Close()
		return nil, err
	}

	st, err := r.openStores(ctx)
	if err != nil {
		return fail(err)
	}

	var replicaCache ports.Cache
	if cfg.RedisURL != "" {
		redisClient, err := cache.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return fail(err)
		}
		r.closers = append(r.closers, redisClient.Close)
		replicaCache = cache.NewRedisCache(redisClient, cfg.ServiceID+":")
	}

	transport, err := buildTransport(cfg, logger)
	if err != nil {
		return fail(err)
	}
	r.transport = transport
	r.closers = append(r.closers, transport.Close)

	appCfg := application.Config{
		ServiceName:     cfg.ServiceID,
		EventDedupTTL:   cfg.EventDedupTTL,
		ReplicaCacheTTL: cfg.ReplicaCacheTTL,
		PublishTimeout:  cfg.PublishTimeout,
		SyncPageSize:    cfg.Sync.PageSize,
	}
	r.publisher = application.NewPublisher(transport, logger, application.WithPublishTimeout(cfg.PublishTimeout))

	var catalog *application.Catalog
	if cfg.CatalogEnabled {
		catalog = application.NewCatalog(appCfg, st.catalog, r.publisher, logger)
	}

	dispatcher := application.NewReplicaDispatcher(appCfg, application.ReplicaDependencies{
		Users:  st.users,
		Songs:  st.songs,
		Dedup:  st.dedup,
		Cache:  replicaCache,
		Logger: logger,
	})
	r.subscriber = eventadapter.NewSubscriptionWorker(logger, transport, dispatcher, eventadapter.Subscriptions(cfg.ServiceID, cfg.Subscriptions))

	endpoints := make(map[string]string, len(cfg.Sync.Targets))
	targets := make([]application.Target, 0, len(cfg.Sync.Targets))
	for _, t := range cfg.Sync.Targets {
		endpoints[t.Resource] = t.BaseURL
		switch t.Kind {
		case TargetKindUsers:
			targets = append(targets, application.NewUserTarget(t.Name, t.Resource, st.users))
		case TargetKindSongs:
			targets = append(targets, application.NewSongTarget(t.Name, t.Resource, st.songs))
		}
	}
	source := syncclient.New(logger, syncclient.Config{
		Endpoints:        endpoints,
		Timeout:          cfg.Sync.RequestTimeout,
		BreakerThreshold: cfg.Sync.BreakerThreshold,
		BreakerCooldown:  cfg.Sync.BreakerCooldown,
	})
	r.engine = application.NewEngine(logger, source, st.checkpoints, application.EngineConfig{PageSize: cfg.Sync.PageSize}, targets...)
	r.reconciler = eventadapter.NewReconcileWorker(logger, r.engine, eventadapter.ReconcileSchedule{
		Interval:     cfg.Sync.Interval,
		FullInterval: cfg.Sync.FullInterval,
		FullOnStart:  cfg.Sync.FullOnStart,
	})

	webhooks := make(map[string]httpadapter.WebhookIntegration, len(cfg.Webhooks))
	for _, w := range cfg.Webhooks {
		guard := application.NewWebhookGuard(w.Caller, w.Secret)
		webhooks[w.Integration] = httpadapter.TranscodeIntegration(guard, catalog)
	}

	handler := httpadapter.NewHandler(httpadapter.Dependencies{
		Catalog:  catalog,
		Engine:   r.engine,
		Reader:   application.NewReplicaReader(appCfg, st.users, st.songs, replicaCache, logger),
		Webhooks: webhooks,
		Ready:    transport.TestConnection,
	})
	r.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           httpadapter.NewRouter(handler),
		ReadHeaderTimeout: 5 * time.Second,
	}
	r.health = grpcadapter.NewHealthReporter(logger, transport.TestConnection, 10*time.Second)
	return r, nil
}

func (r *Runtime) openStores(ctx context.Context) (stores, error) {
	var st stores
	switch r.cfg.StoreKind {
	case StorePostgres:
		db, err := postgres.Connect(ctx, r.cfg.DatabaseURL, r.cfg.MaxDBConns)
		if err != nil {
			return stores{}, err
		}
		r.closers = append(r.closers, func() error { return postgres.Close(db) })
		if err := postgres.RunMigrations(ctx, db); err != nil {
			return stores{}, err
		}
		repos := postgres.NewRepositories(db)
		st = stores{
			users:       repos.Users,
			songs:       repos.Songs,
			catalog:     repos.Catalog,
			checkpoints: repos.Checkpoints,
			dedup:       repos.EventDedup,
		}
	default:
		repos := memory.NewRepositories()
		st = stores{
			users:       repos.Users,
			songs:       repos.Songs,
			catalog:     repos.Catalog,
			checkpoints: repos.Checkpoints,
			dedup:       repos.EventDedup,
		}
	}

	switch r.cfg.CheckpointStore {
	case StoreSQLite:
		store, err := sqlite.OpenCheckpointStore(ctx, r.cfg.SQLitePath)
		if err != nil {
			return stores{}, err
		}
		r.closers = append(r.closers, store.Close)
		st.checkpoints = store
	case StoreMemory:
		st.checkpoints = memory.NewCheckpointRepository()
	}
	return st, nil
}

func buildTransport(cfg Config, logger *slog.Logger) (ports.Transport, error) {
	switch cfg.Transport {
	case TransportKafka:
		return eventadapter.NewKafkaTransport(logger, eventadapter.KafkaConfig{
			Brokers:      cfg.KafkaBrokers,
			RetryInitial: cfg.RetryInitial,
			RetryMax:     cfg.RetryMax,
		})
	case TransportRabbitMQ:
		return eventadapter.NewRabbitTransport(logger, eventadapter.RabbitConfig{
			URL:            cfg.RabbitURL,
			ExchangePrefix: cfg.RabbitExchangePrefix,
			Prefetch:       cfg.RabbitPrefetch,
			RetryDelay:     cfg.RetryInitial,
		})
	case TransportMemory:
		return eventadapter.NewMemoryTransport(logger, 5), nil
	case TransportLog:
		return eventadapter.NewLoggingTransport(logger), nil
	default:
		return nil, fmt.Errorf("unsupported event transport %q", cfg.Transport)
	}
}

func (r *Runtime) Engine() *application.Engine {
	return r.engine
}

// TransportReady reports whether the event transport answers.
func (r *Runtime) TransportReady(ctx context.Context) bool {
	return r.transport != nil && r.transport.TestConnection(ctx)
}

// Close waits for in-flight publications, then releases every dependency in
// reverse order of acquisition.
func (r *Runtime) Close() {
	if r.publisher != nil {
		r.publisher.Wait()
	}
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			r.logger.Warn("close dependency failed",
				"module", "bootstrap",
				"layer", "app",
				"operation", "close",
				"outcome", "failure",
				"error", err,
			)
		}
	}
	r.closers = nil
}

func (r *Runtime) RunAPI(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer r.Close()

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", r.cfg.GRPCPort))
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}
	grpcServer := grpc.NewServer()
	r.health.Register(grpcServer)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := r.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return grpcServer.Serve(lis)
	})
	g.Go(func() error {
		return ignoreCanceled(r.health.Run(gctx))
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		r.health.Shutdown()
		_ = r.httpServer.Shutdown(shutdownCtx)
		grpcServer.GracefulStop()
		return nil
	})

	if err := g.Wait(); err != nil {
		r.logger.ErrorContext(ctx, "runtime failure", "error", err)
		return err
	}
	return nil
}

func (r *Runtime) RunWorker(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer r.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return ignoreCanceled(r.subscriber.Run(gctx))
	})
	if len(r.engine.Targets()) > 0 {
		g.Go(func() error {
			return ignoreCanceled(r.reconciler.Run(gctx))
		})
	}
	if err := g.Wait(); err != nil {
		r.logger.ErrorContext(ctx, "worker failure", "error", err)
		return err
	}
	return nil
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
