// Package server assembles the Matenet backend from configuration: secrets,
// storage, services, the REST API, the gRPC health endpoint and scheduled
// jobs, and runs them until a shutdown signal arrives.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/matenet/backend/internal/common"
	"github.com/matenet/backend/internal/cryptox"
	"github.com/matenet/backend/internal/dbx"
	"github.com/matenet/backend/internal/logging"
	"github.com/matenet/backend/internal/server/auth"
	"github.com/matenet/backend/internal/server/config"
	"github.com/matenet/backend/internal/server/httpapi"
	"github.com/matenet/backend/internal/server/jobs"
	"github.com/matenet/backend/internal/server/metrics"
	"github.com/matenet/backend/internal/server/objectstore"
	"github.com/matenet/backend/internal/server/repositories/memory"
	"github.com/matenet/backend/internal/server/repositories/nonces"
	"github.com/matenet/backend/internal/server/repositories/repomanager"
	"github.com/matenet/backend/internal/server/secrets"
	"github.com/matenet/backend/internal/server/services"
	"github.com/matenet/backend/internal/timex"

	gs "github.com/matenet/backend/internal/server/grpc"
)

const healthServiceName = "matenet.Backend"

type App struct {
	config  *config.Config
	logger  logging.Logger
	clock   timex.Clock
	metrics *metrics.Metrics

	db      *sql.DB
	redis   redis.UniversalClient
	nonces  nonces.Repository
	pingers []gs.Pinger

	ledger  *services.LedgerService
	users   *services.UserService
	auth    *services.AuthService
	friends *services.FriendService
}

// NewApp resolves secrets, opens storage and builds the services. Any
// failure here aborts startup.
func NewApp(ctx context.Context, c *config.Config, logger logging.Logger) (*App, error) {
	app := &App{config: c, logger: logger, clock: time.Now, metrics: metrics.New()}

	provider, err := secrets.NewProvider(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("secrets provider init error: %w", err)
	}
	material, err := secrets.Load(ctx, provider, c.JWTSecretID, c.CipherKeySecretID)
	if err != nil {
		return nil, fmt.Errorf("secrets load error: %w", err)
	}

	cipher, err := cryptox.NewCipher(material.CipherKey)
	common.WipeByteArray(material.CipherKey)
	if err != nil {
		return nil, fmt.Errorf("cipher init error: %w", err)
	}

	tx, manager, err := app.openStorage(ctx)
	if err != nil {
		app.Close()
		return nil, err
	}

	if err := app.openNonceStore(ctx, manager, tx); err != nil {
		app.Close()
		return nil, err
	}

	objects, err := app.openObjectStore(ctx)
	if err != nil {
		app.Close()
		return nil, err
	}

	issuer := auth.NewIssuer(material.JWTSecret, c.SessionTTL, app.clock)

	app.ledger = services.NewLedgerService(tx, manager, logger)
	app.users = services.NewUserService(tx, manager, app.ledger, cipher, objects, app.clock, logger)
	app.auth = services.NewAuthService(app.nonces, app.users, issuer, c.NonceTTL, c.SiweDomain, app.clock, logger)
	app.friends = services.NewFriendService(tx, manager, app.users, app.ledger, c.AllowResendAfterReject, logger)

	return app, nil
}

func (app *App) openStorage(ctx context.Context) (dbx.Transactor, repomanager.RepositoryManager, error) {
	switch app.config.StorageDriver {
	case config.StorageDriverMemory:
		app.logger.Warn(ctx, "using in-memory storage, data is lost on restart")
		store := memory.NewStore(app.clock)
		return store, store, nil

	case config.StorageDriverPostgres:
		db, err := sql.Open("pgx", app.config.DatabaseDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("db init error: %w", err)
		}
		app.db = db

		if err := db.PingContext(ctx); err != nil {
			return nil, nil, fmt.Errorf("db ping error: %w", err)
		}

		manager := repomanager.NewPostgresRepositoryManager()
		if err := manager.RunMigrations(ctx, db); err != nil {
			return nil, nil, fmt.Errorf("db migration error: %w", err)
		}
		app.pingers = append(app.pingers, db)
		return dbx.NewSQLTransactor(db, nil), manager, nil
	}
	return nil, nil, fmt.Errorf("unknown storage driver %q", app.config.StorageDriver)
}

func (app *App) openNonceStore(ctx context.Context, manager repomanager.RepositoryManager, tx dbx.Transactor) error {
	switch app.config.NonceStore {
	case config.NonceStoreRedis:
		client := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    []string{app.config.RedisAddr},
			Password: app.config.RedisPassword,
		})
		app.redis = client
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping error: %w", err)
		}
		app.nonces = nonces.NewRedisRepository(client)
		app.pingers = append(app.pingers, gs.PingFunc(func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}))
		return nil

	case config.NonceStorePostgres:
		app.nonces = manager.Nonces(tx.Conn())
		return nil
	}
	return fmt.Errorf("unknown nonce store %q", app.config.NonceStore)
}

func (app *App) openObjectStore(ctx context.Context) (objectstore.Store, error) {
	if app.config.StorageDriver == config.StorageDriverMemory {
		return objectstore.NewMemoryStore(app.config.S3PublicURL, app.config.S3Bucket), nil
	}
	s, err := objectstore.NewS3Store(ctx, app.config)
	if err != nil {
		return nil, fmt.Errorf("object store init error: %w", err)
	}
	return s, nil
}

// Users exposes the user service to administrative tooling.
func (app *App) Users() *services.UserService {
	return app.users
}

// Close releases database and cache connections.
func (app *App) Close() {
	if app.db != nil {
		_ = app.db.Close()
	}
	if app.redis != nil {
		_ = app.redis.Close()
	}
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// runner is any long-lived component that stops when its context is done.
type runner interface {
	Run(ctx context.Context) error
}

// start runs r and, on failure, reports the error before cancelling the
// others so that the first failure wins.
func (app *App) start(ctx context.Context, cancelFunc context.CancelFunc, name string, r runner, report func(error)) {
	if err := r.Run(ctx); err != nil {
		app.logger.Error(ctx, name+" stopped", "error", err)
		report(fmt.Errorf("%s: %w", name, err))
		cancelFunc()
	}
}

// Run serves until ctx is cancelled or a termination signal arrives. If any
// component fails the others are shut down too and the first failure is
// returned.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()
	defer app.Close()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	scheduler, err := jobs.NewScheduler(app.config.NoncePurgeSchedule, app.nonces, app.clock, app.metrics, app.logger)
	if err != nil {
		return err
	}

	router := httpapi.NewRouter(httpapi.Deps{
		Auth:           app.auth,
		Users:          app.users,
		Ledger:         app.ledger,
		Friends:        app.friends,
		Metrics:        app.metrics,
		Logger:         app.logger,
		AllowedOrigins: app.config.AllowedOrigins(),
		AuthRateLimit:  app.config.AuthRateLimit,
	})

	runners := map[string]runner{
		"http server":   httpapi.NewServer(app.config.EndpointAddrHTTP, router, app.logger),
		"grpc health":   gs.NewHealthServer(app.config.EndpointAddrGRPC, healthServiceName, app.logger, app.pingers...),
		"job scheduler": scheduler,
	}

	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	for name, r := range runners {
		wg.Add(1)
		go func() {
			defer wg.Done()
			app.start(ctx, cancelFunc, name, r, func(err error) {
				once.Do(func() { firstErr = err })
			})
		}()
	}

	wg.Wait()
	app.logger.Info(context.WithoutCancel(ctx), "App stopped")
	return firstErr
}
