package main

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	v3 "go.etcd.io/etcd/client/v3"
	xrate "golang.org/x/time/rate"
	"google.golang.org/grpc"

	code_data "github.com/code-payments/code-vesting/pkg/code/data"
	"github.com/code-payments/code-vesting/pkg/code/ledger"
	web "github.com/code-payments/code-vesting/pkg/code/server/web/vesting"
	"github.com/code-payments/code-vesting/pkg/code/vesting"
	pg "github.com/code-payments/code-vesting/pkg/database/postgres"
	"github.com/code-payments/code-vesting/pkg/grpc/app"
	"github.com/code-payments/code-vesting/pkg/lock"
	lock_etcd "github.com/code-payments/code-vesting/pkg/lock/etcd"
	"github.com/code-payments/code-vesting/pkg/rate"
)

type vestingApp struct {
	log *logrus.Entry

	httpServer  *fiber.App
	etcdClient  *v3.Client
	lockManager *lock_etcd.LockManager

	shutdownOnce sync.Once
	shutdownCh   chan struct{}
}

func main() {
	if err := app.Run(&vestingApp{
		log:        logrus.StandardLogger().WithField("type", "vesting-server"),
		shutdownCh: make(chan struct{}),
	}); err != nil {
		logrus.StandardLogger().WithError(err).Fatal("error running service")
	}
}

// Init implements app.App.Init
func (a *vestingApp) Init(appConfig app.Config, metricsProvider *newrelic.Application) error {
	cfg, err := loadConfig(appConfig)
	if err != nil {
		return err
	}

	dataProvider, err := newDataProvider(cfg)
	if err != nil {
		return err
	}

	vestingConfig := vesting.WithEnvConfigs()

	var distributedLocks lock.Manager
	if vestingConfig.IsDistributedLockEnabled(context.Background()) {
		if len(cfg.EtcdEndpoints) == 0 {
			return errors.New("etcd endpoints are required for distributed locking")
		}

		a.etcdClient, err = v3.New(v3.Config{
			Endpoints:   cfg.EtcdEndpoints,
			DialTimeout: 5 * time.Second,
		})
		if err != nil {
			return errors.Wrap(err, "error creating etcd client")
		}

		a.lockManager, err = lock_etcd.NewLockManager(a.etcdClient, cfg.EtcdLockRoot, cfg.etcdLockTTL(), uuid.NewString())
		if err != nil {
			return errors.Wrap(err, "error creating lock manager")
		}
		distributedLocks = a.lockManager
	}

	tokenLedger := ledger.New(dataProvider)

	program, err := vesting.NewProgram(dataProvider, tokenLedger, vesting.SystemClock{}, distributedLocks, vestingConfig)
	if err != nil {
		return err
	}

	var limiter rate.Limiter = &rate.NoLimiter{}
	if cfg.RateLimitPerSecond > 0 {
		limiter = rate.NewLocalRateLimiter(xrate.Limit(cfg.RateLimitPerSecond))
	}

	server := web.NewVestingServer(program, vesting.NewProcessor(program), tokenLedger, limiter, metricsProvider)
	a.httpServer = server.App()

	go func() {
		a.log.WithField("address", cfg.HttpListenAddress).Info("starting http server")
		if err := a.httpServer.Listen(cfg.HttpListenAddress); err != nil {
			a.log.WithError(err).Warn("http server stopped")
		}
		a.shutdown()
	}()

	return nil
}

func newDataProvider(cfg *config) (code_data.Provider, error) {
	if cfg.DataStore == dataStoreMemory {
		return code_data.NewTestDataProvider(), nil
	}

	dataProvider, err := code_data.NewDataProvider(context.Background(), &pg.Config{
		User:               cfg.PostgresUser,
		Host:               cfg.PostgresHost,
		Password:           cfg.PostgresPassword,
		Port:               cfg.PostgresPort,
		DbName:             cfg.PostgresDbName,
		MaxOpenConnections: cfg.PostgresMaxOpen,
		MaxIdleConnections: cfg.PostgresMaxIdle,
		SSLMode:            cfg.PostgresSSLMode,
		UseAwsIam:          cfg.PostgresAwsIam,
	})
	if err != nil {
		return nil, errors.Wrap(err, "error creating data provider")
	}

	if cfg.ApplySchema {
		if err := dataProvider.ApplySchema(context.Background()); err != nil {
			return nil, err
		}
	}

	return dataProvider, nil
}

// RegisterWithGRPC implements app.App.RegisterWithGRPC. Only the health
// service is served over gRPC.
func (a *vestingApp) RegisterWithGRPC(server *grpc.Server) {
}

// ShutdownChan implements app.App.ShutdownChan
func (a *vestingApp) ShutdownChan() <-chan struct{} {
	return a.shutdownCh
}

// Stop implements app.App.Stop
func (a *vestingApp) Stop() {
	if a.httpServer != nil {
		if err := a.httpServer.ShutdownWithTimeout(10 * time.Second); err != nil {
			a.log.WithError(err).Warn("failure shutting down http server")
		}
	}

	if a.lockManager != nil {
		a.lockManager.Close()
	}

	if a.etcdClient != nil {
		if err := a.etcdClient.Close(); err != nil {
			a.log.WithError(err).Warn("failure closing etcd client")
		}
	}

	a.shutdown()
}

func (a *vestingApp) shutdown() {
	a.shutdownOnce.Do(func() {
		close(a.shutdownCh)
	})
}
