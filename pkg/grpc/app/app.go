package app

import (
	"expvar"
	"flag"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	grpc_middleware "github.com/grpc-ecosystem/go-grpc-middleware"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthgrpc "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/code-payments/code-vesting/pkg/grpc/metrics"
	metrics_util "github.com/code-payments/code-vesting/pkg/metrics"
	"github.com/code-payments/code-vesting/pkg/osutil"
)

// App is a long lived application that services network requests.
// Every App gets a gRPC server exposing the health service. Apps serving
// other transports, like HTTP, start them in Init.
//
// The lifecycle of the App is tied to the process. The app gets initialized
// before the gRPC server runs, and gets stopped after the gRPC server has stopped
// serving.
type App interface {
	// Init initializes the application in a blocking fashion. When Init returns, it
	// is expected that the application is ready to start receiving requests.
	//
	// metricsProvider is nil when New Relic isn't configured.
	Init(config Config, metricsProvider *newrelic.Application) error

	// RegisterWithGRPC provides a mechanism for the application to register gRPC services
	// with the gRPC server.
	RegisterWithGRPC(server *grpc.Server)

	// ShutdownChan returns a channel that is closed when the application is shutdown.
	//
	// If the channel is closed, the gRPC server will initiate a shutdown if it has
	// not already done so.
	ShutdownChan() <-chan struct{}

	// Stop stops the service, allowing for it to clean up any resources. When Stop()
	// returns, the process exits.
	//
	// Stop should be idempotent.
	Stop()
}

var (
	configPath = flag.String("config", "config.yaml", "configuration file path")

	osSigCh = make(chan os.Signal, 1)
)

func init() {
	signal.Notify(osSigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGHUP)
}

// Run initializes the app and blocks until a shutdown condition is met. Fatal
// startup errors terminate the process.
func Run(app App) error {
	flag.Parse()

	logger := logrus.StandardLogger().WithField("type", "grpc/app")

	path := *configPath
	if _, err := os.Stat(path); os.IsNotExist(err) {
		path = ""
	} else if err != nil {
		logger.WithError(err).Error("failed to check if config exists")
		os.Exit(1)
	}

	config, err := loadConfig(viper.GetViper(), path)
	if err != nil {
		logger.WithError(err).Error("failed to load config")
		os.Exit(1)
	}

	metricsProvider, err := newMetricsProvider(config)
	if err != nil {
		logger.WithError(err).Error("error connecting to new relic")
		os.Exit(1)
	}

	configureLogger(config, metricsProvider)

	// pprof and expvar register on the default mux in their init(), so reset
	// it to keep them off any public listener
	http.DefaultServeMux = http.NewServeMux()
	startDebugServer(logger, config)

	ballast := allocateBallast(config)

	memoryLeakShutdownCh := make(chan struct{})
	if config.EnableMemoryLeakCron {
		if err := startMemoryLeakCron(config.MemoryLeakCronSchedule, memoryLeakShutdownCh); err != nil {
			logger.WithError(err).Error("failed to initialize memory leak cron")
			os.Exit(1)
		}
	}

	lis, err := net.Listen("tcp", config.ListenAddress)
	if err != nil {
		logger.WithError(err).Errorf("failed to listen on %s", config.ListenAddress)
		os.Exit(1)
	}

	if err := app.Init(config.AppConfig, metricsProvider); err != nil {
		logger.WithError(err).Error("failed to initialize application")
		os.Exit(1)
	}

	server := newGRPCServer(metricsProvider)
	app.RegisterWithGRPC(server)

	serverShutdownCh := make(chan struct{})
	go func() {
		if err := server.Serve(lis); err != nil {
			logger.WithError(err).Error("grpc serve stopped")
		} else {
			logger.Info("grpc server stopped")
		}

		close(serverShutdownCh)
	}()

	select {
	case <-osSigCh:
		logger.Info("interrupt received, shutting down")
	case <-serverShutdownCh:
		logger.Info("grpc server shutdown")
	case <-memoryLeakShutdownCh:
		logger.Info("shutdown to deal with memory leak")
	case <-app.ShutdownChan():
		logger.Info("app shutdown")
	}

	shutdownCh := make(chan struct{})
	go func() {
		// Both shutdown methods are idempotent, regardless of the shutdown condition
		server.GracefulStop()
		app.Stop()

		close(shutdownCh)
	}()

	select {
	case <-shutdownCh:
		// Keep the ballast reachable until exit
		if len(ballast) > 0 {
			ballast[0] = 1
		}

		return nil
	case <-time.After(config.ShutdownGracePeriod):
		return errors.Errorf("failed to stop the application within %v", config.ShutdownGracePeriod)
	}
}

func newMetricsProvider(config BaseConfig) (*newrelic.Application, error) {
	if len(config.NewRelicLicenseKey) == 0 {
		return nil, nil
	}

	return newrelic.NewApplication(
		newrelic.ConfigFromEnvironment(),
		newrelic.ConfigAppName(config.AppName),
		newrelic.ConfigLicense(config.NewRelicLicenseKey),
		newrelic.ConfigDistributedTracerEnabled(true),
		newrelic.ConfigAppLogForwardingEnabled(true),
	)
}

// newGRPCServer returns a server exposing the health service. The metrics
// interceptors are installed when a metrics provider is available.
func newGRPCServer(metricsProvider *newrelic.Application) *grpc.Server {
	var unaryInterceptors []grpc.UnaryServerInterceptor
	var streamInterceptors []grpc.StreamServerInterceptor
	if metricsProvider != nil {
		unaryInterceptors = append(unaryInterceptors, metrics.CustomNewRelicUnaryServerInterceptor(metricsProvider))
		streamInterceptors = append(streamInterceptors, metrics.CustomNewRelicStreamServerInterceptor(metricsProvider))
	}

	server := grpc.NewServer(
		grpc_middleware.WithUnaryServerChain(unaryInterceptors...),
		grpc_middleware.WithStreamServerChain(streamInterceptors...),
	)
	healthgrpc.RegisterHealthServer(server, health.NewServer())
	return server
}

func newDebugMux(config BaseConfig) *http.ServeMux {
	mux := http.NewServeMux()
	if config.EnableExpvar {
		mux.Handle("/debug/vars", expvar.Handler())
	}
	if config.EnablePprof {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	return mux
}

func startDebugServer(logger *logrus.Entry, config BaseConfig) {
	if !config.EnableExpvar && !config.EnablePprof {
		return
	}

	mux := newDebugMux(config)
	go func() {
		for {
			if err := http.ListenAndServe(config.DebugListenAddress, mux); err != nil {
				logger.WithError(err).Warn("debug http server failed, retrying in 5s")
			}
			time.Sleep(5 * time.Second)
		}
	}()
}

func allocateBallast(config BaseConfig) []byte {
	if !config.EnableBallast {
		return nil
	}

	size := uint64(config.BallastCapacity * float32(osutil.GetTotalMemory()))
	return make([]byte, size)
}

// startMemoryLeakCron closes shutdownCh the first time the schedule fires
func startMemoryLeakCron(schedule string, shutdownCh chan struct{}) error {
	cronJob := cron.New(cron.WithLocation(time.Local))

	var once sync.Once
	_, err := cronJob.AddFunc(schedule, func() {
		once.Do(func() {
			close(shutdownCh)
		})
	})
	if err != nil {
		return err
	}

	cronJob.Start()
	return nil
}

func configureLogger(config BaseConfig, metricsProvider *newrelic.Application) {
	if metricsProvider != nil {
		logrus.SetFormatter(metrics_util.NewCustomNewRelicLogFormatter(metricsProvider, &logrus.JSONFormatter{}))
	} else {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}

	level, err := logrus.ParseLevel(strings.ToLower(config.LogLevel))
	if err != nil {
		logrus.StandardLogger().WithField("log_level", config.LogLevel).Warn("unknown log level, ignoring")
	} else {
		logrus.SetLevel(level)
	}

	logrus.SetOutput(os.Stdout)
}
