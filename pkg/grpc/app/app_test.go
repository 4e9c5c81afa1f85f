package app

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthgrpc "google.golang.org/grpc/health/grpc_health_v1"
)

func TestLoadConfig_Defaults(t *testing.T) {
	config, err := loadConfig(viper.New(), "")
	require.NoError(t, err)

	assert.Equal(t, defaultConfig.AppName, config.AppName)
	assert.Equal(t, defaultConfig.ListenAddress, config.ListenAddress)
	assert.Equal(t, defaultConfig.ShutdownGracePeriod, config.ShutdownGracePeriod)
	assert.False(t, config.EnableBallast)
	assert.Empty(t, config.AppConfig)
}

func TestLoadConfig_FileAndEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log_level: debug
listen_address: ":9000"
ballast_capacity: 0.9
shutdown_grace_period: 5s
app:
  http_listen_address: ":9090"
  data_store: postgres
`), 0o600))

	t.Setenv("APP_NAME", "vesting-server-test")
	t.Setenv("LISTEN_ADDRESS", ":9100")

	config, err := loadConfig(viper.New(), path)
	require.NoError(t, err)

	assert.Equal(t, "debug", config.LogLevel)
	assert.Equal(t, "vesting-server-test", config.AppName)
	assert.Equal(t, ":9100", config.ListenAddress)
	assert.Equal(t, 5*time.Second, config.ShutdownGracePeriod)
	assert.EqualValues(t, maxBallastCapacity, config.BallastCapacity)
	assert.Equal(t, ":9090", config.AppConfig["http_listen_address"])
	assert.Equal(t, "postgres", config.AppConfig["data_store"])
}

func TestLoadConfig_Invalid(t *testing.T) {
	_, err := loadConfig(viper.New(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	t.Setenv("SHUTDOWN_GRACE_PERIOD", "0s")
	_, err = loadConfig(viper.New(), "")
	assert.Error(t, err)
}

func TestNewDebugMux(t *testing.T) {
	mux := newDebugMux(BaseConfig{EnableExpvar: true})

	recorder := httptest.NewRecorder()
	mux.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/debug/vars", nil))
	assert.Equal(t, http.StatusOK, recorder.Code)

	recorder = httptest.NewRecorder()
	mux.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil))
	assert.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestNewGRPCServer_Health(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	server := newGRPCServer(nil)
	go func() {
		_ = server.Serve(lis)
	}()
	defer server.Stop()

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := healthgrpc.NewHealthClient(conn).Check(ctx, &healthgrpc.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthgrpc.HealthCheckResponse_SERVING, resp.Status)
}

func TestStartMemoryLeakCron_InvalidSchedule(t *testing.T) {
	assert.Error(t, startMemoryLeakCron("not a schedule", make(chan struct{})))
}
