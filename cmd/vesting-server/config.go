package main

import (
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"

	"github.com/code-payments/code-vesting/pkg/grpc/app"
)

const (
	dataStoreMemory   = "memory"
	dataStorePostgres = "postgres"
)

type config struct {
	HttpListenAddress string `mapstructure:"http_listen_address"`

	// Requests per second allowed per client IP. Zero disables rate limiting.
	RateLimitPerSecond float64 `mapstructure:"rate_limit_per_second"`

	DataStore        string `mapstructure:"data_store"`
	PostgresUser     string `mapstructure:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password"`
	PostgresHost     string `mapstructure:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port"`
	PostgresDbName   string `mapstructure:"postgres_db_name"`
	PostgresMaxOpen  int    `mapstructure:"postgres_max_open_connections"`
	PostgresMaxIdle  int    `mapstructure:"postgres_max_idle_connections"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode"`
	PostgresAwsIam   bool   `mapstructure:"postgres_aws_iam"`
	ApplySchema      bool   `mapstructure:"apply_schema"`

	// Required when VESTING_PROGRAM_ENABLE_DISTRIBUTED_LOCK is set
	EtcdEndpoints      []string `mapstructure:"etcd_endpoints"`
	EtcdLockRoot       string   `mapstructure:"etcd_lock_root"`
	EtcdLockTTLSeconds int      `mapstructure:"etcd_lock_ttl_seconds"`
}

var defaultConfig = config{
	HttpListenAddress: ":8080",

	RateLimitPerSecond: 50,

	DataStore:    dataStoreMemory,
	PostgresPort: 5432,

	EtcdLockRoot:       "/vesting/locks",
	EtcdLockTTLSeconds: 10,
}

func loadConfig(appConfig app.Config) (*config, error) {
	cfg := defaultConfig
	if err := mapstructure.WeakDecode(appConfig, &cfg); err != nil {
		return nil, errors.Wrap(err, "invalid app config")
	}

	switch cfg.DataStore {
	case dataStoreMemory, dataStorePostgres:
	default:
		return nil, errors.Errorf("unsupported data store: %s", cfg.DataStore)
	}

	if cfg.RateLimitPerSecond < 0 {
		return nil, errors.New("rate limit cannot be negative")
	}

	return &cfg, nil
}

func (c *config) etcdLockTTL() time.Duration {
	return time.Duration(c.EtcdLockTTLSeconds) * time.Second
}
