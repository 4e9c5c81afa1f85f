package app

import (
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Config is the application specific configuration found under the "app" key.
// It is passed to App.Init, and should be decoded with mapstructure.
type Config map[string]interface{}

// BaseConfig contains the process level configuration shared by every App
type BaseConfig struct {
	LogLevel string `mapstructure:"log_level"`

	AppName string `mapstructure:"app_name"`

	// ListenAddress serves the gRPC health service
	ListenAddress      string `mapstructure:"listen_address"`
	DebugListenAddress string `mapstructure:"debug_listen_address"`

	ShutdownGracePeriod time.Duration `mapstructure:"shutdown_grace_period"`

	EnablePprof  bool `mapstructure:"enable_pprof"`
	EnableExpvar bool `mapstructure:"enable_expvar"`

	// Ballast for improving Go GC performance. Capacity is a fraction of total
	// memory, and is limited to 50%.
	EnableBallast   bool    `mapstructure:"enable_ballast"`
	BallastCapacity float32 `mapstructure:"ballast_capacity"`

	// Periodically terminate the application when there's a memory leak
	EnableMemoryLeakCron   bool   `mapstructure:"enable_memory_leak_cron"`
	MemoryLeakCronSchedule string `mapstructure:"memory_leak_cron_schedule"`

	NewRelicLicenseKey string `mapstructure:"new_relic_license_key"`

	AppConfig Config `mapstructure:"app"`
}

const maxBallastCapacity = 0.5

var defaultConfig = BaseConfig{
	LogLevel: "info",

	AppName: "vesting-server",

	ListenAddress:      ":8085",
	DebugListenAddress: ":8123",

	ShutdownGracePeriod: 30 * time.Second,

	EnablePprof:  true,
	EnableExpvar: true,

	EnableBallast:   false,
	BallastCapacity: 0.25,

	EnableMemoryLeakCron:   false,
	MemoryLeakCronSchedule: "0 5 * * *",
}

// envBindings maps config keys to the environment variables overriding them
var envBindings = map[string]string{
	"log_level":                 "LOG_LEVEL",
	"app_name":                  "APP_NAME",
	"listen_address":            "LISTEN_ADDRESS",
	"debug_listen_address":      "DEBUG_LISTEN_ADDRESS",
	"shutdown_grace_period":     "SHUTDOWN_GRACE_PERIOD",
	"enable_pprof":              "ENABLE_PPROF",
	"enable_expvar":             "ENABLE_EXPVAR",
	"enable_ballast":            "ENABLE_BALLAST",
	"ballast_capacity":          "BALLAST_CAPACITY",
	"enable_memory_leak_cron":   "ENABLE_MEMORY_LEAK_CRON",
	"memory_leak_cron_schedule": "MEMORY_LEAK_CRON_SCHEDULE",
	"new_relic_license_key":     "NEW_RELIC_LICENSE_KEY",
}

// loadConfig reads the base config from v. The config file is optional, and
// environment variables take precedence over it.
func loadConfig(v *viper.Viper, configPath string) (BaseConfig, error) {
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return BaseConfig{}, errors.Wrapf(err, "error binding %s", env)
		}
	}

	if len(configPath) > 0 {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return BaseConfig{}, errors.Wrapf(err, "error reading config file %s", configPath)
		}
	}

	config := defaultConfig
	if err := v.Unmarshal(&config); err != nil {
		return BaseConfig{}, errors.Wrap(err, "error decoding config")
	}

	if len(config.AppName) == 0 {
		return BaseConfig{}, errors.New("must specify an application name")
	}
	if config.BallastCapacity < 0 {
		return BaseConfig{}, errors.New("ballast capacity must be positive")
	}
	if config.BallastCapacity > maxBallastCapacity {
		config.BallastCapacity = maxBallastCapacity
	}
	if config.ShutdownGracePeriod <= 0 {
		return BaseConfig{}, errors.New("shutdown grace period must be positive")
	}

	return config, nil
}
