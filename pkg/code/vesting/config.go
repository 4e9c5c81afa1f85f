package vesting

import (
	"context"

	"github.com/code-payments/code-vesting/pkg/config"
	"github.com/code-payments/code-vesting/pkg/config/env"
	"github.com/code-payments/code-vesting/pkg/config/memory"
	"github.com/code-payments/code-vesting/pkg/config/wrapper"
	vesting_program "github.com/code-payments/code-vesting/pkg/solana/vesting"
)

const (
	envConfigPrefix = "VESTING_PROGRAM_"

	ProgramIdConfigEnvName = envConfigPrefix + "PROGRAM_ID"
	defaultProgramId       = vesting_program.PROGRAM_ADDRESS_BASE58

	LockStripesConfigEnvName = envConfigPrefix + "LOCK_STRIPES"
	defaultLockStripes       = 1024

	EnableDistributedLockConfigEnvName = envConfigPrefix + "ENABLE_DISTRIBUTED_LOCK"
	defaultEnableDistributedLock       = false

	AddressCacheSizeConfigEnvName = envConfigPrefix + "ADDRESS_CACHE_SIZE"
	defaultAddressCacheSize       = 10_000
)

type conf struct {
	programId             config.String
	lockStripes           config.Uint64
	enableDistributedLock config.Bool
	addressCacheSize      config.Uint64
}

// ConfigProvider defines how config values are pulled
type ConfigProvider func() *conf

// WithEnvConfigs returns configuration pulled from environment variables
func WithEnvConfigs() ConfigProvider {
	return func() *conf {
		return &conf{
			programId:             env.NewStringConfig(ProgramIdConfigEnvName, defaultProgramId),
			lockStripes:           env.NewUint64Config(LockStripesConfigEnvName, defaultLockStripes),
			enableDistributedLock: env.NewBoolConfig(EnableDistributedLockConfigEnvName, defaultEnableDistributedLock),
			addressCacheSize:      env.NewUint64Config(AddressCacheSizeConfigEnvName, defaultAddressCacheSize),
		}
	}
}

// IsDistributedLockEnabled returns whether operations also take the contract's
// distributed lock
func (p ConfigProvider) IsDistributedLockEnabled(ctx context.Context) bool {
	return p().enableDistributedLock.Get(ctx)
}

type testOverrides struct {
	programId             string
	lockStripes           uint64
	enableDistributedLock bool
	addressCacheSize      uint64
}

func withManualTestOverrides(overrides *testOverrides) ConfigProvider {
	return func() *conf {
		programId := overrides.programId
		if len(programId) == 0 {
			programId = defaultProgramId
		}

		lockStripes := overrides.lockStripes
		if lockStripes == 0 {
			lockStripes = defaultLockStripes
		}

		addressCacheSize := overrides.addressCacheSize
		if addressCacheSize == 0 {
			addressCacheSize = defaultAddressCacheSize
		}

		return &conf{
			programId:             wrapper.NewStringConfig(memory.NewConfig(programId), defaultProgramId),
			lockStripes:           wrapper.NewUint64Config(memory.NewConfig(lockStripes), defaultLockStripes),
			enableDistributedLock: wrapper.NewBoolConfig(memory.NewConfig(overrides.enableDistributedLock), defaultEnableDistributedLock),
			addressCacheSize:      wrapper.NewUint64Config(memory.NewConfig(addressCacheSize), defaultAddressCacheSize),
		}
	}
}
