package memory

import (
	"context"
	"sync"

	"github.com/code-payments/code-vesting/pkg/config"
)

// Config holds a config value in memory. It backs programmatic overrides and
// tests.
type Config struct {
	mu       sync.RWMutex
	value    interface{}
	err      error
	shutdown bool
}

// NewConfig returns a Config holding value. A nil value means no value is set.
func NewConfig(value interface{}) *Config {
	return &Config{value: value}
}

// Get implements config.Config.Get
func (c *Config) Get(_ context.Context) (interface{}, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	switch {
	case c.shutdown:
		return nil, config.ErrShutdown
	case c.err != nil:
		return nil, c.err
	case c.value == nil:
		return nil, config.ErrNoValue
	default:
		return c.value, nil
	}
}

// Shutdown implements config.Config.Shutdown
func (c *Config) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.shutdown = true
}

// SetValue replaces the value. Setting nil is equivalent to ClearValue.
func (c *Config) SetValue(value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.value = value
}

func (c *Config) ClearValue() {
	c.SetValue(nil)
}

// SetError makes Get fail with err until it's cleared with a nil error
func (c *Config) SetError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.err = err
}
