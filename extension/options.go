package extension

import (
	"time"

	matrix "github.com/xraph/matrix"
	"github.com/xraph/matrix/plugin"
	"github.com/xraph/matrix/store"
)

// Option configures the Matrix Forge extension.
type Option func(*Extension)

// WithStore sets the store for the matrix engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithEngineOption passes a matrix.Option through to the underlying engine.
func WithEngineOption(opt matrix.Option) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, opt)
	}
}

// WithPlugin registers a matrix plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, matrix.WithPlugin(p))
	}
}

// WithDispatcher sets the external withdrawal dispatcher.
func WithDispatcher(d matrix.WithdrawalDispatcher) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, matrix.WithDispatcher(d))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithProcessorInterval sets how frequently the queue processor runs.
func WithProcessorInterval(d time.Duration) Option {
	return func(e *Extension) { e.config.ProcessorInterval = d }
}

// WithBatchSize sets the maximum number of events consumed per run.
func WithBatchSize(n int) Option {
	return func(e *Extension) { e.config.BatchSize = n }
}

// WithDispatchBuffer sets the withdrawal dispatch queue capacity.
func WithDispatchBuffer(n int) Option {
	return func(e *Extension) { e.config.DispatchBuffer = n }
}
