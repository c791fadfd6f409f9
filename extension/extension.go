// Package extension provides the Forge extension adapter for Matrix.
//
// It implements the forge.Extension interface to integrate Matrix
// into a Forge application with automatic dependency discovery,
// DI registration, and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.matrix" or "matrix" keys.
package extension

import (
	"context"
	"errors"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	matrix "github.com/xraph/matrix"
	"github.com/xraph/matrix/store"
	"github.com/xraph/matrix/store/memory"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "matrix"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Forced-matrix placement and payout engine"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts Matrix as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *matrix.Engine
	store      store.Store
	engineOpts []matrix.Option
}

// New creates a new Matrix Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying Matrix engine.
// This is nil until Register is called.
func (e *Extension) Engine() *matrix.Engine { return e.engine }

// Register implements [forge.Extension]. It loads configuration,
// initializes the matrix engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	// Use memory store if no store was provided programmatically.
	if e.store == nil {
		e.store = memory.New()
	}

	opts := e.buildEngineOpts()

	eng := matrix.New(e.store, opts...)
	e.engine = eng

	return vessel.Provide(fapp.Container(), func() (*matrix.Engine, error) {
		return e.engine, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("matrix: extension not initialized")
	}

	if !e.config.DisableMigrate {
		if err := e.engine.Start(ctx); err != nil {
			return err
		}
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.engine != nil {
		if err := e.engine.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("matrix: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildEngineOpts constructs matrix.Option values from the resolved config.
func (e *Extension) buildEngineOpts() []matrix.Option {
	opts := make([]matrix.Option, 0, len(e.engineOpts)+3)

	if e.config.ProcessorInterval > 0 {
		opts = append(opts, matrix.WithProcessorInterval(e.config.ProcessorInterval))
	}
	if e.config.BatchSize > 0 {
		opts = append(opts, matrix.WithBatchSize(e.config.BatchSize))
	}
	if e.config.DispatchBuffer > 0 {
		opts = append(opts, matrix.WithDispatchBuffer(e.config.DispatchBuffer))
	}

	// Append any pass-through engine options.
	opts = append(opts, e.engineOpts...)

	return opts
}

// --- Config Loading (mirrors grove/shield extension pattern) ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	// Try loading from config file.
	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("matrix: configuration is required but not found in config files; " +
				"ensure 'extensions.matrix' or 'matrix' key exists in your config")
		}

		e.config = e.mergeWithDefaults(programmaticConfig)
	} else {
		e.config = e.mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("matrix: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("processor_interval", e.config.ProcessorInterval),
		forge.F("batch_size", e.config.BatchSize),
		forge.F("dispatch_buffer", e.config.DispatchBuffer),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	// Try "extensions.matrix" first (namespaced pattern).
	if cm.IsSet("extensions.matrix") {
		if err := cm.Bind("extensions.matrix", &cfg); err == nil {
			e.Logger().Debug("matrix: loaded config from file",
				forge.F("key", "extensions.matrix"),
			)
			return cfg, true
		}
		e.Logger().Warn("matrix: failed to bind extensions.matrix config",
			forge.F("error", "bind failed"),
		)
	}

	// Try legacy "matrix" key.
	if cm.IsSet("matrix") {
		if err := cm.Bind("matrix", &cfg); err == nil {
			e.Logger().Debug("matrix: loaded config from file",
				forge.F("key", "matrix"),
			)
			return cfg, true
		}
		e.Logger().Warn("matrix: failed to bind matrix config",
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func (e *Extension) mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.ProcessorInterval == 0 {
		cfg.ProcessorInterval = defaults.ProcessorInterval
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = defaults.BatchSize
	}
	if cfg.DispatchBuffer == 0 {
		cfg.DispatchBuffer = defaults.DispatchBuffer
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic bool flags fill gaps.
func (e *Extension) mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}

	if yamlConfig.ProcessorInterval == 0 && programmaticConfig.ProcessorInterval != 0 {
		yamlConfig.ProcessorInterval = programmaticConfig.ProcessorInterval
	}
	if yamlConfig.BatchSize == 0 && programmaticConfig.BatchSize != 0 {
		yamlConfig.BatchSize = programmaticConfig.BatchSize
	}
	if yamlConfig.DispatchBuffer == 0 && programmaticConfig.DispatchBuffer != 0 {
		yamlConfig.DispatchBuffer = programmaticConfig.DispatchBuffer
	}

	return e.mergeWithDefaults(yamlConfig)
}
