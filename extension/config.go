package extension

import "time"

// Config holds the Matrix extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.matrix" or "matrix" keys).
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// ProcessorInterval is how frequently the background processor drains
	// the enrollment queue (default: 2m).
	ProcessorInterval time.Duration `json:"processor_interval" mapstructure:"processor_interval" yaml:"processor_interval"`

	// BatchSize is the maximum number of enrollment events consumed per
	// processor run (default: 24).
	BatchSize int `json:"batch_size" mapstructure:"batch_size" yaml:"batch_size"`

	// DispatchBuffer is the capacity of the withdrawal dispatch queue
	// (default: 1024).
	DispatchBuffer int `json:"dispatch_buffer" mapstructure:"dispatch_buffer" yaml:"dispatch_buffer"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ProcessorInterval: 2 * time.Minute,
		BatchSize:         24,
		DispatchBuffer:    1024,
	}
}
