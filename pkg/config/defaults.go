package config

import "strings"

// ApplyDefaults sets default values for any unspecified configuration
// fields.
//
// Zero values (0, "", false, nil) are replaced with defaults; explicit
// values are preserved. Backend-specific defaults are handled by the
// backend factories.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyEnclaveDefaults(&cfg.Enclave)
	applyPersistenceDefaults(&cfg.Persistence)
	applyAdaptersDefaults(&cfg.Adapters)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyEnclaveDefaults sets enclave defaults.
func applyEnclaveDefaults(cfg *EnclaveConfig) {
	if cfg.BlockSize == 0 {
		cfg.BlockSize = 4096
	}
	if cfg.Cipher == "" {
		cfg.Cipher = "auto"
	}
	// KeyFile has no default: the sealing key location must be explicit.
}

// applyPersistenceDefaults sets persistence backend defaults.
func applyPersistenceDefaults(cfg *PersistenceConfig) {
	if cfg.Type == "" {
		cfg.Type = "filesystem"
	}

	if cfg.Filesystem == nil {
		cfg.Filesystem = make(map[string]any)
	}
	if cfg.Badger == nil {
		cfg.Badger = make(map[string]any)
	}
	if cfg.S3 == nil {
		cfg.S3 = make(map[string]any)
	}

	if _, ok := cfg.Filesystem["path"]; !ok {
		cfg.Filesystem["path"] = "/var/lib/sgxfs/dump"
	}
}

// applyAdaptersDefaults sets adapter defaults.
func applyAdaptersDefaults(cfg *AdaptersConfig) {
	if cfg.Fuse.FSName == "" {
		cfg.Fuse.FSName = "sgxfs"
	}
	// Mountpoint has no default: it comes from the command line or the
	// config file, never implicitly.
}

// GetDefaultConfig returns a Config struct with all default values
// applied. Useful for generating sample configuration files and for
// tests.
func GetDefaultConfig() *Config {
	cfg := &Config{
		Persistence: PersistenceConfig{
			Filesystem: make(map[string]any),
			Badger:     make(map[string]any),
			S3:         make(map[string]any),
		},
	}
	ApplyDefaults(cfg)
	return cfg
}
