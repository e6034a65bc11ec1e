package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config represents the complete sgx-fs host configuration.
//
// This structure captures all configurable aspects of the host binary:
//   - Logging configuration
//   - Enclave parameters (block size, cipher suite, sealing key)
//   - Persistence backend selection and backend-specific options
//   - Kernel bridge adapter configuration
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (SGXFS_*)
//  3. Configuration file (YAML)
//  4. Default values (lowest priority)
//
// Persistence backends follow the store-configuration pattern: the Type
// field selects the implementation and only the matching option map is
// decoded, by the backend's factory.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging"`

	// Enclave contains the trusted-side parameters
	Enclave EnclaveConfig `mapstructure:"enclave"`

	// Persistence specifies the dump/restore backend and its options
	Persistence PersistenceConfig `mapstructure:"persistence"`

	// Adapters contains kernel bridge adapter configurations
	Adapters AdaptersConfig `mapstructure:"adapters"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required"`
}

// EnclaveConfig contains the trusted-side parameters.
type EnclaveConfig struct {
	// BlockSize is the plaintext capacity of a sealed block in bytes.
	// A power of two between 512 and 1 MiB.
	BlockSize int `mapstructure:"block_size" validate:"required,gte=512,lte=1048576"`

	// Cipher selects the sealing cipher suite
	// Valid values: auto, aes-256-gcm, chacha20-poly1305
	Cipher string `mapstructure:"cipher" validate:"required,oneof=auto aes-256-gcm chacha20-poly1305"`

	// KeyFile is the path to the 32-byte sealing key. An unreadable or
	// wrong-sized key surfaces as a sealing policy failure at startup.
	KeyFile string `mapstructure:"key_file" validate:"required"`
}

// PersistenceConfig specifies the dump/restore backend.
//
// The Type field determines which backend is used. Only the corresponding
// option map is decoded.
type PersistenceConfig struct {
	// Type specifies which persistence backend to use
	// Valid values: filesystem, badger, s3, none
	Type string `mapstructure:"type" validate:"required,oneof=filesystem badger s3 none"`

	// Filesystem contains directory-tree backend options
	// Only used when Type = "filesystem"
	Filesystem map[string]any `mapstructure:"filesystem"`

	// Badger contains BadgerDB backend options
	// Only used when Type = "badger"
	Badger map[string]any `mapstructure:"badger"`

	// S3 contains S3 backend options
	// Only used when Type = "s3"
	S3 map[string]any `mapstructure:"s3"`
}

// FuseConfig configures the FUSE kernel bridge adapter.
type FuseConfig struct {
	// Mountpoint is the directory the filesystem is mounted at. May be
	// supplied on the command line instead of here.
	Mountpoint string `mapstructure:"mountpoint"`

	// FSName is the filesystem name shown in mount tables
	FSName string `mapstructure:"fs_name"`

	// AllowOther permits other users to access the mount
	AllowOther bool `mapstructure:"allow_other"`

	// ReadOnly mounts the filesystem read-only
	ReadOnly bool `mapstructure:"read_only"`
}

// AdaptersConfig contains all kernel bridge adapter configurations.
type AdaptersConfig struct {
	// Fuse contains the FUSE adapter configuration
	Fuse FuseConfig `mapstructure:"fuse"`
}

// Load loads configuration from file, environment, and defaults.
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures viper with environment variables and config file
// settings.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use the SGXFS_ prefix with underscores,
	// e.g. SGXFS_LOGGING_LEVEL=DEBUG.
	v.SetEnvPrefix("SGXFS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// AutomaticEnv alone only overrides keys the config file already
	// sets; binding the scalar keys lets Unmarshal see them without one.
	for _, key := range []string{
		"logging.level", "logging.format", "logging.output",
		"enclave.block_size", "enclave.cipher", "enclave.key_file",
		"persistence.type",
		"adapters.fuse.mountpoint", "adapters.fuse.fs_name",
		"adapters.fuse.allow_other", "adapters.fuse.read_only",
	} {
		_ = v.BindEnv(key)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// No config file is acceptable - use defaults
			return nil
		}
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to the
// current directory if the home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "sgxfs")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "sgxfs")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}
