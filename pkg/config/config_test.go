package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := GetDefaultConfig()

	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, "stdout", cfg.Logging.Output)
	assert.Equal(t, 4096, cfg.Enclave.BlockSize)
	assert.Equal(t, "auto", cfg.Enclave.Cipher)
	assert.Equal(t, "filesystem", cfg.Persistence.Type)
	assert.Equal(t, "/var/lib/sgxfs/dump", cfg.Persistence.Filesystem["path"])
	assert.Equal(t, "sgxfs", cfg.Adapters.Fuse.FSName)
}

func TestLevelNormalization(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Level = "debug"
	ApplyDefaults(cfg)
	assert.Equal(t, "DEBUG", cfg.Logging.Level)
}

func validConfig() *Config {
	cfg := GetDefaultConfig()
	cfg.Enclave.KeyFile = "/etc/sgxfs/sealing.key"
	cfg.Adapters.Fuse.Mountpoint = "/mnt/sgxfs"
	return cfg
}

func TestValidateAcceptsDefaults(t *testing.T) {
	assert.NoError(t, Validate(validConfig()))
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(cfg *Config)
	}{
		{"missing key file", func(cfg *Config) { cfg.Enclave.KeyFile = "" }},
		{"bad log level", func(cfg *Config) { cfg.Logging.Level = "LOUD" }},
		{"bad cipher", func(cfg *Config) { cfg.Enclave.Cipher = "rot13" }},
		{"block size too small", func(cfg *Config) { cfg.Enclave.BlockSize = 256 }},
		{"block size not power of two", func(cfg *Config) { cfg.Enclave.BlockSize = 5000 }},
		{"bad persistence type", func(cfg *Config) { cfg.Persistence.Type = "tape" }},
		{"badger without db_path", func(cfg *Config) { cfg.Persistence.Type = "badger" }},
		{"s3 without bucket", func(cfg *Config) {
			cfg.Persistence.Type = "s3"
			cfg.Persistence.S3["region"] = "eu-west-1"
		}},
		{"s3 without region", func(cfg *Config) {
			cfg.Persistence.Type = "s3"
			cfg.Persistence.S3["bucket"] = "dumps"
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			assert.Error(t, Validate(cfg))
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `
logging:
  level: debug
enclave:
  block_size: 8192
  cipher: chacha20-poly1305
  key_file: /tmp/key
persistence:
  type: badger
  badger:
    db_path: /tmp/db
adapters:
  fuse:
    mountpoint: /mnt/test
    read_only: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.Equal(t, 8192, cfg.Enclave.BlockSize)
	assert.Equal(t, "chacha20-poly1305", cfg.Enclave.Cipher)
	assert.Equal(t, "badger", cfg.Persistence.Type)
	assert.Equal(t, "/tmp/db", cfg.Persistence.Badger["db_path"])
	assert.Equal(t, "/mnt/test", cfg.Adapters.Fuse.Mountpoint)
	assert.True(t, cfg.Adapters.Fuse.ReadOnly)
	// Unspecified fields fall back to defaults
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `
enclave:
  block_size: 1000
  key_file: /tmp/key
adapters:
  fuse:
    mountpoint: /mnt/test
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	_, err := Load(path)
	assert.Error(t, err)
}
