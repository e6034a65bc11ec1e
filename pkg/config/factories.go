package config

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/mitchellh/mapstructure"

	"github.com/dburihabwa/sgx-fs/internal/logger"
	"github.com/dburihabwa/sgx-fs/pkg/persist"
	persistBadger "github.com/dburihabwa/sgx-fs/pkg/persist/badger"
	persistFs "github.com/dburihabwa/sgx-fs/pkg/persist/fs"
	persistS3 "github.com/dburihabwa/sgx-fs/pkg/persist/s3"
	"github.com/dburihabwa/sgx-fs/pkg/sealing"
)

// CreateSealer builds the block codec from the enclave configuration.
//
// A missing or wrong-sized key file surfaces as sealing.ErrKeyUnavailable,
// which the caller treats as fatal: without the sealing key no block can
// be produced or opened.
func CreateSealer(cfg *EnclaveConfig) (sealing.Sealer, error) {
	suite, err := sealing.ParseCipherSuite(cfg.Cipher)
	if err != nil {
		return nil, err
	}

	sealer, err := sealing.NewSealer(suite, &sealing.FileKeyProvider{Path: cfg.KeyFile})
	if err != nil {
		return nil, err
	}

	logger.Info("Sealer initialized: cipher=%s key_file=%s", cfg.Cipher, cfg.KeyFile)
	return sealer, nil
}

// CreatePersistenceStore creates a persistence backend based on
// configuration.
//
// This factory uses the Type field to determine which backend to create,
// then decodes the type-specific options from the corresponding map and
// passes them to the backend's constructor.
//
// Supported types:
//   - "filesystem": host directory tree of concatenated sealed blocks
//   - "badger": BadgerDB database, one key per sealed block
//   - "s3": S3 (or compatible) bucket, one object per file
//   - "none": no persistence; the filesystem is discarded at unmount
//
// Returns nil (and no error) for type "none". Backends holding resources
// implement io.Closer; the caller closes them at shutdown.
func CreatePersistenceStore(ctx context.Context, cfg *PersistenceConfig) (persist.Store, error) {
	switch cfg.Type {
	case "filesystem":
		return createFilesystemStore(ctx, cfg.Filesystem)
	case "badger":
		return createBadgerStore(ctx, cfg.Badger)
	case "s3":
		return createS3Store(ctx, cfg.S3)
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown persistence type: %q", cfg.Type)
	}
}

// createFilesystemStore creates a directory-tree persistence backend.
func createFilesystemStore(ctx context.Context, options map[string]any) (persist.Store, error) {
	type FilesystemStoreConfig struct {
		Path string `mapstructure:"path"`
	}

	var storeCfg FilesystemStoreConfig
	if err := mapstructure.Decode(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode filesystem persistence config: %w", err)
	}

	if storeCfg.Path == "" {
		return nil, fmt.Errorf("filesystem persistence: path is required")
	}

	store, err := persistFs.NewFSStore(ctx, storeCfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to create filesystem persistence store: %w", err)
	}

	logger.Info("Filesystem persistence initialized: path=%s", storeCfg.Path)
	return store, nil
}

// createBadgerStore creates a BadgerDB persistence backend.
func createBadgerStore(ctx context.Context, options map[string]any) (persist.Store, error) {
	type BadgerStoreConfig struct {
		DBPath string `mapstructure:"db_path"`
	}

	var storeCfg BadgerStoreConfig
	if err := mapstructure.Decode(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode badger persistence config: %w", err)
	}

	if storeCfg.DBPath == "" {
		return nil, fmt.Errorf("badger persistence: db_path is required")
	}

	store, err := persistBadger.NewBadgerStore(ctx, storeCfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create badger persistence store: %w", err)
	}

	logger.Info("Badger persistence initialized: db_path=%s", storeCfg.DBPath)
	return store, nil
}

// createS3Store creates an S3 persistence backend.
func createS3Store(ctx context.Context, options map[string]any) (persist.Store, error) {
	type S3StoreConfig struct {
		Region          string `mapstructure:"region"`
		Bucket          string `mapstructure:"bucket"`
		KeyPrefix       string `mapstructure:"key_prefix"`
		Endpoint        string `mapstructure:"endpoint"`
		AccessKeyID     string `mapstructure:"access_key_id"`
		SecretAccessKey string `mapstructure:"secret_access_key"`
		MaxRetries      int    `mapstructure:"max_retries"`
	}

	var storeCfg S3StoreConfig
	if err := mapstructure.Decode(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode s3 persistence config: %w", err)
	}

	if storeCfg.Bucket == "" {
		return nil, fmt.Errorf("s3 persistence: bucket is required")
	}
	if storeCfg.Region == "" {
		return nil, fmt.Errorf("s3 persistence: region is required")
	}

	var configOptions []func(*awsConfig.LoadOptions) error
	configOptions = append(configOptions, awsConfig.WithRegion(storeCfg.Region))

	// Custom endpoint for MinIO, Localstack, and friends.
	if storeCfg.Endpoint != "" {
		//nolint:staticcheck // TODO: migrate to BaseEndpoint when AWS SDK v2 stabilizes the new API
		customResolver := aws.EndpointResolverWithOptionsFunc(
			func(service, region string, options ...interface{}) (aws.Endpoint, error) {
				//nolint:staticcheck
				return aws.Endpoint{
					URL:               storeCfg.Endpoint,
					HostnameImmutable: true,
					Source:            aws.EndpointSourceCustom,
				}, nil
			},
		)
		//nolint:staticcheck
		configOptions = append(configOptions, awsConfig.WithEndpointResolverWithOptions(customResolver))
	}

	if storeCfg.AccessKeyID != "" && storeCfg.SecretAccessKey != "" {
		credProvider := credentials.NewStaticCredentialsProvider(
			storeCfg.AccessKeyID,
			storeCfg.SecretAccessKey,
			"",
		)
		configOptions = append(configOptions, awsConfig.WithCredentialsProvider(credProvider))
	}

	maxRetries := storeCfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 10
	}
	configOptions = append(configOptions, awsConfig.WithRetryer(func() aws.Retryer {
		return retry.NewStandard(func(o *retry.StandardOptions) {
			o.MaxAttempts = maxRetries
		})
	}))

	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, configOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if storeCfg.Endpoint != "" {
			o.UsePathStyle = true
		}
	})

	store, err := persistS3.NewS3Store(ctx, persistS3.S3StoreConfig{
		Client:    client,
		Bucket:    storeCfg.Bucket,
		KeyPrefix: storeCfg.KeyPrefix,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create s3 persistence store: %w", err)
	}

	logger.Info("S3 persistence initialized: bucket=%s, region=%s, prefix=%s",
		storeCfg.Bucket, storeCfg.Region, storeCfg.KeyPrefix)
	return store, nil
}
