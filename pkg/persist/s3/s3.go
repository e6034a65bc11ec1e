// Package s3 persists the sealed-block snapshot as objects in an S3 (or
// S3-compatible) bucket, one object per enclave file with the same byte
// layout as the directory-tree store. Sealed blocks are safe to hand to a
// remote, untrusted bucket; tampering surfaces on first unseal after
// restore.
package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/dburihabwa/sgx-fs/internal/logger"
	"github.com/dburihabwa/sgx-fs/pkg/persist"
)

// deleteBatchSize is the S3 DeleteObjects limit.
const deleteBatchSize = 1000

// S3StoreConfig configures the S3 persistence store.
type S3StoreConfig struct {
	// Client is the configured S3 client. Required.
	Client *s3.Client

	// Bucket is the bucket holding the dump. Required.
	Bucket string

	// KeyPrefix namespaces the dump inside the bucket, e.g. "sgxfs/".
	KeyPrefix string
}

// S3Store dumps to and restores from an S3 bucket.
type S3Store struct {
	client    *s3.Client
	bucket    string
	keyPrefix string
}

// NewS3Store creates a store over an existing bucket.
func NewS3Store(ctx context.Context, cfg S3StoreConfig) (*S3Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cfg.Client == nil {
		return nil, fmt.Errorf("s3 store: client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 store: bucket is required")
	}

	prefix := cfg.KeyPrefix
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	return &S3Store{
		client:    cfg.Client,
		bucket:    cfg.Bucket,
		keyPrefix: prefix,
	}, nil
}

// Dump deletes the previous generation under the key prefix and uploads
// one object per file.
func (s *S3Store) Dump(ctx context.Context, files map[string][][]byte) error {
	if err := s.deleteAll(ctx); err != nil {
		return err
	}

	for path, blocks := range files {
		if err := ctx.Err(); err != nil {
			return err
		}

		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(s.keyPrefix + path),
			Body:   bytes.NewReader(persist.JoinBlocks(blocks)),
		})
		if err != nil {
			return fmt.Errorf("failed to dump %s: %w", path, err)
		}
	}

	logger.Debug("Dumped %d files to s3://%s/%s", len(files), s.bucket, s.keyPrefix)
	return nil
}

// Restore lists every object under the key prefix and re-splits each into
// its sealed blocks. An empty listing restores an empty filesystem.
func (s *S3Store) Restore(ctx context.Context) (map[string][][]byte, error) {
	files := make(map[string][][]byte)

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.keyPrefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list dump objects: %w", err)
		}

		for _, object := range page.Contents {
			key := aws.ToString(object.Key)
			path := strings.TrimPrefix(key, s.keyPrefix)
			if path == "" {
				continue
			}

			data, err := s.download(ctx, key)
			if err != nil {
				return nil, fmt.Errorf("failed to restore %s: %w", path, err)
			}
			blocks, err := persist.SplitBlocks(data)
			if err != nil {
				return nil, fmt.Errorf("restoring %s: %w", path, err)
			}
			files[path] = blocks
		}
	}

	logger.Debug("Restored %d files from s3://%s/%s", len(files), s.bucket, s.keyPrefix)
	return files, nil
}

// download fetches one object's bytes.
func (s *S3Store) download(ctx context.Context, key string) ([]byte, error) {
	output, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}
	defer output.Body.Close()

	return io.ReadAll(output.Body)
}

// deleteAll removes every object under the key prefix in batches.
func (s *S3Store) deleteAll(ctx context.Context) error {
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.keyPrefix),
	})

	var batch []types.ObjectIdentifier
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		_, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{
				Objects: batch,
				Quiet:   aws.Bool(true),
			},
		})
		batch = batch[:0]
		return err
	}

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("failed to list previous dump: %w", err)
		}
		for _, object := range page.Contents {
			batch = append(batch, types.ObjectIdentifier{Key: object.Key})
			if len(batch) == deleteBatchSize {
				if err := flush(); err != nil {
					return fmt.Errorf("failed to clear previous dump: %w", err)
				}
			}
		}
	}

	if err := flush(); err != nil {
		return fmt.Errorf("failed to clear previous dump: %w", err)
	}
	return nil
}

var _ persist.Store = (*S3Store)(nil)
