// Package s3 implements the storage backend for AWS S3 and S3-compatible storage.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/rsilva/mediavault/internal/storage"
)

const (
	// chunkPrefix is the key prefix for chunk staging objects
	chunkPrefix = "chunks/"

	// artifactPrefix is the key prefix for assembled artifacts
	artifactPrefix = "media/"

	// maxChunkIndex is the maximum allowed chunk index (prevents overflow/DoS)
	maxChunkIndex = 100000

	// multipartUploadPartSize is the size for S3 multipart upload parts (5MB minimum)
	multipartUploadPartSize = 5 * 1024 * 1024
)

// Config holds configuration for S3 storage.
type Config struct {
	Bucket          string
	Region          string
	Endpoint        string // Custom endpoint for MinIO or other S3-compatible services
	AccessKeyID     string
	SecretAccessKey string
	PathStyle       bool // Use path-style addressing (required for MinIO)
}

// S3Storage implements storage.Backend for AWS S3 and S3-compatible storage.
// Chunks are staged under chunks/<session_id>/; assembled artifacts live
// under media/.
type S3Storage struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
}

// NewS3Storage creates a new S3Storage with the given configuration.
func NewS3Storage(ctx context.Context, cfg Config) (*S3Storage, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("S3 bucket name is required")
	}

	var optFuncs []func(*config.LoadOptions) error

	if cfg.Region != "" {
		optFuncs = append(optFuncs, config.WithRegion(cfg.Region))
	}

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		optFuncs = append(optFuncs, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, optFuncs...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}
	if cfg.PathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	client := s3.NewFromConfig(awsCfg, s3Opts...)

	// Uploader streams assembled artifacts without buffering them in memory
	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = multipartUploadPartSize
	})

	// Verify bucket access with a HEAD request
	_, err = client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(cfg.Bucket),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to access S3 bucket %q: %w", cfg.Bucket, err)
	}

	slog.Info("S3 storage initialized",
		"bucket", cfg.Bucket,
		"region", cfg.Region,
		"endpoint", cfg.Endpoint,
	)

	return &S3Storage{
		client:   client,
		uploader: uploader,
		bucket:   cfg.Bucket,
	}, nil
}

// validateSessionID ensures the session ID is safe to embed in an object key.
func (s *S3Storage) validateSessionID(sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}
	if strings.Contains(sessionID, "..") || strings.Contains(sessionID, "/") {
		return fmt.Errorf("invalid session ID")
	}
	if strings.ContainsRune(sessionID, '\x00') {
		return fmt.Errorf("null bytes not allowed in session ID")
	}
	return nil
}

// validateChunkIndex ensures the chunk index is valid.
func (s *S3Storage) validateChunkIndex(chunkIndex int) error {
	if chunkIndex < 0 {
		return fmt.Errorf("chunk index must be non-negative: %d", chunkIndex)
	}
	if chunkIndex >= maxChunkIndex {
		return fmt.Errorf("chunk index exceeds maximum: %d >= %d", chunkIndex, maxChunkIndex)
	}
	return nil
}

// validateKey ensures an artifact key is safe.
func (s *S3Storage) validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("empty key not allowed")
	}
	if strings.ContainsRune(key, '\x00') {
		return fmt.Errorf("null bytes not allowed in key")
	}
	if strings.Contains(key, "..") {
		return fmt.Errorf("path traversal not allowed: %s", key)
	}
	return nil
}

// chunkKey returns the S3 key for a specific chunk.
func (s *S3Storage) chunkKey(sessionID string, chunkIndex int) string {
	return fmt.Sprintf("%s%s/chunk_%d", chunkPrefix, sessionID, chunkIndex)
}

// SaveChunk saves one chunk of a session's staging area.
func (s *S3Storage) SaveChunk(ctx context.Context, sessionID string, chunkIndex int, data io.Reader, size int64) error {
	if err := s.validateSessionID(sessionID); err != nil {
		return storage.NewStorageErrorWithMessage("SaveChunk", sessionID, err, "invalid session ID")
	}
	if err := s.validateChunkIndex(chunkIndex); err != nil {
		return storage.NewStorageErrorWithMessage("SaveChunk", sessionID, err, "invalid chunk index")
	}

	key := s.chunkKey(sessionID, chunkIndex)

	// Read chunk data (chunks are bounded by chunk size, so this is safe)
	chunkData, err := io.ReadAll(data)
	if err != nil {
		return storage.NewStorageError("SaveChunk", key, err)
	}

	if size > 0 && int64(len(chunkData)) != size {
		return storage.NewStorageErrorWithMessage("SaveChunk", key, nil,
			fmt.Sprintf("size mismatch: expected %d bytes, got %d bytes", size, len(chunkData)))
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(chunkData),
		ContentLength: aws.Int64(int64(len(chunkData))),
	})
	if err != nil {
		return storage.NewStorageError("SaveChunk", key, err)
	}

	slog.Debug("chunk saved to S3",
		"session_id", sessionID,
		"chunk_index", chunkIndex,
		"size", len(chunkData),
	)

	return nil
}

// GetChunk returns a reader for a specific chunk.
func (s *S3Storage) GetChunk(ctx context.Context, sessionID string, chunkIndex int) (io.ReadCloser, error) {
	if err := s.validateSessionID(sessionID); err != nil {
		return nil, storage.NewStorageErrorWithMessage("GetChunk", sessionID, err, "invalid session ID")
	}
	if err := s.validateChunkIndex(chunkIndex); err != nil {
		return nil, storage.NewStorageErrorWithMessage("GetChunk", sessionID, err, "invalid chunk index")
	}

	key := s.chunkKey(sessionID, chunkIndex)

	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, storage.NewStorageErrorWithMessage("GetChunk", key, err, "chunk not found")
		}
		return nil, storage.NewStorageError("GetChunk", key, err)
	}

	return result.Body, nil
}

// ChunkExists checks if a specific chunk exists and returns its size.
func (s *S3Storage) ChunkExists(ctx context.Context, sessionID string, chunkIndex int) (bool, int64, error) {
	if err := s.validateSessionID(sessionID); err != nil {
		return false, 0, storage.NewStorageErrorWithMessage("ChunkExists", sessionID, err, "invalid session ID")
	}
	if err := s.validateChunkIndex(chunkIndex); err != nil {
		return false, 0, storage.NewStorageErrorWithMessage("ChunkExists", sessionID, err, "invalid chunk index")
	}

	key := s.chunkKey(sessionID, chunkIndex)

	result, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return false, 0, nil
		}
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return false, 0, nil
		}
		return false, 0, storage.NewStorageError("ChunkExists", key, err)
	}

	size := int64(0)
	if result.ContentLength != nil {
		size = *result.ContentLength
	}

	return true, size, nil
}

// DeleteChunks removes all staged chunks for a session.
func (s *S3Storage) DeleteChunks(ctx context.Context, sessionID string) error {
	if err := s.validateSessionID(sessionID); err != nil {
		return storage.NewStorageErrorWithMessage("DeleteChunks", sessionID, err, "invalid session ID")
	}

	prefix := fmt.Sprintf("%s%s/", chunkPrefix, sessionID)

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})

	var objectsToDelete []types.ObjectIdentifier
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return storage.NewStorageError("DeleteChunks", sessionID, err)
		}

		for _, obj := range page.Contents {
			objectsToDelete = append(objectsToDelete, types.ObjectIdentifier{
				Key: obj.Key,
			})
		}
	}

	if len(objectsToDelete) == 0 {
		return nil // No chunks to delete
	}

	// DeleteObjects accepts at most 1000 keys per request
	for i := 0; i < len(objectsToDelete); i += 1000 {
		end := i + 1000
		if end > len(objectsToDelete) {
			end = len(objectsToDelete)
		}

		_, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{
				Objects: objectsToDelete[i:end],
				Quiet:   aws.Bool(true),
			},
		})
		if err != nil {
			return storage.NewStorageError("DeleteChunks", sessionID, err)
		}
	}

	slog.Debug("chunks deleted from S3", "session_id", sessionID, "count", len(objectsToDelete))
	return nil
}

// WriteStream streams the reader into an artifact object using multipart
// upload, so peak memory stays bounded regardless of artifact size.
func (s *S3Storage) WriteStream(ctx context.Context, key string, r io.Reader) (string, int64, error) {
	if err := s.validateKey(key); err != nil {
		return "", 0, storage.NewStorageErrorWithMessage("WriteStream", key, err, "key validation failed")
	}

	objectKey := artifactPrefix + key

	counting := &countingReader{reader: r}

	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
		Body:   counting,
	})
	if err != nil {
		return "", 0, storage.NewStorageError("WriteStream", objectKey, err)
	}

	location := fmt.Sprintf("s3://%s/%s", s.bucket, objectKey)

	slog.Debug("artifact written to S3",
		"key", objectKey,
		"size", counting.n,
	)

	return location, counting.n, nil
}

// Delete removes an artifact object. S3 does not error on deleting a missing
// object, which matches the contract.
func (s *S3Storage) Delete(ctx context.Context, key string) error {
	if err := s.validateKey(key); err != nil {
		return storage.NewStorageErrorWithMessage("Delete", key, err, "key validation failed")
	}

	objectKey := artifactPrefix + key

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		return storage.NewStorageError("Delete", objectKey, err)
	}

	slog.Debug("artifact deleted from S3", "key", objectKey)
	return nil
}

// countingReader counts bytes as they pass through to the uploader.
type countingReader struct {
	reader io.Reader
	n      int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.reader.Read(p)
	c.n += int64(n)
	return n, err
}

var _ storage.Backend = (*S3Storage)(nil)
