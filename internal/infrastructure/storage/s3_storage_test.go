package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/techpack/backend/internal/infrastructure/config"
)

// ============================================================================
// Unit Tests (no external dependencies)
// ============================================================================

func TestNewS3ObjectStorage_Validation(t *testing.T) {
	t.Run("nil config returns error", func(t *testing.T) {
		_, err := NewS3ObjectStorage(nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "configuration is required")
	})

	t.Run("missing bucket returns error", func(t *testing.T) {
		_, err := NewS3ObjectStorage(&config.StorageConfig{AccessKey: "k", SecretKey: "s"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bucket is required")
	})

	t.Run("missing access key returns error", func(t *testing.T) {
		_, err := NewS3ObjectStorage(&config.StorageConfig{Bucket: "b", SecretKey: "s"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "access key is required")
	})

	t.Run("missing secret key returns error", func(t *testing.T) {
		_, err := NewS3ObjectStorage(&config.StorageConfig{Bucket: "b", AccessKey: "k"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "secret key is required")
	})

	t.Run("valid config creates storage", func(t *testing.T) {
		s, err := NewS3ObjectStorage(testS3Config(), WithLogger(zaptest.NewLogger(t)))
		require.NoError(t, err)
		assert.Equal(t, "techpack-artifacts", s.GetBucket())
		assert.Equal(t, 15*time.Minute, s.presignExpiration)
	})

	t.Run("default presign expiration", func(t *testing.T) {
		cfg := testS3Config()
		cfg.PresignExpiration = 0
		s, err := NewS3ObjectStorage(cfg)
		require.NoError(t, err)
		assert.Equal(t, time.Hour, s.presignExpiration)
	})

	t.Run("option overrides config expiration", func(t *testing.T) {
		s, err := NewS3ObjectStorage(testS3Config(), WithPresignExpiration(2*time.Minute))
		require.NoError(t, err)
		assert.Equal(t, 2*time.Minute, s.presignExpiration)
	})
}

func TestS3ObjectStorage_URL(t *testing.T) {
	s, err := NewS3ObjectStorage(testS3Config())
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("presigns a path-style download url", func(t *testing.T) {
		u, err := s.URL(ctx, "bulk/run-1/TP-1001-v3.pdf")
		require.NoError(t, err)
		assert.Contains(t, u, "http://localhost:9000/techpack-artifacts/bulk/run-1/TP-1001-v3.pdf")
		assert.Contains(t, u, "X-Amz-Signature=")
		assert.Contains(t, u, "X-Amz-Expires=900")
	})

	t.Run("rejects empty key", func(t *testing.T) {
		_, err := s.URL(ctx, "")
		assert.ErrorIs(t, err, ErrInvalidKey)
	})
}

func TestS3ObjectStorage_KeyValidation(t *testing.T) {
	s, err := NewS3ObjectStorage(testS3Config())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = s.Put(ctx, "../escape.pdf", []byte("x"), "")
	assert.ErrorIs(t, err, ErrInvalidKey)

	_, err = s.Get(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidKey)

	assert.ErrorIs(t, s.Delete(ctx, "/abs/key"), ErrInvalidKey)
}

func testS3Config() *config.StorageConfig {
	return &config.StorageConfig{
		Backend:           "s3",
		Bucket:            "techpack-artifacts",
		AccessKey:         "test-key",
		SecretKey:         "test-secret",
		Endpoint:          "localhost:9000",
		Region:            "us-east-1",
		UsePathStyle:      true,
		PresignExpiration: 15 * time.Minute,
	}
}
