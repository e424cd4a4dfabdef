package voice

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIOConfig configures NewMinIOStore.
type MinIOConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	Bucket          string
	// Prefix is prepended to object keys; defaults to "voice".
	Prefix string
}

// MinIOStore uploads audio to an S3-compatible bucket.
type MinIOStore struct {
	client *minio.Client
	bucket string
	prefix string
	now    func() time.Time
}

// NewMinIOStore connects and creates the bucket when missing.
func NewMinIOStore(ctx context.Context, cfg MinIOConfig) (*MinIOStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "voice"
	}
	return &MinIOStore{client: client, bucket: cfg.Bucket, prefix: prefix, now: time.Now}, nil
}

// Put stores a under <prefix>/<user>/<unix-nanos><ext> and returns the key.
func (s *MinIOStore) Put(ctx context.Context, userID string, a Audio) (string, error) {
	key := objectKey(s.prefix, userID, a.ContentType, s.now())
	ct := a.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(a.Data), int64(len(a.Data)),
		minio.PutObjectOptions{ContentType: ct})
	if err != nil {
		return "", fmt.Errorf("put %s: %w", key, err)
	}
	return key, nil
}

func objectKey(prefix, userID, contentType string, at time.Time) string {
	ext := ".bin"
	switch contentType {
	case "audio/wav", "audio/x-wav", "audio/wave":
		ext = ".wav"
	case "audio/mpeg":
		ext = ".mp3"
	case "audio/ogg":
		ext = ".ogg"
	}
	return path.Join(prefix, userID, fmt.Sprintf("%d%s", at.UnixNano(), ext))
}
