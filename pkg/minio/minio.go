package minio

import (
	"context"
	"net/url"
	"time"

	"contentplane/pkg/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Client = fx.Module("minio.client", fx.Provide(registerClient, NewMediaStore))

func registerClient(c *config.Config) *minio.Client {
	client, err := minio.New(c.Minio.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(c.Minio.AccessKey, c.Minio.SecretKey, ""),
		Secure: c.Minio.Secure,
	})
	if err != nil {
		zap.L().Fatal("failed to create MinIO client", zap.Error(err))
	}
	exists, errBucketExists := client.BucketExists(context.Background(), c.Minio.BucketName)
	if errBucketExists != nil {
		zap.L().Fatal("failed to check if bucket exists", zap.String("bucket", c.Minio.BucketName), zap.Error(errBucketExists))
	}
	zap.L().Info("MinIO client initialized", zap.String("endpoint", c.Minio.Endpoint), zap.Bool("bucketExists", exists))
	return client
}

// MediaStore resolves generated-media references into URLs the distribution
// channels can fetch.
type MediaStore interface {
	PublicURL(ctx context.Context, objectKey string, ttl time.Duration) (string, error)
}

type mediaStore struct {
	client *minio.Client
	bucket string
}

func NewMediaStore(client *minio.Client, cfg *config.Config) MediaStore {
	return &mediaStore{client: client, bucket: cfg.Minio.BucketName}
}

func (s *mediaStore) PublicURL(ctx context.Context, objectKey string, ttl time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, objectKey, ttl, url.Values{})
	if err != nil {
		return "", err
	}
	return u.String(), nil
}
