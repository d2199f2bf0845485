package s3client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"

	minio "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type Config struct {
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UseSSL          bool   `yaml:"use_ssl"`
}

type Client struct {
	cfg            *Config
	minio          *minio.Client
	ensuredBuckets sync.Map
}

func New(cfg *Config) (*Client, error) {
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &Client{
		cfg:   cfg,
		minio: mc,
	}, nil
}

func (c *Client) EnsureBucket(ctx context.Context, bucket string) error {
	if _, ok := c.ensuredBuckets.Load(bucket); ok {
		return nil
	}

	exists, err := c.minio.BucketExists(ctx, bucket)
	if err != nil {
		return err
	}
	if !exists {
		if err := c.minio.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return err
		}
	}
	c.ensuredBuckets.Store(bucket, struct{}{})
	return nil
}

func (c *Client) PutObject(ctx context.Context, bucket string, objectName string, reader io.Reader, size int64, contentType string) error {
	if err := c.EnsureBucket(ctx, bucket); err != nil {
		return err
	}
	_, err := c.minio.PutObject(ctx, bucket, objectName, reader, size, minio.PutObjectOptions{ContentType: contentType})
	return err
}

// ObjectExists treats a missing bucket like a missing object.
func (c *Client) ObjectExists(ctx context.Context, bucket string, objectName string) (bool, error) {
	_, err := c.minio.StatObject(ctx, bucket, objectName, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}

	resp := minio.ToErrorResponse(err)
	if resp.StatusCode == http.StatusNotFound || resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" {
		return false, nil
	}

	return false, err
}
