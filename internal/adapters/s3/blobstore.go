// Package s3 stores product and event images in an S3-compatible bucket
// (AWS S3, Cloudflare R2, MinIO).
package s3

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/cockroachdb/errors"
	"github.com/robertarktes/merchpit/internal/config"
)

type BlobStore struct {
	client   *awss3.Client
	uploader *manager.Uploader
	cfg      config.Storage
}

func NewBlobStore(ctx context.Context, cfg config.Storage) (*BlobStore, error) {
	if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return nil, errors.New("object storage credentials not configured")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
		awsconfig.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, errors.Wrap(err, "load aws config")
	}

	client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = true
	})

	return &BlobStore{
		client:   client,
		uploader: manager.NewUploader(client),
		cfg:      cfg,
	}, nil
}

// Upload stores data under key and returns its public URL.
func (b *BlobStore) Upload(ctx context.Context, key, contentType string, data []byte) (string, error) {
	key = strings.TrimPrefix(key, "/")

	_, err := b.uploader.Upload(ctx, &awss3.PutObjectInput{
		Bucket:        aws.String(b.cfg.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
		CacheControl:  aws.String("public, max-age=31536000"),
	})
	if err != nil {
		return "", errors.Wrapf(err, "upload %s", key)
	}
	return b.URL(key), nil
}

// Delete removes the object behind a URL produced by Upload.
func (b *BlobStore) Delete(ctx context.Context, url string) error {
	key, ok := b.KeyFromURL(url)
	if !ok {
		return errors.Newf("url %q is not in bucket %s", url, b.cfg.Bucket)
	}
	_, err := b.client.DeleteObject(ctx, &awss3.DeleteObjectInput{
		Bucket: aws.String(b.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return errors.Wrapf(err, "delete %s", key)
	}
	return nil
}

func (b *BlobStore) URL(key string) string {
	return fmt.Sprintf("%s/%s", b.baseURL(), strings.TrimPrefix(key, "/"))
}

func (b *BlobStore) KeyFromURL(url string) (string, bool) {
	prefix := b.baseURL() + "/"
	if !strings.HasPrefix(url, prefix) {
		return "", false
	}
	return strings.TrimPrefix(url, prefix), true
}

func (b *BlobStore) baseURL() string {
	if b.cfg.PublicURL != "" {
		return strings.TrimSuffix(b.cfg.PublicURL, "/")
	}
	return strings.TrimSuffix(b.cfg.Endpoint, "/") + "/" + b.cfg.Bucket
}
