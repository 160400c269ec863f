package s3

import (
	"bytes"
	"context"
	"fmt"

	appconfig "strife_service/internal/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Client is a thin wrapper around the S3 API for the avatar bucket on an
// S3-compatible endpoint (MinIO in the default deployment).
type Client struct {
	api       *s3.Client
	bucket    string
	publicURL string
}

func New(ctx context.Context, cfg *appconfig.Config) (*Client, error) {
	const op = "storage.s3.New"

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.S3.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.S3.AccessKey,
			cfg.S3.SecretKey,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	api := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.S3.Endpoint)
		o.UsePathStyle = true
	})

	return &Client{
		api:       api,
		bucket:    cfg.S3.Bucket,
		publicURL: cfg.S3.PublicURL,
	}, nil
}

// Put stores an object and returns its public URL. The call is synchronous
// and not retried; a failed write surfaces to the caller.
func (c *Client) Put(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	const op = "storage.s3.Put"

	_, err := c.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return c.URL(key), nil
}

// URL returns the public URL of an object in the avatar bucket.
func (c *Client) URL(key string) string {
	return fmt.Sprintf("%s/%s/%s", c.publicURL, c.bucket, key)
}
