package minio

import (
	"context"

	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"
)

// MakeBucketOptions configures bucket creation.
type MakeBucketOptions struct {
	Region string
}

// BucketExists reports whether the bucket exists.
func (c *Client) BucketExists(ctx context.Context, bucket string) (bool, error) {
	if err := c.checkClosed(); err != nil {
		return false, WrapError("BucketExists", err, bucket, "")
	}
	if bucket == "" {
		return false, WrapErrorWithMessage("BucketExists", ErrInvalidArgument, "bucket name is empty")
	}

	exists, err := c.client.BucketExists(ctx, bucket)
	if err != nil {
		return false, WrapError("BucketExists", err, bucket, "")
	}
	return exists, nil
}

// MakeBucket creates the bucket. The region defaults to the client's
// configured region when opts.Region is empty.
func (c *Client) MakeBucket(ctx context.Context, bucket string, opts MakeBucketOptions) error {
	if err := c.checkClosed(); err != nil {
		return WrapError("MakeBucket", err, bucket, "")
	}
	if bucket == "" {
		return WrapErrorWithMessage("MakeBucket", ErrInvalidArgument, "bucket name is empty")
	}

	region := opts.Region
	if region == "" {
		region = c.config.Region
	}

	err := c.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region})
	if err != nil {
		return WrapError("MakeBucket", err, bucket, "")
	}

	c.logger.Info("bucket created", zap.String("bucket", bucket), zap.String("region", region))
	return nil
}
