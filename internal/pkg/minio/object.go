package minio

import (
	"context"
	"io"

	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"
)

// PutObjectOptions configures an upload.
type PutObjectOptions struct {
	ContentType  string
	UserMetadata map[string]string
}

// UploadInfo describes a completed upload.
type UploadInfo struct {
	Bucket string
	Key    string
	ETag   string
	Size   int64
}

// PutObject uploads size bytes from reader under bucket/key. Pass -1
// for size when the length is unknown.
func (c *Client) PutObject(ctx context.Context, bucket, key string, reader io.Reader, size int64, opts PutObjectOptions) (UploadInfo, error) {
	if err := c.checkClosed(); err != nil {
		return UploadInfo{}, WrapError("PutObject", err, bucket, key)
	}
	if bucket == "" || key == "" {
		return UploadInfo{}, WrapErrorWithMessage("PutObject", ErrInvalidArgument, "bucket or key is empty")
	}
	if reader == nil {
		return UploadInfo{}, WrapErrorWithMessage("PutObject", ErrInvalidArgument, "reader is nil")
	}

	info, err := c.client.PutObject(ctx, bucket, key, reader, size, minio.PutObjectOptions{
		ContentType:  opts.ContentType,
		UserMetadata: opts.UserMetadata,
	})
	if err != nil {
		return UploadInfo{}, WrapError("PutObject", err, bucket, key)
	}

	c.logger.Debug("object uploaded",
		zap.String("bucket", bucket),
		zap.String("key", key),
		zap.Int64("size", info.Size))

	return UploadInfo{
		Bucket: info.Bucket,
		Key:    info.Key,
		ETag:   info.ETag,
		Size:   info.Size,
	}, nil
}
