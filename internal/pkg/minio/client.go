// Package minio wraps the MinIO S3 client used for transcript archival.
package minio

import (
	"context"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// Client is a thin wrapper over minio.Client with config validation
// and structured logging.
type Client struct {
	client *minio.Client
	config *Config
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
}

// NewClient connects to the object store described by cfg.
func NewClient(cfg *Config, logger *zap.Logger) (*Client, error) {
	if cfg == nil {
		return nil, WrapErrorWithMessage("NewClient", ErrInvalidArgument, "config is nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, WrapError("NewClient", err, "", "")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, WrapError("NewClient", err, "", "")
	}

	logger.Info("minio client initialized",
		zap.String("endpoint", cfg.Endpoint),
		zap.Bool("ssl", cfg.UseSSL))

	return &Client{
		client: mc,
		config: cfg,
		logger: logger,
	}, nil
}

// Ping verifies connectivity by listing buckets.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.checkClosed(); err != nil {
		return WrapError("Ping", err, "", "")
	}
	if _, err := c.client.ListBuckets(ctx); err != nil {
		return WrapErrorWithMessage("Ping", ErrConnectionFailed, err.Error())
	}
	return nil
}

// Close marks the client unusable. The underlying HTTP transport has
// no explicit shutdown.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.logger.Info("minio client closed", zap.String("endpoint", c.config.Endpoint))
	return nil
}

func (c *Client) checkClosed() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClientClosed
	}
	return nil
}
