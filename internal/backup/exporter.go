// Package backup exports session transcripts to S3-compatible object
// storage when a conversation is cleared or switched away from.
package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lk2023060901/chat-bridge/internal/chat/biz"
	"github.com/lk2023060901/chat-bridge/internal/conf"
	"github.com/lk2023060901/chat-bridge/internal/pkg/logger"
	"github.com/lk2023060901/chat-bridge/internal/pkg/minio"
)

// objectTimeLayout names exports so they sort chronologically in listings.
const objectTimeLayout = "20060102T150405Z"

// Exporter writes transcript snapshots to a bucket.
type Exporter struct {
	client *minio.Client
	bucket string
	logger *logger.Logger
}

// NewExporter connects to the object store and ensures the bucket exists.
func NewExporter(ctx context.Context, cfg conf.BackupConfig, log *logger.Logger) (*Exporter, error) {
	if log == nil {
		log = logger.L()
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("backup bucket not configured")
	}

	client, err := minio.NewClient(&minio.Config{
		Endpoint:        cfg.Endpoint,
		AccessKeyID:     cfg.AccessKey,
		SecretAccessKey: cfg.SecretKey,
		UseSSL:          cfg.UseSSL,
	}, log.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create backup client: %w", err)
	}
	if err := client.Ping(ctx); err != nil {
		return nil, fmt.Errorf("backup storage unreachable: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check backup bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create backup bucket: %w", err)
		}
		log.Info("created backup bucket", zap.String("bucket", cfg.Bucket))
	}

	return &Exporter{client: client, bucket: cfg.Bucket, logger: log}, nil
}

// Export uploads the session transcript as JSON under
// sessions/<id>/<timestamp>.json.
func (e *Exporter) Export(ctx context.Context, session *biz.StoredSession) error {
	if session == nil || session.ID == "" {
		return fmt.Errorf("nothing to export")
	}

	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session %s: %w", session.ID, err)
	}

	key := objectKey(session.ID, time.Now().UTC())
	_, err = e.client.PutObject(ctx, e.bucket, key,
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return fmt.Errorf("failed to upload session %s: %w", session.ID, err)
	}

	e.logger.Info("exported session transcript",
		zap.String("session_id", session.ID),
		zap.String("object", key),
		zap.Int("bytes", len(data)),
	)
	return nil
}

func objectKey(sessionID string, at time.Time) string {
	return fmt.Sprintf("sessions/%s/%s.json", sessionID, at.Format(objectTimeLayout))
}
