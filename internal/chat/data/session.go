// Package data implements the durable session store: synchronous reads
// against PostgreSQL and writes serialized through the ordered task queue,
// durable in submission order.
package data

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/lk2023060901/chat-bridge/internal/chat/biz"
	"github.com/lk2023060901/chat-bridge/internal/chat/models"
	chat "github.com/lk2023060901/chat-bridge/internal/chat/types"
	"github.com/lk2023060901/chat-bridge/internal/pkg/database"
	apperrors "github.com/lk2023060901/chat-bridge/internal/pkg/errors"
	"github.com/lk2023060901/chat-bridge/internal/pkg/logger"
	"github.com/lk2023060901/chat-bridge/internal/pkg/workerpool"
)

// SessionRepo persists sessions and messages. Enqueue order is write order:
// a message submitted before another is durable before it, so the store
// never holds an assistant reply without its user message or a tool result
// without its invocation.
type SessionRepo struct {
	db    *database.DB
	queue *workerpool.Queue
	log   *logger.Logger
}

// NewSessionRepo creates the session repository.
func NewSessionRepo(db *database.DB, queue *workerpool.Queue, log *logger.Logger) biz.SessionRepo {
	if log == nil {
		log = logger.L()
	}
	return &SessionRepo{db: db, queue: queue, log: log}
}

// CreateSession allocates a session identifier immediately and enqueues the
// insert behind any pending writes.
func (r *SessionRepo) CreateSession(ctx context.Context, agentKind, modelID, systemPrompt string) (string, error) {
	now := time.Now()
	po := &models.Session{
		ID:           uuid.New().String(),
		AgentKind:    agentKind,
		ModelID:      modelID,
		SystemPrompt: systemPrompt,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err := r.queue.Submit("session.create", func(ctx context.Context) error {
		return r.db.WithContext(ctx).GetDB().Create(po).Error
	})
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrChatStorageFailed, "enqueue session insert")
	}
	return po.ID, nil
}

// GetSession loads a session and its messages in position order. Reads are
// synchronous; a write enqueued after this call is not visible in the
// result.
func (r *SessionRepo) GetSession(ctx context.Context, id string) (*biz.StoredSession, error) {
	var po models.Session
	err := r.db.WithContext(ctx).GetDB().
		Where("id = ?", id).
		First(&po).Error
	if err != nil {
		if database.IsRecordNotFoundError(err) {
			return nil, biz.ErrSessionNotFound
		}
		return nil, apperrors.Wrap(err, apperrors.ErrChatStorageFailed, "load session")
	}

	var rows []models.Message
	err = r.db.WithContext(ctx).GetDB().
		Where("session_id = ?", id).
		Order("position ASC").
		Find(&rows).Error
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrChatStorageFailed, "load session messages")
	}

	msgs := make([]*chat.Message, len(rows))
	for i := range rows {
		msgs[i] = toChatMessage(&rows[i])
	}

	return &biz.StoredSession{
		ID:           po.ID,
		AgentKind:    po.AgentKind,
		ModelID:      po.ModelID,
		SystemPrompt: po.SystemPrompt,
		Messages:     msgs,
		CreatedAt:    po.CreatedAt,
	}, nil
}

// AddMessage appends a message to the session. The snapshot is taken here;
// the position is assigned when the write drains, as one past the session's
// current highest.
func (r *SessionRepo) AddMessage(ctx context.Context, sessionID string, msg *chat.Message) error {
	po := toMessagePO(sessionID, msg)

	err := r.queue.Submit("message.add", func(ctx context.Context) error {
		return r.db.Transaction(ctx, func(ctx context.Context, tx *gorm.DB) error {
			var next int
			err := tx.Model(&models.Message{}).
				Where("session_id = ?", sessionID).
				Select("COALESCE(MAX(position) + 1, 0)").
				Scan(&next).Error
			if err != nil {
				return err
			}
			po.Position = next
			return tx.Create(po).Error
		})
	})
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrChatStorageFailed, "enqueue message insert")
	}
	return nil
}

// UpdateMessage rewrites a stored message's content and metadata.
func (r *SessionRepo) UpdateMessage(ctx context.Context, sessionID string, msg *chat.Message) error {
	po := toMessagePO(sessionID, msg)

	err := r.queue.Submit("message.update", func(ctx context.Context) error {
		return r.db.WithContext(ctx).GetDB().
			Model(&models.Message{}).
			Where("id = ? AND session_id = ?", po.ID, po.SessionID).
			Updates(map[string]any{
				"blocks":   po.Blocks,
				"metadata": po.Metadata,
			}).Error
	})
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrChatStorageFailed, "enqueue message update")
	}
	return nil
}

// DeleteMessage removes the index-th message of the session, counting in
// position order. Indices are ordinal because positions keep holes after
// earlier deletions.
func (r *SessionRepo) DeleteMessage(ctx context.Context, sessionID string, index int) error {
	if index < 0 {
		return fmt.Errorf("invalid message index %d", index)
	}

	err := r.queue.Submit("message.delete", func(ctx context.Context) error {
		return r.db.Transaction(ctx, func(ctx context.Context, tx *gorm.DB) error {
			var po models.Message
			err := tx.Where("session_id = ?", sessionID).
				Order("position ASC").
				Offset(index).
				First(&po).Error
			if err != nil {
				if database.IsRecordNotFoundError(err) {
					r.log.Warn("message to delete not found",
						zap.String("session_id", sessionID),
						zap.Int("index", index),
					)
					return nil
				}
				return err
			}
			return tx.Delete(&models.Message{}, "id = ?", po.ID).Error
		})
	})
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrChatStorageFailed, "enqueue message delete")
	}
	return nil
}

// SetActiveSession marks the given session as the one to resume, clearing
// the flag everywhere else.
func (r *SessionRepo) SetActiveSession(ctx context.Context, id string) error {
	err := r.queue.Submit("session.activate", func(ctx context.Context) error {
		return r.db.Transaction(ctx, func(ctx context.Context, tx *gorm.DB) error {
			err := tx.Model(&models.Session{}).
				Where("is_active = ?", true).
				Update("is_active", false).Error
			if err != nil {
				return err
			}
			return tx.Model(&models.Session{}).
				Where("id = ?", id).
				Updates(map[string]any{
					"is_active":  true,
					"updated_at": time.Now(),
				}).Error
		})
	})
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrChatStorageFailed, "enqueue session activation")
	}
	return nil
}

// toMessagePO snapshots a message for the write queue. Cloning happens at
// enqueue time so later changes to the live message stay out of the write.
func toMessagePO(sessionID string, msg *chat.Message) *models.Message {
	m := msg.Clone()
	createdAt := m.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	return &models.Message{
		ID:        m.ID,
		SessionID: sessionID,
		Role:      string(m.Role),
		Blocks:    models.ContentBlocks(m.Blocks),
		Metadata:  models.JSONMap(m.Metadata),
		CreatedAt: createdAt,
	}
}

func toChatMessage(po *models.Message) *chat.Message {
	return &chat.Message{
		ID:        po.ID,
		Role:      chat.Role(po.Role),
		Blocks:    []chat.ContentBlock(po.Blocks),
		Metadata:  map[string]any(po.Metadata),
		CreatedAt: po.CreatedAt,
	}
}
