package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	chat "github.com/lk2023060901/chat-bridge/internal/chat/types"
)

// Session is the GORM model for chat sessions.
type Session struct {
	ID           string    `gorm:"primaryKey;type:uuid" json:"id"`
	AgentKind    string    `gorm:"type:varchar(50);not null" json:"agent_kind"`
	ModelID      string    `gorm:"type:varchar(100)" json:"model_id"`
	SystemPrompt string    `gorm:"type:text" json:"system_prompt"`
	IsActive     bool      `gorm:"not null;default:false;index" json:"is_active"`
	CreatedAt    time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time `gorm:"not null" json:"updated_at"`
}

// TableName specifies the table name
func (Session) TableName() string {
	return "sessions"
}

// Message is the GORM model for conversation messages. Position is the
// message's insertion order within its session; deletions leave holes, so
// ordering queries sort by position rather than assuming density.
type Message struct {
	ID        string        `gorm:"primaryKey;type:uuid" json:"id"`
	SessionID string        `gorm:"type:uuid;not null;index:idx_messages_session_position,priority:1" json:"session_id"`
	Position  int           `gorm:"not null;index:idx_messages_session_position,priority:2" json:"position"`
	Role      string        `gorm:"type:varchar(20);not null" json:"role"`
	Blocks    ContentBlocks `gorm:"type:jsonb;not null" json:"blocks"`
	Metadata  JSONMap       `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt time.Time     `gorm:"not null" json:"created_at"`
}

// TableName specifies the table name
func (Message) TableName() string {
	return "messages"
}

// ContentBlocks is a custom type for []chat.ContentBlock stored as JSONB.
type ContentBlocks []chat.ContentBlock

// Scan implements sql.Scanner interface
func (cb *ContentBlocks) Scan(value interface{}) error {
	if value == nil {
		*cb = nil
		return nil
	}

	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, cb)
	case string:
		return json.Unmarshal([]byte(v), cb)
	default:
		return fmt.Errorf("unsupported type for ContentBlocks: %T", value)
	}
}

// Value implements driver.Valuer interface
func (cb ContentBlocks) Value() (driver.Value, error) {
	if cb == nil {
		return nil, nil
	}
	return json.Marshal(cb)
}

// JSONMap is a custom type for map[string]any stored as JSONB.
type JSONMap map[string]any

// Scan implements sql.Scanner interface
func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}

	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return fmt.Errorf("unsupported type for JSONMap: %T", value)
	}
}

// Value implements driver.Valuer interface
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}
