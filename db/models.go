package db

import "time"

// SessionRecord stores one serialized session per chat/topic pair.
type SessionRecord struct {
	ID        uint   `gorm:"primaryKey"`
	ChatID    int64  `gorm:"uniqueIndex:idx_session_chat_topic;not null"`
	TopicID   int    `gorm:"uniqueIndex:idx_session_chat_topic;not null"`
	Payload   string `gorm:"type:jsonb;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// GroupToken holds a per-group Jira API token override, encrypted at rest.
type GroupToken struct {
	ID        uint   `gorm:"primaryKey"`
	ChatID    int64  `gorm:"uniqueIndex:idx_token_chat_topic;not null"`
	TopicID   int    `gorm:"uniqueIndex:idx_token_chat_topic;not null"`
	JiraToken string `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// UserRole remembers the role a user joined with.
type UserRole struct {
	ID        uint   `gorm:"primaryKey"`
	UserID    int64  `gorm:"uniqueIndex;not null"`
	Role      string `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
