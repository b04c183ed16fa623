package db

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SaveSession upserts the serialized session for a chat/topic pair.
func SaveSession(gdb *gorm.DB, chatID int64, topicID int, payload string) error {
	now := time.Now().UTC()
	rec := SessionRecord{
		ChatID:    chatID,
		TopicID:   topicID,
		Payload:   payload,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return gdb.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "chat_id"}, {Name: "topic_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload", "updated_at"}),
	}).Create(&rec).Error
}

// GetSession returns the serialized session, or ("", nil) when none exists.
func GetSession(gdb *gorm.DB, chatID int64, topicID int) (string, error) {
	var rec SessionRecord
	err := gdb.Where("chat_id = ? AND topic_id = ?", chatID, topicID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return rec.Payload, nil
}

func DeleteSession(gdb *gorm.DB, chatID int64, topicID int) error {
	return gdb.Where("chat_id = ? AND topic_id = ?", chatID, topicID).
		Delete(&SessionRecord{}).Error
}

func AllSessions(gdb *gorm.DB) ([]SessionRecord, error) {
	var recs []SessionRecord
	err := gdb.Order("chat_id, topic_id").Find(&recs).Error
	return recs, err
}

// SaveGroupToken upserts the (already encrypted) Jira token for a group.
func SaveGroupToken(gdb *gorm.DB, chatID int64, topicID int, token string) error {
	now := time.Now().UTC()
	rec := GroupToken{
		ChatID:    chatID,
		TopicID:   topicID,
		JiraToken: token,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return gdb.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "chat_id"}, {Name: "topic_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"jira_token", "updated_at"}),
	}).Create(&rec).Error
}

func GetGroupToken(gdb *gorm.DB, chatID int64, topicID int) (string, error) {
	var rec GroupToken
	err := gdb.Where("chat_id = ? AND topic_id = ?", chatID, topicID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return rec.JiraToken, nil
}

// SaveUserRole upserts the persisted role for a user.
func SaveUserRole(gdb *gorm.DB, userID int64, role string) error {
	now := time.Now().UTC()
	rec := UserRole{UserID: userID, Role: role, CreatedAt: now, UpdatedAt: now}
	return gdb.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"role", "updated_at"}),
	}).Create(&rec).Error
}

// GetUserRole returns the stored role, or ("", nil) when none exists.
func GetUserRole(gdb *gorm.DB, userID int64) (string, error) {
	var rec UserRole
	err := gdb.Where("user_id = ?", userID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return rec.Role, nil
}
