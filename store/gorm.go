package store

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/gorm"

	"PokerPilot/db"
	"PokerPilot/poker"
	"PokerPilot/utils"
)

// GormSessionStore persists sessions as JSON payloads in Postgres.
type GormSessionStore struct {
	gdb *gorm.DB
}

func NewGormSessionStore(gdb *gorm.DB) *GormSessionStore {
	return &GormSessionStore{gdb: gdb}
}

func (s *GormSessionStore) Get(ctx context.Context, chatID int64, topicID int) (*poker.Session, error) {
	payload, err := db.GetSession(s.gdb.WithContext(ctx), chatID, topicID)
	if err != nil {
		return nil, err
	}
	if payload == "" {
		return poker.NewSession(chatID, topicID), nil
	}
	var sess poker.Session
	if err := json.Unmarshal([]byte(payload), &sess); err != nil {
		return nil, fmt.Errorf("decode session %d/%d: %w", chatID, topicID, err)
	}
	if sess.Participants == nil {
		sess.Participants = map[int64]poker.Participant{}
	}
	return &sess, nil
}

func (s *GormSessionStore) Save(ctx context.Context, sess *poker.Session) error {
	payload, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	return db.SaveSession(s.gdb.WithContext(ctx), sess.ChatID, sess.TopicID, string(payload))
}

func (s *GormSessionStore) Delete(ctx context.Context, chatID int64, topicID int) error {
	return db.DeleteSession(s.gdb.WithContext(ctx), chatID, topicID)
}

func (s *GormSessionStore) All(ctx context.Context) ([]*poker.Session, error) {
	recs, err := db.AllSessions(s.gdb.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	out := make([]*poker.Session, 0, len(recs))
	for _, rec := range recs {
		var sess poker.Session
		if err := json.Unmarshal([]byte(rec.Payload), &sess); err != nil {
			continue
		}
		out = append(out, &sess)
	}
	return out, nil
}

// GormRoleStore persists user roles in Postgres.
type GormRoleStore struct {
	gdb *gorm.DB
}

func NewGormRoleStore(gdb *gorm.DB) *GormRoleStore {
	return &GormRoleStore{gdb: gdb}
}

func (s *GormRoleStore) Get(ctx context.Context, userID int64) (poker.Role, bool, error) {
	role, err := db.GetUserRole(s.gdb.WithContext(ctx), userID)
	if err != nil || role == "" {
		return "", false, err
	}
	return poker.Role(role), true, nil
}

func (s *GormRoleStore) Set(ctx context.Context, userID int64, role poker.Role) error {
	return db.SaveUserRole(s.gdb.WithContext(ctx), userID, string(role))
}

// GormTokenStore persists encrypted per-group Jira tokens in Postgres.
type GormTokenStore struct {
	gdb *gorm.DB
}

func NewGormTokenStore(gdb *gorm.DB) *GormTokenStore {
	return &GormTokenStore{gdb: gdb}
}

func (s *GormTokenStore) Get(ctx context.Context, chatID int64, topicID int) (string, error) {
	stored, err := db.GetGroupToken(s.gdb.WithContext(ctx), chatID, topicID)
	if err != nil || stored == "" {
		return "", err
	}
	return utils.Decrypt(stored)
}

func (s *GormTokenStore) Set(ctx context.Context, chatID int64, topicID int, token string) error {
	enc, err := utils.Encrypt(token)
	if err != nil {
		return err
	}
	return db.SaveGroupToken(s.gdb.WithContext(ctx), chatID, topicID, enc)
}
