package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	log "github.com/inconshreveable/log15/v3"
	"github.com/redis/go-redis/v9"

	"PokerPilot/poker"
)

const redisKeyPrefix = "session:"

// RedisSessionStore keeps one JSON payload per session key. Used when
// multiple bot restarts must not lose in-flight votes and no Postgres is
// available.
type RedisSessionStore struct {
	client *redis.Client
	log    log.Logger
}

func NewRedisSessionStore(url string) (*RedisSessionStore, error) {
	opt, err := redis.ParseURL(strings.TrimSpace(url))
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	log.Info("redis connection established")
	return &RedisSessionStore{client: client, log: log.New("module", "store")}, nil
}

func redisKey(chatID int64, topicID int) string {
	return redisKeyPrefix + Key(chatID, topicID)
}

func (s *RedisSessionStore) Get(ctx context.Context, chatID int64, topicID int) (*poker.Session, error) {
	val, err := s.client.Get(ctx, redisKey(chatID, topicID)).Result()
	if errors.Is(err, redis.Nil) {
		return poker.NewSession(chatID, topicID), nil
	}
	if err != nil {
		return nil, err
	}
	var sess poker.Session
	if err := json.Unmarshal([]byte(val), &sess); err != nil {
		return nil, fmt.Errorf("decode session %d/%d: %w", chatID, topicID, err)
	}
	if sess.Participants == nil {
		sess.Participants = map[int64]poker.Participant{}
	}
	return &sess, nil
}

func (s *RedisSessionStore) Save(ctx context.Context, sess *poker.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, redisKey(sess.ChatID, sess.TopicID), data, 0).Err()
}

func (s *RedisSessionStore) Delete(ctx context.Context, chatID int64, topicID int) error {
	return s.client.Del(ctx, redisKey(chatID, topicID)).Err()
}

func (s *RedisSessionStore) All(ctx context.Context) ([]*poker.Session, error) {
	var out []*poker.Session
	iter := s.client.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		val, err := s.client.Get(ctx, iter.Val()).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, err
		}
		var sess poker.Session
		if err := json.Unmarshal([]byte(val), &sess); err != nil {
			s.log.Warn("skipping undecodable session", "key", iter.Val(), "err", err)
			continue
		}
		out = append(out, &sess)
	}
	return out, iter.Err()
}
