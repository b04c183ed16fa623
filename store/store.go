// Package store provides the persistence backends for session state, user
// roles and per-group Jira tokens: a JSON file (default), Redis, or Postgres.
package store

import (
	"context"
	"fmt"
)

// TokenStore keeps per-group Jira API token overrides. Values are encrypted
// at rest when an encryption key is configured.
type TokenStore interface {
	Get(ctx context.Context, chatID int64, topicID int) (string, error)
	Set(ctx context.Context, chatID int64, topicID int, token string) error
}

// Key is the canonical map/storage key for a chat/topic pair.
func Key(chatID int64, topicID int) string {
	return fmt.Sprintf("%d_%d", chatID, topicID)
}
