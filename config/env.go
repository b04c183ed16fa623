package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	log "github.com/inconshreveable/log15/v3"
	"github.com/joho/godotenv"
)

// Store backend names accepted in STORE_BACKEND.
const (
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// ConfigError marks a configuration problem that is fatal at startup.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// Config holds process-level settings read from the environment.
type Config struct {
	BotToken string

	JiraBaseURL      string
	JiraEmail        string
	JiraAPIToken     string
	StoryPointsField string

	HardAdmin string

	// Shared join tokens; the token a user joins with decides their role.
	UserToken  string
	LeadToken  string
	AdminToken string

	StoreBackend string
	StateFile    string
	RolesFile    string
	TokensFile   string
	RedisURL     string
	DatabaseURL  string

	EncryptionKey string

	Port     int
	LogLevel string

	Groups []GroupConfig
}

func LoadEnv() {
	if os.Getenv("RAILWAY_ENVIRONMENT") == "" {
		if err := godotenv.Load(); err != nil {
			log.Warn("no .env file loaded", "err", err)
		}
	}
}

// Load reads and validates the full bot configuration. A missing bot token,
// malformed group config or a group without admins is a ConfigError.
func Load() (*Config, error) {
	cfg := &Config{
		BotToken:         os.Getenv("BOT_TOKEN"),
		JiraBaseURL:      strings.TrimRight(os.Getenv("JIRA_URL"), "/"),
		JiraEmail:        os.Getenv("JIRA_USERNAME"),
		JiraAPIToken:     os.Getenv("JIRA_API_TOKEN"),
		StoryPointsField: getEnv("STORY_POINTS_FIELD", "customfield_10022"),
		HardAdmin:        strings.TrimPrefix(os.Getenv("HARD_ADMIN"), "@"),
		UserToken:        os.Getenv("USER_TOKEN"),
		LeadToken:        os.Getenv("LEAD_TOKEN"),
		AdminToken:       os.Getenv("ADMIN_TOKEN"),
		StoreBackend:     getEnv("STORE_BACKEND", BackendFile),
		StateFile:        getEnv("STATE_FILE", "data/state.json"),
		RolesFile:        getEnv("ROLES_FILE", "data/user_roles.json"),
		TokensFile:       getEnv("TOKENS_FILE", "data/group_tokens.json"),
		RedisURL:         os.Getenv("REDIS_URL"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		EncryptionKey:    os.Getenv("ENCRYPTION_KEY"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
	}

	if cfg.BotToken == "" {
		return nil, &ConfigError{Field: "BOT_TOKEN", Reason: "required"}
	}

	switch cfg.StoreBackend {
	case BackendFile:
	case BackendRedis:
		if cfg.RedisURL == "" {
			return nil, &ConfigError{Field: "REDIS_URL", Reason: "required for redis backend"}
		}
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			return nil, &ConfigError{Field: "DATABASE_URL", Reason: "required for postgres backend"}
		}
	default:
		return nil, &ConfigError{Field: "STORE_BACKEND", Reason: "must be file, redis or postgres"}
	}

	port := getEnv("PORT", "8080")
	p, err := strconv.Atoi(port)
	if err != nil {
		return nil, &ConfigError{Field: "PORT", Reason: "not a number: " + port}
	}
	cfg.Port = p

	groups, err := ParseGroups()
	if err != nil {
		return nil, err
	}
	cfg.Groups = groups

	return cfg, nil
}

// Group returns the config for a chat/topic pair, or nil when the bot is not
// configured for it. A group with TopicID 0 covers every topic in the chat.
func (c *Config) Group(chatID int64, topicID int) *GroupConfig {
	var chatWide *GroupConfig
	for i := range c.Groups {
		g := &c.Groups[i]
		if g.ChatID != chatID || !g.IsActive {
			continue
		}
		if g.TopicID == topicID {
			return g
		}
		if g.TopicID == 0 {
			chatWide = g
		}
	}
	return chatWide
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
