// Package bot is the Telegram gateway: it translates updates into session
// manager calls and renders results back as messages and inline keyboards.
package bot

import (
	"context"
	"strings"
	"time"

	log "github.com/inconshreveable/log15/v3"
	tgbotapi "github.com/skinass/telegram-bot-api/v5"

	"PokerPilot/config"
	"PokerPilot/jira"
	"PokerPilot/poker"
	"PokerPilot/store"
)

// BotAPI is the slice of tgbotapi.BotAPI the gateway uses; tests substitute
// a fake.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

type Gateway struct {
	api     BotAPI
	cfg     *config.Config
	manager *poker.Manager
	jira    *jira.Client
	tokens  store.TokenStore
	disp    *dispatcher
	log     log.Logger

	handleTimeout time.Duration
}

func New(cfg *config.Config, manager *poker.Manager, jiraClient *jira.Client, tokens store.TokenStore) (*Gateway, error) {
	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, err
	}
	g := NewWithAPI(api, cfg, manager, jiraClient, tokens)
	g.log.Info("authorized on telegram", "account", api.Self.UserName)
	return g, nil
}

func NewWithAPI(api BotAPI, cfg *config.Config, manager *poker.Manager, jiraClient *jira.Client, tokens store.TokenStore) *Gateway {
	return &Gateway{
		api:           api,
		cfg:           cfg,
		manager:       manager,
		jira:          jiraClient,
		tokens:        tokens,
		disp:          newDispatcher(),
		log:           log.New("module", "bot"),
		handleTimeout: 30 * time.Second,
	}
}

// Run consumes the long-polling update stream until ctx is cancelled.
func (g *Gateway) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := g.api.GetUpdatesChan(u)

	go func() {
		<-ctx.Done()
		g.api.StopReceivingUpdates()
	}()

	for update := range updates {
		g.route(update)
	}
	g.disp.close()
	return ctx.Err()
}

// route hands the update to the per-session worker. Updates for chats the
// bot is not configured for are dropped here.
func (g *Gateway) route(update tgbotapi.Update) {
	var chatID int64
	var topicID int

	switch {
	case update.Message != nil:
		chatID = update.Message.Chat.ID
		topicID = update.Message.MessageThreadID
	case update.CallbackQuery != nil && update.CallbackQuery.Message != nil:
		chatID = update.CallbackQuery.Message.Chat.ID
		topicID = update.CallbackQuery.Message.MessageThreadID
	default:
		return
	}

	group := g.cfg.Group(chatID, topicID)
	if group == nil {
		g.log.Debug("update for unconfigured chat ignored", "chat", chatID, "topic", topicID)
		if update.Message != nil && update.Message.IsCommand() {
			g.send(chatID, topicID, notConfiguredMessage)
		}
		return
	}

	g.disp.submit(chatID, topicID, func() {
		ctx, cancel := context.WithTimeout(context.Background(), g.handleTimeout)
		defer cancel()
		switch {
		case update.Message != nil:
			g.handleMessage(ctx, group, update.Message)
		case update.CallbackQuery != nil:
			g.handleCallback(ctx, group, update.CallbackQuery)
		}
	})
}

// isAdmin combines the config admin list, the process-level hard admin and
// the stored admin role.
func (g *Gateway) isAdmin(ctx context.Context, group *config.GroupConfig, chatID int64, topicID int, user *tgbotapi.User) bool {
	if user == nil {
		return false
	}
	if group.IsAdmin(user.UserName) {
		return true
	}
	if g.cfg.HardAdmin != "" && user.UserName != "" && equalFoldAt(user.UserName, g.cfg.HardAdmin) {
		return true
	}
	s, err := g.manager.Session(ctx, chatID, topicID)
	if err != nil {
		return false
	}
	p, ok := s.Participants[user.ID]
	return ok && p.Role == poker.RoleAdmin
}

// jiraFor resolves the Jira client for a group: process credentials, then
// the config override, then the stored per-group token.
func (g *Gateway) jiraFor(ctx context.Context, group *config.GroupConfig) *jira.Client {
	if g.jira == nil {
		return nil
	}
	client := g.jira
	if group.JiraAPIToken != "" {
		client = client.WithToken(group.JiraAPIToken)
	} else if g.tokens != nil {
		if token, err := g.tokens.Get(ctx, group.ChatID, group.TopicID); err == nil && token != "" {
			client = client.WithToken(token)
		}
	}
	if !client.Configured() {
		return nil
	}
	return client
}

func (g *Gateway) send(chatID int64, topicID int, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.MessageThreadID = topicID
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if _, err := g.api.Send(msg); err != nil {
		g.log.Error("send failed", "chat", chatID, "err", err)
	}
}

func (g *Gateway) sendKeyboard(chatID int64, topicID int, text string, kb tgbotapi.InlineKeyboardMarkup) int {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.MessageThreadID = topicID
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	msg.ReplyMarkup = kb
	sent, err := g.api.Send(msg)
	if err != nil {
		g.log.Error("send failed", "chat", chatID, "err", err)
		return 0
	}
	return sent.MessageID
}

func (g *Gateway) edit(chatID int64, messageID int, text string, kb *tgbotapi.InlineKeyboardMarkup) {
	var c tgbotapi.Chattable
	if kb != nil {
		edit := tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, text, *kb)
		edit.ParseMode = tgbotapi.ModeHTML
		edit.DisableWebPagePreview = true
		c = edit
	} else {
		edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
		edit.ParseMode = tgbotapi.ModeHTML
		edit.DisableWebPagePreview = true
		c = edit
	}
	if _, err := g.api.Send(c); err != nil {
		g.log.Warn("edit failed", "chat", chatID, "message", messageID, "err", err)
	}
}

func (g *Gateway) answer(callbackID, text string) {
	if _, err := g.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		g.log.Warn("callback answer failed", "err", err)
	}
}

func equalFoldAt(a, b string) bool {
	return strings.EqualFold(strings.TrimPrefix(a, "@"), strings.TrimPrefix(b, "@"))
}
