package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	tgbotapi "github.com/skinass/telegram-bot-api/v5"

	"PokerPilot/config"
	"PokerPilot/poker"
)

func (g *Gateway) handleMessage(ctx context.Context, group *config.GroupConfig, msg *tgbotapi.Message) {
	if !msg.IsCommand() {
		return
	}

	chatID, topicID := msg.Chat.ID, msg.MessageThreadID

	switch msg.Command() {
	case "start":
		g.send(chatID, topicID, welcomeMessage)
	case "help":
		g.send(chatID, topicID, helpMessage)
	case "menu":
		admin := g.isAdmin(ctx, group, chatID, topicID, msg.From)
		g.sendKeyboard(chatID, topicID, "🃏 <b>Planning Poker</b>", mainMenuKeyboard(admin))
	case "join":
		g.handleJoin(ctx, group, msg)
	case "leave":
		g.handleLeave(ctx, group, msg)
	case "tasks":
		g.handleTasks(ctx, group, msg)
	case "state":
		g.handleState(ctx, group, msg)
	case "reset":
		g.handleReset(ctx, group, msg)
	case "jira_token":
		g.handleJiraToken(ctx, group, msg)
	}
}

func (g *Gateway) handleJoin(ctx context.Context, group *config.GroupConfig, msg *tgbotapi.Message) {
	chatID, topicID := msg.Chat.ID, msg.MessageThreadID
	if msg.From == nil {
		return
	}

	user := poker.Participant{
		UserID:   msg.From.ID,
		Username: msg.From.UserName,
		Name:     displayName(msg.From),
	}
	token := strings.TrimSpace(msg.CommandArguments())

	role, err := g.manager.Join(ctx, group, chatID, topicID, user, token)
	if err != nil {
		g.log.Warn("join failed", "chat", chatID, "user", user.UserID, "err", err)
		g.send(chatID, topicID, unknownTokenMessage)
		return
	}
	g.send(chatID, topicID, fmt.Sprintf("✅ %s joined as <b>%s</b>.", html.EscapeString(user.Name), role))
}

func (g *Gateway) handleLeave(ctx context.Context, group *config.GroupConfig, msg *tgbotapi.Message) {
	chatID, topicID := msg.Chat.ID, msg.MessageThreadID
	if msg.From == nil {
		return
	}
	p, err := g.manager.Leave(ctx, chatID, topicID, msg.From.ID)
	if err != nil {
		g.send(chatID, topicID, joinFirstMessage)
		return
	}
	g.send(chatID, topicID, fmt.Sprintf("🚪 %s left the session.", html.EscapeString(p.Name)))
}

func (g *Gateway) handleTasks(ctx context.Context, group *config.GroupConfig, msg *tgbotapi.Message) {
	chatID, topicID := msg.Chat.ID, msg.MessageThreadID
	if !g.isAdmin(ctx, group, chatID, topicID, msg.From) {
		g.send(chatID, topicID, notAdminMessage)
		return
	}

	text := msg.CommandArguments()
	if strings.TrimSpace(text) == "" {
		g.send(chatID, topicID, tasksPromptMessage)
		return
	}

	s, tasks, err := g.manager.ImportTasks(ctx, group, chatID, topicID, text)
	if err != nil {
		if errors.Is(err, poker.ErrNoTasks) {
			g.send(chatID, topicID, "No tasks found in that message.")
			return
		}
		g.send(chatID, topicID, "Import failed: "+html.EscapeString(err.Error()))
		return
	}

	g.send(chatID, topicID, fmt.Sprintf("📥 Imported %d task(s).", len(tasks)))
	if s.Status == poker.StatusCollecting {
		g.postVoteMessage(ctx, group, s)
	}
}

func (g *Gateway) handleState(ctx context.Context, group *config.GroupConfig, msg *tgbotapi.Message) {
	chatID, topicID := msg.Chat.ID, msg.MessageThreadID
	s, err := g.manager.Session(ctx, chatID, topicID)
	if err != nil {
		g.send(chatID, topicID, "Could not load the session state.")
		return
	}
	g.send(chatID, topicID, renderState(s))
}

func (g *Gateway) handleReset(ctx context.Context, group *config.GroupConfig, msg *tgbotapi.Message) {
	chatID, topicID := msg.Chat.ID, msg.MessageThreadID
	if !g.isAdmin(ctx, group, chatID, topicID, msg.From) {
		g.send(chatID, topicID, notAdminMessage)
		return
	}
	if err := g.manager.Reset(ctx, chatID, topicID); err != nil {
		g.send(chatID, topicID, "Reset failed: "+html.EscapeString(err.Error()))
		return
	}
	g.send(chatID, topicID, "🗑 Task queue cleared. Participants and history are kept.")
}

func (g *Gateway) handleJiraToken(ctx context.Context, group *config.GroupConfig, msg *tgbotapi.Message) {
	chatID, topicID := msg.Chat.ID, msg.MessageThreadID
	if !g.isAdmin(ctx, group, chatID, topicID, msg.From) {
		g.send(chatID, topicID, notAdminMessage)
		return
	}
	token := strings.TrimSpace(msg.CommandArguments())
	if token == "" {
		g.send(chatID, topicID, "Usage: /jira_token &lt;api token&gt; — sent in a private chat, ideally.")
		return
	}
	if g.tokens == nil {
		g.send(chatID, topicID, "Token storage is not configured.")
		return
	}
	if err := g.tokens.Set(ctx, chatID, topicID, token); err != nil {
		g.log.Error("failed to store group token", "chat", chatID, "err", err)
		g.send(chatID, topicID, "Could not store the token.")
		return
	}
	g.send(chatID, topicID, "🔐 Group Jira token saved.")
}

// postVoteMessage sends the voting keyboard for the current task and
// remembers its message id for progress edits.
func (g *Gateway) postVoteMessage(ctx context.Context, group *config.GroupConfig, s *poker.Session) {
	text := renderProgress(s, s.VoteDeadline, time.Now())
	msgID := g.sendKeyboard(s.ChatID, s.TopicID, text, voteKeyboard(group.Scale))
	if msgID == 0 {
		return
	}
	if err := g.manager.SetVoteMessage(ctx, s.ChatID, s.TopicID, msgID); err != nil {
		g.log.Warn("failed to persist vote message id", "chat", s.ChatID, "err", err)
	}
}

func displayName(u *tgbotapi.User) string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		name = u.UserName
	}
	if name == "" {
		name = fmt.Sprint(u.ID)
	}
	return name
}
