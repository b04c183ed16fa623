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
	"PokerPilot/jira"
	"PokerPilot/poker"
)

func (g *Gateway) handleCallback(ctx context.Context, group *config.GroupConfig, cq *tgbotapi.CallbackQuery) {
	if cq.Message == nil || cq.From == nil {
		return
	}
	data := cq.Data

	switch {
	case strings.HasPrefix(data, cbVote):
		g.handleVote(ctx, group, cq, strings.TrimPrefix(data, cbVote))
	case data == cbFinish:
		g.handleReveal(ctx, group, cq)
	case strings.HasPrefix(data, cbTimer):
		g.handleTimer(ctx, group, cq, strings.TrimPrefix(data, cbTimer))
	case strings.HasPrefix(data, cbOverride):
		g.handleOverride(ctx, group, cq, strings.TrimPrefix(data, cbOverride))
	case data == cbAdvance:
		g.handleAdvance(ctx, group, cq)
	case data == cbDone:
		g.handleFinish(ctx, group, cq)
	case strings.HasPrefix(data, cbMenu):
		g.handleMenu(ctx, group, cq, strings.TrimPrefix(data, cbMenu))
	case data == cbAdmin+"sync":
		g.handleResync(ctx, group, cq)
	default:
		g.answer(cq.ID, "")
	}
}

func (g *Gateway) handleVote(ctx context.Context, group *config.GroupConfig, cq *tgbotapi.CallbackQuery, value string) {
	chatID, topicID := cq.Message.Chat.ID, cq.Message.MessageThreadID

	outcome, err := g.manager.CastVote(ctx, group, chatID, topicID, cq.From.ID, value)
	if err != nil {
		g.answer(cq.ID, stateText(err))
		return
	}
	g.answer(cq.ID, "Vote recorded: "+value)

	s := outcome.Session
	if outcome.Revealed {
		g.showReveal(group, s)
		return
	}
	if s.VoteMessageID != 0 {
		kb := voteKeyboard(group.Scale)
		g.edit(chatID, s.VoteMessageID, renderProgress(s, s.VoteDeadline, time.Now()), &kb)
	}
}

func (g *Gateway) handleReveal(ctx context.Context, group *config.GroupConfig, cq *tgbotapi.CallbackQuery) {
	chatID, topicID := cq.Message.Chat.ID, cq.Message.MessageThreadID
	if !g.isAdmin(ctx, group, chatID, topicID, cq.From) {
		g.answer(cq.ID, notAdminMessage)
		return
	}
	s, err := g.manager.Reveal(ctx, chatID, topicID)
	if err != nil {
		g.answer(cq.ID, stateText(err))
		return
	}
	g.answer(cq.ID, "")
	g.showReveal(group, s)
}

func (g *Gateway) handleTimer(ctx context.Context, group *config.GroupConfig, cq *tgbotapi.CallbackQuery, arg string) {
	chatID, topicID := cq.Message.Chat.ID, cq.Message.MessageThreadID
	if !g.isAdmin(ctx, group, chatID, topicID, cq.From) {
		g.answer(cq.ID, notAdminMessage)
		return
	}

	var delta time.Duration
	switch arg {
	case "+30":
		delta = 30 * time.Second
	case "-30":
		delta = -30 * time.Second
	default:
		g.answer(cq.ID, "")
		return
	}

	deadline, err := g.manager.ExtendDeadline(ctx, chatID, topicID, delta)
	if err != nil {
		g.answer(cq.ID, stateText(err))
		return
	}
	g.answer(cq.ID, fmt.Sprintf("%s left", time.Until(deadline).Round(time.Second)))

	if s, err := g.manager.Session(ctx, chatID, topicID); err == nil && s.VoteMessageID != 0 {
		kb := voteKeyboard(group.Scale)
		g.edit(chatID, s.VoteMessageID, renderProgress(s, s.VoteDeadline, time.Now()), &kb)
	}
}

func (g *Gateway) handleOverride(ctx context.Context, group *config.GroupConfig, cq *tgbotapi.CallbackQuery, value string) {
	chatID, topicID := cq.Message.Chat.ID, cq.Message.MessageThreadID
	if !g.isAdmin(ctx, group, chatID, topicID, cq.From) {
		g.answer(cq.ID, notAdminMessage)
		return
	}
	if _, err := g.manager.Override(ctx, group, chatID, topicID, value); err != nil {
		g.answer(cq.ID, stateText(err))
		return
	}
	g.answer(cq.ID, "Estimate pinned to "+value)

	if s, err := g.manager.Session(ctx, chatID, topicID); err == nil {
		g.showReveal(group, s)
	}
}

func (g *Gateway) handleAdvance(ctx context.Context, group *config.GroupConfig, cq *tgbotapi.CallbackQuery) {
	chatID, topicID := cq.Message.Chat.ID, cq.Message.MessageThreadID
	if !g.isAdmin(ctx, group, chatID, topicID, cq.From) {
		g.answer(cq.ID, notAdminMessage)
		return
	}
	s, task, err := g.manager.Advance(ctx, group, chatID, topicID)
	if err != nil {
		g.answer(cq.ID, stateText(err))
		return
	}
	g.answer(cq.ID, "")

	if task == nil {
		// Queue exhausted; only finishing remains.
		g.send(chatID, topicID, "All tasks voted. Finish the batch to record results. 🏁")
		g.finishBatch(ctx, group, chatID, topicID)
		return
	}
	g.postVoteMessage(ctx, group, s)
}

func (g *Gateway) handleFinish(ctx context.Context, group *config.GroupConfig, cq *tgbotapi.CallbackQuery) {
	chatID, topicID := cq.Message.Chat.ID, cq.Message.MessageThreadID
	if !g.isAdmin(ctx, group, chatID, topicID, cq.From) {
		g.answer(cq.ID, notAdminMessage)
		return
	}
	g.answer(cq.ID, "")
	g.finishBatch(ctx, group, chatID, topicID)
}

// finishBatch completes the batch and, when any task carries a Jira key,
// runs the story points sync and reports the summary.
func (g *Gateway) finishBatch(ctx context.Context, group *config.GroupConfig, chatID int64, topicID int) {
	tasks, err := g.manager.Finish(ctx, chatID, topicID)
	if err != nil {
		g.send(chatID, topicID, stateText(err))
		return
	}
	g.send(chatID, topicID, renderBatchDone(tasks, group.Scale))

	hasJira := false
	for i := range tasks {
		if tasks[i].JiraKey != "" {
			hasJira = true
			break
		}
	}
	if !hasJira {
		return
	}

	client := g.jiraFor(ctx, group)
	if client == nil {
		g.send(chatID, topicID, noJiraMessage)
		return
	}

	summary := jira.SyncStoryPoints(ctx, client, group, tasks)
	for _, r := range summary.Results {
		if r.Err == nil {
			if err := g.manager.MarkSynced(ctx, chatID, topicID, r.Key, r.Points); err != nil {
				g.log.Warn("failed to mark synced", "issue", r.Key, "err", err)
			}
		}
	}
	g.send(chatID, topicID, renderSyncSummary(summary))
}

func (g *Gateway) handleMenu(ctx context.Context, group *config.GroupConfig, cq *tgbotapi.CallbackQuery, action string) {
	chatID, topicID := cq.Message.Chat.ID, cq.Message.MessageThreadID
	g.answer(cq.ID, "")

	switch action {
	case "new_task":
		g.send(chatID, topicID, tasksPromptMessage)
	case "summary":
		tasks, err := g.manager.TodayHistory(ctx, chatID, topicID)
		if err != nil {
			g.send(chatID, topicID, "Could not load today's history.")
			return
		}
		g.send(chatID, topicID, renderDaySummary(tasks, group.Scale))
	case "participants":
		s, err := g.manager.Session(ctx, chatID, topicID)
		if err != nil {
			return
		}
		g.send(chatID, topicID, renderParticipants(s))
	case "leave":
		p, err := g.manager.Leave(ctx, chatID, topicID, cq.From.ID)
		if err != nil {
			g.send(chatID, topicID, joinFirstMessage)
			return
		}
		g.send(chatID, topicID, fmt.Sprintf("🚪 %s left the session.", html.EscapeString(p.Name)))
	}
}

// handleResync re-runs the Jira sync over the last finished batch, for when
// the first attempt had failures worth retrying.
func (g *Gateway) handleResync(ctx context.Context, group *config.GroupConfig, cq *tgbotapi.CallbackQuery) {
	chatID, topicID := cq.Message.Chat.ID, cq.Message.MessageThreadID
	if !g.isAdmin(ctx, group, chatID, topicID, cq.From) {
		g.answer(cq.ID, notAdminMessage)
		return
	}
	g.answer(cq.ID, "")

	s, err := g.manager.Session(ctx, chatID, topicID)
	if err != nil || len(s.LastBatch) == 0 {
		g.send(chatID, topicID, "There is no finished batch to sync.")
		return
	}

	client := g.jiraFor(ctx, group)
	if client == nil {
		g.send(chatID, topicID, noJiraMessage)
		return
	}

	summary := jira.SyncStoryPoints(ctx, client, group, s.LastBatch)
	for _, r := range summary.Results {
		if r.Err == nil {
			if err := g.manager.MarkSynced(ctx, chatID, topicID, r.Key, r.Points); err != nil {
				g.log.Warn("failed to mark synced", "issue", r.Key, "err", err)
			}
		}
	}
	g.send(chatID, topicID, renderSyncSummary(summary))
}

// showReveal replaces the voting message with the revealed breakdown and the
// admin reveal keyboard.
func (g *Gateway) showReveal(group *config.GroupConfig, s *poker.Session) {
	text := renderReveal(s, group.Scale)
	kb := revealKeyboard(group.Scale)
	if s.VoteMessageID != 0 {
		g.edit(s.ChatID, s.VoteMessageID, text, &kb)
		return
	}
	g.sendKeyboard(s.ChatID, s.TopicID, text, kb)
}

// stateText maps manager errors to a short user-facing explanation; state
// machine violations are no-ops with a reason, not failures.
func stateText(err error) string {
	var stateErr *poker.StateError
	if errors.As(err, &stateErr) {
		return "Nothing to do: " + stateErr.Reason
	}
	return err.Error()
}
