package bot

import (
	"context"
	"time"

	"PokerPilot/config"
)

const warningWindow = 10 * time.Second

// SweepDeadlines checks every collecting session against its vote deadline.
// Expired votes are revealed; sessions inside the warning window get a
// one-shot "time is almost up" ping. All mutations go through the per-key
// dispatcher so they never interleave with live updates.
func (g *Gateway) SweepDeadlines(now time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), g.handleTimeout)
	defer cancel()

	sessions, err := g.manager.ActiveSessions(ctx)
	if err != nil {
		g.log.Error("deadline sweep failed", "err", err)
		return
	}

	for _, s := range sessions {
		if s.VoteDeadline.IsZero() {
			continue
		}
		group := g.cfg.Group(s.ChatID, s.TopicID)
		if group == nil {
			continue
		}
		chatID, topicID := s.ChatID, s.TopicID
		deadline, warned := s.VoteDeadline, s.WarningSent

		switch {
		case !now.Before(deadline):
			g.disp.submit(chatID, topicID, func() {
				g.revealOnTimeout(group, chatID, topicID)
			})
		case !warned && deadline.Sub(now) <= warningWindow:
			g.disp.submit(chatID, topicID, func() {
				g.warnDeadline(chatID, topicID)
			})
		}
	}
}

func (g *Gateway) revealOnTimeout(group *config.GroupConfig, chatID int64, topicID int) {
	ctx, cancel := context.WithTimeout(context.Background(), g.handleTimeout)
	defer cancel()

	s, err := g.manager.Reveal(ctx, chatID, topicID)
	if err != nil {
		// A vote or admin action may have revealed it between sweep and now.
		g.log.Debug("timeout reveal skipped", "chat", chatID, "topic", topicID, "err", err)
		return
	}
	g.send(chatID, topicID, "⏰ Time is up, revealing the votes.")
	g.showReveal(group, s)
}

func (g *Gateway) warnDeadline(chatID int64, topicID int) {
	ctx, cancel := context.WithTimeout(context.Background(), g.handleTimeout)
	defer cancel()

	if err := g.manager.MarkWarningSent(ctx, chatID, topicID); err != nil {
		g.log.Warn("failed to mark warning", "chat", chatID, "err", err)
		return
	}
	g.send(chatID, topicID, "⏰ 10 seconds left to vote!")
}
