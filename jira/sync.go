package jira

import (
	"context"
	"fmt"

	log "github.com/inconshreveable/log15/v3"
	"go.uber.org/multierr"

	"PokerPilot/config"
	"PokerPilot/poker"
)

// SyncResult is the outcome for one task's story points write-back.
type SyncResult struct {
	Key    string
	Points int
	Err    error
}

// SyncSummary aggregates a whole batch. Succeeded + Failed always equals the
// number of tasks that carried a Jira key and a consensus value.
type SyncSummary struct {
	Results   []SyncResult
	Succeeded int
	Failed    int
	Skipped   []string // tasks with a key but no syncable consensus
	Err       error
}

// SyncStoryPoints writes the consensus value of every Jira-linked task back
// to Jira. Updates run sequentially against one client to respect rate
// limits; individual failures never abort the batch.
func SyncStoryPoints(ctx context.Context, c *Client, g *config.GroupConfig, tasks []poker.Task) SyncSummary {
	logger := log.New("module", "jira", "chat", g.ChatID, "topic", g.TopicID)
	var summary SyncSummary

	for i := range tasks {
		task := &tasks[i]
		if task.JiraKey == "" {
			continue
		}
		value, ok := poker.Consensus(task, g.Scale)
		if !ok {
			summary.Skipped = append(summary.Skipped, task.JiraKey)
			continue
		}
		points, ok := poker.StoryPoints(value)
		if !ok {
			summary.Skipped = append(summary.Skipped, task.JiraKey)
			continue
		}

		err := c.UpdateStoryPoints(ctx, task.JiraKey, points, g.StoryPointsFieldFor(task.JiraKey))
		result := SyncResult{Key: task.JiraKey, Points: points, Err: err}
		summary.Results = append(summary.Results, result)
		if err != nil {
			summary.Failed++
			summary.Err = multierr.Append(summary.Err, fmt.Errorf("%s: %w", task.JiraKey, err))
			logger.Warn("story points update failed", "issue", task.JiraKey, "err", err)
			continue
		}
		summary.Succeeded++
	}

	logger.Info("batch sync done", "succeeded", summary.Succeeded, "failed", summary.Failed, "skipped", len(summary.Skipped))
	return summary
}
