package bot

import (
	"fmt"
	"html"
	"sort"
	"strings"
	"time"

	"PokerPilot/jira"
	"PokerPilot/poker"
)

// renderTask is the header shown on the voting message.
func renderTask(s *poker.Session) string {
	task := s.CurrentTask()
	if task == nil {
		return "No active task."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🃏 <b>Task %d/%d</b>\n", s.CurrentIndex+1, len(s.Tasks))
	if task.JiraKey != "" && task.JiraURL != "" {
		fmt.Fprintf(&b, "<a href=%q>%s</a> %s\n", task.JiraURL, task.JiraKey, html.EscapeString(task.JiraSummary))
	} else {
		b.WriteString(html.EscapeString(task.Text) + "\n")
	}
	return b.String()
}

// renderProgress shows who voted without leaking the values.
func renderProgress(s *poker.Session, deadline time.Time, now time.Time) string {
	task := s.CurrentTask()
	if task == nil {
		return "No active task."
	}

	var b strings.Builder
	b.WriteString(renderTask(s))
	fmt.Fprintf(&b, "\nVoted: %d/%d\n", len(task.Votes), len(s.Participants))

	if pending := s.Pending(); len(pending) > 0 {
		names := make([]string, 0, len(pending))
		for _, p := range pending {
			names = append(names, html.EscapeString(p.Name))
		}
		sort.Strings(names)
		b.WriteString("Waiting for: " + strings.Join(names, ", ") + "\n")
	}

	if !deadline.IsZero() {
		if remaining := deadline.Sub(now).Round(time.Second); remaining > 0 {
			fmt.Fprintf(&b, "\n⏰ %s left", remaining)
		}
	}
	return b.String()
}

// renderReveal shows the raw per-vote breakdown; votes are never collapsed to
// a single number here.
func renderReveal(s *poker.Session, scale []string) string {
	task := s.CurrentTask()
	if task == nil {
		return "No active task."
	}

	var b strings.Builder
	b.WriteString(renderTask(s))
	b.WriteString("\n📊 <b>Votes revealed</b>\n")

	byValue := map[string][]string{}
	for userID, value := range task.Votes {
		name := fmt.Sprint(userID)
		if p, ok := s.Participants[userID]; ok {
			name = p.Name
		}
		byValue[value] = append(byValue[value], html.EscapeString(name))
	}

	for _, v := range append(append([]string{}, scale...), poker.SkipVote) {
		voters, ok := byValue[v]
		if !ok {
			continue
		}
		sort.Strings(voters)
		fmt.Fprintf(&b, "  <b>%s</b> — %s\n", html.EscapeString(v), strings.Join(voters, ", "))
	}
	if len(task.Votes) == 0 {
		b.WriteString("  no votes\n")
	}

	if pending := s.Pending(); len(pending) > 0 {
		names := make([]string, 0, len(pending))
		for _, p := range pending {
			names = append(names, html.EscapeString(p.Name))
		}
		sort.Strings(names)
		b.WriteString("Did not vote: " + strings.Join(names, ", ") + "\n")
	}

	if value, ok := poker.Consensus(task, scale); ok {
		label := "Suggested estimate"
		if task.Override != "" {
			label = "Pinned estimate"
		}
		fmt.Fprintf(&b, "\n%s: <b>%s</b>", label, html.EscapeString(value))
	}
	return b.String()
}

// renderSyncSummary reports the Jira write-back outcome. Per-issue error text
// is preserved verbatim.
func renderSyncSummary(summary jira.SyncSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🔄 <b>Jira sync</b>: %d updated, %d failed\n", summary.Succeeded, summary.Failed)
	for _, r := range summary.Results {
		if r.Err != nil {
			fmt.Fprintf(&b, "  ❌ %s — %s\n", r.Key, html.EscapeString(r.Err.Error()))
		} else {
			fmt.Fprintf(&b, "  ✅ %s → %d\n", r.Key, r.Points)
		}
	}
	if len(summary.Skipped) > 0 {
		fmt.Fprintf(&b, "  ⏭ skipped (no consensus value): %s\n", strings.Join(summary.Skipped, ", "))
	}
	return b.String()
}

func renderBatchDone(tasks []poker.Task, scale []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🏁 <b>Batch finished</b> — %d task(s)\n", len(tasks))
	for i := range tasks {
		t := &tasks[i]
		label := html.EscapeString(t.Text)
		if t.JiraKey != "" {
			label = t.JiraKey
			if t.JiraSummary != "" {
				label += " " + html.EscapeString(t.JiraSummary)
			}
		}
		if value, ok := poker.Consensus(t, scale); ok {
			fmt.Fprintf(&b, "  • %s — <b>%s</b>\n", label, html.EscapeString(value))
		} else {
			fmt.Fprintf(&b, "  • %s — no estimate\n", label)
		}
	}
	return b.String()
}

func renderParticipants(s *poker.Session) string {
	if len(s.Participants) == 0 {
		return "Nobody has joined the session yet."
	}
	var lines []string
	for _, p := range s.Participants {
		lines = append(lines, fmt.Sprintf("  • %s (%s)", html.EscapeString(p.Name), p.Role))
	}
	sort.Strings(lines)
	return fmt.Sprintf("👥 <b>Participants (%d)</b>\n%s", len(s.Participants), strings.Join(lines, "\n"))
}

func renderState(s *poker.Session) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Session: <b>%s</b>\n", s.Status)
	fmt.Fprintf(&b, "Participants: %d\n", len(s.Participants))
	fmt.Fprintf(&b, "Tasks queued: %d (current %d)\n", len(s.Tasks), s.CurrentIndex+1)
	fmt.Fprintf(&b, "History: %d estimated", len(s.History))
	return b.String()
}

func renderDaySummary(tasks []poker.Task, scale []string) string {
	if len(tasks) == 0 {
		return "Nothing was estimated today."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "📋 <b>Estimated today: %d</b>\n", len(tasks))
	for i := range tasks {
		t := &tasks[i]
		label := html.EscapeString(t.Text)
		if t.JiraKey != "" {
			label = t.JiraKey
		}
		switch value, ok := poker.Consensus(t, scale); {
		case t.StoryPoints != nil:
			fmt.Fprintf(&b, "  • %s — <b>%d</b> (in Jira)\n", label, *t.StoryPoints)
		case ok:
			fmt.Fprintf(&b, "  • %s — <b>%s</b>\n", label, html.EscapeString(value))
		default:
			fmt.Fprintf(&b, "  • %s — no estimate\n", label)
		}
	}
	return b.String()
}
