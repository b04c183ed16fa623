package poker

import "strconv"

// Consensus picks the value written back to Jira for a task: the most frequent
// non-skip vote, ties broken toward the higher scale value. An admin override
// on the task beats the computed value. The second return is false when no
// countable votes exist.
func Consensus(task *Task, scale []string) (string, bool) {
	if task.Override != "" {
		return task.Override, true
	}

	counts := map[string]int{}
	for _, v := range task.Votes {
		if v != SkipVote {
			counts[v]++
		}
	}
	if len(counts) == 0 {
		return "", false
	}

	best := ""
	bestCount := 0
	// Walk the scale from high to low so ties resolve upward.
	for i := len(scale) - 1; i >= 0; i-- {
		v := scale[i]
		if c := counts[v]; c > bestCount {
			best, bestCount = v, c
		}
	}
	if best == "" {
		// Votes exist but none are on the scale; should not happen since
		// CastVote validates, but do not invent a value.
		return "", false
	}
	return best, true
}

// StoryPoints converts a consensus value to the numeric story points written
// to Jira. Non-numeric scale values (e.g. "?") are not syncable.
func StoryPoints(value string) (int, bool) {
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
