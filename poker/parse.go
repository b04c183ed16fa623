package poker

import (
	"errors"
	"regexp"
	"strings"
)

var (
	issueKeyRe = regexp.MustCompile(`^[A-Z][A-Z0-9]+-\d+$`)
	keyRefRe   = regexp.MustCompile(`key=([A-Za-z][A-Za-z0-9]+-\d+)`)
	listMarkRe = regexp.MustCompile(`^(?:[-*+]|\d+\.)\s+`)
)

// ErrNoTasks is returned when the pasted text contains nothing estimable.
var ErrNoTasks = errors.New("no tasks found in text")

// ParseResult is the outcome of parsing a task import message. Either JQL is
// set (the whole message was a query) or Tasks carries one entry per line.
type ParseResult struct {
	JQL   string
	Tasks []Task
}

// ParseTasks turns a pasted message into a task list. Supported inputs:
//
//   - "jql=<query>" or "jql: <query>": the rest is a Jira JQL query
//   - lines with "key=ABC-123" or a bare issue key: Jira-linked tasks
//   - any other non-empty line: a plain text task
//
// Empty lines, comment lines (#) and markdown list markers are stripped.
func ParseTasks(text string) (ParseResult, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ParseResult{}, ErrNoTasks
	}

	lower := strings.ToLower(trimmed)
	for _, prefix := range []string{"jql=", "jql:"} {
		if strings.HasPrefix(lower, prefix) {
			jql := strings.TrimSpace(trimmed[len(prefix):])
			if jql == "" {
				return ParseResult{}, ErrNoTasks
			}
			return ParseResult{JQL: jql}, nil
		}
	}

	var tasks []Task
	for _, line := range strings.Split(trimmed, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = listMarkRe.ReplaceAllString(line, "")
		if line == "" {
			continue
		}

		task := NewTask(line)
		if m := keyRefRe.FindStringSubmatch(line); m != nil {
			task.JiraKey = strings.ToUpper(m[1])
		} else if issueKeyRe.MatchString(line) {
			task.JiraKey = line
		}
		tasks = append(tasks, task)
	}

	if len(tasks) == 0 {
		return ParseResult{}, ErrNoTasks
	}
	return ParseResult{Tasks: tasks}, nil
}
