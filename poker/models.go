package poker

import "time"

// Role of a session participant, decided by the shared token used to join.
type Role string

const (
	RoleParticipant Role = "participant"
	RoleLead        Role = "lead"
	RoleAdmin       Role = "admin"
)

// Status of a voting session.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusCollecting Status = "collecting"
	StatusRevealed   Status = "revealed"
)

// SkipVote is the reserved vote value for participants who sit a task out.
// Skip votes are excluded from consensus.
const SkipVote = "skip"

type Participant struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username,omitempty"`
	Name     string `json:"name"`
	Role     Role   `json:"role"`
}

// Task is a single estimable unit, optionally linked to a Jira issue.
type Task struct {
	Text        string `json:"text"`
	JiraKey     string `json:"jira_key,omitempty"`
	JiraSummary string `json:"jira_summary,omitempty"`
	JiraURL     string `json:"jira_url,omitempty"`

	// Votes maps participant id to their vote value, last write wins.
	Votes map[int64]string `json:"votes"`

	// Override is an admin-chosen consensus value that beats the computed one.
	Override string `json:"override,omitempty"`

	// StoryPoints is set once a Jira sync for this task succeeded.
	StoryPoints *int `json:"story_points,omitempty"`

	CompletedAt time.Time `json:"completed_at,omitempty"`
}

func NewTask(text string) Task {
	return Task{Text: text, Votes: map[int64]string{}}
}

// IssueRef is a resolved Jira issue reference used during task import.
type IssueRef struct {
	Key     string
	Summary string
	URL     string
}
