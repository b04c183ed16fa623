package poker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/inconshreveable/log15/v3"

	"PokerPilot/config"
)

// SessionStore persists session state keyed by (chat, topic). Get on an
// unknown key returns a fresh idle session.
type SessionStore interface {
	Get(ctx context.Context, chatID int64, topicID int) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, chatID int64, topicID int) error
	All(ctx context.Context) ([]*Session, error)
}

// RoleStore remembers which role a user joined with across restarts.
type RoleStore interface {
	Get(ctx context.Context, userID int64) (Role, bool, error)
	Set(ctx context.Context, userID int64, role Role) error
}

// IssueResolver enriches imported tasks from Jira. Implemented by the jira
// package; nil disables enrichment.
type IssueResolver interface {
	ResolveIssue(ctx context.Context, key string) (IssueRef, error)
	SearchIssues(ctx context.Context, jql string, maxResults int) ([]IssueRef, error)
}

// Manager drives the session state machine:
//
//	idle -> collecting -> revealed -> (next task: collecting | finish: idle)
//
// The Telegram gateway serializes calls per (chat, topic), so Manager itself
// does no locking.
type Manager struct {
	store  SessionStore
	roles  RoleStore
	issues IssueResolver
	cfg    *config.Config
	log    log.Logger

	now func() time.Time
}

func NewManager(store SessionStore, roles RoleStore, issues IssueResolver, cfg *config.Config) *Manager {
	return &Manager{
		store:  store,
		roles:  roles,
		issues: issues,
		cfg:    cfg,
		log:    log.New("module", "poker"),
		now:    time.Now,
	}
}

// Session exposes the stored session for read-only rendering.
func (m *Manager) Session(ctx context.Context, chatID int64, topicID int) (*Session, error) {
	return m.store.Get(ctx, chatID, topicID)
}

// ActiveSessions returns sessions currently collecting votes, for the
// deadline sweep.
func (m *Manager) ActiveSessions(ctx context.Context) ([]*Session, error) {
	all, err := m.store.All(ctx)
	if err != nil {
		return nil, err
	}
	var active []*Session
	for _, s := range all {
		if s.Status == StatusCollecting {
			active = append(active, s)
		}
	}
	return active, nil
}

// RoleForToken maps a shared join token to a role. Unknown tokens get no role.
func (m *Manager) RoleForToken(token string) (Role, bool) {
	switch {
	case token == "":
		return "", false
	case token == m.cfg.AdminToken:
		return RoleAdmin, true
	case token == m.cfg.LeadToken:
		return RoleLead, true
	case token == m.cfg.UserToken:
		return RoleParticipant, true
	}
	return "", false
}

// Join adds a user to the session. The role comes from the supplied token,
// falling back to the previously stored role, then to plain participant for
// group admins. Joining twice updates the display name and keeps the role.
func (m *Manager) Join(ctx context.Context, g *config.GroupConfig, chatID int64, topicID int, user Participant, token string) (Role, error) {
	role, ok := m.RoleForToken(token)
	if !ok {
		if token != "" {
			return "", fmt.Errorf("unknown join token")
		}
		if stored, found, err := m.roles.Get(ctx, user.UserID); err == nil && found {
			role = stored
		} else if g.IsAdmin(user.Username) || m.isHardAdmin(user.Username) {
			role = RoleAdmin
		} else {
			role = RoleParticipant
		}
	}

	s, err := m.store.Get(ctx, chatID, topicID)
	if err != nil {
		return "", err
	}

	user.Role = role
	s.AddParticipant(user)

	if err := m.roles.Set(ctx, user.UserID, role); err != nil {
		m.log.Warn("failed to persist role", "user", user.UserID, "err", err)
	}
	if err := m.store.Save(ctx, s); err != nil {
		return "", err
	}
	m.log.Info("participant joined", "chat", chatID, "topic", topicID, "user", user.UserID, "role", role)
	return role, nil
}

func (m *Manager) Leave(ctx context.Context, chatID int64, topicID int, userID int64) (Participant, error) {
	s, err := m.store.Get(ctx, chatID, topicID)
	if err != nil {
		return Participant{}, err
	}
	p, ok := s.RemoveParticipant(userID)
	if !ok {
		return Participant{}, fmt.Errorf("user %d is not in the session", userID)
	}
	return p, m.store.Save(ctx, s)
}

// ImportTasks parses a message into tasks, enriches Jira references and
// appends them to the queue. When the session is idle the batch starts
// immediately and the session moves to collecting.
func (m *Manager) ImportTasks(ctx context.Context, g *config.GroupConfig, chatID int64, topicID int, text string) (*Session, []Task, error) {
	parsed, err := ParseTasks(text)
	if err != nil {
		return nil, nil, err
	}

	tasks := parsed.Tasks
	if parsed.JQL != "" {
		if m.issues == nil {
			return nil, nil, fmt.Errorf("jira is not configured, cannot run JQL import")
		}
		refs, err := m.issues.SearchIssues(ctx, parsed.JQL, 50)
		if err != nil {
			return nil, nil, fmt.Errorf("jql search: %w", err)
		}
		if len(refs) == 0 {
			return nil, nil, ErrNoTasks
		}
		for _, ref := range refs {
			t := NewTask(ref.Key + " " + ref.Summary)
			t.JiraKey, t.JiraSummary, t.JiraURL = ref.Key, ref.Summary, ref.URL
			tasks = append(tasks, t)
		}
	}

	for i := range tasks {
		m.enrich(ctx, g, &tasks[i])
	}

	s, err := m.store.Get(ctx, chatID, topicID)
	if err != nil {
		return nil, nil, err
	}
	s.Tasks = append(s.Tasks, tasks...)
	s.touch()

	if s.Status == StatusIdle {
		m.startBatch(s, g)
	}
	if err := m.store.Save(ctx, s); err != nil {
		return nil, nil, err
	}
	m.log.Info("tasks imported", "chat", chatID, "topic", topicID, "count", len(tasks), "status", s.Status)
	return s, tasks, nil
}

// StartBatch restarts voting over the queued tasks from the first one.
func (m *Manager) StartBatch(ctx context.Context, g *config.GroupConfig, chatID int64, topicID int) (*Session, error) {
	s, err := m.store.Get(ctx, chatID, topicID)
	if err != nil {
		return nil, err
	}
	if len(s.Tasks) == 0 {
		return nil, stateErr("start", s.Status, "no tasks queued")
	}
	m.startBatch(s, g)
	return s, m.store.Save(ctx, s)
}

func (m *Manager) startBatch(s *Session, g *config.GroupConfig) {
	s.Status = StatusCollecting
	s.CurrentIndex = 0
	s.BatchID = uuid.NewString()
	s.BatchStartedAt = m.now().UTC()
	if t := s.CurrentTask(); t != nil {
		t.Votes = map[int64]string{}
	}
	m.resetDeadline(s, g)
	s.touch()
}

func (m *Manager) resetDeadline(s *Session, g *config.GroupConfig) {
	s.VoteDeadline = m.now().Add(time.Duration(g.Timeout) * time.Second)
	s.WarningSent = false
}

// VoteOutcome reports what a cast vote changed.
type VoteOutcome struct {
	Session  *Session
	Task     *Task
	Revealed bool // all participants voted, session moved to revealed
}

// CastVote records one vote for the current task. Re-voting overwrites the
// previous value. When the last pending participant votes, the session
// reveals automatically.
func (m *Manager) CastVote(ctx context.Context, g *config.GroupConfig, chatID int64, topicID int, userID int64, value string) (VoteOutcome, error) {
	s, err := m.store.Get(ctx, chatID, topicID)
	if err != nil {
		return VoteOutcome{}, err
	}
	if s.Status != StatusCollecting {
		return VoteOutcome{}, stateErr("vote", s.Status, "voting is not open")
	}
	task := s.CurrentTask()
	if task == nil {
		return VoteOutcome{}, stateErr("vote", s.Status, "no active task")
	}
	if _, ok := s.Participants[userID]; !ok {
		return VoteOutcome{}, fmt.Errorf("join the session before voting")
	}
	if !ValidVote(value, g.Scale) {
		return VoteOutcome{}, fmt.Errorf("vote %q is not on the scale", value)
	}

	task.Votes[userID] = value
	s.touch()

	out := VoteOutcome{Session: s, Task: task}
	if s.AllVoted() {
		m.reveal(s)
		out.Revealed = true
	}
	return out, m.store.Save(ctx, s)
}

// Reveal closes voting on the current task and shows the votes. Only legal
// while collecting.
func (m *Manager) Reveal(ctx context.Context, chatID int64, topicID int) (*Session, error) {
	s, err := m.store.Get(ctx, chatID, topicID)
	if err != nil {
		return nil, err
	}
	if s.Status != StatusCollecting {
		return nil, stateErr("reveal", s.Status, "nothing is being voted on")
	}
	if s.CurrentTask() == nil {
		return nil, stateErr("reveal", s.Status, "no active task")
	}
	m.reveal(s)
	return s, m.store.Save(ctx, s)
}

func (m *Manager) reveal(s *Session) {
	s.Status = StatusRevealed
	s.VoteDeadline = time.Time{}
	s.WarningSent = false
	s.touch()
}

// ExtendDeadline shifts the current vote deadline by delta (may be negative).
// The deadline never moves into the past.
func (m *Manager) ExtendDeadline(ctx context.Context, chatID int64, topicID int, delta time.Duration) (time.Time, error) {
	s, err := m.store.Get(ctx, chatID, topicID)
	if err != nil {
		return time.Time{}, err
	}
	if s.Status != StatusCollecting || s.VoteDeadline.IsZero() {
		return time.Time{}, stateErr("timer", s.Status, "no running vote timer")
	}
	d := s.VoteDeadline.Add(delta)
	if min := m.now().Add(5 * time.Second); d.Before(min) {
		d = min
	}
	s.VoteDeadline = d
	s.WarningSent = false
	s.touch()
	return d, m.store.Save(ctx, s)
}

// Override lets an admin pin the consensus value for the current (revealed)
// task before it is synced.
func (m *Manager) Override(ctx context.Context, g *config.GroupConfig, chatID int64, topicID int, value string) (*Task, error) {
	s, err := m.store.Get(ctx, chatID, topicID)
	if err != nil {
		return nil, err
	}
	if s.Status != StatusRevealed {
		return nil, stateErr("override", s.Status, "votes are not revealed")
	}
	task := s.CurrentTask()
	if task == nil {
		return nil, stateErr("override", s.Status, "no active task")
	}
	if !ValidVote(value, g.Scale) || value == SkipVote {
		return nil, fmt.Errorf("override %q is not on the scale", value)
	}
	task.Override = value
	s.touch()
	return task, m.store.Save(ctx, s)
}

// Advance moves to the next task. Returns the new current task, or nil when
// the batch ran out of tasks (CurrentIndex == len(Tasks)).
func (m *Manager) Advance(ctx context.Context, g *config.GroupConfig, chatID int64, topicID int) (*Session, *Task, error) {
	s, err := m.store.Get(ctx, chatID, topicID)
	if err != nil {
		return nil, nil, err
	}
	if s.Status != StatusRevealed {
		return nil, nil, stateErr("advance", s.Status, "reveal the current task first")
	}

	s.CurrentIndex++
	if s.CurrentIndex >= len(s.Tasks) {
		s.CurrentIndex = len(s.Tasks)
		s.touch()
		return s, nil, m.store.Save(ctx, s)
	}

	s.Status = StatusCollecting
	task := s.CurrentTask()
	task.Votes = map[int64]string{}
	m.resetDeadline(s, g)
	s.touch()
	return s, task, m.store.Save(ctx, s)
}

// Finish completes the batch: queued tasks move to history and the last-batch
// slot, the session returns to idle. The returned tasks are a copy safe to
// hand to the Jira sync.
func (m *Manager) Finish(ctx context.Context, chatID int64, topicID int) ([]Task, error) {
	s, err := m.store.Get(ctx, chatID, topicID)
	if err != nil {
		return nil, err
	}
	if s.Status != StatusRevealed {
		return nil, stateErr("finish", s.Status, "reveal the current task first")
	}

	finishedAt := m.now().UTC()
	completed := make([]Task, len(s.Tasks))
	copy(completed, s.Tasks)
	for i := range completed {
		completed[i].CompletedAt = finishedAt
	}

	s.LastBatch = completed
	s.History = append(s.History, completed...)
	s.Tasks = nil
	s.CurrentIndex = 0
	s.Status = StatusIdle
	s.BatchID = ""
	s.BatchStartedAt = time.Time{}
	s.VoteDeadline = time.Time{}
	s.VoteMessageID = 0
	s.touch()

	if err := m.store.Save(ctx, s); err != nil {
		return nil, err
	}
	m.log.Info("batch finished", "chat", chatID, "topic", topicID, "tasks", len(completed))
	return completed, nil
}

// MarkSynced records a successful story points write-back in the session
// history so the resolved value survives restarts.
func (m *Manager) MarkSynced(ctx context.Context, chatID int64, topicID int, issueKey string, points int) error {
	s, err := m.store.Get(ctx, chatID, topicID)
	if err != nil {
		return err
	}
	marked := false
	for _, tasks := range [][]Task{s.LastBatch, s.History} {
		for i := range tasks {
			if tasks[i].JiraKey == issueKey && tasks[i].StoryPoints == nil {
				p := points
				tasks[i].StoryPoints = &p
				marked = true
			}
		}
	}
	if !marked {
		return nil
	}
	s.touch()
	return m.store.Save(ctx, s)
}

// SetVoteMessage remembers the Telegram message carrying the active vote
// keyboard so progress edits survive restarts.
func (m *Manager) SetVoteMessage(ctx context.Context, chatID int64, topicID int, messageID int) error {
	s, err := m.store.Get(ctx, chatID, topicID)
	if err != nil {
		return err
	}
	s.VoteMessageID = messageID
	s.touch()
	return m.store.Save(ctx, s)
}

// MarkWarningSent flips the one-shot deadline warning flag.
func (m *Manager) MarkWarningSent(ctx context.Context, chatID int64, topicID int) error {
	s, err := m.store.Get(ctx, chatID, topicID)
	if err != nil {
		return err
	}
	if s.WarningSent {
		return nil
	}
	s.WarningSent = true
	return m.store.Save(ctx, s)
}

// Reset drops the queued tasks and any collected votes for them, keeping
// participants and history.
func (m *Manager) Reset(ctx context.Context, chatID int64, topicID int) error {
	s, err := m.store.Get(ctx, chatID, topicID)
	if err != nil {
		return err
	}
	s.Tasks = nil
	s.CurrentIndex = 0
	s.Status = StatusIdle
	s.BatchID = ""
	s.BatchStartedAt = time.Time{}
	s.VoteDeadline = time.Time{}
	s.VoteMessageID = 0
	s.touch()
	m.log.Info("session reset", "chat", chatID, "topic", topicID)
	return m.store.Save(ctx, s)
}

// TodayHistory returns tasks completed today, for the day summary menu.
func (m *Manager) TodayHistory(ctx context.Context, chatID int64, topicID int) ([]Task, error) {
	s, err := m.store.Get(ctx, chatID, topicID)
	if err != nil {
		return nil, err
	}
	y, mo, d := m.now().UTC().Date()
	var out []Task
	for _, t := range s.History {
		ty, tmo, td := t.CompletedAt.UTC().Date()
		if ty == y && tmo == mo && td == d {
			out = append(out, t)
		}
	}
	return out, nil
}

// TrimHistory drops history entries older than the retention window.
func (m *Manager) TrimHistory(ctx context.Context, retention time.Duration) error {
	sessions, err := m.store.All(ctx)
	if err != nil {
		return err
	}
	cutoff := m.now().Add(-retention)
	for _, s := range sessions {
		kept := s.History[:0]
		for _, t := range s.History {
			if t.CompletedAt.After(cutoff) {
				kept = append(kept, t)
			}
		}
		if len(kept) == len(s.History) {
			continue
		}
		s.History = kept
		s.touch()
		if err := m.store.Save(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) enrich(ctx context.Context, g *config.GroupConfig, t *Task) {
	if t.JiraKey == "" || m.issues == nil {
		return
	}
	if !g.ProjectAllowed(t.JiraKey) {
		m.log.Warn("issue project not allowed for group", "key", t.JiraKey, "chat", g.ChatID)
		t.JiraKey = ""
		return
	}
	ref, err := m.issues.ResolveIssue(ctx, t.JiraKey)
	if err != nil {
		// Keep the key; the task is still estimable and syncable.
		m.log.Warn("could not resolve issue", "key", t.JiraKey, "err", err)
		return
	}
	t.JiraSummary = ref.Summary
	t.JiraURL = ref.URL
}

func (m *Manager) isHardAdmin(username string) bool {
	return m.cfg.HardAdmin != "" && username != "" &&
		strings.EqualFold(strings.TrimPrefix(username, "@"), m.cfg.HardAdmin)
}
