package poker

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"PokerPilot/config"
)

type memSessionStore struct {
	sessions map[string]*Session
}

func newMemSessionStore() *memSessionStore {
	return &memSessionStore{sessions: map[string]*Session{}}
}

func (s *memSessionStore) key(chatID int64, topicID int) string {
	return fmt.Sprintf("%d_%d", chatID, topicID)
}

func (s *memSessionStore) Get(_ context.Context, chatID int64, topicID int) (*Session, error) {
	if found, ok := s.sessions[s.key(chatID, topicID)]; ok {
		return found, nil
	}
	return NewSession(chatID, topicID), nil
}

func (s *memSessionStore) Save(_ context.Context, sess *Session) error {
	s.sessions[s.key(sess.ChatID, sess.TopicID)] = sess
	return nil
}

func (s *memSessionStore) Delete(_ context.Context, chatID int64, topicID int) error {
	delete(s.sessions, s.key(chatID, topicID))
	return nil
}

func (s *memSessionStore) All(_ context.Context) ([]*Session, error) {
	var out []*Session
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	return out, nil
}

type memRoleStore struct {
	roles map[int64]Role
}

func (s *memRoleStore) Get(_ context.Context, userID int64) (Role, bool, error) {
	r, ok := s.roles[userID]
	return r, ok, nil
}

func (s *memRoleStore) Set(_ context.Context, userID int64, role Role) error {
	s.roles[userID] = role
	return nil
}

type fakeResolver struct {
	issues     map[string]IssueRef
	searchRefs []IssueRef
	searchErr  error
}

func (r *fakeResolver) ResolveIssue(_ context.Context, key string) (IssueRef, error) {
	ref, ok := r.issues[key]
	if !ok {
		return IssueRef{}, fmt.Errorf("issue %s not found", key)
	}
	return ref, nil
}

func (r *fakeResolver) SearchIssues(_ context.Context, _ string, _ int) ([]IssueRef, error) {
	return r.searchRefs, r.searchErr
}

var startOfDay = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func testGroup() *config.GroupConfig {
	return &config.GroupConfig{
		ChatID:   1,
		Admins:   []string{"boss"},
		Timeout:  90,
		Scale:    []string{"1", "2", "3", "5", "8", "13"},
		IsActive: true,
	}
}

func newTestManager(resolver IssueResolver) (*Manager, *memSessionStore) {
	store := newMemSessionStore()
	cfg := &config.Config{
		UserToken:  "utok",
		LeadToken:  "ltok",
		AdminToken: "atok",
		HardAdmin:  "root",
	}
	m := NewManager(store, &memRoleStore{roles: map[int64]Role{}}, resolver, cfg)
	m.now = func() time.Time { return startOfDay }
	return m, store
}

func collectingSession(t *testing.T, m *Manager, g *config.GroupConfig, users ...int64) *Session {
	t.Helper()
	ctx := context.Background()
	for _, id := range users {
		p := Participant{UserID: id, Name: fmt.Sprintf("user%d", id)}
		if _, err := m.Join(ctx, g, g.ChatID, 0, p, "utok"); err != nil {
			t.Fatalf("join %d: %v", id, err)
		}
	}
	s, _, err := m.ImportTasks(ctx, g, g.ChatID, 0, "first task\nsecond task")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	return s
}

func TestJoinRoleFromToken(t *testing.T) {
	m, _ := newTestManager(nil)
	g := testGroup()
	ctx := context.Background()

	cases := []struct {
		token string
		want  Role
	}{
		{"utok", RoleParticipant},
		{"ltok", RoleLead},
		{"atok", RoleAdmin},
	}
	for i, c := range cases {
		p := Participant{UserID: int64(100 + i), Name: "u"}
		role, err := m.Join(ctx, g, 1, 0, p, c.token)
		if err != nil {
			t.Fatalf("join with %q: %v", c.token, err)
		}
		if role != c.want {
			t.Errorf("token %q: role %q, want %q", c.token, role, c.want)
		}
	}

	if _, err := m.Join(ctx, g, 1, 0, Participant{UserID: 200}, "bogus"); err == nil {
		t.Fatal("unknown token must be rejected")
	}
}

func TestJoinFallbackRoles(t *testing.T) {
	m, _ := newTestManager(nil)
	g := testGroup()
	ctx := context.Background()

	role, err := m.Join(ctx, g, 1, 0, Participant{UserID: 1, Username: "Boss"}, "")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if role != RoleAdmin {
		t.Errorf("group admin without token should get admin, got %q", role)
	}

	role, err = m.Join(ctx, g, 1, 0, Participant{UserID: 2, Username: "someone"}, "")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if role != RoleParticipant {
		t.Errorf("plain user should get participant, got %q", role)
	}

	// A stored role survives rejoining without a token.
	if _, err := m.Join(ctx, g, 1, 0, Participant{UserID: 3, Username: "lead"}, "ltok"); err != nil {
		t.Fatalf("join: %v", err)
	}
	role, err = m.Join(ctx, g, 1, 0, Participant{UserID: 3, Username: "lead"}, "")
	if err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	if role != RoleLead {
		t.Errorf("rejoin should keep the stored role, got %q", role)
	}
}

func TestImportTasksStartsBatchWhenIdle(t *testing.T) {
	m, _ := newTestManager(nil)
	g := testGroup()
	s := collectingSession(t, m, g, 10)

	if s.Status != StatusCollecting {
		t.Fatalf("status %q, want collecting", s.Status)
	}
	if s.CurrentIndex != 0 || len(s.Tasks) != 2 {
		t.Fatalf("index %d, tasks %d", s.CurrentIndex, len(s.Tasks))
	}
	if s.BatchID == "" {
		t.Error("batch id must be assigned")
	}
	wantDeadline := startOfDay.Add(90 * time.Second)
	if !s.VoteDeadline.Equal(wantDeadline) {
		t.Errorf("deadline %v, want %v", s.VoteDeadline, wantDeadline)
	}
}

func TestImportTasksAppendsWhileCollecting(t *testing.T) {
	m, _ := newTestManager(nil)
	g := testGroup()
	s := collectingSession(t, m, g, 10)
	batchID := s.BatchID

	s2, added, err := m.ImportTasks(context.Background(), g, 1, 0, "third task")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if len(added) != 1 || len(s2.Tasks) != 3 {
		t.Fatalf("added %d, queue %d", len(added), len(s2.Tasks))
	}
	if s2.CurrentIndex != 0 || s2.BatchID != batchID {
		t.Error("appending tasks must not restart the running batch")
	}
}

func TestImportTasksJQL(t *testing.T) {
	resolver := &fakeResolver{
		searchRefs: []IssueRef{
			{Key: "PROJ-1", Summary: "Login page", URL: "https://x/browse/PROJ-1"},
			{Key: "PROJ-2", Summary: "Checkout", URL: "https://x/browse/PROJ-2"},
		},
	}
	m, _ := newTestManager(resolver)
	g := testGroup()

	s, tasks, err := m.ImportTasks(context.Background(), g, 1, 0, "jql=project = PROJ")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("got %d tasks", len(tasks))
	}
	if tasks[0].JiraKey != "PROJ-1" || tasks[0].JiraSummary != "Login page" {
		t.Errorf("task not enriched: %+v", tasks[0])
	}
	if s.Status != StatusCollecting {
		t.Errorf("status %q", s.Status)
	}
}

func TestImportTasksJQLWithoutJira(t *testing.T) {
	m, _ := newTestManager(nil)
	if _, _, err := m.ImportTasks(context.Background(), testGroup(), 1, 0, "jql=project = X"); err == nil {
		t.Fatal("JQL import without a resolver must fail")
	}
}

func TestImportEnrichClearsDisallowedProject(t *testing.T) {
	resolver := &fakeResolver{issues: map[string]IssueRef{
		"PROJ-1": {Key: "PROJ-1", Summary: "ok", URL: "https://x/browse/PROJ-1"},
	}}
	m, _ := newTestManager(resolver)
	g := testGroup()
	g.JiraProjects = []string{"PROJ"}

	_, tasks, err := m.ImportTasks(context.Background(), g, 1, 0, "PROJ-1\nOTHER-9")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if tasks[0].JiraKey != "PROJ-1" || tasks[0].JiraSummary != "ok" {
		t.Errorf("allowed task not enriched: %+v", tasks[0])
	}
	if tasks[1].JiraKey != "" {
		t.Errorf("disallowed project key must be dropped, got %q", tasks[1].JiraKey)
	}
	if tasks[1].Text != "OTHER-9" {
		t.Errorf("task text must survive, got %q", tasks[1].Text)
	}
}

func TestImportEnrichKeepsKeyOnResolveFailure(t *testing.T) {
	m, _ := newTestManager(&fakeResolver{issues: map[string]IssueRef{}})
	_, tasks, err := m.ImportTasks(context.Background(), testGroup(), 1, 0, "PROJ-404")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if tasks[0].JiraKey != "PROJ-404" {
		t.Errorf("key must survive a failed lookup, got %q", tasks[0].JiraKey)
	}
}

func TestCastVoteOverwrites(t *testing.T) {
	m, _ := newTestManager(nil)
	g := testGroup()
	collectingSession(t, m, g, 10, 20)
	ctx := context.Background()

	if _, err := m.CastVote(ctx, g, 1, 0, 10, "3"); err != nil {
		t.Fatalf("vote: %v", err)
	}
	out, err := m.CastVote(ctx, g, 1, 0, 10, "8")
	if err != nil {
		t.Fatalf("revote: %v", err)
	}
	if got := out.Task.Votes[10]; got != "8" {
		t.Errorf("revote must overwrite, got %q", got)
	}
	if out.Revealed {
		t.Error("one pending participant remains, no auto-reveal yet")
	}
}

func TestCastVoteAutoReveals(t *testing.T) {
	m, _ := newTestManager(nil)
	g := testGroup()
	collectingSession(t, m, g, 10, 20)
	ctx := context.Background()

	if _, err := m.CastVote(ctx, g, 1, 0, 10, "5"); err != nil {
		t.Fatalf("vote: %v", err)
	}
	out, err := m.CastVote(ctx, g, 1, 0, 20, SkipVote)
	if err != nil {
		t.Fatalf("vote: %v", err)
	}
	if !out.Revealed || out.Session.Status != StatusRevealed {
		t.Fatalf("last vote must auto-reveal, status %q", out.Session.Status)
	}
	if !out.Session.VoteDeadline.IsZero() {
		t.Error("reveal must clear the vote deadline")
	}
}

func TestCastVoteRejections(t *testing.T) {
	m, _ := newTestManager(nil)
	g := testGroup()
	collectingSession(t, m, g, 10)
	ctx := context.Background()

	if _, err := m.CastVote(ctx, g, 1, 0, 99, "5"); err == nil {
		t.Error("non-participant vote must be rejected")
	}
	if _, err := m.CastVote(ctx, g, 1, 0, 10, "42"); err == nil {
		t.Error("off-scale vote must be rejected")
	}

	if _, err := m.Reveal(ctx, 1, 0); err != nil {
		t.Fatalf("reveal: %v", err)
	}
	_, err := m.CastVote(ctx, g, 1, 0, 10, "5")
	var stateErr *StateError
	if !errors.As(err, &stateErr) {
		t.Fatalf("vote after reveal should be a StateError, got %v", err)
	}
}

func TestRevealOnlyWhileCollecting(t *testing.T) {
	m, _ := newTestManager(nil)
	ctx := context.Background()

	_, err := m.Reveal(ctx, 1, 0)
	var stateErr *StateError
	if !errors.As(err, &stateErr) {
		t.Fatalf("reveal on idle session should be a StateError, got %v", err)
	}

	g := testGroup()
	collectingSession(t, m, g, 10)
	if _, err := m.Reveal(ctx, 1, 0); err != nil {
		t.Fatalf("reveal: %v", err)
	}
	if _, err := m.Reveal(ctx, 1, 0); !errors.As(err, &stateErr) {
		t.Fatalf("double reveal should be a StateError, got %v", err)
	}
}

func TestExtendDeadline(t *testing.T) {
	m, _ := newTestManager(nil)
	g := testGroup()
	s := collectingSession(t, m, g, 10)
	ctx := context.Background()

	orig := s.VoteDeadline
	d, err := m.ExtendDeadline(ctx, 1, 0, 30*time.Second)
	if err != nil {
		t.Fatalf("extend: %v", err)
	}
	if want := orig.Add(30 * time.Second); !d.Equal(want) {
		t.Errorf("deadline %v, want %v", d, want)
	}

	// Shrinking far below now clamps to a short floor instead of the past.
	d, err = m.ExtendDeadline(ctx, 1, 0, -time.Hour)
	if err != nil {
		t.Fatalf("shrink: %v", err)
	}
	if want := startOfDay.Add(5 * time.Second); !d.Equal(want) {
		t.Errorf("clamped deadline %v, want %v", d, want)
	}
}

func TestOverride(t *testing.T) {
	m, _ := newTestManager(nil)
	g := testGroup()
	collectingSession(t, m, g, 10)
	ctx := context.Background()

	if _, err := m.Override(ctx, g, 1, 0, "8"); err == nil {
		t.Fatal("override while collecting must be rejected")
	}
	if _, err := m.Reveal(ctx, 1, 0); err != nil {
		t.Fatalf("reveal: %v", err)
	}
	if _, err := m.Override(ctx, g, 1, 0, SkipVote); err == nil {
		t.Fatal("skip is not a valid override")
	}
	task, err := m.Override(ctx, g, 1, 0, "8")
	if err != nil {
		t.Fatalf("override: %v", err)
	}
	if task.Override != "8" {
		t.Errorf("override %q", task.Override)
	}
}

func TestAdvanceThroughBatch(t *testing.T) {
	m, _ := newTestManager(nil)
	g := testGroup()
	collectingSession(t, m, g, 10)
	ctx := context.Background()

	if _, _, err := m.Advance(ctx, g, 1, 0); err == nil {
		t.Fatal("advance while collecting must be rejected")
	}

	if _, err := m.CastVote(ctx, g, 1, 0, 10, "5"); err != nil {
		t.Fatalf("vote: %v", err)
	}
	s, task, err := m.Advance(ctx, g, 1, 0)
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if task == nil || task.Text != "second task" {
		t.Fatalf("expected second task, got %+v", task)
	}
	if s.Status != StatusCollecting || len(task.Votes) != 0 {
		t.Error("advancing must reopen voting with a clean slate")
	}

	if _, err := m.CastVote(ctx, g, 1, 0, 10, "3"); err != nil {
		t.Fatalf("vote: %v", err)
	}
	s, task, err = m.Advance(ctx, g, 1, 0)
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if task != nil {
		t.Fatalf("batch is exhausted, got task %+v", task)
	}
	if s.CurrentIndex != len(s.Tasks) {
		t.Errorf("index %d, want %d", s.CurrentIndex, len(s.Tasks))
	}
}

func TestFinishMovesTasksToHistory(t *testing.T) {
	m, store := newTestManager(nil)
	g := testGroup()
	collectingSession(t, m, g, 10)
	ctx := context.Background()

	if _, err := m.Finish(ctx, 1, 0); err == nil {
		t.Fatal("finish while collecting must be rejected")
	}

	if _, err := m.CastVote(ctx, g, 1, 0, 10, "5"); err != nil {
		t.Fatalf("vote: %v", err)
	}
	done, err := m.Finish(ctx, 1, 0)
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if len(done) != 2 {
		t.Fatalf("finished %d tasks", len(done))
	}
	for _, task := range done {
		if !task.CompletedAt.Equal(startOfDay) {
			t.Errorf("completed at %v", task.CompletedAt)
		}
	}

	s := store.sessions["1_0"]
	if s.Status != StatusIdle || len(s.Tasks) != 0 || s.BatchID != "" {
		t.Errorf("session not reset: %+v", s)
	}
	if len(s.History) != 2 || len(s.LastBatch) != 2 {
		t.Errorf("history %d, last batch %d", len(s.History), len(s.LastBatch))
	}
	if len(s.Participants) != 1 {
		t.Error("participants must survive finishing a batch")
	}
}

func TestMarkSynced(t *testing.T) {
	m, store := newTestManager(nil)
	g := testGroup()
	collectingSession(t, m, g, 10)
	ctx := context.Background()

	s := store.sessions["1_0"]
	s.Tasks[0].JiraKey = "PROJ-1"
	if _, err := m.CastVote(ctx, g, 1, 0, 10, "5"); err != nil {
		t.Fatalf("vote: %v", err)
	}
	if _, err := m.Finish(ctx, 1, 0); err != nil {
		t.Fatalf("finish: %v", err)
	}

	if err := m.MarkSynced(ctx, 1, 0, "PROJ-1", 5); err != nil {
		t.Fatalf("mark: %v", err)
	}
	s = store.sessions["1_0"]
	if s.LastBatch[0].StoryPoints == nil || *s.LastBatch[0].StoryPoints != 5 {
		t.Error("last batch entry not marked")
	}
	if s.History[0].StoryPoints == nil || *s.History[0].StoryPoints != 5 {
		t.Error("history entry not marked")
	}
	if err := m.MarkSynced(ctx, 1, 0, "NOPE-1", 3); err != nil {
		t.Fatalf("marking an unknown key is a no-op, got %v", err)
	}
}

func TestActiveSessions(t *testing.T) {
	m, store := newTestManager(nil)
	g := testGroup()
	collectingSession(t, m, g, 10)

	idle := NewSession(2, 0)
	store.sessions["2_0"] = idle

	active, err := m.ActiveSessions(context.Background())
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if len(active) != 1 || active[0].ChatID != 1 {
		t.Fatalf("active = %+v", active)
	}
}

func TestTodayHistoryAndTrim(t *testing.T) {
	m, store := newTestManager(nil)
	ctx := context.Background()

	s := NewSession(1, 0)
	old := NewTask("ancient")
	old.CompletedAt = startOfDay.Add(-120 * 24 * time.Hour)
	yesterday := NewTask("yesterday")
	yesterday.CompletedAt = startOfDay.Add(-24 * time.Hour)
	today := NewTask("today")
	today.CompletedAt = startOfDay.Add(-time.Hour)
	s.History = []Task{old, yesterday, today}
	store.sessions["1_0"] = s

	got, err := m.TodayHistory(ctx, 1, 0)
	if err != nil {
		t.Fatalf("today: %v", err)
	}
	if len(got) != 1 || got[0].Text != "today" {
		t.Fatalf("today = %+v", got)
	}

	if err := m.TrimHistory(ctx, 90*24*time.Hour); err != nil {
		t.Fatalf("trim: %v", err)
	}
	if len(s.History) != 2 {
		t.Fatalf("history after trim = %d, want 2", len(s.History))
	}
	for _, task := range s.History {
		if task.Text == "ancient" {
			t.Error("entry past retention must be dropped")
		}
	}
}

func TestReset(t *testing.T) {
	m, store := newTestManager(nil)
	g := testGroup()
	collectingSession(t, m, g, 10)
	ctx := context.Background()

	if err := m.Reset(ctx, 1, 0); err != nil {
		t.Fatalf("reset: %v", err)
	}
	s := store.sessions["1_0"]
	if s.Status != StatusIdle || len(s.Tasks) != 0 {
		t.Errorf("session not reset: %+v", s)
	}
	if len(s.Participants) != 1 {
		t.Error("reset keeps participants")
	}
}
