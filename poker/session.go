package poker

import "time"

// Session is the voting state for one chat/topic pair.
type Session struct {
	ChatID  int64  `json:"chat_id"`
	TopicID int    `json:"topic_id"`
	Status  Status `json:"status"`

	Participants map[int64]Participant `json:"participants"`

	Tasks []Task `json:"tasks_queue"`

	// CurrentIndex is always within [0, len(Tasks)]; len(Tasks) means the
	// batch ran out of tasks.
	CurrentIndex int `json:"current_task_index"`

	History   []Task `json:"history"`
	LastBatch []Task `json:"last_batch"`

	BatchID        string    `json:"current_batch_id,omitempty"`
	BatchStartedAt time.Time `json:"current_batch_started_at,omitempty"`

	VoteDeadline  time.Time `json:"vote_deadline,omitempty"`
	WarningSent   bool      `json:"warning_sent"`
	VoteMessageID int       `json:"active_vote_message_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewSession(chatID int64, topicID int) *Session {
	now := time.Now().UTC()
	return &Session{
		ChatID:       chatID,
		TopicID:      topicID,
		Status:       StatusIdle,
		Participants: map[int64]Participant{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// CurrentTask returns the task being voted on, or nil when the batch is
// finished or empty.
func (s *Session) CurrentTask() *Task {
	if s.CurrentIndex < 0 || s.CurrentIndex >= len(s.Tasks) {
		return nil
	}
	return &s.Tasks[s.CurrentIndex]
}

func (s *Session) AddParticipant(p Participant) {
	s.Participants[p.UserID] = p
	s.touch()
}

func (s *Session) RemoveParticipant(userID int64) (Participant, bool) {
	p, ok := s.Participants[userID]
	if ok {
		delete(s.Participants, userID)
		s.touch()
	}
	return p, ok
}

// AllVoted reports whether every participant has voted on the current task.
func (s *Session) AllVoted() bool {
	task := s.CurrentTask()
	if task == nil || len(s.Participants) == 0 {
		return false
	}
	for id := range s.Participants {
		if _, ok := task.Votes[id]; !ok {
			return false
		}
	}
	return true
}

// Pending returns participants who have not voted on the current task yet.
func (s *Session) Pending() []Participant {
	task := s.CurrentTask()
	if task == nil {
		return nil
	}
	var out []Participant
	for id, p := range s.Participants {
		if _, ok := task.Votes[id]; !ok {
			out = append(out, p)
		}
	}
	return out
}

// ValidVote reports whether value is legal for the given scale.
func ValidVote(value string, scale []string) bool {
	if value == SkipVote {
		return true
	}
	for _, v := range scale {
		if v == value {
			return true
		}
	}
	return false
}

func (s *Session) touch() {
	s.UpdatedAt = time.Now().UTC()
}
