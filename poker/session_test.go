package poker

import "testing"

func TestCurrentTaskBounds(t *testing.T) {
	s := NewSession(1, 0)
	if s.CurrentTask() != nil {
		t.Fatal("empty session should have no current task")
	}

	s.Tasks = []Task{NewTask("a"), NewTask("b")}
	s.CurrentIndex = 1
	if got := s.CurrentTask(); got == nil || got.Text != "b" {
		t.Fatalf("expected task b, got %+v", got)
	}

	s.CurrentIndex = len(s.Tasks)
	if s.CurrentTask() != nil {
		t.Fatal("index == len(Tasks) means the batch is done, no current task")
	}
}

func TestAllVotedAndPending(t *testing.T) {
	s := NewSession(1, 0)
	s.Tasks = []Task{NewTask("a")}
	s.AddParticipant(Participant{UserID: 10, Name: "Ann"})
	s.AddParticipant(Participant{UserID: 20, Name: "Bob"})

	if s.AllVoted() {
		t.Fatal("nobody voted yet")
	}
	s.Tasks[0].Votes[10] = "5"
	if s.AllVoted() {
		t.Fatal("one vote is still pending")
	}
	pending := s.Pending()
	if len(pending) != 1 || pending[0].UserID != 20 {
		t.Fatalf("pending = %+v, want Bob only", pending)
	}

	s.Tasks[0].Votes[20] = SkipVote
	if !s.AllVoted() {
		t.Fatal("a skip counts as having voted")
	}
}

func TestAllVotedNoParticipants(t *testing.T) {
	s := NewSession(1, 0)
	s.Tasks = []Task{NewTask("a")}
	if s.AllVoted() {
		t.Fatal("empty session can never be all-voted")
	}
}

func TestRemoveParticipant(t *testing.T) {
	s := NewSession(1, 0)
	s.AddParticipant(Participant{UserID: 10, Name: "Ann"})

	p, ok := s.RemoveParticipant(10)
	if !ok || p.Name != "Ann" {
		t.Fatalf("got %+v/%v", p, ok)
	}
	if _, ok := s.RemoveParticipant(10); ok {
		t.Fatal("removing twice should report not found")
	}
}

func TestValidVote(t *testing.T) {
	scale := []string{"1", "2", "3"}
	if !ValidVote("2", scale) {
		t.Error("2 is on the scale")
	}
	if !ValidVote(SkipVote, scale) {
		t.Error("skip is always valid")
	}
	if ValidVote("4", scale) {
		t.Error("4 is not on the scale")
	}
	if ValidVote("", scale) {
		t.Error("empty vote is invalid")
	}
}
