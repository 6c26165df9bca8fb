package chat_test

import (
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/zhouzirui/z-chat/backend/internal/model/chat"
)

func userEntry(id int, message string) chat.Entry {
	return chat.Entry{
		ID:        id,
		Author:    chat.AuthorUser,
		Message:   message,
		Timestamp: "t0",
		UserImage: "https://i.pravatar.cc/48?img=7",
	}
}

func TestReduceScenario(t *testing.T) {
	s := chat.NewState(chat.IDPolicyMonotonic)

	s = chat.Reduce(s, chat.AddUserMessage{Entry: userEntry(1, "hi")})
	if s.Len() != 1 || s.Entries()[0].ID != 1 {
		t.Fatalf("after add: %+v", s.Entries())
	}

	s = chat.Reduce(s, chat.AppendBotReply{Text: "hello!", Timestamp: "t1", UserImage: "bot.png"})
	if s.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", s.Len())
	}
	bot := s.Entries()[1]
	if bot.ID != 2 || bot.Author != chat.AuthorBot || bot.Message != "hello!" || bot.Votes != 0 {
		t.Fatalf("unexpected bot entry: %+v", bot)
	}

	s = chat.Reduce(s, chat.IncrementVote{ID: 1})
	if got, _ := s.Find(1); got.Votes != 1 {
		t.Fatalf("expected votes 1, got %d", got.Votes)
	}

	s = chat.Reduce(s, chat.DeleteMessage{ID: 1})
	if s.Len() != 1 || s.Entries()[0].ID != 2 {
		t.Fatalf("after delete: %+v", s.Entries())
	}

	s = chat.Reduce(s, chat.EditMessage{ID: 2, Message: "hi there", Timestamp: "t2"})
	got := s.Entries()[0]
	if got.ID != 2 || got.Message != "hi there" || got.Timestamp != "t2" {
		t.Fatalf("after edit: %+v", got)
	}
}

func TestReduceAppendsAtEnd(t *testing.T) {
	s := chat.NewState(chat.IDPolicyMonotonic, userEntry(1, "a"), userEntry(2, "b"))

	s = chat.Reduce(s, chat.AppendBotReply{Text: "c"})
	s = chat.Reduce(s, chat.AddUserMessage{Entry: userEntry(s.NextID(), "d")})

	var got []string
	for _, e := range s.Entries() {
		got = append(got, e.Message)
	}
	if diff := cmp.Diff([]string{"a", "b", "c", "d"}, got); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestReduceEditOnlyTouchesTarget(t *testing.T) {
	before := chat.NewState(chat.IDPolicyMonotonic, userEntry(1, "a"), userEntry(2, "b"))
	before = chat.Reduce(before, chat.IncrementVote{ID: 2})

	after := chat.Reduce(before, chat.EditMessage{ID: 2, Message: "edited", Timestamp: "t9"})

	want := before.Entries()
	want[1].Message = "edited"
	want[1].Timestamp = "t9"
	if diff := cmp.Diff(want, after.Entries()); diff != "" {
		t.Fatalf("edit mismatch (-want +got):\n%s", diff)
	}
}

func TestReduceVoteSymmetry(t *testing.T) {
	s := chat.NewState(chat.IDPolicyMonotonic, userEntry(1, "a"))

	s = chat.Reduce(s, chat.DecrementVote{ID: 1})
	s = chat.Reduce(s, chat.DecrementVote{ID: 1})
	if got, _ := s.Find(1); got.Votes != -2 {
		t.Fatalf("expected votes -2, got %d", got.Votes)
	}

	s = chat.Reduce(s, chat.IncrementVote{ID: 1})
	s = chat.Reduce(s, chat.DecrementVote{ID: 1})
	if got, _ := s.Find(1); got.Votes != -2 {
		t.Fatalf("increment+decrement should restore -2, got %d", got.Votes)
	}
}

func TestReduceMissingIDIsNoop(t *testing.T) {
	s := chat.NewState(chat.IDPolicyMonotonic, userEntry(1, "a"), userEntry(2, "b"))
	want := s.Entries()

	for _, cmd := range []chat.Command{
		chat.EditMessage{ID: 42, Message: "x", Timestamp: "y"},
		chat.DeleteMessage{ID: 42},
		chat.IncrementVote{ID: 42},
		chat.DecrementVote{ID: 42},
	} {
		got := chat.Reduce(s, cmd).Entries()
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("%s with missing id changed state (-want +got):\n%s", cmd.Name(), diff)
		}
	}
}

func TestReduceClearAll(t *testing.T) {
	s := chat.NewState(chat.IDPolicyMonotonic, userEntry(1, "a"), userEntry(2, "b"), userEntry(3, "c"))

	s = chat.Reduce(s, chat.ClearAll{})
	if s.Len() != 0 || len(s.Entries()) != 0 {
		t.Fatalf("expected empty state, got %+v", s.Entries())
	}
	if s.NextID() != 1 {
		t.Fatalf("expected next id 1 after clear, got %d", s.NextID())
	}
	if s.Policy() != chat.IDPolicyMonotonic {
		t.Fatalf("clear should keep policy, got %s", s.Policy())
	}
}

func TestReduceLeavesPreviousStateUntouched(t *testing.T) {
	before := chat.NewState(chat.IDPolicyMonotonic, userEntry(1, "a"))
	snapshot := before.Entries()

	chat.Reduce(before, chat.EditMessage{ID: 1, Message: "changed", Timestamp: "t"})
	chat.Reduce(before, chat.IncrementVote{ID: 1})
	chat.Reduce(before, chat.DeleteMessage{ID: 1})

	if diff := cmp.Diff(snapshot, before.Entries()); diff != "" {
		t.Fatalf("previous state mutated (-want +got):\n%s", diff)
	}

	entries := before.Entries()
	entries[0].Message = "caller edit"
	if got, _ := before.Find(1); got.Message != "a" {
		t.Fatalf("Entries must return a copy, store now holds %q", got.Message)
	}
}

func TestMonotonicPolicyNeverReusesIDs(t *testing.T) {
	s := chat.NewState(chat.IDPolicyMonotonic)
	s = chat.Reduce(s, chat.AddUserMessage{Entry: userEntry(s.NextID(), "hi")})
	s = chat.Reduce(s, chat.AppendBotReply{Text: "hello"})
	s = chat.Reduce(s, chat.DeleteMessage{ID: 1})
	s = chat.Reduce(s, chat.AppendBotReply{Text: "again"})

	got := s.Entries()
	if len(got) != 2 || got[0].ID != 2 || got[1].ID != 3 {
		t.Fatalf("unexpected ids: %+v", got)
	}
}

func TestLengthPolicyMatchesEntryCount(t *testing.T) {
	s := chat.NewState(chat.IDPolicyLength)
	s = chat.Reduce(s, chat.AddUserMessage{Entry: userEntry(s.NextID(), "hi")})
	s = chat.Reduce(s, chat.AppendBotReply{Text: "hello"})
	s = chat.Reduce(s, chat.DeleteMessage{ID: 1})
	s = chat.Reduce(s, chat.AppendBotReply{Text: "again"})

	got := s.Entries()
	if len(got) != 2 || got[0].ID != 2 || got[1].ID != 2 {
		t.Fatalf("length policy should assign len+1, got %+v", got)
	}
}

func TestMonotonicPolicyKeepsIDsUnique(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	s := chat.NewState(chat.IDPolicyMonotonic)

	for step := 0; step < 500; step++ {
		var cmd chat.Command
		target := rng.IntN(s.NextID() + 1)
		switch rng.IntN(7) {
		case 0:
			cmd = chat.AddUserMessage{Entry: userEntry(s.NextID(), "u")}
		case 1:
			cmd = chat.AppendBotReply{Text: "b"}
		case 2:
			cmd = chat.DeleteMessage{ID: target}
		case 3:
			cmd = chat.EditMessage{ID: target, Message: "e", Timestamp: "t"}
		case 4:
			cmd = chat.IncrementVote{ID: target}
		case 5:
			cmd = chat.DecrementVote{ID: target}
		default:
			if rng.IntN(10) == 0 {
				cmd = chat.ClearAll{}
			} else {
				cmd = chat.AppendBotReply{Text: "b"}
			}
		}
		s = chat.Reduce(s, cmd)

		seen := make(map[int]bool, s.Len())
		for _, e := range s.Entries() {
			if seen[e.ID] {
				t.Fatalf("step %d (%s): duplicate id %d in %+v", step, cmd.Name(), e.ID, s.Entries())
			}
			seen[e.ID] = true
		}
	}
}

func TestParseIDPolicy(t *testing.T) {
	cases := map[string]chat.IDPolicy{
		"":          chat.IDPolicyMonotonic,
		"monotonic": chat.IDPolicyMonotonic,
		" Length ":  chat.IDPolicyLength,
	}
	for raw, want := range cases {
		got, err := chat.ParseIDPolicy(raw)
		if err != nil {
			t.Fatalf("ParseIDPolicy(%q) err: %v", raw, err)
		}
		if got != want {
			t.Fatalf("ParseIDPolicy(%q) = %s, want %s", raw, got, want)
		}
	}

	if _, err := chat.ParseIDPolicy("random"); err == nil {
		t.Fatal("expected error for unknown policy")
	}
}

func TestQuoteReply(t *testing.T) {
	if got := chat.QuoteReply("hello"); got != "@hello: " {
		t.Fatalf("unexpected quote: %q", got)
	}
}
