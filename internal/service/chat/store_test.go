package chat_test

import (
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/zhouzirui/z-chat/backend/internal/model/chat"
	chatservice "github.com/zhouzirui/z-chat/backend/internal/service/chat"
)

type fixedClock string

func (c fixedClock) Now() string { return string(c) }

func TestStoreStampsBotReply(t *testing.T) {
	store := chatservice.NewStore(chat.IDPolicyMonotonic, fixedClock("10:00"), "bot.png", nil)

	store.AddUserMessage("hi", "me.png")
	snapshot := store.Dispatch(chat.AppendBotReply{Text: "hello!"})

	want := []chat.Entry{
		{ID: 1, Author: chat.AuthorUser, Message: "hi", Timestamp: "10:00", UserImage: "me.png"},
		{ID: 2, Author: chat.AuthorBot, Message: "hello!", Timestamp: "10:00", UserImage: "bot.png"},
	}
	if diff := cmp.Diff(want, snapshot); diff != "" {
		t.Fatalf("snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestStoreEditStampsTime(t *testing.T) {
	clock := &switchClock{now: "t1"}
	store := chatservice.NewStore(chat.IDPolicyMonotonic, clock, "bot.png", nil)
	store.AddUserMessage("draft", "me.png")

	clock.set("t2")
	snapshot := store.Edit(1, "final")

	if snapshot[0].Message != "final" || snapshot[0].Timestamp != "t2" {
		t.Fatalf("unexpected entry after edit: %+v", snapshot[0])
	}
}

func TestStoreSnapshotIsACopy(t *testing.T) {
	store := chatservice.NewStore(chat.IDPolicyMonotonic, fixedClock("t"), "bot.png", nil)
	store.AddUserMessage("hi", "me.png")

	snapshot := store.Snapshot()
	snapshot[0].Message = "tampered"
	snapshot[0].Votes = 99

	got, _ := store.Find(1)
	if got.Message != "hi" || got.Votes != 0 {
		t.Fatalf("store mutated through snapshot: %+v", got)
	}
}

func TestStoreSubscribe(t *testing.T) {
	store := chatservice.NewStore(chat.IDPolicyMonotonic, fixedClock("t"), "bot.png", nil)
	updates, cancel := store.Subscribe()

	store.AddUserMessage("one", "me.png")
	store.AddUserMessage("two", "me.png")

	snapshot := <-updates
	if len(snapshot) != 2 {
		t.Fatalf("slow subscriber should see the latest snapshot, got %d entries", len(snapshot))
	}

	cancel()
	cancel()
	if _, ok := <-updates; ok {
		t.Fatal("expected channel closed after cancel")
	}

	store.Dispatch(chat.ClearAll{})
}

func TestStoreCloseReleasesSubscribers(t *testing.T) {
	store := chatservice.NewStore(chat.IDPolicyMonotonic, fixedClock("t"), "bot.png", nil)
	first, cancelFirst := store.Subscribe()
	defer cancelFirst()

	store.Close()

	if _, ok := <-first; ok {
		t.Fatal("expected subscriber closed")
	}

	late, _ := store.Subscribe()
	if _, ok := <-late; ok {
		t.Fatal("subscribing to a closed store should yield a closed channel")
	}

	if got := store.Dispatch(chat.AppendBotReply{Text: "still works"}); len(got) != 1 {
		t.Fatalf("closed store should keep applying commands, got %d entries", len(got))
	}
}

func TestStoreAddUserMessageReturnsPriorEntries(t *testing.T) {
	store := chatservice.NewStore(chat.IDPolicyMonotonic, fixedClock("t"), "bot.png", nil)

	first, before := store.AddUserMessage("one", "me.png")
	if len(before) != 0 {
		t.Fatalf("expected no prior entries, got %+v", before)
	}

	second, before := store.AddUserMessage("two", "me.png")
	want := []chat.Entry{first}
	if diff := cmp.Diff(want, before); diff != "" {
		t.Fatalf("prior entries mismatch (-want +got):\n%s", diff)
	}
	if second.ID != 2 {
		t.Fatalf("expected id 2, got %d", second.ID)
	}
}

func TestStoreConcurrentUserMessagesGetUniqueIDs(t *testing.T) {
	store := chatservice.NewStore(chat.IDPolicyMonotonic, fixedClock("t"), "bot.png", nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			store.AddUserMessage("hi", "me.png")
			store.Dispatch(chat.AppendBotReply{Text: "hello"})
		}()
	}
	wg.Wait()

	snapshot := store.Snapshot()
	if len(snapshot) != 100 {
		t.Fatalf("expected 100 entries, got %d", len(snapshot))
	}
	seen := make(map[int]bool)
	for _, e := range snapshot {
		if seen[e.ID] {
			t.Fatalf("duplicate id %d", e.ID)
		}
		seen[e.ID] = true
	}
}

type switchClock struct {
	mu  sync.Mutex
	now string
}

func (c *switchClock) Now() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *switchClock) set(now string) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}
