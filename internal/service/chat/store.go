package chat

import (
	"sync"

	"go.uber.org/zap"

	"github.com/zhouzirui/z-chat/backend/internal/model/chat"
)

// Store is the authoritative conversation for one session. Commands are
// applied one at a time; every caller sees a fully applied state.
type Store struct {
	mu       sync.Mutex
	state    chat.State
	clock    Clock
	botImage string
	logger   *zap.Logger

	subs    map[int]chan []chat.Entry
	nextSub int
	closed  bool
}

// NewStore creates an empty store.
func NewStore(policy chat.IDPolicy, clock Clock, botImage string, logger *zap.Logger) *Store {
	if clock == nil {
		clock = LayoutClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		state:    chat.NewState(policy),
		clock:    clock,
		botImage: botImage,
		logger:   logger,
		subs:     make(map[int]chan []chat.Entry),
	}
}

// Dispatch applies cmd and returns the resulting snapshot. Bot replies are
// stamped with the current time and the bot avatar when applied.
func (s *Store) Dispatch(cmd chat.Command) []chat.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	if reply, ok := cmd.(chat.AppendBotReply); ok {
		if reply.Timestamp == "" {
			reply.Timestamp = s.clock.Now()
		}
		if reply.UserImage == "" {
			reply.UserImage = s.botImage
		}
		cmd = reply
	}

	return s.applyLocked(cmd)
}

// AddUserMessage creates a user entry with the next id and appends it in
// one step, so concurrent submissions cannot pick the same id. It also
// returns the entries as they were just before the append.
func (s *Store) AddUserMessage(text, userImage string) (chat.Entry, []chat.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := s.state.Entries()

	entry := chat.Entry{
		ID:        s.state.NextID(),
		Author:    chat.AuthorUser,
		Message:   text,
		Timestamp: s.clock.Now(),
		UserImage: userImage,
	}
	s.applyLocked(chat.AddUserMessage{Entry: entry})
	return entry, before
}

// Edit replaces the text of entry id, stamping the current time.
func (s *Store) Edit(id int, text string) []chat.Entry {
	return s.Dispatch(chat.EditMessage{ID: id, Message: text, Timestamp: s.clock.Now()})
}

// Snapshot returns a copy of the current entries.
func (s *Store) Snapshot() []chat.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Entries()
}

// Find returns the entry with id from the current state.
func (s *Store) Find(id int) (chat.Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Find(id)
}

// Subscribe returns a channel receiving the snapshot after every applied
// command, starting with none. A slow reader only ever sees the newest
// snapshot. The channel is closed by cancel or Close.
func (s *Store) Subscribe() (<-chan []chat.Entry, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan []chat.Entry, 1)
	if s.closed {
		close(ch)
		return ch, func() {}
	}

	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if sub, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(sub)
			}
		})
	}
}

// Close releases all subscribers. Commands are still applied afterwards
// but no longer published.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}

func (s *Store) applyLocked(cmd chat.Command) []chat.Entry {
	before := s.state.Len()
	s.state = chat.Reduce(s.state, cmd)
	snapshot := s.state.Entries()

	s.logger.Debug("applied command",
		zap.String("command", cmd.Name()),
		zap.Int("before", before),
		zap.Int("after", len(snapshot)),
	)

	for _, ch := range s.subs {
		publish(ch, s.state.Entries())
	}
	return snapshot
}

// publish replaces any snapshot the subscriber has not read yet.
func publish(ch chan []chat.Entry, snapshot []chat.Entry) {
	select {
	case ch <- snapshot:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- snapshot:
	default:
	}
}
