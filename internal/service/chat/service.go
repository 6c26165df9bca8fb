package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zhouzirui/z-chat/backend/internal/model/chat"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrEmptyMessage    = errors.New("message is required")
	ErrServiceClosed   = errors.New("chat service closed")
)

// Gateway turns a user message into a bot reply. history holds the
// conversation before the message, oldest first.
type Gateway interface {
	SendMessage(ctx context.Context, history []chat.Entry, message string) (string, error)
}

// Options configures the stores created by the service.
type Options struct {
	IDPolicy     chat.IDPolicy
	BotImage     string
	ReplyTimeout time.Duration
	Clock        Clock
	Avatars      AvatarSource
}

type session struct {
	info  chat.Session
	store *Store
}

// Service owns one Store per chat session and bridges user submissions to
// the reply gateway.
type Service struct {
	mu       sync.RWMutex
	sessions map[string]*session

	gateway Gateway
	opts    Options
	logger  *zap.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	closed  bool
	pending sync.WaitGroup
}

// NewService bootstraps the in-memory chat service.
func NewService(gateway Gateway, opts Options, logger *zap.Logger) *Service {
	if opts.Clock == nil {
		opts.Clock = LayoutClock{}
	}
	if opts.Avatars == nil {
		opts.Avatars = NewPravatarSource(0)
	}
	if opts.ReplyTimeout <= 0 {
		opts.ReplyTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		sessions: make(map[string]*session),
		gateway:  gateway,
		opts:     opts,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// CreateSession provisions an anonymous session with an empty store.
func (s *Service) CreateSession(_ context.Context) (chat.Session, error) {
	info := chat.Session{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
	}
	store := NewStore(s.opts.IDPolicy, s.opts.Clock, s.opts.BotImage, s.logger.With(zap.String("session", info.ID)))

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return chat.Session{}, ErrServiceClosed
	}
	s.sessions[info.ID] = &session{info: info, store: store}
	s.mu.Unlock()

	s.logger.Info("session created", zap.String("session", info.ID))
	return info, nil
}

// GetSession retrieves a session by identifier.
func (s *Service) GetSession(_ context.Context, sessionID string) (chat.Session, error) {
	sess, err := s.lookup(sessionID)
	if err != nil {
		return chat.Session{}, err
	}
	return sess.info, nil
}

// CloseSession drops the session and releases its subscribers. Replies
// still pending for it are discarded when they arrive.
func (s *Service) CloseSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	s.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	sess.store.Close()
	s.logger.Info("session closed", zap.String("session", sessionID))
	return nil
}

// Store returns the store bound to sessionID.
func (s *Service) Store(_ context.Context, sessionID string) (*Store, error) {
	sess, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	return sess.store, nil
}

// Snapshot returns the current entries of a session.
func (s *Service) Snapshot(ctx context.Context, sessionID string) ([]chat.Entry, error) {
	store, err := s.Store(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return store.Snapshot(), nil
}

// SendMessage appends the user's message and asks the gateway for a reply
// in the background. When replyTo names an existing entry its text is
// quoted in front of the message. The text is stored as typed.
func (s *Service) SendMessage(ctx context.Context, sessionID, text string, replyTo *int) (chat.Entry, error) {
	if strings.TrimSpace(text) == "" {
		return chat.Entry{}, ErrEmptyMessage
	}

	store, err := s.Store(ctx, sessionID)
	if err != nil {
		return chat.Entry{}, err
	}

	if replyTo != nil {
		if quoted, ok := store.Find(*replyTo); ok {
			text = chat.QuoteReply(quoted.Message) + text
		}
	}

	if s.gateway == nil {
		entry, _ := store.AddUserMessage(text, s.opts.Avatars.UserImage())
		return entry, nil
	}

	// pending.Add must not race with the Wait in Close.
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return chat.Entry{}, ErrServiceClosed
	}
	s.pending.Add(1)
	s.mu.RUnlock()

	entry, history := store.AddUserMessage(text, s.opts.Avatars.UserImage())
	go s.awaitReply(sessionID, history, entry.Message)
	return entry, nil
}

func (s *Service) awaitReply(sessionID string, history []chat.Entry, message string) {
	defer s.pending.Done()

	ctx, cancel := context.WithTimeout(s.ctx, s.opts.ReplyTimeout)
	defer cancel()

	reply, err := s.gateway.SendMessage(ctx, history, message)
	if err != nil {
		s.logger.Warn("gateway failed, no reply appended", zap.String("session", sessionID), zap.Error(err))
		return
	}

	sess, err := s.lookup(sessionID)
	if err != nil {
		s.logger.Debug("reply dropped for closed session", zap.String("session", sessionID))
		return
	}
	snapshot := sess.store.Dispatch(chat.AppendBotReply{Text: reply})
	s.logger.Info("bot replied", zap.String("session", sessionID), zap.Int("entries", len(snapshot)))
}

// EditMessage replaces the text of an entry.
func (s *Service) EditMessage(ctx context.Context, sessionID string, id int, text string) ([]chat.Entry, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}
	store, err := s.Store(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return store.Edit(id, text), nil
}

// DeleteMessage removes an entry.
func (s *Service) DeleteMessage(ctx context.Context, sessionID string, id int) ([]chat.Entry, error) {
	return s.dispatch(ctx, sessionID, chat.DeleteMessage{ID: id})
}

// Upvote adds one vote to an entry.
func (s *Service) Upvote(ctx context.Context, sessionID string, id int) ([]chat.Entry, error) {
	return s.dispatch(ctx, sessionID, chat.IncrementVote{ID: id})
}

// Downvote removes one vote from an entry.
func (s *Service) Downvote(ctx context.Context, sessionID string, id int) ([]chat.Entry, error) {
	return s.dispatch(ctx, sessionID, chat.DecrementVote{ID: id})
}

// Clear empties the conversation.
func (s *Service) Clear(ctx context.Context, sessionID string) ([]chat.Entry, error) {
	return s.dispatch(ctx, sessionID, chat.ClearAll{})
}

// Close stops pending gateway calls and waits for them to finish, bounded
// by ctx, then releases every session. Later sends fail with
// ErrServiceClosed.
func (s *Service) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.pending.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = fmt.Errorf("waiting for pending replies: %w", ctx.Err())
	}

	s.mu.Lock()
	for id, sess := range s.sessions {
		sess.store.Close()
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	return err
}

func (s *Service) dispatch(ctx context.Context, sessionID string, cmd chat.Command) ([]chat.Entry, error) {
	store, err := s.Store(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return store.Dispatch(cmd), nil
}

func (s *Service) lookup(sessionID string) (*session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return sess, nil
}
