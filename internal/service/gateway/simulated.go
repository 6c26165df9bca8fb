package gateway

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/zhouzirui/z-chat/backend/internal/model/chat"
)

var defaultReplies = []string{
	"Interesting, tell me more!",
	"I hadn't thought about it that way.",
	"Ha, that made my day.",
	"Could you explain what you mean?",
	"That sounds great.",
	"Hmm, I'm not so sure about that.",
	"Let's talk about something else for a bit.",
	"Absolutely agree with you.",
}

// Simulated is the stand-in bot: after Delay it answers with one of
// Replies chosen at random.
type Simulated struct {
	replies []string
	delay   time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulated creates a simulated bot. Empty replies fall back to a
// built-in list; a zero seed picks a random one.
func NewSimulated(replies []string, delay time.Duration, seed uint64) *Simulated {
	if len(replies) == 0 {
		replies = defaultReplies
	}
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &Simulated{
		replies: append([]string(nil), replies...),
		delay:   delay,
		rng:     rand.New(rand.NewPCG(seed, seed>>1)),
	}
}

// SendMessage implements the chat service gateway.
func (s *Simulated) SendMessage(ctx context.Context, _ []chat.Entry, _ string) (string, error) {
	if s.delay > 0 {
		timer := time.NewTimer(s.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	reply := s.replies[s.rng.IntN(len(s.replies))]
	s.mu.Unlock()
	return reply, nil
}
