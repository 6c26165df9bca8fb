package chat

import (
	"math/rand/v2"
	"strconv"
	"sync"
	"time"
)

// Clock supplies the display timestamp stamped onto created and edited
// entries. The value is opaque to the store.
type Clock interface {
	Now() string
}

// LayoutClock formats the current time with a Go time layout.
type LayoutClock struct {
	Layout string
	// Source defaults to time.Now.
	Source func() time.Time
}

// Now implements Clock.
func (c LayoutClock) Now() string {
	now := time.Now
	if c.Source != nil {
		now = c.Source
	}
	layout := c.Layout
	if layout == "" {
		layout = time.DateTime
	}
	return now().Format(layout)
}

// AvatarSource supplies the image URI of user-authored entries.
type AvatarSource interface {
	UserImage() string
}

const pravatarImages = 70

// PravatarSource picks one of the pravatar.cc placeholder faces at random.
type PravatarSource struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewPravatarSource seeds the picker. A zero seed uses a random seed.
func NewPravatarSource(seed uint64) *PravatarSource {
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &PravatarSource{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// UserImage implements AvatarSource.
func (p *PravatarSource) UserImage() string {
	p.mu.Lock()
	n := p.rng.IntN(pravatarImages) + 1
	p.mu.Unlock()
	return "https://i.pravatar.cc/48?img=" + strconv.Itoa(n)
}
