package pipeline

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2"
)

// DefaultDedupeWindow is how long a message ID is remembered.
const DefaultDedupeWindow = 10 * time.Minute

// Deduper remembers recently seen message IDs so that a redelivered webhook
// or NATS message is not processed twice.
type Deduper struct {
	cache  *lru.Cache[string, time.Time]
	window time.Duration
	now    func() time.Time
	mu     sync.Mutex
}

// NewDeduper creates a deduper remembering up to size IDs for window.
func NewDeduper(size int, window time.Duration) (*Deduper, error) {
	if window <= 0 {
		window = DefaultDedupeWindow
	}
	cache, err := lru.New[string, time.Time](size)
	if err != nil {
		return nil, err
	}
	return &Deduper{cache: cache, window: window, now: time.Now}, nil
}

// FirstSeen records id and reports whether it was not seen within the
// window. An empty id is always first seen.
func (d *Deduper) FirstSeen(id string) bool {
	if id == "" {
		return true
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if seenAt, ok := d.cache.Peek(id); ok && now.Sub(seenAt) < d.window {
		return false
	}
	d.cache.Add(id, now)
	return true
}

// Forget drops id, letting a failed message be processed again.
func (d *Deduper) Forget(id string) {
	if id == "" {
		return
	}
	d.cache.Remove(id)
}

// Len returns the number of remembered IDs.
func (d *Deduper) Len() int {
	return d.cache.Len()
}
