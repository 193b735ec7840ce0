// Package registry tracks the live prediction messages per category so the
// refresh job can edit them in place. Handles leave the registry when the
// user navigates away, when an edit fails, or when pruning evicts them.
package registry

import (
	"sync"
	"time"

	"wingobot/internal/game"
	"wingobot/internal/transport"
)

// DefaultCap is the per-category retention cap.
const DefaultCap = 20

// DefaultMaxAge drops handles whose owner likely walked away.
const DefaultMaxAge = 30 * time.Minute

type entry struct {
	ref transport.MessageRef
	at  time.Time
}

type Registry struct {
	mu      sync.Mutex
	byCat   map[game.Category][]entry
	cap     int
	maxAge  time.Duration
	nowFunc func() time.Time
}

type Option func(*Registry)

func WithCap(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.cap = n
		}
	}
}

func WithMaxAge(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.maxAge = d
		}
	}
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.nowFunc = now
		}
	}
}

func New(opts ...Option) *Registry {
	r := &Registry{
		byCat:   make(map[game.Category][]entry),
		cap:     DefaultCap,
		maxAge:  DefaultMaxAge,
		nowFunc: time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Add registers a message for live updates. Re-adding an existing handle
// refreshes its timestamp. When the category exceeds the cap the oldest
// handle is evicted immediately.
func (r *Registry) Add(cat game.Category, ref transport.MessageRef) {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.byCat[cat]
	for i := range list {
		if list[i].ref == ref {
			list[i].at = r.nowFunc()
			return
		}
	}
	list = append(list, entry{ref: ref, at: r.nowFunc()})
	if len(list) > r.cap {
		list = list[len(list)-r.cap:]
	}
	r.byCat[cat] = list
}

// Remove drops a handle from every category it appears in (a message shows
// one category at a time, but navigation can re-register it under another).
func (r *Registry) Remove(ref transport.MessageRef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for cat, list := range r.byCat {
		out := list[:0]
		for _, e := range list {
			if e.ref != ref {
				out = append(out, e)
			}
		}
		r.byCat[cat] = out
	}
}

// List returns a snapshot of the handles for the category, oldest first.
func (r *Registry) List(cat game.Category) []transport.MessageRef {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.byCat[cat]
	out := make([]transport.MessageRef, len(list))
	for i, e := range list {
		out[i] = e.ref
	}
	return out
}

// Len returns the number of registered handles for the category.
func (r *Registry) Len(cat game.Category) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byCat[cat])
}

// Prune drops handles older than the max age and enforces the cap. Returns
// how many handles were evicted.
func (r *Registry) Prune(cat game.Category) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.byCat[cat]
	cutoff := r.nowFunc().Add(-r.maxAge)
	kept := list[:0]
	for _, e := range list {
		if e.at.After(cutoff) {
			kept = append(kept, e)
		}
	}
	evicted := len(list) - len(kept)
	if len(kept) > r.cap {
		evicted += len(kept) - r.cap
		kept = kept[len(kept)-r.cap:]
	}
	r.byCat[cat] = kept
	return evicted
}
