package internal

import (
	"sync"
	"time"
)

// window is a sliding-window counter: at most limit hits per span. Not safe
// for concurrent use on its own; Conn uses one from its single read loop and
// KeyedLimiter wraps a map of them behind a mutex.
type window struct {
	limit int
	span  time.Duration
	hits  []time.Time
}

func newWindow(limit int, span time.Duration) window {
	return window{limit: limit, span: span, hits: make([]time.Time, 0, limit)}
}

func (w *window) allow(now time.Time) bool {
	cutoff := now.Add(-w.span)
	kept := 0
	for _, ts := range w.hits {
		if ts.After(cutoff) {
			w.hits[kept] = ts
			kept++
		}
	}
	w.hits = w.hits[:kept]
	if len(w.hits) >= w.limit {
		return false
	}
	w.hits = append(w.hits, now)
	return true
}

// KeyedLimiter rate-limits by arbitrary key, e.g. client IP on the auth
// endpoints.
type KeyedLimiter struct {
	mu      sync.Mutex
	limit   int
	span    time.Duration
	windows map[string]*window
}

func NewKeyedLimiter(limit int, span time.Duration) *KeyedLimiter {
	return &KeyedLimiter{
		limit:   limit,
		span:    span,
		windows: make(map[string]*window),
	}
}

func (l *KeyedLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	w, ok := l.windows[key]
	if !ok {
		fresh := newWindow(l.limit, l.span)
		w = &fresh
		l.windows[key] = w
	}
	return w.allow(time.Now())
}
