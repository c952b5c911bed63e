package internal

import "sync"

// PresenceTracker counts live websocket connections per account name. A user
// with two open tabs stays online until the last one closes.
type PresenceTracker struct {
	mu     sync.Mutex
	online map[string]int
}

func NewPresenceTracker() *PresenceTracker {
	return &PresenceTracker{online: make(map[string]int)}
}

func (p *PresenceTracker) Increment(username string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.online[username]++
	return p.online[username]
}

func (p *PresenceTracker) Decrement(username string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if count, ok := p.online[username]; ok {
		if count <= 1 {
			delete(p.online, username)
			return 0
		}
		p.online[username] = count - 1
		return p.online[username]
	}
	return 0
}

func (p *PresenceTracker) Online(username string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.online[username] > 0
}

// ActiveCount reports how many distinct users are online.
func (p *PresenceTracker) ActiveCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.online)
}
