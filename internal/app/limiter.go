package app

import (
	"sync"

	"golang.org/x/time/rate"
)

// Limiter bounds how many messages per second each guild may have read
// aloud. Messages over the limit are dropped, never delayed.
type Limiter struct {
	mu     sync.Mutex
	limit  rate.Limit
	burst  int
	guilds map[string]*rate.Limiter
}

// NewLimiter creates a limiter allowing perSecond messages with the given
// burst. A perSecond of zero or less disables limiting.
func NewLimiter(perSecond float64, burst int) *Limiter {
	l := &Limiter{guilds: make(map[string]*rate.Limiter)}
	l.set(perSecond, burst)
	return l
}

func (l *Limiter) set(perSecond float64, burst int) {
	if perSecond <= 0 {
		l.limit = rate.Inf
	} else {
		l.limit = rate.Limit(perSecond)
	}
	l.burst = max(burst, 1)
}

// Allow reports whether guildID may speak one more message now.
func (l *Limiter) Allow(guildID string) bool {
	l.mu.Lock()
	if l.limit == rate.Inf {
		l.mu.Unlock()
		return true
	}
	lim, ok := l.guilds[guildID]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.guilds[guildID] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}

// SetLimit changes the limit for all guilds, keeping their current tokens.
func (l *Limiter) SetLimit(perSecond float64, burst int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.set(perSecond, burst)
	for _, lim := range l.guilds {
		lim.SetLimit(l.limit)
		lim.SetBurst(l.burst)
	}
}

// Forget drops the state kept for guildID.
func (l *Limiter) Forget(guildID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.guilds, guildID)
}
