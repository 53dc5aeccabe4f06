package auth

import (
	"strings"
	"sync"
	"time"
)

type loginWindow struct {
	count int
	start time.Time
}

// LoginLimiter throttles credential attempts with a fixed-window counter
// per (client address, login identifier) pair. Bursts straddling a window
// boundary are accepted in exchange for O(1) memory and lookup.
//
// The limiter is an injected component with its own lifecycle: construct
// one at service start and hand it to whichever handler guards the login
// route. Stale windows are evicted lazily as new ones are opened.
type LoginLimiter struct {
	mu      sync.Mutex
	windows map[string]*loginWindow
	window  time.Duration
	max     int
	now     func() time.Time
}

// NewLoginLimiter allows up to max attempts per key within each window.
func NewLoginLimiter(max int, window time.Duration) *LoginLimiter {
	if max <= 0 {
		max = 10
	}
	if window <= 0 {
		window = time.Minute
	}
	return &LoginLimiter{
		windows: make(map[string]*loginWindow),
		window:  window,
		max:     max,
		now:     time.Now,
	}
}

// LimiterKey builds the throttle key from the client address and the
// normalized login identifier.
func LimiterKey(ip, identifier string) string {
	return ip + ":" + strings.ToLower(strings.TrimSpace(identifier))
}

// Allow records one attempt for the key and reports whether it may proceed.
func (l *LoginLimiter) Allow(key string) bool {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) > l.window {
		l.windows[key] = &loginWindow{count: 1, start: now}
		l.evictLocked(now)
		return true
	}

	w.count++
	return w.count <= l.max
}

func (l *LoginLimiter) evictLocked(now time.Time) {
	for key, w := range l.windows {
		if now.Sub(w.start) > l.window {
			delete(l.windows, key)
		}
	}
}

// WithNowFunc allows tests to override the time source.
func (l *LoginLimiter) WithNowFunc(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}
