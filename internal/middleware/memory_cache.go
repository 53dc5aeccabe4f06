package middleware

import (
	"bytes"
	"net/http"
	"sync"
	"time"
)

type cachedResponse struct {
	status    int
	header    http.Header
	body      []byte
	expiresAt time.Time
}

type cacheRecorder struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
}

func (cr *cacheRecorder) WriteHeader(status int) {
	cr.status = status
	cr.ResponseWriter.WriteHeader(status)
}

func (cr *cacheRecorder) Write(p []byte) (int, error) {
	cr.buf.Write(p)
	return cr.ResponseWriter.Write(p)
}

// ResponseCache memoizes successful GET responses for a short TTL. The
// cache key includes the Authorization header so viewers with different
// visibility never share entries.
type ResponseCache struct {
	mu      sync.Mutex
	entries map[string]cachedResponse
	ttl     time.Duration
	now     func() time.Time
}

// NewResponseCache constructs a response cache with the given TTL. A
// non-positive TTL disables caching.
func NewResponseCache(ttl time.Duration) *ResponseCache {
	return &ResponseCache{
		entries: make(map[string]cachedResponse),
		ttl:     ttl,
		now:     time.Now,
	}
}

// WithNowFunc overrides the cache clock for tests.
func (c *ResponseCache) WithNowFunc(now func() time.Time) *ResponseCache {
	if now != nil {
		c.now = now
	}
	return c
}

// Wrap serves cached copies of GET responses and records fresh ones.
func (c *ResponseCache) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c == nil || c.ttl <= 0 || r.Method != http.MethodGet {
			next.ServeHTTP(w, r)
			return
		}

		key := r.URL.RequestURI() + "\x00" + r.Header.Get("Authorization")
		now := c.now()

		c.mu.Lock()
		entry, ok := c.entries[key]
		if ok && now.After(entry.expiresAt) {
			delete(c.entries, key)
			ok = false
		}
		c.mu.Unlock()

		if ok {
			for name, values := range entry.header {
				for _, v := range values {
					w.Header().Add(name, v)
				}
			}
			w.Header().Set("X-Cache", "HIT")
			w.WriteHeader(entry.status)
			_, _ = w.Write(entry.body)
			return
		}

		rec := &cacheRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		if rec.status != http.StatusOK {
			return
		}

		stored := cachedResponse{
			status:    rec.status,
			header:    rec.Header().Clone(),
			body:      append([]byte(nil), rec.buf.Bytes()...),
			expiresAt: now.Add(c.ttl),
		}

		c.mu.Lock()
		c.entries[key] = stored
		c.gcLocked(now)
		c.mu.Unlock()
	})
}

// Invalidate drops every cached entry. Write handlers call it after
// mutations so reads never serve stale catalog pages past the TTL they
// were stored under.
func (c *ResponseCache) Invalidate() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.entries = make(map[string]cachedResponse)
	c.mu.Unlock()
}

func (c *ResponseCache) gcLocked(now time.Time) {
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
}
