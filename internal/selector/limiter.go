package selector

import (
	"sync"

	"golang.org/x/time/rate"
)

// limiterSet hands out a per-IP rate.Limiter, lazily created, so a single
// misbehaving peer can't be hammered with validation probes faster than
// cfg.ProbeRateLimit even when many requests race to validate it at once.
type limiterSet struct {
	mu    sync.Mutex
	limit rate.Limit
	burst int
	byIP  map[string]*rate.Limiter
}

func newLimiterSet(limit float64, burst int) *limiterSet {
	return &limiterSet{
		limit: rate.Limit(limit),
		burst: burst,
		byIP:  make(map[string]*rate.Limiter),
	}
}

func (s *limiterSet) forIP(ip string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.byIP[ip]
	if !ok {
		l = rate.NewLimiter(s.limit, s.burst)
		s.byIP[ip] = l
	}
	return l
}
