package selector

import (
	"math"
	"math/rand"
	"sync"

	"github.com/dig-network/digproxy/internal/metrics"
	"github.com/dig-network/digproxy/internal/registry"
)

// rng is a lockable pseudo-random source, grounded on the same
// shared-source-with-mutex shape the teacher uses for parallel access to
// randomness (pkg/prand), simplified to a single source since the selector
// does not need per-shard independence.
type rng struct {
	mu sync.Mutex
	r  *rand.Rand
}

func newRNG(seed int64) *rng {
	return &rng{r: rand.New(rand.NewSource(seed))}
}

func (g *rng) Float64() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.r.Float64()
}

func (g *rng) Intn(n int) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.r.Intn(n)
}

// weightedRandom draws one peer from candidates with probability
// proportional to its weight.
func weightedRandom(g *rng, candidates []*registry.PeerInfo) *registry.PeerInfo {
	total := 0
	for _, p := range candidates {
		total += p.Weight()
	}
	if total <= 0 {
		return candidates[g.Intn(len(candidates))]
	}
	draw := g.Intn(total)
	for _, p := range candidates {
		draw -= p.Weight()
		if draw < 0 {
			return p
		}
	}
	return candidates[len(candidates)-1]
}

// leastConnections returns the candidate with the fewest active
// connections, ties broken by registry order (first one found).
func leastConnections(candidates []*registry.PeerInfo, active func(ip string) int) *registry.PeerInfo {
	best := candidates[0]
	bestCount := active(best.IP)
	for _, p := range candidates[1:] {
		if c := active(p.IP); c < bestCount {
			best, bestCount = p, c
		}
	}
	return best
}

// lowestAverageLatency returns the candidate with the lowest average
// latency; peers with zero requests are treated as +Inf (never preferred
// over a peer with measured latency).
func lowestAverageLatency(candidates []*registry.PeerInfo) *registry.PeerInfo {
	best := candidates[0]
	bestLatency := latencyOrInf(best)
	for _, p := range candidates[1:] {
		if l := latencyOrInf(p); l < bestLatency {
			best, bestLatency = p, l
		}
	}
	return best
}

func latencyOrInf(p *registry.PeerInfo) float64 {
	if p.TotalRequests() == 0 {
		return math.Inf(1)
	}
	return p.AverageLatencyMs()
}

// highestSuccessRate returns the candidate with the highest success rate;
// peers with zero requests are treated as a 0 success rate.
func highestSuccessRate(candidates []*registry.PeerInfo) *registry.PeerInfo {
	best := candidates[0]
	bestRate := best.SuccessRate()
	for _, p := range candidates[1:] {
		if r := p.SuccessRate(); r > bestRate {
			best, bestRate = p, r
		}
	}
	return best
}

// blendedPick implements the spec's blended selection policy: start with a
// weighted-random draw, then independently, with probability cfg.*Prob,
// override with the least-connections / lowest-latency / highest-success
// peer. Each override is evaluated in order and may replace the current
// choice; this produces a non-deterministic blend that still explores
// through the weighted base.
func blendedPick(g *rng, cfg Config, candidates []*registry.PeerInfo, active func(ip string) int) *registry.PeerInfo {
	choice := weightedRandom(g, candidates)

	if g.Float64() < cfg.LeastConnOverrideProb {
		if next := leastConnections(candidates, active); next != choice {
			metrics.SelectionOverridesTotal.WithLabelValues("least_conn").Inc()
			choice = next
		}
	}
	if g.Float64() < cfg.LatencyOverrideProb {
		if next := lowestAverageLatency(candidates); next != choice {
			metrics.SelectionOverridesTotal.WithLabelValues("latency").Inc()
			choice = next
		}
	}
	if g.Float64() < cfg.SuccessOverrideProb {
		if next := highestSuccessRate(candidates); next != choice {
			metrics.SelectionOverridesTotal.WithLabelValues("success_rate").Inc()
			choice = next
		}
	}

	return choice
}
