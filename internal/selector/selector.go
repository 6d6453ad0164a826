// Package selector implements the Peer Selector: blended weighted/
// least-connections/latency/success-rate selection over a store's peer
// population, validated against a Head Probe with bounded latency and
// graceful failover across candidates.
package selector

import (
	"context"
	"errors"
	"time"

	"github.com/dig-network/digproxy/internal/log"
	"github.com/dig-network/digproxy/internal/metrics"
	"github.com/dig-network/digproxy/internal/oracle"
	"github.com/dig-network/digproxy/internal/registry"
)

// ErrNoValidPeers is returned when every candidate for a store has been
// tried and none validated (including an empty registry).
var ErrNoValidPeers = errors.New("selector: no valid peers available")

// Selector chooses and validates a peer for a request.
type Selector struct {
	cfg      Config
	registry *registry.Registry
	probe    oracle.HeadProbe
	rng      *rng
	limiters *limiterSet
}

// New builds a Selector. seed fixes the RNG so tests can assert the
// sequence of blended-policy overrides rather than any single metric's
// dominance (spec §9).
func New(cfg Config, reg *registry.Registry, probe oracle.HeadProbe, seed int64) *Selector {
	valid := cfg.Validate()
	return &Selector{
		cfg:      valid,
		registry: reg,
		probe:    probe,
		rng:      newRNG(seed),
		limiters: newLimiterSet(valid.ProbeRateLimit, valid.ProbeBurst),
	}
}

// Result is the outcome of a successful selection.
type Result struct {
	Peer    *registry.PeerInfo
	UsedKey bool
}

// Select picks a validated peer for storeId/rootHash, optionally also
// validating a key within that revision. If key is non-empty, it first
// tries to find a peer that validates for the key; if none does, it falls
// back to a second selection loop validating only the root hash, per the
// key-aware fallback in spec §4.3 (the proxy then forwards without the key
// suffix).
func (s *Selector) Select(ctx context.Context, storeID, rootHash, key string) (Result, error) {
	candidates := s.registry.Peers(storeID)
	if len(candidates) == 0 {
		return Result{}, ErrNoValidPeers
	}

	if key != "" {
		if peer, ok := s.selectLoop(ctx, candidates, storeID, rootHash, key); ok {
			return Result{Peer: peer, UsedKey: true}, nil
		}
		log.Debug("selector: no peer validated for key, falling back to root hash", log.Fields{
			"storeId": storeID, "key": key,
		})
	}

	if peer, ok := s.selectLoop(ctx, candidates, storeID, rootHash, ""); ok {
		return Result{Peer: peer}, nil
	}

	return Result{}, ErrNoValidPeers
}

// selectLoop runs the blended-pick/validate/retry candidate loop described
// in spec §4.3: a triedIps set bounds the loop by registry size, so it
// always terminates.
func (s *Selector) selectLoop(ctx context.Context, candidates []*registry.PeerInfo, storeID, rootHash, key string) (*registry.PeerInfo, bool) {
	tried := make(map[string]bool, len(candidates))

	for len(tried) < len(candidates) {
		pool := s.untried(candidates, tried)
		if len(pool) == 0 {
			break
		}

		choice := blendedPick(s.rng, s.cfg, pool, s.registry.ActiveConnections)
		if s.registry.IsOffline(choice.IP) {
			tried[choice.IP] = true
			continue
		}

		if s.Validate(ctx, choice.IP, storeID, rootHash, key) {
			return choice, true
		}
		tried[choice.IP] = true
	}

	return nil, false
}

func (s *Selector) untried(candidates []*registry.PeerInfo, tried map[string]bool) []*registry.PeerInfo {
	out := make([]*registry.PeerInfo, 0, len(candidates))
	for _, p := range candidates {
		if !tried[p.IP] && !s.registry.IsOffline(p.IP) {
			out = append(out, p)
		}
	}
	return out
}

// Validate calls the Head Probe against peer ip with a hard deadline,
// per spec §4.3. A transport error or header mismatch counts as a
// validation failure and is recorded against the peer's statistics (the
// same failure path a real proxied request failure takes), which is how
// three straight bad validations blacklist a peer during a storm (spec §8
// scenario 7). A deadline expiry is treated as an invalid attempt but
// leaves the peer's statistics untouched, per spec §5.
func (s *Selector) Validate(ctx context.Context, ip, storeID, rootHash, key string) bool {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ProbeTimeout)
	defer cancel()

	if err := s.limiters.forIP(ip).Wait(ctx); err != nil {
		log.Debug("selector: probe rate limit wait failed", log.Fields{"ip": ip, "error": err.Error()})
		return false
	}

	start := time.Now()
	ok, err := s.probeOne(ctx, ip, storeID, rootHash, key)
	latency := time.Since(start).Milliseconds()

	peers := s.registry.Peers(storeID)
	peer := findByIP(peers, ip)
	if peer == nil {
		return ok && err == nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		// Deadline expiry leaves stats untouched per spec §5: the peer is
		// deemed invalid for this attempt only, not penalized.
		metrics.ValidationsTotal.WithLabelValues("timeout").Inc()
		return false
	}

	if err != nil || !ok {
		s.registry.AdjustStats(peer, false, latency)
		metrics.ValidationsTotal.WithLabelValues("rejected").Inc()
		return false
	}
	metrics.ValidationsTotal.WithLabelValues("accepted").Inc()
	return true
}

func (s *Selector) probeOne(ctx context.Context, ip, storeID, rootHash, key string) (bool, error) {
	if key == "" {
		return s.probe.HeadStore(ctx, ip, storeID, rootHash)
	}
	exists, genHash, err := s.probe.HeadKey(ctx, ip, storeID, rootHash, key)
	if err != nil {
		return false, err
	}
	return exists && genHash == rootHash, nil
}

func findByIP(peers []*registry.PeerInfo, ip string) *registry.PeerInfo {
	for _, p := range peers {
		if p.IP == ip {
			return p
		}
	}
	return nil
}
