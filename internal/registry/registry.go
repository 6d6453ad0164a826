// Package registry implements the per-store Peer Registry: lazily-seeded
// peer populations refreshed against an on-chain epoch oracle, with
// health/latency statistics, a blacklist, and process-wide active
// connection counts.
package registry

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dig-network/digproxy/internal/log"
	"github.com/dig-network/digproxy/internal/oracle"
	"github.com/dig-network/digproxy/internal/stop"
)

// registryEntry is a PeerRegistryEntry: the peer population for one
// storeId, seeded at a particular epoch. Entries are immutable after
// construction except for the PeerInfo statistic fields, which are updated
// in place; the registry replaces the *registryEntry pointer wholesale on
// re-seed so a concurrent reader always sees either the full old list or
// the full new one.
type registryEntry struct {
	peers []*PeerInfo
	byIP  map[string]*PeerInfo
	epoch oracle.Epoch

	lastTouchedMs int64 // unix ms, accessed atomically via touch()/collectGarbage()
}

func newEntry(ips []string, epoch oracle.Epoch, now time.Time) *registryEntry {
	e := &registryEntry{
		peers: make([]*PeerInfo, 0, len(ips)),
		byIP:  make(map[string]*PeerInfo, len(ips)),
		epoch: epoch,
	}
	for _, ip := range ips {
		if _, dup := e.byIP[ip]; dup {
			continue
		}
		p := newPeer(ip)
		e.peers = append(e.peers, p)
		e.byIP[ip] = p
	}
	e.lastTouchedMs = now.UnixMilli()
	return e
}

func (e *registryEntry) ips() []string {
	ips := make([]string, len(e.peers))
	for i, p := range e.peers {
		ips[i] = p.IP
	}
	return ips
}

// Registry is the process-wide collection of per-store peer populations,
// the global current epoch, the offline set, and active connection counts.
// It is the "RoutingState" value of spec §9, owned by the server and
// passed explicitly to handlers.
type Registry struct {
	cfg    Config
	oracle oracle.PeerOracle
	clock  oracle.EpochClock
	offline *offlineSet
	active *activeConnections

	mu           sync.RWMutex
	entries      map[string]*registryEntry
	haveEpoch    bool
	currentEpoch oracle.Epoch

	timersMu sync.Mutex
	timers   map[string]bool

	stopGroup *stop.Group
	closed    chan struct{}
	wg        sync.WaitGroup
}

// New builds a Registry. oracle and clock are the external Peer Oracle and
// Epoch Clock collaborators from spec §2.
func New(cfg Config, peerOracle oracle.PeerOracle, clock oracle.EpochClock) *Registry {
	cfg = cfg.Validate()
	r := &Registry{
		cfg:       cfg,
		oracle:    peerOracle,
		clock:     clock,
		offline:   newOfflineSet(cfg.OfflineTTL),
		active:    newActiveConnections(),
		entries:   make(map[string]*registryEntry),
		timers:    make(map[string]bool),
		stopGroup: stop.NewGroup(),
		closed:    make(chan struct{}),
	}

	r.wg.Add(1)
	go r.gcLoop()

	return r
}

// Close stops all background goroutines (GC loop and per-store periodic
// refresh timers).
func (r *Registry) Close() {
	close(r.closed)
	r.stopGroup.Stop()
	r.wg.Wait()
}

func (r *Registry) gcLoop() {
	defer r.wg.Done()
	ticker := time.NewTicker(r.cfg.GCInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.closed:
			return
		case <-ticker.C:
			r.collectGarbage(time.Now())
		}
	}
}

func (r *Registry) collectGarbage(now time.Time) {
	r.offline.sweep(now)

	cutoff := now.Add(-r.cfg.EntryTTL).UnixMilli()
	r.mu.Lock()
	for storeID, e := range r.entries {
		if atomic.LoadInt64(&e.lastTouchedMs) < cutoff {
			delete(r.entries, storeID)
			log.Debug("registry: evicted stale entry", log.Fields{"storeId": storeID})
		}
	}
	r.mu.Unlock()
}

// Seed populates storeId's entry from the oracle, replacing any existing
// peers and zeroing active connections for the new IP set. On oracle
// failure the entry is left as-is (stale or absent) and the error is
// logged; a subsequent Selection will see an empty or stale population,
// which the Selector turns into NoValidPeers.
func (r *Registry) Seed(ctx context.Context, storeID string, epoch oracle.Epoch) {
	ips, err := r.oracle.SampleCurrentEpoch(ctx, storeID, r.cfg.SeedSize)
	if err != nil {
		log.Error("registry: failed to sample peers from oracle", log.Fields{
			"storeId": storeID, "error": err.Error(),
		})
		return
	}

	entry := newEntry(ips, epoch, time.Now())

	r.mu.Lock()
	r.entries[storeID] = entry
	r.mu.Unlock()

	r.active.reset(entry.ips())
}

// RefreshIfNeeded re-seeds storeId if the global epoch has advanced, is
// unset, or storeId has no registry entry yet. currentEpoch is a single
// process-wide value: one store's refresh can cause a later request for a
// different store to also seed, which is intentional (the epoch is
// network-wide, not per-store).
func (r *Registry) RefreshIfNeeded(ctx context.Context, storeID string) error {
	epoch, err := r.clock.CurrentEpoch(ctx)
	if err != nil {
		return err
	}

	r.mu.RLock()
	_, hasEntry := r.entries[storeID]
	epochStale := !r.haveEpoch || !r.currentEpoch.Equal(epoch)
	r.mu.RUnlock()

	if !epochStale && hasEntry {
		r.touch(storeID, time.Now())
		return nil
	}

	r.mu.Lock()
	r.haveEpoch = true
	r.currentEpoch = epoch
	r.mu.Unlock()

	r.Seed(ctx, storeID, epoch)
	return nil
}

func (r *Registry) touch(storeID string, now time.Time) {
	r.mu.RLock()
	e, ok := r.entries[storeID]
	r.mu.RUnlock()
	if ok {
		atomic.StoreInt64(&e.lastTouchedMs, now.UnixMilli())
	}
}

// StartPeriodicRefresh installs, at most once per storeId, a timer that
// invokes RefreshIfNeeded every PeriodicRefreshInterval. The install is
// idempotent: calling it again for a storeId already being refreshed is a
// no-op.
func (r *Registry) StartPeriodicRefresh(storeID string) {
	r.timersMu.Lock()
	if r.timers[storeID] {
		r.timersMu.Unlock()
		return
	}
	r.timers[storeID] = true
	r.timersMu.Unlock()

	stopped := make(chan struct{})
	r.stopGroup.AddFunc(func() <-chan error {
		close(stopped)
		done := make(chan error)
		close(done)
		return done
	})

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.cfg.PeriodicRefreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-r.closed:
				return
			case <-stopped:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				if err := r.RefreshIfNeeded(ctx, storeID); err != nil {
					log.Warn("registry: periodic refresh failed", log.Fields{
						"storeId": storeID, "error": err.Error(),
					})
				}
				cancel()
			}
		}
	}()
}

// Peers returns the current peer population for storeId, or nil if no
// entry exists yet.
func (r *Registry) Peers(storeID string) []*PeerInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[storeID]
	if !ok {
		return nil
	}
	return e.peers
}

// IsOffline reports whether ip is currently blacklisted.
func (r *Registry) IsOffline(ip string) bool {
	return r.offline.Has(ip, time.Now())
}

// ActiveConnections returns the current in-flight request count for ip.
func (r *Registry) ActiveConnections(ip string) int {
	return r.active.Get(ip)
}

// IncActive increments ip's active-connection count and returns the new
// value.
func (r *Registry) IncActive(ip string) int {
	return r.active.Inc(ip)
}

// DecActive decrements ip's active-connection count, clamped at zero.
func (r *Registry) DecActive(ip string) {
	r.active.Dec(ip)
}

// AdjustStats records the outcome of one request to peer, per spec §4.2:
// counters and weight are updated, and the peer is blacklisted into the
// OfflinePeersSet the moment its consecutive failure count reaches three.
func (r *Registry) AdjustStats(peer *PeerInfo, success bool, latencyMs int64) {
	now := time.Now()
	if peer.adjustStats(now.UnixMilli(), success, latencyMs) {
		r.offline.Insert(peer.IP, now)
		log.Info("registry: peer blacklisted after repeated failures", log.Fields{
			"ip": peer.IP, "failureCount": peer.FailureCount(),
		})
	}
}
