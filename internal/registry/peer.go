package registry

import "sync/atomic"

// PeerInfo tracks health and latency statistics for a single (storeId, ip)
// pair. The success, request and latency counters are monotonic and reset
// only when the owning entry is re-seeded; failureCount counts consecutive
// failures and is also reset by any success.
type PeerInfo struct {
	IP string

	// weight is read/written through atomic ops so the selector can read
	// it without taking the entry lock.
	weight int32

	successCount   uint64
	failureCount   uint64
	totalRequests  uint64
	totalLatencyMs uint64

	lastCheck   int64 // unix ms
	lastFailure int64 // unix ms
}

// newPeer builds a fresh PeerInfo with the spec's initial weight.
func newPeer(ip string) *PeerInfo {
	return &PeerInfo{IP: ip, weight: initialWeight}
}

const (
	minWeight     = 1
	maxWeight     = 10
	initialWeight = 5
	// blacklistThreshold is the consecutive-failure count that blacklists
	// a peer into the OfflinePeersSet.
	blacklistThreshold = 3
)

// Weight returns the peer's current weight, 1..10.
func (p *PeerInfo) Weight() int {
	return int(atomic.LoadInt32(&p.weight))
}

// SuccessCount returns the lifetime success counter.
func (p *PeerInfo) SuccessCount() uint64 { return atomic.LoadUint64(&p.successCount) }

// FailureCount returns the current consecutive-failure counter (reset on
// any success).
func (p *PeerInfo) FailureCount() uint64 { return atomic.LoadUint64(&p.failureCount) }

// TotalRequests returns the lifetime request counter.
func (p *PeerInfo) TotalRequests() uint64 { return atomic.LoadUint64(&p.totalRequests) }

// TotalLatencyMs returns the cumulative latency, in milliseconds, of all
// completed requests.
func (p *PeerInfo) TotalLatencyMs() uint64 { return atomic.LoadUint64(&p.totalLatencyMs) }

// LastCheck returns the unix-millisecond timestamp of the peer's most
// recent statistic update.
func (p *PeerInfo) LastCheck() int64 { return atomic.LoadInt64(&p.lastCheck) }

// LastFailure returns the unix-millisecond timestamp of the peer's most
// recent failure, or 0 if it has never failed.
func (p *PeerInfo) LastFailure() int64 { return atomic.LoadInt64(&p.lastFailure) }

// AverageLatencyMs returns totalLatencyMs / max(totalRequests, 1).
func (p *PeerInfo) AverageLatencyMs() float64 {
	total := p.TotalRequests()
	if total == 0 {
		return 0
	}
	return float64(p.TotalLatencyMs()) / float64(total)
}

// SuccessRate returns successCount / max(totalRequests, 1).
func (p *PeerInfo) SuccessRate() float64 {
	total := p.TotalRequests()
	if total == 0 {
		return 0
	}
	return float64(p.SuccessCount()) / float64(total)
}

// adjustStats applies one request outcome to the peer, per spec §4.2, and
// reports whether the peer crossed into blacklist territory on this call.
func (p *PeerInfo) adjustStats(now int64, success bool, latencyMs int64) (blacklist bool) {
	atomic.AddUint64(&p.totalRequests, 1)
	atomic.AddUint64(&p.totalLatencyMs, uint64(latencyMs))
	atomic.StoreInt64(&p.lastCheck, now)

	if success {
		atomic.AddUint64(&p.successCount, 1)
		atomic.StoreUint64(&p.failureCount, 0)
		incrWeight(&p.weight)
		return false
	}

	atomic.StoreInt64(&p.lastFailure, now)
	failures := atomic.AddUint64(&p.failureCount, 1)
	decrWeight(&p.weight)
	return failures >= blacklistThreshold
}

func incrWeight(w *int32) {
	for {
		cur := atomic.LoadInt32(w)
		next := cur + 1
		if next > maxWeight {
			next = maxWeight
		}
		if cur == next || atomic.CompareAndSwapInt32(w, cur, next) {
			return
		}
	}
}

func decrWeight(w *int32) {
	for {
		cur := atomic.LoadInt32(w)
		next := cur - 1
		if next < minWeight {
			next = minWeight
		}
		if cur == next || atomic.CompareAndSwapInt32(w, cur, next) {
			return
		}
	}
}
