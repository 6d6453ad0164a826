// Package proxy forwards a validated request to the chosen peer and
// streams its response back to the client, tracking active connections
// and request statistics along the way. It does not buffer, cache, or
// rewrite response bodies.
package proxy

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/dig-network/digproxy/internal/log"
	"github.com/dig-network/digproxy/internal/metrics"
	"github.com/dig-network/digproxy/internal/registry"
	"github.com/dig-network/digproxy/internal/udi"
)

// PeerPort is the port every DIG Network peer listens on.
const PeerPort = 4161

// Target describes the upstream peer and identifier a request is being
// forwarded to. Subpath is forwarded verbatim after the identifier (it
// already carries any key segment the Selector validated against).
type Target struct {
	Peer       *registry.PeerInfo
	StoreID    string
	Identifier udi.Identifier
	Subpath    string
}

// Proxy forwards requests to DIG Network peers.
type Proxy struct {
	registry  *registry.Registry
	transport http.RoundTripper
	peerPort  int
}

// New builds a Proxy backed by reg for active-connection and statistic
// bookkeeping. transport is the RoundTripper used for the upstream dial;
// pass nil to use http.DefaultTransport.
func New(reg *registry.Registry, transport http.RoundTripper) *Proxy {
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &Proxy{registry: reg, transport: transport, peerPort: PeerPort}
}

// SetPeerPort overrides the port peers are dialed on; DIG Network peers
// always listen on PeerPort, but test harnesses and local clusters may
// run peers on arbitrary ports.
func (p *Proxy) SetPeerPort(port int) {
	p.peerPort = port
}

// ServeHTTP forwards r to target.Peer and streams the upstream response
// back through w, per spec §4.4.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request, target Target) {
	peer := target.Peer
	ip := peer.IP

	upstreamURL := &url.URL{
		Scheme: "http",
		Host:   fmt.Sprintf("%s:%d", ip, p.peerPort),
	}

	path := "/" + target.Identifier.Chain + "." + target.StoreID + "." + target.Identifier.RootHash + target.Subpath

	start := time.Now()
	p.registry.IncActive(ip)
	metrics.ActiveConnectionsGauge.Inc()

	var outcomeRecorded bool
	recordOutcome := func(success bool) {
		if outcomeRecorded {
			return
		}
		outcomeRecorded = true
		p.registry.DecActive(ip)
		metrics.ActiveConnectionsGauge.Dec()
		p.registry.AdjustStats(peer, success, time.Since(start).Milliseconds())
		if success {
			metrics.ProxyRequestsTotal.WithLabelValues("success").Inc()
		} else {
			metrics.ProxyRequestsTotal.WithLabelValues("error").Inc()
		}
	}

	rp := &httputil.ReverseProxy{
		Transport: p.transport,
		Director: func(req *http.Request) {
			req.URL.Scheme = upstreamURL.Scheme
			req.URL.Host = upstreamURL.Host
			req.URL.Path = path
			req.URL.RawQuery = r.URL.RawQuery
			req.Host = upstreamURL.Host
		},
		ModifyResponse: func(resp *http.Response) error {
			resp.Header.Set("X-Network-Origin", "DIG Network: "+ip)
			resp.Header.Set("Cache-Control", "public, max-age=86400")
			recordOutcome(true)
			return nil
		},
		ErrorHandler: func(rw http.ResponseWriter, req *http.Request, err error) {
			log.Error("proxy: upstream request failed", log.Fields{"ip": ip, "error": err.Error()})
			recordOutcome(false)
			rw.WriteHeader(http.StatusInternalServerError)
			_, _ = rw.Write([]byte("Proxy error"))
		},
	}

	rp.ServeHTTP(w, r)
}
