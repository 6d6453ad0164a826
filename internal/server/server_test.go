package server

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dig-network/digproxy/internal/oracle"
	"github.com/dig-network/digproxy/internal/proxy"
	"github.com/dig-network/digproxy/internal/registry"
	"github.com/dig-network/digproxy/internal/resolver"
	"github.com/dig-network/digproxy/internal/selector"
)

type fakeOracle struct{ ips []string }

func (f *fakeOracle) SampleCurrentEpoch(ctx context.Context, storeID string, k int) ([]string, error) {
	return f.ips, nil
}

type fakeClock struct{}

func (fakeClock) CurrentEpoch(ctx context.Context) (oracle.Epoch, error) { return oracle.Epoch{}, nil }

type fakeCoinInfo struct{ rootHash string }

func (f fakeCoinInfo) FetchCoinInfo(ctx context.Context, storeID string) (oracle.StoreInfo, error) {
	return oracle.StoreInfo{RootHash: f.rootHash}, nil
}

type fakeProbe struct{}

func (fakeProbe) HeadStore(ctx context.Context, ip, storeID, rootHash string) (bool, error) {
	return true, nil
}
func (fakeProbe) HeadKey(ctx context.Context, ip, storeID, rootHash, key string) (bool, string, error) {
	return true, rootHash, nil
}

// keyRejectingProbe validates the root hash but never the key, forcing
// the Selector's key-aware fallback.
type keyRejectingProbe struct{}

func (keyRejectingProbe) HeadStore(ctx context.Context, ip, storeID, rootHash string) (bool, error) {
	return true, nil
}
func (keyRejectingProbe) HeadKey(ctx context.Context, ip, storeID, rootHash, key string) (bool, string, error) {
	return false, "", nil
}

func newTestServer(upstreamAddr string) *Server {
	reg := registry.New(registry.Config{
		SeedSize: 1, EntryTTL: 3600e9, OfflineTTL: 300e9,
		PeriodicRefreshInterval: 3600e9, GCInterval: 3600e9,
	}, &fakeOracle{ips: []string{upstreamAddr}}, fakeClock{})

	res := resolver.New(resolver.Config{AllowedChains: []string{"chia"}}, fakeCoinInfo{rootHash: "root"})
	sel := selector.New(selector.Config{}, reg, fakeProbe{}, 1)
	px := proxy.New(reg, nil)

	return New(Config{Addr: ":0"}, reg, res, sel, px)
}

func TestServeHealth(t *testing.T) {
	s := newTestServer("127.0.0.1:1")
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/health", nil)
	s.routes().ServeHTTP(w, r)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())
}

func TestServeWellKnownBypasses(t *testing.T) {
	s := newTestServer("127.0.0.1:1")
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/.well-known/acme-challenge/x", nil)
	s.routes().ServeHTTP(w, r)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServeForwardsToPeer(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("hello"))
	}))
	defer upstream.Close()

	storeID := "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	s := newTestServer(upstream.Listener.Addr().String())

	_, portStr, err := net.SplitHostPort(upstream.Listener.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	s.proxy.SetPeerPort(port)

	require.NoError(t, s.registry.RefreshIfNeeded(context.Background(), storeID))
	for _, p := range s.registry.Peers(storeID) {
		p.IP = "127.0.0.1"
	}

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/chia."+storeID+".root/foo", nil)
	s.routes().ServeHTTP(w, r)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "hello", w.Body.String())
}

// TestServeForwardStripsUnvalidatedKeySegment covers spec §4.3/§4.4: when
// no peer validates the requested key, the Selector falls back to a
// root-hash-only match and the proxy must forward without the key
// segment rather than passing it through to a peer that never confirmed
// it holds that key.
func TestServeForwardStripsUnvalidatedKeySegment(t *testing.T) {
	var gotPath string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte("hello"))
	}))
	defer upstream.Close()

	storeID := "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	reg := registry.New(registry.Config{
		SeedSize: 1, EntryTTL: 3600e9, OfflineTTL: 300e9,
		PeriodicRefreshInterval: 3600e9, GCInterval: 3600e9,
	}, &fakeOracle{ips: []string{upstream.Listener.Addr().String()}}, fakeClock{})
	defer reg.Close()

	res := resolver.New(resolver.Config{AllowedChains: []string{"chia"}}, fakeCoinInfo{rootHash: "root"})
	sel := selector.New(selector.Config{}, reg, keyRejectingProbe{}, 1)
	px := proxy.New(reg, nil)
	s := New(Config{Addr: ":0"}, reg, res, sel, px)

	_, portStr, err := net.SplitHostPort(upstream.Listener.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	s.proxy.SetPeerPort(port)

	require.NoError(t, s.registry.RefreshIfNeeded(context.Background(), storeID))
	for _, p := range s.registry.Peers(storeID) {
		p.IP = "127.0.0.1"
	}

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/chia."+storeID+".root/somekey", nil)
	s.routes().ServeHTTP(w, r)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "/chia."+storeID+".root", gotPath)
}
