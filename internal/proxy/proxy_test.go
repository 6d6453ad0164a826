package proxy

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
	"github.com/dig-network/digproxy/internal/registry"
	"github.com/dig-network/digproxy/internal/udi"
)

type fakeOracle struct{ ips []string }

func (f *fakeOracle) SampleCurrentEpoch(ctx context.Context, storeID string, k int) ([]string, error) {
	return f.ips, nil
}

type fakeClock struct{}

func (fakeClock) CurrentEpoch(ctx context.Context) (oracle.Epoch, error) { return oracle.Epoch{}, nil }

func TestProxyForwardsAndSetsHeaders(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chia.store1.root/foo", r.URL.Path)
		w.Write([]byte("hello"))
	}))
	defer upstream.Close()

	reg := registry.New(registry.Config{
		SeedSize: 1, EntryTTL: 3600e9, OfflineTTL: 300e9,
		PeriodicRefreshInterval: 1800e9, GCInterval: 3600e9,
	}, &fakeOracle{ips: []string{upstream.Listener.Addr().String()}}, fakeClock{})
	defer reg.Close()

	require.NoError(t, reg.RefreshIfNeeded(context.Background(), "store1"))
	peer := reg.Peers("store1")[0]
	peer.IP = "127.0.0.1"

	p := New(reg, nil)
	_, portStr, err := net.SplitHostPort(upstream.Listener.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	p.SetPeerPort(port)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/chia.store1.root/foo", nil)

	p.ServeHTTP(w, r, Target{
		Peer:       peer,
		StoreID:    "store1",
		Identifier: udi.Identifier{Chain: "chia", StoreID: "store1", RootHash: "root"},
		Subpath:    "/foo",
	})

	assert.Equal(t, "DIG Network: 127.0.0.1", w.Header().Get("X-Network-Origin"))
	assert.Equal(t, "public, max-age=86400", w.Header().Get("Cache-Control"))
	assert.Equal(t, 0, reg.ActiveConnections(peer.IP))
}
