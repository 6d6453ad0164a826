package resolver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dig-network/digproxy/internal/oracle"
)

var hex64 = strings.Repeat("a", 64)

type fakeCoinInfo struct {
	rootHash string
	err      error
}

func (f *fakeCoinInfo) FetchCoinInfo(ctx context.Context, storeID string) (oracle.StoreInfo, error) {
	if f.err != nil {
		return oracle.StoreInfo{}, f.err
	}
	return oracle.StoreInfo{RootHash: f.rootHash}, nil
}

func newResolver(rootHash string) *Resolver {
	return New(Config{}, &fakeCoinInfo{rootHash: rootHash})
}

func req(t *testing.T, path string) *http.Request {
	t.Helper()
	r := httptest.NewRequest(http.MethodGet, path, nil)
	return r
}

func TestResolveMissingChainRedirects(t *testing.T) {
	res := newResolver("0011ff")
	r := req(t, "/"+hex64+".0011ff")
	result, err := res.Resolve(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, Redirect, result.Outcome)
	assert.Equal(t, "/chia."+hex64+".0011ff", result.Location)
}

func TestResolveFullIdentifierForwards(t *testing.T) {
	res := newResolver("root")
	r := req(t, "/chia."+hex64+".root/foo/bar")
	result, err := res.Resolve(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, Forward, result.Outcome)
	assert.Equal(t, "chia", result.Identifier.Chain)
	assert.Equal(t, hex64, result.Identifier.StoreID)
	assert.Equal(t, "root", result.Identifier.RootHash)
	assert.Equal(t, "/foo/bar", result.Subpath)
	require.NotNil(t, result.SetCookie)
}

func TestResolveAdoptsCookieRootHash(t *testing.T) {
	res := newResolver("should-not-be-used")
	r := req(t, "/chia."+hex64)
	r.AddCookie(&http.Cookie{Name: CookieName, Value: `{"chainName":"chia","storeId":"` + hex64 + `","rootHash":"R"}`})

	result, err := res.Resolve(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, Forward, result.Outcome)
	assert.Equal(t, "R", result.Identifier.RootHash)
}

func TestResolveNoCookieFetchesCoinInfo(t *testing.T) {
	res := newResolver("R")
	r := req(t, "/chia."+hex64)
	result, err := res.Resolve(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, Redirect, result.Outcome)
	assert.Equal(t, "/chia."+hex64+".R", result.Location)
}

func TestResolveUnknownChain(t *testing.T) {
	res := newResolver("root")
	r := req(t, "/eth."+hex64+".root")
	result, err := res.Resolve(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, UnknownChain, result.Outcome)
	assert.Contains(t, result.Body, "eth")
	assert.Contains(t, result.Body, hex64)
}

func TestResolveInvalidStoreIDNoCookieNoReferer(t *testing.T) {
	res := newResolver("root")
	r := req(t, "/bogus")
	result, err := res.Resolve(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, BadRequest, result.Outcome)
	assert.Equal(t, "Invalid or missing storeId.", result.Body)
}

func TestResolveInvalidStoreIDWithCookie(t *testing.T) {
	res := newResolver("root")
	r := req(t, "/bogus")
	r.AddCookie(&http.Cookie{Name: CookieName, Value: `{"chainName":"chia","storeId":"` + hex64 + `","rootHash":"R"}`})
	result, err := res.Resolve(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, Redirect, result.Outcome)
	assert.Equal(t, "/chia."+hex64+"/bogus", result.Location)
}

func TestResolveInvalidStoreIDWithReferer(t *testing.T) {
	res := newResolver("root")
	r := req(t, "/bogus")
	r.Header.Set("Referer", "https://example.com/somewhere")
	result, err := res.Resolve(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, Redirect, result.Outcome)
	assert.Equal(t, "https://example.com/somewhere/bogus", result.Location)
}

func TestResolveBoundaryStoreIDLength(t *testing.T) {
	res := newResolver("root")
	r := req(t, "/"+hex64[:63])
	result, err := res.Resolve(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, BadRequest, result.Outcome)
}

func TestResolveCloudFrontAwareness(t *testing.T) {
	res := newResolver("R")
	r := req(t, "/chia."+hex64)
	r.Header.Set("x-amz-cf-id", "abc123")
	r.Header.Set("x-forwarded-host", "cdn.example.com")
	result, err := res.Resolve(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, Redirect, result.Outcome)
	assert.Equal(t, "https://cdn.example.com/chia."+hex64+".R", result.Location)
}
