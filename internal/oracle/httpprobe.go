package oracle

import (
	"context"
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// PeerPort is the fixed port every DIG Network peer speaks the content
// protocol on.
const PeerPort = 4161

// HTTPHeadProbe implements HeadProbe against a real peer over HTTP, per the
// upstream peer protocol: a HEAD-equivalent request answered by
// x-has-roothash / x-key-exists / x-generation-hash response headers.
type HTTPHeadProbe struct {
	Client *http.Client
}

// NewHTTPHeadProbe returns a HTTPHeadProbe using client, or http.DefaultClient
// if client is nil. Callers are expected to bound each call with a context
// deadline; this type does not impose one of its own.
func NewHTTPHeadProbe(client *http.Client) *HTTPHeadProbe {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPHeadProbe{Client: client}
}

func (p *HTTPHeadProbe) do(ctx context.Context, ip, path string) (*http.Response, error) {
	url := fmt.Sprintf("http://%s:%d%s", ip, PeerPort, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "oracle: building head probe request")
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "oracle: head probe transport error")
	}
	return resp, nil
}

// HeadStore implements HeadProbe.
func (p *HTTPHeadProbe) HeadStore(ctx context.Context, ip, storeID, rootHash string) (bool, error) {
	resp, err := p.do(ctx, ip, fmt.Sprintf("/chia.%s.%s", storeID, rootHash))
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	return resp.Header.Get("x-has-roothash") == "true", nil
}

// HeadKey implements HeadProbe.
func (p *HTTPHeadProbe) HeadKey(ctx context.Context, ip, storeID, rootHash, key string) (bool, string, error) {
	resp, err := p.do(ctx, ip, fmt.Sprintf("/chia.%s.%s/%s", storeID, rootHash, key))
	if err != nil {
		return false, "", err
	}
	defer resp.Body.Close()
	genHash := resp.Header.Get("x-generation-hash")
	exists := resp.Header.Get("x-key-exists") == "true" && genHash == rootHash
	return exists, genHash, nil
}
