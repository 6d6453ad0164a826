package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/pkg/errors"
)

// HTTPChainClient implements PeerOracle, EpochClock and CoinInfoFetcher
// against the consumed SDK contracts from spec §6
// (ServerCoin.sampleCurrentEpoch, ServerCoin.getCurrentEpoch,
// DataStore.fetchCoinInfo), reached over a JSON HTTP façade the same way
// HTTPHeadProbe reaches the upstream peer protocol.
type HTTPChainClient struct {
	Client  *http.Client
	BaseURL string
}

// NewHTTPChainClient returns a HTTPChainClient using client, or
// http.DefaultClient if client is nil.
func NewHTTPChainClient(baseURL string, client *http.Client) *HTTPChainClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPChainClient{Client: client, BaseURL: baseURL}
}

func (c *HTTPChainClient) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return errors.Wrap(err, "oracle: building chain request")
	}
	resp, err := c.Client.Do(req)
	if err != nil {
		return errors.Wrap(err, "oracle: chain transport error")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("oracle: chain request %s returned status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "oracle: decoding chain response")
	}
	return nil
}

// CurrentEpoch implements EpochClock by calling ServerCoin.getCurrentEpoch.
func (c *HTTPChainClient) CurrentEpoch(ctx context.Context) (Epoch, error) {
	var out struct {
		Epoch int `json:"epoch"`
		Round int `json:"round"`
	}
	if err := c.getJSON(ctx, "/currentEpoch", &out); err != nil {
		return Epoch{}, err
	}
	return Epoch{Epoch: out.Epoch, Round: out.Round}, nil
}

// SampleCurrentEpoch implements PeerOracle by calling
// ServerCoin.sampleCurrentEpoch.
func (c *HTTPChainClient) SampleCurrentEpoch(ctx context.Context, storeID string, k int) ([]string, error) {
	var out struct {
		Peers []string `json:"peers"`
	}
	path := fmt.Sprintf("/sampleCurrentEpoch?storeId=%s&k=%d", storeID, k)
	if err := c.getJSON(ctx, path, &out); err != nil {
		return nil, err
	}
	return out.Peers, nil
}

// FetchCoinInfo implements CoinInfoFetcher by calling
// DataStore.fetchCoinInfo and rendering its rootHash as lowercase hex.
func (c *HTTPChainClient) FetchCoinInfo(ctx context.Context, storeID string) (StoreInfo, error) {
	var out struct {
		LatestStore struct {
			Metadata struct {
				RootHash string `json:"rootHash"`
			} `json:"metadata"`
		} `json:"latestStore"`
	}
	path := fmt.Sprintf("/fetchCoinInfo?storeId=%s", storeID)
	if err := c.getJSON(ctx, path, &out); err != nil {
		return StoreInfo{}, err
	}
	return StoreInfo{RootHash: strings.ToLower(out.LatestStore.Metadata.RootHash)}, nil
}
