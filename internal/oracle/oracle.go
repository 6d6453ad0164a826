// Package oracle defines the contracts consumed from the on-chain sampling
// oracle and the peer content protocol. These are external collaborators
// (the ServerCoin/DataStore/DigPeer SDK from the spec) and are represented
// by the interfaces the rest of this module codes against; the concrete
// HTTP adapters (HTTPChainClient, HTTPHeadProbe) live alongside them in
// this package and are wired in by cmd/digproxy.
package oracle

import "context"

// Epoch is the network-wide time coordinate returned by the epoch clock.
// Epochs are totally ordered lexicographically by (Epoch, Round).
type Epoch struct {
	Epoch int
	Round int
}

// Less reports whether e sorts before o.
func (e Epoch) Less(o Epoch) bool {
	if e.Epoch != o.Epoch {
		return e.Epoch < o.Epoch
	}
	return e.Round < o.Round
}

// Equal reports whether e and o are the same epoch/round pair.
func (e Epoch) Equal(o Epoch) bool {
	return e.Epoch == o.Epoch && e.Round == o.Round
}

// Zero reports whether e is the unset zero value.
func (e Epoch) Zero() bool {
	return e == Epoch{}
}

// EpochClock is the consumed contract for ServerCoin.getCurrentEpoch.
type EpochClock interface {
	CurrentEpoch(ctx context.Context) (Epoch, error)
}

// PeerOracle is the consumed contract for ServerCoin.sampleCurrentEpoch.
type PeerOracle interface {
	// SampleCurrentEpoch returns up to k unique peer IP addresses claimed
	// to hold storeId for the current epoch.
	SampleCurrentEpoch(ctx context.Context, storeID string, k int) ([]string, error)
}

// StoreInfo is the subset of DataStore.fetchCoinInfo's response this
// module needs: the latest revision's root hash, rendered as lowercase hex.
type StoreInfo struct {
	RootHash string
}

// CoinInfoFetcher is the consumed contract for DataStore.fetchCoinInfo.
type CoinInfoFetcher interface {
	FetchCoinInfo(ctx context.Context, storeID string) (StoreInfo, error)
}

// HeadProbe is the consumed contract for DigPeer.contentServer's
// {headStore, headKey} HEAD-equivalent RPCs.
type HeadProbe interface {
	// HeadStore reports whether the peer at ip claims to hold rootHash
	// for storeID.
	HeadStore(ctx context.Context, ip, storeID, rootHash string) (bool, error)

	// HeadKey reports whether the peer at ip claims to hold key within
	// storeID, and the generation hash the key belongs to.
	HeadKey(ctx context.Context, ip, storeID, rootHash, key string) (exists bool, generationHash string, err error)
}
