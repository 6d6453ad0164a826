// Package resolver implements the UDI Resolver state machine: it completes
// a possibly-partial Universal Data Identifier by consulting the udiData
// cookie and the on-chain oracle, issuing 302 redirects to force canonical
// URLs, or responding with a client/server error.
package resolver

import (
	"context"
	"net/http"
	"strings"

	"github.com/dig-network/digproxy/internal/log"
	"github.com/dig-network/digproxy/internal/metrics"
	"github.com/dig-network/digproxy/internal/oracle"
	"github.com/dig-network/digproxy/internal/udi"
)

// Outcome classifies how a Resolve call concluded.
type Outcome int

const (
	// Forward means the identifier is fully resolved; proceed to the
	// Selector/Proxy with Result.Identifier and Result.Subpath.
	Forward Outcome = iota
	// Redirect means the client should be sent a 302 to Result.Location.
	Redirect
	// BadRequest means respond 400 with Result.Body.
	BadRequest
	// UnknownChain means respond 400 with Result.Body as HTML.
	UnknownChain
	// ServerError means respond 500 with Result.Body.
	ServerError
)

// Result is the outcome of one Resolve call.
type Result struct {
	Outcome    Outcome
	Location   string
	Identifier udi.Identifier
	Subpath    string
	Query      string
	SetCookie  *http.Cookie
	Body       string
}

// Resolver completes UDIs against the udiData cookie and the DataStore
// fetchCoinInfo oracle contract.
type Resolver struct {
	cfg       Config
	coinInfo  oracle.CoinInfoFetcher
}

// New builds a Resolver.
func New(cfg Config, coinInfo oracle.CoinInfoFetcher) *Resolver {
	return &Resolver{cfg: cfg.Validate(), coinInfo: coinInfo}
}

// Resolve runs the full state machine from spec §4.1 against r.
func (s *Resolver) Resolve(ctx context.Context, r *http.Request) (result Result, err error) {
	defer func() {
		metrics.ResolutionsTotal.WithLabelValues(outcomeLabel(result.Outcome)).Inc()
	}()

	path, query := udi.SplitPathQuery(r.URL.Path)
	if query == "" {
		query = r.URL.RawQuery
	}

	segs := udi.RemoveDuplicatePathPart(udi.Segments(path))
	udiSegment, subpath := udi.SplitUDISegment(segs)

	if udiSegment == "" {
		return Result{Outcome: BadRequest, Body: "Invalid or missing storeId."}, nil
	}

	id, isUDI := udi.ParseUDISegment(udiSegment)
	if !isUDI {
		// The whole segment is not a UDI; fold it back into the subpath
		// and proceed with an empty storeId.
		subpath = "/" + udiSegment + subpath
		id = udi.Identifier{}
	}

	cookie, hasCookie := readCookie(r)
	storeIDValid := id.StoreID != "" && udi.IsValidStoreID(id.StoreID)

	if !storeIDValid {
		return s.resolveInvalidStoreID(r, cookie, hasCookie, subpath), nil
	}

	if (id.Chain == "" || id.RootHash == "") && hasCookie {
		// Preserving the literal (and possibly buggy) adoption condition
		// from the original implementation: the cookie's rootHash is
		// accepted when it matches the *request's* rootHash even if the
		// storeIds differ. See DESIGN.md's Open Questions.
		if id.StoreID == "" || cookie.StoreID == id.StoreID || cookie.RootHash == id.RootHash {
			if id.Chain == "" {
				id.Chain = cookie.ChainName
			}
			if id.RootHash == "" {
				id.RootHash = cookie.RootHash
			}
		}
	}

	if id.Chain == "" && id.RootHash == "" {
		rootHash, err := s.coinInfo.FetchCoinInfo(ctx, id.StoreID)
		if err != nil {
			log.Error("resolver: fetchCoinInfo failed", log.Fields{"storeId": id.StoreID, "error": err.Error()})
			return Result{Outcome: ServerError, Body: "An error occurred while verifying the identifier."}, nil
		}
		id.RootHash = rootHash.RootHash
		location := buildRedirect(r, "/chia."+id.StoreID+"."+id.RootHash+subpath, query)
		return Result{Outcome: Redirect, Location: location}, nil
	}

	if id.Chain == "" {
		location := buildRedirect(r, "/chia."+udiSegment+subpath, query)
		return Result{Outcome: Redirect, Location: location}, nil
	}

	if !s.cfg.chainAllowed(id.Chain) {
		return Result{Outcome: UnknownChain, Body: unknownChainBody(id.Chain, id.StoreID)}, nil
	}

	if id.RootHash == "" {
		info, err := s.coinInfo.FetchCoinInfo(ctx, id.StoreID)
		if err != nil {
			log.Error("resolver: fetchCoinInfo failed", log.Fields{"storeId": id.StoreID, "error": err.Error()})
			return Result{Outcome: ServerError, Body: "An error occurred while verifying the identifier."}, nil
		}
		id.RootHash = info.RootHash
		location := buildRedirect(r, "/"+id.Chain+"."+id.StoreID+"."+id.RootHash+subpath, query)
		return Result{Outcome: Redirect, Location: location}, nil
	}

	setCookie, err := newSetCookie(id.Chain, id.StoreID, id.RootHash, s.cfg.CookieTTL)
	if err != nil {
		return Result{Outcome: ServerError, Body: "An error occurred while verifying the identifier."}, nil
	}

	return Result{
		Outcome:    Forward,
		Identifier: id,
		Subpath:    subpath,
		Query:      query,
		SetCookie:  setCookie,
	}, nil
}

func (s *Resolver) resolveInvalidStoreID(r *http.Request, cookie udiCookie, hasCookie bool, subpath string) Result {
	if hasCookie && cookie.ChainName != "" && cookie.StoreID != "" {
		location := buildRedirect(r, "/"+cookie.ChainName+"."+cookie.StoreID+subpath, "")
		return Result{Outcome: Redirect, Location: location}
	}
	if ref := r.Referer(); ref != "" {
		return Result{Outcome: Redirect, Location: ref + subpath}
	}
	return Result{Outcome: BadRequest, Body: "Invalid or missing storeId."}
}

// buildRedirect applies the CloudFront/origin-awareness transforms from
// spec §4.1 uniformly to every redirect this resolver produces: when the
// request carries x-amz-cf-id, the redirect is made absolute against the
// host (preferring x-forwarded-host); when x-origin-path names the first
// path segment, that segment is stripped.
func buildRedirect(r *http.Request, path, query string) string {
	if originPath := r.Header.Get("x-origin-path"); originPath != "" {
		trimmed := strings.Trim(originPath, "/")
		segs := udi.Segments(path)
		if len(segs) > 0 && segs[0] == trimmed {
			_, rest := udi.SplitUDISegment(segs)
			path = rest
			if path == "" {
				path = "/"
			}
		}
	}

	if query != "" {
		path = path + "?" + query
	}

	if r.Header.Get("x-amz-cf-id") == "" {
		return path
	}

	host := r.Header.Get("x-forwarded-host")
	if host == "" {
		host = r.Host
	}
	return "https://" + host + path
}

func outcomeLabel(o Outcome) string {
	switch o {
	case Forward:
		return "forward"
	case Redirect:
		return "redirect"
	case BadRequest:
		return "bad_request"
	case UnknownChain:
		return "unknown_chain"
	case ServerError:
		return "server_error"
	default:
		return "unknown"
	}
}

func unknownChainBody(chain, storeID string) string {
	return "<html><body><h1>Unknown chain</h1><p>The chain \"" + chain +
		"\" is not recognized for store " + storeID + ".</p></body></html>"
}
