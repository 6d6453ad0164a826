package resolver

import (
	"encoding/json"
	"net/http"
	"time"
)

// CookieName is the name of the persistent UDI cookie.
const CookieName = "udiData"

// DefaultCookieTTL is the cookie's max age, per spec §3/§6.
const DefaultCookieTTL = 5 * time.Minute

// udiCookie is the opaque value persisted in the udiData cookie.
type udiCookie struct {
	ChainName string `json:"chainName"`
	StoreID   string `json:"storeId"`
	RootHash  string `json:"rootHash"`
}

// readCookie extracts and decodes the udiData cookie from r, if present
// and well-formed.
func readCookie(r *http.Request) (udiCookie, bool) {
	c, err := r.Cookie(CookieName)
	if err != nil || c.Value == "" {
		return udiCookie{}, false
	}
	var decoded udiCookie
	if err := json.Unmarshal([]byte(c.Value), &decoded); err != nil {
		return udiCookie{}, false
	}
	return decoded, true
}

// newSetCookie builds the outgoing Set-Cookie for a fully-resolved
// identifier: HTTP-only, non-secure (TLS termination is assumed upstream,
// per spec §1 Non-goals), maxAge 5 minutes.
func newSetCookie(chain, storeID, rootHash string, ttl time.Duration) (*http.Cookie, error) {
	value, err := json.Marshal(udiCookie{ChainName: chain, StoreID: storeID, RootHash: rootHash})
	if err != nil {
		return nil, err
	}
	return &http.Cookie{
		Name:     CookieName,
		Value:    string(value),
		HttpOnly: true,
		Secure:   false,
		MaxAge:   int(ttl.Seconds()),
		Path:     "/",
	}, nil
}
