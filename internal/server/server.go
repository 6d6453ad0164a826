// Package server wires the front-facing HTTP listener: it routes health
// checks and well-known-path bypasses around the UDI pipeline, and glues
// the Resolver, Registry, Selector and Proxy together for everything
// else, the way server/http.httpServer routes announce/scrape around the
// tracker for chihaya.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/dig-network/digproxy/internal/log"
	"github.com/dig-network/digproxy/internal/proxy"
	"github.com/dig-network/digproxy/internal/registry"
	"github.com/dig-network/digproxy/internal/resolver"
	"github.com/dig-network/digproxy/internal/selector"
)

// Config bounds the front-facing HTTP listener, mirroring httpConfig's
// read/write timeout fields.
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server is the front-facing content-routing reverse proxy listener.
type Server struct {
	cfg      Config
	registry *registry.Registry
	resolver *resolver.Resolver
	selector *selector.Selector
	proxy    *proxy.Proxy

	httpServer *http.Server
}

// New builds a Server. It owns none of reg/res/sel/px's lifecycles; the
// caller closes them independently.
func New(cfg Config, reg *registry.Registry, res *resolver.Resolver, sel *selector.Selector, px *proxy.Proxy) *Server {
	s := &Server{cfg: cfg, registry: reg, resolver: res, selector: sel, proxy: px}
	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.routes(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := httprouter.New()
	r.GET("/health", s.serveHealth)
	r.NotFound = http.HandlerFunc(s.serveCatchAll)
	return r
}

func (s *Server) serveHealth(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// serveCatchAll handles every path httprouter doesn't have a literal route
// for: the well-known bypass and the full UDI resolve/select/proxy
// pipeline, per spec §4 and §8.
func (s *Server) serveCatchAll(w http.ResponseWriter, r *http.Request) {
	if isWellKnown(r.URL.Path) {
		// Reserved for ACME and similar well-known handlers; bypasses the
		// UDI resolver and peer routing entirely rather than 400ing.
		http.NotFound(w, r)
		return
	}

	result, err := s.resolver.Resolve(r.Context(), r)
	if err != nil {
		log.Error("server: resolve failed", log.Fields{"path": r.URL.Path, "error": err.Error()})
		http.Error(w, "An error occurred while verifying the identifier.", http.StatusInternalServerError)
		return
	}

	switch result.Outcome {
	case resolver.Redirect:
		if result.SetCookie != nil {
			http.SetCookie(w, result.SetCookie)
		}
		http.Redirect(w, r, result.Location, http.StatusFound)
	case resolver.BadRequest:
		http.Error(w, result.Body, http.StatusBadRequest)
	case resolver.UnknownChain:
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(result.Body))
	case resolver.ServerError:
		http.Error(w, result.Body, http.StatusInternalServerError)
	case resolver.Forward:
		s.serveForward(w, r, result)
	default:
		http.Error(w, "Unexpected resolver outcome.", http.StatusInternalServerError)
	}
}

func (s *Server) serveForward(w http.ResponseWriter, r *http.Request, result resolver.Result) {
	storeID := result.Identifier.StoreID

	if err := s.registry.RefreshIfNeeded(r.Context(), storeID); err != nil {
		log.Error("server: refresh failed", log.Fields{"storeId": storeID, "error": err.Error()})
		http.Error(w, "An error occurred while locating peers for this store.", http.StatusInternalServerError)
		return
	}
	s.registry.StartPeriodicRefresh(storeID)

	key := firstPathSegment(result.Subpath)

	sel, err := s.selector.Select(r.Context(), storeID, result.Identifier.RootHash, key)
	if err != nil {
		http.Error(w, "No valid peers available for storeId: "+storeID+".", http.StatusInternalServerError)
		return
	}

	if result.SetCookie != nil {
		http.SetCookie(w, result.SetCookie)
	}

	subpath := result.Subpath
	if key != "" && !sel.UsedKey {
		// Only a root-hash-validated peer was found; drop the key segment
		// so the proxy forwards the store root rather than a key this
		// peer never confirmed it has (spec §4.3/§4.4).
		subpath = stripFirstPathSegment(subpath)
	}

	target := proxy.Target{
		Peer:       sel.Peer,
		StoreID:    storeID,
		Identifier: result.Identifier,
		Subpath:    subpath,
	}

	s.proxy.ServeHTTP(w, r, target)
}

func isWellKnown(path string) bool {
	return len(path) >= len("/.well-known") && path[:len("/.well-known")] == "/.well-known"
}

func firstPathSegment(subpath string) string {
	trimmed := trimLeadingSlash(subpath)
	for i, c := range trimmed {
		if c == '/' {
			return trimmed[:i]
		}
	}
	return trimmed
}

// stripFirstPathSegment drops subpath's leading segment, returning the
// remainder (with its leading slash intact), or "" if there is no more
// than one segment.
func stripFirstPathSegment(subpath string) string {
	trimmed := trimLeadingSlash(subpath)
	for i, c := range trimmed {
		if c == '/' {
			return trimmed[i:]
		}
	}
	return ""
}

func trimLeadingSlash(path string) string {
	if len(path) > 0 && path[0] == '/' {
		return path[1:]
	}
	return path
}

// Start runs the listener in the background, logging and returning on
// failure rather than blocking the caller.
func (s *Server) Start() {
	go func() {
		log.Info("server: listening", log.Fields{"addr": s.cfg.Addr})
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server: listener failed", log.Fields{"error": err.Error()})
		}
	}()
}

// Stop gracefully shuts the listener down.
func (s *Server) Stop() <-chan error {
	out := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		out <- s.httpServer.Shutdown(ctx)
		close(out)
	}()
	return out
}
