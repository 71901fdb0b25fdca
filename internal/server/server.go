// Package server wires the Host Router and Pipeline Engine behind a
// gin.Engine, translating net/http requests into pluginabi.Request
// values and pluginabi.Response values back onto the wire (spec §2, §5).
package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jamesaduncan/rustybeam/internal/apierrors"
	"github.com/jamesaduncan/rustybeam/internal/hostrouter"
	"github.com/jamesaduncan/rustybeam/pkg/pluginabi"
)

// DefaultTimeout is the per-request deadline applied when Config.Timeout
// is zero (spec §5: "Each request carries a deadline (configurable;
// default 30 s)").
const DefaultTimeout = 30 * time.Second

// Config configures a Server.
type Config struct {
	// Router resolves the Host header to a pipeline and document root.
	Router *hostrouter.Router
	// Timeout bounds how long a single request's plugin pipeline may
	// run before the server synthesizes a 504. Zero selects DefaultTimeout.
	Timeout time.Duration
	// Logger receives request-lifecycle diagnostics. Defaults to
	// slog.Default() when nil.
	Logger *slog.Logger
}

// Server adapts an *http.Request to the plugin pipeline and writes the
// resulting pluginabi.Response back to the client.
type Server struct {
	router  atomic.Pointer[hostrouter.Router]
	timeout time.Duration
	logger  *slog.Logger
	engine  *gin.Engine
}

// New builds a Server and its underlying gin.Engine. The engine is
// exposed via Handler for use with http.Server or httptest.
func New(cfg Config) *Server {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Server{timeout: cfg.Timeout, logger: cfg.Logger}
	s.router.Store(cfg.Router)

	eng := gin.New()
	eng.Use(gin.Recovery(), requestID())
	eng.NoRoute(s.dispatch)
	s.engine = eng

	return s
}

// Handler returns the http.Handler backing this Server.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// UpdateRouter atomically swaps the router consulted by new requests.
// In-flight requests keep running against the router they resolved a
// host from; only requests accepted afterward see r (spec §3: a
// config-reload plugin replaces the active ServerConfig without
// disturbing requests already in flight).
func (s *Server) UpdateRouter(r *hostrouter.Router) {
	s.router.Store(r)
}

// dispatch resolves the request's Host header to a HostConfig, runs its
// pipeline under a bounded context, and writes back the resulting
// pluginabi.Response. Every request goes through here: rusty-beam has no
// static routing table of its own, the plugin pipeline decides meaning.
func (s *Server) dispatch(c *gin.Context) {
	host, ok := s.router.Load().Resolve(c.Request.Host)
	if !ok {
		apierrors.Error(c, apierrors.CodeNotFound)
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		apierrors.Error(c, apierrors.CodeInternalError)
		return
	}

	req := &pluginabi.Request{
		Method:     c.Request.Method,
		Path:       c.Request.URL.Path,
		Header:     c.Request.Header.Clone(),
		Body:       body,
		RemoteAddr: c.Request.RemoteAddr,
		Metadata: pluginabi.Metadata{
			hostRootMetadataKey:  host.Root,
			requestIDMetadataKey: c.GetString(requestIDMetadataKey),
		},
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.timeout)
	defer cancel()

	resp := host.Engine.Run(ctx, req)
	writeResponse(c, resp)
}

// hostRootMetadataKey is the request-metadata key selectorhandler.Handler
// reads to resolve a request path against the document root of the
// resolved virtual host.
const hostRootMetadataKey = "host.root"

func writeResponse(c *gin.Context, resp *pluginabi.Response) {
	if resp == nil {
		apierrors.Error(c, apierrors.CodeInternalError)
		return
	}
	for key, values := range resp.Header {
		for _, v := range values {
			c.Writer.Header().Add(key, v)
		}
	}
	c.Status(resp.Status)
	if len(resp.Body) > 0 {
		_, _ = c.Writer.Write(resp.Body)
	}
}
