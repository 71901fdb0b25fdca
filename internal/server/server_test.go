package server_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jamesaduncan/rustybeam/internal/hostrouter"
	"github.com/jamesaduncan/rustybeam/internal/pipeline"
	"github.com/jamesaduncan/rustybeam/internal/server"
	"github.com/jamesaduncan/rustybeam/pkg/pluginabi"
)

type stubPlugin struct {
	outcome pluginabi.RequestOutcome
	sleep   time.Duration
}

func (p *stubPlugin) Name() string { return "stub" }

func (p *stubPlugin) HandleRequest(ctx context.Context, req *pluginabi.Request) (pluginabi.RequestOutcome, error) {
	if p.sleep > 0 {
		select {
		case <-time.After(p.sleep):
		case <-ctx.Done():
		}
	}
	return p.outcome, nil
}

func (p *stubPlugin) HandleResponse(ctx context.Context, req *pluginabi.Request, resp *pluginabi.Response) error {
	return nil
}

func (p *stubPlugin) Destroy(ctx context.Context) error { return nil }

func newRouter(t *testing.T, engine *pipeline.Engine) *hostrouter.Router {
	t.Helper()
	r, err := hostrouter.New([]*hostrouter.HostConfig{
		{Hostnames: []string{"example.com"}, Root: "/var/www/example", Engine: engine},
	}, "example.com")
	require.NoError(t, err)
	return r
}

func TestServer_RespondsFromPipeline(t *testing.T) {
	resp := &pluginabi.Response{Status: http.StatusOK, Header: http.Header{}, Body: []byte("hello")}
	engine := pipeline.New([]pipeline.Stage{
		{Name: "stub", Plugin: &stubPlugin{outcome: pluginabi.RespondOutcome(resp)}},
	}, nil)

	s := server.New(server.Config{Router: newRouter(t, engine)})

	req := httptest.NewRequest(http.MethodGet, "/index.html", nil)
	req.Host = "example.com"
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "hello", rec.Body.String())
}

func TestServer_GeneratesRequestID(t *testing.T) {
	resp := &pluginabi.Response{Status: http.StatusOK, Header: http.Header{}}
	engine := pipeline.New([]pipeline.Stage{
		{Name: "stub", Plugin: &stubPlugin{outcome: pluginabi.RespondOutcome(resp)}},
	}, nil)

	s := server.New(server.Config{Router: newRouter(t, engine)})

	req := httptest.NewRequest(http.MethodGet, "/index.html", nil)
	req.Host = "example.com"
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.NotEmpty(t, rec.Header().Get(server.RequestIDHeader))
}

func TestServer_PreservesIncomingRequestID(t *testing.T) {
	resp := &pluginabi.Response{Status: http.StatusOK, Header: http.Header{}}
	engine := pipeline.New([]pipeline.Stage{
		{Name: "stub", Plugin: &stubPlugin{outcome: pluginabi.RespondOutcome(resp)}},
	}, nil)

	s := server.New(server.Config{Router: newRouter(t, engine)})

	req := httptest.NewRequest(http.MethodGet, "/index.html", nil)
	req.Host = "example.com"
	req.Header.Set(server.RequestIDHeader, "fixed-id")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, "fixed-id", rec.Header().Get(server.RequestIDHeader))
}

func TestServer_UnknownHostIs404(t *testing.T) {
	engine := pipeline.New(nil, nil)
	r, err := hostrouter.New([]*hostrouter.HostConfig{
		{Hostnames: []string{"example.com"}, Root: "/var/www/example", Engine: engine},
	}, "")
	require.NoError(t, err)
	s := server.New(server.Config{Router: r})

	req := httptest.NewRequest(http.MethodGet, "/index.html", nil)
	req.Host = "unconfigured.example"
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_PluginExceedsTimeoutIs504(t *testing.T) {
	engine := pipeline.New([]pipeline.Stage{
		{Name: "slow", Plugin: &stubPlugin{outcome: pluginabi.ContinueOutcome(), sleep: 50 * time.Millisecond}},
		{Name: "after", Plugin: &stubPlugin{outcome: pluginabi.ContinueOutcome()}},
	}, nil)

	s := server.New(server.Config{Router: newRouter(t, engine), Timeout: 5 * time.Millisecond})

	req := httptest.NewRequest(http.MethodGet, "/index.html", nil)
	req.Host = "example.com"
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusGatewayTimeout, rec.Code)
}
