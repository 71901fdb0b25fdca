// Package grpcutil provides the out-of-process plugin serving utilities for
// rustybeam. An external plugin executable imports this package to serve
// its implementation over hashicorp/go-plugin's RPC transport; the
// host-side loading and lifecycle management stays in
// internal/pluginhost/grpcrt.
//
// Usage from a plugin's main():
//
//	func main() {
//	    grpcutil.ServePlugin(&myPlugin{})
//	}
package grpcutil

import (
	"context"
	"fmt"
	"net/rpc"

	goplugin "github.com/hashicorp/go-plugin"

	"github.com/jamesaduncan/rustybeam/pkg/pluginabi"
)

// Handshake is the shared handshake config between host and plugin
// processes. Both sides must agree on these values to connect.
var Handshake = goplugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "RUSTYBEAM_PLUGIN",
	MagicCookieValue: "rustybeam-v1",
}

// Implementation is what a plugin executable provides. One subprocess
// backs exactly one PluginInstance; Create is invoked once right after
// the host dispenses the plugin, mirroring the ABI's create/destroy
// lifecycle for an in-process plugin.
type Implementation interface {
	Name() string
	Create(config map[string]string) error
	HandleRequest(req *pluginabi.Request) (pluginabi.RequestOutcome, error)
	HandleResponse(req *pluginabi.Request, resp *pluginabi.Response) error
	Destroy() error
}

// ServePlugin is called by a plugin executable's main() to serve the
// implementation over the RPC transport until the host terminates it.
func ServePlugin(impl Implementation) {
	goplugin.Serve(&goplugin.ServeConfig{
		HandshakeConfig: Handshake,
		Plugins: map[string]goplugin.Plugin{
			"rustybeam": &RPCPlugin{Impl: impl},
		},
	})
}

// RPCPlugin is the go-plugin.Plugin implementation shared by both ends.
type RPCPlugin struct {
	goplugin.Plugin
	Impl Implementation
}

// Server returns the RPC server (plugin side, i.e. inside the subprocess).
func (p *RPCPlugin) Server(*goplugin.MuxBroker) (interface{}, error) {
	return &RPCServer{Impl: p.Impl}, nil
}

// Client returns the RPC client (host side).
func (p *RPCPlugin) Client(_ *goplugin.MuxBroker, c *rpc.Client) (interface{}, error) {
	return &RPCClient{client: c}, nil
}

// --- wire types: net/rpc requires gob-encodable arguments ---

type wireRequest struct {
	Method     string
	Path       string
	Header     map[string][]string
	Body       []byte
	RemoteAddr string
	Metadata   map[string]string
}

type wireResponse struct {
	Status   int
	Header   map[string][]string
	Body     []byte
	Metadata map[string]string
}

type wireOutcome struct {
	Outcome      int
	Response     *wireResponse
	ErrorKind    string
	ErrorMessage string
}

func toWireRequest(r *pluginabi.Request) wireRequest {
	return wireRequest{
		Method:     r.Method,
		Path:       r.Path,
		Header:     map[string][]string(r.Header),
		Body:       r.Body,
		RemoteAddr: r.RemoteAddr,
		Metadata:   map[string]string(r.Metadata),
	}
}

func fromWireRequest(w wireRequest) *pluginabi.Request {
	return &pluginabi.Request{
		Method:     w.Method,
		Path:       w.Path,
		Header:     w.Header,
		Body:       w.Body,
		RemoteAddr: w.RemoteAddr,
		Metadata:   pluginabi.Metadata(w.Metadata),
	}
}

func toWireResponse(r *pluginabi.Response) *wireResponse {
	if r == nil {
		return nil
	}
	return &wireResponse{
		Status:   r.Status,
		Header:   map[string][]string(r.Header),
		Body:     r.Body,
		Metadata: map[string]string(r.Metadata),
	}
}

func fromWireResponse(w *wireResponse) *pluginabi.Response {
	if w == nil {
		return nil
	}
	return &pluginabi.Response{
		Status:   w.Status,
		Header:   w.Header,
		Body:     w.Body,
		Metadata: pluginabi.Metadata(w.Metadata),
	}
}

// --- plugin-side RPC server ---

// RPCServer adapts an Implementation to net/rpc method dispatch. Method
// names are exported verbatim for net/rpc's "Service.Method" convention.
type RPCServer struct {
	Impl Implementation
}

func (s *RPCServer) Name(_ struct{}, resp *string) error {
	*resp = s.Impl.Name()
	return nil
}

func (s *RPCServer) Create(config map[string]string, _ *struct{}) error {
	return s.Impl.Create(config)
}

func (s *RPCServer) HandleRequest(req wireRequest, resp *wireOutcome) error {
	outcome, err := s.Impl.HandleRequest(fromWireRequest(req))
	if err != nil {
		return err
	}
	resp.Outcome = int(outcome.Outcome)
	resp.Response = toWireResponse(outcome.Response)
	resp.ErrorKind = outcome.ErrorKind
	resp.ErrorMessage = outcome.ErrorMessage
	return nil
}

type handleResponseArgs struct {
	Request  wireRequest
	Response wireResponse
}

func (s *RPCServer) HandleResponse(args handleResponseArgs, _ *struct{}) error {
	return s.Impl.HandleResponse(fromWireRequest(args.Request), fromWireResponse(&args.Response))
}

func (s *RPCServer) Destroy(_ struct{}, _ *struct{}) error {
	return s.Impl.Destroy()
}

// --- host-side RPC client; implements pluginabi.Plugin ---

// RPCClient is the host-side handle to a subprocess plugin. It implements
// pluginabi.Plugin so the pipeline engine never needs to know a given
// instance lives in another process.
type RPCClient struct {
	client *rpc.Client
	name   string
}

func (c *RPCClient) Name() string {
	if c.name != "" {
		return c.name
	}
	var resp string
	if err := c.client.Call("Plugin.Name", struct{}{}, &resp); err != nil {
		return "unknown"
	}
	c.name = resp
	return resp
}

// Create initializes the subprocess instance. Called once by the loader
// right after Dispense, before the plugin is handed to the pipeline.
func (c *RPCClient) Create(config map[string]string) error {
	return c.client.Call("Plugin.Create", config, &struct{}{})
}

func (c *RPCClient) HandleRequest(_ context.Context, req *pluginabi.Request) (pluginabi.RequestOutcome, error) {
	var resp wireOutcome
	if err := c.client.Call("Plugin.HandleRequest", toWireRequest(req), &resp); err != nil {
		return pluginabi.RequestOutcome{}, fmt.Errorf("rpc HandleRequest: %w", err)
	}
	return pluginabi.RequestOutcome{
		Outcome:      pluginabi.Outcome(resp.Outcome),
		Response:     fromWireResponse(resp.Response),
		ErrorKind:    resp.ErrorKind,
		ErrorMessage: resp.ErrorMessage,
	}, nil
}

func (c *RPCClient) HandleResponse(_ context.Context, req *pluginabi.Request, resp *pluginabi.Response) error {
	args := handleResponseArgs{Request: toWireRequest(req)}
	if w := toWireResponse(resp); w != nil {
		args.Response = *w
	}
	if err := c.client.Call("Plugin.HandleResponse", args, &struct{}{}); err != nil {
		return fmt.Errorf("rpc HandleResponse: %w", err)
	}
	return nil
}

func (c *RPCClient) Destroy(_ context.Context) error {
	return c.client.Call("Plugin.Destroy", struct{}{}, &struct{}{})
}

var _ pluginabi.Plugin = (*RPCClient)(nil)
