// Package pluginabi defines the stable boundary across which externally
// compiled rustybeam plugins are loaded and invoked. A plugin library,
// whatever transport carries it (see internal/pluginhost), ultimately
// satisfies the Plugin interface defined here.
package pluginabi

import (
	"context"
	"net/http"
)

// Metadata is the per-request key-value map shared across plugins during
// both the request and response phase. Keys are conventionally namespaced,
// e.g. "auth.user", "selector.range". Writes are last-writer-wins; callers
// that need atomic read-modify-write across concurrent goroutines must
// synchronize externally — within one request, plugin hooks run
// sequentially, so no internal locking is needed here.
type Metadata map[string]string

// Clone returns a shallow copy of m, or an empty non-nil map when m is
// nil, so the copy can be changed without touching the original.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return Metadata{}
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Request is the mutable-by-plugin record of an inbound HTTP request.
// The body and header may be replaced wholesale by a request-phase plugin.
type Request struct {
	Method     string
	Path       string
	Header     http.Header
	Body       []byte
	RemoteAddr string
	Metadata   Metadata
}

// Response is the record produced once a plugin enters the response phase.
type Response struct {
	Status   int
	Header   http.Header
	Body     []byte
	Metadata Metadata
}

// Outcome is the disposition a plugin's request-phase hook returns.
type Outcome int

const (
	// Continue tells the pipeline engine to invoke the next plugin.
	Continue Outcome = iota
	// Respond tells the engine to stop the request phase and enter the
	// response phase with the attached Response.
	Respond
	// Errored signals a request-phase failure; the engine converts it to
	// an HTTP status via policy (500 by default) unless an error-handler
	// plugin rewrites the response during its own response-phase hook.
	Errored
)

func (o Outcome) String() string {
	switch o {
	case Continue:
		return "continue"
	case Respond:
		return "respond"
	case Errored:
		return "error"
	default:
		return "unknown"
	}
}

// RequestOutcome is the full return value of HandleRequest.
type RequestOutcome struct {
	Outcome      Outcome
	Response     *Response
	ErrorKind    string
	ErrorMessage string
}

// ContinueOutcome is a convenience constructor for the common case.
func ContinueOutcome() RequestOutcome {
	return RequestOutcome{Outcome: Continue}
}

// RespondOutcome wraps a Response for the Respond disposition.
func RespondOutcome(resp *Response) RequestOutcome {
	return RequestOutcome{Outcome: Respond, Response: resp}
}

// ErrorOutcome wraps a plugin-reported failure for the Errored disposition.
func ErrorOutcome(kind, message string) RequestOutcome {
	return RequestOutcome{Outcome: Errored, ErrorKind: kind, ErrorMessage: message}
}

// Plugin is the in-process interface every loaded plugin instance
// satisfies, regardless of which transport (native shared library or
// out-of-process gRPC) produced it. The engine keeps exactly one Plugin
// value alive per configured PluginInstance for the life of the host.
type Plugin interface {
	// Name reports the plugin's identity for diagnostics and error
	// namespacing.
	Name() string

	// HandleRequest runs during the forward pass. It may mutate req in
	// place (the engine passes the same *Request to every plugin in the
	// pipeline) and must return a RequestOutcome describing what the
	// engine should do next.
	HandleRequest(ctx context.Context, req *Request) (RequestOutcome, error)

	// HandleResponse runs during the reverse pass, once per plugin that
	// was visited during the request phase, in the opposite order. A
	// non-nil error here is logged and swallowed by the engine; it must
	// never be used to change the response's fate.
	HandleResponse(ctx context.Context, req *Request, resp *Response) error

	// Destroy releases any resources (file handles, goroutines,
	// subprocesses) the instance owns. Called once at host shutdown.
	Destroy(ctx context.Context) error
}

// Factory is the shape a plugin library exports to create instances. A
// native plugin's shared library must export a symbol named "New" of
// exactly this type; an out-of-process plugin's entry point wraps the
// same shape behind an RPC call (see pkg/pluginabi/grpcutil).
type Factory func(config map[string]string) (Plugin, error)

// Manifest describes one configured plugin binding: the schema URL that
// matched it against a microdata *Plugin item, the transport used to load
// it, the resolved library/executable path, and the plugin-specific
// configuration keys carried verbatim from the configuration document.
type Manifest struct {
	SchemaURL string
	Runtime   string // "native" or "grpc"
	Library   string // resolved filesystem path (file:// URL stripped)
	Config    map[string]string
	// Plugins is the ordered list of nested sub-plugin manifests, present
	// only for plugins that support pipelines of their own (e.g.
	// directory-scoped plugins). Nested configuration crosses the ABI as
	// a flat string-keyed map; a pipeline-supporting plugin is
	// responsible for parsing its own "plugin" property blob.
	Plugins []Manifest
}

const (
	// RuntimeNative identifies a plugin loaded in-process via the
	// platform dynamic linker (Go's plugin package).
	RuntimeNative = "native"
	// RuntimeGRPC identifies a plugin run as a subprocess and spoken to
	// over hashicorp/go-plugin's RPC transport.
	RuntimeGRPC = "grpc"
)
