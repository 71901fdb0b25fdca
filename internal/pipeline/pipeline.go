// Package pipeline implements the two-phase request/response engine that
// drives one request through a host's ordered plugin list: forward until
// a plugin responds, then backward across exactly the plugins that were
// visited. It deliberately avoids an onion-style middleware chain - the
// engine holds the visit index explicitly and iterates it twice, rather
// than recursing through nested closures, so cancellation and error
// handling stay flat and easy to reason about.
package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/jamesaduncan/rustybeam/internal/apierrors"
	"github.com/jamesaduncan/rustybeam/pkg/pluginabi"
)

// Stage pairs a loaded plugin instance with the name it was configured
// under, purely for diagnostics (logging, error attribution).
type Stage struct {
	Name   string
	Plugin pluginabi.Plugin
}

// Engine runs a fixed, ordered list of stages over each request.
type Engine struct {
	stages []Stage
	logger *slog.Logger
}

// New builds an engine over stages. logger may be nil, in which case
// slog.Default() is used.
func New(stages []Stage, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{stages: stages, logger: logger}
}

// Run drives req through the pipeline and returns the final response.
// ctx carries the request's deadline (see spec timeouts, §5); a context
// that is already done when a stage is about to run short-circuits the
// request phase with a 504.
func (e *Engine) Run(ctx context.Context, req *pluginabi.Request) *pluginabi.Response {
	visited := make([]int, 0, len(e.stages))
	var resp *pluginabi.Response

requestPhase:
	for i, stage := range e.stages {
		if ctx.Err() != nil {
			resp = timeoutResponse()
			break requestPhase
		}

		outcome, err := stage.Plugin.HandleRequest(ctx, req)
		visited = append(visited, i)

		if err != nil {
			if ctx.Err() != nil {
				resp = timeoutResponse()
			} else {
				e.logger.Error("plugin request-phase error", "plugin", stage.Name, "error", err)
				resp = errorResponse(apierrors.CodeInternalError, err.Error())
			}
			break requestPhase
		}

		switch outcome.Outcome {
		case pluginabi.Continue:
			continue
		case pluginabi.Respond:
			resp = outcome.Response
			break requestPhase
		case pluginabi.Errored:
			e.logger.Error("plugin reported error outcome", "plugin", stage.Name, "kind", outcome.ErrorKind, "message", outcome.ErrorMessage)
			resp = errorResponse(apierrors.CodeInternalError, outcome.ErrorMessage)
			break requestPhase
		default:
			resp = errorResponse(apierrors.CodeInternalError, "plugin returned an unknown outcome")
			break requestPhase
		}
	}

	if resp == nil {
		resp = notFoundResponse()
	}

	for j := len(visited) - 1; j >= 0; j-- {
		stage := e.stages[visited[j]]
		if err := stage.Plugin.HandleResponse(ctx, req, resp); err != nil {
			e.logger.Warn("plugin response-phase error swallowed", "plugin", stage.Name, "error", err)
		}
	}

	return resp
}

func jsonErrorBody(code, message string) []byte {
	body, err := json.Marshal(map[string]any{
		"error": map[string]string{"code": code, "message": message},
	})
	if err != nil {
		return []byte(`{"error":{"code":"` + code + `"}}`)
	}
	return body
}

func errorResponse(code, message string) *pluginabi.Response {
	if message == "" {
		message = apierrors.Registry.Message(code)
	}
	return &pluginabi.Response{
		Status:   apierrors.Registry.HTTPStatus(code),
		Header:   map[string][]string{"Content-Type": {"application/json"}},
		Body:     jsonErrorBody(code, message),
		Metadata: pluginabi.Metadata{},
	}
}

func notFoundResponse() *pluginabi.Response {
	return errorResponse(apierrors.CodeNotFound, "")
}

func timeoutResponse() *pluginabi.Response {
	return errorResponse(apierrors.CodeTimeout, "")
}
