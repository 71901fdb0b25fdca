// Package apierrors provides structured API error codes and responses.
// All codes are namespaced (e.g., "core:not_found", "basicauth:invalid_credentials").
package apierrors

import "net/http"

// Core error codes - registered automatically at init.
// These map directly onto the error taxonomy a selector-addressed request
// can produce; plugins may register their own namespaced codes alongside
// them via RegisterPlugin.
const (
	CodeConfigInvalid     = "core:config_invalid"
	CodePluginLoadFailed  = "core:plugin_load_failed"
	CodeSelectorInvalid   = "core:selector_invalid"
	CodeSelectorEmpty     = "core:selector_empty"
	CodePathTraversal     = "core:path_traversal"
	CodeNotFound          = "core:not_found"
	CodeUnsupportedType   = "core:unsupported_media_type"
	CodeInternalError     = "core:internal_error"
	CodeTimeout           = "core:timeout"
	CodeMethodNotAllowed  = "core:method_not_allowed"
)

// coreErrors defines all core error codes with their default messages and HTTP status.
var coreErrors = []ErrorCode{
	{Code: CodeConfigInvalid, Message: "Server configuration is invalid", HTTPStatus: http.StatusInternalServerError},
	{Code: CodePluginLoadFailed, Message: "A configured plugin failed to load", HTTPStatus: http.StatusInternalServerError},
	{Code: CodeSelectorInvalid, Message: "Selector expression could not be parsed", HTTPStatus: http.StatusBadRequest},
	{Code: CodeSelectorEmpty, Message: "Selector matched no nodes", HTTPStatus: http.StatusRequestedRangeNotSatisfiable},
	{Code: CodePathTraversal, Message: "Requested path escapes the host root", HTTPStatus: http.StatusForbidden},
	{Code: CodeNotFound, Message: "Resource not found", HTTPStatus: http.StatusNotFound},
	{Code: CodeUnsupportedType, Message: "Resource is not text/html", HTTPStatus: http.StatusUnsupportedMediaType},
	{Code: CodeInternalError, Message: "Internal server error", HTTPStatus: http.StatusInternalServerError},
	{Code: CodeTimeout, Message: "Request exceeded its deadline", HTTPStatus: http.StatusGatewayTimeout},
	{Code: CodeMethodNotAllowed, Message: "Method not supported for this resource", HTTPStatus: http.StatusMethodNotAllowed},
}

func init() {
	for _, e := range coreErrors {
		Registry.Register(e)
	}
}
