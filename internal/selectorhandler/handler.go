// Package selectorhandler implements the core plugin that translates
// HTTP verbs carrying a CSS selector into HTML tree operations: the
// semantic mapping at the heart of the system (spec §4.5). It runs as an
// ordinary pipeline stage behind the same pluginabi.Plugin interface as
// externally-compiled plugins, but bootstrap builds it in-process via New
// rather than loading it through the plugin manager.
package selectorhandler

import (
	"bytes"
	"context"
	"errors"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/jamesaduncan/rustybeam/internal/apierrors"
	"github.com/jamesaduncan/rustybeam/internal/htmldocument"
	"github.com/jamesaduncan/rustybeam/pkg/pluginabi"
)

// MetadataRoot is the request metadata key the server populates with the
// document root of the HostConfig the host router resolved, before
// running the pipeline.
const MetadataRoot = "host.root"

// Handler is the selector-addressed HTML resource handler.
type Handler struct {
	fileLocks *fileLocks
	reads     singleflight.Group
	filePerm  os.FileMode
}

// New builds a selector Handler. It matches pluginabi.Factory so it can
// be registered exactly like a loaded shared-library plugin.
func New(config map[string]string) (pluginabi.Plugin, error) {
	return &Handler{fileLocks: newFileLocks(), filePerm: 0644}, nil
}

func (h *Handler) Name() string { return "selector-handler" }

func (h *Handler) Destroy(ctx context.Context) error { return nil }

// HandleResponse is a no-op: this plugin only acts in the request phase.
func (h *Handler) HandleResponse(ctx context.Context, req *pluginabi.Request, resp *pluginabi.Response) error {
	return nil
}

func (h *Handler) HandleRequest(ctx context.Context, req *pluginabi.Request) (pluginabi.RequestOutcome, error) {
	selector, ok := selectorFromRange(req.Header)
	if !ok {
		return pluginabi.ContinueOutcome(), nil
	}

	fullPath, err := resolvePath(req.Metadata[MetadataRoot], req.Path)
	if err != nil {
		return pluginabi.RespondOutcome(errorResponse(apierrors.CodePathTraversal)), nil
	}

	if effectiveContentType(fullPath, req) != "text/html" {
		return pluginabi.ContinueOutcome(), nil
	}

	switch req.Method {
	case http.MethodGet, http.MethodHead:
		return h.handleRead(fullPath, selector, req.Method == http.MethodHead)
	case http.MethodPut:
		return h.handlePut(fullPath, selector, req.Body)
	case http.MethodPost:
		return h.handlePost(fullPath, selector, req.Body)
	case http.MethodDelete:
		return h.handleDelete(fullPath, selector)
	default:
		return pluginabi.ContinueOutcome(), nil
	}
}

// handleRead coalesces concurrent GET/HEAD requests for the same path and
// selector through a singleflight.Group: a read is idempotent, so N
// requests arriving while one render is in flight can safely share its
// result instead of each re-reading and re-rendering the file. Unlike
// the keyed mutex in filelock.go, sharing a result here never discards
// caller-specific state, since a read carries none.
func (h *Handler) handleRead(fullPath, selector string, headOnly bool) (pluginabi.RequestOutcome, error) {
	body, err, _ := h.reads.Do(fullPath+"\x00"+selector, func() (any, error) {
		doc, _, err := h.load(fullPath)
		if err != nil {
			return nil, err
		}

		nodes, err := doc.Select(selector)
		if err != nil {
			return nil, errSelectorInvalid
		}
		if len(nodes) == 0 {
			return nil, errSelectorEmpty
		}

		var buf bytes.Buffer
		for _, n := range nodes {
			out, err := htmldocument.RenderOuter(n)
			if err != nil {
				return nil, err
			}
			buf.Write(out)
		}
		return buf.Bytes(), nil
	})
	switch {
	case errors.Is(err, errSelectorInvalid):
		return pluginabi.RespondOutcome(errorResponse(apierrors.CodeSelectorInvalid)), nil
	case errors.Is(err, errSelectorEmpty):
		return pluginabi.RespondOutcome(errorResponse(apierrors.CodeSelectorEmpty)), nil
	case err != nil:
		return errOutcome(err), nil
	}

	out, _ := body.([]byte)
	if headOnly {
		out = nil
	}
	return pluginabi.RespondOutcome(selectorResponse(http.StatusPartialContent, selector, out)), nil
}

func (h *Handler) handlePut(fullPath, selector string, fragment []byte) (pluginabi.RequestOutcome, error) {
	var outcome pluginabi.RequestOutcome
	err := h.fileLocks.withLock(fullPath, func() error {
		doc, _, loadErr := h.load(fullPath)
		if loadErr != nil {
			outcome = errOutcome(loadErr)
			return nil
		}

		nodes, selErr := doc.Select(selector)
		if selErr != nil {
			outcome = pluginabi.RespondOutcome(errorResponse(apierrors.CodeSelectorInvalid))
			return nil
		}
		if len(nodes) == 0 {
			outcome = pluginabi.RespondOutcome(errorResponse(apierrors.CodeSelectorEmpty))
			return nil
		}

		for _, n := range nodes {
			if err := htmldocument.ReplaceOuter(n, fragment); err != nil {
				outcome = pluginabi.RespondOutcome(errorResponse(apierrors.CodeInternalError))
				return nil
			}
		}

		if err := h.persist(fullPath, doc); err != nil {
			outcome = pluginabi.RespondOutcome(errorResponse(apierrors.CodeInternalError))
			return nil
		}

		firstBody, err := firstMatchOuterHTML(doc, selector)
		if err != nil {
			outcome = pluginabi.RespondOutcome(errorResponse(apierrors.CodeInternalError))
			return nil
		}
		outcome = pluginabi.RespondOutcome(selectorResponse(http.StatusPartialContent, selector, firstBody))
		return nil
	})
	if err != nil {
		return errOutcome(err), nil
	}
	return outcome, nil
}

func (h *Handler) handlePost(fullPath, selector string, fragment []byte) (pluginabi.RequestOutcome, error) {
	var outcome pluginabi.RequestOutcome
	err := h.fileLocks.withLock(fullPath, func() error {
		doc, _, loadErr := h.load(fullPath)
		if loadErr != nil {
			outcome = errOutcome(loadErr)
			return nil
		}

		nodes, selErr := doc.Select(selector)
		if selErr != nil {
			outcome = pluginabi.RespondOutcome(errorResponse(apierrors.CodeSelectorInvalid))
			return nil
		}
		if len(nodes) == 0 {
			outcome = pluginabi.RespondOutcome(errorResponse(apierrors.CodeSelectorEmpty))
			return nil
		}

		for _, n := range nodes {
			if err := htmldocument.Append(n, fragment); err != nil {
				outcome = pluginabi.RespondOutcome(errorResponse(apierrors.CodeInternalError))
				return nil
			}
		}

		if err := h.persist(fullPath, doc); err != nil {
			outcome = pluginabi.RespondOutcome(errorResponse(apierrors.CodeInternalError))
			return nil
		}

		firstBody, err := htmldocument.RenderOuter(nodes[0])
		if err != nil {
			outcome = pluginabi.RespondOutcome(errorResponse(apierrors.CodeInternalError))
			return nil
		}
		outcome = pluginabi.RespondOutcome(selectorResponse(http.StatusPartialContent, selector, firstBody))
		return nil
	})
	if err != nil {
		return errOutcome(err), nil
	}
	return outcome, nil
}

func (h *Handler) handleDelete(fullPath, selector string) (pluginabi.RequestOutcome, error) {
	var outcome pluginabi.RequestOutcome
	err := h.fileLocks.withLock(fullPath, func() error {
		doc, _, loadErr := h.load(fullPath)
		if loadErr != nil {
			outcome = errOutcome(loadErr)
			return nil
		}

		nodes, selErr := doc.Select(selector)
		if selErr != nil {
			outcome = pluginabi.RespondOutcome(errorResponse(apierrors.CodeSelectorInvalid))
			return nil
		}
		if len(nodes) == 0 {
			outcome = pluginabi.RespondOutcome(errorResponse(apierrors.CodeSelectorEmpty))
			return nil
		}

		for _, n := range nodes {
			if err := htmldocument.Remove(n); err != nil {
				outcome = pluginabi.RespondOutcome(errorResponse(apierrors.CodeInternalError))
				return nil
			}
		}

		if err := h.persist(fullPath, doc); err != nil {
			outcome = pluginabi.RespondOutcome(errorResponse(apierrors.CodeInternalError))
			return nil
		}

		outcome = pluginabi.RespondOutcome(&pluginabi.Response{Status: http.StatusNoContent})
		return nil
	})
	if err != nil {
		return errOutcome(err), nil
	}
	return outcome, nil
}

func (h *Handler) load(fullPath string) (*htmldocument.Document, []byte, error) {
	data, err := os.ReadFile(fullPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, errNotFound
		}
		return nil, nil, err
	}
	doc, err := htmldocument.Parse(data)
	if err != nil {
		return nil, nil, err
	}
	return doc, data, nil
}

func (h *Handler) persist(fullPath string, doc *htmldocument.Document) error {
	out, err := doc.Serialize()
	if err != nil {
		return err
	}
	return writeFileAtomic(fullPath, out, h.filePerm)
}

// firstMatchOuterHTML re-runs selector against the mutated document to
// locate the response body for a PUT: the matched node itself was
// detached and replaced, so the original reference is no longer live.
func firstMatchOuterHTML(doc *htmldocument.Document, selector string) ([]byte, error) {
	nodes, err := doc.Select(selector)
	if err != nil || len(nodes) == 0 {
		return nil, err
	}
	return htmldocument.RenderOuter(nodes[0])
}

var (
	errNotFound        = errors.New("selectorhandler: resource not found")
	errSelectorInvalid = errors.New("selectorhandler: invalid selector")
	errSelectorEmpty   = errors.New("selectorhandler: selector matched no nodes")
)

func errOutcome(err error) pluginabi.RequestOutcome {
	if errors.Is(err, errNotFound) {
		return pluginabi.RespondOutcome(errorResponse(apierrors.CodeNotFound))
	}
	return pluginabi.RespondOutcome(errorResponse(apierrors.CodeInternalError))
}

// selectorFromRange extracts the CSS selector from a case-insensitive
// "selector=" prefix in the Range header (spec §4.5). Absence of the
// header, or of that prefix, means this plugin passes the request
// through untouched.
func selectorFromRange(header http.Header) (string, bool) {
	raw := header.Get("Range")
	if raw == "" {
		return "", false
	}
	lower := strings.ToLower(raw)
	const prefix = "selector="
	idx := strings.Index(lower, prefix)
	if idx == -1 {
		return "", false
	}
	return strings.TrimSpace(raw[idx+len(prefix):]), true
}

// resolvePath joins root and the request path, rejecting any result that
// escapes root (spec §4.5 security: path traversal -> 403 before any
// filesystem access).
func resolvePath(root, requestPath string) (string, error) {
	if root == "" {
		return "", errors.New("selectorhandler: no document root configured")
	}
	full := filepath.Join(root, filepath.FromSlash(requestPath))

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	absFull, err := filepath.Abs(full)
	if err != nil {
		return "", err
	}
	if absFull != absRoot && !strings.HasPrefix(absFull, absRoot+string(filepath.Separator)) {
		return "", errors.New("selectorhandler: path escapes document root")
	}
	return absFull, nil
}

// effectiveContentType returns the content type this request resolves
// to: an earlier plugin's override if present, else a guess from the
// file extension. The selector handler only binds to text/html.
func effectiveContentType(fullPath string, req *pluginabi.Request) string {
	if ct, ok := req.Metadata["content_type_override"]; ok && ct != "" {
		return stripParams(ct)
	}
	ext := strings.ToLower(filepath.Ext(fullPath))
	switch ext {
	case ".html", ".htm":
		return "text/html"
	default:
		return stripParams(mime.TypeByExtension(ext))
	}
}

func stripParams(contentType string) string {
	if idx := strings.Index(contentType, ";"); idx != -1 {
		contentType = contentType[:idx]
	}
	return strings.TrimSpace(contentType)
}

func selectorResponse(status int, selector string, body []byte) *pluginabi.Response {
	return &pluginabi.Response{
		Status: status,
		Header: http.Header{
			"Content-Type":  {"text/html"},
			"Content-Range": {"selector " + selector},
		},
		Body:     body,
		Metadata: pluginabi.Metadata{},
	}
}

func errorResponse(code string) *pluginabi.Response {
	return &pluginabi.Response{
		Status: apierrors.Registry.HTTPStatus(code),
		Header: http.Header{"Content-Type": {"application/json"}},
		Body:   []byte(`{"error":{"code":"` + code + `","message":"` + apierrors.Registry.Message(code) + `"}}`),
	}
}
