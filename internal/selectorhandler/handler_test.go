package selectorhandler_test

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jamesaduncan/rustybeam/internal/selectorhandler"
	"github.com/jamesaduncan/rustybeam/pkg/pluginabi"
)

func newHandler(t *testing.T) pluginabi.Plugin {
	t.Helper()
	p, err := selectorhandler.New(nil)
	require.NoError(t, err)
	return p
}

func writeTestFile(t *testing.T, dir, name, contents string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(contents), 0644))
}

func TestHandleRequest_NoRangeHeaderPassesThrough(t *testing.T) {
	h := newHandler(t)
	outcome, err := h.HandleRequest(context.Background(), &pluginabi.Request{Method: http.MethodGet, Path: "/page.html"})
	require.NoError(t, err)
	require.Equal(t, pluginabi.Continue, outcome.Outcome)
}

func TestHandleRequest_GetBoundaryScenario1(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "page.html", `<html><body><h1 id="hdr">Hi</h1></body></html>`)

	h := newHandler(t)
	req := &pluginabi.Request{
		Method:   http.MethodGet,
		Path:     "/page.html",
		Header:   http.Header{"Range": {"selector=#hdr"}},
		Metadata: pluginabi.Metadata{selectorhandler.MetadataRoot: dir},
	}
	outcome, err := h.HandleRequest(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, pluginabi.Respond, outcome.Outcome)
	require.Equal(t, http.StatusPartialContent, outcome.Response.Status)
	require.Equal(t, `<h1 id="hdr">Hi</h1>`, string(outcome.Response.Body))
	require.Equal(t, "selector #hdr", outcome.Response.Header.Get("Content-Range"))
}

func TestHandleRequest_GetEmptyMatchIs416(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "page.html", `<html><body><p>hi</p></body></html>`)

	h := newHandler(t)
	req := &pluginabi.Request{
		Method:   http.MethodGet,
		Path:     "/page.html",
		Header:   http.Header{"Range": {"selector=.nope"}},
		Metadata: pluginabi.Metadata{selectorhandler.MetadataRoot: dir},
	}
	outcome, err := h.HandleRequest(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, http.StatusRequestedRangeNotSatisfiable, outcome.Response.Status)
}

func TestHandleRequest_PutBoundaryScenario2(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "p.html", `<html><body><table><tr><td id="c1">Y</td></tr></table></body></html>`)

	h := newHandler(t)
	req := &pluginabi.Request{
		Method:   http.MethodPut,
		Path:     "/p.html",
		Header:   http.Header{"Range": {"selector=td#c1"}},
		Body:     []byte(`<td id="c1">X</td>`),
		Metadata: pluginabi.Metadata{selectorhandler.MetadataRoot: dir},
	}
	outcome, err := h.HandleRequest(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, http.StatusPartialContent, outcome.Response.Status)
	require.Equal(t, `<td id="c1">X</td>`, string(outcome.Response.Body))

	persisted, err := os.ReadFile(filepath.Join(dir, "p.html"))
	require.NoError(t, err)
	require.Contains(t, string(persisted), `<td id="c1">X</td>`)
	// The only <tbody> is the one HTML5 parsing inserts into the original
	// <table><tr> markup; the replacement fragment adds no table wrapper.
	require.Equal(t, 1, strings.Count(string(persisted), "<tbody>"))
}

func TestHandleRequest_PostBoundaryScenario3(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "g.html", `<html><body><ul class="entry"><li>old</li></ul></body></html>`)

	h := newHandler(t)
	req := &pluginabi.Request{
		Method:   http.MethodPost,
		Path:     "/g.html",
		Header:   http.Header{"Range": {"selector=ul.entry"}},
		Body:     []byte(`<li>new</li>`),
		Metadata: pluginabi.Metadata{selectorhandler.MetadataRoot: dir},
	}
	outcome, err := h.HandleRequest(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, http.StatusPartialContent, outcome.Response.Status)
	require.Equal(t, `<ul class="entry"><li>old</li><li>new</li></ul>`, string(outcome.Response.Body))
}

func TestHandleRequest_DeleteBoundaryScenario4(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "d.html", `<html><body><p class="gone">a</p><p class="gone">b</p><p>c</p></body></html>`)

	h := newHandler(t)
	req := &pluginabi.Request{
		Method:   http.MethodDelete,
		Path:     "/d.html",
		Header:   http.Header{"Range": {"selector=.gone"}},
		Metadata: pluginabi.Metadata{selectorhandler.MetadataRoot: dir},
	}
	outcome, err := h.HandleRequest(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, http.StatusNoContent, outcome.Response.Status)

	persisted, err := os.ReadFile(filepath.Join(dir, "d.html"))
	require.NoError(t, err)
	require.NotContains(t, string(persisted), "gone")
}

func TestHandleRequest_PathTraversalIs403(t *testing.T) {
	dir := t.TempDir()

	h := newHandler(t)
	req := &pluginabi.Request{
		Method:   http.MethodGet,
		Path:     "/../../etc/passwd",
		Header:   http.Header{"Range": {"selector=#x"}},
		Metadata: pluginabi.Metadata{selectorhandler.MetadataRoot: dir},
	}
	outcome, err := h.HandleRequest(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, http.StatusForbidden, outcome.Response.Status)
}

func TestHandleRequest_NonHTMLPassesThrough(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "data.json", `{"a":1}`)

	h := newHandler(t)
	req := &pluginabi.Request{
		Method:   http.MethodGet,
		Path:     "/data.json",
		Header:   http.Header{"Range": {"selector=#x"}},
		Metadata: pluginabi.Metadata{selectorhandler.MetadataRoot: dir},
	}
	outcome, err := h.HandleRequest(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, pluginabi.Continue, outcome.Outcome)
}

func TestHandleRequest_MissingFileIs404(t *testing.T) {
	dir := t.TempDir()

	h := newHandler(t)
	req := &pluginabi.Request{
		Method:   http.MethodGet,
		Path:     "/nope.html",
		Header:   http.Header{"Range": {"selector=#x"}},
		Metadata: pluginabi.Metadata{selectorhandler.MetadataRoot: dir},
	}
	outcome, err := h.HandleRequest(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, outcome.Response.Status)
}
