package htmldocument

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseSelectSerialize_RoundTrip(t *testing.T) {
	src := []byte(`<html><head><title>T</title></head><body><h1 id="hdr">Hi</h1></body></html>`)
	doc, err := Parse(src)
	require.NoError(t, err)

	out, err := doc.Serialize()
	require.NoError(t, err)

	doc2, err := Parse(out)
	require.NoError(t, err)
	out2, err := doc2.Serialize()
	require.NoError(t, err)
	require.Equal(t, out, out2)
}

func TestParse_InvalidUTF8(t *testing.T) {
	_, err := Parse([]byte{0xff, 0xfe, 0xfd})
	require.Error(t, err)
}

func TestSelect_AndRenderOuter(t *testing.T) {
	src := []byte(`<html><body><h1 id="hdr">Hi</h1></body></html>`)
	doc, err := Parse(src)
	require.NoError(t, err)

	nodes, err := doc.Select("#hdr")
	require.NoError(t, err)
	require.Len(t, nodes, 1)

	out, err := RenderOuter(nodes[0])
	require.NoError(t, err)
	require.Equal(t, `<h1 id="hdr">Hi</h1>`, string(out))
}

func TestReplaceOuter_NoTableWrapping(t *testing.T) {
	src := []byte(`<html><body><table><tr><td id="c1">Y</td></tr></table></body></html>`)
	doc, err := Parse(src)
	require.NoError(t, err)

	nodes, err := doc.Select("td#c1")
	require.NoError(t, err)
	require.Len(t, nodes, 1)

	err = ReplaceOuter(nodes[0], []byte(`<td id="c1">X</td>`))
	require.NoError(t, err)

	nodes2, err := doc.Select("td#c1")
	require.NoError(t, err)
	require.Len(t, nodes2, 1)

	out, err := RenderOuter(nodes2[0])
	require.NoError(t, err)
	require.Equal(t, `<td id="c1">X</td>`, string(out))
}

func TestAppend_ToList(t *testing.T) {
	src := []byte(`<html><body><ul class="entry"><li>old</li></ul></body></html>`)
	doc, err := Parse(src)
	require.NoError(t, err)

	nodes, err := doc.Select("ul.entry")
	require.NoError(t, err)
	require.Len(t, nodes, 1)

	require.NoError(t, Append(nodes[0], []byte(`<li>new</li>`)))

	out, err := RenderOuter(nodes[0])
	require.NoError(t, err)
	require.Equal(t, `<ul class="entry"><li>old</li><li>new</li></ul>`, string(out))
}

func TestRemove_DeletesAllMatches(t *testing.T) {
	src := []byte(`<html><body><p class="gone">a</p><p class="gone">b</p><p>c</p></body></html>`)
	doc, err := Parse(src)
	require.NoError(t, err)

	nodes, err := doc.Select(".gone")
	require.NoError(t, err)
	require.Len(t, nodes, 2)

	for _, n := range nodes {
		require.NoError(t, Remove(n))
	}

	remaining, err := doc.Select(".gone")
	require.NoError(t, err)
	require.Len(t, remaining, 0)
}

func TestAppendThenRemove_IsIdempotent(t *testing.T) {
	src := []byte(`<html><body><ul class="entry"><li>old</li></ul></body></html>`)
	doc, err := Parse(src)
	require.NoError(t, err)

	before, err := doc.Serialize()
	require.NoError(t, err)

	nodes, err := doc.Select("ul.entry")
	require.NoError(t, err)
	require.NoError(t, Append(nodes[0], []byte(`<li>new</li>`)))

	appended := nodes[0].LastChild
	require.NoError(t, Remove(appended))

	after, err := doc.Serialize()
	require.NoError(t, err)
	require.Equal(t, before, after)
}
