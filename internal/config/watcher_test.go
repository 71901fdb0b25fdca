package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad_ParsesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.html")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0644))

	w, err := Load(path, nil)
	require.NoError(t, err)
	require.Equal(t, "/var/www", w.Current().ServerRoot)
}

func TestWatcher_ReloadPicksUpChanges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.html")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0644))

	w, err := Load(path, nil)
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0", w.Current().BindAddress)

	updated := []byte(`<div itemscope itemtype="http://rustybeam.net/ServerConfig">
		<span itemprop="bindAddress">127.0.0.1</span>
		<div itemprop="host" itemscope itemtype="http://rustybeam.net/HostConfig">
			<span itemprop="hostname">example.com</span>
		</div>
	</div>`)
	require.NoError(t, os.WriteFile(path, updated, 0644))
	require.NoError(t, w.reload())
	require.Equal(t, "127.0.0.1", w.Current().BindAddress)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.html", nil)
	require.Error(t, err)
}
