package grpcrt

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLaunch_MissingBinary(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	_, err := Launch(context.Background(), "/nonexistent/plugin-binary", nil, DefaultResourcePolicy(), logger)
	require.Error(t, err)
}

func TestPluginNameFromPath(t *testing.T) {
	require.Equal(t, "echo-plugin", pluginNameFromPath("/usr/local/bin/echo-plugin"))
	require.Equal(t, "echo-plugin", pluginNameFromPath("echo-plugin"))
}

func TestLoadSidecar_MissingIsNotError(t *testing.T) {
	m, err := loadSidecar(filepath.Join(t.TempDir(), "plugin-binary"))
	require.NoError(t, err)
	require.Equal(t, sidecarManifest{}, m)
}

func TestLoadSidecar_ParsesYAML(t *testing.T) {
	dir := t.TempDir()
	contents := "name: example\nallowNetwork: true\ninitTimeout: 2s\nconfig:\n  greeting: hello\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "plugin.yaml"), []byte(contents), 0644))

	m, err := loadSidecar(filepath.Join(dir, "plugin-binary"))
	require.NoError(t, err)
	require.Equal(t, "example", m.Name)
	require.NotNil(t, m.AllowNetwork)
	require.True(t, *m.AllowNetwork)
	require.Equal(t, "2s", m.InitTimeout)
	require.Equal(t, "hello", m.Config["greeting"])
}

func TestApplySidecarPolicy_OverridesTimeouts(t *testing.T) {
	allow := true
	policy := applySidecarPolicy(DefaultResourcePolicy(), sidecarManifest{
		AllowNetwork: &allow,
		InitTimeout:  "1500ms",
	})
	require.True(t, policy.AllowNetwork)
	require.Equal(t, 1500*time.Millisecond, policy.InitTimeout)
	require.Equal(t, DefaultResourcePolicy().ShutdownTimeout, policy.ShutdownTimeout)
}

func TestApplySidecarPolicy_IgnoresMalformedDuration(t *testing.T) {
	policy := applySidecarPolicy(DefaultResourcePolicy(), sidecarManifest{InitTimeout: "not-a-duration"})
	require.Equal(t, DefaultResourcePolicy().InitTimeout, policy.InitTimeout)
}

func TestMergeConfig_OverrideWins(t *testing.T) {
	merged := mergeConfig(
		map[string]string{"a": "base", "b": "base"},
		map[string]string{"b": "override"},
	)
	require.Equal(t, map[string]string{"a": "base", "b": "override"}, merged)
}
