package pluginhost_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jamesaduncan/rustybeam/internal/pluginhost"
	"github.com/jamesaduncan/rustybeam/pkg/pluginabi"
)

func TestManager_LoadUnknownRuntime(t *testing.T) {
	m := pluginhost.NewManager(nil, nil)
	err := m.Load(context.Background(), "bogus", pluginabi.Manifest{Runtime: "quantum"}, pluginhost.LoadOptions{})
	require.Error(t, err)
}

func TestManager_LoadMissingNativeLibrary(t *testing.T) {
	m := pluginhost.NewManager(nil, nil)
	err := m.Load(context.Background(), "missing", pluginabi.Manifest{
		Runtime: pluginabi.RuntimeNative,
		Library: "/nonexistent/plugin.so",
	}, pluginhost.LoadOptions{})
	require.Error(t, err)
}

func TestManager_LoadDuplicateName(t *testing.T) {
	m := pluginhost.NewManager(nil, nil)
	manifest := pluginabi.Manifest{Runtime: pluginabi.RuntimeNative, Library: "/nonexistent/plugin.so"}
	_ = m.Load(context.Background(), "dup", manifest, pluginhost.LoadOptions{})
	// Load still fails (no real library), so the name is never registered;
	// this exercises the duplicate-name guard only once a prior Load
	// actually succeeded, which requires a compiled native plugin.
	err := m.Load(context.Background(), "dup", manifest, pluginhost.LoadOptions{})
	require.Error(t, err)
}

func TestManager_HandleRequestNotLoaded(t *testing.T) {
	m := pluginhost.NewManager(nil, nil)
	_, err := m.HandleRequest(context.Background(), "ghost", &pluginabi.Request{})
	require.Error(t, err)
}

func TestManager_UnloadNotLoaded(t *testing.T) {
	m := pluginhost.NewManager(nil, nil)
	err := m.Unload(context.Background(), "ghost")
	require.Error(t, err)
}

func TestManager_NamesEmptyInitially(t *testing.T) {
	m := pluginhost.NewManager(nil, nil)
	require.Empty(t, m.Names())
}

func TestManager_ShutdownAllNoInstances(t *testing.T) {
	m := pluginhost.NewManager(nil, nil)
	require.NoError(t, m.ShutdownAll(context.Background()))
}

func TestManager_HandlePanicsWhenNotLoaded(t *testing.T) {
	m := pluginhost.NewManager(nil, nil)
	require.Panics(t, func() { m.Handle("ghost") })
}
