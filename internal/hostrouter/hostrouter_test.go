package hostrouter_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jamesaduncan/rustybeam/internal/hostrouter"
)

func TestResolve_MatchesLowercasedAndPortStripped(t *testing.T) {
	example := &hostrouter.HostConfig{Hostnames: []string{"Example.COM"}, Root: "/srv/example"}
	r, err := hostrouter.New([]*hostrouter.HostConfig{example}, "")
	require.NoError(t, err)

	got, ok := r.Resolve("example.com:8080")
	require.True(t, ok)
	require.Same(t, example, got)
}

func TestResolve_FallsBackToDefault(t *testing.T) {
	example := &hostrouter.HostConfig{Hostnames: []string{"example.com"}, Root: "/srv/example"}
	r, err := hostrouter.New([]*hostrouter.HostConfig{example}, "example.com")
	require.NoError(t, err)

	got, ok := r.Resolve("unknown.example")
	require.True(t, ok)
	require.Same(t, example, got)
}

func TestResolve_NoMatchNoDefault(t *testing.T) {
	example := &hostrouter.HostConfig{Hostnames: []string{"example.com"}, Root: "/srv/example"}
	r, err := hostrouter.New([]*hostrouter.HostConfig{example}, "")
	require.NoError(t, err)

	_, ok := r.Resolve("unknown.example")
	require.False(t, ok)
}

func TestNew_OverlappingHostnamesIsFatal(t *testing.T) {
	a := &hostrouter.HostConfig{Hostnames: []string{"shared.example"}}
	b := &hostrouter.HostConfig{Hostnames: []string{"shared.example"}}
	_, err := hostrouter.New([]*hostrouter.HostConfig{a, b}, "")
	require.Error(t, err)
}

func TestNew_UnknownDefaultHostIsFatal(t *testing.T) {
	a := &hostrouter.HostConfig{Hostnames: []string{"example.com"}}
	_, err := hostrouter.New([]*hostrouter.HostConfig{a}, "ghost.example")
	require.Error(t, err)
}
