package bootstrap_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jamesaduncan/rustybeam/internal/bootstrap"
	"github.com/jamesaduncan/rustybeam/internal/config"
)

func TestBuild_SelectorHandlerOnlyHost(t *testing.T) {
	sc := &config.ServerConfig{
		DefaultHost: "example.com",
		Hosts: []config.HostConfig{
			{
				Hostnames: []string{"example.com"},
				HostRoot:  "/var/www/example",
				Plugins: []config.PluginSpec{
					{SchemaURL: "http://rustybeam.net/SelectorHandlerPlugin", Properties: map[string]string{}},
				},
			},
		},
	}

	result, err := bootstrap.Build(context.Background(), sc, bootstrap.Options{})
	require.NoError(t, err)
	require.NotNil(t, result.Router)

	host, ok := result.Router.Resolve("example.com")
	require.True(t, ok)
	require.Equal(t, "/var/www/example", host.Root)
	require.Empty(t, result.Manager.Names())
}

func TestBuild_UnloadablePluginFails(t *testing.T) {
	sc := &config.ServerConfig{
		Hosts: []config.HostConfig{
			{
				Hostnames: []string{"example.com"},
				Plugins: []config.PluginSpec{
					{SchemaURL: "http://rustybeam.net/BasicAuthPlugin", Properties: map[string]string{"library": "file:///nonexistent/basicauth.so"}},
				},
			},
		},
	}

	_, err := bootstrap.Build(context.Background(), sc, bootstrap.Options{})
	require.Error(t, err)
}
