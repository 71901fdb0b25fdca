// Package config loads rusty-beam's server configuration from a single
// HTML document whose microdata items describe the bind address, the
// configured virtual hosts, and each host's plugin pipeline (spec §6).
// No library anywhere in the retrieved corpus parses HTML microdata;
// this walker is original domain logic built directly on
// golang.org/x/net/html, in the same spirit as the hand-built CSS
// selector engine in internal/htmldocument/selector.
package config

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/jamesaduncan/rustybeam/pkg/pluginabi"
)

// PluginSpec is one configured plugin item: its schema URL (itemtype),
// the flat property map passed verbatim to the plugin's create hook, and
// any nested sub-plugins declared via a repeated "plugin" property.
type PluginSpec struct {
	SchemaURL  string
	Properties map[string]string
	Plugins    []PluginSpec
}

// HostConfig is one parsed *HostConfig* microdata item.
type HostConfig struct {
	Hostnames []string
	HostRoot  string
	Plugins   []PluginSpec
}

// ServerConfig is the top-level parsed *ServerConfig* microdata item.
type ServerConfig struct {
	ServerRoot  string
	BindAddress string
	BindPort    int
	DefaultHost string
	Hosts       []HostConfig
}

// Parse reads an HTML configuration document and extracts its
// ServerConfig item. Document order is preserved for every repeatable
// field (hosts, hostnames, plugin lists), per spec §6.
func Parse(data []byte) (*ServerConfig, error) {
	root, err := html.Parse(strings.NewReader(string(data)))
	if err != nil {
		return nil, fmt.Errorf("config: parse HTML: %w", err)
	}

	node := findItem(root, "ServerConfig")
	if node == nil {
		return nil, fmt.Errorf("config: no ServerConfig item found in document")
	}

	props := make(map[string][]propValue)
	collectProps(node, props)

	sc := &ServerConfig{
		ServerRoot:  firstText(props, "serverRoot"),
		BindAddress: firstText(props, "bindAddress"),
		DefaultHost: firstText(props, "defaultHost"),
	}

	if portStr := firstText(props, "bindPort"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("config: bindPort %q is not a number: %w", portStr, err)
		}
		sc.BindPort = port
	}

	for _, v := range props["host"] {
		if v.item == nil {
			continue
		}
		sc.Hosts = append(sc.Hosts, parseHostConfig(v.item))
	}

	if len(sc.Hosts) == 0 {
		return nil, fmt.Errorf("config: ServerConfig declares no host items")
	}

	return sc, nil
}

func parseHostConfig(it *item) HostConfig {
	hc := HostConfig{
		Hostnames: allText(it.props, "hostname"),
		HostRoot:  firstText(it.props, "hostRoot"),
	}
	for _, v := range it.props["plugin"] {
		if v.item == nil {
			continue
		}
		hc.Plugins = append(hc.Plugins, parsePluginSpec(v.item))
	}
	return hc
}

func parsePluginSpec(it *item) PluginSpec {
	spec := PluginSpec{
		SchemaURL:  firstOf(it.types),
		Properties: make(map[string]string),
	}
	for key, vals := range it.props {
		if key == "plugin" {
			for _, v := range vals {
				if v.item != nil {
					spec.Plugins = append(spec.Plugins, parsePluginSpec(v.item))
				}
			}
			continue
		}
		if len(vals) > 0 && vals[0].text != "" {
			spec.Properties[key] = vals[0].text
		}
	}
	return spec
}

func firstOf(xs []string) string {
	if len(xs) == 0 {
		return ""
	}
	return xs[0]
}

// libraryPath resolves a plugin's "library" property (a file:// URL) to
// a plain filesystem path.
func libraryPath(properties map[string]string) string {
	lib := properties["library"]
	return strings.TrimPrefix(lib, "file://")
}

// runtimeFor infers the plugin transport from its library path: a
// native shared library extension selects the in-process loader,
// anything else is treated as an executable run via the gRPC transport.
func runtimeFor(libPath string) string {
	switch {
	case strings.HasSuffix(libPath, ".so"), strings.HasSuffix(libPath, ".dylib"), strings.HasSuffix(libPath, ".dll"):
		return pluginabi.RuntimeNative
	default:
		return pluginabi.RuntimeGRPC
	}
}

// ToManifest converts a parsed PluginSpec into the pluginabi.Manifest the
// plugin host loader consumes, resolving the library path and runtime
// and recursively converting nested sub-plugins.
func (s PluginSpec) ToManifest() pluginabi.Manifest {
	libPath := libraryPath(s.Properties)
	m := pluginabi.Manifest{
		SchemaURL: s.SchemaURL,
		Runtime:   runtimeFor(libPath),
		Library:   libPath,
		Config:    s.Properties,
	}
	for _, nested := range s.Plugins {
		m.Plugins = append(m.Plugins, nested.ToManifest())
	}
	return m
}
