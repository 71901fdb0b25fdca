// Package hostrouter resolves an HTTP request's Host header to the
// HostConfig (document root and pipeline) it should run against.
package hostrouter

import (
	"fmt"
	"net"
	"strings"

	"github.com/jamesaduncan/rustybeam/internal/pipeline"
)

// HostConfig is one virtual host: a document root on disk and the
// pipeline engine built from its configured plugin list.
type HostConfig struct {
	Hostnames []string
	Root      string
	Engine    *pipeline.Engine
}

// Router indexes a set of HostConfigs by (lowercased, port-stripped)
// hostname, with an optional default used when the Host header matches
// nothing configured.
type Router struct {
	byHost  map[string]*HostConfig
	def     *HostConfig
	configs []*HostConfig
}

// New builds a Router from a list of HostConfigs. defaultHostname, if
// non-empty, must name one of the hostnames present in hosts and becomes
// the fallback for unmatched Host headers. Overlapping hostname claims
// between two HostConfigs are a fatal configuration error (spec §4.4).
func New(hosts []*HostConfig, defaultHostname string) (*Router, error) {
	r := &Router{byHost: make(map[string]*HostConfig), configs: hosts}

	for _, h := range hosts {
		for _, raw := range h.Hostnames {
			name := NormalizeHost(raw)
			if name == "" {
				continue
			}
			if existing, claimed := r.byHost[name]; claimed {
				return nil, fmt.Errorf("hostrouter: hostname %q claimed by multiple hosts (%v and %v)", name, existing.Hostnames, h.Hostnames)
			}
			r.byHost[name] = h
		}
	}

	if defaultHostname != "" {
		def, ok := r.byHost[NormalizeHost(defaultHostname)]
		if !ok {
			return nil, fmt.Errorf("hostrouter: default host %q is not among the configured hostnames", defaultHostname)
		}
		r.def = def
	}

	return r, nil
}

// NormalizeHost lowercases a Host header value and strips a trailing
// ":port", matching the header-matching algorithm in spec §4.4.
func NormalizeHost(hostHeader string) string {
	host := strings.ToLower(strings.TrimSpace(hostHeader))
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

// Resolve returns the HostConfig for the given Host header, or the
// configured default, or (nil, false) if neither matches.
func (r *Router) Resolve(hostHeader string) (*HostConfig, bool) {
	if hc, ok := r.byHost[NormalizeHost(hostHeader)]; ok {
		return hc, true
	}
	if r.def != nil {
		return r.def, true
	}
	return nil, false
}

// All returns every configured HostConfig, for diagnostics and reload
// validation.
func (r *Router) All() []*HostConfig {
	return r.configs
}
