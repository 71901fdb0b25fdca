// Package bootstrap turns a parsed config.ServerConfig into a running
// set of plugin instances, pipeline engines, and a hostrouter.Router.
// It plays the orchestration role the loader package plays over there:
// resolving manifests to transports and wiring the result into the
// request-handling layer, just pointed at this domain's ABI instead of
// a DB-backed plugin registry.
package bootstrap

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jamesaduncan/rustybeam/internal/config"
	"github.com/jamesaduncan/rustybeam/internal/hostrouter"
	"github.com/jamesaduncan/rustybeam/internal/pipeline"
	"github.com/jamesaduncan/rustybeam/internal/pluginhost"
	"github.com/jamesaduncan/rustybeam/internal/selectorhandler"
	"github.com/jamesaduncan/rustybeam/pkg/pluginabi"
)

// selectorHandlerSchema is the itemtype every configuration document
// uses to mark the core selector plugin's position in a host's pipeline.
// Unlike every other configured plugin it is never dynamically loaded -
// it ships as part of the core binary (spec §2: "a first-class plugin,
// part of the core").
const selectorHandlerSchema = "SelectorHandlerPlugin"

// Options controls how plugin instances are brought up.
type Options struct {
	TrustedKeys []ed25519.PublicKey
	Logger      *slog.Logger
}

// Result is everything Build produced: the router ready to hand to
// server.New or server.UpdateRouter, and the manager owning every
// dynamically loaded plugin instance so the caller can shut them down.
type Result struct {
	Router  *hostrouter.Router
	Manager *pluginhost.Manager
}

// Build loads every plugin named in sc's hosts, assembles one pipeline
// engine per host, and returns the resulting router. Plugin names are
// derived from "<hostname>/<index>:<schema last segment>" so that
// identically configured plugins across two hosts don't collide in the
// Manager's instance table.
func Build(ctx context.Context, sc *config.ServerConfig, opts Options) (*Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mgr := pluginhost.NewManager(nil, logger)
	hostConfigs := make([]*hostrouter.HostConfig, 0, len(sc.Hosts))

	for _, h := range sc.Hosts {
		stages, err := buildStages(ctx, mgr, h, pluginhost.LoadOptions{TrustedKeys: opts.TrustedKeys})
		if err != nil {
			return nil, err
		}
		hostConfigs = append(hostConfigs, &hostrouter.HostConfig{
			Hostnames: h.Hostnames,
			Root:      h.HostRoot,
			Engine:    pipeline.New(stages, logger),
		})
	}

	router, err := hostrouter.New(hostConfigs, sc.DefaultHost)
	if err != nil {
		_ = mgr.ShutdownAll(ctx)
		return nil, err
	}

	return &Result{Router: router, Manager: mgr}, nil
}

func buildStages(ctx context.Context, mgr *pluginhost.Manager, h config.HostConfig, opts pluginhost.LoadOptions) ([]pipeline.Stage, error) {
	stages := make([]pipeline.Stage, 0, len(h.Plugins))
	for i, spec := range h.Plugins {
		manifest := spec.ToManifest()

		if schemaIs(manifest.SchemaURL, selectorHandlerSchema) {
			p, err := selectorhandler.New(manifest.Config)
			if err != nil {
				return nil, fmt.Errorf("bootstrap: build selector handler for host %v: %w", h.Hostnames, err)
			}
			stages = append(stages, pipeline.Stage{Name: p.Name(), Plugin: p})
			continue
		}

		name := fmt.Sprintf("%s/%d:%s", primaryHostname(h), i, lastSegment(manifest.SchemaURL))
		if err := mgr.Load(ctx, name, manifest, opts); err != nil {
			return nil, fmt.Errorf("bootstrap: load plugin %q for host %v: %w", name, h.Hostnames, err)
		}
		stages = append(stages, pipeline.Stage{Name: name, Plugin: mgr.Handle(name)})
	}
	return stages, nil
}

func primaryHostname(h config.HostConfig) string {
	if len(h.Hostnames) == 0 {
		return "unknown-host"
	}
	return h.Hostnames[0]
}

func schemaIs(schemaURL, want string) bool {
	return lastSegment(schemaURL) == want
}

func lastSegment(url string) string {
	idx := strings.LastIndexByte(url, '/')
	if idx == -1 {
		return url
	}
	return url[idx+1:]
}
