package pluginhost

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jamesaduncan/rustybeam/internal/apierrors"
	"github.com/jamesaduncan/rustybeam/internal/pluginhost/grpcrt"
	"github.com/jamesaduncan/rustybeam/internal/pluginhost/nativert"
	"github.com/jamesaduncan/rustybeam/internal/pluginhost/signing"
	"github.com/jamesaduncan/rustybeam/pkg/pluginabi"
)

// LoadOptions controls how a single manifest entry is brought up.
type LoadOptions struct {
	ConcurrencySafe   bool
	MaxCallsPerSecond int
	TrustedKeys       []ed25519.PublicKey
}

type instance struct {
	name       string
	plugin     pluginabi.Plugin
	guard      *ConcurrencyGuard
	grpcHandle *grpcrt.Handle
}

// Manager owns the lifecycle of every plugin instance the pipeline engine
// invokes: loading the right transport per manifest, verifying binary
// signatures when required, wrapping each instance in a ConcurrencyGuard,
// and routing its diagnostic output into a shared LogBuffer.
type Manager struct {
	mu        sync.RWMutex
	instances map[string]*instance
	logs      *LogBuffer
	logger    *slog.Logger
}

// NewManager creates an empty plugin manager. logger may be nil, in which
// case slog.Default() is used for subprocess plugin diagnostics.
func NewManager(logs *LogBuffer, logger *slog.Logger) *Manager {
	if logs == nil {
		logs = NewLogBuffer(0)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		instances: make(map[string]*instance),
		logs:      logs,
		logger:    logger,
	}
}

// Load brings up one plugin instance per manifest and registers it under
// name. A manifest with Runtime == RuntimeNative loads manifest.Library as
// a Go shared library via nativert; RuntimeGRPC launches it as a
// subprocess via grpcrt. When opts.TrustedKeys is non-empty, the plugin
// binary must carry a valid detached signature from one of those keys -
// this is the engine's defense against tampered or unvetted plugin
// artifacts on the filesystem.
func (m *Manager) Load(ctx context.Context, name string, manifest pluginabi.Manifest, opts LoadOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.instances[name]; exists {
		return fmt.Errorf("pluginhost: %q already loaded", name)
	}

	if len(opts.TrustedKeys) > 0 {
		sigPath := signing.DefaultSignaturePath(manifest.Library)
		if err := signing.VerifyBinary(manifest.Library, sigPath, opts.TrustedKeys); err != nil {
			return fmt.Errorf("pluginhost: signature check for %q: %w", name, err)
		}
	}

	var (
		p          pluginabi.Plugin
		grpcHandle *grpcrt.Handle
		err        error
	)

	switch manifest.Runtime {
	case pluginabi.RuntimeNative, "":
		p, err = nativert.Load(manifest.Library, manifest.Config)
	case pluginabi.RuntimeGRPC:
		grpcHandle, err = grpcrt.Launch(ctx, manifest.Library, manifest.Config, grpcrt.DefaultResourcePolicy(), m.logger)
		if err == nil {
			p = grpcHandle.Plugin
		}
	default:
		err = fmt.Errorf("unknown runtime %q", manifest.Runtime)
	}
	if err != nil {
		return fmt.Errorf("pluginhost: load %q: %w", name, err)
	}
	registerPluginErrors(p)

	m.instances[name] = &instance{
		name:       name,
		plugin:     p,
		guard:      NewConcurrencyGuard(name, !opts.ConcurrencySafe, opts.MaxCallsPerSecond),
		grpcHandle: grpcHandle,
	}
	m.logs.Log(name, "info", "plugin loaded", map[string]any{"runtime": manifest.Runtime})
	return nil
}

// Get returns the loaded plugin instance registered under name.
func (m *Manager) Get(name string) (pluginabi.Plugin, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inst, ok := m.instances[name]
	if !ok {
		return nil, false
	}
	return inst.plugin, true
}

// HandleRequest invokes the named plugin's request phase under its
// concurrency guard.
func (m *Manager) HandleRequest(ctx context.Context, name string, req *pluginabi.Request) (pluginabi.RequestOutcome, error) {
	inst, ok := m.lookup(name)
	if !ok {
		return pluginabi.RequestOutcome{}, fmt.Errorf("pluginhost: %q not loaded", name)
	}
	var outcome pluginabi.RequestOutcome
	err := inst.guard.Call(func() error {
		var callErr error
		outcome, callErr = inst.plugin.HandleRequest(ctx, req)
		return callErr
	})
	if err != nil {
		m.logs.Log(name, "error", err.Error(), nil)
	}
	return outcome, err
}

// HandleResponse invokes the named plugin's response phase under its
// concurrency guard.
func (m *Manager) HandleResponse(ctx context.Context, name string, req *pluginabi.Request, resp *pluginabi.Response) error {
	inst, ok := m.lookup(name)
	if !ok {
		return fmt.Errorf("pluginhost: %q not loaded", name)
	}
	err := inst.guard.Call(func() error {
		return inst.plugin.HandleResponse(ctx, req, resp)
	})
	if err != nil {
		m.logs.Log(name, "error", err.Error(), nil)
	}
	return err
}

// Stats returns resource accounting for the named plugin instance.
func (m *Manager) Stats(name string) (StatsSnapshot, bool) {
	inst, ok := m.lookup(name)
	if !ok {
		return StatsSnapshot{}, false
	}
	return inst.guard.Stats(), true
}

// Names returns every currently loaded plugin instance name.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.instances))
	for name := range m.instances {
		names = append(names, name)
	}
	return names
}

// Unload destroys and removes one plugin instance.
func (m *Manager) Unload(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	inst, ok := m.instances[name]
	if !ok {
		return fmt.Errorf("pluginhost: %q not loaded", name)
	}
	delete(m.instances, name)

	err := inst.plugin.Destroy(ctx)
	if inst.grpcHandle != nil {
		inst.grpcHandle.Stop()
	}
	return err
}

// ShutdownAll destroys every loaded plugin instance.
func (m *Manager) ShutdownAll(ctx context.Context) error {
	m.mu.Lock()
	names := make([]string, 0, len(m.instances))
	for name := range m.instances {
		names = append(names, name)
	}
	m.mu.Unlock()

	var firstErr error
	for _, name := range names {
		if err := m.Unload(ctx, name); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Handle returns a pluginabi.Plugin that routes every call back through
// the manager's HandleRequest/HandleResponse, so callers that only know
// about the ABI (the pipeline engine) still get the benefit of the
// instance's ConcurrencyGuard and LogBuffer wiring. It panics if name
// isn't loaded, since building a pipeline stage around a missing plugin
// is a configuration error that should fail fast at startup.
func (m *Manager) Handle(name string) pluginabi.Plugin {
	if _, ok := m.lookup(name); !ok {
		panic(fmt.Sprintf("pluginhost: Handle(%q): not loaded", name))
	}
	return &managedPlugin{mgr: m, name: name}
}

type managedPlugin struct {
	mgr  *Manager
	name string
}

func (p *managedPlugin) Name() string { return p.name }

func (p *managedPlugin) HandleRequest(ctx context.Context, req *pluginabi.Request) (pluginabi.RequestOutcome, error) {
	return p.mgr.HandleRequest(ctx, p.name, req)
}

func (p *managedPlugin) HandleResponse(ctx context.Context, req *pluginabi.Request, resp *pluginabi.Response) error {
	return p.mgr.HandleResponse(ctx, p.name, req, resp)
}

func (p *managedPlugin) Destroy(ctx context.Context) error {
	return p.mgr.Unload(ctx, p.name)
}

// registerPluginErrors contributes a plugin's own error codes to the
// shared registry, namespaced under its declared Name, if it implements
// apierrors.ErrorEnumerator. This is an optional capability: most
// plugins only ever return apierrors' own core codes via
// pluginabi.ErrorOutcome, so the pluginabi.Plugin interface itself
// carries no EnumerateErrors method - a plugin opts in the same way
// http.Handler implementations opt into http.Flusher, by also
// implementing the narrower interface.
func registerPluginErrors(p pluginabi.Plugin) {
	if enumerator, ok := p.(apierrors.ErrorEnumerator); ok {
		apierrors.Registry.RegisterPlugin(p.Name(), enumerator)
	}
}

func (m *Manager) lookup(name string) (*instance, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inst, ok := m.instances[name]
	return inst, ok
}
