// Package grpcrt hosts rustybeam plugins out-of-process: a configured
// plugin's library property names an executable, paired with a
// plugin.yaml sidecar manifest, and this package launches it as a
// subprocess speaking the ABI over hashicorp/go-plugin's RPC transport.
// This exists for deployers who want to isolate an untrusted or
// crash-prone plugin behind a process boundary, trading call latency for
// blast-radius containment - a native plugin loaded via nativert shares
// the host's address space and can bring the whole server down.
package grpcrt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	goplugin "github.com/hashicorp/go-plugin"
	"gopkg.in/yaml.v3"

	"github.com/jamesaduncan/rustybeam/pkg/pluginabi"
	"github.com/jamesaduncan/rustybeam/pkg/pluginabi/grpcutil"
)

// ResourcePolicy bounds a subprocess plugin's OS-level footprint. Unlike
// the teacher's ticketing platform, a rustybeam plugin has no database,
// cache, or email HostAPI to gate with fine-grained permissions. When
// AllowNetwork is false the subprocess environment carries
// RUSTYBEAM_NO_NETWORK=1; network access itself is not blocked at the OS
// level.
type ResourcePolicy struct {
	AllowNetwork    bool
	InitTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DefaultResourcePolicy is conservative: AllowNetwork off, generous
// timeouts.
func DefaultResourcePolicy() ResourcePolicy {
	return ResourcePolicy{
		AllowNetwork:    false,
		InitTimeout:     10 * time.Second,
		ShutdownTimeout: 5 * time.Second,
	}
}

// Handle is a live subprocess plugin: the RPC-backed pluginabi.Plugin and
// the underlying go-plugin client needed to terminate it.
type Handle struct {
	Plugin pluginabi.Plugin
	client *goplugin.Client
}

// Stop terminates the subprocess. Safe to call multiple times.
func (h *Handle) Stop() {
	if h.client != nil {
		h.client.Kill()
	}
}

// sidecarManifest is the optional plugin.yaml placed next to a subprocess
// plugin's executable. It carries defaults the host microdata config
// doesn't need to repeat for every deployment: a human-readable name,
// resource-policy overrides, and baseline config keys. Config keys
// present in the manifest's own itemtype configuration always win over
// the sidecar's, since the deployer editing the running host's
// configuration document is expressing a more specific intent than the
// plugin author's packaged defaults.
type sidecarManifest struct {
	Name            string            `yaml:"name"`
	AllowNetwork    *bool             `yaml:"allowNetwork"`
	InitTimeout     string            `yaml:"initTimeout"`
	ShutdownTimeout string            `yaml:"shutdownTimeout"`
	Config          map[string]string `yaml:"config"`
}

// sidecarPath returns the plugin.yaml expected alongside binaryPath.
func sidecarPath(binaryPath string) string {
	return filepath.Join(filepath.Dir(binaryPath), "plugin.yaml")
}

// loadSidecar reads and parses binaryPath's plugin.yaml. A missing
// sidecar is not an error: the manifest is entirely optional, and a
// plugin with no defaults to declare simply omits it.
func loadSidecar(binaryPath string) (sidecarManifest, error) {
	path := sidecarPath(binaryPath)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return sidecarManifest{}, nil
		}
		return sidecarManifest{}, fmt.Errorf("grpcrt: read sidecar manifest %s: %w", path, err)
	}
	var m sidecarManifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return sidecarManifest{}, fmt.Errorf("grpcrt: parse sidecar manifest %s: %w", path, err)
	}
	return m, nil
}

// applySidecarPolicy layers a sidecar's declared overrides onto policy.
// Malformed durations are ignored in favor of the caller's policy rather
// than failing the launch over a packaging typo.
func applySidecarPolicy(policy ResourcePolicy, m sidecarManifest) ResourcePolicy {
	if m.AllowNetwork != nil {
		policy.AllowNetwork = *m.AllowNetwork
	}
	if d, err := time.ParseDuration(m.InitTimeout); err == nil && d > 0 {
		policy.InitTimeout = d
	}
	if d, err := time.ParseDuration(m.ShutdownTimeout); err == nil && d > 0 {
		policy.ShutdownTimeout = d
	}
	return policy
}

// mergeConfig layers override on top of base, returning a new map.
// Override wins on key collision.
func mergeConfig(base, override map[string]string) map[string]string {
	merged := make(map[string]string, len(base)+len(override))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range override {
		merged[k] = v
	}
	return merged
}

// Launch starts binaryPath as a subprocess, completes the go-plugin
// handshake, dispenses the rustybeam plugin interface, and calls Create
// with config merged over any plugin.yaml sidecar defaults. The returned
// Plugin's HandleRequest/HandleResponse/Destroy calls are transparently
// proxied to the subprocess.
func Launch(ctx context.Context, binaryPath string, config map[string]string, policy ResourcePolicy, logger *slog.Logger) (*Handle, error) {
	sidecar, err := loadSidecar(binaryPath)
	if err != nil {
		return nil, err
	}
	policy = applySidecarPolicy(policy, sidecar)
	config = mergeConfig(sidecar.Config, config)

	cmd := exec.Command(binaryPath)
	if err := applyProcessSandbox(cmd, policy, pluginNameFromPath(binaryPath)); err != nil {
		return nil, fmt.Errorf("grpcrt: sandbox %s: %w", binaryPath, err)
	}

	client := goplugin.NewClient(&goplugin.ClientConfig{
		HandshakeConfig:  grpcutil.Handshake,
		Plugins:          map[string]goplugin.Plugin{"rustybeam": &grpcutil.RPCPlugin{}},
		Cmd:              cmd,
		AllowedProtocols: []goplugin.Protocol{goplugin.ProtocolNetRPC},
		Logger:           newHCLogAdapter(logger),
	})

	rpcClient, err := client.Client()
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("grpcrt: handshake with %s: %w", binaryPath, err)
	}

	raw, err := rpcClient.Dispense("rustybeam")
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("grpcrt: dispense %s: %w", binaryPath, err)
	}

	impl, ok := raw.(*grpcutil.RPCClient)
	if !ok {
		client.Kill()
		return nil, fmt.Errorf("grpcrt: %s did not return an RPC plugin client", binaryPath)
	}

	createCtx, cancel := context.WithTimeout(ctx, policy.InitTimeout)
	defer cancel()
	if err := runWithTimeout(createCtx, func() error { return impl.Create(config) }); err != nil {
		client.Kill()
		return nil, fmt.Errorf("grpcrt: create instance in %s: %w", binaryPath, err)
	}

	return &Handle{Plugin: impl, client: client}, nil
}

func runWithTimeout(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func pluginNameFromPath(path string) string {
	parts := strings.Split(strings.TrimSuffix(path, "/"), "/")
	return parts[len(parts)-1]
}

// newHCLogAdapter bridges go-plugin's internal hclog.Logger requirement onto
// the host's slog.Logger, so subprocess plugin diagnostics flow through
// the same structured logging pipeline as the rest of the server.
func newHCLogAdapter(logger *slog.Logger) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:   "pluginhost",
		Level:  hclog.Debug,
		Output: &slogWriter{logger: logger},
	})
}

type slogWriter struct {
	logger *slog.Logger
}

func (w *slogWriter) Write(p []byte) (int, error) {
	w.logger.Debug(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}
