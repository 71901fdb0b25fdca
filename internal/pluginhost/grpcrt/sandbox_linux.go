//go:build linux

package grpcrt

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
)

// buildSysProcAttr creates OS-level process restrictions for subprocess
// plugins on Linux.
func buildSysProcAttr() *syscall.SysProcAttr {
	attr := &syscall.SysProcAttr{
		// Plugin dies when the host dies - prevent orphaned processes.
		Pdeathsig: syscall.SIGKILL,
	}

	if supportsNamespaces() && !isTestEnvironment() {
		attr.Cloneflags = syscall.CLONE_NEWNS | syscall.CLONE_NEWPID
	}

	return attr
}

// buildPluginEnv creates a minimal, restricted environment for the plugin
// process so it cannot read credentials or other state from the host's
// environment.
func buildPluginEnv(policy ResourcePolicy, pluginName string) []string {
	env := []string{
		"PATH=/usr/local/bin:/usr/bin:/bin",
	}

	tmpDir := filepath.Join(os.TempDir(), "rustybeam-plugin-"+pluginName)
	if err := os.MkdirAll(tmpDir, 0700); err == nil {
		env = append(env, "HOME="+tmpDir)
		env = append(env, "TMPDIR="+tmpDir)
	} else {
		env = append(env, "HOME="+os.TempDir())
		env = append(env, "TMPDIR="+os.TempDir())
	}

	if tz := os.Getenv("TZ"); tz != "" {
		env = append(env, "TZ="+tz)
	}

	if !policy.AllowNetwork {
		env = append(env, "RUSTYBEAM_NO_NETWORK=1")
	}

	return env
}

func supportsNamespaces() bool {
	_, err := os.Stat("/proc/sys/user/max_user_namespaces")
	return err == nil
}

func isTestEnvironment() bool {
	if os.Getenv("GO_TEST") == "1" {
		return true
	}
	if exe, err := os.Executable(); err == nil {
		return filepath.Base(exe) == "test" || strings.Contains(exe, ".test") || strings.Contains(exe, "_test")
	}
	return false
}

// applyProcessSandbox applies OS-level restrictions to the plugin command.
func applyProcessSandbox(cmd *exec.Cmd, policy ResourcePolicy, pluginName string) error {
	cmd.SysProcAttr = buildSysProcAttr()
	cmd.Env = buildPluginEnv(policy, pluginName)
	return nil
}
