//go:build !linux

package grpcrt

import (
	"fmt"
	"os/exec"
	"runtime"
)

// applyProcessSandbox is a no-op outside Linux; process-namespace isolation
// has no portable equivalent on these platforms.
func applyProcessSandbox(cmd *exec.Cmd, policy ResourcePolicy, pluginName string) error {
	fmt.Printf("warning: subprocess plugin sandboxing not available on %s, plugin %q runs with full process access\n",
		runtime.GOOS, pluginName)
	return nil
}
