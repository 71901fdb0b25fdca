// Package nativert loads rustybeam plugins compiled as Go shared
// libraries (.so/.dylib) via the standard library's plugin package - the
// literal reading of "the platform dynamic linker" from the plugin ABI's
// design notes. No third-party library provides OS-level dlopen
// semantics in Go; plugin.Open is the only mechanism, and the Go runtime
// keeps a loaded library's code image alive for the process lifetime on
// its own, which satisfies the ABI's "never unload before destruction"
// requirement without any extra bookkeeping here.
package nativert

import (
	"fmt"
	"plugin"

	"github.com/jamesaduncan/rustybeam/pkg/pluginabi"
)

// FactorySymbol is the exported symbol name a native plugin's shared
// library must provide: a function with the same shape as
// pluginabi.Factory.
const FactorySymbol = "New"

// Load opens the shared library at path and calls its exported New
// function with config, returning the resulting plugin instance. The
// library itself is never closed; Go's plugin package has no unload
// primitive, which is the correct behavior here since the instance's
// methods must remain callable for the life of the host process.
func Load(path string, config map[string]string) (pluginabi.Plugin, error) {
	lib, err := plugin.Open(path)
	if err != nil {
		return nil, fmt.Errorf("nativert: open %s: %w", path, err)
	}
	sym, err := lib.Lookup(FactorySymbol)
	if err != nil {
		return nil, fmt.Errorf("nativert: lookup %s in %s: %w", FactorySymbol, path, err)
	}
	factory, ok := sym.(func(map[string]string) (pluginabi.Plugin, error))
	if !ok {
		return nil, fmt.Errorf("nativert: %s in %s has the wrong signature", FactorySymbol, path)
	}
	instance, err := factory(config)
	if err != nil {
		return nil, fmt.Errorf("nativert: create instance from %s: %w", path, err)
	}
	return instance, nil
}
