// Command rbplugin scaffolds a new rustybeam plugin: a native shared
// library exporting the "New" factory symbol, or an out-of-process
// executable served over pkg/pluginabi/grpcutil.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
)

func main() {
	if len(os.Args) < 2 || os.Args[1] != "init" {
		printUsage()
		os.Exit(1)
	}

	var name, runtime string
	if len(os.Args) > 2 {
		name = os.Args[2]
	}
	if len(os.Args) > 3 {
		runtime = os.Args[3]
	}

	if name == "" {
		fmt.Println("Error: plugin name is required")
		printUsage()
		os.Exit(1)
	}
	name = strings.ToLower(strings.ReplaceAll(name, " ", "-"))

	switch runtime {
	case "", "native":
		if err := scaffold(name, nativeTemplate, "New"); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Printf("Created native plugin skeleton: plugins/%s/\n", name)
		fmt.Printf("Build with: go build -buildmode=plugin -o %s.so ./plugins/%s\n", name, name)
	case "grpc":
		if err := scaffold(name, grpcTemplate, "ServePlugin"); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Printf("Created gRPC plugin skeleton: plugins/%s/\n", name)
		fmt.Printf("Build with: go build -o %s ./plugins/%s\n", name, name)
	default:
		fmt.Printf("Unknown runtime %q (use \"native\" or \"grpc\")\n", runtime)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: rbplugin init <name> [native|grpc]")
}

type templateData struct {
	Name      string
	TypeName  string
	ModuleDir string
}

func scaffold(name, tmplText, marker string) error {
	dir := filepath.Join("plugins", name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	data := templateData{
		Name:     name,
		TypeName: toTypeName(name),
	}

	tmpl, err := template.New(marker).Parse(tmplText)
	if err != nil {
		return fmt.Errorf("parse template: %w", err)
	}

	f, err := os.Create(filepath.Join(dir, "main.go"))
	if err != nil {
		return fmt.Errorf("create main.go: %w", err)
	}
	defer f.Close()

	return tmpl.Execute(f, data)
}

func toTypeName(name string) string {
	words := strings.Split(name, "-")
	for i, w := range words {
		if len(w) > 0 {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, "")
}

const nativeTemplate = `// Package main implements the {{.Name}} plugin, loaded in-process as a
// Go shared library.
package main

import (
	"context"

	"github.com/jamesaduncan/rustybeam/pkg/pluginabi"
)

type {{.TypeName}}Plugin struct {
	config map[string]string
}

// New is the exported factory symbol the native plugin loader looks for.
func New(config map[string]string) (pluginabi.Plugin, error) {
	return &{{.TypeName}}Plugin{config: config}, nil
}

func (p *{{.TypeName}}Plugin) Name() string { return "{{.Name}}" }

func (p *{{.TypeName}}Plugin) HandleRequest(ctx context.Context, req *pluginabi.Request) (pluginabi.RequestOutcome, error) {
	return pluginabi.ContinueOutcome(), nil
}

func (p *{{.TypeName}}Plugin) HandleResponse(ctx context.Context, req *pluginabi.Request, resp *pluginabi.Response) error {
	return nil
}

func (p *{{.TypeName}}Plugin) Destroy(ctx context.Context) error { return nil }

func main() {}
`

const grpcTemplate = `// Command {{.Name}} is a rustybeam plugin served out-of-process over
// pkg/pluginabi/grpcutil.
package main

import (
	"github.com/jamesaduncan/rustybeam/pkg/pluginabi"
	"github.com/jamesaduncan/rustybeam/pkg/pluginabi/grpcutil"
)

type {{.TypeName}}Plugin struct {
	config map[string]string
}

func (p *{{.TypeName}}Plugin) Name() string { return "{{.Name}}" }

func (p *{{.TypeName}}Plugin) Create(config map[string]string) error {
	p.config = config
	return nil
}

func (p *{{.TypeName}}Plugin) HandleRequest(req *pluginabi.Request) (pluginabi.RequestOutcome, error) {
	return pluginabi.ContinueOutcome(), nil
}

func (p *{{.TypeName}}Plugin) HandleResponse(req *pluginabi.Request, resp *pluginabi.Response) error {
	return nil
}

func (p *{{.TypeName}}Plugin) Destroy() error { return nil }

func main() {
	grpcutil.ServePlugin(&{{.TypeName}}Plugin{})
}
`
