// flowfilectl is a command-line tool for running and inspecting flows
// without the (not-yet-built) server/UI layer: load a document, run it
// against the local filesystem, or render it as an equivalent Go
// program.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/flowfile/flowfile"
	"github.com/flowfile/flowfile/pkg/flowmodel/document"
	"github.com/flowfile/flowfile/pkg/lazyframe/memtable"
	"github.com/flowfile/flowfile/pkg/scheduler"
	"github.com/joho/godotenv"
	"golang.org/x/term"
)

// isInteractive reports whether stdout is an attached terminal, used
// to decide whether to colorize run output.
func isInteractive() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

const (
	version = "0.1.0"
	usage   = `flowfilectl - Flowfile command-line tool

USAGE:
    flowfilectl <command> [options]

COMMANDS:
    run <document>        Execute a flow document end to end
    generate <document>   Render a flow document as an equivalent Go program
    validate <document>   Load a document and report schema errors, if any
    version                Show version information
    help                   Show this help message

RUN OPTIONS:
    -parallelism <n>       Max concurrent nodes per wave (default: 4)
    -timeout <duration>    Per-node timeout, 0 disables it (default: 0)
    -continue-on-error     Keep running independent branches after a node fails

GENERATE OPTIONS:
    -output <file>         Write the generated program to a file instead of stdout

EXAMPLES:
    flowfilectl run pipeline.json
    flowfilectl run pipeline.yaml -parallelism 8 -continue-on-error
    flowfilectl generate pipeline.json -output pipeline_gen.go
    flowfilectl validate pipeline.json
`
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
	godotenv.Load()

	switch os.Args[1] {
	case "run":
		handleRun(os.Args[2:])
	case "generate":
		handleGenerate(os.Args[2:])
	case "validate":
		handleValidate(os.Args[2:])
	case "version":
		fmt.Printf("flowfilectl v%s\n", version)
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command: %s\n", os.Args[1])
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
}

func loadEngine(path string) (*flowfile.Engine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if strings.EqualFold(filepath.Ext(path), ".yaml") || strings.EqualFold(filepath.Ext(path), ".yml") {
		doc, err := document.UnmarshalYAML(data)
		if err != nil {
			return nil, err
		}
		data, err = document.Marshal(doc)
		if err != nil {
			return nil, err
		}
	}

	backend := memtable.NewBackend()
	catalog := memtable.NewLocalCatalog(backend)
	return flowfile.LoadFlow(context.Background(), data, flowfile.WithCatalog(catalog))
}

func handleRun(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Error: run requires a document path")
		os.Exit(1)
	}
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	parallelism := fs.Int("parallelism", 4, "max concurrent nodes per wave")
	timeout := fs.Duration("timeout", 0, "per-node timeout, 0 disables it")
	continueOnError := fs.Bool("continue-on-error", false, "keep running independent branches after a node fails")
	if err := fs.Parse(args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		os.Exit(1)
	}

	engine, err := loadEngine(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	color := isInteractive()
	paint := func(code, s string) string {
		if !color {
			return s
		}
		return "\033[" + code + "m" + s + "\033[0m"
	}

	sink := flowfile.Subscribe(func(e scheduler.Event) {
		switch e.Type {
		case scheduler.EventRunStarted:
			fmt.Println("run started")
		case scheduler.EventNodeStarted:
			fmt.Printf("node %d: started (fingerprint %s)\n", e.NodeID, e.Fingerprint)
		case scheduler.EventNodeFinished:
			fmt.Printf("node %d: %s\n", e.NodeID, paint("32", "finished"))
		case scheduler.EventNodeFailed:
			fmt.Printf("node %d: %s: %v\n", e.NodeID, paint("31", "failed"), e.Err)
		case scheduler.EventRunFinished:
			fmt.Printf("run finished: %s\n", e.Status)
		}
	})

	opts := scheduler.RunOptions{MaxParallelism: *parallelism, NodeTimeout: *timeout, ContinueOnError: *continueOnError}
	if err := engine.Run(context.Background(), sink, opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func handleGenerate(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Error: generate requires a document path")
		os.Exit(1)
	}
	fs := flag.NewFlagSet("generate", flag.ExitOnError)
	output := fs.String("output", "", "write the generated program to a file instead of stdout")
	if err := fs.Parse(args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		os.Exit(1)
	}

	engine, err := loadEngine(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	code, err := engine.GenerateCode()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to generate code: %v\n", err)
		os.Exit(1)
	}

	if *output != "" {
		if err := os.WriteFile(*output, []byte(code), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to write %s: %v\n", *output, err)
			os.Exit(1)
		}
		fmt.Printf("Generated program saved to %s\n", *output)
		return
	}
	fmt.Print(code)
}

func handleValidate(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Error: validate requires a document path")
		os.Exit(1)
	}
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	if err := fs.Parse(args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		os.Exit(1)
	}

	engine, err := loadEngine(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	failed := false
	for _, id := range engine.NodeIDs() {
		desc, err := engine.Describe(id)
		if err != nil {
			fmt.Printf("node %d: %v\n", id, err)
			failed = true
			continue
		}
		if desc.Err != nil {
			fmt.Printf("node %d: schema error: %v\n", id, desc.Err)
			failed = true
			continue
		}
		fmt.Printf("node %d: ok (%d columns)\n", id, len(desc.Schema))
	}
	if failed {
		os.Exit(1)
	}
	fmt.Println("document is valid")
}
