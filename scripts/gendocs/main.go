// Package main provides a generator that extracts CLI, configuration and
// sandbox capability metadata from finmodel source code and generates
// markdown documentation.
//
// Usage:
//
//	go run ./scripts/gendocs -gen=cli -outdir=docs/cli
//	go run ./scripts/gendocs -gen=config -outdir=docs/reference
//	go run ./scripts/gendocs -gen=capabilities -outdir=docs/reference
//	go run ./scripts/gendocs -gen=all
package main

import (
	"flag"
	"log"
	"os"
	"path/filepath"
)

var (
	genFlag    = flag.String("gen", "all", "what to generate: cli, config, capabilities, all")
	outDirFlag = flag.String("outdir", "", "output directory (defaults based on gen type)")
)

// generators maps each -gen value to its generator and default directory.
var generators = map[string]struct {
	dir string
	run func(outDir string) error
}{
	"cli":          {dir: "cli", run: generateCLIDocs},
	"config":       {dir: "reference", run: generateConfigDocs},
	"capabilities": {dir: "reference", run: generateCapabilitiesDocs},
}

func main() {
	flag.Parse()

	names := []string{*genFlag}
	switch {
	case *genFlag == "all":
		names = []string{"cli", "config", "capabilities"}
	case generators[*genFlag].run == nil:
		log.Fatalf("unknown -gen value: %s (use: cli, config, capabilities, all)", *genFlag)
	}

	// Find project root (where go.mod is)
	projectRoot, err := findProjectRoot()
	if err != nil {
		log.Fatalf("failed to find project root: %v", err)
	}
	log.Printf("Project root: %s", projectRoot)

	for _, name := range names {
		gen := generators[name]
		outDir := *outDirFlag
		if outDir == "" || *genFlag == "all" {
			outDir = filepath.Join(projectRoot, "docs", gen.dir)
		}
		if err := os.MkdirAll(outDir, 0750); err != nil {
			log.Fatalf("failed to create output directory: %v", err)
		}
		if err := gen.run(outDir); err != nil {
			log.Fatalf("failed to generate %s docs: %v", name, err)
		}
	}

	log.Println("Done!")
}

// findProjectRoot walks up from current directory to find go.mod.
func findProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", os.ErrNotExist
		}
		dir = parent
	}
}
