package main

import (
	"log"
	"os"
	"path/filepath"
	"strings"

	starctx "github.com/leapstack-labs/finmodel/internal/starlark"
)

// moduleDescriptions documents each module exposed to model code.
var moduleDescriptions = map[string]string{
	starctx.ModuleMath:    "Floating-point math from the Starlark standard library.",
	starctx.ModuleTime:    "Time values, durations and parsing from the Starlark standard library.",
	starctx.ModuleJSON:    "JSON encoding and decoding.",
	starctx.ModuleFrame:   "Column-ordered tables (DataFrame) with per-column aggregates. A frame in the result becomes a list of row mappings.",
	starctx.ModuleNumeric: "Vector helpers: zeros, ranges, cumulative sums and compound growth series.",
	starctx.ModuleFinance: "Time value of money: npv, irr, pmt and related functions.",
	starctx.ModuleDates:   "Calendar helpers for monthly forecasts, such as month ends and month arithmetic.",
}

// generateCapabilitiesDocs generates the sandbox capability reference from
// the registry built with the default allowlist.
func generateCapabilitiesDocs(outDir string) error {
	log.Printf("Generating capabilities docs to %s", outDir)

	reg, err := starctx.NewRegistry(starctx.RegistryOptions{})
	if err != nil {
		return err
	}

	w := NewMarkdownWriter()
	w.Frontmatter("Capabilities", "Modules and builtins available to model code")
	w.GeneratedMarker()

	w.Header(1, "Capabilities")
	w.Paragraph(`Model code runs in a sandbox. It can use the names below and nothing
else: there is no file system, network or process access. Referencing any other name or loading any other module fails with a
CapabilityViolation before or during execution.`)

	w.Header(2, "Predeclared Names")
	w.Table([]string{"Name", "Description"}, [][]string{
		{InlineCode("parameters"), "Read-only mapping of the run's parameters"},
		{InlineCode("result"), "Assign a mapping here; it becomes the execution result"},
	})

	w.Header(2, "Modules")
	for _, name := range reg.ModuleNames() {
		w.Header(3, InlineCode(name))
		if desc := moduleDescriptions[name]; desc != "" {
			w.Paragraph(desc)
		}
		members := reg.ModuleMembers(name)
		items := make([]string, len(members))
		for i, m := range members {
			items[i] = InlineCode(name + "." + m)
		}
		w.BulletList(items)
	}

	w.Header(2, "Builtins")
	builtins := reg.BuiltinNames()
	for i, b := range builtins {
		builtins[i] = InlineCode(b)
	}
	w.Paragraph(strings.Join(builtins, ", "))

	filename := filepath.Join(outDir, "capabilities.md")
	if err := os.WriteFile(filename, w.Bytes(), 0600); err != nil {
		return err
	}
	log.Printf("  Generated capabilities.md")
	return nil
}
